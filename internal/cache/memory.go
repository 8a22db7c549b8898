package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore process-lifetime map, no eviction
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	return e.Value, ok, nil
}

// Put overwrites silently; concurrent writers of one key race harmlessly.
func (s *MemoryStore) Put(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = Entry{Key: key, Value: value, CreatedAt: time.Now().UTC()}
	return nil
}

// Len number of cached entries
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) Close() error { return nil }
