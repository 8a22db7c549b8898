package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/rf-checker/rf-checker-go/internal/config"
	"github.com/sirupsen/logrus"
)

// Store key/value storage behind the result cache.
// Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
	Close() error
}

// Entry one cached value
type Entry struct {
	Key       string
	Value     string
	CreatedAt time.Time
}

// Observer receives hit/miss events, usually a metrics collector.
type Observer interface {
	RecordCacheHit(backend string)
	RecordCacheMiss(backend string)
}

// New opens the store selected by cfg.Backend.
func New(cfg *config.CacheConfig, logger *logrus.Logger) (Store, error) {
	var (
		store Store
		err   error
	)

	switch cfg.Backend {
	case "", "memory":
		store = NewMemoryStore()
	case "sqlite", "mysql":
		store, err = OpenGormStore(cfg, logger)
	case "redis":
		store, err = OpenRedisStore(cfg)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s cache: %w", cfg.Backend, err)
	}

	logger.WithField("backend", backendName(cfg.Backend)).Info("Result cache ready")
	return store, nil
}

func backendName(b string) string {
	if b == "" {
		return "memory"
	}
	return b
}

// Instrumented reports hits and misses of an underlying store.
type Instrumented struct {
	Store
	backend  string
	observer Observer
}

// NewInstrumented wraps store; a nil observer disables reporting.
func NewInstrumented(store Store, backend string, observer Observer) *Instrumented {
	return &Instrumented{Store: store, backend: backendName(backend), observer: observer}
}

func (s *Instrumented) Get(ctx context.Context, key string) (string, bool, error) {
	value, ok, err := s.Store.Get(ctx, key)
	if err == nil && s.observer != nil {
		if ok {
			s.observer.RecordCacheHit(s.backend)
		} else {
			s.observer.RecordCacheMiss(s.backend)
		}
	}
	return value, ok, err
}
