package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rf-checker/rf-checker-go/internal/config"
)

// RedisStore cache shared between service instances
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix namespaces every key.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// WithTTL expires entries; zero keeps them forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = ttl }
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// OpenRedisStore connects using cfg.RedisURL and checks the connection.
func OpenRedisStore(cfg *config.CacheConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if cfg.RedisPool > 0 {
		opts.PoolSize = cfg.RedisPool
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisStore(client, WithPrefix(cfg.KeyPrefix), WithTTL(cfg.TTL)), nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache get: %w", err)
	}
	return value, true, nil
}

func (s *RedisStore) Put(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.prefix+key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
