// Package idempotency remembers recent responses by request id so a client
// retry within the TTL gets the same body back. It is advisory: callers log
// store errors and carry on.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"civiccite/internal/config"

	"github.com/hashicorp/golang-lru/v2/expirable"
	goredis "github.com/redis/go-redis/v9"
)

type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, body []byte) error
}

type MemoryStore struct {
	cache *expirable.LRU[string, []byte]
}

func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	if size <= 0 {
		size = 4096
	}
	return &MemoryStore{cache: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, ok := s.cache.Get(key)
	return b, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, body []byte) error {
	s.cache.Add(key, append([]byte(nil), body...))
	return nil
}

type redisClient interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
}

// RedisStore shares the cache between API replicas.
type RedisStore struct {
	rdb    redisClient
	ttl    time.Duration
	prefix string
}

func NewRedisStore(rdb redisClient, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl, prefix: "civiccite:idem:"}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return b, true, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, body []byte) error {
	if err := s.rdb.Set(ctx, s.prefix+key, body, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// NewFromConfig returns the configured backend. The returned closer releases
// the Redis connection and is a no-op otherwise.
func NewFromConfig(ctx context.Context, cfg config.Config) (Store, func() error, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.IdempotencyBackend)) {
	case "", "memory":
		return NewMemoryStore(cfg.IdempotencySize, cfg.IdempotencyTTL), func() error { return nil }, nil
	case "redis":
		rdb := goredis.NewClient(&goredis.Options{
			Addr:        cfg.RedisAddr,
			DialTimeout: 5 * time.Second,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		return NewRedisStore(rdb, cfg.IdempotencyTTL), rdb.Close, nil
	case "none", "off":
		return nil, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown idempotency backend %q", cfg.IdempotencyBackend)
	}
}
