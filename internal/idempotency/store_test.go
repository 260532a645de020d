package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"civiccite/internal/config"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	data map[string]string
	ttl  time.Duration
	err  error
}

func (f *fakeRedis) Get(ctx context.Context, key string) *goredis.StringCmd {
	if f.err != nil {
		return goredis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, exp time.Duration) *goredis.StatusCmd {
	f.data[key] = string(value.([]byte))
	f.ttl = exp
	return goredis.NewStatusResult("OK", nil)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore(8, time.Minute)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, ok)

	body := []byte(`{"resolution":"answer"}`)
	require.NoError(t, s.Put(ctx, "r1", body))
	body[0] = 'x'

	got, ok, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"resolution":"answer"}`, string(got), "stored body must be a copy")
}

func TestMemoryStoreExpires(t *testing.T) {
	s := NewMemoryStore(8, 20*time.Millisecond)
	require.NoError(t, s.Put(context.Background(), "r1", []byte("x")))
	time.Sleep(60 * time.Millisecond)
	_, ok, _ := s.Get(context.Background(), "r1")
	assert.False(t, ok)
}

func TestRedisStoreSetsTTLAndHandlesMiss(t *testing.T) {
	f := &fakeRedis{data: map[string]string{}}
	s := NewRedisStore(f, 10*time.Minute)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "r1", []byte("body")))
	assert.Equal(t, 10*time.Minute, f.ttl)
	assert.Contains(t, f.data, "civiccite:idem:r1")

	got, ok, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "body", string(got))

	f.err = errors.New("connection refused")
	_, _, err = s.Get(ctx, "r1")
	require.Error(t, err)
}

func TestNewFromConfigBackends(t *testing.T) {
	s, closeFn, err := NewFromConfig(context.Background(), config.Config{IdempotencyBackend: "memory", IdempotencyTTL: time.Minute})
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, s)
	require.NoError(t, closeFn())

	s, _, err = NewFromConfig(context.Background(), config.Config{IdempotencyBackend: "none"})
	require.NoError(t, err)
	require.Nil(t, s)

	_, _, err = NewFromConfig(context.Background(), config.Config{IdempotencyBackend: "memcached"})
	require.Error(t, err)
}
