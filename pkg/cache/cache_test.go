package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/groupaccess/pkg/cacheable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisBackend(t *testing.T) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	config := DefaultConfig()
	config.Backend = BackendRedis
	config.RedisURL = "redis://" + mr.Addr()

	b, err := NewRedisBackend(config)
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create redis backend: %v", err)
	}

	t.Cleanup(func() {
		b.Close()
		mr.Close()
	})
	return b, mr
}

func backends(t *testing.T) map[string]Backend {
	mem, err := NewMemoryBackend(nil)
	require.NoError(t, err)
	rb, _ := setupRedisBackend(t)
	return map[string]Backend{"memory": mem, "redis": rb}
}

func TestBackend_TagInvalidation(t *testing.T) {
	ctx := context.Background()

	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			meta := cacheable.New().AddTags("config:group.role.foo-member", "config:group_role_list")
			require.NoError(t, b.Set(ctx, "perms:1", []byte("one"), meta))
			require.NoError(t, b.Set(ctx, "perms:2", []byte("two"), cacheable.New().AddTags("group_list")))

			data, err := b.Get(ctx, "perms:1")
			require.NoError(t, err)
			assert.Equal(t, []byte("one"), data)

			require.NoError(t, b.InvalidateTags(ctx, "config:group.role.foo-member"))

			_, err = b.Get(ctx, "perms:1")
			assert.ErrorIs(t, err, ErrCacheMiss)

			data, err = b.Get(ctx, "perms:2")
			require.NoError(t, err)
			assert.Equal(t, []byte("two"), data)

			// Entries written after the invalidation are valid again
			require.NoError(t, b.Set(ctx, "perms:1", []byte("one again"), meta))
			data, err = b.Get(ctx, "perms:1")
			require.NoError(t, err)
			assert.Equal(t, []byte("one again"), data)

			sum, err := b.Checksum(ctx, meta.Tags())
			require.NoError(t, err)
			assert.Equal(t, int64(1), sum)

			stats, err := b.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(3), stats.Hits)
			assert.Equal(t, int64(1), stats.Misses)
			assert.Equal(t, int64(2), stats.ItemCount)
		})
	}
}

func TestBackend_MaxAge(t *testing.T) {
	ctx := context.Background()

	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			now := time.Now()
			switch be := b.(type) {
			case *MemoryBackend:
				be.now = func() time.Time { return now }
			case *RedisBackend:
				be.now = func() time.Time { return now }
			}

			require.NoError(t, b.Set(ctx, "uncacheable", []byte("x"), cacheable.New().WithMaxAge(0)))
			_, err := b.Get(ctx, "uncacheable")
			assert.ErrorIs(t, err, ErrCacheMiss)

			require.NoError(t, b.Set(ctx, "short", []byte("x"), cacheable.New().WithMaxAge(60)))
			_, err = b.Get(ctx, "short")
			require.NoError(t, err)

			now = now.Add(2 * time.Minute)
			_, err = b.Get(ctx, "short")
			assert.ErrorIs(t, err, ErrCacheMiss)
		})
	}
}

func TestBackend_DeleteAndInvalidKey(t *testing.T) {
	ctx := context.Background()

	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, b.Set(ctx, "k", []byte("v"), cacheable.New()))
			require.NoError(t, b.Delete(ctx, "k"))
			_, err := b.Get(ctx, "k")
			assert.ErrorIs(t, err, ErrCacheMiss)

			_, err = b.Get(ctx, "")
			assert.ErrorIs(t, err, ErrInvalidCacheKey)
			assert.ErrorIs(t, b.Set(ctx, "", nil, cacheable.New()), ErrInvalidCacheKey)
		})
	}
}

func TestRedisBackend_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	b, mr := setupRedisBackend(t)

	require.NoError(t, mr.Set(b.entryKey("bad"), "not json"))
	_, err := b.Get(ctx, "bad")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.False(t, mr.Exists(b.entryKey("bad")))
}

func TestRedisBackend_SharedCounters(t *testing.T) {
	ctx := context.Background()
	b, mr := setupRedisBackend(t)

	// A second process sharing the same redis sees invalidations of the first
	other := NewRedisBackendFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), DefaultConfig())
	defer other.Close()

	require.NoError(t, b.Set(ctx, "perms", []byte("v"), cacheable.New().AddTags("group:1")))
	_, err := other.Get(ctx, "perms")
	require.NoError(t, err)

	require.NoError(t, other.InvalidateTags(ctx, "group:1"))
	_, err = b.Get(ctx, "perms")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisBackend_StatsCountsEntriesOnly(t *testing.T) {
	ctx := context.Background()
	b, _ := setupRedisBackend(t)

	meta := cacheable.New().AddTags("group_list")
	for i := 0; i < 3*scanBatch+7; i++ {
		require.NoError(t, b.Set(ctx, fmt.Sprintf("perms:%d", i), []byte("v"), meta))
	}
	require.NoError(t, b.InvalidateTags(ctx, "group_list", "group:1"))

	stats, err := b.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3*scanBatch+7), stats.ItemCount)
}

func TestNew(t *testing.T) {
	b, err := New(nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryBackend{}, b)

	_, err = New(&Config{Backend: "memcached"})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}
