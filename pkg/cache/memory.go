package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/platinummonkey/groupaccess/pkg/cacheable"
)

// MemoryBackend keeps entries in a process-local LRU
type MemoryBackend struct {
	cache   *lru.LRU[string, *entry]
	tags    map[string]int64
	metrics *counters
	mu      sync.RWMutex
	now     func() time.Time
}

// NewMemoryBackend creates a memory backend
func NewMemoryBackend(config *Config) (*MemoryBackend, error) {
	if config == nil {
		config = DefaultConfig()
	}

	maxEntries := config.MaxEntries
	if maxEntries < 10 {
		maxEntries = 10
	}

	return &MemoryBackend{
		cache:   lru.NewLRU[string, *entry](maxEntries, nil, config.TTL),
		tags:    make(map[string]int64),
		metrics: &counters{},
		now:     time.Now,
	}, nil
}

// Get returns a valid entry's data
func (b *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrInvalidCacheKey
	}

	e, ok := b.cache.Get(key)
	if !ok {
		b.metrics.recordMiss()
		return nil, ErrCacheMiss
	}

	if e.expired(b.now()) || e.Checksum != b.checksum(e.Tags) {
		b.cache.Remove(key)
		b.metrics.recordMiss()
		return nil, ErrCacheMiss
	}

	b.metrics.recordHit()
	return e.Data, nil
}

// Set stores data with the tags and max-age of meta
func (b *MemoryBackend) Set(ctx context.Context, key string, data []byte, meta cacheable.Metadata) error {
	if key == "" {
		return ErrInvalidCacheKey
	}
	if meta.MaxAge() == 0 {
		return nil
	}

	tags := meta.Tags()
	e := &entry{Data: data, Tags: tags, Checksum: b.checksum(tags)}
	if d := lifetime(meta, 0); d > 0 {
		e.Expires = b.now().Add(d).UnixNano()
	}
	b.cache.Add(key, e)
	return nil
}

// Delete removes a key
func (b *MemoryBackend) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrInvalidCacheKey
	}
	b.cache.Remove(key)
	return nil
}

// InvalidateTags bumps the counter of every tag
func (b *MemoryBackend) InvalidateTags(ctx context.Context, tags ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, tag := range tags {
		b.tags[tag]++
	}
	return nil
}

// Checksum returns the sum of the tags' invalidation counters
func (b *MemoryBackend) Checksum(ctx context.Context, tags []string) (int64, error) {
	return b.checksum(tags), nil
}

func (b *MemoryBackend) checksum(tags []string) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var sum int64
	for _, tag := range tags {
		sum += b.tags[tag]
	}
	return sum
}

// Stats returns cache statistics
func (b *MemoryBackend) Stats(ctx context.Context) (*Stats, error) {
	return b.metrics.stats(int64(b.cache.Len())), nil
}

// Close releases resources
func (b *MemoryBackend) Close() error {
	b.cache.Purge()
	return nil
}
