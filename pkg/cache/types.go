package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/platinummonkey/groupaccess/pkg/cacheable"
)

// Backend names
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Backend stores tagged entries
type Backend interface {
	// Get returns the data stored under key, or ErrCacheMiss
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores data under key, valid until one of meta's tags is invalidated or
	// its max-age elapses
	Set(ctx context.Context, key string, data []byte, meta cacheable.Metadata) error
	// Delete removes a single key
	Delete(ctx context.Context, key string) error
	// InvalidateTags marks every entry carrying one of the tags as stale
	InvalidateTags(ctx context.Context, tags ...string) error
	// Checksum returns the current checksum of a tag set
	Checksum(ctx context.Context, tags []string) (int64, error)
	// Stats returns hit and miss counters
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// Stats represents cache statistics
type Stats struct {
	Hits      int64
	Misses    int64
	HitRate   float64
	ItemCount int64
}

// Config holds cache configuration
type Config struct {
	Backend       string
	MaxEntries    int           // Memory backend capacity
	TTL           time.Duration // Upper bound for entries without a finite max-age; 0 keeps them until evicted
	RedisURL      string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
}

// DefaultConfig returns default cache configuration
func DefaultConfig() *Config {
	return &Config{
		Backend:    BackendMemory,
		MaxEntries: 10000,
		KeyPrefix:  "groupaccess:",
	}
}

// New creates the backend named in the configuration
func New(config *Config) (Backend, error) {
	if config == nil {
		config = DefaultConfig()
	}
	switch config.Backend {
	case "", BackendMemory:
		return NewMemoryBackend(config)
	case BackendRedis:
		return NewRedisBackend(config)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, config.Backend)
}

// entry is what backends persist for a key
type entry struct {
	Data     []byte   `json:"data"`
	Tags     []string `json:"tags"`
	Checksum int64    `json:"checksum"`
	Expires  int64    `json:"expires,omitempty"` // Unix nanoseconds, 0 for never
}

func (e *entry) expired(now time.Time) bool {
	return e.Expires != 0 && now.UnixNano() >= e.Expires
}

// lifetime returns how long an entry may live, 0 meaning unbounded
func lifetime(meta cacheable.Metadata, ttl time.Duration) time.Duration {
	d := ttl
	if maxAge := meta.MaxAge(); maxAge != cacheable.Permanent {
		age := time.Duration(maxAge) * time.Second
		if d == 0 || age < d {
			d = age
		}
	}
	return d
}

// counters tracks cache metrics
type counters struct {
	hits   atomic.Int64
	misses atomic.Int64
}

func (c *counters) recordHit() {
	c.hits.Add(1)
}

func (c *counters) recordMiss() {
	c.misses.Add(1)
}

func (c *counters) stats(items int64) *Stats {
	stats := &Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		ItemCount: items,
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}
