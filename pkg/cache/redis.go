package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/groupaccess/pkg/cacheable"
)

const scanBatch = 100

// RedisBackend shares entries and tag counters between processes
type RedisBackend struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	metrics *counters
	now     func() time.Time
}

// NewRedisBackend connects to the configured redis server
func NewRedisBackend(config *Config) (*RedisBackend, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if config.RedisPassword != "" {
		opts.Password = config.RedisPassword
	}
	if config.RedisDB >= 0 {
		opts.DB = config.RedisDB
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisBackendFromClient(client, config), nil
}

// NewRedisBackendFromClient wraps an existing client
func NewRedisBackendFromClient(client *redis.Client, config *Config) *RedisBackend {
	return &RedisBackend{
		client:  client,
		prefix:  config.KeyPrefix,
		ttl:     config.TTL,
		metrics: &counters{},
		now:     time.Now,
	}
}

func (b *RedisBackend) entryKey(key string) string {
	return b.prefix + "entry:" + key
}

func (b *RedisBackend) tagKey(tag string) string {
	return b.prefix + "tag:" + tag
}

// Get returns a valid entry's data
func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrInvalidCacheKey
	}

	raw, err := b.client.Get(ctx, b.entryKey(key)).Bytes()
	if err == redis.Nil {
		b.metrics.recordMiss()
		return nil, ErrCacheMiss
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		b.client.Del(ctx, b.entryKey(key))
		b.metrics.recordMiss()
		return nil, ErrCacheMiss
	}

	checksum, err := b.Checksum(ctx, e.Tags)
	if err != nil {
		return nil, err
	}
	if e.expired(b.now()) || checksum != e.Checksum {
		b.client.Del(ctx, b.entryKey(key))
		b.metrics.recordMiss()
		return nil, ErrCacheMiss
	}

	b.metrics.recordHit()
	return e.Data, nil
}

// Set stores data with the tags and max-age of meta
func (b *RedisBackend) Set(ctx context.Context, key string, data []byte, meta cacheable.Metadata) error {
	if key == "" {
		return ErrInvalidCacheKey
	}
	if meta.MaxAge() == 0 {
		return nil
	}

	tags := meta.Tags()
	checksum, err := b.Checksum(ctx, tags)
	if err != nil {
		return err
	}

	e := entry{Data: data, Tags: tags, Checksum: checksum}
	ttl := lifetime(meta, b.ttl)
	if ttl > 0 {
		e.Expires = b.now().Add(ttl).UnixNano()
	}

	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	if err := b.client.Set(ctx, b.entryKey(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete removes a key
func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrInvalidCacheKey
	}
	if err := b.client.Del(ctx, b.entryKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// InvalidateTags increments every tag counter in one pipeline
func (b *RedisBackend) InvalidateTags(ctx context.Context, tags ...string) error {
	if len(tags) == 0 {
		return nil
	}

	pipe := b.client.TxPipeline()
	for _, tag := range tags {
		pipe.Incr(ctx, b.tagKey(tag))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis tag invalidation failed: %w", err)
	}
	return nil
}

// Checksum sums the tag counters stored in redis
func (b *RedisBackend) Checksum(ctx context.Context, tags []string) (int64, error) {
	if len(tags) == 0 {
		return 0, nil
	}

	keys := make([]string, len(tags))
	for i, tag := range tags {
		keys[i] = b.tagKey(tag)
	}

	values, err := b.client.MGet(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis checksum failed: %w", err)
	}

	var sum int64
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			continue
		}
		sum += n
	}
	return sum, nil
}

// Stats returns cache statistics. Entries are counted with SCAN in batches of
// scanBatch keys.
func (b *RedisBackend) Stats(ctx context.Context) (*Stats, error) {
	var n int64
	iter := b.client.Scan(ctx, 0, b.entryKey("*"), scanBatch).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis stats failed: %w", err)
	}
	return b.metrics.stats(n), nil
}

// Ping checks the connection
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close closes the redis connection
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
