package cache

import "errors"

var (
	// ErrCacheMiss is returned when a key is absent, expired or invalidated
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidCacheKey is returned for empty keys
	ErrInvalidCacheKey = errors.New("invalid cache key")

	// ErrUnknownBackend is returned when the configured backend is not supported
	ErrUnknownBackend = errors.New("unknown cache backend")
)
