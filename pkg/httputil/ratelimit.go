package httputil

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// RateLimitConfig defines a token bucket per key
type RateLimitConfig struct {
	// RequestsPerWindow is the refill rate of a bucket
	RequestsPerWindow int
	// WindowDuration is the time window of the refill rate
	WindowDuration time.Duration
	// BurstSize allows temporary bursts above the rate
	BurstSize int
	// MaxKeys bounds the number of tracked buckets; the least recently used go first
	MaxKeys int
}

// DefaultRateLimitConfig returns default rate limit settings
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 1000,
		WindowDuration:    time.Minute,
		BurstSize:         50,
		MaxKeys:           10000,
	}
}

// RateLimiter implements rate limiting using a token bucket per key
type RateLimiter struct {
	config  RateLimitConfig
	buckets *lru.Cache[string, *bucket]
	now     func() time.Time
}

type bucket struct {
	mu         sync.Mutex
	tokens     int
	lastUpdate time.Time
}

// NewRateLimiter creates a rate limiter; nil selects the defaults
func NewRateLimiter(config *RateLimitConfig) (*RateLimiter, error) {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if config.RequestsPerWindow <= 0 || config.WindowDuration <= 0 {
		return nil, fmt.Errorf("rate limit needs a positive rate, got %d per %s", config.RequestsPerWindow, config.WindowDuration)
	}
	maxKeys := config.MaxKeys
	if maxKeys <= 0 {
		maxKeys = DefaultRateLimitConfig().MaxKeys
	}
	buckets, err := lru.New[string, *bucket](maxKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit buckets: %w", err)
	}
	return &RateLimiter{config: *config, buckets: buckets, now: time.Now}, nil
}

func (rl *RateLimiter) capacity() int {
	return rl.config.RequestsPerWindow + rl.config.BurstSize
}

// Allow takes a token from the key's bucket, if one is left
func (rl *RateLimiter) Allow(key string) bool {
	now := rl.now()
	b, ok := rl.buckets.Get(key)
	if !ok {
		b = &bucket{tokens: rl.capacity(), lastUpdate: now}
		if prev, found, _ := rl.buckets.PeekOrAdd(key, b); found {
			b = prev
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Refill tokens based on elapsed time
	elapsed := now.Sub(b.lastUpdate)
	refill := int(elapsed.Seconds() * float64(rl.config.RequestsPerWindow) / rl.config.WindowDuration.Seconds())
	if refill > 0 {
		b.tokens = min(b.tokens+refill, rl.capacity())
		b.lastUpdate = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// Remaining returns the number of tokens left for a key
func (rl *RateLimiter) Remaining(key string) int {
	b, ok := rl.buckets.Peek(key)
	if !ok {
		return rl.capacity()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}

// RateLimitMiddleware rejects requests whose key ran out of tokens with 429.
// A nil limiter disables limiting.
func RateLimitMiddleware(limiter *RateLimiter, key func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			reset := strconv.FormatInt(limiter.now().Add(limiter.config.WindowDuration).Unix(), 10)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.config.RequestsPerWindow))
			w.Header().Set("X-RateLimit-Reset", reset)

			if !limiter.Allow(k) {
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", fmt.Sprintf("%.0f", limiter.config.WindowDuration.Seconds()))
				WriteErrorMessage(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(limiter.Remaining(k)))
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first forwarded address, or the remote host
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if list := SplitList(forwarded); len(list) > 0 {
			return list[0]
		}
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
