package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newLimiter(t *testing.T, config *RateLimitConfig) (*RateLimiter, *fakeClock) {
	t.Helper()
	rl, err := NewRateLimiter(config)
	require.NoError(t, err)
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	rl.now = clock.now
	return rl, clock
}

func TestRateLimiter_Allow(t *testing.T) {
	config := &RateLimitConfig{RequestsPerWindow: 10, WindowDuration: time.Second, BurstSize: 2}
	limiter, clock := newLimiter(t, config)

	allowed := 0
	for i := 0; i < config.RequestsPerWindow+config.BurstSize+5; i++ {
		if limiter.Allow("account:1") {
			allowed++
		}
	}
	assert.Equal(t, config.RequestsPerWindow+config.BurstSize, allowed)
	assert.True(t, limiter.Allow("account:2"), "buckets are per key")

	clock.t = clock.t.Add(500 * time.Millisecond)
	assert.Equal(t, 0, limiter.Remaining("account:1"))
	assert.True(t, limiter.Allow("account:1"))
	assert.Equal(t, 4, limiter.Remaining("account:1"))
}

func TestRateLimiter_RefillIsCapped(t *testing.T) {
	limiter, clock := newLimiter(t, &RateLimitConfig{RequestsPerWindow: 10, WindowDuration: time.Second, BurstSize: 2})

	limiter.Allow("k")
	clock.t = clock.t.Add(time.Hour)
	limiter.Allow("k")
	assert.Equal(t, 11, limiter.Remaining("k"))
	assert.Equal(t, 12, limiter.Remaining("unseen"))
}

func TestRateLimiter_EvictsLeastRecentlyUsed(t *testing.T) {
	limiter, _ := newLimiter(t, &RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute, MaxKeys: 2})

	require.True(t, limiter.Allow("a"))
	require.True(t, limiter.Allow("b"))
	require.True(t, limiter.Allow("c"))

	assert.True(t, limiter.Allow("a"), "evicted key starts with a full bucket")
	assert.False(t, limiter.Allow("c"))
}

func TestNewRateLimiter_Validation(t *testing.T) {
	_, err := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 0, WindowDuration: time.Second})
	assert.Error(t, err)

	limiter, err := NewRateLimiter(nil)
	require.NoError(t, err)
	assert.Equal(t, 1050, limiter.Remaining("x"))
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter, _ := newLimiter(t, &RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute})
	handler := RateLimitMiddleware(limiter, ClientIP)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")

	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.RemoteAddr = "10.0.0.2:1234"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRateLimitMiddleware_NilLimiter(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	handler := RateLimitMiddleware(nil, ClientIP)(next)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", ClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "203.0.113.5", ClientIP(req))
}
