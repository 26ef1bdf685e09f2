package permissions

import (
	"context"
	"sync"
)

type requestScopeKey struct{}

type memoEntry struct {
	perms    *CalculatedPermissions
	checksum int64
}

// requestScope memoizes merged results for the lifetime of one request
type requestScope struct {
	mu      sync.Mutex
	entries map[string]*memoEntry
}

// WithRequestScope returns a context in which CalculateFullPermissions results
// are memoized per account
func WithRequestScope(ctx context.Context) context.Context {
	if requestScopeFrom(ctx) != nil {
		return ctx
	}
	return context.WithValue(ctx, requestScopeKey{}, &requestScope{entries: make(map[string]*memoEntry)})
}

func requestScopeFrom(ctx context.Context) *requestScope {
	scope, _ := ctx.Value(requestScopeKey{}).(*requestScope)
	return scope
}

func (s *requestScope) get(key string) (*memoEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return e, ok
}

func (s *requestScope) set(key string, e *memoEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = e
}
