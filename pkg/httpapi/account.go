package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/platinummonkey/groupaccess/pkg/group"
	"github.com/platinummonkey/groupaccess/pkg/httputil"
	"github.com/platinummonkey/groupaccess/pkg/observability"
	"github.com/platinummonkey/groupaccess/pkg/permissions"
)

// Headers identifying the account
const (
	AccountIDHeader    = "X-Account-ID"
	AccountRolesHeader = "X-Account-Roles"
)

type accountKey struct{}

// AccountFromContext returns the account of the request, anonymous when none
// was set
func AccountFromContext(ctx context.Context) group.Account {
	if account, ok := ctx.Value(accountKey{}).(group.Account); ok {
		return account
	}
	return group.AnonymousAccount()
}

// WithAccount stores the account in the context
func WithAccount(ctx context.Context, account group.Account) context.Context {
	ctx = observability.WithAccountID(ctx, account.ID)
	return context.WithValue(ctx, accountKey{}, account)
}

func parseAccount(r *http.Request) (group.Account, error) {
	account := group.AnonymousAccount()
	if raw := r.Header.Get(AccountIDHeader); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 0 {
			return group.Account{}, fmt.Errorf("%w: %s %q", ErrInvalidAccount, AccountIDHeader, raw)
		}
		account.ID = id
	}
	account.Roles = httputil.SplitList(r.Header.Get(AccountRolesHeader))
	return account, nil
}

// accountMiddleware resolves the account and opens a request scope so
// permissions are calculated at most once per request
func accountMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, err := parseAccount(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx := permissions.WithRequestScope(WithAccount(r.Context(), account))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimitKey buckets authenticated requests by account, anonymous ones by
// client address
func rateLimitKey(r *http.Request) string {
	if account := AccountFromContext(r.Context()); !account.IsAnonymous() {
		return "account:" + strconv.FormatInt(account.ID, 10)
	}
	return "ip:" + httputil.ClientIP(r)
}
