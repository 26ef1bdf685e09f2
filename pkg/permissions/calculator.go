package permissions

import (
	"context"

	"github.com/platinummonkey/groupaccess/pkg/group"
)

// Calculator computes the permissions of an account for the scopes it supports
type Calculator interface {
	// Scopes lists the scopes the calculator handles
	Scopes() []group.Scope
	// Calculate returns the permissions of the account within one scope
	Calculate(ctx context.Context, account group.Account, scope group.Scope) (*CalculatedPermissions, error)
	// PersistentCacheContexts lists what a scope's result varies by, either
	// cacheable.ContextUserRoles or cacheable.ContextUser
	PersistentCacheContexts(scope group.Scope) []string
}

// ConfigLoader loads group types and roles
type ConfigLoader interface {
	ListGroupTypes(ctx context.Context) ([]*group.GroupType, error)
	ListRolesByScope(ctx context.Context, scope group.Scope) ([]*group.GroupRole, error)
	LoadRoles(ctx context.Context, ids []string) ([]*group.GroupRole, error)
}

// MembershipLoader looks up group memberships
type MembershipLoader interface {
	// LoadMembership returns the membership of the user in the group or
	// group.ErrNotFound
	LoadMembership(ctx context.Context, groupID, userID int64) (*group.Relationship, error)
	// LoadMembershipsByUser returns every membership of the user
	LoadMembershipsByUser(ctx context.Context, userID int64) ([]*group.Relationship, error)
}

// Calculation computes the merged permissions of an account
type Calculation interface {
	CalculateFullPermissions(ctx context.Context, account group.Account) (*CalculatedPermissions, error)
}

func supportsScope(c Calculator, scope group.Scope) bool {
	for _, s := range c.Scopes() {
		if s == scope {
			return true
		}
	}
	return false
}
