package permissions

import (
	"context"
	"fmt"

	"github.com/platinummonkey/groupaccess/pkg/cacheable"
	"github.com/platinummonkey/groupaccess/pkg/group"
)

// SynchronizedCalculator maps an account's global roles onto the outsider and
// insider roles of every group type
type SynchronizedCalculator struct {
	config ConfigLoader
}

// NewSynchronizedCalculator creates a calculator for the outsider and insider scopes
func NewSynchronizedCalculator(config ConfigLoader) *SynchronizedCalculator {
	return &SynchronizedCalculator{config: config}
}

// Scopes returns the outsider and insider scopes
func (c *SynchronizedCalculator) Scopes() []group.Scope {
	return []group.Scope{group.ScopeOutsider, group.ScopeInsider}
}

// PersistentCacheContexts returns user.roles: the result only depends on global roles
func (c *SynchronizedCalculator) PersistentCacheContexts(scope group.Scope) []string {
	return []string{cacheable.ContextUserRoles}
}

// Calculate produces one item per group type, empty when no role matches
func (c *SynchronizedCalculator) Calculate(ctx context.Context, account group.Account, scope group.Scope) (*CalculatedPermissions, error) {
	if !scope.Synchronized() {
		return nil, fmt.Errorf("synchronized calculator: %w: %s", ErrUnsupportedScope, scope)
	}

	result := NewCalculatedPermissions()
	result.addCacheMetadata(cacheable.New().AddTags(group.GroupRoleListTag, group.GroupTypeListTag))

	types, err := c.config.ListGroupTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list group types: %w", err)
	}

	roles, err := c.config.ListRolesByScope(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s roles: %w", scope, err)
	}

	byType := make(map[string][]*group.GroupRole, len(types))
	for _, role := range roles {
		if role.Scope != scope || !role.AppliesTo(account) {
			continue
		}
		byType[role.GroupTypeID] = append(byType[role.GroupTypeID], role)
	}

	for _, gt := range types {
		var permissions []string
		admin := false
		for _, role := range byType[gt.ID] {
			admin = admin || role.Admin
			permissions = append(permissions, role.Permissions...)
			result.addCacheMetadata(cacheable.New().AddTags(role.CacheTag()))
		}
		result.addItem(NewItem(scope, gt.ID, permissions, admin))
	}

	return result, nil
}
