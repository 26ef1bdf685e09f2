package permissions

import (
	"context"
	"fmt"
	"strconv"

	"github.com/platinummonkey/groupaccess/pkg/cacheable"
	"github.com/platinummonkey/groupaccess/pkg/group"
)

// IndividualCalculator grants the individual roles assigned on memberships
type IndividualCalculator struct {
	config      ConfigLoader
	memberships MembershipLoader
}

// NewIndividualCalculator creates a calculator for the individual scope
func NewIndividualCalculator(config ConfigLoader, memberships MembershipLoader) *IndividualCalculator {
	return &IndividualCalculator{config: config, memberships: memberships}
}

// Scopes returns the individual scope
func (c *IndividualCalculator) Scopes() []group.Scope {
	return []group.Scope{group.ScopeIndividual}
}

// PersistentCacheContexts returns user: memberships belong to one account
func (c *IndividualCalculator) PersistentCacheContexts(scope group.Scope) []string {
	return []string{cacheable.ContextUser}
}

// Calculate produces one item per membership of the account
func (c *IndividualCalculator) Calculate(ctx context.Context, account group.Account, scope group.Scope) (*CalculatedPermissions, error) {
	if scope != group.ScopeIndividual {
		return nil, fmt.Errorf("individual calculator: %w: %s", ErrUnsupportedScope, scope)
	}

	result := NewCalculatedPermissions()
	result.addCacheMetadata(cacheable.New().AddTags(
		group.EntityRelationshipListTag(group.MembershipPluginID, account.ID),
		group.GroupRoleListTag,
	))

	if account.IsAnonymous() {
		return result, nil
	}

	memberships, err := c.memberships.LoadMembershipsByUser(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load memberships of user %d: %w", account.ID, err)
	}

	var roleIDs []string
	for _, m := range memberships {
		roleIDs = append(roleIDs, m.RoleIDs...)
	}

	roles := make(map[string]*group.GroupRole)
	if len(roleIDs) > 0 {
		loaded, err := c.config.LoadRoles(ctx, sortedUnique(roleIDs))
		if err != nil {
			return nil, fmt.Errorf("failed to load membership roles: %w", err)
		}
		for _, role := range loaded {
			roles[role.ID] = role
		}
	}

	for _, m := range memberships {
		result.addCacheMetadata(cacheable.New().AddTags(m.CacheTag()))

		var permissions []string
		admin := false
		for _, id := range m.RoleIDs {
			role, ok := roles[id]
			if !ok || role.Scope != group.ScopeIndividual {
				continue
			}
			admin = admin || role.Admin
			permissions = append(permissions, role.Permissions...)
			result.addCacheMetadata(cacheable.New().AddTags(role.CacheTag()))
		}
		result.addItem(NewItem(group.ScopeIndividual, strconv.FormatInt(m.GroupID, 10), permissions, admin))
	}

	return result, nil
}
