package permissions

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/groupaccess/pkg/group"
)

// Checker answers whether an account holds a permission in a group
type Checker struct {
	calculation Calculation
	memberships MembershipLoader
}

// NewChecker creates a permission checker
func NewChecker(calculation Calculation, memberships MembershipLoader) *Checker {
	return &Checker{calculation: calculation, memberships: memberships}
}

// HasPermissionInGroup checks the individual item of the group first, then the
// insider item of its type for members or the outsider item for everyone else
func (c *Checker) HasPermissionInGroup(ctx context.Context, permission string, account group.Account, g *group.Group) (bool, error) {
	return c.HasAnyPermissionInGroup(ctx, []string{permission}, account, g)
}

// HasAnyPermissionInGroup reports whether at least one of the permissions is
// granted in the group
func (c *Checker) HasAnyPermissionInGroup(ctx context.Context, permissions []string, account group.Account, g *group.Group) (bool, error) {
	if len(permissions) == 0 {
		return false, nil
	}
	perms, err := c.calculation.CalculateFullPermissions(ctx, account)
	if err != nil {
		return false, err
	}

	if item, ok := perms.Item(group.ScopeIndividual, g.IDString()); ok && itemGrantsAny(item, permissions) {
		return true, nil
	}

	member, err := c.IsMember(ctx, account, g)
	if err != nil {
		return false, err
	}

	scope := group.ScopeOutsider
	if member {
		scope = group.ScopeInsider
	}
	item, ok := perms.Item(scope, g.TypeID)
	return ok && itemGrantsAny(item, permissions), nil
}

func itemGrantsAny(item Item, permissions []string) bool {
	for _, p := range permissions {
		if item.HasPermission(p) {
			return true
		}
	}
	return false
}

// IsMember reports whether the account is a member of the group. Anonymous
// accounts never are.
func (c *Checker) IsMember(ctx context.Context, account group.Account, g *group.Group) (bool, error) {
	if account.IsAnonymous() {
		return false, nil
	}
	_, err := c.memberships.LoadMembership(ctx, g.ID, account.ID)
	if errors.Is(err, group.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up membership: %w", err)
	}
	return true, nil
}

// CalculateFullPermissions exposes the underlying calculation
func (c *Checker) CalculateFullPermissions(ctx context.Context, account group.Account) (*CalculatedPermissions, error) {
	return c.calculation.CalculateFullPermissions(ctx, account)
}
