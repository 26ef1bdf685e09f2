package access

import (
	"context"
	"fmt"

	"github.com/platinummonkey/groupaccess/pkg/cacheable"
	"github.com/platinummonkey/groupaccess/pkg/group"
	"github.com/platinummonkey/groupaccess/pkg/relation"
)

// GroupAccess checks an operation on the group itself. Unpublished groups are
// only visible with the unpublished view permissions; result is allowed or
// neutral.
func (e *Engine) GroupAccess(ctx context.Context, g *group.Group, op relation.Operation, account group.Account) (Result, error) {
	meta := cacheable.New().
		AddContexts(cacheable.ContextGroupPermissions).
		AddTags(g.CacheTag())

	var perms []string
	switch op {
	case relation.OperationView:
		if g.Published {
			perms = []string{relation.PermissionViewGroup}
			break
		}
		perms = []string{relation.PermissionViewAnyUnpublished}
		meta = meta.AddContexts(cacheable.ContextUser)
		if owns(account, g.Owner) {
			perms = append(perms, relation.PermissionViewOwnUnpublished)
		}
	case relation.OperationUpdate:
		perms = []string{relation.PermissionEditGroup}
	case relation.OperationDelete:
		perms = []string{relation.PermissionDeleteGroup}
	default:
		return Result{}, fmt.Errorf("group %s: %w", op, ErrUnsupportedOperation)
	}

	granted, err := e.checker.HasAnyPermissionInGroup(ctx, perms, account, g)
	if err != nil {
		return Result{}, fmt.Errorf("group %d access: %w", g.ID, err)
	}
	result := allowedIf(granted, meta)
	e.record("group", op, account, result)
	return result, nil
}
