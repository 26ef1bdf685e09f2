package events

import (
	"context"
	"fmt"

	"github.com/platinummonkey/groupaccess/pkg/cache"
	"github.com/platinummonkey/groupaccess/pkg/group"
	"github.com/platinummonkey/groupaccess/pkg/observability"
)

// InvalidateTags returns a handler invalidating an event's cache tags in every backend
func InvalidateTags(metrics *observability.Metrics, backends ...cache.Backend) Handler {
	return func(ctx context.Context, event Event) error {
		tags := event.CacheTags()
		if len(tags) == 0 {
			return nil
		}
		for _, b := range backends {
			if err := b.InvalidateTags(ctx, tags...); err != nil {
				return fmt.Errorf("invalidate tags of %s: %w", event.Name(), err)
			}
		}
		metrics.RecordTagInvalidations(len(tags))
		return nil
	}
}

// RoleCacheResetter forgets the cached roles of a user in a group
type RoleCacheResetter interface {
	ResetUserGroupRoleCache(userID, groupID int64)
}

// ResetRoleCache returns a handler that resets the (user, group) role cache
// when a membership is created, deleted or changes its role assignment
func ResetRoleCache(resetter RoleCacheResetter) Handler {
	return func(ctx context.Context, event Event) error {
		switch e := event.(type) {
		case RelationshipSaved:
			if e.RolesChanged() {
				resetter.ResetUserGroupRoleCache(e.Relationship.EntityID, e.Relationship.GroupID)
			}
		case RelationshipDeleted:
			if e.Relationship.IsMembership() {
				resetter.ResetUserGroupRoleCache(e.Relationship.EntityID, e.Relationship.GroupID)
			}
		}
		return nil
	}
}

// TouchFunc refreshes the entity on the other end of a relationship
type TouchFunc func(ctx context.Context, rel *group.Relationship) error

// TouchRelatedEntity returns a handler calling touch for every saved or deleted relationship
func TouchRelatedEntity(touch TouchFunc) Handler {
	return func(ctx context.Context, event Event) error {
		switch e := event.(type) {
		case RelationshipSaved:
			return touch(ctx, e.Relationship)
		case RelationshipDeleted:
			return touch(ctx, e.Relationship)
		}
		return nil
	}
}
