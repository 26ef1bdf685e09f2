package events

import (
	"github.com/platinummonkey/groupaccess/pkg/group"
)

// Event is a committed change
type Event interface {
	Name() string
	// CacheTags returns the tags the change invalidates
	CacheTags() []string
}

// GroupTypeSaved is published after a group type was created or updated
type GroupTypeSaved struct {
	Type *group.GroupType
}

func (e GroupTypeSaved) Name() string { return "group_type.saved" }

func (e GroupTypeSaved) CacheTags() []string {
	return []string{e.Type.CacheTag(), group.GroupTypeListTag}
}

// GroupTypeDeleted is published after a group type was deleted
type GroupTypeDeleted struct {
	Type *group.GroupType
}

func (e GroupTypeDeleted) Name() string { return "group_type.deleted" }

func (e GroupTypeDeleted) CacheTags() []string {
	return []string{e.Type.CacheTag(), group.GroupTypeListTag}
}

// RoleSaved is published after a group role was created or updated
type RoleSaved struct {
	Role *group.GroupRole
}

func (e RoleSaved) Name() string { return "group_role.saved" }

func (e RoleSaved) CacheTags() []string {
	return []string{e.Role.CacheTag(), group.GroupRoleListTag}
}

// RoleDeleted is published after a group role was deleted
type RoleDeleted struct {
	Role *group.GroupRole
}

func (e RoleDeleted) Name() string { return "group_role.deleted" }

func (e RoleDeleted) CacheTags() []string {
	return []string{e.Role.CacheTag(), group.GroupRoleListTag}
}

// RelationshipTypeSaved is published after a plugin was installed on a group type
type RelationshipTypeSaved struct {
	Type *group.RelationshipType
}

func (e RelationshipTypeSaved) Name() string { return "group_relationship_type.saved" }

func (e RelationshipTypeSaved) CacheTags() []string {
	return []string{e.Type.CacheTag(), group.RelationshipTypeTag}
}

// RelationshipTypeDeleted is published after a plugin was uninstalled from a group type
type RelationshipTypeDeleted struct {
	Type *group.RelationshipType
}

func (e RelationshipTypeDeleted) Name() string { return "group_relationship_type.deleted" }

func (e RelationshipTypeDeleted) CacheTags() []string {
	return []string{e.Type.CacheTag(), group.RelationshipTypeTag}
}

// GroupSaved is published after a group was created (Original is nil) or updated
type GroupSaved struct {
	Group    *group.Group
	Original *group.Group
}

func (e GroupSaved) Name() string { return "group.saved" }

func (e GroupSaved) CacheTags() []string {
	return []string{e.Group.CacheTag(), group.GroupListTag}
}

// GroupDeleted is published after a group was deleted
type GroupDeleted struct {
	Group *group.Group
}

func (e GroupDeleted) Name() string { return "group.deleted" }

func (e GroupDeleted) CacheTags() []string {
	return []string{e.Group.CacheTag(), group.GroupListTag}
}

// RelationshipSaved is published after a relationship was created (Original is
// nil) or updated
type RelationshipSaved struct {
	Relationship *group.Relationship
	Original     *group.Relationship
}

func (e RelationshipSaved) Name() string { return "group_relationship.saved" }

func (e RelationshipSaved) CacheTags() []string {
	return relationshipTags(e.Relationship)
}

// RolesChanged reports whether a membership's role assignment differs from
// before the save
func (e RelationshipSaved) RolesChanged() bool {
	if !e.Relationship.IsMembership() {
		return false
	}
	if e.Original == nil {
		return true
	}
	return !group.SameRoles(e.Original.RoleIDs, e.Relationship.RoleIDs)
}

// RelationshipDeleted is published after a relationship was deleted
type RelationshipDeleted struct {
	Relationship *group.Relationship
}

func (e RelationshipDeleted) Name() string { return "group_relationship.deleted" }

func (e RelationshipDeleted) CacheTags() []string {
	return relationshipTags(e.Relationship)
}

func relationshipTags(r *group.Relationship) []string {
	return []string{
		r.CacheTag(),
		group.RelationshipListTag(r.PluginID),
		group.EntityRelationshipListTag(r.PluginID, r.EntityID),
	}
}
