package access

import (
	"context"
	"fmt"

	"github.com/platinummonkey/groupaccess/pkg/cacheable"
	"github.com/platinummonkey/groupaccess/pkg/group"
	"github.com/platinummonkey/groupaccess/pkg/relation"
)

// PermissionChecker answers whether an account holds permissions in a group
type PermissionChecker interface {
	HasAnyPermissionInGroup(ctx context.Context, permissions []string, account group.Account, g *group.Group) (bool, error)
}

// RelationshipLoader finds the relationships an entity is the target of
type RelationshipLoader interface {
	LoadRelationshipsByEntity(ctx context.Context, entity group.Entity, pluginIDs ...string) ([]*group.Relationship, error)
}

// Handler makes the access decisions of one relation plugin
type Handler interface {
	PluginID() string
	// SupportsOperation reports whether the plugin defines an admin, "any" or
	// "own" permission for the operation on the target
	SupportsOperation(op relation.Operation, target relation.Target) bool
	RelationshipAccess(ctx context.Context, rel *group.Relationship, op relation.Operation, account group.Account) (Result, error)
	RelationshipCreateAccess(ctx context.Context, g *group.Group, account group.Account) (Result, error)
	EntityAccess(ctx context.Context, entity group.Entity, op relation.Operation, account group.Account) (Result, error)
	EntityCreateAccess(ctx context.Context, g *group.Group, account group.Account) (Result, error)
}

type defaultHandler struct {
	def           relation.Definition
	entityType    relation.EntityType
	permissions   relation.PermissionProvider
	checker       PermissionChecker
	relationships RelationshipLoader
}

// NewHandler returns the permission-driven handler of a plugin
func NewHandler(def relation.Definition, entityType relation.EntityType, permissions relation.PermissionProvider, checker PermissionChecker, relationships RelationshipLoader) Handler {
	return &defaultHandler{
		def:           def,
		entityType:    entityType,
		permissions:   permissions,
		checker:       checker,
		relationships: relationships,
	}
}

func (h *defaultHandler) PluginID() string {
	return h.def.ID
}

func (h *defaultHandler) SupportsOperation(op relation.Operation, target relation.Target) bool {
	if h.permissions.AdminPermission() != "" {
		return true
	}
	if h.permissions.Permission(op, target, relation.Any) != "" {
		return true
	}
	if target == relation.TargetEntity && !h.entityType.Owner {
		return false
	}
	return h.permissions.Permission(op, target, relation.Own) != ""
}

// candidates collects the admin permission, the "any" permission and, when
// the account owns the target, the "own" permission of an operation
func (h *defaultHandler) candidates(op relation.Operation, target relation.Target, owner bool) (perms []string, own string) {
	if admin := h.permissions.AdminPermission(); admin != "" {
		perms = append(perms, admin)
	}
	if anyPerm := h.permissions.Permission(op, target, relation.Any); anyPerm != "" {
		perms = append(perms, anyPerm)
	}
	own = h.permissions.Permission(op, target, relation.Own)
	if own != "" && owner {
		perms = append(perms, own)
	}
	return perms, own
}

func (h *defaultHandler) RelationshipAccess(ctx context.Context, rel *group.Relationship, op relation.Operation, account group.Account) (Result, error) {
	meta := cacheable.New()
	if !h.SupportsOperation(op, relation.TargetRelationship) {
		return Result{Outcome: Neutral, Cacheability: meta}, nil
	}

	perms, own := h.candidates(op, relation.TargetRelationship, owns(account, rel.Owner))
	meta = meta.AddContexts(cacheable.ContextGroupPermissions)
	if own != "" {
		meta = meta.AddContexts(cacheable.ContextUser).AddTags(rel.CacheTag())
	}

	granted, err := h.checker.HasAnyPermissionInGroup(ctx, perms, account, relationshipGroup(rel))
	if err != nil {
		return Result{}, fmt.Errorf("relationship %d access: %w", rel.ID, err)
	}
	if granted {
		return Result{Outcome: Allowed, Cacheability: meta}, nil
	}
	return Result{Outcome: Forbidden, Cacheability: meta}, nil
}

func (h *defaultHandler) RelationshipCreateAccess(ctx context.Context, g *group.Group, account group.Account) (Result, error) {
	return h.createAccess(ctx, g, relation.TargetRelationship, account)
}

func (h *defaultHandler) EntityCreateAccess(ctx context.Context, g *group.Group, account group.Account) (Result, error) {
	return h.createAccess(ctx, g, relation.TargetEntity, account)
}

func (h *defaultHandler) createAccess(ctx context.Context, g *group.Group, target relation.Target, account group.Account) (Result, error) {
	perms, _ := h.candidates(relation.OperationCreate, target, false)
	if len(perms) == 0 {
		return Result{Outcome: Neutral, Cacheability: cacheable.New()}, nil
	}
	granted, err := h.checker.HasAnyPermissionInGroup(ctx, perms, account, g)
	if err != nil {
		return Result{}, fmt.Errorf("create %s access in group %d: %w", target, g.ID, err)
	}
	return allowedIf(granted, cacheable.New().AddContexts(cacheable.ContextGroupPermissions)), nil
}

func (h *defaultHandler) EntityAccess(ctx context.Context, entity group.Entity, op relation.Operation, account group.Account) (Result, error) {
	meta := cacheable.New()
	if !h.def.EntityAccess || entity.TypeID != h.def.EntityTypeID || !h.SupportsOperation(op, relation.TargetEntity) {
		return Result{Outcome: Neutral, Cacheability: meta}, nil
	}

	rels, err := h.relationships.LoadRelationshipsByEntity(ctx, entity, h.def.ID)
	if err != nil {
		return Result{}, fmt.Errorf("load relationships of %s: %w", entity.CacheTag(), err)
	}
	meta = meta.AddTags(group.RelationshipListTag(h.def.ID))
	if len(rels) == 0 {
		return Result{Outcome: Neutral, Cacheability: meta}, nil
	}

	if op == relation.OperationView && h.entityType.Publishable && !entity.Published {
		op = relation.OperationViewUnpublished
	}
	owner := h.entityType.Owner && owns(account, entity.Owner)
	perms, own := h.candidates(op, relation.TargetEntity, owner)

	meta = meta.AddContexts(cacheable.ContextGroupPermissions)
	if own != "" && h.entityType.Owner {
		meta = meta.AddContexts(cacheable.ContextUser).AddTags(entity.CacheTag())
	}
	for _, rel := range rels {
		meta = meta.AddTags(rel.CacheTag())
	}

	// An entity in several groups is accessible through any of them
	for _, rel := range rels {
		granted, err := h.checker.HasAnyPermissionInGroup(ctx, perms, account, relationshipGroup(rel))
		if err != nil {
			return Result{}, fmt.Errorf("%s access in group %d: %w", entity.CacheTag(), rel.GroupID, err)
		}
		if granted {
			return Result{Outcome: Allowed, Cacheability: meta}, nil
		}
	}
	return Result{Outcome: Forbidden, Cacheability: meta}, nil
}

func owns(account group.Account, ownerID int64) bool {
	return !account.IsAnonymous() && account.ID == ownerID
}

// relationshipGroup is the part of the owning group permission checks need
func relationshipGroup(rel *group.Relationship) *group.Group {
	return &group.Group{ID: rel.GroupID, TypeID: rel.GroupTypeID}
}
