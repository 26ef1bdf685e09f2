package relation

import "fmt"

// PermissionProvider names the permissions a plugin uses for its operations
type PermissionProvider interface {
	// AdminPermission returns the permission granting every operation, or ""
	AdminPermission() string
	// Permission returns the permission for an operation, or "" when the plugin
	// defines none
	Permission(op Operation, target Target, scope OwnerScope) string
	// Permissions lists every permission the provider defines
	Permissions() []Permission
}

// defaultPermissions derives permission names from the plugin definition
type defaultPermissions struct {
	def        Definition
	entityType EntityType
}

// NewPermissionProvider returns the default provider for a plugin
func NewPermissionProvider(def Definition, entityType EntityType) PermissionProvider {
	return &defaultPermissions{def: def, entityType: entityType}
}

func (p *defaultPermissions) AdminPermission() string {
	return p.def.AdminPermission
}

func (p *defaultPermissions) Permission(op Operation, target Target, scope OwnerScope) string {
	if target == TargetRelationship {
		return p.relationshipPermission(op, scope)
	}
	if target == TargetEntity && p.def.EntityAccess {
		return p.entityPermission(op, scope)
	}
	return ""
}

func (p *defaultPermissions) relationshipPermission(op Operation, scope OwnerScope) string {
	id := p.def.ID
	switch op {
	case OperationView:
		if scope == Any {
			return fmt.Sprintf("view %s relationship", id)
		}
	case OperationUpdate, OperationDelete:
		return fmt.Sprintf("%s %s %s relationship", op, scope, id)
	case OperationCreate:
		return fmt.Sprintf("create %s relationship", id)
	}
	return ""
}

func (p *defaultPermissions) entityPermission(op Operation, scope OwnerScope) string {
	id := p.def.ID
	ownable := p.entityType.Owner || scope == Any
	switch op {
	case OperationView:
		if scope == Any {
			return fmt.Sprintf("view %s entity", id)
		}
	case OperationViewUnpublished:
		if p.entityType.Publishable && ownable {
			return fmt.Sprintf("view %s unpublished %s entity", scope, id)
		}
	case OperationUpdate, OperationDelete:
		if ownable {
			return fmt.Sprintf("%s %s %s entity", op, scope, id)
		}
	case OperationCreate:
		return fmt.Sprintf("create %s entity", id)
	}
	return ""
}

func (p *defaultPermissions) Permissions() []Permission {
	var perms []Permission
	section := p.def.Label
	if section == "" {
		section = p.def.ID
	}

	if admin := p.AdminPermission(); admin != "" {
		perms = append(perms, Permission{
			Name:           admin,
			Title:          section + ": administer relations",
			Section:        section,
			RestrictAccess: true,
		})
	}

	add := func(provider PermissionProvider, op Operation, target Target, scope OwnerScope, title string) {
		if name := provider.Permission(op, target, scope); name != "" {
			perms = append(perms, Permission{Name: name, Title: section + ": " + title, Section: section})
		}
	}
	for _, target := range []Target{TargetRelationship, TargetEntity} {
		add(p, OperationView, target, Any, fmt.Sprintf("view any %s", target))
		add(p, OperationView, target, Own, fmt.Sprintf("view own %s", target))
		add(p, OperationViewUnpublished, target, Any, fmt.Sprintf("view any unpublished %s", target))
		add(p, OperationViewUnpublished, target, Own, fmt.Sprintf("view own unpublished %s", target))
		add(p, OperationUpdate, target, Any, fmt.Sprintf("edit any %s", target))
		add(p, OperationUpdate, target, Own, fmt.Sprintf("edit own %s", target))
		add(p, OperationDelete, target, Any, fmt.Sprintf("delete any %s", target))
		add(p, OperationDelete, target, Own, fmt.Sprintf("delete own %s", target))
		add(p, OperationCreate, target, Any, fmt.Sprintf("add %s", target))
	}
	return perms
}

// Group membership permissions
const (
	PermissionJoinGroup        = "join group"
	PermissionLeaveGroup       = "leave group"
	PermissionAdministerMember = "administer members"
)

// membershipPermissions adjusts the default provider for group memberships:
// joining and leaving have dedicated permissions and editing or removing other
// members requires the admin permission
type membershipPermissions struct {
	PermissionProvider
}

func decorateMembershipPermissions(_ Definition, inner PermissionProvider) PermissionProvider {
	return &membershipPermissions{PermissionProvider: inner}
}

func (p *membershipPermissions) Permission(op Operation, target Target, scope OwnerScope) string {
	if target == TargetRelationship {
		switch op {
		case OperationCreate:
			return ""
		case OperationDelete:
			if scope == Own {
				return PermissionLeaveGroup
			}
			return ""
		case OperationUpdate:
			if scope == Any {
				return ""
			}
		}
	}
	return p.PermissionProvider.Permission(op, target, scope)
}

func (p *membershipPermissions) Permissions() []Permission {
	var perms []Permission
	for _, perm := range p.PermissionProvider.Permissions() {
		// The default provider lists names this decorator no longer hands out
		if perm.Name == p.PermissionProvider.Permission(OperationCreate, TargetRelationship, Any) ||
			perm.Name == p.PermissionProvider.Permission(OperationUpdate, TargetRelationship, Any) ||
			perm.Name == p.PermissionProvider.Permission(OperationDelete, TargetRelationship, Any) ||
			perm.Name == p.PermissionProvider.Permission(OperationDelete, TargetRelationship, Own) {
			continue
		}
		perms = append(perms, perm)
	}
	return append(perms,
		Permission{Name: PermissionJoinGroup, Title: "Join group", Section: "Group"},
		Permission{Name: PermissionLeaveGroup, Title: "Leave group", Section: "Group"},
	)
}

// Permissions on the group entity itself
const (
	PermissionAdministerGroup    = "administer group"
	PermissionViewGroup          = "view group"
	PermissionEditGroup          = "edit group"
	PermissionDeleteGroup        = "delete group"
	PermissionViewAnyUnpublished = "view any unpublished group"
	PermissionViewOwnUnpublished = "view own unpublished group"
)

// GroupPermissions lists the permissions defined on groups regardless of plugins
func GroupPermissions() []Permission {
	return []Permission{
		{Name: PermissionAdministerGroup, Title: "Administer group settings", Section: "Group", RestrictAccess: true},
		{Name: PermissionViewGroup, Title: "View group", Section: "Group"},
		{Name: PermissionEditGroup, Title: "Edit group", Section: "Group"},
		{Name: PermissionDeleteGroup, Title: "Delete group", Section: "Group"},
		{Name: PermissionViewAnyUnpublished, Title: "View any unpublished group", Section: "Group"},
		{Name: PermissionViewOwnUnpublished, Title: "View own unpublished group", Section: "Group"},
	}
}
