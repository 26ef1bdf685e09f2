package group

import (
	"fmt"
	"regexp"
)

var machineNameRe = regexp.MustCompile(`^[a-z0-9_]+$`)

// Validate checks the invariants of a group type before it is saved
func (t *GroupType) Validate() error {
	if !machineNameRe.MatchString(t.ID) {
		return invalid("group_type", t.ID, ErrInvalidMachineName)
	}
	if len(t.ID) > MaxGroupTypeIDLength {
		return invalid("group_type", t.ID, fmt.Errorf("%w: %d > %d", ErrIDTooLong, len(t.ID), MaxGroupTypeIDLength))
	}
	return nil
}

// Normalize validates a group role and applies the save-time normalizations:
// individual roles lose their global role, admin roles lose their permissions
// and, unless the save is a config sync, permissions are sorted and de-duplicated.
func (r *GroupRole) Normalize(syncing bool) error {
	if r.ID == "" {
		return invalid("group_role", r.ID, ErrInvalidMachineName)
	}
	if r.GroupTypeID == "" {
		return invalid("group_role", r.ID, ErrMissingGroupType)
	}
	if !r.Scope.Valid() {
		return invalid("group_role", r.ID, fmt.Errorf("%w: %q", ErrInvalidScope, r.Scope))
	}

	if r.Scope == ScopeIndividual {
		r.GlobalRole = ""
	} else {
		if r.GlobalRole == "" {
			return invalid("group_role", r.ID, ErrMissingGlobalRole)
		}
		if r.Scope == ScopeInsider && r.GlobalRole == AnonymousRole {
			return invalid("group_role", r.ID, ErrAnonymousInsider)
		}
	}

	switch {
	case r.Admin:
		r.Permissions = []string{}
	case !syncing:
		r.Permissions = normalizePermissions(r.Permissions)
	default:
		r.Permissions = uniquePermissions(r.Permissions)
	}
	return nil
}

// Validate checks the invariants of a relationship type before it is saved
func (t *RelationshipType) Validate() error {
	if t.GroupTypeID == "" {
		return invalid("group_relationship_type", t.ID, ErrMissingGroupType)
	}
	if t.PluginID == "" {
		return invalid("group_relationship_type", t.ID, ErrInvalidMachineName)
	}
	if t.ID == "" {
		t.ID = RelationshipTypeID(t.GroupTypeID, t.PluginID)
	}
	if t.Config == nil {
		t.Config = DefaultPluginConfig(t.PluginID)
	}
	return nil
}

// uniquePermissions drops duplicates while keeping the imported order
func uniquePermissions(permissions []string) []string {
	seen := make(map[string]struct{}, len(permissions))
	out := make([]string, 0, len(permissions))
	for _, p := range permissions {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
