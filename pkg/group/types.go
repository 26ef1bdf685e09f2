package group

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Scope is the namespace a calculated permission item belongs to
type Scope string

const (
	ScopeOutsider   Scope = "outsider"   // Non-members, keyed by group type ID
	ScopeInsider    Scope = "insider"    // Members, keyed by group type ID
	ScopeIndividual Scope = "individual" // One membership, keyed by group ID
)

// Scopes lists every scope in calculation order
func Scopes() []Scope {
	return []Scope{ScopeOutsider, ScopeInsider, ScopeIndividual}
}

// Valid reports whether s is one of the known scopes
func (s Scope) Valid() bool {
	switch s {
	case ScopeOutsider, ScopeInsider, ScopeIndividual:
		return true
	}
	return false
}

// Synchronized reports whether roles of this scope are synchronized from global roles
func (s Scope) Synchronized() bool {
	return s == ScopeOutsider || s == ScopeInsider
}

// Global roles every account implicitly holds
const (
	AnonymousRole     = "anonymous"
	AuthenticatedRole = "authenticated"
)

// MembershipPluginID is the relation plugin that turns a relationship into a membership
const MembershipPluginID = "group_membership"

// Account is the platform user a permission question is asked for
type Account struct {
	ID    int64    `json:"id"` // 0 for anonymous visitors
	Roles []string `json:"roles,omitempty"`
}

// AnonymousAccount returns the account used for unauthenticated visitors
func AnonymousAccount() Account {
	return Account{}
}

// IsAnonymous reports whether the account is an unauthenticated visitor
func (a Account) IsAnonymous() bool {
	return a.ID == 0
}

// GlobalRoles returns the account's sorted global roles including the implicit
// anonymous or authenticated role
func (a Account) GlobalRoles() []string {
	implicit := AuthenticatedRole
	if a.IsAnonymous() {
		implicit = AnonymousRole
	}

	seen := map[string]struct{}{implicit: {}}
	roles := []string{implicit}
	for _, r := range a.Roles {
		if r == "" || r == AnonymousRole || r == AuthenticatedRole {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		roles = append(roles, r)
	}
	sort.Strings(roles)
	return roles
}

// HasGlobalRole reports whether the account holds the given global role
func (a Account) HasGlobalRole(role string) bool {
	for _, r := range a.GlobalRoles() {
		if r == role {
			return true
		}
	}
	return false
}

// RolesKey is a stable key for everything that varies by global roles only
func (a Account) RolesKey() string {
	return strings.Join(a.GlobalRoles(), ",")
}

// CacheTag is the tag of the user entity itself
func (a Account) CacheTag() string {
	return "user:" + strconv.FormatInt(a.ID, 10)
}

// MaxGroupTypeIDLength leaves room for role IDs composed as <group_type>-<suffix>
const MaxGroupTypeIDLength = 22

// GroupType is the bundle of a group
type GroupType struct {
	ID                string   `json:"id" yaml:"id"`
	Label             string   `json:"label" yaml:"label"`
	Description       string   `json:"description,omitempty" yaml:"description"`
	NewRevision       bool     `json:"new_revision" yaml:"new_revision"`
	CreatorMembership bool     `json:"creator_membership" yaml:"creator_membership"`
	CreatorWizard     bool     `json:"creator_wizard" yaml:"creator_wizard"`
	CreatorRoles      []string `json:"creator_roles,omitempty" yaml:"creator_roles"`
}

// CacheTag is the config tag of the group type
func (t *GroupType) CacheTag() string {
	return "config:group.type." + t.ID
}

// Audience classifies which accounts a group role can apply to
type Audience int

const (
	AudienceAnonymous  Audience = iota // Outsider role bound to the anonymous global role
	AudienceOutsider                   // Outsider role bound to any other global role
	AudienceInsider                    // Insider role, synchronized for members
	AudienceIndividual                 // Assigned directly on a membership
)

func (a Audience) String() string {
	switch a {
	case AudienceAnonymous:
		return "anonymous"
	case AudienceOutsider:
		return "outsider"
	case AudienceInsider:
		return "insider"
	case AudienceIndividual:
		return "individual"
	}
	return "unknown"
}

// GroupRole grants a set of permissions within one group type
type GroupRole struct {
	ID          string   `json:"id" yaml:"id"`
	Label       string   `json:"label" yaml:"label"`
	Weight      int      `json:"weight" yaml:"weight"`
	Admin       bool     `json:"admin" yaml:"admin"`
	Scope       Scope    `json:"scope" yaml:"scope"`
	GlobalRole  string   `json:"global_role,omitempty" yaml:"global_role"`
	GroupTypeID string   `json:"group_type" yaml:"group_type"`
	Permissions []string `json:"permissions" yaml:"permissions"`
}

// RoleID composes a group role ID from its group type and a suffix
func RoleID(groupTypeID, suffix string) string {
	return groupTypeID + "-" + suffix
}

// Audience returns the explicit classification of the role
func (r *GroupRole) Audience() Audience {
	switch r.Scope {
	case ScopeInsider:
		return AudienceInsider
	case ScopeIndividual:
		return AudienceIndividual
	}
	if r.GlobalRole == AnonymousRole {
		return AudienceAnonymous
	}
	return AudienceOutsider
}

// AppliesTo reports whether a synchronized role applies to the account's global
// roles. The anonymous outsider role only ever matches unauthenticated accounts
// and insider roles never match them.
func (r *GroupRole) AppliesTo(account Account) bool {
	switch r.Audience() {
	case AudienceIndividual:
		return false
	case AudienceAnonymous:
		return account.IsAnonymous()
	case AudienceInsider:
		if account.IsAnonymous() {
			return false
		}
	}
	return account.HasGlobalRole(r.GlobalRole)
}

// HasPermission reports whether the role grants the permission
func (r *GroupRole) HasPermission(permission string) bool {
	if r.Admin {
		return true
	}
	for _, p := range r.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// GrantPermissions adds permissions, keeping the list sorted and unique
func (r *GroupRole) GrantPermissions(permissions ...string) {
	r.Permissions = normalizePermissions(append(r.Permissions, permissions...))
}

// RevokePermissions removes permissions from the role
func (r *GroupRole) RevokePermissions(permissions ...string) {
	revoke := make(map[string]struct{}, len(permissions))
	for _, p := range permissions {
		revoke[p] = struct{}{}
	}
	kept := r.Permissions[:0]
	for _, p := range r.Permissions {
		if _, ok := revoke[p]; !ok {
			kept = append(kept, p)
		}
	}
	r.Permissions = kept
}

// CacheTag is the config tag of the role
func (r *GroupRole) CacheTag() string {
	return "config:group.role." + r.ID
}

// Group is a single group of a group type
type Group struct {
	ID        int64     `json:"id"`
	UUID      string    `json:"uuid"`
	TypeID    string    `json:"type"`
	Label     string    `json:"label"`
	Owner     int64     `json:"uid"`
	Published bool      `json:"status"`
	Revision  int64     `json:"revision_id"`
	Created   time.Time `json:"created"`
	Changed   time.Time `json:"changed"`
}

// IDString returns the identifier individual permission items are keyed by
func (g *Group) IDString() string {
	return strconv.FormatInt(g.ID, 10)
}

// CacheTag is the tag of the group entity
func (g *Group) CacheTag() string {
	return "group:" + g.IDString()
}

// Relationship records that an entity is related to a group through a relation
// plugin. A relationship of the membership plugin is a membership and carries
// individual role assignments.
type Relationship struct {
	ID          int64     `json:"id"`
	UUID        string    `json:"uuid"`
	TypeID      string    `json:"type"`
	GroupID     int64     `json:"gid"`
	EntityID    int64     `json:"entity_id"`
	PluginID    string    `json:"plugin_id"`
	GroupTypeID string    `json:"group_type"`
	RoleIDs     []string  `json:"group_roles,omitempty"`
	Owner       int64     `json:"uid"`
	Created     time.Time `json:"created"`
	Changed     time.Time `json:"changed"`
}

// IsMembership reports whether the relationship is a group membership
func (r *Relationship) IsMembership() bool {
	return r.PluginID == MembershipPluginID
}

// CacheTag is the tag of the relationship entity
func (r *Relationship) CacheTag() string {
	return "group_relationship:" + strconv.FormatInt(r.ID, 10)
}

// SameRoles reports whether two role assignments hold the same role IDs
func SameRoles(a, b []string) bool {
	a, b = normalizePermissions(a), normalizePermissions(b)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ConfigWrapper lets a config entity be the target of a relationship
type ConfigWrapper struct {
	ID       int64  `json:"id"`
	Bundle   string `json:"bundle"`    // Config entity type, e.g. node_type
	EntityID string `json:"entity_id"` // Wrapped config entity ID, e.g. page
}

// Entity is a reference to anything that can be related to a group. Content
// entities are identified by ID, config entities by ConfigID.
type Entity struct {
	TypeID    string `json:"entity_type"`
	ID        int64  `json:"id,omitempty"`
	ConfigID  string `json:"config_id,omitempty"`
	Bundle    string `json:"bundle,omitempty"`
	Owner     int64  `json:"uid,omitempty"`
	Published bool   `json:"status,omitempty"`
}

// CacheTag is the tag of the referenced entity
func (e Entity) CacheTag() string {
	if e.ConfigID != "" {
		return "config:" + e.TypeID + "." + e.ConfigID
	}
	return e.TypeID + ":" + strconv.FormatInt(e.ID, 10)
}

// RelationshipListTag is invalidated whenever a relationship of the plugin is
// saved or deleted
func RelationshipListTag(pluginID string) string {
	return "group_relationship_list:plugin:" + pluginID
}

// EntityRelationshipListTag narrows RelationshipListTag to one related entity
func EntityRelationshipListTag(pluginID string, entityID int64) string {
	return RelationshipListTag(pluginID) + ":entity:" + strconv.FormatInt(entityID, 10)
}

// Tags invalidated on any change to the respective entity type
const (
	GroupListTag        = "group_list"
	GroupRoleListTag    = "config:group_role_list"
	GroupTypeListTag    = "config:group_type_list"
	RelationshipTypeTag = "config:group_relationship_type_list"
)

func normalizePermissions(permissions []string) []string {
	seen := make(map[string]struct{}, len(permissions))
	out := make([]string, 0, len(permissions))
	for _, p := range permissions {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
