package permissions

import (
	"context"
	"sync/atomic"

	"github.com/platinummonkey/groupaccess/pkg/group"
)

type fakeConfig struct {
	types []*group.GroupType
	roles []*group.GroupRole
	calls atomic.Int64
	err   error
}

func (f *fakeConfig) ListGroupTypes(ctx context.Context) ([]*group.GroupType, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.types, nil
}

func (f *fakeConfig) ListRolesByScope(ctx context.Context, scope group.Scope) ([]*group.GroupRole, error) {
	var roles []*group.GroupRole
	for _, r := range f.roles {
		if r.Scope == scope {
			roles = append(roles, r)
		}
	}
	return roles, nil
}

func (f *fakeConfig) LoadRoles(ctx context.Context, ids []string) ([]*group.GroupRole, error) {
	var roles []*group.GroupRole
	for _, id := range ids {
		for _, r := range f.roles {
			if r.ID == id {
				roles = append(roles, r)
			}
		}
	}
	return roles, nil
}

func (f *fakeConfig) role(id string) *group.GroupRole {
	for _, r := range f.roles {
		if r.ID == id {
			return r
		}
	}
	return nil
}

type fakeMemberships struct {
	memberships []*group.Relationship
	calls       atomic.Int64
}

func (f *fakeMemberships) LoadMembership(ctx context.Context, groupID, userID int64) (*group.Relationship, error) {
	for _, m := range f.memberships {
		if m.GroupID == groupID && m.EntityID == userID {
			return m, nil
		}
	}
	return nil, group.ErrNotFound
}

func (f *fakeMemberships) LoadMembershipsByUser(ctx context.Context, userID int64) ([]*group.Relationship, error) {
	f.calls.Add(1)
	var out []*group.Relationship
	for _, m := range f.memberships {
		if m.EntityID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

// newFixture builds group types foo and bar with a typical role set:
//
//	foo-anonymous  outsider/anonymous      view group
//	foo-outsider   outsider/authenticated  view group, join group
//	foo-insider    insider/authenticated   view group, leave group
//	foo-admin      insider/administrator   admin
//	foo-member     individual              edit group
//	foo-owner      individual              admin
//	bar-outsider   outsider/authenticated  (none)
func newFixture() (*fakeConfig, *fakeMemberships) {
	config := &fakeConfig{
		types: []*group.GroupType{{ID: "foo"}, {ID: "bar"}},
		roles: []*group.GroupRole{
			{ID: "foo-anonymous", GroupTypeID: "foo", Scope: group.ScopeOutsider, GlobalRole: group.AnonymousRole, Permissions: []string{"view group"}},
			{ID: "foo-outsider", GroupTypeID: "foo", Scope: group.ScopeOutsider, GlobalRole: group.AuthenticatedRole, Permissions: []string{"join group", "view group"}},
			{ID: "foo-insider", GroupTypeID: "foo", Scope: group.ScopeInsider, GlobalRole: group.AuthenticatedRole, Permissions: []string{"leave group", "view group"}},
			{ID: "foo-admin", GroupTypeID: "foo", Scope: group.ScopeInsider, GlobalRole: "administrator", Admin: true},
			{ID: "foo-member", GroupTypeID: "foo", Scope: group.ScopeIndividual, Permissions: []string{"edit group"}},
			{ID: "foo-owner", GroupTypeID: "foo", Scope: group.ScopeIndividual, Admin: true},
			{ID: "bar-outsider", GroupTypeID: "bar", Scope: group.ScopeOutsider, GlobalRole: group.AuthenticatedRole},
		},
	}
	memberships := &fakeMemberships{
		memberships: []*group.Relationship{
			{ID: 10, GroupID: 1, EntityID: 7, PluginID: group.MembershipPluginID, GroupTypeID: "foo", RoleIDs: []string{"foo-member"}},
			{ID: 11, GroupID: 2, EntityID: 7, PluginID: group.MembershipPluginID, GroupTypeID: "foo", RoleIDs: []string{"foo-owner", "foo-insider"}},
			{ID: 12, GroupID: 1, EntityID: 8, PluginID: group.MembershipPluginID, GroupTypeID: "foo"},
		},
	}
	return config, memberships
}
