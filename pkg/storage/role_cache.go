package storage

import (
	"context"
	"errors"
	"strconv"

	"github.com/platinummonkey/groupaccess/pkg/group"
)

type userGroupKey struct {
	userID  int64
	groupID int64
}

// LoadRolesByUserAndGroup returns the group roles an account holds in a group:
// its individual roles when it is a member and, if includeSynchronized is set,
// the insider or outsider roles matching its global roles. Results are cached
// per (user, group) until ResetUserGroupRoleCache is called.
func (s *Store) LoadRolesByUserAndGroup(ctx context.Context, account group.Account, groupID int64, includeSynchronized bool) (roles []*group.GroupRole, err error) {
	defer s.observe("load_user_group_roles", &err)

	key := userGroupKey{userID: account.ID, groupID: groupID}
	variant := strconv.FormatBool(includeSynchronized) + "|" + account.RolesKey()

	s.roleMu.RLock()
	cached, ok := s.roleCache[key][variant]
	s.roleMu.RUnlock()
	if ok {
		return cached, nil
	}

	var membership *group.Relationship
	if !account.IsAnonymous() {
		membership, err = s.LoadMembership(ctx, groupID, account.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	if membership != nil {
		roles, err = s.LoadRoles(ctx, membership.RoleIDs)
		if err != nil {
			return nil, err
		}
	}

	if includeSynchronized {
		g, err := s.LoadGroup(ctx, groupID)
		if err != nil {
			return nil, err
		}
		scope := group.ScopeOutsider
		if membership != nil {
			scope = group.ScopeInsider
		}
		synchronized, err := s.ListRolesByGroupType(ctx, g.TypeID)
		if err != nil {
			return nil, err
		}
		for _, r := range synchronized {
			if r.Scope == scope && r.AppliesTo(account) {
				roles = append(roles, r)
			}
		}
	}

	s.roleMu.Lock()
	if s.roleCache[key] == nil {
		s.roleCache[key] = make(map[string][]*group.GroupRole)
	}
	s.roleCache[key][variant] = roles
	s.roleMu.Unlock()

	return roles, nil
}

// ResetUserGroupRoleCache forgets the cached roles of a user in a group
func (s *Store) ResetUserGroupRoleCache(userID, groupID int64) {
	s.roleMu.Lock()
	delete(s.roleCache, userGroupKey{userID: userID, groupID: groupID})
	s.roleMu.Unlock()
}

func (s *Store) resetAllRoleCaches() {
	s.roleMu.Lock()
	s.roleCache = make(map[userGroupKey]map[string][]*group.GroupRole)
	s.roleMu.Unlock()
}
