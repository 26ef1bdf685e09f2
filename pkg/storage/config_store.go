package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/platinummonkey/groupaccess/pkg/events"
	"github.com/platinummonkey/groupaccess/pkg/group"
)

// SaveGroupType creates or updates a group type
func (s *Store) SaveGroupType(ctx context.Context, t *group.GroupType) (err error) {
	defer s.observe("save_group_type", &err)

	if err := t.Validate(); err != nil {
		return err
	}
	creatorRoles, err := json.Marshal(nonNil(t.CreatorRoles))
	if err != nil {
		return fmt.Errorf("failed to encode creator roles: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO group_types (id, label, description, new_revision, creator_membership, creator_wizard, creator_roles)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			label = excluded.label,
			description = excluded.description,
			new_revision = excluded.new_revision,
			creator_membership = excluded.creator_membership,
			creator_wizard = excluded.creator_wizard,
			creator_roles = excluded.creator_roles
	`, t.ID, t.Label, t.Description, t.NewRevision, t.CreatorMembership, t.CreatorWizard, string(creatorRoles))
	if err != nil {
		return fmt.Errorf("failed to save group type %s: %w", t.ID, err)
	}

	evs := []events.Event{events.GroupTypeSaved{Type: t}}
	membership, installed, err := s.installMembership(ctx, t.ID)
	if err != nil {
		return err
	}
	if installed {
		evs = append(evs, events.RelationshipTypeSaved{Type: membership})
	}
	return s.publish(ctx, evs...)
}

// installMembership makes sure every group type can hold members
func (s *Store) installMembership(ctx context.Context, groupTypeID string) (*group.RelationshipType, bool, error) {
	t := &group.RelationshipType{GroupTypeID: groupTypeID, PluginID: group.MembershipPluginID}
	if err := t.Validate(); err != nil {
		return nil, false, err
	}
	config, err := group.MarshalPluginConfig(t.Config)
	if err != nil {
		return nil, false, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO group_relationship_types (id, group_type, plugin_id, plugin_config)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
	`, t.ID, t.GroupTypeID, t.PluginID, string(config))
	if err != nil {
		return nil, false, fmt.Errorf("failed to install membership on %s: %w", groupTypeID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to install membership on %s: %w", groupTypeID, err)
	}
	return t, n > 0, nil
}

const groupTypeColumns = `id, label, description, new_revision, creator_membership, creator_wizard, creator_roles`

func scanGroupType(row interface{ Scan(...any) error }) (*group.GroupType, error) {
	var t group.GroupType
	var creatorRoles string
	if err := row.Scan(&t.ID, &t.Label, &t.Description, &t.NewRevision, &t.CreatorMembership, &t.CreatorWizard, &creatorRoles); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(creatorRoles), &t.CreatorRoles); err != nil {
		return nil, fmt.Errorf("failed to decode creator roles of %s: %w", t.ID, err)
	}
	return &t, nil
}

// LoadGroupType loads a group type by ID
func (s *Store) LoadGroupType(ctx context.Context, id string) (t *group.GroupType, err error) {
	defer s.observe("load_group_type", &err)
	return s.loadGroupType(ctx, s.db, id)
}

func (s *Store) loadGroupType(ctx context.Context, q querier, id string) (*group.GroupType, error) {
	t, err := scanGroupType(q.QueryRowContext(ctx, `SELECT `+groupTypeColumns+` FROM group_types WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("group type %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load group type %s: %w", id, err)
	}
	return t, nil
}

// ListGroupTypes returns every group type ordered by ID
func (s *Store) ListGroupTypes(ctx context.Context) (types []*group.GroupType, err error) {
	defer s.observe("list_group_types", &err)

	rows, err := s.db.QueryContext(ctx, `SELECT `+groupTypeColumns+` FROM group_types ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list group types: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanGroupType(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group type: %w", err)
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

// DeleteGroupType deletes a group type with its roles and relationship types.
// Types that still have groups cannot be deleted.
func (s *Store) DeleteGroupType(ctx context.Context, id string) (err error) {
	defer s.observe("delete_group_type", &err)

	t, err := s.loadGroupType(ctx, s.db, id)
	if err != nil {
		return err
	}

	var groups int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM groups_field_data WHERE type = $1`, id).Scan(&groups); err != nil {
		return fmt.Errorf("failed to count groups of %s: %w", id, err)
	}
	if groups > 0 {
		return fmt.Errorf("group type %s has %d groups: %w", id, groups, ErrInUse)
	}

	roles, err := s.ListRolesByGroupType(ctx, id)
	if err != nil {
		return err
	}
	relTypes, err := s.ListRelationshipTypes(ctx, id)
	if err != nil {
		return err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM group_roles WHERE group_type = $1`,
			`DELETE FROM group_relationship_types WHERE group_type = $1`,
			`DELETE FROM group_types WHERE id = $1`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				return fmt.Errorf("failed to delete group type %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.resetAllRoleCaches()
	evs := make([]events.Event, 0, len(roles)+len(relTypes)+1)
	for _, r := range roles {
		evs = append(evs, events.RoleDeleted{Role: r})
	}
	for _, rt := range relTypes {
		evs = append(evs, events.RelationshipTypeDeleted{Type: rt})
	}
	evs = append(evs, events.GroupTypeDeleted{Type: t})
	return s.publish(ctx, evs...)
}

// SaveRole validates, normalizes and stores a group role
func (s *Store) SaveRole(ctx context.Context, r *group.GroupRole) (err error) {
	defer s.observe("save_group_role", &err)
	return s.saveRole(ctx, r, false)
}

// SyncRole stores a role coming from a configuration sync. Permissions keep
// their order; only duplicates are removed.
func (s *Store) SyncRole(ctx context.Context, r *group.GroupRole) (err error) {
	defer s.observe("sync_group_role", &err)
	return s.saveRole(ctx, r, true)
}

func (s *Store) saveRole(ctx context.Context, r *group.GroupRole, syncing bool) error {
	if err := r.Normalize(syncing); err != nil {
		return err
	}
	if _, err := s.loadGroupType(ctx, s.db, r.GroupTypeID); err != nil {
		return err
	}

	permissions, err := json.Marshal(nonNil(r.Permissions))
	if err != nil {
		return fmt.Errorf("failed to encode permissions of %s: %w", r.ID, err)
	}
	var globalRole sql.NullString
	if r.GlobalRole != "" {
		globalRole = sql.NullString{String: r.GlobalRole, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO group_roles (id, label, weight, admin, scope, global_role, group_type, permissions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			label = excluded.label,
			weight = excluded.weight,
			admin = excluded.admin,
			scope = excluded.scope,
			global_role = excluded.global_role,
			group_type = excluded.group_type,
			permissions = excluded.permissions
	`, r.ID, r.Label, r.Weight, r.Admin, string(r.Scope), globalRole, r.GroupTypeID, string(permissions))
	if err != nil {
		return fmt.Errorf("failed to save group role %s: %w", r.ID, err)
	}

	s.resetAllRoleCaches()
	return s.publish(ctx, events.RoleSaved{Role: r})
}

const roleColumns = `id, label, weight, admin, scope, global_role, group_type, permissions`

func scanRole(row interface{ Scan(...any) error }) (*group.GroupRole, error) {
	var r group.GroupRole
	var scope, permissions string
	var globalRole sql.NullString
	if err := row.Scan(&r.ID, &r.Label, &r.Weight, &r.Admin, &scope, &globalRole, &r.GroupTypeID, &permissions); err != nil {
		return nil, err
	}
	r.Scope = group.Scope(scope)
	r.GlobalRole = globalRole.String
	if err := json.Unmarshal([]byte(permissions), &r.Permissions); err != nil {
		return nil, fmt.Errorf("failed to decode permissions of %s: %w", r.ID, err)
	}
	return &r, nil
}

func (s *Store) queryRoles(ctx context.Context, q querier, query string, args ...any) ([]*group.GroupRole, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query group roles: %w", err)
	}
	defer rows.Close()

	var roles []*group.GroupRole
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group role: %w", err)
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

// LoadRole loads a group role by ID
func (s *Store) LoadRole(ctx context.Context, id string) (r *group.GroupRole, err error) {
	defer s.observe("load_group_role", &err)

	r, err = scanRole(s.db.QueryRowContext(ctx, `SELECT `+roleColumns+` FROM group_roles WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("group role %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load group role %s: %w", id, err)
	}
	return r, nil
}

// LoadRoles loads the roles with the given IDs, silently skipping unknown IDs
func (s *Store) LoadRoles(ctx context.Context, ids []string) (roles []*group.GroupRole, err error) {
	defer s.observe("load_group_roles", &err)
	return s.loadRoles(ctx, s.db, ids)
}

func (s *Store) loadRoles(ctx context.Context, q querier, ids []string) ([]*group.GroupRole, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return s.queryRoles(ctx, q,
		`SELECT `+roleColumns+` FROM group_roles WHERE id IN (`+placeholders(1, len(ids))+`) ORDER BY weight, id`,
		args...)
}

// ListRolesByScope returns the roles of a scope across all group types
func (s *Store) ListRolesByScope(ctx context.Context, scope group.Scope) (roles []*group.GroupRole, err error) {
	defer s.observe("list_group_roles", &err)
	return s.queryRoles(ctx, s.db,
		`SELECT `+roleColumns+` FROM group_roles WHERE scope = $1 ORDER BY group_type, weight, id`,
		string(scope))
}

// ListRolesByGroupType returns every role of a group type
func (s *Store) ListRolesByGroupType(ctx context.Context, groupTypeID string) (roles []*group.GroupRole, err error) {
	defer s.observe("list_group_roles", &err)
	return s.queryRoles(ctx, s.db,
		`SELECT `+roleColumns+` FROM group_roles WHERE group_type = $1 ORDER BY weight, id`,
		groupTypeID)
}

// DeleteRole deletes a role and removes it from every membership
func (s *Store) DeleteRole(ctx context.Context, id string) (err error) {
	defer s.observe("delete_group_role", &err)

	r, err := s.LoadRole(ctx, id)
	if err != nil {
		return err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM group_relationship_roles WHERE role_id = $1`, id); err != nil {
			return fmt.Errorf("failed to unassign group role %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM group_roles WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete group role %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.resetAllRoleCaches()
	return s.publish(ctx, events.RoleDeleted{Role: r})
}

// SaveRelationshipType installs a relation plugin on a group type or updates
// its configuration
func (s *Store) SaveRelationshipType(ctx context.Context, t *group.RelationshipType) (err error) {
	defer s.observe("save_relationship_type", &err)

	if err := t.Validate(); err != nil {
		return err
	}
	if _, err := s.loadGroupType(ctx, s.db, t.GroupTypeID); err != nil {
		return err
	}
	if _, err := s.registry.Definition(t.PluginID); err != nil {
		return err
	}

	config, err := group.MarshalPluginConfig(t.Config)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO group_relationship_types (id, group_type, plugin_id, plugin_config)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET plugin_config = excluded.plugin_config
	`, t.ID, t.GroupTypeID, t.PluginID, string(config))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("plugin %s is already installed on %s: %w", t.PluginID, t.GroupTypeID, ErrInUse)
		}
		return fmt.Errorf("failed to save relationship type %s: %w", t.ID, err)
	}

	return s.publish(ctx, events.RelationshipTypeSaved{Type: t})
}

const relationshipTypeColumns = `id, group_type, plugin_id, plugin_config`

func scanRelationshipType(row interface{ Scan(...any) error }) (*group.RelationshipType, error) {
	var t group.RelationshipType
	var config string
	if err := row.Scan(&t.ID, &t.GroupTypeID, &t.PluginID, &config); err != nil {
		return nil, err
	}
	cfg, err := group.UnmarshalPluginConfig([]byte(config))
	if err != nil {
		return nil, fmt.Errorf("relationship type %s: %w", t.ID, err)
	}
	t.Config = cfg
	return &t, nil
}

// LoadRelationshipType loads a relationship type by ID
func (s *Store) LoadRelationshipType(ctx context.Context, id string) (t *group.RelationshipType, err error) {
	defer s.observe("load_relationship_type", &err)
	return s.loadRelationshipType(ctx, s.db, `id = $1`, id)
}

// RelationshipTypeFor returns the relationship type of a plugin installed on a
// group type, or ErrNotFound when the plugin is not installed
func (s *Store) RelationshipTypeFor(ctx context.Context, groupTypeID, pluginID string) (t *group.RelationshipType, err error) {
	defer s.observe("load_relationship_type", &err)
	return s.loadRelationshipType(ctx, s.db, `group_type = $1 AND plugin_id = $2`, groupTypeID, pluginID)
}

func (s *Store) loadRelationshipType(ctx context.Context, q querier, where string, args ...any) (*group.RelationshipType, error) {
	t, err := scanRelationshipType(q.QueryRowContext(ctx, `SELECT `+relationshipTypeColumns+` FROM group_relationship_types WHERE `+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("relationship type %v: %w", args, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load relationship type %v: %w", args, err)
	}
	return t, nil
}

// ListRelationshipTypes returns the relationship types of a group type, or of
// every group type when groupTypeID is empty
func (s *Store) ListRelationshipTypes(ctx context.Context, groupTypeID string) (types []*group.RelationshipType, err error) {
	defer s.observe("list_relationship_types", &err)

	query := `SELECT ` + relationshipTypeColumns + ` FROM group_relationship_types`
	var args []any
	if groupTypeID != "" {
		query += ` WHERE group_type = $1`
		args = append(args, groupTypeID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list relationship types: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanRelationshipType(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan relationship type: %w", err)
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

// DeleteRelationshipType uninstalls a plugin from a group type together with
// every relationship of that type
func (s *Store) DeleteRelationshipType(ctx context.Context, id string) (err error) {
	defer s.observe("delete_relationship_type", &err)

	t, err := s.LoadRelationshipType(ctx, id)
	if err != nil {
		return err
	}
	rels, err := s.queryRelationships(ctx, s.db, `type = $1`, id)
	if err != nil {
		return err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := deleteRelationshipRows(ctx, tx, rels); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM group_relationship_types WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete relationship type %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	evs := make([]events.Event, 0, len(rels)+1)
	for _, r := range rels {
		evs = append(evs, events.RelationshipDeleted{Relationship: r})
	}
	evs = append(evs, events.RelationshipTypeDeleted{Type: t})
	return s.publish(ctx, evs...)
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
