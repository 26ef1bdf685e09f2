package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"github.com/platinummonkey/groupaccess/pkg/events"
	"github.com/platinummonkey/groupaccess/pkg/group"
	"github.com/platinummonkey/groupaccess/pkg/relation"
)

// AddRelationship relates an entity to a group through a relation plugin. The
// plugin must be installed on the group's type, accept the entity's type and
// bundle, and the plugin's cardinality limits must not be exceeded.
func (s *Store) AddRelationship(ctx context.Context, g *group.Group, pluginID string, entity group.Entity, owner int64) (rel *group.Relationship, err error) {
	defer s.observe("add_relationship", &err)
	return s.addRelationship(ctx, g, pluginID, entity, owner, nil)
}

// AddMember makes the account a member of the group with the given individual roles
func (s *Store) AddMember(ctx context.Context, g *group.Group, account group.Account, roleIDs ...string) (rel *group.Relationship, err error) {
	defer s.observe("add_member", &err)

	if account.IsAnonymous() {
		return nil, &ReferenceError{
			PluginID: group.MembershipPluginID,
			GroupID:  g.ID,
			EntityID: "0",
			Reason:   "anonymous users cannot be members",
		}
	}
	entity := group.Entity{TypeID: relation.UserEntityType.ID, ID: account.ID}
	return s.addRelationship(ctx, g, group.MembershipPluginID, entity, account.ID, roleIDs)
}

func (s *Store) addRelationship(ctx context.Context, g *group.Group, pluginID string, entity group.Entity, owner int64, roleIDs []string) (*group.Relationship, error) {
	def, err := s.registry.Definition(pluginID)
	if err != nil {
		return nil, err
	}
	reject := func(reason string) error {
		return &ReferenceError{PluginID: pluginID, GroupID: g.ID, EntityID: entityLabel(entity), Reason: reason}
	}

	if entity.TypeID != def.EntityTypeID {
		return nil, reject(fmt.Sprintf("plugin relates %s entities, not %s", def.EntityTypeID, entity.TypeID))
	}
	if def.EntityBundle != "" && entity.Bundle != def.EntityBundle {
		return nil, reject(fmt.Sprintf("plugin relates %s bundle %s, not %s", def.EntityTypeID, def.EntityBundle, entity.Bundle))
	}

	rt, err := s.RelationshipTypeFor(ctx, g.TypeID, pluginID)
	if errors.Is(err, ErrNotFound) {
		return nil, reject("plugin is not installed on group type " + g.TypeID)
	}
	if err != nil {
		return nil, err
	}

	entityID, err := s.resolveEntityID(ctx, entity, true)
	if err != nil {
		return nil, err
	}
	if entityID == 0 {
		return nil, reject("entity has no ID")
	}

	rel := &group.Relationship{
		TypeID:      rt.ID,
		GroupID:     g.ID,
		EntityID:    entityID,
		PluginID:    pluginID,
		GroupTypeID: g.TypeID,
		RoleIDs:     roleIDs,
		Owner:       owner,
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if reason, err := checkCardinality(ctx, tx, rt, g.ID, entityID); err != nil {
			return err
		} else if reason != "" {
			return reject(reason)
		}
		if rel.IsMembership() {
			if err := s.checkMembershipRoles(ctx, tx, g, rel.RoleIDs); err != nil {
				return err
			}
		}
		return s.insertRelationship(ctx, tx, rel)
	})
	if err != nil {
		return nil, err
	}

	return rel, s.publish(ctx, events.RelationshipSaved{Relationship: rel})
}

// checkCardinality returns a non-empty reason when relating the entity to the
// group would exceed the limits of the relationship type
func checkCardinality(ctx context.Context, q querier, rt *group.RelationshipType, groupID, entityID int64) (string, error) {
	var groups, inGroup int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT gid), COALESCE(SUM(CASE WHEN gid = $1 THEN 1 ELSE 0 END), 0)
		FROM group_relationship_field_data
		WHERE plugin_id = $2 AND entity_id = $3
	`, groupID, rt.PluginID, entityID).Scan(&groups, &inGroup)
	if err != nil {
		return "", fmt.Errorf("failed to count relationships of entity %d: %w", entityID, err)
	}

	if limit := rt.Config.GroupCardinality(); limit > 0 && inGroup == 0 && groups >= limit {
		return fmt.Sprintf("entity is already related to %d group(s), the limit", groups), nil
	}
	if limit := rt.Config.EntityCardinality(); limit > 0 && inGroup >= limit {
		return fmt.Sprintf("entity is already related to this group %d time(s), the limit", inGroup), nil
	}
	return "", nil
}

// checkMembershipRoles verifies that roles assigned on a membership are
// individual roles of the group's type
func (s *Store) checkMembershipRoles(ctx context.Context, q querier, g *group.Group, roleIDs []string) error {
	if len(roleIDs) == 0 {
		return nil
	}
	roles, err := s.loadRoles(ctx, q, roleIDs)
	if err != nil {
		return err
	}
	found := make(map[string]*group.GroupRole, len(roles))
	for _, r := range roles {
		found[r.ID] = r
	}
	for _, id := range roleIDs {
		r, ok := found[id]
		switch {
		case !ok:
			return &group.ValidationError{Entity: "group_relationship", ID: id, Err: ErrNotFound}
		case r.GroupTypeID != g.TypeID:
			return &group.ValidationError{Entity: "group_relationship", ID: id, Err: fmt.Errorf("%w: role belongs to %s", ErrInvalidReference, r.GroupTypeID)}
		case r.Scope != group.ScopeIndividual:
			return &group.ValidationError{Entity: "group_relationship", ID: id, Err: fmt.Errorf("%w: %s roles are synchronized", group.ErrInvalidScope, r.Scope)}
		}
	}
	return nil
}

func (s *Store) insertRelationship(ctx context.Context, tx *sql.Tx, rel *group.Relationship) error {
	now := unixTime(s.now().Unix())
	if rel.UUID == "" {
		rel.UUID = uuid.NewString()
	}
	rel.Created = now
	rel.Changed = now
	rel.RoleIDs = uniqueSorted(rel.RoleIDs)

	err := tx.QueryRowContext(ctx, `
		INSERT INTO group_relationship_field_data (uuid, type, gid, entity_id, plugin_id, group_type, uid, created, changed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, rel.UUID, rel.TypeID, rel.GroupID, rel.EntityID, rel.PluginID, rel.GroupTypeID, rel.Owner, now.Unix(), now.Unix()).Scan(&rel.ID)
	if err != nil {
		return fmt.Errorf("failed to insert relationship: %w", err)
	}
	return insertRelationshipRoles(ctx, tx, rel)
}

func insertRelationshipRoles(ctx context.Context, tx *sql.Tx, rel *group.Relationship) error {
	for _, roleID := range rel.RoleIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO group_relationship_roles (relationship_id, role_id) VALUES ($1, $2)`,
			rel.ID, roleID,
		); err != nil {
			return fmt.Errorf("failed to assign role %s to relationship %d: %w", roleID, rel.ID, err)
		}
	}
	return nil
}

// SaveRelationship stores changes to an existing relationship. Only the owner
// and, for memberships, the role assignment can change; the plugin and group
// type are always taken from the relationship type.
func (s *Store) SaveRelationship(ctx context.Context, rel *group.Relationship) (err error) {
	defer s.observe("save_relationship", &err)

	if rel.ID == 0 {
		return fmt.Errorf("relationship has no ID, use AddRelationship: %w", ErrNotFound)
	}
	original, err := s.loadRelationship(ctx, s.db, rel.ID)
	if err != nil {
		return err
	}
	rt, err := s.LoadRelationshipType(ctx, original.TypeID)
	if err != nil {
		return err
	}

	rel.UUID = original.UUID
	rel.TypeID = rt.ID
	rel.PluginID = rt.PluginID
	rel.GroupTypeID = rt.GroupTypeID
	rel.GroupID = original.GroupID
	rel.EntityID = original.EntityID
	rel.Created = original.Created
	rel.Changed = unixTime(s.now().Unix())
	if rel.IsMembership() {
		rel.RoleIDs = uniqueSorted(rel.RoleIDs)
	} else {
		rel.RoleIDs = nil
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if rel.IsMembership() {
			g, err := s.loadGroup(ctx, tx, rel.GroupID)
			if err != nil {
				return err
			}
			if err := s.checkMembershipRoles(ctx, tx, g, rel.RoleIDs); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE group_relationship_field_data SET uid = $1, changed = $2 WHERE id = $3`,
			rel.Owner, rel.Changed.Unix(), rel.ID,
		); err != nil {
			return fmt.Errorf("failed to update relationship %d: %w", rel.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM group_relationship_roles WHERE relationship_id = $1`, rel.ID); err != nil {
			return fmt.Errorf("failed to clear roles of relationship %d: %w", rel.ID, err)
		}
		return insertRelationshipRoles(ctx, tx, rel)
	})
	if err != nil {
		return err
	}

	return s.publish(ctx, events.RelationshipSaved{Relationship: rel, Original: original})
}

const relationshipColumns = `id, uuid, type, gid, entity_id, plugin_id, group_type, uid, created, changed`

func scanRelationship(row interface{ Scan(...any) error }) (*group.Relationship, error) {
	var r group.Relationship
	var created, changed int64
	if err := row.Scan(&r.ID, &r.UUID, &r.TypeID, &r.GroupID, &r.EntityID, &r.PluginID, &r.GroupTypeID, &r.Owner, &created, &changed); err != nil {
		return nil, err
	}
	r.Created = unixTime(created)
	r.Changed = unixTime(changed)
	return &r, nil
}

// queryRelationships loads relationships matching the condition with their roles
func (s *Store) queryRelationships(ctx context.Context, q querier, where string, args ...any) ([]*group.Relationship, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+relationshipColumns+` FROM group_relationship_field_data WHERE `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
	}

	var rels []*group.Relationship
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		rels = append(rels, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate relationships: %w", err)
	}
	rows.Close()

	if err := attachRoles(ctx, q, rels); err != nil {
		return nil, err
	}
	return rels, nil
}

func attachRoles(ctx context.Context, q querier, rels []*group.Relationship) error {
	byID := make(map[int64]*group.Relationship)
	args := make([]any, 0, len(rels))
	for _, r := range rels {
		if r.IsMembership() {
			byID[r.ID] = r
			args = append(args, r.ID)
		}
	}
	if len(args) == 0 {
		return nil
	}

	rows, err := q.QueryContext(ctx,
		`SELECT relationship_id, role_id FROM group_relationship_roles WHERE relationship_id IN (`+placeholders(1, len(args))+`) ORDER BY role_id`,
		args...)
	if err != nil {
		return fmt.Errorf("failed to query relationship roles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var relID int64
		var roleID string
		if err := rows.Scan(&relID, &roleID); err != nil {
			return fmt.Errorf("failed to scan relationship role: %w", err)
		}
		if r, ok := byID[relID]; ok {
			r.RoleIDs = append(r.RoleIDs, roleID)
		}
	}
	return rows.Err()
}

// LoadRelationship loads a relationship by ID
func (s *Store) LoadRelationship(ctx context.Context, id int64) (rel *group.Relationship, err error) {
	defer s.observe("load_relationship", &err)
	return s.loadRelationship(ctx, s.db, id)
}

func (s *Store) loadRelationship(ctx context.Context, q querier, id int64) (*group.Relationship, error) {
	rels, err := s.queryRelationships(ctx, q, `id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(rels) == 0 {
		return nil, fmt.Errorf("relationship %d: %w", id, ErrNotFound)
	}
	return rels[0], nil
}

// LoadRelationshipsByGroup returns the relationships of a group, optionally
// limited to one plugin
func (s *Store) LoadRelationshipsByGroup(ctx context.Context, groupID int64, pluginID string) (rels []*group.Relationship, err error) {
	defer s.observe("load_relationships", &err)

	if pluginID == "" {
		return s.queryRelationships(ctx, s.db, `gid = $1`, groupID)
	}
	return s.queryRelationships(ctx, s.db, `gid = $1 AND plugin_id = $2`, groupID, pluginID)
}

// LoadRelationshipsByEntity returns every relationship an entity is the target
// of. Without plugin IDs all plugins relating the entity's type are considered.
func (s *Store) LoadRelationshipsByEntity(ctx context.Context, entity group.Entity, pluginIDs ...string) (rels []*group.Relationship, err error) {
	defer s.observe("load_relationships", &err)

	if len(pluginIDs) == 0 {
		pluginIDs = s.registry.PluginIDsForEntityType(entity.TypeID)
	}
	if len(pluginIDs) == 0 {
		return nil, nil
	}
	entityID, err := s.resolveEntityID(ctx, entity, false)
	if err != nil || entityID == 0 {
		return nil, err
	}

	args := []any{entityID}
	for _, p := range pluginIDs {
		args = append(args, p)
	}
	return s.queryRelationships(ctx, s.db,
		`entity_id = $1 AND plugin_id IN (`+placeholders(2, len(pluginIDs))+`)`,
		args...)
}

// DeleteRelationship deletes one relationship
func (s *Store) DeleteRelationship(ctx context.Context, id int64) (err error) {
	defer s.observe("delete_relationship", &err)

	rel, err := s.loadRelationship(ctx, s.db, id)
	if err != nil {
		return err
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		return deleteRelationshipRows(ctx, tx, []*group.Relationship{rel})
	})
	if err != nil {
		return err
	}
	return s.publish(ctx, events.RelationshipDeleted{Relationship: rel})
}

// DeleteEntityRelationships removes an entity from every group, as done when
// the entity itself is deleted. Wrapped config entities lose their wrapper.
func (s *Store) DeleteEntityRelationships(ctx context.Context, entity group.Entity) (err error) {
	defer s.observe("delete_entity_relationships", &err)

	rels, err := s.LoadRelationshipsByEntity(ctx, entity)
	if err != nil {
		return err
	}
	et, err := s.registry.EntityType(entity.TypeID)
	if err != nil {
		return err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := deleteRelationshipRows(ctx, tx, rels); err != nil {
			return err
		}
		if et.Config {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM group_config_wrapper WHERE bundle = $1 AND entity_id = $2`,
				entity.TypeID, entity.ConfigID,
			); err != nil {
				return fmt.Errorf("failed to delete config wrapper of %s: %w", entityLabel(entity), err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	evs := make([]events.Event, 0, len(rels))
	for _, r := range rels {
		evs = append(evs, events.RelationshipDeleted{Relationship: r})
	}
	return s.publish(ctx, evs...)
}

func deleteRelationshipRows(ctx context.Context, tx *sql.Tx, rels []*group.Relationship) error {
	for _, r := range rels {
		if _, err := tx.ExecContext(ctx, `DELETE FROM group_relationship_roles WHERE relationship_id = $1`, r.ID); err != nil {
			return fmt.Errorf("failed to delete roles of relationship %d: %w", r.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM group_relationship_field_data WHERE id = $1`, r.ID); err != nil {
			return fmt.Errorf("failed to delete relationship %d: %w", r.ID, err)
		}
	}
	return nil
}

// LoadMembership returns the membership of a user in a group, or ErrNotFound
// when the user is not a member
func (s *Store) LoadMembership(ctx context.Context, groupID, userID int64) (rel *group.Relationship, err error) {
	defer s.observe("load_membership", &err)

	rels, err := s.queryRelationships(ctx, s.db,
		`gid = $1 AND plugin_id = $2 AND entity_id = $3`,
		groupID, group.MembershipPluginID, userID)
	if err != nil {
		return nil, err
	}
	if len(rels) == 0 {
		return nil, fmt.Errorf("membership of user %d in group %d: %w", userID, groupID, ErrNotFound)
	}
	return rels[0], nil
}

// LoadMembershipsByUser returns every membership of a user
func (s *Store) LoadMembershipsByUser(ctx context.Context, userID int64) (rels []*group.Relationship, err error) {
	defer s.observe("load_memberships", &err)

	if userID == 0 {
		return nil, nil
	}
	return s.queryRelationships(ctx, s.db,
		`plugin_id = $1 AND entity_id = $2`,
		group.MembershipPluginID, userID)
}

// resolveEntityID maps an entity onto the ID stored in relationships. Config
// entities are stored through their wrapper, which is created on demand.
func (s *Store) resolveEntityID(ctx context.Context, entity group.Entity, create bool) (int64, error) {
	et, err := s.registry.EntityType(entity.TypeID)
	if err != nil {
		return 0, err
	}
	if !et.Config {
		return entity.ID, nil
	}
	if entity.ConfigID == "" {
		return 0, nil
	}

	var w *group.ConfigWrapper
	if create {
		w, err = s.WrapConfigEntity(ctx, entity.TypeID, entity.ConfigID)
	} else {
		w, err = s.LoadWrapper(ctx, entity.TypeID, entity.ConfigID)
		if errors.Is(err, ErrNotFound) {
			return 0, nil
		}
	}
	if err != nil {
		return 0, err
	}
	return w.ID, nil
}

func entityLabel(e group.Entity) string {
	if e.ConfigID != "" {
		return e.TypeID + ":" + e.ConfigID
	}
	return e.TypeID + ":" + strconv.FormatInt(e.ID, 10)
}

func uniqueSorted(list []string) []string {
	if len(list) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, v := range list {
		if _, ok := seen[v]; ok || v == "" {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
