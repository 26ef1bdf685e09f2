package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/groupaccess/pkg/events"
	"github.com/platinummonkey/groupaccess/pkg/group"
)

// CreateGroup inserts a new group. When its type has creator membership
// enabled the owner becomes a member with the type's creator roles.
func (s *Store) CreateGroup(ctx context.Context, g *group.Group) (err error) {
	defer s.observe("create_group", &err)

	if g.ID != 0 {
		return fmt.Errorf("group %d already exists", g.ID)
	}
	t, err := s.loadGroupType(ctx, s.db, g.TypeID)
	if err != nil {
		return err
	}

	var membershipType *group.RelationshipType
	if t.CreatorMembership && g.Owner != 0 {
		membershipType, err = s.RelationshipTypeFor(ctx, t.ID, group.MembershipPluginID)
		if err != nil {
			return fmt.Errorf("creator membership of %s: %w", t.ID, err)
		}
	}

	now := s.now()
	if g.UUID == "" {
		g.UUID = uuid.NewString()
	}
	g.Revision = 1
	g.Created = unixTime(now.Unix())
	g.Changed = g.Created

	var membership *group.Relationship
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO groups_field_data (uuid, type, label, uid, status, revision_id, created, changed)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id
		`, g.UUID, g.TypeID, g.Label, g.Owner, g.Published, g.Revision, g.Created.Unix(), g.Changed.Unix()).Scan(&g.ID)
		if err != nil {
			return fmt.Errorf("failed to create group: %w", err)
		}

		if membershipType == nil {
			return nil
		}
		membership = &group.Relationship{
			TypeID:      membershipType.ID,
			GroupID:     g.ID,
			EntityID:    g.Owner,
			PluginID:    group.MembershipPluginID,
			GroupTypeID: t.ID,
			RoleIDs:     append([]string(nil), t.CreatorRoles...),
			Owner:       g.Owner,
		}
		if err := s.checkMembershipRoles(ctx, tx, g, membership.RoleIDs); err != nil {
			return err
		}
		return s.insertRelationship(ctx, tx, membership)
	})
	if err != nil {
		g.ID = 0
		return err
	}

	evs := []events.Event{events.GroupSaved{Group: g}}
	if membership != nil {
		evs = append(evs, events.RelationshipSaved{Relationship: membership})
	}
	return s.publish(ctx, evs...)
}

// UpdateGroup stores changes to an existing group. The type and owner-facing
// identifiers are kept from the stored row.
func (s *Store) UpdateGroup(ctx context.Context, g *group.Group) (err error) {
	defer s.observe("update_group", &err)

	original, err := s.loadGroup(ctx, s.db, g.ID)
	if err != nil {
		return err
	}
	t, err := s.loadGroupType(ctx, s.db, original.TypeID)
	if err != nil {
		return err
	}

	g.UUID = original.UUID
	g.TypeID = original.TypeID
	g.Created = original.Created
	g.Revision = original.Revision
	if t.NewRevision {
		g.Revision++
	}
	g.Changed = unixTime(s.now().Unix())

	_, err = s.db.ExecContext(ctx, `
		UPDATE groups_field_data
		SET label = $1, uid = $2, status = $3, revision_id = $4, changed = $5
		WHERE id = $6
	`, g.Label, g.Owner, g.Published, g.Revision, g.Changed.Unix(), g.ID)
	if err != nil {
		return fmt.Errorf("failed to update group %d: %w", g.ID, err)
	}

	return s.publish(ctx, events.GroupSaved{Group: g, Original: original})
}

const groupColumns = `id, uuid, type, label, uid, status, revision_id, created, changed`

func scanGroup(row interface{ Scan(...any) error }) (*group.Group, error) {
	var g group.Group
	var created, changed int64
	if err := row.Scan(&g.ID, &g.UUID, &g.TypeID, &g.Label, &g.Owner, &g.Published, &g.Revision, &created, &changed); err != nil {
		return nil, err
	}
	g.Created = unixTime(created)
	g.Changed = unixTime(changed)
	return &g, nil
}

// LoadGroup loads a group by ID
func (s *Store) LoadGroup(ctx context.Context, id int64) (g *group.Group, err error) {
	defer s.observe("load_group", &err)
	return s.loadGroup(ctx, s.db, id)
}

func (s *Store) loadGroup(ctx context.Context, q querier, id int64) (*group.Group, error) {
	g, err := scanGroup(q.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM groups_field_data WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("group %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load group %d: %w", id, err)
	}
	return g, nil
}

// ListGroups returns the groups of a type, or all groups when groupTypeID is empty
func (s *Store) ListGroups(ctx context.Context, groupTypeID string) (groups []*group.Group, err error) {
	defer s.observe("list_groups", &err)

	query := `SELECT ` + groupColumns + ` FROM groups_field_data`
	var args []any
	if groupTypeID != "" {
		query += ` WHERE type = $1`
		args = append(args, groupTypeID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// DeleteGroup deletes a group and every relationship it holds
func (s *Store) DeleteGroup(ctx context.Context, id int64) (err error) {
	defer s.observe("delete_group", &err)

	g, err := s.loadGroup(ctx, s.db, id)
	if err != nil {
		return err
	}
	rels, err := s.queryRelationships(ctx, s.db, `gid = $1`, id)
	if err != nil {
		return err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := deleteRelationshipRows(ctx, tx, rels); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM groups_field_data WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete group %d: %w", id, err)
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
	evs = append(evs, events.GroupDeleted{Group: g})
	return s.publish(ctx, evs...)
}
