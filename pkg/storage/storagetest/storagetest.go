// Package storagetest provides SQLite-backed stores and relation registries for tests.
package storagetest

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/groupaccess/pkg/group"
	"github.com/platinummonkey/groupaccess/pkg/relation"
	"github.com/platinummonkey/groupaccess/pkg/storage"
)

// Plugin IDs registered by Manifest
const (
	PagePlugin     = "node_relation:page"
	ArticlePlugin  = "node_relation:article"
	NodeTypePlugin = "node_type_relation"
)

// Manifest registers nodes with page and article bundles and node types as a
// config entity type
const Manifest = `
entity_types:
  - id: node
    label: Content
    owner: true
    publishable: true
    table: node_field_data
    id_column: nid
    owner_column: uid
    status_column: status
  - id: node_type
    label: Content type
    config: true
plugins:
  - id: node_relation:page
    label: Group node (Basic page)
    entity_type: node
    entity_bundle: page
    admin_permission: administer node_relation:page
    entity_access: true
  - id: node_relation:article
    label: Group node (Article)
    entity_type: node
    entity_bundle: article
    admin_permission: administer node_relation:article
    entity_access: true
  - id: node_type_relation
    label: Group content type
    entity_type: node_type
    admin_permission: administer node_type_relation
    entity_access: true
`

// NewRegistry returns a registry loaded with Manifest
func NewRegistry(t testing.TB) *relation.Registry {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	r := relation.NewRegistry(log)
	m, err := relation.ParseManifest([]byte(Manifest))
	require.NoError(t, err)
	require.NoError(t, r.Apply(m))
	return r
}

// OpenDB returns a migrated in-memory SQLite database
func OpenDB(t testing.TB) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, storage.RunMigrations(context.Background(), db, storage.DialectSQLite))
	return db
}

// NewStore returns a store over a fresh database and the Manifest registry
func NewStore(t testing.TB, opts ...storage.Option) *storage.Store {
	t.Helper()
	s, err := storage.New(OpenDB(t), storage.DialectSQLite, NewRegistry(t), opts...)
	require.NoError(t, err)
	return s
}

// SeedGroupType saves a group type without creator membership and installs
// the given plugins on it
func SeedGroupType(t testing.TB, s *storage.Store, id string, plugins ...string) *group.GroupType {
	t.Helper()
	ctx := context.Background()

	gt := &group.GroupType{ID: id, Label: id}
	require.NoError(t, s.SaveGroupType(ctx, gt))
	for _, p := range plugins {
		require.NoError(t, s.SaveRelationshipType(ctx, &group.RelationshipType{GroupTypeID: id, PluginID: p}))
	}
	return gt
}

// SeedRole saves a role of the group type. The ID is composed from the group
// type and suffix.
func SeedRole(t testing.TB, s *storage.Store, groupTypeID, suffix string, scope group.Scope, globalRole string, permissions ...string) *group.GroupRole {
	t.Helper()
	r := &group.GroupRole{
		ID:          group.RoleID(groupTypeID, suffix),
		Label:       suffix,
		Scope:       scope,
		GlobalRole:  globalRole,
		GroupTypeID: groupTypeID,
		Permissions: permissions,
	}
	require.NoError(t, s.SaveRole(context.Background(), r))
	return r
}

// SeedGroup creates a published group
func SeedGroup(t testing.TB, s *storage.Store, groupTypeID, label string, owner int64) *group.Group {
	t.Helper()
	g := &group.Group{TypeID: groupTypeID, Label: label, Owner: owner, Published: true}
	require.NoError(t, s.CreateGroup(context.Background(), g))
	return g
}
