//go:build integration

package storage_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/groupaccess/pkg/group"
	"github.com/platinummonkey/groupaccess/pkg/storage"
	"github.com/platinummonkey/groupaccess/pkg/storage/storagetest"
)

// setupPostgresStore starts a PostgreSQL container and returns a migrated store
func setupPostgresStore(t *testing.T) *storage.Store {
	t.Helper()
	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("groupaccess_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := postgresContainer.Terminate(cleanupCtx); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Ping())

	require.NoError(t, storage.RunMigrations(ctx, db, storage.DialectPostgres))
	s, err := storage.New(db, storage.DialectPostgres, storagetest.NewRegistry(t))
	require.NoError(t, err)
	return s
}

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()
	s := setupPostgresStore(t)

	storagetest.SeedGroupType(t, s, "club", storagetest.PagePlugin, storagetest.NodeTypePlugin)
	storagetest.SeedRole(t, s, "club", "member", group.ScopeIndividual, "", "view group")
	g := storagetest.SeedGroup(t, s, "club", "Chess", 1)

	m, err := s.AddMember(ctx, g, group.Account{ID: 5}, "club-member")
	require.NoError(t, err)
	assert.Equal(t, []string{"club-member"}, m.RoleIDs)

	_, err = s.AddRelationship(ctx, g, storagetest.PagePlugin, group.Entity{TypeID: "node", ID: 1, Bundle: "page"}, 5)
	require.NoError(t, err)
	_, err = s.AddRelationship(ctx, g, storagetest.PagePlugin, group.Entity{TypeID: "node", ID: 1, Bundle: "page"}, 5)
	assert.ErrorIs(t, err, storage.ErrInvalidReference)

	w1, err := s.WrapConfigEntity(ctx, "node_type", "page")
	require.NoError(t, err)
	w2, err := s.WrapConfigEntity(ctx, "node_type", "page")
	require.NoError(t, err)
	assert.Equal(t, w1.ID, w2.ID)

	require.NoError(t, s.DeleteGroup(ctx, g.ID))
	memberships, err := s.LoadMembershipsByUser(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, memberships)
}
