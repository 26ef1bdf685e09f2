package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Supported dialects, named after their database/sql drivers
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite3"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// serialPK is substituted per dialect
const serialPK = "{{serial_pk}}"

// GetMigrations returns all schema migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create group configuration tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS group_types (
					id VARCHAR(32) PRIMARY KEY,
					label VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					new_revision BOOLEAN NOT NULL DEFAULT FALSE,
					creator_membership BOOLEAN NOT NULL DEFAULT TRUE,
					creator_wizard BOOLEAN NOT NULL DEFAULT TRUE,
					creator_roles TEXT NOT NULL DEFAULT '[]'
				);

				CREATE TABLE IF NOT EXISTS group_roles (
					id VARCHAR(64) PRIMARY KEY,
					label VARCHAR(255) NOT NULL,
					weight INTEGER NOT NULL DEFAULT 0,
					admin BOOLEAN NOT NULL DEFAULT FALSE,
					scope VARCHAR(16) NOT NULL,
					global_role VARCHAR(64),
					group_type VARCHAR(32) NOT NULL REFERENCES group_types(id) ON DELETE CASCADE,
					permissions TEXT NOT NULL DEFAULT '[]'
				);

				CREATE INDEX IF NOT EXISTS idx_group_roles_scope ON group_roles(scope, group_type);

				CREATE TABLE IF NOT EXISTS group_relationship_types (
					id VARCHAR(128) PRIMARY KEY,
					group_type VARCHAR(32) NOT NULL REFERENCES group_types(id) ON DELETE CASCADE,
					plugin_id VARCHAR(128) NOT NULL,
					plugin_config TEXT NOT NULL,
					UNIQUE(group_type, plugin_id)
				);
			`,
		},
		{
			Version:     2,
			Description: "Create group content tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS groups_field_data (
					id ` + serialPK + `,
					uuid VARCHAR(36) NOT NULL UNIQUE,
					type VARCHAR(32) NOT NULL REFERENCES group_types(id),
					label VARCHAR(255) NOT NULL,
					uid BIGINT NOT NULL DEFAULT 0,
					status BOOLEAN NOT NULL DEFAULT TRUE,
					revision_id BIGINT NOT NULL DEFAULT 1,
					created BIGINT NOT NULL,
					changed BIGINT NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_groups_type ON groups_field_data(type);

				CREATE TABLE IF NOT EXISTS group_relationship_field_data (
					id ` + serialPK + `,
					uuid VARCHAR(36) NOT NULL UNIQUE,
					type VARCHAR(128) NOT NULL REFERENCES group_relationship_types(id),
					gid BIGINT NOT NULL REFERENCES groups_field_data(id),
					entity_id BIGINT NOT NULL,
					plugin_id VARCHAR(128) NOT NULL,
					group_type VARCHAR(32) NOT NULL,
					uid BIGINT NOT NULL DEFAULT 0,
					created BIGINT NOT NULL,
					changed BIGINT NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_relationship_group ON group_relationship_field_data(gid, plugin_id, entity_id);
				CREATE INDEX IF NOT EXISTS idx_relationship_entity ON group_relationship_field_data(entity_id, plugin_id);

				CREATE TABLE IF NOT EXISTS group_relationship_roles (
					relationship_id BIGINT NOT NULL REFERENCES group_relationship_field_data(id) ON DELETE CASCADE,
					role_id VARCHAR(64) NOT NULL,
					PRIMARY KEY (relationship_id, role_id)
				);
			`,
		},
		{
			Version:     3,
			Description: "Create config wrapper table",
			SQL: `
				CREATE TABLE IF NOT EXISTS group_config_wrapper (
					id ` + serialPK + `,
					bundle VARCHAR(64) NOT NULL,
					entity_id VARCHAR(255) NOT NULL,
					UNIQUE(bundle, entity_id)
				);
			`,
		},
	}
}

func dialectSQL(dialect, stmt string) (string, error) {
	switch dialect {
	case DialectPostgres:
		return strings.ReplaceAll(stmt, serialPK, "BIGSERIAL PRIMARY KEY"), nil
	case DialectSQLite:
		return strings.ReplaceAll(stmt, serialPK, "INTEGER PRIMARY KEY AUTOINCREMENT"), nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedDialect, dialect)
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB, dialect string) error {
	if _, err := dialectSQL(dialect, ""); err != nil {
		return err
	}

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS group_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at BIGINT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM group_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if applied[migration.Version] {
			continue
		}

		stmt, err := dialectSQL(dialect, migration.SQL)
		if err != nil {
			return err
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO group_migrations (version, description, applied_at) VALUES ($1, $2, $3)",
			migration.Version, migration.Description, time.Now().Unix(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
