package storage

import (
	"database/sql"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/platinummonkey/groupaccess/pkg/group"
)

// Tables list queries are rewritten against
const (
	GroupTable        = "groups_field_data"
	RelationshipTable = "group_relationship_field_data"
)

// OpenGorm wraps an open connection pool in a gorm session for building list
// queries. The pool stays owned by the caller.
func OpenGorm(db *sql.DB, dialect string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch dialect {
	case DialectPostgres:
		dialector = postgres.New(postgres.Config{Conn: db})
	case DialectSQLite:
		dialector = sqlite.Dialector{Conn: db}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDialect, dialect)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm session: %w", err)
	}
	return gdb, nil
}

// GroupRecord is a row of the groups table as read by list queries
type GroupRecord struct {
	ID         int64  `gorm:"column:id;primaryKey"`
	UUID       string `gorm:"column:uuid"`
	Type       string `gorm:"column:type"`
	Label      string `gorm:"column:label"`
	UID        int64  `gorm:"column:uid"`
	Status     bool   `gorm:"column:status"`
	RevisionID int64  `gorm:"column:revision_id"`
	Created    int64  `gorm:"column:created"`
	Changed    int64  `gorm:"column:changed"`
}

func (GroupRecord) TableName() string { return GroupTable }

// Group converts the row
func (r GroupRecord) Group() *group.Group {
	return &group.Group{
		ID:        r.ID,
		UUID:      r.UUID,
		TypeID:    r.Type,
		Label:     r.Label,
		Owner:     r.UID,
		Published: r.Status,
		Revision:  r.RevisionID,
		Created:   time.Unix(r.Created, 0).UTC(),
		Changed:   time.Unix(r.Changed, 0).UTC(),
	}
}

// RelationshipRecord is a row of the relationships table as read by list
// queries. Role assignments are not part of the row.
type RelationshipRecord struct {
	ID        int64  `gorm:"column:id;primaryKey"`
	UUID      string `gorm:"column:uuid"`
	Type      string `gorm:"column:type"`
	GID       int64  `gorm:"column:gid"`
	EntityID  int64  `gorm:"column:entity_id"`
	PluginID  string `gorm:"column:plugin_id"`
	GroupType string `gorm:"column:group_type"`
	UID       int64  `gorm:"column:uid"`
	Created   int64  `gorm:"column:created"`
	Changed   int64  `gorm:"column:changed"`
}

func (RelationshipRecord) TableName() string { return RelationshipTable }

// Relationship converts the row
func (r RelationshipRecord) Relationship() *group.Relationship {
	return &group.Relationship{
		ID:          r.ID,
		UUID:        r.UUID,
		TypeID:      r.Type,
		GroupID:     r.GID,
		EntityID:    r.EntityID,
		PluginID:    r.PluginID,
		GroupTypeID: r.GroupType,
		Owner:       r.UID,
		Created:     time.Unix(r.Created, 0).UTC(),
		Changed:     time.Unix(r.Changed, 0).UTC(),
	}
}
