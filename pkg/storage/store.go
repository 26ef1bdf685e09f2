package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/platinummonkey/groupaccess/pkg/events"
	"github.com/platinummonkey/groupaccess/pkg/group"
	"github.com/platinummonkey/groupaccess/pkg/observability"
	"github.com/platinummonkey/groupaccess/pkg/relation"
)

// Store persists groups, their configuration and relationships
type Store struct {
	db        *sql.DB
	dialect   string
	registry  *relation.Registry
	publisher events.Publisher
	metrics   *observability.Metrics
	logger    *observability.Logger
	now       func() time.Time

	roleMu    sync.RWMutex
	roleCache map[userGroupKey]map[string][]*group.GroupRole
}

// Option configures a Store
type Option func(*Store)

// WithPublisher sets the publisher committed changes are announced on
func WithPublisher(p events.Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

// WithMetrics records storage operations
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *observability.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides the time source used for created/changed timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a store over an open connection. The schema must already exist,
// see RunMigrations.
func New(db *sql.DB, dialect string, registry *relation.Registry, opts ...Option) (*Store, error) {
	if _, err := dialectSQL(dialect, ""); err != nil {
		return nil, err
	}
	if registry == nil {
		return nil, fmt.Errorf("storage: relation registry is required")
	}

	s := &Store{
		db:        db,
		dialect:   dialect,
		registry:  registry,
		publisher: events.Nop{},
		now:       time.Now,
		roleCache: make(map[userGroupKey]map[string][]*group.GroupRole),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return s, nil
}

// DB returns the underlying connection
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL dialect of the connection
func (s *Store) Dialect() string {
	return s.dialect
}

// Registry returns the relation plugin registry the store validates against
func (s *Store) Registry() *relation.Registry {
	return s.registry
}

// querier is satisfied by *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// publish announces committed changes. The write already succeeded, so a
// failing subscriber is logged and reported but nothing is rolled back.
func (s *Store) publish(ctx context.Context, evs ...events.Event) error {
	if len(evs) == 0 {
		return nil
	}
	if err := s.publisher.Publish(ctx, evs...); err != nil {
		s.logger.WithError(err).WithField("events", len(evs)).Error("Failed to publish storage events")
		return fmt.Errorf("publish events: %w", err)
	}
	return nil
}

func (s *Store) observe(operation string, err *error) {
	s.metrics.RecordStorageOperation(operation, *err)
}

// placeholders returns "$from, $from+1, ..." for n arguments
func placeholders(from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "$" + strconv.Itoa(from+i)
	}
	return strings.Join(parts, ", ")
}

func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
