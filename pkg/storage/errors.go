package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/platinummonkey/groupaccess/pkg/group"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = group.ErrNotFound

	// ErrInUse is returned when deleting something other rows still depend on
	ErrInUse = errors.New("still in use")

	// ErrInvalidReference is wrapped by every ReferenceError
	ErrInvalidReference = errors.New("invalid reference")

	// ErrUnsupportedDialect is returned for drivers the schema is not written for
	ErrUnsupportedDialect = errors.New("unsupported SQL dialect")
)

// ReferenceError reports a relationship that violates the constraints of its
// plugin: wrong entity type or bundle, plugin not installed, or a cardinality
// limit reached
type ReferenceError struct {
	PluginID string
	GroupID  int64
	EntityID string
	Reason   string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("cannot relate entity %s to group %d through %s: %s", e.EntityID, e.GroupID, e.PluginID, e.Reason)
}

func (e *ReferenceError) Unwrap() error {
	return ErrInvalidReference
}

// isUniqueViolation reports whether err is a unique constraint violation of
// either supported driver
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique || liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return strings.Contains(strings.ToLower(fmt.Sprint(err)), "unique constraint")
}
