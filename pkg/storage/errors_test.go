package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"postgres unique", &pq.Error{Code: "23505"}, true},
		{"postgres other", &pq.Error{Code: "23503"}, false},
		{"sqlite unique", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, true},
		{"sqlite not null", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintNotNull}, false},
		{"wrapped", fmt.Errorf("insert: %w", &pq.Error{Code: "23505"}), true},
		{"plain", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUniqueViolation(tt.err))
		})
	}
}

func TestReferenceError(t *testing.T) {
	err := &ReferenceError{PluginID: "node_relation:page", GroupID: 3, EntityID: "node:9", Reason: "entity has no ID"}
	assert.ErrorIs(t, err, ErrInvalidReference)
	assert.Equal(t, "cannot relate entity node:9 to group 3 through node_relation:page: entity has no ID", err.Error())
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "$2, $3, $4", placeholders(2, 3))
	assert.Equal(t, "", placeholders(1, 0))
}
