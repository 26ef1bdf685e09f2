package group

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMachineName is returned for IDs that are not lowercase machine names
	ErrInvalidMachineName = errors.New("invalid machine name")

	// ErrIDTooLong is returned when a group type ID leaves no room for role suffixes
	ErrIDTooLong = errors.New("id too long")

	// ErrInvalidScope is returned for a missing or unknown role scope
	ErrInvalidScope = errors.New("invalid scope")

	// ErrMissingGlobalRole is returned when a synchronized role has no global role
	ErrMissingGlobalRole = errors.New("synchronized role requires a global role")

	// ErrAnonymousInsider is returned when an insider role targets the anonymous role
	ErrAnonymousInsider = errors.New("insider role cannot target the anonymous role")

	// ErrMissingGroupType is returned when a role or relationship type has no group type
	ErrMissingGroupType = errors.New("group type is required")

	// ErrNotFound is returned by collaborators when a lookup matches nothing,
	// including a membership lookup for a non-member
	ErrNotFound = errors.New("not found")

	// ErrUnknownPluginConfig is returned when a plugin configuration kind is not recognized
	ErrUnknownPluginConfig = errors.New("unknown plugin configuration kind")
)

// ValidationError reports a configuration invariant violated at save time
type ValidationError struct {
	Entity string
	ID     string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Entity, e.ID, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(entity, id string, err error) error {
	return &ValidationError{Entity: entity, ID: id, Err: err}
}
