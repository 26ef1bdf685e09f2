package relation

import "errors"

var (
	// ErrUnknownPlugin is returned when no relation plugin is registered under an ID
	ErrUnknownPlugin = errors.New("unknown relation plugin")

	// ErrUnknownEntityType is returned when an entity type descriptor is missing
	ErrUnknownEntityType = errors.New("unknown entity type")

	// ErrDuplicatePlugin is returned when a plugin ID is registered twice
	ErrDuplicatePlugin = errors.New("relation plugin already registered")

	// ErrInvalidDefinition is returned for incomplete plugin definitions
	ErrInvalidDefinition = errors.New("invalid relation plugin definition")
)
