package permissions

import "errors"

var (
	// ErrUnsupportedScope is returned when a calculator is asked for a scope it does not handle
	ErrUnsupportedScope = errors.New("unsupported permission scope")

	// ErrNoCalculators is returned by a chain without calculators
	ErrNoCalculators = errors.New("no permission calculators configured")
)
