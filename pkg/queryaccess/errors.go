package queryaccess

import "errors"

var (
	// ErrUnsupportedOperation is returned for operations list queries cannot be
	// filtered by
	ErrUnsupportedOperation = errors.New("operation not supported by query access")

	// ErrRewriteReused is added to a query when a Rewrite is applied a second time
	ErrRewriteReused = errors.New("query rewrite already applied")
)
