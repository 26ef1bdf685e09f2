package access

import "errors"

// ErrUnsupportedOperation is returned for group operations other than view, update and delete
var ErrUnsupportedOperation = errors.New("unsupported operation")
