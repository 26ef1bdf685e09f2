package httpapi

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/groupaccess/pkg/access"
	"github.com/platinummonkey/groupaccess/pkg/group"
	"github.com/platinummonkey/groupaccess/pkg/httputil"
	"github.com/platinummonkey/groupaccess/pkg/observability"
	"github.com/platinummonkey/groupaccess/pkg/queryaccess"
	"github.com/platinummonkey/groupaccess/pkg/relation"
)

// ErrInvalidAccount is returned for a malformed X-Account-ID header
var ErrInvalidAccount = errors.New("invalid account")

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	var validation *group.ValidationError
	switch {
	case errors.Is(err, group.ErrNotFound),
		errors.Is(err, relation.ErrUnknownPlugin),
		errors.Is(err, relation.ErrUnknownEntityType):
		return http.StatusNotFound
	case errors.Is(err, access.ErrUnsupportedOperation),
		errors.Is(err, queryaccess.ErrUnsupportedOperation),
		errors.Is(err, ErrInvalidAccount),
		errors.As(err, &validation):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeError answers with the mapped status; server errors are logged and
// their message withheld
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		observability.FromContext(r.Context()).WithError(err).Error("Request failed")
		httputil.WriteErrorMessage(w, status, http.StatusText(status))
		return
	}
	httputil.WriteError(w, status, err)
}
