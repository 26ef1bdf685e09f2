// Package httputil holds the JSON, request parsing and middleware helpers
// shared by the HTTP handlers.
//
// Handlers answer errors as {"error": "..."} documents:
//
//	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
//	if !ok {
//		return
//	}
//	httputil.WriteJSON(w, http.StatusOK, result)
//
// Middleware composes with Chain, outermost first:
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware(logger),
//		httputil.LoggingMiddleware,
//		httputil.RateLimitMiddleware(limiter, httputil.ClientIP),
//	)(router)
package httputil
