// Package requesttime pins one "now" per request so eligibility windows,
// history entries and audit events inside a request agree on the time.
package requesttime

import (
	"net/http"
	"time"

	"aidledger/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
