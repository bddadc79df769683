package testutil

import (
	"context"
	"net/http"
	"time"

	id "aidledger/pkg/domain"
	"aidledger/pkg/requestcontext"
)

// WithActor adds the caller identity to the request context.
// This simulates what the auth middleware would do for authenticated requests.
// An invalid identity leaves the request anonymous.
func WithActor(req *http.Request, actor string) *http.Request {
	if parsed, err := id.ParseIdentity(actor); err == nil {
		return req.WithContext(requestcontext.WithActor(req.Context(), parsed))
	}
	return req
}

// WithRequestTime pins the request time seen by the ledger.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
