// Package consumer reads the audit stream and archives each event according
// to its category.
package consumer

import (
	"context"
	"log/slog"

	audit "aidledger/pkg/platform/audit"
)

// Handler processes one decoded audit event. Returning an error means the
// event was not handled and must be retried.
type Handler interface {
	Handle(ctx context.Context, event audit.Event) error
}

// Archiver stores an event with a severity label. It reports false for an
// event that was already stored.
type Archiver interface {
	Put(ctx context.Context, event audit.Event, severity string) (bool, error)
}

// Router dispatches events to category-specific handlers.
type Router struct {
	handlers map[audit.EventCategory]Handler
	fallback Handler
	logger   *slog.Logger
}

// NewRouter creates a category router with an optional fallback handler.
func NewRouter(logger *slog.Logger, fallback Handler) *Router {
	return &Router{
		handlers: make(map[audit.EventCategory]Handler),
		fallback: fallback,
		logger:   logger,
	}
}

// Register adds a handler for a specific category.
func (r *Router) Register(category audit.EventCategory, handler Handler) {
	r.handlers[category] = handler
}

// Handle routes the event to the handler for its category.
func (r *Router) Handle(ctx context.Context, event audit.Event) error {
	category := audit.AuditEvent(event.Action).Category()
	handler, ok := r.handlers[category]
	if !ok {
		if r.fallback != nil {
			return r.fallback.Handle(ctx, event)
		}
		r.logger.WarnContext(ctx, "no handler for audit category, skipping event",
			"category", category,
			"event_id", event.ID,
		)
		return nil
	}
	return handler.Handle(ctx, event)
}
