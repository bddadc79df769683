// Package worker relays audit events from the Postgres outbox to a stream sink.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	audit "aidledger/pkg/platform/audit"
	"aidledger/pkg/platform/audit/store/postgres"
)

// Outbox is the subset of the outbox store the relay needs.
type Outbox interface {
	ListUnpublished(ctx context.Context, limit int) ([]postgres.Pending, error)
	MarkPublished(ctx context.Context, outboxID string, at time.Time) error
}

// Worker polls the outbox and forwards unpublished events in creation order.
// An event is marked published only after the sink accepted it, so delivery is
// at least once.
type Worker struct {
	outbox    Outbox
	sink      audit.Store
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

// Option configures the Worker.
type Option func(*Worker)

func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func NewWorker(outbox Outbox, sink audit.Store, opts ...Option) *Worker {
	w := &Worker{
		outbox:    outbox,
		sink:      sink,
		interval:  time.Second,
		batchSize: 100,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run relays until ctx is cancelled. Relay errors are logged and retried on
// the next tick.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.RelayOnce(ctx); err != nil {
				w.logger.WarnContext(ctx, "audit outbox relay failed", "error", err)
			}
		}
	}
}

// RelayOnce forwards one batch and returns how many events were published.
// It stops at the first sink failure so ordering is preserved.
func (w *Worker) RelayOnce(ctx context.Context) (int, error) {
	pending, err := w.outbox.ListUnpublished(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list outbox: %w", err)
	}
	published := 0
	for _, p := range pending {
		if err := w.sink.Append(ctx, p.Event); err != nil {
			return published, fmt.Errorf("forward outbox entry %s: %w", p.OutboxID, err)
		}
		if err := w.outbox.MarkPublished(ctx, p.OutboxID, time.Now()); err != nil {
			return published, err
		}
		published++
	}
	return published, nil
}
