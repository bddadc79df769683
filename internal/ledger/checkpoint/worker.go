package checkpoint

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"aidledger/internal/ledger/store"
)

// Source is the ledger being checkpointed.
type Source interface {
	Version() uint64
	Export(now time.Time) store.Snapshot
}

// Worker saves a snapshot whenever the ledger version has moved since the
// last successful save.
type Worker struct {
	source   Source
	sink     Store
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	saved    uint64
	hasSaved bool
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

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

func NewWorker(source Source, sink Store, opts ...Option) *Worker {
	w := &Worker{
		source:   source,
		sink:     sink,
		interval: 30 * time.Second,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// MarkSaved records version as already persisted, typically after a restore.
func (w *Worker) MarkSaved(version uint64) {
	w.saved = version
	w.hasSaved = true
}

// Run checkpoints until ctx is cancelled, then makes a final save with a
// fresh context so shutdown does not lose the last commits.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if _, err := w.RunOnce(flushCtx); err != nil {
				w.logger.ErrorContext(ctx, "final ledger checkpoint failed", "error", err)
			}
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.WarnContext(ctx, "ledger checkpoint failed", "error", err)
			}
		}
	}
}

// RunOnce saves a snapshot if the ledger changed. It reports whether a
// checkpoint was written.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	if w.hasSaved && w.source.Version() == w.saved {
		return false, nil
	}
	snap := w.source.Export(w.now())
	if w.hasSaved && snap.Version == w.saved {
		return false, nil
	}
	if err := w.sink.Save(ctx, snap); err != nil {
		return false, fmt.Errorf("save checkpoint %d: %w", snap.Version, err)
	}
	w.MarkSaved(snap.Version)
	w.logger.DebugContext(ctx, "ledger checkpoint saved", "version", snap.Version)
	return true, nil
}
