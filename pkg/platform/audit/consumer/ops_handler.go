package consumer

import (
	"context"
	"fmt"
	"log/slog"

	audit "aidledger/pkg/platform/audit"
)

// OpsHandler archives routine administrative events.
type OpsHandler struct {
	archive Archiver
	logger  *slog.Logger
}

func NewOpsHandler(archive Archiver, logger *slog.Logger) *OpsHandler {
	return &OpsHandler{archive: archive, logger: logger}
}

func (h *OpsHandler) Handle(ctx context.Context, event audit.Event) error {
	if _, err := h.archive.Put(ctx, event, "low"); err != nil {
		return fmt.Errorf("archive ops event %s: %w", event.ID, err)
	}
	h.logger.DebugContext(ctx, "ops event archived", "event_id", event.ID, "action", event.Action)
	return nil
}
