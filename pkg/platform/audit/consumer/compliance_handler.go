package consumer

import (
	"context"
	"fmt"
	"log/slog"

	audit "aidledger/pkg/platform/audit"
)

// ComplianceHandler archives money and lifecycle events for the full
// retention period.
type ComplianceHandler struct {
	archive Archiver
	logger  *slog.Logger
}

func NewComplianceHandler(archive Archiver, logger *slog.Logger) *ComplianceHandler {
	return &ComplianceHandler{archive: archive, logger: logger}
}

// Handle archives the event. Events without a program or actor cannot be
// reconciled and are logged and skipped.
func (h *ComplianceHandler) Handle(ctx context.Context, event audit.Event) error {
	if event.ProgramID == "" || event.ActorID.IsNil() {
		h.logger.WarnContext(ctx, "incomplete compliance event, skipping",
			"event_id", event.ID,
			"action", event.Action,
		)
		return nil
	}

	severity := "normal"
	if event.Action == string(audit.EventStatusChanged) && event.ToStatus == "Rejected" {
		severity = "notice"
	}
	stored, err := h.archive.Put(ctx, event, severity)
	if err != nil {
		return fmt.Errorf("archive compliance event %s: %w", event.ID, err)
	}
	if !stored {
		h.logger.DebugContext(ctx, "compliance event already archived", "event_id", event.ID)
	}
	return nil
}
