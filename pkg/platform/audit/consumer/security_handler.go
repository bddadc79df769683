package consumer

import (
	"context"
	"fmt"
	"log/slog"

	audit "aidledger/pkg/platform/audit"
)

// SecurityHandler archives privileged actions and raises a warning log line
// for the ones that override normal flow.
type SecurityHandler struct {
	archive Archiver
	logger  *slog.Logger
}

func NewSecurityHandler(archive Archiver, logger *slog.Logger) *SecurityHandler {
	return &SecurityHandler{archive: archive, logger: logger}
}

// SecuritySeverity grades a security event.
func SecuritySeverity(action string) string {
	switch audit.AuditEvent(action) {
	case audit.EventEmergencyAction:
		return "high"
	case audit.EventRoleGranted, audit.EventRoleRevoked, audit.EventApprovalRequired:
		return "medium"
	default:
		return "low"
	}
}

func (h *SecurityHandler) Handle(ctx context.Context, event audit.Event) error {
	severity := SecuritySeverity(event.Action)
	stored, err := h.archive.Put(ctx, event, severity)
	if err != nil {
		return fmt.Errorf("archive security event %s: %w", event.ID, err)
	}
	if !stored {
		return nil
	}

	args := []any{
		"event_id", event.ID,
		"action", event.Action,
		"actor_id", event.ActorID,
		"severity", severity,
	}
	if event.RecordID != 0 {
		args = append(args, "record_id", event.RecordID)
	}
	if event.Reason != "" {
		args = append(args, "reason", event.Reason)
	}
	if severity == "high" {
		h.logger.WarnContext(ctx, "privileged ledger action", args...)
	} else {
		h.logger.InfoContext(ctx, "privileged ledger action", args...)
	}
	return nil
}
