package audit

import (
	"context"
	"time"

	id "aidledger/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal or financial significance.
	// Every movement of money or of a record's lifecycle lands here and is
	// kept for the full retention period.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers privileged actions: emergency overrides, pause
	// switches and role changes.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine administrative activity.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from ledger logic after a mutation commits. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string
	Category  EventCategory
	Timestamp time.Time
	Action    string
	// ActorID is the identity that performed the action.
	ActorID   id.Identity
	RecordID  id.RecordID
	ProgramID id.ProgramID
	Amount    uint64
	// FromStatus and ToStatus are set on lifecycle events.
	FromStatus string
	ToStatus   string
	Reason     string
	RequestID  string
}

// Store persists audit events. Implementations must be safe for concurrent use.
type Store interface {
	Append(ctx context.Context, event Event) error
}

type AuditEvent string

const (
	// Record events
	EventAidIssued         AuditEvent = "aid_issued"
	EventStatusChanged     AuditEvent = "status_changed"
	EventPaymentDocumented AuditEvent = "payment_documented"

	// Program events
	EventProgramCreated AuditEvent = "program_created"
	EventProgramUpdated AuditEvent = "program_updated"

	// Emergency and access events
	EventEmergencyAction  AuditEvent = "emergency_action"
	EventRoleGranted      AuditEvent = "role_granted"
	EventRoleRevoked      AuditEvent = "role_revoked"
	EventApprovalRequired AuditEvent = "approval_requirement_changed"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	EventAidIssued:         CategoryCompliance,
	EventStatusChanged:     CategoryCompliance,
	EventPaymentDocumented: CategoryCompliance,

	EventEmergencyAction:  CategorySecurity,
	EventRoleGranted:      CategorySecurity,
	EventRoleRevoked:      CategorySecurity,
	EventApprovalRequired: CategorySecurity,

	EventProgramCreated: CategoryOperations,
	EventProgramUpdated: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
