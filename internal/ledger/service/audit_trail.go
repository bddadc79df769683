package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"aidledger/internal/ledger/roles"
	id "aidledger/pkg/domain"
	dErrors "aidledger/pkg/domain-errors"
	audit "aidledger/pkg/platform/audit"
	"aidledger/pkg/platform/audit/publisher"
)

// AuditTrail returns the audit events emitted for a record, oldest first.
// Admin, Supervisor or Auditor only. Events are emitted after commit, so the
// trail can briefly lag the record.
func (s *Service) AuditTrail(ctx context.Context, actor id.Identity, recordID id.RecordID) (events []audit.Event, err error) {
	ctx, end := s.begin(ctx, "audit_trail", attribute.Int64("record.id", int64(recordID)))
	defer end(&err)

	ok, err := roles.HasAny(ctx, s.roles, actor, roles.Reviewers...)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve roles")
	}
	if !ok {
		return nil, notAuthorized("only Admin, Supervisor or Auditor may read the audit trail")
	}
	if _, err := s.GetAidRecord(ctx, recordID); err != nil {
		return nil, err
	}
	if s.auditTrail == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "audit trail is not kept")
	}

	events, err = s.auditTrail.List(ctx, recordID)
	if errors.Is(err, publisher.ErrListUnsupported) {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "audit trail is not kept")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit trail")
	}
	if events == nil {
		events = []audit.Event{}
	}
	return events, nil
}
