package service

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"aidledger/internal/ledger/models"
	"aidledger/internal/ledger/roles"
	"aidledger/internal/ledger/store"
	id "aidledger/pkg/domain"
	dErrors "aidledger/pkg/domain-errors"
	audit "aidledger/pkg/platform/audit"
	"aidledger/pkg/requestcontext"
)

type transitionKey struct {
	from models.Status
	to   models.Status
}

// transitionRule is one allowed edge of the record lifecycle: who may take it
// and what it stamps on the record.
type transitionRule struct {
	roles []roles.Role
	apply func(r *models.AidRecord, actor id.Identity, now time.Time)
}

// transitions is the lifecycle table for UpdateStatus. Cancellation is not
// here; it only happens through EmergencyCancel.
var transitions = map[transitionKey]transitionRule{
	{models.StatusPending, models.StatusApproved}: {
		roles: roles.Approvers,
		apply: func(r *models.AidRecord, actor id.Identity, _ time.Time) { r.ApplyApproval(actor) },
	},
	{models.StatusPending, models.StatusRejected}: {
		roles: roles.Approvers,
	},
	{models.StatusApproved, models.StatusDisbursed}: {
		roles: roles.Operators,
		apply: func(r *models.AidRecord, _ id.Identity, now time.Time) { r.ApplyDisbursement(now) },
	},
	{models.StatusDisbursed, models.StatusCompleted}: {
		roles: roles.Operators,
	},
}

// lookupTransition returns the rule for moving from -> to.
func lookupTransition(from, to models.Status) (transitionRule, error) {
	if from == to {
		return transitionRule{}, dErrors.Wrap(models.ErrNoOpTransition, dErrors.CodeIllegalTransition,
			"record is already "+string(to))
	}
	rule, ok := transitions[transitionKey{from, to}]
	if !ok {
		return transitionRule{}, dErrors.Wrap(models.ErrIllegalTransition, dErrors.CodeIllegalTransition,
			"cannot move record from "+string(from)+" to "+string(to))
	}
	return rule, nil
}

// UpdateStatus moves a record along the lifecycle table.
func (s *Service) UpdateStatus(ctx context.Context, actor id.Identity, recordID id.RecordID, next models.Status, notes string) (record *models.AidRecord, err error) {
	ctx, end := s.begin(ctx, "update_status",
		attribute.Int64("record.id", int64(recordID)),
		attribute.String("status.to", next.String()),
	)
	defer end(&err)

	if !next.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown status: "+string(next))
	}
	held, err := s.resolveRoles(ctx, actor)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	notes = strings.TrimSpace(notes)
	var from models.Status
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		if tx.Paused() {
			return systemPaused()
		}
		if !held.any(roles.Operators...) {
			return notAuthorized("changing status requires the AidOfficer, Supervisor or Admin role")
		}
		r, err := tx.Record(recordID)
		if err != nil {
			return recordNotFound()
		}
		rule, err := lookupTransition(r.Status, next)
		if err != nil {
			return err
		}
		if !held.any(rule.roles...) {
			return notAuthorized("moving a record to " + string(next) + " requires the Supervisor or Admin role")
		}

		from = r.Status
		r.ApplyStatus(next, notes, now)
		if rule.apply != nil {
			rule.apply(r, actor, now)
		}
		if err := tx.SaveRecord(r); err != nil {
			return err
		}
		if err := tx.AppendHistory(r.ID, models.TransitionEntry(from, next, actor, notes, now)); err != nil {
			return err
		}
		record = r
		return nil
	})
	if err != nil {
		return nil, coded(err, "failed to update status")
	}

	if s.metrics != nil {
		s.metrics.IncrementTransition(from.String(), next.String())
	}
	s.logAudit(ctx, string(audit.EventStatusChanged),
		"actor", actor,
		"record_id", record.ID,
		"program_id", record.ProgramID,
		"amount", record.Amount,
		"from", from,
		"to", next,
		"reason", notes,
	)
	return record, nil
}

// EmergencyCancel forces a Pending or Approved record to Cancelled and refunds
// its amount to the program. Admin only, and allowed while paused. The claim
// markers stay: a cancelled claim still used up the beneficiary's eligibility.
func (s *Service) EmergencyCancel(ctx context.Context, actor id.Identity, recordID id.RecordID, reason string) (record *models.AidRecord, err error) {
	ctx, end := s.begin(ctx, "emergency_cancel", attribute.Int64("record.id", int64(recordID)))
	defer end(&err)

	held, err := s.resolveRoles(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !held.any(roles.RoleAdmin) {
		return nil, notAuthorized("emergency cancellation requires the Admin role")
	}

	now := requestcontext.Now(ctx)
	reason = strings.TrimSpace(reason)
	var from models.Status
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		r, err := tx.Record(recordID)
		if err != nil {
			return recordNotFound()
		}
		switch r.Status {
		case models.StatusPending, models.StatusApproved:
		case models.StatusCompleted:
			return dErrors.Wrap(models.ErrAlreadyCompleted, dErrors.CodeAlreadyCompleted, "record already completed")
		default:
			return dErrors.Wrap(models.ErrIllegalTransition, dErrors.CodeIllegalTransition,
				"cannot cancel a record that is "+string(r.Status))
		}

		program, err := tx.Program(r.ProgramID)
		if err != nil {
			return programNotFound()
		}
		if err := program.CanRefund(r.Amount); err != nil {
			return err
		}
		program.ApplyRefund(r.Amount, now)
		if err := tx.SaveProgram(program); err != nil {
			return err
		}

		from = r.Status
		r.ApplyStatus(models.StatusCancelled, "", now)
		if err := tx.SaveRecord(r); err != nil {
			return err
		}
		if err := tx.AppendHistory(r.ID, models.TransitionEntry(from, models.StatusCancelled, actor, reason, now)); err != nil {
			return err
		}
		tx.LogEmergency(models.EmergencyAction{
			At:       now,
			Actor:    actor,
			Kind:     models.EmergencyCancel,
			RecordID: r.ID,
			Reason:   reason,
		})
		record = r
		return nil
	})
	if err != nil {
		return nil, coded(err, "failed to cancel record")
	}

	if s.metrics != nil {
		s.metrics.IncrementTransition(from.String(), models.StatusCancelled.String())
		s.metrics.IncrementEmergency(string(models.EmergencyCancel))
	}
	s.logAudit(ctx, string(audit.EventEmergencyAction),
		"actor", actor,
		"record_id", record.ID,
		"program_id", record.ProgramID,
		"amount", record.Amount,
		"from", from,
		"to", models.StatusCancelled,
		"reason", reason,
		"kind", string(models.EmergencyCancel),
	)
	return record, nil
}

// UpdatePaymentDocumentation replaces the document reference and disbursement
// method of a non-terminal record. The method is free text.
func (s *Service) UpdatePaymentDocumentation(ctx context.Context, actor id.Identity, recordID id.RecordID, contentReference, method string) (record *models.AidRecord, err error) {
	ctx, end := s.begin(ctx, "update_payment_documentation", attribute.Int64("record.id", int64(recordID)))
	defer end(&err)

	held, err := s.resolveRoles(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !held.any(roles.Operators...) {
		return nil, notAuthorized("documenting payments requires the AidOfficer, Supervisor or Admin role")
	}

	now := requestcontext.Now(ctx)
	contentReference = strings.TrimSpace(contentReference)
	method = strings.TrimSpace(method)
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		r, err := tx.Record(recordID)
		if err != nil {
			return recordNotFound()
		}
		if err := r.CanDocumentPayment(); err != nil {
			return err
		}
		r.ApplyPaymentDocumentation(contentReference, method, now)
		if err := tx.SaveRecord(r); err != nil {
			return err
		}
		if err := tx.AppendHistory(r.ID, models.DocumentationEntry(method, actor, now)); err != nil {
			return err
		}
		record = r
		return nil
	})
	if err != nil {
		return nil, coded(err, "failed to update payment documentation")
	}

	s.logAudit(ctx, string(audit.EventPaymentDocumented),
		"actor", actor,
		"record_id", record.ID,
		"program_id", record.ProgramID,
		"reason", method,
	)
	return record, nil
}

// Pause stops IssueAid and UpdateStatus until Unpause. Admin only. Pausing
// an already paused ledger changes nothing and logs nothing.
func (s *Service) Pause(ctx context.Context, actor id.Identity, reason string) error {
	return s.setPaused(ctx, actor, true, reason)
}

// Unpause lifts a pause. Admin only.
func (s *Service) Unpause(ctx context.Context, actor id.Identity, reason string) error {
	return s.setPaused(ctx, actor, false, reason)
}

func (s *Service) setPaused(ctx context.Context, actor id.Identity, paused bool, reason string) (err error) {
	kind := models.EmergencyUnpause
	if paused {
		kind = models.EmergencyPause
	}
	ctx, end := s.begin(ctx, string(kind))
	defer end(&err)

	held, err := s.resolveRoles(ctx, actor)
	if err != nil {
		return err
	}
	if !held.any(roles.RoleAdmin) {
		return notAuthorized(string(kind) + " requires the Admin role")
	}

	now := requestcontext.Now(ctx)
	reason = strings.TrimSpace(reason)
	changed := false
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		if tx.Paused() == paused {
			return nil
		}
		tx.SetPaused(paused)
		tx.LogEmergency(models.EmergencyAction{At: now, Actor: actor, Kind: kind, Reason: reason})
		changed = true
		return nil
	})
	if err != nil {
		return coded(err, "failed to change pause state")
	}
	if !changed {
		return nil
	}

	if s.metrics != nil {
		s.metrics.SetPaused(paused)
		s.metrics.IncrementEmergency(string(kind))
	}
	s.logAudit(ctx, string(audit.EventEmergencyAction),
		"actor", actor,
		"reason", reason,
		"kind", string(kind),
	)
	return nil
}

// SetApprovalRequired decides whether new records start Pending (true) or
// Approved (false). Admin only. Existing records are not touched.
func (s *Service) SetApprovalRequired(ctx context.Context, actor id.Identity, required bool) (err error) {
	ctx, end := s.begin(ctx, "set_approval_required", attribute.Bool("approval.required", required))
	defer end(&err)

	held, err := s.resolveRoles(ctx, actor)
	if err != nil {
		return err
	}
	if !held.any(roles.RoleAdmin) {
		return notAuthorized("changing the approval requirement requires the Admin role")
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		tx.SetApprovalRequired(required)
		return nil
	})
	if err != nil {
		return coded(err, "failed to change approval requirement")
	}

	s.logAudit(ctx, string(audit.EventApprovalRequired),
		"actor", actor,
		"approval_required", required,
	)
	return nil
}
