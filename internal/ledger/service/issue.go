package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"aidledger/internal/ledger/models"
	"aidledger/internal/ledger/roles"
	"aidledger/internal/ledger/store"
	id "aidledger/pkg/domain"
	dErrors "aidledger/pkg/domain-errors"
	audit "aidledger/pkg/platform/audit"
	"aidledger/pkg/platform/sentinel"
	"aidledger/pkg/requestcontext"
)

// IssueAid records one aid claim for a beneficiary under a program.
//
// Checks run in a fixed order: pause flag, caller role, program window,
// existing claim, input fields, full eligibility. Only when all pass does the
// record get an id, its claim markers, its index entries, the program budget
// reservation and its creation history. All of it commits together or not at
// all; the issuance notification goes out after commit.
func (s *Service) IssueAid(ctx context.Context, actor id.Identity, params models.RecordParams) (record *models.AidRecord, err error) {
	ctx, end := s.begin(ctx, "issue_aid", attribute.String("program.id", params.ProgramID.String()))
	defer end(&err)

	held, err := s.resolveRoles(ctx, actor)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		if tx.Paused() {
			return systemPaused()
		}
		if !held.any(roles.Operators...) {
			return notAuthorized("issuing aid requires the AidOfficer, Supervisor or Admin role")
		}

		program, err := tx.Program(params.ProgramID)
		if err != nil {
			return programNotFound()
		}
		if err := program.CheckWindow(now); err != nil {
			return err
		}

		if tx.IsClaimed(id.NewClaimKey(params.BeneficiaryHash, params.ProgramID)) {
			return dErrors.Wrap(models.ErrAlreadyClaimed, dErrors.CodeDuplicateClaim,
				"beneficiary already claimed aid under this program")
		}

		if params.BeneficiaryHash == "" {
			return dErrors.New(dErrors.CodeValidation, "beneficiary hash is required")
		}
		if err := params.Validate(); err != nil {
			return err
		}
		if err := program.CheckEligibility(params.Amount, params.Category, now); err != nil {
			return err
		}

		initial := models.StatusApproved
		if tx.ApprovalRequired() {
			initial = models.StatusPending
		}
		r, err := models.NewAidRecord(tx.AllocateRecordID(), params, initial, actor, now)
		if err != nil {
			return asValidation(err)
		}

		if err := tx.MarkClaimed(params.BeneficiaryHash, params.ProgramID); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.Wrap(models.ErrAlreadyClaimed, dErrors.CodeDuplicateClaim,
					"beneficiary already claimed aid under this program")
			}
			return err
		}
		if err := tx.InsertRecord(r); err != nil {
			return err
		}
		if err := program.CanReserve(r.Amount); err != nil {
			return err
		}
		program.ApplyReserve(r.Amount, now)
		if err := tx.SaveProgram(program); err != nil {
			return err
		}
		if err := tx.AppendHistory(r.ID, models.CreationEntry(r, actor, now)); err != nil {
			return err
		}
		record = r
		return nil
	})
	if err != nil {
		return nil, coded(err, "failed to issue aid")
	}

	if s.metrics != nil {
		s.metrics.IncrementAidIssued(record.Amount)
	}
	s.logAudit(ctx, string(audit.EventAidIssued),
		"actor", actor,
		"record_id", record.ID,
		"program_id", record.ProgramID,
		"amount", record.Amount,
		"to", record.Status,
	)
	return record, nil
}
