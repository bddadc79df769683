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

// CreateProgram registers a new, approved and active program. Admin only.
// Names are unique; re-creating an existing name is a conflict.
func (s *Service) CreateProgram(ctx context.Context, actor id.Identity, params models.ProgramParams) (program *models.Program, err error) {
	ctx, end := s.begin(ctx, "create_program", attribute.String("program.id", params.Name.String()))
	defer end(&err)

	held, err := s.resolveRoles(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !held.any(roles.RoleAdmin) {
		return nil, notAuthorized("creating programs requires the Admin role")
	}

	now := requestcontext.Now(ctx)
	program, err = models.NewProgram(params, now)
	if err != nil {
		return nil, asValidation(err)
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		if err := tx.CreateProgram(program); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Wrap(models.ErrDuplicateProgram, dErrors.CodeConflict, "program name must be unique")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, coded(err, "failed to create program")
	}

	s.logAudit(ctx, string(audit.EventProgramCreated),
		"actor", actor,
		"program_id", program.Name,
		"amount", program.TotalBudget,
	)
	return program, nil
}

// UpdateProgram replaces the budget ceiling and the active flag. Admin only.
// The new ceiling must cover the budget already used.
func (s *Service) UpdateProgram(ctx context.Context, actor id.Identity, name id.ProgramID, newBudget uint64, isActive bool) (program *models.Program, err error) {
	ctx, end := s.begin(ctx, "update_program", attribute.String("program.id", name.String()))
	defer end(&err)

	held, err := s.resolveRoles(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !held.any(roles.RoleAdmin) {
		return nil, notAuthorized("updating programs requires the Admin role")
	}

	now := requestcontext.Now(ctx)
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		p, err := tx.Program(name)
		if err != nil {
			return programNotFound()
		}
		if err := p.CanUpdate(newBudget); err != nil {
			return err
		}
		p.ApplyUpdate(newBudget, isActive, now)
		if err := tx.SaveProgram(p); err != nil {
			return err
		}
		program = p
		return nil
	})
	if err != nil {
		return nil, coded(err, "failed to update program")
	}

	s.logAudit(ctx, string(audit.EventProgramUpdated),
		"actor", actor,
		"program_id", program.Name,
		"amount", program.TotalBudget,
		"is_active", program.IsActive,
	)
	return program, nil
}

// GetProgram returns a program by name.
func (s *Service) GetProgram(ctx context.Context, name id.ProgramID) (*models.Program, error) {
	var program *models.Program
	err := s.store.View(ctx, func(v *store.View) error {
		p, err := v.Program(name)
		if err != nil {
			return programNotFound()
		}
		program = p
		return nil
	})
	if err != nil {
		return nil, coded(err, "failed to load program")
	}
	return program, nil
}

// ListPrograms returns every program in creation order.
func (s *Service) ListPrograms(ctx context.Context) ([]*models.Program, error) {
	var programs []*models.Program
	err := s.store.View(ctx, func(v *store.View) error {
		programs = v.Programs()
		return nil
	})
	if err != nil {
		return nil, coded(err, "failed to list programs")
	}
	return programs, nil
}

// CheckEligibility runs the issuance rules for amount and category against the
// program at the request time. It never changes state.
func (s *Service) CheckEligibility(ctx context.Context, programID id.ProgramID, amount uint64, category models.Category) (err error) {
	ctx, end := s.begin(ctx, "check_eligibility", attribute.String("program.id", programID.String()))
	defer end(&err)

	now := requestcontext.Now(ctx)
	err = s.store.View(ctx, func(v *store.View) error {
		p, err := v.Program(programID)
		if err != nil {
			return programNotFound()
		}
		return p.CheckEligibility(amount, category, now)
	})
	return coded(err, "failed to check eligibility")
}
