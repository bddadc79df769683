package models

import (
	"math"
	"slices"
	"time"

	id "aidledger/pkg/domain"
	dErrors "aidledger/pkg/domain-errors"
	pkgstrings "aidledger/pkg/platform/strings"
)

// Unlimited is the maximum per-beneficiary amount for programs without a cap.
const Unlimited uint64 = math.MaxUint64

// Program is the aggregate root for a named aid scheme and owns its budget
// accounting.
//
// Invariants:
//   - Name is non-empty and immutable
//   - TotalBudget > 0
//   - BudgetUsed <= TotalBudget at every observable point
//   - MinAmountPerBeneficiary <= MaxAmountPerBeneficiary
//   - StartDate < EndDate
//   - Manager is set
//   - BudgetUsed only grows through Reserve and only shrinks through Refund
type Program struct {
	Name                    id.ProgramID `json:"name"`
	Description             string       `json:"description"`
	TotalBudget             uint64       `json:"total_budget"`
	BudgetUsed              uint64       `json:"budget_used"`
	MinAmountPerBeneficiary uint64       `json:"min_amount_per_beneficiary"`
	MaxAmountPerBeneficiary uint64       `json:"max_amount_per_beneficiary"`
	IsActive                bool         `json:"is_active"`
	IsApproved              bool         `json:"is_approved"`
	StartDate               time.Time    `json:"start_date"`
	EndDate                 time.Time    `json:"end_date"`
	Manager                 id.Identity  `json:"manager"`
	EligibleCategories      []Category   `json:"eligible_categories"`
	CreatedAt               time.Time    `json:"created_at"`
	UpdatedAt               time.Time    `json:"updated_at"`
}

// ProgramParams carries the caller supplied fields of a new program.
type ProgramParams struct {
	Name               id.ProgramID
	Description        string
	TotalBudget        uint64
	MinAmount          uint64
	MaxAmount          uint64
	StartDate          time.Time
	EndDate            time.Time
	Manager            id.Identity
	EligibleCategories []Category
}

// NewProgram validates params and returns an active, approved program.
func NewProgram(p ProgramParams, now time.Time) (*Program, error) {
	if p.Name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "program name cannot be empty")
	}
	if p.TotalBudget == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "total budget must be greater than zero")
	}
	if p.MaxAmount < p.MinAmount {
		return nil, dErrors.Wrap(ErrInvalidAmountBounds, dErrors.CodeInvariantViolation, "invalid amount bounds")
	}
	if !p.StartDate.Before(p.EndDate) {
		return nil, dErrors.Wrap(ErrInvalidDateRange, dErrors.CodeInvariantViolation, "invalid program window")
	}
	if p.Manager.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "program manager is required")
	}
	categories := pkgstrings.DedupeAndTrim(p.EligibleCategories)
	if len(categories) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "at least one eligible category is required")
	}
	for _, c := range categories {
		if !c.IsValid() {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown category: "+string(c))
		}
	}
	return &Program{
		Name:                    p.Name,
		Description:             p.Description,
		TotalBudget:             p.TotalBudget,
		MinAmountPerBeneficiary: p.MinAmount,
		MaxAmountPerBeneficiary: p.MaxAmount,
		IsActive:                true,
		IsApproved:              true,
		StartDate:               p.StartDate,
		EndDate:                 p.EndDate,
		Manager:                 p.Manager,
		EligibleCategories:      categories,
		CreatedAt:               now,
		UpdatedAt:               now,
	}, nil
}

// Remaining returns the unreserved part of the budget.
func (p *Program) Remaining() uint64 {
	return p.TotalBudget - p.BudgetUsed
}

// IsEligible reports whether c is one of the program's eligible categories.
func (p *Program) IsEligible(c Category) bool {
	return slices.Contains(p.EligibleCategories, c)
}

// CheckWindow verifies the program can accept issuance at all at now.
func (p *Program) CheckWindow(now time.Time) error {
	if !p.IsApproved {
		return dErrors.Wrap(ErrProgramNotApproved, dErrors.CodeNotFound, "program not approved")
	}
	if !p.IsActive {
		return dErrors.Wrap(ErrProgramInactive, dErrors.CodeValidation, "program is not active")
	}
	if now.Before(p.StartDate) || now.After(p.EndDate) {
		return dErrors.Wrap(ErrProgramOutOfWindow, dErrors.CodeValidation, "program is outside its active window")
	}
	return nil
}

// CheckEligibility runs every issuance rule for amount and category at now.
// It never mutates the program; Reserve commits the budget separately.
func (p *Program) CheckEligibility(amount uint64, category Category, now time.Time) error {
	if err := p.CheckWindow(now); err != nil {
		return err
	}
	if amount < p.MinAmountPerBeneficiary {
		return dErrors.Wrap(ErrAmountBelowMinimum, dErrors.CodeValidation, "amount below program minimum")
	}
	if amount > p.MaxAmountPerBeneficiary {
		return dErrors.Wrap(ErrAmountAboveMaximum, dErrors.CodeValidation, "amount above program maximum")
	}
	if amount > p.Remaining() {
		return dErrors.Wrap(ErrBudgetExceeded, dErrors.CodeBudgetExceeded, "program budget exceeded")
	}
	if !p.IsEligible(category) {
		return dErrors.Wrap(ErrCategoryIneligible, dErrors.CodeValidation, "category not eligible for program")
	}
	return nil
}

// CanReserve checks that amount fits in the remaining budget.
func (p *Program) CanReserve(amount uint64) error {
	if amount > p.Remaining() {
		return dErrors.Wrap(ErrBudgetExceeded, dErrors.CodeBudgetExceeded, "program budget exceeded")
	}
	return nil
}

// ApplyReserve adds amount to BudgetUsed. Call CanReserve first.
func (p *Program) ApplyReserve(amount uint64, now time.Time) {
	p.BudgetUsed += amount
	p.UpdatedAt = now
}

// CanRefund checks that amount was previously reserved.
func (p *Program) CanRefund(amount uint64) error {
	if amount > p.BudgetUsed {
		return dErrors.New(dErrors.CodeInvariantViolation, "refund exceeds budget used")
	}
	return nil
}

// ApplyRefund returns amount to the budget. Call CanRefund first.
func (p *Program) ApplyRefund(amount uint64, now time.Time) {
	p.BudgetUsed -= amount
	p.UpdatedAt = now
}

// CanUpdate checks that a new ceiling keeps the budget invariant.
func (p *Program) CanUpdate(newBudget uint64) error {
	if newBudget == 0 {
		return dErrors.New(dErrors.CodeValidation, "total budget must be greater than zero")
	}
	if newBudget < p.BudgetUsed {
		return dErrors.Wrap(ErrBudgetBelowUsed, dErrors.CodeValidation, "total budget below amount already used")
	}
	return nil
}

// ApplyUpdate replaces the budget ceiling and activation flag only.
func (p *Program) ApplyUpdate(newBudget uint64, isActive bool, now time.Time) {
	p.TotalBudget = newBudget
	p.IsActive = isActive
	p.UpdatedAt = now
}

// Clone returns a deep copy safe to hand outside the store.
func (p *Program) Clone() *Program {
	c := *p
	c.EligibleCategories = slices.Clone(p.EligibleCategories)
	return &c
}
