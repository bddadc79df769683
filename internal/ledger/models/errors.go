package models

import "errors"

// Causes carried inside coded domain errors. Callers match them with errors.Is;
// transports only look at the code.
var (
	ErrProgramNotApproved  = errors.New("program not approved")
	ErrProgramInactive     = errors.New("program inactive")
	ErrProgramOutOfWindow  = errors.New("program outside active window")
	ErrAmountBelowMinimum  = errors.New("amount below program minimum")
	ErrAmountAboveMaximum  = errors.New("amount above program maximum")
	ErrBudgetExceeded      = errors.New("program budget exceeded")
	ErrCategoryIneligible  = errors.New("category not eligible for program")
	ErrDuplicateProgram    = errors.New("program already exists")
	ErrProgramNotFound     = errors.New("program not found")
	ErrRecordNotFound      = errors.New("record not found")
	ErrAlreadyClaimed      = errors.New("beneficiary already claimed this program")
	ErrNoOpTransition      = errors.New("record already in requested status")
	ErrIllegalTransition   = errors.New("transition not allowed")
	ErrAlreadyCompleted    = errors.New("record already completed")
	ErrSystemPaused        = errors.New("system paused")
	ErrNotAuthorized       = errors.New("caller lacks required role")
	ErrBudgetBelowUsed     = errors.New("budget below amount already used")
	ErrRecordTerminal      = errors.New("record is in a terminal status")
	ErrReentrantOperation  = errors.New("operation re-entered before completion")
	ErrInvalidDateRange    = errors.New("start date must be before end date")
	ErrInvalidAmountBounds = errors.New("maximum amount must not be below minimum")
)
