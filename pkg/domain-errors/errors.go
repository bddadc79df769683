// Package domainerrors defines coded errors shared by services, stores and
// transport adapters. Services return *Error values; transports translate the
// Code into a status without inspecting messages.
//
// Import alias used across the codebase:
//
//	dErrors "aidledger/pkg/domain-errors"
package domainerrors

import (
	"errors"
)

// Code classifies a domain error for callers and transports.
type Code string

const (
	CodeInternal           Code = "internal_error"
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeInvariantViolation Code = "invariant_violation"
	CodeTimeout            Code = "timeout"

	// Ledger outcomes. Each maps to one externally visible failure kind.
	CodeDuplicateClaim    Code = "duplicate_claim"
	CodeBudgetExceeded    Code = "budget_exceeded"
	CodeIllegalTransition Code = "illegal_transition"
	CodeSystemPaused      Code = "system_paused"
	CodeAlreadyCompleted  Code = "already_completed"
)

// Error is a coded domain error. Err optionally carries the underlying cause so
// errors.Is keeps working for sentinel causes.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error without a cause.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an existing error.
// A nil err still produces a coded error so call sites stay branch-free.
func Wrap(err error, code Code, msg string) error {
	return &Error{Code: code, Message: msg, Err: err}
}

// GetCode returns the code of the outermost *Error in the chain, or
// CodeInternal when err carries no code.
func GetCode(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether the outermost coded error in the chain has code.
func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	var de *Error
	if !errors.As(err, &de) {
		return false
	}
	return de.Code == code
}

// Is is shorthand for HasCode.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}
