package models

import (
	dErrors "aidledger/pkg/domain-errors"
)

// Status is the lifecycle state of an aid record.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusApproved  Status = "Approved"
	StatusDisbursed Status = "Disbursed"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
	StatusRejected  Status = "Rejected"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusPending,
	StatusApproved,
	StatusDisbursed,
	StatusCompleted,
	StatusCancelled,
	StatusRejected,
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusDisbursed, StatusCompleted, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no transition may leave s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusRejected
}

// CountsAsDisbursed reports whether money has left the program for a record in s.
func (s Status) CountsAsDisbursed() bool {
	return s == StatusDisbursed || s == StatusCompleted
}

func (s Status) String() string { return string(s) }

func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unknown status: "+v)
	}
	return s, nil
}

// Category classifies the beneficiary group an aid record serves.
type Category string

const (
	CategoryGeneral      Category = "General"
	CategoryElderly      Category = "Elderly"
	CategoryDisabled     Category = "Disabled"
	CategorySingleParent Category = "SingleParent"
	CategoryVeteran      Category = "Veteran"
	CategoryStudent      Category = "Student"
)

var Categories = []Category{
	CategoryGeneral,
	CategoryElderly,
	CategoryDisabled,
	CategorySingleParent,
	CategoryVeteran,
	CategoryStudent,
}

func (c Category) IsValid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

func (c Category) String() string { return string(c) }

func ParseCategory(v string) (Category, error) {
	c := Category(v)
	if !c.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unknown category: "+v)
	}
	return c, nil
}

// Priority is the handling urgency of an aid record.
type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

func (p Priority) String() string { return string(p) }

// ParsePriority defaults an empty value to Medium.
func ParsePriority(v string) (Priority, error) {
	if v == "" {
		return PriorityMedium, nil
	}
	p := Priority(v)
	if !p.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unknown priority: "+v)
	}
	return p, nil
}
