package models

import (
	"fmt"
	"time"

	id "aidledger/pkg/domain"
)

// HistoryEntry is one immutable line in a record's audit log.
type HistoryEntry struct {
	At      time.Time   `json:"at"`
	Actor   id.Identity `json:"actor"`
	From    Status      `json:"from,omitempty"`
	To      Status      `json:"to,omitempty"`
	Message string      `json:"message"`
}

// CreationEntry describes a newly issued record.
func CreationEntry(r *AidRecord, actor id.Identity, now time.Time) HistoryEntry {
	return HistoryEntry{
		At:      now,
		Actor:   actor,
		To:      r.Status,
		Message: fmt.Sprintf("issued %d under %s as %s", r.Amount, r.ProgramID, r.Status),
	}
}

// TransitionEntry describes a status change.
func TransitionEntry(from, to Status, actor id.Identity, reason string, now time.Time) HistoryEntry {
	msg := fmt.Sprintf("status %s -> %s", from, to)
	if reason != "" {
		msg += ": " + reason
	}
	return HistoryEntry{At: now, Actor: actor, From: from, To: to, Message: msg}
}

// DocumentationEntry describes a payment documentation update.
func DocumentationEntry(method string, actor id.Identity, now time.Time) HistoryEntry {
	return HistoryEntry{
		At:      now,
		Actor:   actor,
		Message: "payment documentation updated (" + method + ")",
	}
}

// EmergencyKind names an emergency control.
type EmergencyKind string

const (
	EmergencyCancel  EmergencyKind = "cancel"
	EmergencyPause   EmergencyKind = "pause"
	EmergencyUnpause EmergencyKind = "unpause"
)

// EmergencyAction is one entry in the process-wide emergency log.
type EmergencyAction struct {
	At       time.Time     `json:"at"`
	Actor    id.Identity   `json:"actor"`
	Kind     EmergencyKind `json:"kind"`
	RecordID id.RecordID   `json:"record_id,omitempty"`
	Reason   string        `json:"reason,omitempty"`
}

// Statistics is a point-in-time rollup of the ledger.
type Statistics struct {
	TotalRecords          uint64         `json:"total_records"`
	TotalDisbursed        uint64         `json:"total_disbursed"`
	ActivePrograms        int            `json:"active_programs"`
	PendingApplications   int            `json:"pending_applications"`
	CompletedApplications int            `json:"completed_applications"`
	ByStatus              map[Status]int `json:"by_status"`
}
