package handler

import (
	"time"

	"aidledger/internal/ledger/models"
	"aidledger/internal/ledger/roles"
	id "aidledger/pkg/domain"
	audit "aidledger/pkg/platform/audit"
)

// ProgramResponse is the HTTP form of a program. An uncapped program has no
// max_amount; the sentinel value never reaches clients.
type ProgramResponse struct {
	Name               id.ProgramID      `json:"name"`
	Description        string            `json:"description"`
	TotalBudget        uint64            `json:"total_budget"`
	BudgetUsed         uint64            `json:"budget_used"`
	Remaining          uint64            `json:"remaining"`
	MinAmount          uint64            `json:"min_amount"`
	MaxAmount          *uint64           `json:"max_amount,omitempty"`
	IsActive           bool              `json:"is_active"`
	IsApproved         bool              `json:"is_approved"`
	StartDate          time.Time         `json:"start_date"`
	EndDate            time.Time         `json:"end_date"`
	Manager            id.Identity       `json:"manager"`
	EligibleCategories []models.Category `json:"eligible_categories"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

func FromProgram(p *models.Program) *ProgramResponse {
	resp := &ProgramResponse{
		Name:               p.Name,
		Description:        p.Description,
		TotalBudget:        p.TotalBudget,
		BudgetUsed:         p.BudgetUsed,
		Remaining:          p.Remaining(),
		MinAmount:          p.MinAmountPerBeneficiary,
		IsActive:           p.IsActive,
		IsApproved:         p.IsApproved,
		StartDate:          p.StartDate,
		EndDate:            p.EndDate,
		Manager:            p.Manager,
		EligibleCategories: p.EligibleCategories,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
	if p.MaxAmountPerBeneficiary != models.Unlimited {
		maxAmount := p.MaxAmountPerBeneficiary
		resp.MaxAmount = &maxAmount
	}
	return resp
}

type ProgramsResponse struct {
	Programs []*ProgramResponse `json:"programs"`
	Count    int                `json:"count"`
}

func FromPrograms(programs []*models.Program) *ProgramsResponse {
	resp := &ProgramsResponse{Programs: make([]*ProgramResponse, 0, len(programs))}
	for _, p := range programs {
		resp.Programs = append(resp.Programs, FromProgram(p))
	}
	resp.Count = len(resp.Programs)
	return resp
}

type RecordsResponse struct {
	Records []*models.AidRecord `json:"records"`
	Count   int                 `json:"count"`
}

func FromRecords(records []*models.AidRecord) *RecordsResponse {
	if records == nil {
		records = []*models.AidRecord{}
	}
	return &RecordsResponse{Records: records, Count: len(records)}
}

type HistoryResponse struct {
	RecordID id.RecordID           `json:"record_id"`
	Entries  []models.HistoryEntry `json:"entries"`
}

type AuditEventResponse struct {
	ID         string      `json:"id"`
	Category   string      `json:"category"`
	Action     string      `json:"action"`
	Timestamp  time.Time   `json:"timestamp"`
	ActorID    id.Identity `json:"actor_id,omitempty"`
	Amount     uint64      `json:"amount,omitempty"`
	FromStatus string      `json:"from_status,omitempty"`
	ToStatus   string      `json:"to_status,omitempty"`
	Reason     string      `json:"reason,omitempty"`
	RequestID  string      `json:"request_id,omitempty"`
}

type AuditTrailResponse struct {
	RecordID id.RecordID          `json:"record_id"`
	Events   []AuditEventResponse `json:"events"`
}

func toAuditTrailResponse(recordID id.RecordID, events []audit.Event) *AuditTrailResponse {
	out := make([]AuditEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, AuditEventResponse{
			ID:         e.ID,
			Category:   string(e.Category),
			Action:     e.Action,
			Timestamp:  e.Timestamp,
			ActorID:    e.ActorID,
			Amount:     e.Amount,
			FromStatus: e.FromStatus,
			ToStatus:   e.ToStatus,
			Reason:     e.Reason,
			RequestID:  e.RequestID,
		})
	}
	return &AuditTrailResponse{RecordID: recordID, Events: out}
}

// EligibilityResponse reports a dry-run eligibility check. Reason carries the
// rejection code when Eligible is false.
type EligibilityResponse struct {
	Program  id.ProgramID `json:"program"`
	Eligible bool         `json:"eligible"`
	Reason   string       `json:"reason,omitempty"`
}

type ClaimResponse struct {
	BeneficiaryHash id.BeneficiaryHash `json:"beneficiary_hash"`
	Program         id.ProgramID       `json:"program,omitempty"`
	Claimed         bool               `json:"claimed"`
}

type EmergencyActionsResponse struct {
	Actions []models.EmergencyAction `json:"actions"`
}

type RoleMembersResponse struct {
	Role    roles.Role    `json:"role"`
	Members []id.Identity `json:"members"`
}
