package handler

import (
	"strings"
	"time"

	"aidledger/internal/ledger/models"
	"aidledger/internal/ledger/roles"
	id "aidledger/pkg/domain"
	dErrors "aidledger/pkg/domain-errors"
)

// CreateProgramRequest is the body of POST /v1/programs.
type CreateProgramRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	TotalBudget uint64 `json:"total_budget"`
	MinAmount   uint64 `json:"min_amount"`
	// MaxAmount of zero means no per-beneficiary cap.
	MaxAmount          uint64    `json:"max_amount"`
	StartDate          time.Time `json:"start_date"`
	EndDate            time.Time `json:"end_date"`
	Manager            string    `json:"manager"`
	EligibleCategories []string  `json:"eligible_categories"`

	parsed models.ProgramParams
}

func (r *CreateProgramRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Description = strings.TrimSpace(r.Description)
	r.Manager = strings.TrimSpace(r.Manager)
}

// Validate checks the request shape. Budget and window rules are left to the
// service.
func (r *CreateProgramRequest) Validate() error {
	name, err := id.ParseProgramID(r.Name)
	if err != nil {
		return err
	}
	manager, err := id.ParseIdentity(r.Manager)
	if err != nil {
		return err
	}
	if r.StartDate.IsZero() || r.EndDate.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "start_date and end_date are required")
	}
	categories := make([]models.Category, 0, len(r.EligibleCategories))
	for _, c := range r.EligibleCategories {
		category, err := models.ParseCategory(strings.TrimSpace(c))
		if err != nil {
			return err
		}
		categories = append(categories, category)
	}
	maxAmount := r.MaxAmount
	if maxAmount == 0 {
		maxAmount = models.Unlimited
	}
	r.parsed = models.ProgramParams{
		Name:               name,
		Description:        r.Description,
		TotalBudget:        r.TotalBudget,
		MinAmount:          r.MinAmount,
		MaxAmount:          maxAmount,
		StartDate:          r.StartDate,
		EndDate:            r.EndDate,
		Manager:            manager,
		EligibleCategories: categories,
	}
	return nil
}

// Params returns the validated program parameters.
func (r *CreateProgramRequest) Params() models.ProgramParams {
	return r.parsed
}

// UpdateProgramRequest is the body of PATCH /v1/programs/{name}.
type UpdateProgramRequest struct {
	TotalBudget uint64 `json:"total_budget"`
	IsActive    *bool  `json:"is_active"`
}

func (r *UpdateProgramRequest) Validate() error {
	if r.IsActive == nil {
		return dErrors.New(dErrors.CodeValidation, "is_active is required")
	}
	return nil
}

// EligibilityRequest is the body of POST /v1/programs/{name}/eligibility.
type EligibilityRequest struct {
	Amount   uint64 `json:"amount"`
	Category string `json:"category"`

	category models.Category
}

func (r *EligibilityRequest) Validate() error {
	category, err := models.ParseCategory(strings.TrimSpace(r.Category))
	if err != nil {
		return err
	}
	r.category = category
	return nil
}

// IssueAidRequest is the body of POST /v1/records. Callers send either an
// already hashed beneficiary or the raw identifier, which is hashed here and
// never stored.
type IssueAidRequest struct {
	Program          string          `json:"program"`
	BeneficiaryHash  string          `json:"beneficiary_hash"`
	BeneficiaryID    string          `json:"beneficiary_id"`
	Amount           uint64          `json:"amount"`
	RecipientID      string          `json:"recipient_id"`
	RecipientName    string          `json:"recipient_name"`
	Category         string          `json:"category"`
	Priority         string          `json:"priority"`
	Location         models.Location `json:"location"`
	Contact          models.Contact  `json:"contact"`
	ContentReference string          `json:"content_reference"`
	Notes            string          `json:"notes"`

	parsed models.RecordParams
}

func (r *IssueAidRequest) Normalize() {
	r.Program = strings.TrimSpace(r.Program)
	r.BeneficiaryHash = strings.TrimSpace(r.BeneficiaryHash)
	r.BeneficiaryID = strings.TrimSpace(r.BeneficiaryID)
	r.RecipientID = strings.TrimSpace(r.RecipientID)
	r.RecipientName = strings.TrimSpace(r.RecipientName)
	r.Category = strings.TrimSpace(r.Category)
	r.Priority = strings.TrimSpace(r.Priority)
	r.ContentReference = strings.TrimSpace(r.ContentReference)
	r.Notes = strings.TrimSpace(r.Notes)
}

func (r *IssueAidRequest) Validate() error {
	program, err := id.ParseProgramID(r.Program)
	if err != nil {
		return err
	}
	var beneficiary id.BeneficiaryHash
	switch {
	case r.BeneficiaryHash != "" && r.BeneficiaryID != "":
		return dErrors.New(dErrors.CodeValidation, "send beneficiary_hash or beneficiary_id, not both")
	case r.BeneficiaryHash != "":
		beneficiary, err = id.ParseBeneficiaryHash(r.BeneficiaryHash)
		if err != nil {
			return err
		}
	case r.BeneficiaryID != "":
		beneficiary = id.HashBeneficiary(r.BeneficiaryID)
	default:
		return dErrors.New(dErrors.CodeValidation, "beneficiary_hash or beneficiary_id is required")
	}
	category, err := models.ParseCategory(r.Category)
	if err != nil {
		return err
	}
	priority, err := models.ParsePriority(r.Priority)
	if err != nil {
		return err
	}
	r.parsed = models.RecordParams{
		ProgramID:        program,
		BeneficiaryHash:  beneficiary,
		Amount:           r.Amount,
		RecipientID:      r.RecipientID,
		RecipientName:    r.RecipientName,
		Category:         category,
		Priority:         priority,
		Location:         r.Location,
		Contact:          r.Contact,
		ContentReference: r.ContentReference,
		Notes:            r.Notes,
	}
	return nil
}

// Params returns the validated record parameters.
func (r *IssueAidRequest) Params() models.RecordParams {
	return r.parsed
}

// UpdateStatusRequest is the body of POST /v1/records/{id}/status.
type UpdateStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`

	status models.Status
}

func (r *UpdateStatusRequest) Validate() error {
	status, err := models.ParseStatus(strings.TrimSpace(r.Status))
	if err != nil {
		return err
	}
	r.status = status
	return nil
}

// ReasonRequest is the body of emergency endpoints. The reason is optional.
type ReasonRequest struct {
	Reason string `json:"reason"`
}

func (r *ReasonRequest) Normalize() {
	r.Reason = strings.TrimSpace(r.Reason)
}

// PaymentDocumentationRequest is the body of PUT /v1/records/{id}/payment.
type PaymentDocumentationRequest struct {
	ContentReference string `json:"content_reference"`
	Method           string `json:"method"`
}

func (r *PaymentDocumentationRequest) Normalize() {
	r.ContentReference = strings.TrimSpace(r.ContentReference)
	r.Method = strings.TrimSpace(r.Method)
}

func (r *PaymentDocumentationRequest) Validate() error {
	if r.ContentReference == "" {
		return dErrors.New(dErrors.CodeValidation, "content_reference is required")
	}
	if r.Method == "" {
		return dErrors.New(dErrors.CodeValidation, "method is required")
	}
	return nil
}

// ApprovalRequiredRequest is the body of PUT /v1/settings/approval-required.
type ApprovalRequiredRequest struct {
	Required *bool `json:"required"`
}

func (r *ApprovalRequiredRequest) Validate() error {
	if r.Required == nil {
		return dErrors.New(dErrors.CodeValidation, "required is required")
	}
	return nil
}

// GrantRoleRequest is the body of POST /v1/roles/{role}/members.
type GrantRoleRequest struct {
	Identity string `json:"identity"`

	identity id.Identity
}

func (r *GrantRoleRequest) Validate() error {
	identity, err := id.ParseIdentity(r.Identity)
	if err != nil {
		return err
	}
	r.identity = identity
	return nil
}

func parseRole(v string) (roles.Role, error) {
	return roles.ParseRole(strings.TrimSpace(v))
}
