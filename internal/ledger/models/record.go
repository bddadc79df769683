package models

import (
	"strings"
	"time"

	id "aidledger/pkg/domain"
	dErrors "aidledger/pkg/domain-errors"
	pkgstrings "aidledger/pkg/platform/strings"
)

// Location is the administrative address of a beneficiary.
type Location struct {
	Province string `json:"province"`
	City     string `json:"city"`
	District string `json:"district"`
	Village  string `json:"village"`
}

// Key is the location index key. Parts are normalized so spelling noise in
// case or spacing does not split a bucket.
func (l Location) Key() string {
	return strings.Join([]string{
		pkgstrings.NormalizeKey(l.Province),
		pkgstrings.NormalizeKey(l.City),
		pkgstrings.NormalizeKey(l.District),
		pkgstrings.NormalizeKey(l.Village),
	}, "/")
}

// Contact holds optional beneficiary contact details.
type Contact struct {
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// AidRecord is one issued aid claim and its lifecycle state.
//
// Invariants:
//   - Amount > 0 and never changes after creation
//   - RecipientID and RecipientName are non-empty
//   - Status changes only through the lifecycle transition table
//   - Records are never removed; cancellation is a terminal status
type AidRecord struct {
	ID                 id.RecordID        `json:"id"`
	ProgramID          id.ProgramID       `json:"program_id"`
	BeneficiaryHash    id.BeneficiaryHash `json:"beneficiary_hash"`
	Amount             uint64             `json:"amount"`
	RecipientID        string             `json:"recipient_id"`
	RecipientName      string             `json:"recipient_name"`
	Category           Category           `json:"category"`
	Status             Status             `json:"status"`
	Priority           Priority           `json:"priority"`
	Location           Location           `json:"location"`
	Contact            Contact            `json:"contact"`
	ContentReference   string             `json:"content_reference,omitempty"`
	DisbursementMethod string             `json:"disbursement_method,omitempty"`
	Notes              string             `json:"notes,omitempty"`
	DistributedBy      id.Identity        `json:"distributed_by"`
	ApprovedBy         *id.Identity       `json:"approved_by,omitempty"`
	SupervisedBy       *id.Identity       `json:"supervised_by,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
	DisbursedAt        *time.Time         `json:"disbursed_at,omitempty"`
}

// RecordParams carries the caller supplied fields of a new record.
type RecordParams struct {
	ProgramID        id.ProgramID
	BeneficiaryHash  id.BeneficiaryHash
	Amount           uint64
	RecipientID      string
	RecipientName    string
	Category         Category
	Priority         Priority
	Location         Location
	Contact          Contact
	ContentReference string
	Notes            string
}

// Validate checks the caller supplied fields of an issuance request.
func (p RecordParams) Validate() error {
	if p.Amount == 0 {
		return dErrors.New(dErrors.CodeValidation, "amount must be greater than zero")
	}
	if strings.TrimSpace(p.RecipientID) == "" {
		return dErrors.New(dErrors.CodeValidation, "recipient id is required")
	}
	if strings.TrimSpace(p.RecipientName) == "" {
		return dErrors.New(dErrors.CodeValidation, "recipient name is required")
	}
	if !p.Category.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown category: "+string(p.Category))
	}
	if !p.Priority.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown priority: "+string(p.Priority))
	}
	return nil
}

// NewAidRecord builds a record in its initial status.
func NewAidRecord(recordID id.RecordID, p RecordParams, initial Status, issuer id.Identity, now time.Time) (*AidRecord, error) {
	if recordID == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "record id must be positive")
	}
	if initial != StatusPending && initial != StatusApproved {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "records start pending or approved")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &AidRecord{
		ID:               recordID,
		ProgramID:        p.ProgramID,
		BeneficiaryHash:  p.BeneficiaryHash,
		Amount:           p.Amount,
		RecipientID:      strings.TrimSpace(p.RecipientID),
		RecipientName:    strings.TrimSpace(p.RecipientName),
		Category:         p.Category,
		Status:           initial,
		Priority:         p.Priority,
		Location:         p.Location,
		Contact:          p.Contact,
		ContentReference: p.ContentReference,
		Notes:            p.Notes,
		DistributedBy:    issuer,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// ApplyStatus moves the record to next. The lifecycle table decides whether
// the move is legal; this only records it.
func (r *AidRecord) ApplyStatus(next Status, notes string, now time.Time) {
	r.Status = next
	r.UpdatedAt = now
	if notes != "" {
		r.Notes = notes
	}
}

// ApplyApproval stamps the approving supervisor.
func (r *AidRecord) ApplyApproval(actor id.Identity) {
	approver := actor
	supervisor := actor
	r.ApprovedBy = &approver
	r.SupervisedBy = &supervisor
}

// ApplyDisbursement stamps the disbursement time.
func (r *AidRecord) ApplyDisbursement(now time.Time) {
	at := now
	r.DisbursedAt = &at
}

// CanDocumentPayment checks that payment documentation may still change.
func (r *AidRecord) CanDocumentPayment() error {
	if r.Status.IsTerminal() {
		return dErrors.Wrap(ErrRecordTerminal, dErrors.CodeIllegalTransition, "record is in a terminal status")
	}
	return nil
}

// ApplyPaymentDocumentation overwrites the document reference and method.
func (r *AidRecord) ApplyPaymentDocumentation(contentReference, method string, now time.Time) {
	r.ContentReference = contentReference
	r.DisbursementMethod = method
	r.UpdatedAt = now
}

// Clone returns a deep copy safe to hand outside the store.
func (r *AidRecord) Clone() *AidRecord {
	c := *r
	if r.ApprovedBy != nil {
		v := *r.ApprovedBy
		c.ApprovedBy = &v
	}
	if r.SupervisedBy != nil {
		v := *r.SupervisedBy
		c.SupervisedBy = &v
	}
	if r.DisbursedAt != nil {
		v := *r.DisbursedAt
		c.DisbursedAt = &v
	}
	return &c
}
