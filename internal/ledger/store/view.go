package store

import (
	"fmt"
	"math"
	"math/bits"
	"slices"

	"aidledger/internal/ledger/models"
	id "aidledger/pkg/domain"
	"aidledger/pkg/platform/sentinel"
)

// View reads committed state. It is only valid inside the View callback.
type View struct {
	st *state
}

// Program returns a copy of the named program or sentinel.ErrNotFound.
func (v *View) Program(name id.ProgramID) (*models.Program, error) {
	p, ok := v.st.programs[name]
	if !ok {
		return nil, fmt.Errorf("program %s: %w", name, sentinel.ErrNotFound)
	}
	return p.Clone(), nil
}

// Programs returns every program in creation order.
func (v *View) Programs() []*models.Program {
	out := make([]*models.Program, 0, len(v.st.programOrder))
	for _, name := range v.st.programOrder {
		out = append(out, v.st.programs[name].Clone())
	}
	return out
}

// Record returns a copy of the record or sentinel.ErrNotFound.
func (v *View) Record(recordID id.RecordID) (*models.AidRecord, error) {
	r, ok := v.st.records[recordID]
	if !ok {
		return nil, fmt.Errorf("record %d: %w", recordID, sentinel.ErrNotFound)
	}
	return r.Clone(), nil
}

// Records resolves ids to record copies, preserving order.
func (v *View) Records(ids []id.RecordID) []*models.AidRecord {
	out := make([]*models.AidRecord, 0, len(ids))
	for _, recordID := range ids {
		if r, ok := v.st.records[recordID]; ok {
			out = append(out, r.Clone())
		}
	}
	return out
}

// History returns the record's history or sentinel.ErrNotFound.
func (v *View) History(recordID id.RecordID) ([]models.HistoryEntry, error) {
	if _, ok := v.st.records[recordID]; !ok {
		return nil, fmt.Errorf("record %d: %w", recordID, sentinel.ErrNotFound)
	}
	return slices.Clone(v.st.history[recordID]), nil
}

func (v *View) IsClaimed(key id.ClaimKey) bool {
	_, ok := v.st.claimed[key]
	return ok
}

func (v *View) HasClaimedAny(b id.BeneficiaryHash) bool {
	_, ok := v.st.claimedAny[b]
	return ok
}

func (v *View) Paused() bool { return v.st.paused }

func (v *View) ApprovalRequired() bool { return v.st.approvalRequired }

// NextRecordID is the id the next issued record will receive.
func (v *View) NextRecordID() id.RecordID { return v.st.nextRecordID }

func (v *View) Version() uint64 { return v.st.version }

func (v *View) EmergencyActions() []models.EmergencyAction {
	return slices.Clone(v.st.emergency)
}

// Index exposes read access to the derived buckets.
func (v *View) Index() IndexReader { return v.st.index }

// IndexReader is the read side of the index manager.
type IndexReader interface {
	All() []id.RecordID
	ByProgram(p id.ProgramID) []id.RecordID
	ByStatus(s models.Status) []id.RecordID
	ByCategory(c models.Category) []id.RecordID
	ByLocation(loc models.Location) []id.RecordID
	ByBeneficiary(b id.BeneficiaryHash) []id.RecordID
	StatusCount(s models.Status) int
}

// SumAmounts totals the amounts of every record in the given status buckets.
// The total saturates at math.MaxUint64.
func (v *View) SumAmounts(statuses ...models.Status) uint64 {
	var total uint64
	for _, s := range statuses {
		for _, recordID := range v.st.index.ByStatus(s) {
			sum, carry := bits.Add64(total, v.st.records[recordID].Amount, 0)
			if carry != 0 {
				return math.MaxUint64
			}
			total = sum
		}
	}
	return total
}
