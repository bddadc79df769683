package store

import (
	"fmt"

	"aidledger/internal/ledger/models"
	id "aidledger/pkg/domain"
	dErrors "aidledger/pkg/domain-errors"
	"aidledger/pkg/platform/sentinel"
)

// Tx stages changes against committed state. Reads see committed state
// overlaid with the transaction's own staged writes. Values returned from a Tx
// are copies; write them back with the Save methods.
type Tx struct {
	st *state

	programs    map[id.ProgramID]*models.Program
	newPrograms []id.ProgramID

	records    map[id.RecordID]*models.AidRecord
	newRecords []id.RecordID
	updated    []id.RecordID

	history    []historyAppend
	claims     map[id.ClaimKey]struct{}
	claimOrder []id.ClaimKey
	claimedAny map[id.BeneficiaryHash]struct{}
	anyOrder   []id.BeneficiaryHash
	emergency  []models.EmergencyAction

	nextRecordID id.RecordID
	paused       *bool
	approval     *bool
}

func newTx(st *state) *Tx {
	return &Tx{
		st:           st,
		programs:     make(map[id.ProgramID]*models.Program),
		records:      make(map[id.RecordID]*models.AidRecord),
		claims:       make(map[id.ClaimKey]struct{}),
		claimedAny:   make(map[id.BeneficiaryHash]struct{}),
		nextRecordID: st.nextRecordID,
	}
}

// Program returns a copy of the named program or sentinel.ErrNotFound.
func (tx *Tx) Program(name id.ProgramID) (*models.Program, error) {
	if p, ok := tx.programs[name]; ok {
		return p.Clone(), nil
	}
	if p, ok := tx.st.programs[name]; ok {
		return p.Clone(), nil
	}
	return nil, fmt.Errorf("program %s: %w", name, sentinel.ErrNotFound)
}

// CreateProgram stages a new program. Names are unique: an existing name
// yields sentinel.ErrConflict.
func (tx *Tx) CreateProgram(p *models.Program) error {
	if _, err := tx.Program(p.Name); err == nil {
		return fmt.Errorf("program %s: %w", p.Name, sentinel.ErrConflict)
	}
	tx.programs[p.Name] = p.Clone()
	tx.newPrograms = append(tx.newPrograms, p.Name)
	return nil
}

// SaveProgram stages a new version of an existing program.
func (tx *Tx) SaveProgram(p *models.Program) error {
	if _, err := tx.Program(p.Name); err != nil {
		return err
	}
	tx.programs[p.Name] = p.Clone()
	return nil
}

// Record returns a copy of the record or sentinel.ErrNotFound.
func (tx *Tx) Record(recordID id.RecordID) (*models.AidRecord, error) {
	if r, ok := tx.records[recordID]; ok {
		return r.Clone(), nil
	}
	if r, ok := tx.st.records[recordID]; ok {
		return r.Clone(), nil
	}
	return nil, fmt.Errorf("record %d: %w", recordID, sentinel.ErrNotFound)
}

// AllocateRecordID reserves the next record id. Ids are only consumed when
// the transaction commits.
func (tx *Tx) AllocateRecordID() id.RecordID {
	next := tx.nextRecordID
	tx.nextRecordID++
	return next
}

// InsertRecord stages a new record under an id from AllocateRecordID.
func (tx *Tx) InsertRecord(r *models.AidRecord) error {
	if r.ID < tx.st.nextRecordID || r.ID >= tx.nextRecordID {
		return dErrors.New(dErrors.CodeInvariantViolation, "record id was not allocated by this transaction")
	}
	if _, err := tx.Record(r.ID); err == nil {
		return fmt.Errorf("record %d: %w", r.ID, sentinel.ErrConflict)
	}
	tx.records[r.ID] = r.Clone()
	tx.newRecords = append(tx.newRecords, r.ID)
	return nil
}

// SaveRecord stages a new version of an existing record. Amount, program,
// beneficiary, category and location are fixed at creation and may not change.
func (tx *Tx) SaveRecord(r *models.AidRecord) error {
	current, err := tx.Record(r.ID)
	if err != nil {
		return err
	}
	if current.Amount != r.Amount || current.ProgramID != r.ProgramID ||
		current.BeneficiaryHash != r.BeneficiaryHash || current.Category != r.Category ||
		current.Location.Key() != r.Location.Key() {
		return dErrors.New(dErrors.CodeInvariantViolation, "immutable record fields changed")
	}
	if _, staged := tx.records[r.ID]; !staged {
		tx.updated = append(tx.updated, r.ID)
	}
	tx.records[r.ID] = r.Clone()
	return nil
}

// AppendHistory stages a history line for an existing record.
func (tx *Tx) AppendHistory(recordID id.RecordID, entry models.HistoryEntry) error {
	if _, err := tx.Record(recordID); err != nil {
		return err
	}
	tx.history = append(tx.history, historyAppend{recordID: recordID, entry: entry})
	return nil
}

// IsClaimed reports whether key has ever been claimed.
func (tx *Tx) IsClaimed(key id.ClaimKey) bool {
	if _, ok := tx.claims[key]; ok {
		return true
	}
	_, ok := tx.st.claimed[key]
	return ok
}

// HasClaimedAny reports whether the beneficiary has claimed under any program.
func (tx *Tx) HasClaimedAny(b id.BeneficiaryHash) bool {
	if _, ok := tx.claimedAny[b]; ok {
		return true
	}
	_, ok := tx.st.claimedAny[b]
	return ok
}

// MarkClaimed stages the permanent claim markers for a beneficiary and program.
// There is no way to clear them.
func (tx *Tx) MarkClaimed(b id.BeneficiaryHash, program id.ProgramID) error {
	key := id.NewClaimKey(b, program)
	if tx.IsClaimed(key) {
		return fmt.Errorf("claim %s: %w", key, sentinel.ErrAlreadyUsed)
	}
	tx.claims[key] = struct{}{}
	tx.claimOrder = append(tx.claimOrder, key)
	if !tx.HasClaimedAny(b) {
		tx.claimedAny[b] = struct{}{}
		tx.anyOrder = append(tx.anyOrder, b)
	}
	return nil
}

func (tx *Tx) Paused() bool {
	if tx.paused != nil {
		return *tx.paused
	}
	return tx.st.paused
}

func (tx *Tx) SetPaused(paused bool) {
	tx.paused = &paused
}

func (tx *Tx) ApprovalRequired() bool {
	if tx.approval != nil {
		return *tx.approval
	}
	return tx.st.approvalRequired
}

func (tx *Tx) SetApprovalRequired(required bool) {
	tx.approval = &required
}

// LogEmergency stages an entry for the emergency action log.
func (tx *Tx) LogEmergency(action models.EmergencyAction) {
	tx.emergency = append(tx.emergency, action)
}

// prepare validates the staged writes against committed state and returns the
// change set for apply.
func (tx *Tx) prepare() (changeSet, error) {
	c := changeSet{
		history:      tx.history,
		claims:       tx.claimOrder,
		claimedAny:   tx.anyOrder,
		emergency:    tx.emergency,
		nextRecordID: tx.nextRecordID,
		paused:       tx.paused,
		approval:     tx.approval,
	}

	isNew := make(map[id.ProgramID]bool, len(tx.newPrograms))
	for _, name := range tx.newPrograms {
		isNew[name] = true
		c.newPrograms = append(c.newPrograms, tx.programs[name])
	}
	for name, p := range tx.programs {
		if p.BudgetUsed > p.TotalBudget {
			return changeSet{}, dErrors.New(dErrors.CodeInvariantViolation,
				fmt.Sprintf("program %s budget used exceeds total budget", name))
		}
		if !isNew[name] {
			c.updatedPrograms = append(c.updatedPrograms, p)
		}
	}

	for _, recordID := range tx.newRecords {
		r := tx.records[recordID]
		if _, err := tx.Program(r.ProgramID); err != nil {
			return changeSet{}, dErrors.Wrap(err, dErrors.CodeInvariantViolation, "record references unknown program")
		}
		if err := tx.st.index.CanInsert(r); err != nil {
			return changeSet{}, dErrors.Wrap(err, dErrors.CodeInvariantViolation, "index insert rejected")
		}
		c.newRecords = append(c.newRecords, r)
	}

	for _, recordID := range tx.updated {
		r := tx.records[recordID]
		live := tx.st.records[recordID]
		if err := tx.st.index.CanMove(recordID, live.Status, r.Status); err != nil {
			return changeSet{}, dErrors.Wrap(err, dErrors.CodeInvariantViolation, "index move rejected")
		}
		c.updatedRecords = append(c.updatedRecords, recordUpdate{record: r, from: live.Status})
	}

	return c, nil
}
