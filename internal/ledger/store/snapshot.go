package store

import (
	"fmt"
	"math/bits"
	"slices"
	"time"

	"aidledger/internal/ledger/models"
	id "aidledger/pkg/domain"
	dErrors "aidledger/pkg/domain-errors"
)

// SnapshotFormat is bumped whenever the snapshot layout changes.
const SnapshotFormat = 1

// Snapshot is a self-contained, JSON-serialisable copy of committed state.
// Indexes are derived and rebuilt on import.
type Snapshot struct {
	Format               int                                  `json:"format"`
	Version              uint64                               `json:"version"`
	TakenAt              time.Time                            `json:"taken_at"`
	NextRecordID         id.RecordID                          `json:"next_record_id"`
	Paused               bool                                 `json:"paused"`
	ApprovalRequired     bool                                 `json:"approval_required"`
	Programs             []models.Program                     `json:"programs"`
	Records              []models.AidRecord                   `json:"records"`
	History              map[id.RecordID][]models.HistoryEntry `json:"history"`
	Claims               []id.ClaimKey                        `json:"claims"`
	ClaimedBeneficiaries []id.BeneficiaryHash                 `json:"claimed_beneficiaries"`
	EmergencyActions     []models.EmergencyAction             `json:"emergency_actions"`
}

// Export copies committed state into a Snapshot.
func (s *Store) Export(now time.Time) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state

	snap := Snapshot{
		Format:               SnapshotFormat,
		Version:              st.version,
		TakenAt:              now,
		NextRecordID:         st.nextRecordID,
		Paused:               st.paused,
		ApprovalRequired:     st.approvalRequired,
		Programs:             make([]models.Program, 0, len(st.programOrder)),
		Records:              make([]models.AidRecord, 0, len(st.records)),
		History:              make(map[id.RecordID][]models.HistoryEntry, len(st.history)),
		Claims:               make([]id.ClaimKey, 0, len(st.claimed)),
		ClaimedBeneficiaries: make([]id.BeneficiaryHash, 0, len(st.claimedAny)),
		EmergencyActions:     slices.Clone(st.emergency),
	}
	for _, name := range st.programOrder {
		snap.Programs = append(snap.Programs, *st.programs[name].Clone())
	}
	for _, recordID := range st.index.All() {
		snap.Records = append(snap.Records, *st.records[recordID].Clone())
	}
	for recordID, entries := range st.history {
		snap.History[recordID] = slices.Clone(entries)
	}
	for key := range st.claimed {
		snap.Claims = append(snap.Claims, key)
	}
	slices.SortFunc(snap.Claims, func(a, b id.ClaimKey) int { return slices.Compare(a[:], b[:]) })
	for b := range st.claimedAny {
		snap.ClaimedBeneficiaries = append(snap.ClaimedBeneficiaries, b)
	}
	slices.Sort(snap.ClaimedBeneficiaries)
	return snap
}

// Import replaces committed state with snap after validating it. Invalid
// snapshots leave the store untouched.
func (s *Store) Import(snap Snapshot) error {
	st, err := stateFromSnapshot(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
	return nil
}

func invalidSnapshot(msg string) error {
	return dErrors.New(dErrors.CodeInvariantViolation, "invalid snapshot: "+msg)
}

func stateFromSnapshot(snap Snapshot) (*state, error) {
	if snap.Format != SnapshotFormat {
		return nil, invalidSnapshot(fmt.Sprintf("unsupported format %d", snap.Format))
	}
	if snap.NextRecordID == 0 {
		return nil, invalidSnapshot("next record id must be positive")
	}

	st := newState(snap.ApprovalRequired)
	st.paused = snap.Paused
	st.nextRecordID = snap.NextRecordID
	st.version = snap.Version

	for i := range snap.Programs {
		p := snap.Programs[i].Clone()
		if _, dup := st.programs[p.Name]; dup {
			return nil, invalidSnapshot("duplicate program " + p.Name.String())
		}
		if p.BudgetUsed > p.TotalBudget {
			return nil, invalidSnapshot("program " + p.Name.String() + " over budget")
		}
		st.programs[p.Name] = p
		st.programOrder = append(st.programOrder, p.Name)
	}

	reserved := make(map[id.ProgramID]uint64, len(st.programs))
	records := slices.Clone(snap.Records)
	slices.SortFunc(records, func(a, b models.AidRecord) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	for i := range records {
		r := records[i].Clone()
		if r.ID == 0 || r.ID >= snap.NextRecordID {
			return nil, invalidSnapshot(fmt.Sprintf("record id %d outside allocated range", r.ID))
		}
		if _, ok := st.programs[r.ProgramID]; !ok {
			return nil, invalidSnapshot(fmt.Sprintf("record %d references unknown program", r.ID))
		}
		if err := st.index.CanInsert(r); err != nil {
			return nil, invalidSnapshot(err.Error())
		}
		if r.Status != models.StatusCancelled {
			sum, carry := bits.Add64(reserved[r.ProgramID], r.Amount, 0)
			if carry != 0 {
				return nil, invalidSnapshot("reserved amount overflows for program " + r.ProgramID.String())
			}
			reserved[r.ProgramID] = sum
		}
		st.records[r.ID] = r
		st.index.Insert(r)
	}
	for name, p := range st.programs {
		if p.BudgetUsed != reserved[name] {
			return nil, invalidSnapshot(fmt.Sprintf("program %s budget used %d does not match reserved records %d",
				name, p.BudgetUsed, reserved[name]))
		}
	}

	for recordID, entries := range snap.History {
		if _, ok := st.records[recordID]; !ok {
			return nil, invalidSnapshot(fmt.Sprintf("history for unknown record %d", recordID))
		}
		st.history[recordID] = slices.Clone(entries)
	}
	for _, key := range snap.Claims {
		st.claimed[key] = struct{}{}
	}
	for _, b := range snap.ClaimedBeneficiaries {
		st.claimedAny[b] = struct{}{}
	}
	// Claim markers outlive cancellation, so every record must still hold both.
	for _, r := range st.records {
		if _, ok := st.claimed[id.NewClaimKey(r.BeneficiaryHash, r.ProgramID)]; !ok {
			return nil, invalidSnapshot(fmt.Sprintf("record %d has no claim marker", r.ID))
		}
		if _, ok := st.claimedAny[r.BeneficiaryHash]; !ok {
			return nil, invalidSnapshot(fmt.Sprintf("record %d beneficiary not marked as claimed", r.ID))
		}
	}
	st.emergency = slices.Clone(snap.EmergencyActions)
	return st, nil
}
