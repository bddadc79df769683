package index

import (
	"fmt"

	"aidledger/internal/ledger/models"
	id "aidledger/pkg/domain"
)

// Manager owns every derived bucket.
//
// Invariants:
//   - every indexed record is in exactly one status bucket
//   - program, category, location, beneficiary and global buckets only grow
type Manager struct {
	all           *Set
	byProgram     map[id.ProgramID]*Set
	byStatus      map[models.Status]*Set
	byCategory    map[models.Category]*Set
	byLocation    map[string]*Set
	byBeneficiary map[id.BeneficiaryHash]*Set
}

func NewManager() *Manager {
	m := &Manager{
		all:           NewSet(),
		byProgram:     make(map[id.ProgramID]*Set),
		byStatus:      make(map[models.Status]*Set, len(models.Statuses)),
		byCategory:    make(map[models.Category]*Set),
		byLocation:    make(map[string]*Set),
		byBeneficiary: make(map[id.BeneficiaryHash]*Set),
	}
	for _, s := range models.Statuses {
		m.byStatus[s] = NewSet()
	}
	return m
}

// CanInsert checks that r is not indexed yet and has a known status.
func (m *Manager) CanInsert(r *models.AidRecord) error {
	if m.all.Contains(r.ID) {
		return fmt.Errorf("record %d already indexed", r.ID)
	}
	if _, ok := m.byStatus[r.Status]; !ok {
		return fmt.Errorf("record %d has unknown status %q", r.ID, r.Status)
	}
	return nil
}

// Insert adds r to every bucket. Call CanInsert first.
func (m *Manager) Insert(r *models.AidRecord) {
	m.all.Add(r.ID)
	bucket(m.byProgram, r.ProgramID).Add(r.ID)
	bucket(m.byCategory, r.Category).Add(r.ID)
	bucket(m.byLocation, r.Location.Key()).Add(r.ID)
	bucket(m.byBeneficiary, r.BeneficiaryHash).Add(r.ID)
	m.byStatus[r.Status].Add(r.ID)
}

// CanMove checks that recordID currently sits in the from bucket.
func (m *Manager) CanMove(recordID id.RecordID, from, to models.Status) error {
	src, ok := m.byStatus[from]
	if !ok || !src.Contains(recordID) {
		return fmt.Errorf("record %d not in %s bucket", recordID, from)
	}
	if _, ok := m.byStatus[to]; !ok {
		return fmt.Errorf("unknown status %q", to)
	}
	return nil
}

// Move transfers recordID between status buckets. Call CanMove first.
func (m *Manager) Move(recordID id.RecordID, from, to models.Status) {
	if from == to {
		return
	}
	m.byStatus[from].Remove(recordID)
	m.byStatus[to].Add(recordID)
}

func (m *Manager) All() []id.RecordID { return m.all.Items() }

func (m *Manager) Len() int { return m.all.Len() }

func (m *Manager) ByProgram(p id.ProgramID) []id.RecordID { return items(m.byProgram, p) }

func (m *Manager) ByStatus(s models.Status) []id.RecordID { return items(m.byStatus, s) }

func (m *Manager) ByCategory(c models.Category) []id.RecordID { return items(m.byCategory, c) }

// ByLocation looks up the bucket for the normalized key of loc.
func (m *Manager) ByLocation(loc models.Location) []id.RecordID {
	return items(m.byLocation, loc.Key())
}

func (m *Manager) ByBeneficiary(b id.BeneficiaryHash) []id.RecordID {
	return items(m.byBeneficiary, b)
}

// StatusCount returns the size of one status bucket.
func (m *Manager) StatusCount(s models.Status) int {
	if set, ok := m.byStatus[s]; ok {
		return set.Len()
	}
	return 0
}

func bucket[K comparable](buckets map[K]*Set, key K) *Set {
	set, ok := buckets[key]
	if !ok {
		set = NewSet()
		buckets[key] = set
	}
	return set
}

func items[K comparable](buckets map[K]*Set, key K) []id.RecordID {
	if set, ok := buckets[key]; ok {
		return set.Items()
	}
	return []id.RecordID{}
}
