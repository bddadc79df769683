// Package index keeps the derived record-id buckets that back ledger queries.
//
// The package holds record ids only, never record content. Buckets are mutated
// exclusively by the ledger store while it commits a transaction.
package index

import (
	"slices"

	id "aidledger/pkg/domain"
)

// Set is an insertion-ordered set of record ids with O(1) membership and
// O(1) removal. Removal swaps the last element into the freed slot, so
// removal does not preserve order of the remaining members.
type Set struct {
	items []id.RecordID
	pos   map[id.RecordID]int
}

func NewSet() *Set {
	return &Set{pos: make(map[id.RecordID]int)}
}

// Add appends recordID. It returns false when the id is already present.
func (s *Set) Add(recordID id.RecordID) bool {
	if _, ok := s.pos[recordID]; ok {
		return false
	}
	s.pos[recordID] = len(s.items)
	s.items = append(s.items, recordID)
	return true
}

// Remove deletes recordID by swapping the last member into its slot.
// It returns false when the id is not present.
func (s *Set) Remove(recordID id.RecordID) bool {
	i, ok := s.pos[recordID]
	if !ok {
		return false
	}
	last := len(s.items) - 1
	if i != last {
		moved := s.items[last]
		s.items[i] = moved
		s.pos[moved] = i
	}
	s.items = s.items[:last]
	delete(s.pos, recordID)
	return true
}

func (s *Set) Contains(recordID id.RecordID) bool {
	_, ok := s.pos[recordID]
	return ok
}

func (s *Set) Len() int {
	return len(s.items)
}

// Items returns a copy of the members in bucket order.
func (s *Set) Items() []id.RecordID {
	return slices.Clone(s.items)
}
