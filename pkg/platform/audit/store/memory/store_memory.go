package memory

import (
	"context"
	"sync"

	id "aidledger/pkg/domain"
	audit "aidledger/pkg/platform/audit"
)

// InMemoryStore keeps audit events in arrival order.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// ListAll returns every event in arrival order.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events...), nil
}

// ListByRecord returns the events that reference recordID.
func (s *InMemoryStore) ListByRecord(_ context.Context, recordID id.RecordID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Event
	for _, e := range s.events {
		if e.RecordID == recordID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListByProgram returns the events that reference programID.
func (s *InMemoryStore) ListByProgram(_ context.Context, programID id.ProgramID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Event
	for _, e := range s.events {
		if e.ProgramID == programID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListRecent returns the most recent N events, oldest first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := len(s.events) - limit
	if start < 0 {
		start = 0
	}
	return append([]audit.Event{}, s.events[start:]...), nil
}
