package roles

import (
	"context"
	"slices"
	"sync"

	id "aidledger/pkg/domain"
)

// MemoryStore keeps role membership in process.
type MemoryStore struct {
	mu      sync.RWMutex
	members map[Role]map[id.Identity]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{members: make(map[Role]map[id.Identity]struct{})}
}

func (s *MemoryStore) Grant(_ context.Context, role Role, identity id.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.members[role]
	if !ok {
		set = make(map[id.Identity]struct{})
		s.members[role] = set
	}
	set[identity] = struct{}{}
	return nil
}

func (s *MemoryStore) Revoke(_ context.Context, role Role, identity id.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members[role], identity)
	return nil
}

func (s *MemoryStore) Has(_ context.Context, role Role, identity id.Identity) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[role][identity]
	return ok, nil
}

// Members returns the role's members sorted by identity.
func (s *MemoryStore) Members(_ context.Context, role Role) ([]id.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]id.Identity, 0, len(s.members[role]))
	for identity := range s.members[role] {
		out = append(out, identity)
	}
	slices.Sort(out)
	return out, nil
}
