// Package store is the primary keyed store for programs, aid records and their
// history, plus the permanent claim markers and process-wide flags.
//
// Every mutation goes through RunInTx: the callback stages changes on a Tx
// while the store write lock is held, and the store applies the staged change
// set in one step after the callback returns nil. A callback error discards the
// staged changes, so no partial write is ever observable. Readers use View and
// see only committed state.
package store

import (
	"context"
	"sync"

	"aidledger/internal/ledger/index"
	"aidledger/internal/ledger/models"
	id "aidledger/pkg/domain"
	dErrors "aidledger/pkg/domain-errors"
	txcontext "aidledger/pkg/platform/tx"
)

type state struct {
	programs     map[id.ProgramID]*models.Program
	programOrder []id.ProgramID
	records      map[id.RecordID]*models.AidRecord
	history      map[id.RecordID][]models.HistoryEntry
	claimed      map[id.ClaimKey]struct{}
	claimedAny   map[id.BeneficiaryHash]struct{}
	emergency    []models.EmergencyAction
	index        *index.Manager

	nextRecordID     id.RecordID
	paused           bool
	approvalRequired bool
	version          uint64
}

func newState(approvalRequired bool) *state {
	return &state{
		programs:         make(map[id.ProgramID]*models.Program),
		records:          make(map[id.RecordID]*models.AidRecord),
		history:          make(map[id.RecordID][]models.HistoryEntry),
		claimed:          make(map[id.ClaimKey]struct{}),
		claimedAny:       make(map[id.BeneficiaryHash]struct{}),
		index:            index.NewManager(),
		nextRecordID:     1,
		approvalRequired: approvalRequired,
	}
}

// Store is safe for concurrent use. Writers are serialized; readers run
// concurrently with each other.
type Store struct {
	mu    sync.RWMutex
	state *state
}

type Option func(*config)

type config struct {
	approvalRequired bool
}

// WithApprovalRequired sets the initial supervisor-approval flag (default true).
func WithApprovalRequired(required bool) Option {
	return func(c *config) {
		c.approvalRequired = required
	}
}

func New(opts ...Option) *Store {
	cfg := config{approvalRequired: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Store{state: newState(cfg.approvalRequired)}
}

func reentrantError() error {
	return dErrors.Wrap(models.ErrReentrantOperation, dErrors.CodeInvariantViolation,
		"ledger operation invoked from inside a running transaction")
}

// RunInTx runs fn as one atomic unit of work. The ctx handed to fn is marked
// so that a nested RunInTx or View on the same store fails instead of
// deadlocking.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	if txcontext.Active(ctx, s) {
		return reentrantError()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newTx(s.state)
	if err := fn(txcontext.Enter(ctx, s), tx); err != nil {
		return err
	}
	changes, err := tx.prepare()
	if err != nil {
		return err
	}
	s.state.apply(changes)
	return nil
}

// View runs fn against committed state under the read lock.
func (s *Store) View(ctx context.Context, fn func(v *View) error) error {
	if txcontext.Active(ctx, s) {
		return reentrantError()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&View{st: s.state})
}

// Version counts committed transactions. Snapshots carry it so checkpoint
// writers can skip unchanged state.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.version
}

// changeSet is the validated output of a transaction.
type changeSet struct {
	newPrograms     []*models.Program
	updatedPrograms []*models.Program
	newRecords      []*models.AidRecord
	updatedRecords  []recordUpdate
	history         []historyAppend
	claims          []id.ClaimKey
	claimedAny      []id.BeneficiaryHash
	emergency       []models.EmergencyAction
	nextRecordID    id.RecordID
	paused          *bool
	approval        *bool
}

type recordUpdate struct {
	record *models.AidRecord
	from   models.Status
}

type historyAppend struct {
	recordID id.RecordID
	entry    models.HistoryEntry
}

func (c changeSet) empty() bool {
	return len(c.newPrograms) == 0 && len(c.updatedPrograms) == 0 &&
		len(c.newRecords) == 0 && len(c.updatedRecords) == 0 &&
		len(c.history) == 0 && len(c.claims) == 0 && len(c.claimedAny) == 0 &&
		len(c.emergency) == 0 && c.paused == nil && c.approval == nil
}

// apply is the only place that mutates committed state and the only caller of
// the index mutators. prepare has already checked every precondition, so apply
// cannot fail halfway.
func (st *state) apply(c changeSet) {
	if c.empty() {
		return
	}
	for _, p := range c.newPrograms {
		st.programs[p.Name] = p
		st.programOrder = append(st.programOrder, p.Name)
	}
	for _, p := range c.updatedPrograms {
		st.programs[p.Name] = p
	}
	for _, r := range c.newRecords {
		st.records[r.ID] = r
		st.index.Insert(r)
	}
	for _, u := range c.updatedRecords {
		st.records[u.record.ID] = u.record
		st.index.Move(u.record.ID, u.from, u.record.Status)
	}
	for _, h := range c.history {
		st.history[h.recordID] = append(st.history[h.recordID], h.entry)
	}
	for _, k := range c.claims {
		st.claimed[k] = struct{}{}
	}
	for _, b := range c.claimedAny {
		st.claimedAny[b] = struct{}{}
	}
	st.emergency = append(st.emergency, c.emergency...)
	if c.nextRecordID > st.nextRecordID {
		st.nextRecordID = c.nextRecordID
	}
	if c.paused != nil {
		st.paused = *c.paused
	}
	if c.approval != nil {
		st.approvalRequired = *c.approval
	}
	st.version++
}
