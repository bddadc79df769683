// Package publisher fans ledger audit events out to an audit.Store.
//
// In sync mode Emit writes through to the store. In async mode Emit enqueues
// into a bounded buffer drained by a single goroutine; Close drains whatever
// is left before returning.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	id "aidledger/pkg/domain"
	audit "aidledger/pkg/platform/audit"

	"github.com/google/uuid"
)

// ErrBufferFull is returned by Emit in async mode when the buffer is full.
var ErrBufferFull = errors.New("audit buffer full")

// ErrClosed is returned by Emit after Close.
var ErrClosed = errors.New("audit publisher closed")

// ErrListUnsupported is returned by List when the store cannot answer
// per-record queries.
var ErrListUnsupported = errors.New("audit store does not support listing")

// RecordLister is implemented by stores that can answer per-record queries.
type RecordLister interface {
	ListByRecord(ctx context.Context, recordID id.RecordID) ([]audit.Event, error)
}

// Publisher emits audit events to a store.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
	breaker *CircuitBreaker

	bufferSize int
	buffer     chan audit.Event
	done       chan struct{}

	mu     sync.RWMutex
	closed bool
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to async mode with a buffer of n events.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		p.bufferSize = n
	}
}

// WithLogger sets a logger for persistence failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithCircuitBreaker drops events without touching the store while the
// breaker is open.
func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(p *Publisher) {
		p.breaker = cb
	}
}

// NewPublisher creates a publisher. Without WithAsyncBuffer it is synchronous.
func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufferSize > 0 {
		p.buffer = make(chan audit.Event, p.bufferSize)
		p.done = make(chan struct{})
		go p.drain()
	}
	return p
}

// Emit records an event. Missing id, timestamp and category are filled in.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}

	if p.buffer == nil {
		return p.persist(ctx, event)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.buffer <- event:
		return nil
	default:
		if p.metrics != nil {
			p.metrics.IncDropped()
		}
		return ErrBufferFull
	}
}

// List returns the events recorded for one aid record, when the store supports it.
func (p *Publisher) List(ctx context.Context, recordID id.RecordID) ([]audit.Event, error) {
	lister, ok := p.store.(RecordLister)
	if !ok {
		return nil, ErrListUnsupported
	}
	return lister.ListByRecord(ctx, recordID)
}

// Close stops accepting events and, in async mode, waits for the buffer to drain.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.buffer != nil {
		close(p.buffer)
	}
	p.mu.Unlock()

	if p.done != nil {
		<-p.done
	}
}

func (p *Publisher) drain() {
	defer close(p.done)
	for event := range p.buffer {
		// Persist failures are already logged and counted.
		_ = p.persist(context.Background(), event)
	}
}

func (p *Publisher) persist(ctx context.Context, event audit.Event) error {
	if p.breaker != nil && !p.breaker.Allow() {
		if p.metrics != nil {
			p.metrics.IncCircuitBreakerDropped()
		}
		return ErrCircuitOpen
	}

	start := time.Now()
	err := p.store.Append(ctx, event)
	if p.breaker != nil {
		if err != nil {
			p.breaker.RecordFailure()
		} else {
			p.breaker.RecordSuccess()
		}
		if p.metrics != nil {
			p.metrics.SetCircuitBreakerState(p.breaker.IsOpen())
		}
	}
	if err != nil {
		if p.metrics != nil {
			p.metrics.IncPersistFailures()
		}
		p.logger.ErrorContext(ctx, "audit event persistence failed",
			"action", event.Action,
			"record_id", event.RecordID,
			"program_id", event.ProgramID,
			"error", err,
		)
		return err
	}
	if p.metrics != nil {
		p.metrics.IncEmitted(string(event.Category))
		p.metrics.ObservePersistDuration(time.Since(start).Seconds())
	}
	return nil
}
