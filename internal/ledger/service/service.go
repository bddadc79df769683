// Package service is the ledger engine's call surface. Every mutating
// operation takes the authenticated actor, resolves its roles, and runs as one
// store transaction; audit notifications are emitted only after commit.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"aidledger/internal/ledger/metrics"
	"aidledger/internal/ledger/models"
	"aidledger/internal/ledger/roles"
	"aidledger/internal/ledger/store"
	"aidledger/pkg/attrs"
	id "aidledger/pkg/domain"
	dErrors "aidledger/pkg/domain-errors"
	audit "aidledger/pkg/platform/audit"
	"aidledger/pkg/requestcontext"
)

// LedgerStore is the transactional primary store.
type LedgerStore interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx *store.Tx) error) error
	View(ctx context.Context, fn func(v *store.View) error) error
}

// RoleStore answers and changes role membership.
type RoleStore interface {
	Grant(ctx context.Context, role roles.Role, identity id.Identity) error
	Revoke(ctx context.Context, role roles.Role, identity id.Identity) error
	Has(ctx context.Context, role roles.Role, identity id.Identity) (bool, error)
	Members(ctx context.Context, role roles.Role) ([]id.Identity, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// AuditTrail lists the audit events recorded for one aid record.
type AuditTrail interface {
	List(ctx context.Context, recordID id.RecordID) ([]audit.Event, error)
}

// Service orchestrates programs, aid records and their lifecycle.
type Service struct {
	store          LedgerStore
	roles          RoleStore
	logger         *slog.Logger
	auditPublisher AuditPublisher
	auditTrail     AuditTrail
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithAuditTrail(trail AuditTrail) Option {
	return func(s *Service) {
		s.auditTrail = trail
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// New constructs a Service.
func New(ledger LedgerStore, roleStore RoleStore, opts ...Option) *Service {
	s := &Service{
		store:  ledger,
		roles:  roleStore,
		tracer: otel.Tracer("aidledger/internal/ledger/service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// begin starts a span and returns the matching finisher. Call the finisher
// with the address of the named error result.
func (s *Service) begin(ctx context.Context, op string, kv ...attribute.KeyValue) (context.Context, func(*error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "ledger."+op, trace.WithAttributes(kv...))
	return ctx, func(errp *error) {
		if err := *errp; err != nil {
			code := string(dErrors.GetCode(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, code)
			if s.metrics != nil {
				s.metrics.IncrementRejection(op, code)
			}
		}
		if s.metrics != nil {
			s.metrics.ObserveOperation(op, start)
		}
		span.End()
	}
}

// roleSet is the actor's resolved roles for one operation.
type roleSet map[roles.Role]bool

func (rs roleSet) any(want ...roles.Role) bool {
	for _, r := range want {
		if rs[r] {
			return true
		}
	}
	return false
}

// resolveRoles reads every role once so checks inside the transaction never
// touch the role backend while the store lock is held.
func (s *Service) resolveRoles(ctx context.Context, actor id.Identity) (roleSet, error) {
	held := make(roleSet, len(roles.All))
	if actor.IsNil() {
		return held, nil
	}
	for _, r := range roles.All {
		ok, err := s.roles.Has(ctx, r, actor)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve roles")
		}
		held[r] = ok
	}
	return held, nil
}

func notAuthorized(msg string) error {
	return dErrors.Wrap(models.ErrNotAuthorized, dErrors.CodeForbidden, msg)
}

func systemPaused() error {
	return dErrors.Wrap(models.ErrSystemPaused, dErrors.CodeSystemPaused, "ledger is paused")
}

func programNotFound() error {
	return dErrors.Wrap(models.ErrProgramNotFound, dErrors.CodeNotFound, "program not found")
}

func recordNotFound() error {
	return dErrors.Wrap(models.ErrRecordNotFound, dErrors.CodeNotFound, "record not found")
}

// asValidation turns model invariant failures on caller input into
// validation errors for the API, keeping the sentinel cause.
func asValidation(err error) error {
	var de *dErrors.Error
	if !errors.As(err, &de) || de.Code != dErrors.CodeInvariantViolation {
		return err
	}
	return dErrors.Wrap(de.Err, dErrors.CodeValidation, de.Message)
}

// coded leaves coded errors alone and wraps anything else as internal.
func coded(err error, msg string) error {
	var de *dErrors.Error
	if err == nil || errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

// logAudit writes the audit log line and emits the matching audit event.
// Delivery is fire-and-forget: an emit failure is logged, never returned.
func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, event, args...)
	}
	if s.auditPublisher == nil {
		return
	}
	recordID, _ := attrs.Extract[id.RecordID](attributes, "record_id")
	programID, _ := attrs.Extract[id.ProgramID](attributes, "program_id")
	amount, _ := attrs.Extract[uint64](attributes, "amount")
	err := s.auditPublisher.Emit(ctx, audit.Event{
		Timestamp:  requestcontext.Now(ctx),
		Action:     event,
		ActorID:    id.Identity(attrs.ExtractString(attributes, "actor")),
		RecordID:   recordID,
		ProgramID:  programID,
		Amount:     amount,
		FromStatus: attrs.ExtractString(attributes, "from"),
		ToStatus:   attrs.ExtractString(attributes, "to"),
		Reason:     attrs.ExtractString(attributes, "reason"),
		RequestID:  requestcontext.RequestID(ctx),
	})
	if err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "event", event, "error", err)
	}
}
