package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	id "aidledger/pkg/domain"
	audit "aidledger/pkg/platform/audit"
	txcontext "aidledger/pkg/platform/tx"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // postgres driver for database/sql
)

// Store implements audit.Store using the transactional outbox pattern.
// Events are written to the outbox table and forwarded to the stream by the
// outbox relay worker.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to Postgres through lib/pq and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping audit database: %w", err)
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS audit_outbox (
	id             UUID PRIMARY KEY,
	aggregate_type TEXT        NOT NULL,
	aggregate_id   TEXT        NOT NULL,
	event_type     TEXT        NOT NULL,
	category       TEXT        NOT NULL,
	payload        JSONB       NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	published_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS audit_outbox_unpublished
	ON audit_outbox (created_at) WHERE published_at IS NULL;
`

// Migrate creates the outbox table when it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate audit outbox: %w", err)
	}
	return nil
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// outboxPayload is the JSON structure forwarded to the stream.
// Field names match audit.Event for proper deserialization by consumers.
type outboxPayload struct {
	ID         string `json:"ID"`
	Category   string `json:"Category"`
	Timestamp  string `json:"Timestamp"`
	Action     string `json:"Action"`
	ActorID    string `json:"ActorID,omitempty"`
	RecordID   uint64 `json:"RecordID,omitempty"`
	ProgramID  string `json:"ProgramID,omitempty"`
	Amount     uint64 `json:"Amount,omitempty"`
	FromStatus string `json:"FromStatus,omitempty"`
	ToStatus   string `json:"ToStatus,omitempty"`
	Reason     string `json:"Reason,omitempty"`
	RequestID  string `json:"RequestID,omitempty"`
}

func toPayload(event audit.Event) outboxPayload {
	return outboxPayload{
		ID:         event.ID,
		Category:   string(event.Category),
		Timestamp:  event.Timestamp.Format(time.RFC3339Nano),
		Action:     event.Action,
		ActorID:    event.ActorID.String(),
		RecordID:   uint64(event.RecordID),
		ProgramID:  event.ProgramID.String(),
		Amount:     event.Amount,
		FromStatus: event.FromStatus,
		ToStatus:   event.ToStatus,
		Reason:     event.Reason,
		RequestID:  event.RequestID,
	}
}

func (p outboxPayload) toEvent() (audit.Event, error) {
	ts, err := time.Parse(time.RFC3339Nano, p.Timestamp)
	if err != nil {
		return audit.Event{}, fmt.Errorf("parse audit timestamp: %w", err)
	}
	return audit.Event{
		ID:         p.ID,
		Category:   audit.EventCategory(p.Category),
		Timestamp:  ts,
		Action:     p.Action,
		ActorID:    id.Identity(p.ActorID),
		RecordID:   id.RecordID(p.RecordID),
		ProgramID:  id.ProgramID(p.ProgramID),
		Amount:     p.Amount,
		FromStatus: p.FromStatus,
		ToStatus:   p.ToStatus,
		Reason:     p.Reason,
		RequestID:  p.RequestID,
	}, nil
}

// Append writes an audit event to the outbox table.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	// Always derive category from action - eventCategories map is the source of truth
	event.Category = audit.AuditEvent(event.Action).Category()

	payloadBytes, err := json.Marshal(toPayload(event))
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	aggregateType := "program"
	aggregateID := event.ProgramID.String()
	if event.RecordID != 0 {
		aggregateType = "record"
		aggregateID = event.RecordID.String()
	}

	query := `
		INSERT INTO audit_outbox (id, aggregate_type, aggregate_id, event_type, category, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		event.ID,
		aggregateType,
		aggregateID,
		event.Action,
		string(event.Category),
		payloadBytes,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// Pending is an outbox row that has not been forwarded yet.
type Pending struct {
	OutboxID string
	Event    audit.Event
}

// ListUnpublished returns up to limit unforwarded events, oldest first.
func (s *Store) ListUnpublished(ctx context.Context, limit int) ([]Pending, error) {
	query := `
		SELECT id, payload
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit outbox: %w", err)
	}
	defer rows.Close()

	var pending []Pending
	for rows.Next() {
		var (
			outboxID string
			raw      []byte
			payload  outboxPayload
		)
		if err := rows.Scan(&outboxID, &raw); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("decode outbox payload: %w", err)
		}
		event, err := payload.toEvent()
		if err != nil {
			return nil, err
		}
		pending = append(pending, Pending{OutboxID: outboxID, Event: event})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit outbox: %w", err)
	}
	return pending, nil
}

// MarkPublished stamps an outbox row as forwarded.
func (s *Store) MarkPublished(ctx context.Context, outboxID string, at time.Time) error {
	_, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE audit_outbox SET published_at = $2 WHERE id = $1`, outboxID, at)
	if err != nil {
		return fmt.Errorf("mark outbox entry published: %w", err)
	}
	return nil
}

// ListByRecord returns the events recorded for one aid record, oldest first.
func (s *Store) ListByRecord(ctx context.Context, recordID id.RecordID) ([]audit.Event, error) {
	query := `
		SELECT payload
		FROM audit_outbox
		WHERE aggregate_type = 'record' AND aggregate_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, recordID.String())
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			raw     []byte
			payload outboxPayload
		)
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("decode audit event: %w", err)
		}
		event, err := payload.toEvent()
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
