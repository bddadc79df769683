package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	audit "aidledger/pkg/platform/audit"
)

const archiveSchema = `
CREATE TABLE IF NOT EXISTS audit_archive (
	id          UUID PRIMARY KEY,
	category    TEXT        NOT NULL,
	event_type  TEXT        NOT NULL,
	program_id  TEXT        NOT NULL,
	record_id   BIGINT      NOT NULL,
	actor_id    TEXT        NOT NULL,
	severity    TEXT        NOT NULL,
	payload     JSONB       NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	archived_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_archive_category
	ON audit_archive (category, occurred_at);
`

// Archive is the long-term home of audit events consumed from the stream.
// Rows are keyed by event id, so redelivered events are stored once.
type Archive struct {
	db *sql.DB
}

func NewArchive(db *sql.DB) *Archive {
	return &Archive{db: db}
}

// Migrate creates the archive table when it does not exist.
func (a *Archive) Migrate(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, archiveSchema); err != nil {
		return fmt.Errorf("migrate audit archive: %w", err)
	}
	return nil
}

// Archived is one stored event with the severity assigned by its handler.
type Archived struct {
	Event    audit.Event
	Severity string
}

// Put stores event under severity. It reports false when the event was
// already archived.
func (a *Archive) Put(ctx context.Context, event audit.Event, severity string) (bool, error) {
	payload, err := json.Marshal(toPayload(event))
	if err != nil {
		return false, fmt.Errorf("marshal archived event: %w", err)
	}
	query := `
		INSERT INTO audit_archive
			(id, category, event_type, program_id, record_id, actor_id, severity, payload, occurred_at, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := a.db.ExecContext(ctx, query,
		event.ID,
		string(audit.AuditEvent(event.Action).Category()),
		event.Action,
		event.ProgramID.String(),
		int64(event.RecordID),
		event.ActorID.String(),
		severity,
		payload,
		event.Timestamp,
		time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("insert archived event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("archive rows affected: %w", err)
	}
	return n == 1, nil
}

// ListByCategory returns the newest archived events of one category.
func (a *Archive) ListByCategory(ctx context.Context, category audit.EventCategory, limit int) ([]Archived, error) {
	query := `
		SELECT payload, severity
		FROM audit_archive
		WHERE category = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`
	rows, err := a.db.QueryContext(ctx, query, string(category), limit)
	if err != nil {
		return nil, fmt.Errorf("query audit archive: %w", err)
	}
	defer rows.Close()

	var out []Archived
	for rows.Next() {
		var (
			raw      []byte
			severity string
			payload  outboxPayload
		)
		if err := rows.Scan(&raw, &severity); err != nil {
			return nil, fmt.Errorf("scan archived event: %w", err)
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("decode archived event: %w", err)
		}
		event, err := payload.toEvent()
		if err != nil {
			return nil, err
		}
		out = append(out, Archived{Event: event, Severity: severity})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit archive: %w", err)
	}
	return out, nil
}
