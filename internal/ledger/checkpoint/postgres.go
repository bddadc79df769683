package checkpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"

	"aidledger/internal/ledger/store"
	"aidledger/pkg/platform/sentinel"
)

const checkpointTable = "ledger_checkpoints"

const checkpointSchema = `
CREATE TABLE IF NOT EXISTS ledger_checkpoints (
	version  BIGINT      PRIMARY KEY,
	taken_at TIMESTAMPTZ NOT NULL,
	payload  JSONB       NOT NULL
);
`

func psql() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

type checkpointRow struct {
	Version int64     `db:"version"`
	TakenAt time.Time `db:"taken_at"`
	Payload []byte    `db:"payload"`
}

// PostgresStore keeps checkpoints in one table keyed by ledger version.
type PostgresStore struct {
	pool *pgxpool.Pool
	keep int
}

// NewPostgresStore keeps the newest keep checkpoints; keep <= 0 keeps all.
func NewPostgresStore(pool *pgxpool.Pool, keep int) *PostgresStore {
	return &PostgresStore{pool: pool, keep: keep}
}

// OpenPool connects a pgx pool and verifies the connection.
func OpenPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping checkpoint database: %w", err)
	}
	return pool, nil
}

// Migrate creates the checkpoint table when it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, checkpointSchema); err != nil {
		return fmt.Errorf("migrate checkpoints: %w", err)
	}
	return nil
}

// Save upserts snap under its version and prunes older checkpoints.
func (s *PostgresStore) Save(ctx context.Context, snap store.Snapshot) error {
	payload, err := encode(snap)
	if err != nil {
		return err
	}

	query, args, err := psql().
		Insert(checkpointTable).
		Columns("version", "taken_at", "payload").
		Values(int64(snap.Version), snap.TakenAt, payload).
		Suffix("ON CONFLICT (version) DO UPDATE SET taken_at = EXCLUDED.taken_at, payload = EXCLUDED.payload").
		ToSql()
	if err != nil {
		return fmt.Errorf("build checkpoint insert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("save checkpoint %d: %w", snap.Version, err)
	}

	if s.keep <= 0 {
		return nil
	}
	query, args, err = psql().
		Delete(checkpointTable).
		Where("version NOT IN (SELECT version FROM "+checkpointTable+" ORDER BY version DESC LIMIT ?)", s.keep).
		ToSql()
	if err != nil {
		return fmt.Errorf("build checkpoint prune: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("prune checkpoints: %w", err)
	}
	return nil
}

// Latest returns the checkpoint with the highest version.
func (s *PostgresStore) Latest(ctx context.Context) (*store.Snapshot, error) {
	query, args, err := psql().
		Select("version", "taken_at", "payload").
		From(checkpointTable).
		OrderBy("version DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build checkpoint query: %w", err)
	}

	var row checkpointRow
	if err := pgxscan.Get(ctx, s.pool, &row, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return decode(row.Payload)
}

// Count returns how many checkpoints are kept.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	query, args, err := psql().Select("COUNT(*)").From(checkpointTable).ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := pgxscan.Get(ctx, s.pool, &n, query, args...); err != nil {
		return 0, fmt.Errorf("count checkpoints: %w", err)
	}
	return n, nil
}
