// Package checkpoint persists ledger snapshots so a restarted process can pick
// up committed state. The ledger itself stays in memory; checkpoints are
// written off the request path by Worker and read back once at start by
// Restore.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"aidledger/internal/ledger/store"
	"aidledger/pkg/platform/sentinel"
)

// Store keeps snapshots. Latest returns sentinel.ErrNotFound when nothing has
// been saved yet.
type Store interface {
	Save(ctx context.Context, snap store.Snapshot) error
	Latest(ctx context.Context) (*store.Snapshot, error)
}

// Importer accepts a restored snapshot.
type Importer interface {
	Import(snap store.Snapshot) error
}

// Restore loads the latest checkpoint into dst. It reports false when there is
// nothing to restore.
func Restore(ctx context.Context, src Store, dst Importer) (bool, error) {
	snap, err := src.Latest(ctx)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load checkpoint: %w", err)
	}
	if err := dst.Import(*snap); err != nil {
		return false, fmt.Errorf("import checkpoint %d: %w", snap.Version, err)
	}
	return true, nil
}

func encode(snap store.Snapshot) ([]byte, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	return payload, nil
}

func decode(payload []byte) (*store.Snapshot, error) {
	var snap store.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return &snap, nil
}
