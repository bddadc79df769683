package service

import (
	"context"

	"aidledger/internal/ledger/models"
	"aidledger/internal/ledger/store"
	id "aidledger/pkg/domain"
)

// Reads are open to any caller and see only committed state.

func (s *Service) GetAidRecord(ctx context.Context, recordID id.RecordID) (*models.AidRecord, error) {
	var record *models.AidRecord
	err := s.store.View(ctx, func(v *store.View) error {
		r, err := v.Record(recordID)
		if err != nil {
			return recordNotFound()
		}
		record = r
		return nil
	})
	if err != nil {
		return nil, coded(err, "failed to load record")
	}
	return record, nil
}

// GetHistory returns the record's history, oldest first.
func (s *Service) GetHistory(ctx context.Context, recordID id.RecordID) ([]models.HistoryEntry, error) {
	var history []models.HistoryEntry
	err := s.store.View(ctx, func(v *store.View) error {
		h, err := v.History(recordID)
		if err != nil {
			return recordNotFound()
		}
		history = h
		return nil
	})
	if err != nil {
		return nil, coded(err, "failed to load history")
	}
	return history, nil
}

// listBy resolves one index bucket to records in bucket order.
func (s *Service) listBy(ctx context.Context, ids func(ix store.IndexReader) []id.RecordID) ([]*models.AidRecord, error) {
	var records []*models.AidRecord
	err := s.store.View(ctx, func(v *store.View) error {
		records = v.Records(ids(v.Index()))
		return nil
	})
	if err != nil {
		return nil, coded(err, "failed to list records")
	}
	return records, nil
}

// ListAll returns every record in issuance order.
func (s *Service) ListAll(ctx context.Context) ([]*models.AidRecord, error) {
	return s.listBy(ctx, func(ix store.IndexReader) []id.RecordID { return ix.All() })
}

func (s *Service) ListByProgram(ctx context.Context, programID id.ProgramID) ([]*models.AidRecord, error) {
	return s.listBy(ctx, func(ix store.IndexReader) []id.RecordID { return ix.ByProgram(programID) })
}

// ListByStatus returns the records currently in status. Bucket order changes
// as records move in and out.
func (s *Service) ListByStatus(ctx context.Context, status models.Status) ([]*models.AidRecord, error) {
	return s.listBy(ctx, func(ix store.IndexReader) []id.RecordID { return ix.ByStatus(status) })
}

func (s *Service) ListByCategory(ctx context.Context, category models.Category) ([]*models.AidRecord, error) {
	return s.listBy(ctx, func(ix store.IndexReader) []id.RecordID { return ix.ByCategory(category) })
}

// ListByLocation matches on the normalized province/city/district/village key.
func (s *Service) ListByLocation(ctx context.Context, loc models.Location) ([]*models.AidRecord, error) {
	return s.listBy(ctx, func(ix store.IndexReader) []id.RecordID { return ix.ByLocation(loc) })
}

// ListByBeneficiary spans every program the beneficiary claimed under.
func (s *Service) ListByBeneficiary(ctx context.Context, b id.BeneficiaryHash) ([]*models.AidRecord, error) {
	return s.listBy(ctx, func(ix store.IndexReader) []id.RecordID { return ix.ByBeneficiary(b) })
}

// IsClaimed reports whether the beneficiary ever claimed under the program.
func (s *Service) IsClaimed(ctx context.Context, b id.BeneficiaryHash, programID id.ProgramID) (bool, error) {
	var claimed bool
	err := s.store.View(ctx, func(v *store.View) error {
		claimed = v.IsClaimed(id.NewClaimKey(b, programID))
		return nil
	})
	return claimed, coded(err, "failed to check claim")
}

// HasClaimedAny reports whether the beneficiary ever claimed under any program.
func (s *Service) HasClaimedAny(ctx context.Context, b id.BeneficiaryHash) (bool, error) {
	var claimed bool
	err := s.store.View(ctx, func(v *store.View) error {
		claimed = v.HasClaimedAny(b)
		return nil
	})
	return claimed, coded(err, "failed to check claim")
}

// EmergencyActions returns the emergency log, oldest first.
func (s *Service) EmergencyActions(ctx context.Context) ([]models.EmergencyAction, error) {
	var actions []models.EmergencyAction
	err := s.store.View(ctx, func(v *store.View) error {
		actions = v.EmergencyActions()
		return nil
	})
	if err != nil {
		return nil, coded(err, "failed to load emergency log")
	}
	return actions, nil
}

// Settings is the ledger's process-wide switches.
type Settings struct {
	Paused           bool `json:"paused"`
	ApprovalRequired bool `json:"approval_required"`
}

// SyncMetrics sets state gauges from committed state. Call it after the store
// was restored from a checkpoint.
func (s *Service) SyncMetrics(ctx context.Context) error {
	settings, err := s.GetSettings(ctx)
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.SetPaused(settings.Paused)
	}
	return nil
}

func (s *Service) GetSettings(ctx context.Context) (Settings, error) {
	var settings Settings
	err := s.store.View(ctx, func(v *store.View) error {
		settings = Settings{Paused: v.Paused(), ApprovalRequired: v.ApprovalRequired()}
		return nil
	})
	return settings, coded(err, "failed to load settings")
}
