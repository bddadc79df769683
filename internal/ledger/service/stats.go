package service

import (
	"context"

	"aidledger/internal/ledger/models"
	"aidledger/internal/ledger/store"
)

// GetStatistics rolls up the ledger as of the call. Nothing is cached.
func (s *Service) GetStatistics(ctx context.Context) (*models.Statistics, error) {
	var stats *models.Statistics
	err := s.store.View(ctx, func(v *store.View) error {
		ix := v.Index()
		byStatus := make(map[models.Status]int, len(models.Statuses))
		for _, st := range models.Statuses {
			byStatus[st] = ix.StatusCount(st)
		}
		active := 0
		for _, p := range v.Programs() {
			if p.IsActive {
				active++
			}
		}
		stats = &models.Statistics{
			TotalRecords:          uint64(v.NextRecordID()) - 1,
			TotalDisbursed:        v.SumAmounts(models.StatusDisbursed, models.StatusCompleted),
			ActivePrograms:        active,
			PendingApplications:   byStatus[models.StatusPending],
			CompletedApplications: byStatus[models.StatusCompleted],
			ByStatus:              byStatus,
		}
		return nil
	})
	if err != nil {
		return nil, coded(err, "failed to compute statistics")
	}
	return stats, nil
}
