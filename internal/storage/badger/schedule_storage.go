package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/conectasei/conectasei/internal/interfaces"
	"github.com/conectasei/conectasei/internal/models"
)

// ScheduleStorage implements the ScheduleStorage interface for Badger
type ScheduleStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewScheduleStorage creates a new ScheduleStorage instance
func NewScheduleStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ScheduleStorage {
	return &ScheduleStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ScheduleStorage) Save(ctx context.Context, schedule *models.ExtractionSchedule) error {
	if schedule.TenantID == "" {
		return fmt.Errorf("schedule tenant ID is required")
	}
	if err := s.db.Store().Upsert(schedule.TenantID, schedule); err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}
	return nil
}

func (s *ScheduleStorage) Get(ctx context.Context, tenantID string) (*models.ExtractionSchedule, error) {
	var schedule models.ExtractionSchedule
	if err := s.db.Store().Get(tenantID, &schedule); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("schedule not found: %s", tenantID)
		}
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return &schedule, nil
}

func (s *ScheduleStorage) ListActive(ctx context.Context) ([]*models.ExtractionSchedule, error) {
	var schedules []models.ExtractionSchedule
	if err := s.db.Store().Find(&schedules, badgerhold.Where("IsActive").Eq(true)); err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}

	result := make([]*models.ExtractionSchedule, len(schedules))
	for i := range schedules {
		result[i] = &schedules[i]
	}
	return result, nil
}

func (s *ScheduleStorage) Delete(ctx context.Context, tenantID string) error {
	if err := s.db.Store().Delete(tenantID, &models.ExtractionSchedule{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	return nil
}
