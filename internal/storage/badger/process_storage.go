package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/conectasei/conectasei/internal/common"
	"github.com/conectasei/conectasei/internal/interfaces"
	"github.com/conectasei/conectasei/internal/models"
)

// ProcessStorage implements the ProcessStorage interface for Badger
type ProcessStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewProcessStorage creates a new ProcessStorage instance
func NewProcessStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ProcessStorage {
	return &ProcessStorage{
		db:     db,
		logger: logger,
	}
}

// Upsert saves a process, keeping (tenant_id, process_number) unique. A
// process with no ID adopts the ID of the stored row for the same pair, or
// mints a fresh one.
func (s *ProcessStorage) Upsert(ctx context.Context, process *models.Process) error {
	if process.TenantID == "" || process.ProcessNumber == "" {
		return fmt.Errorf("process tenant ID and number are required")
	}

	if process.ID == "" {
		existing, err := s.GetByNumber(ctx, process.TenantID, process.ProcessNumber)
		if err == nil {
			process.ID = existing.ID
			process.CreatedAt = existing.CreatedAt
		} else {
			process.ID = common.NewProcessID()
		}
	}

	if err := s.db.Store().Upsert(process.ID, process); err != nil {
		return fmt.Errorf("failed to save process: %w", err)
	}
	return nil
}

func (s *ProcessStorage) GetByID(ctx context.Context, id string) (*models.Process, error) {
	var process models.Process
	if err := s.db.Store().Get(id, &process); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("process not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get process: %w", err)
	}
	return &process, nil
}

func (s *ProcessStorage) GetByNumber(ctx context.Context, tenantID, processNumber string) (*models.Process, error) {
	var processes []models.Process
	query := badgerhold.Where("TenantID").Eq(tenantID).Index("TenantID").
		And("ProcessNumber").Eq(processNumber).Limit(1)
	if err := s.db.Store().Find(&processes, query); err != nil {
		return nil, fmt.Errorf("failed to query process: %w", err)
	}
	if len(processes) == 0 {
		return nil, fmt.Errorf("process not found: %s/%s", tenantID, processNumber)
	}
	return &processes[0], nil
}

func (s *ProcessStorage) ListByTenant(ctx context.Context, tenantID string) ([]*models.Process, error) {
	var processes []models.Process
	query := badgerhold.Where("TenantID").Eq(tenantID).Index("TenantID").SortBy("ProcessNumber")
	if err := s.db.Store().Find(&processes, query); err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	result := make([]*models.Process, len(processes))
	for i := range processes {
		result[i] = &processes[i]
	}
	return result, nil
}

func (s *ProcessStorage) DeleteByTenant(ctx context.Context, tenantID string) (int, error) {
	var processes []models.Process
	query := badgerhold.Where("TenantID").Eq(tenantID).Index("TenantID")
	if err := s.db.Store().Find(&processes, query); err != nil {
		return 0, fmt.Errorf("failed to list processes for delete: %w", err)
	}

	deleted := 0
	for i := range processes {
		if err := s.db.Store().Delete(processes[i].ID, &models.Process{}); err != nil {
			return deleted, fmt.Errorf("failed to delete process %s: %w", processes[i].ID, err)
		}
		deleted++
	}
	return deleted, nil
}
