package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/conectasei/conectasei/internal/interfaces"
	"github.com/conectasei/conectasei/internal/models"
)

// TaskStorage implements the TaskStorage interface for Badger
type TaskStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTaskStorage creates a new TaskStorage instance
func NewTaskStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TaskStorage {
	return &TaskStorage{
		db:     db,
		logger: logger,
	}
}

func (s *TaskStorage) SaveExtraction(ctx context.Context, task *models.ExtractionTask) error {
	if task.ID == "" {
		return fmt.Errorf("task ID is required")
	}
	if err := s.db.Store().Upsert(task.ID, task); err != nil {
		return fmt.Errorf("failed to save extraction task: %w", err)
	}
	return nil
}

func (s *TaskStorage) GetExtraction(ctx context.Context, id string) (*models.ExtractionTask, error) {
	var task models.ExtractionTask
	if err := s.db.Store().Get(id, &task); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("extraction task not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get extraction task: %w", err)
	}
	return &task, nil
}

func (s *TaskStorage) ListExtractionsByTenant(ctx context.Context, tenantID string, limit int) ([]*models.ExtractionTask, error) {
	query := badgerhold.Where("TenantID").Eq(tenantID).Index("TenantID").
		SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var tasks []models.ExtractionTask
	if err := s.db.Store().Find(&tasks, query); err != nil {
		return nil, fmt.Errorf("failed to list extraction tasks: %w", err)
	}

	result := make([]*models.ExtractionTask, len(tasks))
	for i := range tasks {
		result[i] = &tasks[i]
	}
	return result, nil
}

func (s *TaskStorage) RunningExtractionForTenant(ctx context.Context, tenantID string) (*models.ExtractionTask, error) {
	var tasks []models.ExtractionTask
	query := badgerhold.Where("TenantID").Eq(tenantID).Index("TenantID").
		And("Status").In(models.TaskPending, models.TaskRunning).Limit(1)
	if err := s.db.Store().Find(&tasks, query); err != nil {
		return nil, fmt.Errorf("failed to query running extraction: %w", err)
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	return &tasks[0], nil
}

func (s *TaskStorage) SaveDownload(ctx context.Context, task *models.DownloadTask) error {
	if task.ID == "" {
		return fmt.Errorf("task ID is required")
	}
	if err := s.db.Store().Upsert(task.ID, task); err != nil {
		return fmt.Errorf("failed to save download task: %w", err)
	}
	return nil
}

func (s *TaskStorage) GetDownload(ctx context.Context, id string) (*models.DownloadTask, error) {
	var task models.DownloadTask
	if err := s.db.Store().Get(id, &task); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("download task not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get download task: %w", err)
	}
	return &task, nil
}

// MarkRunningAsFailed flips every non-terminal task to failed. Runs once at
// startup; any task found running at that point belonged to a dead process.
func (s *TaskStorage) MarkRunningAsFailed(ctx context.Context, reason string) (int, error) {
	now := time.Now()
	count := 0

	var extractions []models.ExtractionTask
	query := badgerhold.Where("Status").In(models.TaskPending, models.TaskRunning)
	if err := s.db.Store().Find(&extractions, query); err != nil {
		return 0, fmt.Errorf("failed to query running extraction tasks: %w", err)
	}
	for i := range extractions {
		extractions[i].Status = models.TaskFailed
		extractions[i].ErrorMessage = reason
		extractions[i].FinishedAt = &now
		if err := s.db.Store().Upsert(extractions[i].ID, &extractions[i]); err != nil {
			return count, fmt.Errorf("failed to fail extraction task %s: %w", extractions[i].ID, err)
		}
		count++
	}

	var downloads []models.DownloadTask
	if err := s.db.Store().Find(&downloads, badgerhold.Where("Status").In(models.TaskPending, models.TaskRunning)); err != nil {
		return count, fmt.Errorf("failed to query running download tasks: %w", err)
	}
	for i := range downloads {
		downloads[i].Status = models.TaskFailed
		downloads[i].ErrorMessage = reason
		downloads[i].FinishedAt = &now
		if err := s.db.Store().Upsert(downloads[i].ID, &downloads[i]); err != nil {
			return count, fmt.Errorf("failed to fail download task %s: %w", downloads[i].ID, err)
		}
		count++
	}

	if count > 0 {
		s.logger.Warn().Int("count", count).Str("reason", reason).Msg("Marked stale tasks as failed")
	}
	return count, nil
}

func (s *TaskStorage) DeleteByTenant(ctx context.Context, tenantID string) (int, error) {
	var tasks []models.ExtractionTask
	query := badgerhold.Where("TenantID").Eq(tenantID).Index("TenantID")
	if err := s.db.Store().Find(&tasks, query); err != nil {
		return 0, fmt.Errorf("failed to list tasks for delete: %w", err)
	}

	deleted := 0
	for i := range tasks {
		if err := s.db.Store().Delete(tasks[i].ID, &models.ExtractionTask{}); err != nil {
			return deleted, fmt.Errorf("failed to delete task %s: %w", tasks[i].ID, err)
		}
		deleted++
	}
	return deleted, nil
}
