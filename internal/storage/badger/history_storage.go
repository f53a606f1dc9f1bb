package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/conectasei/conectasei/internal/interfaces"
	"github.com/conectasei/conectasei/internal/models"
)

// HistoryStorage implements the HistoryStorage interface for Badger
type HistoryStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewHistoryStorage creates a new HistoryStorage instance
func NewHistoryStorage(db *BadgerDB, logger arbor.ILogger) interfaces.HistoryStorage {
	return &HistoryStorage{
		db:     db,
		logger: logger,
	}
}

func (s *HistoryStorage) Append(ctx context.Context, row *models.DocumentHistory) error {
	if row.ID == "" {
		return fmt.Errorf("history ID is required")
	}
	if err := s.db.Store().Insert(row.ID, row); err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

func (s *HistoryStorage) ListByProcess(ctx context.Context, processID string) ([]*models.DocumentHistory, error) {
	var rows []models.DocumentHistory
	query := badgerhold.Where("ProcessID").Eq(processID).Index("ProcessID").
		SortBy("Timestamp").Reverse()
	if err := s.db.Store().Find(&rows, query); err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	result := make([]*models.DocumentHistory, len(rows))
	for i := range rows {
		result[i] = &rows[i]
	}
	return result, nil
}

func (s *HistoryStorage) CountByDocument(ctx context.Context, processID, documentNumber string, status models.DocumentStatus) (int, error) {
	query := badgerhold.Where("ProcessID").Eq(processID).Index("ProcessID").
		And("DocumentNumber").Eq(documentNumber).
		And("NewStatus").Eq(status)
	count, err := s.db.Store().Count(&models.DocumentHistory{}, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}
	return int(count), nil
}
