package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/conectasei/conectasei/internal/interfaces"
	"github.com/conectasei/conectasei/internal/models"
)

// ConfigStorage implements the ConfigStorage interface for Badger
type ConfigStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewConfigStorage creates a new ConfigStorage instance
func NewConfigStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ConfigStorage {
	return &ConfigStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ConfigStorage) Get(ctx context.Context, key string) (json.RawMessage, error) {
	var row models.SystemConfig
	if err := s.db.Store().Get(key, &row); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get config %s: %w", key, err)
	}
	return row.Value, nil
}

func (s *ConfigStorage) Set(ctx context.Context, key string, value json.RawMessage) error {
	row := models.SystemConfig{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}
	if err := s.db.Store().Upsert(key, &row); err != nil {
		return fmt.Errorf("failed to set config %s: %w", key, err)
	}
	return nil
}
