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

// TenantStorage implements the TenantStorage interface for Badger
type TenantStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTenantStorage creates a new TenantStorage instance
func NewTenantStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TenantStorage {
	return &TenantStorage{
		db:     db,
		logger: logger,
	}
}

func (s *TenantStorage) Save(ctx context.Context, tenant *models.Tenant) error {
	if tenant.ID == "" {
		return fmt.Errorf("tenant ID is required")
	}
	tenant.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(tenant.ID, tenant); err != nil {
		return fmt.Errorf("failed to save tenant: %w", err)
	}
	return nil
}

func (s *TenantStorage) Get(ctx context.Context, id string) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := s.db.Store().Get(id, &tenant); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("tenant not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return &tenant, nil
}

func (s *TenantStorage) List(ctx context.Context, activeOnly bool) ([]*models.Tenant, error) {
	query := badgerhold.Where("ID").Ne("")
	if activeOnly {
		query = query.And("IsActive").Eq(true)
	}

	var tenants []models.Tenant
	if err := s.db.Store().Find(&tenants, query.SortBy("Name")); err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}

	result := make([]*models.Tenant, len(tenants))
	for i := range tenants {
		result[i] = &tenants[i]
	}
	return result, nil
}

func (s *TenantStorage) Delete(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.Tenant{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete tenant: %w", err)
	}
	return nil
}
