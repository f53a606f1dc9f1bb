package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/conectasei/conectasei/internal/common"
	"github.com/conectasei/conectasei/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db        *BadgerDB
	tenants   interfaces.TenantStorage
	processes interfaces.ProcessStorage
	tasks     interfaces.TaskStorage
	history   interfaces.HistoryStorage
	schedules interfaces.ScheduleStorage
	config    interfaces.ConfigStorage
	logger    arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:        db,
		tenants:   NewTenantStorage(db, logger),
		processes: NewProcessStorage(db, logger),
		tasks:     NewTaskStorage(db, logger),
		history:   NewHistoryStorage(db, logger),
		schedules: NewScheduleStorage(db, logger),
		config:    NewConfigStorage(db, logger),
		logger:    logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// Tenants returns the tenant storage interface
func (m *Manager) Tenants() interfaces.TenantStorage {
	return m.tenants
}

// Processes returns the process storage interface
func (m *Manager) Processes() interfaces.ProcessStorage {
	return m.processes
}

// Tasks returns the task storage interface
func (m *Manager) Tasks() interfaces.TaskStorage {
	return m.tasks
}

// History returns the document history storage interface
func (m *Manager) History() interfaces.HistoryStorage {
	return m.history
}

// Schedules returns the schedule storage interface
func (m *Manager) Schedules() interfaces.ScheduleStorage {
	return m.schedules
}

// Config returns the system config storage interface
func (m *Manager) Config() interfaces.ConfigStorage {
	return m.config
}

// DeleteTenantCascade removes a tenant and everything keyed to it.
// Processes, tasks and the schedule go first so a crash mid-delete
// leaves the tenant row behind as the marker to retry.
func (m *Manager) DeleteTenantCascade(ctx context.Context, tenantID string) error {
	deleted, err := m.processes.DeleteByTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete tenant processes: %w", err)
	}

	tasksDeleted, err := m.tasks.DeleteByTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete tenant tasks: %w", err)
	}

	if err := m.schedules.Delete(ctx, tenantID); err != nil {
		return fmt.Errorf("failed to delete tenant schedule: %w", err)
	}

	if err := m.tenants.Delete(ctx, tenantID); err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}

	m.logger.Info().
		Str("tenant_id", tenantID).
		Int("processes", deleted).
		Int("tasks", tasksDeleted).
		Msg("Tenant deleted with cascade")

	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
