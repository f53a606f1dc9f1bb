package interfaces

import (
	"context"
	"encoding/json"

	"github.com/conectasei/conectasei/internal/models"
)

// TenantStorage provides access to tenant rows.
type TenantStorage interface {
	Save(ctx context.Context, tenant *models.Tenant) error
	Get(ctx context.Context, id string) (*models.Tenant, error)
	List(ctx context.Context, activeOnly bool) ([]*models.Tenant, error)
	Delete(ctx context.Context, id string) error
}

// ProcessStorage provides access to process rows. (tenant_id, process_number)
// is unique; Upsert enforces it by deriving the storage key from the pair.
type ProcessStorage interface {
	Upsert(ctx context.Context, process *models.Process) error
	GetByID(ctx context.Context, id string) (*models.Process, error)
	GetByNumber(ctx context.Context, tenantID, processNumber string) (*models.Process, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*models.Process, error)
	DeleteByTenant(ctx context.Context, tenantID string) (int, error)
}

// TaskStorage mirrors extraction and download tasks for durability across
// restarts. In-memory state is authoritative only while a task runs.
type TaskStorage interface {
	SaveExtraction(ctx context.Context, task *models.ExtractionTask) error
	GetExtraction(ctx context.Context, id string) (*models.ExtractionTask, error)
	ListExtractionsByTenant(ctx context.Context, tenantID string, limit int) ([]*models.ExtractionTask, error)
	RunningExtractionForTenant(ctx context.Context, tenantID string) (*models.ExtractionTask, error)
	SaveDownload(ctx context.Context, task *models.DownloadTask) error
	GetDownload(ctx context.Context, id string) (*models.DownloadTask, error)
	// MarkRunningAsFailed flips every running or pending task to failed with
	// the given reason. Called once at startup to clean up orphans.
	MarkRunningAsFailed(ctx context.Context, reason string) (int, error)
	DeleteByTenant(ctx context.Context, tenantID string) (int, error)
}

// HistoryStorage is the append-only audit of document download attempts.
type HistoryStorage interface {
	Append(ctx context.Context, row *models.DocumentHistory) error
	ListByProcess(ctx context.Context, processID string) ([]*models.DocumentHistory, error)
	CountByDocument(ctx context.Context, processID, documentNumber string, status models.DocumentStatus) (int, error)
}

// ScheduleStorage holds the zero-or-one extraction schedule per tenant.
type ScheduleStorage interface {
	Save(ctx context.Context, schedule *models.ExtractionSchedule) error
	Get(ctx context.Context, tenantID string) (*models.ExtractionSchedule, error)
	ListActive(ctx context.Context) ([]*models.ExtractionSchedule, error)
	Delete(ctx context.Context, tenantID string) error
}

// ConfigStorage is the system_config key/value bag.
type ConfigStorage interface {
	Get(ctx context.Context, key string) (json.RawMessage, error)
	Set(ctx context.Context, key string, value json.RawMessage) error
}

// StorageManager bundles the typed storages over one database connection.
type StorageManager interface {
	Tenants() TenantStorage
	Processes() ProcessStorage
	Tasks() TaskStorage
	History() HistoryStorage
	Schedules() ScheduleStorage
	Config() ConfigStorage

	// DeleteTenantCascade removes a tenant together with its processes,
	// tasks and schedule.
	DeleteTenantCascade(ctx context.Context, tenantID string) error

	Close() error
}
