// Package scheduler drives recurring extractions from persisted per-tenant
// schedules. A tick that fires while the previous run is still going is
// dropped, not queued.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/conectasei/conectasei/internal/common"
	"github.com/conectasei/conectasei/internal/interfaces"
	"github.com/conectasei/conectasei/internal/models"
)

// Service owns the cron runner and the live entry per tenant.
type Service struct {
	cron      *cron.Cron
	storage   interfaces.StorageManager
	extractor interfaces.ExtractorService
	logger    arbor.ILogger
	grace     time.Duration

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// NewService creates the scheduler. Start loads persisted schedules.
func NewService(config *common.Config, storage interfaces.StorageManager, extractor interfaces.ExtractorService, logger arbor.ILogger) *Service {
	parser := cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	return &Service{
		cron:      c,
		storage:   storage,
		extractor: extractor,
		logger:    logger,
		grace:     config.Scheduler.ShutdownGrace,
		entries:   map[string]cron.EntryID{},
	}
}

// Start registers every active persisted schedule and starts ticking.
func (s *Service) Start(ctx context.Context) error {
	schedules, err := s.storage.Schedules().ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to load schedules: %w", err)
	}

	for _, schedule := range schedules {
		if err := s.register(schedule); err != nil {
			s.logger.Warn().
				Err(err).
				Str("tenant_id", schedule.TenantID).
				Str("expression", schedule.Expression).
				Msg("Skipping invalid schedule")
		}
	}

	s.cron.Start()
	s.logger.Info().Int("schedules", len(s.entries)).Msg("Scheduler started")
	return nil
}

// Apply persists a schedule and updates the live entry to match. An
// inactive schedule is persisted but not registered.
func (s *Service) Apply(ctx context.Context, schedule *models.ExtractionSchedule) error {
	if _, err := s.specFor(schedule); err != nil {
		return err
	}
	if err := s.storage.Schedules().Save(ctx, schedule); err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}

	s.unregister(schedule.TenantID)
	if !schedule.IsActive {
		return nil
	}
	return s.register(schedule)
}

// Remove drops a tenant's schedule, live and persisted.
func (s *Service) Remove(ctx context.Context, tenantID string) error {
	s.unregister(tenantID)
	return s.storage.Schedules().Delete(ctx, tenantID)
}

// register adds the live cron entry for an active schedule.
func (s *Service) register(schedule *models.ExtractionSchedule) error {
	spec, err := s.specFor(schedule)
	if err != nil {
		return err
	}

	tenantID := schedule.TenantID
	entryID, err := s.cron.AddFunc(spec, func() {
		s.fire(tenantID)
	})
	if err != nil {
		return fmt.Errorf("%w: invalid schedule %q: %v", models.ErrConfig, schedule.Expression, err)
	}

	s.mu.Lock()
	s.entries[tenantID] = entryID
	s.mu.Unlock()

	s.logger.Info().
		Str("tenant_id", tenantID).
		Str("spec", spec).
		Msg("Schedule registered")
	return nil
}

func (s *Service) unregister(tenantID string) {
	s.mu.Lock()
	entryID, ok := s.entries[tenantID]
	if ok {
		delete(s.entries, tenantID)
	}
	s.mu.Unlock()

	if ok {
		s.cron.Remove(entryID)
	}
}

// specFor maps a schedule to a cron spec. Interval schedules carry a Go
// duration expression.
func (s *Service) specFor(schedule *models.ExtractionSchedule) (string, error) {
	switch schedule.Kind {
	case models.ScheduleInterval:
		d, err := time.ParseDuration(schedule.Expression)
		if err != nil || d <= 0 {
			return "", fmt.Errorf("%w: invalid interval %q", models.ErrConfig, schedule.Expression)
		}
		return "@every " + d.String(), nil
	case models.ScheduleCron:
		return schedule.Expression, nil
	default:
		return "", fmt.Errorf("%w: unknown schedule kind %q", models.ErrConfig, schedule.Kind)
	}
}

// fire is one tick. An inactive or deleted tenant skips silently; a run
// already in flight coalesces inside the extractor.
func (s *Service) fire(tenantID string) {
	ctx := context.Background()

	tenant, err := s.storage.Tenants().Get(ctx, tenantID)
	if err != nil || !tenant.IsActive {
		s.logger.Info().
			Str("tenant_id", tenantID).
			Msg("Scheduled extraction skipped, tenant inactive or missing")
		return
	}

	taskID, err := s.extractor.StartExtraction(ctx, tenantID, models.TriggerSchedule)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("tenant_id", tenantID).
			Msg("Scheduled extraction failed to start")
		return
	}
	s.logger.Debug().
		Str("tenant_id", tenantID).
		Str("task_id", taskID).
		Msg("Scheduled extraction fired")
}

// Stop halts ticking and waits for in-flight jobs up to the shutdown grace.
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
		s.logger.Info().Msg("Scheduler drained")
	case <-time.After(s.grace):
		s.logger.Warn().Dur("grace", s.grace).Msg("Scheduler shutdown grace expired")
	}
}
