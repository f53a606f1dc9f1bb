// Package extractor implements the two-phase extraction pipeline: a
// single-threaded discovery pass over the process listing, then a bounded
// fan-out that visits every known process to refresh links, access, and
// documents.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/conectasei/conectasei/internal/common"
	"github.com/conectasei/conectasei/internal/interfaces"
	"github.com/conectasei/conectasei/internal/models"
	"github.com/conectasei/conectasei/internal/services/search"
	"github.com/conectasei/conectasei/internal/services/tasks"
)

// Service runs extractions. One run per tenant at a time; concurrent start
// requests coalesce onto the running task.
type Service struct {
	config   *common.Config
	storage  interfaces.StorageManager
	pool     interfaces.BrowserPool
	registry interfaces.PluginRegistry
	vault    interfaces.CredentialVault
	notifier interfaces.Notifier
	tasks    *tasks.Registry
	index    *search.Index
	logger   arbor.ILogger

	mu     sync.Mutex
	active map[string]string // tenant ID -> running task ID
}

// NewService wires the extraction pipeline.
func NewService(
	config *common.Config,
	storage interfaces.StorageManager,
	pool interfaces.BrowserPool,
	registry interfaces.PluginRegistry,
	vault interfaces.CredentialVault,
	notifier interfaces.Notifier,
	taskRegistry *tasks.Registry,
	index *search.Index,
	logger arbor.ILogger,
) *Service {
	return &Service{
		config:   config,
		storage:  storage,
		pool:     pool,
		registry: registry,
		vault:    vault,
		notifier: notifier,
		tasks:    taskRegistry,
		index:    index,
		logger:   logger,
		active:   map[string]string{},
	}
}

var _ interfaces.ExtractorService = (*Service)(nil)

// StartExtraction validates the tenant, creates the task row and launches
// the run. A tenant with a run already active gets that run's task ID back.
func (s *Service) StartExtraction(ctx context.Context, tenantID, trigger string) (string, error) {
	s.mu.Lock()
	if taskID, ok := s.active[tenantID]; ok {
		s.mu.Unlock()
		s.logger.Info().
			Str("tenant_id", tenantID).
			Str("task_id", taskID).
			Msg("Extraction already running, coalescing")
		return taskID, nil
	}
	s.mu.Unlock()

	tenant, err := s.storage.Tenants().Get(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrConfig, err)
	}
	if !tenant.IsActive {
		return "", fmt.Errorf("%w: tenant %s is inactive", models.ErrConfig, tenantID)
	}
	if tenant.UpstreamURL == "" {
		return "", fmt.Errorf("%w: tenant %s has no upstream URL", models.ErrConfig, tenantID)
	}

	plugin, err := s.registry.Resolve(tenant.ScraperVersion)
	if err != nil {
		return "", err
	}
	creds, err := s.vault.Decrypt(tenant.EncryptedCredentials)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrConfig, err)
	}
	if creds.Email == "" {
		return "", fmt.Errorf("%w: tenant %s has no credentials", models.ErrConfig, tenantID)
	}

	task := models.NewExtractionTask(tenantID, trigger)

	s.mu.Lock()
	if taskID, ok := s.active[tenantID]; ok {
		s.mu.Unlock()
		return taskID, nil
	}
	s.active[tenantID] = task.ID
	s.mu.Unlock()

	if err := s.storage.Tasks().SaveExtraction(ctx, task); err != nil {
		s.clearActive(tenantID)
		return "", fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}

	go s.run(task, tenant, plugin, creds)

	s.logger.Info().
		Str("tenant_id", tenantID).
		Str("task_id", task.ID).
		Str("trigger", trigger).
		Msg("Extraction started")
	return task.ID, nil
}

func (s *Service) clearActive(tenantID string) {
	s.mu.Lock()
	delete(s.active, tenantID)
	s.mu.Unlock()
}

// run is the task goroutine. It owns the task row until a terminal state.
func (s *Service) run(task *models.ExtractionTask, tenant *models.Tenant, plugin interfaces.ScraperPlugin, creds models.Credentials) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Extractor.RunTimeout)
	s.tasks.Track(task.ID, cancel)
	defer func() {
		cancel()
		s.tasks.Untrack(task.ID)
		s.clearActive(tenant.ID)
	}()

	defer func() {
		if r := recover(); r != nil {
			crashPath := common.WriteCrashFile(r, string(debug.Stack()))
			s.logger.Error().
				Str("task_id", task.ID).
				Str("crash_file", crashPath).
				Msg("Extraction run panicked")
			s.finalize(task, nil, fmt.Errorf("extraction panicked: %v", r))
		}
	}()

	now := time.Now()
	task.Status = models.TaskRunning
	task.StartedAt = &now
	s.saveTask(task)

	stats, err := s.execute(ctx, task, tenant, plugin, creds)
	s.finalize(task, stats, err)

	if err == nil && stats != nil {
		s.sendNotifications(tenant, stats)
	}
}

// execute runs both pipeline phases and returns the accumulated stats.
func (s *Service) execute(ctx context.Context, task *models.ExtractionTask, tenant *models.Tenant, plugin interfaces.ScraperPlugin, creds models.Credentials) (*runStats, error) {
	listings, err := s.discover(ctx, tenant, plugin, creds)
	if err != nil {
		return nil, err
	}

	// All links discovered for a process number travel with its work item;
	// the visit registers every one on the process before walking them.
	discovered := map[string][]string{}
	for _, l := range listings {
		discovered[l.ProcessNumber] = append(discovered[l.ProcessNumber], l.LinkID)
	}

	existing, err := s.storage.Processes().ListByTenant(ctx, tenant.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	byNumber := map[string]*models.Process{}
	for _, p := range existing {
		byNumber[p.ProcessNumber] = p
	}

	stats := newRunStats()
	stats.summary.Discovered = len(discovered)

	type workItem struct {
		proc  *models.Process
		links []string
	}
	var work []workItem

	for number, links := range discovered {
		proc, ok := byNumber[number]
		if !ok {
			proc = models.NewProcess(common.NewProcessID(), tenant.ID, number)
			stats.summary.NewProcesses++
		}
		work = append(work, workItem{proc: proc, links: links})
		delete(byNumber, number)
	}
	// Processes no longer listed still get their stored links rechecked.
	for _, proc := range byNumber {
		work = append(work, workItem{proc: proc})
	}

	sort.Slice(work, func(i, j int) bool {
		return work[i].proc.ProcessNumber < work[j].proc.ProcessNumber
	})

	total := len(work)
	processed := 0
	sem := make(chan struct{}, s.config.Extractor.WorkerLimit)
	var wg sync.WaitGroup

	for _, item := range work {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(proc *models.Process, links []string) {
			defer wg.Done()
			defer func() { <-sem }()
			s.visitProcess(ctx, tenant, plugin, creds, proc, links, stats)

			// Snapshot under the lock; persisting the shared struct while
			// another worker writes Progress races in the encoder.
			stats.mu.Lock()
			processed++
			task.Progress = processed * 100 / total
			snapshot := *task
			stats.mu.Unlock()
			s.saveTask(&snapshot)
		}(item.proc, item.links)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("extraction run aborted: %w", err)
	}
	return stats, nil
}

// discover is phase one: a single session pass over the listing.
// An authentication failure gets one fresh login before giving up.
func (s *Service) discover(ctx context.Context, tenant *models.Tenant, plugin interfaces.ScraperPlugin, creds models.Credentials) ([]models.ProcessListing, error) {
	session, err := s.acquire(ctx, tenant, creds, plugin)
	if err != nil {
		return nil, err
	}
	defer session.Release()

	listings, err := plugin.ListProcesses(session)
	if err != nil {
		return nil, err
	}

	valid := listings[:0]
	for _, l := range listings {
		if models.ValidProcessNumber(l.ProcessNumber) && l.LinkID != "" {
			valid = append(valid, l)
		}
	}
	s.logger.Info().
		Str("tenant_id", tenant.ID).
		Int("listings", len(valid)).
		Msg("Discovery pass complete")
	return valid, nil
}

// acquire gets an authenticated session, retrying once on a rejected login.
func (s *Service) acquire(ctx context.Context, tenant *models.Tenant, creds models.Credentials, plugin interfaces.ScraperPlugin) (interfaces.Session, error) {
	session, err := s.pool.Acquire(ctx, tenant, creds, plugin)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, models.ErrAuth) {
		return nil, err
	}
	s.logger.Warn().Str("tenant_id", tenant.ID).Err(err).Msg("Login rejected, retrying once")
	return s.pool.Acquire(ctx, tenant, creds, plugin)
}

func (s *Service) saveTask(task *models.ExtractionTask) {
	if err := s.storage.Tasks().SaveExtraction(context.Background(), task); err != nil {
		s.logger.Warn().Err(err).Str("task_id", task.ID).Msg("Failed to persist task progress")
	}
}

// finalize writes the terminal state unless the row already reached one
// (a cancel writes its own terminal state).
func (s *Service) finalize(task *models.ExtractionTask, stats *runStats, runErr error) {
	stored, err := s.storage.Tasks().GetExtraction(context.Background(), task.ID)
	if err == nil && stored.Terminal() {
		return
	}

	now := time.Now()
	task.FinishedAt = &now
	task.Progress = 100
	if stats != nil {
		summary := stats.summary
		task.ResultSummary = &summary
	}
	if runErr != nil {
		task.Status = models.TaskFailed
		task.ErrorMessage = runErr.Error()
		s.logger.Error().Err(runErr).Str("task_id", task.ID).Msg("Extraction failed")
	} else {
		task.Status = models.TaskCompleted
		s.logger.Info().
			Str("task_id", task.ID).
			Int("discovered", task.ResultSummary.Discovered).
			Int("new_processes", task.ResultSummary.NewProcesses).
			Int("new_documents", task.ResultSummary.NewDocuments).
			Int("failures", task.ResultSummary.Failures).
			Msg("Extraction completed")
	}
	s.saveTask(task)
}

// sendNotifications emits the post-run digests: processes waiting for an
// operator category, and newly discovered documents grouped by signer.
func (s *Service) sendNotifications(tenant *models.Tenant, stats *runStats) {
	ctx := context.Background()

	if len(stats.pendingCategorization) > 0 {
		sort.Strings(stats.pendingCategorization)
		body := fmt.Sprintf("Tenant %s has %d process(es) awaiting categorization:\n%s",
			tenant.Name, len(stats.pendingCategorization),
			strings.Join(stats.pendingCategorization, "\n"))
		if err := s.notifier.Notify(ctx, "Processes awaiting categorization", body); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to send categorization notification")
		}
	}

	if len(stats.newDocsBySigner) > 0 {
		var lines []string
		for signer, docs := range stats.newDocsBySigner {
			sort.Strings(docs)
			if signer == "" {
				signer = "(unsigned)"
			}
			lines = append(lines, fmt.Sprintf("%s: %s", signer, strings.Join(docs, ", ")))
		}
		sort.Strings(lines)
		body := fmt.Sprintf("Tenant %s: new documents discovered\n%s",
			tenant.Name, strings.Join(lines, "\n"))
		if err := s.notifier.Notify(ctx, "New documents discovered", body); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to send document notification")
		}
	}
}

// runStats accumulates run-wide counters across workers.
type runStats struct {
	mu                    sync.Mutex
	summary               models.ExtractionSummary
	pendingCategorization []string
	newDocsBySigner       map[string][]string
}

func newRunStats() *runStats {
	return &runStats{
		newDocsBySigner: map[string][]string{},
	}
}
