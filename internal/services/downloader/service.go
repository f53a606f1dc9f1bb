// Package downloader fetches process documents on demand, converts HTML
// views to PDF, validates the result and ships it to the object store.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"

	"github.com/conectasei/conectasei/internal/common"
	"github.com/conectasei/conectasei/internal/interfaces"
	"github.com/conectasei/conectasei/internal/models"
	"github.com/conectasei/conectasei/internal/services/tasks"
)

var unsafeFilenameRe = regexp.MustCompile(`[<>:"/\\|?*]`)

// Service downloads documents for a single process.
type Service struct {
	config   *common.Config
	storage  interfaces.StorageManager
	pool     interfaces.BrowserPool
	registry interfaces.PluginRegistry
	vault    interfaces.CredentialVault
	store    interfaces.ObjectStore
	tasks    *tasks.Registry
	logger   arbor.ILogger
}

// NewService wires the document downloader.
func NewService(
	config *common.Config,
	storage interfaces.StorageManager,
	pool interfaces.BrowserPool,
	registry interfaces.PluginRegistry,
	vault interfaces.CredentialVault,
	store interfaces.ObjectStore,
	taskRegistry *tasks.Registry,
	logger arbor.ILogger,
) *Service {
	return &Service{
		config:   config,
		storage:  storage,
		pool:     pool,
		registry: registry,
		vault:    vault,
		store:    store,
		tasks:    taskRegistry,
		logger:   logger,
	}
}

var _ interfaces.DownloaderService = (*Service)(nil)

// StartDownload validates the request, creates the task row and launches
// the download goroutine.
func (s *Service) StartDownload(ctx context.Context, req interfaces.DownloadRequest) (string, error) {
	proc, err := s.storage.Processes().GetByID(ctx, req.ProcessID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrConfig, err)
	}
	if !proc.ShouldExtractDocuments() {
		return "", fmt.Errorf("%w: process %s is not eligible for document extraction", models.ErrConfig, proc.ProcessNumber)
	}

	tenant, err := s.storage.Tenants().Get(ctx, proc.TenantID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrConfig, err)
	}
	plugin, err := s.registry.Resolve(tenant.ScraperVersion)
	if err != nil {
		return "", err
	}
	creds, err := s.vault.Decrypt(tenant.EncryptedCredentials)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrConfig, err)
	}

	targets := req.DocumentNumbers
	if len(targets) == 0 {
		targets = proc.PendingDocuments()
	}

	task := models.NewDownloadTask(proc.ID, req.DocumentNumbers)
	if err := s.storage.Tasks().SaveDownload(ctx, task); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}

	go s.run(task, tenant, proc, plugin, creds, targets)

	s.logger.Info().
		Str("task_id", task.ID).
		Str("process_number", proc.ProcessNumber).
		Int("documents", len(targets)).
		Msg("Download started")
	return task.ID, nil
}

func (s *Service) run(task *models.DownloadTask, tenant *models.Tenant, proc *models.Process, plugin interfaces.ScraperPlugin, creds models.Credentials, targets []string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Extractor.RunTimeout)
	s.tasks.Track(task.ID, cancel)
	defer func() {
		cancel()
		s.tasks.Untrack(task.ID)
	}()

	now := time.Now()
	task.Status = models.TaskRunning
	task.StartedAt = &now
	s.saveTask(task)

	err := s.execute(ctx, task, tenant, proc, plugin, creds, targets)

	// A cancellation writes its own terminal state; never overwrite it.
	if stored, gerr := s.storage.Tasks().GetDownload(context.Background(), task.ID); gerr == nil && stored.Terminal() {
		return
	}

	finished := time.Now()
	task.FinishedAt = &finished
	if err != nil {
		task.Status = models.TaskFailed
		task.ErrorMessage = err.Error()
		s.logger.Error().Err(err).Str("task_id", task.ID).Msg("Download failed")
	} else {
		task.Status = models.TaskCompleted
		s.logger.Info().Str("task_id", task.ID).Msg("Download completed")
	}
	s.saveTask(task)
}

func (s *Service) execute(ctx context.Context, task *models.DownloadTask, tenant *models.Tenant, proc *models.Process, plugin interfaces.ScraperPlugin, creds models.Credentials, targets []string) error {
	session, err := s.pool.Acquire(ctx, tenant, creds, plugin)
	if errors.Is(err, models.ErrAuth) {
		session, err = s.pool.Acquire(ctx, tenant, creds, plugin)
	}
	if err != nil {
		return err
	}
	defer session.Release()

	for _, num := range targets {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rec, ok := proc.Documents[num]
		if !ok {
			task.Results[num] = models.DownloadResult{Reason: "unknown document"}
			continue
		}
		if rec.Status == models.DocumentDownloaded {
			task.Results[num] = models.DownloadResult{Uploaded: true, Reason: "already downloaded"}
			continue
		}

		// Fresh navigation per document: an HTML render leaves the tab on
		// a file:// page, so the process view must be restored before the
		// next row lookup.
		if err := s.openProcess(session, plugin, proc); err != nil {
			return err
		}

		result := s.downloadOne(ctx, session, plugin, tenant, proc, num, rec)
		task.Results[num] = result
		s.saveTask(task)

		if err := s.storage.Processes().Upsert(ctx, proc); err != nil {
			return fmt.Errorf("%w: %v", models.ErrPersistence, err)
		}
	}
	return nil
}

// openProcess tries the stored links in preference order.
func (s *Service) openProcess(session interfaces.Session, plugin interfaces.ScraperPlugin, proc *models.Process) error {
	var lastErr error
	for _, linkID := range proc.CandidateLinks(proc.BestCurrentLink) {
		if err := plugin.OpenProcess(session, linkID); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: process has no links", models.ErrNavigation)
	}
	return lastErr
}

// downloadOne handles a single document: fetch, name, validate, upload,
// record. The process document map is mutated in place.
func (s *Service) downloadOne(ctx context.Context, session interfaces.Session, plugin interfaces.ScraperPlugin, tenant *models.Tenant, proc *models.Process, num string, rec models.DocumentRecord) models.DownloadResult {
	history := models.NewDocumentHistory(proc.ID, num, models.HistoryActionDownload, rec.Status)
	downloadStarted := time.Now()
	history.Details["download_started"] = downloadStarted.Format(models.TimestampLayout)

	file, err := plugin.DownloadDocument(session, num)
	downloadFinished := time.Now()
	history.Details["download_finished"] = downloadFinished.Format(models.TimestampLayout)

	if err != nil {
		return s.recordFailure(ctx, proc, num, rec, history, models.DocumentError, err)
	}
	history.Details["rendered_from_html"] = file.RenderedFromHTML

	finalName := buildFilename(file.SuggestedName, rec.Type)
	finalPath := filepath.Join(session.TempDir(), finalName)
	if finalPath != file.Path {
		if err := os.Rename(file.Path, finalPath); err != nil {
			return s.recordFailure(ctx, proc, num, rec, history, models.DocumentError,
				fmt.Errorf("renaming download: %w", err))
		}
	}
	history.Details["file"] = finalName

	if strings.EqualFold(filepath.Ext(finalPath), ".pdf") {
		if err := api.ValidateFile(finalPath, model.NewDefaultConfiguration()); err != nil {
			return s.recordFailure(ctx, proc, num, rec, history, models.DocumentError,
				fmt.Errorf("corrupt pdf: %w", err))
		}
	}

	// The canonical object key is the document number; the type-prefixed
	// name stays local only.
	key := fmt.Sprintf("%s/%s/%s%s", tenant.ID, proc.ProcessNumber, num, filepath.Ext(finalName))
	uploadStarted := time.Now()
	history.Details["upload_started"] = uploadStarted.Format(models.TimestampLayout)

	url, err := s.store.Upload(ctx, key, finalPath)
	uploadFinished := time.Now()
	history.Details["upload_finished"] = uploadFinished.Format(models.TimestampLayout)
	history.Details["total_duration_ms"] = uploadFinished.Sub(downloadStarted).Milliseconds()

	if err != nil {
		// The file is on disk but not in the store; partial keeps it
		// eligible for a retry of just the upload leg.
		return s.recordFailure(ctx, proc, num, rec, history, models.DocumentPartial, err)
	}
	history.Details["storage_url"] = url

	rec.Status = models.DocumentDownloaded
	rec.LastChecked = uploadFinished.Format(models.TimestampLayout)
	proc.Documents[num] = rec

	history.Action = models.HistoryActionUpload
	history.NewStatus = models.DocumentDownloaded
	s.appendHistory(ctx, history)

	s.logger.Info().
		Str("process_number", proc.ProcessNumber).
		Str("document", num).
		Str("storage_url", url).
		Msg("Document stored")
	return models.DownloadResult{Uploaded: true}
}

func (s *Service) recordFailure(ctx context.Context, proc *models.Process, num string, rec models.DocumentRecord, history *models.DocumentHistory, status models.DocumentStatus, cause error) models.DownloadResult {
	rec.Status = status
	rec.LastChecked = time.Now().Format(models.TimestampLayout)
	proc.Documents[num] = rec

	history.NewStatus = status
	history.Details["error"] = cause.Error()
	s.appendHistory(ctx, history)

	s.logger.Warn().
		Err(cause).
		Str("process_number", proc.ProcessNumber).
		Str("document", num).
		Str("status", string(status)).
		Msg("Document download failed")
	return models.DownloadResult{Reason: cause.Error()}
}

func (s *Service) appendHistory(ctx context.Context, row *models.DocumentHistory) {
	if err := s.storage.History().Append(ctx, row); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to append document history")
	}
}

func (s *Service) saveTask(task *models.DownloadTask) {
	if err := s.storage.Tasks().SaveDownload(context.Background(), task); err != nil {
		s.logger.Warn().Err(err).Str("task_id", task.ID).Msg("Failed to persist download task")
	}
}

// buildFilename applies the naming rule: a file named by its bare document
// number gets the document type prepended so operators can tell files
// apart, e.g. "12345678.pdf" becomes "Despacho_12345678.pdf".
func buildFilename(suggested, docType string) string {
	if suggested == "" {
		suggested = "document.pdf"
	}
	ext := filepath.Ext(suggested)
	stem := strings.TrimSuffix(suggested, ext)

	if models.ValidDocumentNumber(stem) && docType != "" {
		safe := unsafeFilenameRe.ReplaceAllString(docType, "_")
		safe = strings.ReplaceAll(strings.TrimSpace(safe), " ", "_")
		return safe + "_" + stem + ext
	}
	return unsafeFilenameRe.ReplaceAllString(suggested, "_")
}
