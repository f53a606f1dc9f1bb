// Package tasks tracks live background tasks so they can be cancelled and
// so tasks stranded by a crash are failed at the next startup.
package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/conectasei/conectasei/internal/interfaces"
	"github.com/conectasei/conectasei/internal/models"
)

// Registry is the in-memory control plane over running tasks. Durable task
// rows live in TaskStorage; the registry only holds cancel handles.
type Registry struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	storage interfaces.TaskStorage
	logger  arbor.ILogger
}

// NewRegistry creates an empty task registry.
func NewRegistry(storage interfaces.TaskStorage, logger arbor.ILogger) *Registry {
	return &Registry{
		cancels: map[string]context.CancelFunc{},
		storage: storage,
		logger:  logger,
	}
}

// Track registers the cancel handle of a started task.
func (r *Registry) Track(taskID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels[taskID] = cancel
}

// Untrack removes a finished task. Called by the task's own goroutine.
func (r *Registry) Untrack(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancels, taskID)
}

// Running reports whether a task is currently tracked.
func (r *Registry) Running(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.cancels[taskID]
	return ok
}

// Cancel stops a running task (extraction or download) and marks its row
// failed with the cancelled reason. Cancelling a task that already finished
// is an error.
func (r *Registry) Cancel(ctx context.Context, taskID string) error {
	r.mu.Lock()
	cancel, ok := r.cancels[taskID]
	if ok {
		delete(r.cancels, taskID)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("task %s is not running", taskID)
	}
	cancel()

	if err := r.failRow(ctx, taskID); err != nil {
		return err
	}
	r.logger.Info().Str("task_id", taskID).Msg("Task cancelled")
	return nil
}

// failRow writes the cancelled terminal state onto whichever row type the
// task ID resolves to. Rows already terminal are left alone.
func (r *Registry) failRow(ctx context.Context, taskID string) error {
	now := time.Now()

	if task, err := r.storage.GetExtraction(ctx, taskID); err == nil {
		if task.Terminal() {
			return nil
		}
		task.Status = models.TaskFailed
		task.ErrorMessage = models.ReasonCancelled
		task.FinishedAt = &now
		return r.storage.SaveExtraction(ctx, task)
	}

	task, err := r.storage.GetDownload(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Terminal() {
		return nil
	}
	task.Status = models.TaskFailed
	task.ErrorMessage = models.ReasonCancelled
	task.FinishedAt = &now
	return r.storage.SaveDownload(ctx, task)
}

// RecoverOrphans fails every task row left running by a previous process.
// Must run before the scheduler or any new task starts.
func (r *Registry) RecoverOrphans(ctx context.Context) error {
	count, err := r.storage.MarkRunningAsFailed(ctx, models.ReasonOrphaned)
	if err != nil {
		return fmt.Errorf("failed to recover orphaned tasks: %w", err)
	}
	if count > 0 {
		r.logger.Info().Int("count", count).Msg("Orphaned tasks recovered")
	}
	return nil
}
