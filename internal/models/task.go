package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle of a background task. Terminal states are
// never updated again.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Trigger types recorded on extraction tasks.
const (
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
)

// Failure reasons stored in ErrorMessage for non-error terminations.
const (
	ReasonCancelled = "cancelled"
	ReasonOrphaned  = "orphaned"
)

// ExtractionSummary aggregates one extraction run. Per-process failures
// accumulate here and keep the task on the completed track.
type ExtractionSummary struct {
	Discovered       int `json:"discovered"`
	NewProcesses     int `json:"new_processes"`
	UpdatedProcesses int `json:"updated_processes"`
	NewDocuments     int `json:"new_documents"`
	Failures         int `json:"failures"`
}

// ExtractionTask is the durable record of one extraction invocation.
type ExtractionTask struct {
	ID            string             `json:"id" badgerhold:"key"`
	TenantID      string             `json:"tenant_id" badgerhold:"index"`
	Status        TaskStatus         `json:"status"`
	TriggerType   string             `json:"trigger_type"`
	StartedAt     *time.Time         `json:"started_at,omitempty"`
	FinishedAt    *time.Time         `json:"finished_at,omitempty"`
	Progress      int                `json:"progress"`
	ResultSummary *ExtractionSummary `json:"result_summary,omitempty"`
	ErrorMessage  string             `json:"error_message,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}

// NewExtractionTask creates a pending extraction task.
func NewExtractionTask(tenantID, triggerType string) *ExtractionTask {
	return &ExtractionTask{
		ID:          "task_" + uuid.New().String(),
		TenantID:    tenantID,
		Status:      TaskPending,
		TriggerType: triggerType,
		CreatedAt:   time.Now(),
	}
}

// Terminal reports whether the task reached a final state.
func (t *ExtractionTask) Terminal() bool {
	return t.Status == TaskCompleted || t.Status == TaskFailed
}

// DownloadResult is the per-document outcome of a download task.
type DownloadResult struct {
	Uploaded bool   `json:"uploaded"`
	Reason   string `json:"reason,omitempty"`
}

// DownloadTask is the durable record of one document-download invocation.
// RequestedDocuments empty means all pending documents of the process.
type DownloadTask struct {
	ID                 string                    `json:"id" badgerhold:"key"`
	ProcessID          string                    `json:"process_id" badgerhold:"index"`
	Status             TaskStatus                `json:"status"`
	RequestedDocuments []string                  `json:"requested_documents,omitempty"`
	Results            map[string]DownloadResult `json:"results"`
	StartedAt          *time.Time                `json:"started_at,omitempty"`
	FinishedAt         *time.Time                `json:"finished_at,omitempty"`
	ErrorMessage       string                    `json:"error_message,omitempty"`
	CreatedAt          time.Time                 `json:"created_at"`
}

// NewDownloadTask creates a pending download task.
func NewDownloadTask(processID string, docNumbers []string) *DownloadTask {
	return &DownloadTask{
		ID:                 "dl_" + uuid.New().String(),
		ProcessID:          processID,
		Status:             TaskPending,
		RequestedDocuments: docNumbers,
		Results:            map[string]DownloadResult{},
		CreatedAt:          time.Now(),
	}
}

// Terminal reports whether the task reached a final state.
func (t *DownloadTask) Terminal() bool {
	return t.Status == TaskCompleted || t.Status == TaskFailed
}
