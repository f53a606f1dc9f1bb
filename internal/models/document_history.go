package models

import (
	"time"

	"github.com/google/uuid"
)

// History actions.
const (
	HistoryActionDownload = "download"
	HistoryActionUpload   = "upload"
)

// DocumentHistory is one append-only audit row for a download attempt.
// Details carries the timing breakdown: download_started, download_finished,
// upload_started, upload_finished, total_duration_ms, and the error message
// when the attempt failed.
type DocumentHistory struct {
	ID             string                 `json:"id" badgerhold:"key"`
	ProcessID      string                 `json:"process_id" badgerhold:"index"`
	DocumentNumber string                 `json:"document_number"`
	Action         string                 `json:"action"`
	NewStatus      DocumentStatus         `json:"new_status"`
	Timestamp      time.Time              `json:"timestamp"`
	Details        map[string]interface{} `json:"details,omitempty"`
}

// NewDocumentHistory creates a history row stamped now.
func NewDocumentHistory(processID, documentNumber, action string, newStatus DocumentStatus) *DocumentHistory {
	return &DocumentHistory{
		ID:             "hist_" + uuid.New().String(),
		ProcessID:      processID,
		DocumentNumber: documentNumber,
		Action:         action,
		NewStatus:      newStatus,
		Timestamp:      time.Now(),
		Details:        map[string]interface{}{},
	}
}
