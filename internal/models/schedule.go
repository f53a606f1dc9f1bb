package models

// Schedule kinds.
const (
	ScheduleInterval = "interval" // expression is a Go duration, e.g. "30m"
	ScheduleCron     = "cron"     // expression is a five- or six-field cron line
)

// ExtractionSchedule configures the recurring extraction of one tenant.
// At most one schedule exists per tenant.
type ExtractionSchedule struct {
	TenantID   string `json:"tenant_id" badgerhold:"key"`
	Kind       string `json:"kind"`
	Expression string `json:"expression"`
	IsActive   bool   `json:"is_active"`
}
