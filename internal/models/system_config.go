package models

import (
	"encoding/json"
	"time"
)

// Well-known system configuration keys.
const (
	ConfigNotificationRecipients = "notification_recipients"
)

// SystemConfig is one key of the global key/value bag.
type SystemConfig struct {
	Key       string          `json:"key" badgerhold:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}
