// Package notify delivers operational notifications. The current transport
// writes to the structured log; recipients are kept in system config so a
// real transport can be swapped in without schema changes.
package notify

import (
	"context"
	"encoding/json"

	"github.com/ternarybob/arbor"

	"github.com/conectasei/conectasei/internal/interfaces"
	"github.com/conectasei/conectasei/internal/models"
)

// Dispatcher resolves recipients from system config and logs the message.
type Dispatcher struct {
	config interfaces.ConfigStorage
	logger arbor.ILogger
}

// NewDispatcher creates a log-backed notification dispatcher.
func NewDispatcher(config interfaces.ConfigStorage, logger arbor.ILogger) *Dispatcher {
	return &Dispatcher{
		config: config,
		logger: logger,
	}
}

var _ interfaces.Notifier = (*Dispatcher)(nil)

// Recipients returns the configured recipient list, empty when unset.
func (d *Dispatcher) Recipients(ctx context.Context) ([]string, error) {
	raw, err := d.config.Get(ctx, models.ConfigNotificationRecipients)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var recipients []string
	if err := json.Unmarshal(raw, &recipients); err != nil {
		d.logger.Warn().Err(err).Msg("Malformed notification recipient list")
		return nil, nil
	}
	return recipients, nil
}

// Notify emits one notification. With no recipients configured the message
// is logged at debug level and dropped.
func (d *Dispatcher) Notify(ctx context.Context, subject, body string) error {
	recipients, err := d.Recipients(ctx)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		d.logger.Debug().Str("subject", subject).Msg("Notification dropped, no recipients configured")
		return nil
	}

	d.logger.Info().
		Str("subject", subject).
		Str("body", body).
		Strs("recipients", recipients).
		Msg("Notification dispatched")
	return nil
}
