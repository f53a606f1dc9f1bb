package notify

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conectasei/conectasei/internal/common"
	"github.com/conectasei/conectasei/internal/interfaces"
	"github.com/conectasei/conectasei/internal/models"
	badgerstorage "github.com/conectasei/conectasei/internal/storage/badger"
)

func newTestConfig(t *testing.T) interfaces.ConfigStorage {
	t.Helper()
	manager, err := badgerstorage.NewManager(common.GetLogger(), &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), "db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager.Config()
}

func TestRecipientsUnsetIsEmpty(t *testing.T) {
	d := NewDispatcher(newTestConfig(t), common.GetLogger())

	recipients, err := d.Recipients(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recipients)
}

func TestRecipientsFromConfig(t *testing.T) {
	config := newTestConfig(t)
	ctx := context.Background()
	require.NoError(t, config.Set(ctx, models.ConfigNotificationRecipients,
		json.RawMessage(`["ops@example.gov.br","audit@example.gov.br"]`)))

	d := NewDispatcher(config, common.GetLogger())
	recipients, err := d.Recipients(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ops@example.gov.br", "audit@example.gov.br"}, recipients)
}

func TestRecipientsMalformedTolerated(t *testing.T) {
	config := newTestConfig(t)
	ctx := context.Background()
	require.NoError(t, config.Set(ctx, models.ConfigNotificationRecipients,
		json.RawMessage(`{"not":"a list"}`)))

	d := NewDispatcher(config, common.GetLogger())
	recipients, err := d.Recipients(ctx)
	require.NoError(t, err)
	assert.Empty(t, recipients)
}

func TestNotifyWithAndWithoutRecipients(t *testing.T) {
	config := newTestConfig(t)
	ctx := context.Background()
	d := NewDispatcher(config, common.GetLogger())

	// No recipients: the message is dropped without error.
	assert.NoError(t, d.Notify(ctx, "subject", "body"))

	require.NoError(t, config.Set(ctx, models.ConfigNotificationRecipients,
		json.RawMessage(`["ops@example.gov.br"]`)))
	assert.NoError(t, d.Notify(ctx, "subject", "body"))
}
