package objectstore

import (
	"context"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/conectasei/conectasei/internal/common"
	"github.com/conectasei/conectasei/internal/models"
)

func resetStore(t *testing.T) {
	t.Helper()
	instance = nil
	orig := newClientFn
	t.Cleanup(func() {
		instance = nil
		newClientFn = orig
	})
}

func TestGetStoreInitializesOnce(t *testing.T) {
	resetStore(t)

	calls := 0
	newClientFn = func(ctx context.Context, opts ...option.ClientOption) (*storage.Client, error) {
		calls++
		return &storage.Client{}, nil
	}

	ctx := context.Background()
	first, err := GetStore(ctx, &common.ObjectStoreConfig{Bucket: "test-bucket"}, common.GetLogger())
	require.NoError(t, err)

	// Later calls take the fast path and ignore the config.
	second, err := GetStore(ctx, &common.ObjectStoreConfig{Bucket: "other-bucket"}, common.GetLogger())
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "gs://test-bucket/a/b.pdf", first.URLFor("a/b.pdf"))
}

func TestGetStoreRequiresBucket(t *testing.T) {
	resetStore(t)

	_, err := GetStore(context.Background(), &common.ObjectStoreConfig{}, common.GetLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConfig)
}
