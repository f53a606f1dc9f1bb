package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/ternarybob/arbor"
	"google.golang.org/api/option"

	"github.com/conectasei/conectasei/internal/common"
	"github.com/conectasei/conectasei/internal/interfaces"
	"github.com/conectasei/conectasei/internal/models"
)

var (
	instance *GCSStore
	mu       sync.Mutex

	// newClientFn builds the GCS client, swappable in tests.
	newClientFn = func(ctx context.Context, opts ...option.ClientOption) (*storage.Client, error) {
		return storage.NewClient(ctx, opts...)
	}
)

// GCSStore persists document files into a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
	logger arbor.ILogger
}

// GetStore returns the shared store, creating it on first call. Later calls
// skip the lock and ignore the config, returning the existing instance.
func GetStore(ctx context.Context, config *common.ObjectStoreConfig, logger arbor.ILogger) (*GCSStore, error) {
	if instance != nil {
		return instance, nil
	}

	mu.Lock()
	defer mu.Unlock()
	if instance != nil {
		return instance, nil
	}

	if config.Bucket == "" {
		return nil, fmt.Errorf("%w: object store bucket is not set", models.ErrConfig)
	}

	var opts []option.ClientOption
	if config.Credentials != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(config.Credentials)))
	}
	// Without inline credentials the client falls back to application
	// default credentials.
	client, err := newClientFn(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build storage client: %w", err)
	}

	instance = &GCSStore{
		client: client,
		bucket: config.Bucket,
		logger: logger,
	}
	logger.Info().Str("bucket", config.Bucket).Msg("Object store initialized")
	return instance, nil
}

var _ interfaces.ObjectStore = (*GCSStore)(nil)

// Upload copies the local file into the bucket under key and returns the
// canonical gs:// URL. Failures wrap models.ErrStorage.
func (s *GCSStore) Upload(ctx context.Context, key, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: opening %s: %v", models.ErrStorage, localPath, err)
	}
	defer f.Close()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/pdf"

	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("%w: writing %s: %v", models.ErrStorage, key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("%w: committing %s: %v", models.ErrStorage, key, err)
	}

	s.logger.Debug().Str("key", key).Msg("Document uploaded")
	return s.URLFor(key), nil
}

// Delete removes an object. Deleting a missing object is not an error.
func (s *GCSStore) Delete(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil && err != storage.ErrObjectNotExist {
		return fmt.Errorf("%w: deleting %s: %v", models.ErrStorage, key, err)
	}
	return nil
}

// URLFor returns the canonical storage URL for a key.
func (s *GCSStore) URLFor(key string) string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, key)
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
