package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"github.com/conectasei/conectasei/internal/interfaces"
	"github.com/conectasei/conectasei/internal/models"
)

// LocalStore keeps objects on the local filesystem. Used in development
// when no bucket is configured.
type LocalStore struct {
	root   string
	logger arbor.ILogger
}

// NewLocalStore creates a filesystem-backed store rooted at root.
func NewLocalStore(root string, logger arbor.ILogger) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create object store root: %w", err)
	}
	logger.Info().Str("root", root).Msg("Local object store initialized")
	return &LocalStore{root: root, logger: logger}, nil
}

var _ interfaces.ObjectStore = (*LocalStore)(nil)

func (s *LocalStore) Upload(ctx context.Context, key, localPath string) (string, error) {
	dst := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrStorage, err)
	}

	in, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: opening %s: %v", models.ErrStorage, localPath, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("%w: creating %s: %v", models.ErrStorage, dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return "", fmt.Errorf("%w: writing %s: %v", models.ErrStorage, dst, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("%w: committing %s: %v", models.ErrStorage, dst, err)
	}
	return s.URLFor(key), nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	err := os.Remove(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: deleting %s: %v", models.ErrStorage, key, err)
	}
	return nil
}

func (s *LocalStore) URLFor(key string) string {
	return "file://" + filepath.Join(s.root, filepath.FromSlash(key))
}
