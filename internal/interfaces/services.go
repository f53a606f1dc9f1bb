package interfaces

import (
	"context"

	"github.com/conectasei/conectasei/internal/models"
)

// Session is one authenticated browser tab bound to a tenant. Release
// returns the tab to the pool and wipes the temp dir; calling it more
// than once is safe.
type Session interface {
	Ctx() context.Context
	TempDir() string
	Release()
}

// BrowserPool hands out authenticated sessions. Acquire blocks until a
// tab is free, logs in via the plugin, and returns the live session.
type BrowserPool interface {
	Acquire(ctx context.Context, tenant *models.Tenant, creds models.Credentials, plugin ScraperPlugin) (Session, error)
	Close() error
}

// ObjectStore persists downloaded document files.
type ObjectStore interface {
	// Upload stores the file under the given object key and returns the
	// canonical storage URL.
	Upload(ctx context.Context, key, localPath string) (string, error)
	Delete(ctx context.Context, key string) error
	URLFor(key string) string
}

// CredentialVault encrypts tenant portal credentials at rest.
type CredentialVault interface {
	Encrypt(creds models.Credentials) (string, error)
	Decrypt(ciphertext string) (models.Credentials, error)
}

// ExtractorService runs the discovery and update pipeline for a tenant.
type ExtractorService interface {
	// StartExtraction launches an asynchronous run and returns its task
	// ID. When a run is already active for the tenant, the existing
	// task ID is returned instead of starting a second run.
	StartExtraction(ctx context.Context, tenantID, trigger string) (string, error)
}

// DownloadRequest asks for specific documents of a process, or all
// pending ones when DocumentNumbers is empty.
type DownloadRequest struct {
	ProcessID       string
	DocumentNumbers []string
}

// DownloaderService fetches documents for a single process on demand.
type DownloaderService interface {
	StartDownload(ctx context.Context, req DownloadRequest) (string, error)
}

// Notifier delivers operational notifications to configured recipients.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}
