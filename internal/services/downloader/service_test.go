package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conectasei/conectasei/internal/common"
	"github.com/conectasei/conectasei/internal/interfaces"
	"github.com/conectasei/conectasei/internal/models"
	"github.com/conectasei/conectasei/internal/scrapers"
	"github.com/conectasei/conectasei/internal/services/tasks"
	"github.com/conectasei/conectasei/internal/services/vault"
	badgerstorage "github.com/conectasei/conectasei/internal/storage/badger"
)

func TestBuildFilename(t *testing.T) {
	cases := []struct {
		name      string
		suggested string
		docType   string
		want      string
	}{
		{"bare number gets type prefix", "12345678.pdf", "Despacho", "Despacho_12345678.pdf"},
		{"type with unsafe chars", "12345678.pdf", "Ofício: SEI/2024", "Ofício__SEI_2024_12345678.pdf"},
		{"named file kept as is", "relatorio_final.pdf", "Despacho", "relatorio_final.pdf"},
		{"named file sanitized", `rel<a>torio?.pdf`, "Despacho", "rel_a_torio_.pdf"},
		{"empty suggestion", "", "Despacho", "document.pdf"},
		{"bare number without type", "12345678.pdf", "", "12345678.pdf"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, buildFilename(tc.suggested, tc.docType))
		})
	}
}

type fakeSession struct {
	tempDir string
}

func (s *fakeSession) Ctx() context.Context { return context.Background() }
func (s *fakeSession) TempDir() string      { return s.tempDir }
func (s *fakeSession) Release()             {}

type fakePool struct {
	session *fakeSession
}

func (p *fakePool) Acquire(context.Context, *models.Tenant, models.Credentials, interfaces.ScraperPlugin) (interfaces.Session, error) {
	return p.session, nil
}
func (p *fakePool) Close() error { return nil }

// fakePlugin serves downloads from prepared fixture files. Downloads use a
// plain text extension so no document-format validation applies.
type fakePlugin struct {
	mu           sync.Mutex
	downloadErr  map[string]error
	downloads    []string
	openedLinks  []string
	downloadGate chan struct{} // when set, DownloadDocument blocks until closed
}

func (p *fakePlugin) Version() string { return "4.2.0" }
func (p *fakePlugin) Family() string  { return "sei_v4" }
func (p *fakePlugin) DetectVersion(interfaces.Session) (bool, error) {
	return true, nil
}
func (p *fakePlugin) Login(interfaces.Session, string, models.Credentials) error { return nil }
func (p *fakePlugin) ListProcesses(interfaces.Session) ([]models.ProcessListing, error) {
	return nil, nil
}
func (p *fakePlugin) OpenProcess(s interfaces.Session, linkID string) error {
	p.mu.Lock()
	p.openedLinks = append(p.openedLinks, linkID)
	p.mu.Unlock()
	return nil
}
func (p *fakePlugin) ClassifyAccess(interfaces.Session) (interfaces.AccessKind, error) {
	return interfaces.AccessKind{Access: models.AccessIntegral}, nil
}
func (p *fakePlugin) ExtractAuthority(interfaces.Session) (string, error) { return "", nil }
func (p *fakePlugin) ListDocuments(interfaces.Session) (map[string]models.DocumentRecord, error) {
	return nil, nil
}

func (p *fakePlugin) DownloadDocument(s interfaces.Session, num string) (interfaces.DownloadedFile, error) {
	if p.downloadGate != nil {
		<-p.downloadGate
	}
	p.mu.Lock()
	err := p.downloadErr[num]
	p.downloads = append(p.downloads, num)
	p.mu.Unlock()
	if err != nil {
		return interfaces.DownloadedFile{}, err
	}

	path := filepath.Join(s.TempDir(), num+".txt")
	if werr := os.WriteFile(path, []byte("content for "+num), 0o644); werr != nil {
		return interfaces.DownloadedFile{}, werr
	}
	return interfaces.DownloadedFile{Path: path, SuggestedName: num + ".txt"}, nil
}

type fakeStore struct {
	mu        sync.Mutex
	uploads   map[string]string // key -> local path at upload time
	uploadErr error
}

func (f *fakeStore) Upload(ctx context.Context, key, localPath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	if f.uploads == nil {
		f.uploads = map[string]string{}
	}
	f.uploads[key] = localPath
	return "fake://" + key, nil
}

func (f *fakeStore) Delete(ctx context.Context, key string) error { return nil }
func (f *fakeStore) URLFor(key string) string                     { return "fake://" + key }

type fixture struct {
	service *Service
	storage interfaces.StorageManager
	plugin  *fakePlugin
	store   *fakeStore
	tasks   *tasks.Registry
	tenant  *models.Tenant
	proc    *models.Process
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := common.GetLogger()
	ctx := context.Background()

	storage, err := badgerstorage.NewManager(logger, &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), "db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	config := common.DefaultConfig()
	config.Extractor.RunTimeout = 30 * time.Second

	credVault, err := vault.New("test-passphrase")
	require.NoError(t, err)

	session := &fakeSession{tempDir: t.TempDir()}
	plugin := &fakePlugin{}
	registry := scrapers.NewRegistry(logger)
	require.NoError(t, registry.Register(plugin))

	store := &fakeStore{}
	taskRegistry := tasks.NewRegistry(storage.Tasks(), logger)
	service := NewService(config, storage, &fakePool{session: session}, registry, credVault, store, taskRegistry, logger)

	tenant := models.NewTenant("tenant_1", "Prefeitura Alfa", "https://sei.alfa.gov.br", "4.2.0")
	encrypted, err := credVault.Encrypt(models.Credentials{Email: "op@alfa.gov.br", Password: "pw"})
	require.NoError(t, err)
	tenant.EncryptedCredentials = encrypted
	require.NoError(t, storage.Tenants().Save(ctx, tenant))

	proc := models.NewProcess(common.NewProcessID(), tenant.ID, "12345.678901/2024-01")
	proc.RecordLinkCheck("link_main", models.AccessIntegral, time.Now())
	proc.ApplyAccess(models.AccessIntegral)
	proc.BestCurrentLink = "link_main"
	proc.Documents = map[string]models.DocumentRecord{
		"11111111": {Type: "Despacho", Date: "05/03/2026", Status: models.DocumentNotDownloaded},
		"22222222": {Type: "Nota", Date: "06/03/2026", Status: models.DocumentDownloaded},
	}
	require.NoError(t, storage.Processes().Upsert(ctx, proc))

	return &fixture{
		service: service,
		storage: storage,
		plugin:  plugin,
		store:   store,
		tasks:   taskRegistry,
		tenant:  tenant,
		proc:    proc,
	}
}

func (f *fixture) waitForTask(t *testing.T, taskID string) *models.DownloadTask {
	t.Helper()
	var task *models.DownloadTask
	require.Eventually(t, func() bool {
		var err error
		task, err = f.storage.Tasks().GetDownload(context.Background(), taskID)
		return err == nil && task.Terminal()
	}, 10*time.Second, 10*time.Millisecond)
	return task
}

func TestDownloadUploadsAndRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	taskID, err := f.service.StartDownload(ctx, interfaces.DownloadRequest{
		ProcessID:       f.proc.ID,
		DocumentNumbers: []string{"11111111"},
	})
	require.NoError(t, err)

	task := f.waitForTask(t, taskID)
	assert.Equal(t, models.TaskCompleted, task.Status)
	require.Contains(t, task.Results, "11111111")
	assert.True(t, task.Results["11111111"].Uploaded)

	// The object key carries the document number; the type-prefixed name
	// is local only.
	f.store.mu.Lock()
	_, uploaded := f.store.uploads["tenant_1/12345.678901/2024-01/11111111.txt"]
	f.store.mu.Unlock()
	assert.True(t, uploaded)

	got, err := f.storage.Processes().GetByID(ctx, f.proc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentDownloaded, got.Documents["11111111"].Status)

	rows, err := f.storage.History().ListByProcess(ctx, f.proc.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.HistoryActionUpload, rows[0].Action)
	assert.Equal(t, models.DocumentDownloaded, rows[0].NewStatus)
	assert.Equal(t, "Despacho_11111111.txt", rows[0].Details["file"])
}

func TestDownloadAllPendingByDefault(t *testing.T) {
	f := newFixture(t)

	// Empty request downloads pending documents only; 22222222 is already
	// downloaded and is not touched.
	taskID, err := f.service.StartDownload(context.Background(), interfaces.DownloadRequest{
		ProcessID: f.proc.ID,
	})
	require.NoError(t, err)

	task := f.waitForTask(t, taskID)
	assert.Equal(t, models.TaskCompleted, task.Status)
	require.Contains(t, task.Results, "11111111")
	assert.True(t, task.Results["11111111"].Uploaded)
	assert.NotContains(t, task.Results, "22222222")

	f.plugin.mu.Lock()
	defer f.plugin.mu.Unlock()
	assert.Equal(t, []string{"11111111"}, f.plugin.downloads)
}

func TestDownloadSkipsAlreadyDownloaded(t *testing.T) {
	f := newFixture(t)

	taskID, err := f.service.StartDownload(context.Background(), interfaces.DownloadRequest{
		ProcessID:       f.proc.ID,
		DocumentNumbers: []string{"22222222", "99999999"},
	})
	require.NoError(t, err)

	task := f.waitForTask(t, taskID)
	assert.Equal(t, models.TaskCompleted, task.Status)

	assert.True(t, task.Results["22222222"].Uploaded)
	assert.Equal(t, "already downloaded", task.Results["22222222"].Reason)
	assert.False(t, task.Results["99999999"].Uploaded)
	assert.Equal(t, "unknown document", task.Results["99999999"].Reason)

	f.plugin.mu.Lock()
	defer f.plugin.mu.Unlock()
	assert.Empty(t, f.plugin.downloads)
}

func TestDownloadFailedUploadMarksPartial(t *testing.T) {
	f := newFixture(t)
	f.store.uploadErr = fmt.Errorf("%w: bucket unavailable", models.ErrStorage)
	ctx := context.Background()

	taskID, err := f.service.StartDownload(ctx, interfaces.DownloadRequest{
		ProcessID:       f.proc.ID,
		DocumentNumbers: []string{"11111111"},
	})
	require.NoError(t, err)

	task := f.waitForTask(t, taskID)
	assert.Equal(t, models.TaskCompleted, task.Status)
	assert.False(t, task.Results["11111111"].Uploaded)
	assert.Contains(t, task.Results["11111111"].Reason, "bucket unavailable")

	got, err := f.storage.Processes().GetByID(ctx, f.proc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentPartial, got.Documents["11111111"].Status)

	rows, err := f.storage.History().ListByProcess(ctx, f.proc.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.DocumentPartial, rows[0].NewStatus)
	assert.Contains(t, rows[0].Details["error"], "bucket unavailable")
}

func TestDownloadFailedFetchMarksError(t *testing.T) {
	f := newFixture(t)
	f.plugin.downloadErr = map[string]error{
		"11111111": fmt.Errorf("%w: click produced no download", models.ErrPlugin),
	}
	ctx := context.Background()

	taskID, err := f.service.StartDownload(ctx, interfaces.DownloadRequest{
		ProcessID:       f.proc.ID,
		DocumentNumbers: []string{"11111111"},
	})
	require.NoError(t, err)

	task := f.waitForTask(t, taskID)
	assert.Equal(t, models.TaskCompleted, task.Status)
	assert.False(t, task.Results["11111111"].Uploaded)

	got, err := f.storage.Processes().GetByID(ctx, f.proc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentError, got.Documents["11111111"].Status)
}

func TestDownloadReopensProcessPerDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Two pending documents; a rendered HTML view leaves the tab off the
	// process page, so each document starts from a fresh navigation.
	rec := f.proc.Documents["22222222"]
	rec.Status = models.DocumentNotDownloaded
	f.proc.Documents["22222222"] = rec
	require.NoError(t, f.storage.Processes().Upsert(ctx, f.proc))

	taskID, err := f.service.StartDownload(ctx, interfaces.DownloadRequest{ProcessID: f.proc.ID})
	require.NoError(t, err)
	task := f.waitForTask(t, taskID)

	assert.Equal(t, models.TaskCompleted, task.Status)
	assert.True(t, task.Results["11111111"].Uploaded)
	assert.True(t, task.Results["22222222"].Uploaded)

	f.plugin.mu.Lock()
	defer f.plugin.mu.Unlock()
	assert.Equal(t, []string{"link_main", "link_main"}, f.plugin.openedLinks)
}

func TestDownloadTaskCancellable(t *testing.T) {
	f := newFixture(t)
	f.plugin.downloadGate = make(chan struct{})
	ctx := context.Background()

	taskID, err := f.service.StartDownload(ctx, interfaces.DownloadRequest{
		ProcessID:       f.proc.ID,
		DocumentNumbers: []string{"11111111"},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return f.tasks.Running(taskID)
	}, 10*time.Second, 10*time.Millisecond)

	require.NoError(t, f.tasks.Cancel(ctx, taskID))

	task, err := f.storage.Tasks().GetDownload(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, task.Status)
	assert.Equal(t, models.ReasonCancelled, task.ErrorMessage)
	require.NotNil(t, task.FinishedAt)

	// Unblock the run; it must not overwrite the cancelled terminal state.
	close(f.plugin.downloadGate)
	require.Eventually(t, func() bool {
		got, gerr := f.storage.Processes().GetByID(ctx, f.proc.ID)
		return gerr == nil && got.Documents["11111111"].Status == models.DocumentDownloaded
	}, 10*time.Second, 10*time.Millisecond)

	task, err = f.storage.Tasks().GetDownload(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, task.Status)
	assert.Equal(t, models.ReasonCancelled, task.ErrorMessage)
}

func TestDownloadRejectsIneligibleProcess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Partial access with a pending categorization blocks downloads.
	f.proc.ApplyAccess(models.AccessPartial)
	f.proc.CategoryStatus = models.CategoryPending
	require.NoError(t, f.storage.Processes().Upsert(ctx, f.proc))

	_, err := f.service.StartDownload(ctx, interfaces.DownloadRequest{ProcessID: f.proc.ID})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConfig)

	_, err = f.service.StartDownload(ctx, interfaces.DownloadRequest{ProcessID: "proc_missing"})
	assert.ErrorIs(t, err, models.ErrConfig)
}
