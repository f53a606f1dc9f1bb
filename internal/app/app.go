// Package app wires the services together in dependency order and owns
// their lifecycle.
package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"github.com/conectasei/conectasei/internal/common"
	"github.com/conectasei/conectasei/internal/interfaces"
	"github.com/conectasei/conectasei/internal/scrapers"
	"github.com/conectasei/conectasei/internal/scrapers/seiv4/v420"
	"github.com/conectasei/conectasei/internal/services/browser"
	"github.com/conectasei/conectasei/internal/services/downloader"
	"github.com/conectasei/conectasei/internal/services/extractor"
	"github.com/conectasei/conectasei/internal/services/notify"
	"github.com/conectasei/conectasei/internal/services/objectstore"
	"github.com/conectasei/conectasei/internal/services/scheduler"
	"github.com/conectasei/conectasei/internal/services/search"
	"github.com/conectasei/conectasei/internal/services/tasks"
	"github.com/conectasei/conectasei/internal/services/vault"
	badgerstorage "github.com/conectasei/conectasei/internal/storage/badger"
)

// App holds every wired service.
type App struct {
	Config     *common.Config
	Logger     arbor.ILogger
	Storage    interfaces.StorageManager
	Vault      *vault.Vault
	Store      interfaces.ObjectStore
	Pool       *browser.Pool
	Plugins    *scrapers.Registry
	Index      *search.Index
	Notifier   *notify.Dispatcher
	Tasks      *tasks.Registry
	Extractor  *extractor.Service
	Downloader *downloader.Service
	Scheduler  *scheduler.Service
}

// New builds the application. Startup order: storage, orphan recovery,
// vault, object store, browser pool, plugins, search index, services.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	storage, err := badgerstorage.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	taskRegistry := tasks.NewRegistry(storage.Tasks(), logger)
	if err := taskRegistry.RecoverOrphans(context.Background()); err != nil {
		storage.Close()
		return nil, err
	}

	credVault, err := vault.New(config.Encryption.Key)
	if err != nil {
		storage.Close()
		return nil, err
	}

	var store interfaces.ObjectStore
	if config.ObjectStore.Bucket != "" {
		store, err = objectstore.GetStore(context.Background(), &config.ObjectStore, logger)
	} else {
		root := filepath.Join(filepath.Dir(config.Storage.Badger.Path), "objects")
		store, err = objectstore.NewLocalStore(root, logger)
	}
	if err != nil {
		storage.Close()
		return nil, err
	}

	pool := browser.NewPool(config.Browser, config.Extractor.WorkerLimit, logger)
	if err := pool.Init(); err != nil {
		storage.Close()
		return nil, fmt.Errorf("failed to initialize browser pool: %w", err)
	}

	plugins := scrapers.NewRegistry(logger)
	if err := plugins.Register(v420.New(logger)); err != nil {
		pool.Close()
		storage.Close()
		return nil, err
	}

	index := search.NewIndex(logger)
	if err := index.Rebuild(context.Background(), storage.Tenants(), storage.Processes()); err != nil {
		pool.Close()
		storage.Close()
		return nil, fmt.Errorf("failed to build search index: %w", err)
	}

	notifier := notify.NewDispatcher(storage.Config(), logger)

	extractorSvc := extractor.NewService(config, storage, pool, plugins, credVault, notifier, taskRegistry, index, logger)
	downloaderSvc := downloader.NewService(config, storage, pool, plugins, credVault, store, taskRegistry, logger)
	schedulerSvc := scheduler.NewService(config, storage, extractorSvc, logger)

	logger.Info().
		Str("environment", config.Environment).
		Int("worker_limit", config.Extractor.WorkerLimit).
		Msg("Application initialized")

	return &App{
		Config:     config,
		Logger:     logger,
		Storage:    storage,
		Vault:      credVault,
		Store:      store,
		Pool:       pool,
		Plugins:    plugins,
		Index:      index,
		Notifier:   notifier,
		Tasks:      taskRegistry,
		Extractor:  extractorSvc,
		Downloader: downloaderSvc,
		Scheduler:  schedulerSvc,
	}, nil
}

// Start begins background processing (the scheduler).
func (a *App) Start(ctx context.Context) error {
	return a.Scheduler.Start(ctx)
}

// Close shuts the application down in reverse dependency order.
func (a *App) Close() {
	a.Scheduler.Stop()
	if err := a.Pool.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Browser pool shutdown failed")
	}
	if closer, ok := a.Store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Object store shutdown failed")
		}
	}
	if err := a.Storage.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Storage shutdown failed")
	}
	a.Logger.Info().Msg("Application stopped")
}
