package protocal

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"session-sync/configs"
	"session-sync/internal/adapters/output/backend"
	"session-sync/internal/adapters/output/gormstore"
	"session-sync/internal/adapters/output/lifecycle"
	"session-sync/internal/adapters/output/memory"
	"session-sync/internal/application"
	"session-sync/internal/domain"
)

// Engine holds the wired session engine
type Engine struct {
	Config     configs.Config
	Store      *gormstore.SessionStore
	Cache      *memory.SessionCache
	Monitor    *application.ConnectionMonitor
	Sync       *application.SyncService
	Repository *application.SessionRepository
	Lifecycle  *application.LifecycleManager
	Source     *lifecycle.ChannelSource
}

// NewEngine wires the hexagonal layers from cfg
func NewEngine(cfg configs.Config) (*Engine, error) {
	// Output adapters
	client, err := backend.NewClient(cfg.Backend)
	if err != nil {
		return nil, fmt.Errorf("backend client: %w", err)
	}
	streamClient, err := backend.NewStreamClient(cfg.Backend, cfg.Retry.Policy("stream", domain.IsRetryable))
	if err != nil {
		return nil, fmt.Errorf("stream client: %w", err)
	}
	store, err := gormstore.Open(cfg.Database.Driver, cfg.Database.ConnectionString(), cfg.Sync.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}
	cache := memory.NewSessionCache(cfg.Sync.MaxCachedSessions, cfg.Sync.CacheIdleTimeout())
	source := lifecycle.NewChannelSource(cfg.Lifecycle.Grant(), 8)

	// Application services
	monitor := application.NewConnectionMonitor()
	syncService := application.NewSyncService(client, monitor, application.SyncOptions{
		UserID:   cfg.Backend.UserID,
		PageSize: cfg.Sync.PageSize,
		MaxPages: cfg.Sync.MaxPages,
		Policy:   cfg.Retry.Policy("sync", domain.IsRetryable),
	})
	repo := application.NewSessionRepository(syncService, cache, store, streamClient, cfg.Sync.HistoryLimit)
	manager := application.NewLifecycleManager(source, syncService, repo, cache, store, application.LifecycleOptions{
		RefreshInterval:  cfg.Sync.BackgroundInterval(),
		EmergencyTimeout: cfg.Lifecycle.EmergencyTimeout(),
	})

	return &Engine{
		Config:     cfg,
		Store:      store,
		Cache:      cache,
		Monitor:    monitor,
		Sync:       syncService,
		Repository: repo,
		Lifecycle:  manager,
		Source:     source,
	}, nil
}

// Restore waits for the store and loads the recent sessions
func (e *Engine) Restore(ctx context.Context) {
	if err := e.Repository.Restore(ctx); err != nil {
		logrus.Warnf("Session restore failed: %v", err)
	}
}

// Close stops background work and releases the store
func (e *Engine) Close() error {
	e.Sync.StopBackgroundRefresh()
	e.Repository.Close()
	e.Monitor.Close()
	e.Source.Close()
	return e.Store.Close()
}
