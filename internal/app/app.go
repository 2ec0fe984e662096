// Package app wires configuration, storage, services, the queue and the
// workers into one application instance.
package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fragor/internal/common"
	"github.com/ternarybob/fragor/internal/interfaces"
	"github.com/ternarybob/fragor/internal/queue"
	badgerstorage "github.com/ternarybob/fragor/internal/storage/badger"

	"github.com/ternarybob/fragor/internal/models"
	"github.com/ternarybob/fragor/internal/services/cache"
	"github.com/ternarybob/fragor/internal/services/crashes"
	"github.com/ternarybob/fragor/internal/services/github"
	"github.com/ternarybob/fragor/internal/services/guard"
	"github.com/ternarybob/fragor/internal/services/migration"
	"github.com/ternarybob/fragor/internal/services/preferences"
	"github.com/ternarybob/fragor/internal/services/scheduler"
	"github.com/ternarybob/fragor/internal/services/search"
)

// App holds the wired application.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	Storage      *badgerstorage.Manager
	Cache        interfaces.CacheService
	Guard        interfaces.GuardService
	Preferences  interfaces.PreferenceService
	Search       interfaces.SearchIndex
	Crashes      interfaces.CrashReportService
	Queue        interfaces.QueueManager
	Workers      interfaces.WorkerPool
	Migration    *migration.Service
	Orchestrator *github.Orchestrator // nil when no GitHub token is configured
	Scheduler    *scheduler.Service
}

// New builds the application from configuration. Construction order follows
// the dependency chain: storage, then services, then queue and workers.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	storage, err := badgerstorage.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	cacheService := cache.NewService(storage.Badger(), logger)
	guardService := guard.NewService(cacheService, cfg.Cache.GuardTTLDuration(), logger)
	prefService := preferences.NewService(storage.KeyValueStorage(), logger)
	searchService := search.NewService(storage.Store(), logger)

	crashService := crashes.NewService(
		storage.CrashReportStorage(),
		cacheService,
		searchService,
		cfg.Cache.CounterTTLDuration(),
		logger,
	)

	queueManager := queue.NewManager(
		storage.Store(),
		cfg.Queue.VisibilityTimeoutDuration(),
		cfg.Queue.MaxReceive,
		logger,
	)

	migrationService := migration.NewService(storage.CrashReportStorage(), searchService, queueManager, logger)

	app := &App{
		Config:      cfg,
		Logger:      logger,
		Storage:     storage,
		Cache:       cacheService,
		Guard:       guardService,
		Preferences: prefService,
		Search:      searchService,
		Crashes:     crashService,
		Queue:       queueManager,
		Migration:   migrationService,
	}

	// Without a token the service still ingests and serves crashes; it just
	// never files issues.
	if cfg.GitHub.Token == "" {
		logger.Warn().Msg("No GitHub token configured, issue sync disabled")
	} else {
		tracker, err := github.NewClient(cfg, logger)
		if err != nil {
			storage.Close()
			return nil, fmt.Errorf("failed to initialize GitHub client: %w", err)
		}
		app.Orchestrator = github.NewOrchestrator(crashService, prefService, guardService, queueManager, tracker, logger)
	}

	workers := queue.NewPool(queueManager, cfg.Queue.PollIntervalDuration(), cfg.Queue.Concurrency, logger)
	workers.RegisterHandler(models.MessageTypeSchemaUpdate, migrationService.HandleSchemaUpdate)
	if app.Orchestrator != nil {
		workers.RegisterHandler(models.MessageTypeNewCrash, app.Orchestrator.CreateIssueJob)
		workers.RegisterHandler(models.MessageTypeNewComment, app.Orchestrator.AddCommentJob)
	}
	app.Workers = workers

	app.Scheduler = scheduler.NewService(queueManager, storage.Badger(), cfg.Queue.PurgeAfterDuration(), logger)

	logger.Info().
		Str("environment", cfg.Environment).
		Bool("github_enabled", app.Orchestrator != nil).
		Msg("Application initialized")

	return app, nil
}

// Start launches the background workers and the scheduler.
func (a *App) Start() error {
	if err := a.Workers.Start(); err != nil {
		return err
	}
	return a.Scheduler.Start()
}

// Stop shuts down background processing and closes storage. Order matters:
// workers first so no handler touches a closed database.
func (a *App) Stop(ctx context.Context) error {
	if err := a.Workers.Stop(); err != nil {
		a.Logger.Warn().Err(err).Msg("Worker pool stop failed")
	}
	a.Scheduler.Stop()
	return a.Storage.Close()
}
