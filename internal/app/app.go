package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"medassess/internal/config"
	"medassess/internal/extraction"
	"medassess/internal/infrastructure/llm"
	"medassess/internal/infrastructure/reference"
	"medassess/internal/infrastructure/scheduler"
	"medassess/internal/infrastructure/storage"
	"medassess/internal/infrastructure/telegram"
	"medassess/internal/logging"
	"medassess/internal/ports"
	"medassess/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg     config.Config
	db      *sql.DB
	service *usecase.Service
	worker  *usecase.Worker
}

// New builds a runnable application instance: database, repositories,
// reference catalogs, reasoning client and the analysis service.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	db, err := storage.Open(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect storage: %w", err)
	}

	repo := storage.New(db, logging.Component(baseLogger, "storage"))
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	if err := repo.SeedReference(ctx, reference.SeedDocumentTypes(), reference.SeedArticles()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("seed reference catalogs: %w", err)
	}

	var refs ports.ReferenceProvider = repo
	if cfg.Cache.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		refs = reference.NewCached(repo, client, cfg.Cache.TTL(), logging.Component(baseLogger, "reference.cache"))
	}

	orchestrator := extraction.NewOrchestrator(
		llm.NewClient(cfg.Reasoning),
		extraction.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			Backoff:     cfg.Retry.Backoff(),
		},
		logging.Component(baseLogger, "orchestrator"),
	)

	var notifier ports.Notifier
	if cfg.Notifications.Telegram.BotToken != "" && cfg.Notifications.Telegram.ChatID != "" {
		notifier = telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID)
	}

	service := usecase.NewService(usecase.ServiceDeps{
		Orchestrator: orchestrator,
		References:   refs,
		Documents:    repo,
		Links:        repo,
		Assessments:  repo,
		Notifier:     notifier,
		Logger:       logging.Component(baseLogger, "analysis"),
	})

	worker := usecase.NewWorker(
		scheduler.NewIntervalScheduler(cfg.Worker.Interval()),
		service,
		cfg.Worker.BatchSize,
	)

	return &Application{cfg: cfg, db: db, service: service, worker: worker}, nil
}

// Service exposes the analysis use case to CLI commands.
func (a *Application) Service() *usecase.Service {
	return a.service
}

// Run starts the pending-document worker and blocks until the context is
// canceled.
func (a *Application) Run(ctx context.Context) error {
	if err := a.worker.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	<-ctx.Done()
	return a.worker.Stop(context.Background())
}

// Close releases the database connection.
func (a *Application) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
