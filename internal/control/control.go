package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/vietddude/inboxd/internal/auth"
	"github.com/vietddude/inboxd/internal/core/config"
	"github.com/vietddude/inboxd/internal/core/domain"
	"github.com/vietddude/inboxd/internal/faults"
	"github.com/vietddude/inboxd/internal/infra/graph"
	redisclient "github.com/vietddude/inboxd/internal/infra/redis"
	"github.com/vietddude/inboxd/internal/infra/storage"
	"github.com/vietddude/inboxd/internal/infra/storage/memory"
	"github.com/vietddude/inboxd/internal/infra/storage/postgres"
	"github.com/vietddude/inboxd/internal/ingest"
	"github.com/vietddude/inboxd/internal/notify"
)

// App is the main application struct that manages the ingestion lifecycle.
type App struct {
	cfg          *config.AppConfig
	poller       *ingest.Poller
	fetcher      *ingest.Fetcher
	handler      *faults.Handler
	healthServer *Server
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// LogProcessor is the default processor when no extraction service is
// passed to New: it logs the message descriptor and records the
// subject as the only extracted field.
type LogProcessor struct{}

// ProcessMessage logs the message descriptor.
func (LogProcessor) ProcessMessage(
	ctx context.Context,
	msg domain.Message,
) (map[string]string, error) {
	slog.Info("Message ready for extraction",
		"message_id", msg.ID, "subject", msg.Subject, "received_at", msg.ReceivedAt)
	return map[string]string{"subject": msg.Subject}, nil
}

// New creates the application with all dependencies initialized.
func New(cfg *config.AppConfig, processor ingest.Processor) (*App, error) {
	log := slog.Default().With("component", "control")

	// 1. Processed-message storage
	var processed storage.ProcessedRepository
	var db *postgres.DB

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		processed = postgres.NewProcessedRepo(db)
		log.Info("Using PostgreSQL storage")
	} else {
		processed = memory.NewProcessedRepo()
		log.Warn("No database configured, using in-memory processed tracking")
	}

	// 2. Optional Redis cache in front of the processed set
	var redisClient *redisclient.Client
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		processed = redisclient.NewCachedProcessedRepo(redisClient, processed, 0)
		log.Info("Redis processed-ID cache enabled")
	}

	// 3. Error classifier with webhook escalation
	notifier := notify.NewWebhookSender(cfg.Notify)
	handler := faults.NewHandler(cfg.Faults, notifier)

	// 4. Mail API client
	tokens := auth.NewManager(cfg.Auth)
	client := graph.NewClient(cfg.Graph, tokens)

	// 5. Fetch pipeline and poller
	fetcher := ingest.NewFetcher(client, processed, cfg.Ingest)
	if processor == nil {
		processor = LogProcessor{}
	}
	poller := ingest.NewPoller(fetcher, processor, processed, handler, cfg.Ingest.PollInterval)

	app := &App{
		cfg:         cfg,
		poller:      poller,
		fetcher:     fetcher,
		handler:     handler,
		db:          db,
		redisClient: redisClient,
		log:         log,
		done:        make(chan struct{}),
	}
	app.healthServer = NewServer(app, cfg.Server.Port)
	return app, nil
}

// Fetcher exposes the fetch pipeline for one-shot runs.
func (a *App) Fetcher() *ingest.Fetcher { return a.fetcher }

// Handler exposes the error classifier.
func (a *App) Handler() *faults.Handler { return a.handler }

// Start launches the poller and health server.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.db != nil {
		a.db.StartMetricsCollector(runCtx)
	}

	go func() {
		if err := a.healthServer.Start(); err != nil {
			a.log.Error("Health server stopped", "error", err)
		}
	}()

	go func() {
		defer close(a.done)
		if err := a.poller.Run(runCtx); err != nil && runCtx.Err() == nil {
			a.log.Error("Poller stopped", "error", err)
		}
	}()

	a.log.Info("Started", "port", a.cfg.Server.Port)
	return nil
}

// Stop shuts everything down gracefully.
func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	select {
	case <-a.done:
	case <-ctx.Done():
		a.log.Warn("Poller did not stop in time")
	}

	if err := a.healthServer.Stop(ctx); err != nil {
		a.log.Error("Health server shutdown failed", "error", err)
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Error("Redis close failed", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Error("Database close failed", "error", err)
		}
	}
	a.log.Info("Stopped")
	return nil
}

// Health reports component health for the health endpoint.
func (a *App) Health(ctx context.Context) map[string]string {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health := map[string]string{"poller": "ok"}
	if a.db != nil {
		if err := a.db.Health(checkCtx); err != nil {
			health["database"] = err.Error()
		} else {
			health["database"] = "ok"
		}
	}
	return health
}
