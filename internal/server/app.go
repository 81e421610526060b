// Package server provides the core application server and dependency wiring.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/post-scraper/internal/api"
	"github.com/JakeFAU/post-scraper/internal/apify"
	"github.com/JakeFAU/post-scraper/internal/clock/system"
	"github.com/JakeFAU/post-scraper/internal/config"
	"github.com/JakeFAU/post-scraper/internal/id/uuid"
	"github.com/JakeFAU/post-scraper/internal/logging"
	"github.com/JakeFAU/post-scraper/internal/metrics"
	"github.com/JakeFAU/post-scraper/internal/policy/ratelimit"
	"github.com/JakeFAU/post-scraper/internal/progress"
	progresssinks "github.com/JakeFAU/post-scraper/internal/progress/sinks"
	"github.com/JakeFAU/post-scraper/internal/scrape"
	memorystore "github.com/JakeFAU/post-scraper/internal/storage/memory"
	pgstore "github.com/JakeFAU/post-scraper/internal/storage/postgres"
	"github.com/JakeFAU/post-scraper/internal/store"
	"github.com/JakeFAU/post-scraper/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// Overrides replaces default collaborators; zero fields keep the defaults.
type Overrides struct {
	Logger     *zap.Logger
	Registerer prometheus.Registerer
	Client     scrape.JobClient
	Clock      interface {
		scrape.Clock
		scrape.Sleeper
	}
}

// App contains the application's dependencies.
type App struct {
	cfg            *config.Config
	logger         *zap.Logger
	apiServer      *api.Server
	orchestrator   *scrape.Orchestrator
	progressHub    *progress.Hub
	runRepo        store.RunRepository
	pgStore        *pgstore.RunStore
	tracerShutdown func(context.Context) error
	ownsLogger     bool
	closeOnce      sync.Once
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config, ov Overrides) (*App, error) {
	app := &App{cfg: cfg, logger: ov.Logger}
	if app.logger == nil {
		logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		zap.ReplaceGlobals(logger)
		app.logger = logger
		app.ownsLogger = true
	}
	app.logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("apify_base_url", cfg.Apify.BaseURL),
		zap.String("actor", cfg.Apify.Actor),
		zap.Duration("poll_interval", cfg.Scrape.PollInterval),
		zap.Duration("budget", cfg.Scrape.Budget),
	)

	if cfg.Telemetry.TracingEnabled {
		tp, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("tracer init failed: %w", err)
		}
		app.tracerShutdown = tp.Shutdown
	}
	metrics.Init()

	if err := setupRunStore(ctx, app); err != nil {
		return nil, err
	}

	emitter, err := setupProgress(ctx, app, ov.Registerer)
	if err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}

	client := ov.Client
	if client == nil {
		client, err = setupClient(app)
		if err != nil {
			app.closeInfrastructure(ctx)
			return nil, err
		}
	}

	var clock interface {
		scrape.Clock
		scrape.Sleeper
	} = system.New()
	if ov.Clock != nil {
		clock = ov.Clock
	}

	app.orchestrator = scrape.NewOrchestrator(
		client,
		clock,
		clock,
		uuid.NewUUIDGenerator(),
		emitter,
		scrape.Options{PollInterval: cfg.Scrape.PollInterval, Budget: cfg.Scrape.Budget},
		app.logger.Named("scrape"),
	)
	app.logger.Info("orchestrator ready", zap.Int("max_attempts", app.orchestrator.MaxAttempts()))

	app.apiServer = api.NewServer(
		app.orchestrator,
		app.runRepo,
		api.Options{RequestTimeout: cfg.RequestTimeout(), Ready: app.ready},
		app.logger.Named("api"),
	)
	return app, nil
}

// Orchestrator exposes the wired orchestrator.
func (a *App) Orchestrator() *scrape.Orchestrator {
	return a.orchestrator
}

// Scrape runs one orchestration for subject outside the HTTP surface.
func (a *App) Scrape(ctx context.Context, subject string) (scrape.Result, error) {
	return a.orchestrator.Run(ctx, scrape.Subject(subject))
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// RunRepository returns the run log backing /v1/runs.
func (a *App) RunRepository() store.RunRepository {
	return a.runRepo
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Run starts the HTTP server and blocks until the context is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close(shutdownCtx)

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return closeErr
	}
}

// Close flushes progress, releases the database pool and syncs the logger.
// Only the first call does any work.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.closeInfrastructure(ctx)
		a.logger.Info("shutdown complete")
		a.closeObservability(ctx)
	})
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
		if dropped := a.progressHub.Dropped(); dropped > 0 {
			a.logger.Warn("progress events dropped", zap.Int64("dropped", dropped))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	if a.ownsLogger {
		// Sync on stderr/stdout commonly fails with ENOTTY; nothing to do about it.
		_ = a.logger.Sync() //nolint:errcheck // best-effort flush
	}
}

func (a *App) ready(ctx context.Context) error {
	if a.pgStore == nil {
		return nil
	}
	return a.pgStore.Ping(ctx)
}

func setupRunStore(ctx context.Context, app *App) error {
	if app.cfg.Database.DSN == "" {
		app.logger.Info("no database DSN configured, keeping the run log in memory")
		app.runRepo = memorystore.NewRunStore()
		return nil
	}
	pg, err := pgstore.NewRunStore(ctx, pgstore.Config{
		DSN:      app.cfg.Database.DSN,
		MaxConns: app.cfg.Database.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("run store init failed: %w", err)
	}
	if app.cfg.Database.Migrate {
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return fmt.Errorf("run store migrate failed: %w", err)
		}
	}
	app.pgStore = pg
	app.runRepo = pg
	app.logger.Info("postgres run store initialized")
	return nil
}

func setupProgress(ctx context.Context, app *App, reg prometheus.Registerer) (progress.Emitter, error) {
	if !app.cfg.Progress.Enabled {
		app.logger.Info("progress tracking disabled")
		return nil, nil
	}
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return nil, fmt.Errorf("prometheus progress sink init failed: %w", err)
	}
	sinkList := []progress.Sink{
		progresssinks.NewStoreSink(app.runRepo, app.logger.Named("progress_store")),
		promSink,
	}
	if app.cfg.Progress.LogEnabled {
		sinkList = append(sinkList, progresssinks.NewLogSink(app.logger.Named("progress_log")))
		app.logger.Debug("added progress log sink")
	}
	hubCfg := progress.Config{
		BufferSize:     app.cfg.Progress.BufferSize,
		MaxBatchEvents: app.cfg.Progress.Batch.MaxEvents,
		MaxBatchWait:   time.Duration(app.cfg.Progress.Batch.MaxWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(app.cfg.Progress.SinkTimeoutMs) * time.Millisecond,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         app.logger.Named("progress_hub"),
	}
	app.progressHub = progress.NewHub(hubCfg, sinkList...)
	app.logger.Info("progress hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Duration("sink_timeout", hubCfg.SinkTimeout),
	)
	return app.progressHub, nil
}

func setupClient(app *App) (*apify.Client, error) {
	var limiter apify.Waiter
	if app.cfg.Apify.MaxRPS > 0 {
		limiter = ratelimit.New(ratelimit.Config{
			DefaultRPS:   app.cfg.Apify.MaxRPS,
			DefaultBurst: app.cfg.Apify.Burst,
		})
		app.logger.Info("outbound rate limiter enabled",
			zap.Float64("max_rps", app.cfg.Apify.MaxRPS),
			zap.Int("burst", app.cfg.Apify.Burst),
		)
	}
	if app.cfg.Apify.Token == "" {
		app.logger.Warn("no apify token configured; only public actors will be reachable")
	}
	client, err := apify.New(apify.Config{
		BaseURL:      app.cfg.Apify.BaseURL,
		Token:        app.cfg.Apify.Token,
		Actor:        app.cfg.Apify.Actor,
		ResultsLimit: app.cfg.Apify.ResultsLimit,
		Timeout:      app.cfg.HTTPTimeout(),
		Limiter:      limiter,
		Logger:       app.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("apify client init failed: %w", err)
	}
	return client, nil
}
