// Package server builds and runs the reference evaluation service: registry,
// queue, worker pool, agent panel and HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/roshanis/shopagent/internal/agents"
	"github.com/roshanis/shopagent/internal/api"
	"github.com/roshanis/shopagent/internal/clock/system"
	"github.com/roshanis/shopagent/internal/config"
	"github.com/roshanis/shopagent/internal/dispatcher"
	"github.com/roshanis/shopagent/internal/id/uuid"
	"github.com/roshanis/shopagent/internal/metrics"
	queueMemory "github.com/roshanis/shopagent/internal/queue/memory"
	"github.com/roshanis/shopagent/internal/service"
	"github.com/roshanis/shopagent/internal/storage"
	gcsStorage "github.com/roshanis/shopagent/internal/storage/gcs"
	localStorage "github.com/roshanis/shopagent/internal/storage/local"
	memoryStorage "github.com/roshanis/shopagent/internal/storage/memory"
	pgstore "github.com/roshanis/shopagent/internal/storage/postgres"
	"github.com/roshanis/shopagent/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// App contains the service's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	apiServer *api.Server
	dispatch  *dispatcher.Dispatcher
	queue     *queueMemory.Queue
	pgStore   *pgstore.EvaluationStore
	archive   storage.BlobStore
	gcsStore  *gcsStorage.BlobStore
}

// Build creates the service's dependencies. Nothing runs until Run.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}
	app.logger.Info("building evaluation service",
		zap.Int("port", cfg.Server.Port),
		zap.String("engine", cfg.Agents.Engine),
		zap.Int("concurrency", cfg.Service.Concurrency),
	)
	if cfg.Metrics.Enabled {
		metrics.Init()
	}

	registry, err := app.setupRegistry(ctx)
	if err != nil {
		return nil, err
	}

	panel, err := app.setupPanel()
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	if err := app.setupArchive(ctx); err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	clock := system.New()
	runs := worker.NewRuns()
	app.queue = queueMemory.NewQueue(cfg.Service.QueueDepth)
	app.dispatch = app.setupDispatcher(registry, panel, runs, clock)

	svc := service.New(
		registry,
		app.dispatch,
		panel,
		runs,
		uuid.New(),
		clock,
		service.Config{},
		logger,
	)
	app.apiServer = api.NewServer(svc, cfg, logger)
	return app, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves HTTP and processes evaluations until ctx is cancelled, then
// shuts everything down.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started")
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              a.cfg.ListenAddr(),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.String("addr", srv.Addr))
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

	a.queue.Close()
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("workers did not stop before shutdown timeout")
	}
	a.Close()

	select {
	case err := <-serveErr:
		return fmt.Errorf("serve http: %w", err)
	default:
		return nil
	}
}

// Close releases infrastructure held by the app.
func (a *App) Close() {
	a.closeInfrastructure()
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
}

func (a *App) closeInfrastructure() {
	if a.pgStore != nil {
		a.pgStore.Close()
		a.pgStore = nil
	}
	if a.gcsStore != nil {
		if err := a.gcsStore.Close(); err != nil {
			a.logger.Warn("archive client close failed", zap.Error(err))
		}
		a.gcsStore = nil
	}
}

func (a *App) setupRegistry(ctx context.Context) (service.Registry, error) {
	if a.cfg.DB.DSN == "" {
		a.logger.Info("using in-memory evaluation registry")
		return memoryStorage.NewEvaluationStore(), nil
	}
	st, err := pgstore.NewEvaluationStore(ctx, pgstore.Config{
		DSN:             a.cfg.DB.DSN,
		Table:           a.cfg.DB.Table,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluation store init failed: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("evaluation store migrate failed: %w", err)
	}
	a.pgStore = st
	a.logger.Info("postgres evaluation registry initialized", zap.String("table", a.cfg.DB.Table))
	return st, nil
}

func (a *App) setupArchive(ctx context.Context) error {
	switch a.cfg.Archive.Backend {
	case "":
		return nil
	case config.ArchiveLocal:
		st, err := localStorage.New(localStorage.Config{BaseDir: a.cfg.Archive.Dir})
		if err != nil {
			return fmt.Errorf("local archive init failed: %w", err)
		}
		a.archive = st
	case config.ArchiveGCS:
		st, err := gcsStorage.Dial(ctx, gcsStorage.Config{Bucket: a.cfg.Archive.Bucket})
		if err != nil {
			return fmt.Errorf("gcs archive init failed: %w", err)
		}
		a.gcsStore = st
		a.archive = st
	default:
		return fmt.Errorf("unknown archive backend %q", a.cfg.Archive.Backend)
	}
	a.logger.Info("evaluation archive enabled",
		zap.String("backend", a.cfg.Archive.Backend),
		zap.String("prefix", a.cfg.Archive.Prefix),
	)
	return nil
}

func (a *App) setupPanel() (*agents.Panel, error) {
	list, err := BuildAgents(a.cfg.Agents)
	if err != nil {
		return nil, err
	}
	a.logger.Info("agent panel ready", zap.String("engine", a.cfg.Agents.Engine), zap.Int("agents", len(list)))
	return agents.NewPanel(list, a.logger), nil
}

// BuildAgents returns the agents selected by cfg.Engine.
func BuildAgents(cfg config.AgentsConfig) ([]agents.Agent, error) {
	switch cfg.Engine {
	case config.EngineLLM:
		list, err := agents.NewLLMAgents(agents.LLMConfig{
			APIKey:            cfg.OpenAIAPIKey,
			BaseURL:           cfg.OpenAIBaseURL,
			Model:             cfg.Model,
			RequestsPerSecond: cfg.LLMRPS,
		})
		if err != nil {
			return nil, fmt.Errorf("llm agents init failed: %w", err)
		}
		return list, nil
	case config.EngineHeuristic, "":
		return agents.Heuristics(cfg.StepDelay), nil
	default:
		return nil, fmt.Errorf("unknown agents engine %q", cfg.Engine)
	}
}

func (a *App) setupDispatcher(
	registry service.Registry,
	panel *agents.Panel,
	runs *worker.Runs,
	clock *system.Clock,
) *dispatcher.Dispatcher {
	workerCfg := worker.Config{
		JobTimeout:    a.cfg.Service.JobTimeout,
		Archive:       a.archive,
		ArchivePrefix: a.cfg.Archive.Prefix,
	}
	a.logger.Info("worker config",
		zap.Int("workers", a.cfg.Service.Concurrency),
		zap.Int("queue_depth", a.cfg.Service.QueueDepth),
		zap.Duration("job_timeout", workerCfg.JobTimeout),
	)
	workers := make([]*worker.Worker, 0, a.cfg.Service.Concurrency)
	for i := range a.cfg.Service.Concurrency {
		workers = append(workers, worker.New(
			a.queue,
			registry,
			panel,
			runs,
			clock,
			workerCfg,
			a.logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	return dispatcher.New(a.queue, workers, dispatcher.Config{Logger: a.logger.Named("dispatcher")})
}
