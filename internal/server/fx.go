// Package server builds the application's dependency graph and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/atlas-jobs/internal/api"
	"github.com/JakeFAU/atlas-jobs/internal/clock/system"
	"github.com/JakeFAU/atlas-jobs/internal/config"
	"github.com/JakeFAU/atlas-jobs/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/atlas-jobs/internal/fetcher/colly"
	"github.com/JakeFAU/atlas-jobs/internal/hash/sha256"
	"github.com/JakeFAU/atlas-jobs/internal/id/uuid"
	"github.com/JakeFAU/atlas-jobs/internal/ingest"
	"github.com/JakeFAU/atlas-jobs/internal/jobs"
	"github.com/JakeFAU/atlas-jobs/internal/logging"
	"github.com/JakeFAU/atlas-jobs/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/atlas-jobs/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/atlas-jobs/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/atlas-jobs/internal/queue/memory"
	"github.com/JakeFAU/atlas-jobs/internal/scheduler"
	"github.com/JakeFAU/atlas-jobs/internal/service"
	"github.com/JakeFAU/atlas-jobs/internal/settings"
	"github.com/JakeFAU/atlas-jobs/internal/sources"
	gcsstorage "github.com/JakeFAU/atlas-jobs/internal/storage/gcs"
	localstorage "github.com/JakeFAU/atlas-jobs/internal/storage/local"
	memoryStorage "github.com/JakeFAU/atlas-jobs/internal/storage/memory"
	mongostore "github.com/JakeFAU/atlas-jobs/internal/storage/mongo"
	pgstore "github.com/JakeFAU/atlas-jobs/internal/storage/postgres"
	"github.com/JakeFAU/atlas-jobs/internal/telemetry"
	"github.com/JakeFAU/atlas-jobs/internal/transform"
	"github.com/JakeFAU/atlas-jobs/internal/worker"
)

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	clock     jobs.Clock
	store     jobs.Store
	runs      jobs.RunStore
	service   *service.Service
	submitter *ingest.Submitter
	queue     *queueMemory.Queue
	worker    *worker.Worker
	dispatch  *dispatcher.Dispatcher
	scheduler *scheduler.Scheduler
	apiServer *api.Server

	pgPool         *pgxpool.Pool
	pubsub         *gcppublisher.Publisher
	storage        *storage.Client
	tracerShutdown func(context.Context) error
	metricShutdown func(context.Context) error
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Ingest runs the given sources synchronously, outside the queue, and
// returns the finished run. Empty srcs means every enabled source.
func (a *App) Ingest(ctx context.Context, srcs []jobs.Source) (jobs.Run, error) {
	req, err := a.submitter.Prepare(ctx, jobs.TriggerCLI, srcs)
	if err != nil {
		return jobs.Run{}, fmt.Errorf("prepare run: %w", err)
	}
	run, err := a.worker.Process(ctx, req)
	if err != nil {
		return run, fmt.Errorf("process run %s: %w", req.RunID, err)
	}
	return run, nil
}

// BackfillSalaries parses salary ranges for stored postings that lack one.
func (a *App) BackfillSalaries(ctx context.Context) (service.BackfillResult, error) {
	res, err := a.service.BackfillSalaries(ctx)
	if err != nil {
		return res, fmt.Errorf("backfill salaries: %w", err)
	}
	return res, nil
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(logging.Options{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("database_backend", cfg.Database.Backend),
		zap.String("storage_backend", cfg.Storage.Backend),
	)

	app := &App{cfg: cfg, logger: logger, clock: system.New()}

	tp, mp, err := telemetry.InitTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("telemetry init failed: %w", err)
	}
	app.tracerShutdown = tp.Shutdown
	app.metricShutdown = mp.Shutdown

	if err := app.setupDatabase(ctx); err != nil {
		app.closeQuietly()
		return nil, err
	}
	blobs, err := app.setupStorage(ctx)
	if err != nil {
		app.closeQuietly()
		return nil, err
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		app.closeQuietly()
		return nil, err
	}

	app.service = service.New(
		app.store,
		transform.NewRegistry(uuid.NewRecordIDGenerator(), app.clock),
		app.clock,
		logger.Named("service"),
		service.Options{
			ListLimit:        cfg.Jobs.ListLimit,
			MaxAge:           cfg.MaxAge(),
			StoreConcurrency: cfg.Ingest.StoreConcurrency,
		},
	)
	if err := app.service.EnsureIndexes(ctx); err != nil {
		app.closeQuietly()
		return nil, err
	}

	app.setupIngest(blobs, publisher)
	if err := app.setupScheduler(); err != nil {
		app.closeQuietly()
		return nil, err
	}

	app.apiServer = api.NewServer(api.Deps{
		Jobs:      app.service,
		Settings:  settings.NewStore(),
		Runs:      app.runs,
		Submitter: app.submitter,
		Clock:     app.clock,
		Ready:     app.ready,
	}, cfg, logger.Named("api"))

	return app, nil
}

func (a *App) setupDatabase(ctx context.Context) error {
	switch a.cfg.Database.Backend {
	case config.BackendPostgres:
		pool, err := pgstore.Connect(ctx, pgstore.Config{
			DSN:             a.cfg.Database.DSN,
			MaxConns:        a.cfg.Database.MaxConns,
			MinConns:        a.cfg.Database.MinConns,
			MaxConnLifetime: a.cfg.Database.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("postgres init failed: %w", err)
		}
		a.pgPool = pool
		store, err := pgstore.NewJobStore(pool, a.cfg.Database.Table)
		if err != nil {
			return fmt.Errorf("postgres job store init failed: %w", err)
		}
		runs, err := pgstore.NewRunStore(pool, "")
		if err != nil {
			return fmt.Errorf("postgres run store init failed: %w", err)
		}
		if err := runs.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("postgres run schema failed: %w", err)
		}
		a.store, a.runs = store, runs
		a.logger.Info("using postgres job store", zap.String("table", a.cfg.Database.Table))
	case config.BackendMongo:
		store, err := mongostore.Connect(ctx, mongostore.Config{
			URI:        a.cfg.Database.URI,
			Database:   a.cfg.Database.Name,
			Collection: a.cfg.Database.Collection,
		})
		if err != nil {
			return fmt.Errorf("mongo init failed: %w", err)
		}
		a.store = store
		// Run history is process-local on this backend.
		a.runs = memoryStorage.NewRunStore()
		a.logger.Info("using mongo job store",
			zap.String("database", a.cfg.Database.Name),
			zap.String("collection", a.cfg.Database.Collection))
	default:
		a.store = memoryStorage.NewJobStore()
		a.runs = memoryStorage.NewRunStore()
		a.logger.Warn("using in-memory job store; postings are lost on restart")
	}
	return nil
}

func (a *App) setupStorage(ctx context.Context) (jobs.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storage = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Storage.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("archiving raw pages to GCS", zap.String("bucket", a.cfg.Storage.Bucket))
		return blobs, nil
	case config.BackendLocal:
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("archiving raw pages locally", zap.String("path", a.cfg.Storage.Local.BaseDir))
		return blobs, nil
	case config.BackendMemory:
		a.logger.Info("archiving raw pages in memory")
		return memoryStorage.NewBlobStore(), nil
	default:
		a.logger.Info("raw page archiving disabled")
		return nil, nil
	}
}

func (a *App) setupPublisher(ctx context.Context) (jobs.Publisher, error) {
	if a.cfg.PubSub.ProjectID == "" {
		a.logger.Info("no Pub/Sub project configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	pub, err := gcppublisher.New(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub init failed: %w", err)
	}
	a.pubsub = pub
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName))
	return pub, nil
}

func (a *App) setupIngest(blobs jobs.BlobStore, publisher jobs.Publisher) {
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.HTTP.UserAgent,
		Timeout:   time.Duration(a.cfg.HTTP.TimeoutSeconds) * time.Second,
	})
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   a.cfg.RateLimit.RequestsPerSecond,
		DefaultBurst: a.cfg.RateLimit.Burst,
	})
	clients := sources.NewClients(a.cfg, fetcher, limiter, a.logger.Named("sources"))

	pipeline := ingest.NewPipeline(
		clients,
		a.service,
		blobs,
		publisher,
		sha256.New(),
		a.clock,
		ingest.Config{
			BlobPrefix:  a.cfg.Storage.Prefix,
			Topic:       a.cfg.PubSub.TopicName,
			SourceDelay: a.cfg.SourceDelay(),
		},
		a.logger.Named("pipeline"),
	)

	a.queue = queueMemory.NewQueue(a.cfg.Ingest.QueueDepth)
	a.submitter = ingest.NewSubmitter(
		a.runs,
		a.queue,
		uuid.NewRunIDGenerator(),
		a.clock,
		pipeline.Sources(),
		a.logger.Named("submitter"),
	)

	workerCfg := worker.Config{
		Topic:      a.cfg.PubSub.TopicName,
		JobTimeout: a.cfg.JobTimeout(),
	}
	loops := make([]dispatcher.Loop, 0, a.cfg.Ingest.Concurrency)
	for i := range a.cfg.Ingest.Concurrency {
		w := worker.New(a.queue, a.runs, pipeline, publisher, a.clock, workerCfg,
			a.logger.Named("worker").With(zap.Int("worker", i)))
		if a.worker == nil {
			a.worker = w
		}
		loops = append(loops, w)
	}
	a.dispatch = dispatcher.New(a.queue, loops, a.logger.Named("dispatcher"))
	a.logger.Info("ingest configured",
		zap.Any("sources", pipeline.Sources()),
		zap.Int("workers", len(loops)),
		zap.Duration("job_timeout", workerCfg.JobTimeout),
	)
}

func (a *App) setupScheduler() error {
	if a.cfg.Ingest.Schedule == "" {
		a.logger.Info("ingest schedule disabled")
		return nil
	}
	sched, err := scheduler.New(a.cfg.Ingest.Schedule, a.cfg.Ingest.RunOnStart, a.submitter, a.logger.Named("scheduler"))
	if err != nil {
		return fmt.Errorf("scheduler init failed: %w", err)
	}
	a.scheduler = sched
	return nil
}

func (a *App) ready(ctx context.Context) error {
	if a.pgPool == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.pgPool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Run starts the HTTP server, workers and scheduler, and blocks until the
// context is canceled or a signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.dispatch.Run(gctx)
	})
	if a.scheduler != nil {
		g.Go(func() error {
			return a.scheduler.Run(gctx)
		})
	}
	g.Go(func() error {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown error", zap.Error(err))
		}
		return nil
	})

	runErr := g.Wait()
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()
	return errors.Join(runErr, a.Close(closeCtx))
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(a.cfg.Server.ShutdownTimeoutSeconds) * time.Second
}

// Close releases stores, clients and telemetry providers.
func (a *App) Close(ctx context.Context) error {
	if a.queue != nil {
		a.queue.Close()
	}
	err := a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return err
}

func (a *App) closeQuietly() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		a.logger.Warn("cleanup after failed build", zap.Error(err))
	}
}

func (a *App) closeInfrastructure(ctx context.Context) error {
	var errs []error
	if a.store != nil {
		// The postgres job store owns the shared pool.
		if err := a.store.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close job store: %w", err))
		}
	} else if a.pgPool != nil {
		a.pgPool.Close()
	}
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	if a.metricShutdown != nil {
		if err := a.metricShutdown(ctx); err != nil {
			a.logger.Warn("metric shutdown failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
