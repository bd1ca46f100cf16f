// Package app builds and holds the long-lived leadscout services.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/leadscout/internal/api"
	"github.com/JakeFAU/leadscout/internal/clock/system"
	"github.com/JakeFAU/leadscout/internal/collector/browser"
	"github.com/JakeFAU/leadscout/internal/collector/textsearch"
	"github.com/JakeFAU/leadscout/internal/config"
	"github.com/JakeFAU/leadscout/internal/dispatcher"
	"github.com/JakeFAU/leadscout/internal/id/uuid"
	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/logging"
	"github.com/JakeFAU/leadscout/internal/places"
	"github.com/JakeFAU/leadscout/internal/policy/qualify"
	"github.com/JakeFAU/leadscout/internal/policy/ratelimit"
	"github.com/JakeFAU/leadscout/internal/publisher"
	memorypublisher "github.com/JakeFAU/leadscout/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/leadscout/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/leadscout/internal/queue/memory"
	"github.com/JakeFAU/leadscout/internal/scan"
	gcsstorage "github.com/JakeFAU/leadscout/internal/storage/gcs"
	localstorage "github.com/JakeFAU/leadscout/internal/storage/local"
	memoryStorage "github.com/JakeFAU/leadscout/internal/storage/memory"
	pgstore "github.com/JakeFAU/leadscout/internal/storage/postgres"
	"github.com/JakeFAU/leadscout/internal/telemetry"
	"github.com/JakeFAU/leadscout/internal/worker"
)

// LaunchFunc builds the browser launcher. Tests replace it to avoid Chrome.
type LaunchFunc func(cfg browser.ChromeConfig) (browser.Launcher, error)

// Options tweak Build.
type Options struct {
	Launch LaunchFunc
	// Places overrides the Places API client.
	Places places.Client
}

// App holds every service shared by the commands and the HTTP server.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	leads     lead.Store
	jobs      *memoryStorage.JobStore
	artifacts lead.BlobStore
	publisher lead.Publisher
	scanner   *scan.Orchestrator
	browser   *browser.Collector
	queue     *queueMemory.Queue
	dispatch  *dispatcher.Dispatcher
	apiServer *api.Server
	clock     lead.Clock
	ids       lead.IDGenerator
	closers   []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// Build wires the services described by cfg. On failure anything already
// opened is released.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Launch == nil {
		opts.Launch = chromeLauncher
	}
	a := &App{
		cfg:    cfg,
		logger: logger,
		jobs:   memoryStorage.NewJobStore(),
		clock:  system.New(),
		ids:    uuid.New(),
	}
	defer func() {
		if err != nil {
			a.closeInfrastructure()
		}
	}()

	a.logger.Info("building application",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("store_backend", cfg.Store.Backend),
		zap.String("artifacts_backend", cfg.Artifacts.Backend),
		zap.Bool("pubsub_enabled", cfg.PubSub.Enabled()),
	)

	tp, err := telemetry.Init(ctx, cfg.Telemetry, logging.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	a.closers = append(a.closers, namedCloser{name: "tracer", close: func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tp.Shutdown(shutdownCtx)
	}})

	if err = a.setupPublisher(ctx); err != nil {
		return nil, err
	}
	if err = a.setupLeadStore(ctx); err != nil {
		return nil, err
	}
	if err = a.setupArtifacts(ctx); err != nil {
		return nil, err
	}

	policy := qualify.New(cfg.Qualify.MinReviews)
	a.setupScanner(policy, opts.Places)
	if err = a.setupBrowser(policy, opts.Launch); err != nil {
		return nil, err
	}
	a.setupDispatcher()

	a.apiServer = api.NewServer(api.Deps{
		Leads:             a.leads,
		Scanner:           a.scanner,
		Jobs:              a.jobs,
		Runs:              a.dispatch,
		IDs:               a.ids,
		Clock:             a.clock,
		DefaultMaxResults: cfg.Browser.MaxResults,
	}, logging.Component(logger, "api"))
	return a, nil
}

func chromeLauncher(cfg browser.ChromeConfig) (browser.Launcher, error) {
	l, err := browser.NewChromeLauncher(cfg)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if !a.cfg.PubSub.Enabled() {
		a.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		a.publisher = memorypublisher.New()
		return nil
	}
	pub, err := gcppublisher.Dial(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.publisher = pub
	a.closers = append(a.closers, namedCloser{name: "pubsub", close: pub.Close})
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.Topic),
	)
	return nil
}

func (a *App) setupLeadStore(ctx context.Context) error {
	var store lead.Store
	switch a.cfg.Store.Backend {
	case config.BackendPostgres:
		if a.cfg.DB.MigrateOnStart {
			if err := pgstore.MigrateUp(a.cfg.DB.DSN, logging.Component(a.logger, "migrate")); err != nil {
				return fmt.Errorf("migrate on start: %w", err)
			}
		}
		pg, err := pgstore.NewLeadStore(ctx, pgstore.LeadStoreConfig{
			DSN:             a.cfg.DB.DSN,
			MaxConns:        a.cfg.DB.MaxConns,
			MinConns:        a.cfg.DB.MinConns,
			MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("lead store init failed: %w", err)
		}
		a.closers = append(a.closers, namedCloser{name: "postgres", close: func() error {
			pg.Close()
			return nil
		}})
		store = pg
		a.logger.Info("using postgres lead store")
	default:
		a.logger.Info("using in-memory lead store")
		store = memoryStorage.NewLeadStore()
	}
	a.leads = publisher.NewLeadEvents(store, a.publisher, a.cfg.PubSub.Topic, logging.Component(a.logger, "events"))
	return nil
}

func (a *App) setupArtifacts(ctx context.Context) error {
	switch a.cfg.Artifacts.Backend {
	case config.BackendGCS:
		store, err := gcsstorage.Dial(ctx, a.cfg.Artifacts.GCS)
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.closers = append(a.closers, namedCloser{name: "gcs", close: store.Close})
		a.artifacts = store
		a.logger.Info("using GCS artifact store", zap.String("bucket", a.cfg.Artifacts.GCS.Bucket))
	case config.BackendLocal:
		store, err := localstorage.New(a.cfg.Artifacts.Local)
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		a.artifacts = store
		a.logger.Info("using local artifact store", zap.String("path", a.cfg.Artifacts.Local.BaseDir))
	default:
		a.logger.Info("using in-memory artifact store")
		a.artifacts = memoryStorage.NewBlobStore()
	}
	return nil
}

func (a *App) setupScanner(policy qualify.Policy, client places.Client) {
	if client == nil {
		opts := []places.Option{
			places.WithLimiter(ratelimit.New(ratelimit.Config{
				DefaultRPS:   a.cfg.Places.RPS,
				DefaultBurst: a.cfg.Places.Burst,
			})),
		}
		if a.cfg.Places.BaseURL != "" {
			opts = append(opts, places.WithBaseURL(a.cfg.Places.BaseURL))
		}
		if a.cfg.Places.Timeout > 0 {
			opts = append(opts, places.WithHTTPClient(&http.Client{Timeout: a.cfg.Places.Timeout}))
		}
		if a.cfg.Places.APIKey == "" {
			a.logger.Warn("places.api_key is empty, structured scans will be rejected upstream")
		}
		client = places.NewClient(a.cfg.Places.APIKey, opts...)
	}
	pages := textsearch.New(client, a.leads, policy, textsearch.Config{}, logging.Component(a.logger, "textsearch"))
	a.scanner = scan.New(pages, scan.Config{PageBudget: a.cfg.Scan.PageBudget}, logging.Component(a.logger, "scan"))
}

func (a *App) setupBrowser(policy qualify.Policy, launch LaunchFunc) error {
	launcher, err := launch(a.cfg.Browser.Chrome)
	if err != nil {
		return fmt.Errorf("browser launcher init failed: %w", err)
	}
	a.browser = browser.New(
		launcher,
		a.leads,
		policy,
		a.cfg.Browser.Config,
		logging.Component(a.logger, "browser"),
		browser.WithArtifacts(a.artifacts),
	)
	a.logger.Info("browser collector initialized",
		zap.String("mode", a.cfg.Browser.Chrome.Mode),
		zap.Int("workers", a.cfg.Browser.Workers),
	)
	return nil
}

func (a *App) setupDispatcher() {
	a.queue = queueMemory.NewQueue(a.cfg.Browser.QueueDepth)
	workerCfg := worker.Config{
		Topic:      a.cfg.PubSub.Topic,
		RunTimeout: a.cfg.Browser.RunTimeout,
	}
	workers := make([]*worker.Worker, 0, a.cfg.Browser.Workers)
	for i := 0; i < a.cfg.Browser.Workers; i++ {
		workers = append(workers, worker.New(
			a.queue,
			a.jobs,
			a.browser,
			a.publisher,
			a.clock,
			workerCfg,
			logging.Component(a.logger, "worker").With(zap.Int("index", i)),
		))
	}
	a.dispatch = dispatcher.New(a.queue, workers, logging.Component(a.logger, "dispatcher"))
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config { return a.cfg }

// Leads returns the lead store.
func (a *App) Leads() lead.Store { return a.leads }

// Scanner returns the structured scan orchestrator.
func (a *App) Scanner() *scan.Orchestrator { return a.scanner }

// Browser returns the browser collector.
func (a *App) Browser() *browser.Collector { return a.browser }

// Handler returns the HTTP API handler.
func (a *App) Handler() http.Handler { return a.apiServer.Handler() }

// Serve runs the HTTP server and the browser-run workers until ctx is done,
// then drains both.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       a.cfg.Server.ReadTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Browser.Workers))
		a.dispatch.Run(gctx)
		return nil
	})
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
		timeout := a.cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// Close releases every service in reverse order of construction.
func (a *App) Close() {
	if a.queue != nil {
		a.queue.Close()
	}
	a.closeInfrastructure()
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
}

func (a *App) closeInfrastructure() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.logger.Warn("close failed", zap.String("service", c.name), zap.Error(err))
		}
	}
	a.closers = nil
}
