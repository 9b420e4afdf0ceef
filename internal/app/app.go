// Package app builds the long-lived services of the search engine and owns
// their lifecycle.
package app

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

	"github.com/JakeFAU/synapse-search/internal/api"
	"github.com/JakeFAU/synapse-search/internal/broadcast"
	"github.com/JakeFAU/synapse-search/internal/classify"
	"github.com/JakeFAU/synapse-search/internal/clock"
	"github.com/JakeFAU/synapse-search/internal/config"
	"github.com/JakeFAU/synapse-search/internal/crawler"
	"github.com/JakeFAU/synapse-search/internal/extract"
	collyfetcher "github.com/JakeFAU/synapse-search/internal/fetcher/colly"
	"github.com/JakeFAU/synapse-search/internal/id/uuid"
	"github.com/JakeFAU/synapse-search/internal/logging"
	"github.com/JakeFAU/synapse-search/internal/policy/ratelimit"
	"github.com/JakeFAU/synapse-search/internal/progress"
	progresssinks "github.com/JakeFAU/synapse-search/internal/progress/sinks"
	gcppublisher "github.com/JakeFAU/synapse-search/internal/publisher/pubsub"
	"github.com/JakeFAU/synapse-search/internal/scheduler"
	"github.com/JakeFAU/synapse-search/internal/storage"
)

const shutdownTimeout = 10 * time.Second

// TraversalIDPrefix marks traversal ids in logs and event streams.
const TraversalIDPrefix = "trv_"

// Option customizes Build.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	registerer prometheus.Registerer
	fetcher    crawler.Fetcher
}

// WithLogger uses logger instead of building one from the config.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegisterer registers the event metrics against reg instead of the
// default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithFetcher replaces the colly fetcher.
func WithFetcher(f crawler.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// App contains the application's dependencies.
type App struct {
	cfg         config.Config
	logger      *zap.Logger
	store       crawler.Store
	fetcher     *collyfetcher.Fetcher
	pages       *collyfetcher.Fetcher
	pageFetcher crawler.Fetcher
	engine      *crawler.Engine
	hub         *progress.Hub
	broker      *broadcast.Broker
	publisher   *gcppublisher.Publisher
	scheduler   *scheduler.Scheduler
	apiServer   *api.Server
	closeOnce   sync.Once
}

// Build creates the application's dependencies. The caller must Close the
// returned App.
func Build(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		var err error
		logger, err = logging.Build(logging.Options{
			Development: cfg.Logging.Development,
			Level:       cfg.Logging.Level,
		})
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		zap.ReplaceGlobals(logger)
	}

	a := &App{cfg: cfg, logger: logger}
	a.logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("database_driver", cfg.Database.Driver))

	if err := a.setupStore(ctx); err != nil {
		return nil, err
	}
	if err := a.setupProgress(ctx, o.registerer); err != nil {
		a.closeAll(ctx)
		return nil, err
	}
	if err := a.setupEngine(o.fetcher); err != nil {
		a.closeAll(ctx)
		return nil, err
	}
	sched, err := scheduler.New(cfg.Scheduler.Interval, a.store, a.engine, clock.System{}, a.logger)
	if err != nil {
		a.closeAll(ctx)
		return nil, fmt.Errorf("scheduler init failed: %w", err)
	}
	a.scheduler = sched

	a.apiServer = api.NewServer(api.Dependencies{
		Store:  a.store,
		Crawls: a.scheduler,
		Events: a.broker,
		Logger: a.logger.Named("api"),
	}, cfg)
	return a, nil
}

func (a *App) setupStore(ctx context.Context) error {
	db := a.cfg.Database
	store, err := storage.Open(ctx, storage.Config{
		Driver:          db.Driver,
		Path:            db.Path,
		DSN:             db.DSN,
		MaxConns:        db.MaxConns,
		MinConns:        db.MinConns,
		MaxConnLifetime: db.MaxConnLifetime,
		DisableFullText: db.DisableFullText,
	}, a.logger.Named("store"))
	if err != nil {
		return fmt.Errorf("store init failed: %w", err)
	}
	a.store = store
	return nil
}

func (a *App) setupProgress(ctx context.Context, reg prometheus.Registerer) error {
	cfg := a.cfg.Progress
	a.broker = broadcast.NewBroker(broadcast.Options{
		ClientBuffer: cfg.ClientBuffer,
		MaxClients:   cfg.MaxClients,
		Logger:       a.logger.Named("broadcast"),
	})
	sinkList := []progress.Sink{a.broker}

	promSink, err := progresssinks.NewPrometheusSink(reg)
	switch {
	case err == nil:
		sinkList = append(sinkList, promSink)
	case errors.As(err, &prometheus.AlreadyRegisteredError{}):
		a.logger.Warn("progress metrics already registered, skipping prometheus sink")
	default:
		return fmt.Errorf("prometheus sink init failed: %w", err)
	}

	if cfg.LogEnabled {
		sinkList = append(sinkList, progresssinks.NewLogSink(a.logger.Named("progress_log")))
		a.logger.Debug("added progress log sink")
	}

	if a.cfg.PubSub.Enabled() {
		a.publisher, err = gcppublisher.Dial(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("pubsub init failed: %w", err)
		}
		pubSink, err := progresssinks.NewPubSubSink(a.publisher, a.cfg.PubSub.TopicName, a.logger.Named("progress_pubsub"))
		if err != nil {
			return fmt.Errorf("pubsub sink init failed: %w", err)
		}
		sinkList = append(sinkList, pubSink)
		a.logger.Info("Pub/Sub notifications enabled",
			zap.String("project", a.cfg.PubSub.ProjectID),
			zap.String("topic", a.cfg.PubSub.TopicName))
	}

	hubCfg := progress.Config{
		BufferSize:     cfg.BufferSize,
		MaxBatchEvents: cfg.Batch.MaxEvents,
		MaxBatchWait:   cfg.MaxBatchWait(),
		SinkTimeout:    cfg.SinkTimeout(),
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         a.logger.Named("progress_hub"),
	}
	a.hub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait))
	return nil
}

func (a *App) setupEngine(fetcher crawler.Fetcher) error {
	cc := a.cfg.Crawler
	if fetcher == nil {
		a.fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent:     cc.UserAgent,
			RespectRobots: cc.RespectRobots,
			Timeout:       cc.FetchTimeout,
			MaxBodyBytes:  cc.MaxBodyBytes,
		})
		fetcher = a.fetcher
		a.pages = a.fetcher.WithTimeout(cc.PageTimeout)
		a.pageFetcher = a.pages
		a.logger.Info("using colly fetcher",
			zap.String("user_agent", cc.UserAgent),
			zap.Bool("respect_robots", cc.RespectRobots),
			zap.Duration("fetch_timeout", cc.FetchTimeout),
			zap.Duration("page_timeout", cc.PageTimeout))
	} else {
		a.pageFetcher = fetcher
	}

	deps := crawler.Dependencies{
		Fetcher:    fetcher,
		Extractor:  extract.New(),
		Articles:   a.store,
		Links:      a.store,
		Classifier: classify.New(),
		Sources:    a.store,
		Emitter:    a.hub,
		Clock:      clock.System{},
		IDs:        uuid.New(TraversalIDPrefix),
		Logger:     a.logger,
	}
	limiter := ratelimit.New(ratelimit.Config{
		PerHostRPS:   cc.PerHostRPS,
		PerHostBurst: cc.PerHostBurst,
		PerHostMax:   cc.PerHostMax,
	})
	if limiter.Enabled() {
		deps.Policy = limiter
		a.logger.Info("per-host limits enabled",
			zap.Float64("per_host_rps", cc.PerHostRPS),
			zap.Int("per_host_max", cc.PerHostMax))
	}

	engine, err := crawler.NewEngine(cc.Engine(), deps)
	if err != nil {
		return fmt.Errorf("engine init failed: %w", err)
	}
	a.engine = engine
	return nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store returns the configured store.
func (a *App) Store() crawler.Store { return a.store }

// Engine returns the crawl engine.
func (a *App) Engine() *crawler.Engine { return a.engine }

// Scheduler returns the source scheduler.
func (a *App) Scheduler() *scheduler.Scheduler { return a.scheduler }

// Broker returns the live event broker.
func (a *App) Broker() *broadcast.Broker { return a.broker }

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler { return a.apiServer.Handler() }

// Run serves HTTP and drives the scheduler until ctx is cancelled or the
// process receives SIGINT or SIGTERM.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.cfg.Scheduler.Enabled {
		if err := a.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	} else {
		a.logger.Info("scheduler disabled")
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Close the broker first so open event streams end and Shutdown can finish.
	if err := a.broker.Close(shutdownCtx); err != nil {
		a.logger.Warn("broker close failed", zap.Error(err))
	}
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

// Close stops the scheduler, flushes pending events and releases the store.
// Only the first call has an effect.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.closeAll(ctx)
		a.logger.Info("shutdown complete")
		if err := a.logger.Sync(); err != nil {
			a.logger.Debug("logger sync failed", zap.Error(err))
		}
	})
	return nil
}

func (a *App) closeAll(ctx context.Context) {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.fetcher != nil {
		a.fetcher.Close()
	}
	if a.pages != nil {
		a.pages.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("store close failed", zap.Error(err))
		}
	}
}
