// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/progression/internal/config"
	"github.com/JakeFAU/progression/internal/logging"
	"github.com/JakeFAU/progression/internal/progress"
	"github.com/JakeFAU/progression/internal/progress/sinks"
	"github.com/JakeFAU/progression/internal/storage/memory"
	"github.com/JakeFAU/progression/internal/storage/postgres"
	"github.com/JakeFAU/progression/internal/storage/sqlite"
	"github.com/JakeFAU/progression/internal/store"
	"github.com/JakeFAU/progression/internal/telemetry"
)

// ServiceName tags traces emitted by the binary.
const ServiceName = "progression"

// Version is stamped at build time via -ldflags.
var Version = "dev"

// App holds the shared, long-lived services: logger, metrics registry, run
// ledger, event hub and tracker pool. It is built once at startup and handed to
// the commands that need it.
type App struct {
	cfg         config.Config
	logger      *zap.Logger
	registry    *prometheus.Registry
	httpMetrics *telemetry.HTTPMetrics
	ledger      store.RunRepository
	hub         *progress.Hub
	pool        *progress.Pool
	tracer      *sdktrace.TracerProvider

	closers []func()
}

// Option customizes App construction.
type Option func(*options)

type options struct {
	logger       *zap.Logger
	ledger       store.RunRepository
	tracerOpts   []sdktrace.TracerProviderOption
	extraSinks   []progress.Sink
	ledgerSetter bool
}

// WithLogger skips logger construction and uses l.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithLedger replaces the configured run ledger. A nil repo disables it.
func WithLedger(repo store.RunRepository) Option {
	return func(o *options) {
		o.ledger = repo
		o.ledgerSetter = true
	}
}

// WithTracerOptions forwards options (exporters, span processors) to the tracer provider.
func WithTracerOptions(opts ...sdktrace.TracerProviderOption) Option {
	return func(o *options) { o.tracerOpts = append(o.tracerOpts, opts...) }
}

// WithSinks adds sinks to the hub alongside the configured ones.
func WithSinks(s ...progress.Sink) Option {
	return func(o *options) { o.extraSinks = append(o.extraSinks, s...) }
}

// New builds the application services from cfg. It fails fast if any critical
// service cannot be initialized, releasing whatever it already built.
func New(ctx context.Context, cfg config.Config, opts ...Option) (_ *App, err error) {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	a := &App{cfg: cfg, pool: &progress.Pool{}}
	defer func() {
		if err != nil {
			a.release()
			if a.tracer != nil {
				_ = a.tracer.Shutdown(context.WithoutCancel(ctx))
			}
		}
	}()

	a.logger = o.logger
	if a.logger == nil {
		a.logger, err = logging.New(cfg.Logging.Development, cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
	}
	a.logger.Info("initializing application services",
		zap.String("version", Version),
		zap.String("ledger", cfg.Ledger.Driver))

	a.tracer, err = telemetry.InitTracerProvider(ctx, ServiceName, Version, cfg.Tracing.SampleRatio, o.tracerOpts...)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}

	a.registry = prometheus.NewRegistry()
	if err = a.registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}
	if err = a.registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("register process collector: %w", err)
	}
	a.httpMetrics, err = telemetry.NewHTTPMetrics(a.registry)
	if err != nil {
		return nil, err
	}

	if o.ledgerSetter {
		a.ledger = o.ledger
	} else if a.ledger, err = a.openLedger(ctx); err != nil {
		return nil, err
	}

	sinkList, err := a.buildSinks()
	if err != nil {
		return nil, err
	}
	sinkList = append(sinkList, o.extraSinks...)
	if len(sinkList) == 0 {
		a.logger.Warn("no progress sinks configured; events will be discarded")
	}

	hubCfg := progress.HubConfig{
		BufferSize:     cfg.Hub.BufferSize,
		MaxBatchEvents: cfg.Hub.MaxBatchEvents,
		MaxBatchWait:   cfg.Hub.MaxBatchWait,
		SinkTimeout:    cfg.Hub.SinkTimeout,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         a.logger.Named("progress_hub"),
	}
	a.hub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Duration("sink_timeout", hubCfg.SinkTimeout),
	)
	return a, nil
}

func (a *App) openLedger(ctx context.Context) (store.RunRepository, error) {
	switch a.cfg.Ledger.Driver {
	case config.LedgerNone:
		a.logger.Info("run ledger disabled")
		return nil, nil
	case config.LedgerPostgres:
		pg, err := postgres.NewRunStore(ctx, postgres.RunStoreConfig{
			DSN:             a.cfg.Ledger.DSN,
			Table:           a.cfg.Ledger.Table,
			MaxConns:        a.cfg.Ledger.MaxConns,
			MaxConnLifetime: a.cfg.Ledger.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("run ledger init failed: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		if a.cfg.Ledger.AutoMigrate {
			if err := pg.EnsureSchema(ctx); err != nil {
				return nil, fmt.Errorf("run ledger migrate failed: %w", err)
			}
		}
		a.logger.Info("postgres run ledger initialized", zap.String("table", a.cfg.Ledger.Table))
		return pg, nil
	case config.LedgerSQLite:
		lite, err := sqlite.Open(ctx, a.cfg.Ledger.DSN, a.cfg.Ledger.Table)
		if err != nil {
			return nil, fmt.Errorf("run ledger init failed: %w", err)
		}
		a.closers = append(a.closers, lite.Close)
		a.logger.Info("sqlite run ledger initialized", zap.String("path", a.cfg.Ledger.DSN))
		return lite, nil
	case config.LedgerMemory, "":
		a.logger.Info("using in-memory run ledger")
		return memory.NewRunStore(), nil
	default:
		return nil, fmt.Errorf("unknown ledger driver: %s", a.cfg.Ledger.Driver)
	}
}

func (a *App) buildSinks() ([]progress.Sink, error) {
	var out []progress.Sink
	if a.ledger != nil {
		out = append(out, sinks.NewStoreSink(a.ledger, a.logger.Named("progress_store")))
		a.logger.Debug("added progress store sink")
	}
	if a.cfg.Sinks.Prometheus {
		promSink, err := sinks.NewPrometheusSink(a.registry)
		if err != nil {
			return nil, fmt.Errorf("prometheus sink init failed: %w", err)
		}
		out = append(out, promSink)
		a.logger.Debug("added progress prometheus sink")
	}
	if a.cfg.Sinks.Log {
		out = append(out, sinks.NewLogSink(a.logger.Named("progress_log")))
		a.logger.Debug("added progress log sink")
	}
	return out, nil
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Registry returns the Prometheus registry backing /metrics.
func (a *App) Registry() *prometheus.Registry { return a.registry }

// HTTPMetrics returns the request collectors registered on Registry.
func (a *App) HTTPMetrics() *telemetry.HTTPMetrics { return a.httpMetrics }

// TracerProvider returns the provider installed as the global one by New.
func (a *App) TracerProvider() *sdktrace.TracerProvider { return a.tracer }

// Ledger returns the run ledger, or nil when it is disabled.
func (a *App) Ledger() store.RunRepository { return a.ledger }

// Emitter returns the hub trackers report to.
func (a *App) Emitter() progress.Emitter { return a.hub }

// Hub returns the event hub.
func (a *App) Hub() *progress.Hub { return a.hub }

// Pool returns the shared tracker pool.
func (a *App) Pool() *progress.Pool { return a.pool }

// Close drains the hub into its sinks, then releases the ledger, tracer and
// logger. It is called by a Cobra hook after the command finishes execution.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		if dropped := a.hub.Dropped(); dropped > 0 {
			a.logger.Warn("progress events were dropped", zap.Int64("dropped", dropped))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}
	a.release()
	a.logger.Info("shutdown complete")
	_ = a.logger.Sync() //nolint:errcheck // stdout/stderr cannot be synced on every platform
	return errors.Join(errs...)
}

func (a *App) release() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
