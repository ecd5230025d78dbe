// Package simulate drives trackers through synthetic runs. The CLI uses it to
// demonstrate the lifecycle and to feed the sinks with realistic traffic.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/progression/internal/progress"
)

const tracerName = "github.com/JakeFAU/progression/internal/simulate"

// Config controls a simulated batch of runs.
type Config struct {
	// Name labels the tracker.
	Name string
	// Runs is how many start-to-end passes to drive (default 1).
	Runs int
	// Steps is how many evaluations each run makes before ending (default 10).
	Steps int
	// Interval is the pause between steps; zero runs flat out.
	Interval time.Duration
	// CancelAt cancels a run once its value reaches this fraction; zero disables it.
	CancelAt float64
}

// Summary reports what a batch did.
type Summary struct {
	Completed int
	Cancelled int
	// FinalValues holds the value each run ended at.
	FinalValues []float64
}

// Runner drives one pooled tracker through Config.Runs runs, resetting it in
// between and recycling it into the pool when done.
type Runner struct {
	cfg     Config
	pool    *progress.Pool
	emitter progress.Emitter
	logger  *zap.Logger
	tracer  trace.Tracer
	obsOpts []progress.ObserverOption
	sleep   func(context.Context, time.Duration) error
}

// Option customizes a Runner.
type Option func(*Runner)

// WithObserverOptions forwards options to the Observer that reports the runs.
func WithObserverOptions(opts ...progress.ObserverOption) Option {
	return func(r *Runner) { r.obsOpts = append(r.obsOpts, opts...) }
}

// New builds a Runner. A nil emitter discards events; a nil pool allocates a
// private one.
func New(cfg Config, pool *progress.Pool, emitter progress.Emitter, logger *zap.Logger, opts ...Option) *Runner {
	if cfg.Runs <= 0 {
		cfg.Runs = 1
	}
	if cfg.Steps <= 0 {
		cfg.Steps = 10
	}
	if pool == nil {
		pool = &progress.Pool{}
	}
	if emitter == nil {
		emitter = progress.EmitterFunc(func(progress.Event) {})
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		cfg:     cfg,
		pool:    pool,
		emitter: emitter,
		logger:  logger,
		tracer:  otel.Tracer(tracerName),
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Run executes the batch. Context cancellation cancels the run in flight and
// stops the batch; the error is then ctx.Err().
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	tr := r.pool.Get(progress.WithName(r.cfg.Name))
	defer r.pool.Put(tr)

	obs := progress.NewObserver(r.emitter, r.obsOpts...)
	obs.Attach(tr)
	defer obs.Detach()

	var summary Summary
	tr.OnCompleted(func(progress.Progress) { summary.Completed++ }).
		OnCancelled(func(progress.Progress) { summary.Cancelled++ })

	for i := 0; i < r.cfg.Runs; i++ {
		if i > 0 {
			if err := tr.Reset(); err != nil {
				return summary, fmt.Errorf("reset before run %d: %w", i+1, err)
			}
		}
		err := r.traceRun(ctx, tr, i+1)
		summary.FinalValues = append(summary.FinalValues, tr.Value())
		r.logger.Debug("simulated run finished",
			zap.String("name", r.cfg.Name),
			zap.Int("run", i+1),
			zap.Stringer("state", tr.State()),
			zap.Float64("value", tr.Value()),
			zap.Stringer("run_id", obs.RunID()))
		if err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// traceRun wraps one run in a span tagged with its outcome.
func (r *Runner) traceRun(ctx context.Context, tr *progress.Tracker, n int) error {
	ctx, span := r.tracer.Start(ctx, "simulate.run", trace.WithAttributes(
		attribute.String("progress.name", r.cfg.Name),
		attribute.Int("progress.run", n),
		attribute.Int("progress.steps", r.cfg.Steps),
	))
	defer span.End()

	err := r.runOnce(ctx, tr)
	span.SetAttributes(
		attribute.String("progress.state", tr.State().String()),
		attribute.Float64("progress.value", tr.Value()),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (r *Runner) runOnce(ctx context.Context, tr *progress.Tracker) error {
	if err := tr.Start(); err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	halfway := r.cfg.Steps / 2
	for step := 1; step <= r.cfg.Steps; step++ {
		if err := r.sleep(ctx, r.cfg.Interval); err != nil {
			tr.TryCancel()
			return err
		}
		v := float64(step) / float64(r.cfg.Steps)
		if err := tr.Evaluate(v); err != nil {
			return fmt.Errorf("evaluate step %d: %w", step, err)
		}
		if step == halfway {
			tr.FireSignal("halfway", r.cfg.Name)
		}
		if r.cfg.CancelAt > 0 && v >= r.cfg.CancelAt && step < r.cfg.Steps {
			return tr.Cancel()
		}
	}
	return tr.Complete()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsInterrupted reports whether err came from context cancellation.
func IsInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
