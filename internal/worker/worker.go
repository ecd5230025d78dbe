// Package worker executes simulated tracker batches pulled from a queue.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/progression/internal/progress"
	"github.com/JakeFAU/progression/internal/queue/memory"
	"github.com/JakeFAU/progression/internal/simulate"
)

// Job is one simulated batch: a tracker driven through Config.Runs runs.
type Job struct {
	ID     int
	Config simulate.Config
}

// Result reports how a Job went.
type Result struct {
	Job      Job
	Summary  simulate.Summary
	Err      error
	Started  time.Time
	Finished time.Time
}

// Clock supplies timestamps for results and progress events.
type Clock interface {
	Now() time.Time
}

// Limiter paces job starts per tracker name.
type Limiter interface {
	Wait(ctx context.Context, key string) error
}

// Config wires a Worker's collaborators. Pool, Clock, Limiter and RunIDs are
// optional.
type Config struct {
	Queue   *memory.Queue[Job]
	Pool    *progress.Pool
	Emitter progress.Emitter
	Clock   Clock
	Limiter Limiter
	RunIDs  func() uuid.UUID
	Results chan<- Result
	Logger  *zap.Logger
}

// Worker consumes queue items and runs them with simulate.Runner, sharing one
// tracker pool with its siblings.
type Worker struct {
	cfg    Config
	logger *zap.Logger
}

// New constructs a Worker.
func New(cfg Config) *Worker {
	if cfg.Pool == nil {
		cfg.Pool = &progress.Pool{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{cfg: cfg, logger: logger}
}

// Run processes jobs until the queue is closed and drained or ctx is done.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, err := w.cfg.Queue.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, memory.ErrClosed) && ctx.Err() == nil {
				w.logger.Warn("dequeue failed", zap.Error(err))
			}
			return
		}
		w.report(ctx, w.process(ctx, job))
	}
}

func (w *Worker) process(ctx context.Context, job Job) Result {
	res := Result{Job: job}
	if w.cfg.Limiter != nil {
		if err := w.cfg.Limiter.Wait(ctx, job.Config.Name); err != nil {
			res.Err = err
			return res
		}
	}
	res.Started = w.now()

	var opts []simulate.Option
	if w.cfg.Clock != nil {
		opts = append(opts, simulate.WithObserverOptions(progress.WithClock(w.cfg.Clock.Now)))
	}
	if w.cfg.RunIDs != nil {
		opts = append(opts, simulate.WithObserverOptions(progress.WithRunIDs(w.cfg.RunIDs)))
	}
	runner := simulate.New(job.Config, w.cfg.Pool, w.cfg.Emitter, w.logger, opts...)
	res.Summary, res.Err = runner.Run(ctx)
	res.Finished = w.now()

	w.logger.Debug("job finished",
		zap.Int("job", job.ID),
		zap.String("name", job.Config.Name),
		zap.Int("completed", res.Summary.Completed),
		zap.Int("cancelled", res.Summary.Cancelled),
		zap.Duration("elapsed", res.Finished.Sub(res.Started)),
		zap.Error(res.Err))
	return res
}

func (w *Worker) report(ctx context.Context, res Result) {
	if w.cfg.Results == nil {
		return
	}
	select {
	case w.cfg.Results <- res:
	case <-ctx.Done():
	}
}

func (w *Worker) now() time.Time {
	if w.cfg.Clock != nil {
		return w.cfg.Clock.Now()
	}
	return time.Now().UTC()
}
