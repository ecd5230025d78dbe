// Package dispatcher manages worker fan-out over the job queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/progression/internal/queue/memory"
	"github.com/JakeFAU/progression/internal/simulate"
	"github.com/JakeFAU/progression/internal/worker"
)

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   *memory.Queue[worker.Job]
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(queue *memory.Queue[worker.Job], workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// Run starts all workers and blocks until every one of them has returned,
// which happens once the queue is closed and drained or ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, job worker.Job) error {
	if err := d.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Close stops accepting jobs; queued jobs still run.
func (d *Dispatcher) Close() {
	d.queue.Close()
}

// Batch runs one job per tracker config on n workers and folds the results into
// a single summary. The first job error, if any, is returned alongside it.
func Batch(ctx context.Context, jobs []simulate.Config, n int, base worker.Config) (simulate.Summary, error) {
	if n <= 0 {
		n = 1
	}
	queue := memory.NewQueue[worker.Job](len(jobs))
	results := make(chan worker.Result, len(jobs))
	base.Queue = queue
	base.Results = results

	workers := make([]*worker.Worker, 0, n)
	for i := 0; i < n; i++ {
		workers = append(workers, worker.New(base))
	}
	d := New(queue, workers)
	for i, cfg := range jobs {
		if err := d.Enqueue(ctx, worker.Job{ID: i, Config: cfg}); err != nil {
			d.Close()
			return simulate.Summary{}, err
		}
	}
	d.Close()
	d.Run(ctx)
	close(results)

	var (
		total    simulate.Summary
		firstErr error
	)
	byID := make(map[int]worker.Result, len(jobs))
	for res := range results {
		byID[res.Job.ID] = res
	}
	for i := range jobs {
		res, ok := byID[i]
		if !ok {
			continue
		}
		total.Completed += res.Summary.Completed
		total.Cancelled += res.Summary.Cancelled
		total.FinalValues = append(total.FinalValues, res.Summary.FinalValues...)
		if res.Err != nil && firstErr == nil {
			firstErr = fmt.Errorf("job %d (%s): %w", i, res.Job.Config.Name, res.Err)
		}
	}
	if firstErr == nil && ctx.Err() != nil {
		firstErr = ctx.Err()
	}
	return total, firstErr
}
