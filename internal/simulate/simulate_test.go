package simulate

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/JakeFAU/progression/internal/progress"
)

type collect struct {
	events []progress.Event
}

func (c *collect) Emit(evt progress.Event) { c.events = append(c.events, evt) }

func (c *collect) count(stage progress.Stage) int {
	n := 0
	for _, evt := range c.events {
		if evt.Stage == stage {
			n++
		}
	}
	return n
}

// TestRunnerCompletesRuns drives several runs through one recycled tracker.
func TestRunnerCompletesRuns(t *testing.T) {
	t.Parallel()

	em := &collect{}
	r := New(Config{Name: "demo", Runs: 3, Steps: 4}, nil, em, nil)
	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 3, summary.Completed)
	require.Zero(t, summary.Cancelled)
	require.Equal(t, []float64{1, 1, 1}, summary.FinalValues)
	require.Equal(t, 3, em.count(progress.StageStarted))
	require.Equal(t, 3, em.count(progress.StageCompleted))
	require.Equal(t, 2, em.count(progress.StageReset))
	require.Equal(t, 3, em.count(progress.StageSignal))
	// start evaluates 0, four steps, complete evaluates 1
	require.Equal(t, 18, em.count(progress.StageEvaluated))
	for _, evt := range em.events {
		require.NoError(t, evt.Validate())
	}
}

// TestRunnerLabelsEvents stamps the configured name on every event, including
// when the tracker comes back from a shared pool.
func TestRunnerLabelsEvents(t *testing.T) {
	t.Parallel()

	pool := &progress.Pool{}
	for _, name := range []string{"nightly", "hourly"} {
		em := &collect{}
		_, err := New(Config{Name: name, Runs: 2, Steps: 2}, pool, em, nil).Run(context.Background())
		require.NoError(t, err)
		require.NotEmpty(t, em.events)
		for _, evt := range em.events {
			require.Equal(t, name, evt.Name, "stage %s", evt.Stage)
		}
	}

	require.Empty(t, pool.Get().Name())
}

// TestRunnerCancelsAtThreshold exercises the cancel path.
func TestRunnerCancelsAtThreshold(t *testing.T) {
	t.Parallel()

	r := New(Config{Runs: 2, Steps: 10, CancelAt: 0.5}, nil, nil, nil)
	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.Cancelled)
	require.Zero(t, summary.Completed)
	require.Len(t, summary.FinalValues, 2)
	require.InDelta(t, 0.5, summary.FinalValues[0], 1e-9)
}

// TestRunnerStopsOnContextCancel cancels the run in flight.
func TestRunnerStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	em := &collect{}
	r := New(Config{Runs: 5, Steps: 100, Interval: time.Hour}, nil, em, nil)
	steps := 0
	r.sleep = func(ctx context.Context, _ time.Duration) error {
		steps++
		if steps == 3 {
			cancel()
		}
		return ctx.Err()
	}

	summary, err := r.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, IsInterrupted(err))
	require.Equal(t, 1, summary.Cancelled)
	require.Equal(t, 1, em.count(progress.StageCancelled))
}

// TestRunnerRecyclesIntoPool returns a clean tracker to the pool.
func TestRunnerRecyclesIntoPool(t *testing.T) {
	t.Parallel()

	pool := &progress.Pool{}
	r := New(Config{Steps: 2}, pool, nil, nil)
	_, err := r.Run(context.Background())
	require.NoError(t, err)

	tr := pool.Get()
	require.Equal(t, progress.StateNone, tr.State())
	require.Zero(t, tr.Subscribers(progress.KindCompleted))
}

// TestRunnerRecordsSpans checks one span per run with the outcome attached.
func TestRunnerRecordsSpans(t *testing.T) {
	t.Parallel()

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	r := New(Config{Name: "traced", Runs: 2, Steps: 4, CancelAt: 0.5}, nil, nil, nil)
	r.tracer = tp.Tracer(tracerName)
	_, err := r.Run(context.Background())
	require.NoError(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 2)
	for i, span := range spans {
		require.Equal(t, "simulate.run", span.Name())
		attrs := map[attribute.Key]attribute.Value{}
		for _, kv := range span.Attributes() {
			attrs[kv.Key] = kv.Value
		}
		require.Equal(t, "traced", attrs["progress.name"].AsString())
		require.Equal(t, int64(i+1), attrs["progress.run"].AsInt64())
		require.Equal(t, "cancelled", attrs["progress.state"].AsString())
		require.Equal(t, codes.Unset, span.Status().Code)
	}
}

// TestRunnerMarksInterruptedSpan records the context error on the span.
func TestRunnerMarksInterruptedSpan(t *testing.T) {
	t.Parallel()

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := New(Config{Runs: 1, Steps: 3}, nil, nil, nil)
	r.tracer = tp.Tracer(tracerName)
	_, err := r.Run(ctx)
	require.True(t, IsInterrupted(err))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, codes.Error, spans[0].Status().Code)
}

// TestRunnerForwardsObserverOptions stamps events with the supplied clock and IDs.
func TestRunnerForwardsObserverOptions(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	runID := uuid.MustParse("01890a5d-ac96-774b-bcce-b302099a8057")
	em := &collect{}
	r := New(Config{Runs: 1, Steps: 2}, nil, em, nil, WithObserverOptions(
		progress.WithClock(func() time.Time { return fixed }),
		progress.WithRunIDs(func() uuid.UUID { return runID }),
	))
	_, err := r.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, em.events)
	for _, evt := range em.events {
		require.Equal(t, fixed, evt.TS)
		require.Equal(t, runID, evt.RunUUID())
	}
}
