package sinks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/progression/internal/progress"
)

// PrometheusSink exports tracker lifecycle metrics via Prometheus. It owns the
// collectors for runs started/ended/active, run duration, resets and signals.
type PrometheusSink struct {
	runsStarted prometheus.Counter
	runsEnded   *prometheus.CounterVec
	runsActive  prometheus.Gauge
	runDuration *prometheus.HistogramVec
	evaluations prometheus.Counter
	resets      *prometheus.CounterVec
	signals     prometheus.Counter

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "progress_runs_started_total",
			Help: "Total tracker runs that have started.",
		}),
		runsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "progress_runs_ended_total",
			Help: "Total tracker runs that ended, partitioned by outcome.",
		}, []string{"outcome"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "progress_runs_active",
			Help: "Current number of runs in progress.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "progress_run_duration_seconds",
			Help:    "Wall time from start to end of a run.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"outcome"}),
		evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "progress_evaluations_total",
			Help: "Total evaluated notifications.",
		}),
		resets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "progress_resets_total",
			Help: "Total resets, partitioned by whether a running run was abandoned.",
		}, []string{"abandoned"}),
		signals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "progress_signals_total",
			Help: "Total messages sent on the signal channel.",
		}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsEnded,
		s.runsActive,
		s.runDuration,
		s.evaluations,
		s.resets,
		s.signals,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageStarted:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID, evt.TS) {
			s.runsActive.Inc()
		}
	case progress.StageEvaluated:
		s.evaluations.Inc()
	case progress.StageCompleted:
		s.end(evt, "completed")
	case progress.StageCancelled:
		s.end(evt, "cancelled")
	case progress.StageReset:
		if evt.Abandoned {
			s.resets.WithLabelValues("true").Inc()
			s.end(evt, "abandoned")
			return
		}
		s.resets.WithLabelValues("false").Inc()
	case progress.StageSignal:
		s.signals.Inc()
	}
}

func (s *PrometheusSink) end(evt progress.Event, outcome string) {
	s.runsEnded.WithLabelValues(outcome).Inc()
	startedAt, ok := s.tracker.finish(evt.RunID)
	if !ok {
		return
	}
	s.runsActive.Dec()
	if dur := evt.TS.Sub(startedAt); dur > 0 {
		s.runDuration.WithLabelValues(outcome).Observe(dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]time.Time
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]time.Time)}
}

func (t *runTracker) start(id [16]byte, at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = at
	return true
}

func (t *runTracker) finish(id [16]byte) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.running[id]
	if !ok {
		return time.Time{}, false
	}
	delete(t.running, id)
	return at, true
}
