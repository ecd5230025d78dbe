// Package memory provides in-process implementations of the storage interfaces
// for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/progression/internal/store"
)

// RunStore is an in-memory store.RunRepository.
type RunStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]store.Run
}

var _ store.RunRepository = (*RunStore)(nil)

// NewRunStore constructs an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[uuid.UUID]store.Run)}
}

// StartRun records a running run; an existing ID is left as is.
func (s *RunStore) StartRun(_ context.Context, run store.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return nil
	}
	run.Status = store.RunRunning
	run.FinishedAt = nil
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = run.StartedAt
	}
	s.runs[run.ID] = run
	return nil
}

// RecordProgress updates the value and signal count of a running run.
func (s *RunStore) RecordProgress(
	_ context.Context,
	runID uuid.UUID,
	value float64,
	deltaSignals int64,
	at time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.ErrNotFound
	}
	if run.Status != store.RunRunning {
		return nil
	}
	run.Value = value
	run.Signals += deltaSignals
	if at.After(run.UpdatedAt) {
		run.UpdatedAt = at
	}
	s.runs[runID] = run
	return nil
}

// FinishRun closes a running run. Finished runs are not modified.
func (s *RunStore) FinishRun(
	_ context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	value float64,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.ErrNotFound
	}
	if run.Status != store.RunRunning {
		return nil
	}
	run.Status = status
	run.Value = value
	run.FinishedAt = pointerTime(finishedAt)
	run.UpdatedAt = finishedAt
	s.runs[runID] = run
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, runID uuid.UUID) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	return copyRun(run), nil
}

// ListRuns returns runs newest first, optionally filtered by status.
func (s *RunStore) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	s.mu.RLock()
	out := make([]store.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if status != nil && run.Status != *status {
			continue
		}
		out = append(out, copyRun(run))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if offset < 0 {
		offset = 0
	}
	if offset >= len(out) {
		return []store.Run{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func copyRun(run store.Run) store.Run {
	if run.FinishedAt != nil {
		run.FinishedAt = pointerTime(*run.FinishedAt)
	}
	return run
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
