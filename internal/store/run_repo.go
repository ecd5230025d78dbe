// Package store declares interfaces for recording tracker runs.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("run record not found")

// RunStatus mirrors the progress_runs status column.
type RunStatus string

// Run statuses persisted in progress_runs.status.
const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunCancelled RunStatus = "cancelled"
	RunAbandoned RunStatus = "abandoned"
)

// ParseRunStatus accepts the persisted names plus a few aliases.
func ParseRunStatus(input string) (RunStatus, error) {
	switch input {
	case "running", "in_progress":
		return RunRunning, nil
	case "completed", "complete", "success":
		return RunCompleted, nil
	case "cancelled", "canceled":
		return RunCancelled, nil
	case "abandoned", "reset":
		return RunAbandoned, nil
	default:
		return "", errors.New("invalid status")
	}
}

// Run models one start-to-end pass of a tracker. The ledger is history only;
// trackers never read it back.
type Run struct {
	// ID is the run identifier assigned when the tracker started.
	ID uuid.UUID
	// TrackerID identifies the tracker instance, shared by all of its runs.
	TrackerID uuid.UUID
	// Name is the tracker label at the time of the run.
	Name string
	// StartedAt captures when the run started.
	StartedAt time.Time
	// UpdatedAt is the timestamp of the latest recorded value.
	UpdatedAt time.Time
	// FinishedAt is nil until the run ends.
	FinishedAt *time.Time
	// Status is running/completed/cancelled/abandoned.
	Status RunStatus
	// Value is the latest recorded normalized value.
	Value float64
	// Signals counts signal-channel messages seen during the run.
	Signals int64
}

// RunRepository persists tracker runs.
type RunRepository interface {
	// StartRun inserts a running row; repeating it for the same ID is a no-op.
	StartRun(ctx context.Context, run Run) error
	// RecordProgress stores the latest value and adds signal deltas for a running run.
	RecordProgress(ctx context.Context, runID uuid.UUID, value float64, deltaSignals int64, at time.Time) error
	// FinishRun closes a running run with the final status and value. Runs that
	// already finished are left untouched.
	FinishRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, status RunStatus, value float64) error

	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
	// ListRuns returns runs filtered by optional status plus limit/offset, newest first.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
}
