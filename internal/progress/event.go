package progress

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Stage denotes which notification an Event records.
type Stage string

// Supported event stages.
const (
	StageStarted   Stage = "STARTED"
	StageEvaluated Stage = "EVALUATED"
	StageCompleted Stage = "COMPLETED"
	StageCancelled Stage = "CANCELLED"
	StageReset     Stage = "RESET"
	StageSignal    Stage = "SIGNAL"
)

// StageForKind maps a lifecycle notification onto its event stage.
func StageForKind(k Kind) Stage {
	switch k {
	case KindStarted:
		return StageStarted
	case KindEvaluated:
		return StageEvaluated
	case KindCompleted:
		return StageCompleted
	case KindCancelled:
		return StageCancelled
	case KindReset:
		return StageReset
	default:
		return ""
	}
}

// Event is a timestamped copy of one tracker notification.
type Event struct {
	// TrackerID identifies the emitting tracker using the 16-byte UUID form.
	TrackerID [16]byte
	// RunID identifies the run (start to end) the notification belongs to.
	RunID [16]byte
	// Name is the tracker label, if any.
	Name string
	// TS is the UTC timestamp recorded by the observer.
	TS time.Time
	// Stage denotes which notification fired.
	Stage Stage
	// State is the tracker state right after the notification.
	State State
	// Value is the tracker value right after the notification.
	Value float64
	// Abandoned marks a reset that interrupted a run still in progress.
	Abandoned bool
	// Message carries the signal text for StageSignal.
	Message string
	// Source is a printable rendering of the signal source handle.
	Source string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TrackerID == [16]byte{} {
		return errors.New("tracker id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageStarted, StageEvaluated, StageCompleted, StageCancelled, StageReset:
		if e.RunID == [16]byte{} {
			return fmt.Errorf("%s requires run id", e.Stage)
		}
	case StageSignal:
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if math.IsNaN(e.Value) || e.Value < 0 || e.Value > 1 {
		return fmt.Errorf("value %v out of range", e.Value)
	}
	return nil
}

// TrackerUUID converts the binary tracker ID to uuid.UUID.
func (e Event) TrackerUUID() uuid.UUID {
	return uuid.UUID(e.TrackerID)
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
