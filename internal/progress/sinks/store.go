package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/progression/internal/progress"
	"github.com/JakeFAU/progression/internal/store"
)

// StoreSink records runs in a store.RunRepository. Evaluated and signal events
// are collapsed per run within a batch so a chatty tracker costs one write per
// flush instead of one per notification.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume applies the batch in order and returns the first repository error.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	pending := make(map[uuid.UUID]*runDelta)

	for _, evt := range batch {
		if evt.RunID == [16]byte{} {
			continue
		}
		runID := evt.RunUUID()
		switch evt.Stage {
		case progress.StageStarted:
			if err := s.repo.StartRun(ctx, store.Run{
				ID:        runID,
				TrackerID: evt.TrackerUUID(),
				Name:      evt.Name,
				StartedAt: evt.TS,
				Value:     evt.Value,
			}); err != nil {
				return fmt.Errorf("start run: %w", err)
			}
		case progress.StageEvaluated, progress.StageSignal:
			pending[runID] = pending[runID].apply(evt)
		case progress.StageCompleted, progress.StageCancelled, progress.StageReset:
			status, ok := finalStatus(evt)
			if !ok {
				continue
			}
			if err := s.flushRun(ctx, runID, pending[runID]); err != nil {
				return err
			}
			delete(pending, runID)
			if err := s.repo.FinishRun(ctx, runID, evt.TS, status, evt.Value); err != nil {
				return fmt.Errorf("finish run: %w", err)
			}
		}
	}

	for runID, delta := range pending {
		if err := s.flushRun(ctx, runID, delta); err != nil {
			return err
		}
	}
	return nil
}

func (s *StoreSink) flushRun(ctx context.Context, runID uuid.UUID, delta *runDelta) error {
	if delta == nil {
		return nil
	}
	if err := s.repo.RecordProgress(ctx, runID, delta.value, delta.signals, delta.at); err != nil {
		return fmt.Errorf("record progress: %w", err)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

// finalStatus maps an ending event to the ledger status. A reset only ends a
// run when it abandoned one still in progress.
func finalStatus(evt progress.Event) (store.RunStatus, bool) {
	switch evt.Stage {
	case progress.StageCompleted:
		return store.RunCompleted, true
	case progress.StageCancelled:
		return store.RunCancelled, true
	case progress.StageReset:
		return store.RunAbandoned, evt.Abandoned
	default:
		return "", false
	}
}

type runDelta struct {
	value    float64
	hasValue bool
	signals  int64
	at       time.Time
}

func (d *runDelta) apply(evt progress.Event) *runDelta {
	if d == nil {
		d = &runDelta{}
	}
	if evt.Stage == progress.StageSignal {
		d.signals++
		if !d.hasValue {
			d.value = evt.Value
		}
	} else {
		d.value = evt.Value
		d.hasValue = true
	}
	if evt.TS.After(d.at) {
		d.at = evt.TS
	}
	return d
}
