package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/progression/internal/progress"
)

// LogSink writes one structured log line per event. Evaluated events are logged
// at debug level since a busy tracker produces many of them.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		level := zapcore.InfoLevel
		if evt.Stage == progress.StageEvaluated {
			level = zapcore.DebugLevel
		}
		ce := s.logger.Check(level, "progress event")
		if ce == nil {
			continue
		}
		fields := []zap.Field{
			zap.Stringer("tracker_id", evt.TrackerUUID()),
			zap.Stringer("run_id", evt.RunUUID()),
			zap.String("name", evt.Name),
			zap.String("stage", string(evt.Stage)),
			zap.Stringer("state", evt.State),
			zap.Float64("value", evt.Value),
			zap.Time("ts", evt.TS),
		}
		if evt.Abandoned {
			fields = append(fields, zap.Bool("abandoned", true))
		}
		if evt.Stage == progress.StageSignal {
			fields = append(fields, zap.String("message", evt.Message), zap.String("source", evt.Source))
		}
		ce.Write(fields...)
	}
	return nil
}

// Close implements the Sink interface; it flushes buffered log output.
func (s *LogSink) Close(context.Context) error {
	_ = s.logger.Sync()
	return nil
}
