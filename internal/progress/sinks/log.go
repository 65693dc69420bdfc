package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/roshanis/shopagent/internal/progress"
)

// LogSink writes one structured log line per lifecycle event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event; polls at debug level, milestones at info.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("job_id", evt.JobID),
			zap.String("stage", string(evt.Stage)),
			zap.Time("ts", evt.TS),
		}
		if evt.Status != "" {
			fields = append(fields, zap.String("status", string(evt.Status)))
		}
		if evt.Stage == progress.StageStatusPolled {
			fields = append(fields, zap.Float64("overall", evt.Overall))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		switch evt.Stage {
		case progress.StageStatusPolled:
			s.logger.Debug("progress event", fields...)
		case progress.StageJobError:
			s.logger.Warn("progress event", fields...)
		default:
			s.logger.Info("progress event", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
