package sinks

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/post-scraper/internal/progress"
)

// LogSink emits one structured log line per run event. Useful during
// development where no durable store is configured.
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
		fields := []zap.Field{
			zap.String("run_id", uuid.UUID(evt.RunID).String()),
			zap.String("stage", string(evt.Stage)),
			zap.String("subject", evt.Subject),
			zap.Duration("dur", evt.Dur),
		}
		if evt.RemoteRunID != "" {
			fields = append(fields,
				zap.String("actor_id", evt.ActorID),
				zap.String("remote_run_id", evt.RemoteRunID),
				zap.String("dataset_id", evt.DatasetID),
			)
		}
		switch evt.Stage {
		case progress.StageRunPoll:
			fields = append(fields, zap.Int("attempt", evt.Attempt), zap.String("status", evt.Status))
		case progress.StageRunDone:
			fields = append(fields, zap.Int("polls", evt.Attempt), zap.Int("records", evt.Records))
		case progress.StageRunError:
			fields = append(fields, zap.Int("polls", evt.Attempt), zap.String("outcome", evt.Outcome))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
