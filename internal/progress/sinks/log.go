package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/synapse-search/internal/progress"
)

// LogSink emits structured logs for debugging event streams.
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

// Consume logs each event in the batch using structured fields. Visit events
// are logged at debug level since they dominate the stream.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("traversal_id", evt.TraversalID),
			zap.String("type", string(evt.Type)),
			zap.String("source", evt.Source),
		}
		switch evt.Type {
		case progress.TypeVisit:
			s.logger.Debug("traversal event", append(fields, zap.String("url", evt.URL))...)
		case progress.TypeIndexed:
			s.logger.Info("traversal event", append(fields,
				zap.String("url", evt.URL),
				zap.String("title", evt.Title))...)
		case progress.TypeFinish:
			s.logger.Info("traversal event", append(fields,
				zap.Int("count", evt.Count),
				zap.Duration("dur", evt.Dur))...)
		default:
			s.logger.Info("traversal event", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
