package sinks

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/synapse-search/internal/progress"
)

// Publisher pushes a JSON payload with attributes to a named topic.
type Publisher interface {
	PublishWithAttributes(ctx context.Context, topic string, payload any, attrs map[string]string) (string, error)
}

// PubSubSink forwards indexed and finish events to a topic so downstream
// consumers can react to new articles. Start and visit events are not
// forwarded.
type PubSubSink struct {
	publisher Publisher
	topic     string
	logger    *zap.Logger
}

// NewPubSubSink constructs a sink publishing to topic.
func NewPubSubSink(publisher Publisher, topic string, logger *zap.Logger) (*PubSubSink, error) {
	if publisher == nil {
		return nil, errors.New("pubsub sink requires a publisher")
	}
	if topic == "" {
		return nil, errors.New("pubsub sink requires a topic")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PubSubSink{publisher: publisher, topic: topic, logger: logger}, nil
}

// Consume publishes the relevant events of the batch. The first publish error
// is returned after the whole batch was attempted.
func (s *PubSubSink) Consume(ctx context.Context, batch []progress.Event) error {
	var firstErr error
	for _, evt := range batch {
		if evt.Type != progress.TypeIndexed && evt.Type != progress.TypeFinish {
			continue
		}
		attrs := map[string]string{
			"type":   string(evt.Type),
			"source": evt.Source,
		}
		if evt.TraversalID != "" {
			attrs["traversal_id"] = evt.TraversalID
		}
		id, err := s.publisher.PublishWithAttributes(ctx, s.topic, evt, attrs)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("publish %s event: %w", evt.Type, err)
			}
			continue
		}
		s.logger.Debug("event published", zap.String("message_id", id), zap.String("type", string(evt.Type)))
	}
	return firstErr
}

// Close implements the Sink interface; the publisher is owned by the caller.
func (s *PubSubSink) Close(context.Context) error {
	return nil
}
