package messaging

import (
	"context"

	"go.uber.org/zap"
)

// LogPublisher writes events to the structured log. It is the default for local runs.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher constructs a LogPublisher; a nil logger discards events.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger.Named("events")}
}

func (p *LogPublisher) Publish(_ context.Context, msg Message) error {
	p.logger.Info("event published",
		zap.String("eventId", msg.ID),
		zap.String("eventType", msg.EventType),
		zap.String("topic", msg.Topic),
		zap.String("key", msg.Key),
		zap.ByteString("payload", msg.Payload),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
