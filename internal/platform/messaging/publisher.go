// Package messaging delivers outbox events to the configured broker.
package messaging

import (
	"context"
	"time"
)

// Message is one event ready for delivery.
type Message struct {
	ID        string
	Topic     string
	Key       string
	EventType string
	Payload   []byte
	CreatedAt time.Time
}

// Publisher delivers messages to a broker. Publish returns only after the broker acknowledged the message.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Attribute names shared by every transport.
const (
	AttrEventID   = "eventId"
	AttrEventType = "eventType"
	AttrKey       = "key"
)

func attributes(msg Message) map[string]string {
	attrs := make(map[string]string, 3)
	if msg.ID != "" {
		attrs[AttrEventID] = msg.ID
	}
	if msg.EventType != "" {
		attrs[AttrEventType] = msg.EventType
	}
	if msg.Key != "" {
		attrs[AttrKey] = msg.Key
	}
	return attrs
}
