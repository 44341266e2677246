package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hanko-field/commerce/internal/repositories"
)

// Event types written to the outbox.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status.changed"
	EventCartChanged        = "cart.changed"
	EventInventoryLowStock  = "inventory.low_stock"
)

// DefaultEventTopic is used when no topic is configured.
const DefaultEventTopic = "commerce.events"

// EventWriter stages domain events in the outbox. Enqueue must be called with
// the context of the transaction that makes the state change.
type EventWriter struct {
	outbox repositories.OutboxRepository
	topic  string
	clock  func() time.Time
	newID  func() string
}

// NewEventWriter builds an EventWriter. An empty topic falls back to DefaultEventTopic.
func NewEventWriter(outbox repositories.OutboxRepository, topic string, clock func() time.Time) (*EventWriter, error) {
	if outbox == nil {
		return nil, errors.New("event writer: outbox repository is required")
	}
	if topic == "" {
		topic = DefaultEventTopic
	}
	if clock == nil {
		clock = time.Now
	}
	return &EventWriter{
		outbox: outbox,
		topic:  topic,
		clock:  func() time.Time { return clock().UTC() },
		newID:  func() string { return uuid.NewString() },
	}, nil
}

// Enqueue serialises payload and stores it under eventType keyed by key.
func (w *EventWriter) Enqueue(ctx context.Context, eventType, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", eventType, err)
	}
	msg := repositories.OutboxMessage{
		ID:        w.newID(),
		Topic:     w.topic,
		Key:       key,
		EventType: eventType,
		Payload:   body,
		CreatedAt: w.clock(),
	}
	if err := w.outbox.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("enqueue %s event: %w", eventType, err)
	}
	return nil
}

type orderEventPayload struct {
	OrderID        string  `json:"orderId"`
	AccountID      string  `json:"accountId"`
	InvoiceCode    string  `json:"invoiceCode"`
	PreviousStatus *string `json:"previousStatus"`
	NewStatus      string  `json:"newStatus"`
	HistoryEntryID string  `json:"historyEntryId"`
	ActorID        string  `json:"actorId,omitempty"`
	Timestamp      string  `json:"timestamp"`
}

type cartChangedPayload struct {
	AccountID string `json:"accountId"`
	CartID    string `json:"cartId"`
	ItemCount int    `json:"itemCount"`
	ChangedAt string `json:"changedAt"`
}

type lowStockPayload struct {
	UnitID          string `json:"unitId"`
	Stock           int    `json:"stock"`
	SafetyThreshold int    `json:"safetyThreshold"`
	DetectedAt      string `json:"detectedAt"`
}
