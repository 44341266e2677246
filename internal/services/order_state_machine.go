package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/hanko-field/commerce/internal/domain"
	"github.com/hanko-field/commerce/internal/repositories"
)

const (
	historyIDPrefix      = "osh_"
	notificationIDPrefix = "ntf_"
	notificationKind     = "order_status"
)

// OrderStateMachineDeps bundles collaborators required to construct the state machine.
type OrderStateMachineDeps struct {
	Orders        repositories.OrderRepository
	Catalog       repositories.CatalogRepository
	Inventory     InventoryService
	Notifications repositories.NotificationRepository
	Events        *EventWriter
	UnitOfWork    repositories.UnitOfWork
	Messages      StatusMessages
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
	Meter         metric.Meter
}

type orderStateMachine struct {
	orders        repositories.OrderRepository
	catalog       repositories.CatalogRepository
	inventory     InventoryService
	notifications repositories.NotificationRepository
	events        *EventWriter
	uow           repositories.UnitOfWork
	messages      StatusMessages
	clock         func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)
	metrics       *serviceMetrics
}

// NewOrderStateMachine constructs the only writer of order status.
func NewOrderStateMachine(deps OrderStateMachineDeps) (OrderStateMachine, error) {
	switch {
	case deps.Orders == nil:
		return nil, errors.New("order state machine: order repository is required")
	case deps.Catalog == nil:
		return nil, errors.New("order state machine: catalog repository is required")
	case deps.Inventory == nil:
		return nil, errors.New("order state machine: inventory service is required")
	case deps.Notifications == nil:
		return nil, errors.New("order state machine: notification repository is required")
	case deps.Events == nil:
		return nil, errors.New("order state machine: event writer is required")
	case deps.UnitOfWork == nil:
		return nil, errors.New("order state machine: unit of work is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	messages := deps.Messages
	if messages.byStatus == nil {
		messages = DefaultStatusMessages()
	}

	return &orderStateMachine{
		orders:        deps.Orders,
		catalog:       deps.Catalog,
		inventory:     deps.Inventory,
		notifications: deps.Notifications,
		events:        deps.Events,
		uow:           deps.UnitOfWork,
		messages:      messages,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:   idGen,
		logger:  logger,
		metrics: newServiceMetrics(deps.Meter),
	}, nil
}

// Initialize records the creation entry of a freshly inserted order. The
// order stays pending; the history row has no previous status.
func (m *orderStateMachine) Initialize(ctx context.Context, order Order, actorID string) (TransitionResult, error) {
	if order.Status != domain.InitialOrderStatus {
		return TransitionResult{}, &InvalidTransitionError{From: order.Status, To: domain.InitialOrderStatus}
	}
	var result TransitionResult
	err := m.uow.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		result, err = m.record(txCtx, order, nil, actorID, "", EventOrderCreated)
		return err
	})
	if err != nil {
		return TransitionResult{}, err
	}
	return result, nil
}

// Transition moves an order to cmd.Target under the order row lock.
func (m *orderStateMachine) Transition(ctx context.Context, cmd TransitionCommand) (result TransitionResult, err error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	target := domain.OrderStatus(strings.TrimSpace(string(cmd.Target)))
	errs := fieldErrors{}
	if orderID == "" {
		errs.add("order_id", "order id is required")
	}
	if !target.Valid() {
		errs.add("status", fmt.Sprintf("unknown status %q", cmd.Target))
	}
	if err := errs.err(); err != nil {
		return TransitionResult{}, err
	}

	ctx, span := startSpan(ctx, "orders.transition",
		attribute.String("order_id", orderID), attribute.String("target", string(target)))
	defer func() { endSpan(span, err) }()

	err = m.uow.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := m.orders.FindByIDForUpdate(txCtx, orderID)
		if err != nil {
			return mapRepositoryError(err, "order")
		}
		from := order.Status
		if !domain.CanTransition(from, target) {
			return &InvalidTransitionError{From: from, To: target}
		}

		now := m.clock()
		if err := m.orders.UpdateStatus(txCtx, order.ID, target, now); err != nil {
			return mapRepositoryError(err, "order")
		}
		order.Status = target
		order.UpdatedAt = now

		if err := m.applyEffects(txCtx, order); err != nil {
			return err
		}

		result, err = m.record(txCtx, order, &from, cmd.ActorID, cmd.Note, EventOrderStatusChanged)
		return err
	})
	if err != nil {
		return TransitionResult{}, err
	}

	m.metrics.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(target))))
	m.logger(ctx, "orders.status_changed", map[string]any{
		"orderID": orderID,
		"from":    statusString(result.Event.PreviousStatus),
		"to":      string(target),
		"actorID": cmd.ActorID,
	})
	return result, nil
}

// applyEffects runs the side effects of entering order.Status. Entering
// delivered is possible once per order, so sale counts move exactly once.
func (m *orderStateMachine) applyEffects(ctx context.Context, order Order) error {
	switch {
	case order.Status == domain.OrderStatusDelivered:
		for _, line := range order.Lines {
			if line.ProductID == "" || line.Quantity <= 0 {
				continue
			}
			if err := m.catalog.IncrementSaleCount(ctx, line.ProductID, line.Quantity); err != nil {
				return mapRepositoryError(err, "product")
			}
		}
	case order.Status.RestocksInventory():
		for _, line := range order.Lines {
			if err := m.inventory.Release(ctx, line.UnitID, line.Quantity); err != nil {
				return err
			}
		}
	}
	return nil
}

// record appends the history row, the notification and the outbox event.
func (m *orderStateMachine) record(ctx context.Context, order Order, previous *OrderStatus, actorID, note, eventType string) (TransitionResult, error) {
	now := m.clock()
	msg := m.messages.Lookup(previous, order.Status)
	description := msg.Description
	if note = strings.TrimSpace(note); note != "" {
		description = strings.TrimSpace(description + " " + note)
	}

	entry := OrderStatusHistory{
		ID:             historyIDPrefix + m.newID(),
		OrderID:        order.ID,
		PreviousStatus: previous,
		NewStatus:      order.Status,
		Title:          msg.Title,
		Description:    description,
		ActorID:        actorID,
		CreatedAt:      now,
	}
	if err := m.orders.AppendHistory(ctx, entry); err != nil {
		return TransitionResult{}, mapRepositoryError(err, "order_history")
	}

	if err := m.notifications.Insert(ctx, domain.Notification{
		ID:        notificationIDPrefix + m.newID(),
		AccountID: order.AccountID,
		Kind:      notificationKind,
		Title:     fmt.Sprintf("Đơn hàng %s", order.InvoiceCode),
		Body:      description,
		Reference: order.ID,
		CreatedAt: now,
	}); err != nil {
		return TransitionResult{}, mapRepositoryError(err, "notification")
	}

	event := OrderStatusEvent{
		OrderID:        order.ID,
		AccountID:      order.AccountID,
		InvoiceCode:    order.InvoiceCode,
		PreviousStatus: previous,
		NewStatus:      order.Status,
		HistoryEntryID: entry.ID,
		ActorID:        actorID,
		Timestamp:      now,
	}
	if err := m.events.Enqueue(ctx, eventType, order.ID, orderEventPayloadFrom(event)); err != nil {
		return TransitionResult{}, err
	}

	order.History = append(order.History, entry)
	return TransitionResult{Order: order, History: entry, Event: event}, nil
}

func orderEventPayloadFrom(event OrderStatusEvent) orderEventPayload {
	payload := orderEventPayload{
		OrderID:        event.OrderID,
		AccountID:      event.AccountID,
		InvoiceCode:    event.InvoiceCode,
		NewStatus:      string(event.NewStatus),
		HistoryEntryID: event.HistoryEntryID,
		ActorID:        event.ActorID,
		Timestamp:      event.Timestamp.Format(time.RFC3339Nano),
	}
	if event.PreviousStatus != nil {
		prev := string(*event.PreviousStatus)
		payload.PreviousStatus = &prev
	}
	return payload
}

func statusString(status *OrderStatus) string {
	if status == nil {
		return ""
	}
	return string(*status)
}
