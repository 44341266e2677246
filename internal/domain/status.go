package domain

import (
	"slices"
	"time"
)

// InitialOrderStatus is the status assigned when an order is placed.
const InitialOrderStatus = OrderStatusPending

// OrderTransitions lists the statuses reachable from each status. Statuses
// without an entry are terminal.
var OrderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:         {OrderStatusPackaging, OrderStatusCanceled},
	OrderStatusPackaging:       {OrderStatusShipped, OrderStatusCanceled},
	OrderStatusShipped:         {OrderStatusDelivered, OrderStatusCanceled},
	OrderStatusDelivered:       {OrderStatusReturnRequested},
	OrderStatusReturnRequested: {OrderStatusReturnApproved, OrderStatusReturnRejected},
	OrderStatusReturnApproved:  {OrderStatusReturned},
	OrderStatusReturned:        {OrderStatusRefundProcessed},
}

var allOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPackaging,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusReturnRequested,
	OrderStatusReturnApproved,
	OrderStatusReturnRejected,
	OrderStatusReturned,
	OrderStatusRefundProcessed,
	OrderStatusCanceled,
}

// OrderStatuses returns every defined order status in lifecycle order.
func OrderStatuses() []OrderStatus {
	return slices.Clone(allOrderStatuses)
}

// Valid reports whether s is a member of the defined status set.
func (s OrderStatus) Valid() bool {
	return slices.Contains(allOrderStatuses, s)
}

// Terminal reports whether no further transitions are allowed from s.
func (s OrderStatus) Terminal() bool {
	return s.Valid() && len(OrderTransitions[s]) == 0
}

// CanTransition reports whether from → to is listed in OrderTransitions.
func CanTransition(from, to OrderStatus) bool {
	return slices.Contains(OrderTransitions[from], to)
}

// RestocksInventory reports whether entering s returns the order's goods to stock.
func (s OrderStatus) RestocksInventory() bool {
	return s == OrderStatusCanceled || s == OrderStatusReturned
}

// OrderStatusEvent is emitted once per recorded status change.
type OrderStatusEvent struct {
	OrderID        string
	AccountID      string
	InvoiceCode    string
	PreviousStatus *OrderStatus
	NewStatus      OrderStatus
	HistoryEntryID string
	ActorID        string
	Timestamp      time.Time
}
