// Package memory provides an in-process implementation of repositories.Registry.
// Transactions are serialised and roll back by restoring a snapshot.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	domain "github.com/hanko-field/commerce/internal/domain"
	"github.com/hanko-field/commerce/internal/repositories"
)

type state struct {
	products      map[string]domain.Product
	units         map[string]domain.SellableUnit
	settings      map[string]domain.StockSetting
	windows       map[string]domain.PromotionWindow
	rules         map[string]domain.PromotionRule
	addresses     map[string]domain.Address
	orders        map[string]domain.Order
	history       map[string][]domain.OrderStatusHistory
	payments      map[string]domain.Payment
	notifications []domain.Notification
	carts         map[string]domain.Cart
	outbox        []repositories.OutboxMessage
}

func newState() *state {
	return &state{
		products:  make(map[string]domain.Product),
		units:     make(map[string]domain.SellableUnit),
		settings:  make(map[string]domain.StockSetting),
		windows:   make(map[string]domain.PromotionWindow),
		rules:     make(map[string]domain.PromotionRule),
		addresses: make(map[string]domain.Address),
		orders:    make(map[string]domain.Order),
		history:   make(map[string][]domain.OrderStatusHistory),
		payments:  make(map[string]domain.Payment),
		carts:     make(map[string]domain.Cart),
	}
}

func (s *state) clone() *state {
	out := &state{
		products:      maps.Clone(s.products),
		units:         maps.Clone(s.units),
		settings:      maps.Clone(s.settings),
		windows:       maps.Clone(s.windows),
		rules:         maps.Clone(s.rules),
		addresses:     maps.Clone(s.addresses),
		orders:        make(map[string]domain.Order, len(s.orders)),
		history:       make(map[string][]domain.OrderStatusHistory, len(s.history)),
		payments:      maps.Clone(s.payments),
		notifications: slices.Clone(s.notifications),
		carts:         make(map[string]domain.Cart, len(s.carts)),
		outbox:        slices.Clone(s.outbox),
	}
	for id, order := range s.orders {
		order.Lines = slices.Clone(order.Lines)
		out.orders[id] = order
	}
	for id, entries := range s.history {
		out.history[id] = slices.Clone(entries)
	}
	for id, cart := range s.carts {
		cart.Items = slices.Clone(cart.Items)
		out.carts[id] = cart
	}
	return out
}

type txKey struct{}

// Registry is an in-memory repositories.Registry.
type Registry struct {
	txMu  sync.Mutex
	mu    sync.Mutex
	state *state

	counters *CounterRepository
	health   repositories.HealthRepository
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	r := &Registry{
		state:    newState(),
		counters: NewCounterRepository(),
	}
	r.health, _ = repositories.NewProbeHealthRepository([]repositories.DependencyProbe{
		{Name: "memory", Check: func(context.Context) error { return nil }},
	}, nil)
	return r
}

// RunInTx runs fn holding the transaction lock. When fn fails every write made
// through the context passed to fn is discarded.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.inTx(ctx) {
		return fn(ctx)
	}
	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.Lock()
	snapshot := r.state.clone()
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	err := fn(context.WithValue(ctx, txKey{}, r))
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		r.mu.Lock()
		r.state = snapshot
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *Registry) inTx(ctx context.Context) bool {
	owner, ok := ctx.Value(txKey{}).(*Registry)
	return ok && owner == r
}

// with runs fn against the live state. Calls outside a transaction behave like
// single-statement transactions.
func (r *Registry) with(ctx context.Context, fn func(s *state) error) error {
	if !r.inTx(ctx) {
		r.txMu.Lock()
		defer r.txMu.Unlock()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r.state)
}

func (r *Registry) Close(context.Context) error { return nil }

func (r *Registry) Catalog() repositories.CatalogRepository      { return catalogRepository{r} }
func (r *Registry) Inventory() repositories.InventoryRepository  { return inventoryRepository{r} }
func (r *Registry) Promotions() repositories.PromotionRepository { return promotionRepository{r} }
func (r *Registry) Orders() repositories.OrderRepository         { return orderRepository{r} }
func (r *Registry) Payments() repositories.PaymentRepository     { return paymentRepository{r} }
func (r *Registry) Addresses() repositories.AddressRepository    { return addressRepository{r} }
func (r *Registry) Carts() repositories.CartRepository           { return cartRepository{r} }
func (r *Registry) Counters() repositories.CounterRepository     { return r.counters }
func (r *Registry) Notifications() repositories.NotificationRepository {
	return notificationRepository{r}
}
func (r *Registry) Outbox() repositories.OutboxRepository { return outboxRepository{r} }
func (r *Registry) Health() repositories.HealthRepository { return r.health }

// SeedProduct stores a catalog product.
func (r *Registry) SeedProduct(product domain.Product) {
	_ = r.with(context.Background(), func(s *state) error {
		s.products[product.ID] = product
		return nil
	})
}

// SeedUnit stores a sellable unit. ProductName is filled from the product when empty.
func (r *Registry) SeedUnit(unit domain.SellableUnit) {
	_ = r.with(context.Background(), func(s *state) error {
		if unit.ProductName == "" {
			unit.ProductName = s.products[unit.ProductID].Name
		}
		s.units[unit.ID] = unit
		return nil
	})
}

// Product returns a stored product.
func (r *Registry) Product(id string) (domain.Product, bool) {
	var (
		product domain.Product
		ok      bool
	)
	_ = r.with(context.Background(), func(s *state) error {
		product, ok = s.products[id]
		return nil
	})
	return product, ok
}

// OrderCount returns the number of stored orders.
func (r *Registry) OrderCount() int {
	var n int
	_ = r.with(context.Background(), func(s *state) error {
		n = len(s.orders)
		return nil
	})
	return n
}

// RecordedNotifications returns a copy of all recorded notifications.
func (r *Registry) RecordedNotifications() []domain.Notification {
	var out []domain.Notification
	_ = r.with(context.Background(), func(s *state) error {
		out = slices.Clone(s.notifications)
		return nil
	})
	return out
}

// OutboxMessages returns a copy of every outbox message, sent or not.
func (r *Registry) OutboxMessages() []repositories.OutboxMessage {
	var out []repositories.OutboxMessage
	_ = r.with(context.Background(), func(s *state) error {
		out = slices.Clone(s.outbox)
		return nil
	})
	return out
}

var _ repositories.Registry = (*Registry)(nil)
