package postgres

import (
	"context"
	"errors"

	ppostgres "github.com/hanko-field/commerce/internal/platform/postgres"
	"github.com/hanko-field/commerce/internal/repositories"
)

// Registry wires every Postgres repository around one provider.
type Registry struct {
	provider *ppostgres.Provider
	health   repositories.HealthRepository
	counters repositories.CounterRepository

	catalog       *CatalogRepository
	inventory     *InventoryRepository
	promotions    *PromotionRepository
	orders        *OrderRepository
	payments      *PaymentRepository
	addresses     *AddressRepository
	carts         *CartRepository
	notifications *NotificationRepository
	outbox        *OutboxRepository
}

// RegistryOption customises the registry.
type RegistryOption func(*Registry)

// WithCounterRepository replaces the Postgres counter repository, e.g. with the Firestore one.
func WithCounterRepository(counters repositories.CounterRepository) RegistryOption {
	return func(r *Registry) {
		if counters != nil {
			r.counters = counters
		}
	}
}

// WithHealthRepository sets the repository used for readiness checks.
func WithHealthRepository(health repositories.HealthRepository) RegistryOption {
	return func(r *Registry) {
		r.health = health
	}
}

// NewRegistry constructs the repository registry.
func NewRegistry(provider *ppostgres.Provider, opts ...RegistryOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("postgres registry: provider is required")
	}
	r := &Registry{
		provider:      provider,
		counters:      NewCounterRepository(provider),
		catalog:       NewCatalogRepository(provider),
		inventory:     NewInventoryRepository(provider),
		promotions:    NewPromotionRepository(provider),
		orders:        NewOrderRepository(provider),
		payments:      NewPaymentRepository(provider),
		addresses:     NewAddressRepository(provider),
		carts:         NewCartRepository(provider),
		notifications: NewNotificationRepository(provider),
		outbox:        NewOutboxRepository(provider),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.health == nil {
		health, err := repositories.NewProbeHealthRepository([]repositories.DependencyProbe{
			{Name: "postgres", Check: provider.Ping},
		}, nil)
		if err != nil {
			return nil, err
		}
		r.health = health
	}
	return r, nil
}

func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}

func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.provider.RunInTx(ctx, fn)
}

func (r *Registry) Catalog() repositories.CatalogRepository            { return r.catalog }
func (r *Registry) Inventory() repositories.InventoryRepository        { return r.inventory }
func (r *Registry) Promotions() repositories.PromotionRepository       { return r.promotions }
func (r *Registry) Orders() repositories.OrderRepository               { return r.orders }
func (r *Registry) Payments() repositories.PaymentRepository           { return r.payments }
func (r *Registry) Addresses() repositories.AddressRepository          { return r.addresses }
func (r *Registry) Carts() repositories.CartRepository                 { return r.carts }
func (r *Registry) Counters() repositories.CounterRepository           { return r.counters }
func (r *Registry) Notifications() repositories.NotificationRepository { return r.notifications }
func (r *Registry) Outbox() repositories.OutboxRepository              { return r.outbox }
func (r *Registry) Health() repositories.HealthRepository              { return r.health }

var _ repositories.Registry = (*Registry)(nil)
