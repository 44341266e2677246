package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/commerce/internal/domain"
	"github.com/hanko-field/commerce/internal/platform/cache"
	"github.com/hanko-field/commerce/internal/repositories"
	"github.com/hanko-field/commerce/internal/repositories/memory"
)

var testNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	registry   *memory.Registry
	now        time.Time
	events     *EventWriter
	inventory  InventoryService
	pricing    PricingEngine
	promotions PromotionService
	counters   CounterService
	addresses  AddressService
	carts      CartService
	machine    OrderStateMachine
	orders     OrderService
	images     *stubArchiver
	logs       *logRecorder
}

type envOption func(*envConfig)

type envConfig struct {
	messages StatusMessages
	cache    cache.Cache
}

func withStatusMessages(m StatusMessages) envOption {
	return func(c *envConfig) { c.messages = m }
}

func withRuleCache(c cache.Cache) envOption {
	return func(cfg *envConfig) { cfg.cache = c }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	cfg := envConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	reg := memory.NewRegistry()
	clock := fixedClock(testNow)
	logs := &logRecorder{}

	events, err := NewEventWriter(reg.Outbox(), "", clock)
	require.NoError(t, err)

	inventory, err := NewInventoryService(InventoryServiceDeps{
		Inventory: reg.Inventory(),
		Events:    events,
		Clock:     clock,
		Logger:    logs.log,
	})
	require.NoError(t, err)

	pricing, err := NewPricingEngine(PricingEngineDeps{
		Catalog:    reg.Catalog(),
		Promotions: reg.Promotions(),
		Cache:      cfg.cache,
		Logger:     logs.log,
	})
	require.NoError(t, err)

	promotions, err := NewPromotionService(PromotionServiceDeps{
		Promotions: reg.Promotions(),
		Catalog:    reg.Catalog(),
		UnitOfWork: reg,
		Pricing:    pricing,
		Clock:      clock,
		Logger:     logs.log,
	})
	require.NoError(t, err)

	counters, err := NewCounterService(CounterServiceDeps{
		Repository: reg.Counters(),
		Invoices:   reg.Orders(),
		Clock:      clock,
		Logger:     logs.log,
	})
	require.NoError(t, err)

	addresses, err := NewAddressService(AddressServiceDeps{
		Addresses:  reg.Addresses(),
		UnitOfWork: reg,
		Clock:      clock,
	})
	require.NoError(t, err)

	carts, err := NewCartService(CartServiceDeps{
		Carts:      reg.Carts(),
		Catalog:    reg.Catalog(),
		Events:     events,
		UnitOfWork: reg,
		Clock:      clock,
	})
	require.NoError(t, err)

	machine, err := NewOrderStateMachine(OrderStateMachineDeps{
		Orders:        reg.Orders(),
		Catalog:       reg.Catalog(),
		Inventory:     inventory,
		Notifications: reg.Notifications(),
		Events:        events,
		UnitOfWork:    reg,
		Messages:      cfg.messages,
		Clock:         clock,
		Logger:        logs.log,
	})
	require.NoError(t, err)

	images := &stubArchiver{}
	orders, err := NewOrderService(OrderServiceDeps{
		Orders:       reg.Orders(),
		Payments:     reg.Payments(),
		Catalog:      reg.Catalog(),
		Addresses:    reg.Addresses(),
		UnitOfWork:   reg,
		Inventory:    inventory,
		Pricing:      pricing,
		Counters:     counters,
		AddressBook:  addresses,
		StateMachine: machine,
		Carts:        carts,
		Images:       images,
		Clock:        clock,
		Logger:       logs.log,
	})
	require.NoError(t, err)

	return &testEnv{
		registry:   reg,
		now:        testNow,
		events:     events,
		inventory:  inventory,
		pricing:    pricing,
		promotions: promotions,
		counters:   counters,
		addresses:  addresses,
		carts:      carts,
		machine:    machine,
		orders:     orders,
		images:     images,
		logs:       logs,
	}
}

// seedScenario stores unit A (stock 5, price 50000) and unit B (stock 1, price 30000).
func (e *testEnv) seedScenario() {
	e.registry.SeedProduct(domain.Product{ID: "prod-shirt", Name: "Áo thun"})
	e.registry.SeedProduct(domain.Product{ID: "prod-cap", Name: "Mũ lưỡi trai"})
	e.registry.SeedUnit(domain.SellableUnit{
		ID: "unit-a", ProductID: "prod-shirt", Name: "Đỏ / M",
		Price: decimal.NewFromInt(50000), Stock: 5, IsDefault: true, ImageRef: "variants/unit-a.jpg",
	})
	e.registry.SeedUnit(domain.SellableUnit{
		ID: "unit-b", ProductID: "prod-cap", Name: "Đen",
		Price: decimal.NewFromInt(30000), Stock: 1, IsDefault: true,
	})
}

func (e *testEnv) stock(t *testing.T, unitID string) int {
	t.Helper()
	unit, err := e.registry.Catalog().FindUnit(context.Background(), unitID)
	require.NoError(t, err)
	return unit.Stock
}

func (e *testEnv) outboxTypes() []string {
	var types []string
	for _, msg := range e.registry.OutboxMessages() {
		types = append(types, msg.EventType)
	}
	return types
}

func testAddress() AddressInput {
	return AddressInput{
		FullName:      "Nguyễn Văn A",
		PhoneNumber:   "0901 234 567",
		StreetAddress: "12 Lý Thường Kiệt",
		Ward:          "Phường 7",
		District:      "Quận 10",
		City:          "Hồ Chí Minh",
	}
}

type stubArchiver struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (s *stubArchiver) ArchiveLineImage(_ context.Context, invoiceCode string, position int, imageRef string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, imageRef)
	if s.err != nil {
		return "", s.err
	}
	return fmt.Sprintf("gs://orders/orders/%s/%d-%s", invoiceCode, position, "image.jpg"), nil
}

type logEntry struct {
	event  string
	fields map[string]any
}

type logRecorder struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *logRecorder) log(_ context.Context, event string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{event: event, fields: fields})
}

func (l *logRecorder) has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.event == event {
			return true
		}
	}
	return false
}

var _ repositories.Registry = (*memory.Registry)(nil)
