package repositories

import (
	"context"
	"time"

	domain "github.com/hanko-field/commerce/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Catalog() CatalogRepository
	Inventory() InventoryRepository
	Promotions() PromotionRepository
	Orders() OrderRepository
	Payments() PaymentRepository
	Addresses() AddressRepository
	Carts() CartRepository
	Counters() CounterRepository
	Notifications() NotificationRepository
	Outbox() OutboxRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in one transaction. Repositories
// called with the context passed to fn join that transaction.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CatalogRepository reads sellable units and maintains product sales counters.
// It never writes stock.
type CatalogRepository interface {
	FindUnit(ctx context.Context, unitID string) (domain.SellableUnit, error)
	// LockUnit reads the unit holding a row lock until the surrounding transaction ends.
	LockUnit(ctx context.Context, unitID string) (domain.SellableUnit, error)
	IncrementSaleCount(ctx context.Context, productID string, quantity int) error
}

// InventoryRepository is the only writer of sellable unit stock.
type InventoryRepository interface {
	// Reserve decrements stock by quantity only when stock >= quantity, in one
	// indivisible statement. It returns the remaining stock, or an *InventoryError
	// with code InventoryErrorInsufficientStock when the guard rejects the write.
	Reserve(ctx context.Context, unitID string, quantity int) (int, error)
	// Release increments stock by quantity unconditionally and returns the new stock.
	Release(ctx context.Context, unitID string, quantity int) (int, error)
	FindStockSetting(ctx context.Context, unitID string) (domain.StockSetting, error)
	ConfigureSafetyStock(ctx context.Context, setting domain.StockSetting) (domain.StockSetting, error)
	ListLowStock(ctx context.Context, limit int) ([]domain.LowStockItem, error)
}

// PromotionRepository persists promotion windows and the rules bound to them.
type PromotionRepository interface {
	InsertWindow(ctx context.Context, window domain.PromotionWindow) error
	UpdateWindow(ctx context.Context, window domain.PromotionWindow) error
	FindWindow(ctx context.Context, windowID string) (domain.PromotionWindow, error)
	InsertRule(ctx context.Context, rule domain.PromotionRule) error
	UpdateRule(ctx context.Context, rule domain.PromotionRule) error
	DeleteRule(ctx context.Context, ruleID string) error
	FindRule(ctx context.Context, ruleID string) (domain.PromotionRule, error)
	// ListRulesByUnit returns the unit's rules with their windows populated, ordered by window start.
	ListRulesByUnit(ctx context.Context, unitID string) ([]domain.PromotionRule, error)
	ListRulesByWindow(ctx context.Context, windowID string) ([]domain.PromotionRule, error)
}

// OrderRepository persists orders, their lines and their status history.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	InsertLines(ctx context.Context, lines []domain.OrderLine) error
	UpdateLineQuantity(ctx context.Context, orderID, lineID string, quantity int) error
	UpdateLineImage(ctx context.Context, orderID, lineID, imageRef string) error
	UpdateTotal(ctx context.Context, orderID string, total int64, updatedAt time.Time) error
	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, updatedAt time.Time) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// FindByIDForUpdate loads the order and its lines holding a row lock on the order.
	FindByIDForUpdate(ctx context.Context, orderID string) (domain.Order, error)
	InvoiceExists(ctx context.Context, invoiceCode string) (bool, error)
	AppendHistory(ctx context.Context, entry domain.OrderStatusHistory) error
	ListHistory(ctx context.Context, orderID string) ([]domain.OrderStatusHistory, error)
}

// PaymentRepository persists the payment record owned by an order.
type PaymentRepository interface {
	Insert(ctx context.Context, payment domain.Payment) error
	UpdateAmount(ctx context.Context, orderID string, amount int64, updatedAt time.Time) error
	FindByOrder(ctx context.Context, orderID string) (domain.Payment, error)
}

// AddressRepository persists shipping addresses per account.
type AddressRepository interface {
	Insert(ctx context.Context, address domain.Address) error
	FindByID(ctx context.Context, addressID string) (domain.Address, error)
	ListByAccount(ctx context.Context, accountID string) ([]domain.Address, error)
	CountByAccount(ctx context.Context, accountID string) (int, error)
	ClearDefault(ctx context.Context, accountID string) error
}

// CartRepository persists one cart per account.
type CartRepository interface {
	// GetOrCreate returns the account's cart, inserting the supplied header when none exists.
	GetOrCreate(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	FindByID(ctx context.Context, cartID string) (domain.Cart, error)
	SaveItem(ctx context.Context, item domain.CartItem) error
	DeleteItem(ctx context.Context, cartID, itemID string) error
	Clear(ctx context.Context, cartID string) (int, error)
}

// CounterConfig customises counter increments.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

// CounterRepository provides monotonic counters keyed by identifier.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// NotificationRepository records user-facing notifications; delivery happens elsewhere.
type NotificationRepository interface {
	Insert(ctx context.Context, notification domain.Notification) error
}

// OutboxMessage is a domain event waiting to be relayed to the message broker.
type OutboxMessage struct {
	ID        string
	Topic     string
	Key       string
	EventType string
	Payload   []byte
	Attempts  int
	LastError string
	CreatedAt time.Time
	// NextAttemptAt is when the message is next due. Zero means immediately.
	NextAttemptAt time.Time
	SentAt        *time.Time
	// DeadAt is set once the relay stops retrying the message.
	DeadAt *time.Time
}

// OutboxRepository stores domain events in the same transaction as the state change they describe.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) error
	// ClaimDue returns up to limit unsent, live messages due at asOf in insertion
	// order and pushes their NextAttemptAt to leaseUntil so concurrent claims skip them.
	ClaimDue(ctx context.Context, asOf, leaseUntil time.Time, limit int) ([]OutboxMessage, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	// MarkFailed records a failed attempt and schedules the next one at retryAt.
	MarkFailed(ctx context.Context, id string, reason string, retryAt time.Time) error
	// MarkDead records a final failed attempt. The message is never claimed again.
	MarkDead(ctx context.Context, id string, reason string, deadAt time.Time) error
}
