package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/commerce/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Order              = domain.Order
	OrderLine          = domain.OrderLine
	OrderStatus        = domain.OrderStatus
	OrderStatusHistory = domain.OrderStatusHistory
	OrderStatusEvent   = domain.OrderStatusEvent
	Payment            = domain.Payment
	PaymentMethod      = domain.PaymentMethod
	Address            = domain.Address
	Cart               = domain.Cart
	CartItem           = domain.CartItem
	SellableUnit       = domain.SellableUnit
	PriceQuote         = domain.PriceQuote
	PromotionWindow    = domain.PromotionWindow
	PromotionRule      = domain.PromotionRule
	StockSetting       = domain.StockSetting
	LowStockItem       = domain.LowStockItem
)

// InventoryService is the stock ledger. Reserve and Release are the only
// operations that change a unit's stock.
type InventoryService interface {
	Reserve(ctx context.Context, unitID string, quantity int) error
	Release(ctx context.Context, unitID string, quantity int) error
	ConfigureSafetyStock(ctx context.Context, cmd ConfigureSafetyStockCommand) (StockSetting, error)
	ListLowStock(ctx context.Context, limit int) ([]LowStockItem, error)
}

// PricingEngine resolves the effective price of a unit at an instant.
type PricingEngine interface {
	PriceOf(ctx context.Context, unit SellableUnit, asOf time.Time, opts PriceOptions) (PriceQuote, error)
	QuoteUnit(ctx context.Context, unitID string, asOf time.Time) (PriceQuote, error)
	InvalidateUnits(ctx context.Context, unitIDs ...string) error
}

// PromotionService owns writes to promotion windows and rules.
type PromotionService interface {
	CreateWindow(ctx context.Context, cmd UpsertWindowCommand) (PromotionWindow, error)
	UpdateWindow(ctx context.Context, cmd UpsertWindowCommand) (PromotionWindow, error)
	CreateRule(ctx context.Context, cmd UpsertRuleCommand) (PromotionRule, error)
	UpdateRule(ctx context.Context, cmd UpsertRuleCommand) (PromotionRule, error)
	DeleteRule(ctx context.Context, ruleID string) error
	ListRules(ctx context.Context, unitID string) ([]PromotionRule, error)
}

// CounterService issues sequence numbers and invoice codes.
type CounterService interface {
	Next(ctx context.Context, scope, name string, opts CounterGenerationOptions) (CounterValue, error)
	NextInvoiceCode(ctx context.Context) (string, error)
}

// OrderStateMachine is the single writer of order status.
type OrderStateMachine interface {
	Initialize(ctx context.Context, order Order, actorID string) (TransitionResult, error)
	Transition(ctx context.Context, cmd TransitionCommand) (TransitionResult, error)
}

// OrderService places and reads orders.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
	UpdateLineQuantity(ctx context.Context, cmd UpdateLineQuantityCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
}

// CartService manages the per-account cart.
type CartService interface {
	Get(ctx context.Context, accountID string) (Cart, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error)
	UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, accountID, itemID string) (Cart, error)
	Clear(ctx context.Context, accountID, cartID string) error
}

// AddressService manages an account's shipping address book.
type AddressService interface {
	Create(ctx context.Context, cmd CreateAddressCommand) (Address, error)
	List(ctx context.Context, accountID string) ([]Address, error)
}

// ConfigureSafetyStockCommand sets the low stock reminder threshold of a unit.
type ConfigureSafetyStockCommand struct {
	UnitID          string
	SafetyThreshold int
	ReminderEnabled bool
}

// PriceOptions tunes how PriceOf reads promotion rules.
type PriceOptions struct {
	// BypassCache reads rules through the current transaction.
	BypassCache bool
}

// UpsertWindowCommand creates or updates a promotion window. ID is required for updates.
type UpsertWindowCommand struct {
	ID       string
	Name     string
	StartsAt time.Time
	EndsAt   time.Time
}

// UpsertRuleCommand creates or updates a promotion rule. ID is required for updates.
type UpsertRuleCommand struct {
	ID       string
	WindowID string
	UnitID   string
	Type     domain.DiscountType
	Value    decimal.Decimal
}

// CounterGenerationOptions controls how counter values are incremented and formatted.
type CounterGenerationOptions struct {
	Step      int64
	MaxValue  *int64
	Prefix    string
	PadLength int
	Formatter func(now time.Time, value int64) string
}

// CounterValue is one issued sequence value.
type CounterValue struct {
	Value     int64
	Formatted string
}

// TransitionCommand requests an order status change.
type TransitionCommand struct {
	OrderID string
	Target  OrderStatus
	ActorID string
	Note    string
}

// TransitionResult is the outcome of a recorded status change.
type TransitionResult struct {
	Order   Order
	History OrderStatusHistory
	Event   OrderStatusEvent
}

// AddressInput either references a saved address by ID or carries fields for a new one.
type AddressInput struct {
	ID            string
	FullName      string
	PhoneNumber   string
	StreetAddress string
	Ward          string
	District      string
	City          string
	PostalCode    string
	IsDefault     bool
}

// OrderLineInput is one requested unit and quantity.
type OrderLineInput struct {
	UnitID   string
	Quantity int
}

// PlaceOrderCommand carries everything needed to assemble an order.
type PlaceOrderCommand struct {
	AccountID       string
	ShippingAddress AddressInput
	Lines           []OrderLineInput
	PaymentMethod   PaymentMethod
	TransactionID   string
	CartID          string
	ShippingCost    int64
	ActorID         string
}

// UpdateLineQuantityCommand changes the quantity of one line of a pending order.
type UpdateLineQuantityCommand struct {
	OrderID  string
	LineID   string
	Quantity int
	ActorID  string
}

// AddCartItemCommand adds quantity of a unit to the account's cart.
type AddCartItemCommand struct {
	AccountID string
	UnitID    string
	Quantity  int
}

// UpdateCartItemCommand sets the quantity of a cart item.
type UpdateCartItemCommand struct {
	AccountID string
	ItemID    string
	Quantity  int
}

// CreateAddressCommand adds an address to an account's address book.
type CreateAddressCommand struct {
	AccountID string
	Address   AddressInput
}
