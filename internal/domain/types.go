package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage represents a paginated result set with an optional next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Product is the catalog entry that owns one or more sellable units.
type Product struct {
	ID        string
	Name      string
	SaleCount int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SellableUnit is one purchasable configuration (variant) of a product.
// Stock is mutated only through the inventory ledger.
type SellableUnit struct {
	ID          string
	ProductID   string
	ProductName string
	Name        string
	Price       decimal.Decimal
	Stock       int
	IsDefault   bool
	ImageRef    string
	UpdatedAt   time.Time
}

// StockSetting configures low-stock reminders for a sellable unit.
type StockSetting struct {
	UnitID          string
	SafetyThreshold int
	ReminderEnabled bool
	UpdatedAt       time.Time
}

// LowStockItem reports a unit whose stock has dropped to or below its safety threshold.
type LowStockItem struct {
	UnitID          string
	ProductID       string
	Name            string
	Stock           int
	SafetyThreshold int
}

// PromotionWindow is a named half-open interval [StartsAt, EndsAt) during which discounts apply.
type PromotionWindow struct {
	ID        string
	Name      string
	StartsAt  time.Time
	EndsAt    time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Contains reports whether asOf falls inside the window.
func (w PromotionWindow) Contains(asOf time.Time) bool {
	return !asOf.Before(w.StartsAt) && asOf.Before(w.EndsAt)
}

// Overlaps reports whether the two half-open windows share any instant.
func (w PromotionWindow) Overlaps(other PromotionWindow) bool {
	return w.StartsAt.Before(other.EndsAt) && other.StartsAt.Before(w.EndsAt)
}

// PromotionRule binds a discount to one sellable unit for one promotion window.
type PromotionRule struct {
	ID        string
	WindowID  string
	UnitID    string
	ProductID string
	Type      DiscountType
	Value     decimal.Decimal
	Window    PromotionWindow
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Address is a shipping address kept in an account's address book.
type Address struct {
	ID            string
	AccountID     string
	FullName      string
	PhoneNumber   string
	StreetAddress string
	Ward          string
	District      string
	City          string
	PostalCode    string
	IsDefault     bool
	CreatedAt     time.Time
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending is the initial state of every placed order.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPackaging indicates the warehouse is preparing the parcel.
	OrderStatusPackaging OrderStatus = "packaging"
	// OrderStatusShipped indicates the parcel was handed to the carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the customer received the parcel.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusReturnRequested indicates the customer asked to return the goods.
	OrderStatusReturnRequested OrderStatus = "return_requested"
	// OrderStatusReturnApproved indicates the return was accepted.
	OrderStatusReturnApproved OrderStatus = "return_approved"
	// OrderStatusReturnRejected indicates the return was refused.
	OrderStatusReturnRejected OrderStatus = "return_rejected"
	// OrderStatusReturned indicates the returned goods arrived back in stock.
	OrderStatusReturned OrderStatus = "returned"
	// OrderStatusRefundProcessed indicates the refund was paid out.
	OrderStatusRefundProcessed OrderStatus = "refund_processed"
	// OrderStatusCanceled indicates the order was canceled before delivery.
	OrderStatusCanceled OrderStatus = "canceled"
)

// Order is a placed purchase. Lines are frozen at placement time.
type Order struct {
	ID              string
	AccountID       string
	InvoiceCode     string
	ShippingAddress *Address
	TotalPrice      int64
	ShippingCost    int64
	Status          OrderStatus
	Lines           []OrderLine
	Payment         *Payment
	History         []OrderStatusHistory
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderLine is an immutable priced snapshot of one purchased unit.
type OrderLine struct {
	ID            string
	OrderID       string
	Position      int
	UnitID        string
	ProductID     string
	ProductName   string
	Attributes    string
	Price         decimal.Decimal
	DiscountPrice decimal.Decimal
	Quantity      int
	ImageRef      string
}

// Subtotal returns quantity × discount price.
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.DiscountPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// OrderStatusHistory is one append-only audit entry for an order status change.
type OrderStatusHistory struct {
	ID             string
	OrderID        string
	PreviousStatus *OrderStatus
	NewStatus      OrderStatus
	Title          string
	Description    string
	ActorID        string
	CreatedAt      time.Time
}

// PaymentMethod enumerates accepted payment methods.
type PaymentMethod string

const (
	// PaymentMethodCOD is cash on delivery and settles after delivery.
	PaymentMethodCOD PaymentMethod = "cod"
	// PaymentMethodMomo is a wallet payment captured before placement.
	PaymentMethodMomo PaymentMethod = "momo"
	// PaymentMethodPayPal is a gateway payment captured before placement.
	PaymentMethodPayPal PaymentMethod = "paypal"
)

// ClearsSynchronously reports whether the method is settled at placement time.
func (m PaymentMethod) ClearsSynchronously() bool {
	return m == PaymentMethodMomo || m == PaymentMethodPayPal
}

// Valid reports whether the method is one of the accepted methods.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCOD, PaymentMethodMomo, PaymentMethodPayPal:
		return true
	}
	return false
}

// PaymentStatus enumerates payment states.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Payment is one-to-one with an order; Amount always equals the order total.
type Payment struct {
	ID            string
	OrderID       string
	AccountID     string
	Method        PaymentMethod
	TransactionID string
	Amount        int64
	Status        PaymentStatus
	PaidAt        *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Notification is a user-facing message recorded alongside order history.
type Notification struct {
	ID        string
	AccountID string
	Kind      string
	Title     string
	Body      string
	Reference string
	CreatedAt time.Time
}

// Cart holds the lines an account intends to purchase.
type Cart struct {
	ID        string
	AccountID string
	Items     []CartItem
	UpdatedAt time.Time
}

// CartItem is one unit/quantity pair in a cart.
type CartItem struct {
	ID       string
	CartID   string
	UnitID   string
	Quantity int
	AddedAt  time.Time
}
