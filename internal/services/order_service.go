package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/hanko-field/commerce/internal/domain"
	"github.com/hanko-field/commerce/internal/repositories"
)

const (
	orderIDPrefix     = "ord_"
	orderLineIDPrefix = "oln_"
	paymentIDPrefix   = "pay_"
)

// LineImageArchiver copies a line's variant image next to the order so later
// catalog edits do not change what the customer bought.
type LineImageArchiver interface {
	ArchiveLineImage(ctx context.Context, invoiceCode string, position int, imageRef string) (string, error)
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders       repositories.OrderRepository
	Payments     repositories.PaymentRepository
	Catalog      repositories.CatalogRepository
	Addresses    repositories.AddressRepository
	UnitOfWork   repositories.UnitOfWork
	Inventory    InventoryService
	Pricing      PricingEngine
	Counters     CounterService
	AddressBook  AddressService
	StateMachine OrderStateMachine
	// Carts and Images are optional post-commit collaborators.
	Carts       CartService
	Images      LineImageArchiver
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
	Meter       metric.Meter
}

type orderService struct {
	orders       repositories.OrderRepository
	payments     repositories.PaymentRepository
	catalog      repositories.CatalogRepository
	addresses    repositories.AddressRepository
	uow          repositories.UnitOfWork
	inventory    InventoryService
	pricing      PricingEngine
	counters     CounterService
	addressBook  AddressService
	stateMachine OrderStateMachine
	carts        CartService
	images       LineImageArchiver
	clock        func() time.Time
	newID        func() string
	logger       func(context.Context, string, map[string]any)
	metrics      *serviceMetrics
}

// NewOrderService constructs the order assembly service.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	switch {
	case deps.Orders == nil:
		return nil, errors.New("order service: order repository is required")
	case deps.Payments == nil:
		return nil, errors.New("order service: payment repository is required")
	case deps.Catalog == nil:
		return nil, errors.New("order service: catalog repository is required")
	case deps.Addresses == nil:
		return nil, errors.New("order service: address repository is required")
	case deps.UnitOfWork == nil:
		return nil, errors.New("order service: unit of work is required")
	case deps.Inventory == nil:
		return nil, errors.New("order service: inventory service is required")
	case deps.Pricing == nil:
		return nil, errors.New("order service: pricing engine is required")
	case deps.Counters == nil:
		return nil, errors.New("order service: counter service is required")
	case deps.AddressBook == nil:
		return nil, errors.New("order service: address service is required")
	case deps.StateMachine == nil:
		return nil, errors.New("order service: state machine is required")
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

	return &orderService{
		orders:       deps.Orders,
		payments:     deps.Payments,
		catalog:      deps.Catalog,
		addresses:    deps.Addresses,
		uow:          deps.UnitOfWork,
		inventory:    deps.Inventory,
		pricing:      deps.Pricing,
		counters:     deps.Counters,
		addressBook:  deps.AddressBook,
		stateMachine: deps.StateMachine,
		carts:        deps.Carts,
		images:       deps.Images,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:   idGen,
		logger:  logger,
		metrics: newServiceMetrics(deps.Meter),
	}, nil
}

// PlaceOrder assembles and commits an order in one transaction: address,
// invoice, priced and reserved lines, payment and the creation history entry.
// Any failure leaves no trace of the order and no stock change.
func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (order Order, err error) {
	if err := validatePlaceOrder(cmd); err != nil {
		s.metrics.orderFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "validation")))
		return Order{}, err
	}
	accountID := strings.TrimSpace(cmd.AccountID)

	ctx, span := startSpan(ctx, "orders.place",
		attribute.String("account_id", accountID), attribute.Int("lines", len(cmd.Lines)))
	defer func() { endSpan(span, err) }()

	err = s.uow.RunInTx(ctx, func(txCtx context.Context) error {
		address, err := s.resolveAddress(txCtx, accountID, cmd.ShippingAddress)
		if err != nil {
			return err
		}

		invoice, err := s.counters.NextInvoiceCode(txCtx)
		if err != nil {
			return err
		}

		now := s.clock()
		shell := Order{
			ID:              orderIDPrefix + s.newID(),
			AccountID:       accountID,
			InvoiceCode:     invoice,
			ShippingAddress: &address,
			ShippingCost:    cmd.ShippingCost,
			Status:          domain.InitialOrderStatus,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.orders.Insert(txCtx, shell); err != nil {
			return mapRepositoryError(err, "invoice")
		}

		lines, err := s.reserveLines(txCtx, shell.ID, cmd.Lines, now)
		if err != nil {
			return err
		}
		if err := s.orders.InsertLines(txCtx, lines); err != nil {
			return mapRepositoryError(err, "order_line")
		}

		total := orderTotal(lines)
		if err := s.orders.UpdateTotal(txCtx, shell.ID, total, now); err != nil {
			return mapRepositoryError(err, "order")
		}
		shell.TotalPrice = total
		shell.Lines = lines

		payment := s.newPayment(shell, cmd, now)
		if err := s.payments.Insert(txCtx, payment); err != nil {
			return mapRepositoryError(err, "payment")
		}
		shell.Payment = &payment

		result, err := s.stateMachine.Initialize(txCtx, shell, cmd.ActorID)
		if err != nil {
			return err
		}
		order = result.Order
		return nil
	})
	if err != nil {
		s.metrics.orderFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", failureReason(err))))
		return Order{}, err
	}

	s.metrics.ordersPlaced.Add(ctx, 1, metric.WithAttributes(attribute.String("payment_method", string(cmd.PaymentMethod))))
	s.logger(ctx, "orders.placed", map[string]any{
		"orderID":     order.ID,
		"invoiceCode": order.InvoiceCode,
		"total":       order.TotalPrice,
		"lines":       len(order.Lines),
	})
	s.afterPlacement(ctx, &order, cmd)
	return order, nil
}

// reserveLines prices and reserves every requested line at one instant. All
// lines are attempted so the caller sees every failure at once.
func (s *orderService) reserveLines(ctx context.Context, orderID string, inputs []OrderLineInput, asOf time.Time) ([]OrderLine, error) {
	lineErrs := make([]LineError, len(inputs))
	lines := make([]OrderLine, 0, len(inputs))
	failed := false

	for i, input := range inputs {
		unitID := strings.TrimSpace(input.UnitID)
		if input.Quantity <= 0 {
			lineErrs[i] = LineError{Code: LineErrorInvalidQuantity, Message: "quantity must be at least 1", UnitID: unitID, Requested: input.Quantity}
			failed = true
			continue
		}
		unit, err := s.catalog.FindUnit(ctx, unitID)
		if err != nil {
			if unitID == "" || isNotFound(err) {
				lineErrs[i] = LineError{Code: LineErrorUnitNotFound, Message: "unit does not exist", UnitID: unitID, Requested: input.Quantity}
				failed = true
				continue
			}
			return nil, mapRepositoryError(err, "unit")
		}
		quote, err := s.pricing.PriceOf(ctx, unit, asOf, PriceOptions{BypassCache: true})
		if err != nil {
			return nil, err
		}
		if input.Quantity > unit.Stock {
			lineErrs[i] = (&InsufficientStockError{UnitID: unit.ID, Requested: input.Quantity, Available: unit.Stock}).lineError()
			failed = true
			continue
		}
		if err := s.inventory.Reserve(ctx, unit.ID, input.Quantity); err != nil {
			var stockErr *InsufficientStockError
			if errors.As(err, &stockErr) {
				lineErrs[i] = stockErr.lineError()
				failed = true
				continue
			}
			return nil, err
		}

		lines = append(lines, OrderLine{
			ID:            orderLineIDPrefix + s.newID(),
			OrderID:       orderID,
			Position:      i + 1,
			UnitID:        unit.ID,
			ProductID:     unit.ProductID,
			ProductName:   unit.ProductName,
			Attributes:    unit.Name,
			Price:         quote.UnitPrice,
			DiscountPrice: quote.EffectivePrice,
			Quantity:      input.Quantity,
			ImageRef:      unit.ImageRef,
		})
	}

	if failed {
		return nil, &ValidationError{Lines: lineErrs}
	}
	return lines, nil
}

func (s *orderService) resolveAddress(ctx context.Context, accountID string, input AddressInput) (Address, error) {
	if id := strings.TrimSpace(input.ID); id != "" {
		address, err := s.addresses.FindByID(ctx, id)
		if err != nil {
			if isNotFound(err) {
				return Address{}, fieldError("shipping_address", fmt.Sprintf("address %s does not exist", id))
			}
			return Address{}, mapRepositoryError(err, "address")
		}
		if address.AccountID != accountID {
			return Address{}, fieldError("shipping_address", fmt.Sprintf("address %s does not exist", id))
		}
		return address, nil
	}

	address, err := s.addressBook.Create(ctx, CreateAddressCommand{AccountID: accountID, Address: input})
	if err != nil {
		var validation *ValidationError
		if errors.As(err, &validation) {
			return Address{}, prefixFields("shipping_address", validation)
		}
		return Address{}, err
	}
	return address, nil
}

func (s *orderService) newPayment(order Order, cmd PlaceOrderCommand, asOf time.Time) Payment {
	payment := Payment{
		ID:            paymentIDPrefix + s.newID(),
		OrderID:       order.ID,
		AccountID:     order.AccountID,
		Method:        cmd.PaymentMethod,
		TransactionID: strings.TrimSpace(cmd.TransactionID),
		Amount:        order.TotalPrice,
		Status:        domain.PaymentStatusPending,
		CreatedAt:     asOf,
		UpdatedAt:     asOf,
	}
	if cmd.PaymentMethod.ClearsSynchronously() {
		paidAt := asOf
		payment.Status = domain.PaymentStatusPaid
		payment.PaidAt = &paidAt
	}
	return payment
}

// afterPlacement runs work that must not undo a committed order. Failures are logged.
func (s *orderService) afterPlacement(ctx context.Context, order *Order, cmd PlaceOrderCommand) {
	if s.carts != nil && strings.TrimSpace(cmd.CartID) != "" {
		if err := s.carts.Clear(ctx, order.AccountID, cmd.CartID); err != nil {
			s.logger(ctx, "orders.cart_clear_failed", map[string]any{
				"orderID": order.ID,
				"cartID":  cmd.CartID,
				"error":   err.Error(),
			})
		}
	}

	if s.images == nil {
		return
	}
	for i := range order.Lines {
		line := &order.Lines[i]
		if line.ImageRef == "" {
			continue
		}
		archived, err := s.images.ArchiveLineImage(ctx, order.InvoiceCode, line.Position, line.ImageRef)
		if err == nil {
			err = s.orders.UpdateLineImage(ctx, order.ID, line.ID, archived)
		}
		if err != nil {
			s.logger(ctx, "orders.image_archive_failed", map[string]any{
				"orderID": order.ID,
				"lineID":  line.ID,
				"error":   err.Error(),
			})
			continue
		}
		line.ImageRef = archived
	}
}

// UpdateLineQuantity edits one line of a pending order, moving the difference
// through the ledger and recomputing the order total and payment amount.
func (s *orderService) UpdateLineQuantity(ctx context.Context, cmd UpdateLineQuantityCommand) (order Order, err error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	lineID := strings.TrimSpace(cmd.LineID)
	errs := fieldErrors{}
	if orderID == "" {
		errs.add("order_id", "order id is required")
	}
	if lineID == "" {
		errs.add("line_id", "line id is required")
	}
	if cmd.Quantity < 1 {
		errs.add("quantity", "quantity must be at least 1")
	}
	if err := errs.err(); err != nil {
		return Order{}, err
	}

	ctx, span := startSpan(ctx, "orders.update_line_quantity",
		attribute.String("order_id", orderID), attribute.String("line_id", lineID))
	defer func() { endSpan(span, err) }()

	err = s.uow.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByIDForUpdate(txCtx, orderID)
		if err != nil {
			return mapRepositoryError(err, "order")
		}
		if current.Status != domain.OrderStatusPending {
			return &ConflictError{Resource: "order", ConflictingID: current.ID, Message: fmt.Sprintf("cannot edit lines while %s", current.Status)}
		}

		idx := -1
		for i, line := range current.Lines {
			if line.ID == lineID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("%w: line %s in order %s", ErrNotFound, lineID, orderID)
		}

		line := current.Lines[idx]
		switch delta := cmd.Quantity - line.Quantity; {
		case delta > 0:
			if err := s.inventory.Reserve(txCtx, line.UnitID, delta); err != nil {
				var stockErr *InsufficientStockError
				if errors.As(err, &stockErr) {
					lineErrs := make([]LineError, len(current.Lines))
					lineErrs[idx] = stockErr.lineError()
					return &ValidationError{Lines: lineErrs}
				}
				return err
			}
		case delta < 0:
			if err := s.inventory.Release(txCtx, line.UnitID, -delta); err != nil {
				return err
			}
		default:
			order = current
			return nil
		}

		if err := s.orders.UpdateLineQuantity(txCtx, orderID, lineID, cmd.Quantity); err != nil {
			return mapRepositoryError(err, "order_line")
		}
		current.Lines[idx].Quantity = cmd.Quantity

		now := s.clock()
		total := orderTotal(current.Lines)
		if err := s.orders.UpdateTotal(txCtx, orderID, total, now); err != nil {
			return mapRepositoryError(err, "order")
		}
		if err := s.payments.UpdateAmount(txCtx, orderID, total, now); err != nil {
			return mapRepositoryError(err, "payment")
		}
		current.TotalPrice = total
		current.UpdatedAt = now
		order = current
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.logger(ctx, "orders.line_quantity_updated", map[string]any{
		"orderID":  orderID,
		"lineID":   lineID,
		"quantity": cmd.Quantity,
		"actorID":  cmd.ActorID,
	})
	return s.hydrate(ctx, order)
}

// GetOrder returns the order with its lines, payment and history.
func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fieldError("order_id", "order id is required")
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError(err, "order")
	}
	return s.hydrate(ctx, order)
}

func (s *orderService) hydrate(ctx context.Context, order Order) (Order, error) {
	payment, err := s.payments.FindByOrder(ctx, order.ID)
	switch {
	case err == nil:
		order.Payment = &payment
	case !isNotFound(err):
		return Order{}, mapRepositoryError(err, "payment")
	}

	history, err := s.orders.ListHistory(ctx, order.ID)
	if err != nil {
		return Order{}, mapRepositoryError(err, "order_history")
	}
	order.History = history
	return order, nil
}

func validatePlaceOrder(cmd PlaceOrderCommand) error {
	errs := fieldErrors{}
	if strings.TrimSpace(cmd.AccountID) == "" {
		errs.add("account_id", "account id is required")
	}
	if len(cmd.Lines) == 0 {
		errs.add("lines", "at least one line is required")
	}
	if !cmd.PaymentMethod.Valid() {
		errs.add("payment_method", fmt.Sprintf("unsupported payment method %q", cmd.PaymentMethod))
	} else if cmd.PaymentMethod != domain.PaymentMethodCOD && strings.TrimSpace(cmd.TransactionID) == "" {
		errs.add("transaction_id", fmt.Sprintf("transaction id is required for %s", cmd.PaymentMethod))
	}
	if cmd.ShippingCost < 0 {
		errs.add("shipping_cost", "shipping cost must not be negative")
	}
	return errs.err()
}

func orderTotal(lines []OrderLine) int64 {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Subtotal())
	}
	return total.Round(0).IntPart()
}

func prefixFields(prefix string, validation *ValidationError) *ValidationError {
	fields := make(map[string]string, len(validation.Fields))
	for key, msg := range validation.Fields {
		fields[prefix+"."+key] = msg
	}
	return &ValidationError{Fields: fields, Lines: validation.Lines}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "internal"
}
