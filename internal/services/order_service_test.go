package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/commerce/internal/domain"
)

func placeCommand(lines ...OrderLineInput) PlaceOrderCommand {
	return PlaceOrderCommand{
		AccountID:       "acc-1",
		ShippingAddress: testAddress(),
		Lines:           lines,
		PaymentMethod:   domain.PaymentMethodCOD,
		ActorID:         "acc-1",
	}
}

func placeOrder(t *testing.T, env *testEnv, lines ...OrderLineInput) Order {
	t.Helper()
	order, err := env.orders.PlaceOrder(context.Background(), placeCommand(lines...))
	require.NoError(t, err)
	return order
}

func TestPlaceOrderRejectsShortStockWithoutSideEffects(t *testing.T) {
	env := newTestEnv(t)
	env.seedScenario()

	_, err := env.orders.PlaceOrder(context.Background(), placeCommand(
		OrderLineInput{UnitID: "unit-a", Quantity: 2},
		OrderLineInput{UnitID: "unit-b", Quantity: 2},
	))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Lines, 2)
	assert.False(t, verr.Lines[0].Failed())
	assert.Equal(t, LineErrorInsufficientStock, verr.Lines[1].Code)
	assert.Equal(t, "unit-b", verr.Lines[1].UnitID)
	assert.Equal(t, 2, verr.Lines[1].Requested)
	assert.Equal(t, 1, verr.Lines[1].Available)
	assert.ErrorIs(t, err, ErrValidation)

	assert.Equal(t, 5, env.stock(t, "unit-a"))
	assert.Equal(t, 1, env.stock(t, "unit-b"))
	assert.Zero(t, env.registry.OrderCount())
	assert.Empty(t, env.registry.OutboxMessages())
	assert.Empty(t, env.registry.RecordedNotifications())
	addresses, err := env.addresses.List(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Empty(t, addresses)
}

func TestPlaceOrderCommitsLinesTotalsAndHistory(t *testing.T) {
	env := newTestEnv(t)
	env.seedScenario()
	ctx := context.Background()

	_, err := env.orders.PlaceOrder(ctx, placeCommand(
		OrderLineInput{UnitID: "unit-a", Quantity: 2},
		OrderLineInput{UnitID: "unit-b", Quantity: 2},
	))
	require.Error(t, err)

	order := placeOrder(t, env,
		OrderLineInput{UnitID: "unit-a", Quantity: 2},
		OrderLineInput{UnitID: "unit-b", Quantity: 1},
	)

	assert.Equal(t, int64(130000), order.TotalPrice)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, "VN-202503010002", order.InvoiceCode, "the rejected attempt consumed 0001")
	require.Len(t, order.Lines, 2)
	assert.Equal(t, 1, order.Lines[0].Position)
	assert.Equal(t, "Áo thun", order.Lines[0].ProductName)
	assert.Equal(t, "Đỏ / M", order.Lines[0].Attributes)
	assert.True(t, order.Lines[0].Price.Equal(decimal.NewFromInt(50000)))
	assert.True(t, order.Lines[1].DiscountPrice.Equal(decimal.NewFromInt(30000)))
	require.NotNil(t, order.ShippingAddress)
	assert.Equal(t, "0901234567", order.ShippingAddress.PhoneNumber)
	assert.True(t, order.ShippingAddress.IsDefault)

	assert.Equal(t, 3, env.stock(t, "unit-a"))
	assert.Equal(t, 0, env.stock(t, "unit-b"))
	assert.Equal(t, 1, env.registry.OrderCount())

	require.NotNil(t, order.Payment)
	assert.Equal(t, domain.PaymentStatusPending, order.Payment.Status)
	assert.Equal(t, int64(130000), order.Payment.Amount)
	assert.Nil(t, order.Payment.PaidAt)

	require.Len(t, order.History, 1)
	assert.Nil(t, order.History[0].PreviousStatus)
	assert.Equal(t, domain.OrderStatusPending, order.History[0].NewStatus)
	assert.Equal(t, "Đơn hàng đã được đặt.", order.History[0].Title)

	assert.Equal(t, []string{EventOrderCreated}, env.outboxTypes())
	notifications := env.registry.RecordedNotifications()
	require.Len(t, notifications, 1)
	assert.Equal(t, "Đơn hàng "+order.InvoiceCode, notifications[0].Title)
	assert.Equal(t, order.ID, notifications[0].Reference)

	stored, err := env.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.TotalPrice, stored.TotalPrice)
	assert.Len(t, stored.History, 1)
	require.NotNil(t, stored.Payment)
	assert.Equal(t, order.Payment.ID, stored.Payment.ID)
}

func TestPlaceOrderAppliesActivePromotion(t *testing.T) {
	env := newTestEnv(t)
	env.seedScenario()
	createActiveRule(t, env, "unit-a", domain.DiscountTypePercent, 20)

	order := placeOrder(t, env,
		OrderLineInput{UnitID: "unit-a", Quantity: 2},
		OrderLineInput{UnitID: "unit-b", Quantity: 1},
	)
	assert.True(t, order.Lines[0].Price.Equal(decimal.NewFromInt(50000)))
	assert.True(t, order.Lines[0].DiscountPrice.Equal(decimal.NewFromInt(40000)))
	assert.Equal(t, int64(110000), order.TotalPrice)
}

func TestPlaceOrderReportsEveryFailedLine(t *testing.T) {
	env := newTestEnv(t)
	env.seedScenario()

	_, err := env.orders.PlaceOrder(context.Background(), placeCommand(
		OrderLineInput{UnitID: "unit-a", Quantity: 0},
		OrderLineInput{UnitID: "ghost", Quantity: 1},
		OrderLineInput{UnitID: "unit-b", Quantity: 1},
	))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Lines, 3)
	assert.Equal(t, LineErrorInvalidQuantity, verr.Lines[0].Code)
	assert.Equal(t, LineErrorUnitNotFound, verr.Lines[1].Code)
	assert.False(t, verr.Lines[2].Failed())
	assert.Equal(t, 1, env.stock(t, "unit-b"), "reservation of the valid line is rolled back")
}

func TestPlaceOrderValidatesCommand(t *testing.T) {
	env := newTestEnv(t)
	env.seedScenario()

	cmd := placeCommand()
	cmd.AccountID = " "
	cmd.PaymentMethod = "bitcoin"
	cmd.ShippingCost = -1
	_, err := env.orders.PlaceOrder(context.Background(), cmd)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	for _, field := range []string{"account_id", "lines", "payment_method", "shipping_cost"} {
		assert.Contains(t, verr.Fields, field)
	}

	cmd = placeCommand(OrderLineInput{UnitID: "unit-a", Quantity: 1})
	cmd.PaymentMethod = domain.PaymentMethodMomo
	_, err = env.orders.PlaceOrder(context.Background(), cmd)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "transaction_id")

	cmd = placeCommand(OrderLineInput{UnitID: "unit-a", Quantity: 1})
	cmd.ShippingAddress.PhoneNumber = "12"
	_, err = env.orders.PlaceOrder(context.Background(), cmd)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "shipping_address.phone_number")
	assert.Equal(t, 5, env.stock(t, "unit-a"))
}

func TestPlaceOrderWalletPaymentIsPaid(t *testing.T) {
	env := newTestEnv(t)
	env.seedScenario()

	cmd := placeCommand(OrderLineInput{UnitID: "unit-b", Quantity: 1})
	cmd.PaymentMethod = domain.PaymentMethodMomo
	cmd.TransactionID = "MOMO-123"
	order, err := env.orders.PlaceOrder(context.Background(), cmd)
	require.NoError(t, err)

	require.NotNil(t, order.Payment)
	assert.Equal(t, domain.PaymentStatusPaid, order.Payment.Status)
	assert.Equal(t, "MOMO-123", order.Payment.TransactionID)
	require.NotNil(t, order.Payment.PaidAt)
	assert.True(t, order.Payment.PaidAt.Equal(env.now))
}

func TestPlaceOrderRejectsReusedTransactionID(t *testing.T) {
	env := newTestEnv(t)
	env.seedScenario()
	ctx := context.Background()

	first := placeCommand(OrderLineInput{UnitID: "unit-a", Quantity: 1})
	first.PaymentMethod = domain.PaymentMethodMomo
	first.TransactionID = "MOMO-1"
	_, err := env.orders.PlaceOrder(ctx, first)
	require.NoError(t, err)

	second := placeCommand(OrderLineInput{UnitID: "unit-a", Quantity: 2})
	second.PaymentMethod = domain.PaymentMethodMomo
	second.TransactionID = "MOMO-1"
	_, err = env.orders.PlaceOrder(ctx, second)
	var conflictErr *ConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, "payment", conflictErr.Resource)
	assert.ErrorIs(t, err, ErrConflict)

	assert.Equal(t, 1, env.registry.OrderCount())
	assert.Equal(t, 4, env.stock(t, "unit-a"), "rejected order releases its reservation")

	cod := placeCommand(OrderLineInput{UnitID: "unit-a", Quantity: 1})
	_, err = env.orders.PlaceOrder(ctx, cod)
	require.NoError(t, err)
	_, err = env.orders.PlaceOrder(ctx, cod)
	require.NoError(t, err, "cash orders carry no transaction id")
}

func TestPlaceOrderUsesSavedAddress(t *testing.T) {
	env := newTestEnv(t)
	env.seedScenario()
	ctx := context.Background()

	own, err := env.addresses.Create(ctx, CreateAddressCommand{AccountID: "acc-1", Address: testAddress()})
	require.NoError(t, err)
	foreign, err := env.addresses.Create(ctx, CreateAddressCommand{AccountID: "acc-2", Address: testAddress()})
	require.NoError(t, err)

	cmd := placeCommand(OrderLineInput{UnitID: "unit-a", Quantity: 1})
	cmd.ShippingAddress = AddressInput{ID: foreign.ID}
	_, err = env.orders.PlaceOrder(ctx, cmd)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "shipping_address")

	cmd.ShippingAddress = AddressInput{ID: own.ID}
	order, err := env.orders.PlaceOrder(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, own.ID, order.ShippingAddress.ID)

	saved, err := env.addresses.List(ctx, "acc-1")
	require.NoError(t, err)
	assert.Len(t, saved, 1)
}

func TestPlaceOrderClearsCartAndArchivesImages(t *testing.T) {
	env := newTestEnv(t)
	env.seedScenario()
	ctx := context.Background()

	cart, err := env.carts.AddItem(ctx, AddCartItemCommand{AccountID: "acc-1", UnitID: "unit-a", Quantity: 1})
	require.NoError(t, err)

	cmd := placeCommand(OrderLineInput{UnitID: "unit-a", Quantity: 1}, OrderLineInput{UnitID: "unit-b", Quantity: 1})
	cmd.CartID = cart.ID
	order, err := env.orders.PlaceOrder(ctx, cmd)
	require.NoError(t, err)

	after, err := env.carts.Get(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, cart.ID, after.ID)
	assert.Empty(t, after.Items)

	assert.Equal(t, []string{"variants/unit-a.jpg"}, env.images.calls)
	archived := "gs://orders/orders/" + order.InvoiceCode + "/1-image.jpg"
	assert.Equal(t, archived, order.Lines[0].ImageRef)
	assert.Empty(t, order.Lines[1].ImageRef)

	stored, err := env.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, archived, stored.Lines[0].ImageRef)
}

func TestPlaceOrderSurvivesArchiveFailure(t *testing.T) {
	env := newTestEnv(t)
	env.seedScenario()
	env.images.err = errors.New("bucket unavailable")

	order := placeOrder(t, env, OrderLineInput{UnitID: "unit-a", Quantity: 1})
	assert.Equal(t, "variants/unit-a.jpg", order.Lines[0].ImageRef)
	assert.True(t, env.logs.has("orders.image_archive_failed"))
}

func TestPlaceOrderConcurrentBuyersOfLastUnit(t *testing.T) {
	env := newTestEnv(t)
	env.seedScenario()

	const buyers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		short   int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.orders.PlaceOrder(context.Background(), placeCommand(OrderLineInput{UnitID: "unit-b", Quantity: 1}))
			mu.Lock()
			defer mu.Unlock()
			var verr *ValidationError
			switch {
			case err == nil:
				success++
			case errors.As(err, &verr) && verr.HasLineErrors():
				short++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, buyers-1, short)
	assert.Equal(t, 0, env.stock(t, "unit-b"))
	assert.Equal(t, 1, env.registry.OrderCount())
}

func TestPlaceOrderCanceledContextLeavesNoOrder(t *testing.T) {
	env := newTestEnv(t)
	env.seedScenario()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.orders.PlaceOrder(ctx, placeCommand(OrderLineInput{UnitID: "unit-a", Quantity: 1}))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, env.registry.OrderCount())
	assert.Equal(t, 5, env.stock(t, "unit-a"))
}

func TestUpdateLineQuantityMovesStockAndTotals(t *testing.T) {
	env := newTestEnv(t)
	env.seedScenario()
	ctx := context.Background()
	order := placeOrder(t, env, OrderLineInput{UnitID: "unit-a", Quantity: 2})
	lineID := order.Lines[0].ID

	updated, err := env.orders.UpdateLineQuantity(ctx, UpdateLineQuantityCommand{OrderID: order.ID, LineID: lineID, Quantity: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, updated.Lines[0].Quantity)
	assert.Equal(t, int64(200000), updated.TotalPrice)
	require.NotNil(t, updated.Payment)
	assert.Equal(t, int64(200000), updated.Payment.Amount)
	assert.Equal(t, 1, env.stock(t, "unit-a"))

	_, err = env.orders.UpdateLineQuantity(ctx, UpdateLineQuantityCommand{OrderID: order.ID, LineID: lineID, Quantity: 7})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Lines, 1)
	assert.Equal(t, LineErrorInsufficientStock, verr.Lines[0].Code)
	assert.Equal(t, 1, env.stock(t, "unit-a"))

	updated, err = env.orders.UpdateLineQuantity(ctx, UpdateLineQuantityCommand{OrderID: order.ID, LineID: lineID, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(50000), updated.TotalPrice)
	assert.Equal(t, 4, env.stock(t, "unit-a"))

	same, err := env.orders.UpdateLineQuantity(ctx, UpdateLineQuantityCommand{OrderID: order.ID, LineID: lineID, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(50000), same.TotalPrice)
	assert.Equal(t, 4, env.stock(t, "unit-a"))
}

func TestUpdateLineQuantityRequiresPendingOrder(t *testing.T) {
	env := newTestEnv(t)
	env.seedScenario()
	ctx := context.Background()
	order := placeOrder(t, env, OrderLineInput{UnitID: "unit-a", Quantity: 2})

	_, err := env.machine.Transition(ctx, TransitionCommand{OrderID: order.ID, Target: domain.OrderStatusPackaging})
	require.NoError(t, err)

	_, err = env.orders.UpdateLineQuantity(ctx, UpdateLineQuantityCommand{OrderID: order.ID, LineID: order.Lines[0].ID, Quantity: 3})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = env.orders.UpdateLineQuantity(ctx, UpdateLineQuantityCommand{OrderID: order.ID, LineID: "oln_missing", Quantity: 3})
	assert.Error(t, err)

	_, err = env.orders.UpdateLineQuantity(ctx, UpdateLineQuantityCommand{OrderID: order.ID, LineID: order.Lines[0].ID, Quantity: 0})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGetOrderUnknownIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.orders.GetOrder(context.Background(), "ord_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
