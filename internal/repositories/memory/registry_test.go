package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/commerce/internal/domain"
	"github.com/hanko-field/commerce/internal/repositories"
)

func seeded(t *testing.T, stock int) *Registry {
	t.Helper()
	r := NewRegistry()
	r.SeedProduct(domain.Product{ID: "prod_1", Name: "Áo thun"})
	r.SeedUnit(domain.SellableUnit{ID: "unit_1", ProductID: "prod_1", Name: "M", Price: decimal.NewFromInt(50000), Stock: stock})
	return r
}

func TestReserveIsConditional(t *testing.T) {
	r := seeded(t, 3)
	ctx := context.Background()

	remaining, err := r.Inventory().Reserve(ctx, "unit_1", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)

	_, err = r.Inventory().Reserve(ctx, "unit_1", 2)
	var invErr *repositories.InventoryError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, repositories.InventoryErrorInsufficientStock, invErr.Code)
	assert.Equal(t, 2, invErr.Requested)
	assert.Equal(t, 1, invErr.Available)

	_, err = r.Inventory().Reserve(ctx, "unit_1", 0)
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, repositories.InventoryErrorInvalidQuantity, invErr.Code)

	_, err = r.Inventory().Reserve(ctx, "missing", 1)
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, repositories.InventoryErrorUnitNotFound, invErr.Code)
}

func TestConcurrentReserveNeverOversells(t *testing.T) {
	r := seeded(t, 10)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.RunInTx(context.Background(), func(ctx context.Context) error {
				_, err := r.Inventory().Reserve(ctx, "unit_1", 1)
				return err
			})
			if err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	unit, err := r.Catalog().FindUnit(context.Background(), "unit_1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), succeeded.Load())
	assert.Equal(t, 0, unit.Stock)
}

func TestRunInTxRestoresSnapshotOnError(t *testing.T) {
	r := seeded(t, 5)
	boom := errors.New("boom")

	err := r.RunInTx(context.Background(), func(ctx context.Context) error {
		if _, err := r.Inventory().Reserve(ctx, "unit_1", 4); err != nil {
			return err
		}
		if err := r.Orders().Insert(ctx, domain.Order{ID: "ord_1", InvoiceCode: "VN-1"}); err != nil {
			return err
		}
		if err := r.Orders().InsertLines(ctx, []domain.OrderLine{{ID: "l1", OrderID: "ord_1", Quantity: 4}}); err != nil {
			return err
		}
		return r.RunInTx(ctx, func(ctx context.Context) error { return boom })
	})
	require.ErrorIs(t, err, boom)

	unit, err := r.Catalog().FindUnit(context.Background(), "unit_1")
	require.NoError(t, err)
	assert.Equal(t, 5, unit.Stock)
	assert.Equal(t, 0, r.OrderCount())
}

func TestRunInTxHonoursCancelledContext(t *testing.T) {
	r := seeded(t, 5)
	ctx, cancel := context.WithCancel(context.Background())

	err := r.RunInTx(ctx, func(txCtx context.Context) error {
		_, err := r.Inventory().Reserve(txCtx, "unit_1", 1)
		cancel()
		return err
	})
	require.ErrorIs(t, err, context.Canceled)

	unit, _ := r.Catalog().FindUnit(context.Background(), "unit_1")
	assert.Equal(t, 5, unit.Stock)
}

func TestCountersSurviveRollback(t *testing.T) {
	r := NewRegistry()
	maxValue := int64(2)
	require.NoError(t, r.Counters().Configure(context.Background(), "c", repositories.CounterConfig{MaxValue: &maxValue}))

	_ = r.RunInTx(context.Background(), func(ctx context.Context) error {
		_, err := r.Counters().Next(ctx, "c", 1)
		require.NoError(t, err)
		return errors.New("rollback")
	})

	next, err := r.Counters().Next(context.Background(), "c", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), next)

	_, err = r.Counters().Next(context.Background(), "c", 1)
	var counterErr *repositories.CounterError
	require.ErrorAs(t, err, &counterErr)
	assert.Equal(t, repositories.CounterErrorExhausted, counterErr.Code)
}

func TestOutboxClaimsDueMessages(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	for _, id := range []string{"m1", "m2", "m3"} {
		require.NoError(t, r.Outbox().Enqueue(ctx, repositories.OutboxMessage{ID: id, Topic: "t", CreatedAt: now}))
	}

	require.NoError(t, r.Outbox().MarkFailed(ctx, "m1", "broker down", now.Add(time.Minute)))
	require.NoError(t, r.Outbox().MarkSent(ctx, "m2", now))
	require.NoError(t, r.Outbox().MarkDead(ctx, "m3", "rejected", now))

	due, err := r.Outbox().ClaimDue(ctx, now, now.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = r.Outbox().ClaimDue(ctx, now.Add(time.Minute), now.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "m1", due[0].ID)
	assert.Equal(t, 1, due[0].Attempts)
	assert.Equal(t, "broker down", due[0].LastError)
	assert.Equal(t, now.Add(time.Hour), due[0].NextAttemptAt)

	due, err = r.Outbox().ClaimDue(ctx, now.Add(30*time.Minute), now.Add(2*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due, "leased message is hidden until the lease ends")

	require.ErrorContains(t, r.Outbox().MarkDead(ctx, "ghost", "x", now), "not found")
}

func TestPaymentTransactionIDIsUnique(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	for _, id := range []string{"ord_1", "ord_2", "ord_3", "ord_4"} {
		require.NoError(t, r.Orders().Insert(ctx, domain.Order{ID: id, InvoiceCode: "INV-" + id, AccountID: "acc_1"}))
	}

	require.NoError(t, r.Payments().Insert(ctx, domain.Payment{ID: "pay_1", OrderID: "ord_1", Method: domain.PaymentMethodMomo, TransactionID: "MOMO-1"}))
	err := r.Payments().Insert(ctx, domain.Payment{ID: "pay_2", OrderID: "ord_2", Method: domain.PaymentMethodPayPal, TransactionID: "MOMO-1"})
	var repoErr repositories.RepositoryError
	require.ErrorAs(t, err, &repoErr)
	assert.True(t, repoErr.IsConflict())

	require.NoError(t, r.Payments().Insert(ctx, domain.Payment{ID: "pay_3", OrderID: "ord_3", Method: domain.PaymentMethodCOD}))
	require.NoError(t, r.Payments().Insert(ctx, domain.Payment{ID: "pay_4", OrderID: "ord_4", Method: domain.PaymentMethodCOD}))
}
