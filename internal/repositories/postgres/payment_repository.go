package postgres

import (
	"context"
	"fmt"
	"time"

	domain "github.com/hanko-field/commerce/internal/domain"
	ppostgres "github.com/hanko-field/commerce/internal/platform/postgres"
)

// PaymentRepository persists the payment row owned by each order.
type PaymentRepository struct {
	db *ppostgres.Provider
}

// NewPaymentRepository constructs a PaymentRepository.
func NewPaymentRepository(db *ppostgres.Provider) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	_, err := r.db.Conn(ctx).Exec(ctx,
		`INSERT INTO payments (id, order_id, account_id, method, transaction_id, amount, status, paid_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		payment.ID, payment.OrderID, payment.AccountID, string(payment.Method), payment.TransactionID,
		payment.Amount, string(payment.Status), payment.PaidAt, payment.CreatedAt, payment.UpdatedAt)
	return ppostgres.WrapError("payments.insert", err)
}

func (r *PaymentRepository) UpdateAmount(ctx context.Context, orderID string, amount int64, updatedAt time.Time) error {
	tag, err := r.db.Conn(ctx).Exec(ctx,
		`UPDATE payments SET amount = $2, updated_at = $3 WHERE order_id = $1`, orderID, amount, updatedAt)
	if err != nil {
		return ppostgres.WrapError("payments.update_amount", err)
	}
	if tag.RowsAffected() == 0 {
		return ppostgres.NotFound("payments.update_amount", fmt.Errorf("payment for order %s not found", orderID))
	}
	return nil
}

func (r *PaymentRepository) FindByOrder(ctx context.Context, orderID string) (domain.Payment, error) {
	var (
		payment        domain.Payment
		method, status string
	)
	err := r.db.Conn(ctx).QueryRow(ctx,
		`SELECT id, order_id, account_id, method, transaction_id, amount, status, paid_at, created_at, updated_at
		 FROM payments WHERE order_id = $1`, orderID,
	).Scan(&payment.ID, &payment.OrderID, &payment.AccountID, &method, &payment.TransactionID, &payment.Amount,
		&status, &payment.PaidAt, &payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		return domain.Payment{}, ppostgres.WrapError("payments.find_by_order", err)
	}
	payment.Method = domain.PaymentMethod(method)
	payment.Status = domain.PaymentStatus(status)
	return payment, nil
}
