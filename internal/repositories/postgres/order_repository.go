package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	domain "github.com/hanko-field/commerce/internal/domain"
	ppostgres "github.com/hanko-field/commerce/internal/platform/postgres"
)

const selectOrderSQL = `
SELECT o.id, o.account_id, o.invoice_code, o.total_price, o.shipping_cost, o.status, o.created_at, o.updated_at,
       a.id, a.account_id, a.full_name, a.phone_number, a.street_address, a.ward, a.district, a.city,
       a.postal_code, a.is_default, a.created_at
FROM orders o
LEFT JOIN addresses a ON a.id = o.shipping_address_id
WHERE o.id = $1`

// OrderRepository persists orders, lines and status history.
type OrderRepository struct {
	db *ppostgres.Provider
}

// NewOrderRepository constructs an OrderRepository.
func NewOrderRepository(db *ppostgres.Provider) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	var addressID *string
	if order.ShippingAddress != nil && order.ShippingAddress.ID != "" {
		addressID = &order.ShippingAddress.ID
	}
	_, err := r.db.Conn(ctx).Exec(ctx,
		`INSERT INTO orders (id, account_id, invoice_code, shipping_address_id, total_price, shipping_cost, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		order.ID, order.AccountID, order.InvoiceCode, addressID, order.TotalPrice, order.ShippingCost,
		string(order.Status), order.CreatedAt, order.UpdatedAt)
	return ppostgres.WrapError("orders.insert", err)
}

func (r *OrderRepository) InsertLines(ctx context.Context, lines []domain.OrderLine) error {
	if len(lines) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, line := range lines {
		batch.Queue(
			`INSERT INTO order_lines (id, order_id, position, unit_id, product_id, product_name, attributes, price, discount_price, quantity, image_ref)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			line.ID, line.OrderID, line.Position, line.UnitID, line.ProductID, line.ProductName, line.Attributes,
			line.Price, line.DiscountPrice, line.Quantity, line.ImageRef)
	}
	results := r.db.Conn(ctx).SendBatch(ctx, batch)
	for range lines {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return ppostgres.WrapError("orders.insert_lines", err)
		}
	}
	return ppostgres.WrapError("orders.insert_lines", results.Close())
}

func (r *OrderRepository) UpdateLineQuantity(ctx context.Context, orderID, lineID string, quantity int) error {
	tag, err := r.db.Conn(ctx).Exec(ctx,
		`UPDATE order_lines SET quantity = $3 WHERE order_id = $1 AND id = $2`, orderID, lineID, quantity)
	if err != nil {
		return ppostgres.WrapError("orders.update_line_quantity", err)
	}
	if tag.RowsAffected() == 0 {
		return ppostgres.NotFound("orders.update_line_quantity", fmt.Errorf("line %s not found in order %s", lineID, orderID))
	}
	return nil
}

func (r *OrderRepository) UpdateLineImage(ctx context.Context, orderID, lineID, imageRef string) error {
	tag, err := r.db.Conn(ctx).Exec(ctx,
		`UPDATE order_lines SET image_ref = $3 WHERE order_id = $1 AND id = $2`, orderID, lineID, imageRef)
	if err != nil {
		return ppostgres.WrapError("orders.update_line_image", err)
	}
	if tag.RowsAffected() == 0 {
		return ppostgres.NotFound("orders.update_line_image", fmt.Errorf("line %s not found in order %s", lineID, orderID))
	}
	return nil
}

func (r *OrderRepository) UpdateTotal(ctx context.Context, orderID string, total int64, updatedAt time.Time) error {
	return r.updateOrder(ctx, "orders.update_total",
		`UPDATE orders SET total_price = $2, updated_at = $3 WHERE id = $1`, orderID, total, updatedAt)
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, updatedAt time.Time) error {
	return r.updateOrder(ctx, "orders.update_status",
		`UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`, orderID, string(status), updatedAt)
}

func (r *OrderRepository) updateOrder(ctx context.Context, op, query string, args ...any) error {
	tag, err := r.db.Conn(ctx).Exec(ctx, query, args...)
	if err != nil {
		return ppostgres.WrapError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return ppostgres.NotFound(op, fmt.Errorf("order %v not found", args[0]))
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	return r.find(ctx, "orders.find", selectOrderSQL, orderID)
}

func (r *OrderRepository) FindByIDForUpdate(ctx context.Context, orderID string) (domain.Order, error) {
	return r.find(ctx, "orders.find_for_update", selectOrderSQL+" FOR UPDATE OF o", orderID)
}

func (r *OrderRepository) find(ctx context.Context, op, query, orderID string) (domain.Order, error) {
	conn := r.db.Conn(ctx)
	order, err := scanOrder(conn.QueryRow(ctx, query, orderID))
	if err != nil {
		return domain.Order{}, ppostgres.WrapError(op, err)
	}

	rows, err := conn.Query(ctx,
		`SELECT id, order_id, position, unit_id, product_id, product_name, attributes, price, discount_price, quantity, image_ref
		 FROM order_lines WHERE order_id = $1 ORDER BY position`, orderID)
	if err != nil {
		return domain.Order{}, ppostgres.WrapError(op, err)
	}
	lines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.OrderLine, error) {
		var line domain.OrderLine
		err := row.Scan(&line.ID, &line.OrderID, &line.Position, &line.UnitID, &line.ProductID, &line.ProductName,
			&line.Attributes, &line.Price, &line.DiscountPrice, &line.Quantity, &line.ImageRef)
		return line, err
	})
	if err != nil {
		return domain.Order{}, ppostgres.WrapError(op, err)
	}
	order.Lines = lines
	return order, nil
}

func (r *OrderRepository) InvoiceExists(ctx context.Context, invoiceCode string) (bool, error) {
	var exists bool
	err := r.db.Conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE invoice_code = $1)`, invoiceCode).Scan(&exists)
	if err != nil {
		return false, ppostgres.WrapError("orders.invoice_exists", err)
	}
	return exists, nil
}

func (r *OrderRepository) AppendHistory(ctx context.Context, entry domain.OrderStatusHistory) error {
	var previous *string
	if entry.PreviousStatus != nil {
		s := string(*entry.PreviousStatus)
		previous = &s
	}
	_, err := r.db.Conn(ctx).Exec(ctx,
		`INSERT INTO order_status_history (id, order_id, previous_status, new_status, title, description, actor_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.OrderID, previous, string(entry.NewStatus), entry.Title, entry.Description, entry.ActorID, entry.CreatedAt)
	return ppostgres.WrapError("orders.append_history", err)
}

func (r *OrderRepository) ListHistory(ctx context.Context, orderID string) ([]domain.OrderStatusHistory, error) {
	rows, err := r.db.Conn(ctx).Query(ctx,
		`SELECT id, order_id, previous_status, new_status, title, description, actor_id, created_at
		 FROM order_status_history WHERE order_id = $1 ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, ppostgres.WrapError("orders.list_history", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.OrderStatusHistory, error) {
		var (
			entry     domain.OrderStatusHistory
			previous  *string
			newStatus string
		)
		err := row.Scan(&entry.ID, &entry.OrderID, &previous, &newStatus, &entry.Title, &entry.Description,
			&entry.ActorID, &entry.CreatedAt)
		if previous != nil {
			status := domain.OrderStatus(*previous)
			entry.PreviousStatus = &status
		}
		entry.NewStatus = domain.OrderStatus(newStatus)
		return entry, err
	})
	if err != nil {
		return nil, ppostgres.WrapError("orders.list_history", err)
	}
	return entries, nil
}

// addressColumns receives the nullable side of the orders/addresses left join.
type addressColumns struct {
	ID        *string
	AccountID *string
	FullName  *string
	Phone     *string
	Street    *string
	Ward      *string
	District  *string
	City      *string
	Postal    *string
	IsDefault *bool
	CreatedAt *time.Time
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		order  domain.Order
		status string
		addr   addressColumns
	)
	err := row.Scan(&order.ID, &order.AccountID, &order.InvoiceCode, &order.TotalPrice, &order.ShippingCost,
		&status, &order.CreatedAt, &order.UpdatedAt,
		&addr.ID, &addr.AccountID, &addr.FullName, &addr.Phone, &addr.Street, &addr.Ward, &addr.District,
		&addr.City, &addr.Postal, &addr.IsDefault, &addr.CreatedAt)
	if err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	if addr.ID != nil {
		order.ShippingAddress = &domain.Address{
			ID:            *addr.ID,
			AccountID:     deref(addr.AccountID),
			FullName:      deref(addr.FullName),
			PhoneNumber:   deref(addr.Phone),
			StreetAddress: deref(addr.Street),
			Ward:          deref(addr.Ward),
			District:      deref(addr.District),
			City:          deref(addr.City),
			PostalCode:    deref(addr.Postal),
			IsDefault:     addr.IsDefault != nil && *addr.IsDefault,
		}
		if addr.CreatedAt != nil {
			order.ShippingAddress.CreatedAt = *addr.CreatedAt
		}
	}
	return order, nil
}

func deref[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}
