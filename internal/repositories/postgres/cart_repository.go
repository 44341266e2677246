package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	domain "github.com/hanko-field/commerce/internal/domain"
	ppostgres "github.com/hanko-field/commerce/internal/platform/postgres"
)

// CartRepository persists one cart per account.
type CartRepository struct {
	db *ppostgres.Provider
}

// NewCartRepository constructs a CartRepository.
func NewCartRepository(db *ppostgres.Provider) *CartRepository {
	return &CartRepository{db: db}
}

func (r *CartRepository) GetOrCreate(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	conn := r.db.Conn(ctx)
	var header domain.Cart
	err := conn.QueryRow(ctx,
		`INSERT INTO carts (id, account_id, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (account_id) DO UPDATE SET account_id = EXCLUDED.account_id
		 RETURNING id, account_id, updated_at`,
		cart.ID, cart.AccountID, cart.UpdatedAt).Scan(&header.ID, &header.AccountID, &header.UpdatedAt)
	if err != nil {
		return domain.Cart{}, ppostgres.WrapError("carts.get_or_create", err)
	}
	items, err := r.items(ctx, header.ID)
	if err != nil {
		return domain.Cart{}, ppostgres.WrapError("carts.get_or_create", err)
	}
	header.Items = items
	return header, nil
}

func (r *CartRepository) FindByID(ctx context.Context, cartID string) (domain.Cart, error) {
	var cart domain.Cart
	err := r.db.Conn(ctx).QueryRow(ctx, `SELECT id, account_id, updated_at FROM carts WHERE id = $1`, cartID).
		Scan(&cart.ID, &cart.AccountID, &cart.UpdatedAt)
	if err != nil {
		return domain.Cart{}, ppostgres.WrapError("carts.find", err)
	}
	items, err := r.items(ctx, cart.ID)
	if err != nil {
		return domain.Cart{}, ppostgres.WrapError("carts.find", err)
	}
	cart.Items = items
	return cart, nil
}

func (r *CartRepository) SaveItem(ctx context.Context, item domain.CartItem) error {
	conn := r.db.Conn(ctx)
	_, err := conn.Exec(ctx,
		`INSERT INTO cart_items (id, cart_id, unit_id, quantity, added_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (cart_id, unit_id) DO UPDATE SET quantity = EXCLUDED.quantity`,
		item.ID, item.CartID, item.UnitID, item.Quantity, item.AddedAt)
	if err != nil {
		return ppostgres.WrapError("carts.save_item", err)
	}
	_, err = conn.Exec(ctx, `UPDATE carts SET updated_at = $2 WHERE id = $1`, item.CartID, item.AddedAt)
	return ppostgres.WrapError("carts.save_item", err)
}

func (r *CartRepository) DeleteItem(ctx context.Context, cartID, itemID string) error {
	tag, err := r.db.Conn(ctx).Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1 AND id = $2`, cartID, itemID)
	if err != nil {
		return ppostgres.WrapError("carts.delete_item", err)
	}
	if tag.RowsAffected() == 0 {
		return ppostgres.NotFound("carts.delete_item", fmt.Errorf("item %s not found in cart %s", itemID, cartID))
	}
	return nil
}

func (r *CartRepository) Clear(ctx context.Context, cartID string) (int, error) {
	tag, err := r.db.Conn(ctx).Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID)
	if err != nil {
		return 0, ppostgres.WrapError("carts.clear", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *CartRepository) items(ctx context.Context, cartID string) ([]domain.CartItem, error) {
	rows, err := r.db.Conn(ctx).Query(ctx,
		`SELECT id, cart_id, unit_id, quantity, added_at FROM cart_items WHERE cart_id = $1 ORDER BY added_at, id`, cartID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.CartItem, error) {
		var item domain.CartItem
		err := row.Scan(&item.ID, &item.CartID, &item.UnitID, &item.Quantity, &item.AddedAt)
		return item, err
	})
}
