package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	domain "github.com/hanko-field/commerce/internal/domain"
	ppostgres "github.com/hanko-field/commerce/internal/platform/postgres"
	"github.com/hanko-field/commerce/internal/repositories"
)

// InventoryRepository is the only component that writes sellable_units.stock.
type InventoryRepository struct {
	db *ppostgres.Provider
}

// NewInventoryRepository constructs an InventoryRepository.
func NewInventoryRepository(db *ppostgres.Provider) *InventoryRepository {
	return &InventoryRepository{db: db}
}

func (r *InventoryRepository) Reserve(ctx context.Context, unitID string, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, repositories.NewInvalidQuantityError("inventory.reserve", unitID, quantity)
	}
	conn := r.db.Conn(ctx)

	var remaining int
	err := conn.QueryRow(ctx,
		`UPDATE sellable_units SET stock = stock - $2, updated_at = now()
		 WHERE id = $1 AND stock >= $2
		 RETURNING stock`,
		unitID, quantity).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, ppostgres.WrapError("inventory.reserve", err)
	}

	var available int
	err = conn.QueryRow(ctx, `SELECT stock FROM sellable_units WHERE id = $1`, unitID).Scan(&available)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return 0, repositories.NewUnitNotFoundError("inventory.reserve", unitID)
	case err != nil:
		return 0, ppostgres.WrapError("inventory.reserve", err)
	}
	return 0, repositories.NewInsufficientStockError(unitID, quantity, available)
}

func (r *InventoryRepository) Release(ctx context.Context, unitID string, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, repositories.NewInvalidQuantityError("inventory.release", unitID, quantity)
	}
	var stock int
	err := r.db.Conn(ctx).QueryRow(ctx,
		`UPDATE sellable_units SET stock = stock + $2, updated_at = now()
		 WHERE id = $1
		 RETURNING stock`,
		unitID, quantity).Scan(&stock)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return 0, repositories.NewUnitNotFoundError("inventory.release", unitID)
	case err != nil:
		return 0, ppostgres.WrapError("inventory.release", err)
	}
	return stock, nil
}

func (r *InventoryRepository) FindStockSetting(ctx context.Context, unitID string) (domain.StockSetting, error) {
	var setting domain.StockSetting
	err := r.db.Conn(ctx).QueryRow(ctx,
		`SELECT unit_id, safety_threshold, reminder_enabled, updated_at FROM stock_settings WHERE unit_id = $1`,
		unitID).Scan(&setting.UnitID, &setting.SafetyThreshold, &setting.ReminderEnabled, &setting.UpdatedAt)
	if err != nil {
		return domain.StockSetting{}, ppostgres.WrapError("inventory.find_stock_setting", err)
	}
	return setting, nil
}

func (r *InventoryRepository) ConfigureSafetyStock(ctx context.Context, setting domain.StockSetting) (domain.StockSetting, error) {
	var saved domain.StockSetting
	err := r.db.Conn(ctx).QueryRow(ctx,
		`INSERT INTO stock_settings (unit_id, safety_threshold, reminder_enabled, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (unit_id) DO UPDATE
		 SET safety_threshold = EXCLUDED.safety_threshold,
		     reminder_enabled = EXCLUDED.reminder_enabled,
		     updated_at = EXCLUDED.updated_at
		 RETURNING unit_id, safety_threshold, reminder_enabled, updated_at`,
		setting.UnitID, setting.SafetyThreshold, setting.ReminderEnabled, setting.UpdatedAt,
	).Scan(&saved.UnitID, &saved.SafetyThreshold, &saved.ReminderEnabled, &saved.UpdatedAt)
	if err != nil {
		return domain.StockSetting{}, ppostgres.WrapError("inventory.configure_safety_stock", err)
	}
	return saved, nil
}

func (r *InventoryRepository) ListLowStock(ctx context.Context, limit int) ([]domain.LowStockItem, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Conn(ctx).Query(ctx,
		`SELECT u.id, u.product_id, p.name, u.stock, s.safety_threshold
		 FROM stock_settings s
		 JOIN sellable_units u ON u.id = s.unit_id
		 JOIN products p ON p.id = u.product_id
		 WHERE s.reminder_enabled AND u.stock <= s.safety_threshold
		 ORDER BY u.stock ASC, u.id ASC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, ppostgres.WrapError("inventory.list_low_stock", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.LowStockItem, error) {
		var item domain.LowStockItem
		err := row.Scan(&item.UnitID, &item.ProductID, &item.Name, &item.Stock, &item.SafetyThreshold)
		return item, err
	})
	if err != nil {
		return nil, ppostgres.WrapError("inventory.list_low_stock", err)
	}
	return items, nil
}
