package memory

import (
	"cmp"
	"context"
	"slices"

	domain "github.com/hanko-field/commerce/internal/domain"
	"github.com/hanko-field/commerce/internal/repositories"
)

type catalogRepository struct{ r *Registry }

func (c catalogRepository) FindUnit(ctx context.Context, unitID string) (domain.SellableUnit, error) {
	var unit domain.SellableUnit
	err := c.r.with(ctx, func(s *state) error {
		found, ok := s.units[unitID]
		if !ok {
			return notFound("catalog.find_unit", "unit %s not found", unitID)
		}
		unit = found
		return nil
	})
	return unit, err
}

// LockUnit is FindUnit: transactions already hold the registry-wide lock.
func (c catalogRepository) LockUnit(ctx context.Context, unitID string) (domain.SellableUnit, error) {
	return c.FindUnit(ctx, unitID)
}

func (c catalogRepository) IncrementSaleCount(ctx context.Context, productID string, quantity int) error {
	return c.r.with(ctx, func(s *state) error {
		product, ok := s.products[productID]
		if !ok {
			return notFound("catalog.increment_sale_count", "product %s not found", productID)
		}
		product.SaleCount += int64(quantity)
		s.products[productID] = product
		return nil
	})
}

type inventoryRepository struct{ r *Registry }

func (i inventoryRepository) Reserve(ctx context.Context, unitID string, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, repositories.NewInvalidQuantityError("inventory.reserve", unitID, quantity)
	}
	var remaining int
	err := i.r.with(ctx, func(s *state) error {
		unit, ok := s.units[unitID]
		if !ok {
			return repositories.NewUnitNotFoundError("inventory.reserve", unitID)
		}
		if unit.Stock < quantity {
			return repositories.NewInsufficientStockError(unitID, quantity, unit.Stock)
		}
		unit.Stock -= quantity
		s.units[unitID] = unit
		remaining = unit.Stock
		return nil
	})
	return remaining, err
}

func (i inventoryRepository) Release(ctx context.Context, unitID string, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, repositories.NewInvalidQuantityError("inventory.release", unitID, quantity)
	}
	var stock int
	err := i.r.with(ctx, func(s *state) error {
		unit, ok := s.units[unitID]
		if !ok {
			return repositories.NewUnitNotFoundError("inventory.release", unitID)
		}
		unit.Stock += quantity
		s.units[unitID] = unit
		stock = unit.Stock
		return nil
	})
	return stock, err
}

func (i inventoryRepository) FindStockSetting(ctx context.Context, unitID string) (domain.StockSetting, error) {
	var setting domain.StockSetting
	err := i.r.with(ctx, func(s *state) error {
		found, ok := s.settings[unitID]
		if !ok {
			return notFound("inventory.find_stock_setting", "no stock setting for unit %s", unitID)
		}
		setting = found
		return nil
	})
	return setting, err
}

func (i inventoryRepository) ConfigureSafetyStock(ctx context.Context, setting domain.StockSetting) (domain.StockSetting, error) {
	err := i.r.with(ctx, func(s *state) error {
		if _, ok := s.units[setting.UnitID]; !ok {
			return notFound("inventory.configure_safety_stock", "unit %s not found", setting.UnitID)
		}
		s.settings[setting.UnitID] = setting
		return nil
	})
	if err != nil {
		return domain.StockSetting{}, err
	}
	return setting, nil
}

func (i inventoryRepository) ListLowStock(ctx context.Context, limit int) ([]domain.LowStockItem, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []domain.LowStockItem
	err := i.r.with(ctx, func(s *state) error {
		for unitID, setting := range s.settings {
			unit, ok := s.units[unitID]
			if !ok || !setting.ReminderEnabled || unit.Stock > setting.SafetyThreshold {
				continue
			}
			items = append(items, domain.LowStockItem{
				UnitID:          unit.ID,
				ProductID:       unit.ProductID,
				Name:            s.products[unit.ProductID].Name,
				Stock:           unit.Stock,
				SafetyThreshold: setting.SafetyThreshold,
			})
		}
		return nil
	})
	slices.SortFunc(items, func(a, b domain.LowStockItem) int {
		return cmp.Or(cmp.Compare(a.Stock, b.Stock), cmp.Compare(a.UnitID, b.UnitID))
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, err
}
