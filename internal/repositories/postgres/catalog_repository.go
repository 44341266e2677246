package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	domain "github.com/hanko-field/commerce/internal/domain"
	ppostgres "github.com/hanko-field/commerce/internal/platform/postgres"
)

const selectUnitSQL = `
SELECT u.id, u.product_id, p.name, u.name, u.price, u.stock, u.is_default, u.image_ref, u.updated_at
FROM sellable_units u
JOIN products p ON p.id = u.product_id
WHERE u.id = $1`

// CatalogRepository reads sellable units and bumps product sale counts.
type CatalogRepository struct {
	db *ppostgres.Provider
}

// NewCatalogRepository constructs a CatalogRepository.
func NewCatalogRepository(db *ppostgres.Provider) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) FindUnit(ctx context.Context, unitID string) (domain.SellableUnit, error) {
	unit, err := scanUnit(r.db.Conn(ctx).QueryRow(ctx, selectUnitSQL, unitID))
	if err != nil {
		return domain.SellableUnit{}, ppostgres.WrapError("catalog.find_unit", err)
	}
	return unit, nil
}

func (r *CatalogRepository) LockUnit(ctx context.Context, unitID string) (domain.SellableUnit, error) {
	unit, err := scanUnit(r.db.Conn(ctx).QueryRow(ctx, selectUnitSQL+" FOR UPDATE OF u", unitID))
	if err != nil {
		return domain.SellableUnit{}, ppostgres.WrapError("catalog.lock_unit", err)
	}
	return unit, nil
}

func (r *CatalogRepository) IncrementSaleCount(ctx context.Context, productID string, quantity int) error {
	tag, err := r.db.Conn(ctx).Exec(ctx,
		`UPDATE products SET sale_count = sale_count + $2, updated_at = now() WHERE id = $1`,
		productID, quantity)
	if err != nil {
		return ppostgres.WrapError("catalog.increment_sale_count", err)
	}
	if tag.RowsAffected() == 0 {
		return ppostgres.NotFound("catalog.increment_sale_count", fmt.Errorf("product %s not found", productID))
	}
	return nil
}

func scanUnit(row pgx.Row) (domain.SellableUnit, error) {
	var unit domain.SellableUnit
	err := row.Scan(&unit.ID, &unit.ProductID, &unit.ProductName, &unit.Name, &unit.Price,
		&unit.Stock, &unit.IsDefault, &unit.ImageRef, &unit.UpdatedAt)
	return unit, err
}
