package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	domain "github.com/hanko-field/commerce/internal/domain"
	ppostgres "github.com/hanko-field/commerce/internal/platform/postgres"
)

const selectAddressSQL = `
SELECT id, account_id, full_name, phone_number, street_address, ward, district, city, postal_code, is_default, created_at
FROM addresses`

// AddressRepository persists account address books.
type AddressRepository struct {
	db *ppostgres.Provider
}

// NewAddressRepository constructs an AddressRepository.
func NewAddressRepository(db *ppostgres.Provider) *AddressRepository {
	return &AddressRepository{db: db}
}

func (r *AddressRepository) Insert(ctx context.Context, a domain.Address) error {
	_, err := r.db.Conn(ctx).Exec(ctx,
		`INSERT INTO addresses (id, account_id, full_name, phone_number, street_address, ward, district, city, postal_code, is_default, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.AccountID, a.FullName, a.PhoneNumber, a.StreetAddress, a.Ward, a.District, a.City, a.PostalCode,
		a.IsDefault, a.CreatedAt)
	return ppostgres.WrapError("addresses.insert", err)
}

func (r *AddressRepository) FindByID(ctx context.Context, addressID string) (domain.Address, error) {
	address, err := scanAddress(r.db.Conn(ctx).QueryRow(ctx, selectAddressSQL+` WHERE id = $1`, addressID))
	if err != nil {
		return domain.Address{}, ppostgres.WrapError("addresses.find", err)
	}
	return address, nil
}

func (r *AddressRepository) ListByAccount(ctx context.Context, accountID string) ([]domain.Address, error) {
	rows, err := r.db.Conn(ctx).Query(ctx,
		selectAddressSQL+` WHERE account_id = $1 ORDER BY is_default DESC, created_at, id`, accountID)
	if err != nil {
		return nil, ppostgres.WrapError("addresses.list", err)
	}
	addresses, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Address, error) {
		return scanAddress(row)
	})
	if err != nil {
		return nil, ppostgres.WrapError("addresses.list", err)
	}
	return addresses, nil
}

func (r *AddressRepository) CountByAccount(ctx context.Context, accountID string) (int, error) {
	var count int
	err := r.db.Conn(ctx).QueryRow(ctx, `SELECT count(*) FROM addresses WHERE account_id = $1`, accountID).Scan(&count)
	if err != nil {
		return 0, ppostgres.WrapError("addresses.count", err)
	}
	return count, nil
}

func (r *AddressRepository) ClearDefault(ctx context.Context, accountID string) error {
	_, err := r.db.Conn(ctx).Exec(ctx,
		`UPDATE addresses SET is_default = FALSE WHERE account_id = $1 AND is_default`, accountID)
	return ppostgres.WrapError("addresses.clear_default", err)
}

func scanAddress(row pgx.Row) (domain.Address, error) {
	var a domain.Address
	err := row.Scan(&a.ID, &a.AccountID, &a.FullName, &a.PhoneNumber, &a.StreetAddress, &a.Ward, &a.District,
		&a.City, &a.PostalCode, &a.IsDefault, &a.CreatedAt)
	return a, err
}
