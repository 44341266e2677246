package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hanko-field/commerce/internal/platform/textutil"
	"github.com/hanko-field/commerce/internal/repositories"
)

const (
	addressIDPrefix        = "addr_"
	MaxAddressesPerAccount = 3
)

var phonePattern = regexp.MustCompile(`^\+?\d{10,15}$`)

// AddressServiceDeps bundles collaborators required to construct the address service.
type AddressServiceDeps struct {
	Addresses   repositories.AddressRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
}

type addressService struct {
	repo  repositories.AddressRepository
	uow   repositories.UnitOfWork
	clock func() time.Time
	newID func() string
}

// NewAddressService constructs the address book service.
func NewAddressService(deps AddressServiceDeps) (AddressService, error) {
	if deps.Addresses == nil {
		return nil, errors.New("address service: address repository is required")
	}
	if deps.UnitOfWork == nil {
		return nil, errors.New("address service: unit of work is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &addressService{
		repo: deps.Addresses,
		uow:  deps.UnitOfWork,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID: idGen,
	}, nil
}

// Create validates and stores a new address. An account holds at most three
// addresses and exactly one default; the first address becomes the default.
func (s *addressService) Create(ctx context.Context, cmd CreateAddressCommand) (Address, error) {
	accountID := strings.TrimSpace(cmd.AccountID)
	if accountID == "" {
		return Address{}, fieldError("account_id", "account id is required")
	}
	address, err := normalizeAddress(cmd.Address)
	if err != nil {
		return Address{}, err
	}
	address.ID = addressIDPrefix + s.newID()
	address.AccountID = accountID
	address.CreatedAt = s.clock()

	err = s.uow.RunInTx(ctx, func(txCtx context.Context) error {
		count, err := s.repo.CountByAccount(txCtx, accountID)
		if err != nil {
			return mapRepositoryError(err, "address")
		}
		if count >= MaxAddressesPerAccount {
			return fieldError("address", fmt.Sprintf("an account can hold at most %d addresses", MaxAddressesPerAccount))
		}
		if count == 0 {
			address.IsDefault = true
		}
		if address.IsDefault {
			if err := s.repo.ClearDefault(txCtx, accountID); err != nil {
				return mapRepositoryError(err, "address")
			}
		}
		if err := s.repo.Insert(txCtx, address); err != nil {
			return mapRepositoryError(err, "address")
		}
		return nil
	})
	if err != nil {
		return Address{}, err
	}
	return address, nil
}

func (s *addressService) List(ctx context.Context, accountID string) ([]Address, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, fieldError("account_id", "account id is required")
	}
	addresses, err := s.repo.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, mapRepositoryError(err, "address")
	}
	return addresses, nil
}

func normalizeAddress(in AddressInput) (Address, error) {
	out := Address{
		FullName:      textutil.Clean(in.FullName),
		PhoneNumber:   textutil.Digits(in.PhoneNumber),
		StreetAddress: textutil.Clean(in.StreetAddress),
		Ward:          textutil.Clean(in.Ward),
		District:      textutil.Clean(in.District),
		City:          textutil.Clean(in.City),
		PostalCode:    textutil.Clean(in.PostalCode),
		IsDefault:     in.IsDefault,
	}

	errs := fieldErrors{}
	requireText := func(field, value string, limit int) {
		switch {
		case value == "":
			errs.add(field, "is required")
		case len([]rune(value)) > limit:
			errs.add(field, fmt.Sprintf("must be at most %d characters", limit))
		}
	}
	requireText("full_name", out.FullName, 255)
	requireText("street_address", out.StreetAddress, 512)
	requireText("city", out.City, 100)
	if !phonePattern.MatchString(out.PhoneNumber) {
		errs.add("phone_number", "phone number must have 10 to 15 digits")
	}
	if len([]rune(out.PostalCode)) > 10 {
		errs.add("postal_code", "must be at most 10 characters")
	}
	out.Ward = textutil.Truncate(out.Ward, 100)
	out.District = textutil.Truncate(out.District, 100)
	if err := errs.err(); err != nil {
		return Address{}, err
	}
	return out, nil
}
