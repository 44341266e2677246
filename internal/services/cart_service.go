package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hanko-field/commerce/internal/repositories"
)

const (
	cartIDPrefix     = "cart_"
	cartItemIDPrefix = "citem_"
)

// CartServiceDeps bundles collaborators required to construct the cart service.
type CartServiceDeps struct {
	Carts       repositories.CartRepository
	Catalog     repositories.CatalogRepository
	Events      *EventWriter
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	carts   repositories.CartRepository
	catalog repositories.CatalogRepository
	events  *EventWriter
	uow     repositories.UnitOfWork
	clock   func() time.Time
	newID   func() string
	logger  func(context.Context, string, map[string]any)
}

// NewCartService constructs the cart service. Every mutation stages a
// cart.changed event in the same transaction.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	switch {
	case deps.Carts == nil:
		return nil, errors.New("cart service: cart repository is required")
	case deps.Catalog == nil:
		return nil, errors.New("cart service: catalog repository is required")
	case deps.Events == nil:
		return nil, errors.New("cart service: event writer is required")
	case deps.UnitOfWork == nil:
		return nil, errors.New("cart service: unit of work is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cartService{
		carts:   deps.Carts,
		catalog: deps.Catalog,
		events:  deps.Events,
		uow:     deps.UnitOfWork,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *cartService) Get(ctx context.Context, accountID string) (Cart, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return Cart{}, fieldError("account_id", "account id is required")
	}
	return s.cartFor(ctx, accountID)
}

// AddItem adds quantity of a unit, merging with an existing line for the same unit.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error) {
	accountID := strings.TrimSpace(cmd.AccountID)
	unitID := strings.TrimSpace(cmd.UnitID)
	errs := fieldErrors{}
	if accountID == "" {
		errs.add("account_id", "account id is required")
	}
	if unitID == "" {
		errs.add("unit_id", "unit id is required")
	}
	if cmd.Quantity <= 0 {
		errs.add("quantity", "quantity must be at least 1")
	}
	if err := errs.err(); err != nil {
		return Cart{}, err
	}

	return s.mutate(ctx, accountID, func(txCtx context.Context, cart Cart) error {
		if _, err := s.catalog.FindUnit(txCtx, unitID); err != nil {
			if isNotFound(err) {
				return fieldError("unit_id", fmt.Sprintf("unit %s does not exist", unitID))
			}
			return mapRepositoryError(err, "unit")
		}
		item := CartItem{
			ID:       cartItemIDPrefix + s.newID(),
			CartID:   cart.ID,
			UnitID:   unitID,
			Quantity: cmd.Quantity,
			AddedAt:  s.clock(),
		}
		if idx := slices.IndexFunc(cart.Items, func(it CartItem) bool { return it.UnitID == unitID }); idx >= 0 {
			item = cart.Items[idx]
			item.Quantity += cmd.Quantity
		}
		return mapRepositoryError(s.carts.SaveItem(txCtx, item), "cart_item")
	})
}

// UpdateItem sets an item's quantity. Zero removes the item.
func (s *cartService) UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error) {
	accountID := strings.TrimSpace(cmd.AccountID)
	itemID := strings.TrimSpace(cmd.ItemID)
	errs := fieldErrors{}
	if accountID == "" {
		errs.add("account_id", "account id is required")
	}
	if itemID == "" {
		errs.add("item_id", "item id is required")
	}
	if cmd.Quantity < 0 {
		errs.add("quantity", "quantity must not be negative")
	}
	if err := errs.err(); err != nil {
		return Cart{}, err
	}
	if cmd.Quantity == 0 {
		return s.RemoveItem(ctx, accountID, itemID)
	}

	return s.mutate(ctx, accountID, func(txCtx context.Context, cart Cart) error {
		item, err := findCartItem(cart, itemID)
		if err != nil {
			return err
		}
		item.Quantity = cmd.Quantity
		return mapRepositoryError(s.carts.SaveItem(txCtx, item), "cart_item")
	})
}

func (s *cartService) RemoveItem(ctx context.Context, accountID, itemID string) (Cart, error) {
	accountID = strings.TrimSpace(accountID)
	itemID = strings.TrimSpace(itemID)
	if accountID == "" {
		return Cart{}, fieldError("account_id", "account id is required")
	}
	if itemID == "" {
		return Cart{}, fieldError("item_id", "item id is required")
	}
	return s.mutate(ctx, accountID, func(txCtx context.Context, cart Cart) error {
		if _, err := findCartItem(cart, itemID); err != nil {
			return err
		}
		return mapRepositoryError(s.carts.DeleteItem(txCtx, cart.ID, itemID), "cart_item")
	})
}

// Clear empties the account's cart. cartID, when set, must belong to the account.
func (s *cartService) Clear(ctx context.Context, accountID, cartID string) error {
	accountID = strings.TrimSpace(accountID)
	cartID = strings.TrimSpace(cartID)
	if accountID == "" {
		return fieldError("account_id", "account id is required")
	}
	return s.uow.RunInTx(ctx, func(txCtx context.Context) error {
		var (
			cart Cart
			err  error
		)
		if cartID == "" {
			cart, err = s.cartFor(txCtx, accountID)
		} else {
			cart, err = s.carts.FindByID(txCtx, cartID)
			err = mapRepositoryError(err, "cart")
		}
		if err != nil {
			return err
		}
		if cart.AccountID != accountID {
			return fmt.Errorf("%w: cart %s", ErrNotFound, cartID)
		}
		if _, err := s.carts.Clear(txCtx, cart.ID); err != nil {
			return mapRepositoryError(err, "cart")
		}
		return s.emitChanged(txCtx, cart.AccountID, cart.ID, 0)
	})
}

// mutate runs fn on the account's cart inside a transaction, then reloads the
// cart and stages cart.changed.
func (s *cartService) mutate(ctx context.Context, accountID string, fn func(ctx context.Context, cart Cart) error) (Cart, error) {
	var out Cart
	err := s.uow.RunInTx(ctx, func(txCtx context.Context) error {
		cart, err := s.cartFor(txCtx, accountID)
		if err != nil {
			return err
		}
		if err := fn(txCtx, cart); err != nil {
			return err
		}
		out, err = s.carts.FindByID(txCtx, cart.ID)
		if err != nil {
			return mapRepositoryError(err, "cart")
		}
		return s.emitChanged(txCtx, accountID, cart.ID, itemCount(out))
	})
	if err != nil {
		return Cart{}, err
	}
	return out, nil
}

func (s *cartService) cartFor(ctx context.Context, accountID string) (Cart, error) {
	cart, err := s.carts.GetOrCreate(ctx, Cart{
		ID:        cartIDPrefix + s.newID(),
		AccountID: accountID,
		UpdatedAt: s.clock(),
	})
	if err != nil {
		return Cart{}, mapRepositoryError(err, "cart")
	}
	return cart, nil
}

func (s *cartService) emitChanged(ctx context.Context, accountID, cartID string, count int) error {
	return s.events.Enqueue(ctx, EventCartChanged, accountID, cartChangedPayload{
		AccountID: accountID,
		CartID:    cartID,
		ItemCount: count,
		ChangedAt: s.clock().Format(time.RFC3339Nano),
	})
}

func findCartItem(cart Cart, itemID string) (CartItem, error) {
	idx := slices.IndexFunc(cart.Items, func(it CartItem) bool { return it.ID == itemID })
	if idx < 0 {
		return CartItem{}, fmt.Errorf("%w: cart item %s", ErrNotFound, itemID)
	}
	return cart.Items[idx], nil
}

func itemCount(cart Cart) int {
	total := 0
	for _, item := range cart.Items {
		total += item.Quantity
	}
	return total
}
