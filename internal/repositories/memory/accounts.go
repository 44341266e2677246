package memory

import (
	"cmp"
	"context"
	"slices"

	domain "github.com/hanko-field/commerce/internal/domain"
)

type addressRepository struct{ r *Registry }

func (a addressRepository) Insert(ctx context.Context, address domain.Address) error {
	return a.r.with(ctx, func(s *state) error {
		if _, ok := s.addresses[address.ID]; ok {
			return conflict("addresses.insert", "address %s already exists", address.ID)
		}
		s.addresses[address.ID] = address
		return nil
	})
}

func (a addressRepository) FindByID(ctx context.Context, addressID string) (domain.Address, error) {
	var address domain.Address
	err := a.r.with(ctx, func(s *state) error {
		found, ok := s.addresses[addressID]
		if !ok {
			return notFound("addresses.find", "address %s not found", addressID)
		}
		address = found
		return nil
	})
	return address, err
}

func (a addressRepository) ListByAccount(ctx context.Context, accountID string) ([]domain.Address, error) {
	var out []domain.Address
	err := a.r.with(ctx, func(s *state) error {
		for _, address := range s.addresses {
			if address.AccountID == accountID {
				out = append(out, address)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(x, y domain.Address) int {
		if x.IsDefault != y.IsDefault {
			if x.IsDefault {
				return -1
			}
			return 1
		}
		return cmp.Or(x.CreatedAt.Compare(y.CreatedAt), cmp.Compare(x.ID, y.ID))
	})
	return out, err
}

func (a addressRepository) CountByAccount(ctx context.Context, accountID string) (int, error) {
	var n int
	err := a.r.with(ctx, func(s *state) error {
		for _, address := range s.addresses {
			if address.AccountID == accountID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (a addressRepository) ClearDefault(ctx context.Context, accountID string) error {
	return a.r.with(ctx, func(s *state) error {
		for id, address := range s.addresses {
			if address.AccountID == accountID && address.IsDefault {
				address.IsDefault = false
				s.addresses[id] = address
			}
		}
		return nil
	})
}

type cartRepository struct{ r *Registry }

func (c cartRepository) GetOrCreate(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	var out domain.Cart
	err := c.r.with(ctx, func(s *state) error {
		for _, existing := range s.carts {
			if existing.AccountID == cart.AccountID {
				existing.Items = slices.Clone(existing.Items)
				out = existing
				return nil
			}
		}
		cart.Items = nil
		s.carts[cart.ID] = cart
		out = cart
		return nil
	})
	return out, err
}

func (c cartRepository) FindByID(ctx context.Context, cartID string) (domain.Cart, error) {
	var out domain.Cart
	err := c.r.with(ctx, func(s *state) error {
		cart, ok := s.carts[cartID]
		if !ok {
			return notFound("carts.find", "cart %s not found", cartID)
		}
		cart.Items = slices.Clone(cart.Items)
		out = cart
		return nil
	})
	return out, err
}

func (c cartRepository) SaveItem(ctx context.Context, item domain.CartItem) error {
	return c.r.with(ctx, func(s *state) error {
		cart, ok := s.carts[item.CartID]
		if !ok {
			return notFound("carts.save_item", "cart %s not found", item.CartID)
		}
		items := slices.Clone(cart.Items)
		if idx := slices.IndexFunc(items, func(i domain.CartItem) bool { return i.UnitID == item.UnitID }); idx >= 0 {
			items[idx].Quantity = item.Quantity
		} else {
			items = append(items, item)
		}
		cart.Items = items
		cart.UpdatedAt = item.AddedAt
		s.carts[cart.ID] = cart
		return nil
	})
}

func (c cartRepository) DeleteItem(ctx context.Context, cartID, itemID string) error {
	return c.r.with(ctx, func(s *state) error {
		cart, ok := s.carts[cartID]
		if !ok {
			return notFound("carts.delete_item", "cart %s not found", cartID)
		}
		idx := slices.IndexFunc(cart.Items, func(i domain.CartItem) bool { return i.ID == itemID })
		if idx < 0 {
			return notFound("carts.delete_item", "item %s not found in cart %s", itemID, cartID)
		}
		cart.Items = slices.Delete(slices.Clone(cart.Items), idx, idx+1)
		s.carts[cartID] = cart
		return nil
	})
}

func (c cartRepository) Clear(ctx context.Context, cartID string) (int, error) {
	var removed int
	err := c.r.with(ctx, func(s *state) error {
		cart, ok := s.carts[cartID]
		if !ok {
			return nil
		}
		removed = len(cart.Items)
		cart.Items = nil
		s.carts[cartID] = cart
		return nil
	})
	return removed, err
}

type notificationRepository struct{ r *Registry }

func (n notificationRepository) Insert(ctx context.Context, notification domain.Notification) error {
	return n.r.with(ctx, func(s *state) error {
		s.notifications = append(s.notifications, notification)
		return nil
	})
}
