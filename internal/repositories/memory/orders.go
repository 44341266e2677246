package memory

import (
	"context"
	"slices"
	"time"

	domain "github.com/hanko-field/commerce/internal/domain"
)

type orderRepository struct{ r *Registry }

func (o orderRepository) Insert(ctx context.Context, order domain.Order) error {
	return o.r.with(ctx, func(s *state) error {
		if _, ok := s.orders[order.ID]; ok {
			return conflict("orders.insert", "order %s already exists", order.ID)
		}
		for _, existing := range s.orders {
			if existing.InvoiceCode == order.InvoiceCode {
				return conflict("orders.insert", "invoice %s already exists", order.InvoiceCode)
			}
		}
		if order.ShippingAddress != nil {
			address := *order.ShippingAddress
			order.ShippingAddress = &address
		}
		order.Lines = nil
		order.Payment = nil
		order.History = nil
		s.orders[order.ID] = order
		return nil
	})
}

func (o orderRepository) InsertLines(ctx context.Context, lines []domain.OrderLine) error {
	return o.r.with(ctx, func(s *state) error {
		for _, line := range lines {
			order, ok := s.orders[line.OrderID]
			if !ok {
				return conflict("orders.insert_lines", "order %s does not exist", line.OrderID)
			}
			order.Lines = append(slices.Clone(order.Lines), line)
			s.orders[line.OrderID] = order
		}
		return nil
	})
}

func (o orderRepository) UpdateLineQuantity(ctx context.Context, orderID, lineID string, quantity int) error {
	return o.updateLine(ctx, "orders.update_line_quantity", orderID, lineID, func(line *domain.OrderLine) {
		line.Quantity = quantity
	})
}

func (o orderRepository) UpdateLineImage(ctx context.Context, orderID, lineID, imageRef string) error {
	return o.updateLine(ctx, "orders.update_line_image", orderID, lineID, func(line *domain.OrderLine) {
		line.ImageRef = imageRef
	})
}

func (o orderRepository) updateLine(ctx context.Context, op, orderID, lineID string, mutate func(*domain.OrderLine)) error {
	return o.r.with(ctx, func(s *state) error {
		order, ok := s.orders[orderID]
		if !ok {
			return notFound(op, "order %s not found", orderID)
		}
		idx := slices.IndexFunc(order.Lines, func(l domain.OrderLine) bool { return l.ID == lineID })
		if idx < 0 {
			return notFound(op, "line %s not found in order %s", lineID, orderID)
		}
		order.Lines = slices.Clone(order.Lines)
		mutate(&order.Lines[idx])
		s.orders[orderID] = order
		return nil
	})
}

func (o orderRepository) UpdateTotal(ctx context.Context, orderID string, total int64, updatedAt time.Time) error {
	return o.update(ctx, "orders.update_total", orderID, func(order *domain.Order) {
		order.TotalPrice = total
		order.UpdatedAt = updatedAt
	})
}

func (o orderRepository) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, updatedAt time.Time) error {
	return o.update(ctx, "orders.update_status", orderID, func(order *domain.Order) {
		order.Status = status
		order.UpdatedAt = updatedAt
	})
}

func (o orderRepository) update(ctx context.Context, op, orderID string, mutate func(*domain.Order)) error {
	return o.r.with(ctx, func(s *state) error {
		order, ok := s.orders[orderID]
		if !ok {
			return notFound(op, "order %s not found", orderID)
		}
		mutate(&order)
		s.orders[orderID] = order
		return nil
	})
}

func (o orderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	var order domain.Order
	err := o.r.with(ctx, func(s *state) error {
		found, ok := s.orders[orderID]
		if !ok {
			return notFound("orders.find", "order %s not found", orderID)
		}
		found.Lines = slices.Clone(found.Lines)
		if found.ShippingAddress != nil {
			address := *found.ShippingAddress
			found.ShippingAddress = &address
		}
		order = found
		return nil
	})
	return order, err
}

// FindByIDForUpdate is FindByID: transactions already hold the registry-wide lock.
func (o orderRepository) FindByIDForUpdate(ctx context.Context, orderID string) (domain.Order, error) {
	return o.FindByID(ctx, orderID)
}

func (o orderRepository) InvoiceExists(ctx context.Context, invoiceCode string) (bool, error) {
	var exists bool
	err := o.r.with(ctx, func(s *state) error {
		for _, order := range s.orders {
			if order.InvoiceCode == invoiceCode {
				exists = true
				break
			}
		}
		return nil
	})
	return exists, err
}

func (o orderRepository) AppendHistory(ctx context.Context, entry domain.OrderStatusHistory) error {
	return o.r.with(ctx, func(s *state) error {
		if _, ok := s.orders[entry.OrderID]; !ok {
			return conflict("orders.append_history", "order %s does not exist", entry.OrderID)
		}
		s.history[entry.OrderID] = append(slices.Clone(s.history[entry.OrderID]), entry)
		return nil
	})
}

func (o orderRepository) ListHistory(ctx context.Context, orderID string) ([]domain.OrderStatusHistory, error) {
	var entries []domain.OrderStatusHistory
	err := o.r.with(ctx, func(s *state) error {
		entries = slices.Clone(s.history[orderID])
		return nil
	})
	return entries, err
}

type paymentRepository struct{ r *Registry }

func (p paymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	return p.r.with(ctx, func(s *state) error {
		if _, ok := s.payments[payment.OrderID]; ok {
			return conflict("payments.insert", "order %s already has a payment", payment.OrderID)
		}
		if payment.TransactionID != "" {
			for _, existing := range s.payments {
				if existing.TransactionID == payment.TransactionID {
					return conflict("payments.insert", "transaction %s already settles order %s", payment.TransactionID, existing.OrderID)
				}
			}
		}
		s.payments[payment.OrderID] = payment
		return nil
	})
}

func (p paymentRepository) UpdateAmount(ctx context.Context, orderID string, amount int64, updatedAt time.Time) error {
	return p.r.with(ctx, func(s *state) error {
		payment, ok := s.payments[orderID]
		if !ok {
			return notFound("payments.update_amount", "payment for order %s not found", orderID)
		}
		payment.Amount = amount
		payment.UpdatedAt = updatedAt
		s.payments[orderID] = payment
		return nil
	})
}

func (p paymentRepository) FindByOrder(ctx context.Context, orderID string) (domain.Payment, error) {
	var payment domain.Payment
	err := p.r.with(ctx, func(s *state) error {
		found, ok := s.payments[orderID]
		if !ok {
			return notFound("payments.find_by_order", "payment for order %s not found", orderID)
		}
		payment = found
		return nil
	})
	return payment, err
}
