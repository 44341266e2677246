package handlers

import (
	"strings"

	"github.com/hanko-field/commerce/internal/services"
)

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID              string                `json:"id"`
	InvoiceCode     string                `json:"invoice_code"`
	AccountID       string                `json:"account_id"`
	Status          string                `json:"status"`
	TotalPrice      int64                 `json:"total_price"`
	ShippingCost    int64                 `json:"shipping_cost"`
	Lines           []orderLinePayload    `json:"lines"`
	ShippingAddress *addressPayload       `json:"shipping_address,omitempty"`
	Payment         *paymentPayload       `json:"payment,omitempty"`
	History         []orderHistoryPayload `json:"history,omitempty"`
	CreatedAt       string                `json:"created_at"`
	UpdatedAt       string                `json:"updated_at,omitempty"`
}

type orderLinePayload struct {
	ID            string `json:"id"`
	Position      int    `json:"position"`
	UnitID        string `json:"unit_id"`
	ProductID     string `json:"product_id"`
	ProductName   string `json:"product_name"`
	Attributes    string `json:"attributes,omitempty"`
	Price         string `json:"price"`
	DiscountPrice string `json:"discount_price"`
	Quantity      int    `json:"quantity"`
	Subtotal      string `json:"subtotal"`
	ImageRef      string `json:"image_ref,omitempty"`
}

type paymentPayload struct {
	ID            string `json:"id"`
	Method        string `json:"method"`
	TransactionID string `json:"transaction_id,omitempty"`
	Amount        int64  `json:"amount"`
	Status        string `json:"status"`
	PaidAt        string `json:"paid_at,omitempty"`
}

type orderHistoryPayload struct {
	ID             string `json:"id"`
	PreviousStatus string `json:"previous_status,omitempty"`
	NewStatus      string `json:"new_status"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	ActorID        string `json:"actor_id,omitempty"`
	CreatedAt      string `json:"created_at"`
}

type addressPayload struct {
	ID            string `json:"id"`
	FullName      string `json:"full_name"`
	PhoneNumber   string `json:"phone_number"`
	StreetAddress string `json:"street_address"`
	Ward          string `json:"ward,omitempty"`
	District      string `json:"district,omitempty"`
	City          string `json:"city"`
	PostalCode    string `json:"postal_code,omitempty"`
	IsDefault     bool   `json:"is_default"`
	CreatedAt     string `json:"created_at,omitempty"`
}

// addressRequest is the inbound shape of a saved address reference or a new address.
type addressRequest struct {
	ID            string `json:"id"`
	FullName      string `json:"full_name"`
	PhoneNumber   string `json:"phone_number"`
	StreetAddress string `json:"street_address"`
	Ward          string `json:"ward"`
	District      string `json:"district"`
	City          string `json:"city"`
	PostalCode    string `json:"postal_code"`
	IsDefault     bool   `json:"is_default"`
}

func (a addressRequest) input() services.AddressInput {
	return services.AddressInput{
		ID:            strings.TrimSpace(a.ID),
		FullName:      a.FullName,
		PhoneNumber:   a.PhoneNumber,
		StreetAddress: a.StreetAddress,
		Ward:          a.Ward,
		District:      a.District,
		City:          a.City,
		PostalCode:    a.PostalCode,
		IsDefault:     a.IsDefault,
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:           order.ID,
		InvoiceCode:  order.InvoiceCode,
		AccountID:    order.AccountID,
		Status:       string(order.Status),
		TotalPrice:   order.TotalPrice,
		ShippingCost: order.ShippingCost,
		Lines:        make([]orderLinePayload, 0, len(order.Lines)),
		CreatedAt:    formatTime(order.CreatedAt),
		UpdatedAt:    formatTime(order.UpdatedAt),
	}
	for _, line := range order.Lines {
		payload.Lines = append(payload.Lines, orderLinePayload{
			ID:            line.ID,
			Position:      line.Position,
			UnitID:        line.UnitID,
			ProductID:     line.ProductID,
			ProductName:   line.ProductName,
			Attributes:    line.Attributes,
			Price:         line.Price.String(),
			DiscountPrice: line.DiscountPrice.String(),
			Quantity:      line.Quantity,
			Subtotal:      line.Subtotal().String(),
			ImageRef:      line.ImageRef,
		})
	}
	if order.ShippingAddress != nil {
		address := buildAddressPayload(*order.ShippingAddress)
		payload.ShippingAddress = &address
	}
	if order.Payment != nil {
		payload.Payment = &paymentPayload{
			ID:            order.Payment.ID,
			Method:        string(order.Payment.Method),
			TransactionID: order.Payment.TransactionID,
			Amount:        order.Payment.Amount,
			Status:        string(order.Payment.Status),
			PaidAt:        formatTimePtr(order.Payment.PaidAt),
		}
	}
	for _, entry := range order.History {
		payload.History = append(payload.History, buildHistoryPayload(entry))
	}
	return payload
}

func buildHistoryPayload(entry services.OrderStatusHistory) orderHistoryPayload {
	payload := orderHistoryPayload{
		ID:          entry.ID,
		NewStatus:   string(entry.NewStatus),
		Title:       entry.Title,
		Description: entry.Description,
		ActorID:     entry.ActorID,
		CreatedAt:   formatTime(entry.CreatedAt),
	}
	if entry.PreviousStatus != nil {
		payload.PreviousStatus = string(*entry.PreviousStatus)
	}
	return payload
}

func buildAddressPayload(address services.Address) addressPayload {
	return addressPayload{
		ID:            address.ID,
		FullName:      address.FullName,
		PhoneNumber:   address.PhoneNumber,
		StreetAddress: address.StreetAddress,
		Ward:          address.Ward,
		District:      address.District,
		City:          address.City,
		PostalCode:    address.PostalCode,
		IsDefault:     address.IsDefault,
		CreatedAt:     formatTime(address.CreatedAt),
	}
}
