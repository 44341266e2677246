package handlers

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/commerce/internal/domain"
	"github.com/hanko-field/commerce/internal/platform/auth"
	"github.com/hanko-field/commerce/internal/platform/httpx"
	"github.com/hanko-field/commerce/internal/services"
)

const (
	maxPlaceOrderBodySize  = 32 * 1024
	maxOrderUpdateBodySize = 4 * 1024

	// placementRateKey prefixes limiter keys for POST /orders.
	placementRateKey = "orders.place:"
)

type placeOrderRequest struct {
	ShippingAddress addressRequest     `json:"shipping_address"`
	Lines           []orderLineRequest `json:"lines"`
	PaymentMethod   string             `json:"payment_method"`
	TransactionID   string             `json:"transaction_id"`
	CartID          string             `json:"cart_id"`
	ShippingCost    int64              `json:"shipping_cost"`
}

type orderLineRequest struct {
	UnitID   string `json:"unit_id"`
	Quantity int    `json:"quantity"`
}

type updateLineRequest struct {
	Quantity int `json:"quantity"`
}

type transitionRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

type transitionResponse struct {
	Order   orderPayload        `json:"order"`
	History orderHistoryPayload `json:"history"`
}

// OrderHandlers exposes order placement, reads, line edits and staff status changes.
type OrderHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	machine     services.OrderStateMachine
	placement   []func(http.Handler) http.Handler
	rateLimiter RateLimiter
}

// OrderHandlersOption customises OrderHandlers.
type OrderHandlersOption func(*OrderHandlers)

// WithPlacementMiddlewares wraps POST /orders, typically with the idempotency middleware.
func WithPlacementMiddlewares(mw ...func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) {
		for _, m := range mw {
			if m != nil {
				h.placement = append(h.placement, m)
			}
		}
	}
}

// WithPlacementRateLimit caps order placements per account.
func WithPlacementRateLimit(limiter RateLimiter) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.rateLimiter = limiter
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, machine services.OrderStateMachine, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:   authn,
		orders:  orders,
		machine: machine,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.With(h.placement...).Post("/", h.placeOrder)
	r.Get("/{orderID}", h.getOrder)
	r.Patch("/{orderID}/lines/{lineID}", h.updateLine)
	if h.authn != nil {
		r.With(h.authn.RequireAuth(auth.RoleStaff, auth.RoleAdmin)).Post("/{orderID}/status", h.transition)
	} else {
		r.Post("/{orderID}/status", h.transition)
	}
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.rateLimiter != nil {
		if ok, retryAfter := h.rateLimiter.Allow(placementRateKey + identity.UID); !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many orders placed; retry later", http.StatusTooManyRequests))
			return
		}
	}

	var req placeOrderRequest
	if !decodeJSONBody(w, r, maxPlaceOrderBodySize, &req) {
		return
	}

	lines := make([]services.OrderLineInput, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, services.OrderLineInput{UnitID: strings.TrimSpace(line.UnitID), Quantity: line.Quantity})
	}

	order, err := h.orders.PlaceOrder(ctx, services.PlaceOrderCommand{
		AccountID:       identity.UID,
		ShippingAddress: req.ShippingAddress.input(),
		Lines:           lines,
		PaymentMethod:   domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		TransactionID:   strings.TrimSpace(req.TransactionID),
		CartID:          strings.TrimSpace(req.CartID),
		ShippingCost:    req.ShippingCost,
		ActorID:         identity.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, "order", err)
		return
	}

	w.Header().Set("Location", "/api/v1/orders/"+order.ID)
	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	order, ok := h.loadOwnedOrder(w, r, identity)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) updateLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	order, ok := h.loadOwnedOrder(w, r, identity)
	if !ok {
		return
	}

	var req updateLineRequest
	if !decodeJSONBody(w, r, maxOrderUpdateBodySize, &req) {
		return
	}

	updated, err := h.orders.UpdateLineQuantity(ctx, services.UpdateLineQuantityCommand{
		OrderID:  order.ID,
		LineID:   strings.TrimSpace(chi.URLParam(r, "lineID")),
		Quantity: req.Quantity,
		ActorID:  identity.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, "order", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(updated)})
}

func (h *OrderHandlers) transition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.machine == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req transitionRequest
	if !decodeJSONBody(w, r, maxOrderUpdateBodySize, &req) {
		return
	}

	result, err := h.machine.Transition(ctx, services.TransitionCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		Target:  domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		ActorID: identity.UID,
		Note:    req.Note,
	})
	if err != nil {
		writeServiceError(ctx, w, "order", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, transitionResponse{
		Order:   buildOrderPayload(result.Order),
		History: buildHistoryPayload(result.History),
	})
}

// loadOwnedOrder fetches the order in the path. Customers only see their own
// orders; staff see every order.
func (h *OrderHandlers) loadOwnedOrder(w http.ResponseWriter, r *http.Request, identity *auth.Identity) (services.Order, bool) {
	ctx := r.Context()
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return services.Order{}, false
	}
	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeServiceError(ctx, w, "order", err)
		return services.Order{}, false
	}
	if order.AccountID != identity.UID && !isStaff(identity) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return services.Order{}, false
	}
	return order, true
}
