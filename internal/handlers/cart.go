package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/commerce/internal/platform/auth"
	"github.com/hanko-field/commerce/internal/platform/httpx"
	"github.com/hanko-field/commerce/internal/services"
)

const maxCartBodySize = 4 * 1024

// CartHandlers exposes the authenticated account's cart.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

// NewCartHandlers constructs cart handlers.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{
		authn: authn,
		carts: carts,
	}
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

type cartPayload struct {
	ID        string            `json:"id"`
	ItemCount int               `json:"item_count"`
	Items     []cartItemPayload `json:"items"`
	UpdatedAt string            `json:"updated_at,omitempty"`
}

type cartItemPayload struct {
	ID       string `json:"id"`
	UnitID   string `json:"unit_id"`
	Quantity int    `json:"quantity"`
	AddedAt  string `json:"added_at,omitempty"`
}

type addCartItemRequest struct {
	UnitID   string `json:"unit_id"`
	Quantity int    `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

// Routes registers the /cart endpoints.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Patch("/items/{itemID}", h.updateItem)
	r.Delete("/items/{itemID}", h.removeItem)
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.begin(w, r)
	if !ok {
		return
	}
	cart, err := h.carts.Get(r.Context(), identity.UID)
	h.respond(w, r, cart, err)
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.begin(w, r)
	if !ok {
		return
	}
	var req addCartItemRequest
	if !decodeJSONBody(w, r, maxCartBodySize, &req) {
		return
	}
	cart, err := h.carts.AddItem(r.Context(), services.AddCartItemCommand{
		AccountID: identity.UID,
		UnitID:    strings.TrimSpace(req.UnitID),
		Quantity:  req.Quantity,
	})
	h.respond(w, r, cart, err)
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.begin(w, r)
	if !ok {
		return
	}
	var req updateCartItemRequest
	if !decodeJSONBody(w, r, maxCartBodySize, &req) {
		return
	}
	cart, err := h.carts.UpdateItem(r.Context(), services.UpdateCartItemCommand{
		AccountID: identity.UID,
		ItemID:    strings.TrimSpace(chi.URLParam(r, "itemID")),
		Quantity:  req.Quantity,
	})
	h.respond(w, r, cart, err)
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.begin(w, r)
	if !ok {
		return
	}
	cart, err := h.carts.RemoveItem(r.Context(), identity.UID, strings.TrimSpace(chi.URLParam(r, "itemID")))
	h.respond(w, r, cart, err)
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.begin(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if err := h.carts.Clear(ctx, identity.UID, strings.TrimSpace(r.URL.Query().Get("cart_id"))); err != nil {
		writeServiceError(ctx, w, "cart", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandlers) begin(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	if h.carts == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("cart_service_unavailable", "cart service unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	return requireIdentity(w, r)
}

func (h *CartHandlers) respond(w http.ResponseWriter, r *http.Request, cart services.Cart, err error) {
	if err != nil {
		writeServiceError(r.Context(), w, "cart", err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	if !cart.UpdatedAt.IsZero() {
		w.Header().Set("Last-Modified", cart.UpdatedAt.UTC().Format(http.TimeFormat))
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func buildCartPayload(cart services.Cart) cartPayload {
	payload := cartPayload{
		ID:        cart.ID,
		Items:     make([]cartItemPayload, 0, len(cart.Items)),
		UpdatedAt: formatTime(cart.UpdatedAt),
	}
	for _, item := range cart.Items {
		payload.ItemCount += item.Quantity
		payload.Items = append(payload.Items, cartItemPayload{
			ID:       item.ID,
			UnitID:   item.UnitID,
			Quantity: item.Quantity,
			AddedAt:  formatTime(item.AddedAt),
		})
	}
	return payload
}
