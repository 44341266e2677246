package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/commerce/internal/platform/auth"
	"github.com/hanko-field/commerce/internal/platform/httpx"
	"github.com/hanko-field/commerce/internal/services"
)

const maxAddressBodySize = 8 * 1024

// MeHandlers exposes endpoints scoped to the authenticated account.
type MeHandlers struct {
	authn     *auth.Authenticator
	addresses services.AddressService
}

// NewMeHandlers constructs account scoped handlers.
func NewMeHandlers(authn *auth.Authenticator, addresses services.AddressService) *MeHandlers {
	return &MeHandlers{
		authn:     authn,
		addresses: addresses,
	}
}

// Routes registers the /me endpoints.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Route("/addresses", func(r chi.Router) {
		r.Get("/", h.listAddresses)
		r.Post("/", h.createAddress)
	})
}

func (h *MeHandlers) listAddresses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.addresses == nil {
		httpx.WriteError(ctx, w, httpx.NewError("address_service_unavailable", "address service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	addresses, err := h.addresses.List(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, "address", err)
		return
	}

	payload := make([]addressPayload, 0, len(addresses))
	for _, addr := range addresses {
		payload = append(payload, buildAddressPayload(addr))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *MeHandlers) createAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.addresses == nil {
		httpx.WriteError(ctx, w, httpx.NewError("address_service_unavailable", "address service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req addressRequest
	if !decodeJSONBody(w, r, maxAddressBodySize, &req) {
		return
	}
	req.ID = ""

	address, err := h.addresses.Create(ctx, services.CreateAddressCommand{
		AccountID: identity.UID,
		Address:   req.input(),
	})
	if err != nil {
		writeServiceError(ctx, w, "address", err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildAddressPayload(address))
}
