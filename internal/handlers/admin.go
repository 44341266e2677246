package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/commerce/internal/domain"
	"github.com/hanko-field/commerce/internal/platform/auth"
	"github.com/hanko-field/commerce/internal/platform/httpx"
	"github.com/hanko-field/commerce/internal/services"
)

const (
	maxAdminBodySize     = 8 * 1024
	defaultLowStockLimit = 50
	maxLowStockLimit     = 500
)

// AdminHandlers exposes staff operations on promotions and stock settings.
type AdminHandlers struct {
	authn      *auth.Authenticator
	promotions services.PromotionService
	inventory  services.InventoryService
}

// NewAdminHandlers constructs staff handlers.
func NewAdminHandlers(authn *auth.Authenticator, promotions services.PromotionService, inventory services.InventoryService) *AdminHandlers {
	return &AdminHandlers{
		authn:      authn,
		promotions: promotions,
		inventory:  inventory,
	}
}

type windowRequest struct {
	Name     string    `json:"name"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

type windowPayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	StartsAt  string `json:"starts_at"`
	EndsAt    string `json:"ends_at"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type ruleRequest struct {
	WindowID string          `json:"window_id"`
	UnitID   string          `json:"unit_id"`
	Type     string          `json:"type"`
	Value    decimal.Decimal `json:"value"`
}

type rulePayload struct {
	ID        string         `json:"id"`
	WindowID  string         `json:"window_id"`
	UnitID    string         `json:"unit_id"`
	ProductID string         `json:"product_id,omitempty"`
	Type      string         `json:"type"`
	Value     string         `json:"value"`
	Window    *windowPayload `json:"window,omitempty"`
}

type safetyStockRequest struct {
	SafetyThreshold int  `json:"safety_threshold"`
	ReminderEnabled bool `json:"reminder_enabled"`
}

type safetyStockPayload struct {
	UnitID          string `json:"unit_id"`
	SafetyThreshold int    `json:"safety_threshold"`
	ReminderEnabled bool   `json:"reminder_enabled"`
	UpdatedAt       string `json:"updated_at,omitempty"`
}

type lowStockPayload struct {
	UnitID          string `json:"unit_id"`
	ProductID       string `json:"product_id"`
	Name            string `json:"name"`
	Stock           int    `json:"stock"`
	SafetyThreshold int    `json:"safety_threshold"`
}

// Routes registers the /admin endpoints. Every route requires the staff or admin role.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Route("/promotions", func(r chi.Router) {
		r.Post("/windows", h.createWindow)
		r.Put("/windows/{windowID}", h.updateWindow)
		r.Get("/rules", h.listRules)
		r.Post("/rules", h.createRule)
		r.Put("/rules/{ruleID}", h.updateRule)
		r.Delete("/rules/{ruleID}", h.deleteRule)
	})
	r.Route("/inventory", func(r chi.Router) {
		r.Get("/low-stock", h.listLowStock)
		r.Put("/{unitID}/safety-stock", h.configureSafetyStock)
	})
}

func (h *AdminHandlers) createWindow(w http.ResponseWriter, r *http.Request) {
	h.upsertWindow(w, r, "", http.StatusCreated)
}

func (h *AdminHandlers) updateWindow(w http.ResponseWriter, r *http.Request) {
	h.upsertWindow(w, r, strings.TrimSpace(chi.URLParam(r, "windowID")), http.StatusOK)
}

func (h *AdminHandlers) upsertWindow(w http.ResponseWriter, r *http.Request, windowID string, status int) {
	ctx := r.Context()
	if !h.promotionsReady(w, r) {
		return
	}
	var req windowRequest
	if !decodeJSONBody(w, r, maxAdminBodySize, &req) {
		return
	}
	cmd := services.UpsertWindowCommand{ID: windowID, Name: req.Name, StartsAt: req.StartsAt, EndsAt: req.EndsAt}

	var (
		window services.PromotionWindow
		err    error
	)
	if windowID == "" {
		window, err = h.promotions.CreateWindow(ctx, cmd)
	} else {
		window, err = h.promotions.UpdateWindow(ctx, cmd)
	}
	if err != nil {
		writeServiceError(ctx, w, "promotion", err)
		return
	}
	writeJSONResponse(w, status, buildWindowPayload(window))
}

func (h *AdminHandlers) listRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.promotionsReady(w, r) {
		return
	}
	rules, err := h.promotions.ListRules(ctx, strings.TrimSpace(r.URL.Query().Get("unit_id")))
	if err != nil {
		writeServiceError(ctx, w, "promotion", err)
		return
	}
	items := make([]rulePayload, 0, len(rules))
	for _, rule := range rules {
		items = append(items, buildRulePayload(rule))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func (h *AdminHandlers) createRule(w http.ResponseWriter, r *http.Request) {
	h.upsertRule(w, r, "", http.StatusCreated)
}

func (h *AdminHandlers) updateRule(w http.ResponseWriter, r *http.Request) {
	h.upsertRule(w, r, strings.TrimSpace(chi.URLParam(r, "ruleID")), http.StatusOK)
}

func (h *AdminHandlers) upsertRule(w http.ResponseWriter, r *http.Request, ruleID string, status int) {
	ctx := r.Context()
	if !h.promotionsReady(w, r) {
		return
	}
	var req ruleRequest
	if !decodeJSONBody(w, r, maxAdminBodySize, &req) {
		return
	}
	cmd := services.UpsertRuleCommand{
		ID:       ruleID,
		WindowID: strings.TrimSpace(req.WindowID),
		UnitID:   strings.TrimSpace(req.UnitID),
		Type:     domain.DiscountType(strings.ToLower(strings.TrimSpace(req.Type))),
		Value:    req.Value,
	}

	var (
		rule services.PromotionRule
		err  error
	)
	if ruleID == "" {
		rule, err = h.promotions.CreateRule(ctx, cmd)
	} else {
		rule, err = h.promotions.UpdateRule(ctx, cmd)
	}
	if err != nil {
		writeServiceError(ctx, w, "promotion", err)
		return
	}
	writeJSONResponse(w, status, buildRulePayload(rule))
}

func (h *AdminHandlers) deleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.promotionsReady(w, r) {
		return
	}
	if err := h.promotions.DeleteRule(ctx, strings.TrimSpace(chi.URLParam(r, "ruleID"))); err != nil {
		writeServiceError(ctx, w, "promotion", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) configureSafetyStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.inventoryReady(w, r) {
		return
	}
	var req safetyStockRequest
	if !decodeJSONBody(w, r, maxAdminBodySize, &req) {
		return
	}
	setting, err := h.inventory.ConfigureSafetyStock(ctx, services.ConfigureSafetyStockCommand{
		UnitID:          strings.TrimSpace(chi.URLParam(r, "unitID")),
		SafetyThreshold: req.SafetyThreshold,
		ReminderEnabled: req.ReminderEnabled,
	})
	if err != nil {
		writeServiceError(ctx, w, "inventory", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, safetyStockPayload{
		UnitID:          setting.UnitID,
		SafetyThreshold: setting.SafetyThreshold,
		ReminderEnabled: setting.ReminderEnabled,
		UpdatedAt:       formatTime(setting.UpdatedAt),
	})
}

func (h *AdminHandlers) listLowStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.inventoryReady(w, r) {
		return
	}
	limit, ok := parseLimit(r.URL.Query().Get("limit"), defaultLowStockLimit, maxLowStockLimit)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be an integer", http.StatusBadRequest))
		return
	}
	items, err := h.inventory.ListLowStock(ctx, limit)
	if err != nil {
		writeServiceError(ctx, w, "inventory", err)
		return
	}
	payload := make([]lowStockPayload, 0, len(items))
	for _, item := range items {
		payload = append(payload, lowStockPayload{
			UnitID:          item.UnitID,
			ProductID:       item.ProductID,
			Name:            item.Name,
			Stock:           item.Stock,
			SafetyThreshold: item.SafetyThreshold,
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": payload})
}

func (h *AdminHandlers) promotionsReady(w http.ResponseWriter, r *http.Request) bool {
	if h.promotions == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("promotion_service_unavailable", "promotion service unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func (h *AdminHandlers) inventoryReady(w http.ResponseWriter, r *http.Request) bool {
	if h.inventory == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("inventory_service_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func buildWindowPayload(window services.PromotionWindow) windowPayload {
	return windowPayload{
		ID:        window.ID,
		Name:      window.Name,
		StartsAt:  formatTime(window.StartsAt),
		EndsAt:    formatTime(window.EndsAt),
		CreatedAt: formatTime(window.CreatedAt),
		UpdatedAt: formatTime(window.UpdatedAt),
	}
}

func buildRulePayload(rule services.PromotionRule) rulePayload {
	payload := rulePayload{
		ID:        rule.ID,
		WindowID:  rule.WindowID,
		UnitID:    rule.UnitID,
		ProductID: rule.ProductID,
		Type:      string(rule.Type),
		Value:     rule.Value.String(),
	}
	if rule.Window.ID != "" {
		window := buildWindowPayload(rule.Window)
		payload.Window = &window
	}
	return payload
}
