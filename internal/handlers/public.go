package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/commerce/internal/platform/httpx"
	"github.com/hanko-field/commerce/internal/services"
)

// PublicHandlers serves unauthenticated catalog reads.
type PublicHandlers struct {
	pricing services.PricingEngine
	clock   func() time.Time
}

// PublicHandlersOption customises PublicHandlers.
type PublicHandlersOption func(*PublicHandlers)

// WithPublicClock overrides the instant used when as_of is absent.
func WithPublicClock(clock func() time.Time) PublicHandlersOption {
	return func(h *PublicHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewPublicHandlers constructs public handlers.
func NewPublicHandlers(pricing services.PricingEngine, opts ...PublicHandlersOption) *PublicHandlers {
	h := &PublicHandlers{pricing: pricing, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

type priceQuotePayload struct {
	UnitID          string `json:"unit_id"`
	UnitPrice       string `json:"unit_price"`
	EffectivePrice  string `json:"effective_price"`
	DiscountAmount  string `json:"discount_amount"`
	DiscountPercent string `json:"discount_percent"`
	DiscountType    string `json:"discount_type,omitempty"`
	DiscountLabel   string `json:"discount_label,omitempty"`
	RuleID          string `json:"rule_id,omitempty"`
	AsOf            string `json:"as_of"`
}

// Routes registers the /public endpoints.
func (h *PublicHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/units/{unitID}/price", h.quoteUnit)
}

func (h *PublicHandlers) quoteUnit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pricing == nil {
		httpx.WriteError(ctx, w, httpx.NewError("pricing_service_unavailable", "pricing service unavailable", http.StatusServiceUnavailable))
		return
	}

	asOf := h.clock().UTC()
	if raw := strings.TrimSpace(r.URL.Query().Get("as_of")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "as_of must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		asOf = parsed.UTC()
	}

	quote, err := h.pricing.QuoteUnit(ctx, strings.TrimSpace(chi.URLParam(r, "unitID")), asOf)
	if err != nil {
		writeServiceError(ctx, w, "unit", err)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=30")
	writeJSONResponse(w, http.StatusOK, priceQuotePayload{
		UnitID:          quote.UnitID,
		UnitPrice:       quote.UnitPrice.String(),
		EffectivePrice:  quote.EffectivePrice.String(),
		DiscountAmount:  quote.DiscountAmount.String(),
		DiscountPercent: quote.DiscountPercent.String(),
		DiscountType:    string(quote.DiscountType),
		DiscountLabel:   quote.DiscountLabel,
		RuleID:          quote.RuleID,
		AsOf:            formatTime(quote.AsOf),
	})
}
