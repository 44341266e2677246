package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanko-field/commerce/internal/platform/auth"
)

func TestAdminRoutesRequireStaff(t *testing.T) {
	env := newAPIEnv(t)

	rr := env.do(t, http.MethodGet, "/api/v1/admin/inventory/low-stock", env.token(t, "acc-1"), nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/v1/admin/inventory/low-stock", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestPromotionEndpointsDrivePublicQuote(t *testing.T) {
	env := newAPIEnv(t)
	staff := env.token(t, "staff-1", auth.RoleStaff)

	rr := env.do(t, http.MethodPost, "/api/v1/admin/promotions/windows", staff, windowRequest{
		Name:     "Flash sale",
		StartsAt: apiNow.Add(-time.Hour),
		EndsAt:   apiNow.Add(24 * time.Hour),
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var window windowPayload
	decodeBody(t, rr, &window)
	require.NotEmpty(t, window.ID)

	rr = env.do(t, http.MethodPost, "/api/v1/admin/promotions/rules", staff, ruleRequest{
		WindowID: window.ID,
		UnitID:   "unit-a",
		Type:     "percent",
		Value:    decimal.NewFromInt(20),
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var rule rulePayload
	decodeBody(t, rr, &rule)
	assert.Equal(t, "prod-shirt", rule.ProductID)

	rr = env.do(t, http.MethodGet, "/api/v1/public/units/unit-a/price", "", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var quote priceQuotePayload
	decodeBody(t, rr, &quote)
	assert.Equal(t, "40000", quote.EffectivePrice)
	assert.Equal(t, "20%", quote.DiscountLabel)
	assert.Equal(t, rule.ID, quote.RuleID)

	rr = env.do(t, http.MethodGet, "/api/v1/public/units/unit-a/price?as_of="+apiNow.Add(48*time.Hour).Format(time.RFC3339), "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var later priceQuotePayload
	decodeBody(t, rr, &later)
	assert.Equal(t, "50000", later.EffectivePrice)
	assert.Empty(t, later.RuleID)

	rr = env.do(t, http.MethodPost, "/api/v1/admin/promotions/rules", staff, ruleRequest{
		WindowID: window.ID,
		UnitID:   "unit-a",
		Type:     "amount",
		Value:    decimal.NewFromInt(1000),
	})
	require.Equal(t, http.StatusConflict, rr.Code, "overlapping rule for the same unit")

	rr = env.do(t, http.MethodGet, "/api/v1/admin/promotions/rules?unit_id=unit-a", staff, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Items []rulePayload `json:"items"`
	}
	decodeBody(t, rr, &list)
	assert.Len(t, list.Items, 1)

	rr = env.do(t, http.MethodDelete, "/api/v1/admin/promotions/rules/"+rule.ID, staff, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/v1/public/units/unit-a/price", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var restored priceQuotePayload
	decodeBody(t, rr, &restored)
	assert.Equal(t, "50000", restored.EffectivePrice)
	assert.Empty(t, restored.RuleID)
}

func TestPublicQuoteErrors(t *testing.T) {
	env := newAPIEnv(t)

	rr := env.do(t, http.MethodGet, "/api/v1/public/units/ghost/price", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/v1/public/units/unit-a/price?as_of=yesterday", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSafetyStockEndpoints(t *testing.T) {
	env := newAPIEnv(t)
	staff := env.token(t, "staff-1", auth.RoleAdmin)

	rr := env.do(t, http.MethodPut, "/api/v1/admin/inventory/unit-a/safety-stock", staff, safetyStockRequest{SafetyThreshold: 5, ReminderEnabled: true})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var setting safetyStockPayload
	decodeBody(t, rr, &setting)
	assert.Equal(t, 5, setting.SafetyThreshold)
	assert.True(t, setting.ReminderEnabled)

	rr = env.do(t, http.MethodGet, "/api/v1/admin/inventory/low-stock?limit=10", staff, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var low struct {
		Items []lowStockPayload `json:"items"`
	}
	decodeBody(t, rr, &low)
	require.Len(t, low.Items, 1)
	assert.Equal(t, "unit-a", low.Items[0].UnitID)
	assert.Equal(t, 5, low.Items[0].Stock)

	rr = env.do(t, http.MethodPut, "/api/v1/admin/inventory/unit-a/safety-stock", staff, safetyStockRequest{SafetyThreshold: -1})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/v1/admin/inventory/low-stock?limit=abc", staff, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSlidingRateLimiter(t *testing.T) {
	start := apiNow
	now := start
	limiter := NewSlidingRateLimiter(2, time.Minute, func() time.Time { return now })

	ok, _ := limiter.Allow("acc-1")
	assert.True(t, ok)
	now = start.Add(30 * time.Second)
	ok, _ = limiter.Allow("acc-1")
	assert.True(t, ok)

	now = start.Add(40 * time.Second)
	ok, retryAfter := limiter.Allow("acc-1")
	assert.False(t, ok)
	assert.Equal(t, 20*time.Second, retryAfter)
	ok, _ = limiter.Allow("acc-2")
	assert.True(t, ok, "keys are limited independently")

	now = start.Add(time.Minute)
	ok, _ = limiter.Allow("acc-1")
	assert.True(t, ok, "oldest hit left the window")

	now = start.Add(61 * time.Second)
	ok, retryAfter = limiter.Allow("acc-1")
	assert.False(t, ok, "a fixed window would have reset here")
	assert.Equal(t, 29*time.Second, retryAfter)

	assert.Nil(t, NewSlidingRateLimiter(0, time.Minute, nil))
	assert.Nil(t, NewSlidingRateLimiter(3, 0, nil))
}
