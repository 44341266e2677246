package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanko-field/commerce/internal/platform/auth"
)

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
	Lines  []struct {
		Code      string `json:"code"`
		UnitID    string `json:"unit_id"`
		Requested int    `json:"requested"`
		Available int    `json:"available"`
	} `json:"lines"`
	From string `json:"from"`
	To   string `json:"to"`
}

func TestPlaceOrderAndReadBack(t *testing.T) {
	env := newAPIEnv(t)
	buyer := env.token(t, "acc-1")

	rr := env.do(t, http.MethodPost, "/api/v1/orders", buyer, placeOrderBody(orderLineRequest{UnitID: "unit-a", Quantity: 2}))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created orderResponse
	decodeBody(t, rr, &created)
	assert.Equal(t, "VN-202503010001", created.Order.InvoiceCode)
	assert.Equal(t, int64(100000), created.Order.TotalPrice)
	assert.Equal(t, "pending", created.Order.Status)
	require.Len(t, created.Order.Lines, 1)
	assert.Equal(t, "50000", created.Order.Lines[0].DiscountPrice)
	require.NotNil(t, created.Order.Payment)
	assert.Equal(t, "cod", created.Order.Payment.Method)
	assert.Equal(t, "/api/v1/orders/"+created.Order.ID, rr.Header().Get("Location"))

	path := "/api/v1/orders/" + created.Order.ID
	rr = env.do(t, http.MethodGet, path, buyer, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var fetched orderResponse
	decodeBody(t, rr, &fetched)
	assert.Equal(t, created.Order.ID, fetched.Order.ID)
	require.Len(t, fetched.Order.History, 1)
	assert.Equal(t, "pending", fetched.Order.History[0].NewStatus)

	rr = env.do(t, http.MethodGet, path, env.token(t, "acc-2"), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code, "other customers cannot see the order")

	rr = env.do(t, http.MethodGet, path, env.token(t, "staff-1", auth.RoleStaff), nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestPlaceOrderRequiresAuthentication(t *testing.T) {
	env := newAPIEnv(t)

	rr := env.do(t, http.MethodPost, "/api/v1/orders", "", placeOrderBody(orderLineRequest{UnitID: "unit-a", Quantity: 1}))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Zero(t, env.registry.OrderCount())
}

func TestPlaceOrderReportsLineErrors(t *testing.T) {
	env := newAPIEnv(t)

	rr := env.do(t, http.MethodPost, "/api/v1/orders", env.token(t, "acc-1"), placeOrderBody(
		orderLineRequest{UnitID: "unit-a", Quantity: 2},
		orderLineRequest{UnitID: "unit-b", Quantity: 2},
	))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())

	var body errorBody
	decodeBody(t, rr, &body)
	assert.Equal(t, "validation_failed", body.Error)
	require.Len(t, body.Lines, 2)
	assert.Empty(t, body.Lines[0].Code)
	assert.Equal(t, "insufficient_stock", body.Lines[1].Code)
	assert.Equal(t, "unit-b", body.Lines[1].UnitID)
	assert.Equal(t, 2, body.Lines[1].Requested)
	assert.Equal(t, 1, body.Lines[1].Available)
	assert.Zero(t, env.registry.OrderCount())
}

func TestPlaceOrderValidatesFields(t *testing.T) {
	env := newAPIEnv(t)

	req := placeOrderBody(orderLineRequest{UnitID: "unit-a", Quantity: 1})
	req.PaymentMethod = "momo"
	rr := env.do(t, http.MethodPost, "/api/v1/orders", env.token(t, "acc-1"), req)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	var body errorBody
	decodeBody(t, rr, &body)
	assert.Contains(t, body.Fields, "transaction_id")
}

func TestPlaceOrderRejectsMalformedBody(t *testing.T) {
	env := newAPIEnv(t)

	rr := env.do(t, http.MethodPost, "/api/v1/orders", env.token(t, "acc-1"), "not an object")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPlaceOrderReplaysIdempotentRequests(t *testing.T) {
	env := newAPIEnv(t)
	buyer := env.token(t, "acc-1")
	body := placeOrderBody(orderLineRequest{UnitID: "unit-a", Quantity: 1})

	first := env.do(t, http.MethodPost, "/api/v1/orders", buyer, body, "Idempotency-Key", "key-1")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	second := env.do(t, http.MethodPost, "/api/v1/orders", buyer, body, "Idempotency-Key", "key-1")
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("X-Idempotent-Replay"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, env.registry.OrderCount())

	body.Lines[0].Quantity = 2
	conflict := env.do(t, http.MethodPost, "/api/v1/orders", buyer, body, "Idempotency-Key", "key-1")
	assert.Equal(t, http.StatusConflict, conflict.Code)
}

func TestPlaceOrderRateLimit(t *testing.T) {
	limiter := NewSlidingRateLimiter(1, time.Minute, func() time.Time { return apiNow })
	env := newAPIEnv(t, WithPlacementRateLimit(limiter))
	buyer := env.token(t, "acc-1")

	rr := env.do(t, http.MethodPost, "/api/v1/orders", buyer, placeOrderBody(orderLineRequest{UnitID: "unit-a", Quantity: 1}))
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/v1/orders", buyer, placeOrderBody(orderLineRequest{UnitID: "unit-a", Quantity: 1}))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	ok, _ := limiter.Allow("acc-1")
	assert.True(t, ok, "placement keys do not consume other routes' budget")

	rr = env.do(t, http.MethodPost, "/api/v1/orders", env.token(t, "acc-2"), placeOrderBody(orderLineRequest{UnitID: "unit-a", Quantity: 1}))
	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestUpdateOrderLineQuantity(t *testing.T) {
	env := newAPIEnv(t)
	buyer := env.token(t, "acc-1")

	rr := env.do(t, http.MethodPost, "/api/v1/orders", buyer, placeOrderBody(orderLineRequest{UnitID: "unit-a", Quantity: 1}))
	require.Equal(t, http.StatusCreated, rr.Code)
	var created orderResponse
	decodeBody(t, rr, &created)
	linePath := "/api/v1/orders/" + created.Order.ID + "/lines/" + created.Order.Lines[0].ID

	rr = env.do(t, http.MethodPatch, linePath, buyer, updateLineRequest{Quantity: 3})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var updated orderResponse
	decodeBody(t, rr, &updated)
	assert.Equal(t, int64(150000), updated.Order.TotalPrice)
	assert.Equal(t, int64(150000), updated.Order.Payment.Amount)

	rr = env.do(t, http.MethodPatch, linePath, buyer, updateLineRequest{Quantity: 9})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = env.do(t, http.MethodPatch, linePath, env.token(t, "acc-2"), updateLineRequest{Quantity: 2})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestOrderStatusTransitions(t *testing.T) {
	env := newAPIEnv(t)
	buyer := env.token(t, "acc-1")
	staff := env.token(t, "staff-1", auth.RoleStaff)

	rr := env.do(t, http.MethodPost, "/api/v1/orders", buyer, placeOrderBody(orderLineRequest{UnitID: "unit-a", Quantity: 1}))
	require.Equal(t, http.StatusCreated, rr.Code)
	var created orderResponse
	decodeBody(t, rr, &created)
	statusPath := "/api/v1/orders/" + created.Order.ID + "/status"

	rr = env.do(t, http.MethodPost, statusPath, buyer, transitionRequest{Status: "packaging"})
	assert.Equal(t, http.StatusForbidden, rr.Code, "customers cannot move orders")

	rr = env.do(t, http.MethodPost, statusPath, staff, transitionRequest{Status: "packaging"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var moved transitionResponse
	decodeBody(t, rr, &moved)
	assert.Equal(t, "packaging", moved.Order.Status)
	assert.Equal(t, "pending", moved.History.PreviousStatus)
	assert.Equal(t, "staff-1", moved.History.ActorID)

	rr = env.do(t, http.MethodPost, statusPath, staff, transitionRequest{Status: "pending"})
	require.Equal(t, http.StatusConflict, rr.Code)
	var body errorBody
	decodeBody(t, rr, &body)
	assert.Equal(t, "invalid_transition", body.Error)
	assert.Equal(t, "packaging", body.From)
	assert.Equal(t, "pending", body.To)

	rr = env.do(t, http.MethodPost, "/api/v1/orders/ord_missing/status", staff, transitionRequest{Status: "packaging"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
