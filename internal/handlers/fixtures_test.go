package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/commerce/internal/domain"
	"github.com/hanko-field/commerce/internal/platform/auth"
	"github.com/hanko-field/commerce/internal/platform/idempotency"
	"github.com/hanko-field/commerce/internal/repositories/memory"
	"github.com/hanko-field/commerce/internal/services"
)

const testSigningKey = "handlers-test-signing-key"

var apiNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

type apiEnv struct {
	registry *memory.Registry
	router   chi.Router
	authn    *auth.Authenticator
}

func newAPIEnv(t *testing.T, orderOpts ...OrderHandlersOption) *apiEnv {
	t.Helper()
	clock := func() time.Time { return apiNow }
	reg := memory.NewRegistry()

	events, err := services.NewEventWriter(reg.Outbox(), "", clock)
	require.NoError(t, err)
	inventory, err := services.NewInventoryService(services.InventoryServiceDeps{Inventory: reg.Inventory(), Events: events, Clock: clock})
	require.NoError(t, err)
	pricing, err := services.NewPricingEngine(services.PricingEngineDeps{Catalog: reg.Catalog(), Promotions: reg.Promotions()})
	require.NoError(t, err)
	promotions, err := services.NewPromotionService(services.PromotionServiceDeps{
		Promotions: reg.Promotions(), Catalog: reg.Catalog(), UnitOfWork: reg, Pricing: pricing, Clock: clock,
	})
	require.NoError(t, err)
	counters, err := services.NewCounterService(services.CounterServiceDeps{Repository: reg.Counters(), Invoices: reg.Orders(), Clock: clock})
	require.NoError(t, err)
	addresses, err := services.NewAddressService(services.AddressServiceDeps{Addresses: reg.Addresses(), UnitOfWork: reg, Clock: clock})
	require.NoError(t, err)
	carts, err := services.NewCartService(services.CartServiceDeps{
		Carts: reg.Carts(), Catalog: reg.Catalog(), Events: events, UnitOfWork: reg, Clock: clock,
	})
	require.NoError(t, err)
	machine, err := services.NewOrderStateMachine(services.OrderStateMachineDeps{
		Orders: reg.Orders(), Catalog: reg.Catalog(), Inventory: inventory, Notifications: reg.Notifications(),
		Events: events, UnitOfWork: reg, Clock: clock,
	})
	require.NoError(t, err)
	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders: reg.Orders(), Payments: reg.Payments(), Catalog: reg.Catalog(), Addresses: reg.Addresses(),
		UnitOfWork: reg, Inventory: inventory, Pricing: pricing, Counters: counters, AddressBook: addresses,
		StateMachine: machine, Carts: carts, Clock: clock,
	})
	require.NoError(t, err)

	authn, err := auth.NewAuthenticator(testSigningKey, auth.WithClock(clock))
	require.NoError(t, err)

	opts := append([]OrderHandlersOption{
		WithPlacementMiddlewares(idempotency.Middleware(idempotency.NewMemoryStore(), idempotency.WithClock(clock))),
	}, orderOpts...)

	router := NewRouter(
		WithPublicRoutes(NewPublicHandlers(pricing, WithPublicClock(clock)).Routes),
		WithMeRoutes(NewMeHandlers(authn, addresses).Routes),
		WithCartRoutes(NewCartHandlers(authn, carts).Routes),
		WithOrderRoutes(NewOrderHandlers(authn, orders, machine, opts...).Routes),
		WithAdminRoutes(NewAdminHandlers(authn, promotions, inventory).Routes),
	)

	reg.SeedProduct(domain.Product{ID: "prod-shirt", Name: "Áo thun"})
	reg.SeedUnit(domain.SellableUnit{
		ID: "unit-a", ProductID: "prod-shirt", Name: "Đỏ / M",
		Price: decimal.NewFromInt(50000), Stock: 5, IsDefault: true,
	})
	reg.SeedUnit(domain.SellableUnit{
		ID: "unit-b", ProductID: "prod-shirt", Name: "Xanh / L",
		Price: decimal.NewFromInt(30000), Stock: 1,
	})

	return &apiEnv{registry: reg, router: router, authn: authn}
}

func (e *apiEnv) token(t *testing.T, uid string, roles ...string) string {
	t.Helper()
	token, err := e.authn.Issue(uid, roles, time.Hour)
	require.NoError(t, err)
	return token
}

// do sends body as JSON, adding the bearer token when set. headers are name/value pairs.
func (e *apiEnv) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), dst), rr.Body.String())
}

func placeOrderBody(lines ...orderLineRequest) placeOrderRequest {
	return placeOrderRequest{
		ShippingAddress: addressRequest{
			FullName:      "Nguyễn Văn A",
			PhoneNumber:   "0901 234 567",
			StreetAddress: "12 Lý Thường Kiệt",
			District:      "Quận 10",
			City:          "Hồ Chí Minh",
		},
		Lines:         lines,
		PaymentMethod: "cod",
	}
}
