package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	domain "github.com/hanko-field/commerce/internal/domain"
	"github.com/hanko-field/commerce/internal/platform/cache"
	"github.com/hanko-field/commerce/internal/repositories"
)

const (
	defaultRuleCacheTTL = 30 * time.Second
	ruleCacheKeyPrefix  = "pricing:rules:"
)

// PricingEngineDeps bundles collaborators required to construct the pricing engine.
type PricingEngineDeps struct {
	Catalog    repositories.CatalogRepository
	Promotions repositories.PromotionRepository
	// Cache is optional; without it every read goes to the repository.
	Cache          cache.Cache
	CacheTTL       time.Duration
	CurrencySymbol string
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type pricingEngine struct {
	catalog    repositories.CatalogRepository
	promotions repositories.PromotionRepository
	rules      *cache.Loader[[]PromotionRule]
	symbol     string
	logger     func(context.Context, string, map[string]any)
}

// NewPricingEngine builds a PricingEngine reading rules through an optional cache.
func NewPricingEngine(deps PricingEngineDeps) (PricingEngine, error) {
	if deps.Catalog == nil {
		return nil, errors.New("pricing engine: catalog repository is required")
	}
	if deps.Promotions == nil {
		return nil, errors.New("pricing engine: promotion repository is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	symbol := strings.TrimSpace(deps.CurrencySymbol)
	if symbol == "" {
		symbol = domain.DefaultCurrencySymbol
	}

	engine := &pricingEngine{
		catalog:    deps.Catalog,
		promotions: deps.Promotions,
		symbol:     symbol,
		logger:     logger,
	}
	if deps.Cache != nil {
		ttl := deps.CacheTTL
		if ttl <= 0 {
			ttl = defaultRuleCacheTTL
		}
		engine.rules = cache.NewLoader[[]PromotionRule](deps.Cache, ttl, func(ctx context.Context, op string, err error) {
			logger(ctx, "pricing.cache_error", map[string]any{
				"op":    op,
				"error": err.Error(),
			})
		})
	}
	return engine, nil
}

// PriceOf prices unit at asOf. The selected rule is the one whose window
// contains asOf; writes guarantee there is at most one.
func (e *pricingEngine) PriceOf(ctx context.Context, unit SellableUnit, asOf time.Time, opts PriceOptions) (PriceQuote, error) {
	rules, err := e.rulesFor(ctx, unit.ID, opts)
	if err != nil {
		return PriceQuote{}, err
	}
	return domain.QuotePrice(unit, domain.ActiveRule(rules, asOf), asOf, e.symbol), nil
}

func (e *pricingEngine) QuoteUnit(ctx context.Context, unitID string, asOf time.Time) (quote PriceQuote, err error) {
	unitID = strings.TrimSpace(unitID)
	if unitID == "" {
		return PriceQuote{}, fieldError("unit_id", "unit id is required")
	}
	ctx, span := startSpan(ctx, "pricing.quote_unit", attribute.String("unit_id", unitID))
	defer func() { endSpan(span, err) }()

	unit, err := e.catalog.FindUnit(ctx, unitID)
	if err != nil {
		return PriceQuote{}, mapRepositoryError(err, "unit")
	}
	return e.PriceOf(ctx, unit, asOf, PriceOptions{})
}

// InvalidateUnits drops cached rule lists for the given units.
func (e *pricingEngine) InvalidateUnits(ctx context.Context, unitIDs ...string) error {
	if e.rules == nil || len(unitIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(unitIDs))
	for _, id := range unitIDs {
		keys = append(keys, ruleCacheKeyPrefix+id)
	}
	return e.rules.Invalidate(ctx, keys...)
}

func (e *pricingEngine) rulesFor(ctx context.Context, unitID string, opts PriceOptions) ([]PromotionRule, error) {
	load := func(ctx context.Context) ([]PromotionRule, error) {
		rules, err := e.promotions.ListRulesByUnit(ctx, unitID)
		if err != nil {
			return nil, mapRepositoryError(err, "promotion_rule")
		}
		return rules, nil
	}
	if opts.BypassCache || e.rules == nil {
		return load(ctx)
	}
	return e.rules.Get(ctx, ruleCacheKeyPrefix+unitID, load)
}
