package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWindow(start time.Time, d time.Duration) PromotionWindow {
	return PromotionWindow{ID: "win-1", Name: "sale", StartsAt: start, EndsAt: start.Add(d)}
}

func TestQuotePricePercentRule(t *testing.T) {
	asOf := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	unit := SellableUnit{ID: "unit-1", Price: decimal.NewFromInt(100000)}
	rule := &PromotionRule{
		ID:     "rule-1",
		Type:   DiscountTypePercent,
		Value:  decimal.NewFromInt(20),
		Window: testWindow(asOf.Add(-time.Hour), 2*time.Hour),
	}

	quote := QuotePrice(unit, rule, asOf, "")

	assert.True(t, quote.EffectivePrice.Equal(decimal.NewFromInt(80000)), "effective %s", quote.EffectivePrice)
	assert.True(t, quote.DiscountAmount.Equal(decimal.NewFromInt(20000)))
	assert.True(t, quote.DiscountPercent.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, "20%", quote.DiscountLabel)
	assert.Equal(t, "rule-1", quote.RuleID)
	assert.True(t, quote.Discounted())
}

func TestQuotePriceAmountRule(t *testing.T) {
	asOf := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	unit := SellableUnit{ID: "unit-1", Price: decimal.NewFromInt(100000)}
	rule := &PromotionRule{
		ID:     "rule-2",
		Type:   DiscountTypeAmount,
		Value:  decimal.NewFromInt(15000),
		Window: testWindow(asOf.Add(-time.Hour), 2*time.Hour),
	}

	quote := QuotePrice(unit, rule, asOf, DefaultCurrencySymbol)

	assert.True(t, quote.EffectivePrice.Equal(decimal.NewFromInt(85000)), "effective %s", quote.EffectivePrice)
	assert.True(t, quote.DiscountPercent.Equal(decimal.NewFromInt(15)))
	assert.Equal(t, "15000₫", quote.DiscountLabel)
}

func TestQuotePriceWithoutActiveRule(t *testing.T) {
	asOf := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	unit := SellableUnit{ID: "unit-1", Price: decimal.NewFromInt(50000)}

	quote := QuotePrice(unit, nil, asOf, "")
	assert.True(t, quote.EffectivePrice.Equal(unit.Price))
	assert.True(t, quote.DiscountAmount.IsZero())
	assert.Empty(t, quote.DiscountLabel)
	assert.False(t, quote.Discounted())

	expired := &PromotionRule{
		ID:     "rule-old",
		Type:   DiscountTypePercent,
		Value:  decimal.NewFromInt(50),
		Window: testWindow(asOf.Add(-2*time.Hour), time.Hour),
	}
	quote = QuotePrice(unit, expired, asOf, "")
	assert.True(t, quote.EffectivePrice.Equal(unit.Price))
	assert.Empty(t, quote.RuleID)
}

func TestQuotePriceWindowIsHalfOpen(t *testing.T) {
	start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	unit := SellableUnit{ID: "unit-1", Price: decimal.NewFromInt(1000)}
	rule := &PromotionRule{ID: "r", Type: DiscountTypePercent, Value: decimal.NewFromInt(10), Window: testWindow(start, time.Hour)}

	assert.True(t, QuotePrice(unit, rule, start, "").Discounted())
	assert.False(t, QuotePrice(unit, rule, start.Add(time.Hour), "").Discounted())
	assert.False(t, QuotePrice(unit, rule, start.Add(-time.Nanosecond), "").Discounted())
}

func TestQuotePriceClampsAndRounds(t *testing.T) {
	asOf := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	window := testWindow(asOf.Add(-time.Hour), 2*time.Hour)

	// price lowered below an existing amount discount after the rule was written
	unit := SellableUnit{ID: "unit-1", Price: decimal.NewFromInt(10000)}
	rule := &PromotionRule{ID: "r", Type: DiscountTypeAmount, Value: decimal.NewFromInt(15000), Window: window}
	quote := QuotePrice(unit, rule, asOf, "")
	assert.True(t, quote.EffectivePrice.IsZero())
	assert.True(t, quote.DiscountPercent.Equal(decimal.NewFromInt(100)))

	unit = SellableUnit{ID: "unit-2", Price: decimal.NewFromInt(999)}
	rule = &PromotionRule{ID: "r", Type: DiscountTypePercent, Value: decimal.RequireFromString("12.5"), Window: window}
	quote = QuotePrice(unit, rule, asOf, "")
	// 999 * 0.875 = 874.125
	assert.True(t, quote.EffectivePrice.Equal(decimal.NewFromInt(874)), "effective %s", quote.EffectivePrice)
	assert.Equal(t, "12.5%", quote.DiscountLabel)

	unit = SellableUnit{ID: "unit-3", Price: decimal.NewFromInt(30000)}
	rule = &PromotionRule{ID: "r", Type: DiscountTypeAmount, Value: decimal.NewFromInt(10000), Window: window}
	quote = QuotePrice(unit, rule, asOf, "")
	assert.True(t, quote.DiscountPercent.Equal(decimal.NewFromInt(33)))
}

func TestValidateDiscount(t *testing.T) {
	price := decimal.NewFromInt(100000)

	require.NoError(t, ValidateDiscount(DiscountTypeAmount, price, decimal.NewFromInt(1)))
	require.ErrorIs(t, ValidateDiscount(DiscountTypeAmount, price, decimal.Zero), ErrDiscountOutOfRange)
	require.ErrorIs(t, ValidateDiscount(DiscountTypeAmount, price, price), ErrDiscountOutOfRange)

	require.NoError(t, ValidateDiscount(DiscountTypePercent, price, decimal.NewFromInt(100)))
	require.ErrorIs(t, ValidateDiscount(DiscountTypePercent, price, decimal.NewFromInt(101)), ErrDiscountOutOfRange)
	require.ErrorIs(t, ValidateDiscount(DiscountTypePercent, price, decimal.NewFromInt(-5)), ErrDiscountOutOfRange)

	require.ErrorIs(t, ValidateDiscount("bogus", price, decimal.NewFromInt(1)), ErrUnknownDiscountType)
}

func TestActiveRuleSelectsContainingWindow(t *testing.T) {
	asOf := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	rules := []PromotionRule{
		{ID: "past", Window: testWindow(asOf.Add(-48*time.Hour), 24*time.Hour)},
		{ID: "now", Window: testWindow(asOf.Add(-time.Hour), 2*time.Hour)},
		{ID: "future", Window: testWindow(asOf.Add(24*time.Hour), 24*time.Hour)},
	}
	rule := ActiveRule(rules, asOf)
	require.NotNil(t, rule)
	assert.Equal(t, "now", rule.ID)
	assert.Nil(t, ActiveRule(rules[:1], asOf))
}

func TestPromotionWindowOverlaps(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	a := testWindow(base, 24*time.Hour)

	assert.True(t, a.Overlaps(testWindow(base.Add(12*time.Hour), 24*time.Hour)))
	assert.True(t, a.Overlaps(testWindow(base.Add(-time.Hour), 2*time.Hour)))
	assert.False(t, a.Overlaps(testWindow(base.Add(24*time.Hour), time.Hour)), "adjacent windows do not overlap")
	assert.False(t, a.Overlaps(testWindow(base.Add(-time.Hour), time.Hour)))
}
