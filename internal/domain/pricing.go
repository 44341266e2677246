package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrencySymbol is appended to amount discount labels.
const DefaultCurrencySymbol = "₫"

// DiscountType tags the variant of a promotion rule.
type DiscountType string

const (
	// DiscountTypeAmount subtracts a fixed currency amount from the unit price.
	DiscountTypeAmount DiscountType = "amount"
	// DiscountTypePercent subtracts a percentage of the unit price.
	DiscountTypePercent DiscountType = "percent"
)

var (
	// ErrUnknownDiscountType is returned for tags outside the defined variants.
	ErrUnknownDiscountType = errors.New("pricing: unknown discount type")
	// ErrDiscountOutOfRange is returned when a discount value violates its variant bounds.
	ErrDiscountOutOfRange = errors.New("pricing: discount value out of range")
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

type discountCalculator struct {
	effective func(price, value decimal.Decimal) decimal.Decimal
	percent   func(price, value decimal.Decimal) decimal.Decimal
	label     func(value decimal.Decimal, symbol string) string
	validate  func(price, value decimal.Decimal) error
}

var discountCalculators = map[DiscountType]discountCalculator{
	DiscountTypeAmount: {
		effective: func(price, value decimal.Decimal) decimal.Decimal {
			return price.Sub(value)
		},
		percent: func(price, value decimal.Decimal) decimal.Decimal {
			if !price.IsPositive() {
				return hundred
			}
			return clampDecimal(value.Div(price).Mul(hundred).Round(0), zero, hundred)
		},
		label: func(value decimal.Decimal, symbol string) string {
			return value.Round(0).String() + symbol
		},
		validate: func(price, value decimal.Decimal) error {
			if !value.IsPositive() || value.GreaterThanOrEqual(price) {
				return fmt.Errorf("%w: amount must be greater than 0 and less than the unit price %s", ErrDiscountOutOfRange, price.String())
			}
			return nil
		},
	},
	DiscountTypePercent: {
		effective: func(price, value decimal.Decimal) decimal.Decimal {
			return price.Mul(hundred.Sub(value)).Div(hundred)
		},
		percent: func(_, value decimal.Decimal) decimal.Decimal {
			return value
		},
		label: func(value decimal.Decimal, _ string) string {
			return value.String() + "%"
		},
		validate: func(_, value decimal.Decimal) error {
			if !value.IsPositive() || value.GreaterThan(hundred) {
				return fmt.Errorf("%w: percent must be greater than 0 and at most 100", ErrDiscountOutOfRange)
			}
			return nil
		},
	},
}

// Valid reports whether t is a known discount variant.
func (t DiscountType) Valid() bool {
	_, ok := discountCalculators[t]
	return ok
}

// ValidateDiscount checks value against the bounds of the discount variant for a unit priced at price.
func ValidateDiscount(t DiscountType, price, value decimal.Decimal) error {
	calc, ok := discountCalculators[t]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDiscountType, t)
	}
	return calc.validate(price, value)
}

// PriceQuote is the priced view of a sellable unit at a specific instant.
type PriceQuote struct {
	UnitID          string
	UnitPrice       decimal.Decimal
	EffectivePrice  decimal.Decimal
	DiscountAmount  decimal.Decimal
	DiscountPercent decimal.Decimal
	DiscountType    DiscountType
	DiscountLabel   string
	RuleID          string
	AsOf            time.Time
}

// Discounted reports whether a promotion rule changed the price.
func (q PriceQuote) Discounted() bool {
	return q.RuleID != ""
}

// ActiveRule returns the rule whose window contains asOf, or nil.
func ActiveRule(rules []PromotionRule, asOf time.Time) *PromotionRule {
	for i := range rules {
		if rules[i].Window.Contains(asOf) {
			rule := rules[i]
			return &rule
		}
	}
	return nil
}

// QuotePrice computes the effective price of unit at asOf under rule. A nil
// rule, or a rule whose window does not contain asOf, leaves the price unchanged.
// The effective price is clamped at zero and rounded to whole currency units.
func QuotePrice(unit SellableUnit, rule *PromotionRule, asOf time.Time, currencySymbol string) PriceQuote {
	price := unit.Price.Round(0)
	quote := PriceQuote{
		UnitID:          unit.ID,
		UnitPrice:       price,
		EffectivePrice:  price,
		DiscountAmount:  zero,
		DiscountPercent: zero,
		AsOf:            asOf,
	}
	if rule == nil || !rule.Window.Contains(asOf) {
		return quote
	}
	calc, ok := discountCalculators[rule.Type]
	if !ok {
		return quote
	}
	if currencySymbol == "" {
		currencySymbol = DefaultCurrencySymbol
	}

	effective := calc.effective(price, rule.Value).Round(0)
	if effective.IsNegative() {
		effective = zero
	}

	quote.EffectivePrice = effective
	quote.DiscountAmount = price.Sub(effective)
	quote.DiscountPercent = calc.percent(price, rule.Value)
	quote.DiscountType = rule.Type
	quote.DiscountLabel = calc.label(rule.Value, currencySymbol)
	quote.RuleID = rule.ID
	return quote
}

func clampDecimal(value, lo, hi decimal.Decimal) decimal.Decimal {
	if value.LessThan(lo) {
		return lo
	}
	if value.GreaterThan(hi) {
		return hi
	}
	return value
}
