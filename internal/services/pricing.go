package services

import (
	"github.com/avelaine/stocktrack/internal/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// maxOverrideFactor bounds how far an explicit unit-price override may
// exceed the catalog price. It guards against input typos (an extra digit),
// not against legitimate markups.
var maxOverrideFactor = decimal.NewFromInt(100)

// TaxIncluded computes the tax-included price from a tax-free price and a
// VAT percentage (0..100), rounded to 2 decimal places.
func TaxIncluded(priceTaxFree, vatPercent decimal.Decimal) decimal.Decimal {
	return priceTaxFree.Mul(decimal.NewFromInt(1).Add(vatPercent.Div(hundred))).Round(2)
}

// ApplyModification applies a single flat/relative increase/decrease to a
// base price. The result is rounded to 2 decimals and clamped to >= 0.
func ApplyModification(base decimal.Decimal, m models.PriceModification) decimal.Decimal {
	var out decimal.Decimal
	switch {
	case m.Type == models.ModificationIncrease && m.Kind == models.ModificationFlat:
		out = base.Add(m.Value)
	case m.Type == models.ModificationIncrease && m.Kind == models.ModificationRelative:
		out = base.Mul(decimal.NewFromInt(1).Add(m.Value.Div(hundred)))
	case m.Type == models.ModificationDecrease && m.Kind == models.ModificationFlat:
		out = base.Sub(m.Value)
	case m.Type == models.ModificationDecrease && m.Kind == models.ModificationRelative:
		out = base.Mul(decimal.NewFromInt(1).Sub(m.Value.Div(hundred)))
	default:
		out = base
	}
	out = out.Round(2)
	if out.LessThan(decimal.Zero) {
		return decimal.Zero.Round(2)
	}
	return out
}

// ResolveUnitPrice determines a line's effective tax-free unit price: the
// explicit override when supplied, else the catalog price, with any
// modifications applied in order.
func ResolveUnitPrice(catalogPrice decimal.Decimal, override *decimal.Decimal, mods []models.PriceModification) (decimal.Decimal, error) {
	base := catalogPrice
	if override != nil {
		if override.LessThan(decimal.Zero) {
			return decimal.Decimal{}, newValidationError("unit_price_tax_free", "must_not_be_negative")
		}
		if override.GreaterThan(catalogPrice.Mul(maxOverrideFactor)) {
			return decimal.Decimal{}, newValidationError("unit_price_tax_free", "exceeds_sanity_bound")
		}
		base = *override
	}
	for _, m := range mods {
		if !m.Value.GreaterThan(decimal.Zero) {
			return decimal.Decimal{}, newValidationError("modifications", "value_must_be_positive")
		}
		base = ApplyModification(base, m)
	}
	return base.Round(2), nil
}
