/*
Package pricing implements the pure pricing resolvers.

PURPOSE:
  Resolves settlement dates, quantities, and recharge amounts to prices
  using an explicitly passed Config. Nothing in this package touches a
  store or mutates state; the engine package performs the transactional
  side effects after these functions return.

KEY RULES:
  - Friday settlement dates use the Friday base price; no other weekday
    varies.
  - Volume discounts pick the BEST qualifying tier (largest MinOrders),
    not the first match, and apply per single submission.
  - Order totals are rounded once, to 2 decimals half-up, on the final
    product - never on intermediate per-unit values.
  - Recharge tiers match against the points amount. See PriceRecharge.

SEE ALSO:
  - config.go: Config structure and defaults
  - costbasis:  Consumes AgentPurchasePrice as the theoretical fallback
*/
package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ROUNDING HELPERS
// =============================================================================

// Round2 rounds to 2 decimal places, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// Floor4 truncates to 4 decimal places, never rounding up. Reward amounts
// use this so the platform never over-pays by a rounding artifact.
func Floor4(d decimal.Decimal) decimal.Decimal { return d.RoundDown(4) }

// =============================================================================
// PRICING RULES RESOLVER
// =============================================================================

// ResolveBasePrice returns the unit base price for a settlement date:
// the Friday price when the date falls on a Friday, otherwise the base price.
func ResolveBasePrice(settlementDate time.Time, cfg Config) decimal.Decimal {
	if settlementDate.Weekday() == time.Friday {
		return cfg.FridayPrice
	}
	return cfg.BasePrice
}

// ResolveDiscount returns the volume discount rate for a single submission's
// quantity as a fraction (0.9 = 10% off). Among all tiers whose MinOrders the
// quantity meets, the one with the LARGEST MinOrders wins. With no qualifying
// tier, or no tiers at all, the rate is 1.0.
//
// The quantity is this submission's alone; prior same-day orders do not
// accumulate into it.
func ResolveDiscount(quantity int64, tiers []VolumeTier) decimal.Decimal {
	best := decimal.NewFromInt(1)
	bestMin := int64(-1)
	for _, t := range tiers {
		if quantity >= t.MinOrders && t.MinOrders > bestMin {
			bestMin = t.MinOrders
			best = t.Discount
		}
	}
	return best
}

// Resolve combines base price and discount resolution for one submission.
func Resolve(settlementDate time.Time, quantity int64, cfg Config) (basePrice, discountRate decimal.Decimal) {
	return ResolveBasePrice(settlementDate, cfg), ResolveDiscount(quantity, cfg.DiscountTiers)
}

// =============================================================================
// ORDER PRICING ENGINE
// =============================================================================

// PriceOrder computes the discounted unit price and the order total in
// points. Both are rounded once, to 2 decimals half-up, on the final
// product; rounding the per-unit value first would compound the error
// across the quantity.
//
// Pure function: quantity and date validation, order creation, and ledger
// posting are the caller's responsibility.
func PriceOrder(basePrice, discountRate decimal.Decimal, quantity int64) (finalUnitPrice, totalPoints decimal.Decimal) {
	finalUnitPrice = Round2(basePrice.Mul(discountRate))
	totalPoints = Round2(decimal.NewFromInt(quantity).Mul(basePrice).Mul(discountRate))
	return finalUnitPrice, totalPoints
}

// =============================================================================
// RECHARGE PRICING RESOLVER
// =============================================================================

// PriceRecharge computes the cash price for purchasing pointsAmount points.
// baseCash = pointsAmount × exchangeRate; the best qualifying recharge tier
// (largest MinAmount) discounts it by DiscountPercent/100.
//
// Tier matching compares MinAmount against the POINTS amount, not the
// computed cash. Configured tiers must be set with that in mind.
func PriceRecharge(pointsAmount, exchangeRate decimal.Decimal, tiers []RechargeTier) decimal.Decimal {
	baseCash := pointsAmount.Mul(exchangeRate)

	var applicable *RechargeTier
	for i := range tiers {
		t := &tiers[i]
		if pointsAmount.GreaterThanOrEqual(t.MinAmount) {
			if applicable == nil || t.MinAmount.GreaterThan(applicable.MinAmount) {
				applicable = t
			}
		}
	}

	if applicable == nil {
		return Round2(baseCash)
	}
	discount := applicable.DiscountPercent.Div(decimal.NewFromInt(100))
	return Round2(baseCash.Mul(discount))
}

// AgentPurchasePrice computes the effective cash cost per point for a
// recharge of pointsAmount: PriceRecharge divided back by the points,
// rounded to 2 decimals. With no points it degrades to the face-value
// exchange rate.
//
// The cost-basis ledger uses this as the theoretical unit cost when FIFO
// lot history cannot cover a quantity.
func AgentPurchasePrice(pointsAmount, exchangeRate decimal.Decimal, tiers []RechargeTier) decimal.Decimal {
	if !pointsAmount.IsPositive() {
		return exchangeRate
	}
	actualCash := PriceRecharge(pointsAmount, exchangeRate, tiers)
	return Round2(actualCash.Div(pointsAmount))
}
