package pricing

import "github.com/shopspring/decimal"

// =============================================================================
// PRICING CONFIG - Read-only input to every pricing call
// =============================================================================

// Config carries all pricing knobs. It is an explicitly passed value: the
// engine accepts it per call, and the caller owns loading and refreshing it
// (see the config package). The resolvers never cache or mutate it.
type Config struct {
	// BasePrice is the unit price on ordinary weekdays; FridayPrice applies
	// when the settlement date is a Friday.
	BasePrice   decimal.Decimal
	FridayPrice decimal.Decimal

	// ExchangeRate is the cash price per point at face value, before any
	// recharge discount.
	ExchangeRate decimal.Decimal

	// DiscountTiers are the per-submission volume discounts for orders.
	DiscountTiers []VolumeTier

	// RechargeTiers discount the cash price of large recharges.
	RechargeTiers []RechargeTier

	RewardRates    RewardRates
	TransferLimits TransferLimits
}

// VolumeTier grants Discount (a fraction, 0.9 = 10% off) to submissions of
// at least MinOrders units.
type VolumeTier struct {
	MinOrders int64
	Discount  decimal.Decimal
}

// RechargeTier discounts recharges of at least MinAmount points to
// DiscountPercent percent of the face-value cash (95 = pay 95%).
type RechargeTier struct {
	MinAmount       decimal.Decimal
	DiscountPercent decimal.Decimal
}

// RewardRates are the override reward fractions of an order's total points.
type RewardRates struct {
	Direct   decimal.Decimal // one level up
	Indirect decimal.Decimal // two levels up
}

// TransferLimits bound peer-to-peer transfers.
type TransferLimits struct {
	MinQuantity  decimal.Decimal // fewest points per transfer
	MaxUnitPrice decimal.Decimal // highest cash price per point
}
