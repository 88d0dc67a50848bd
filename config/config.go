/*
Package config loads the service configuration from TOML.

PURPOSE:
  One file drives everything an operator tunes: storage backend, pricing
  rules, reward rates, and transfer limits. Load returns defaults merged
  with whatever the file overrides; a missing file is not an error, so a
  bare binary runs with the stock rules.

  Pricing values are declared as floats in TOML for operator convenience
  and converted to decimals at the boundary; nothing downstream ever
  touches a float.
*/
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"

	"github.com/warp/points-ledger/pricing"
)

// =============================================================================
// CONFIG SCHEMA
// =============================================================================

type Config struct {
	Server  ServerConfig  `toml:"server"`
	Storage StorageConfig `toml:"storage"`
	Pricing PricingConfig `toml:"pricing"`
}

type ServerConfig struct {
	MetricsAddr string `toml:"metrics_addr"`
}

type StorageConfig struct {
	// Driver selects the backend: "sqlite", "postgres", or "memory".
	Driver string `toml:"driver"`
	// DSN is the sqlite path or postgres connection string.
	DSN string `toml:"dsn"`
}

type PricingConfig struct {
	BasePrice    float64 `toml:"base_price"`
	FridayPrice  float64 `toml:"friday_price"`
	ExchangeRate float64 `toml:"exchange_rate"`

	DiscountTiers []DiscountTier `toml:"discount_tier"`
	RechargeTiers []RechargeTier `toml:"recharge_tier"`

	RewardRates    RewardRates    `toml:"reward_rates"`
	TransferLimits TransferLimits `toml:"transfer_limits"`
}

type DiscountTier struct {
	MinOrders int64   `toml:"min_orders"`
	Discount  float64 `toml:"discount"`
}

type RechargeTier struct {
	MinAmount       float64 `toml:"min_amount"`
	DiscountPercent float64 `toml:"discount_percent"`
}

type RewardRates struct {
	Direct   float64 `toml:"direct"`
	Indirect float64 `toml:"indirect"`
}

type TransferLimits struct {
	MinQuantity  float64 `toml:"min_quantity"`
	MaxUnitPrice float64 `toml:"max_unit_price"`
}

// =============================================================================
// DEFAULTS AND LOADING
// =============================================================================

// Default returns the stock configuration: base price 1.0 with a 1.5
// Friday price, 10:1 cash-to-point exchange, no volume tiers, 3%/1%
// reward rates, and the standard recharge tiers.
func Default() Config {
	return Config{
		Server:  ServerConfig{MetricsAddr: "127.0.0.1:9464"},
		Storage: StorageConfig{Driver: "sqlite", DSN: "points.db"},
		Pricing: PricingConfig{
			BasePrice:    1.0,
			FridayPrice:  1.5,
			ExchangeRate: 10.0,
			RechargeTiers: []RechargeTier{
				{MinAmount: 200, DiscountPercent: 95},
				{MinAmount: 100, DiscountPercent: 98},
			},
			RewardRates:    RewardRates{Direct: 0.03, Indirect: 0.01},
			TransferLimits: TransferLimits{MinQuantity: 10, MaxUnitPrice: 1.5},
		},
	}
}

// Load reads the TOML file at path over the defaults. A missing file
// yields the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations that would break pricing arithmetic.
func (c Config) Validate() error {
	p := c.Pricing
	if p.BasePrice <= 0 || p.FridayPrice <= 0 {
		return fmt.Errorf("prices must be positive (base %v, friday %v)", p.BasePrice, p.FridayPrice)
	}
	if p.ExchangeRate <= 0 {
		return fmt.Errorf("exchange_rate must be positive, got %v", p.ExchangeRate)
	}
	for _, t := range p.DiscountTiers {
		if t.MinOrders <= 0 || t.Discount <= 0 || t.Discount > 1 {
			return fmt.Errorf("discount tier min_orders=%d discount=%v out of range", t.MinOrders, t.Discount)
		}
	}
	for _, t := range p.RechargeTiers {
		if t.MinAmount <= 0 || t.DiscountPercent <= 0 || t.DiscountPercent > 100 {
			return fmt.Errorf("recharge tier min_amount=%v discount_percent=%v out of range", t.MinAmount, t.DiscountPercent)
		}
	}
	if p.RewardRates.Direct < 0 || p.RewardRates.Indirect < 0 {
		return fmt.Errorf("reward rates must not be negative")
	}
	if p.TransferLimits.MinQuantity <= 0 || p.TransferLimits.MaxUnitPrice <= 0 {
		return fmt.Errorf("transfer limits must be positive")
	}
	switch c.Storage.Driver {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}

// =============================================================================
// DECIMAL CONVERSION
// =============================================================================

// PricingConfig converts the float TOML view into the exact-decimal form
// the pricing engine consumes.
func (c Config) PricingConfig() pricing.Config {
	p := c.Pricing
	out := pricing.Config{
		BasePrice:    decimal.NewFromFloat(p.BasePrice),
		FridayPrice:  decimal.NewFromFloat(p.FridayPrice),
		ExchangeRate: decimal.NewFromFloat(p.ExchangeRate),
		RewardRates: pricing.RewardRates{
			Direct:   decimal.NewFromFloat(p.RewardRates.Direct),
			Indirect: decimal.NewFromFloat(p.RewardRates.Indirect),
		},
		TransferLimits: pricing.TransferLimits{
			MinQuantity:  decimal.NewFromFloat(p.TransferLimits.MinQuantity),
			MaxUnitPrice: decimal.NewFromFloat(p.TransferLimits.MaxUnitPrice),
		},
	}
	for _, t := range p.DiscountTiers {
		out.DiscountTiers = append(out.DiscountTiers, pricing.VolumeTier{
			MinOrders: t.MinOrders,
			Discount:  decimal.NewFromFloat(t.Discount),
		})
	}
	for _, t := range p.RechargeTiers {
		out.RechargeTiers = append(out.RechargeTiers, pricing.RechargeTier{
			MinAmount:       decimal.NewFromFloat(t.MinAmount),
			DiscountPercent: decimal.NewFromFloat(t.DiscountPercent),
		})
	}
	return out
}
