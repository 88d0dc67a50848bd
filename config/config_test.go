package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Pricing.BasePrice != 1.0 {
		t.Errorf("BasePrice = %v, want 1.0", cfg.Pricing.BasePrice)
	}
	if cfg.Pricing.FridayPrice != 1.5 {
		t.Errorf("FridayPrice = %v, want 1.5", cfg.Pricing.FridayPrice)
	}
	if cfg.Pricing.ExchangeRate != 10.0 {
		t.Errorf("ExchangeRate = %v, want 10.0", cfg.Pricing.ExchangeRate)
	}
	if len(cfg.Pricing.DiscountTiers) != 0 {
		t.Errorf("DiscountTiers should default empty, got %d", len(cfg.Pricing.DiscountTiers))
	}
	if len(cfg.Pricing.RechargeTiers) != 2 {
		t.Fatalf("RechargeTiers = %d, want 2", len(cfg.Pricing.RechargeTiers))
	}
	if cfg.Pricing.RechargeTiers[0].MinAmount != 200 || cfg.Pricing.RechargeTiers[0].DiscountPercent != 95 {
		t.Errorf("first recharge tier = %+v, want 200/95", cfg.Pricing.RechargeTiers[0])
	}
	if cfg.Pricing.RewardRates.Direct != 0.03 || cfg.Pricing.RewardRates.Indirect != 0.01 {
		t.Errorf("reward rates = %+v, want 0.03/0.01", cfg.Pricing.RewardRates)
	}
	if cfg.Pricing.TransferLimits.MinQuantity != 10 || cfg.Pricing.TransferLimits.MaxUnitPrice != 1.5 {
		t.Errorf("transfer limits = %+v, want 10/1.5", cfg.Pricing.TransferLimits)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pricing.BasePrice != 1.0 {
		t.Errorf("BasePrice = %v, want default 1.0", cfg.Pricing.BasePrice)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[storage]
driver = "memory"

[pricing]
base_price = 2.0
exchange_rate = 0.5

[[pricing.discount_tier]]
min_orders = 10
discount = 0.98

[pricing.transfer_limits]
min_quantity = 5
max_unit_price = 3.0
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pricing.BasePrice != 2.0 {
		t.Errorf("BasePrice = %v, want 2.0", cfg.Pricing.BasePrice)
	}
	// Untouched keys keep their defaults.
	if cfg.Pricing.FridayPrice != 1.5 {
		t.Errorf("FridayPrice = %v, want default 1.5", cfg.Pricing.FridayPrice)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("Driver = %q, want memory", cfg.Storage.Driver)
	}
	if len(cfg.Pricing.DiscountTiers) != 1 {
		t.Fatalf("DiscountTiers = %d, want 1", len(cfg.Pricing.DiscountTiers))
	}
	if cfg.Pricing.TransferLimits.MinQuantity != 5 {
		t.Errorf("MinQuantity = %v, want 5", cfg.Pricing.TransferLimits.MinQuantity)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[pricing]
base_price = -1.0
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected validation error for negative base price")
	}
}

func TestPricingConfigConversion(t *testing.T) {
	cfg := Default()
	p := cfg.PricingConfig()

	if !p.BasePrice.Equal(p.BasePrice.Round(2)) {
		t.Errorf("BasePrice not exact: %s", p.BasePrice)
	}
	if p.BasePrice.String() != "1" {
		t.Errorf("BasePrice = %s, want 1", p.BasePrice)
	}
	if p.RewardRates.Direct.String() != "0.03" {
		t.Errorf("Direct = %s, want 0.03", p.RewardRates.Direct)
	}
	if len(p.RechargeTiers) != 2 {
		t.Fatalf("RechargeTiers = %d, want 2", len(p.RechargeTiers))
	}
	if p.RechargeTiers[1].DiscountPercent.String() != "98" {
		t.Errorf("tier percent = %s, want 98", p.RechargeTiers[1].DiscountPercent)
	}
}
