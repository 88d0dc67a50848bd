package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/points-ledger/ledger"
	"github.com/warp/points-ledger/pricing"
)

// =============================================================================
// RECHARGE - points in, cash recorded
// =============================================================================

// RechargeResult reports what a recharge credited and what it cost.
type RechargeResult struct {
	Entry      ledger.Entry
	Points     decimal.Decimal
	ActualCash decimal.Decimal
}

// Recharge credits points to an account and records the discounted cash
// actually paid. The cash figure is what the FIFO cost-basis ledger later
// reads back as this lot's acquisition cost.
func (e *Engine) Recharge(ctx context.Context, cfg pricing.Config, accountID ledger.AccountID, points decimal.Decimal) (*RechargeResult, error) {
	if !points.IsPositive() {
		return nil, fmt.Errorf("recharge amount must be positive, got %s", points)
	}

	cash := pricing.PriceRecharge(points, cfg.ExchangeRate, cfg.RechargeTiers)

	var result *RechargeResult
	err := e.store.WithTx(ctx, func(tx ledger.Store) error {
		acct, err := tx.Account(ctx, accountID)
		if err != nil {
			return err
		}
		entry, err := e.ledger.Post(ctx, tx, ledger.Posting{
			Account:     acct,
			Kind:        ledger.KindRecharge,
			Delta:       points,
			Description: fmt.Sprintf("recharge %s points", points),
			ActualCash:  &cash,
			At:          e.now(),
		})
		if err != nil {
			return err
		}
		result = &RechargeResult{Entry: entry, Points: points, ActualCash: cash}
		return nil
	})
	if err != nil {
		return nil, err
	}
	rechargesTotal.Inc()
	return result, nil
}
