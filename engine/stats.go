package engine

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/points-ledger/ledger"
)

// =============================================================================
// STATISTICS - read-only summaries over the ledger
// =============================================================================

// RewardSummary splits an account's reward income by referral level, with
// an all-time and a current-day view.
type RewardSummary struct {
	DirectTotal   decimal.Decimal
	IndirectTotal decimal.Decimal
	DirectToday   decimal.Decimal
	IndirectToday decimal.Decimal
	Count         int
}

// Rewards summarizes an account's referral reward entries.
func (e *Engine) Rewards(ctx context.Context, accountID ledger.AccountID) (RewardSummary, error) {
	entries, err := e.store.EntriesByKind(ctx, accountID, ledger.KindReward)
	if err != nil {
		return RewardSummary{}, err
	}
	today := dateOnly(e.now())
	s := RewardSummary{Count: len(entries)}
	for _, en := range entries {
		isToday := !dateOnly(en.CreatedAt).Before(today)
		// "indirect ..." must not match the direct bucket, so the check
		// is a strict prefix test.
		if strings.HasPrefix(en.Description, "indirect") {
			s.IndirectTotal = s.IndirectTotal.Add(en.Delta)
			if isToday {
				s.IndirectToday = s.IndirectToday.Add(en.Delta)
			}
		} else if strings.HasPrefix(en.Description, "direct") {
			s.DirectTotal = s.DirectTotal.Add(en.Delta)
			if isToday {
				s.DirectToday = s.DirectToday.Add(en.Delta)
			}
		}
	}
	return s, nil
}

// OrderStats aggregates an account's order history. The Today and Month
// windows are keyed on the settlement date, not the submission time.
type OrderStats struct {
	Pending     int
	Approved    int
	Rejected    int
	Exported    int
	TotalQty    int64
	TotalPoints decimal.Decimal
	TodayQty    int64
	MonthQty    int64
}

// OrderStatistics tallies an account's orders by status. Rejected orders
// count toward the status tally but not toward quantity or points, since
// their deduction was refunded.
func (e *Engine) OrderStatistics(ctx context.Context, accountID ledger.AccountID) (OrderStats, error) {
	orders, err := e.store.Orders(ctx, accountID)
	if err != nil {
		return OrderStats{}, err
	}
	now := e.now()
	today := dateOnly(now)
	var s OrderStats
	for _, o := range orders {
		switch o.Status {
		case ledger.OrderPending:
			s.Pending++
		case ledger.OrderApproved:
			s.Approved++
		case ledger.OrderRejected:
			s.Rejected++
			continue
		}
		if o.Exported {
			s.Exported++
		}
		s.TotalQty += o.Quantity
		s.TotalPoints = s.TotalPoints.Add(o.TotalPoints)
		if dateOnly(o.SettlementDate).Equal(today) {
			s.TodayQty += o.Quantity
		}
		settled := o.SettlementDate.UTC()
		if settled.Year() == now.UTC().Year() && settled.Month() == now.UTC().Month() {
			s.MonthQty += o.Quantity
		}
	}
	return s, nil
}

// RechargeStats aggregates an account's recharge history.
type RechargeStats struct {
	Count       int
	TotalPoints decimal.Decimal
	TotalCash   decimal.Decimal
}

// RechargeStatistics tallies an account's recharges. Entries predating
// cash tracking contribute points but no cash.
func (e *Engine) RechargeStatistics(ctx context.Context, accountID ledger.AccountID) (RechargeStats, error) {
	entries, err := e.store.EntriesByKind(ctx, accountID, ledger.KindRecharge)
	if err != nil {
		return RechargeStats{}, err
	}
	s := RechargeStats{Count: len(entries)}
	for _, en := range entries {
		s.TotalPoints = s.TotalPoints.Add(en.Delta)
		if en.ActualCash != nil {
			s.TotalCash = s.TotalCash.Add(*en.ActualCash)
		}
	}
	return s, nil
}

// Statement returns an account's full entry history in ledger order.
func (e *Engine) Statement(ctx context.Context, accountID ledger.AccountID) ([]ledger.Entry, error) {
	return e.store.Entries(ctx, accountID)
}
