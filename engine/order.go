package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/points-ledger/ledger"
	"github.com/warp/points-ledger/pricing"
)

// =============================================================================
// ORDER CREATION - deduction and reward distribution in one transaction
// =============================================================================

// OrderInput is one order submission. Quantity counts identical order
// lines: the volume discount is resolved against THIS submission only,
// never against the account's historical volume.
type OrderInput struct {
	AccountID      ledger.AccountID
	SettlementDate time.Time
	Quantity       int64
}

// OrderResult reports the priced order and the rewards it triggered.
type OrderResult struct {
	Order   ledger.Order
	Entry   ledger.Entry
	Rewards []ledger.Entry
}

// CreateOrder prices a submission, deducts the points, and credits the
// two-level override rewards, all atomically. The order starts pending;
// review only changes its status, the ledger writes happen here.
func (e *Engine) CreateOrder(ctx context.Context, cfg pricing.Config, in OrderInput) (*OrderResult, error) {
	if in.Quantity <= 0 {
		return nil, fmt.Errorf("order quantity must be positive, got %d", in.Quantity)
	}
	today := dateOnly(e.now())
	if dateOnly(in.SettlementDate).Before(today) {
		return nil, fmt.Errorf("settlement date %s is in the past", in.SettlementDate.Format("2006-01-02"))
	}

	base, rate := pricing.Resolve(in.SettlementDate, in.Quantity, cfg)
	finalPrice, total := pricing.PriceOrder(base, rate, in.Quantity)

	var result *OrderResult
	err := e.store.WithTx(ctx, func(tx ledger.Store) error {
		acct, err := tx.Account(ctx, in.AccountID)
		if err != nil {
			return err
		}

		entry, err := e.ledger.Post(ctx, tx, ledger.Posting{
			Account:     acct,
			Kind:        ledger.KindOrderDeduction,
			Delta:       total.Neg(),
			Description: fmt.Sprintf("order of %d at %s", in.Quantity, finalPrice),
			At:          e.now(),
		})
		if err != nil {
			return err
		}

		order := ledger.Order{
			ID:             ledger.OrderID(uuid.NewString()),
			AccountID:      acct.ID,
			SettlementDate: in.SettlementDate,
			BasePrice:      base,
			DiscountRate:   rate,
			FinalPrice:     finalPrice,
			Quantity:       in.Quantity,
			TotalPoints:    total,
			Status:         ledger.OrderPending,
			CreatedAt:      e.now(),
		}
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}

		rewards, err := e.distributeRewards(ctx, tx, acct, total, cfg.RewardRates)
		if err != nil {
			return err
		}

		result = &OrderResult{Order: order, Entry: entry, Rewards: rewards}
		return nil
	})
	if err != nil {
		ordersTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	ordersTotal.WithLabelValues("created").Inc()
	return result, nil
}

// =============================================================================
// REWARD DISTRIBUTION - two levels, agent-role uplines only
// =============================================================================

// distributeRewards credits the direct and indirect override rewards for
// an order total. Only agent-role, non-platform uplines qualify, and an
// ineligible upline ends the chain: the indirect reward is only reachable
// through an eligible direct parent.
// Reward amounts are truncated to 4 decimal places, never rounded up.
func (e *Engine) distributeRewards(ctx context.Context, tx ledger.Store, buyer ledger.Account, total decimal.Decimal, rates pricing.RewardRates) ([]ledger.Entry, error) {
	levels := []struct {
		label string
		rate  decimal.Decimal
	}{
		{"direct", rates.Direct},
		{"indirect", rates.Indirect},
	}

	var rewards []ledger.Entry
	current := buyer
	for _, level := range levels {
		if current.ParentID == nil {
			break
		}
		parent, err := tx.Account(ctx, *current.ParentID)
		if err != nil {
			if ledger.IsNotFound(err) {
				break
			}
			return nil, err
		}
		current = parent

		if parent.Role != ledger.RoleAgent || parent.IsPlatformRoot() {
			break
		}
		amount := pricing.Floor4(total.Mul(level.rate))
		if !amount.IsPositive() {
			continue
		}
		entry, err := e.ledger.Post(ctx, tx, ledger.Posting{
			Account:      parent,
			Kind:         ledger.KindReward,
			Delta:        amount,
			Description:  fmt.Sprintf("%s referral reward from %s", level.label, buyer.Name),
			Counterparty: &buyer.ID,
			At:           e.now(),
		})
		if err != nil {
			return nil, err
		}
		rewards = append(rewards, entry)
		rewardsDistributed.WithLabelValues(level.label).Inc()
	}
	return rewards, nil
}

// =============================================================================
// REVIEW AND EXPORT
// =============================================================================

// ReviewOrder moves a pending order to approved or rejected. Rejection
// refunds the deducted points; the original deduction entry stays in the
// ledger and the refund appears as its own entry.
func (e *Engine) ReviewOrder(ctx context.Context, orderID ledger.OrderID, approve bool) error {
	return e.store.WithTx(ctx, func(tx ledger.Store) error {
		order, err := tx.Order(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != ledger.OrderPending {
			return fmt.Errorf("order %s is %s, only pending orders can be reviewed", orderID, order.Status)
		}

		if approve {
			return tx.UpdateOrderStatus(ctx, orderID, ledger.OrderApproved)
		}

		acct, err := tx.Account(ctx, order.AccountID)
		if err != nil {
			return err
		}
		if _, err := e.ledger.Post(ctx, tx, ledger.Posting{
			Account:     acct,
			Kind:        ledger.KindOrderDeduction,
			Delta:       order.TotalPoints, // positive: refund
			Description: fmt.Sprintf("refund for rejected order %s", orderID),
			At:          e.now(),
		}); err != nil {
			return err
		}
		return tx.UpdateOrderStatus(ctx, orderID, ledger.OrderRejected)
	})
}

// MarkExported flags approved orders as delivered to the settlement
// export.
func (e *Engine) MarkExported(ctx context.Context, orderIDs []ledger.OrderID) error {
	return e.store.WithTx(ctx, func(tx ledger.Store) error {
		for _, id := range orderIDs {
			if err := tx.MarkOrderExported(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// Orders lists an account's orders, newest first.
func (e *Engine) Orders(ctx context.Context, accountID ledger.AccountID) ([]ledger.Order, error) {
	return e.store.Orders(ctx, accountID)
}

// dateOnly truncates to the UTC calendar day, so zoned inputs compare on
// one calendar.
func dateOnly(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
