package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/points-ledger/costbasis"
	"github.com/warp/points-ledger/ledger"
	"github.com/warp/points-ledger/pricing"
)

// =============================================================================
// TRANSFER - peer-to-peer points with a FIFO price floor
// =============================================================================

// TransferInput is one transfer request. Confirmed acknowledges the
// below-cost warning from a previous attempt; a first attempt leaves it
// false.
type TransferInput struct {
	SenderID       ledger.AccountID
	RecipientPhone string
	Quantity       decimal.Decimal
	UnitPrice      decimal.Decimal
	PayPassword    string
	Confirmed      bool
}

// TransferResult reports the paired ledger entries of a completed transfer.
type TransferResult struct {
	Out ledger.Entry
	In  ledger.Entry
}

// ExecuteTransfer validates and executes a transfer. The checks run in a
// fixed order so the caller always sees the same first failure for the
// same request:
//
//  1. quantity at or above the configured minimum
//  2. unit price at or below the configured ceiling
//  3. unit price not below the sender's FIFO acquisition cost, unless the
//     sender has confirmed the below-cost sale
//  4. pay password
//  5. sufficient balance
//  6. recipient exists and is not the sender
//
// Step 3 is re-askable: the returned ConfirmationRequiredError carries the
// computed acquisition cost, and resubmitting with Confirmed set passes.
func (e *Engine) ExecuteTransfer(ctx context.Context, cfg pricing.Config, in TransferInput) (*TransferResult, error) {
	var result *TransferResult
	err := e.store.WithTx(ctx, func(tx ledger.Store) error {
		sender, err := tx.Account(ctx, in.SenderID)
		if err != nil {
			return err
		}

		if in.Quantity.LessThan(cfg.TransferLimits.MinQuantity) {
			return &ledger.PolicyViolationError{
				Violation: ledger.ErrBelowMinQuantity,
				Limit:     cfg.TransferLimits.MinQuantity,
				Actual:    in.Quantity,
			}
		}
		if in.UnitPrice.GreaterThan(cfg.TransferLimits.MaxUnitPrice) {
			return &ledger.PolicyViolationError{
				Violation: ledger.ErrAbovePriceCeiling,
				Limit:     cfg.TransferLimits.MaxUnitPrice,
				Actual:    in.UnitPrice,
			}
		}

		if !in.Confirmed {
			purchase, err := e.purchaseUnitPrice(ctx, tx, sender, in.Quantity, cfg)
			if err != nil {
				return err
			}
			if in.UnitPrice.LessThan(purchase) {
				return &ledger.ConfirmationRequiredError{PurchaseUnitPrice: purchase}
			}
		}

		if !e.creds.Verify(sender.PayPasswordHash, in.PayPassword) {
			return ledger.ErrBadCredential
		}

		if sender.Balance.LessThan(in.Quantity) {
			return &ledger.InsufficientBalanceError{
				AccountID: sender.ID,
				Available: sender.Balance,
				Requested: in.Quantity,
			}
		}

		recipient, err := tx.AccountByPhone(ctx, in.RecipientPhone)
		if err != nil {
			if ledger.IsNotFound(err) {
				return ledger.ErrRecipientNotFound
			}
			return err
		}
		if recipient.ID == sender.ID {
			return ledger.ErrSelfTransfer
		}

		out, err := e.ledger.Post(ctx, tx, ledger.Posting{
			Account:      sender,
			Kind:         ledger.KindTransferOut,
			Delta:        in.Quantity.Neg(),
			Description:  fmt.Sprintf("transfer to %s at %s", recipient.Name, in.UnitPrice),
			Counterparty: &recipient.ID,
			UnitPrice:    &in.UnitPrice,
			At:           e.now(),
		})
		if err != nil {
			return err
		}
		inEntry, err := e.ledger.Post(ctx, tx, ledger.Posting{
			Account:      recipient,
			Kind:         ledger.KindTransferIn,
			Delta:        in.Quantity,
			Description:  fmt.Sprintf("transfer from %s", sender.Name),
			Counterparty: &sender.ID,
			At:           e.now(),
		})
		if err != nil {
			return err
		}

		result = &TransferResult{Out: out, In: inEntry}
		return nil
	})
	if err != nil {
		transfersTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	transfersTotal.WithLabelValues("completed").Inc()
	return result, nil
}

// purchaseUnitPrice computes the prospective FIFO acquisition cost of the
// requested quantity: prior transfers deplete the lot queue first, and any
// shortfall is priced at the tiered theoretical rate for a recharge the
// size of the shortfall.
func (e *Engine) purchaseUnitPrice(ctx context.Context, tx ledger.Store, sender ledger.Account, quantity decimal.Decimal, cfg pricing.Config) (decimal.Decimal, error) {
	recharges, err := tx.EntriesByKind(ctx, sender.ID, ledger.KindRecharge)
	if err != nil {
		return decimal.Zero, err
	}
	priorOut, err := tx.EntriesByKind(ctx, sender.ID, ledger.KindTransferOut)
	if err != nil {
		return decimal.Zero, err
	}
	theoretical := func(shortfall decimal.Decimal) decimal.Decimal {
		return pricing.AgentPurchasePrice(shortfall, cfg.ExchangeRate, cfg.RechargeTiers)
	}
	attr := costbasis.PurchaseUnitPrice(recharges, priorOut, quantity, theoretical)
	return attr.AvgUnitCost, nil
}
