package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/points-ledger/costbasis"
	"github.com/warp/points-ledger/ledger"
	"github.com/warp/points-ledger/pricing"
)

// =============================================================================
// CASH PROFIT - revenue minus FIFO acquisition cost, per transfer
// =============================================================================

// TransferProfit is the profit breakdown of one historical transfer.
// Profit and PurchaseUnitPrice are rounded for presentation; the replay
// itself runs on exact values.
type TransferProfit struct {
	EntryID           ledger.EntryID
	At                time.Time
	RecipientName     string
	Quantity          decimal.Decimal
	SaleUnitPrice     decimal.Decimal
	PurchaseUnitPrice decimal.Decimal
	Profit            decimal.Decimal
	Details           []costbasis.Detail
	// MultiPrice marks transfers whose quantity spanned lots bought at
	// different prices, so PurchaseUnitPrice is a blend.
	MultiPrice bool
}

// ProfitReport is an agent's cash-profit statement over their transfer
// history, newest transfer first.
type ProfitReport struct {
	AccountID   ledger.AccountID
	Transfers   []TransferProfit
	TotalProfit decimal.Decimal
}

// ComputeCashProfit replays the agent's transfer history against a FIFO
// reconstruction of their recharge lots and reports per-transfer and
// total profit. The replay runs oldest-first so each transfer consumes
// lots as they stood at the time; the report lists transfers newest
// first. Transfers predating sale tracking (no stored unit price) are
// excluded and leave the lot queue untouched.
//
// Only agents trade points for cash, so the calculation is agent-only.
func (e *Engine) ComputeCashProfit(ctx context.Context, cfg pricing.Config, accountID ledger.AccountID) (*ProfitReport, error) {
	acct, err := e.store.Account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.Role != ledger.RoleAgent {
		return nil, ledger.ErrAgentOnly
	}

	recharges, err := e.store.EntriesByKind(ctx, accountID, ledger.KindRecharge)
	if err != nil {
		return nil, err
	}
	outs, err := e.store.EntriesByKind(ctx, accountID, ledger.KindTransferOut)
	if err != nil {
		return nil, err
	}

	theoretical := func(shortfall decimal.Decimal) decimal.Decimal {
		return pricing.AgentPurchasePrice(shortfall, cfg.ExchangeRate, cfg.RechargeTiers)
	}

	report := &ProfitReport{AccountID: accountID}
	totalProfit := decimal.Zero
	names := map[ledger.AccountID]string{}

	for _, ta := range costbasis.ReplayTransfers(recharges, outs, theoretical) {
		quantity := ta.Transfer.Quantity()
		sale := *ta.Transfer.UnitPrice

		// Profit accumulates per lot detail: sale price minus that lot's
		// unit cost, times the quantity drawn from it.
		profit := decimal.Zero
		for _, d := range ta.Attribution.Details {
			profit = profit.Add(sale.Sub(d.UnitCost).Mul(d.Quantity))
		}
		totalProfit = totalProfit.Add(profit)

		recipient := *ta.Transfer.Counterparty
		name, ok := names[recipient]
		if !ok {
			if r, err := e.store.Account(ctx, recipient); err == nil {
				name = r.Name
			} else if !ledger.IsNotFound(err) {
				return nil, err
			}
			names[recipient] = name
		}

		report.Transfers = append(report.Transfers, TransferProfit{
			EntryID:           ta.Transfer.ID,
			At:                ta.Transfer.CreatedAt,
			RecipientName:     name,
			Quantity:          quantity,
			SaleUnitPrice:     sale,
			PurchaseUnitPrice: pricing.Round2(ta.Attribution.AvgUnitCost),
			Profit:            pricing.Round2(profit),
			Details:           ta.Attribution.Details,
			MultiPrice:        ta.Attribution.MultiPrice(),
		})
	}
	report.TotalProfit = pricing.Round2(totalProfit)

	// Newest first for presentation.
	for i, j := 0, len(report.Transfers)-1; i < j; i, j = i+1, j-1 {
		report.Transfers[i], report.Transfers[j] = report.Transfers[j], report.Transfers[i]
	}
	return report, nil
}
