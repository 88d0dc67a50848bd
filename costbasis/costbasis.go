/*
Package costbasis reconstructs FIFO cost basis from recharge history.

PURPOSE:
  Answers "what did these points actually cost?" by replaying an account's
  recharge entries as a queue of lots and attributing consumptions to lots
  oldest-first. Nothing is persisted: the queue is rebuilt from scratch on
  every query, which keeps it idempotent, auditable, and self-healing after
  manual ledger edits.

TWO CONSUMERS SHARE THIS ONE IMPLEMENTATION:
  - The transfer engine's price-floor check: replay all PRIOR transfer_out
    quantities to deplete the queue, then attribute the prospective transfer
    against what remains.
  - The cash-profit calculator: replay the transfer_out history in
    chronological order, recording each transfer's per-lot breakdown as the
    queue depletes across the whole replay.

  Backing both with the same queue guarantees the floor check and the
  profit report can never diverge.

SHORTFALL:
  If lots run out before a consumption is covered (history predating
  cost tracking, or a corrupted ledger), the shortfall is attributed at a
  caller-supplied theoretical unit cost instead of any lot's recorded
  price. This is not an error; the attribution flags it.

GUARANTEES:
  For a fixed entry history the attribution is deterministic and
  order-preserving; lots are never double-counted; a lot's remainder never
  goes negative.

SEE ALSO:
  - ledger: Entry ordering that the replay depends on
  - pricing.AgentPurchasePrice: The usual theoretical fallback cost
*/
package costbasis

import (
	"github.com/shopspring/decimal"
	"github.com/warp/points-ledger/ledger"
)

// =============================================================================
// LOTS
// =============================================================================

// Lot is one recharge treated as a FIFO inventory unit.
type Lot struct {
	EntryID     ledger.EntryID
	TotalPoints decimal.Decimal
	Remaining   decimal.Decimal
	UnitCost    decimal.Decimal // actual cash paid / points received
}

// LotQueue is the ordered lot inventory for one account. Consumptions
// mutate the queue, so build a fresh queue per computation.
type LotQueue struct {
	lots []*Lot
}

// ReconstructCostBasis builds the lot queue from recharge entries in
// ascending ledger order. Entries without a recorded actual-cash amount
// (or without a positive points delta) predate cost tracking and produce
// no lot.
func ReconstructCostBasis(recharges []ledger.Entry) *LotQueue {
	q := &LotQueue{}
	for _, e := range recharges {
		if e.Kind != ledger.KindRecharge || e.ActualCash == nil || !e.Delta.IsPositive() {
			continue
		}
		q.lots = append(q.lots, &Lot{
			EntryID:     e.ID,
			TotalPoints: e.Delta,
			Remaining:   e.Delta,
			UnitCost:    e.ActualCash.Div(e.Delta),
		})
	}
	return q
}

// Lots exposes the current queue state, oldest first.
func (q *LotQueue) Lots() []*Lot { return q.lots }

// =============================================================================
// ATTRIBUTION
// =============================================================================

// CostFn prices a shortfall quantity that no lot could cover. It receives
// the uncovered quantity, since tiered theoretical pricing depends on it.
type CostFn func(shortfall decimal.Decimal) decimal.Decimal

// FlatCost returns a CostFn that ignores the shortfall size.
func FlatCost(unitCost decimal.Decimal) CostFn {
	return func(decimal.Decimal) decimal.Decimal { return unitCost }
}

// Detail is one lot's contribution to a consumption. A zero EntryID marks
// the theoretical-price shortfall portion.
type Detail struct {
	EntryID  ledger.EntryID
	Quantity decimal.Decimal
	UnitCost decimal.Decimal
}

// Attribution is the cost breakdown of one consumption.
type Attribution struct {
	Quantity    decimal.Decimal
	TotalCost   decimal.Decimal
	AvgUnitCost decimal.Decimal
	Details     []Detail
	// Shortfall is the portion no lot could cover, attributed at the
	// theoretical unit cost. Zero for fully covered consumptions.
	Shortfall decimal.Decimal
}

// MultiPrice reports whether the consumption spanned lots at more than one
// unit cost.
func (a Attribution) MultiPrice() bool {
	seen := map[string]bool{}
	for _, d := range a.Details {
		seen[d.UnitCost.String()] = true
	}
	return len(seen) > 1
}

// Consume attributes quantity points against the queue oldest-first,
// depleting lot remainders. Any shortfall past the last lot is costed by
// theoretical. quantity must be positive.
func (q *LotQueue) Consume(quantity decimal.Decimal, theoretical CostFn) Attribution {
	attr := Attribution{Quantity: quantity}
	remaining := quantity

	for _, lot := range q.lots {
		if !remaining.IsPositive() {
			break
		}
		if !lot.Remaining.IsPositive() {
			continue
		}
		used := decimal.Min(remaining, lot.Remaining)
		attr.TotalCost = attr.TotalCost.Add(used.Mul(lot.UnitCost))
		attr.Details = append(attr.Details, Detail{
			EntryID:  lot.EntryID,
			Quantity: used,
			UnitCost: lot.UnitCost,
		})
		lot.Remaining = lot.Remaining.Sub(used)
		remaining = remaining.Sub(used)
	}

	if remaining.IsPositive() {
		unitCost := theoretical(remaining)
		attr.Shortfall = remaining
		attr.TotalCost = attr.TotalCost.Add(remaining.Mul(unitCost))
		attr.Details = append(attr.Details, Detail{
			Quantity: remaining,
			UnitCost: unitCost,
		})
	}

	if quantity.IsPositive() {
		attr.AvgUnitCost = attr.TotalCost.Div(quantity)
	}
	return attr
}

// Deplete consumes quantity points oldest-first without recording cost.
// The transfer-floor check uses it to replay prior transfers before
// attributing the prospective one. Shortfall past the lots is discarded.
func (q *LotQueue) Deplete(quantity decimal.Decimal) {
	remaining := quantity
	for _, lot := range q.lots {
		if !remaining.IsPositive() {
			return
		}
		if !lot.Remaining.IsPositive() {
			continue
		}
		used := decimal.Min(remaining, lot.Remaining)
		lot.Remaining = lot.Remaining.Sub(used)
		remaining = remaining.Sub(used)
	}
}

// =============================================================================
// PROSPECTIVE FLOOR - purchase cost of the NEXT transfer
// =============================================================================

// PurchaseUnitPrice computes the prospective average acquisition cost of
// transferring quantity points now, given the account's recharge history
// and all prior transfer_out entries. Prior transfers deplete the queue
// first, modelling first-in-first-out across the account's entire transfer
// history, not just this request.
func PurchaseUnitPrice(recharges, priorTransfersOut []ledger.Entry, quantity decimal.Decimal, theoretical CostFn) Attribution {
	q := ReconstructCostBasis(recharges)
	for _, t := range priorTransfersOut {
		if t.Kind != ledger.KindTransferOut {
			continue
		}
		q.Deplete(t.Quantity())
	}
	return q.Consume(quantity, theoretical)
}

// =============================================================================
// HISTORICAL REPLAY - per-transfer attribution for profit reporting
// =============================================================================

// TransferAttribution pairs a historical transfer_out entry with its FIFO
// cost breakdown.
type TransferAttribution struct {
	Transfer    ledger.Entry
	Attribution Attribution
}

// ReplayTransfers attributes every transfer_out entry in chronological
// order against one persistent queue, so later transfers see the lots as
// earlier ones left them. theoretical prices any shortfall.
//
// Transfers without a recorded unit price or counterparty predate sale
// tracking; they are skipped and do not deplete the queue.
func ReplayTransfers(recharges, transfersOut []ledger.Entry, theoretical CostFn) []TransferAttribution {
	q := ReconstructCostBasis(recharges)
	var result []TransferAttribution
	for _, t := range transfersOut {
		if t.Kind != ledger.KindTransferOut || t.UnitPrice == nil || t.Counterparty == nil {
			continue
		}
		result = append(result, TransferAttribution{
			Transfer:    t,
			Attribution: q.Consume(t.Quantity(), theoretical),
		})
	}
	return result
}
