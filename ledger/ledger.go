/*
ledger.go - Entry posting with balance maintenance

PURPOSE:
  The Ledger is the only place balances change. Every mutation posts an
  Entry with the resulting balance snapshot and writes the new balance in
  the same store transaction, so the invariant

      account.Balance == sum of the account's entry deltas

  holds at all times.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: Entries are never updated or deleted
  2. PAIRED WRITES: AppendEntry and UpdateBalance happen together
  3. NON-NEGATIVE: A debit may never drive balance below zero; if it would,
     the post fails with InsufficientBalanceError before anything is written
  4. LOUD CORRUPTION: A balance that already diverges from the entry sum is
     an InvariantViolationError - logged with context, never swallowed

SEE ALSO:
  - store.go: Persistence interfaces
  - engine: Transactional operations built on Post
*/
package ledger

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER - Posts entries and maintains balances
// =============================================================================

// Ledger posts entries against a Store. It carries no state of its own; all
// methods take the store explicitly so they can join a caller's transaction.
type Ledger struct{}

// Posting describes one balance change to apply.
type Posting struct {
	Account      Account
	Kind         EntryKind
	Delta        decimal.Decimal // signed
	Description  string
	Counterparty *AccountID
	UnitPrice    *decimal.Decimal // transfer_out only
	ActualCash   *decimal.Decimal // recharge only
	At           time.Time        // zero means now
}

// Post applies a single posting: it computes the new balance, appends the
// entry with the balance snapshot, and updates the stored balance. Debits
// that would go negative fail with InsufficientBalanceError and write
// nothing.
func (Ledger) Post(ctx context.Context, s Store, p Posting) (Entry, error) {
	newBalance := p.Account.Balance.Add(p.Delta)
	if newBalance.IsNegative() {
		return Entry{}, &InsufficientBalanceError{
			AccountID: p.Account.ID,
			Available: p.Account.Balance,
			Requested: p.Delta.Neg(),
		}
	}

	at := p.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	e := Entry{
		ID:           EntryID(uuid.NewString()),
		AccountID:    p.Account.ID,
		Kind:         p.Kind,
		Delta:        p.Delta,
		Balance:      newBalance,
		Description:  p.Description,
		Counterparty: p.Counterparty,
		UnitPrice:    p.UnitPrice,
		ActualCash:   p.ActualCash,
		CreatedAt:    at,
	}

	if err := s.AppendEntry(ctx, &e); err != nil {
		return Entry{}, err
	}
	if err := s.UpdateBalance(ctx, p.Account.ID, newBalance); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// BalanceFromEntries replays the account's full entry history and returns
// the derived balance. Used by the audit check and by tests asserting the
// balance invariant.
func (Ledger) BalanceFromEntries(ctx context.Context, s Store, id AccountID) (decimal.Decimal, error) {
	entries, err := s.Entries(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Delta)
	}
	return sum, nil
}

// Audit verifies that the stored balance equals the entry-delta sum. A
// mismatch indicates ledger corruption: it is logged with both values and
// returned as an InvariantViolationError.
func (l Ledger) Audit(ctx context.Context, s Store, id AccountID) error {
	a, err := s.Account(ctx, id)
	if err != nil {
		return err
	}
	derived, err := l.BalanceFromEntries(ctx, s, id)
	if err != nil {
		return err
	}
	if !a.Balance.Equal(derived) {
		log.Printf("ledger: balance mismatch for account %s: stored=%s derived=%s",
			id, a.Balance.StringFixed(2), derived.StringFixed(2))
		return &InvariantViolationError{
			AccountID: id,
			Detail:    "stored balance " + a.Balance.StringFixed(2) + " != entry sum " + derived.StringFixed(2),
		}
	}
	return nil
}
