package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/points-ledger/ledger"
	"github.com/warp/points-ledger/ledger/store"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func seedAccount(t *testing.T, s ledger.Store, id string, balance string) ledger.Account {
	t.Helper()
	a := ledger.Account{
		ID:        ledger.AccountID(id),
		PromoCode: "promo-" + id,
		Name:      id,
		Phone:     "phone-" + id,
		Role:      ledger.RoleOrdinary,
		Balance:   dec(balance),
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.CreateAccount(context.Background(), a))
	return a
}

// =============================================================================
// POSTING
// =============================================================================

func TestPostPairsEntryWithBalance(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	var l ledger.Ledger
	a := seedAccount(t, s, "a", "100")

	// GIVEN a credit posting
	entry, err := l.Post(ctx, s, ledger.Posting{
		Account:     a,
		Kind:        ledger.KindRecharge,
		Delta:       dec("50"),
		Description: "recharge 50 points",
		At:          time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	// THEN the entry snapshots the post-posting balance
	assert.True(t, entry.Balance.Equal(dec("150")))
	assert.NotEmpty(t, entry.ID)

	// AND the stored balance matches
	stored, err := s.Account(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, stored.Balance.Equal(dec("150")))
}

func TestPostRejectsOverdraw(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	var l ledger.Ledger
	a := seedAccount(t, s, "a", "10")

	_, err := l.Post(ctx, s, ledger.Posting{
		Account: a,
		Kind:    ledger.KindOrderDeduction,
		Delta:   dec("-10.01"),
		At:      time.Now(),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrInsufficientBalance))

	var ibe *ledger.InsufficientBalanceError
	require.True(t, errors.As(err, &ibe))
	assert.True(t, ibe.Available.Equal(dec("10")))

	// Nothing was written.
	entries, err := s.Entries(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPostToExactZeroIsAllowed(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	var l ledger.Ledger
	a := seedAccount(t, s, "a", "10")

	entry, err := l.Post(ctx, s, ledger.Posting{
		Account: a,
		Kind:    ledger.KindTransferOut,
		Delta:   dec("-10"),
		At:      time.Now(),
	})
	require.NoError(t, err)
	assert.True(t, entry.Balance.IsZero())
}

// =============================================================================
// REPLAY AND AUDIT
// =============================================================================

func TestBalanceFromEntriesMatchesStored(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	var l ledger.Ledger
	a := seedAccount(t, s, "a", "0")

	at := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	deltas := []string{"100", "-30", "25.5", "-0.0001"}
	for i, d := range deltas {
		acct, err := s.Account(ctx, a.ID)
		require.NoError(t, err)
		_, err = l.Post(ctx, s, ledger.Posting{
			Account: acct,
			Kind:    ledger.KindRecharge,
			Delta:   dec(d),
			At:      at.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	derived, err := l.BalanceFromEntries(ctx, s, a.ID)
	require.NoError(t, err)
	stored, err := s.Account(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, derived.Equal(stored.Balance), "derived %s vs stored %s", derived, stored.Balance)
	assert.True(t, derived.Equal(dec("95.4999")))

	require.NoError(t, l.Audit(ctx, s, a.ID))
}

func TestAuditDetectsDivergence(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	var l ledger.Ledger
	a := seedAccount(t, s, "a", "0")

	_, err := l.Post(ctx, s, ledger.Posting{
		Account: a,
		Kind:    ledger.KindRecharge,
		Delta:   dec("100"),
		At:      time.Now(),
	})
	require.NoError(t, err)

	// Corrupt the stored balance behind the ledger's back.
	require.NoError(t, s.UpdateBalance(ctx, a.ID, dec("999")))

	err = l.Audit(ctx, s, a.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrInvariantViolation))
}

// =============================================================================
// TRANSACTIONAL ROLLBACK
// =============================================================================

func TestWithTxRollsBackAllWrites(t *testing.T) {
	ctx := context.Background()
	ts := store.NewTxMemory()
	var l ledger.Ledger
	a := seedAccount(t, ts, "a", "100")
	b := seedAccount(t, ts, "b", "0")

	boom := errors.New("boom")
	err := ts.WithTx(ctx, func(tx ledger.Store) error {
		acct, err := tx.Account(ctx, a.ID)
		if err != nil {
			return err
		}
		if _, err := l.Post(ctx, tx, ledger.Posting{
			Account: acct,
			Kind:    ledger.KindTransferOut,
			Delta:   dec("-40"),
			At:      time.Now(),
		}); err != nil {
			return err
		}
		other, err := tx.Account(ctx, b.ID)
		if err != nil {
			return err
		}
		if _, err := l.Post(ctx, tx, ledger.Posting{
			Account: other,
			Kind:    ledger.KindTransferIn,
			Delta:   dec("40"),
			At:      time.Now(),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// Both sides rolled back.
	accA, err := ts.Account(ctx, a.ID)
	require.NoError(t, err)
	accB, err := ts.Account(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, accA.Balance.Equal(dec("100")))
	assert.True(t, accB.Balance.IsZero())
	entries, err := ts.Entries(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// =============================================================================
// ENTRY ORDERING
// =============================================================================

func TestEntriesOrderedByTimeThenSeq(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	a := seedAccount(t, s, "a", "0")

	// Two entries share a timestamp; Seq breaks the tie.
	at := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	for _, d := range []string{"1", "2", "3"} {
		e := ledger.Entry{
			ID:        ledger.EntryID("e" + d),
			AccountID: a.ID,
			Kind:      ledger.KindRecharge,
			Delta:     dec(d),
			CreatedAt: at,
		}
		require.NoError(t, s.AppendEntry(ctx, &e))
		assert.NotZero(t, e.Seq)
	}

	entries, err := s.Entries(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i := 1; i < len(entries); i++ {
		assert.Less(t, entries[i-1].Seq, entries[i].Seq)
	}
}
