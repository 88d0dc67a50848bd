package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/points-ledger/ledger"
	"github.com/warp/points-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testAccount(id, promo, phone string) ledger.Account {
	return ledger.Account{
		ID:              ledger.AccountID(id),
		PromoCode:       promo,
		Name:            "account " + id,
		Phone:           phone,
		Role:            ledger.RoleAgent,
		Balance:         decimal.Zero,
		PayPasswordHash: "hash-" + id,
		CreatedAt:       time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC),
	}
}

// =============================================================================
// ACCOUNT PERSISTENCE TESTS
// =============================================================================

func TestAccountRoundTrip(t *testing.T) {
	// GIVEN: A store with a parent account
	store := newTestStore(t)
	ctx := context.Background()
	parent := testAccount("acc-parent", "100001", "13800000001")
	require.NoError(t, store.CreateAccount(ctx, parent))

	// WHEN: Creating a child linked to the parent and reading it back
	child := testAccount("acc-child", "100002", "13800000002")
	child.ParentID = &parent.ID
	child.Balance = dec("123.4567")
	require.NoError(t, store.CreateAccount(ctx, child))

	got, err := store.Account(ctx, child.ID)
	require.NoError(t, err)

	// THEN: Every field survives, including the decimal balance and parent link
	assert.Equal(t, child.ID, got.ID)
	assert.Equal(t, child.PromoCode, got.PromoCode)
	assert.Equal(t, child.Phone, got.Phone)
	assert.Equal(t, ledger.RoleAgent, got.Role)
	require.NotNil(t, got.ParentID)
	assert.Equal(t, parent.ID, *got.ParentID)
	assert.True(t, got.Balance.Equal(dec("123.4567")), "balance %s", got.Balance)
	assert.Equal(t, child.PayPasswordHash, got.PayPasswordHash)
	assert.True(t, got.CreatedAt.Equal(child.CreatedAt))

	// Parent has no upline
	gotParent, err := store.Account(ctx, parent.ID)
	require.NoError(t, err)
	assert.Nil(t, gotParent.ParentID)
}

func TestAccountLookupsByPromoCodeAndPhone(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a := testAccount("acc-1", "654321", "13900000001")
	require.NoError(t, store.CreateAccount(ctx, a))

	byPromo, err := store.AccountByPromoCode(ctx, "654321")
	require.NoError(t, err)
	assert.Equal(t, a.ID, byPromo.ID)

	byPhone, err := store.AccountByPhone(ctx, "13900000001")
	require.NoError(t, err)
	assert.Equal(t, a.ID, byPhone.ID)

	_, err = store.AccountByPromoCode(ctx, "000000")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	_, err = store.Account(ctx, "missing")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestCreateAccountUniqueConstraints(t *testing.T) {
	// GIVEN: An existing account
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateAccount(ctx, testAccount("acc-1", "111111", "13700000001")))

	// WHEN/THEN: Reusing the phone maps to the duplicate-phone sentinel
	dupPhone := testAccount("acc-2", "222222", "13700000001")
	err := store.CreateAccount(ctx, dupPhone)
	assert.ErrorIs(t, err, ledger.ErrDuplicatePhone)

	// WHEN/THEN: Reusing the promo code maps to the duplicate-code sentinel
	dupPromo := testAccount("acc-3", "111111", "13700000003")
	err = store.CreateAccount(ctx, dupPromo)
	assert.ErrorIs(t, err, ledger.ErrDuplicatePromoCode)
}

func TestUpdateBalance(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a := testAccount("acc-1", "111111", "13700000001")
	require.NoError(t, store.CreateAccount(ctx, a))

	require.NoError(t, store.UpdateBalance(ctx, a.ID, dec("250.75")))
	got, err := store.Account(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(dec("250.75")))

	err = store.UpdateBalance(ctx, "missing", dec("1"))
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

// =============================================================================
// ENTRY PERSISTENCE TESTS
// =============================================================================

func TestAppendEntryAssignsSeqAndPreservesFields(t *testing.T) {
	// GIVEN: An account
	store := newTestStore(t)
	ctx := context.Background()
	a := testAccount("acc-1", "111111", "13700000001")
	require.NoError(t, store.CreateAccount(ctx, a))

	// WHEN: Appending a recharge entry with optional fields set
	cash := dec("95")
	price := dec("1.2")
	counterparty := ledger.AccountID("acc-other")
	e := ledger.Entry{
		ID:           "ent-1",
		AccountID:    a.ID,
		Kind:         ledger.KindRecharge,
		Delta:        dec("100"),
		Balance:      dec("100"),
		Description:  "recharge of 100",
		Counterparty: &counterparty,
		UnitPrice:    &price,
		ActualCash:   &cash,
		CreatedAt:    time.Date(2026, 2, 1, 10, 0, 0, 123456789, time.UTC),
	}
	require.NoError(t, store.AppendEntry(ctx, &e))

	// THEN: The store assigned a positive seq and the read-back is faithful
	assert.Positive(t, e.Seq)

	entries, err := store.Entries(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	got := entries[0]
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, e.Seq, got.Seq)
	assert.Equal(t, ledger.KindRecharge, got.Kind)
	assert.True(t, got.Delta.Equal(dec("100")))
	assert.True(t, got.Balance.Equal(dec("100")))
	assert.Equal(t, "recharge of 100", got.Description)
	require.NotNil(t, got.Counterparty)
	assert.Equal(t, counterparty, *got.Counterparty)
	require.NotNil(t, got.UnitPrice)
	assert.True(t, got.UnitPrice.Equal(price))
	require.NotNil(t, got.ActualCash)
	assert.True(t, got.ActualCash.Equal(cash))
	assert.True(t, got.CreatedAt.Equal(e.CreatedAt), "got %s", got.CreatedAt)
}

func TestEntriesNilOptionalFieldsStayNil(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a := testAccount("acc-1", "111111", "13700000001")
	require.NoError(t, store.CreateAccount(ctx, a))

	e := ledger.Entry{
		ID:        "ent-1",
		AccountID: a.ID,
		Kind:      ledger.KindOrderDeduction,
		Delta:     dec("-30"),
		Balance:   dec("70"),
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.AppendEntry(ctx, &e))

	entries, err := store.Entries(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].Counterparty)
	assert.Nil(t, entries[0].UnitPrice)
	assert.Nil(t, entries[0].ActualCash)
}

func TestEntriesOrderedByTimeThenSeq(t *testing.T) {
	// GIVEN: Three entries, two sharing the same timestamp
	store := newTestStore(t)
	ctx := context.Background()
	a := testAccount("acc-1", "111111", "13700000001")
	require.NoError(t, store.CreateAccount(ctx, a))

	t0 := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	later := ledger.Entry{ID: "ent-late", AccountID: a.ID, Kind: ledger.KindRecharge,
		Delta: dec("10"), Balance: dec("30"), CreatedAt: t0.Add(time.Minute)}
	first := ledger.Entry{ID: "ent-a", AccountID: a.ID, Kind: ledger.KindRecharge,
		Delta: dec("10"), Balance: dec("10"), CreatedAt: t0}
	second := ledger.Entry{ID: "ent-b", AccountID: a.ID, Kind: ledger.KindRecharge,
		Delta: dec("10"), Balance: dec("20"), CreatedAt: t0}

	// WHEN: Inserting out of chronological order
	require.NoError(t, store.AppendEntry(ctx, &later))
	require.NoError(t, store.AppendEntry(ctx, &first))
	require.NoError(t, store.AppendEntry(ctx, &second))

	// THEN: Reads come back in (created_at, seq) order
	entries, err := store.Entries(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, ledger.EntryID("ent-a"), entries[0].ID)
	assert.Equal(t, ledger.EntryID("ent-b"), entries[1].ID)
	assert.Equal(t, ledger.EntryID("ent-late"), entries[2].ID)
	assert.Less(t, entries[0].Seq, entries[1].Seq)
}

func TestEntriesByKindFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a := testAccount("acc-1", "111111", "13700000001")
	require.NoError(t, store.CreateAccount(ctx, a))

	now := time.Now().UTC()
	for i, kind := range []ledger.EntryKind{
		ledger.KindRecharge, ledger.KindTransferOut, ledger.KindRecharge,
	} {
		e := ledger.Entry{
			ID:        ledger.EntryID(string(rune('a' + i))),
			AccountID: a.ID,
			Kind:      kind,
			Delta:     dec("1"),
			Balance:   dec("1"),
			CreatedAt: now.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, store.AppendEntry(ctx, &e))
	}

	recharges, err := store.EntriesByKind(ctx, a.ID, ledger.KindRecharge)
	require.NoError(t, err)
	assert.Len(t, recharges, 2)

	outs, err := store.EntriesByKind(ctx, a.ID, ledger.KindTransferOut)
	require.NoError(t, err)
	assert.Len(t, outs, 1)
}

// =============================================================================
// ORDER PERSISTENCE TESTS
// =============================================================================

func TestOrderRoundTripAndStatus(t *testing.T) {
	// GIVEN: An account with a priced order
	store := newTestStore(t)
	ctx := context.Background()
	a := testAccount("acc-1", "111111", "13700000001")
	require.NoError(t, store.CreateAccount(ctx, a))

	o := ledger.Order{
		ID:             "ord-1",
		AccountID:      a.ID,
		SettlementDate: time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC),
		BasePrice:      dec("1.5"),
		DiscountRate:   dec("0.95"),
		FinalPrice:     dec("1.43"),
		Quantity:       50,
		TotalPoints:    dec("71.25"),
		Status:         ledger.OrderPending,
		CreatedAt:      time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.CreateOrder(ctx, o))

	// WHEN: Reading by ID
	got, err := store.Order(ctx, o.ID)
	require.NoError(t, err)

	// THEN: Pricing fields survive to the digit
	assert.True(t, got.BasePrice.Equal(dec("1.5")))
	assert.True(t, got.DiscountRate.Equal(dec("0.95")))
	assert.True(t, got.FinalPrice.Equal(dec("1.43")))
	assert.Equal(t, int64(50), got.Quantity)
	assert.True(t, got.TotalPoints.Equal(dec("71.25")))
	assert.Equal(t, ledger.OrderPending, got.Status)
	assert.False(t, got.Exported)
	assert.True(t, got.SettlementDate.Equal(o.SettlementDate))

	// Status and export transitions persist
	require.NoError(t, store.UpdateOrderStatus(ctx, o.ID, ledger.OrderApproved))
	require.NoError(t, store.MarkOrderExported(ctx, o.ID))
	got, err = store.Order(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.OrderApproved, got.Status)
	assert.True(t, got.Exported)

	_, err = store.Order(ctx, "missing")
	assert.ErrorIs(t, err, ledger.ErrOrderNotFound)
	assert.ErrorIs(t, store.UpdateOrderStatus(ctx, "missing", ledger.OrderApproved), ledger.ErrOrderNotFound)
	assert.ErrorIs(t, store.MarkOrderExported(ctx, "missing"), ledger.ErrOrderNotFound)
}

func TestOrdersNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a := testAccount("acc-1", "111111", "13700000001")
	require.NoError(t, store.CreateAccount(ctx, a))

	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i, id := range []ledger.OrderID{"ord-old", "ord-mid", "ord-new"} {
		o := ledger.Order{
			ID: id, AccountID: a.ID,
			SettlementDate: base, BasePrice: dec("1"), DiscountRate: dec("1"),
			FinalPrice: dec("1"), Quantity: 1, TotalPoints: dec("1"),
			Status: ledger.OrderPending, CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, store.CreateOrder(ctx, o))
	}

	orders, err := store.Orders(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Equal(t, ledger.OrderID("ord-new"), orders[0].ID)
	assert.Equal(t, ledger.OrderID("ord-old"), orders[2].ID)
}

// =============================================================================
// TRANSACTION TESTS
// =============================================================================

func TestWithTxCommitsAtomically(t *testing.T) {
	// GIVEN: Two funded accounts
	store := newTestStore(t)
	ctx := context.Background()
	alice := testAccount("acc-alice", "111111", "13700000001")
	alice.Balance = dec("100")
	bob := testAccount("acc-bob", "222222", "13700000002")
	require.NoError(t, store.CreateAccount(ctx, alice))
	require.NoError(t, store.CreateAccount(ctx, bob))

	// WHEN: Moving points inside one transaction
	err := store.WithTx(ctx, func(tx ledger.Store) error {
		if err := tx.UpdateBalance(ctx, alice.ID, dec("60")); err != nil {
			return err
		}
		out := ledger.Entry{ID: "ent-out", AccountID: alice.ID, Kind: ledger.KindTransferOut,
			Delta: dec("-40"), Balance: dec("60"), CreatedAt: time.Now().UTC()}
		if err := tx.AppendEntry(ctx, &out); err != nil {
			return err
		}
		if err := tx.UpdateBalance(ctx, bob.ID, dec("40")); err != nil {
			return err
		}
		in := ledger.Entry{ID: "ent-in", AccountID: bob.ID, Kind: ledger.KindTransferIn,
			Delta: dec("40"), Balance: dec("40"), CreatedAt: time.Now().UTC()}
		return tx.AppendEntry(ctx, &in)
	})
	require.NoError(t, err)

	// THEN: Both sides are visible after commit
	a, err := store.Account(ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, a.Balance.Equal(dec("60")))
	b, err := store.Account(ctx, bob.ID)
	require.NoError(t, err)
	assert.True(t, b.Balance.Equal(dec("40")))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	// GIVEN: A funded account
	store := newTestStore(t)
	ctx := context.Background()
	a := testAccount("acc-1", "111111", "13700000001")
	a.Balance = dec("100")
	require.NoError(t, store.CreateAccount(ctx, a))

	// WHEN: The transaction function fails after partial writes
	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx ledger.Store) error {
		if err := tx.UpdateBalance(ctx, a.ID, dec("0")); err != nil {
			return err
		}
		e := ledger.Entry{ID: "ent-1", AccountID: a.ID, Kind: ledger.KindOrderDeduction,
			Delta: dec("-100"), Balance: dec("0"), CreatedAt: time.Now().UTC()}
		if err := tx.AppendEntry(ctx, &e); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// THEN: Nothing persisted
	got, err := store.Account(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(dec("100")))
	entries, err := store.Entries(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
