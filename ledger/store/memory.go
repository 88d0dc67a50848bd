// Package store provides an in-memory ledger.Store implementation.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/warp/points-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	accounts map[ledger.AccountID]ledger.Account
	entries  map[ledger.AccountID][]ledger.Entry
	orders   map[ledger.OrderID]ledger.Order
	seq      int64
}

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[ledger.AccountID]ledger.Account),
		entries:  make(map[ledger.AccountID][]ledger.Entry),
		orders:   make(map[ledger.OrderID]ledger.Order),
	}
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (m *Memory) CreateAccount(_ context.Context, a ledger.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createAccountLocked(a)
}

func (m *Memory) createAccountLocked(a ledger.Account) error {
	// Same uniqueness guarantees the SQL stores enforce via constraints.
	for _, existing := range m.accounts {
		if existing.Phone == a.Phone {
			return ledger.ErrDuplicatePhone
		}
		if existing.PromoCode == a.PromoCode {
			return ledger.ErrDuplicatePromoCode
		}
	}
	m.accounts[a.ID] = a
	return nil
}

func (m *Memory) Account(_ context.Context, id ledger.AccountID) (ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accountLocked(id)
}

func (m *Memory) accountLocked(id ledger.AccountID) (ledger.Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	return a, nil
}

func (m *Memory) AccountByPromoCode(_ context.Context, code string) (ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.accounts {
		if a.PromoCode == code {
			return a, nil
		}
	}
	return ledger.Account{}, ledger.ErrAccountNotFound
}

func (m *Memory) AccountByPhone(_ context.Context, phone string) (ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.accounts {
		if a.Phone == phone {
			return a, nil
		}
	}
	return ledger.Account{}, ledger.ErrAccountNotFound
}

func (m *Memory) UpdateBalance(_ context.Context, id ledger.AccountID, balance decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateBalanceLocked(id, balance)
}

func (m *Memory) updateBalanceLocked(id ledger.AccountID, balance decimal.Decimal) error {
	a, ok := m.accounts[id]
	if !ok {
		return ledger.ErrAccountNotFound
	}
	a.Balance = balance
	m.accounts[id] = a
	return nil
}

// =============================================================================
// ENTRIES (append-only)
// =============================================================================

func (m *Memory) AppendEntry(_ context.Context, e *ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendEntryLocked(e)
}

func (m *Memory) appendEntryLocked(e *ledger.Entry) error {
	m.seq++
	e.Seq = m.seq
	m.entries[e.AccountID] = append(m.entries[e.AccountID], *e)
	return nil
}

func (m *Memory) Entries(_ context.Context, id ledger.AccountID) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entriesLocked(id, ""), nil
}

func (m *Memory) EntriesByKind(_ context.Context, id ledger.AccountID, kind ledger.EntryKind) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entriesLocked(id, kind), nil
}

func (m *Memory) entriesLocked(id ledger.AccountID, kind ledger.EntryKind) []ledger.Entry {
	var result []ledger.Entry
	for _, e := range m.entries[id] {
		if kind == "" || e.Kind == kind {
			result = append(result, e)
		}
	}
	// Ascending (created_at, seq) - the ordering FIFO replay depends on.
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].Seq < result[j].Seq
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// =============================================================================
// ORDERS
// =============================================================================

func (m *Memory) CreateOrder(_ context.Context, o ledger.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
	return nil
}

func (m *Memory) Order(_ context.Context, id ledger.OrderID) (ledger.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return ledger.Order{}, ledger.ErrOrderNotFound
	}
	return o, nil
}

func (m *Memory) Orders(_ context.Context, id ledger.AccountID) ([]ledger.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []ledger.Order
	for _, o := range m.orders {
		if o.AccountID == id {
			result = append(result, o)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *Memory) UpdateOrderStatus(_ context.Context, id ledger.OrderID, status ledger.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ledger.ErrOrderNotFound
	}
	o.Status = status
	m.orders[id] = o
	return nil
}

func (m *Memory) MarkOrderExported(_ context.Context, id ledger.OrderID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ledger.ErrOrderNotFound
	}
	o.Exported = true
	m.orders[id] = o
	return nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support. The store lock is held for
// the whole transaction, which also serializes concurrent mutations against
// the same account.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction, simulated with a snapshot that is
// restored if fn fails.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()

	if err := fn(&txMemoryView{parent: tm.Memory}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	accounts map[ledger.AccountID]ledger.Account
	entries  map[ledger.AccountID][]ledger.Entry
	orders   map[ledger.OrderID]ledger.Order
	seq      int64
}

func (tm *TxMemory) snapshot() memorySnapshot {
	accounts := make(map[ledger.AccountID]ledger.Account, len(tm.accounts))
	for k, v := range tm.accounts {
		accounts[k] = v
	}
	entries := make(map[ledger.AccountID][]ledger.Entry, len(tm.entries))
	for k, v := range tm.entries {
		entries[k] = append([]ledger.Entry{}, v...)
	}
	orders := make(map[ledger.OrderID]ledger.Order, len(tm.orders))
	for k, v := range tm.orders {
		orders[k] = v
	}
	return memorySnapshot{accounts: accounts, entries: entries, orders: orders, seq: tm.seq}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.accounts = s.accounts
	tm.entries = s.entries
	tm.orders = s.orders
	tm.seq = s.seq
}

// txMemoryView operates on the parent without re-acquiring the lock WithTx
// already holds.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) CreateAccount(_ context.Context, a ledger.Account) error {
	return tv.parent.createAccountLocked(a)
}

func (tv *txMemoryView) Account(_ context.Context, id ledger.AccountID) (ledger.Account, error) {
	return tv.parent.accountLocked(id)
}

func (tv *txMemoryView) AccountByPromoCode(_ context.Context, code string) (ledger.Account, error) {
	for _, a := range tv.parent.accounts {
		if a.PromoCode == code {
			return a, nil
		}
	}
	return ledger.Account{}, ledger.ErrAccountNotFound
}

func (tv *txMemoryView) AccountByPhone(_ context.Context, phone string) (ledger.Account, error) {
	for _, a := range tv.parent.accounts {
		if a.Phone == phone {
			return a, nil
		}
	}
	return ledger.Account{}, ledger.ErrAccountNotFound
}

func (tv *txMemoryView) UpdateBalance(_ context.Context, id ledger.AccountID, balance decimal.Decimal) error {
	return tv.parent.updateBalanceLocked(id, balance)
}

func (tv *txMemoryView) AppendEntry(_ context.Context, e *ledger.Entry) error {
	return tv.parent.appendEntryLocked(e)
}

func (tv *txMemoryView) Entries(_ context.Context, id ledger.AccountID) ([]ledger.Entry, error) {
	return tv.parent.entriesLocked(id, ""), nil
}

func (tv *txMemoryView) EntriesByKind(_ context.Context, id ledger.AccountID, kind ledger.EntryKind) ([]ledger.Entry, error) {
	return tv.parent.entriesLocked(id, kind), nil
}

func (tv *txMemoryView) CreateOrder(_ context.Context, o ledger.Order) error {
	tv.parent.orders[o.ID] = o
	return nil
}

func (tv *txMemoryView) Order(_ context.Context, id ledger.OrderID) (ledger.Order, error) {
	o, ok := tv.parent.orders[id]
	if !ok {
		return ledger.Order{}, ledger.ErrOrderNotFound
	}
	return o, nil
}

func (tv *txMemoryView) Orders(_ context.Context, id ledger.AccountID) ([]ledger.Order, error) {
	var result []ledger.Order
	for _, o := range tv.parent.orders {
		if o.AccountID == id {
			result = append(result, o)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (tv *txMemoryView) UpdateOrderStatus(_ context.Context, id ledger.OrderID, status ledger.OrderStatus) error {
	o, ok := tv.parent.orders[id]
	if !ok {
		return ledger.ErrOrderNotFound
	}
	o.Status = status
	tv.parent.orders[id] = o
	return nil
}

func (tv *txMemoryView) MarkOrderExported(_ context.Context, id ledger.OrderID) error {
	o, ok := tv.parent.orders[id]
	if !ok {
		return ledger.ErrOrderNotFound
	}
	o.Exported = true
	tv.parent.orders[id] = o
	return nil
}
