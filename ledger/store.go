/*
store.go - Persistence interfaces for accounts, entries, and orders

PURPOSE:
  Defines the interface between the domain logic and the database. The Store
  maintains append-only semantics for entries: there is no update or delete
  for them, only Append.

KEY INTERFACES:
  Store:   Account lookup/balance, entry append/load, order persistence
  TxStore: Transactional wrapper for atomic multi-write operations

APPEND-ONLY CONTRACT:
  Entries have exactly one write operation, AppendEntry. Orders may change
  status and the exported flag, but their pricing fields and their associated
  entries never change.

ORDERING:
  Entry loads return ascending (created_at, seq) order. FIFO cost-basis
  reconstruction and profit attribution depend on this ordering being stable.

IMPLEMENTATIONS:
  - ledger/store/memory.go: In-memory, for tests and development
  - store/sqlite:           SQLite with WAL
  - store/postgres:         PostgreSQL with row-level locking
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE - Persistence interface
// =============================================================================

// Store handles persistence of accounts, entries, and orders.
//
// Entry writes are APPEND-ONLY. Balance updates must happen together with
// the entry that explains them, inside the same TxStore transaction.
type Store interface {
	// CreateAccount persists a new account. Fails if the ID, promo code, or
	// phone already exists.
	CreateAccount(ctx context.Context, a Account) error

	// Account returns the account by id, or ErrAccountNotFound.
	// Inside a TxStore transaction, implementations that support it lock the
	// row for update so concurrent balance mutations serialize.
	Account(ctx context.Context, id AccountID) (Account, error)

	// AccountByPromoCode returns the account with the given referral code.
	AccountByPromoCode(ctx context.Context, code string) (Account, error)

	// AccountByPhone returns the account with the given phone number.
	// Used as the transfer recipient lookup key.
	AccountByPhone(ctx context.Context, phone string) (Account, error)

	// UpdateBalance sets the account's balance. Only the ledger's posting
	// helpers may call this, paired with an AppendEntry in the same
	// transaction.
	UpdateBalance(ctx context.Context, id AccountID, balance decimal.Decimal) error

	// AppendEntry persists an entry, assigning Seq. The ONLY entry write.
	AppendEntry(ctx context.Context, e *Entry) error

	// Entries returns all entries for the account in ascending
	// (created_at, seq) order.
	Entries(ctx context.Context, id AccountID) ([]Entry, error)

	// EntriesByKind returns the account's entries of one kind, ascending.
	EntriesByKind(ctx context.Context, id AccountID, kind EntryKind) ([]Entry, error)

	// CreateOrder persists a new order.
	CreateOrder(ctx context.Context, o Order) error

	// Order returns the order by id, or ErrOrderNotFound.
	Order(ctx context.Context, id OrderID) (Order, error)

	// Orders returns the account's orders, newest first.
	Orders(ctx context.Context, id AccountID) ([]Order, error)

	// UpdateOrderStatus moves an order to approved or rejected.
	UpdateOrderStatus(ctx context.Context, id OrderID, status OrderStatus) error

	// MarkOrderExported flips the exported flag. Ledger content is untouched.
	MarkOrderExported(ctx context.Context, id OrderID) error
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support. Every mutating engine
// operation (order, transfer, recharge) runs inside WithTx so a failure in
// any step rolls back the whole unit of work.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
