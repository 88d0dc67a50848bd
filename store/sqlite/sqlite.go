/*
Package sqlite provides a SQLite-backed implementation of ledger.Store.

PURPOSE:
  Persists accounts, ledger entries, and orders in a single SQLite file.
  Suitable for single-node deployments and integration tests; the postgres
  package carries the same schema to PostgreSQL for multi-node setups.

APPEND-ONLY ENFORCEMENT:
  The entries table has exactly one write path, AppendEntry. There are no
  UPDATE or DELETE statements against it anywhere in this package. Orders
  may change status and the exported flag; their pricing columns never
  change after insert.

KEY TABLES:
  accounts: Referral tree, balances, credentials
  entries:  Immutable ledger; seq is the autoincrement rowid and breaks
            created_at ties, so FIFO replay order is total
  orders:   Priced order records with review status

DECIMALS:
  Money and point columns are stored as TEXT in decimal string form.
  REAL would reintroduce the float drift the decimal types exist to
  prevent.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of WAL mode. WithTx holds
  the write lock for the whole transaction, which also serializes
  concurrent balance mutations against the same account.

USAGE:
  store, err := sqlite.New("./data/points.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
  - store/postgres: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/points-ledger/ledger"
)

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		promo_code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		phone TEXT NOT NULL UNIQUE,
		role TEXT NOT NULL,
		parent_id TEXT REFERENCES accounts(id),
		balance TEXT NOT NULL,
		pay_password_hash TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_parent
		ON accounts(parent_id) WHERE parent_id IS NOT NULL;

	-- Append-only ledger. seq autoincrements and never recycles, so
	-- (created_at, seq) is a total order even within one timestamp.
	CREATE TABLE IF NOT EXISTS entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		kind TEXT NOT NULL,
		delta TEXT NOT NULL,
		balance TEXT NOT NULL,
		description TEXT,
		counterparty_id TEXT,
		unit_price TEXT,
		actual_cash TEXT,
		created_at TEXT NOT NULL
	);

	-- Hot path: FIFO reconstruction reads one account's entries of one
	-- kind in ledger order.
	CREATE INDEX IF NOT EXISTS idx_entries_account_kind
		ON entries(account_id, kind, created_at, seq);
	CREATE INDEX IF NOT EXISTS idx_entries_account
		ON entries(account_id, created_at, seq);

	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		settlement_date TEXT NOT NULL,
		base_price TEXT NOT NULL,
		discount_rate TEXT NOT NULL,
		final_price TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		total_points TEXT NOT NULL,
		status TEXT NOT NULL,
		exported INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_orders_account
		ON orders(account_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_orders_status
		ON orders(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// execer is satisfied by both *sql.DB and *sql.Tx, so the statement
// helpers serve the plain store and the transactional view alike.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (s *Store) CreateAccount(ctx context.Context, a ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createAccount(ctx, s.db, a)
}

func createAccount(ctx context.Context, db execer, a ledger.Account) error {
	query := `
		INSERT INTO accounts
		(id, promo_code, name, phone, role, parent_id, balance, pay_password_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	var parent sql.NullString
	if a.ParentID != nil {
		parent = sql.NullString{String: string(*a.ParentID), Valid: true}
	}
	_, err := db.ExecContext(ctx, query,
		a.ID, a.PromoCode, a.Name, a.Phone, a.Role, parent,
		a.Balance.String(), a.PayPasswordHash,
		a.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		switch {
		case isUniqueViolation(err, "accounts.phone"):
			return ledger.ErrDuplicatePhone
		case isUniqueViolation(err, "accounts.promo_code"):
			return ledger.ErrDuplicatePromoCode
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

const accountColumns = `id, promo_code, name, phone, role, parent_id, balance, pay_password_hash, created_at`

func (s *Store) Account(ctx context.Context, id ledger.AccountID) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return accountBy(ctx, s.db, "id", string(id))
}

func (s *Store) AccountByPromoCode(ctx context.Context, code string) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return accountBy(ctx, s.db, "promo_code", code)
}

func (s *Store) AccountByPhone(ctx context.Context, phone string) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return accountBy(ctx, s.db, "phone", phone)
}

func accountBy(ctx context.Context, db execer, column, value string) (ledger.Account, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE `+column+` = ?`, value)
	return scanAccount(row)
}

func scanAccount(row *sql.Row) (ledger.Account, error) {
	var (
		a         ledger.Account
		parent    sql.NullString
		balance   string
		createdAt string
	)
	err := row.Scan(&a.ID, &a.PromoCode, &a.Name, &a.Phone, &a.Role,
		&parent, &balance, &a.PayPasswordHash, &createdAt)
	if err == sql.ErrNoRows {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	if err != nil {
		return ledger.Account{}, fmt.Errorf("failed to scan account: %w", err)
	}
	if parent.Valid {
		pid := ledger.AccountID(parent.String)
		a.ParentID = &pid
	}
	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return ledger.Account{}, fmt.Errorf("corrupt balance for %s: %w", a.ID, err)
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return a, nil
}

func (s *Store) UpdateBalance(ctx context.Context, id ledger.AccountID, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateBalance(ctx, s.db, id, balance)
}

func updateBalance(ctx context.Context, db execer, id ledger.AccountID, balance decimal.Decimal) error {
	res, err := db.ExecContext(ctx,
		`UPDATE accounts SET balance = ? WHERE id = ?`, balance.String(), id)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

// =============================================================================
// ENTRIES (append-only)
// =============================================================================

func (s *Store) AppendEntry(ctx context.Context, e *ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendEntry(ctx, s.db, e)
}

func appendEntry(ctx context.Context, db execer, e *ledger.Entry) error {
	query := `
		INSERT INTO entries
		(id, account_id, kind, delta, balance, description, counterparty_id, unit_price, actual_cash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	var counterparty, unitPrice, actualCash sql.NullString
	if e.Counterparty != nil {
		counterparty = sql.NullString{String: string(*e.Counterparty), Valid: true}
	}
	if e.UnitPrice != nil {
		unitPrice = sql.NullString{String: e.UnitPrice.String(), Valid: true}
	}
	if e.ActualCash != nil {
		actualCash = sql.NullString{String: e.ActualCash.String(), Valid: true}
	}

	res, err := db.ExecContext(ctx, query,
		e.ID, e.AccountID, e.Kind, e.Delta.String(), e.Balance.String(),
		e.Description, counterparty, unitPrice, actualCash,
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append entry: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read entry seq: %w", err)
	}
	e.Seq = seq
	return nil
}

const entryColumns = `seq, id, account_id, kind, delta, balance, description, counterparty_id, unit_price, actual_cash, created_at`

func (s *Store) Entries(ctx context.Context, id ledger.AccountID) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryEntries(ctx, s.db,
		`SELECT `+entryColumns+` FROM entries WHERE account_id = ? ORDER BY created_at ASC, seq ASC`,
		id)
}

func (s *Store) EntriesByKind(ctx context.Context, id ledger.AccountID, kind ledger.EntryKind) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryEntries(ctx, s.db,
		`SELECT `+entryColumns+` FROM entries WHERE account_id = ? AND kind = ? ORDER BY created_at ASC, seq ASC`,
		id, kind)
}

func queryEntries(ctx context.Context, db execer, query string, args ...any) ([]ledger.Entry, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (ledger.Entry, error) {
	var (
		e            ledger.Entry
		delta        string
		balance      string
		description  sql.NullString
		counterparty sql.NullString
		unitPrice    sql.NullString
		actualCash   sql.NullString
		createdAt    string
	)
	err := rows.Scan(&e.Seq, &e.ID, &e.AccountID, &e.Kind, &delta, &balance,
		&description, &counterparty, &unitPrice, &actualCash, &createdAt)
	if err != nil {
		return e, fmt.Errorf("failed to scan entry: %w", err)
	}

	if e.Delta, err = decimal.NewFromString(delta); err != nil {
		return e, fmt.Errorf("corrupt delta for entry %s: %w", e.ID, err)
	}
	if e.Balance, err = decimal.NewFromString(balance); err != nil {
		return e, fmt.Errorf("corrupt balance for entry %s: %w", e.ID, err)
	}
	e.Description = description.String
	if counterparty.Valid {
		cp := ledger.AccountID(counterparty.String)
		e.Counterparty = &cp
	}
	if unitPrice.Valid {
		d, err := decimal.NewFromString(unitPrice.String)
		if err != nil {
			return e, fmt.Errorf("corrupt unit price for entry %s: %w", e.ID, err)
		}
		e.UnitPrice = &d
	}
	if actualCash.Valid {
		d, err := decimal.NewFromString(actualCash.String)
		if err != nil {
			return e, fmt.Errorf("corrupt actual cash for entry %s: %w", e.ID, err)
		}
		e.ActualCash = &d
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return e, nil
}

// =============================================================================
// ORDERS
// =============================================================================

func (s *Store) CreateOrder(ctx context.Context, o ledger.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createOrder(ctx, s.db, o)
}

func createOrder(ctx context.Context, db execer, o ledger.Order) error {
	query := `
		INSERT INTO orders
		(id, account_id, settlement_date, base_price, discount_rate, final_price, quantity, total_points, status, exported, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		o.ID, o.AccountID,
		o.SettlementDate.UTC().Format(time.RFC3339Nano),
		o.BasePrice.String(), o.DiscountRate.String(), o.FinalPrice.String(),
		o.Quantity, o.TotalPoints.String(), o.Status, o.Exported,
		o.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

const orderColumns = `id, account_id, settlement_date, base_price, discount_rate, final_price, quantity, total_points, status, exported, created_at`

func (s *Store) Order(ctx context.Context, id ledger.OrderID) (ledger.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	orders, err := queryOrders(ctx, s.db,
		`SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	if err != nil {
		return ledger.Order{}, err
	}
	if len(orders) == 0 {
		return ledger.Order{}, ledger.ErrOrderNotFound
	}
	return orders[0], nil
}

func (s *Store) Orders(ctx context.Context, id ledger.AccountID) ([]ledger.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryOrders(ctx, s.db,
		`SELECT `+orderColumns+` FROM orders WHERE account_id = ? ORDER BY created_at DESC`,
		id)
}

func queryOrders(ctx context.Context, db execer, query string, args ...any) ([]ledger.Order, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []ledger.Order
	for rows.Next() {
		var (
			o              ledger.Order
			settlementDate string
			basePrice      string
			discountRate   string
			finalPrice     string
			totalPoints    string
			createdAt      string
		)
		err := rows.Scan(&o.ID, &o.AccountID, &settlementDate, &basePrice,
			&discountRate, &finalPrice, &o.Quantity, &totalPoints,
			&o.Status, &o.Exported, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o.SettlementDate, _ = time.Parse(time.RFC3339Nano, settlementDate)
		o.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		if o.BasePrice, err = decimal.NewFromString(basePrice); err != nil {
			return nil, fmt.Errorf("corrupt base price for order %s: %w", o.ID, err)
		}
		if o.DiscountRate, err = decimal.NewFromString(discountRate); err != nil {
			return nil, fmt.Errorf("corrupt discount rate for order %s: %w", o.ID, err)
		}
		if o.FinalPrice, err = decimal.NewFromString(finalPrice); err != nil {
			return nil, fmt.Errorf("corrupt final price for order %s: %w", o.ID, err)
		}
		if o.TotalPoints, err = decimal.NewFromString(totalPoints); err != nil {
			return nil, fmt.Errorf("corrupt total points for order %s: %w", o.ID, err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id ledger.OrderID, status ledger.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateOrderStatus(ctx, s.db, id, status)
}

func updateOrderStatus(ctx context.Context, db execer, id ledger.OrderID, status ledger.OrderStatus) error {
	res, err := db.ExecContext(ctx,
		`UPDATE orders SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ledger.ErrOrderNotFound
	}
	return nil
}

func (s *Store) MarkOrderExported(ctx context.Context, id ledger.OrderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return markOrderExported(ctx, s.db, id)
}

func markOrderExported(ctx context.Context, db execer, id ledger.OrderID) error {
	res, err := db.ExecContext(ctx,
		`UPDATE orders SET exported = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark order exported: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ledger.ErrOrderNotFound
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore runs every statement on the open transaction. It must not take
// the parent's lock; WithTx already holds it.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) CreateAccount(ctx context.Context, a ledger.Account) error {
	return createAccount(ctx, ts.tx, a)
}

func (ts *txStore) Account(ctx context.Context, id ledger.AccountID) (ledger.Account, error) {
	return accountBy(ctx, ts.tx, "id", string(id))
}

func (ts *txStore) AccountByPromoCode(ctx context.Context, code string) (ledger.Account, error) {
	return accountBy(ctx, ts.tx, "promo_code", code)
}

func (ts *txStore) AccountByPhone(ctx context.Context, phone string) (ledger.Account, error) {
	return accountBy(ctx, ts.tx, "phone", phone)
}

func (ts *txStore) UpdateBalance(ctx context.Context, id ledger.AccountID, balance decimal.Decimal) error {
	return updateBalance(ctx, ts.tx, id, balance)
}

func (ts *txStore) AppendEntry(ctx context.Context, e *ledger.Entry) error {
	return appendEntry(ctx, ts.tx, e)
}

func (ts *txStore) Entries(ctx context.Context, id ledger.AccountID) ([]ledger.Entry, error) {
	return queryEntries(ctx, ts.tx,
		`SELECT `+entryColumns+` FROM entries WHERE account_id = ? ORDER BY created_at ASC, seq ASC`,
		id)
}

func (ts *txStore) EntriesByKind(ctx context.Context, id ledger.AccountID, kind ledger.EntryKind) ([]ledger.Entry, error) {
	return queryEntries(ctx, ts.tx,
		`SELECT `+entryColumns+` FROM entries WHERE account_id = ? AND kind = ? ORDER BY created_at ASC, seq ASC`,
		id, kind)
}

func (ts *txStore) CreateOrder(ctx context.Context, o ledger.Order) error {
	return createOrder(ctx, ts.tx, o)
}

func (ts *txStore) Order(ctx context.Context, id ledger.OrderID) (ledger.Order, error) {
	orders, err := queryOrders(ctx, ts.tx,
		`SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	if err != nil {
		return ledger.Order{}, err
	}
	if len(orders) == 0 {
		return ledger.Order{}, ledger.ErrOrderNotFound
	}
	return orders[0], nil
}

func (ts *txStore) Orders(ctx context.Context, id ledger.AccountID) ([]ledger.Order, error) {
	return queryOrders(ctx, ts.tx,
		`SELECT `+orderColumns+` FROM orders WHERE account_id = ? ORDER BY created_at DESC`,
		id)
}

func (ts *txStore) UpdateOrderStatus(ctx context.Context, id ledger.OrderID, status ledger.OrderStatus) error {
	return updateOrderStatus(ctx, ts.tx, id, status)
}

func (ts *txStore) MarkOrderExported(ctx context.Context, id ledger.OrderID) error {
	return markOrderExported(ctx, ts.tx, id)
}

// =============================================================================
// HELPERS
// =============================================================================

func isUniqueViolation(err error, column string) bool {
	return err != nil &&
		strings.Contains(err.Error(), "UNIQUE constraint failed") &&
		strings.Contains(err.Error(), column)
}
