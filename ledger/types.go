/*
Package ledger provides the core types for the referral points ledger.

PURPOSE:
  This package contains the account, entry, and order types shared by the
  pricing, cost-basis, and engine packages. Balances are never stored as
  authoritative state on their own: every balance change is recorded as an
  Entry, and an account's balance must always equal the running sum of its
  entry deltas.

KEY CONCEPTS IN THIS FILE (types.go):
  - Account: A user with a role, a points balance, and an optional upline
  - Entry: An immutable ledger record of a single balance change
  - Order: A dated points purchase created together with its deduction entry

DESIGN PRINCIPLES:
  1. Immutability: Entries are never modified or deleted once written
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Auditability: Every entry carries a resulting-balance snapshot

SEE ALSO:
  - errors.go: Error taxonomy for ledger operations
  - store.go: Persistence interfaces
  - ledger.go: Entry posting with balance maintenance
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AccountID string
type EntryID string
type OrderID string

// =============================================================================
// ACCOUNT - A user in the referral tree
// =============================================================================

// Role determines reward eligibility and feature access.
type Role string

const (
	RoleOrdinary Role = "ordinary"
	RoleAgent    Role = "agent"
	// RolePlatform marks the distinguished root account. It is excluded from
	// reward distribution even when its role would otherwise qualify.
	RolePlatform Role = "platform"
)

// Account is a user of the points system. ParentID links to the referrer;
// the resulting graph is a forest and must never contain a cycle.
//
// Balance is mutated only by posting entries (see ledger.go). Reading it
// outside a store transaction may observe a stale value.
type Account struct {
	ID        AccountID
	PromoCode string // 6-digit numeric referral code, unique
	Name      string
	Phone     string
	Role      Role
	ParentID  *AccountID
	Balance   decimal.Decimal

	// PayPasswordHash is the bcrypt hash of the payment password, verified
	// by the transfer engine's credential collaborator. Empty for accounts
	// that have not set one.
	PayPasswordHash string

	CreatedAt time.Time
}

// IsPlatformRoot reports whether this is the distinguished root account.
func (a Account) IsPlatformRoot() bool { return a.Role == RolePlatform }

// =============================================================================
// ENTRY - Atomic, append-only balance change
// =============================================================================

type EntryKind string

const (
	KindRecharge       EntryKind = "recharge"        // Admin credit; carries the cash actually paid
	KindOrderDeduction EntryKind = "order_deduction" // Points spent on an order
	KindTransferOut    EntryKind = "transfer_out"    // Points sent to another account
	KindTransferIn     EntryKind = "transfer_in"     // Points received from another account
	KindReward         EntryKind = "reward"          // Direct or indirect override reward
)

// Entry is one immutable row in the account's ledger.
//
// Entries for an account are totally ordered by (CreatedAt, Seq); the store
// assigns Seq at append time to break timestamp ties. This ordering is
// load-bearing: FIFO cost-basis reconstruction replays entries in it.
type Entry struct {
	ID        EntryID
	AccountID AccountID
	Kind      EntryKind
	Delta     decimal.Decimal // signed points change
	Balance   decimal.Decimal // account balance after this entry

	Description string

	// Counterparty is the other account for transfers and rewards.
	Counterparty *AccountID

	// UnitPrice is the agreed cash price per point. Set on transfer_out
	// entries only; the cost-basis and profit calculations depend on it.
	UnitPrice *decimal.Decimal

	// ActualCash is the real cash paid after recharge discounts. Set on
	// recharge entries only; it defines the FIFO lot's unit cost.
	ActualCash *decimal.Decimal

	CreatedAt time.Time
	Seq       int64 // insertion order, assigned by the store
}

// Quantity returns the absolute points moved by this entry.
func (e Entry) Quantity() decimal.Decimal { return e.Delta.Abs() }

// =============================================================================
// ORDER - A dated points purchase
// =============================================================================

type OrderStatus string

const (
	OrderPending  OrderStatus = "pending"
	OrderApproved OrderStatus = "approved"
	OrderRejected OrderStatus = "rejected"
)

// Order records a points purchase for a settlement date. It is created
// atomically with its order_deduction entry and any reward entries; status
// and the exported flag are the only fields that change afterwards, and
// neither touches ledger content.
type Order struct {
	ID             OrderID
	AccountID      AccountID
	SettlementDate time.Time // business date, midnight UTC; distinct from CreatedAt
	BasePrice      decimal.Decimal
	DiscountRate   decimal.Decimal // fraction, 1.0 = no discount
	FinalPrice     decimal.Decimal // discounted unit price, 2dp
	Quantity       int64
	TotalPoints    decimal.Decimal // quantity × base × rate, rounded to 2dp
	Status         OrderStatus
	Exported       bool
	CreatedAt      time.Time
}
