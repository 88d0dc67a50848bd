/*
errors.go - Centralized error types for the points ledger

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers should match with errors.Is / errors.As rather than string
  comparison.

ERROR CATEGORIES:
  1. Policy errors - Configured limits violated (quantity/price bounds)
  2. Balance errors - Insufficient funds, with exact shortfall amounts
  3. Confirmation signals - Re-askable decision points, not hard failures
  4. Invariant violations - Ledger corruption; logged loudly, never swallowed

USAGE:
  var confirm *ledger.ConfirmationRequiredError
  if errors.As(err, &confirm) {
      // re-prompt the user with confirm.PurchaseUnitPrice,
      // then resubmit with ConfirmLowPrice = true
  }

SEE ALSO:
  - engine: produces most of these from its validation sequences
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInsufficientBalance is returned when a deduction exceeds the
	// account's points balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrBelowMinQuantity is returned when a transfer quantity is under the
	// configured floor.
	ErrBelowMinQuantity = errors.New("transfer quantity below minimum")

	// ErrAbovePriceCeiling is returned when a transfer unit price exceeds the
	// configured ceiling.
	ErrAbovePriceCeiling = errors.New("transfer unit price above maximum")

	// ErrConfirmationRequired is returned when a transfer is priced below the
	// sender's FIFO acquisition cost and the sender has not confirmed. It is
	// a decision point, not a hard failure: resubmit with the low-price
	// confirmation flag set to proceed.
	ErrConfirmationRequired = errors.New("low transfer price requires confirmation")

	// ErrAccountNotFound is returned when a referenced account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrRecipientNotFound is returned when the transfer recipient doesn't exist.
	ErrRecipientNotFound = errors.New("recipient not found")

	// ErrSelfTransfer is returned when sender and recipient are the same account.
	ErrSelfTransfer = errors.New("cannot transfer to self")

	// ErrOrderNotFound is returned when a referenced order doesn't exist.
	ErrOrderNotFound = errors.New("order not found")

	// ErrBadCredential is returned by the credential collaborator when the
	// payment password does not match.
	ErrBadCredential = errors.New("payment password incorrect")

	// ErrAgentOnly is returned when an agent-only operation is attempted by
	// an ordinary account.
	ErrAgentOnly = errors.New("operation restricted to agent accounts")

	// ErrDuplicatePromoCode is returned when promo code generation collides.
	// Retried internally; callers normally never see it.
	ErrDuplicatePromoCode = errors.New("promo code already exists")

	// ErrDuplicatePhone is returned when registering a phone number that
	// already belongs to an account.
	ErrDuplicatePhone = errors.New("phone number already registered")

	// ErrInvariantViolation indicates ledger corruption (negative balance
	// after debit, balance diverging from entry sum). It must be logged with
	// full context before being returned.
	ErrInvariantViolation = errors.New("ledger invariant violation")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError reports the exact shortfall, so the caller can
// surface a specific message instead of a generic failure.
type InsufficientBalanceError struct {
	AccountID AccountID
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %s, requested %s, short %s",
		e.Available.StringFixed(2), e.Requested.StringFixed(2),
		e.Requested.Sub(e.Available).StringFixed(2))
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// PolicyViolationError reports a configured-limit breach with the limit and
// the offending value.
type PolicyViolationError struct {
	Violation error // ErrBelowMinQuantity or ErrAbovePriceCeiling
	Limit     decimal.Decimal
	Actual    decimal.Decimal
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("%v: limit %s, got %s", e.Violation, e.Limit, e.Actual)
}

func (e *PolicyViolationError) Unwrap() error { return e.Violation }

// ConfirmationRequiredError is the distinguished "needs confirmation" signal
// for below-cost transfers. It carries the FIFO purchase unit price so the
// caller can re-prompt with the exact floor.
type ConfirmationRequiredError struct {
	PurchaseUnitPrice decimal.Decimal
}

func (e *ConfirmationRequiredError) Error() string {
	return fmt.Sprintf("transfer price below purchase cost %s per point; confirmation required",
		e.PurchaseUnitPrice.StringFixed(4))
}

func (e *ConfirmationRequiredError) Unwrap() error { return ErrConfirmationRequired }

// InvariantViolationError wraps ErrInvariantViolation with the account and a
// description of what diverged.
type InvariantViolationError struct {
	AccountID AccountID
	Detail    string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("ledger invariant violation for account %s: %s", e.AccountID, e.Detail)
}

func (e *InvariantViolationError) Unwrap() error { return ErrInvariantViolation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input or
// a policy limit, as opposed to an internal failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrBelowMinQuantity) ||
		errors.Is(err, ErrAbovePriceCeiling) ||
		errors.Is(err, ErrSelfTransfer) ||
		errors.Is(err, ErrBadCredential) ||
		errors.Is(err, ErrAgentOnly) ||
		errors.Is(err, ErrDuplicatePhone)
}

// IsNotFound returns true if the error indicates a missing account or order.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrRecipientNotFound) ||
		errors.Is(err, ErrOrderNotFound)
}

// NeedsConfirmation returns true if the error is the re-askable low-price
// signal rather than a hard failure.
func NeedsConfirmation(err error) bool {
	return errors.Is(err, ErrConfirmationRequired)
}
