/*
Package engine implements the business operations on top of the ledger.

PURPOSE:
  Everything a caller can DO lives here: register accounts, recharge,
  place and review orders, transfer points, compute cash profit, and pull
  statistics. The engine owns no arithmetic and no storage: pricing rules
  come from the pricing package, FIFO attribution from costbasis, and
  persistence from a ledger.TxStore. Each mutating operation runs inside
  one store transaction so a failure leaves no partial writes.

KEY CONCEPTS:
  - Engine: stateless apart from its store, credential verifier, and
    clock. Pricing configuration is passed per call, never cached, so a
    config change applies to the next operation immediately.
  - CredentialVerifier: pay-password hashing is pluggable; production uses
    bcrypt, tests can use a plaintext verifier.
  - Clock: injected time source so date-dependent pricing is testable.

SEE ALSO:
  - ledger: Entry/Account types and the Post primitive
  - pricing: all price and reward arithmetic
  - costbasis: FIFO attribution behind transfers and profit
*/
package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/crypto/bcrypt"

	"github.com/warp/points-ledger/ledger"
)

// =============================================================================
// CREDENTIALS
// =============================================================================

// CredentialVerifier hashes and checks pay passwords.
type CredentialVerifier interface {
	Hash(plaintext string) (string, error)
	Verify(hash, plaintext string) bool
}

// BcryptVerifier is the production CredentialVerifier.
type BcryptVerifier struct {
	Cost int // zero means bcrypt.DefaultCost
}

func (v BcryptVerifier) Hash(plaintext string) (string, error) {
	cost := v.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (v BcryptVerifier) Verify(hash, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// =============================================================================
// METRICS
// =============================================================================

var (
	ordersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "points_orders_total",
		Help: "Orders created, labelled by outcome.",
	}, []string{"outcome"})

	transfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "points_transfers_total",
		Help: "Transfer attempts, labelled by outcome.",
	}, []string{"outcome"})

	rewardsDistributed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "points_rewards_distributed_total",
		Help: "Override rewards credited, labelled by level.",
	}, []string{"level"})

	rechargesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "points_recharges_total",
		Help: "Recharges applied.",
	})
)

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	store  ledger.TxStore
	ledger ledger.Ledger
	creds  CredentialVerifier
	clock  func() time.Time
}

// New builds an Engine. A nil clock defaults to time.Now.
func New(store ledger.TxStore, creds CredentialVerifier, clock func() time.Time) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{store: store, creds: creds, clock: clock}
}

func (e *Engine) now() time.Time { return e.clock() }
