package engine

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/points-ledger/ledger"
)

// =============================================================================
// REGISTRATION
// =============================================================================

// RegisterInput carries everything needed to open an account. ParentPromo
// is optional: empty means the account joins with no upline and never
// triggers referral rewards.
type RegisterInput struct {
	Name        string
	Phone       string
	Role        ledger.Role
	ParentPromo string
	PayPassword string
}

// Register opens an account, links it to its upline by promo code, and
// assigns it a fresh promo code of its own.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (ledger.Account, error) {
	hash, err := e.creds.Hash(in.PayPassword)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("hash pay password: %w", err)
	}

	var out ledger.Account
	err = e.store.WithTx(ctx, func(tx ledger.Store) error {
		if _, err := tx.AccountByPhone(ctx, in.Phone); err == nil {
			return fmt.Errorf("phone %s: %w", in.Phone, ledger.ErrDuplicatePhone)
		}

		var parentID *ledger.AccountID
		if in.ParentPromo != "" {
			parent, err := tx.AccountByPromoCode(ctx, in.ParentPromo)
			if err != nil {
				return fmt.Errorf("resolve upline %q: %w", in.ParentPromo, err)
			}
			parentID = &parent.ID
		}

		promo, err := e.freshPromoCode(ctx, tx)
		if err != nil {
			return err
		}

		acct := ledger.Account{
			ID:              ledger.AccountID(uuid.NewString()),
			PromoCode:       promo,
			Name:            in.Name,
			Phone:           in.Phone,
			Role:            in.Role,
			ParentID:        parentID,
			Balance:         decimal.Zero,
			PayPasswordHash: hash,
			CreatedAt:       e.now(),
		}
		if err := tx.CreateAccount(ctx, acct); err != nil {
			return err
		}
		out = acct
		return nil
	})
	if err != nil {
		return ledger.Account{}, err
	}
	return out, nil
}

// freshPromoCode draws 6-digit codes until one is unused. Collisions are
// rare at realistic account counts, so a bounded retry loop suffices.
func (e *Engine) freshPromoCode(ctx context.Context, s ledger.Store) (string, error) {
	for attempt := 0; attempt < 20; attempt++ {
		n, err := rand.Int(rand.Reader, big.NewInt(900000))
		if err != nil {
			return "", fmt.Errorf("generate promo code: %w", err)
		}
		code := fmt.Sprintf("%06d", n.Int64()+100000)
		if _, err := s.AccountByPromoCode(ctx, code); err != nil {
			if ledger.IsNotFound(err) {
				return code, nil
			}
			return "", err
		}
	}
	return "", ledger.ErrDuplicatePromoCode
}

// =============================================================================
// LOOKUPS
// =============================================================================

func (e *Engine) Account(ctx context.Context, id ledger.AccountID) (ledger.Account, error) {
	return e.store.Account(ctx, id)
}

// Upline returns the account's parent chain, nearest first, up to depth
// levels. A platform-root parent terminates the walk.
func (e *Engine) Upline(ctx context.Context, id ledger.AccountID, depth int) ([]ledger.Account, error) {
	acct, err := e.store.Account(ctx, id)
	if err != nil {
		return nil, err
	}
	var chain []ledger.Account
	for len(chain) < depth && acct.ParentID != nil {
		parent, err := e.store.Account(ctx, *acct.ParentID)
		if err != nil {
			if ledger.IsNotFound(err) {
				break
			}
			return nil, err
		}
		chain = append(chain, parent)
		if parent.IsPlatformRoot() {
			break
		}
		acct = parent
	}
	return chain, nil
}
