/*
balance.go - Balance Application Service

PURPOSE:
  Keeps Wallet.Balance equal to the sum of the effects of the non-child
  transactions assigned to the wallet.

OPERATIONS:
  UpdateBalanceForTransaction: balance += effect(tx)     (used on create)
  RevertBalanceForTransaction: balance -= effect(tx)     (used before edit/delete)
  RecalculateWalletBalance:    balance  = sum(ledger)    (self-healing)

EDIT PROTOCOL (see service.go):
  1. Load existing row
  2. Revert existing        <- removes old effect from the OLD wallet
  3. Persist updated row
  4. Apply updated          <- adds new effect to the (maybe different) wallet

FAILURE SEMANTICS:
  Without a TxStore, a crash between 2 and 4 under-counts the wallet.
  RecalculateWalletBalance does not depend on any apply/revert history,
  only on current ledger rows, so running it repairs any such drift.
  It is safe to call at any time and idempotent.
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// BalanceService is the contract callers use to move wallet balances.
type BalanceService interface {
	UpdateBalanceForTransaction(ctx context.Context, tx Transaction, userID UserID) error
	RevertBalanceForTransaction(ctx context.Context, tx Transaction, userID UserID) error
	RecalculateWalletBalance(ctx context.Context, walletID WalletID, userID UserID) (decimal.Decimal, error)
}

// ChangeReason says why a balance moved.
type ChangeReason string

const (
	ReasonApply       ChangeReason = "apply"
	ReasonRevert      ChangeReason = "revert"
	ReasonRecalculate ChangeReason = "recalculate"
	ReasonManual      ChangeReason = "manual"
)

// BalanceChange records one committed balance write.
type BalanceChange struct {
	UserID        UserID
	WalletID      WalletID
	TransactionID TransactionID
	Reason        ChangeReason
	Delta         decimal.Decimal
	Balance       decimal.Decimal
	At            time.Time
}

// =============================================================================
// DEFAULT IMPLEMENTATION
// =============================================================================

// Balances implements BalanceService on top of a Store.
type Balances struct {
	store Store
	opts  options
}

var _ BalanceService = (*Balances)(nil)

func NewBalanceService(store Store, opts ...Option) *Balances {
	return &Balances{store: store, opts: buildOptions(opts)}
}

// UpdateBalanceForTransaction adds the transaction's effect to its wallet(s).
// Fails with ErrWalletNotFound if a wallet is absent or not owned by userID.
func (b *Balances) UpdateBalanceForTransaction(ctx context.Context, tx Transaction, userID UserID) error {
	var changes []BalanceChange
	err := atomically(ctx, b.store, func(st Store) error {
		var err error
		changes, err = applyLegs(ctx, st, userID, tx.ID, Effect(tx), ReasonApply, b.opts.now())
		return err
	})
	if err != nil {
		return err
	}
	b.opts.publish(ctx, changes)
	return nil
}

// RevertBalanceForTransaction subtracts the transaction's effect from its wallet(s).
func (b *Balances) RevertBalanceForTransaction(ctx context.Context, tx Transaction, userID UserID) error {
	var changes []BalanceChange
	err := atomically(ctx, b.store, func(st Store) error {
		var err error
		changes, err = applyLegs(ctx, st, userID, tx.ID, invert(Effect(tx)), ReasonRevert, b.opts.now())
		return err
	})
	if err != nil {
		return err
	}
	b.opts.publish(ctx, changes)
	return nil
}

// RecalculateWalletBalance rebuilds the balance from the ledger and overwrites it.
func (b *Balances) RecalculateWalletBalance(ctx context.Context, walletID WalletID, userID UserID) (decimal.Decimal, error) {
	var change BalanceChange
	err := atomically(ctx, b.store, func(st Store) error {
		var err error
		change, err = recalculate(ctx, st, userID, walletID, b.opts.now())
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	if !change.Delta.IsZero() {
		b.opts.log.Warn().
			Str("wallet_id", string(walletID)).
			Str("user_id", string(userID)).
			Str("drift", change.Delta.String()).
			Msg("wallet balance drift corrected")
		b.opts.publish(ctx, []BalanceChange{change})
	}
	return change.Balance, nil
}

// =============================================================================
// SHARED STEPS - Used by Balances and TransactionService inside one unit of work
// =============================================================================

// applyLegs writes each leg with an atomic increment. A failure on a later
// leg leaves earlier legs written unless the caller runs inside WithTx.
func applyLegs(ctx context.Context, st WalletStore, userID UserID, txID TransactionID, legs []Leg, reason ChangeReason, at time.Time) ([]BalanceChange, error) {
	changes := make([]BalanceChange, 0, len(legs))
	for _, leg := range legs {
		w, err := st.AdjustBalance(ctx, userID, leg.WalletID, leg.Delta)
		if err != nil {
			return changes, storeErr("adjust balance", err)
		}
		changes = append(changes, BalanceChange{
			UserID:        userID,
			WalletID:      leg.WalletID,
			TransactionID: txID,
			Reason:        reason,
			Delta:         leg.Delta,
			Balance:       w.Balance,
			At:            at,
		})
	}
	return changes, nil
}

// ledgerBalance sums the effect of every non-child row touching walletID.
func ledgerBalance(ctx context.Context, st Store, userID UserID, walletID WalletID) (decimal.Decimal, error) {
	txs, err := st.ListWalletTransactions(ctx, userID, walletID)
	if err != nil {
		return decimal.Zero, storeErr("list wallet transactions", err)
	}
	total := decimal.Zero
	for _, tx := range txs {
		if tx.UserID != userID || tx.IsChild() {
			continue
		}
		total = total.Add(EffectOn(tx, walletID))
	}
	return total, nil
}

func recalculate(ctx context.Context, st Store, userID UserID, walletID WalletID, at time.Time) (BalanceChange, error) {
	w, err := st.GetWallet(ctx, userID, walletID)
	if err != nil {
		return BalanceChange{}, storeErr("get wallet", err)
	}
	total, err := ledgerBalance(ctx, st, userID, walletID)
	if err != nil {
		return BalanceChange{}, err
	}
	updated, err := st.SetBalance(ctx, userID, walletID, total)
	if err != nil {
		return BalanceChange{}, storeErr("set balance", err)
	}
	return BalanceChange{
		UserID:   userID,
		WalletID: walletID,
		Reason:   ReasonRecalculate,
		Delta:    updated.Balance.Sub(w.Balance),
		Balance:  updated.Balance,
		At:       at,
	}, nil
}
