package ledger

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// WALLET LIFECYCLE
// =============================================================================

// WalletService creates, renames and removes wallets. Balance is only ever
// written by the balance engine or by an explicit SetBalance.
type WalletService struct {
	store Store
	opts  options
}

func NewWalletService(store Store, opts ...Option) *WalletService {
	return &WalletService{store: store, opts: buildOptions(opts)}
}

func (s *WalletService) Create(ctx context.Context, userID UserID, name string, typ WalletType, initial decimal.Decimal) (Wallet, error) {
	name = strings.TrimSpace(name)
	switch {
	case userID == "":
		return Wallet{}, invalid("user_id", "is required")
	case name == "":
		return Wallet{}, invalid("name", "is required")
	}
	if typ == "" {
		typ = WalletChecking
	}
	if !typ.Valid() {
		return Wallet{}, invalid("type", "unknown wallet type %q", typ)
	}

	now := s.opts.now()
	w := Wallet{
		ID:        WalletID(s.opts.newID()),
		UserID:    userID,
		Name:      name,
		Type:      typ,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// A non-zero starting balance is recorded as an opening transaction so
	// that reconciliation rebuilds it instead of wiping it.
	var changes []BalanceChange
	err := atomically(ctx, s.store, func(st Store) error {
		if err := st.CreateWallet(ctx, w); err != nil {
			return storeErr("create wallet", err)
		}
		if initial.IsZero() {
			return nil
		}
		opening := Transaction{
			ID:        TransactionID(s.opts.newID()),
			UserID:    userID,
			WalletID:  w.ID,
			Amount:    initial.Abs(),
			Quantity:  1,
			Type:      TypeIncome,
			Category:  OpeningBalanceCategory,
			Date:      now,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if initial.IsNegative() {
			opening.Type = TypeExpense
		}
		if err := st.InsertTransaction(ctx, opening); err != nil {
			return storeErr("insert transaction", err)
		}
		var err error
		changes, err = applyLegs(ctx, st, userID, opening.ID, Effect(opening), ReasonApply, now)
		if len(changes) > 0 {
			w.Balance, w.Version = changes[0].Balance, w.Version+1
		}
		return err
	})
	if err != nil {
		return Wallet{}, err
	}
	s.opts.publish(ctx, changes)
	return w, nil
}

// OpeningBalanceCategory is the category of the transaction created for a
// wallet's starting balance.
const OpeningBalanceCategory = "Opening balance"

func (s *WalletService) Get(ctx context.Context, userID UserID, id WalletID) (Wallet, error) {
	w, err := s.store.GetWallet(ctx, userID, id)
	return w, storeErr("get wallet", err)
}

// List returns the user's wallets, oldest first.
func (s *WalletService) List(ctx context.Context, userID UserID) ([]Wallet, error) {
	ws, err := s.store.ListWallets(ctx, userID)
	return ws, storeErr("list wallets", err)
}

func (s *WalletService) Rename(ctx context.Context, userID UserID, id WalletID, name string) (Wallet, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Wallet{}, invalid("name", "is required")
	}
	w, err := s.store.GetWallet(ctx, userID, id)
	if err != nil {
		return Wallet{}, storeErr("get wallet", err)
	}
	w.Name = name
	w.UpdatedAt = s.opts.now()
	if err := s.store.UpdateWallet(ctx, w); err != nil {
		return Wallet{}, storeErr("update wallet", err)
	}
	return w, nil
}

// SetBalance is an explicit manual override. The next reconciliation will
// undo it unless the ledger agrees.
func (s *WalletService) SetBalance(ctx context.Context, userID UserID, id WalletID, balance decimal.Decimal) (Wallet, error) {
	var (
		w      Wallet
		change BalanceChange
	)
	err := atomically(ctx, s.store, func(st Store) error {
		old, err := st.GetWallet(ctx, userID, id)
		if err != nil {
			return storeErr("get wallet", err)
		}
		w, err = st.SetBalance(ctx, userID, id, balance)
		if err != nil {
			return storeErr("set balance", err)
		}
		change = BalanceChange{
			UserID:   userID,
			WalletID: id,
			Reason:   ReasonManual,
			Delta:    w.Balance.Sub(old.Balance),
			Balance:  w.Balance,
			At:       s.opts.now(),
		}
		return nil
	})
	if err != nil {
		return Wallet{}, err
	}
	s.opts.publish(ctx, []BalanceChange{change})
	return w, nil
}

// Delete removes a wallet that no transaction references.
func (s *WalletService) Delete(ctx context.Context, userID UserID, id WalletID) error {
	return atomically(ctx, s.store, func(st Store) error {
		if _, err := st.GetWallet(ctx, userID, id); err != nil {
			return storeErr("get wallet", err)
		}
		n, err := st.CountWalletReferences(ctx, userID, id)
		if err != nil {
			return storeErr("count wallet references", err)
		}
		if n > 0 {
			return &WalletInUseError{WalletID: id, References: n}
		}
		return storeErr("delete wallet", st.DeleteWallet(ctx, userID, id))
	})
}
