package ledger

import (
	"context"
	"strings"
)

// =============================================================================
// TRANSACTION SERVICE - Ledger writes + balance effects in one unit of work
// =============================================================================

// TransactionService is what API handlers call to mutate transactions.
// Every mutation writes the ledger row and the wallet balance(s); when the
// store implements TxStore both happen in one database transaction,
// otherwise they run in order and RecalculateWalletBalance repairs any gap.
type TransactionService struct {
	store Store
	opts  options
}

func NewTransactionService(store Store, opts ...Option) *TransactionService {
	return &TransactionService{store: store, opts: buildOptions(opts)}
}

// ListPage is one page of List results.
type ListPage struct {
	Transactions []Transaction
	NextCursor   TransactionID
	HasMore      bool
}

// Create validates the draft, fills missing fields from the advisor, stores
// the row and applies its effect.
func (s *TransactionService) Create(ctx context.Context, userID UserID, d Draft) (Transaction, error) {
	if userID == "" {
		return Transaction{}, invalid("user_id", "is required")
	}
	d = s.advise(ctx, userID, d)
	if err := validateDraft("", d, true); err != nil {
		return Transaction{}, err
	}

	tx := s.build(userID, d)
	var changes []BalanceChange
	err := atomically(ctx, s.store, func(st Store) error {
		if err := ensureWallets(ctx, st, userID, tx); err != nil {
			return err
		}
		if err := st.InsertTransaction(ctx, tx); err != nil {
			return storeErr("insert transaction", err)
		}
		var err error
		changes, err = applyLegs(ctx, st, userID, tx.ID, Effect(tx), ReasonApply, s.opts.now())
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	s.opts.publish(ctx, changes)
	return tx, nil
}

// Get returns one transaction of the user.
func (s *TransactionService) Get(ctx context.Context, userID UserID, id TransactionID) (Transaction, error) {
	tx, err := s.store.GetTransaction(ctx, userID, id)
	return tx, storeErr("get transaction", err)
}

// List returns top-level transactions, newest first, paginated by cursor.
func (s *TransactionService) List(ctx context.Context, userID UserID, filter TransactionFilter) (ListPage, error) {
	txs, err := s.store.ListTransactions(ctx, userID, filter)
	if err != nil {
		return ListPage{}, storeErr("list transactions", err)
	}
	if filter.Cursor != "" {
		for i, tx := range txs {
			if tx.ID == filter.Cursor {
				txs = txs[i+1:]
				break
			}
		}
	}
	page := ListPage{Transactions: txs}
	if filter.Limit > 0 && len(txs) > filter.Limit {
		page.Transactions = txs[:filter.Limit]
		page.HasMore = true
		page.NextCursor = page.Transactions[filter.Limit-1].ID
	}
	return page, nil
}

// Children returns the itemized children of a grouped transaction.
func (s *TransactionService) Children(ctx context.Context, userID UserID, parentID TransactionID) ([]Transaction, error) {
	if _, err := s.store.GetTransaction(ctx, userID, parentID); err != nil {
		return nil, storeErr("get transaction", err)
	}
	children, err := s.store.ListChildren(ctx, userID, parentID)
	return children, storeErr("list children", err)
}

// Update edits a transaction following the edit protocol:
// load, revert old effect, persist, apply new effect.
func (s *TransactionService) Update(ctx context.Context, userID UserID, id TransactionID, p Patch) (Transaction, error) {
	if err := validatePatch(p); err != nil {
		return Transaction{}, err
	}

	var (
		updated Transaction
		changes []BalanceChange
	)
	err := atomically(ctx, s.store, func(st Store) error {
		existing, err := st.GetTransaction(ctx, userID, id)
		if err != nil {
			return storeErr("get transaction", err)
		}
		if existing.IsChild() {
			return invalid("id", "child transactions are edited through their parent")
		}
		if existing.HasChildren && (p.Amount != nil || p.Quantity != nil) {
			return invalid("amount", "a grouped transaction's amount is the sum of its children")
		}

		updated = p.Apply(existing)
		updated.UpdatedAt = s.opts.now()
		if err := validateTransaction(updated); err != nil {
			return err
		}
		// Check the new wallets before reverting so a bad wallet ID
		// cannot leave the old wallet reverted.
		if err := ensureWallets(ctx, st, userID, updated); err != nil {
			return err
		}

		reverted, err := applyLegs(ctx, st, userID, existing.ID, invert(Effect(existing)), ReasonRevert, s.opts.now())
		changes = append(changes, reverted...)
		if err != nil {
			return err
		}
		if err := st.UpdateTransaction(ctx, updated); err != nil {
			return storeErr("update transaction", err)
		}
		if updated.HasChildren && updated.WalletID != existing.WalletID {
			if err := s.moveChildren(ctx, st, userID, updated.ID, updated.WalletID); err != nil {
				return err
			}
		}
		applied, err := applyLegs(ctx, st, userID, updated.ID, Effect(updated), ReasonApply, s.opts.now())
		changes = append(changes, applied...)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	s.opts.publish(ctx, changes)
	return updated, nil
}

// Delete reverts the transaction's effect and removes it. Deleting a parent
// removes its children; deleting a child recomputes its parent.
func (s *TransactionService) Delete(ctx context.Context, userID UserID, id TransactionID) error {
	var changes []BalanceChange
	err := atomically(ctx, s.store, func(st Store) error {
		existing, err := st.GetTransaction(ctx, userID, id)
		if err != nil {
			return storeErr("get transaction", err)
		}
		if existing.IsChild() {
			changes, err = s.deleteChild(ctx, st, userID, existing)
			return err
		}

		changes, err = applyLegs(ctx, st, userID, existing.ID, invert(Effect(existing)), ReasonRevert, s.opts.now())
		if err != nil {
			return err
		}
		if existing.HasChildren {
			if _, err := st.DeleteChildren(ctx, userID, existing.ID); err != nil {
				return storeErr("delete children", err)
			}
		}
		return storeErr("delete transaction", st.DeleteTransaction(ctx, userID, existing.ID))
	})
	if err != nil {
		return err
	}
	s.opts.publish(ctx, changes)
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *TransactionService) advise(ctx context.Context, userID UserID, d Draft) Draft {
	if s.opts.advisor == nil || !needsAdvice(d) {
		return d
	}
	sug, err := s.opts.advisor.Suggest(ctx, userID, d)
	if err != nil {
		s.opts.log.Warn().Err(err).Str("user_id", string(userID)).Msg("advisor failed, continuing without suggestion")
		return d
	}
	return sug.fill(d)
}

func (s *TransactionService) build(userID UserID, d Draft) Transaction {
	now := s.opts.now()
	date := d.Date
	if date.IsZero() {
		date = now
	}
	qty := d.Quantity
	if qty == 0 {
		qty = 1
	}
	return Transaction{
		ID:            TransactionID(s.opts.newID()),
		UserID:        userID,
		WalletID:      d.WalletID,
		ToWalletID:    d.ToWalletID,
		Amount:        d.Amount.Decimal,
		Quantity:      qty,
		Type:          d.Type,
		Category:      strings.TrimSpace(d.Category),
		Subcategory:   strings.TrimSpace(d.Subcategory),
		Item:          strings.TrimSpace(d.Item),
		Establishment: strings.TrimSpace(d.Establishment),
		Date:          date,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// ensureWallets checks every wallet the transaction would touch exists for the user.
func ensureWallets(ctx context.Context, st WalletStore, userID UserID, tx Transaction) error {
	if tx.IsChild() {
		return nil
	}
	for _, id := range []WalletID{tx.WalletID, tx.ToWalletID} {
		if id == "" {
			continue
		}
		if _, err := st.GetWallet(ctx, userID, id); err != nil {
			return storeErr("get wallet", err)
		}
	}
	return nil
}

func validateDraft(prefix string, d Draft, needWallet bool) error {
	if !d.Amount.Valid {
		return invalid(prefix+"amount", "is required")
	}
	if d.Quantity < 0 {
		return invalid(prefix+"quantity", "must be positive")
	}
	if !d.Type.Valid() {
		return invalid(prefix+"type", "must be income, expense or transfer")
	}
	if needWallet && d.WalletID == "" {
		return invalid(prefix+"wallet_id", "is required")
	}
	if d.ToWalletID != "" && d.Type != TypeTransfer {
		return invalid(prefix+"to_wallet_id", "is only allowed on transfers")
	}
	return nil
}

func validatePatch(p Patch) error {
	if p.Quantity != nil && *p.Quantity < 1 {
		return invalid("quantity", "must be positive")
	}
	if p.Type != nil && !p.Type.Valid() {
		return invalid("type", "must be income, expense or transfer")
	}
	if p.WalletID != nil && *p.WalletID == "" {
		return invalid("wallet_id", "cannot be cleared")
	}
	return nil
}

func validateTransaction(tx Transaction) error {
	if !tx.Type.Valid() {
		return invalid("type", "must be income, expense or transfer")
	}
	if !tx.IsChild() && tx.WalletID == "" {
		return invalid("wallet_id", "is required")
	}
	if tx.ToWalletID != "" && tx.Type != TypeTransfer {
		return invalid("to_wallet_id", "is only allowed on transfers")
	}
	return nil
}
