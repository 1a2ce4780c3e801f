package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// GROUPED PURCHASES - One parent carries the balance effect of many items
// =============================================================================

// CreateGrouped stores a parent and its itemized children in one step.
//
// Every child is validated before anything is written. The parent's amount
// is Σ child.Amount × child.Qty() regardless of what the parent draft says,
// and only the parent is applied to the wallet.
func (s *TransactionService) CreateGrouped(ctx context.Context, userID UserID, parent Draft, children []Draft) (Transaction, []Transaction, error) {
	if userID == "" {
		return Transaction{}, nil, invalid("user_id", "is required")
	}
	parent = s.advise(ctx, userID, parent)

	for i, c := range children {
		if c.Type == "" {
			c.Type = parent.Type
		}
		if err := validateDraft(fmt.Sprintf("children[%d].", i), c, false); err != nil {
			return Transaction{}, nil, err
		}
		if c.ToWalletID != "" {
			return Transaction{}, nil, invalid(fmt.Sprintf("children[%d].to_wallet_id", i), "is not allowed on children")
		}
	}

	total := decimal.Zero
	for _, c := range children {
		total = total.Add(lineTotal(c.Amount.Decimal, c.Quantity))
	}
	parent.Amount = decimal.NullDecimal{Decimal: total, Valid: true}
	parent.Quantity = 1
	if err := validateDraft("", parent, true); err != nil {
		return Transaction{}, nil, err
	}

	p := s.build(userID, parent)
	p.HasChildren = true
	p.ChildrenCount = len(children)

	rows := make([]Transaction, 0, len(children)+1)
	rows = append(rows, p)
	for _, c := range children {
		rows = append(rows, s.buildChild(userID, p, c))
	}

	var changes []BalanceChange
	err := atomically(ctx, s.store, func(st Store) error {
		if err := ensureWallets(ctx, st, userID, p); err != nil {
			return err
		}
		if err := st.InsertTransactions(ctx, rows); err != nil {
			return storeErr("insert grouped transaction", err)
		}
		var err error
		changes, err = applyLegs(ctx, st, userID, p.ID, Effect(p), ReasonApply, s.opts.now())
		return err
	})
	if err != nil {
		return Transaction{}, nil, err
	}
	s.opts.publish(ctx, changes)
	return p, rows[1:], nil
}

// AddChild attaches a new item to an existing transaction and recomputes the
// parent. An ordinary transaction becomes a parent this way.
func (s *TransactionService) AddChild(ctx context.Context, userID UserID, parentID TransactionID, d Draft) (Transaction, error) {
	var (
		child   Transaction
		changes []BalanceChange
	)
	err := atomically(ctx, s.store, func(st Store) error {
		parent, err := st.GetTransaction(ctx, userID, parentID)
		if err != nil {
			return storeErr("get transaction", err)
		}
		if parent.IsChild() {
			return invalid("parent_id", "children cannot have children")
		}
		if d.Type == "" {
			d.Type = parent.Type
		}
		if err := validateDraft("", d, false); err != nil {
			return err
		}
		if d.ToWalletID != "" {
			return invalid("to_wallet_id", "is not allowed on children")
		}

		child = s.buildChild(userID, parent, d)
		if err := st.InsertTransaction(ctx, child); err != nil {
			return storeErr("insert transaction", err)
		}
		_, changes, err = s.recomputeParent(ctx, st, userID, parent)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	s.opts.publish(ctx, changes)
	return child, nil
}

// UpdateChild edits one item and recomputes its parent.
func (s *TransactionService) UpdateChild(ctx context.Context, userID UserID, parentID, childID TransactionID, p Patch) (Transaction, error) {
	if err := validatePatch(p); err != nil {
		return Transaction{}, err
	}
	if p.ToWalletID != nil && *p.ToWalletID != "" {
		return Transaction{}, invalid("to_wallet_id", "is not allowed on children")
	}

	var (
		updated Transaction
		changes []BalanceChange
	)
	err := atomically(ctx, s.store, func(st Store) error {
		child, err := s.loadChild(ctx, st, userID, parentID, childID)
		if err != nil {
			return err
		}
		updated = p.Apply(child)
		updated.WalletID = child.WalletID
		updated.UpdatedAt = s.opts.now()
		if err := st.UpdateTransaction(ctx, updated); err != nil {
			return storeErr("update transaction", err)
		}
		parent, err := st.GetTransaction(ctx, userID, parentID)
		if err != nil {
			return storeErr("get transaction", err)
		}
		_, changes, err = s.recomputeParent(ctx, st, userID, parent)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	s.opts.publish(ctx, changes)
	return updated, nil
}

// DeleteChild removes one item and recomputes its parent. When the last item
// goes, the parent is left as an ordinary transaction with amount zero.
func (s *TransactionService) DeleteChild(ctx context.Context, userID UserID, parentID, childID TransactionID) error {
	var changes []BalanceChange
	err := atomically(ctx, s.store, func(st Store) error {
		child, err := s.loadChild(ctx, st, userID, parentID, childID)
		if err != nil {
			return err
		}
		changes, err = s.deleteChild(ctx, st, userID, child)
		return err
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

func (s *TransactionService) deleteChild(ctx context.Context, st Store, userID UserID, child Transaction) ([]BalanceChange, error) {
	if err := st.DeleteTransaction(ctx, userID, child.ID); err != nil {
		return nil, storeErr("delete transaction", err)
	}
	parent, err := st.GetTransaction(ctx, userID, child.ParentID)
	if err != nil {
		return nil, storeErr("get transaction", err)
	}
	_, changes, err := s.recomputeParent(ctx, st, userID, parent)
	return changes, err
}

func (s *TransactionService) loadChild(ctx context.Context, st Store, userID UserID, parentID, childID TransactionID) (Transaction, error) {
	child, err := st.GetTransaction(ctx, userID, childID)
	if err != nil {
		return Transaction{}, storeErr("get transaction", err)
	}
	if child.ParentID != parentID {
		return Transaction{}, ErrTransactionNotFound
	}
	return child, nil
}

// recomputeParent rebuilds the parent's aggregate from its current children
// and moves the wallet by the difference (revert old, apply new).
func (s *TransactionService) recomputeParent(ctx context.Context, st Store, userID UserID, parent Transaction) (Transaction, []BalanceChange, error) {
	children, err := st.ListChildren(ctx, userID, parent.ID)
	if err != nil {
		return Transaction{}, nil, storeErr("list children", err)
	}

	updated := parent
	updated.Amount = decimal.Zero
	for _, c := range children {
		updated.Amount = updated.Amount.Add(lineTotal(c.Amount, c.Quantity))
	}
	updated.Quantity = 1
	updated.HasChildren = len(children) > 0
	updated.ChildrenCount = len(children)
	updated.UpdatedAt = s.opts.now()

	changes, err := applyLegs(ctx, st, userID, parent.ID, invert(Effect(parent)), ReasonRevert, s.opts.now())
	if err != nil {
		return Transaction{}, changes, err
	}
	if err := st.UpdateTransaction(ctx, updated); err != nil {
		return Transaction{}, changes, storeErr("update transaction", err)
	}
	applied, err := applyLegs(ctx, st, userID, updated.ID, Effect(updated), ReasonApply, s.opts.now())
	return updated, append(changes, applied...), err
}

// buildChild makes a child row. Children always name their parent's wallet.
func (s *TransactionService) buildChild(userID UserID, parent Transaction, d Draft) Transaction {
	d.WalletID = parent.WalletID
	if strings.TrimSpace(d.Category) == "" {
		d.Category = parent.Category
	}
	if d.Date.IsZero() {
		d.Date = parent.Date
	}
	child := s.build(userID, d)
	child.ParentID = parent.ID
	return child
}

// lineTotal is amount × quantity with quantities below 1 counted as 1.
func lineTotal(amount decimal.Decimal, qty int) decimal.Decimal {
	if qty < 1 {
		qty = 1
	}
	return amount.Mul(decimal.NewFromInt(int64(qty)))
}

// moveChildren points every child of parent at walletID.
func (s *TransactionService) moveChildren(ctx context.Context, st Store, userID UserID, parent TransactionID, walletID WalletID) error {
	children, err := st.ListChildren(ctx, userID, parent)
	if err != nil {
		return storeErr("list children", err)
	}
	for _, c := range children {
		if c.WalletID == walletID {
			continue
		}
		c.WalletID = walletID
		c.UpdatedAt = s.opts.now()
		if err := st.UpdateTransaction(ctx, c); err != nil {
			return storeErr("update transaction", err)
		}
	}
	return nil
}
