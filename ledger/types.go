/*
Package ledger provides the wallet balance engine.

PURPOSE:
  This package keeps every wallet's stored balance consistent with the
  transactions assigned to it. Creating, editing, moving, grouping and
  deleting transactions all go through here, and a reconciliation path
  rebuilds a balance from the ledger whenever it drifts.

KEY CONCEPTS IN THIS FILE (types.go):
  - Transaction: A financial record owned by one user and one wallet
  - Wallet: Holds the single cached aggregate this engine maintains (Balance)
  - Draft/Patch: Caller input for creating and editing transactions
  - Effective amount: |amount| x quantity

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal, never float64, for money
  2. Scoping: Every read and write is scoped by UserID
  3. Self-healing: Stored balances are a cache; the ledger is the truth
  4. Explicit dependencies: Services take their stores in constructors

USAGE:
  svc := ledger.NewTransactionService(store)
  tx, err := svc.Create(ctx, "user-1", ledger.Draft{
      WalletID: "wallet-1",
      Amount:   ledger.Amount(30),
      Type:     ledger.TypeExpense,
  })

SEE ALSO:
  - effect.go: Signed balance legs of a transaction
  - balance.go: Apply / revert / recalculate against the wallet store
  - service.go: Edit and delete protocols
  - grouped.go: Parent/child grouped purchases
*/
package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type WalletID string
type TransactionID string

// =============================================================================
// TRANSACTION
// =============================================================================

type TransactionType string

const (
	TypeIncome   TransactionType = "income"
	TypeExpense  TransactionType = "expense"
	TypeTransfer TransactionType = "transfer"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeIncome, TypeExpense, TypeTransfer:
		return true
	}
	return false
}

// Transaction is one ledger row.
//
// INVARIANTS:
//   - A child (ParentID set) never affects a wallet directly.
//   - A parent's Amount is the sum of its children's effective amounts.
//   - Every non-child transaction belongs to exactly one wallet.
type Transaction struct {
	ID         TransactionID
	UserID     UserID
	WalletID   WalletID
	ToWalletID WalletID // destination leg of a transfer, optional

	Amount   decimal.Decimal
	Quantity int
	Type     TransactionType

	Category      string
	Subcategory   string
	Item          string
	Establishment string
	Date          time.Time

	ParentID      TransactionID
	HasChildren   bool
	ChildrenCount int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsChild reports whether the transaction is an itemized child of a grouped purchase.
func (t Transaction) IsChild() bool { return t.ParentID != "" }

// Qty returns the quantity multiplier, treating zero or negative as 1.
func (t Transaction) Qty() int {
	if t.Quantity < 1 {
		return 1
	}
	return t.Quantity
}

// EffectiveAmount returns |amount| x quantity.
func (t Transaction) EffectiveAmount() decimal.Decimal {
	return t.Amount.Abs().Mul(decimal.NewFromInt(int64(t.Qty())))
}

// Touches reports whether the transaction names walletID as source or destination.
func (t Transaction) Touches(walletID WalletID) bool {
	return t.WalletID == walletID || (t.ToWalletID != "" && t.ToWalletID == walletID)
}

// =============================================================================
// WALLET
// =============================================================================

type WalletType string

const (
	WalletChecking   WalletType = "checking"
	WalletCreditCard WalletType = "credit_card"
	WalletSavings    WalletType = "savings"
	WalletInvestment WalletType = "investment"
	WalletCash       WalletType = "cash"
	WalletOther      WalletType = "other"
)

func (t WalletType) Valid() bool {
	switch t {
	case WalletChecking, WalletCreditCard, WalletSavings, WalletInvestment, WalletCash, WalletOther:
		return true
	}
	return false
}

// Wallet holds the only derived aggregate this package maintains: Balance.
// Version is bumped on every balance write and backs compare-and-swap updates.
type Wallet struct {
	ID        WalletID
	UserID    UserID
	Name      string
	Type      WalletType
	Balance   decimal.Decimal
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// CALLER INPUT
// =============================================================================

// Draft is the input for a new transaction. Amount is nullable so a missing
// amount can be told apart from an explicit zero.
type Draft struct {
	WalletID      WalletID
	ToWalletID    WalletID
	Amount        decimal.NullDecimal
	Quantity      int
	Type          TransactionType
	Category      string
	Subcategory   string
	Item          string
	Establishment string
	Date          time.Time
}

// Patch is a partial edit. Nil fields are left untouched.
type Patch struct {
	WalletID      *WalletID
	ToWalletID    *WalletID
	Amount        *decimal.Decimal
	Quantity      *int
	Type          *TransactionType
	Category      *string
	Subcategory   *string
	Item          *string
	Establishment *string
	Date          *time.Time
}

// Apply returns a copy of tx with the patch applied.
func (p Patch) Apply(tx Transaction) Transaction {
	if p.WalletID != nil {
		tx.WalletID = *p.WalletID
	}
	if p.ToWalletID != nil {
		tx.ToWalletID = *p.ToWalletID
	}
	if p.Amount != nil {
		tx.Amount = *p.Amount
	}
	if p.Quantity != nil {
		tx.Quantity = *p.Quantity
	}
	if p.Type != nil {
		tx.Type = *p.Type
	}
	if p.Category != nil {
		tx.Category = *p.Category
	}
	if p.Subcategory != nil {
		tx.Subcategory = *p.Subcategory
	}
	if p.Item != nil {
		tx.Item = *p.Item
	}
	if p.Establishment != nil {
		tx.Establishment = *p.Establishment
	}
	if p.Date != nil {
		tx.Date = *p.Date
	}
	return tx
}

// TransactionFilter narrows List results. Zero values mean "no filter".
type TransactionFilter struct {
	WalletID    WalletID
	Category    string
	Subcategory string
	From        time.Time
	To          time.Time
	Limit       int
	Cursor      TransactionID // return rows strictly after this one in list order
}

// =============================================================================
// HELPERS
// =============================================================================

// Amount builds a present NullDecimal from a float literal. Handy for tests and fixtures.
func Amount(v float64) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.NewFromFloat(v), Valid: true}
}

// AmountFromString builds a present NullDecimal from a decimal string.
func AmountFromString(s string) (decimal.NullDecimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}
