/*
store.go - Persistence interfaces for transactions and wallets

PURPOSE:
  Defines the boundary between the balance engine and the database.
  Services depend on these interfaces only, so tests substitute the
  in-memory implementation in ledger/store.

KEY INTERFACES:
  TransactionStore: The ledger (transactions, parents and children)
  WalletStore:      Wallet rows and their cached balance
  Store:            Both of the above
  TxStore:          Store + WithTx for atomic multi-row writes

BALANCE WRITES:
  AdjustBalance is the only incremental balance write. Implementations must
  make it atomic per wallet (server-side increment or compare-and-swap on
  Wallet.Version); a read-in-app/write-back is NOT acceptable. SetBalance is
  the overwrite used by reconciliation and manual edits.

SCOPING:
  Every lookup takes a UserID. A row owned by another user is reported
  exactly like a missing row (ErrWalletNotFound / ErrTransactionNotFound).

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite
  - ledger/store: In-memory for tests and development
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TRANSACTION STORE
// =============================================================================

type TransactionStore interface {
	InsertTransaction(ctx context.Context, tx Transaction) error

	// InsertTransactions writes all rows or none.
	InsertTransactions(ctx context.Context, txs []Transaction) error

	GetTransaction(ctx context.Context, userID UserID, id TransactionID) (Transaction, error)

	// UpdateTransaction overwrites the stored row with the same ID and UserID.
	UpdateTransaction(ctx context.Context, tx Transaction) error

	DeleteTransaction(ctx context.Context, userID UserID, id TransactionID) error

	// DeleteChildren removes every child of parentID and returns how many went.
	DeleteChildren(ctx context.Context, userID UserID, parentID TransactionID) (int, error)

	ListChildren(ctx context.Context, userID UserID, parentID TransactionID) ([]Transaction, error)

	// ListTransactions returns top-level (non-child) rows, newest date first.
	// Limit and Cursor are applied by the caller, not the store.
	ListTransactions(ctx context.Context, userID UserID, filter TransactionFilter) ([]Transaction, error)

	// ListWalletTransactions returns every non-child row naming walletID as
	// source or destination. This is the input to reconciliation.
	ListWalletTransactions(ctx context.Context, userID UserID, walletID WalletID) ([]Transaction, error)

	// ListAllTransactions returns every row of the user, children included.
	ListAllTransactions(ctx context.Context, userID UserID) ([]Transaction, error)

	// CountWalletReferences counts rows (children included) naming walletID.
	CountWalletReferences(ctx context.Context, userID UserID, walletID WalletID) (int, error)
}

// =============================================================================
// WALLET STORE
// =============================================================================

type WalletStore interface {
	CreateWallet(ctx context.Context, w Wallet) error

	GetWallet(ctx context.Context, userID UserID, id WalletID) (Wallet, error)

	// ListWallets returns the user's wallets, oldest first.
	ListWallets(ctx context.Context, userID UserID) ([]Wallet, error)

	// ListAllWallets returns every wallet of every user (maintenance sweeps).
	ListAllWallets(ctx context.Context) ([]Wallet, error)

	// UpdateWallet persists Name and Type. Balance is never written here.
	UpdateWallet(ctx context.Context, w Wallet) error

	// AdjustBalance atomically performs balance += delta and returns the new row.
	AdjustBalance(ctx context.Context, userID UserID, id WalletID, delta decimal.Decimal) (Wallet, error)

	// SetBalance overwrites the balance and returns the new row.
	SetBalance(ctx context.Context, userID UserID, id WalletID, balance decimal.Decimal) (Wallet, error)

	DeleteWallet(ctx context.Context, userID UserID, id WalletID) error
}

// Store is everything the balance engine persists.
type Store interface {
	TransactionStore
	WalletStore
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
// If fn returns an error, every write made through the Store it was given is
// rolled back. Otherwise the writes are committed together.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}

// atomically runs fn inside WithTx when the store supports it, and directly
// against the store otherwise.
func atomically(ctx context.Context, s Store, fn func(Store) error) error {
	if ts, ok := s.(TxStore); ok {
		return ts.WithTx(ctx, fn)
	}
	return fn(s)
}
