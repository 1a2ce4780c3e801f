package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/wallet-engine/ledger"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements the store interfaces without any locking. Store wraps
// it with the mutex; WithTx hands it out directly over a *sql.Tx.
type queries struct {
	q querier
}

var _ ledger.Store = queries{}

// =============================================================================
// TRANSACTIONS
// =============================================================================

const transactionColumns = `id, user_id, wallet_id, to_wallet_id, amount, quantity, type,
	category, subcategory, item, establishment, date,
	parent_id, has_children, children_count, created_at, updated_at`

func (r queries) InsertTransaction(ctx context.Context, tx ledger.Transaction) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.UserID, tx.WalletID, tx.ToWalletID, tx.Amount.String(), tx.Quantity, tx.Type,
		tx.Category, tx.Subcategory, tx.Item, tx.Establishment, formatTime(tx.Date),
		tx.ParentID, boolToInt(tx.HasChildren), tx.ChildrenCount,
		formatTime(tx.CreatedAt), formatTime(tx.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("transaction %s already exists", tx.ID)
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// InsertTransactions must run on a *sql.Tx to be atomic.
func (r queries) InsertTransactions(ctx context.Context, txs []ledger.Transaction) error {
	for _, tx := range txs {
		if err := r.InsertTransaction(ctx, tx); err != nil {
			return err
		}
	}
	return nil
}

func (r queries) GetTransaction(ctx context.Context, userID ledger.UserID, id ledger.TransactionID) (ledger.Transaction, error) {
	txs, err := r.queryTransactions(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if len(txs) == 0 {
		return ledger.Transaction{}, ledger.ErrTransactionNotFound
	}
	return txs[0], nil
}

func (r queries) UpdateTransaction(ctx context.Context, tx ledger.Transaction) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE transactions SET
			wallet_id = ?, to_wallet_id = ?, amount = ?, quantity = ?, type = ?,
			category = ?, subcategory = ?, item = ?, establishment = ?, date = ?,
			parent_id = ?, has_children = ?, children_count = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		tx.WalletID, tx.ToWalletID, tx.Amount.String(), tx.Quantity, tx.Type,
		tx.Category, tx.Subcategory, tx.Item, tx.Establishment, formatTime(tx.Date),
		tx.ParentID, boolToInt(tx.HasChildren), tx.ChildrenCount, formatTime(tx.UpdatedAt),
		tx.ID, tx.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return expectOne(res, ledger.ErrTransactionNotFound)
}

func (r queries) DeleteTransaction(ctx context.Context, userID ledger.UserID, id ledger.TransactionID) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return expectOne(res, ledger.ErrTransactionNotFound)
}

func (r queries) DeleteChildren(ctx context.Context, userID ledger.UserID, parentID ledger.TransactionID) (int, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM transactions WHERE parent_id = ? AND user_id = ?`, parentID, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete children: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r queries) ListChildren(ctx context.Context, userID ledger.UserID, parentID ledger.TransactionID) ([]ledger.Transaction, error) {
	return r.queryTransactions(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE user_id = ? AND parent_id = ?
		ORDER BY created_at ASC, id ASC`, userID, parentID)
}

func (r queries) ListTransactions(ctx context.Context, userID ledger.UserID, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	var (
		where = []string{"user_id = ?", "parent_id = ''"}
		args  = []any{userID}
	)
	if f.WalletID != "" {
		where = append(where, "(wallet_id = ? OR to_wallet_id = ?)")
		args = append(args, f.WalletID, f.WalletID)
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.Subcategory != "" {
		where = append(where, "subcategory = ?")
		args = append(args, f.Subcategory)
	}
	if !f.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, formatTime(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, formatTime(f.To))
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY date DESC, created_at DESC, id DESC`
	return r.queryTransactions(ctx, query, args...)
}

func (r queries) ListWalletTransactions(ctx context.Context, userID ledger.UserID, walletID ledger.WalletID) ([]ledger.Transaction, error) {
	return r.queryTransactions(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE user_id = ? AND parent_id = '' AND (wallet_id = ? OR to_wallet_id = ?)
		ORDER BY created_at ASC, id ASC`, userID, walletID, walletID)
}

func (r queries) ListAllTransactions(ctx context.Context, userID ledger.UserID) ([]ledger.Transaction, error) {
	return r.queryTransactions(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE user_id = ?
		ORDER BY created_at ASC, id ASC`, userID)
}

func (r queries) CountWalletReferences(ctx context.Context, userID ledger.UserID, walletID ledger.WalletID) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM transactions
		WHERE user_id = ? AND (wallet_id = ? OR to_wallet_id = ?)`,
		userID, walletID, walletID).Scan(&n)
	return n, err
}

func (r queries) queryTransactions(ctx context.Context, query string, args ...any) ([]ledger.Transaction, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

func scanTransaction(rows *sql.Rows) (ledger.Transaction, error) {
	var (
		tx                   ledger.Transaction
		amount, date         string
		hasChildren          int
		createdAt, updatedAt string
	)
	err := rows.Scan(
		&tx.ID, &tx.UserID, &tx.WalletID, &tx.ToWalletID, &amount, &tx.Quantity, &tx.Type,
		&tx.Category, &tx.Subcategory, &tx.Item, &tx.Establishment, &date,
		&tx.ParentID, &hasChildren, &tx.ChildrenCount, &createdAt, &updatedAt,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}
	var dec decoder
	tx.Amount = dec.decimal("amount", amount)
	tx.Date = dec.time("date", date)
	tx.HasChildren = hasChildren != 0
	tx.CreatedAt = dec.time("created_at", createdAt)
	tx.UpdatedAt = dec.time("updated_at", updatedAt)
	if dec.err != nil {
		return tx, fmt.Errorf("transaction %s: %w", tx.ID, dec.err)
	}
	return tx, nil
}

// =============================================================================
// WALLETS
// =============================================================================

const walletColumns = `id, user_id, name, type, balance, version, created_at, updated_at`

func (r queries) CreateWallet(ctx context.Context, w ledger.Wallet) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO wallets (`+walletColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.UserID, w.Name, w.Type, w.Balance.String(), w.Version,
		formatTime(w.CreatedAt), formatTime(w.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("wallet %s already exists", w.ID)
		}
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

func (r queries) GetWallet(ctx context.Context, userID ledger.UserID, id ledger.WalletID) (ledger.Wallet, error) {
	ws, err := r.queryWallets(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return ledger.Wallet{}, err
	}
	if len(ws) == 0 {
		return ledger.Wallet{}, ledger.ErrWalletNotFound
	}
	return ws[0], nil
}

func (r queries) ListWallets(ctx context.Context, userID ledger.UserID) ([]ledger.Wallet, error) {
	return r.queryWallets(ctx, `
		SELECT `+walletColumns+` FROM wallets WHERE user_id = ?
		ORDER BY created_at ASC, id ASC`, userID)
}

func (r queries) ListAllWallets(ctx context.Context) ([]ledger.Wallet, error) {
	return r.queryWallets(ctx, `SELECT `+walletColumns+` FROM wallets ORDER BY created_at ASC, id ASC`)
}

func (r queries) UpdateWallet(ctx context.Context, w ledger.Wallet) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE wallets SET name = ?, type = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		w.Name, w.Type, formatTime(w.UpdatedAt), w.ID, w.UserID)
	if err != nil {
		return fmt.Errorf("failed to update wallet: %w", err)
	}
	return expectOne(res, ledger.ErrWalletNotFound)
}

// AdjustBalance is a compare-and-swap loop on the version column. Callers
// inside one Store are already serialized by its mutex; the version check
// catches writers outside the process.
func (r queries) AdjustBalance(ctx context.Context, userID ledger.UserID, id ledger.WalletID, delta decimal.Decimal) (ledger.Wallet, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		w, err := r.GetWallet(ctx, userID, id)
		if err != nil {
			return ledger.Wallet{}, err
		}
		next := w.Balance.Add(delta)
		now := time.Now().UTC()

		res, err := r.q.ExecContext(ctx, `
			UPDATE wallets SET balance = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND user_id = ? AND version = ?`,
			next.String(), formatTime(now), id, userID, w.Version)
		if err != nil {
			return ledger.Wallet{}, fmt.Errorf("failed to adjust balance: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			w.Balance, w.Version, w.UpdatedAt = next, w.Version+1, now
			return w, nil
		}
	}
	return ledger.Wallet{}, fmt.Errorf("wallet %s: %w", id, ledger.ErrConcurrentModification)
}

func (r queries) SetBalance(ctx context.Context, userID ledger.UserID, id ledger.WalletID, balance decimal.Decimal) (ledger.Wallet, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE wallets SET balance = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		balance.String(), formatTime(time.Now()), id, userID)
	if err != nil {
		return ledger.Wallet{}, fmt.Errorf("failed to set balance: %w", err)
	}
	if err := expectOne(res, ledger.ErrWalletNotFound); err != nil {
		return ledger.Wallet{}, err
	}
	return r.GetWallet(ctx, userID, id)
}

func (r queries) DeleteWallet(ctx context.Context, userID ledger.UserID, id ledger.WalletID) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM wallets WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete wallet: %w", err)
	}
	return expectOne(res, ledger.ErrWalletNotFound)
}

func (r queries) queryWallets(ctx context.Context, query string, args ...any) ([]ledger.Wallet, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query wallets: %w", err)
	}
	defer rows.Close()

	var wallets []ledger.Wallet
	for rows.Next() {
		var (
			w                             ledger.Wallet
			balance, createdAt, updatedAt string
		)
		if err := rows.Scan(&w.ID, &w.UserID, &w.Name, &w.Type, &balance, &w.Version, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		var dec decoder
		w.Balance = dec.decimal("balance", balance)
		w.CreatedAt = dec.time("created_at", createdAt)
		w.UpdatedAt = dec.time("updated_at", updatedAt)
		if dec.err != nil {
			return nil, fmt.Errorf("wallet %s: %w", w.ID, dec.err)
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// expectOne maps "no row affected" to notFound.
func expectOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
