/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every persistence interface of the wallet engine using SQLite.
  The same queries run against the plain connection and inside WithTx.

INTERFACES IMPLEMENTED:
  ledger.Store / ledger.TxStore: Transactions and wallets
  ledger.RuleStore:              Merchant rules for the advisor
  ledger.WalletRefStore:         Installment wallet references (orphan migration)
  installment.Store:             Installment plans and payments

KEY TABLES:
  wallets:              One row per wallet, cached balance + version
  transactions:         Ledger rows, parents and children
  installment_plans:    Plan header
  installment_payments: One row per scheduled payment
  merchant_rules:       Advisor input

BALANCE WRITES:
  AdjustBalance is a compare-and-swap on wallets.version:
    UPDATE wallets SET balance = ?, version = version + 1
    WHERE id = ? AND user_id = ? AND version = ?
  A lost race re-reads and retries up to maxCASAttempts times, then fails
  with ledger.ErrConcurrentModification. Within one Store the mutex already
  serializes writers, so the version check only loses against writers
  outside it (another process sharing the database file).

CONCURRENCY:
  Uses sync.RWMutex for thread-safety within the process and a single
  connection (required for ":memory:"). WithTx holds the write lock for the
  whole callback; the view it hands out talks only to the *sql.Tx.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

MIGRATION:
  Schema is versioned with golang-migrate; the SQL files under migrations/
  are embedded and applied on New().

USAGE:
  store, err := sqlite.New("./data/wallets.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  txs := ledger.NewTransactionService(store)
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/wallet-engine/installment"
	"github.com/warp/wallet-engine/ledger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const maxCASAttempts = 5

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ ledger.TxStore        = (*Store)(nil)
	_ ledger.RuleStore      = (*Store)(nil)
	_ ledger.WalletRefStore = (*Store)(nil)
	_ installment.Store     = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate applies the embedded migrations. The migrate instance is not
// closed: its driver would close the shared *sql.DB.
func (s *Store) migrate() error {
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite3 driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(queries{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// Every method below takes the lock and delegates to queries over the
// plain connection.

func (s *Store) rq() queries { return queries{q: s.db} }

func (s *Store) InsertTransaction(ctx context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rq().InsertTransaction(ctx, tx)
}

// InsertTransactions adds multiple transactions atomically.
func (s *Store) InsertTransactions(ctx context.Context, txs []ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := (queries{q: sqlTx}).InsertTransactions(ctx, txs); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) GetTransaction(ctx context.Context, userID ledger.UserID, id ledger.TransactionID) (ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rq().GetTransaction(ctx, userID, id)
}

func (s *Store) UpdateTransaction(ctx context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rq().UpdateTransaction(ctx, tx)
}

func (s *Store) DeleteTransaction(ctx context.Context, userID ledger.UserID, id ledger.TransactionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rq().DeleteTransaction(ctx, userID, id)
}

func (s *Store) DeleteChildren(ctx context.Context, userID ledger.UserID, parentID ledger.TransactionID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rq().DeleteChildren(ctx, userID, parentID)
}

func (s *Store) ListChildren(ctx context.Context, userID ledger.UserID, parentID ledger.TransactionID) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rq().ListChildren(ctx, userID, parentID)
}

func (s *Store) ListTransactions(ctx context.Context, userID ledger.UserID, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rq().ListTransactions(ctx, userID, f)
}

func (s *Store) ListWalletTransactions(ctx context.Context, userID ledger.UserID, walletID ledger.WalletID) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rq().ListWalletTransactions(ctx, userID, walletID)
}

func (s *Store) ListAllTransactions(ctx context.Context, userID ledger.UserID) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rq().ListAllTransactions(ctx, userID)
}

func (s *Store) CountWalletReferences(ctx context.Context, userID ledger.UserID, walletID ledger.WalletID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rq().CountWalletReferences(ctx, userID, walletID)
}

func (s *Store) CreateWallet(ctx context.Context, w ledger.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rq().CreateWallet(ctx, w)
}

func (s *Store) GetWallet(ctx context.Context, userID ledger.UserID, id ledger.WalletID) (ledger.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rq().GetWallet(ctx, userID, id)
}

func (s *Store) ListWallets(ctx context.Context, userID ledger.UserID) ([]ledger.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rq().ListWallets(ctx, userID)
}

func (s *Store) ListAllWallets(ctx context.Context) ([]ledger.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rq().ListAllWallets(ctx)
}

func (s *Store) UpdateWallet(ctx context.Context, w ledger.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rq().UpdateWallet(ctx, w)
}

func (s *Store) AdjustBalance(ctx context.Context, userID ledger.UserID, id ledger.WalletID, delta decimal.Decimal) (ledger.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rq().AdjustBalance(ctx, userID, id, delta)
}

func (s *Store) SetBalance(ctx context.Context, userID ledger.UserID, id ledger.WalletID, balance decimal.Decimal) (ledger.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rq().SetBalance(ctx, userID, id, balance)
}

func (s *Store) DeleteWallet(ctx context.Context, userID ledger.UserID, id ledger.WalletID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rq().DeleteWallet(ctx, userID, id)
}

func (s *Store) SaveRule(ctx context.Context, r ledger.MerchantRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rq().SaveRule(ctx, r)
}

func (s *Store) ListRules(ctx context.Context, userID ledger.UserID) ([]ledger.MerchantRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rq().ListRules(ctx, userID)
}

// CreatePlan writes the plan and its payments in one transaction.
func (s *Store) CreatePlan(ctx context.Context, p installment.Plan) error {
	return s.withSQLTx(ctx, func(q queries) error { return q.CreatePlan(ctx, p) })
}

func (s *Store) GetPlan(ctx context.Context, userID ledger.UserID, id string) (installment.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rq().GetPlan(ctx, userID, id)
}

func (s *Store) ListPlans(ctx context.Context, userID ledger.UserID) ([]installment.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rq().ListPlans(ctx, userID)
}

// UpdatePlan rewrites the plan and its payments in one transaction.
func (s *Store) UpdatePlan(ctx context.Context, p installment.Plan) error {
	return s.withSQLTx(ctx, func(q queries) error { return q.UpdatePlan(ctx, p) })
}

func (s *Store) ListWalletRefs(ctx context.Context, userID ledger.UserID) ([]ledger.WalletRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rq().ListWalletRefs(ctx, userID)
}

func (s *Store) ReassignWalletRef(ctx context.Context, userID ledger.UserID, ref ledger.WalletRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rq().ReassignWalletRef(ctx, userID, ref)
}

func (s *Store) withSQLTx(ctx context.Context, fn func(queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(queries{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// decoder converts TEXT columns and keeps the first failure, so a corrupt
// row is reported instead of read as zero.
type decoder struct {
	err error
}

func (d *decoder) time(column, s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("column %s: invalid time %q: %w", column, s, err)
	}
	return t
}

func (d *decoder) decimal(column, s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("column %s: invalid decimal %q: %w", column, s, err)
	}
	return v
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
