package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/wallet-engine/ledger"
	"github.com/warp/wallet-engine/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const alice ledger.UserID = "alice"

type fixture struct {
	ctx      context.Context
	store    ledger.Store
	txs      *ledger.TransactionService
	balances *ledger.Balances
	wallets  *ledger.WalletService
	pub      *recordingPublisher
}

func newFixture(t *testing.T, st ledger.Store, extra ...ledger.Option) *fixture {
	t.Helper()
	pub := &recordingPublisher{}
	opts := append([]ledger.Option{
		ledger.WithClock(testClock()),
		ledger.WithIDGenerator(sequentialIDs()),
		ledger.WithPublisher(pub),
	}, extra...)
	return &fixture{
		ctx:      context.Background(),
		store:    st,
		txs:      ledger.NewTransactionService(st, opts...),
		balances: ledger.NewBalanceService(st, opts...),
		wallets:  ledger.NewWalletService(st, opts...),
		pub:      pub,
	}
}

// newTxFixture uses the transactional memory store.
func newTxFixture(t *testing.T) *fixture {
	return newFixture(t, store.NewTxMemory())
}

// testClock returns a clock that advances one second per call so creation
// order is unambiguous.
func testClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%03d", n)
	}
}

func (f *fixture) wallet(t *testing.T, name string) ledger.WalletID {
	t.Helper()
	w, err := f.wallets.Create(f.ctx, alice, name, ledger.WalletChecking, decimal.Zero)
	require.NoError(t, err)
	return w.ID
}

func (f *fixture) balance(t *testing.T, id ledger.WalletID) decimal.Decimal {
	t.Helper()
	w, err := f.store.GetWallet(f.ctx, alice, id)
	require.NoError(t, err)
	return w.Balance
}

func (f *fixture) create(t *testing.T, walletID ledger.WalletID, typ ledger.TransactionType, amount float64) ledger.Transaction {
	t.Helper()
	tx, err := f.txs.Create(f.ctx, alice, ledger.Draft{
		WalletID: walletID,
		Amount:   ledger.Amount(amount),
		Type:     typ,
		Category: "Food",
	})
	require.NoError(t, err)
	return tx
}

func assertBalance(t *testing.T, f *fixture, id ledger.WalletID, want float64) {
	t.Helper()
	got := f.balance(t, id)
	assert.True(t, decimal.NewFromFloat(want).Equal(got), "wallet %s: want %v, got %s", id, want, got)
}

func assertDecimal(t *testing.T, want float64, got decimal.Decimal, msg string) {
	t.Helper()
	assert.True(t, decimal.NewFromFloat(want).Equal(got), "%s: want %v, got %s", msg, want, got)
}

func ptr[T any](v T) *T { return &v }

// =============================================================================
// TEST DOUBLES
// =============================================================================

type recordingPublisher struct {
	mu      sync.Mutex
	changes []ledger.BalanceChange
	err     error
}

func (p *recordingPublisher) PublishBalanceChanges(_ context.Context, changes []ledger.BalanceChange) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, changes...)
	return p.err
}

func (p *recordingPublisher) all() []ledger.BalanceChange {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ledger.BalanceChange(nil), p.changes...)
}

var errDiskFull = errors.New("disk full")

// flakyStore fails AdjustBalance for one wallet while armed. It hides any
// WithTx of the wrapped store, so services run their steps sequentially.
type flakyStore struct {
	ledger.Store
	failOn ledger.WalletID
	armed  bool
}

func (s *flakyStore) AdjustBalance(ctx context.Context, userID ledger.UserID, id ledger.WalletID, delta decimal.Decimal) (ledger.Wallet, error) {
	if s.armed && id == s.failOn {
		return ledger.Wallet{}, errDiskFull
	}
	return s.Store.AdjustBalance(ctx, userID, id, delta)
}

// flakyTxStore injects the same failure inside a real WithTx.
type flakyTxStore struct {
	*store.TxMemory
	failOn ledger.WalletID
	armed  bool
}

func (s *flakyTxStore) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	return s.TxMemory.WithTx(ctx, func(st ledger.Store) error {
		return fn(&flakyStore{Store: st, failOn: s.failOn, armed: s.armed})
	})
}

type stubAdvisor struct {
	suggestion ledger.Suggestion
	err        error
	calls      int
}

func (a *stubAdvisor) Suggest(context.Context, ledger.UserID, ledger.Draft) (ledger.Suggestion, error) {
	a.calls++
	return a.suggestion, a.err
}
