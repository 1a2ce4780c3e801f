package sqlite_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/wallet-engine/installment"
	"github.com/warp/wallet-engine/ledger"
	"github.com/warp/wallet-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

var t0 = time.Date(2025, time.May, 1, 10, 0, 0, 0, time.UTC)

func seedWallet(t *testing.T, s *sqlite.Store, id ledger.WalletID, created time.Time) {
	t.Helper()
	require.NoError(t, s.CreateWallet(context.Background(), ledger.Wallet{
		ID: id, UserID: "alice", Name: string(id), Type: ledger.WalletChecking,
		Balance: decimal.Zero, CreatedAt: created, UpdatedAt: created,
	}))
}

func row(id ledger.TransactionID, wallet ledger.WalletID, amount string, date time.Time) ledger.Transaction {
	return ledger.Transaction{
		ID: id, UserID: "alice", WalletID: wallet,
		Amount: decimal.RequireFromString(amount), Quantity: 1, Type: ledger.TypeExpense,
		Category: "Food", Date: date, CreatedAt: date, UpdatedAt: date,
	}
}

// =============================================================================
// WALLETS
// =============================================================================

func TestSQLite_WalletRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedWallet(t, s, "w1", t0)

	w, err := s.GetWallet(ctx, "alice", "w1")
	require.NoError(t, err)
	assert.Equal(t, "w1", w.Name)
	assert.True(t, w.Balance.IsZero())
	assert.True(t, w.CreatedAt.Equal(t0))

	_, err = s.GetWallet(ctx, "bob", "w1")
	assert.ErrorIs(t, err, ledger.ErrWalletNotFound)
}

func TestSQLite_ListWallets_OldestFirst(t *testing.T) {
	s := newTestStore(t)
	seedWallet(t, s, "newer", t0.Add(time.Hour))
	seedWallet(t, s, "older", t0)

	ws, err := s.ListWallets(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, ws, 2)
	assert.Equal(t, ledger.WalletID("older"), ws[0].ID)
}

func TestSQLite_AdjustBalance_BumpsVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedWallet(t, s, "w1", t0)

	w, err := s.AdjustBalance(ctx, "alice", "w1", decimal.RequireFromString("12.34"))
	require.NoError(t, err)
	assert.Equal(t, "12.34", w.Balance.String())
	assert.Equal(t, int64(1), w.Version)

	w, err = s.AdjustBalance(ctx, "alice", "w1", decimal.RequireFromString("-2.34"))
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, int64(2), w.Version)
}

func TestSQLite_AdjustBalance_Concurrent_NoLostUpdates(t *testing.T) {
	// GIVEN: 40 goroutines adding 0.25 to the same wallet
	// THEN: The balance is exactly 10

	s := newTestStore(t)
	ctx := context.Background()
	seedWallet(t, s, "w1", t0)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AdjustBalance(ctx, "alice", "w1", decimal.RequireFromString("0.25"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	w, err := s.GetWallet(ctx, "alice", "w1")
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(10)), "got %s", w.Balance)
	assert.Equal(t, int64(40), w.Version)
}

func TestSQLite_AdjustBalance_UnknownWallet(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AdjustBalance(context.Background(), "alice", "nope", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ledger.ErrWalletNotFound)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestSQLite_TransactionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := row("t1", "w1", "19.99", t0)
	in.ToWalletID = "w2"
	in.Type = ledger.TypeTransfer
	in.Quantity = 3
	in.Establishment = "Shop"
	require.NoError(t, s.InsertTransaction(ctx, in))

	got, err := s.GetTransaction(ctx, "alice", "t1")
	require.NoError(t, err)
	assert.Equal(t, in.ToWalletID, got.ToWalletID)
	assert.Equal(t, "19.99", got.Amount.String())
	assert.Equal(t, 3, got.Quantity)
	assert.Equal(t, "Shop", got.Establishment)
	assert.True(t, got.Date.Equal(t0))

	_, err = s.GetTransaction(ctx, "bob", "t1")
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
}

func TestSQLite_InsertTransactions_AllOrNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertTransaction(ctx, row("dup", "w1", "1", t0)))

	err := s.InsertTransactions(ctx, []ledger.Transaction{
		row("fresh", "w1", "1", t0),
		row("dup", "w1", "1", t0),
	})
	require.Error(t, err)

	_, err = s.GetTransaction(ctx, "alice", "fresh")
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
}

func TestSQLite_ListTransactions_FiltersAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertTransaction(ctx, row("old", "w1", "1", t0)))
	require.NoError(t, s.InsertTransaction(ctx, row("new", "w1", "1", t0.AddDate(0, 0, 2))))
	other := row("other", "w2", "1", t0.AddDate(0, 0, 1))
	other.Category = "Rent"
	require.NoError(t, s.InsertTransaction(ctx, other))
	child := row("child", "w1", "1", t0)
	child.ParentID = "new"
	require.NoError(t, s.InsertTransaction(ctx, child))

	all, err := s.ListTransactions(ctx, "alice", ledger.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3, "children excluded")
	assert.Equal(t, ledger.TransactionID("new"), all[0].ID)
	assert.Equal(t, ledger.TransactionID("other"), all[1].ID)
	assert.Equal(t, ledger.TransactionID("old"), all[2].ID)

	byWallet, err := s.ListTransactions(ctx, "alice", ledger.TransactionFilter{WalletID: "w2"})
	require.NoError(t, err)
	require.Len(t, byWallet, 1)

	byCategory, err := s.ListTransactions(ctx, "alice", ledger.TransactionFilter{Category: "Rent"})
	require.NoError(t, err)
	require.Len(t, byCategory, 1)

	ranged, err := s.ListTransactions(ctx, "alice", ledger.TransactionFilter{From: t0.AddDate(0, 0, 1)})
	require.NoError(t, err)
	assert.Len(t, ranged, 2)
}

func TestSQLite_WalletTransactions_IncludeIncomingTransfers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	transfer := row("tr", "w1", "5", t0)
	transfer.Type = ledger.TypeTransfer
	transfer.ToWalletID = "w2"
	require.NoError(t, s.InsertTransaction(ctx, transfer))

	txs, err := s.ListWalletTransactions(ctx, "alice", "w2")
	require.NoError(t, err)
	require.Len(t, txs, 1)

	n, err := s.CountWalletReferences(ctx, "alice", "w2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLite_DeleteChildren(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	parent := row("p", "w1", "3", t0)
	parent.HasChildren, parent.ChildrenCount = true, 2
	c1, c2 := row("c1", "w1", "1", t0), row("c2", "w1", "2", t0)
	c1.ParentID, c2.ParentID = "p", "p"
	require.NoError(t, s.InsertTransactions(ctx, []ledger.Transaction{parent, c1, c2}))

	children, err := s.ListChildren(ctx, "alice", "p")
	require.NoError(t, err)
	assert.Len(t, children, 2)

	n, err := s.DeleteChildren(ctx, "alice", "p")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.GetTransaction(ctx, "alice", "p")
	require.NoError(t, err)
	assert.True(t, got.HasChildren)
}

// =============================================================================
// WITHTX
// =============================================================================

func TestSQLite_WithTx_RollbackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedWallet(t, s, "w1", t0)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(st ledger.Store) error {
		if err := st.InsertTransaction(ctx, row("t1", "w1", "5", t0)); err != nil {
			return err
		}
		if _, err := st.AdjustBalance(ctx, "alice", "w1", decimal.NewFromInt(-5)); err != nil {
			return err
		}
		// Reads inside the transaction see its own writes.
		w, err := st.GetWallet(ctx, "alice", "w1")
		require.NoError(t, err)
		assert.True(t, w.Balance.Equal(decimal.NewFromInt(-5)))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	w, err := s.GetWallet(ctx, "alice", "w1")
	require.NoError(t, err)
	assert.True(t, w.Balance.IsZero())
	_, err = s.GetTransaction(ctx, "alice", "t1")
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
}

func TestSQLite_WithServices_EditProtocol(t *testing.T) {
	// GIVEN: The ledger services running on SQLite
	// WHEN: An expense is created, moved and deleted
	// THEN: Balances follow and recalculation agrees at each step

	s := newTestStore(t)
	ctx := context.Background()
	wallets := ledger.NewWalletService(s)
	txs := ledger.NewTransactionService(s)
	balances := ledger.NewBalanceService(s)

	a, err := wallets.Create(ctx, "alice", "A", ledger.WalletChecking, decimal.NewFromInt(100))
	require.NoError(t, err)
	b, err := wallets.Create(ctx, "alice", "B", ledger.WalletSavings, decimal.Zero)
	require.NoError(t, err)

	e, err := txs.Create(ctx, "alice", ledger.Draft{WalletID: a.ID, Amount: ledger.Amount(30), Type: ledger.TypeExpense})
	require.NoError(t, err)

	_, err = txs.Update(ctx, "alice", e.ID, ledger.Patch{WalletID: &b.ID})
	require.NoError(t, err)

	for id, want := range map[ledger.WalletID]int64{a.ID: 100, b.ID: -30} {
		w, err := s.GetWallet(ctx, "alice", id)
		require.NoError(t, err)
		assert.True(t, w.Balance.Equal(decimal.NewFromInt(want)), "%s stored %s", id, w.Balance)

		got, err := balances.RecalculateWalletBalance(ctx, id, "alice")
		require.NoError(t, err)
		assert.True(t, got.Equal(decimal.NewFromInt(want)), "%s recalculated %s", id, got)
	}

	require.NoError(t, txs.Delete(ctx, "alice", e.ID))
	w, err := s.GetWallet(ctx, "alice", b.ID)
	require.NoError(t, err)
	assert.True(t, w.Balance.IsZero())
}

// =============================================================================
// INSTALLMENTS AND RULES
// =============================================================================

func TestSQLite_PlanRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	plan, err := installment.NewPlan("p1", "alice", installment.Input{
		Name: "Phone", Category: "Tech", SourceWalletID: "w1",
		TotalAmount: ledger.Amount(100), TotalInstallments: 3, StartDate: t0,
	}, t0)
	require.NoError(t, err)
	require.NoError(t, s.CreatePlan(ctx, plan))

	_, err = plan.Pay(1, decimal.NullDecimal{}, t0, "tx-1", t0)
	require.NoError(t, err)
	require.NoError(t, s.UpdatePlan(ctx, plan))

	got, err := s.GetPlan(ctx, "alice", "p1")
	require.NoError(t, err)
	require.Len(t, got.Payments, 3)
	assert.Equal(t, installment.StatusPaid, got.Payments[0].Status)
	assert.Equal(t, ledger.TransactionID("tx-1"), got.Payments[0].TransactionID)
	require.NotNil(t, got.Payments[0].PaidDate)
	assert.Equal(t, "33.34", got.Payments[2].ScheduledAmount.String())
	assert.Equal(t, 1, got.PaidCount())

	_, err = s.GetPlan(ctx, "bob", "p1")
	assert.ErrorIs(t, err, installment.ErrPlanNotFound)

	refs, err := s.ListWalletRefs(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	refs[0].SourceWalletID = "w9"
	require.NoError(t, s.ReassignWalletRef(ctx, "alice", refs[0]))
	got, err = s.GetPlan(ctx, "alice", "p1")
	require.NoError(t, err)
	assert.Equal(t, ledger.WalletID("w9"), got.SourceWalletID)
}

func TestSQLite_RulesUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rule := ledger.MerchantRule{ID: "r1", UserID: "alice", MerchantName: "cafe", DefaultCategory: "Coffee"}
	require.NoError(t, s.SaveRule(ctx, rule))
	rule.DefaultCategory = "Treats"
	require.NoError(t, s.SaveRule(ctx, rule))

	rules, err := s.ListRules(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "Treats", rules[0].DefaultCategory)

	// Another user cannot overwrite it by reusing the ID.
	stolen := rule
	stolen.UserID = "bob"
	assert.ErrorIs(t, s.SaveRule(ctx, stolen), ledger.ErrRuleNotFound)
}
