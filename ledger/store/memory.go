// Package store provides in-memory implementations of the ledger and
// installment store interfaces.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/wallet-engine/installment"
	"github.com/warp/wallet-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory guards a state with a RWMutex. Every method of state assumes the
// caller holds the lock, which is what lets WithTx hand the bare state to
// its callback.
type Memory struct {
	mu sync.RWMutex
	s  *state
}

var (
	_ ledger.Store          = (*Memory)(nil)
	_ ledger.RuleStore      = (*Memory)(nil)
	_ ledger.WalletRefStore = (*Memory)(nil)
	_ installment.Store     = (*Memory)(nil)
	_ ledger.TxStore        = (*TxMemory)(nil)
)

func NewMemory() *Memory {
	return &Memory{s: newState()}
}

func (m *Memory) read(fn func(*state)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn(m.s)
}

func (m *Memory) write(fn func(*state)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.s)
}

// ---- transactions ----

func (m *Memory) InsertTransaction(ctx context.Context, tx ledger.Transaction) (err error) {
	m.write(func(s *state) { err = s.InsertTransaction(ctx, tx) })
	return
}

func (m *Memory) InsertTransactions(ctx context.Context, txs []ledger.Transaction) (err error) {
	m.write(func(s *state) { err = s.InsertTransactions(ctx, txs) })
	return
}

func (m *Memory) GetTransaction(ctx context.Context, userID ledger.UserID, id ledger.TransactionID) (tx ledger.Transaction, err error) {
	m.read(func(s *state) { tx, err = s.GetTransaction(ctx, userID, id) })
	return
}

func (m *Memory) UpdateTransaction(ctx context.Context, tx ledger.Transaction) (err error) {
	m.write(func(s *state) { err = s.UpdateTransaction(ctx, tx) })
	return
}

func (m *Memory) DeleteTransaction(ctx context.Context, userID ledger.UserID, id ledger.TransactionID) (err error) {
	m.write(func(s *state) { err = s.DeleteTransaction(ctx, userID, id) })
	return
}

func (m *Memory) DeleteChildren(ctx context.Context, userID ledger.UserID, parentID ledger.TransactionID) (n int, err error) {
	m.write(func(s *state) { n, err = s.DeleteChildren(ctx, userID, parentID) })
	return
}

func (m *Memory) ListChildren(ctx context.Context, userID ledger.UserID, parentID ledger.TransactionID) (txs []ledger.Transaction, err error) {
	m.read(func(s *state) { txs, err = s.ListChildren(ctx, userID, parentID) })
	return
}

func (m *Memory) ListTransactions(ctx context.Context, userID ledger.UserID, f ledger.TransactionFilter) (txs []ledger.Transaction, err error) {
	m.read(func(s *state) { txs, err = s.ListTransactions(ctx, userID, f) })
	return
}

func (m *Memory) ListWalletTransactions(ctx context.Context, userID ledger.UserID, walletID ledger.WalletID) (txs []ledger.Transaction, err error) {
	m.read(func(s *state) { txs, err = s.ListWalletTransactions(ctx, userID, walletID) })
	return
}

func (m *Memory) ListAllTransactions(ctx context.Context, userID ledger.UserID) (txs []ledger.Transaction, err error) {
	m.read(func(s *state) { txs, err = s.ListAllTransactions(ctx, userID) })
	return
}

func (m *Memory) CountWalletReferences(ctx context.Context, userID ledger.UserID, walletID ledger.WalletID) (n int, err error) {
	m.read(func(s *state) { n, err = s.CountWalletReferences(ctx, userID, walletID) })
	return
}

// ---- wallets ----

func (m *Memory) CreateWallet(ctx context.Context, w ledger.Wallet) (err error) {
	m.write(func(s *state) { err = s.CreateWallet(ctx, w) })
	return
}

func (m *Memory) GetWallet(ctx context.Context, userID ledger.UserID, id ledger.WalletID) (w ledger.Wallet, err error) {
	m.read(func(s *state) { w, err = s.GetWallet(ctx, userID, id) })
	return
}

func (m *Memory) ListWallets(ctx context.Context, userID ledger.UserID) (ws []ledger.Wallet, err error) {
	m.read(func(s *state) { ws, err = s.ListWallets(ctx, userID) })
	return
}

func (m *Memory) ListAllWallets(ctx context.Context) (ws []ledger.Wallet, err error) {
	m.read(func(s *state) { ws, err = s.ListAllWallets(ctx) })
	return
}

func (m *Memory) UpdateWallet(ctx context.Context, w ledger.Wallet) (err error) {
	m.write(func(s *state) { err = s.UpdateWallet(ctx, w) })
	return
}

func (m *Memory) AdjustBalance(ctx context.Context, userID ledger.UserID, id ledger.WalletID, delta decimal.Decimal) (w ledger.Wallet, err error) {
	m.write(func(s *state) { w, err = s.AdjustBalance(ctx, userID, id, delta) })
	return
}

func (m *Memory) SetBalance(ctx context.Context, userID ledger.UserID, id ledger.WalletID, balance decimal.Decimal) (w ledger.Wallet, err error) {
	m.write(func(s *state) { w, err = s.SetBalance(ctx, userID, id, balance) })
	return
}

func (m *Memory) DeleteWallet(ctx context.Context, userID ledger.UserID, id ledger.WalletID) (err error) {
	m.write(func(s *state) { err = s.DeleteWallet(ctx, userID, id) })
	return
}

// ---- rules ----

func (m *Memory) SaveRule(ctx context.Context, r ledger.MerchantRule) (err error) {
	m.write(func(s *state) { err = s.SaveRule(ctx, r) })
	return
}

func (m *Memory) ListRules(ctx context.Context, userID ledger.UserID) (rs []ledger.MerchantRule, err error) {
	m.read(func(s *state) { rs, err = s.ListRules(ctx, userID) })
	return
}

// ---- installment plans ----

func (m *Memory) CreatePlan(ctx context.Context, p installment.Plan) (err error) {
	m.write(func(s *state) { err = s.CreatePlan(ctx, p) })
	return
}

func (m *Memory) GetPlan(ctx context.Context, userID ledger.UserID, id string) (p installment.Plan, err error) {
	m.read(func(s *state) { p, err = s.GetPlan(ctx, userID, id) })
	return
}

func (m *Memory) ListPlans(ctx context.Context, userID ledger.UserID) (ps []installment.Plan, err error) {
	m.read(func(s *state) { ps, err = s.ListPlans(ctx, userID) })
	return
}

func (m *Memory) UpdatePlan(ctx context.Context, p installment.Plan) (err error) {
	m.write(func(s *state) { err = s.UpdatePlan(ctx, p) })
	return
}

func (m *Memory) ListWalletRefs(ctx context.Context, userID ledger.UserID) (refs []ledger.WalletRef, err error) {
	m.read(func(s *state) { refs, err = s.ListWalletRefs(ctx, userID) })
	return
}

func (m *Memory) ReassignWalletRef(ctx context.Context, userID ledger.UserID, ref ledger.WalletRef) (err error) {
	m.write(func(s *state) { err = s.ReassignWalletRef(ctx, userID, ref) })
	return
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// The lock is held for the whole callback, so transactions are serialized.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.s.clone()
	if err := fn(tm.s); err != nil {
		tm.s = snapshot
		return err
	}
	return nil
}

// =============================================================================
// STATE - Unlocked implementation
// =============================================================================

type state struct {
	wallets map[ledger.WalletID]ledger.Wallet
	txs     map[ledger.TransactionID]ledger.Transaction
	rules   map[string]ledger.MerchantRule
	plans   map[string]installment.Plan
}

func newState() *state {
	return &state{
		wallets: make(map[ledger.WalletID]ledger.Wallet),
		txs:     make(map[ledger.TransactionID]ledger.Transaction),
		rules:   make(map[string]ledger.MerchantRule),
		plans:   make(map[string]installment.Plan),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	for k, v := range s.txs {
		c.txs[k] = v
	}
	for k, v := range s.rules {
		c.rules[k] = v
	}
	for k, v := range s.plans {
		c.plans[k] = copyPlan(v)
	}
	return c
}

func (s *state) InsertTransaction(_ context.Context, tx ledger.Transaction) error {
	if _, ok := s.txs[tx.ID]; ok {
		return fmt.Errorf("transaction %s already exists", tx.ID)
	}
	s.txs[tx.ID] = tx
	return nil
}

func (s *state) InsertTransactions(ctx context.Context, txs []ledger.Transaction) error {
	// Check all IDs first so a duplicate writes nothing.
	seen := make(map[ledger.TransactionID]bool, len(txs))
	for _, tx := range txs {
		if _, ok := s.txs[tx.ID]; ok || seen[tx.ID] {
			return fmt.Errorf("transaction %s already exists", tx.ID)
		}
		seen[tx.ID] = true
	}
	for _, tx := range txs {
		s.txs[tx.ID] = tx
	}
	return nil
}

func (s *state) GetTransaction(_ context.Context, userID ledger.UserID, id ledger.TransactionID) (ledger.Transaction, error) {
	tx, ok := s.txs[id]
	if !ok || tx.UserID != userID {
		return ledger.Transaction{}, ledger.ErrTransactionNotFound
	}
	return tx, nil
}

func (s *state) UpdateTransaction(_ context.Context, tx ledger.Transaction) error {
	old, ok := s.txs[tx.ID]
	if !ok || old.UserID != tx.UserID {
		return ledger.ErrTransactionNotFound
	}
	s.txs[tx.ID] = tx
	return nil
}

func (s *state) DeleteTransaction(_ context.Context, userID ledger.UserID, id ledger.TransactionID) error {
	tx, ok := s.txs[id]
	if !ok || tx.UserID != userID {
		return ledger.ErrTransactionNotFound
	}
	delete(s.txs, id)
	return nil
}

func (s *state) DeleteChildren(_ context.Context, userID ledger.UserID, parentID ledger.TransactionID) (int, error) {
	n := 0
	for id, tx := range s.txs {
		if tx.UserID == userID && tx.ParentID == parentID {
			delete(s.txs, id)
			n++
		}
	}
	return n, nil
}

func (s *state) ListChildren(_ context.Context, userID ledger.UserID, parentID ledger.TransactionID) ([]ledger.Transaction, error) {
	out := s.filterTxs(func(tx ledger.Transaction) bool {
		return tx.UserID == userID && tx.ParentID == parentID
	})
	sortByCreated(out)
	return out, nil
}

func (s *state) ListTransactions(_ context.Context, userID ledger.UserID, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	out := s.filterTxs(func(tx ledger.Transaction) bool {
		switch {
		case tx.UserID != userID || tx.IsChild():
			return false
		case f.WalletID != "" && !tx.Touches(f.WalletID):
			return false
		case f.Category != "" && tx.Category != f.Category:
			return false
		case f.Subcategory != "" && tx.Subcategory != f.Subcategory:
			return false
		case !f.From.IsZero() && tx.Date.Before(f.From):
			return false
		case !f.To.IsZero() && tx.Date.After(f.To):
			return false
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	return out, nil
}

func (s *state) ListWalletTransactions(_ context.Context, userID ledger.UserID, walletID ledger.WalletID) ([]ledger.Transaction, error) {
	out := s.filterTxs(func(tx ledger.Transaction) bool {
		return tx.UserID == userID && !tx.IsChild() && tx.Touches(walletID)
	})
	sortByCreated(out)
	return out, nil
}

func (s *state) ListAllTransactions(_ context.Context, userID ledger.UserID) ([]ledger.Transaction, error) {
	out := s.filterTxs(func(tx ledger.Transaction) bool { return tx.UserID == userID })
	sortByCreated(out)
	return out, nil
}

func (s *state) CountWalletReferences(_ context.Context, userID ledger.UserID, walletID ledger.WalletID) (int, error) {
	n := 0
	for _, tx := range s.txs {
		if tx.UserID == userID && tx.Touches(walletID) {
			n++
		}
	}
	return n, nil
}

func (s *state) filterTxs(keep func(ledger.Transaction) bool) []ledger.Transaction {
	var out []ledger.Transaction
	for _, tx := range s.txs {
		if keep(tx) {
			out = append(out, tx)
		}
	}
	return out
}

func sortByCreated(txs []ledger.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].CreatedAt.Equal(txs[j].CreatedAt) {
			return txs[i].CreatedAt.Before(txs[j].CreatedAt)
		}
		return txs[i].ID < txs[j].ID
	})
}

func (s *state) CreateWallet(_ context.Context, w ledger.Wallet) error {
	if _, ok := s.wallets[w.ID]; ok {
		return fmt.Errorf("wallet %s already exists", w.ID)
	}
	s.wallets[w.ID] = w
	return nil
}

func (s *state) GetWallet(_ context.Context, userID ledger.UserID, id ledger.WalletID) (ledger.Wallet, error) {
	w, ok := s.wallets[id]
	if !ok || w.UserID != userID {
		return ledger.Wallet{}, ledger.ErrWalletNotFound
	}
	return w, nil
}

func (s *state) ListWallets(_ context.Context, userID ledger.UserID) ([]ledger.Wallet, error) {
	var out []ledger.Wallet
	for _, w := range s.wallets {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	sortWallets(out)
	return out, nil
}

func (s *state) ListAllWallets(_ context.Context) ([]ledger.Wallet, error) {
	out := make([]ledger.Wallet, 0, len(s.wallets))
	for _, w := range s.wallets {
		out = append(out, w)
	}
	sortWallets(out)
	return out, nil
}

func sortWallets(ws []ledger.Wallet) {
	sort.Slice(ws, func(i, j int) bool {
		if !ws[i].CreatedAt.Equal(ws[j].CreatedAt) {
			return ws[i].CreatedAt.Before(ws[j].CreatedAt)
		}
		return ws[i].ID < ws[j].ID
	})
}

func (s *state) UpdateWallet(ctx context.Context, w ledger.Wallet) error {
	old, err := s.GetWallet(ctx, w.UserID, w.ID)
	if err != nil {
		return err
	}
	old.Name, old.Type, old.UpdatedAt = w.Name, w.Type, w.UpdatedAt
	s.wallets[w.ID] = old
	return nil
}

func (s *state) AdjustBalance(ctx context.Context, userID ledger.UserID, id ledger.WalletID, delta decimal.Decimal) (ledger.Wallet, error) {
	w, err := s.GetWallet(ctx, userID, id)
	if err != nil {
		return ledger.Wallet{}, err
	}
	w.Balance = w.Balance.Add(delta)
	w.Version++
	s.wallets[id] = w
	return w, nil
}

func (s *state) SetBalance(ctx context.Context, userID ledger.UserID, id ledger.WalletID, balance decimal.Decimal) (ledger.Wallet, error) {
	w, err := s.GetWallet(ctx, userID, id)
	if err != nil {
		return ledger.Wallet{}, err
	}
	w.Balance = balance
	w.Version++
	s.wallets[id] = w
	return w, nil
}

func (s *state) DeleteWallet(ctx context.Context, userID ledger.UserID, id ledger.WalletID) error {
	if _, err := s.GetWallet(ctx, userID, id); err != nil {
		return err
	}
	delete(s.wallets, id)
	return nil
}

func (s *state) SaveRule(_ context.Context, r ledger.MerchantRule) error {
	if old, ok := s.rules[r.ID]; ok && old.UserID != r.UserID {
		return ledger.ErrRuleNotFound
	}
	s.rules[r.ID] = r
	return nil
}

func (s *state) ListRules(_ context.Context, userID ledger.UserID) ([]ledger.MerchantRule, error) {
	var out []ledger.MerchantRule
	for _, r := range s.rules {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MerchantName < out[j].MerchantName })
	return out, nil
}

func (s *state) CreatePlan(_ context.Context, p installment.Plan) error {
	if _, ok := s.plans[p.ID]; ok {
		return fmt.Errorf("installment plan %s already exists", p.ID)
	}
	s.plans[p.ID] = copyPlan(p)
	return nil
}

func (s *state) GetPlan(_ context.Context, userID ledger.UserID, id string) (installment.Plan, error) {
	p, ok := s.plans[id]
	if !ok || p.UserID != userID {
		return installment.Plan{}, installment.ErrPlanNotFound
	}
	return copyPlan(p), nil
}

func (s *state) ListPlans(_ context.Context, userID ledger.UserID) ([]installment.Plan, error) {
	var out []installment.Plan
	for _, p := range s.plans {
		if p.UserID == userID {
			out = append(out, copyPlan(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *state) UpdatePlan(ctx context.Context, p installment.Plan) error {
	if _, err := s.GetPlan(ctx, p.UserID, p.ID); err != nil {
		return err
	}
	s.plans[p.ID] = copyPlan(p)
	return nil
}

func (s *state) ListWalletRefs(ctx context.Context, userID ledger.UserID) ([]ledger.WalletRef, error) {
	plans, _ := s.ListPlans(ctx, userID)
	refs := make([]ledger.WalletRef, 0, len(plans))
	for _, p := range plans {
		refs = append(refs, ledger.WalletRef{
			ID:                  p.ID,
			SourceWalletID:      p.SourceWalletID,
			DestinationWalletID: p.DestinationWalletID,
		})
	}
	return refs, nil
}

func (s *state) ReassignWalletRef(ctx context.Context, userID ledger.UserID, ref ledger.WalletRef) error {
	p, err := s.GetPlan(ctx, userID, ref.ID)
	if err != nil {
		return err
	}
	p.SourceWalletID = ref.SourceWalletID
	p.DestinationWalletID = ref.DestinationWalletID
	s.plans[p.ID] = p
	return nil
}

func copyPlan(p installment.Plan) installment.Plan {
	p.Payments = append([]installment.Payment(nil), p.Payments...)
	return p
}
