package ledger

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// RECONCILIATION - Rebuild cached balances from the ledger
// =============================================================================

// Drift compares a wallet's stored balance with the one implied by the ledger.
type Drift struct {
	WalletID WalletID
	UserID   UserID
	Stored   decimal.Decimal
	Ledger   decimal.Decimal
}

// Amount is Ledger - Stored; zero means the wallet is consistent.
func (d Drift) Amount() decimal.Decimal { return d.Ledger.Sub(d.Stored) }

func (d Drift) Drifted() bool { return !d.Amount().IsZero() }

// Report summarizes one reconciliation sweep.
type Report struct {
	WalletsChecked   int
	WalletsCorrected int
	TotalDrift       decimal.Decimal // sum of |drift| over corrected wallets
	Failed           []WalletID
}

// Reconciler checks and repairs wallet balances. It shares the store and
// options of the other services.
type Reconciler struct {
	store       Store
	opts        options
	concurrency int
}

func NewReconciler(store Store, concurrency int, opts ...Option) *Reconciler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Reconciler{store: store, opts: buildOptions(opts), concurrency: concurrency}
}

// Check reports drift without writing anything.
func (r *Reconciler) Check(ctx context.Context, userID UserID, walletID WalletID) (Drift, error) {
	w, err := r.store.GetWallet(ctx, userID, walletID)
	if err != nil {
		return Drift{}, storeErr("get wallet", err)
	}
	total, err := ledgerBalance(ctx, r.store, userID, walletID)
	if err != nil {
		return Drift{}, err
	}
	return Drift{WalletID: walletID, UserID: userID, Stored: w.Balance, Ledger: total}, nil
}

// ReconcileUser recalculates every wallet of one user.
func (r *Reconciler) ReconcileUser(ctx context.Context, userID UserID) (Report, error) {
	wallets, err := r.store.ListWallets(ctx, userID)
	if err != nil {
		return Report{}, storeErr("list wallets", err)
	}
	return r.sweep(ctx, wallets)
}

// ReconcileAll recalculates every wallet in the store.
func (r *Reconciler) ReconcileAll(ctx context.Context) (Report, error) {
	wallets, err := r.store.ListAllWallets(ctx)
	if err != nil {
		return Report{}, storeErr("list wallets", err)
	}
	return r.sweep(ctx, wallets)
}

// sweep recalculates wallets with bounded concurrency. A failure on one
// wallet is recorded in the report and does not stop the others; only
// context cancellation aborts the sweep.
func (r *Reconciler) sweep(ctx context.Context, wallets []Wallet) (Report, error) {
	var (
		mu      sync.Mutex
		report  = Report{TotalDrift: decimal.Zero}
		changes []BalanceChange
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, w := range wallets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var change BalanceChange
			err := atomically(gctx, r.store, func(st Store) error {
				var err error
				change, err = recalculate(gctx, st, w.UserID, w.ID, r.opts.now())
				return err
			})

			mu.Lock()
			defer mu.Unlock()
			report.WalletsChecked++
			if err != nil {
				r.opts.log.Error().Err(err).
					Str("wallet_id", string(w.ID)).
					Str("user_id", string(w.UserID)).
					Msg("wallet reconciliation failed")
				report.Failed = append(report.Failed, w.ID)
				return nil
			}
			if !change.Delta.IsZero() {
				report.WalletsCorrected++
				report.TotalDrift = report.TotalDrift.Add(change.Delta.Abs())
				changes = append(changes, change)
				r.opts.log.Warn().
					Str("wallet_id", string(w.ID)).
					Str("user_id", string(w.UserID)).
					Str("drift", change.Delta.String()).
					Msg("wallet balance drift corrected")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	r.opts.publish(ctx, changes)
	return report, nil
}
