/*
scheduler.go - Automated balance reconciliation

PURPOSE:
  Periodically recalculates every wallet from its ledger rows so drift left
  behind by a crash between revert and apply (or a manual override) never
  survives longer than one interval.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - Each sweep is bounded by the Reconciler's concurrency limit
  - A sweep that overruns is cancelled when Stop is called

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewReconciliationScheduler(reconciler, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: ReconcileWallets endpoint (manual, per user)
  - ledger/reconcile.go: Reconciler
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/wallet-engine/ledger"
)

// Sweeper is the part of *ledger.Reconciler the scheduler drives.
type Sweeper interface {
	ReconcileAll(ctx context.Context) (ledger.Report, error)
}

// ReconciliationScheduler runs ReconcileAll on a ticker.
type ReconciliationScheduler struct {
	Reconciler    Sweeper
	CheckInterval time.Duration
	Enabled       bool

	log    zerolog.Logger
	ticker *time.Ticker
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex

	lastRun    time.Time
	lastReport ledger.Report
}

// NewReconciliationScheduler creates a new scheduler.
func NewReconciliationScheduler(r Sweeper, log zerolog.Logger) *ReconciliationScheduler {
	return &ReconciliationScheduler{
		Reconciler:    r,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		log:           log,
	}
}

// Start begins the scheduler.
func (rs *ReconciliationScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.log.Info().Msg("reconciliation scheduler disabled")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ctx, rs.cancel = context.WithCancel(context.Background())
	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)

	go rs.run(rs.ctx, rs.ticker)

	rs.log.Info().Dur("interval", rs.CheckInterval).Msg("reconciliation scheduler started")
}

// Stop cancels any sweep in progress and waits for the loop to exit.
func (rs *ReconciliationScheduler) Stop() {
	rs.mu.Lock()
	if rs.ticker == nil {
		rs.mu.Unlock()
		return
	}
	rs.ticker.Stop()
	rs.cancel()
	rs.ticker = nil
	rs.mu.Unlock()

	rs.wg.Wait()
	rs.log.Info().Msg("reconciliation scheduler stopped")
}

func (rs *ReconciliationScheduler) run(ctx context.Context, ticker *time.Ticker) {
	defer rs.wg.Done()

	// Run immediately on start
	rs.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			rs.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (rs *ReconciliationScheduler) sweep(ctx context.Context) {
	start := time.Now()
	report, err := rs.Reconciler.ReconcileAll(ctx)
	if err != nil {
		if ctx.Err() == nil {
			rs.log.Error().Err(err).Msg("reconciliation sweep failed")
		}
		return
	}

	rs.mu.Lock()
	rs.lastRun, rs.lastReport = start, report
	rs.mu.Unlock()

	evt := rs.log.Info()
	if report.WalletsCorrected > 0 || len(report.Failed) > 0 {
		evt = rs.log.Warn()
	}
	evt.Int("checked", report.WalletsChecked).
		Int("corrected", report.WalletsCorrected).
		Str("total_drift", report.TotalDrift.String()).
		Int("failed", len(report.Failed)).
		Dur("duration", time.Since(start)).
		Msg("reconciliation sweep completed")
}

// RunNow triggers an immediate sweep (for testing/admin).
func (rs *ReconciliationScheduler) RunNow(ctx context.Context) {
	rs.sweep(ctx)
}

// LastRun returns when the last successful sweep started and what it found.
func (rs *ReconciliationScheduler) LastRun() (time.Time, ledger.Report) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.lastRun, rs.lastReport
}
