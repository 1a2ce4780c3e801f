/*
scenarios_test.go - Tests for demo scenarios and the reconciliation scheduler

PURPOSE:
	Each scenario must load cleanly and leave every wallet consistent with
	its ledger, except "drift", which must leave exactly one wallet drifted.
*/
package api

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/wallet-engine/ledger"
)

func TestScenario_AllScenariosLoadWithoutError(t *testing.T) {
	for _, sc := range scenarios {
		t.Run(sc.ID, func(t *testing.T) {
			s := newTestServer(t)
			rec := s.do(http.MethodPost, "/api/scenarios/load", "demo", LoadScenarioRequest{ScenarioID: sc.ID})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decodeAs[LoadScenarioResponse](t, rec).Wallets)

			report, err := s.handler.Reconciler.ReconcileUser(context.Background(), "demo")
			require.NoError(t, err)
			if sc.ID == "drift" {
				assert.Equal(t, 1, report.WalletsCorrected)
				assert.True(t, report.TotalDrift.Equal(decimal.NewFromInt(250)))
			} else {
				assert.Zero(t, report.WalletsCorrected, "scenario %s left drift", sc.ID)
			}
		})
	}
}

func TestScenario_Everyday(t *testing.T) {
	// GIVEN: Everyday scenario
	// WHEN: Loading it
	// THEN: Checking = 1500 + 4200 - 1200 - 100.40, card = -86.40 - 14 + 100.40 = 0

	s := newTestServer(t)
	require.NoError(t, s.handler.loadEverydayScenario(context.Background(), "demo"))

	wallets, err := s.handler.Wallets.List(context.Background(), "demo")
	require.NoError(t, err)
	require.Len(t, wallets, 2)
	assert.Equal(t, "4399.6", wallets[0].Balance.String())
	assert.True(t, wallets[1].Balance.IsZero(), "card: %s", wallets[1].Balance)
}

func TestScenario_Installments_LinksExpense(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, s.handler.loadInstallmentsScenario(ctx, "demo"))

	plans, err := s.handler.Installments.List(ctx, "demo")
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, 1, plans[0].PaidCount())

	txID := plans[0].Payments[0].TransactionID
	require.NotEmpty(t, txID)
	tx, err := s.handler.Transactions.Get(ctx, "demo", txID)
	require.NoError(t, err)
	assert.True(t, tx.Amount.Equal(plans[0].Payments[0].ScheduledAmount))
}

func TestScenario_Unknown(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodPost, "/api/scenarios/load", "demo", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	list := decodeAs[[]ScenarioDTO](t, s.do(http.MethodGet, "/api/scenarios", "demo", nil))
	assert.Len(t, list, len(scenarios))
}

// =============================================================================
// SCHEDULER
// =============================================================================

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (c *countingSweeper) ReconcileAll(ctx context.Context) (ledger.Report, error) {
	c.calls.Add(1)
	return ledger.Report{WalletsChecked: 3, WalletsCorrected: 1, TotalDrift: decimal.NewFromInt(7)}, c.err
}

func TestScheduler_RunsOnStartAndStops(t *testing.T) {
	sw := &countingSweeper{}
	rs := NewReconciliationScheduler(sw, zerolog.Nop())
	rs.CheckInterval = 10 * time.Millisecond

	rs.Start()
	require.Eventually(t, func() bool { return sw.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	rs.Stop()

	n := sw.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, sw.calls.Load(), "no sweeps after Stop")

	_, report := rs.LastRun()
	assert.Equal(t, 1, report.WalletsCorrected)

	// Stop twice is harmless.
	rs.Stop()
}

func TestScheduler_Disabled(t *testing.T) {
	sw := &countingSweeper{}
	rs := NewReconciliationScheduler(sw, zerolog.Nop())
	rs.Enabled = false
	rs.Start()
	rs.Stop()
	assert.Zero(t, sw.calls.Load())
}

func TestScheduler_FailedSweepKeepsLastReport(t *testing.T) {
	sw := &countingSweeper{err: errors.New("database is locked")}
	rs := NewReconciliationScheduler(sw, zerolog.Nop())
	rs.RunNow(context.Background())

	last, _ := rs.LastRun()
	assert.True(t, last.IsZero())
	assert.Equal(t, int32(1), sw.calls.Load())
}
