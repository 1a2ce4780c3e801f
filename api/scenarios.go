/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the calling user's books with
	realistic data. Everything goes through the services, so balances are
	built exactly the way real traffic builds them.

AVAILABLE SCENARIOS:

	everyday:      Checking + credit card, salary, groceries, a transfer
	grouped:       A supermarket receipt itemized into children
	installments:  A 12x purchase with the first installment paid
	drift:         A wallet whose stored balance was overridden by hand

HOW SCENARIOS WORK:
 1. Create wallets for the user
 2. Record transactions through TransactionService
 3. Optionally create plans / override balances

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "everyday"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, userID)
 3. Add it to the 'loaders' map

NOTE:

	Loading twice creates a second copy of the data. Scenarios never delete.

SEE ALSO:
  - handlers.go: Endpoints exercised by the scenarios
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/wallet-engine/installment"
	"github.com/warp/wallet-engine/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type LoadScenarioResponse struct {
	Scenario string      `json:"scenario"`
	Wallets  []WalletDTO `json:"wallets"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "everyday",
		Name:        "Everyday Spending",
		Description: "Checking account and credit card with salary, groceries and a card payment transfer",
	},
	{
		ID:          "grouped",
		Name:        "Grouped Purchase",
		Description: "One supermarket receipt itemized into children; only the parent moves the wallet",
	},
	{
		ID:          "installments",
		Name:        "Installment Purchase",
		Description: "A 12x laptop purchase on the credit card with the first installment paid",
	},
	{
		ID:          "drift",
		Name:        "Balance Drift",
		Description: "A wallet whose stored balance disagrees with its ledger; reconcile to fix it",
	},
}

type scenarioLoader func(h *Handler, ctx context.Context, userID ledger.UserID) error

var loaders = map[string]scenarioLoader{
	"everyday":     (*Handler).loadEverydayScenario,
	"grouped":      (*Handler).loadGroupedScenario,
	"installments": (*Handler).loadInstallmentsScenario,
	"drift":        (*Handler).loadDriftScenario,
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns the available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario seeds the calling user with one scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decode(w, r, &req) {
		return
	}
	load, ok := loaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}
	ctx, userID := r.Context(), userFrom(r)
	if err := load(h, ctx, userID); err != nil {
		writeDomainError(w, r, err)
		return
	}

	wallets, err := h.Wallets.List(ctx, userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	resp := LoadScenarioResponse{Scenario: req.ScenarioID, Wallets: make([]WalletDTO, len(wallets))}
	for i, wl := range wallets {
		resp.Wallets[i] = toWalletDTO(wl)
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// LOADERS
// =============================================================================

func (h *Handler) loadEverydayScenario(ctx context.Context, userID ledger.UserID) error {
	checking, err := h.Wallets.Create(ctx, userID, "Checking", ledger.WalletChecking, decimal.NewFromInt(1500))
	if err != nil {
		return err
	}
	card, err := h.Wallets.Create(ctx, userID, "Credit Card", ledger.WalletCreditCard, decimal.Zero)
	if err != nil {
		return err
	}

	day := monthStart(h.Now())
	drafts := []ledger.Draft{
		{WalletID: checking.ID, Amount: ledger.Amount(4200), Type: ledger.TypeIncome, Category: "Salary", Date: day},
		{WalletID: card.ID, Amount: ledger.Amount(86.40), Type: ledger.TypeExpense, Category: "Groceries", Establishment: "Market", Date: day.AddDate(0, 0, 2)},
		{WalletID: card.ID, Amount: ledger.Amount(3.50), Quantity: 4, Type: ledger.TypeExpense, Category: "Food", Item: "Espresso", Date: day.AddDate(0, 0, 3)},
		{WalletID: checking.ID, Amount: ledger.Amount(1200), Type: ledger.TypeExpense, Category: "Housing", Subcategory: "Rent", Date: day.AddDate(0, 0, 5)},
		{WalletID: checking.ID, ToWalletID: card.ID, Amount: ledger.Amount(100.40), Type: ledger.TypeTransfer, Category: "Card payment", Date: day.AddDate(0, 0, 10)},
	}
	return h.createAll(ctx, userID, drafts)
}

func (h *Handler) loadGroupedScenario(ctx context.Context, userID ledger.UserID) error {
	cash, err := h.Wallets.Create(ctx, userID, "Cash", ledger.WalletCash, decimal.NewFromInt(200))
	if err != nil {
		return err
	}
	_, _, err = h.Transactions.CreateGrouped(ctx, userID,
		ledger.Draft{WalletID: cash.ID, Type: ledger.TypeExpense, Category: "Groceries", Establishment: "Supermarket", Date: h.Now()},
		[]ledger.Draft{
			{Amount: ledger.Amount(2.49), Quantity: 2, Item: "Milk"},
			{Amount: ledger.Amount(4.99), Item: "Bread"},
			{Amount: ledger.Amount(12.30), Item: "Cheese", Subcategory: "Dairy"},
		},
	)
	return err
}

func (h *Handler) loadInstallmentsScenario(ctx context.Context, userID ledger.UserID) error {
	card, err := h.Wallets.Create(ctx, userID, "Credit Card", ledger.WalletCreditCard, decimal.Zero)
	if err != nil {
		return err
	}
	plan, err := h.Installments.Create(ctx, userID, installment.Input{
		Name:              "Laptop",
		TotalAmount:       ledger.Amount(2399.90),
		TotalInstallments: 12,
		Category:          "Electronics",
		Establishment:     "Tech Store",
		StartDate:         monthStart(h.Now()),
		SourceWalletID:    card.ID,
	})
	if err != nil {
		return err
	}
	first := plan.Payments[0]
	tx, err := h.Transactions.Create(ctx, userID, installmentDraft(plan, first, decimal.NullDecimal{}, first.DueDate))
	if err != nil {
		return err
	}
	_, _, err = h.Installments.Pay(ctx, userID, installment.PayInput{
		PlanID: plan.ID, Number: first.Number, PaidDate: first.DueDate, TransactionID: tx.ID,
	})
	return err
}

func (h *Handler) loadDriftScenario(ctx context.Context, userID ledger.UserID) error {
	savings, err := h.Wallets.Create(ctx, userID, "Savings", ledger.WalletSavings, decimal.NewFromInt(10000))
	if err != nil {
		return err
	}
	err = h.createAll(ctx, userID, []ledger.Draft{
		{WalletID: savings.ID, Amount: ledger.Amount(250), Type: ledger.TypeIncome, Category: "Interest"},
		{WalletID: savings.ID, Amount: ledger.Amount(1000), Type: ledger.TypeExpense, Category: "Travel"},
	})
	if err != nil {
		return err
	}
	// Stored 9000, ledger 9250.
	_, err = h.Wallets.SetBalance(ctx, userID, savings.ID, decimal.NewFromInt(9000))
	return err
}

func (h *Handler) createAll(ctx context.Context, userID ledger.UserID, drafts []ledger.Draft) error {
	for _, d := range drafts {
		if _, err := h.Transactions.Create(ctx, userID, d); err != nil {
			return err
		}
	}
	return nil
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 12, 0, 0, 0, time.UTC)
}
