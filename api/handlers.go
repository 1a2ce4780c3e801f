/*
handlers.go - HTTP API handlers for the wallet engine

PURPOSE:
  Exposes the ledger via REST API. Handles HTTP request/response and JSON
  serialization, and delegates every balance decision to package ledger.
  Handlers never touch Wallet.Balance themselves.

ENDPOINTS:
  Wallets:
    GET    /api/wallets                  List wallets
    POST   /api/wallets                  Create wallet (optional initial balance)
    GET    /api/wallets/{id}             Get wallet
    PUT    /api/wallets/{id}             Rename and/or set balance manually
    DELETE /api/wallets/{id}             Delete (409 while referenced)
    POST   /api/wallets/{id}/recalculate Rebuild balance from the ledger
    GET    /api/wallets/{id}/drift       Stored vs ledger balance, read-only
    POST   /api/wallets/reconcile        Recalculate every wallet of the user

  Transactions:
    GET    /api/transactions             List top-level (filters, cursor)
    POST   /api/transactions             Create
    GET    /api/transactions/{id}        Get
    PUT    /api/transactions/{id}        Edit (revert -> update -> apply)
    DELETE /api/transactions/{id}        Delete (revert -> remove)
    POST   /api/transactions/grouped     Create parent + children
    GET    /api/transactions/{id}/children
    POST   /api/transactions/{id}/children
    PUT    /api/transactions/{id}/children/{childId}
    DELETE /api/transactions/{id}/children/{childId}

  Installments:
    GET    /api/installments             List plans
    POST   /api/installments             Create plan
    GET    /api/installments/{id}        Get plan
    POST   /api/installments/{id}/pay    Pay one installment
    POST   /api/installments/migrate     Reassign orphaned wallet references

  Rules:
    GET    /api/rules                    List merchant rules
    POST   /api/rules                    Save merchant rule
    GET    /api/suggestions              Advisor defaults for establishment/item

USER SCOPING:
  Every route requires a user, from the X-User-ID header or the userId
  query parameter (see server.go). Rows of other users answer 404.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, malformed body
  - 401: No user
  - 404: Resource not found (or owned by another user)
  - 409: Wallet in use, installment already paid, lost update race
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/wallet-engine/installment"
	"github.com/warp/wallet-engine/ledger"
	"github.com/warp/wallet-engine/logging"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is everything the handlers persist through.
type Store interface {
	ledger.Store
	ledger.RuleStore
	ledger.WalletRefStore
	installment.Store
}

// Options configures NewHandler.
type Options struct {
	Logger               zerolog.Logger
	Publisher            ledger.Publisher // nil disables publishing
	ReconcileConcurrency int
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Wallets      *ledger.WalletService
	Transactions *ledger.TransactionService
	Balances     *ledger.Balances
	Reconciler   *ledger.Reconciler
	Migrator     *ledger.Migrator
	Installments *installment.Service
	Rules        ledger.RuleStore
	Advisor      ledger.Advisor

	Log zerolog.Logger
	Now func() time.Time
}

// NewHandler wires every service on top of one store.
func NewHandler(store Store, o Options) *Handler {
	opts := []ledger.Option{ledger.WithLogger(o.Logger)}
	if o.Publisher != nil {
		opts = append(opts, ledger.WithPublisher(o.Publisher))
	}
	advisor := ledger.NewRuleAdvisor(store)

	return &Handler{
		Wallets:      ledger.NewWalletService(store, opts...),
		Transactions: ledger.NewTransactionService(store, append(opts, ledger.WithAdvisor(advisor))...),
		Balances:     ledger.NewBalanceService(store, opts...),
		Reconciler:   ledger.NewReconciler(store, o.ReconcileConcurrency, opts...),
		Migrator:     ledger.NewMigrator(store, store, opts...),
		Installments: installment.NewService(store, o.Logger),
		Rules:        store,
		Advisor:      advisor,
		Log:          o.Logger,
		Now:          func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// WALLET HANDLERS
// =============================================================================

// ListWallets returns the user's wallets, oldest first.
func (h *Handler) ListWallets(w http.ResponseWriter, r *http.Request) {
	wallets, err := h.Wallets.List(r.Context(), userFrom(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	dtos := make([]WalletDTO, len(wallets))
	for i, wl := range wallets {
		dtos[i] = toWalletDTO(wl)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateWallet creates a wallet. A non-zero initial_balance is recorded as
// an opening transaction.
func (h *Handler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	var req CreateWalletRequest
	if !decode(w, r, &req) {
		return
	}
	wl, err := h.Wallets.Create(r.Context(), userFrom(r), req.Name, ledger.WalletType(req.Type), req.InitialBalance)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWalletDTO(wl))
}

func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	wl, err := h.Wallets.Get(r.Context(), userFrom(r), walletParam(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWalletDTO(wl))
}

// UpdateWallet renames the wallet and/or overwrites its balance.
func (h *Handler) UpdateWallet(w http.ResponseWriter, r *http.Request) {
	var req UpdateWalletRequest
	if !decode(w, r, &req) {
		return
	}
	ctx, userID, id := r.Context(), userFrom(r), walletParam(r)

	wl, err := h.Wallets.Get(ctx, userID, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if req.Name != nil {
		if wl, err = h.Wallets.Rename(ctx, userID, id, *req.Name); err != nil {
			writeDomainError(w, r, err)
			return
		}
	}
	if req.Balance != nil {
		if wl, err = h.Wallets.SetBalance(ctx, userID, id, *req.Balance); err != nil {
			writeDomainError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, toWalletDTO(wl))
}

func (h *Handler) DeleteWallet(w http.ResponseWriter, r *http.Request) {
	if err := h.Wallets.Delete(r.Context(), userFrom(r), walletParam(r)); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RecalculateWallet rebuilds the stored balance from the ledger.
func (h *Handler) RecalculateWallet(w http.ResponseWriter, r *http.Request) {
	id := walletParam(r)
	balance, err := h.Balances.RecalculateWalletBalance(r.Context(), id, userFrom(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RecalculateResponse{WalletID: string(id), Balance: balance})
}

// GetDrift compares stored and ledger balance without writing.
func (h *Handler) GetDrift(w http.ResponseWriter, r *http.Request) {
	d, err := h.Reconciler.Check(r.Context(), userFrom(r), walletParam(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DriftDTO{
		WalletID: string(d.WalletID),
		Stored:   d.Stored,
		Ledger:   d.Ledger,
		Drift:    d.Amount(),
		Drifted:  d.Drifted(),
	})
}

// ReconcileWallets recalculates every wallet of the user.
func (h *Handler) ReconcileWallets(w http.ResponseWriter, r *http.Request) {
	report, err := h.Reconciler.ReconcileUser(r.Context(), userFrom(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(report))
}

func toReportDTO(rep ledger.Report) ReportDTO {
	dto := ReportDTO{
		WalletsChecked:   rep.WalletsChecked,
		WalletsCorrected: rep.WalletsCorrected,
		TotalDrift:       rep.TotalDrift,
	}
	for _, id := range rep.Failed {
		dto.Failed = append(dto.Failed, string(id))
	}
	return dto
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// ListTransactions returns top-level transactions, newest first.
// Query: wallet_id, category, subcategory, from, to, limit, cursor.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	page, err := h.Transactions.List(r.Context(), userFrom(r), filter)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TransactionListResponse{
		Transactions: toTransactionDTOs(page.Transactions),
		NextCursor:   string(page.NextCursor),
		HasMore:      page.HasMore,
	})
}

func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if !decode(w, r, &req) {
		return
	}
	draft, err := req.toDraft()
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	tx, err := h.Transactions.Create(r.Context(), userFrom(r), draft)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.Transactions.Get(r.Context(), userFrom(r), transactionParam(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx))
}

// UpdateTransaction runs the edit protocol: the old effect is reverted
// from the old wallet(s), the row is updated, the new effect is applied.
func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req PatchTransactionRequest
	if !decode(w, r, &req) {
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	tx, err := h.Transactions.Update(r.Context(), userFrom(r), transactionParam(r), patch)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx))
}

// DeleteTransaction reverts and removes a transaction (and its children).
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := h.Transactions.Delete(r.Context(), userFrom(r), transactionParam(r)); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateGrouped stores a parent with itemized children. Only the parent
// moves the wallet.
func (h *Handler) CreateGrouped(w http.ResponseWriter, r *http.Request) {
	var req GroupedRequest
	if !decode(w, r, &req) {
		return
	}
	parent, err := req.Parent.toDraft()
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	children := make([]ledger.Draft, len(req.Children))
	for i, c := range req.Children {
		if children[i], err = c.toDraft(); err != nil {
			writeDomainError(w, r, err)
			return
		}
	}
	p, cs, err := h.Transactions.CreateGrouped(r.Context(), userFrom(r), parent, children)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, GroupedResponse{Parent: toTransactionDTO(p), Children: toTransactionDTOs(cs)})
}

func (h *Handler) ListChildren(w http.ResponseWriter, r *http.Request) {
	children, err := h.Transactions.Children(r.Context(), userFrom(r), transactionParam(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(children))
}

func (h *Handler) AddChild(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if !decode(w, r, &req) {
		return
	}
	draft, err := req.toDraft()
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	child, err := h.Transactions.AddChild(r.Context(), userFrom(r), transactionParam(r), draft)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(child))
}

func (h *Handler) UpdateChild(w http.ResponseWriter, r *http.Request) {
	var req PatchTransactionRequest
	if !decode(w, r, &req) {
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	child, err := h.Transactions.UpdateChild(r.Context(), userFrom(r), transactionParam(r), childParam(r), patch)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(child))
}

func (h *Handler) DeleteChild(w http.ResponseWriter, r *http.Request) {
	if err := h.Transactions.DeleteChild(r.Context(), userFrom(r), transactionParam(r), childParam(r)); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseFilter(r *http.Request) (ledger.TransactionFilter, error) {
	q := r.URL.Query()
	f := ledger.TransactionFilter{
		WalletID:    ledger.WalletID(q.Get("wallet_id")),
		Category:    q.Get("category"),
		Subcategory: q.Get("subcategory"),
		Cursor:      ledger.TransactionID(q.Get("cursor")),
	}
	var err error
	if f.From, err = parseDate(q.Get("from")); err != nil {
		return f, &ledger.ValidationError{Field: "from", Message: "must be YYYY-MM-DD or RFC3339"}
	}
	if f.To, err = parseDate(q.Get("to")); err != nil {
		return f, &ledger.ValidationError{Field: "to", Message: "must be YYYY-MM-DD or RFC3339"}
	}
	// A bare date covers that whole day.
	if to := strings.TrimSpace(q.Get("to")); len(to) == len(dateLayout) {
		f.To = f.To.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return f, &ledger.ValidationError{Field: "limit", Message: "must be a non-negative integer"}
		}
		f.Limit = n
	}
	return f, nil
}

// =============================================================================
// INSTALLMENT HANDLERS
// =============================================================================

func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.Installments.List(r.Context(), userFrom(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	now := h.Now()
	dtos := make([]PlanDTO, len(plans))
	for i, p := range plans {
		dtos[i] = toPlanDTO(p, now)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePlan creates a plan. The source wallet must exist for the user.
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var req CreatePlanRequest
	if !decode(w, r, &req) {
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if start.IsZero() {
		start = h.Now()
	}
	ctx, userID := r.Context(), userFrom(r)

	for _, id := range []string{req.SourceWalletID, req.DestinationWalletID} {
		if id == "" {
			continue
		}
		if _, err := h.Wallets.Get(ctx, userID, ledger.WalletID(id)); err != nil {
			writeDomainError(w, r, err)
			return
		}
	}

	plan, err := h.Installments.Create(ctx, userID, installment.Input{
		Name:                req.Name,
		Description:         req.Description,
		TotalAmount:         req.TotalAmount,
		TotalInstallments:   req.TotalInstallments,
		Category:            req.Category,
		Subcategory:         req.Subcategory,
		Establishment:       req.Establishment,
		StartDate:           start,
		SourceWalletID:      ledger.WalletID(req.SourceWalletID),
		DestinationWalletID: ledger.WalletID(req.DestinationWalletID),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPlanDTO(plan, h.Now()))
}

func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.Installments.Get(r.Context(), userFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlanDTO(plan, h.Now()))
}

// PayInstallment marks one installment paid. Paying never moves a balance
// by itself; with create_transaction the expense is created first through
// the transaction service and linked to the payment. If recording the
// payment then fails, the expense is deleted again.
func (h *Handler) PayInstallment(w http.ResponseWriter, r *http.Request) {
	var req PayInstallmentRequest
	if !decode(w, r, &req) {
		return
	}
	paidDate, err := parseDate(req.PaidDate)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	ctx, userID, planID := r.Context(), userFrom(r), chi.URLParam(r, "id")

	plan, pay, err := h.Installments.Payable(ctx, userID, planID, req.Number)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	var created *ledger.Transaction
	if req.CreateTransaction {
		tx, err := h.Transactions.Create(ctx, userID, installmentDraft(plan, pay, req.Amount, paidDate))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		created = &tx
	}

	in := installment.PayInput{PlanID: planID, Number: req.Number, Amount: req.Amount, PaidDate: paidDate}
	if created != nil {
		in.TransactionID = created.ID
	}
	plan, pay, err = h.Installments.Pay(ctx, userID, in)
	if err != nil {
		if created != nil {
			if derr := h.Transactions.Delete(ctx, userID, created.ID); derr != nil {
				log := logging.FromContext(ctx)
				log.Error().Err(derr).
					Str("transaction_id", string(created.ID)).
					Msg("failed to remove installment expense after payment failure")
			}
		}
		writeDomainError(w, r, err)
		return
	}

	now := h.Now()
	resp := PayInstallmentResponse{Plan: toPlanDTO(plan, now), Payment: toPaymentDTO(pay, now)}
	if created != nil {
		dto := toTransactionDTO(*created)
		resp.Transaction = &dto
	}
	writeJSON(w, http.StatusOK, resp)
}

// installmentDraft is the expense recorded for a paid installment. A plan
// with a destination wallet pays into it as a transfer.
func installmentDraft(p installment.Plan, pay installment.Payment, amount decimal.NullDecimal, date time.Time) ledger.Draft {
	if !amount.Valid {
		amount = decimal.NullDecimal{Decimal: pay.ScheduledAmount, Valid: true}
	}
	d := ledger.Draft{
		WalletID:      p.SourceWalletID,
		Amount:        amount,
		Type:          ledger.TypeExpense,
		Category:      p.Category,
		Subcategory:   p.Subcategory,
		Establishment: p.Establishment,
		Item:          fmt.Sprintf("%s (%d/%d)", p.Name, pay.Number, p.TotalInstallments),
		Date:          date,
	}
	if p.DestinationWalletID != "" && p.DestinationWalletID != p.SourceWalletID {
		d.Type = ledger.TypeTransfer
		d.ToWalletID = p.DestinationWalletID
	}
	return d
}

// MigrateOrphans reassigns transactions and plans pointing at wallets the
// user no longer owns, then recalculates every wallet that gained rows.
func (h *Handler) MigrateOrphans(w http.ResponseWriter, r *http.Request) {
	ctx, userID := r.Context(), userFrom(r)
	res, err := h.Migrator.MigrateOrphanedWalletReferences(ctx, userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	resp := MigrationResponse{
		TransactionsMigrated: res.TransactionsMigrated,
		InstallmentsMigrated: res.InstallmentsMigrated,
		DefaultWalletID:      string(res.DefaultWalletID),
		Recalculated:         []RecalculateResponse{},
	}
	for _, id := range res.AffectedWallets {
		balance, err := h.Balances.RecalculateWalletBalance(ctx, id, userID)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		resp.Recalculated = append(resp.Recalculated, RecalculateResponse{WalletID: string(id), Balance: balance})
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// RULE HANDLERS
// =============================================================================

func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Rules.ListRules(r.Context(), userFrom(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	dtos := make([]RuleDTO, len(rules))
	for i, rule := range rules {
		dtos[i] = toRuleDTO(rule)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveRule creates a rule, or replaces it when the body carries an id.
func (h *Handler) SaveRule(w http.ResponseWriter, r *http.Request) {
	var req RuleDTO
	if !decode(w, r, &req) {
		return
	}
	rule := ledger.MerchantRule{
		ID:                 req.ID,
		UserID:             userFrom(r),
		MerchantName:       strings.TrimSpace(req.MerchantName),
		DefaultCategory:    req.DefaultCategory,
		DefaultSubcategory: req.DefaultSubcategory,
		DefaultWalletID:    ledger.WalletID(req.DefaultWalletID),
		DefaultType:        ledger.TransactionType(req.DefaultType),
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if err := ledger.ValidateRule(rule); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := h.Rules.SaveRule(r.Context(), rule); err != nil {
		writeDomainError(w, r, &ledger.StoreError{Op: "save rule", Err: err})
		return
	}
	writeJSON(w, http.StatusCreated, toRuleDTO(rule))
}

// Suggest returns advisor defaults for ?establishment= and/or ?item=.
func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s, err := h.Advisor.Suggest(r.Context(), userFrom(r), ledger.Draft{
		Establishment: q.Get("establishment"),
		Item:          q.Get("item"),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SuggestionDTO{
		Category:    s.Category,
		Subcategory: s.Subcategory,
		WalletID:    string(s.WalletID),
		Type:        string(s.Type),
		RuleID:      s.RuleID,
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func walletParam(r *http.Request) ledger.WalletID {
	return ledger.WalletID(chi.URLParam(r, "id"))
}

func transactionParam(r *http.Request) ledger.TransactionID {
	return ledger.TransactionID(chi.URLParam(r, "id"))
}

func childParam(r *http.Request) ledger.TransactionID {
	return ledger.TransactionID(chi.URLParam(r, "childId"))
}

// decode reads a JSON body, answering 400 itself on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps ledger and installment errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ledger.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Field: verr.Field, Details: verr.Message})
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, ledger.ErrWalletInUse):
		writeError(w, http.StatusConflict, "Wallet is in use", err)
	case errors.Is(err, installment.ErrAlreadyPaid):
		writeError(w, http.StatusConflict, "Installment already paid", err)
	case ledger.IsRetryable(err):
		writeError(w, http.StatusConflict, "Concurrent modification, retry", err)
	default:
		log := logging.FromContext(r.Context())
		log.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, http.StatusInternalServerError, "Operation failed", err)
	}
}
