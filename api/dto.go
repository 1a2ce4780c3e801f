/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger's domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Wrappers around several DTOs

MONEY:
  Amounts are decimal.Decimal on both sides. They are written as JSON
  strings ("12.50") and accepted as strings or numbers. A missing request
  amount is distinguishable from zero (decimal.NullDecimal).

DATES:
  Requests accept YYYY-MM-DD or RFC3339. Responses use RFC3339 in UTC.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/types.go: Domain types
*/
package api

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/wallet-engine/installment"
	"github.com/warp/wallet-engine/ledger"
)

const dateLayout = "2006-01-02"

// =============================================================================
// WALLETS
// =============================================================================

type WalletDTO struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Balance   decimal.Decimal `json:"balance"`
	Version   int64           `json:"version"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

type CreateWalletRequest struct {
	Name           string          `json:"name"`
	Type           string          `json:"type"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

// UpdateWalletRequest renames a wallet and/or overwrites its balance.
type UpdateWalletRequest struct {
	Name    *string          `json:"name,omitempty"`
	Balance *decimal.Decimal `json:"balance,omitempty"`
}

type DriftDTO struct {
	WalletID string          `json:"wallet_id"`
	Stored   decimal.Decimal `json:"stored"`
	Ledger   decimal.Decimal `json:"ledger"`
	Drift    decimal.Decimal `json:"drift"`
	Drifted  bool            `json:"drifted"`
}

type RecalculateResponse struct {
	WalletID string          `json:"wallet_id"`
	Balance  decimal.Decimal `json:"balance"`
}

type ReportDTO struct {
	WalletsChecked   int             `json:"wallets_checked"`
	WalletsCorrected int             `json:"wallets_corrected"`
	TotalDrift       decimal.Decimal `json:"total_drift"`
	Failed           []string        `json:"failed,omitempty"`
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

type TransactionDTO struct {
	ID            string          `json:"id"`
	WalletID      string          `json:"wallet_id"`
	ToWalletID    string          `json:"to_wallet_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Quantity      int             `json:"quantity"`
	Type          string          `json:"type"`
	Category      string          `json:"category"`
	Subcategory   string          `json:"subcategory,omitempty"`
	Item          string          `json:"item,omitempty"`
	Establishment string          `json:"establishment,omitempty"`
	Date          string          `json:"date"`
	ParentID      string          `json:"parent_id,omitempty"`
	HasChildren   bool            `json:"has_children"`
	ChildrenCount int             `json:"children_count,omitempty"`
	CreatedAt     string          `json:"created_at"`
	UpdatedAt     string          `json:"updated_at"`
}

// TransactionRequest is the body for creating a transaction or a child.
type TransactionRequest struct {
	WalletID      string              `json:"wallet_id"`
	ToWalletID    string              `json:"to_wallet_id,omitempty"`
	Amount        decimal.NullDecimal `json:"amount"`
	Quantity      int                 `json:"quantity,omitempty"`
	Type          string              `json:"type"`
	Category      string              `json:"category"`
	Subcategory   string              `json:"subcategory,omitempty"`
	Item          string              `json:"item,omitempty"`
	Establishment string              `json:"establishment,omitempty"`
	Date          string              `json:"date,omitempty"`
}

// PatchTransactionRequest carries only the fields being changed.
type PatchTransactionRequest struct {
	WalletID      *string          `json:"wallet_id,omitempty"`
	ToWalletID    *string          `json:"to_wallet_id,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Quantity      *int             `json:"quantity,omitempty"`
	Type          *string          `json:"type,omitempty"`
	Category      *string          `json:"category,omitempty"`
	Subcategory   *string          `json:"subcategory,omitempty"`
	Item          *string          `json:"item,omitempty"`
	Establishment *string          `json:"establishment,omitempty"`
	Date          *string          `json:"date,omitempty"`
}

type GroupedRequest struct {
	Parent   TransactionRequest   `json:"parent"`
	Children []TransactionRequest `json:"children"`
}

type GroupedResponse struct {
	Parent   TransactionDTO   `json:"parent"`
	Children []TransactionDTO `json:"children"`
}

type TransactionListResponse struct {
	Transactions []TransactionDTO `json:"transactions"`
	NextCursor   string           `json:"next_cursor,omitempty"`
	HasMore      bool             `json:"has_more"`
}

// =============================================================================
// INSTALLMENTS
// =============================================================================

type PaymentDTO struct {
	Number          int              `json:"number"`
	DueDate         string           `json:"due_date"`
	ScheduledAmount decimal.Decimal  `json:"scheduled_amount"`
	PaidAmount      *decimal.Decimal `json:"paid_amount,omitempty"`
	PaidDate        string           `json:"paid_date,omitempty"`
	Status          string           `json:"status"`
	TransactionID   string           `json:"transaction_id,omitempty"`
}

type PlanDTO struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	Description         string          `json:"description,omitempty"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	TotalInstallments   int             `json:"total_installments"`
	InstallmentAmount   decimal.Decimal `json:"installment_amount"`
	Category            string          `json:"category"`
	Subcategory         string          `json:"subcategory,omitempty"`
	Establishment       string          `json:"establishment,omitempty"`
	StartDate           string          `json:"start_date"`
	SourceWalletID      string          `json:"source_wallet_id"`
	DestinationWalletID string          `json:"destination_wallet_id,omitempty"`
	Active              bool            `json:"active"`
	Payments            []PaymentDTO    `json:"payments"`

	// Derived at request time
	PaidCount      int             `json:"paid_count"`
	RemainingCount int             `json:"remaining_count"`
	OverdueCount   int             `json:"overdue_count"`
	PaidTotal      decimal.Decimal `json:"paid_total"`
	RemainingTotal decimal.Decimal `json:"remaining_total"`
	NextDue        *PaymentDTO     `json:"next_due,omitempty"`
	Completed      bool            `json:"completed"`
}

type CreatePlanRequest struct {
	Name                string              `json:"name"`
	Description         string              `json:"description,omitempty"`
	TotalAmount         decimal.NullDecimal `json:"total_amount"`
	TotalInstallments   int                 `json:"total_installments"`
	Category            string              `json:"category"`
	Subcategory         string              `json:"subcategory,omitempty"`
	Establishment       string              `json:"establishment,omitempty"`
	StartDate           string              `json:"start_date,omitempty"`
	SourceWalletID      string              `json:"source_wallet_id"`
	DestinationWalletID string              `json:"destination_wallet_id,omitempty"`
}

// PayInstallmentRequest pays one installment. With CreateTransaction set,
// an expense for the paid amount is recorded on the plan's source wallet
// and linked to the payment.
type PayInstallmentRequest struct {
	Number            int                 `json:"installment_number"`
	Amount            decimal.NullDecimal `json:"amount"`
	PaidDate          string              `json:"paid_date,omitempty"`
	CreateTransaction bool                `json:"create_transaction"`
}

type PayInstallmentResponse struct {
	Plan        PlanDTO         `json:"plan"`
	Payment     PaymentDTO      `json:"payment"`
	Transaction *TransactionDTO `json:"transaction,omitempty"`
}

type MigrationResponse struct {
	TransactionsMigrated int                   `json:"transactions_migrated"`
	InstallmentsMigrated int                   `json:"installments_migrated"`
	DefaultWalletID      string                `json:"default_wallet_id,omitempty"`
	Recalculated         []RecalculateResponse `json:"recalculated"`
}

// =============================================================================
// RULES AND SUGGESTIONS
// =============================================================================

type RuleDTO struct {
	ID                 string `json:"id"`
	MerchantName       string `json:"merchant_name"`
	DefaultCategory    string `json:"default_category,omitempty"`
	DefaultSubcategory string `json:"default_subcategory,omitempty"`
	DefaultWalletID    string `json:"default_wallet_id,omitempty"`
	DefaultType        string `json:"default_type,omitempty"`
}

type SuggestionDTO struct {
	Category    string `json:"category,omitempty"`
	Subcategory string `json:"subcategory,omitempty"`
	WalletID    string `json:"wallet_id,omitempty"`
	Type        string `json:"type,omitempty"`
	RuleID      string `json:"rule_id,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// parseDate accepts YYYY-MM-DD or RFC3339. Empty input yields the zero time.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, &ledger.ValidationError{Field: "date", Message: "must be YYYY-MM-DD or RFC3339"}
	}
	return t.UTC(), nil
}

func toWalletDTO(w ledger.Wallet) WalletDTO {
	return WalletDTO{
		ID:        string(w.ID),
		Name:      w.Name,
		Type:      string(w.Type),
		Balance:   w.Balance,
		Version:   w.Version,
		CreatedAt: formatTime(w.CreatedAt),
		UpdatedAt: formatTime(w.UpdatedAt),
	}
}

func toTransactionDTO(tx ledger.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:            string(tx.ID),
		WalletID:      string(tx.WalletID),
		ToWalletID:    string(tx.ToWalletID),
		Amount:        tx.Amount,
		Quantity:      tx.Qty(),
		Type:          string(tx.Type),
		Category:      tx.Category,
		Subcategory:   tx.Subcategory,
		Item:          tx.Item,
		Establishment: tx.Establishment,
		Date:          formatTime(tx.Date),
		ParentID:      string(tx.ParentID),
		HasChildren:   tx.HasChildren,
		ChildrenCount: tx.ChildrenCount,
		CreatedAt:     formatTime(tx.CreatedAt),
		UpdatedAt:     formatTime(tx.UpdatedAt),
	}
}

func toTransactionDTOs(txs []ledger.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	return dtos
}

func (r TransactionRequest) toDraft() (ledger.Draft, error) {
	date, err := parseDate(r.Date)
	if err != nil {
		return ledger.Draft{}, err
	}
	return ledger.Draft{
		WalletID:      ledger.WalletID(r.WalletID),
		ToWalletID:    ledger.WalletID(r.ToWalletID),
		Amount:        r.Amount,
		Quantity:      r.Quantity,
		Type:          ledger.TransactionType(r.Type),
		Category:      r.Category,
		Subcategory:   r.Subcategory,
		Item:          r.Item,
		Establishment: r.Establishment,
		Date:          date,
	}, nil
}

func (r PatchTransactionRequest) toPatch() (ledger.Patch, error) {
	p := ledger.Patch{
		Amount:        r.Amount,
		Quantity:      r.Quantity,
		Category:      r.Category,
		Subcategory:   r.Subcategory,
		Item:          r.Item,
		Establishment: r.Establishment,
	}
	if r.WalletID != nil {
		id := ledger.WalletID(*r.WalletID)
		p.WalletID = &id
	}
	if r.ToWalletID != nil {
		id := ledger.WalletID(*r.ToWalletID)
		p.ToWalletID = &id
	}
	if r.Type != nil {
		typ := ledger.TransactionType(*r.Type)
		p.Type = &typ
	}
	if r.Date != nil {
		date, err := parseDate(*r.Date)
		if err != nil {
			return ledger.Patch{}, err
		}
		if date.IsZero() {
			return ledger.Patch{}, &ledger.ValidationError{Field: "date", Message: "cannot be cleared"}
		}
		p.Date = &date
	}
	return p, nil
}

func toPaymentDTO(p installment.Payment, now time.Time) PaymentDTO {
	dto := PaymentDTO{
		Number:          p.Number,
		DueDate:         formatTime(p.DueDate),
		ScheduledAmount: p.ScheduledAmount,
		Status:          string(p.StatusAt(now)),
		TransactionID:   string(p.TransactionID),
	}
	if p.PaidAmount.Valid {
		amount := p.PaidAmount.Decimal
		dto.PaidAmount = &amount
	}
	if p.PaidDate != nil {
		dto.PaidDate = formatTime(*p.PaidDate)
	}
	return dto
}

func toPlanDTO(p installment.Plan, now time.Time) PlanDTO {
	s := p.Summarize(now)
	dto := PlanDTO{
		ID:                  p.ID,
		Name:                p.Name,
		Description:         p.Description,
		TotalAmount:         p.TotalAmount,
		TotalInstallments:   p.TotalInstallments,
		InstallmentAmount:   p.InstallmentAmount,
		Category:            p.Category,
		Subcategory:         p.Subcategory,
		Establishment:       p.Establishment,
		StartDate:           formatTime(p.StartDate),
		SourceWalletID:      string(p.SourceWalletID),
		DestinationWalletID: string(p.DestinationWalletID),
		Active:              p.Active,
		Payments:            make([]PaymentDTO, len(p.Payments)),
		PaidCount:           s.PaidCount,
		RemainingCount:      s.RemainingCount,
		OverdueCount:        s.OverdueCount,
		PaidTotal:           s.PaidTotal,
		RemainingTotal:      s.RemainingTotal,
		Completed:           s.Completed,
	}
	for i, pay := range p.Payments {
		dto.Payments[i] = toPaymentDTO(pay, now)
	}
	if s.NextDue != nil {
		next := toPaymentDTO(*s.NextDue, now)
		dto.NextDue = &next
	}
	return dto
}

func toRuleDTO(r ledger.MerchantRule) RuleDTO {
	return RuleDTO{
		ID:                 r.ID,
		MerchantName:       r.MerchantName,
		DefaultCategory:    r.DefaultCategory,
		DefaultSubcategory: r.DefaultSubcategory,
		DefaultWalletID:    string(r.DefaultWalletID),
		DefaultType:        string(r.DefaultType),
	}
}
