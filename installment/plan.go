/*
Package installment tracks purchases paid over a fixed number of monthly
payments.

PURPOSE:
  A plan splits TotalAmount into TotalInstallments payments and records which
  ones are paid. Paying an installment is a state transition on the plan only;
  it never touches wallet balances. Callers that want the payment reflected in
  a wallet create an expense through ledger.TransactionService and link its ID.

STATE MACHINE (per payment):
  pending --(due date passes)--> overdue     derived at read time, never stored
  pending | overdue --Pay--> paid            terminal; paying again fails

AMOUNTS:
  InstallmentAmount = round(total / n, 2). The last payment absorbs the
  rounding remainder so the schedule always sums to TotalAmount exactly.

SEE ALSO:
  - service.go: Create / Get / List / Pay against a Store
  - ledger/migrate.go: Reassigns plans whose wallet disappeared
*/
package installment

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/wallet-engine/ledger"
)

var (
	ErrPlanNotFound    = fmt.Errorf("installment plan %w", ledger.ErrNotFound)
	ErrPaymentNotFound = fmt.Errorf("installment payment %w", ledger.ErrNotFound)
	ErrAlreadyPaid     = errors.New("installment already paid")
)

// MaxInstallments bounds the schedule length.
const MaxInstallments = 360

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusOverdue Status = "overdue"
)

// Payment is one scheduled installment.
type Payment struct {
	Number          int
	DueDate         time.Time
	ScheduledAmount decimal.Decimal
	PaidAmount      decimal.NullDecimal
	PaidDate        *time.Time
	Status          Status
	TransactionID   ledger.TransactionID
}

// StatusAt returns the payment status as seen at now. A stored pending
// payment whose due day is before now's day reads as overdue.
func (p Payment) StatusAt(now time.Time) Status {
	if p.Status == StatusPaid {
		return StatusPaid
	}
	if day(p.DueDate).Before(day(now)) {
		return StatusOverdue
	}
	return StatusPending
}

// Plan is an installment purchase and its payment schedule.
type Plan struct {
	ID                  string
	UserID              ledger.UserID
	Name                string
	Description         string
	TotalAmount         decimal.Decimal
	TotalInstallments   int
	InstallmentAmount   decimal.Decimal
	Category            string
	Subcategory         string
	Establishment       string
	StartDate           time.Time
	SourceWalletID      ledger.WalletID
	DestinationWalletID ledger.WalletID
	Active              bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
	Payments            []Payment
}

// Input is the caller data for a new plan.
type Input struct {
	Name                string
	Description         string
	TotalAmount         decimal.NullDecimal
	TotalInstallments   int
	Category            string
	Subcategory         string
	Establishment       string
	StartDate           time.Time
	SourceWalletID      ledger.WalletID
	DestinationWalletID ledger.WalletID
}

func (in Input) validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return &ledger.ValidationError{Field: "name", Message: "is required"}
	case !in.TotalAmount.Valid:
		return &ledger.ValidationError{Field: "total_amount", Message: "is required"}
	case !in.TotalAmount.Decimal.IsPositive():
		return &ledger.ValidationError{Field: "total_amount", Message: "must be positive"}
	case in.TotalInstallments < 1 || in.TotalInstallments > MaxInstallments:
		return &ledger.ValidationError{Field: "total_installments", Message: fmt.Sprintf("must be between 1 and %d", MaxInstallments)}
	case in.SourceWalletID == "":
		return &ledger.ValidationError{Field: "source_wallet_id", Message: "is required"}
	case strings.TrimSpace(in.Category) == "":
		return &ledger.ValidationError{Field: "category", Message: "is required"}
	}
	return nil
}

// NewPlan validates the input and builds the full payment schedule.
func NewPlan(id string, userID ledger.UserID, in Input, now time.Time) (Plan, error) {
	if err := in.validate(); err != nil {
		return Plan{}, err
	}
	start := in.StartDate
	if start.IsZero() {
		start = now
	}

	n := in.TotalInstallments
	total := in.TotalAmount.Decimal
	each := total.DivRound(decimal.NewFromInt(int64(n)), 2)

	payments := make([]Payment, n)
	scheduled := decimal.Zero
	for i := range payments {
		amount := each
		if i == n-1 {
			amount = total.Sub(scheduled)
		}
		scheduled = scheduled.Add(amount)
		payments[i] = Payment{
			Number:          i + 1,
			DueDate:         addMonths(start, i),
			ScheduledAmount: amount,
			Status:          StatusPending,
		}
	}

	return Plan{
		ID:                  id,
		UserID:              userID,
		Name:                strings.TrimSpace(in.Name),
		Description:         in.Description,
		TotalAmount:         total,
		TotalInstallments:   n,
		InstallmentAmount:   each,
		Category:            in.Category,
		Subcategory:         in.Subcategory,
		Establishment:       in.Establishment,
		StartDate:           start,
		SourceWalletID:      in.SourceWalletID,
		DestinationWalletID: in.DestinationWalletID,
		Active:              true,
		CreatedAt:           now,
		UpdatedAt:           now,
		Payments:            payments,
	}, nil
}

// Pay marks installment number as paid. A missing amount means the
// scheduled amount; a zero paidDate means now. The plan deactivates once
// every payment is paid.
func (p *Plan) Pay(number int, amount decimal.NullDecimal, paidDate time.Time, txID ledger.TransactionID, now time.Time) (Payment, error) {
	if number < 1 || number > len(p.Payments) {
		return Payment{}, ErrPaymentNotFound
	}
	pay := &p.Payments[number-1]
	if pay.Status == StatusPaid {
		return Payment{}, fmt.Errorf("installment %d: %w", number, ErrAlreadyPaid)
	}
	if amount.Valid && amount.Decimal.IsNegative() {
		return Payment{}, &ledger.ValidationError{Field: "paid_amount", Message: "must not be negative"}
	}
	if !amount.Valid {
		amount = decimal.NullDecimal{Decimal: pay.ScheduledAmount, Valid: true}
	}
	if paidDate.IsZero() {
		paidDate = now
	}

	pay.Status = StatusPaid
	pay.PaidAmount = amount
	pay.PaidDate = &paidDate
	pay.TransactionID = txID

	p.UpdatedAt = now
	if p.PaidCount() == len(p.Payments) {
		p.Active = false
	}
	return *pay, nil
}

func (p Plan) PaidCount() int {
	n := 0
	for _, pay := range p.Payments {
		if pay.Status == StatusPaid {
			n++
		}
	}
	return n
}

// Summary is the derived view of a plan at a point in time.
type Summary struct {
	PaidCount      int
	RemainingCount int
	OverdueCount   int
	PaidTotal      decimal.Decimal
	RemainingTotal decimal.Decimal
	NextDue        *Payment
	Completed      bool
}

// Summarize computes the derived fields of the plan as seen at now.
func (p Plan) Summarize(now time.Time) Summary {
	s := Summary{PaidTotal: decimal.Zero, RemainingTotal: decimal.Zero}
	for _, pay := range p.Payments {
		switch pay.StatusAt(now) {
		case StatusPaid:
			s.PaidCount++
			s.PaidTotal = s.PaidTotal.Add(pay.PaidAmount.Decimal)
			continue
		case StatusOverdue:
			s.OverdueCount++
		}
		s.RemainingCount++
		s.RemainingTotal = s.RemainingTotal.Add(pay.ScheduledAmount)
		if s.NextDue == nil {
			next := pay
			next.Status = pay.StatusAt(now)
			s.NextDue = &next
		}
	}
	s.Completed = s.RemainingCount == 0
	return s
}

// addMonths moves t forward by n calendar months, clamping to the last day
// of the target month (Jan 31 + 1 month = Feb 28/29).
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
