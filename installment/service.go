package installment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/wallet-engine/ledger"
)

// Store persists plans together with their payments.
type Store interface {
	CreatePlan(ctx context.Context, p Plan) error
	GetPlan(ctx context.Context, userID ledger.UserID, id string) (Plan, error)
	// ListPlans returns the user's plans, newest first.
	ListPlans(ctx context.Context, userID ledger.UserID) ([]Plan, error)
	// UpdatePlan overwrites the plan row and all of its payments.
	UpdatePlan(ctx context.Context, p Plan) error
}

// PayInput identifies the installment being paid.
type PayInput struct {
	PlanID        string
	Number        int
	Amount        decimal.NullDecimal
	PaidDate      time.Time
	TransactionID ledger.TransactionID
}

type Service struct {
	store Store
	log   zerolog.Logger
	Now   func() time.Time
	NewID func() string
}

func NewService(store Store, log zerolog.Logger) *Service {
	return &Service{
		store: store,
		log:   log,
		Now:   func() time.Time { return time.Now().UTC() },
		NewID: uuid.NewString,
	}
}

func (s *Service) Create(ctx context.Context, userID ledger.UserID, in Input) (Plan, error) {
	if userID == "" {
		return Plan{}, &ledger.ValidationError{Field: "user_id", Message: "is required"}
	}
	p, err := NewPlan(s.NewID(), userID, in, s.Now())
	if err != nil {
		return Plan{}, err
	}
	if err := s.store.CreatePlan(ctx, p); err != nil {
		return Plan{}, &ledger.StoreError{Op: "create plan", Err: err}
	}
	s.log.Info().
		Str("user_id", string(userID)).
		Str("plan_id", p.ID).
		Int("installments", p.TotalInstallments).
		Msg("installment plan created")
	return p, nil
}

func (s *Service) Get(ctx context.Context, userID ledger.UserID, id string) (Plan, error) {
	return s.store.GetPlan(ctx, userID, id)
}

func (s *Service) List(ctx context.Context, userID ledger.UserID) ([]Plan, error) {
	return s.store.ListPlans(ctx, userID)
}

// Pay marks one installment as paid. Wallet balances are not touched.
func (s *Service) Pay(ctx context.Context, userID ledger.UserID, in PayInput) (Plan, Payment, error) {
	p, err := s.store.GetPlan(ctx, userID, in.PlanID)
	if err != nil {
		return Plan{}, Payment{}, err
	}
	pay, err := p.Pay(in.Number, in.Amount, in.PaidDate, in.TransactionID, s.Now())
	if err != nil {
		return Plan{}, Payment{}, err
	}
	if err := s.store.UpdatePlan(ctx, p); err != nil {
		return Plan{}, Payment{}, &ledger.StoreError{Op: "update plan", Err: err}
	}
	return p, pay, nil
}

// Payable loads the plan and checks the installment can be paid, without
// writing anything. Handlers call it before creating the linked expense.
func (s *Service) Payable(ctx context.Context, userID ledger.UserID, planID string, number int) (Plan, Payment, error) {
	p, err := s.store.GetPlan(ctx, userID, planID)
	if err != nil {
		return Plan{}, Payment{}, err
	}
	if number < 1 || number > len(p.Payments) {
		return Plan{}, Payment{}, ErrPaymentNotFound
	}
	pay := p.Payments[number-1]
	if pay.Status == StatusPaid {
		return Plan{}, Payment{}, ErrAlreadyPaid
	}
	return p, pay, nil
}
