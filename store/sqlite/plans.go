package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/wallet-engine/installment"
	"github.com/warp/wallet-engine/ledger"
)

// =============================================================================
// INSTALLMENT STORE
// =============================================================================

const planColumns = `id, user_id, name, description, total_amount, total_installments,
	installment_amount, category, subcategory, establishment, start_date,
	source_wallet_id, destination_wallet_id, active, created_at, updated_at`

func (r queries) CreatePlan(ctx context.Context, p installment.Plan) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO installment_plans (`+planColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Name, p.Description, p.TotalAmount.String(), p.TotalInstallments,
		p.InstallmentAmount.String(), p.Category, p.Subcategory, p.Establishment, formatTime(p.StartDate),
		p.SourceWalletID, p.DestinationWalletID, boolToInt(p.Active),
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("installment plan %s already exists", p.ID)
		}
		return fmt.Errorf("failed to create plan: %w", err)
	}
	return r.insertPayments(ctx, p)
}

func (r queries) UpdatePlan(ctx context.Context, p installment.Plan) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE installment_plans SET
			name = ?, description = ?, category = ?, subcategory = ?, establishment = ?,
			source_wallet_id = ?, destination_wallet_id = ?, active = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		p.Name, p.Description, p.Category, p.Subcategory, p.Establishment,
		p.SourceWalletID, p.DestinationWalletID, boolToInt(p.Active), formatTime(p.UpdatedAt),
		p.ID, p.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	if err := expectOne(res, installment.ErrPlanNotFound); err != nil {
		return err
	}
	if _, err := r.q.ExecContext(ctx, `DELETE FROM installment_payments WHERE plan_id = ?`, p.ID); err != nil {
		return fmt.Errorf("failed to replace payments: %w", err)
	}
	return r.insertPayments(ctx, p)
}

func (r queries) insertPayments(ctx context.Context, p installment.Plan) error {
	for _, pay := range p.Payments {
		var paidAmount, paidDate sql.NullString
		if pay.PaidAmount.Valid {
			paidAmount = nullString(pay.PaidAmount.Decimal.String())
		}
		if pay.PaidDate != nil {
			paidDate = nullString(formatTime(*pay.PaidDate))
		}
		_, err := r.q.ExecContext(ctx, `
			INSERT INTO installment_payments
			(plan_id, number, due_date, scheduled_amount, paid_amount, paid_date, status, transaction_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, pay.Number, formatTime(pay.DueDate), pay.ScheduledAmount.String(),
			paidAmount, paidDate, pay.Status, pay.TransactionID,
		)
		if err != nil {
			return fmt.Errorf("failed to insert payment %d: %w", pay.Number, err)
		}
	}
	return nil
}

func (r queries) GetPlan(ctx context.Context, userID ledger.UserID, id string) (installment.Plan, error) {
	plans, err := r.queryPlans(ctx, `SELECT `+planColumns+` FROM installment_plans WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return installment.Plan{}, err
	}
	if len(plans) == 0 {
		return installment.Plan{}, installment.ErrPlanNotFound
	}
	return plans[0], nil
}

func (r queries) ListPlans(ctx context.Context, userID ledger.UserID) ([]installment.Plan, error) {
	return r.queryPlans(ctx, `
		SELECT `+planColumns+` FROM installment_plans
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC`, userID)
}

// queryPlans loads plan headers, then their payments. Rows are fully read
// before the payment queries run because the store uses a single connection.
func (r queries) queryPlans(ctx context.Context, query string, args ...any) ([]installment.Plan, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}

	var plans []installment.Plan
	for rows.Next() {
		var (
			p                    installment.Plan
			total, each, start   string
			active               int
			createdAt, updatedAt string
		)
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.Name, &p.Description, &total, &p.TotalInstallments,
			&each, &p.Category, &p.Subcategory, &p.Establishment, &start,
			&p.SourceWalletID, &p.DestinationWalletID, &active, &createdAt, &updatedAt,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		var dec decoder
		p.TotalAmount = dec.decimal("total_amount", total)
		p.InstallmentAmount = dec.decimal("installment_amount", each)
		p.StartDate = dec.time("start_date", start)
		p.Active = active != 0
		p.CreatedAt = dec.time("created_at", createdAt)
		p.UpdatedAt = dec.time("updated_at", updatedAt)
		if dec.err != nil {
			rows.Close()
			return nil, fmt.Errorf("plan %s: %w", p.ID, dec.err)
		}
		plans = append(plans, p)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	for i := range plans {
		payments, err := r.queryPayments(ctx, plans[i].ID)
		if err != nil {
			return nil, err
		}
		plans[i].Payments = payments
	}
	return plans, nil
}

func (r queries) queryPayments(ctx context.Context, planID string) ([]installment.Payment, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT number, due_date, scheduled_amount, paid_amount, paid_date, status, transaction_id
		FROM installment_payments WHERE plan_id = ?
		ORDER BY number ASC`, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []installment.Payment
	for rows.Next() {
		var (
			pay                  installment.Payment
			due, scheduled       string
			paidAmount, paidDate sql.NullString
		)
		if err := rows.Scan(&pay.Number, &due, &scheduled, &paidAmount, &paidDate, &pay.Status, &pay.TransactionID); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		var dec decoder
		pay.DueDate = dec.time("due_date", due)
		pay.ScheduledAmount = dec.decimal("scheduled_amount", scheduled)
		if paidAmount.Valid {
			pay.PaidAmount = decimal.NullDecimal{Decimal: dec.decimal("paid_amount", paidAmount.String), Valid: true}
		}
		if paidDate.Valid {
			t := dec.time("paid_date", paidDate.String)
			pay.PaidDate = &t
		}
		if dec.err != nil {
			return nil, fmt.Errorf("plan %s payment %d: %w", planID, pay.Number, dec.err)
		}
		payments = append(payments, pay)
	}
	return payments, rows.Err()
}

// =============================================================================
// WALLET REFERENCES (orphan migration)
// =============================================================================

func (r queries) ListWalletRefs(ctx context.Context, userID ledger.UserID) ([]ledger.WalletRef, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, source_wallet_id, destination_wallet_id
		FROM installment_plans WHERE user_id = ?
		ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query wallet references: %w", err)
	}
	defer rows.Close()

	var refs []ledger.WalletRef
	for rows.Next() {
		var ref ledger.WalletRef
		if err := rows.Scan(&ref.ID, &ref.SourceWalletID, &ref.DestinationWalletID); err != nil {
			return nil, fmt.Errorf("failed to scan wallet reference: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (r queries) ReassignWalletRef(ctx context.Context, userID ledger.UserID, ref ledger.WalletRef) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE installment_plans SET source_wallet_id = ?, destination_wallet_id = ?
		WHERE id = ? AND user_id = ?`,
		ref.SourceWalletID, ref.DestinationWalletID, ref.ID, userID)
	if err != nil {
		return fmt.Errorf("failed to reassign wallet reference: %w", err)
	}
	return expectOne(res, installment.ErrPlanNotFound)
}

// =============================================================================
// MERCHANT RULES
// =============================================================================

func (r queries) SaveRule(ctx context.Context, rule ledger.MerchantRule) error {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO merchant_rules
		(id, user_id, merchant_name, default_category, default_subcategory, default_wallet_id, default_type)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			merchant_name = excluded.merchant_name,
			default_category = excluded.default_category,
			default_subcategory = excluded.default_subcategory,
			default_wallet_id = excluded.default_wallet_id,
			default_type = excluded.default_type
		WHERE merchant_rules.user_id = excluded.user_id`,
		rule.ID, rule.UserID, rule.MerchantName, rule.DefaultCategory,
		rule.DefaultSubcategory, rule.DefaultWalletID, rule.DefaultType,
	)
	if err != nil {
		return fmt.Errorf("failed to save rule: %w", err)
	}
	return expectOne(res, ledger.ErrRuleNotFound)
}

func (r queries) ListRules(ctx context.Context, userID ledger.UserID) ([]ledger.MerchantRule, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, user_id, merchant_name, default_category, default_subcategory, default_wallet_id, default_type
		FROM merchant_rules WHERE user_id = ?
		ORDER BY merchant_name ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []ledger.MerchantRule
	for rows.Next() {
		var rule ledger.MerchantRule
		if err := rows.Scan(&rule.ID, &rule.UserID, &rule.MerchantName, &rule.DefaultCategory,
			&rule.DefaultSubcategory, &rule.DefaultWalletID, &rule.DefaultType); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}
