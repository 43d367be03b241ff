package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gatherhq/batch-jobs-service/internal/domain"
	"github.com/gatherhq/batch-jobs-service/internal/service/feestax"
	"github.com/gatherhq/batch-jobs-service/internal/service/paysummary"
)

// TransactionRepo implements feestax.Repository and paysummary.Repository
// against PostgreSQL.
type TransactionRepo struct{ db *sql.DB }

// NewTransactionRepo creates a Postgres-backed transaction repository.
func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{db: db} }

// providerPaidPredicate matches rows the backfill can ever touch: settled
// through the provider inside the window. Placeholders $1=start, $2=end.
const providerPaidPredicate = `
	status = 'COMPLETED'
	AND stripe_payment_intent_id IS NOT NULL
	AND purchase_date >= $1 AND purchase_date <= $2`

func (r *TransactionRepo) ListTenantIDs(ctx context.Context, q feestax.CandidateQuery) ([]int64, error) {
	// Filled rows are kept in scope here so the per-tenant pass can report
	// them as skipped instead of silently ignoring the tenant.
	query := `
		SELECT DISTINCT tenant_id FROM event_ticket_transactions
		WHERE` + providerPaidPredicate
	args := []interface{}{q.Start, q.End}
	if q.EventID != nil {
		args = append(args, *q.EventID)
		query += fmt.Sprintf(" AND event_id = $%d", len(args))
	}
	query += " ORDER BY tenant_id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list backfill tenants: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tenant id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *TransactionRepo) CountFilled(ctx context.Context, tenantID int64, q feestax.CandidateQuery) (int, error) {
	query := `
		SELECT COUNT(*) FROM event_ticket_transactions
		WHERE` + providerPaidPredicate + `
		  AND tenant_id = $3
		  AND stripe_fee_amount IS NOT NULL AND stripe_fee_amount <> 0`
	args := []interface{}{q.Start, q.End, tenantID}
	if q.EventID != nil {
		args = append(args, *q.EventID)
		query += fmt.Sprintf(" AND event_id = $%d", len(args))
	}

	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count filled transactions: %w", err)
	}
	return n, nil
}

const transactionColumns = `
	id, tenant_id, event_id, status, purchase_date,
	stripe_payment_intent_id, stripe_checkout_session_id,
	final_amount, stripe_fee_amount, stripe_amount_tax, net_payout_amount`

func (r *TransactionRepo) ListCandidates(ctx context.Context, tenantID int64, q feestax.CandidateQuery) ([]domain.EventTicketTransaction, error) {
	query := `
		SELECT` + transactionColumns + `
		FROM event_ticket_transactions
		WHERE` + providerPaidPredicate + `
		  AND tenant_id = $3
		  AND id > $4`
	args := []interface{}{q.Start, q.End, tenantID, q.AfterID}
	if q.EventID != nil {
		args = append(args, *q.EventID)
		query += fmt.Sprintf(" AND event_id = $%d", len(args))
	}
	if !q.ForceUpdate {
		query += " AND (stripe_fee_amount IS NULL OR stripe_fee_amount = 0)"
	}
	args = append(args, q.Limit)
	query += fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list backfill candidates: %w", err)
	}
	defer rows.Close()

	var out []domain.EventTicketTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *TransactionRepo) GetByID(ctx context.Context, id int64) (*domain.EventTicketTransaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT`+transactionColumns+`
		FROM event_ticket_transactions
		WHERE id = $1
	`, id)
	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transaction %d not found", id)
	}
	return t, err
}

func (r *TransactionRepo) ApplyFeeTax(ctx context.Context, transactionID int64, u domain.FeeTaxUpdate) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE event_ticket_transactions
		SET stripe_fee_amount = $2,
		    stripe_amount_tax = $3,
		    net_payout_amount = $4
		WHERE id = $1
	`, transactionID, u.StripeFeeAmount, toNullDecimal(u.StripeAmountTax), u.NetPayoutAmount)
	if err != nil {
		return fmt.Errorf("apply fee tax: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("apply fee tax: transaction %d not found", transactionID)
	}
	return nil
}

func (r *TransactionRepo) AggregateManualPayments(ctx context.Context, tenantID int64, start, end time.Time) (paysummary.ManualPaymentAggregate, error) {
	var agg paysummary.ManualPaymentAggregate
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(final_amount), 0)
		FROM event_ticket_transactions
		WHERE tenant_id = $1
		  AND status = 'COMPLETED'
		  AND stripe_payment_intent_id IS NULL
		  AND purchase_date >= $2 AND purchase_date <= $3
	`, tenantID, start, end).Scan(&agg.TransactionCount, &agg.TotalAmount)
	if err != nil {
		return paysummary.ManualPaymentAggregate{}, fmt.Errorf("aggregate manual payments: %w", err)
	}
	return agg, nil
}

func (r *TransactionRepo) UpsertSummary(ctx context.Context, s *domain.ManualPaymentSummary) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO manual_payment_summaries
			(tenant_id, period_start, period_end, transaction_count,
			 total_amount, generated_at, job_execution_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, period_start, period_end) DO UPDATE
		SET transaction_count = EXCLUDED.transaction_count,
		    total_amount = EXCLUDED.total_amount,
		    generated_at = EXCLUDED.generated_at,
		    job_execution_id = EXCLUDED.job_execution_id
		RETURNING id
	`, s.TenantID, s.PeriodStart, s.PeriodEnd, s.TransactionCount,
		s.TotalAmount, s.GeneratedAt, s.JobExecutionID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert manual payment summary: %w", err)
	}
	return id, nil
}

func scanTransaction(row rowScanner) (*domain.EventTicketTransaction, error) {
	var t domain.EventTicketTransaction
	var fee, tax, net decimal.NullDecimal
	if err := row.Scan(
		&t.ID, &t.TenantID, &t.EventID, &t.Status, &t.PurchaseDate,
		&t.StripePaymentIntentID, &t.StripeCheckoutSessionID,
		&t.FinalAmount, &fee, &tax, &net,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	t.StripeFeeAmount = fromNullDecimal(fee)
	t.StripeAmountTax = fromNullDecimal(tax)
	t.NetPayoutAmount = fromNullDecimal(net)
	return &t, nil
}

func fromNullDecimal(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func toNullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
