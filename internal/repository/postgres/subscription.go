package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gatherhq/batch-jobs-service/internal/domain"
	"github.com/gatherhq/batch-jobs-service/internal/service/renewal"
)

// SubscriptionRepo implements renewal.Repository and renewal.AuditRepository
// against PostgreSQL.
type SubscriptionRepo struct{ db *sql.DB }

// NewSubscriptionRepo creates a Postgres-backed subscription repository.
func NewSubscriptionRepo(db *sql.DB) *SubscriptionRepo { return &SubscriptionRepo{db: db} }

// candidatePredicate selects rows due for reconciliation: near the renewal
// horizon, or near the wider extended horizon when the row still carries a
// provider subscription id. Placeholders $1=renewalDays, $2=extendedDays.
const candidatePredicate = `
	status IN ('ACTIVE', 'TRIAL')
	AND cancel_at_period_end = false
	AND (current_period_end <= CURRENT_DATE + $1
	     OR (stripe_subscription_id IS NOT NULL
	         AND current_period_end <= CURRENT_DATE + $2))`

func (r *SubscriptionRepo) ListTenantIDs(ctx context.Context, renewalDays, extendedDays int) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT tenant_id FROM membership_subscriptions
		WHERE`+candidatePredicate+`
		ORDER BY tenant_id
	`, renewalDays, extendedDays)
	if err != nil {
		return nil, fmt.Errorf("list renewal tenants: %w", err)
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

const subscriptionColumns = `
	id, tenant_id, user_profile_id, plan_id, status,
	current_period_start, current_period_end, cancel_at_period_end,
	stripe_subscription_id, last_reconciliation_at,
	COALESCE(reconciliation_status, 'PENDING'), reconciliation_error`

func (r *SubscriptionRepo) ListCandidates(ctx context.Context, tenantID int64, q renewal.CandidateQuery) ([]domain.MembershipSubscription, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT`+subscriptionColumns+`
		FROM membership_subscriptions
		WHERE tenant_id = $3
		  AND id > $4
		  AND`+candidatePredicate+`
		ORDER BY id
		LIMIT $5
	`, q.RenewalDays, q.ExtendedDays, tenantID, q.AfterID, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("list renewal candidates: %w", err)
	}
	defer rows.Close()

	return scanSubscriptions(rows)
}

func (r *SubscriptionRepo) FindByStripeSubscriptionID(ctx context.Context, tenantID int64, stripeSubscriptionID string) ([]domain.MembershipSubscription, error) {
	// No LIMIT: the caller treats more than one row as a data integrity
	// problem and needs to see it.
	rows, err := r.db.QueryContext(ctx, `
		SELECT`+subscriptionColumns+`
		FROM membership_subscriptions
		WHERE tenant_id = $1 AND stripe_subscription_id = $2
		ORDER BY id
	`, tenantID, stripeSubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("find subscription by provider id: %w", err)
	}
	defer rows.Close()

	return scanSubscriptions(rows)
}

func (r *SubscriptionRepo) ApplyRenewal(ctx context.Context, subscriptionID int64, u domain.SubscriptionUpdate) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE membership_subscriptions
		SET status = $2,
		    current_period_start = $3,
		    current_period_end = $4,
		    cancel_at_period_end = $5,
		    last_reconciliation_at = NOW(),
		    reconciliation_status = 'SUCCESS',
		    reconciliation_error = NULL
		WHERE id = $1
	`, subscriptionID, u.Status, u.CurrentPeriodStart, u.CurrentPeriodEnd, u.CancelAtPeriodEnd)
	if err != nil {
		return fmt.Errorf("apply renewal: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return renewal.ErrNotFound
	}
	return nil
}

func (r *SubscriptionRepo) MarkReconciliationFailed(ctx context.Context, subscriptionID int64, message string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE membership_subscriptions
		SET last_reconciliation_at = NOW(),
		    reconciliation_status = 'FAILED',
		    reconciliation_error = $2
		WHERE id = $1
	`, subscriptionID, message)
	if err != nil {
		return fmt.Errorf("mark reconciliation failed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return renewal.ErrNotFound
	}
	return nil
}

func (r *SubscriptionRepo) InsertReconciliationLog(ctx context.Context, e *domain.SubscriptionReconciliationLog) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subscription_reconciliation_logs
			(tenant_id, subscription_id, stripe_subscription_id, previous_status,
			 new_status, previous_period_end, new_period_end, outcome,
			 error_message, job_execution_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
	`, e.TenantID, e.SubscriptionID, e.StripeSubscriptionID, e.PreviousStatus,
		e.NewStatus, e.PreviousPeriodEnd, e.NewPeriodEnd, e.Outcome,
		e.ErrorMessage, e.JobExecutionID)
	if err != nil {
		return fmt.Errorf("insert reconciliation log: %w", err)
	}
	return nil
}

func scanSubscriptions(rows *sql.Rows) ([]domain.MembershipSubscription, error) {
	var out []domain.MembershipSubscription
	for rows.Next() {
		var s domain.MembershipSubscription
		if err := rows.Scan(
			&s.ID, &s.TenantID, &s.UserProfileID, &s.PlanID, &s.Status,
			&s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.CancelAtPeriodEnd,
			&s.StripeSubscriptionID, &s.LastReconciliationAt,
			&s.ReconciliationStatus, &s.ReconciliationError,
		); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
