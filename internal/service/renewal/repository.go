package renewal

import (
	"context"

	"github.com/gatherhq/batch-jobs-service/internal/domain"
)

// CandidateQuery bounds one page of the candidate scan. Candidates are rows
// with status IN (ACTIVE, TRIAL), cancel_at_period_end = false and a period
// end within RenewalDays of today; rows that still carry a provider
// subscription id are included up to the wider ExtendedDays horizon.
type CandidateQuery struct {
	RenewalDays  int
	ExtendedDays int
	AfterID      int64
	Limit        int
}

// Repository loads and mutates membership subscription rows.
type Repository interface {
	// ListTenantIDs returns the distinct tenants that currently have at
	// least one reconciliation candidate.
	ListTenantIDs(ctx context.Context, renewalDays, extendedDays int) ([]int64, error)

	// ListCandidates returns one page of the tenant's candidates ordered by
	// id, starting after q.AfterID.
	ListCandidates(ctx context.Context, tenantID int64, q CandidateQuery) ([]domain.MembershipSubscription, error)

	// FindByStripeSubscriptionID returns every row of the tenant carrying
	// the given provider subscription id. More than one row is a data
	// integrity problem the caller must handle.
	FindByStripeSubscriptionID(ctx context.Context, tenantID int64, stripeSubscriptionID string) ([]domain.MembershipSubscription, error)

	// ApplyRenewal writes the provider's canonical values to the row and
	// stamps last_reconciliation_at = now, reconciliation_status = SUCCESS.
	ApplyRenewal(ctx context.Context, subscriptionID int64, update domain.SubscriptionUpdate) error

	// MarkReconciliationFailed stamps the row FAILED with the given message.
	MarkReconciliationFailed(ctx context.Context, subscriptionID int64, message string) error
}

// AuditRepository appends the per-attempt reconciliation log rows.
type AuditRepository interface {
	InsertReconciliationLog(ctx context.Context, entry *domain.SubscriptionReconciliationLog) error
}

// SecretSource yields the per-tenant Stripe secret key.
type SecretSource interface {
	GetStripeSecret(ctx context.Context, tenantID int64) (string, error)
}
