package feestax

import (
	"context"
	"time"

	"github.com/gatherhq/batch-jobs-service/internal/domain"
)

// CandidateQuery bounds one page of the backfill scan. Candidates are
// COMPLETED rows with a payment intent id, purchased inside the window,
// whose fee column is still null or zero unless ForceUpdate is set.
type CandidateQuery struct {
	EventID     *int64
	Start       time.Time
	End         time.Time
	ForceUpdate bool
	AfterID     int64
	Limit       int
}

// Repository loads and mutates event ticket transaction rows.
type Repository interface {
	// ListTenantIDs returns the distinct tenants that have at least one
	// COMPLETED provider-paid row inside the window, filled or not.
	ListTenantIDs(ctx context.Context, q CandidateQuery) ([]int64, error)

	// CountFilled returns how many in-window rows of the tenant already
	// carry a fee. Non-forced runs report them as skipped without paging
	// them through the provider.
	CountFilled(ctx context.Context, tenantID int64, q CandidateQuery) (int, error)

	// ListCandidates returns one page of the tenant's candidates ordered
	// by id, starting after q.AfterID.
	ListCandidates(ctx context.Context, tenantID int64, q CandidateQuery) ([]domain.EventTicketTransaction, error)

	// GetByID reloads one row. The backfill re-reads every row just before
	// writing so a concurrent update is never clobbered with stale values.
	GetByID(ctx context.Context, id int64) (*domain.EventTicketTransaction, error)

	// ApplyFeeTax writes the fee, tax, and net payout columns for one row.
	ApplyFeeTax(ctx context.Context, transactionID int64, update domain.FeeTaxUpdate) error
}

// SecretSource yields the per-tenant Stripe secret key. The cache is
// cleared at the start of every run so a rotated key is never served stale.
type SecretSource interface {
	GetStripeSecret(ctx context.Context, tenantID int64) (string, error)
	ClearCache()
}
