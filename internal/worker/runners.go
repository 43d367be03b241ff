package worker

import (
	"context"

	"github.com/gatherhq/batch-jobs-service/internal/domain"
	"github.com/gatherhq/batch-jobs-service/internal/service/emailjob"
	"github.com/gatherhq/batch-jobs-service/internal/service/feestax"
	"github.com/gatherhq/batch-jobs-service/internal/service/ledger"
	"github.com/gatherhq/batch-jobs-service/internal/service/paysummary"
	"github.com/gatherhq/batch-jobs-service/internal/service/renewal"
)

// Ledger records job lifecycles. Implemented by ledger.Service.
type Ledger interface {
	Create(ctx context.Context, p ledger.CreateParams) (*domain.JobExecution, error)
	Complete(ctx context.Context, id int64, status domain.JobStatus, counts domain.JobCounts, errorMessage *string) error
}

// RenewalRunner reconciles subscription renewals against Stripe.
type RenewalRunner interface {
	Run(ctx context.Context, jobExecutionID int64, p renewal.Params) (domain.JobCounts, error)
}

// EmailRunner dispatches promotion email batches and single test sends.
type EmailRunner interface {
	Run(ctx context.Context, p emailjob.Params) (domain.JobCounts, error)
	RunTest(ctx context.Context, p emailjob.TestParams) (domain.JobCounts, error)
}

// FeesTaxRunner backfills Stripe fee, tax, and net payout columns.
type FeesTaxRunner interface {
	Run(ctx context.Context, p feestax.Params) (feestax.RunSummary, error)
}

// ContactFormRunner relays a contact form submission to the tenant.
type ContactFormRunner interface {
	Run(ctx context.Context, sub domain.ContactFormSubmission) (domain.JobCounts, error)
}

// PaySummaryRunner rolls up manual payments into a summary row.
type PaySummaryRunner interface {
	Run(ctx context.Context, jobExecutionID int64, p paysummary.Params) (domain.JobCounts, error)
}
