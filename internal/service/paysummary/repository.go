package paysummary

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gatherhq/batch-jobs-service/internal/domain"
	"github.com/gatherhq/batch-jobs-service/internal/ses"
)

// ManualPaymentAggregate is the rollup of one tenant's manual payments
// inside a window.
type ManualPaymentAggregate struct {
	TransactionCount int
	TotalAmount      decimal.Decimal
}

// Repository aggregates manual payments and persists summary rows.
type Repository interface {
	// AggregateManualPayments rolls up COMPLETED rows without a payment
	// intent id purchased inside [start, end].
	AggregateManualPayments(ctx context.Context, tenantID int64, start, end time.Time) (ManualPaymentAggregate, error)

	// UpsertSummary writes the summary row, replacing any previous row for
	// the same (tenant, period) pair, and returns its id.
	UpsertSummary(ctx context.Context, summary *domain.ManualPaymentSummary) (int64, error)
}

// TenantEmailSource resolves the CONTACT address for the optional summary
// email.
type TenantEmailSource interface {
	GetTenantEmail(ctx context.Context, tenantID int64, emailType domain.TenantEmailType) (*domain.TenantEmail, error)
}

// Renderer renders the summary email body.
type Renderer interface {
	Render(templateStr string, bindings map[string]interface{}) (string, error)
}

// Sender delivers the summary email.
type Sender interface {
	Send(ctx context.Context, msg *ses.EmailMessage) (*ses.SendResult, error)
}

// Governor runs the send behind the provider's rate budget and breaker.
type Governor interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// SentLogRepository appends the audit row for the summary email.
type SentLogRepository interface {
	InsertSentLogs(ctx context.Context, entries []domain.PromotionEmailSentLog) error
}
