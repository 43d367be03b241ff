package contactform

import (
	"context"

	"github.com/gatherhq/batch-jobs-service/internal/domain"
	"github.com/gatherhq/batch-jobs-service/internal/ses"
)

// TenantEmailSource resolves a tenant's typed email addresses.
type TenantEmailSource interface {
	// GetTenantEmail returns the address of the given type, or
	// domain-not-found when the tenant has none.
	GetTenantEmail(ctx context.Context, tenantID int64, emailType domain.TenantEmailType) (*domain.TenantEmail, error)
}

// Renderer renders the relay body template.
type Renderer interface {
	Render(templateStr string, bindings map[string]interface{}) (string, error)
}

// Sender delivers the relay email.
type Sender interface {
	Send(ctx context.Context, msg *ses.EmailMessage) (*ses.SendResult, error)
}

// Governor runs the send behind the provider's rate budget and breaker.
type Governor interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// SentLogRepository appends the audit row for the relay attempt.
type SentLogRepository interface {
	InsertSentLogs(ctx context.Context, entries []domain.PromotionEmailSentLog) error
}
