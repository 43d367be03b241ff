package emailjob

import (
	"context"

	"github.com/gatherhq/batch-jobs-service/internal/domain"
	"github.com/gatherhq/batch-jobs-service/internal/ses"
)

// TemplateSource loads templates scoped to their tenant.
type TemplateSource interface {
	// GetTemplate returns ErrTemplateNotFound when the pair does not exist.
	GetTemplate(ctx context.Context, templateID, tenantID int64) (*domain.PromotionEmailTemplate, error)
}

// RecipientSource resolves audiences. Both queries return distinct,
// non-empty addresses.
type RecipientSource interface {
	ListEventAttendeeEmails(ctx context.Context, eventID int64) ([]string, error)
	ListSubscribedMemberEmails(ctx context.Context, tenantID int64) ([]string, error)
}

// SentLogRepository appends send-attempt audit rows.
type SentLogRepository interface {
	InsertSentLogs(ctx context.Context, entries []domain.PromotionEmailSentLog) error
}

// SettingsSource loads the tenant settings consulted for asset prewarming.
type SettingsSource interface {
	GetTenantSettings(ctx context.Context, tenantID int64) (*domain.TenantSettings, error)
}

// AssetPrewarmer readies the tenant footer document ahead of dispatch.
type AssetPrewarmer interface {
	PrewarmFooter(ctx context.Context, tenantID int64, footerURL string, logoURL *string) string
}

// ContentBuilder composes the final subject and HTML body.
type ContentBuilder interface {
	Build(ctx context.Context, tmpl *domain.PromotionEmailTemplate, subjectOverride, bodyOverride *string, tenantID int64) domain.EmailContent
}

// Sender delivers one chunk of messages.
type Sender interface {
	SendBatch(ctx context.Context, messages []ses.EmailMessage) (*ses.BatchSendResult, error)
}

// ChunkGovernor runs a chunk send behind the provider's rate budget and
// circuit breaker.
type ChunkGovernor interface {
	DoN(ctx context.Context, n int, fn func(ctx context.Context) error) error
}
