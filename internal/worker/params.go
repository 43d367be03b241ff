package worker

import (
	"errors"
	"fmt"
	"time"

	"github.com/gatherhq/batch-jobs-service/internal/domain"
)

// ErrInvalidParams marks a trigger rejected before any work. Handlers map it
// to HTTP 400.
var ErrInvalidParams = errors.New("invalid job parameters")

// Params is the union of trigger parameters across job types. Each job type
// reads its own subset; validation enforces the required fields per type.
// The struct is stored verbatim on the ledger row as parameters JSON.
type Params struct {
	TenantID *int64 `json:"tenantId,omitempty"`

	// Subscription renewal.
	StripeSubscriptionID string `json:"stripeSubscriptionId,omitempty"`
	MaxSubscriptions     int    `json:"maxSubscriptions,omitempty"`

	// Email batch / test email.
	TemplateID      *int64               `json:"templateId,omitempty"`
	MaxEmails       int                  `json:"maxEmails,omitempty"`
	RecipientEmails []string             `json:"recipientEmails,omitempty"`
	RecipientType   domain.RecipientType `json:"recipientType,omitempty"`
	RecipientEmail  string               `json:"recipientEmail,omitempty"`
	UserID          *int64               `json:"userId,omitempty"`

	// Fees/tax backfill and payment summary windows.
	EventID             *int64     `json:"eventId,omitempty"`
	StartDate           *time.Time `json:"startDate,omitempty"`
	EndDate             *time.Time `json:"endDate,omitempty"`
	ForceUpdate         bool       `json:"forceUpdate,omitempty"`
	UseDefaultDateRange bool       `json:"useDefaultDateRange,omitempty"`

	// Contact form relay.
	SenderName  string `json:"senderName,omitempty"`
	SenderEmail string `json:"senderEmail,omitempty"`
	Subject     string `json:"subject,omitempty"`
	Message     string `json:"message,omitempty"`

	// Payment summary.
	SendEmail bool `json:"sendEmail,omitempty"`

	// Shared knobs.
	BatchSize int `json:"batchSize,omitempty"`

	// Who asked for the run. Not part of the job parameters proper; it is
	// stored on the ledger row's triggered_by column.
	TriggeredBy string `json:"-"`
}

func validate(jobType domain.JobType, p Params) error {
	if !jobType.Valid() {
		return fmt.Errorf("%w: unknown job type %q", ErrInvalidParams, jobType)
	}

	switch jobType {
	case domain.JobEmailBatch:
		if p.TenantID == nil {
			return fmt.Errorf("%w: tenantId is required", ErrInvalidParams)
		}
		if p.TemplateID == nil {
			return fmt.Errorf("%w: templateId is required", ErrInvalidParams)
		}
		if p.RecipientType != "" && !p.RecipientType.Valid() {
			return fmt.Errorf("%w: unknown recipientType %q", ErrInvalidParams, p.RecipientType)
		}
	case domain.JobPromotionTestEmail:
		if p.TenantID == nil {
			return fmt.Errorf("%w: tenantId is required", ErrInvalidParams)
		}
		if p.TemplateID == nil {
			return fmt.Errorf("%w: templateId is required", ErrInvalidParams)
		}
		if p.RecipientEmail == "" {
			return fmt.Errorf("%w: recipientEmail is required", ErrInvalidParams)
		}
	case domain.JobContactFormEmail:
		if p.TenantID == nil {
			return fmt.Errorf("%w: tenantId is required", ErrInvalidParams)
		}
		if p.SenderName == "" {
			return fmt.Errorf("%w: senderName is required", ErrInvalidParams)
		}
		if p.SenderEmail == "" {
			return fmt.Errorf("%w: senderEmail is required", ErrInvalidParams)
		}
		if p.Message == "" {
			return fmt.Errorf("%w: message is required", ErrInvalidParams)
		}
	case domain.JobManualPaymentSummary:
		if p.TenantID == nil {
			return fmt.Errorf("%w: tenantId is required", ErrInvalidParams)
		}
	case domain.JobSubscriptionRenewal, domain.JobFeesTaxBackfill:
		// Scoping is optional; an empty Params runs across all tenants.
	}
	return nil
}

// jobName is the human-readable ledger name per job type.
func jobName(jobType domain.JobType) string {
	switch jobType {
	case domain.JobSubscriptionRenewal:
		return "subscription-renewal-reconciliation"
	case domain.JobEmailBatch:
		return "promotion-email-batch"
	case domain.JobPromotionTestEmail:
		return "promotion-email-test"
	case domain.JobFeesTaxBackfill:
		return "stripe-fees-tax-backfill"
	case domain.JobContactFormEmail:
		return "contact-form-relay"
	case domain.JobManualPaymentSummary:
		return "manual-payment-summary"
	}
	return string(jobType)
}
