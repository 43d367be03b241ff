package domain

import (
	"time"
)

// RecipientType selects how an email job resolves its audience.
type RecipientType string

const (
	RecipientEventAttendees    RecipientType = "EVENT_ATTENDEES"
	RecipientSubscribedMembers RecipientType = "SUBSCRIBED_MEMBERS"
)

// Valid reports whether rt is a known recipient type.
func (rt RecipientType) Valid() bool {
	return rt == RecipientEventAttendees || rt == RecipientSubscribedMembers
}

// EmailStatus is the terminal status of one send attempt.
type EmailStatus string

const (
	EmailSent    EmailStatus = "SENT"
	EmailFailed  EmailStatus = "FAILED"
	EmailBounced EmailStatus = "BOUNCED"
)

// PromotionEmailTemplate is a tenant-authored email template, optionally
// scoped to a single event.
type PromotionEmailTemplate struct {
	ID             int64   `json:"id" db:"id"`
	TenantID       int64   `json:"tenant_id" db:"tenant_id"`
	EventID        *int64  `json:"event_id" db:"event_id"`
	Subject        string  `json:"subject" db:"subject"`
	FromEmail      string  `json:"from_email" db:"from_email"`
	BodyHTML       string  `json:"body_html" db:"body_html"`
	HeaderImageURL *string `json:"header_image_url" db:"header_image_url"`
	FooterHTML     *string `json:"footer_html" db:"footer_html"`
	FooterImageURL *string `json:"footer_image_url" db:"footer_image_url"`
	PromotionCode  *string `json:"promotion_code" db:"promotion_code"`
	DiscountCodeID *int64  `json:"discount_code_id" db:"discount_code_id"`
}

// HasOwnFooter reports whether the template carries footer content of its
// own. The tenant-level footer fallback must not engage when it does.
func (t *PromotionEmailTemplate) HasOwnFooter() bool {
	return (t.FooterHTML != nil && *t.FooterHTML != "") ||
		(t.FooterImageURL != nil && *t.FooterImageURL != "")
}

// PromotionEmailSentLog is the append-only audit row for one send attempt.
// TemplateID stays nullable so template deletion cannot destroy audit history.
type PromotionEmailSentLog struct {
	ID             int64       `json:"id" db:"id"`
	TenantID       int64       `json:"tenant_id" db:"tenant_id"`
	TemplateID     *int64      `json:"template_id" db:"template_id"`
	EventID        *int64      `json:"event_id" db:"event_id"`
	RecipientEmail string      `json:"recipient_email" db:"recipient_email"`
	Subject        string      `json:"subject" db:"subject"`
	SentAt         time.Time   `json:"sent_at" db:"sent_at"`
	IsTestEmail    bool        `json:"is_test_email" db:"is_test_email"`
	EmailStatus    EmailStatus `json:"email_status" db:"email_status"`
	ErrorMessage   *string     `json:"error_message" db:"error_message"`
	SentByID       *int64      `json:"sent_by_id" db:"sent_by_id"`
}

// EmailContent is the composed output of the content builder.
type EmailContent struct {
	Subject  string `json:"subject"`
	BodyHTML string `json:"body_html"`
}

// ContactFormSubmission is the inbound payload relayed to a tenant's
// CONTACT address.
type ContactFormSubmission struct {
	TenantID    int64  `json:"tenant_id"`
	SenderName  string `json:"sender_name"`
	SenderEmail string `json:"sender_email"`
	Subject     string `json:"subject"`
	Message     string `json:"message"`
}
