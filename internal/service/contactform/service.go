package contactform

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gatherhq/batch-jobs-service/internal/domain"
	"github.com/gatherhq/batch-jobs-service/internal/pkg/logger"
	"github.com/gatherhq/batch-jobs-service/internal/service/emailcontent"
	"github.com/gatherhq/batch-jobs-service/internal/ses"
)

// relayTemplate is the Liquid body rendered for every relay. The sender's
// address rides in Reply-To, so the tenant can answer directly.
const relayTemplate = `<h2>New contact form message</h2>
<p><strong>From:</strong> {{ sender_name | default: "Anonymous" }} ({{ sender_email }})</p>
<p><strong>Received:</strong> {{ received_at | short_date }}</p>
<hr/>
<p>{{ message }}</p>`

// Service relays one contact-form submission to the tenant's CONTACT
// address and records the attempt in the sent log with a null template id.
type Service struct {
	emails   TenantEmailSource
	renderer Renderer
	sender   Sender
	governor Governor
	sentLog  SentLogRepository

	fromEmail string
	now       func() time.Time
}

// NewService creates a relay service. fromEmail is the verified service
// identity used as the envelope From; the visitor address goes to Reply-To.
func NewService(emails TenantEmailSource, renderer Renderer, sender Sender, governor Governor, sentLog SentLogRepository, fromEmail string) *Service {
	return &Service{
		emails:    emails,
		renderer:  renderer,
		sender:    sender,
		governor:  governor,
		sentLog:   sentLog,
		fromEmail: fromEmail,
		now:       time.Now,
	}
}

// Run relays one submission. A tenant without a CONTACT address fails the
// job; a send failure is absorbed into the counts like any other per-item
// failure.
func (s *Service) Run(ctx context.Context, sub domain.ContactFormSubmission) (domain.JobCounts, error) {
	var counts domain.JobCounts

	contact, err := s.emails.GetTenantEmail(ctx, sub.TenantID, domain.TenantEmailContact)
	if err != nil {
		return counts, fmt.Errorf("tenant %d: %w: %v", sub.TenantID, ErrContactEmailNotConfigured, err)
	}

	body, rerr := s.renderer.Render(relayTemplate, map[string]interface{}{
		"sender_name":  sub.SenderName,
		"sender_email": sub.SenderEmail,
		"message":      sub.Message,
		"received_at":  s.now(),
	})
	if rerr != nil {
		// Rendering is lax; the raw template still carries the message.
		log.Printf("[ContactForm] Tenant %d: render fell back to raw template: %v", sub.TenantID, rerr)
	}

	subject := sub.Subject
	if subject == "" {
		subject = fmt.Sprintf("New contact form message from %s", sub.SenderName)
	}

	msg := ses.EmailMessage{
		To:        contact.EmailAddress,
		FromEmail: s.fromEmail,
		ReplyTo:   sub.SenderEmail,
		Subject:   subject,
		HTMLBody:  emailcontent.WrapHTML(body),
		TenantID:  sub.TenantID,
	}

	counts.Processed = 1
	var result *ses.SendResult
	err = s.governor.Do(ctx, func(ctx context.Context) error {
		res, sendErr := s.sender.Send(ctx, &msg)
		if sendErr != nil {
			return sendErr
		}
		result = res
		if !res.Success {
			return fmt.Errorf("provider rejected relay: %v", res.Error)
		}
		return nil
	})

	entry := domain.PromotionEmailSentLog{
		TenantID:       sub.TenantID,
		RecipientEmail: contact.EmailAddress,
		Subject:        subject,
		SentAt:         s.now(),
		EmailStatus:    domain.EmailFailed,
	}
	if err != nil {
		counts.Failed = 1
		msg := err.Error()
		entry.ErrorMessage = &msg
		log.Printf("[ContactForm] Tenant %d: relay to %s failed: %v",
			sub.TenantID, logger.RedactEmail(contact.EmailAddress), err)
	} else {
		counts.Success = 1
		entry.EmailStatus = domain.EmailSent
		if result != nil {
			entry.SentAt = result.SentAt
		}
	}

	if insErr := s.sentLog.InsertSentLogs(ctx, []domain.PromotionEmailSentLog{entry}); insErr != nil {
		log.Printf("[ContactForm] Tenant %d: append sent-log row: %v", sub.TenantID, insErr)
	}
	return counts, nil
}
