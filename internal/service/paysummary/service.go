package paysummary

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

const summaryTemplate = `<h2>Manual payment summary</h2>
<p><strong>Period:</strong> {{ period_start | short_date }} &ndash; {{ period_end | short_date }}</p>
<p><strong>Transactions:</strong> {{ transaction_count }}</p>
<p><strong>Total amount:</strong> ${{ total_amount | money }}</p>`

// Params scope one summary run. Without explicit dates the window is the
// previous calendar month.
type Params struct {
	TenantID  int64
	StartDate *time.Time
	EndDate   *time.Time
	SendEmail bool
}

// Service aggregates one tenant's manual payments into an upserted summary
// row and optionally mails the result to the tenant's CONTACT address.
type Service struct {
	repo     Repository
	emails   TenantEmailSource
	renderer Renderer
	sender   Sender
	governor Governor
	sentLog  SentLogRepository

	fromEmail string
	loc       *time.Location
	now       func() time.Time
}

// NewService creates a summary service. A nil loc means server-local time.
func NewService(repo Repository, emails TenantEmailSource, renderer Renderer, sender Sender, governor Governor, sentLog SentLogRepository, fromEmail string, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		repo:      repo,
		emails:    emails,
		renderer:  renderer,
		sender:    sender,
		governor:  governor,
		sentLog:   sentLog,
		fromEmail: fromEmail,
		loc:       loc,
		now:       time.Now,
	}
}

// Run aggregates, upserts, and optionally mails one summary. The upsert is
// keyed by (tenant, window), so reruns replace the row instead of
// duplicating it. Counts reflect the transactions rolled up; a failed
// summary email is logged and audited but does not fail the job.
func (s *Service) Run(ctx context.Context, jobExecutionID int64, p Params) (domain.JobCounts, error) {
	var counts domain.JobCounts

	start, end := s.resolveWindow(p)
	agg, err := s.repo.AggregateManualPayments(ctx, p.TenantID, start, end)
	if err != nil {
		return counts, fmt.Errorf("aggregate manual payments: %w", err)
	}

	summary := &domain.ManualPaymentSummary{
		TenantID:         p.TenantID,
		PeriodStart:      start,
		PeriodEnd:        end,
		TransactionCount: agg.TransactionCount,
		TotalAmount:      agg.TotalAmount,
		GeneratedAt:      s.now(),
		JobExecutionID:   jobExecutionID,
	}
	id, err := s.repo.UpsertSummary(ctx, summary)
	if err != nil {
		return counts, fmt.Errorf("upsert summary: %w", err)
	}
	summary.ID = id

	counts.Processed = agg.TransactionCount
	counts.Success = agg.TransactionCount

	log.Printf("[PaySummary] Tenant %d: %d manual payment(s) totalling %s for %s .. %s (summary %d)",
		p.TenantID, agg.TransactionCount, agg.TotalAmount.StringFixed(2),
		start.Format("2006-01-02"), end.Format("2006-01-02"), id)

	if p.SendEmail {
		s.sendSummaryEmail(ctx, summary)
	}
	return counts, nil
}

// sendSummaryEmail mails the summary to the tenant's CONTACT address. Every
// attempt leaves exactly one sent-log row.
func (s *Service) sendSummaryEmail(ctx context.Context, summary *domain.ManualPaymentSummary) {
	contact, err := s.emails.GetTenantEmail(ctx, summary.TenantID, domain.TenantEmailContact)
	if err != nil {
		log.Printf("[PaySummary] Tenant %d: no CONTACT address, skipping summary email: %v", summary.TenantID, err)
		return
	}

	body, rerr := s.renderer.Render(summaryTemplate, map[string]interface{}{
		"period_start":      summary.PeriodStart,
		"period_end":        summary.PeriodEnd,
		"transaction_count": summary.TransactionCount,
		"total_amount":      summary.TotalAmount.StringFixed(2),
	})
	if rerr != nil {
		log.Printf("[PaySummary] Tenant %d: render fell back to raw template: %v", summary.TenantID, rerr)
	}

	subject := fmt.Sprintf("Manual payment summary %s - %s",
		summary.PeriodStart.Format("Jan 2, 2006"), summary.PeriodEnd.Format("Jan 2, 2006"))
	msg := ses.EmailMessage{
		To:        contact.EmailAddress,
		FromEmail: s.fromEmail,
		Subject:   subject,
		HTMLBody:  emailcontent.WrapHTML(body),
		TenantID:  summary.TenantID,
	}

	err = s.governor.Do(ctx, func(ctx context.Context) error {
		res, sendErr := s.sender.Send(ctx, &msg)
		if sendErr != nil {
			return sendErr
		}
		if !res.Success {
			return fmt.Errorf("provider rejected summary email: %v", res.Error)
		}
		return nil
	})

	entry := domain.PromotionEmailSentLog{
		TenantID:       summary.TenantID,
		RecipientEmail: contact.EmailAddress,
		Subject:        subject,
		SentAt:         s.now(),
		EmailStatus:    domain.EmailSent,
	}
	if err != nil {
		entry.EmailStatus = domain.EmailFailed
		msg := err.Error()
		entry.ErrorMessage = &msg
		log.Printf("[PaySummary] Tenant %d: summary email to %s failed: %v",
			summary.TenantID, logger.RedactEmail(contact.EmailAddress), err)
	}
	if insErr := s.sentLog.InsertSentLogs(ctx, []domain.PromotionEmailSentLog{entry}); insErr != nil {
		log.Printf("[PaySummary] Tenant %d: append sent-log row: %v", summary.TenantID, insErr)
	}
}

// resolveWindow returns the explicit window when given, otherwise the
// previous calendar month in the service location.
func (s *Service) resolveWindow(p Params) (time.Time, time.Time) {
	if p.StartDate != nil && p.EndDate != nil {
		return *p.StartDate, *p.EndDate
	}
	now := s.now().In(s.loc)
	firstOfThisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc)
	if p.StartDate != nil {
		return *p.StartDate, firstOfThisMonth.Add(-time.Nanosecond)
	}
	start := firstOfThisMonth.AddDate(0, -1, 0)
	end := firstOfThisMonth.Add(-time.Nanosecond)
	if p.EndDate != nil {
		end = *p.EndDate
	}
	return start, end
}
