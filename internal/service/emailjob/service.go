package emailjob

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gatherhq/batch-jobs-service/internal/domain"
	"github.com/gatherhq/batch-jobs-service/internal/ses"
)

// Params scope one batch dispatch.
type Params struct {
	TenantID        int64
	TemplateID      int64
	BatchSize       int
	MaxEmails       int
	RecipientEmails []string
	RecipientType   domain.RecipientType
	SubjectOverride *string
	BodyOverride    *string
	UserID          *int64
}

// TestParams scope a single-recipient test send.
type TestParams struct {
	TenantID       int64
	TemplateID     int64
	RecipientEmail string
	UserID         *int64
}

// Deps collects the dispatcher's collaborators.
type Deps struct {
	Templates  TemplateSource
	Recipients RecipientSource
	SentLog    SentLogRepository
	Settings   SettingsSource
	Assets     AssetPrewarmer
	Content    ContentBuilder
	Sender     Sender
	Governor   ChunkGovernor
}

// Config carries dispatch defaults, normally sourced from config.JobsConfig
// and config.SESConfig.
type Config struct {
	DefaultFromEmail string
	BatchSize        int
	MaxEmails        int
	PrewarmTimeout   time.Duration
}

// Service implements the batch email workflow. Chunks are sent sequentially;
// a governor denial or transport error fails the whole chunk, never the job.
type Service struct {
	templates  TemplateSource
	recipients RecipientSource
	sentLog    SentLogRepository
	settings   SettingsSource
	assets     AssetPrewarmer
	content    ContentBuilder
	sender     Sender
	governor   ChunkGovernor

	defaultFrom    string
	batchSize      int
	maxEmails      int
	prewarmTimeout time.Duration
	now            func() time.Time
}

// NewService creates the dispatcher. Zero config values fall back to chunks
// of 50, a cap of 10000 recipients and a 10s prewarm budget.
func NewService(d Deps, cfg Config) *Service {
	if cfg.BatchSize <= 0 || cfg.BatchSize > ses.MaxBatchSize {
		cfg.BatchSize = ses.MaxBatchSize
	}
	if cfg.MaxEmails <= 0 {
		cfg.MaxEmails = 10000
	}
	if cfg.PrewarmTimeout <= 0 {
		cfg.PrewarmTimeout = 10 * time.Second
	}
	return &Service{
		templates:      d.Templates,
		recipients:     d.Recipients,
		sentLog:        d.SentLog,
		settings:       d.Settings,
		assets:         d.Assets,
		content:        d.Content,
		sender:         d.Sender,
		governor:       d.Governor,
		defaultFrom:    cfg.DefaultFromEmail,
		batchSize:      cfg.BatchSize,
		maxEmails:      cfg.MaxEmails,
		prewarmTimeout: cfg.PrewarmTimeout,
		now:            time.Now,
	}
}

// Run dispatches the template to the resolved audience and returns the
// per-recipient counts. Template load, recipient resolution and cancellation
// fail the job; send failures are absorbed into the counts.
func (s *Service) Run(ctx context.Context, p Params) (domain.JobCounts, error) {
	var counts domain.JobCounts

	tmpl, err := s.templates.GetTemplate(ctx, p.TemplateID, p.TenantID)
	if err != nil {
		return counts, fmt.Errorf("load template %d: %w", p.TemplateID, err)
	}

	s.prewarm(ctx, tmpl, p.TenantID)

	recipients, err := s.resolveRecipients(ctx, tmpl, p)
	if err != nil {
		return counts, err
	}

	max := p.MaxEmails
	if max <= 0 {
		max = s.maxEmails
	}
	if len(recipients) > max {
		log.Printf("[emailjob.Service] Template %d: capping %d recipients to %d", tmpl.ID, len(recipients), max)
		recipients = recipients[:max]
	}
	if len(recipients) == 0 {
		log.Printf("[emailjob.Service] Template %d: no recipients resolved", tmpl.ID)
		return counts, nil
	}

	content := s.content.Build(ctx, tmpl, p.SubjectOverride, p.BodyOverride, p.TenantID)
	from := tmpl.FromEmail
	if from == "" {
		from = s.defaultFrom
	}

	batchSize := p.BatchSize
	if batchSize <= 0 || batchSize > ses.MaxBatchSize {
		batchSize = s.batchSize
	}

	log.Printf("[emailjob.Service] Template %d: dispatching to %d recipient(s) in chunks of %d",
		tmpl.ID, len(recipients), batchSize)

	for start := 0; start < len(recipients); start += batchSize {
		if err := ctx.Err(); err != nil {
			return counts, err
		}
		end := start + batchSize
		if end > len(recipients) {
			end = len(recipients)
		}
		s.dispatchChunk(ctx, tmpl, content, from, recipients[start:end], p.UserID, false, &counts)
	}

	log.Printf("[emailjob.Service] Template %d: %d processed, %d sent, %d failed",
		tmpl.ID, counts.Processed, counts.Success, counts.Failed)
	return counts, nil
}

// RunTest renders the template and sends it to a single address, recording
// the attempt with IsTestEmail set.
func (s *Service) RunTest(ctx context.Context, p TestParams) (domain.JobCounts, error) {
	var counts domain.JobCounts

	tmpl, err := s.templates.GetTemplate(ctx, p.TemplateID, p.TenantID)
	if err != nil {
		return counts, fmt.Errorf("load template %d: %w", p.TemplateID, err)
	}

	s.prewarm(ctx, tmpl, p.TenantID)
	content := s.content.Build(ctx, tmpl, nil, nil, p.TenantID)
	from := tmpl.FromEmail
	if from == "" {
		from = s.defaultFrom
	}

	s.dispatchChunk(ctx, tmpl, content, from, []string{p.RecipientEmail}, p.UserID, true, &counts)
	return counts, nil
}

// resolveRecipients turns the request into a concrete address list. An
// explicit list wins; otherwise the recipient type is honored or inferred
// from whether the template targets an event.
func (s *Service) resolveRecipients(ctx context.Context, tmpl *domain.PromotionEmailTemplate, p Params) ([]string, error) {
	if len(p.RecipientEmails) > 0 {
		return p.RecipientEmails, nil
	}

	rt := p.RecipientType
	if rt == "" {
		if tmpl.EventID != nil {
			rt = domain.RecipientEventAttendees
		} else {
			rt = domain.RecipientSubscribedMembers
		}
	}

	switch rt {
	case domain.RecipientEventAttendees:
		if tmpl.EventID == nil {
			return nil, fmt.Errorf("template %d targets no event, cannot resolve EVENT_ATTENDEES", tmpl.ID)
		}
		emails, err := s.recipients.ListEventAttendeeEmails(ctx, *tmpl.EventID)
		if err != nil {
			return nil, fmt.Errorf("list event attendees: %w", err)
		}
		return emails, nil
	case domain.RecipientSubscribedMembers:
		emails, err := s.recipients.ListSubscribedMemberEmails(ctx, p.TenantID)
		if err != nil {
			return nil, fmt.Errorf("list subscribed members: %w", err)
		}
		return emails, nil
	default:
		return nil, fmt.Errorf("unknown recipient type %q", rt)
	}
}

// prewarm readies the tenant footer document when the template will need it.
// The budget is fixed; on timeout dispatch proceeds and content building
// falls back to an empty footer.
func (s *Service) prewarm(ctx context.Context, tmpl *domain.PromotionEmailTemplate, tenantID int64) {
	if tmpl.HasOwnFooter() {
		return
	}
	settings, err := s.settings.GetTenantSettings(ctx, tenantID)
	if err != nil {
		log.Printf("[emailjob.Service] Tenant %d: settings unavailable, skipping prewarm: %v", tenantID, err)
		return
	}
	if settings == nil || settings.EmailFooterHTMLURL == nil || *settings.EmailFooterHTMLURL == "" {
		return
	}

	warmCtx, cancel := context.WithTimeout(ctx, s.prewarmTimeout)
	defer cancel()
	s.assets.PrewarmFooter(warmCtx, tenantID, *settings.EmailFooterHTMLURL, settings.LogoImageURL)
}

// dispatchChunk sends one chunk and appends exactly one sent-log row per
// recipient.
func (s *Service) dispatchChunk(ctx context.Context, tmpl *domain.PromotionEmailTemplate, content domain.EmailContent, from string, chunk []string, userID *int64, isTest bool, counts *domain.JobCounts) {
	messages := make([]ses.EmailMessage, len(chunk))
	for i, to := range chunk {
		messages[i] = ses.EmailMessage{
			To:         to,
			FromEmail:  from,
			Subject:    content.Subject,
			HTMLBody:   content.BodyHTML,
			TenantID:   tmpl.TenantID,
			TemplateID: &tmpl.ID,
		}
	}

	var batch *ses.BatchSendResult
	err := s.governor.DoN(ctx, len(chunk), func(ctx context.Context) error {
		res, sendErr := s.sender.SendBatch(ctx, messages)
		if sendErr != nil {
			return sendErr
		}
		batch = res
		if res.Rejected == len(messages) {
			return fmt.Errorf("provider rejected all %d sends", len(messages))
		}
		return nil
	})
	if err != nil {
		log.Printf("[emailjob.Service] Template %d: chunk of %d not delivered: %v", tmpl.ID, len(chunk), err)
	}

	sentAt := s.now()
	entries := make([]domain.PromotionEmailSentLog, len(chunk))
	for i, to := range chunk {
		entry := domain.PromotionEmailSentLog{
			TenantID:       tmpl.TenantID,
			TemplateID:     &tmpl.ID,
			EventID:        tmpl.EventID,
			RecipientEmail: to,
			Subject:        content.Subject,
			SentAt:         sentAt,
			IsTestEmail:    isTest,
			EmailStatus:    domain.EmailFailed,
			SentByID:       userID,
		}
		counts.Processed++
		switch {
		case batch != nil && batch.Results[i].Success:
			entry.EmailStatus = domain.EmailSent
			entry.SentAt = batch.Results[i].SentAt
			counts.Success++
		case batch != nil:
			msg := "send rejected"
			if batch.Results[i].Error != nil {
				msg = batch.Results[i].Error.Error()
			}
			entry.ErrorMessage = &msg
			counts.Failed++
		default:
			msg := "chunk not dispatched"
			if err != nil {
				msg = err.Error()
			}
			entry.ErrorMessage = &msg
			counts.Failed++
		}
		entries[i] = entry
	}

	if insErr := s.sentLog.InsertSentLogs(ctx, entries); insErr != nil {
		log.Printf("[emailjob.Service] Template %d: append %d sent-log rows: %v", tmpl.ID, len(entries), insErr)
	}
}
