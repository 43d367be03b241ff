package emailjob

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherhq/batch-jobs-service/internal/domain"
	"github.com/gatherhq/batch-jobs-service/internal/service/ratelimit"
	"github.com/gatherhq/batch-jobs-service/internal/ses"
)

type stubTemplates struct {
	tmpl *domain.PromotionEmailTemplate
	err  error
}

func (s *stubTemplates) GetTemplate(ctx context.Context, templateID, tenantID int64) (*domain.PromotionEmailTemplate, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.tmpl, nil
}

type stubRecipients struct {
	attendees      []string
	members        []string
	attendeeCalls  int
	memberCalls    int
	lastEventID    int64
	lastTenantID   int64
	attendeesError error
}

func (s *stubRecipients) ListEventAttendeeEmails(ctx context.Context, eventID int64) ([]string, error) {
	s.attendeeCalls++
	s.lastEventID = eventID
	return s.attendees, s.attendeesError
}

func (s *stubRecipients) ListSubscribedMemberEmails(ctx context.Context, tenantID int64) ([]string, error) {
	s.memberCalls++
	s.lastTenantID = tenantID
	return s.members, nil
}

type recordingSentLog struct {
	entries []domain.PromotionEmailSentLog
	inserts int
}

func (r *recordingSentLog) InsertSentLogs(ctx context.Context, entries []domain.PromotionEmailSentLog) error {
	r.inserts++
	r.entries = append(r.entries, entries...)
	return nil
}

type stubSettings struct {
	settings *domain.TenantSettings
	calls    int
}

func (s *stubSettings) GetTenantSettings(ctx context.Context, tenantID int64) (*domain.TenantSettings, error) {
	s.calls++
	return s.settings, nil
}

type stubPrewarmer struct {
	calls       int
	footerURL   string
	deadlineSet bool
}

func (s *stubPrewarmer) PrewarmFooter(ctx context.Context, tenantID int64, footerURL string, logoURL *string) string {
	s.calls++
	s.footerURL = footerURL
	_, s.deadlineSet = ctx.Deadline()
	return ""
}

type stubBuilder struct {
	content domain.EmailContent
	calls   int
}

func (b *stubBuilder) Build(ctx context.Context, tmpl *domain.PromotionEmailTemplate, subjectOverride, bodyOverride *string, tenantID int64) domain.EmailContent {
	b.calls++
	return b.content
}

type fakeSender struct {
	batches [][]ses.EmailMessage
	failTo  map[string]error
	err     error
}

func (f *fakeSender) SendBatch(ctx context.Context, messages []ses.EmailMessage) (*ses.BatchSendResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.batches = append(f.batches, messages)
	res := &ses.BatchSendResult{Results: make([]ses.SendResult, len(messages))}
	for i := range messages {
		if rejectErr, ok := f.failTo[messages[i].To]; ok {
			res.Results[i] = ses.SendResult{Success: false, Error: rejectErr}
			res.Rejected++
			continue
		}
		res.Results[i] = ses.SendResult{Success: true, MessageID: fmt.Sprintf("msg-%d", i), SentAt: time.Now()}
		res.Accepted++
	}
	return res, nil
}

// fakeGovernor allows the first allowCalls invocations and then returns
// denyErr. With denyErr nil every call passes through.
type fakeGovernor struct {
	denyErr    error
	allowCalls int
	acquired   []int
}

func (g *fakeGovernor) DoN(ctx context.Context, n int, fn func(ctx context.Context) error) error {
	g.acquired = append(g.acquired, n)
	if g.denyErr != nil && len(g.acquired) > g.allowCalls {
		return g.denyErr
	}
	return fn(ctx)
}

type fixture struct {
	templates  *stubTemplates
	recipients *stubRecipients
	sentLog    *recordingSentLog
	settings   *stubSettings
	assets     *stubPrewarmer
	content    *stubBuilder
	sender     *fakeSender
	governor   *fakeGovernor
	svc        *Service
}

func testConfig() Config {
	return Config{
		DefaultFromEmail: "noreply@gatherhq.com",
		BatchSize:        50,
		MaxEmails:        10000,
		PrewarmTimeout:   time.Second,
	}
}

func newFixture(tmpl *domain.PromotionEmailTemplate) *fixture {
	f := &fixture{
		templates:  &stubTemplates{tmpl: tmpl},
		recipients: &stubRecipients{},
		sentLog:    &recordingSentLog{},
		settings:   &stubSettings{},
		assets:     &stubPrewarmer{},
		content:    &stubBuilder{content: domain.EmailContent{Subject: "Spring Gala", BodyHTML: "<html><body>hi</body></html>"}},
		sender:     &fakeSender{},
		governor:   &fakeGovernor{},
	}
	f.svc = NewService(f.deps(), testConfig())
	return f
}

func (f *fixture) deps() Deps {
	return Deps{
		Templates:  f.templates,
		Recipients: f.recipients,
		SentLog:    f.sentLog,
		Settings:   f.settings,
		Assets:     f.assets,
		Content:    f.content,
		Sender:     f.sender,
		Governor:   f.governor,
	}
}

func addresses(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("user%03d@example.com", i)
	}
	return out
}

func baseTemplate() *domain.PromotionEmailTemplate {
	return &domain.PromotionEmailTemplate{
		ID:        42,
		TenantID:  7,
		Subject:   "Spring Gala",
		FromEmail: "events@venue.org",
		BodyHTML:  "<p>hi</p>",
	}
}

func TestRunFailsWithoutTemplate(t *testing.T) {
	f := newFixture(nil)
	f.templates.err = ErrTemplateNotFound

	counts, err := f.svc.Run(context.Background(), Params{TenantID: 7, TemplateID: 42})

	assert.ErrorIs(t, err, ErrTemplateNotFound)
	assert.Zero(t, counts.Processed)
	assert.Empty(t, f.sender.batches)
	assert.Empty(t, f.sentLog.entries)
}

func TestExplicitRecipientsSentInChunks(t *testing.T) {
	f := newFixture(baseTemplate())
	recipients := addresses(120)

	counts, err := f.svc.Run(context.Background(), Params{
		TenantID:        7,
		TemplateID:      42,
		RecipientEmails: recipients,
	})

	require.NoError(t, err)
	assert.Equal(t, domain.JobCounts{Processed: 120, Success: 120}, counts)
	assert.Equal(t, []int{50, 50, 20}, f.governor.acquired)
	require.Len(t, f.sentLog.entries, 120)

	first := f.sentLog.entries[0]
	assert.Equal(t, domain.EmailSent, first.EmailStatus)
	assert.False(t, first.IsTestEmail)
	require.NotNil(t, first.TemplateID)
	assert.Equal(t, int64(42), *first.TemplateID)
	assert.Equal(t, "Spring Gala", first.Subject)
}

func TestInfersEventAttendeesFromTemplate(t *testing.T) {
	tmpl := baseTemplate()
	eventID := int64(5)
	tmpl.EventID = &eventID

	f := newFixture(tmpl)
	f.recipients.attendees = []string{"a@example.com", "b@example.com"}

	counts, err := f.svc.Run(context.Background(), Params{TenantID: 7, TemplateID: 42})

	require.NoError(t, err)
	assert.Equal(t, 2, counts.Processed)
	assert.Equal(t, 1, f.recipients.attendeeCalls)
	assert.Equal(t, int64(5), f.recipients.lastEventID)
	assert.Zero(t, f.recipients.memberCalls)

	require.Len(t, f.sentLog.entries, 2)
	require.NotNil(t, f.sentLog.entries[0].EventID)
	assert.Equal(t, int64(5), *f.sentLog.entries[0].EventID)
}

func TestInfersSubscribedMembersWithoutEvent(t *testing.T) {
	f := newFixture(baseTemplate())
	f.recipients.members = []string{"m@example.com"}

	counts, err := f.svc.Run(context.Background(), Params{TenantID: 7, TemplateID: 42})

	require.NoError(t, err)
	assert.Equal(t, 1, counts.Processed)
	assert.Equal(t, 1, f.recipients.memberCalls)
	assert.Equal(t, int64(7), f.recipients.lastTenantID)
	assert.Zero(t, f.recipients.attendeeCalls)
}

func TestExplicitRecipientTypeWinsOverInference(t *testing.T) {
	tmpl := baseTemplate()
	eventID := int64(5)
	tmpl.EventID = &eventID

	f := newFixture(tmpl)
	f.recipients.members = []string{"m@example.com"}

	_, err := f.svc.Run(context.Background(), Params{
		TenantID:      7,
		TemplateID:    42,
		RecipientType: domain.RecipientSubscribedMembers,
	})

	require.NoError(t, err)
	assert.Equal(t, 1, f.recipients.memberCalls)
	assert.Zero(t, f.recipients.attendeeCalls)
}

func TestMaxEmailsCapsAudience(t *testing.T) {
	f := newFixture(baseTemplate())

	counts, err := f.svc.Run(context.Background(), Params{
		TenantID:        7,
		TemplateID:      42,
		RecipientEmails: addresses(5),
		MaxEmails:       3,
	})

	require.NoError(t, err)
	assert.Equal(t, 3, counts.Processed)
	assert.Len(t, f.sentLog.entries, 3)
}

func TestGovernorDenialFailsWholeChunk(t *testing.T) {
	f := newFixture(baseTemplate())
	f.governor.denyErr = ratelimit.ErrRateLimited
	f.governor.allowCalls = 1

	counts, err := f.svc.Run(context.Background(), Params{
		TenantID:        7,
		TemplateID:      42,
		RecipientEmails: addresses(60),
	})

	require.NoError(t, err)
	assert.Equal(t, domain.JobCounts{Processed: 60, Success: 50, Failed: 10}, counts)
	require.Len(t, f.sentLog.entries, 60)

	last := f.sentLog.entries[59]
	assert.Equal(t, domain.EmailFailed, last.EmailStatus)
	require.NotNil(t, last.ErrorMessage)
	assert.Contains(t, *last.ErrorMessage, "rate limit")
}

func TestTransportErrorFailsChunkMembers(t *testing.T) {
	f := newFixture(baseTemplate())
	f.sender.err = errors.New("ses unreachable")

	counts, err := f.svc.Run(context.Background(), Params{
		TenantID:        7,
		TemplateID:      42,
		RecipientEmails: addresses(3),
	})

	require.NoError(t, err)
	assert.Equal(t, domain.JobCounts{Processed: 3, Failed: 3}, counts)
	for _, entry := range f.sentLog.entries {
		assert.Equal(t, domain.EmailFailed, entry.EmailStatus)
		require.NotNil(t, entry.ErrorMessage)
		assert.Contains(t, *entry.ErrorMessage, "ses unreachable")
	}
}

func TestPartialRejectionCountsPerRecipient(t *testing.T) {
	f := newFixture(baseTemplate())
	f.sender.failTo = map[string]error{"user001@example.com": errors.New("mailbox full")}

	counts, err := f.svc.Run(context.Background(), Params{
		TenantID:        7,
		TemplateID:      42,
		RecipientEmails: addresses(3),
	})

	require.NoError(t, err)
	assert.Equal(t, domain.JobCounts{Processed: 3, Success: 2, Failed: 1}, counts)

	require.Len(t, f.sentLog.entries, 3)
	rejected := f.sentLog.entries[1]
	assert.Equal(t, "user001@example.com", rejected.RecipientEmail)
	assert.Equal(t, domain.EmailFailed, rejected.EmailStatus)
	require.NotNil(t, rejected.ErrorMessage)
	assert.Contains(t, *rejected.ErrorMessage, "mailbox full")
}

func TestContentBuiltOncePerJob(t *testing.T) {
	f := newFixture(baseTemplate())

	_, err := f.svc.Run(context.Background(), Params{
		TenantID:        7,
		TemplateID:      42,
		RecipientEmails: addresses(120),
	})

	require.NoError(t, err)
	assert.Equal(t, 1, f.content.calls)
}

func TestFromAddressFallsBackToDefault(t *testing.T) {
	tmpl := baseTemplate()
	tmpl.FromEmail = ""

	f := newFixture(tmpl)
	_, err := f.svc.Run(context.Background(), Params{
		TenantID:        7,
		TemplateID:      42,
		RecipientEmails: addresses(1),
	})

	require.NoError(t, err)
	require.Len(t, f.sender.batches, 1)
	assert.Equal(t, "noreply@gatherhq.com", f.sender.batches[0][0].FromEmail)
}

func TestTemplateFromAddressUsedWhenSet(t *testing.T) {
	f := newFixture(baseTemplate())
	_, err := f.svc.Run(context.Background(), Params{
		TenantID:        7,
		TemplateID:      42,
		RecipientEmails: addresses(1),
	})

	require.NoError(t, err)
	require.Len(t, f.sender.batches, 1)
	assert.Equal(t, "events@venue.org", f.sender.batches[0][0].FromEmail)
}

func TestPrewarmSkippedWhenTemplateHasFooter(t *testing.T) {
	tmpl := baseTemplate()
	footer := "<p>custom footer</p>"
	tmpl.FooterHTML = &footer

	f := newFixture(tmpl)
	_, err := f.svc.Run(context.Background(), Params{
		TenantID:        7,
		TemplateID:      42,
		RecipientEmails: addresses(1),
	})

	require.NoError(t, err)
	assert.Zero(t, f.settings.calls)
	assert.Zero(t, f.assets.calls)
}

func TestPrewarmUsesTenantFooterWithDeadline(t *testing.T) {
	footerURL := "https://cdn.example.com/footer.html"
	f := newFixture(baseTemplate())
	f.settings.settings = &domain.TenantSettings{TenantID: 7, EmailFooterHTMLURL: &footerURL}

	_, err := f.svc.Run(context.Background(), Params{
		TenantID:        7,
		TemplateID:      42,
		RecipientEmails: addresses(1),
	})

	require.NoError(t, err)
	assert.Equal(t, 1, f.assets.calls)
	assert.Equal(t, footerURL, f.assets.footerURL)
	assert.True(t, f.assets.deadlineSet)
}

func TestEmptyAudienceCompletesWithZeroCounts(t *testing.T) {
	f := newFixture(baseTemplate())

	counts, err := f.svc.Run(context.Background(), Params{TenantID: 7, TemplateID: 42})

	require.NoError(t, err)
	assert.Zero(t, counts.Processed)
	assert.Zero(t, f.content.calls)
	assert.Empty(t, f.sender.batches)
}

func TestRunTestMarksLogAsTest(t *testing.T) {
	f := newFixture(baseTemplate())
	userID := int64(12)

	counts, err := f.svc.RunTest(context.Background(), TestParams{
		TenantID:       7,
		TemplateID:     42,
		RecipientEmail: "qa@example.com",
		UserID:         &userID,
	})

	require.NoError(t, err)
	assert.Equal(t, domain.JobCounts{Processed: 1, Success: 1}, counts)
	assert.Equal(t, []int{1}, f.governor.acquired)

	require.Len(t, f.sentLog.entries, 1)
	entry := f.sentLog.entries[0]
	assert.True(t, entry.IsTestEmail)
	assert.Equal(t, "qa@example.com", entry.RecipientEmail)
	require.NotNil(t, entry.SentByID)
	assert.Equal(t, int64(12), *entry.SentByID)
}

// cancellingGovernor cancels the run after letting the first chunk through.
type cancellingGovernor struct {
	cancel context.CancelFunc
	calls  int
}

func (g *cancellingGovernor) DoN(ctx context.Context, n int, fn func(ctx context.Context) error) error {
	g.calls++
	g.cancel()
	return fn(ctx)
}

func TestCancellationStopsAtChunkBoundary(t *testing.T) {
	f := newFixture(baseTemplate())
	ctx, cancel := context.WithCancel(context.Background())
	gov := &cancellingGovernor{cancel: cancel}

	d := f.deps()
	d.Governor = gov
	svc := NewService(d, testConfig())

	counts, err := svc.Run(ctx, Params{
		TenantID:        7,
		TemplateID:      42,
		RecipientEmails: addresses(120),
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, gov.calls)
	assert.Equal(t, 50, counts.Processed)
}
