package emailcontent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherhq/batch-jobs-service/internal/domain"
)

type stubSettings struct {
	settings *domain.TenantSettings
	err      error
}

func (s *stubSettings) GetTenantSettings(context.Context, int64) (*domain.TenantSettings, error) {
	return s.settings, s.err
}

type stubFetcher struct {
	html  string
	calls int
}

func (f *stubFetcher) FetchFooter(_ context.Context, _ int64, _ string, _ *string) string {
	f.calls++
	return f.html
}

func ptr(s string) *string { return &s }

func baseTemplate() *domain.PromotionEmailTemplate {
	return &domain.PromotionEmailTemplate{
		ID:       10,
		TenantID: 1,
		Subject:  "Spring Gala",
		BodyHTML: "<p>Join us.</p>",
	}
}

func TestOverridesWinOverTemplate(t *testing.T) {
	b := NewBuilder(&stubSettings{}, &stubFetcher{})

	content := b.Build(context.Background(), baseTemplate(), ptr("Last chance"), ptr("<p>Tonight only.</p>"), 1)

	assert.Equal(t, "Last chance", content.Subject)
	assert.Contains(t, content.BodyHTML, "<p>Tonight only.</p>")
	assert.NotContains(t, content.BodyHTML, "Join us")
}

func TestTemplateValuesWhenNoOverrides(t *testing.T) {
	b := NewBuilder(&stubSettings{}, &stubFetcher{})

	content := b.Build(context.Background(), baseTemplate(), nil, nil, 1)

	assert.Equal(t, "Spring Gala", content.Subject)
	assert.Contains(t, content.BodyHTML, "<p>Join us.</p>")
}

func TestHeaderFallsBackToTenantSettings(t *testing.T) {
	settings := &stubSettings{settings: &domain.TenantSettings{
		TenantID:            1,
		EmailHeaderImageURL: ptr("https://cdn.example.com/header.png"),
	}}
	b := NewBuilder(settings, &stubFetcher{})

	content := b.Build(context.Background(), baseTemplate(), nil, nil, 1)

	html := content.BodyHTML
	bodyStart := strings.Index(html, "<body>")
	require.GreaterOrEqual(t, bodyStart, 0)
	imgStart := strings.Index(html, "<img")
	require.GreaterOrEqual(t, imgStart, 0)
	assert.Less(t, imgStart-(bodyStart+len("<body>")), 200, "header image should lead the body")
	assert.Contains(t, html, "https://cdn.example.com/header.png")
}

func TestTemplateHeaderBeatsTenantHeader(t *testing.T) {
	settings := &stubSettings{settings: &domain.TenantSettings{
		TenantID:            1,
		EmailHeaderImageURL: ptr("https://cdn.example.com/tenant.png"),
	}}
	b := NewBuilder(settings, &stubFetcher{})

	tmpl := baseTemplate()
	tmpl.HeaderImageURL = ptr("https://cdn.example.com/template.png")
	content := b.Build(context.Background(), tmpl, nil, nil, 1)

	assert.Contains(t, content.BodyHTML, "template.png")
	assert.NotContains(t, content.BodyHTML, "tenant.png")
}

func TestTemplateFooterSuppressesTenantFooter(t *testing.T) {
	fetcher := &stubFetcher{html: "<div>tenant footer</div>"}
	settings := &stubSettings{settings: &domain.TenantSettings{
		TenantID:           1,
		EmailFooterHTMLURL: ptr("https://assets.example.com/footer.html"),
	}}
	b := NewBuilder(settings, fetcher)

	tmpl := baseTemplate()
	tmpl.FooterHTML = ptr("<div>template footer</div>")
	content := b.Build(context.Background(), tmpl, nil, nil, 1)

	assert.Contains(t, content.BodyHTML, "template footer")
	assert.NotContains(t, content.BodyHTML, "tenant footer")
	assert.Zero(t, fetcher.calls, "tenant footer must not even be fetched")
}

func TestFooterImageSecondInOrder(t *testing.T) {
	fetcher := &stubFetcher{html: "<div>tenant footer</div>"}
	b := NewBuilder(&stubSettings{}, fetcher)

	tmpl := baseTemplate()
	tmpl.FooterImageURL = ptr("https://cdn.example.com/footer.png")
	content := b.Build(context.Background(), tmpl, nil, nil, 1)

	assert.Contains(t, content.BodyHTML, "footer.png")
	assert.Zero(t, fetcher.calls)
}

func TestTenantFooterWhenTemplateHasNone(t *testing.T) {
	fetcher := &stubFetcher{html: "<div>tenant footer</div>"}
	settings := &stubSettings{settings: &domain.TenantSettings{
		TenantID:           1,
		EmailFooterHTMLURL: ptr("https://assets.example.com/footer.html"),
		LogoImageURL:       ptr("https://cdn.example.com/logo.png"),
	}}
	b := NewBuilder(settings, fetcher)

	content := b.Build(context.Background(), baseTemplate(), nil, nil, 1)

	assert.Contains(t, content.BodyHTML, "tenant footer")
	assert.Equal(t, 1, fetcher.calls)
}

func TestBuilderSurvivesSettingsFailure(t *testing.T) {
	settings := &stubSettings{err: errors.New("db down")}
	b := NewBuilder(settings, &stubFetcher{})

	content := b.Build(context.Background(), baseTemplate(), nil, nil, 1)

	assert.Equal(t, "Spring Gala", content.Subject)
	assert.Contains(t, content.BodyHTML, "<p>Join us.</p>")
}

func TestDocumentShell(t *testing.T) {
	b := NewBuilder(&stubSettings{}, &stubFetcher{})

	content := b.Build(context.Background(), baseTemplate(), nil, nil, 1)

	assert.True(t, strings.HasPrefix(content.BodyHTML,
		"<!DOCTYPE html><html><head><meta charset='UTF-8'></head><body>"))
	assert.True(t, strings.HasSuffix(content.BodyHTML, "</body></html>"))
}
