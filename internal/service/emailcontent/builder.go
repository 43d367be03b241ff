package emailcontent

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/gatherhq/batch-jobs-service/internal/domain"
)

// TenantSettingsSource loads the per-tenant email settings used for the
// header and footer fallbacks.
type TenantSettingsSource interface {
	GetTenantSettings(ctx context.Context, tenantID int64) (*domain.TenantSettings, error)
}

// FooterFetcher resolves the tenant footer document. Implementations return
// an empty string on failure.
type FooterFetcher interface {
	FetchFooter(ctx context.Context, tenantID int64, footerURL string, logoURL *string) string
}

// Builder assembles subject and body HTML for one send.
type Builder struct {
	settings TenantSettingsSource
	assets   FooterFetcher
}

// NewBuilder creates a content builder.
func NewBuilder(settings TenantSettingsSource, assets FooterFetcher) *Builder {
	return &Builder{settings: settings, assets: assets}
}

// Build composes the final email content. Slot resolution order:
//
//	subject: subjectOverride, then template.Subject
//	body:    bodyOverride, then template.BodyHTML
//	header:  template.HeaderImageURL, then tenant settings header image
//	footer:  template.FooterHTML, then template.FooterImageURL, then the
//	         fetched tenant footer
//
// The tenant footer is only consulted when the template carries no footer
// of its own, so a template footer is never doubled up.
func (b *Builder) Build(ctx context.Context, tmpl *domain.PromotionEmailTemplate, subjectOverride, bodyOverride *string, tenantID int64) domain.EmailContent {
	subject := tmpl.Subject
	if subjectOverride != nil && *subjectOverride != "" {
		subject = *subjectOverride
	}

	body := tmpl.BodyHTML
	if bodyOverride != nil && *bodyOverride != "" {
		body = *bodyOverride
	}

	headerURL := strValue(tmpl.HeaderImageURL)
	needsTenantFooter := !tmpl.HasOwnFooter()

	var settings *domain.TenantSettings
	if headerURL == "" || needsTenantFooter {
		var err error
		settings, err = b.settings.GetTenantSettings(ctx, tenantID)
		if err != nil {
			log.Printf("[ContentBuilder] Failed to load settings for tenant %d: %v", tenantID, err)
			settings = nil
		}
	}
	if headerURL == "" && settings != nil {
		headerURL = strValue(settings.EmailHeaderImageURL)
	}

	footer := ""
	switch {
	case strValue(tmpl.FooterHTML) != "":
		footer = *tmpl.FooterHTML
	case strValue(tmpl.FooterImageURL) != "":
		footer = imageBlock(*tmpl.FooterImageURL)
	case settings != nil && strValue(settings.EmailFooterHTMLURL) != "":
		footer = b.assets.FetchFooter(ctx, tenantID, *settings.EmailFooterHTMLURL, settings.LogoImageURL)
	}

	var sb strings.Builder
	if headerURL != "" {
		sb.WriteString(imageBlock(headerURL))
	}
	sb.WriteString(body)
	if footer != "" {
		sb.WriteString(footer)
	}

	return domain.EmailContent{Subject: subject, BodyHTML: WrapHTML(sb.String())}
}

// WrapHTML wraps a body fragment in the document shell every outbound email
// uses. Fragments that already carry their own <html> element pass through
// untouched.
func WrapHTML(inner string) string {
	if strings.Contains(strings.ToLower(inner), "<html") {
		return inner
	}
	return "<!DOCTYPE html><html><head><meta charset='UTF-8'></head><body>" + inner + "</body></html>"
}

func imageBlock(url string) string {
	return fmt.Sprintf(`<div style="text-align:center"><img src="%s" alt="" style="max-width:100%%"/></div>`, url)
}

func strValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
