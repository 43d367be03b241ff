package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gatherhq/batch-jobs-service/internal/domain"
)

// TenantRepo reads tenant settings and typed tenant email addresses. Both
// tables are owned by the platform; this service never writes them.
type TenantRepo struct{ db *sql.DB }

// NewTenantRepo creates a Postgres-backed tenant repository.
func NewTenantRepo(db *sql.DB) *TenantRepo { return &TenantRepo{db: db} }

// GetTenantSettings returns nil without error when the tenant has no settings
// row. Absent settings simply disable header and footer decoration.
func (r *TenantRepo) GetTenantSettings(ctx context.Context, tenantID int64) (*domain.TenantSettings, error) {
	var s domain.TenantSettings
	err := r.db.QueryRowContext(ctx, `
		SELECT tenant_id, email_header_image_url, email_footer_html_url, logo_image_url
		FROM tenant_settings
		WHERE tenant_id = $1
	`, tenantID).Scan(&s.TenantID, &s.EmailHeaderImageURL, &s.EmailFooterHTMLURL, &s.LogoImageURL)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant settings: %w", err)
	}
	return &s, nil
}

func (r *TenantRepo) GetTenantEmail(ctx context.Context, tenantID int64, emailType domain.TenantEmailType) (*domain.TenantEmail, error) {
	var e domain.TenantEmail
	err := r.db.QueryRowContext(ctx, `
		SELECT tenant_id, email_type, email_address
		FROM tenant_emails
		WHERE tenant_id = $1 AND email_type = $2
		LIMIT 1
	`, tenantID, emailType).Scan(&e.TenantID, &e.EmailType, &e.EmailAddress)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("tenant %d has no %s email configured", tenantID, emailType)
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant email: %w", err)
	}
	return &e, nil
}
