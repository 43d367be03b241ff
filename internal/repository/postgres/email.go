package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gatherhq/batch-jobs-service/internal/domain"
	"github.com/gatherhq/batch-jobs-service/internal/service/emailjob"
)

// EmailRepo implements emailjob.TemplateSource, emailjob.RecipientSource and
// emailjob.SentLogRepository against PostgreSQL.
type EmailRepo struct{ db *sql.DB }

// NewEmailRepo creates a Postgres-backed email repository.
func NewEmailRepo(db *sql.DB) *EmailRepo { return &EmailRepo{db: db} }

func (r *EmailRepo) GetTemplate(ctx context.Context, templateID, tenantID int64) (*domain.PromotionEmailTemplate, error) {
	var t domain.PromotionEmailTemplate
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, event_id, subject, from_email, body_html,
		       header_image_url, footer_html, footer_image_url,
		       promotion_code, discount_code_id
		FROM promotion_email_templates
		WHERE id = $1 AND tenant_id = $2
	`, templateID, tenantID).Scan(
		&t.ID, &t.TenantID, &t.EventID, &t.Subject, &t.FromEmail, &t.BodyHTML,
		&t.HeaderImageURL, &t.FooterHTML, &t.FooterImageURL,
		&t.PromotionCode, &t.DiscountCodeID,
	)
	if err == sql.ErrNoRows {
		return nil, emailjob.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get email template: %w", err)
	}
	return &t, nil
}

func (r *EmailRepo) ListEventAttendeeEmails(ctx context.Context, eventID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT email FROM event_attendees
		WHERE event_id = $1
		  AND status = 'CONFIRMED'
		  AND email IS NOT NULL AND email <> ''
		ORDER BY email
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list event attendee emails: %w", err)
	}
	defer rows.Close()

	return scanEmails(rows)
}

func (r *EmailRepo) ListSubscribedMemberEmails(ctx context.Context, tenantID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT email FROM user_profiles
		WHERE tenant_id = $1
		  AND promotion_opt_in = true
		  AND email IS NOT NULL AND email <> ''
		ORDER BY email
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list subscribed member emails: %w", err)
	}
	defer rows.Close()

	return scanEmails(rows)
}

// InsertSentLogs appends the batch inside one transaction so a crash cannot
// leave a partially audited chunk.
func (r *EmailRepo) InsertSentLogs(ctx context.Context, entries []domain.PromotionEmailSentLog) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sent log tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO promotion_email_sent_logs
			(tenant_id, template_id, event_id, recipient_email, subject,
			 sent_at, is_test_email, email_status, error_message, sent_by_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`)
	if err != nil {
		return fmt.Errorf("prepare sent log insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		_, err := stmt.ExecContext(ctx,
			e.TenantID, e.TemplateID, e.EventID, e.RecipientEmail, e.Subject,
			e.SentAt, e.IsTestEmail, e.EmailStatus, e.ErrorMessage, e.SentByID)
		if err != nil {
			// Index, not address, so the error never leaks a recipient.
			return fmt.Errorf("insert sent log %d of %d: %w", i+1, len(entries), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sent logs: %w", err)
	}
	return nil
}

func scanEmails(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan email: %w", err)
		}
		out = append(out, email)
	}
	return out, rows.Err()
}
