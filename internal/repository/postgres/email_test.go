package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherhq/batch-jobs-service/internal/domain"
	"github.com/gatherhq/batch-jobs-service/internal/service/emailjob"
)

func TestEmailGetTemplateScopedToTenant(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEmailRepo(db)

	footer := "<p>See you there</p>"
	mock.ExpectQuery("SELECT(.+)FROM promotion_email_templates WHERE id(.+)AND tenant_id").
		WithArgs(int64(5), int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tenant_id", "event_id", "subject", "from_email", "body_html",
			"header_image_url", "footer_html", "footer_image_url",
			"promotion_code", "discount_code_id",
		}).AddRow(
			int64(5), int64(3), int64(12), "Spring Gala", "events@venue.test",
			"<h1>You're invited</h1>", nil, footer, nil, "SPRING25", int64(9),
		))

	tmpl, err := repo.GetTemplate(context.Background(), 5, 3)
	require.NoError(t, err)
	assert.Equal(t, "Spring Gala", tmpl.Subject)
	assert.True(t, tmpl.HasOwnFooter())
	require.NotNil(t, tmpl.PromotionCode)
	assert.Equal(t, "SPRING25", *tmpl.PromotionCode)
}

func TestEmailGetTemplateNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEmailRepo(db)

	mock.ExpectQuery("SELECT(.+)FROM promotion_email_templates").
		WithArgs(int64(5), int64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetTemplate(context.Background(), 5, 99)
	assert.ErrorIs(t, err, emailjob.ErrTemplateNotFound)
}

func TestEmailListEventAttendeeEmails(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEmailRepo(db)

	mock.ExpectQuery("SELECT DISTINCT email FROM event_attendees").
		WithArgs(int64(12)).
		WillReturnRows(sqlmock.NewRows([]string{"email"}).
			AddRow("a@example.test").AddRow("b@example.test"))

	emails, err := repo.ListEventAttendeeEmails(context.Background(), 12)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.test", "b@example.test"}, emails)
}

func TestEmailListSubscribedMemberEmails(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEmailRepo(db)

	mock.ExpectQuery("SELECT DISTINCT email FROM user_profiles").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("m@example.test"))

	emails, err := repo.ListSubscribedMemberEmails(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"m@example.test"}, emails)
}

func TestEmailInsertSentLogsSingleTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEmailRepo(db)

	sentAt := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)
	templateID := int64(5)
	failMsg := "mailbox full"

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO promotion_email_sent_logs")
	prep.ExpectExec().
		WithArgs(int64(3), templateID, nil, "a@example.test", "Spring Gala",
			sentAt, false, "SENT", nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().
		WithArgs(int64(3), templateID, nil, "b@example.test", "Spring Gala",
			sentAt, false, "FAILED", failMsg, nil).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	err := repo.InsertSentLogs(context.Background(), []domain.PromotionEmailSentLog{
		{TenantID: 3, TemplateID: &templateID, RecipientEmail: "a@example.test",
			Subject: "Spring Gala", SentAt: sentAt, EmailStatus: domain.EmailSent},
		{TenantID: 3, TemplateID: &templateID, RecipientEmail: "b@example.test",
			Subject: "Spring Gala", SentAt: sentAt, EmailStatus: domain.EmailFailed,
			ErrorMessage: &failMsg},
	})
	assert.NoError(t, err)
}

func TestEmailInsertSentLogsRollsBackOnFailure(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEmailRepo(db)

	sentAt := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO promotion_email_sent_logs")
	prep.ExpectExec().WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.InsertSentLogs(context.Background(), []domain.PromotionEmailSentLog{
		{TenantID: 3, RecipientEmail: "a@example.test", SentAt: sentAt,
			EmailStatus: domain.EmailSent},
	})
	require.Error(t, err)
	// The audit failure must report position, never the address itself.
	assert.Contains(t, err.Error(), "1 of 1")
	assert.NotContains(t, err.Error(), "a@example.test")
}

func TestEmailInsertSentLogsEmptyIsNoop(t *testing.T) {
	db, _ := newMockDB(t)
	repo := NewEmailRepo(db)

	assert.NoError(t, repo.InsertSentLogs(context.Background(), nil))
}
