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
	"github.com/gatherhq/batch-jobs-service/internal/service/ledger"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func TestLedgerCreateInsertsRunningRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepo(db)

	startedAt := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)
	tenantID := int64(7)

	mock.ExpectQuery("INSERT INTO job_executions").
		WithArgs("subscription-renewal-reconciliation", "SUBSCRIPTION_RENEWAL",
			"corr-1", tenantID, "RUNNING", startedAt, "api", `{"tenantId":7}`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := repo.Create(context.Background(), &domain.JobExecution{
		JobName:        "subscription-renewal-reconciliation",
		JobType:        domain.JobSubscriptionRenewal,
		CorrelationID:  "corr-1",
		TenantID:       &tenantID,
		Status:         domain.JobRunning,
		StartedAt:      startedAt,
		TriggeredBy:    "api",
		ParametersJSON: `{"tenantId":7}`,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestLedgerCompleteFinalizesRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepo(db)

	completedAt := time.Date(2025, 3, 12, 10, 5, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE job_executions").
		WithArgs(int64(42), "COMPLETED", completedAt, 10, 9, 1, 0, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Complete(context.Background(), ledger.Completion{
		ID:          42,
		Status:      domain.JobCompleted,
		Counts:      domain.JobCounts{Processed: 10, Success: 9, Failed: 1},
		CompletedAt: completedAt,
	})
	assert.NoError(t, err)
}

func TestLedgerCompleteMissingRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepo(db)

	mock.ExpectExec("UPDATE job_executions").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Complete(context.Background(), ledger.Completion{ID: 99, Status: domain.JobFailed})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestLedgerGetByIDMapsNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepo(db)

	mock.ExpectQuery("SELECT").
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), 99)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func jobExecutionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "job_name", "job_type", "correlation_id", "tenant_id", "status",
		"started_at", "completed_at", "duration_ms", "processed_count",
		"success_count", "failed_count", "skipped_count", "error_message",
		"triggered_by", "parameters_json",
	})
}

func TestLedgerGetByIDScansRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepo(db)

	started := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)
	completed := started.Add(90 * time.Second)

	mock.ExpectQuery("SELECT").
		WithArgs(int64(42)).
		WillReturnRows(jobExecutionRows().AddRow(
			int64(42), "promotion-email-batch", "EMAIL_BATCH", "corr-1", int64(3),
			"COMPLETED", started, completed, int64(90000), 120, 118, 2, 0,
			nil, "api", `{"templateId":5}`,
		))

	exec, err := repo.GetByID(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, domain.JobEmailBatch, exec.JobType)
	assert.Equal(t, domain.JobCompleted, exec.Status)
	require.NotNil(t, exec.TenantID)
	assert.Equal(t, int64(3), *exec.TenantID)
	require.NotNil(t, exec.DurationMs)
	assert.Equal(t, int64(90000), *exec.DurationMs)
	assert.Equal(t, 120, exec.ProcessedCount)
	assert.Nil(t, exec.ErrorMessage)
}

func TestLedgerListAppliesFilters(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepo(db)

	started := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT(.+)FROM job_executions WHERE 1=1 AND job_type(.+)AND status(.+)AND tenant_id(.+)ORDER BY started_at DESC").
		WithArgs("EMAIL_BATCH", "COMPLETED", int64(3), 25).
		WillReturnRows(jobExecutionRows().
			AddRow(int64(2), "promotion-email-batch", "EMAIL_BATCH", "corr-2", int64(3),
				"COMPLETED", started, nil, nil, 0, 0, 0, 0, nil, "api", "{}").
			AddRow(int64(1), "promotion-email-batch", "EMAIL_BATCH", "corr-1", int64(3),
				"COMPLETED", started, nil, nil, 0, 0, 0, 0, nil, "api", "{}"))

	jobType := domain.JobEmailBatch
	status := domain.JobCompleted
	tenantID := int64(3)
	out, err := repo.List(context.Background(), ledger.ListFilter{
		JobType:  &jobType,
		Status:   &status,
		TenantID: &tenantID,
		Limit:    25,
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, int64(2), out[0].ID)
	assert.Equal(t, int64(1), out[1].ID)
}

func TestLedgerListNoFilters(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepo(db)

	mock.ExpectQuery("SELECT(.+)FROM job_executions WHERE 1=1 ORDER BY started_at DESC").
		WithArgs(50).
		WillReturnRows(jobExecutionRows())

	out, err := repo.List(context.Background(), ledger.ListFilter{Limit: 50})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestLedgerSyncSequence(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepo(db)

	mock.ExpectExec("SELECT setval").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, repo.SyncSequence(context.Background()))
}
