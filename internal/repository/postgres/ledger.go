package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gatherhq/batch-jobs-service/internal/domain"
	"github.com/gatherhq/batch-jobs-service/internal/service/ledger"
)

// LedgerRepo implements ledger.Repository against PostgreSQL.
type LedgerRepo struct{ db *sql.DB }

// NewLedgerRepo creates a Postgres-backed job execution repository.
func NewLedgerRepo(db *sql.DB) *LedgerRepo { return &LedgerRepo{db: db} }

// SyncSequence realigns the id sequence with MAX(id). Bulk restores have
// left the sequence behind the table before; this keeps inserts from
// colliding afterwards.
func (r *LedgerRepo) SyncSequence(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		SELECT setval(pg_get_serial_sequence('job_executions', 'id'),
		       COALESCE((SELECT MAX(id) FROM job_executions), 0) + 1, false)
	`)
	if err != nil {
		return fmt.Errorf("sync job_executions sequence: %w", err)
	}
	return nil
}

func (r *LedgerRepo) Create(ctx context.Context, exec *domain.JobExecution) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO job_executions
			(job_name, job_type, correlation_id, tenant_id, status, started_at,
			 processed_count, success_count, failed_count, skipped_count,
			 triggered_by, parameters_json)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 0, 0, 0, $7, $8)
		RETURNING id
	`, exec.JobName, exec.JobType, exec.CorrelationID, exec.TenantID, exec.Status,
		exec.StartedAt, exec.TriggeredBy, exec.ParametersJSON).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert job execution: %w", err)
	}
	return id, nil
}

// Complete finalizes the row. duration_ms is derived from the stored
// started_at so it cannot drift from the ledger's own record.
func (r *LedgerRepo) Complete(ctx context.Context, c ledger.Completion) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE job_executions
		SET status = $2,
		    completed_at = $3,
		    duration_ms = (EXTRACT(EPOCH FROM ($3::timestamptz - started_at)) * 1000)::bigint,
		    processed_count = $4,
		    success_count = $5,
		    failed_count = $6,
		    skipped_count = $7,
		    error_message = $8
		WHERE id = $1
	`, c.ID, c.Status, c.CompletedAt, c.Counts.Processed, c.Counts.Success,
		c.Counts.Failed, c.Counts.Skipped, c.ErrorMessage)
	if err != nil {
		return fmt.Errorf("complete job execution: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

const jobExecutionColumns = `
	id, job_name, job_type, correlation_id, tenant_id, status, started_at,
	completed_at, duration_ms, processed_count, success_count, failed_count,
	skipped_count, error_message, triggered_by, parameters_json`

func (r *LedgerRepo) GetByID(ctx context.Context, id int64) (*domain.JobExecution, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT`+jobExecutionColumns+` FROM job_executions WHERE id = $1`, id)
	exec, err := scanJobExecution(row)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job execution: %w", err)
	}
	return exec, nil
}

func (r *LedgerRepo) List(ctx context.Context, f ledger.ListFilter) ([]domain.JobExecution, error) {
	q := `SELECT` + jobExecutionColumns + ` FROM job_executions WHERE 1=1`
	args := []interface{}{}
	idx := 1
	add := func(clause string, val interface{}) {
		q += fmt.Sprintf(" AND %s = $%d", clause, idx)
		args = append(args, val)
		idx++
	}

	if f.JobType != nil {
		add("job_type", *f.JobType)
	}
	if f.Status != nil {
		add("status", *f.Status)
	}
	if f.TenantID != nil {
		add("tenant_id", *f.TenantID)
	}
	q += fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d", idx)
	args = append(args, f.Limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list job executions: %w", err)
	}
	defer rows.Close()

	var out []domain.JobExecution
	for rows.Next() {
		exec, err := scanJobExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job execution: %w", err)
		}
		out = append(out, *exec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJobExecution(row rowScanner) (*domain.JobExecution, error) {
	exec := &domain.JobExecution{}
	err := row.Scan(
		&exec.ID, &exec.JobName, &exec.JobType, &exec.CorrelationID, &exec.TenantID,
		&exec.Status, &exec.StartedAt, &exec.CompletedAt, &exec.DurationMs,
		&exec.ProcessedCount, &exec.SuccessCount, &exec.FailedCount,
		&exec.SkippedCount, &exec.ErrorMessage, &exec.TriggeredBy, &exec.ParametersJSON,
	)
	if err != nil {
		return nil, err
	}
	return exec, nil
}
