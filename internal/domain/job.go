package domain

import (
	"time"
)

// JobType enumerates the batch job kinds the orchestrator can run.
type JobType string

const (
	JobSubscriptionRenewal  JobType = "SUBSCRIPTION_RENEWAL"
	JobEmailBatch           JobType = "EMAIL_BATCH"
	JobFeesTaxBackfill      JobType = "FEES_TAX_BACKFILL"
	JobContactFormEmail     JobType = "CONTACT_FORM_EMAIL"
	JobPromotionTestEmail   JobType = "PROMOTION_TEST_EMAIL"
	JobManualPaymentSummary JobType = "MANUAL_PAYMENT_SUMMARY"
)

// Valid reports whether t is a known job type.
func (t JobType) Valid() bool {
	switch t {
	case JobSubscriptionRenewal, JobEmailBatch, JobFeesTaxBackfill,
		JobContactFormEmail, JobPromotionTestEmail, JobManualPaymentSummary:
		return true
	}
	return false
}

// JobStatus enumerates the lifecycle states of a job execution.
type JobStatus string

const (
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
)

// JobExecution is the ledger row for one batch run. It is created when a
// trigger is accepted and mutated exactly once at completion.
type JobExecution struct {
	ID             int64      `json:"id" db:"id"`
	JobName        string     `json:"job_name" db:"job_name"`
	JobType        JobType    `json:"job_type" db:"job_type"`
	CorrelationID  string     `json:"correlation_id" db:"correlation_id"`
	TenantID       *int64     `json:"tenant_id" db:"tenant_id"` // nil means all tenants
	Status         JobStatus  `json:"status" db:"status"`
	StartedAt      time.Time  `json:"started_at" db:"started_at"`
	CompletedAt    *time.Time `json:"completed_at" db:"completed_at"`
	DurationMs     *int64     `json:"duration_ms" db:"duration_ms"`
	ProcessedCount int        `json:"processed_count" db:"processed_count"`
	SuccessCount   int        `json:"success_count" db:"success_count"`
	FailedCount    int        `json:"failed_count" db:"failed_count"`
	SkippedCount   int        `json:"skipped_count" db:"skipped_count"`
	ErrorMessage   *string    `json:"error_message" db:"error_message"`
	TriggeredBy    string     `json:"triggered_by" db:"triggered_by"`
	ParametersJSON string     `json:"parameters_json" db:"parameters_json"`
}

// IsTerminal returns true once the run has been finalized.
func (j *JobExecution) IsTerminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}

// JobCounts carries the aggregate outcome of one run.
// Invariant: Processed = Success + Failed + Skipped.
type JobCounts struct {
	Processed int `json:"processed"`
	Success   int `json:"success"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Consistent reports whether the counts satisfy the ledger invariant.
func (c JobCounts) Consistent() bool {
	return c.Processed == c.Success+c.Failed+c.Skipped
}
