package ledger

import (
	"context"
	"time"

	"github.com/gatherhq/batch-jobs-service/internal/domain"
)

// Completion finalizes one execution row. DurationMs is derived from the
// stored started_at, not supplied by callers.
type Completion struct {
	ID           int64
	Status       domain.JobStatus
	Counts       domain.JobCounts
	ErrorMessage *string
	CompletedAt  time.Time
}

// ListFilter narrows List results. Nil fields match everything.
type ListFilter struct {
	JobType  *domain.JobType
	Status   *domain.JobStatus
	TenantID *int64
	Limit    int
}

// Repository persists job execution rows.
type Repository interface {
	// SyncSequence realigns the id sequence with the table. Best effort;
	// callers log and ignore failures.
	SyncSequence(ctx context.Context) error

	Create(ctx context.Context, exec *domain.JobExecution) (int64, error)
	Complete(ctx context.Context, c Completion) error
	GetByID(ctx context.Context, id int64) (*domain.JobExecution, error)
	List(ctx context.Context, filter ListFilter) ([]domain.JobExecution, error)
}
