package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gatherhq/batch-jobs-service/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// CreateParams describes a new run. Parameters is marshalled to JSON and
// stored on the row for later inspection.
type CreateParams struct {
	JobName       string
	JobType       domain.JobType
	TenantID      *int64
	CorrelationID string
	TriggeredBy   string
	Parameters    any
}

// Service wraps the repository with the ledger semantics: a sequence sync
// before create and duration computation on complete.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a ledger service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Create writes the RUNNING row for a new job execution and returns it.
func (s *Service) Create(ctx context.Context, p CreateParams) (*domain.JobExecution, error) {
	// Recovers from sequence drift seen after bulk restores. Failure here
	// must never block a run.
	if err := s.repo.SyncSequence(ctx); err != nil {
		log.Printf("[Ledger] Sequence sync failed, continuing: %v", err)
	}

	paramsJSON := "{}"
	if p.Parameters != nil {
		data, err := json.Marshal(p.Parameters)
		if err != nil {
			return nil, fmt.Errorf("marshaling job parameters: %w", err)
		}
		paramsJSON = string(data)
	}

	exec := &domain.JobExecution{
		JobName:        p.JobName,
		JobType:        p.JobType,
		CorrelationID:  p.CorrelationID,
		TenantID:       p.TenantID,
		Status:         domain.JobRunning,
		StartedAt:      s.now(),
		TriggeredBy:    p.TriggeredBy,
		ParametersJSON: paramsJSON,
	}

	id, err := s.repo.Create(ctx, exec)
	if err != nil {
		return nil, fmt.Errorf("creating job execution: %w", err)
	}
	exec.ID = id

	log.Printf("[Ledger] Created execution %d for %s (correlation %s)", id, p.JobType, p.CorrelationID)
	return exec, nil
}

// Complete finalizes the row with the terminal status and counts.
func (s *Service) Complete(ctx context.Context, id int64, status domain.JobStatus, counts domain.JobCounts, errorMessage *string) error {
	if !counts.Consistent() {
		log.Printf("[Ledger] Execution %d counts are inconsistent: processed=%d success=%d failed=%d skipped=%d",
			id, counts.Processed, counts.Success, counts.Failed, counts.Skipped)
	}

	err := s.repo.Complete(ctx, Completion{
		ID:           id,
		Status:       status,
		Counts:       counts,
		ErrorMessage: errorMessage,
		CompletedAt:  s.now(),
	})
	if err != nil {
		return fmt.Errorf("completing job execution %d: %w", id, err)
	}

	log.Printf("[Ledger] Execution %d finished status=%s processed=%d success=%d failed=%d skipped=%d",
		id, status, counts.Processed, counts.Success, counts.Failed, counts.Skipped)
	return nil
}

// Get returns one execution row.
func (s *Service) Get(ctx context.Context, id int64) (*domain.JobExecution, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns recent executions, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]domain.JobExecution, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	return s.repo.List(ctx, filter)
}
