package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gatherhq/batch-jobs-service/internal/domain"
	"github.com/gatherhq/batch-jobs-service/internal/pkg/metrics"
	"github.com/gatherhq/batch-jobs-service/internal/pkg/telemetry"
	"github.com/gatherhq/batch-jobs-service/internal/service/emailjob"
	"github.com/gatherhq/batch-jobs-service/internal/service/feestax"
	"github.com/gatherhq/batch-jobs-service/internal/service/ledger"
	"github.com/gatherhq/batch-jobs-service/internal/service/paysummary"
	"github.com/gatherhq/batch-jobs-service/internal/service/renewal"
)

var (
	// ErrQueueFull means the pool's backlog is at capacity. The ledger row
	// for the rejected trigger is completed FAILED before this is returned.
	ErrQueueFull = errors.New("job queue full")

	// ErrNotRunning means Trigger was called before Start or after Stop.
	ErrNotRunning = errors.New("orchestrator not running")
)

const completionTimeout = 10 * time.Second

// TriggerResult identifies the accepted run.
type TriggerResult struct {
	JobExecutionID int64
	CorrelationID  string
}

type job struct {
	executionID   int64
	correlationID string
	jobType       domain.JobType
	params        Params
	queuedAt      time.Time
}

// Deps collects the orchestrator's collaborators.
type Deps struct {
	Ledger      Ledger
	Renewal     RenewalRunner
	Email       EmailRunner
	FeesTax     FeesTaxRunner
	ContactForm ContactFormRunner
	PaySummary  PaySummaryRunner
}

// Config sizes the pool, normally sourced from config.JobsConfig.
type Config struct {
	PoolSize   int
	QueueSize  int
	JobTimeout time.Duration
}

// Orchestrator owns the worker pool. Triggers are accepted only between
// Start and Stop; each accepted trigger is finalized in the ledger exactly
// once, whichever way the run ends.
type Orchestrator struct {
	ledger      Ledger
	renewal     RenewalRunner
	email       EmailRunner
	feesTax     FeesTaxRunner
	contactForm ContactFormRunner
	paySummary  PaySummaryRunner

	poolSize   int
	jobTimeout time.Duration
	jobs       chan job

	totalRuns int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewOrchestrator creates a stopped orchestrator.
func NewOrchestrator(deps Deps, cfg Config) *Orchestrator {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Minute
	}
	return &Orchestrator{
		ledger:      deps.Ledger,
		renewal:     deps.Renewal,
		email:       deps.Email,
		feesTax:     deps.FeesTax,
		contactForm: deps.ContactForm,
		paySummary:  deps.PaySummary,
		poolSize:    cfg.PoolSize,
		jobTimeout:  cfg.JobTimeout,
		jobs:        make(chan job, cfg.QueueSize),
	}
}

// Start spins up the pool.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return
	}
	o.running = true
	o.ctx, o.cancel = context.WithCancel(context.Background())
	o.mu.Unlock()

	log.Printf("[Orchestrator] Starting %d workers (queue=%d, job_timeout=%s)",
		o.poolSize, cap(o.jobs), o.jobTimeout)

	for i := 0; i < o.poolSize; i++ {
		o.wg.Add(1)
		go o.worker(i)
	}
}

// Stop cancels in-flight jobs, waits for the workers, and finalizes any job
// still sitting in the queue so no ledger row is left RUNNING.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	o.cancel()
	o.mu.Unlock()

	log.Println("[Orchestrator] Stopping workers...")
	o.wg.Wait()

	for {
		select {
		case j := <-o.jobs:
			msg := "cancelled"
			o.complete(j, domain.JobFailed, domain.JobCounts{}, &msg, time.Now())
		default:
			log.Printf("[Orchestrator] Stopped. Jobs run: %d", atomic.LoadInt64(&o.totalRuns))
			return
		}
	}
}

// Trigger validates, records the ledger row, and enqueues. It returns as
// soon as the job is queued; the caller gets the execution id and a fresh
// correlation id while the run proceeds on the pool.
func (o *Orchestrator) Trigger(ctx context.Context, jobType domain.JobType, p Params) (TriggerResult, error) {
	if err := validate(jobType, p); err != nil {
		return TriggerResult{}, err
	}

	o.mu.RLock()
	running := o.running
	o.mu.RUnlock()
	if !running {
		return TriggerResult{}, ErrNotRunning
	}

	triggeredBy := p.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = "api"
	}
	correlationID := uuid.New().String()

	exec, err := o.ledger.Create(ctx, ledger.CreateParams{
		JobName:       jobName(jobType),
		JobType:       jobType,
		TenantID:      p.TenantID,
		CorrelationID: correlationID,
		TriggeredBy:   triggeredBy,
		Parameters:    p,
	})
	if err != nil {
		return TriggerResult{}, fmt.Errorf("creating job execution: %w", err)
	}

	j := job{
		executionID:   exec.ID,
		correlationID: correlationID,
		jobType:       jobType,
		params:        p,
		queuedAt:      time.Now(),
	}
	select {
	case o.jobs <- j:
	default:
		msg := "queue full"
		if cerr := o.ledger.Complete(ctx, exec.ID, domain.JobFailed, domain.JobCounts{}, &msg); cerr != nil {
			log.Printf("[Orchestrator] Completing rejected execution %d: %v", exec.ID, cerr)
		}
		return TriggerResult{}, ErrQueueFull
	}

	metrics.JobsStarted.WithLabelValues(string(jobType)).Inc()
	log.Printf("[Orchestrator] Accepted %s as execution %d (correlation=%s)", jobType, exec.ID, correlationID)
	return TriggerResult{JobExecutionID: exec.ID, CorrelationID: correlationID}, nil
}

func (o *Orchestrator) worker(workerNum int) {
	defer o.wg.Done()

	for {
		select {
		case <-o.ctx.Done():
			return
		case j, ok := <-o.jobs:
			if !ok {
				return
			}
			o.execute(workerNum, j)
		}
	}
}

// execute runs one job under the pool deadline. The deferred recover keeps a
// panicking workflow from taking the worker down and still finalizes the row.
func (o *Orchestrator) execute(workerNum int, j job) {
	start := time.Now()
	atomic.AddInt64(&o.totalRuns, 1)

	ctx, cancel := context.WithTimeout(o.ctx, o.jobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Orchestrator] Worker %d: panic in execution %d (%s): %v",
				workerNum, j.executionID, j.jobType, r)
			msg := fmt.Sprintf("panic: %v", r)
			telemetry.CaptureJobFailure(fmt.Errorf("panic: %v", r), string(j.jobType), j.correlationID, j.executionID)
			o.complete(j, domain.JobFailed, domain.JobCounts{}, &msg, start)
		}
	}()

	log.Printf("[Orchestrator] Worker %d: running execution %d (%s, correlation=%s)",
		workerNum, j.executionID, j.jobType, j.correlationID)

	counts, err := o.dispatch(ctx, j)
	switch {
	case err == nil:
		o.complete(j, domain.JobCompleted, counts, nil, start)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		msg := "cancelled"
		o.complete(j, domain.JobFailed, counts, &msg, start)
	default:
		msg := err.Error()
		telemetry.CaptureJobFailure(err, string(j.jobType), j.correlationID, j.executionID)
		o.complete(j, domain.JobFailed, counts, &msg, start)
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, j job) (domain.JobCounts, error) {
	p := j.params
	switch j.jobType {
	case domain.JobSubscriptionRenewal:
		return o.renewal.Run(ctx, j.executionID, renewal.Params{
			TenantID:             p.TenantID,
			StripeSubscriptionID: p.StripeSubscriptionID,
			BatchSize:            p.BatchSize,
			MaxSubscriptions:     p.MaxSubscriptions,
		})
	case domain.JobEmailBatch:
		return o.email.Run(ctx, emailjob.Params{
			TenantID:        *p.TenantID,
			TemplateID:      *p.TemplateID,
			BatchSize:       p.BatchSize,
			MaxEmails:       p.MaxEmails,
			RecipientEmails: p.RecipientEmails,
			RecipientType:   p.RecipientType,
			UserID:          p.UserID,
		})
	case domain.JobPromotionTestEmail:
		return o.email.RunTest(ctx, emailjob.TestParams{
			TenantID:       *p.TenantID,
			TemplateID:     *p.TemplateID,
			RecipientEmail: p.RecipientEmail,
			UserID:         p.UserID,
		})
	case domain.JobFeesTaxBackfill:
		summary, err := o.feesTax.Run(ctx, feestax.Params{
			TenantID:            p.TenantID,
			EventID:             p.EventID,
			StartDate:           p.StartDate,
			EndDate:             p.EndDate,
			ForceUpdate:         p.ForceUpdate,
			UseDefaultDateRange: p.UseDefaultDateRange,
			BatchSize:           p.BatchSize,
		})
		return summary.Counts(), err
	case domain.JobContactFormEmail:
		return o.contactForm.Run(ctx, domain.ContactFormSubmission{
			TenantID:    *p.TenantID,
			SenderName:  p.SenderName,
			SenderEmail: p.SenderEmail,
			Subject:     p.Subject,
			Message:     p.Message,
		})
	case domain.JobManualPaymentSummary:
		return o.paySummary.Run(ctx, j.executionID, paysummary.Params{
			TenantID:  *p.TenantID,
			StartDate: p.StartDate,
			EndDate:   p.EndDate,
			SendEmail: p.SendEmail,
		})
	}
	return domain.JobCounts{}, fmt.Errorf("no runner for job type %s", j.jobType)
}

// complete finalizes the ledger row. It runs on a fresh context so shutdown
// cancellation cannot lose the terminal write.
func (o *Orchestrator) complete(j job, status domain.JobStatus, counts domain.JobCounts, errMsg *string, start time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), completionTimeout)
	defer cancel()

	if err := o.ledger.Complete(ctx, j.executionID, status, counts, errMsg); err != nil {
		log.Printf("[Orchestrator] Completing execution %d: %v", j.executionID, err)
	}

	metrics.JobsCompleted.WithLabelValues(string(j.jobType), string(status)).Inc()
	metrics.JobDuration.WithLabelValues(string(j.jobType)).Observe(time.Since(start).Seconds())

	if status == domain.JobFailed && errMsg != nil {
		log.Printf("[Orchestrator] Execution %d (%s, correlation=%s) FAILED after %s: %s",
			j.executionID, j.jobType, j.correlationID, time.Since(start).Round(time.Millisecond), *errMsg)
		return
	}
	log.Printf("[Orchestrator] Execution %d (%s, correlation=%s) %s in %s: processed=%d success=%d failed=%d skipped=%d",
		j.executionID, j.jobType, j.correlationID, status, time.Since(start).Round(time.Millisecond),
		counts.Processed, counts.Success, counts.Failed, counts.Skipped)
}
