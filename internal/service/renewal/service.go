package renewal

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gatherhq/batch-jobs-service/internal/domain"
	"github.com/gatherhq/batch-jobs-service/internal/stripeapi"
)

// Params scope one reconciliation run. Zero values fall back to the defaults
// given at construction.
type Params struct {
	TenantID             *int64
	StripeSubscriptionID string
	BatchSize            int
	MaxSubscriptions     int
}

// Config carries the run defaults, normally sourced from config.RenewalConfig.
type Config struct {
	RenewalDays      int
	ExtendedDays     int
	BatchSize        int
	MaxSubscriptions int
	RateLimitDelay   time.Duration
	Location         *time.Location
}

// Service walks renewal candidates tenant by tenant and reconciles each row
// against Stripe. Tenants and rows are processed sequentially; a fixed delay
// after every provider call keeps the run inside the rate budget. There is
// no intra-run retry; the next scheduled run picks up FAILED rows again.
type Service struct {
	repo   Repository
	audit  AuditRepository
	vault  SecretSource
	stripe stripeapi.Factory

	loc              *time.Location
	delay            time.Duration
	renewalDays      int
	extendedDays     int
	batchSize        int
	maxSubscriptions int
}

// NewService creates a reconciler. A nil cfg.Location means server-local time.
func NewService(repo Repository, audit AuditRepository, vault SecretSource, stripe stripeapi.Factory, cfg Config) *Service {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Service{
		repo:             repo,
		audit:            audit,
		vault:            vault,
		stripe:           stripe,
		loc:              cfg.Location,
		delay:            cfg.RateLimitDelay,
		renewalDays:      cfg.RenewalDays,
		extendedDays:     cfg.ExtendedDays,
		batchSize:        cfg.BatchSize,
		maxSubscriptions: cfg.MaxSubscriptions,
	}
}

// Run executes one reconciliation pass and returns the aggregate counts.
// Per-row failures are counted and logged; only tenant discovery, candidate
// scan errors and cancellation abort the run.
func (s *Service) Run(ctx context.Context, jobExecutionID int64, p Params) (domain.JobCounts, error) {
	var counts domain.JobCounts

	if p.StripeSubscriptionID != "" {
		return s.runSingle(ctx, jobExecutionID, p)
	}

	batchSize := p.BatchSize
	if batchSize <= 0 {
		batchSize = s.batchSize
	}
	budget := p.MaxSubscriptions
	if budget <= 0 {
		budget = s.maxSubscriptions
	}

	var tenantIDs []int64
	if p.TenantID != nil {
		tenantIDs = []int64{*p.TenantID}
	} else {
		ids, err := s.repo.ListTenantIDs(ctx, s.renewalDays, s.extendedDays)
		if err != nil {
			return counts, fmt.Errorf("list tenants: %w", err)
		}
		tenantIDs = ids
	}

	log.Printf("[renewal.Service] Starting reconciliation: %d tenant(s), budget %d", len(tenantIDs), budget)

	for _, tenantID := range tenantIDs {
		if budget <= 0 {
			break
		}
		n, err := s.runTenant(ctx, jobExecutionID, tenantID, batchSize, budget, &counts)
		if err != nil {
			return counts, err
		}
		budget -= n
	}

	log.Printf("[renewal.Service] Reconciliation complete: %d processed, %d success, %d failed, %d skipped",
		counts.Processed, counts.Success, counts.Failed, counts.Skipped)
	return counts, nil
}

// runSingle reconciles exactly one row located by its provider subscription
// id. An ambiguous lookup is counted skipped, never reconciled.
func (s *Service) runSingle(ctx context.Context, jobID int64, p Params) (domain.JobCounts, error) {
	var counts domain.JobCounts
	if p.TenantID == nil {
		return counts, fmt.Errorf("single-subscription run requires a tenant id")
	}

	rows, err := s.repo.FindByStripeSubscriptionID(ctx, *p.TenantID, p.StripeSubscriptionID)
	if err != nil {
		return counts, fmt.Errorf("lookup %s: %w", p.StripeSubscriptionID, err)
	}
	switch {
	case len(rows) == 0:
		return counts, fmt.Errorf("subscription %s: %w", p.StripeSubscriptionID, ErrNotFound)
	case len(rows) > 1:
		counts.Processed++
		counts.Skipped++
		log.Printf("[renewal.Service] %v: %s matched %d rows for tenant %d, skipping",
			ErrDataInconsistent, p.StripeSubscriptionID, len(rows), *p.TenantID)
		return counts, nil
	}

	s.reconcileOne(ctx, jobID, &rows[0], &counts)
	return counts, nil
}

// runTenant pages through one tenant's candidates and returns how many rows
// it consumed from the run budget.
func (s *Service) runTenant(ctx context.Context, jobID, tenantID int64, batchSize, budget int, counts *domain.JobCounts) (int, error) {
	processed := 0
	afterID := int64(0)

	for processed < budget {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		limit := batchSize
		if remaining := budget - processed; remaining < limit {
			limit = remaining
		}

		rows, err := s.repo.ListCandidates(ctx, tenantID, CandidateQuery{
			RenewalDays:  s.renewalDays,
			ExtendedDays: s.extendedDays,
			AfterID:      afterID,
			Limit:        limit,
		})
		if err != nil {
			return processed, fmt.Errorf("tenant %d: list candidates: %w", tenantID, err)
		}
		if len(rows) == 0 {
			break
		}

		for i := range rows {
			if err := ctx.Err(); err != nil {
				return processed, err
			}
			s.reconcileOne(ctx, jobID, &rows[i], counts)
			processed++
			afterID = rows[i].ID
		}
		if len(rows) < limit {
			break
		}
	}
	return processed, nil
}

// reconcileOne processes a single row. Failures are absorbed into the counts
// and exactly one reconciliation log row is appended per attempt.
func (s *Service) reconcileOne(ctx context.Context, jobID int64, sub *domain.MembershipSubscription, counts *domain.JobCounts) {
	counts.Processed++

	entry := &domain.SubscriptionReconciliationLog{
		TenantID:             sub.TenantID,
		SubscriptionID:       sub.ID,
		StripeSubscriptionID: sub.StripeSubscriptionID,
		PreviousStatus:       sub.Status,
		NewStatus:            sub.Status,
		PreviousPeriodEnd:    sub.CurrentPeriodEnd,
		NewPeriodEnd:         sub.CurrentPeriodEnd,
		JobExecutionID:       jobID,
	}

	if err := s.reconcile(ctx, sub, entry); err != nil {
		counts.Failed++
		entry.Outcome = domain.ReconcileOutcomeFailed
		msg := err.Error()
		entry.ErrorMessage = &msg
		log.Printf("[renewal.Service] Subscription %d (tenant %d): %v", sub.ID, sub.TenantID, err)
		if markErr := s.repo.MarkReconciliationFailed(ctx, sub.ID, msg); markErr != nil {
			log.Printf("[renewal.Service] Subscription %d: record failure: %v", sub.ID, markErr)
		}
	} else {
		counts.Success++
		entry.Outcome = domain.ReconcileOutcomeSuccess
	}

	if err := s.audit.InsertReconciliationLog(ctx, entry); err != nil {
		log.Printf("[renewal.Service] Subscription %d: append reconciliation log: %v", sub.ID, err)
	}
}

// reconcile pulls the provider's canonical state and rewrites the local row.
// On success the entry's New* fields reflect the persisted values.
func (s *Service) reconcile(ctx context.Context, sub *domain.MembershipSubscription, entry *domain.SubscriptionReconciliationLog) error {
	if sub.StripeSubscriptionID == nil || *sub.StripeSubscriptionID == "" {
		return fmt.Errorf("row has no provider subscription id")
	}

	secret, err := s.vault.GetStripeSecret(ctx, sub.TenantID)
	if err != nil {
		return fmt.Errorf("stripe credentials: %w", err)
	}

	provider, err := s.stripe(secret).GetSubscription(ctx, *sub.StripeSubscriptionID)
	s.pause(ctx)
	if err != nil {
		return fmt.Errorf("fetch provider subscription: %w", err)
	}

	update := domain.SubscriptionUpdate{
		Status:            mapProviderStatus(provider.Status),
		CancelAtPeriodEnd: provider.CancelAtPeriodEnd,
	}
	if provider.CurrentPeriodStart > 0 {
		start := epochToDate(provider.CurrentPeriodStart, s.loc)
		update.CurrentPeriodStart = &start
	}
	if provider.CurrentPeriodEnd > 0 {
		end := epochToDate(provider.CurrentPeriodEnd, s.loc)
		update.CurrentPeriodEnd = &end
	}

	entry.NewStatus = update.Status
	entry.NewPeriodEnd = update.CurrentPeriodEnd

	if err := s.repo.ApplyRenewal(ctx, sub.ID, update); err != nil {
		return fmt.Errorf("persist subscription: %w", err)
	}
	return nil
}

// pause sleeps the configured post-call delay, returning early on cancel.
func (s *Service) pause(ctx context.Context) {
	if s.delay <= 0 {
		return
	}
	t := time.NewTimer(s.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// mapProviderStatus converts a Stripe subscription status to the local enum.
// Unknown provider values map to ACTIVE.
func mapProviderStatus(status string) domain.SubscriptionStatus {
	switch status {
	case "active":
		return domain.SubscriptionActive
	case "trialing":
		return domain.SubscriptionTrial
	case "past_due":
		return domain.SubscriptionPastDue
	case "canceled", "cancelled":
		return domain.SubscriptionCancelled
	case "unpaid":
		return domain.SubscriptionSuspended
	case "incomplete", "incomplete_expired":
		return domain.SubscriptionExpired
	default:
		return domain.SubscriptionActive
	}
}

// epochToDate reduces provider epoch seconds to the calendar day observed in
// loc, returned as midnight UTC to survive the round-trip into a DATE column.
func epochToDate(sec int64, loc *time.Location) time.Time {
	t := time.Unix(sec, 0).In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
