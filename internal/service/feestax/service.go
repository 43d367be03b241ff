package feestax

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gatherhq/batch-jobs-service/internal/domain"
	"github.com/gatherhq/batch-jobs-service/internal/stripeapi"
)

// Sentinel bounds substituted for missing explicit window edges so the
// storage layer never sees a null date parameter.
var (
	windowFloor   = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	windowCeiling = time.Date(2099, 12, 31, 23, 59, 59, 999999999, time.UTC)
)

// Params scope one backfill run.
type Params struct {
	TenantID            *int64
	EventID             *int64
	StartDate           *time.Time
	EndDate             *time.Time
	ForceUpdate         bool
	UseDefaultDateRange bool
	BatchSize           int
}

// Config carries the run defaults, normally sourced from config.FeesTaxConfig
// and config.StripeConfig.
type Config struct {
	BatchSize      int
	RateLimitDelay time.Duration
	Location       *time.Location
}

// TenantSummary aggregates one tenant's outcomes. Error is set when the
// tenant was skipped outright, e.g. for missing Stripe credentials.
type TenantSummary struct {
	TenantID  int64           `json:"tenant_id"`
	Processed int             `json:"processed"`
	Updated   int             `json:"updated"`
	Failed    int             `json:"failed"`
	Skipped   int             `json:"skipped"`
	TotalFees decimal.Decimal `json:"total_fees"`
	TotalTax  decimal.Decimal `json:"total_tax"`
	Error     string          `json:"error,omitempty"`
}

// RunSummary is the final aggregation across all tenants of one run.
type RunSummary struct {
	WindowStart time.Time       `json:"window_start"`
	WindowEnd   time.Time       `json:"window_end"`
	Tenants     []TenantSummary `json:"tenants"`
	Processed   int             `json:"processed"`
	Updated     int             `json:"updated"`
	Failed      int             `json:"failed"`
	Skipped     int             `json:"skipped"`
	TotalFees   decimal.Decimal `json:"total_fees"`
	TotalTax    decimal.Decimal `json:"total_tax"`
}

// Counts maps the summary onto the ledger's count quadruple.
func (r RunSummary) Counts() domain.JobCounts {
	return domain.JobCounts{
		Processed: r.Processed,
		Success:   r.Updated,
		Failed:    r.Failed,
		Skipped:   r.Skipped,
	}
}

// Service walks backfill candidates tenant by tenant and fills the fee, tax,
// and net payout columns from the provider's settled amounts. Rows already
// carrying a fee are skipped unless the run forces an update, so reruns are
// safe by construction.
type Service struct {
	repo   Repository
	vault  SecretSource
	stripe stripeapi.Factory

	loc       *time.Location
	delay     time.Duration
	batchSize int
	now       func() time.Time
}

// NewService creates a backfiller. A nil cfg.Location means server-local time.
func NewService(repo Repository, vault SecretSource, stripe stripeapi.Factory, cfg Config) *Service {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Service{
		repo:      repo,
		vault:     vault,
		stripe:    stripe,
		loc:       cfg.Location,
		delay:     cfg.RateLimitDelay,
		batchSize: cfg.BatchSize,
		now:       time.Now,
	}
}

// Run executes one backfill pass. Per-row provider and persistence errors
// are counted and logged; only candidate scan errors and cancellation abort
// the run. The vault cache is cleared first so rotated keys take effect.
func (s *Service) Run(ctx context.Context, p Params) (RunSummary, error) {
	s.vault.ClearCache()

	start, end := s.resolveWindow(p)
	summary := RunSummary{
		WindowStart: start,
		WindowEnd:   end,
		TotalFees:   decimal.Zero,
		TotalTax:    decimal.Zero,
	}

	batchSize := p.BatchSize
	if batchSize <= 0 {
		batchSize = s.batchSize
	}
	q := CandidateQuery{
		EventID:     p.EventID,
		Start:       start,
		End:         end,
		ForceUpdate: p.ForceUpdate,
	}

	var tenantIDs []int64
	if p.TenantID != nil {
		tenantIDs = []int64{*p.TenantID}
	} else {
		ids, err := s.repo.ListTenantIDs(ctx, q)
		if err != nil {
			return summary, fmt.Errorf("list tenants: %w", err)
		}
		tenantIDs = ids
	}

	log.Printf("[FeesTax] Starting backfill: window %s .. %s, %d tenant(s), force=%t",
		start.Format("2006-01-02"), end.Format("2006-01-02"), len(tenantIDs), p.ForceUpdate)

	for _, tenantID := range tenantIDs {
		ts, err := s.runTenant(ctx, tenantID, q, batchSize)
		summary.Tenants = append(summary.Tenants, ts)
		summary.Processed += ts.Processed
		summary.Updated += ts.Updated
		summary.Failed += ts.Failed
		summary.Skipped += ts.Skipped
		summary.TotalFees = summary.TotalFees.Add(ts.TotalFees)
		summary.TotalTax = summary.TotalTax.Add(ts.TotalTax)
		if err != nil {
			return summary, err
		}
	}

	log.Printf("[FeesTax] Backfill complete: %d processed, %d updated, %d skipped, %d failed, fees=%s tax=%s",
		summary.Processed, summary.Updated, summary.Skipped, summary.Failed,
		summary.TotalFees.StringFixed(2), summary.TotalTax.StringFixed(2))

	if summary.Processed > 0 {
		rate := float64(summary.Failed) / float64(summary.Processed)
		if rate > 0.10 {
			log.Printf("[FeesTax] ELEVATED failure rate %.1f%% (%d of %d) - check provider credentials and connectivity",
				rate*100, summary.Failed, summary.Processed)
		}
	}
	return summary, nil
}

// runTenant pages through one tenant's candidates. A missing Stripe secret
// skips the whole tenant; everything else is absorbed per row.
func (s *Service) runTenant(ctx context.Context, tenantID int64, q CandidateQuery, batchSize int) (TenantSummary, error) {
	ts := TenantSummary{TenantID: tenantID, TotalFees: decimal.Zero, TotalTax: decimal.Zero}

	secret, err := s.vault.GetStripeSecret(ctx, tenantID)
	if err != nil {
		ts.Error = err.Error()
		log.Printf("[FeesTax] Tenant %d: stripe credentials unavailable, skipping tenant: %v", tenantID, err)
		return ts, nil
	}
	client := s.stripe(secret)

	// Rows already filled on earlier runs are accounted as skipped without
	// a provider round trip.
	if !q.ForceUpdate {
		filled, err := s.repo.CountFilled(ctx, tenantID, q)
		if err != nil {
			return ts, fmt.Errorf("tenant %d: count filled rows: %w", tenantID, err)
		}
		ts.Processed += filled
		ts.Skipped += filled
	}

	afterID := int64(0)
	for {
		if err := ctx.Err(); err != nil {
			return ts, err
		}

		page := q
		page.AfterID = afterID
		page.Limit = batchSize
		rows, err := s.repo.ListCandidates(ctx, tenantID, page)
		if err != nil {
			return ts, fmt.Errorf("tenant %d: list candidates: %w", tenantID, err)
		}
		if len(rows) == 0 {
			break
		}

		for i := range rows {
			if err := ctx.Err(); err != nil {
				return ts, err
			}
			s.backfillOne(ctx, client, &rows[i], q.ForceUpdate, &ts)
			afterID = rows[i].ID
		}
		if len(rows) < batchSize {
			break
		}
	}

	log.Printf("[FeesTax] Tenant %d: %d processed, %d updated, %d skipped, %d failed",
		tenantID, ts.Processed, ts.Updated, ts.Skipped, ts.Failed)
	return ts, nil
}

// backfillOne fills one transaction row. The row is re-read immediately
// before the write so a concurrent run never overwrites fresher values.
func (s *Service) backfillOne(ctx context.Context, client stripeapi.Client, tx *domain.EventTicketTransaction, force bool, ts *TenantSummary) {
	ts.Processed++

	if !tx.NeedsFeeBackfill(force) {
		ts.Skipped++
		return
	}
	if tx.StripePaymentIntentID == nil || *tx.StripePaymentIntentID == "" {
		ts.Failed++
		log.Printf("[FeesTax] Transaction %d: selected without a payment intent id", tx.ID)
		return
	}

	pi, err := client.GetPaymentIntent(ctx, *tx.StripePaymentIntentID)
	s.pause(ctx)
	if err != nil {
		ts.Failed++
		log.Printf("[FeesTax] Transaction %d (%s): fetch payment intent: %v", tx.ID, *tx.StripePaymentIntentID, err)
		return
	}

	fee, providerNet, err := s.feeAndNet(ctx, client, pi)
	if err != nil {
		ts.Failed++
		log.Printf("[FeesTax] Transaction %d (%s): %v", tx.ID, *tx.StripePaymentIntentID, err)
		return
	}

	tax := s.fetchTax(ctx, client, tx, pi)

	fresh, err := s.repo.GetByID(ctx, tx.ID)
	if err != nil {
		ts.Failed++
		log.Printf("[FeesTax] Transaction %d: reload before write: %v", tx.ID, err)
		return
	}
	if !fresh.NeedsFeeBackfill(force) {
		// Another run filled the row between selection and write.
		ts.Skipped++
		return
	}

	update := domain.FeeTaxUpdate{
		StripeFeeAmount: fee,
		StripeAmountTax: tax,
		NetPayoutAmount: netPayout(fresh.FinalAmount, fee, tax, providerNet),
	}
	if err := s.repo.ApplyFeeTax(ctx, tx.ID, update); err != nil {
		ts.Failed++
		log.Printf("[FeesTax] Transaction %d: persist fee/tax: %v", tx.ID, err)
		return
	}

	ts.Updated++
	ts.TotalFees = ts.TotalFees.Add(fee)
	if tax != nil {
		ts.TotalTax = ts.TotalTax.Add(*tax)
	}
}

// feeAndNet resolves the settled fee and net from an already-fetched payment
// intent. The primary path reads the expanded latest charge; when its
// balance transaction is not available the charge list is scanned for a fee
// and the net is left for the local formula.
func (s *Service) feeAndNet(ctx context.Context, client stripeapi.Client, pi *stripeapi.PaymentIntent) (decimal.Decimal, *decimal.Decimal, error) {
	if pi.LatestCharge != nil && pi.LatestCharge.Balance != nil {
		fee := centsToDollars(pi.LatestCharge.Balance.FeeCents)
		net := centsToDollars(pi.LatestCharge.Balance.NetCents)
		return fee, &net, nil
	}

	charges, err := client.ListCharges(ctx, pi.ID, 10)
	s.pause(ctx)
	if err != nil {
		return decimal.Zero, nil, fmt.Errorf("list charges: %w", err)
	}
	for i := range charges {
		if charges[i].Balance != nil {
			return centsToDollars(charges[i].Balance.FeeCents), nil, nil
		}
	}
	return decimal.Zero, nil, ErrNoFeeData
}

// fetchTax resolves the tax amount for one transaction: the checkout
// session's total when a session id is present, otherwise a tax_amount
// metadata entry on the payment intent. Anything unparseable is treated as
// no tax.
func (s *Service) fetchTax(ctx context.Context, client stripeapi.Client, tx *domain.EventTicketTransaction, pi *stripeapi.PaymentIntent) *decimal.Decimal {
	if tx.StripeCheckoutSessionID != nil && *tx.StripeCheckoutSessionID != "" {
		cs, err := client.GetCheckoutSession(ctx, *tx.StripeCheckoutSessionID)
		s.pause(ctx)
		if err != nil {
			log.Printf("[FeesTax] Transaction %d: checkout session %s unavailable, trying metadata: %v",
				tx.ID, *tx.StripeCheckoutSessionID, err)
		} else if cs.AmountTaxCents != nil {
			d := centsToDollars(*cs.AmountTaxCents)
			return &d
		}
	}

	raw, ok := pi.Metadata["tax_amount"]
	if !ok || raw == "" {
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		log.Printf("[FeesTax] Transaction %d: tax_amount metadata %q is not a decimal, treating as null", tx.ID, raw)
		return nil
	}
	d = d.Round(2)
	return &d
}

// resolveWindow computes the purchase-date window for the run. The default
// window runs from the first of the current month to 14 days before today,
// the point at which provider fees are considered settled.
func (s *Service) resolveWindow(p Params) (time.Time, time.Time) {
	if p.UseDefaultDateRange {
		return defaultWindow(s.now().In(s.loc))
	}

	start := windowFloor
	if p.StartDate != nil {
		start = *p.StartDate
	}
	end := windowCeiling
	if p.EndDate != nil {
		end = *p.EndDate
	}
	return start, end
}

// defaultWindow is [first of now's month 00:00, now-14d 23:59:59.999999999].
func defaultWindow(now time.Time) (time.Time, time.Time) {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	cut := now.AddDate(0, 0, -14)
	end := time.Date(cut.Year(), cut.Month(), cut.Day(), 23, 59, 59, 999999999, now.Location())
	return start, end
}

// netPayout prefers the provider's settled net; without one it falls back to
// finalAmount - fee - tax, rounded half-up to cents.
func netPayout(finalAmount, fee decimal.Decimal, tax, providerNet *decimal.Decimal) decimal.Decimal {
	if providerNet != nil {
		return *providerNet
	}
	net := finalAmount.Sub(fee)
	if tax != nil {
		net = net.Sub(*tax)
	}
	return net.Round(2)
}

// centsToDollars converts provider cents to a scale-2 dollar amount,
// rounding half away from zero.
func centsToDollars(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).DivRound(decimal.NewFromInt(100), 2)
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
