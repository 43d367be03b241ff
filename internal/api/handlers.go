package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gatherhq/batch-jobs-service/internal/domain"
	"github.com/gatherhq/batch-jobs-service/internal/pkg/httputil"
	"github.com/gatherhq/batch-jobs-service/internal/service/ledger"
	"github.com/gatherhq/batch-jobs-service/internal/worker"
)

// Triggerer accepts batch job trigger requests. Implemented by
// worker.Orchestrator.
type Triggerer interface {
	Trigger(ctx context.Context, jobType domain.JobType, p worker.Params) (worker.TriggerResult, error)
}

// LedgerReader serves the execution query endpoints. Implemented by
// ledger.Service.
type LedgerReader interface {
	Get(ctx context.Context, id int64) (*domain.JobExecution, error)
	List(ctx context.Context, filter ledger.ListFilter) ([]domain.JobExecution, error)
}

// Handlers contains all HTTP handlers.
type Handlers struct {
	trigger Triggerer
	ledger  LedgerReader
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(trigger Triggerer, ledgerReader LedgerReader) *Handlers {
	return &Handlers{trigger: trigger, ledger: ledgerReader}
}

// jobResponse is the common trigger response envelope. Accepted jobs carry
// zero counts; the real numbers land on the ledger row at completion.
type jobResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	JobExecutionID *int64 `json:"jobExecutionId,omitempty"`
	CorrelationID  string `json:"correlationId,omitempty"`
	ProcessedCount *int   `json:"processedCount,omitempty"`
	SuccessCount   *int   `json:"successCount,omitempty"`
	FailedCount    *int   `json:"failedCount,omitempty"`
	SkippedCount   *int   `json:"skippedCount,omitempty"`
	DurationMs     *int64 `json:"durationMs,omitempty"`
}

func accepted(w http.ResponseWriter, jobType domain.JobType, res worker.TriggerResult) {
	zero := 0
	httputil.Accepted(w, jobResponse{
		Success:        true,
		Message:        fmt.Sprintf("%s job accepted", jobType),
		JobExecutionID: &res.JobExecutionID,
		CorrelationID:  res.CorrelationID,
		ProcessedCount: &zero,
		SuccessCount:   &zero,
		FailedCount:    &zero,
		SkippedCount:   &zero,
	})
}

// writeTriggerError maps orchestrator errors onto HTTP statuses.
func writeTriggerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, worker.ErrInvalidParams):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrNotRunning):
		httputil.Unavailable(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}

// parseDate accepts plain dates and RFC 3339 timestamps.
func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, want YYYY-MM-DD or RFC 3339", s)
	}
	return &t, nil
}

type renewalRequest struct {
	TenantID             *int64 `json:"tenantId"`
	BatchSize            int    `json:"batchSize"`
	MaxSubscriptions     int    `json:"maxSubscriptions"`
	StripeSubscriptionID string `json:"stripeSubscriptionId"`
}

// TriggerSubscriptionRenewal launches the Stripe renewal reconciliation job.
func (h *Handlers) TriggerSubscriptionRenewal(w http.ResponseWriter, r *http.Request) {
	var req renewalRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	res, err := h.trigger.Trigger(r.Context(), domain.JobSubscriptionRenewal, worker.Params{
		TenantID:             req.TenantID,
		BatchSize:            req.BatchSize,
		MaxSubscriptions:     req.MaxSubscriptions,
		StripeSubscriptionID: req.StripeSubscriptionID,
	})
	if err != nil {
		writeTriggerError(w, err)
		return
	}
	accepted(w, domain.JobSubscriptionRenewal, res)
}

type emailRequest struct {
	TenantID        *int64   `json:"tenantId"`
	TemplateID      *int64   `json:"templateId"`
	BatchSize       int      `json:"batchSize"`
	MaxEmails       int      `json:"maxEmails"`
	RecipientEmails []string `json:"recipientEmails"`
	RecipientType   string   `json:"recipientType"`
	UserID          *int64   `json:"userId"`
}

// TriggerEmailBatch launches a promotion email batch.
func (h *Handlers) TriggerEmailBatch(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	res, err := h.trigger.Trigger(r.Context(), domain.JobEmailBatch, worker.Params{
		TenantID:        req.TenantID,
		TemplateID:      req.TemplateID,
		BatchSize:       req.BatchSize,
		MaxEmails:       req.MaxEmails,
		RecipientEmails: req.RecipientEmails,
		RecipientType:   domain.RecipientType(req.RecipientType),
		UserID:          req.UserID,
	})
	if err != nil {
		writeTriggerError(w, err)
		return
	}
	accepted(w, domain.JobEmailBatch, res)
}

type testEmailRequest struct {
	TenantID       *int64 `json:"tenantId"`
	TemplateID     *int64 `json:"templateId"`
	RecipientEmail string `json:"recipientEmail"`
	UserID         *int64 `json:"userId"`
}

// TriggerTestEmail sends one template render to a single recipient.
func (h *Handlers) TriggerTestEmail(w http.ResponseWriter, r *http.Request) {
	var req testEmailRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	res, err := h.trigger.Trigger(r.Context(), domain.JobPromotionTestEmail, worker.Params{
		TenantID:       req.TenantID,
		TemplateID:     req.TemplateID,
		RecipientEmail: req.RecipientEmail,
		UserID:         req.UserID,
	})
	if err != nil {
		writeTriggerError(w, err)
		return
	}
	accepted(w, domain.JobPromotionTestEmail, res)
}

type feesTaxRequest struct {
	TenantID            *int64 `json:"tenantId"`
	EventID             *int64 `json:"eventId"`
	StartDate           string `json:"startDate"`
	EndDate             string `json:"endDate"`
	ForceUpdate         bool   `json:"forceUpdate"`
	UseDefaultDateRange bool   `json:"useDefaultDateRange"`
	BatchSize           int    `json:"batchSize"`
}

// TriggerFeesTaxBackfill launches the Stripe fee/tax backfill job.
func (h *Handlers) TriggerFeesTaxBackfill(w http.ResponseWriter, r *http.Request) {
	var req feesTaxRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	res, err := h.trigger.Trigger(r.Context(), domain.JobFeesTaxBackfill, worker.Params{
		TenantID:            req.TenantID,
		EventID:             req.EventID,
		StartDate:           start,
		EndDate:             end,
		ForceUpdate:         req.ForceUpdate,
		UseDefaultDateRange: req.UseDefaultDateRange,
		BatchSize:           req.BatchSize,
	})
	if err != nil {
		writeTriggerError(w, err)
		return
	}
	accepted(w, domain.JobFeesTaxBackfill, res)
}

type contactFormRequest struct {
	TenantID    *int64 `json:"tenantId"`
	SenderName  string `json:"senderName"`
	SenderEmail string `json:"senderEmail"`
	Subject     string `json:"subject"`
	Message     string `json:"message"`
}

// TriggerContactForm relays a contact form submission to the tenant.
func (h *Handlers) TriggerContactForm(w http.ResponseWriter, r *http.Request) {
	var req contactFormRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	res, err := h.trigger.Trigger(r.Context(), domain.JobContactFormEmail, worker.Params{
		TenantID:    req.TenantID,
		SenderName:  req.SenderName,
		SenderEmail: req.SenderEmail,
		Subject:     req.Subject,
		Message:     req.Message,
	})
	if err != nil {
		writeTriggerError(w, err)
		return
	}
	accepted(w, domain.JobContactFormEmail, res)
}

type paymentSummaryRequest struct {
	TenantID  *int64 `json:"tenantId"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	SendEmail bool   `json:"sendEmail"`
}

// TriggerPaymentSummary launches the manual payment summary job.
func (h *Handlers) TriggerPaymentSummary(w http.ResponseWriter, r *http.Request) {
	var req paymentSummaryRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	res, err := h.trigger.Trigger(r.Context(), domain.JobManualPaymentSummary, worker.Params{
		TenantID:  req.TenantID,
		StartDate: start,
		EndDate:   end,
		SendEmail: req.SendEmail,
	})
	if err != nil {
		writeTriggerError(w, err)
		return
	}
	accepted(w, domain.JobManualPaymentSummary, res)
}

// HealthCheck reports service liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Batch Jobs Service is running"))
}

// GetExecution returns one ledger row by id.
func (h *Handlers) GetExecution(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httputil.BadRequest(w, "invalid execution id")
		return
	}
	exec, err := h.ledger.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			httputil.NotFound(w, fmt.Sprintf("execution %d not found", id))
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, exec)
}

// ListExecutions returns recent ledger rows, newest first, optionally
// filtered by jobType, status, and tenantId.
func (h *Handlers) ListExecutions(w http.ResponseWriter, r *http.Request) {
	var filter ledger.ListFilter

	if v := r.URL.Query().Get("jobType"); v != "" {
		jobType := domain.JobType(v)
		if !jobType.Valid() {
			httputil.BadRequest(w, fmt.Sprintf("unknown job type %q", v))
			return
		}
		filter.JobType = &jobType
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status := domain.JobStatus(v)
		filter.Status = &status
	}
	if v := r.URL.Query().Get("tenantId"); v != "" {
		tenantID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httputil.BadRequest(w, "invalid tenantId")
			return
		}
		filter.TenantID = &tenantID
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			httputil.BadRequest(w, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	executions, err := h.ledger.List(r.Context(), filter)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"executions": executions,
		"count":      len(executions),
	})
}
