package domain

import (
	"time"
)

// SubscriptionStatus enumerates membership subscription states.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "ACTIVE"
	SubscriptionTrial     SubscriptionStatus = "TRIAL"
	SubscriptionPastDue   SubscriptionStatus = "PAST_DUE"
	SubscriptionCancelled SubscriptionStatus = "CANCELLED"
	SubscriptionExpired   SubscriptionStatus = "EXPIRED"
	SubscriptionSuspended SubscriptionStatus = "SUSPENDED"
)

// ReconciliationStatus tracks the outcome of the last provider reconciliation
// for one subscription row.
type ReconciliationStatus string

const (
	ReconciliationPending ReconciliationStatus = "PENDING"
	ReconciliationSuccess ReconciliationStatus = "SUCCESS"
	ReconciliationFailed  ReconciliationStatus = "FAILED"
)

// MembershipSubscription mirrors the subset of the platform's subscription
// columns this service reads and writes. CurrentPeriodStart/End are DATE
// columns; timestamps from the provider are reduced to dates before storage.
type MembershipSubscription struct {
	ID                   int64                `json:"id" db:"id"`
	TenantID             int64                `json:"tenant_id" db:"tenant_id"`
	UserProfileID        int64                `json:"user_profile_id" db:"user_profile_id"`
	PlanID               *int64               `json:"plan_id" db:"plan_id"`
	Status               SubscriptionStatus   `json:"status" db:"status"`
	CurrentPeriodStart   *time.Time           `json:"current_period_start" db:"current_period_start"`
	CurrentPeriodEnd     *time.Time           `json:"current_period_end" db:"current_period_end"`
	CancelAtPeriodEnd    bool                 `json:"cancel_at_period_end" db:"cancel_at_period_end"`
	StripeSubscriptionID *string              `json:"stripe_subscription_id" db:"stripe_subscription_id"`
	LastReconciliationAt *time.Time           `json:"last_reconciliation_at" db:"last_reconciliation_at"`
	ReconciliationStatus ReconciliationStatus `json:"reconciliation_status" db:"reconciliation_status"`
	ReconciliationError  *string              `json:"reconciliation_error" db:"reconciliation_error"`
}

// SubscriptionUpdate is the target state computed from the provider's
// canonical values for one subscription row.
type SubscriptionUpdate struct {
	Status             SubscriptionStatus
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
}

// ReconciliationOutcome enumerates the terminal result of one reconciliation attempt.
type ReconciliationOutcome string

const (
	ReconcileOutcomeSuccess ReconciliationOutcome = "SUCCESS"
	ReconcileOutcomeFailed  ReconciliationOutcome = "FAILED"
)

// SubscriptionReconciliationLog is the append-only audit row describing one
// reconciliation attempt, including the before/after values.
type SubscriptionReconciliationLog struct {
	ID                   int64                 `json:"id" db:"id"`
	TenantID             int64                 `json:"tenant_id" db:"tenant_id"`
	SubscriptionID       int64                 `json:"subscription_id" db:"subscription_id"`
	StripeSubscriptionID *string               `json:"stripe_subscription_id" db:"stripe_subscription_id"`
	PreviousStatus       SubscriptionStatus    `json:"previous_status" db:"previous_status"`
	NewStatus            SubscriptionStatus    `json:"new_status" db:"new_status"`
	PreviousPeriodEnd    *time.Time            `json:"previous_period_end" db:"previous_period_end"`
	NewPeriodEnd         *time.Time            `json:"new_period_end" db:"new_period_end"`
	Outcome              ReconciliationOutcome `json:"outcome" db:"outcome"`
	ErrorMessage         *string               `json:"error_message" db:"error_message"`
	JobExecutionID       int64                 `json:"job_execution_id" db:"job_execution_id"`
	CreatedAt            time.Time             `json:"created_at" db:"created_at"`
}
