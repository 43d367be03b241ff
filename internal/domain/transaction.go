package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus enumerates ticket transaction states. Only COMPLETED
// transactions are relevant to the fee/tax backfill.
type TransactionStatus string

const (
	TransactionCompleted TransactionStatus = "COMPLETED"
	TransactionPending   TransactionStatus = "PENDING"
	TransactionRefunded  TransactionStatus = "REFUNDED"
	TransactionCancelled TransactionStatus = "CANCELLED"
)

// EventTicketTransaction mirrors the subset of the platform's transaction
// columns this service reads and writes. Amounts are NUMERIC columns; a nil
// StripePaymentIntentID marks a manual (offline) payment.
type EventTicketTransaction struct {
	ID                      int64             `json:"id" db:"id"`
	TenantID                int64             `json:"tenant_id" db:"tenant_id"`
	EventID                 *int64            `json:"event_id" db:"event_id"`
	Status                  TransactionStatus `json:"status" db:"status"`
	PurchaseDate            time.Time         `json:"purchase_date" db:"purchase_date"`
	StripePaymentIntentID   *string           `json:"stripe_payment_intent_id" db:"stripe_payment_intent_id"`
	StripeCheckoutSessionID *string           `json:"stripe_checkout_session_id" db:"stripe_checkout_session_id"`
	FinalAmount             decimal.Decimal   `json:"final_amount" db:"final_amount"`
	StripeFeeAmount         *decimal.Decimal  `json:"stripe_fee_amount" db:"stripe_fee_amount"`
	StripeAmountTax         *decimal.Decimal  `json:"stripe_amount_tax" db:"stripe_amount_tax"`
	NetPayoutAmount         *decimal.Decimal  `json:"net_payout_amount" db:"net_payout_amount"`
}

// NeedsFeeBackfill reports whether the fee column is still empty. forceUpdate
// bypasses the check so finalized rows can be recomputed.
func (t *EventTicketTransaction) NeedsFeeBackfill(forceUpdate bool) bool {
	if forceUpdate {
		return true
	}
	return t.StripeFeeAmount == nil || t.StripeFeeAmount.IsZero()
}

// FeeTaxUpdate carries the three columns the backfill writes for one row.
type FeeTaxUpdate struct {
	StripeFeeAmount decimal.Decimal
	StripeAmountTax *decimal.Decimal
	NetPayoutAmount decimal.Decimal
}

// ManualPaymentSummary is one aggregated window of manual (offline) payments
// for a tenant. Rows are upserted by (TenantID, PeriodStart, PeriodEnd).
type ManualPaymentSummary struct {
	ID               int64           `json:"id" db:"id"`
	TenantID         int64           `json:"tenant_id" db:"tenant_id"`
	PeriodStart      time.Time       `json:"period_start" db:"period_start"`
	PeriodEnd        time.Time       `json:"period_end" db:"period_end"`
	TransactionCount int             `json:"transaction_count" db:"transaction_count"`
	TotalAmount      decimal.Decimal `json:"total_amount" db:"total_amount"`
	GeneratedAt      time.Time       `json:"generated_at" db:"generated_at"`
	JobExecutionID   int64           `json:"job_execution_id" db:"job_execution_id"`
}
