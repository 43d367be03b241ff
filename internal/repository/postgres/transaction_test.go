package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherhq/batch-jobs-service/internal/domain"
	"github.com/gatherhq/batch-jobs-service/internal/service/feestax"
)

var (
	windowStart = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2025, 2, 28, 23, 59, 59, 0, time.UTC)
)

func transactionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "tenant_id", "event_id", "status", "purchase_date",
		"stripe_payment_intent_id", "stripe_checkout_session_id",
		"final_amount", "stripe_fee_amount", "stripe_amount_tax", "net_payout_amount",
	})
}

func TestTransactionListTenantIDsKeepsFilledRowsInScope(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransactionRepo(db)

	// Only the window bounds are parameters: tenants whose rows are all
	// filled still show up so the run can report them as skipped.
	mock.ExpectQuery("SELECT DISTINCT tenant_id FROM event_ticket_transactions").
		WithArgs(windowStart, windowEnd).
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id"}).
			AddRow(int64(3)).AddRow(int64(8)))

	ids, err := repo.ListTenantIDs(context.Background(), feestax.CandidateQuery{
		Start: windowStart,
		End:   windowEnd,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 8}, ids)
}

func TestTransactionListTenantIDsScopesToEvent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransactionRepo(db)

	eventID := int64(12)
	mock.ExpectQuery("SELECT DISTINCT tenant_id FROM event_ticket_transactions(.+)AND event_id").
		WithArgs(windowStart, windowEnd, eventID).
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id"}).AddRow(int64(3)))

	ids, err := repo.ListTenantIDs(context.Background(), feestax.CandidateQuery{
		EventID: &eventID,
		Start:   windowStart,
		End:     windowEnd,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, ids)
}

func TestTransactionCountFilled(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransactionRepo(db)

	mock.ExpectQuery("SELECT COUNT(.+)stripe_fee_amount IS NOT NULL").
		WithArgs(windowStart, windowEnd, int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(9))

	n, err := repo.CountFilled(context.Background(), 3, feestax.CandidateQuery{
		Start: windowStart,
		End:   windowEnd,
	})
	require.NoError(t, err)
	assert.Equal(t, 9, n)
}

func TestTransactionListCandidatesSkipsFilledByDefault(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransactionRepo(db)

	intentID := "pi_123"
	purchase := time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("stripe_fee_amount IS NULL OR stripe_fee_amount = 0").
		WithArgs(windowStart, windowEnd, int64(3), int64(0), 100).
		WillReturnRows(transactionRows().AddRow(
			int64(501), int64(3), int64(12), "COMPLETED", purchase,
			intentID, nil, "150.00", nil, nil, nil,
		))

	out, err := repo.ListCandidates(context.Background(), 3, feestax.CandidateQuery{
		Start: windowStart,
		End:   windowEnd,
		Limit: 100,
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(501), out[0].ID)
	assert.True(t, out[0].FinalAmount.Equal(decimal.NewFromFloat(150)))
	assert.Nil(t, out[0].StripeFeeAmount)
	assert.Nil(t, out[0].StripeAmountTax)
}

func TestTransactionListCandidatesForceUpdateIncludesFilled(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransactionRepo(db)

	intentID := "pi_456"
	purchase := time.Date(2025, 2, 11, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT(.+)FROM event_ticket_transactions(.+)ORDER BY id LIMIT").
		WithArgs(windowStart, windowEnd, int64(3), int64(0), 100).
		WillReturnRows(transactionRows().AddRow(
			int64(502), int64(3), nil, "COMPLETED", purchase,
			intentID, nil, "80.00", "2.62", "0.00", "77.38",
		))

	out, err := repo.ListCandidates(context.Background(), 3, feestax.CandidateQuery{
		Start:       windowStart,
		End:         windowEnd,
		ForceUpdate: true,
		Limit:       100,
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].StripeFeeAmount)
	assert.True(t, out[0].StripeFeeAmount.Equal(decimal.NewFromFloat(2.62)))
	require.NotNil(t, out[0].NetPayoutAmount)
	assert.True(t, out[0].NetPayoutAmount.Equal(decimal.NewFromFloat(77.38)))
}

func TestTransactionGetByIDScansNullableAmounts(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransactionRepo(db)

	intentID := "pi_789"
	purchase := time.Date(2025, 2, 12, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT(.+)FROM event_ticket_transactions WHERE id").
		WithArgs(int64(503)).
		WillReturnRows(transactionRows().AddRow(
			int64(503), int64(3), nil, "COMPLETED", purchase,
			intentID, "cs_abc", "99.00", nil, nil, nil,
		))

	tx, err := repo.GetByID(context.Background(), 503)
	require.NoError(t, err)
	assert.Nil(t, tx.EventID)
	assert.Nil(t, tx.StripeFeeAmount)
	require.NotNil(t, tx.StripeCheckoutSessionID)
	assert.Equal(t, "cs_abc", *tx.StripeCheckoutSessionID)
	assert.True(t, tx.NeedsFeeBackfill(false))
}

func TestTransactionApplyFeeTax(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransactionRepo(db)

	fee := decimal.NewFromFloat(3.17)
	tax := decimal.NewFromFloat(8.25)
	net := decimal.NewFromFloat(88.58)

	mock.ExpectExec("UPDATE event_ticket_transactions").
		WithArgs(int64(503), fee, toNullDecimal(&tax), net).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.ApplyFeeTax(context.Background(), 503, domain.FeeTaxUpdate{
		StripeFeeAmount: fee,
		StripeAmountTax: &tax,
		NetPayoutAmount: net,
	})
	assert.NoError(t, err)
}

func TestTransactionApplyFeeTaxMissingRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransactionRepo(db)

	mock.ExpectExec("UPDATE event_ticket_transactions").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.ApplyFeeTax(context.Background(), 999, domain.FeeTaxUpdate{})
	assert.ErrorContains(t, err, "not found")
}

func TestTransactionAggregateManualPayments(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransactionRepo(db)

	mock.ExpectQuery("SELECT COUNT(.+)stripe_payment_intent_id IS NULL").
		WithArgs(int64(3), windowStart, windowEnd).
		WillReturnRows(sqlmock.NewRows([]string{"count", "sum"}).AddRow(17, "1234.50"))

	agg, err := repo.AggregateManualPayments(context.Background(), 3, windowStart, windowEnd)
	require.NoError(t, err)
	assert.Equal(t, 17, agg.TransactionCount)
	assert.True(t, agg.TotalAmount.Equal(decimal.NewFromFloat(1234.50)))
}

func TestTransactionUpsertSummaryReturnsID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransactionRepo(db)

	generated := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	total := decimal.NewFromFloat(1234.50)

	mock.ExpectQuery("INSERT INTO manual_payment_summaries(.+)ON CONFLICT").
		WithArgs(int64(3), windowStart, windowEnd, 17, total, generated, int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))

	id, err := repo.UpsertSummary(context.Background(), &domain.ManualPaymentSummary{
		TenantID:         3,
		PeriodStart:      windowStart,
		PeriodEnd:        windowEnd,
		TransactionCount: 17,
		TotalAmount:      total,
		GeneratedAt:      generated,
		JobExecutionID:   7,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)
}
