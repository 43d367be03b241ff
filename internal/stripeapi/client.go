package stripeapi

import (
	"context"
	"fmt"

	stripe "github.com/stripe/stripe-go/v81"
	stripeclient "github.com/stripe/stripe-go/v81/client"

	"github.com/gatherhq/batch-jobs-service/internal/pkg/metrics"
	"github.com/gatherhq/batch-jobs-service/internal/service/ratelimit"
)

// Client is the capability surface the payment workflows need.
type Client interface {
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error)
	ListCharges(ctx context.Context, paymentIntentID string, limit int) ([]Charge, error)
	GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error)
}

// Factory builds a Client for one tenant's secret key.
type Factory func(secretKey string) Client

// NewFactory returns a factory whose clients share the given governor.
func NewFactory(governor *ratelimit.Governor) Factory {
	return func(secretKey string) Client {
		sc := &stripeclient.API{}
		sc.Init(secretKey, nil)
		return &apiClient{sc: sc, governor: governor}
	}
}

type apiClient struct {
	sc       *stripeclient.API
	governor *ratelimit.Governor
}

func (c *apiClient) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	var sub *stripe.Subscription
	err := c.call(ctx, "get_subscription", func(ctx context.Context) error {
		params := &stripe.SubscriptionParams{Params: stripe.Params{Context: ctx}}
		var err error
		sub, err = c.sc.Subscriptions.Get(id, params)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("stripe: get subscription %s: %w", id, err)
	}
	return mapSubscription(sub), nil
}

func (c *apiClient) GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	var pi *stripe.PaymentIntent
	err := c.call(ctx, "get_payment_intent", func(ctx context.Context) error {
		params := &stripe.PaymentIntentParams{Params: stripe.Params{Context: ctx}}
		params.AddExpand("latest_charge.balance_transaction")
		var err error
		pi, err = c.sc.PaymentIntents.Get(id, params)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("stripe: get payment intent %s: %w", id, err)
	}
	return mapPaymentIntent(pi), nil
}

func (c *apiClient) ListCharges(ctx context.Context, paymentIntentID string, limit int) ([]Charge, error) {
	if limit <= 0 {
		limit = 10
	}
	var charges []Charge
	err := c.call(ctx, "list_charges", func(ctx context.Context) error {
		params := &stripe.ChargeListParams{
			ListParams:    stripe.ListParams{Context: ctx, Limit: stripe.Int64(int64(limit))},
			PaymentIntent: stripe.String(paymentIntentID),
		}
		params.AddExpand("data.balance_transaction")

		iter := c.sc.Charges.List(params)
		for iter.Next() {
			charges = append(charges, mapCharge(iter.Charge()))
		}
		return iter.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("stripe: list charges for %s: %w", paymentIntentID, err)
	}
	return charges, nil
}

func (c *apiClient) GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	var cs *stripe.CheckoutSession
	err := c.call(ctx, "get_checkout_session", func(ctx context.Context) error {
		params := &stripe.CheckoutSessionParams{Params: stripe.Params{Context: ctx}}
		var err error
		cs, err = c.sc.CheckoutSessions.Get(id, params)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("stripe: get checkout session %s: %w", id, err)
	}
	return mapCheckoutSession(cs), nil
}

func (c *apiClient) call(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	var err error
	if c.governor != nil {
		err = c.governor.Do(ctx, fn)
	} else {
		err = fn(ctx)
	}

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	metrics.StripeCalls.WithLabelValues(operation, outcome).Inc()
	return err
}

func mapSubscription(s *stripe.Subscription) *Subscription {
	if s == nil {
		return nil
	}
	return &Subscription{
		ID:                 s.ID,
		Status:             string(s.Status),
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
	}
}

func mapPaymentIntent(pi *stripe.PaymentIntent) *PaymentIntent {
	if pi == nil {
		return nil
	}
	mapped := &PaymentIntent{
		ID:       pi.ID,
		Status:   string(pi.Status),
		Metadata: pi.Metadata,
	}
	if pi.LatestCharge != nil {
		charge := mapCharge(pi.LatestCharge)
		mapped.LatestCharge = &charge
	}
	return mapped
}

func mapCharge(ch *stripe.Charge) Charge {
	mapped := Charge{ID: ch.ID}
	if ch.BalanceTransaction != nil {
		mapped.Balance = &BalanceTransaction{
			FeeCents: ch.BalanceTransaction.Fee,
			NetCents: ch.BalanceTransaction.Net,
		}
	}
	return mapped
}

func mapCheckoutSession(cs *stripe.CheckoutSession) *CheckoutSession {
	if cs == nil {
		return nil
	}
	mapped := &CheckoutSession{ID: cs.ID}
	if cs.TotalDetails != nil {
		tax := cs.TotalDetails.AmountTax
		mapped.AmountTaxCents = &tax
	}
	return mapped
}
