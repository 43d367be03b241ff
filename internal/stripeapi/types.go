package stripeapi

// Subscription is the slice of a provider subscription the renewal
// reconciler consumes. Period bounds are epoch seconds.
type Subscription struct {
	ID                 string
	Status             string
	CurrentPeriodStart int64
	CurrentPeriodEnd   int64
	CancelAtPeriodEnd  bool
}

// BalanceTransaction carries the settled money movement for a charge.
type BalanceTransaction struct {
	FeeCents int64
	NetCents int64
}

// Charge is one charge with its balance transaction when expanded and
// settled.
type Charge struct {
	ID      string
	Balance *BalanceTransaction
}

// PaymentIntent is a payment intent with its latest charge expanded.
type PaymentIntent struct {
	ID           string
	Status       string
	LatestCharge *Charge
	Metadata     map[string]string
}

// CheckoutSession exposes the session tax total. AmountTaxCents is nil when
// the session carries no total details.
type CheckoutSession struct {
	ID             string
	AmountTaxCents *int64
}
