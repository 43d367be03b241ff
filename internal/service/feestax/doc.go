// Package feestax backfills Stripe fee, tax, and net payout amounts onto
// completed ticket transactions. Fees settle at the provider roughly two
// weeks after purchase, so the default scan window stops 14 days short of
// today; rows are updated idempotently and reruns skip anything already
// filled unless forced.
package feestax
