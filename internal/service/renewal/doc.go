// Package renewal reconciles membership subscriptions against the payment
// provider's canonical state. Candidates whose period end falls inside the
// renewal window are fetched from Stripe one at a time, their local status
// and period columns are rewritten, and every attempt is recorded in an
// append-only reconciliation log.
package renewal
