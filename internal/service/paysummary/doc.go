// Package paysummary rolls up manual (offline) ticket payments into one
// summary row per tenant and window. Manual payments are COMPLETED
// transactions without a provider payment intent, invisible to the fee
// backfill; the summary gives finance a periodic view of them.
package paysummary
