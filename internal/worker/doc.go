// Package worker runs batch jobs on a fixed-size pool. Triggers validate,
// durably record a ledger row, enqueue, and return immediately; the pool
// executes each job under a deadline and finalizes its ledger row exactly
// once, even on panic or shutdown.
package worker
