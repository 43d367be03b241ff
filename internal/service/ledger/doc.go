// Package ledger records job executions.
//
// Every triggered job writes a row before any work starts and finalizes it
// with counts and duration when the run ends. The ledger is the source of
// truth for whether a run happened; the HTTP status endpoints read from it.
package ledger
