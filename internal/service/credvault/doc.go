// Package credvault decrypts per-tenant provider secrets.
//
// Secrets are stored AES-256-GCM encrypted on provider credential rows and
// are decrypted with a process-wide key supplied via configuration. Decrypted
// values live only in the in-memory per-run cache, which the fee/tax workflow
// clears at the start of every run so rotated keys are picked up.
//
// Repository implementations live in repository/postgres/.
package credvault
