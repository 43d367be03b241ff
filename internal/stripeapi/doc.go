// Package stripeapi wraps the Stripe SDK behind a small capability
// interface. Clients are built per tenant from the vault-decrypted secret
// key; every call runs through the shared rate governor. Workflows consume
// the local result types, never SDK structs, so tests inject stubs.
package stripeapi
