package credvault

import "errors"

var (
	// ErrTenantUnconfigured indicates the tenant has no credential row for
	// the requested provider.
	ErrTenantUnconfigured = errors.New("no provider credential for tenant")

	// ErrKeyNotConfigured indicates the credential row exists but carries
	// neither an encrypted secret nor a config fallback.
	ErrKeyNotConfigured = errors.New("provider credential has no secret key")

	// ErrUndecryptable indicates ciphertext that cannot be decrypted with
	// the configured encryption key, usually after a key rotation.
	ErrUndecryptable = errors.New("provider credential cannot be decrypted")
)
