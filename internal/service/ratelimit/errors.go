package ratelimit

import "errors"

var (
	// ErrRateLimited indicates no token was available for the call.
	ErrRateLimited = errors.New("provider rate limit reached")

	// ErrProviderUnavailable indicates the circuit breaker is open.
	ErrProviderUnavailable = errors.New("provider circuit open")
)
