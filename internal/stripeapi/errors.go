package stripeapi

import (
	"errors"
	"net/http"

	stripe "github.com/stripe/stripe-go/v81"
)

// IsTransient reports whether a call is worth retrying on a later run:
// rate limits, 5xx responses, and transport failures. Permanent request
// errors (bad ids, missing resources) return false so they do not open the
// circuit breaker.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == http.StatusTooManyRequests {
			return true
		}
		return stripeErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	// No structured provider error means the request never completed.
	return true
}

// IsNotFound reports whether the provider says the resource does not exist.
func IsNotFound(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.Code == stripe.ErrorCodeResourceMissing ||
			stripeErr.HTTPStatusCode == http.StatusNotFound
	}
	return false
}
