// Package ratelimit guards outbound provider traffic.
//
// Each provider surface (Stripe, SES) gets a Governor that combines a
// non-blocking token bucket with a sliding-window circuit breaker. Limiter
// rejections surface as ErrRateLimited and are never recorded as breaker
// failures; only real call outcomes move the breaker.
//
// When Redis is configured the governor also checks a shared per-second
// counter so replicas stay under the provider limit together. Redis errors
// fail open to the local bucket.
package ratelimit
