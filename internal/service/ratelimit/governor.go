package ratelimit

import (
	"context"
	"log"
	"time"

	"golang.org/x/time/rate"

	"github.com/gatherhq/batch-jobs-service/internal/pkg/metrics"
)

// Governor combines the token bucket, the optional shared Redis counter,
// and the circuit breaker for one provider surface.
type Governor struct {
	provider  string
	limiter   *rate.Limiter
	breaker   *Breaker
	shared    *RedisCounter
	isFailure func(error) bool
}

// Option customizes a Governor.
type Option func(*Governor)

// WithSharedCounter attaches a Redis-backed per-second counter. A nil
// counter is ignored.
func WithSharedCounter(c *RedisCounter) Option {
	return func(g *Governor) { g.shared = c }
}

// WithFailurePredicate controls which call errors count as breaker
// failures. The default treats every non-nil error as a failure; callers
// narrow it so permanent data errors do not open the circuit.
func WithFailurePredicate(fn func(error) bool) Option {
	return func(g *Governor) {
		if fn != nil {
			g.isFailure = fn
		}
	}
}

// NewGovernor creates a governor allowing perSecond calls with a burst of
// the same size.
func NewGovernor(provider string, perSecond int, breakerCfg BreakerConfig, opts ...Option) *Governor {
	if perSecond <= 0 {
		perSecond = 1
	}
	g := &Governor{
		provider:  provider,
		limiter:   rate.NewLimiter(rate.Limit(perSecond), perSecond),
		breaker:   NewBreaker(provider, breakerCfg),
		isFailure: func(err error) bool { return err != nil },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// TryAcquire takes one token without blocking. It returns ErrRateLimited
// when the bucket is empty or the shared counter is over the limit.
func (g *Governor) TryAcquire(ctx context.Context) error {
	return g.TryAcquireN(ctx, 1)
}

// TryAcquireN takes n tokens at once, for chunked sends.
func (g *Governor) TryAcquireN(ctx context.Context, n int) error {
	if !g.limiter.AllowN(time.Now(), n) {
		metrics.RateLimitDenied.WithLabelValues(g.provider).Inc()
		return ErrRateLimited
	}
	if g.shared != nil && !g.shared.Allow(ctx, g.provider, n) {
		metrics.RateLimitDenied.WithLabelValues(g.provider).Inc()
		return ErrRateLimited
	}
	return nil
}

// Do runs fn behind the breaker and the limiter. Breaker-open and
// rate-limited calls return before fn runs; neither outcome is recorded in
// the breaker window.
func (g *Governor) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return g.DoN(ctx, 1, fn)
}

// DoN is Do for calls that consume n tokens at once, such as a chunked
// batch send.
func (g *Governor) DoN(ctx context.Context, n int, fn func(ctx context.Context) error) error {
	if err := g.breaker.Allow(); err != nil {
		log.Printf("[Governor] %s circuit %s, refusing call", g.provider, g.breaker.State())
		return err
	}
	if err := g.TryAcquireN(ctx, n); err != nil {
		// The probe slot must be released or the breaker stays stuck.
		g.breaker.releaseProbe()
		return err
	}

	err := fn(ctx)
	g.breaker.Record(g.isFailure(err))
	return err
}

// Breaker exposes the underlying breaker, mainly for health reporting.
func (g *Governor) Breaker() *Breaker { return g.breaker }
