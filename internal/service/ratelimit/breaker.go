package ratelimit

import (
	"sync"
	"time"

	"github.com/gatherhq/batch-jobs-service/internal/pkg/metrics"
)

// BreakerState represents the state of the circuit breaker.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateHalfOpen
	StateOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// BreakerConfig configures the sliding-window breaker.
type BreakerConfig struct {
	Window      int           // Number of most recent outcomes considered
	MinCalls    int           // Outcomes required before the rate is evaluated
	FailureRate float64       // Open when failures/window reaches this ratio
	OpenFor     time.Duration // Time to stay open before a half-open probe
}

// DefaultBreakerConfig returns the production parameters.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Window:      100,
		MinCalls:    10,
		FailureRate: 0.5,
		OpenFor:     30 * time.Second,
	}
}

// Breaker is a sliding-window circuit breaker. Outcomes land in a ring
// buffer; the failure rate over the buffer decides transitions. While open,
// calls are refused until OpenFor elapses, then a single half-open probe is
// let through. A successful probe closes the breaker and resets the window,
// a failed one reopens it.
type Breaker struct {
	provider string
	cfg      BreakerConfig

	mu       sync.Mutex
	outcomes []bool // true = failure
	next     int
	filled   int
	state    BreakerState
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a breaker for one provider surface.
func NewBreaker(provider string, cfg BreakerConfig) *Breaker {
	if cfg.Window <= 0 {
		cfg = DefaultBreakerConfig()
	}
	b := &Breaker{
		provider: provider,
		cfg:      cfg,
		outcomes: make([]bool, cfg.Window),
	}
	metrics.CircuitState.WithLabelValues(provider).Set(0)
	return b
}

// Allow reports whether a call may proceed. It returns
// ErrProviderUnavailable while the breaker is open or while a half-open
// probe is already in flight.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if time.Since(b.openedAt) < b.cfg.OpenFor {
			return ErrProviderUnavailable
		}
		b.setState(StateHalfOpen)
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return ErrProviderUnavailable
		}
		b.probing = true
		return nil
	default:
		return nil
	}
}

// Record feeds one call outcome into the window.
func (b *Breaker) Record(failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.probing = false
		if failed {
			b.trip()
		} else {
			b.reset()
			b.setState(StateClosed)
		}
		return
	}

	b.outcomes[b.next] = failed
	b.next = (b.next + 1) % len(b.outcomes)
	if b.filled < len(b.outcomes) {
		b.filled++
	}

	if b.state == StateClosed && b.filled >= b.cfg.MinCalls {
		failures := 0
		for i := 0; i < b.filled; i++ {
			if b.outcomes[i] {
				failures++
			}
		}
		if float64(failures)/float64(b.filled) >= b.cfg.FailureRate {
			b.trip()
		}
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// releaseProbe frees the half-open probe slot when the limiter rejected the
// call before it ran, so no outcome will be recorded.
func (b *Breaker) releaseProbe() {
	b.mu.Lock()
	b.probing = false
	b.mu.Unlock()
}

func (b *Breaker) trip() {
	b.openedAt = time.Now()
	b.setState(StateOpen)
}

func (b *Breaker) reset() {
	b.outcomes = make([]bool, b.cfg.Window)
	b.next = 0
	b.filled = 0
}

func (b *Breaker) setState(s BreakerState) {
	b.state = s
	metrics.CircuitState.WithLabelValues(b.provider).Set(float64(s))
}
