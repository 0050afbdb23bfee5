// Package resilience provides backend failover for per-frame VAD inference.
//
// The central types are [Breaker], a three-state circuit breaker
// (closed → open → half-open) sized for frame-rate call volumes, and
// [DetectorChain], a vad.Detector that routes each frame to the first
// backend whose breaker admits it. A neural backend that starts failing
// mid-stream is bypassed in favour of the energy fallback within a handful
// of frames, and probed again after the reset timeout.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by [Breaker.Execute] when the breaker has
// tripped and the reset timeout has not yet elapsed.
var ErrBreakerOpen = errors.New("resilience: breaker is open")

// BreakerState is the operating mode of a [Breaker].
type BreakerState int

const (
	// BreakerClosed forwards every call.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects calls with [ErrBreakerOpen] until the reset
	// timeout elapses.
	BreakerOpen

	// BreakerHalfOpen admits a bounded number of probe calls to decide
	// whether the backend has recovered.
	BreakerHalfOpen
)

// String returns the human-readable name of the state.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds the trip and recovery tuning for a [Breaker].
type BreakerConfig struct {
	// Name labels the breaker in log messages.
	Name string

	// MaxFailures is the number of consecutive failures before the
	// breaker trips. Default: 5.
	MaxFailures int

	// ResetTimeout is how long a tripped breaker waits before probing the
	// backend again. Default: 30s.
	ResetTimeout time.Duration

	// ProbeBudget is how many successful half-open probes close the
	// breaker; one failed probe re-opens it. Default: 3.
	ProbeBudget int
}

// Breaker is a consecutive-failure circuit breaker.
type Breaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	probeBudget  int

	mu         sync.Mutex
	state      BreakerState
	failures   int
	lastTrip   time.Time
	probes     int
	probeFails int
}

// NewBreaker creates a [Breaker], substituting defaults for zero-value
// config fields.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.ProbeBudget <= 0 {
		cfg.ProbeBudget = 3
	}
	return &Breaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		probeBudget:  cfg.ProbeBudget,
		state:        BreakerClosed,
	}
}

// Execute runs fn if the breaker admits the call. Open breakers return
// [ErrBreakerOpen] without invoking fn; half-open breakers admit up to the
// probe budget.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case BreakerOpen:
		if time.Since(b.lastTrip) < b.resetTimeout {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.state = BreakerHalfOpen
		b.probes = 0
		b.probeFails = 0
		slog.Info("breaker probing backend", "name", b.name)

	case BreakerHalfOpen:
		if b.probes >= b.probeBudget {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
	}

	probing := b.state == BreakerHalfOpen
	if probing {
		b.probes++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure(probing)
	} else {
		b.onSuccess(probing)
	}
	return err
}

// onFailure is called with b.mu held.
func (b *Breaker) onFailure(probing bool) {
	b.lastTrip = time.Now()

	if probing {
		// One failed probe re-opens immediately.
		b.probeFails++
		b.state = BreakerOpen
		b.failures = b.maxFailures
		slog.Warn("breaker re-opened, backend still failing", "name", b.name)
		return
	}

	b.failures++
	if b.failures >= b.maxFailures {
		b.state = BreakerOpen
		slog.Warn("breaker tripped",
			"name", b.name, "consecutive_failures", b.failures)
	}
}

// onSuccess is called with b.mu held.
func (b *Breaker) onSuccess(probing bool) {
	if probing {
		if b.probes-b.probeFails >= b.probeBudget {
			b.state = BreakerClosed
			b.failures = 0
			b.probes = 0
			b.probeFails = 0
			slog.Info("breaker closed, backend recovered", "name", b.name)
		}
		return
	}
	b.failures = 0
}

// State returns the breaker's state. A tripped breaker whose reset timeout
// has elapsed reports [BreakerHalfOpen]; the transition itself happens on
// the next [Breaker.Execute].
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && time.Since(b.lastTrip) >= b.resetTimeout {
		return BreakerHalfOpen
	}
	return b.state
}

// Reset forces the breaker back to closed, clearing all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.probes = 0
	b.probeFails = 0
}
