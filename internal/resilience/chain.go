package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tkoehlman/vadgate/pkg/vad"
)

// ErrAllBackendsFailed is returned by [DetectorChain.Process] when every
// backend in the chain failed or had an open breaker.
var ErrAllBackendsFailed = errors.New("resilience: all VAD backends failed")

// ChainConfig configures the per-backend breaker created for each entry in
// a [DetectorChain].
type ChainConfig struct {
	// MaxFailures, ResetTimeout, and ProbeBudget configure each entry's
	// breaker; see [BreakerConfig] for defaults.
	MaxFailures  int
	ResetTimeout time.Duration
	ProbeBudget  int
}

// chainEntry pairs a detector with its dedicated breaker.
type chainEntry struct {
	name    string
	det     vad.Detector
	breaker *Breaker
}

// DetectorChain is a [vad.Detector] that forwards each frame to the first
// backend whose breaker admits the call, in registration order. A backend
// that fails on consecutive frames trips its breaker and is skipped until
// its reset timeout elapses, so a broken neural model degrades to the
// energy fallback instead of degrading every frame to silence.
//
// DetectorChain is safe for concurrent use, though the pipeline calls it
// from a single goroutine.
type DetectorChain struct {
	cfg     ChainConfig
	entries []chainEntry
}

// NewDetectorChain creates a chain with primary as its first backend.
// Fallbacks are registered via [DetectorChain.Add].
func NewDetectorChain(primaryName string, primary vad.Detector, cfg ChainConfig) *DetectorChain {
	c := &DetectorChain{cfg: cfg}
	c.Add(primaryName, primary)
	return c
}

// Add appends a fallback backend. Fallbacks are tried in the order added,
// after the primary.
func (c *DetectorChain) Add(name string, det vad.Detector) {
	c.entries = append(c.entries, chainEntry{
		name: name,
		det:  det,
		breaker: NewBreaker(BreakerConfig{
			Name:         name,
			MaxFailures:  c.cfg.MaxFailures,
			ResetTimeout: c.cfg.ResetTimeout,
			ProbeBudget:  c.cfg.ProbeBudget,
		}),
	})
}

// Process routes the frame to the first admitting backend. Returns
// [ErrAllBackendsFailed] wrapping the last error when no backend produced a
// probability.
func (c *DetectorChain) Process(frame []int16) (float64, error) {
	var lastErr error
	for i := range c.entries {
		e := &c.entries[i]
		var prob float64
		err := e.breaker.Execute(func() error {
			var perr error
			prob, perr = e.det.Process(frame)
			return perr
		})
		if err == nil {
			return prob, nil
		}
		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			slog.Debug("skipping VAD backend, breaker open", "backend", e.name)
		} else {
			slog.Warn("VAD backend failed, trying next",
				"backend", e.name, "err", err)
		}
	}
	return 0, fmt.Errorf("%w: %v", ErrAllBackendsFailed, lastErr)
}

// Reset clears per-stream detector state on every backend. Breaker state is
// backend health, not stream state, and survives a reset.
func (c *DetectorChain) Reset() {
	for i := range c.entries {
		c.entries[i].det.Reset()
	}
}

// Close releases every backend, joining any errors.
func (c *DetectorChain) Close() error {
	var errs []error
	for i := range c.entries {
		if err := c.entries[i].det.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.entries[i].name, err))
		}
	}
	return errors.Join(errs...)
}

// BackendStates reports each backend's breaker state by name, for the
// readiness endpoint.
func (c *DetectorChain) BackendStates() map[string]BreakerState {
	states := make(map[string]BreakerState, len(c.entries))
	for i := range c.entries {
		states[c.entries[i].name] = c.entries[i].breaker.State()
	}
	return states
}

var _ vad.Detector = (*DetectorChain)(nil)
