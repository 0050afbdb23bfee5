package resilience_test

import (
	"errors"
	"testing"
	"time"

	"github.com/tkoehlman/vadgate/internal/resilience"
	vadmock "github.com/tkoehlman/vadgate/pkg/vad/mock"
)

func newChain(primary, fallback *vadmock.Detector) *resilience.DetectorChain {
	c := resilience.NewDetectorChain("neural", primary, resilience.ChainConfig{
		MaxFailures:  3,
		ResetTimeout: time.Hour,
	})
	c.Add("energy", fallback)
	return c
}

func TestDetectorChain_HealthyPrimaryShadowsFallback(t *testing.T) {
	t.Parallel()

	primary := &vadmock.Detector{Probabilities: []float64{0.9}}
	fallback := &vadmock.Detector{Probabilities: []float64{0.1}}
	chain := newChain(primary, fallback)

	frame := make([]int16, 512)
	for i := 0; i < 10; i++ {
		prob, err := chain.Process(frame)
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		if prob != 0.9 {
			t.Fatalf("prob = %v, want primary's 0.9", prob)
		}
	}
	if n := len(fallback.ProcessCalls); n != 0 {
		t.Errorf("fallback invoked %d times with a healthy primary", n)
	}
}

func TestDetectorChain_FailingPrimaryFallsBack(t *testing.T) {
	t.Parallel()

	primary := &vadmock.Detector{ProcessErr: errors.New("weights corrupted")}
	fallback := &vadmock.Detector{Probabilities: []float64{0.7}}
	chain := newChain(primary, fallback)

	frame := make([]int16, 512)
	for i := 0; i < 10; i++ {
		prob, err := chain.Process(frame)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if prob != 0.7 {
			t.Fatalf("frame %d: prob = %v, want fallback's 0.7", i, prob)
		}
	}

	// The breaker trips after 3 consecutive failures; the broken primary
	// must stop being invoked per frame.
	if n := len(primary.ProcessCalls); n != 3 {
		t.Errorf("primary invoked %d times, want 3 before the breaker trips", n)
	}

	states := chain.BackendStates()
	if states["neural"] != resilience.BreakerOpen {
		t.Errorf("neural breaker = %v, want open", states["neural"])
	}
	if states["energy"] != resilience.BreakerClosed {
		t.Errorf("energy breaker = %v, want closed", states["energy"])
	}
}

func TestDetectorChain_AllBackendsFailing(t *testing.T) {
	t.Parallel()

	primary := &vadmock.Detector{ProcessErr: errors.New("weights corrupted")}
	fallback := &vadmock.Detector{ProcessErr: errors.New("device gone")}
	chain := newChain(primary, fallback)

	prob, err := chain.Process(make([]int16, 512))
	if !errors.Is(err, resilience.ErrAllBackendsFailed) {
		t.Fatalf("Process error = %v, want ErrAllBackendsFailed", err)
	}
	if prob != 0 {
		t.Errorf("prob = %v, want 0 on total failure", prob)
	}
}

func TestDetectorChain_ResetFansOut(t *testing.T) {
	t.Parallel()

	primary := &vadmock.Detector{}
	fallback := &vadmock.Detector{}
	chain := newChain(primary, fallback)

	chain.Reset()
	if primary.ResetCallCount != 1 || fallback.ResetCallCount != 1 {
		t.Errorf("reset counts = %d/%d, want 1/1",
			primary.ResetCallCount, fallback.ResetCallCount)
	}
}

func TestDetectorChain_CloseJoinsErrors(t *testing.T) {
	t.Parallel()

	closeErr := errors.New("unload failed")
	primary := &vadmock.Detector{CloseErr: closeErr}
	fallback := &vadmock.Detector{}
	chain := newChain(primary, fallback)

	err := chain.Close()
	if !errors.Is(err, closeErr) {
		t.Fatalf("Close error = %v, want the primary's close error", err)
	}
	if primary.CloseCallCount != 1 || fallback.CloseCallCount != 1 {
		t.Errorf("close counts = %d/%d, want 1/1 (all backends closed)",
			primary.CloseCallCount, fallback.CloseCallCount)
	}
}
