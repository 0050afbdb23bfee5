package interrupt

import (
	"sort"

	"github.com/tkoehlman/vadgate/pkg/vad/energy"
)

// AdapterConfig tunes the threshold adapter. Zero values fall back to the
// defaults below.
type AdapterConfig struct {
	// Base is the configured decision threshold before noise adaptation.
	Base float64

	// Min and Max clamp the effective threshold so a burst of loud
	// "silence" can never push the detector to always-speech or
	// always-silence.
	Min, Max float64

	// FloorScale is how strongly the noise floor lifts the threshold:
	// effective = Base + FloorScale * floor.
	FloorScale float64

	// Alpha is the EWMA weight for noise-floor updates in (0, 1].
	Alpha float64

	// Window is how many recent frame levels feed the floor estimate.
	Window int
}

const (
	defaultBase       = 0.5
	defaultMin        = 0.35
	defaultMax        = 0.85
	defaultFloorScale = 3.0
	defaultAlpha      = 0.1
	defaultWindow     = 50
)

// Adapter maintains an exponentially-weighted noise-floor estimate and
// derives the effective decision threshold for each frame. The floor is
// estimated from the bottom quartile of recent frame levels and only updated
// from frames the previous threshold classified as silence, so speech does
// not inflate it.
//
// Owned exclusively by the processing goroutine; runs once per frame,
// strictly after the VAD call and before the state machine.
type Adapter struct {
	cfg AdapterConfig

	levels []float64
	pos    int
	filled bool

	floor     float64
	effective float64
}

// NewAdapter creates an adapter, applying defaults for zero config fields.
func NewAdapter(cfg AdapterConfig) *Adapter {
	if cfg.Base <= 0 {
		cfg.Base = defaultBase
	}
	if cfg.Min <= 0 {
		cfg.Min = defaultMin
	}
	if cfg.Max <= 0 {
		cfg.Max = defaultMax
	}
	if cfg.Max < cfg.Min {
		cfg.Max = cfg.Min
	}
	if cfg.FloorScale <= 0 {
		cfg.FloorScale = defaultFloorScale
	}
	if cfg.Alpha <= 0 || cfg.Alpha > 1 {
		cfg.Alpha = defaultAlpha
	}
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	return &Adapter{
		cfg:       cfg,
		levels:    make([]float64, cfg.Window),
		effective: clamp(cfg.Base, cfg.Min, cfg.Max),
	}
}

// SetConfig swaps the adapter's tunables without discarding the learned
// noise floor. The level window is resized (and cleared) only if Window
// changed. Used for live retuning from the config watcher.
func (a *Adapter) SetConfig(cfg AdapterConfig) {
	fresh := NewAdapter(cfg)
	if len(fresh.levels) != len(a.levels) {
		a.levels = fresh.levels
		a.pos = 0
		a.filled = false
	}
	a.cfg = fresh.cfg
	a.effective = clamp(a.cfg.Base+a.cfg.FloorScale*a.floor, a.cfg.Min, a.cfg.Max)
}

// Observe records the frame's level, updates the noise floor when the frame
// was silence, and returns the effective threshold to judge prob against.
func (a *Adapter) Observe(frame []int16, prob float64) float64 {
	// Normalise RMS to [0, 1] over the int16 range so floor and
	// probability thresholds share a scale.
	level := energy.RMS(frame) / 32768.0

	a.levels[a.pos] = level
	a.pos++
	if a.pos == len(a.levels) {
		a.pos = 0
		a.filled = true
	}

	// Only silence-classified frames move the floor.
	if prob < a.effective {
		a.floor += a.cfg.Alpha * (a.quartileFloor() - a.floor)
	}

	a.effective = clamp(a.cfg.Base+a.cfg.FloorScale*a.floor, a.cfg.Min, a.cfg.Max)
	return a.effective
}

// Threshold returns the current effective threshold.
func (a *Adapter) Threshold() float64 { return a.effective }

// NoiseFloor returns the current noise-floor estimate (normalised level).
func (a *Adapter) NoiseFloor() float64 { return a.floor }

// quartileFloor is the mean of the bottom quartile of recent levels — a
// robust estimate of the background level that ignores speech bursts.
func (a *Adapter) quartileFloor() float64 {
	n := len(a.levels)
	if !a.filled {
		n = a.pos
	}
	if n == 0 {
		return 0
	}

	sorted := make([]float64, n)
	copy(sorted, a.levels[:n])
	sort.Float64s(sorted)

	q := n / 4
	if q == 0 {
		q = 1
	}
	var sum float64
	for _, v := range sorted[:q] {
		sum += v
	}
	return sum / float64(q)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
