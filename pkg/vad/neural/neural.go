// Package neural implements a probability-model VAD backend.
//
// The detector extracts a small spectral feature vector per frame (log RMS,
// zero-crossing rate, low/high band energy split) and feeds it through a
// logistic readout whose weights are loaded from a model artifact at
// construction time. Unlike the binary energy backend it produces graded
// probabilities in (0, 1) and smooths them with a short exponential moving
// average it owns privately.
//
// A missing or corrupt artifact makes NewDetector fail with
// [vad.ErrModelLoad]; the subsystem must not start without a working model.
package neural

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/tkoehlman/vadgate/pkg/vad"
)

// Model artifact layout: 4-byte magic, 1-byte feature count, then
// featureCount+1 little-endian float64 weights (bias last).
var magic = [4]byte{'V', 'G', 'W', '1'}

// featureCount is the number of inputs the logistic readout expects.
const featureCount = 4

// smoothingAlpha is the EWMA weight given to the newest frame's raw score.
const smoothingAlpha = 0.6

// Engine creates neural detectors backed by a weights artifact.
type Engine struct{}

// NewDetector loads the model at cfg.ModelPath and returns a ready detector.
// All artifact problems (missing file, bad magic, truncated or oversized
// payload, non-finite weights) wrap [vad.ErrModelLoad].
func (e *Engine) NewDetector(cfg vad.Config) (vad.Detector, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("neural: sample rate %d is invalid", cfg.SampleRate)
	}
	if cfg.FrameSize <= 0 {
		return nil, fmt.Errorf("neural: frame size %d is invalid", cfg.FrameSize)
	}
	weights, err := loadWeights(cfg.ModelPath)
	if err != nil {
		return nil, err
	}
	return &detector{
		frameSize: cfg.FrameSize,
		weights:   weights,
	}, nil
}

var _ vad.Engine = (*Engine)(nil)

func loadWeights(path string) ([]float64, error) {
	if path == "" {
		return nil, fmt.Errorf("neural: no model path configured: %w", vad.ErrModelLoad)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("neural: read model %q: %w: %w", path, vad.ErrModelLoad, err)
	}
	if len(raw) < len(magic)+1 {
		return nil, fmt.Errorf("neural: model %q is truncated: %w", path, vad.ErrModelLoad)
	}
	if [4]byte(raw[:4]) != magic {
		return nil, fmt.Errorf("neural: model %q has wrong magic: %w", path, vad.ErrModelLoad)
	}
	n := int(raw[4])
	if n != featureCount {
		return nil, fmt.Errorf("neural: model %q declares %d features, want %d: %w", path, n, featureCount, vad.ErrModelLoad)
	}
	payload := raw[5:]
	want := (featureCount + 1) * 8
	if len(payload) != want {
		return nil, fmt.Errorf("neural: model %q payload is %d bytes, want %d: %w", path, len(payload), want, vad.ErrModelLoad)
	}

	weights := make([]float64, featureCount+1)
	for i := range weights {
		weights[i] = math.Float64frombits(binary.LittleEndian.Uint64(payload[i*8:]))
		if math.IsNaN(weights[i]) || math.IsInf(weights[i], 0) {
			return nil, fmt.Errorf("neural: model %q weight %d is not finite: %w", path, i, vad.ErrModelLoad)
		}
	}
	return weights, nil
}

// WriteModel serialises weights (featureCount inputs + bias) into the model
// artifact format at path. Exposed for tooling and tests that need to
// produce artifacts.
func WriteModel(path string, weights [featureCount + 1]float64) error {
	buf := make([]byte, 0, len(magic)+1+len(weights)*8)
	buf = append(buf, magic[:]...)
	buf = append(buf, byte(featureCount))
	for _, w := range weights {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(w))
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("neural: write model %q: %w", path, err)
	}
	return nil
}

type detector struct {
	frameSize int
	weights   []float64

	smoothed float64
	primed   bool
	closed   bool
}

// Process extracts features, applies the logistic readout, and returns the
// EWMA-smoothed probability.
func (d *detector) Process(frame []int16) (float64, error) {
	if d.closed {
		return 0, errors.New("neural: detector is closed")
	}
	if len(frame) > d.frameSize {
		return 0, fmt.Errorf("neural: frame has %d samples, want at most %d", len(frame), d.frameSize)
	}
	if len(frame) == 0 {
		return 0, nil
	}

	f := extractFeatures(frame)
	z := d.weights[len(d.weights)-1] // bias
	for i, w := range d.weights[:len(d.weights)-1] {
		z += w * f[i]
	}
	raw := 1.0 / (1.0 + math.Exp(-z))

	if !d.primed {
		d.smoothed = raw
		d.primed = true
	} else {
		d.smoothed = smoothingAlpha*raw + (1-smoothingAlpha)*d.smoothed
	}
	return d.smoothed, nil
}

func (d *detector) Reset() {
	d.smoothed = 0
	d.primed = false
}

func (d *detector) Close() error {
	d.closed = true
	return nil
}

var _ vad.Detector = (*detector)(nil)

// extractFeatures computes the fixed feature vector:
//
//	[0] log RMS level, normalised to roughly [0, 1] over the int16 range
//	[1] zero-crossing rate in [0, 1]
//	[2] low-band energy fraction (one-pole low-pass residual)
//	[3] high-band energy fraction (first difference)
func extractFeatures(frame []int16) [featureCount]float64 {
	var sum, low, high float64
	var crossings int
	var lp float64

	prev := float64(frame[0])
	for i, s := range frame {
		x := float64(s)
		sum += x * x

		// One-pole low-pass tracks the slow envelope.
		lp += 0.1 * (x - lp)
		low += lp * lp

		if i > 0 {
			d := x - prev
			high += d * d
			if (x >= 0) != (prev >= 0) {
				crossings++
			}
		}
		prev = x
	}

	n := float64(len(frame))
	rms := math.Sqrt(sum / n)

	var logRMS float64
	if rms > 1 {
		// log scale over the int16 dynamic range: log(32768) ≈ 10.4.
		logRMS = math.Log(rms) / math.Log(32768)
	}

	total := sum + 1e-9
	return [featureCount]float64{
		logRMS,
		float64(crossings) / n,
		low / total,
		high / total,
	}
}
