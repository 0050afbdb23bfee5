// Package energy implements a deterministic spectral-energy VAD backend.
//
// The detector computes the RMS level of each frame and compares it against a
// fixed energy threshold, smoothing the decision over a short window of
// recent frames to suppress single-frame flicker. It emits hard 0.0/1.0
// probabilities per the binary-detector contract and needs no model artifact,
// which makes it the zero-setup default backend.
package energy

import (
	"errors"
	"fmt"
	"math"

	"github.com/tkoehlman/vadgate/pkg/vad"
)

// Defaults chosen for 16-bit PCM speech at conversational mic distance.
const (
	// DefaultRMSThreshold is the frame RMS (in raw int16 units) above which
	// a frame votes speech.
	DefaultRMSThreshold = 300.0

	// DefaultSmoothFrames is the length of the majority-vote window.
	DefaultSmoothFrames = 4
)

// Engine creates energy detectors.
type Engine struct {
	// RMSThreshold overrides DefaultRMSThreshold when > 0.
	RMSThreshold float64

	// SmoothFrames overrides DefaultSmoothFrames when > 0.
	SmoothFrames int
}

// NewDetector returns a detector for the given config. The energy backend has
// no model artifact, so the only failure mode is an invalid config.
func (e *Engine) NewDetector(cfg vad.Config) (vad.Detector, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("energy: sample rate %d is invalid", cfg.SampleRate)
	}
	if cfg.FrameSize <= 0 {
		return nil, fmt.Errorf("energy: frame size %d is invalid", cfg.FrameSize)
	}
	threshold := e.RMSThreshold
	if threshold <= 0 {
		threshold = DefaultRMSThreshold
	}
	smooth := e.SmoothFrames
	if smooth <= 0 {
		smooth = DefaultSmoothFrames
	}
	return &detector{
		frameSize: cfg.FrameSize,
		threshold: threshold,
		votes:     make([]bool, 0, smooth),
		smooth:    smooth,
	}, nil
}

var _ vad.Engine = (*Engine)(nil)

type detector struct {
	frameSize int
	threshold float64

	votes  []bool
	smooth int
	closed bool
}

// Process votes on the frame's RMS level and returns 1.0 when the majority of
// the smoothing window voted speech, else 0.0.
func (d *detector) Process(frame []int16) (float64, error) {
	if d.closed {
		return 0, errors.New("energy: detector is closed")
	}
	if len(frame) > d.frameSize {
		return 0, fmt.Errorf("energy: frame has %d samples, want at most %d", len(frame), d.frameSize)
	}
	if len(frame) == 0 {
		return 0, nil
	}

	vote := RMS(frame) >= d.threshold
	d.votes = append(d.votes, vote)
	if len(d.votes) > d.smooth {
		d.votes = d.votes[len(d.votes)-d.smooth:]
	}

	speech := 0
	for _, v := range d.votes {
		if v {
			speech++
		}
	}
	if speech*2 >= len(d.votes) && vote {
		return 1.0, nil
	}
	return 0.0, nil
}

func (d *detector) Reset() {
	d.votes = d.votes[:0]
}

func (d *detector) Close() error {
	d.closed = true
	return nil
}

var _ vad.Detector = (*detector)(nil)

// RMS returns the root-mean-square level of the samples in raw int16 units.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}
