// Package vad defines the Detector capability for voice activity detection
// backends.
//
// A Detector wraps a frame-level speech classifier and produces one speech
// probability per audio frame. Two interchangeable backend families exist:
// deterministic spectral detectors that emit hard 0.0/1.0 decisions
// (vad/energy) and probability models that emit a score in between
// (vad/neural). Callers treat both through the same contract; which backend
// runs is a configuration choice, not a protocol change.
//
// Detection is synchronous by design: Process returns immediately, making it
// suitable for the low-latency pipeline loop that gates barge-in. A Detector
// owns whatever smoothing state it keeps across frames; it must not be shared
// across goroutines unless the implementation documents otherwise.
package vad

import "errors"

// ErrModelLoad indicates a backend could not load its model artifact
// (missing, unreadable, or corrupt). Fatal at startup: the subsystem refuses
// to start rather than run with a broken detector.
var ErrModelLoad = errors.New("vad: model load failure")

// Config holds the parameters for a detector instance.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// frames passed to Process. Common values: 8000, 16000, 48000.
	SampleRate int

	// FrameSize is the number of samples per frame. Most detectors operate
	// on a fixed frame size (e.g., 512 samples ≈ 32 ms at 16 kHz).
	FrameSize int

	// ModelPath points at the model artifact for backends that need one.
	// Ignored by deterministic backends.
	ModelPath string
}

// Detector analyses one frame at a time and returns a speech probability.
type Detector interface {
	// Process classifies a single mono PCM frame and returns the speech
	// probability in [0, 1]. Binary detectors emit exactly 0.0 or 1.0.
	// Returns an error if the frame size is wrong or the backend hits an
	// internal failure; a per-frame error must not be treated as fatal by
	// the caller.
	//
	// Process is called synchronously in the pipeline loop; it must not
	// block.
	Process(frame []int16) (float64, error)

	// Reset clears accumulated smoothing state without closing the
	// detector. Use when the audio stream is interrupted or restarted.
	Reset()

	// Close releases backend resources. Calling Close more than once is
	// safe and returns nil.
	Close() error
}

// Engine is the factory for detectors, implemented by each backend package.
//
// NewDetector fails fast on invalid configuration or a missing/corrupt model
// artifact (wrapping [ErrModelLoad]); it is never retried.
type Engine interface {
	NewDetector(cfg Config) (Detector, error)
}
