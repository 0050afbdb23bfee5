// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to verify that detectors are created with the expected Config.
// Use Detector to script per-frame probabilities and inspect the frames that
// were submitted for processing.
//
// Example:
//
//	det := &mock.Detector{Probabilities: []float64{0.1, 0.9, 0.9}}
//	eng := &mock.Engine{Detector: det}
//	d, _ := eng.NewDetector(cfg)
package mock

import (
	"sync"

	"github.com/tkoehlman/vadgate/pkg/vad"
)

// NewDetectorCall records a single invocation of Engine.NewDetector.
type NewDetectorCall struct {
	// Cfg is the Config passed to NewDetector.
	Cfg vad.Config
}

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Detector is returned by NewDetector. If nil, NewDetector returns a
	// new default Detector.
	Detector vad.Detector

	// NewDetectorErr, if non-nil, is returned as the error from NewDetector.
	NewDetectorErr error

	// NewDetectorCalls records every call to NewDetector in order.
	NewDetectorCalls []NewDetectorCall
}

// NewDetector records the call and returns Detector, NewDetectorErr.
func (e *Engine) NewDetector(cfg vad.Config) (vad.Detector, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewDetectorCalls = append(e.NewDetectorCalls, NewDetectorCall{Cfg: cfg})
	if e.NewDetectorErr != nil {
		return nil, e.NewDetectorErr
	}
	if e.Detector != nil {
		return e.Detector, nil
	}
	return &Detector{}, nil
}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

// ProcessCall records a single invocation of Detector.Process.
type ProcessCall struct {
	// Frame is a copy of the samples passed to Process.
	Frame []int16
}

// Detector is a mock implementation of vad.Detector.
type Detector struct {
	mu sync.Mutex

	// Probabilities is returned by successive Process calls. When the
	// script runs out the last value repeats; when empty, Process returns 0.
	Probabilities []float64

	// ProcessErr, if non-nil, is returned by every Process call.
	ProcessErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// ProcessCalls records every call to Process in order.
	ProcessCalls []ProcessCall

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Process records the call and returns the next scripted probability.
func (d *Detector) Process(frame []int16) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]int16, len(frame))
	copy(cp, frame)
	n := len(d.ProcessCalls)
	d.ProcessCalls = append(d.ProcessCalls, ProcessCall{Frame: cp})
	if d.ProcessErr != nil {
		return 0, d.ProcessErr
	}
	if len(d.Probabilities) == 0 {
		return 0, nil
	}
	if n >= len(d.Probabilities) {
		n = len(d.Probabilities) - 1
	}
	return d.Probabilities[n], nil
}

// Reset records the call by incrementing ResetCallCount.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ResetCallCount++
}

// Close records the call and returns CloseErr.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CloseCallCount++
	return d.CloseErr
}

// ResetCalls clears all recorded call history. Thread-safe.
func (d *Detector) ResetCalls() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ProcessCalls = nil
	d.ResetCallCount = 0
	d.CloseCallCount = 0
}

// Ensure Detector implements vad.Detector at compile time.
var _ vad.Detector = (*Detector)(nil)
