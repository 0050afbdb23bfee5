// Package observe provides observability primitives for vadgate:
// OpenTelemetry metrics with a Prometheus exporter bridge, and an in-process
// latency snapshot used by the /stats endpoint.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A package-level
// default is deliberately absent; the pipeline receives its [Metrics]
// instance explicitly so tests can use [NewMetrics] with a private
// [metric.MeterProvider] and avoid cross-test pollution.
package observe

import (
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all vadgate metrics.
const meterName = "github.com/tkoehlman/vadgate"

// Metrics holds all OpenTelemetry metric instruments for the capture
// subsystem. All fields are safe for concurrent use — the underlying OTel
// types handle their own synchronisation. Purely observational: nothing here
// ever affects pipeline behaviour.
type Metrics struct {
	// --- Counters ---

	// FramesProcessed counts frames that completed the full
	// VAD → threshold → state machine path.
	FramesProcessed metric.Int64Counter

	// OverflowSamples counts ring-buffer samples evicted because the
	// consumer fell behind. Non-fatal by contract.
	OverflowSamples metric.Int64Counter

	// VADErrors counts per-frame VAD backend failures that were degraded
	// to silence-for-this-tick.
	VADErrors metric.Int64Counter

	// SpeechSegments counts closed segments handed to the transcription
	// feeder. Use with attribute: attribute.Bool("truncated", ...)
	SpeechSegments metric.Int64Counter

	// BargeIns counts SpeechStart events delivered to the playback
	// controller.
	BargeIns metric.Int64Counter

	// CaptureReopens counts capture-source reopen attempts after a device
	// failure.
	CaptureReopens metric.Int64Counter

	// --- Histograms ---

	// FrameProcessingDuration tracks wall time spent processing one frame
	// through the full path.
	FrameProcessingDuration metric.Float64Histogram

	// --- Gauges ---

	// EffectiveThreshold tracks the adapted decision threshold over time.
	EffectiveThreshold metric.Float64Gauge

	// NoiseFloor tracks the noise-floor estimate over time.
	NoiseFloor metric.Float64Gauge
}

// frameLatencyBuckets defines histogram bucket boundaries (in seconds)
// sized for per-frame processing, which should complete well inside one
// frame period (~32 ms).
var frameLatencyBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.02, 0.032, 0.05, 0.1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesProcessed, err = m.Int64Counter("vadgate.frames.processed",
		metric.WithDescription("Total audio frames processed by the pipeline."),
	); err != nil {
		return nil, err
	}
	if met.OverflowSamples, err = m.Int64Counter("vadgate.ring.overflow_samples",
		metric.WithDescription("Total samples evicted from the ring buffer by overflow."),
	); err != nil {
		return nil, err
	}
	if met.VADErrors, err = m.Int64Counter("vadgate.vad.errors",
		metric.WithDescription("Per-frame VAD failures degraded to silence."),
	); err != nil {
		return nil, err
	}
	if met.SpeechSegments, err = m.Int64Counter("vadgate.segments.closed",
		metric.WithDescription("Closed speech segments handed to the transcription feeder."),
	); err != nil {
		return nil, err
	}
	if met.BargeIns, err = m.Int64Counter("vadgate.bargein.triggers",
		metric.WithDescription("SpeechStart events delivered to the playback controller."),
	); err != nil {
		return nil, err
	}
	if met.CaptureReopens, err = m.Int64Counter("vadgate.capture.reopens",
		metric.WithDescription("Capture source reopen attempts after device failure."),
	); err != nil {
		return nil, err
	}

	if met.FrameProcessingDuration, err = m.Float64Histogram("vadgate.frame.duration",
		metric.WithDescription("Wall time to process one frame through VAD, threshold, and state machine."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(frameLatencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.EffectiveThreshold, err = m.Float64Gauge("vadgate.threshold.effective",
		metric.WithDescription("Adapted decision threshold."),
	); err != nil {
		return nil, err
	}
	if met.NoiseFloor, err = m.Float64Gauge("vadgate.threshold.noise_floor",
		metric.WithDescription("Noise-floor estimate (normalised RMS)."),
	); err != nil {
		return nil, err
	}

	return met, nil
}
