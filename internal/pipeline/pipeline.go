// Package pipeline wires the capture subsystem together: it supervises the
// capture source, drains the ring buffer on its own goroutine, runs each
// frame through the VAD backend, the threshold adapter, and the interruption
// state machine, and routes the resulting events and segments to their
// boundaries.
//
// Two execution contexts exist. The capture context is whatever goroutine the
// source invokes its block callback on; the callback only performs the ring
// buffer's bounded copy and returns. The processing context is a single
// goroutine owned by [Pipeline.Run]; it holds all adaptive state (threshold,
// machine, segments) exclusively, so nothing beyond the ring buffer's SPSC
// contract is shared between the two.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tkoehlman/vadgate/internal/feeder"
	"github.com/tkoehlman/vadgate/internal/interrupt"
	"github.com/tkoehlman/vadgate/internal/observe"
	"github.com/tkoehlman/vadgate/pkg/audio"
	"github.com/tkoehlman/vadgate/pkg/capture"
	"github.com/tkoehlman/vadgate/pkg/vad"
)

// ErrInvalidFormat indicates the capture source's format does not match what
// the VAD backend expects. Fatal at startup; the subsystem refuses to run on
// mismatched audio.
var ErrInvalidFormat = errors.New("pipeline: invalid audio format")

// Reopen policy for recoverable capture failures.
const (
	maxReopenAttempts  = 3
	reopenBackoffBase  = 500 * time.Millisecond
	defaultPollBackoff = 5 * time.Millisecond
)

// Config holds the pipeline's operating parameters.
type Config struct {
	// SampleRate and FrameSize the pipeline operates at; must match the
	// capture source's delivered format.
	SampleRate int
	FrameSize  int

	// RingCapacity in samples. Default: 10 seconds at SampleRate.
	RingCapacity int

	// Tunables are the hot-reloadable detection parameters.
	Tunables Tunables

	// PollInterval is how long the processing goroutine waits when no
	// full frame is buffered. Default 5 ms.
	PollInterval time.Duration
}

// Tunables are the detection parameters that may be swapped at runtime via
// [Pipeline.Retune].
type Tunables struct {
	BaseThreshold float64
	MinThreshold  float64
	MaxThreshold  float64

	MinSpeechDuration  time.Duration
	MinSilenceDuration time.Duration
	SpeechPad          time.Duration
	MaxSegmentDuration time.Duration
}

// Pipeline owns the full capture → event path.
type Pipeline struct {
	cfg    Config
	source capture.Source
	det    vad.Detector

	ring    *audio.Ring
	slicer  *audio.Slicer
	adapter *interrupt.Adapter
	machine *interrupt.Machine

	dispatcher *feeder.Dispatcher
	sink       feeder.SegmentSink

	metrics *observe.Metrics
	stats   *observe.PipelineStats

	retune    atomic.Pointer[Tunables]
	statsSnap atomic.Pointer[interrupt.Stats]

	// inputDone closes when the capture source finishes cleanly (e.g.,
	// replay EOF), letting the processing loop flush and exit.
	inputDone chan struct{}

	lastOverflow uint64
}

// New validates formats and assembles a pipeline. The detector must already
// be constructed (fail-fast model loading happens in the backend's engine);
// sink and dispatcher route the outputs, and metrics/stats must be non-nil.
func New(cfg Config, source capture.Source, det vad.Detector, dispatcher *feeder.Dispatcher, sink feeder.SegmentSink, metrics *observe.Metrics, stats *observe.PipelineStats) (*Pipeline, error) {
	if cfg.SampleRate <= 0 || cfg.FrameSize <= 0 {
		return nil, fmt.Errorf("pipeline: sample rate %d / frame size %d is invalid", cfg.SampleRate, cfg.FrameSize)
	}
	if cfg.RingCapacity <= 0 {
		cfg.RingCapacity = cfg.SampleRate * 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollBackoff
	}

	format := source.Format()
	if format.Channels != 1 {
		return nil, fmt.Errorf("%w: capture delivers %d channels, pipeline expects mono", ErrInvalidFormat, format.Channels)
	}
	if format.SampleRate != cfg.SampleRate {
		return nil, fmt.Errorf("%w: capture delivers %d Hz, VAD expects %d Hz", ErrInvalidFormat, format.SampleRate, cfg.SampleRate)
	}

	ring := audio.NewRing(cfg.RingCapacity)
	agg := interrupt.NewAggregator(cfg.SampleRate, cfg.Tunables.MaxSegmentDuration)
	machine := interrupt.NewMachine(interrupt.MachineConfig{
		SampleRate:         cfg.SampleRate,
		MinSpeechDuration:  cfg.Tunables.MinSpeechDuration,
		MinSilenceDuration: cfg.Tunables.MinSilenceDuration,
		SpeechPad:          cfg.Tunables.SpeechPad,
		MaxSegmentDuration: cfg.Tunables.MaxSegmentDuration,
	}, agg)
	adapter := interrupt.NewAdapter(interrupt.AdapterConfig{
		Base: cfg.Tunables.BaseThreshold,
		Min:  cfg.Tunables.MinThreshold,
		Max:  cfg.Tunables.MaxThreshold,
	})

	return &Pipeline{
		cfg:        cfg,
		source:     source,
		det:        det,
		ring:       ring,
		slicer:     audio.NewSlicer(ring, cfg.FrameSize, cfg.SampleRate),
		adapter:    adapter,
		machine:    machine,
		dispatcher: dispatcher,
		sink:       sink,
		metrics:    metrics,
		stats:      stats,
		inputDone:  make(chan struct{}),
	}, nil
}

// Ring exposes the ring buffer for observability.
func (p *Pipeline) Ring() *audio.Ring { return p.ring }

// Retune queues new tunables; the processing goroutine applies them before
// the next frame. Safe to call from any goroutine.
func (p *Pipeline) Retune(t Tunables) {
	p.retune.Store(&t)
}

// Run starts the capture and processing contexts and blocks until both stop.
// Returns nil on clean shutdown (context cancelled or input exhausted).
func (p *Pipeline) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return p.superviseCapture(ctx) })
	g.Go(func() error { return p.processLoop(ctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// superviseCapture runs the capture source, reopening with backoff on
// recoverable device failures. The block callback it registers is the
// capture context: a bounded copy into the ring and nothing else.
func (p *Pipeline) superviseCapture(ctx context.Context) error {
	defer close(p.inputDone)

	onBlock := func(block audio.Block) {
		p.ring.Write(block.Samples)
	}

	attempt := 0
	for {
		err := p.source.Start(ctx, onBlock)
		if ctx.Err() != nil || err == nil {
			// Cancelled, or the source finished its input (replay EOF).
			return nil
		}

		if !errors.Is(err, capture.ErrDeviceUnavailable) && !errors.Is(err, capture.ErrDeviceDisconnected) {
			return err
		}

		attempt++
		if attempt > maxReopenAttempts {
			return fmt.Errorf("pipeline: capture failed after %d reopen attempts: %w", maxReopenAttempts, err)
		}

		backoff := reopenBackoffBase << (attempt - 1)
		slog.Warn("capture source failed, reopening",
			"attempt", attempt, "backoff", backoff, "err", err)
		p.metrics.CaptureReopens.Add(ctx, 1)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
	}
}

// processLoop is the processing context: it drains the ring, slices frames,
// and drives detection until cancellation or input exhaustion, then flushes.
func (p *Pipeline) processLoop(ctx context.Context) error {
	timer := time.NewTimer(p.cfg.PollInterval)
	defer timer.Stop()

	for {
		p.applyRetune()

		frame, ok := p.slicer.Next()
		if ok {
			p.processFrame(ctx, frame)
			continue
		}

		// No full frame buffered: bounded wait so shutdown is always
		// observed promptly.
		timer.Reset(p.cfg.PollInterval)
		select {
		case <-ctx.Done():
			p.flush(ctx)
			return ctx.Err()
		case <-p.inputDone:
			p.drainRemaining(ctx)
			p.flush(ctx)
			return nil
		case <-timer.C:
		}
	}
}

// drainRemaining consumes every full frame still buffered after the capture
// source finished.
func (p *Pipeline) drainRemaining(ctx context.Context) {
	for {
		frame, ok := p.slicer.Next()
		if !ok {
			return
		}
		p.processFrame(ctx, frame)
	}
}

// flush handles shutdown: the trailing partial frame is processed, then any
// open segment is closed as truncated.
func (p *Pipeline) flush(ctx context.Context) {
	if frame, ok := p.slicer.Flush(); ok {
		p.processFrame(ctx, frame)
	}
	p.deliver(ctx, p.machine.Finish())
}

// processFrame runs one frame through VAD → threshold → machine and routes
// the outputs. A failing VAD call degrades the frame to silence for this
// tick; it never halts the pipeline.
func (p *Pipeline) processFrame(ctx context.Context, frame audio.Frame) {
	start := time.Now()

	prob, err := p.det.Process(frame.Samples)
	if err != nil {
		slog.Warn("vad backend failed for frame, treating as silence",
			"frame", frame.Index, "err", err)
		p.metrics.VADErrors.Add(ctx, 1)
		p.stats.IncrVADErrors()
		prob = 0
	}

	threshold := p.adapter.Observe(frame.Samples, prob)

	out := p.machine.Observe(frame, interrupt.Decision{
		Index:       frame.Index,
		Timestamp:   frame.Timestamp,
		Probability: prob,
		Threshold:   threshold,
	})
	p.deliver(ctx, out)

	elapsed := time.Since(start)
	p.metrics.FramesProcessed.Add(ctx, 1)
	p.metrics.FrameProcessingDuration.Record(ctx, elapsed.Seconds())
	p.metrics.EffectiveThreshold.Record(ctx, threshold)
	p.metrics.NoiseFloor.Record(ctx, p.adapter.NoiseFloor())
	p.stats.RecordFrame(elapsed, threshold, p.adapter.NoiseFloor(), p.machine.State().String())

	snap := p.machine.Stats()
	p.statsSnap.Store(&snap)

	if overflow := p.ring.Overflows(); overflow != p.lastOverflow {
		p.metrics.OverflowSamples.Add(ctx, int64(overflow-p.lastOverflow))
		p.stats.SetOverflow(overflow)
		p.lastOverflow = overflow
	}
}

// deliver routes machine outputs: events first (SpeechStart is the barge-in
// trigger and must reach the playback boundary with minimum added latency),
// then closed segments to the transcription feeder.
func (p *Pipeline) deliver(ctx context.Context, out interrupt.Output) {
	for _, ev := range out.Events {
		p.dispatcher.Dispatch(ev)
		if ev.Kind == interrupt.SpeechStart {
			p.metrics.BargeIns.Add(ctx, 1)
			p.stats.IncrBargeIns()
		}
	}
	for _, seg := range out.Segments {
		if p.sink == nil {
			slog.Debug("no transcription feeder configured, dropping segment",
				"segment_id", seg.ID, "duration", seg.Duration())
			continue
		}
		if err := p.sink.Feed(ctx, seg); err != nil {
			slog.Warn("transcription feeder rejected segment",
				"segment_id", seg.ID, "err", err)
		}
		p.metrics.SpeechSegments.Add(ctx, 1)
		p.stats.IncrSegments()
	}
}

// applyRetune picks up tunables queued by Retune.
func (p *Pipeline) applyRetune() {
	t := p.retune.Swap(nil)
	if t == nil {
		return
	}
	p.adapter.SetConfig(interrupt.AdapterConfig{
		Base: t.BaseThreshold,
		Min:  t.MinThreshold,
		Max:  t.MaxThreshold,
	})
	p.machine.SetTunables(t.MinSpeechDuration, t.MinSilenceDuration, t.SpeechPad, t.MaxSegmentDuration)
	slog.Info("pipeline retuned",
		"base_threshold", t.BaseThreshold,
		"min_speech", t.MinSpeechDuration,
		"min_silence", t.MinSilenceDuration,
	)
}

// Stats returns the most recent voice-activity snapshot. Safe to call from
// any goroutine; the processing goroutine publishes a new snapshot per frame.
func (p *Pipeline) Stats() interrupt.Stats {
	if s := p.statsSnap.Load(); s != nil {
		return *s
	}
	return interrupt.Stats{}
}
