// Package feeder holds the subsystem's outward boundaries: the transcription
// feeder that receives closed speech segments, the playback controller that
// must stop synthesized output on barge-in, and the event dispatcher that
// fans interruption events out to both.
package feeder

import (
	"context"
	"time"

	"github.com/tkoehlman/vadgate/internal/interrupt"
)

// SegmentSink receives closed speech segments as ordered audio chunks.
// Fire-and-forget: no acknowledgment is expected and the sink is responsible
// for its own buffering and backpressure.
type SegmentSink interface {
	// Feed hands over one closed segment. Implementations should return
	// quickly; a slow transport must buffer internally rather than stall
	// the pipeline.
	Feed(ctx context.Context, seg *interrupt.Segment) error
}

// PlaybackController is the playback-cancellation boundary. SpeechStart is
// delivered as an Interrupt call with minimum added latency; the controller
// must treat it as an immediate stop signal, not a suggestion.
type PlaybackController interface {
	// Interrupt stops playback now. ts is the stream offset of the
	// confirmed speech start.
	Interrupt(ts time.Duration)

	// Resume signals that the user stopped speaking; the controller may
	// resume or restart playback at its discretion.
	Resume(ts time.Duration)
}

// SinkFunc adapts a function to the SegmentSink interface.
type SinkFunc func(ctx context.Context, seg *interrupt.Segment) error

// Feed calls f.
func (f SinkFunc) Feed(ctx context.Context, seg *interrupt.Segment) error {
	return f(ctx, seg)
}
