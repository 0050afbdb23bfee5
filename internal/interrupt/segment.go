package interrupt

import (
	"time"

	"github.com/google/uuid"

	"github.com/tkoehlman/vadgate/pkg/audio"
)

// Segment is a confirmed run of speech audio: the ordered frames between a
// SpeechStart and its SpeechEnd, padded by the configured look-back and
// trailing audio. Segments are created per speech episode and handed to the
// transcription feeder exactly once.
type Segment struct {
	// ID uniquely identifies the segment across the process lifetime.
	ID uuid.UUID

	// Frames in strict arrival order.
	Frames []audio.Frame

	// SampleRate of the frames' samples.
	SampleRate int

	// Start and End are stream offsets covering the padded segment.
	Start, End time.Duration

	// Truncated marks a segment closed by shutdown or by hitting the
	// maximum segment duration rather than by confirmed silence.
	Truncated bool
}

// PCM concatenates the segment's frames into one contiguous sample slice.
func (s *Segment) PCM() []int16 {
	var n int
	for _, f := range s.Frames {
		n += len(f.Samples)
	}
	out := make([]int16, 0, n)
	for _, f := range s.Frames {
		out = append(out, f.Samples...)
	}
	return out
}

// Duration returns the padded segment length.
func (s *Segment) Duration() time.Duration { return s.End - s.Start }

// Aggregator accumulates the frames of the currently open speech segment.
// When the open segment reaches the configured maximum duration it is
// force-closed and handed back from Add — bounding the chunk size the
// transcription feeder has to swallow — and a fresh segment opens seamlessly
// with the next frame. The aggregator retains nothing after hand-off.
//
// Owned by the processing goroutine via [Machine]; not safe for concurrent
// use.
type Aggregator struct {
	sampleRate  int
	maxDuration time.Duration

	open *Segment
}

// NewAggregator creates an aggregator. maxDuration <= 0 disables the bound.
func NewAggregator(sampleRate int, maxDuration time.Duration) *Aggregator {
	return &Aggregator{
		sampleRate:  sampleRate,
		maxDuration: maxDuration,
	}
}

// SetMaxDuration updates the segment size bound. <= 0 disables it.
func (a *Aggregator) SetMaxDuration(d time.Duration) {
	a.maxDuration = d
}

// Open reports whether a segment is currently accumulating.
func (a *Aggregator) Open() bool { return a.open != nil }

// Begin opens a new segment starting at the given stream offset.
// Any previously open segment is discarded; the machine guarantees this
// never happens with frames still unclosed.
func (a *Aggregator) Begin(start time.Duration) {
	a.open = &Segment{
		ID:         uuid.New(),
		SampleRate: a.sampleRate,
		Start:      start,
		End:        start,
	}
}

// Add appends a frame to the open segment. If the addition pushes the open
// segment past the maximum duration, the segment is closed (marked
// truncated), returned, and a fresh segment opens at the next frame. Returns
// nil otherwise, or if no segment is open.
func (a *Aggregator) Add(f audio.Frame) *Segment {
	if a.open == nil {
		return nil
	}
	a.open.Frames = append(a.open.Frames, f)
	a.open.End = frameEnd(f, a.sampleRate)

	if a.maxDuration > 0 && a.open.Duration() >= a.maxDuration {
		closed := a.open
		closed.Truncated = true
		a.Begin(closed.End)
		return closed
	}
	return nil
}

// Close finalises and returns the open segment, or nil if none is open.
func (a *Aggregator) Close(truncated bool) *Segment {
	if a.open == nil {
		return nil
	}
	closed := a.open
	closed.Truncated = closed.Truncated || truncated
	a.open = nil
	if len(closed.Frames) == 0 {
		return nil
	}
	return closed
}
