// Package interrupt turns per-frame VAD decisions into discrete speech
// events and confirmed speech segments.
//
// Three collaborating pieces live here:
//
//   - [Adapter] keeps a noise-floor estimate and derives the effective
//     decision threshold for each frame.
//   - [Machine] is the hysteresis state machine that debounces raw
//     voice/silence decisions into SpeechStart/SpeechEnd events.
//   - [Aggregator] accumulates the frames of the currently open speech
//     segment and bounds its size.
//
// Everything in this package is owned by the processing goroutine and needs
// no synchronisation; decisions are passed by value.
package interrupt

import (
	"time"

	"github.com/tkoehlman/vadgate/pkg/audio"
)

// EventKind classifies interruption events.
type EventKind int

const (
	// SpeechStart fires when sustained speech is confirmed. It is the
	// barge-in trigger: the playback controller must treat it as an
	// immediate stop signal.
	SpeechStart EventKind = iota

	// SpeechEnd fires when sustained silence is confirmed after speech.
	SpeechEnd
)

// String returns the human-readable name of the event kind.
func (k EventKind) String() string {
	switch k {
	case SpeechStart:
		return "SPEECH_START"
	case SpeechEnd:
		return "SPEECH_END"
	default:
		return "UNKNOWN"
	}
}

// Event is a discrete interruption event. Events are emitted in strict
// chronological order and are fire-and-forget: subscribers do not
// acknowledge them.
type Event struct {
	// Kind is SpeechStart or SpeechEnd.
	Kind EventKind

	// Timestamp is the stream offset at which the event was confirmed.
	Timestamp time.Duration

	// Truncated marks a SpeechEnd forced by shutdown rather than by
	// observed silence.
	Truncated bool
}

// Decision is the per-frame VAD outcome plus the threshold it was judged
// against. Immutable, produced once per frame.
type Decision struct {
	// Index is the frame's position in the stream.
	Index uint64

	// Timestamp is the frame's capture offset.
	Timestamp time.Duration

	// Probability is the VAD backend's speech probability in [0, 1].
	Probability float64

	// Threshold is the adapted effective threshold for this frame.
	Threshold float64
}

// Voice reports whether the decision counts as speech. Probability exactly
// equal to the threshold counts as speech, biasing toward earlier barge-in.
func (d Decision) Voice() bool {
	return d.Probability >= d.Threshold
}

// State enumerates the hysteresis machine's states.
type State int

const (
	// StateSilence: no speech activity.
	StateSilence State = iota

	// StatePossibleSpeech: voice frames seen, duration requirement not yet
	// met.
	StatePossibleSpeech

	// StateSpeech: confirmed ongoing speech; a segment is open.
	StateSpeech

	// StatePossibleSilence: silence frames seen during speech, duration
	// requirement not yet met.
	StatePossibleSilence
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateSilence:
		return "SILENCE"
	case StatePossibleSpeech:
		return "POSSIBLE_SPEECH"
	case StateSpeech:
		return "SPEECH"
	case StatePossibleSilence:
		return "POSSIBLE_SILENCE"
	default:
		return "UNKNOWN"
	}
}

// Output is what one observed frame produced: zero or more events and zero
// or more closed segments, all in chronological order.
type Output struct {
	Events   []Event
	Segments []*Segment
}

// frameEnd returns the stream offset just past the frame.
func frameEnd(f audio.Frame, sampleRate int) time.Duration {
	return f.Timestamp + f.Duration(sampleRate)
}
