package interrupt

import (
	"time"

	"github.com/tkoehlman/vadgate/pkg/audio"
)

// MachineConfig tunes the hysteresis state machine.
type MachineConfig struct {
	// SampleRate of the frames fed to Observe.
	SampleRate int

	// MinSpeechDuration is how long consecutive voice frames must last
	// before SpeechStart fires. Suppresses clicks and coughs.
	MinSpeechDuration time.Duration

	// MinSilenceDuration is how long consecutive silence frames must last
	// before SpeechEnd fires. Bridges natural intra-utterance pauses.
	MinSilenceDuration time.Duration

	// SpeechPad is how much buffered look-back audio is prepended to a
	// segment and how much trailing audio extends it, so consonant onsets
	// and tails survive the hysteresis delay.
	SpeechPad time.Duration

	// MaxSegmentDuration bounds an open segment; see [Aggregator].
	MaxSegmentDuration time.Duration
}

const (
	defaultMinSpeech  = 250 * time.Millisecond
	defaultMinSilence = 100 * time.Millisecond
	defaultSpeechPad  = 30 * time.Millisecond

	// voiceRatioWindow is how many recent decisions feed the Stats voice
	// ratio.
	voiceRatioWindow = 10
)

// Machine is the four-state interruption machine. It consumes one
// (frame, decision) pair per tick and produces events and closed segments in
// strict chronological order. Transitions are a pure function of consecutive
// decisions plus elapsed frame durations.
//
// Owned exclusively by the processing goroutine.
type Machine struct {
	cfg MachineConfig
	agg *Aggregator

	state State

	// preroll holds the most recent silence frames, trimmed to cover
	// roughly SpeechPad, for segment look-back.
	preroll []audio.Frame

	// pending holds candidate voice frames while in PossibleSpeech.
	pending []audio.Frame

	// trailing holds silence frames while in PossibleSilence; on confirmed
	// silence a pad's worth joins the segment and the rest becomes preroll.
	trailing []audio.Frame

	speechRun  time.Duration
	silenceRun time.Duration

	lastVoiceEnd time.Duration

	recent    []bool
	recentPos int

	speechStarts uint64
	speechEnds   uint64
}

// NewMachine creates a machine in StateSilence, applying defaults for zero
// config durations. The aggregator is owned by the machine from here on.
func NewMachine(cfg MachineConfig, agg *Aggregator) *Machine {
	if cfg.MinSpeechDuration <= 0 {
		cfg.MinSpeechDuration = defaultMinSpeech
	}
	if cfg.MinSilenceDuration <= 0 {
		cfg.MinSilenceDuration = defaultMinSilence
	}
	if cfg.SpeechPad < 0 {
		cfg.SpeechPad = defaultSpeechPad
	}
	return &Machine{
		cfg:    cfg,
		agg:    agg,
		recent: make([]bool, 0, voiceRatioWindow),
	}
}

// State returns the current machine state.
func (m *Machine) State() State { return m.state }

// SetTunables swaps the hysteresis durations without disturbing in-flight
// state. Used for live retuning from the config watcher.
func (m *Machine) SetTunables(minSpeech, minSilence, pad, maxSegment time.Duration) {
	if minSpeech > 0 {
		m.cfg.MinSpeechDuration = minSpeech
	}
	if minSilence > 0 {
		m.cfg.MinSilenceDuration = minSilence
	}
	if pad >= 0 {
		m.cfg.SpeechPad = pad
	}
	m.agg.SetMaxDuration(maxSegment)
}

// Observe feeds one frame and its decision through the machine.
func (m *Machine) Observe(frame audio.Frame, d Decision) Output {
	var out Output

	voice := d.Voice()
	m.recordRecent(voice)
	dur := frame.Duration(m.cfg.SampleRate)

	switch m.state {
	case StateSilence:
		if voice {
			m.state = StatePossibleSpeech
			m.pending = append(m.pending[:0], frame)
			m.speechRun = dur
			m.maybeConfirmSpeech(frame, &out)
		} else {
			m.pushPreroll(frame)
		}

	case StatePossibleSpeech:
		if voice {
			m.pending = append(m.pending, frame)
			m.speechRun += dur
			m.maybeConfirmSpeech(frame, &out)
		} else {
			// Spurious blip: the candidates go back to being look-back
			// material and no event is emitted.
			for _, f := range m.pending {
				m.pushPreroll(f)
			}
			m.pushPreroll(frame)
			m.pending = m.pending[:0]
			m.speechRun = 0
			m.state = StateSilence
		}

	case StateSpeech:
		if voice {
			m.lastVoiceEnd = frameEnd(frame, m.cfg.SampleRate)
			m.addToSegment(frame, &out)
		} else {
			m.state = StatePossibleSilence
			m.trailing = append(m.trailing[:0], frame)
			m.silenceRun = dur
			m.maybeConfirmSilence(frame, &out)
		}

	case StatePossibleSilence:
		if voice {
			// Speech resumed before the silence requirement was met: the
			// pause stays inside the segment, uninterrupted, no event.
			for _, f := range m.trailing {
				m.addToSegment(f, &out)
			}
			m.trailing = m.trailing[:0]
			m.silenceRun = 0
			m.lastVoiceEnd = frameEnd(frame, m.cfg.SampleRate)
			m.addToSegment(frame, &out)
			m.state = StateSpeech
		} else {
			m.trailing = append(m.trailing, frame)
			m.silenceRun += dur
			m.maybeConfirmSilence(frame, &out)
		}
	}

	return out
}

// Finish flushes the machine on shutdown: an open segment is closed as
// truncated and a truncated SpeechEnd is emitted. Unconfirmed candidate
// speech is discarded silently. The machine returns to StateSilence.
func (m *Machine) Finish() Output {
	var out Output

	switch m.state {
	case StateSpeech, StatePossibleSilence:
		// Give the segment its trailing pad if silence frames are on hand.
		m.appendTrailingPad(&out)
		if seg := m.agg.Close(true); seg != nil {
			out.Segments = append(out.Segments, seg)
			out.Events = append(out.Events, Event{
				Kind:      SpeechEnd,
				Timestamp: seg.End,
				Truncated: true,
			})
			m.speechEnds++
		}
	}

	m.state = StateSilence
	m.pending = m.pending[:0]
	m.trailing = m.trailing[:0]
	m.preroll = m.preroll[:0]
	m.speechRun = 0
	m.silenceRun = 0
	return out
}

// Stats is a point-in-time view of voice activity, mirroring what the
// dashboard and /stats endpoint expose.
type Stats struct {
	// State is the current machine state.
	State State

	// LastVoiceEnd is the stream offset of the most recent confirmed voice
	// frame's end.
	LastVoiceEnd time.Duration

	// VoiceRatio is the fraction of the last few decisions that were
	// voice.
	VoiceRatio float64

	// SpeechStarts and SpeechEnds count emitted events.
	SpeechStarts, SpeechEnds uint64
}

// Stats returns the current voice-activity statistics.
func (m *Machine) Stats() Stats {
	var voiced int
	for _, v := range m.recent {
		if v {
			voiced++
		}
	}
	ratio := 0.0
	if len(m.recent) > 0 {
		ratio = float64(voiced) / float64(len(m.recent))
	}
	return Stats{
		State:        m.state,
		LastVoiceEnd: m.lastVoiceEnd,
		VoiceRatio:   ratio,
		SpeechStarts: m.speechStarts,
		SpeechEnds:   m.speechEnds,
	}
}

func (m *Machine) maybeConfirmSpeech(frame audio.Frame, out *Output) {
	if m.speechRun < m.cfg.MinSpeechDuration {
		return
	}

	// Open the segment SpeechPad before the first voice frame using the
	// buffered look-back.
	pad := m.prerollPad()
	start := m.pending[0].Timestamp
	if len(pad) > 0 {
		start = pad[0].Timestamp
	}
	m.agg.Begin(start)
	for _, f := range pad {
		m.addToSegment(f, out)
	}
	for _, f := range m.pending {
		m.addToSegment(f, out)
	}

	m.lastVoiceEnd = frameEnd(frame, m.cfg.SampleRate)
	m.preroll = m.preroll[:0]
	m.pending = m.pending[:0]
	m.speechRun = 0
	m.state = StateSpeech
	m.speechStarts++

	out.Events = append(out.Events, Event{
		Kind:      SpeechStart,
		Timestamp: frameEnd(frame, m.cfg.SampleRate),
	})
}

func (m *Machine) maybeConfirmSilence(frame audio.Frame, out *Output) {
	if m.silenceRun < m.cfg.MinSilenceDuration {
		return
	}

	leftover := m.appendTrailingPad(out)
	if seg := m.agg.Close(false); seg != nil {
		out.Segments = append(out.Segments, seg)
	}
	out.Events = append(out.Events, Event{
		Kind:      SpeechEnd,
		Timestamp: frameEnd(frame, m.cfg.SampleRate),
	})
	m.speechEnds++

	// Silence frames past the pad become look-back material again.
	for _, f := range leftover {
		m.pushPreroll(f)
	}
	m.trailing = m.trailing[:0]
	m.silenceRun = 0
	m.state = StateSilence
}

// appendTrailingPad moves up to SpeechPad worth of trailing silence frames
// into the open segment and returns the leftover trailing frames.
func (m *Machine) appendTrailingPad(out *Output) []audio.Frame {
	var included time.Duration
	i := 0
	for ; i < len(m.trailing); i++ {
		if included >= m.cfg.SpeechPad {
			break
		}
		m.addToSegment(m.trailing[i], out)
		included += m.trailing[i].Duration(m.cfg.SampleRate)
	}
	return m.trailing[i:]
}

// addToSegment forwards a frame to the aggregator, collecting a force-closed
// segment if the size bound was hit.
func (m *Machine) addToSegment(f audio.Frame, out *Output) {
	if seg := m.agg.Add(f); seg != nil {
		out.Segments = append(out.Segments, seg)
	}
}

// pushPreroll keeps frame in the look-back buffer, trimming the front so the
// buffer covers just past SpeechPad.
func (m *Machine) pushPreroll(f audio.Frame) {
	if m.cfg.SpeechPad == 0 {
		return
	}
	m.preroll = append(m.preroll, f)

	var total time.Duration
	for _, p := range m.preroll {
		total += p.Duration(m.cfg.SampleRate)
	}
	for len(m.preroll) > 1 {
		first := m.preroll[0].Duration(m.cfg.SampleRate)
		if total-first < m.cfg.SpeechPad {
			break
		}
		total -= first
		m.preroll = m.preroll[1:]
	}
}

// prerollPad returns the buffered look-back frames covering SpeechPad.
func (m *Machine) prerollPad() []audio.Frame {
	return m.preroll
}

func (m *Machine) recordRecent(voice bool) {
	if len(m.recent) < voiceRatioWindow {
		m.recent = append(m.recent, voice)
		return
	}
	m.recent[m.recentPos] = voice
	m.recentPos = (m.recentPos + 1) % voiceRatioWindow
}
