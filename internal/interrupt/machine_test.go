package interrupt_test

import (
	"testing"
	"time"

	"github.com/tkoehlman/vadgate/internal/interrupt"
	"github.com/tkoehlman/vadgate/pkg/audio"
)

const (
	testRate      = 16000
	testFrameSize = 512 // 32 ms at 16 kHz
	frameDur      = testFrameSize * time.Second / testRate
)

func newMachine(t *testing.T, cfg interrupt.MachineConfig) *interrupt.Machine {
	t.Helper()
	if cfg.SampleRate == 0 {
		cfg.SampleRate = testRate
	}
	agg := interrupt.NewAggregator(cfg.SampleRate, cfg.MaxSegmentDuration)
	return interrupt.NewMachine(cfg, agg)
}

func frameAt(index uint64) audio.Frame {
	return audio.Frame{
		Samples:   make([]int16, testFrameSize),
		Index:     index,
		Timestamp: time.Duration(index) * frameDur,
	}
}

func decide(f audio.Frame, voice bool) interrupt.Decision {
	prob := 0.0
	if voice {
		prob = 0.9
	}
	return interrupt.Decision{
		Index:       f.Index,
		Timestamp:   f.Timestamp,
		Probability: prob,
		Threshold:   0.5,
	}
}

// feed runs n frames of the given kind starting at index and collects all
// outputs.
func feed(m *interrupt.Machine, start uint64, n int, voice bool) ([]interrupt.Event, []*interrupt.Segment) {
	var events []interrupt.Event
	var segments []*interrupt.Segment
	for i := range n {
		f := frameAt(start + uint64(i))
		out := m.Observe(f, decide(f, voice))
		events = append(events, out.Events...)
		segments = append(segments, out.Segments...)
	}
	return events, segments
}

func TestMachine_SpeechStartAfterMinSpeechDuration(t *testing.T) {
	t.Parallel()
	m := newMachine(t, interrupt.MachineConfig{
		MinSpeechDuration: 250 * time.Millisecond,
		SpeechPad:         0,
	})

	// 7 voice frames = 224 ms: not yet confirmed.
	events, _ := feed(m, 0, 7, true)
	if len(events) != 0 {
		t.Fatalf("got %d events before min speech duration, want 0", len(events))
	}
	if m.State() != interrupt.StatePossibleSpeech {
		t.Fatalf("state: got %v, want PossibleSpeech", m.State())
	}

	// The 8th frame crosses 250 ms.
	f := frameAt(7)
	out := m.Observe(f, decide(f, true))
	if len(out.Events) != 1 {
		t.Fatalf("got %d events on confirming frame, want 1", len(out.Events))
	}
	ev := out.Events[0]
	if ev.Kind != interrupt.SpeechStart {
		t.Errorf("event kind: got %v, want SpeechStart", ev.Kind)
	}
	wantTS := 8 * frameDur
	if ev.Timestamp != wantTS {
		t.Errorf("event timestamp: got %v, want %v", ev.Timestamp, wantTS)
	}
	if m.State() != interrupt.StateSpeech {
		t.Errorf("state: got %v, want Speech", m.State())
	}
}

func TestMachine_SpuriousBlipEmitsNothing(t *testing.T) {
	t.Parallel()
	m := newMachine(t, interrupt.MachineConfig{
		MinSpeechDuration: 250 * time.Millisecond,
	})

	// 3 voice frames (96 ms) then silence: a cough, not speech.
	events, segments := feed(m, 0, 3, true)
	ev2, seg2 := feed(m, 3, 5, false)
	events = append(events, ev2...)
	segments = append(segments, seg2...)

	if len(events) != 0 {
		t.Errorf("got %d events for sub-threshold blip, want 0", len(events))
	}
	if len(segments) != 0 {
		t.Errorf("got %d segments for sub-threshold blip, want 0", len(segments))
	}
	if m.State() != interrupt.StateSilence {
		t.Errorf("state: got %v, want Silence", m.State())
	}
}

func TestMachine_SpeechEndAfterMinSilenceDuration(t *testing.T) {
	t.Parallel()
	m := newMachine(t, interrupt.MachineConfig{
		MinSpeechDuration:  250 * time.Millisecond,
		MinSilenceDuration: 100 * time.Millisecond,
		SpeechPad:          0,
	})

	feed(m, 0, 10, true) // confirmed speech

	// 3 silence frames = 96 ms: still possible silence.
	events, _ := feed(m, 10, 3, false)
	if len(events) != 0 {
		t.Fatalf("got %d events before min silence duration, want 0", len(events))
	}
	if m.State() != interrupt.StatePossibleSilence {
		t.Fatalf("state: got %v, want PossibleSilence", m.State())
	}

	// The 4th silence frame crosses 100 ms.
	f := frameAt(13)
	out := m.Observe(f, decide(f, false))
	if len(out.Events) != 1 {
		t.Fatalf("got %d events on confirming frame, want 1", len(out.Events))
	}
	if out.Events[0].Kind != interrupt.SpeechEnd {
		t.Errorf("event kind: got %v, want SpeechEnd", out.Events[0].Kind)
	}
	if out.Events[0].Truncated {
		t.Error("naturally confirmed SpeechEnd should not be truncated")
	}
	if len(out.Segments) != 1 {
		t.Fatalf("got %d segments, want 1", len(out.Segments))
	}
	if m.State() != interrupt.StateSilence {
		t.Errorf("state: got %v, want Silence", m.State())
	}
}

func TestMachine_PauseShorterThanMinSilenceStaysInSegment(t *testing.T) {
	t.Parallel()
	m := newMachine(t, interrupt.MachineConfig{
		MinSpeechDuration:  250 * time.Millisecond,
		MinSilenceDuration: 100 * time.Millisecond,
		SpeechPad:          0,
	})

	feed(m, 0, 10, true)               // confirmed speech
	events, _ := feed(m, 10, 2, false) // 64 ms pause
	ev2, _ := feed(m, 12, 5, true)     // speech resumes
	events = append(events, ev2...)

	if len(events) != 0 {
		t.Fatalf("intra-utterance pause produced %d events, want 0", len(events))
	}
	if m.State() != interrupt.StateSpeech {
		t.Errorf("state: got %v, want Speech", m.State())
	}

	// Close it out and verify the pause frames stayed inside the segment.
	_, segments := feed(m, 17, 4, false)
	if len(segments) != 1 {
		t.Fatalf("got %d segments, want 1", len(segments))
	}
	if got, want := len(segments[0].Frames), 17; got != want {
		t.Errorf("segment frames: got %d, want %d (pause must stay inside)", got, want)
	}
}

func TestMachine_SpeechPadExtendsSegment(t *testing.T) {
	t.Parallel()
	m := newMachine(t, interrupt.MachineConfig{
		MinSpeechDuration:  250 * time.Millisecond,
		MinSilenceDuration: 100 * time.Millisecond,
		SpeechPad:          30 * time.Millisecond,
	})

	// Silence first so look-back material exists, then speech.
	feed(m, 0, 5, false)
	feed(m, 5, 10, true)
	_, segments := feed(m, 15, 4, false)

	if len(segments) != 1 {
		t.Fatalf("got %d segments, want 1", len(segments))
	}
	seg := segments[0]

	// Look-back: the segment starts at the padded silence frame before the
	// first voice frame, not at the voice frame itself.
	voiceStart := 5 * frameDur
	if seg.Start >= voiceStart {
		t.Errorf("segment start %v should precede first voice frame %v", seg.Start, voiceStart)
	}
	// Trailing pad: the segment ends after the last voice frame.
	voiceEnd := 15 * frameDur
	if seg.End <= voiceEnd {
		t.Errorf("segment end %v should extend past last voice frame %v", seg.End, voiceEnd)
	}
	if seg.Truncated {
		t.Error("naturally closed segment should not be truncated")
	}
}

func TestMachine_MaxSegmentDurationForceCloses(t *testing.T) {
	t.Parallel()
	m := newMachine(t, interrupt.MachineConfig{
		MinSpeechDuration:  250 * time.Millisecond,
		SpeechPad:          0,
		MaxSegmentDuration: 500 * time.Millisecond,
	})

	// 40 voice frames = 1.28 s of continuous speech.
	events, segments := feed(m, 0, 40, true)

	var starts int
	for _, ev := range events {
		if ev.Kind == interrupt.SpeechStart {
			starts++
		}
	}
	if starts != 1 {
		t.Errorf("continuous speech produced %d SpeechStart events, want 1", starts)
	}

	if len(segments) < 2 {
		t.Fatalf("got %d force-closed segments, want at least 2", len(segments))
	}
	for i, seg := range segments {
		if !seg.Truncated {
			t.Errorf("force-closed segment %d should be marked truncated", i)
		}
		if i > 0 && seg.Start != segments[i-1].End {
			t.Errorf("segment %d should open where %d closed: %v vs %v",
				i, i-1, seg.Start, segments[i-1].End)
		}
	}
}

func TestMachine_FinishTruncatesOpenSegment(t *testing.T) {
	t.Parallel()
	m := newMachine(t, interrupt.MachineConfig{
		MinSpeechDuration: 250 * time.Millisecond,
		SpeechPad:         0,
	})

	feed(m, 0, 10, true) // confirmed speech, segment open

	out := m.Finish()
	if len(out.Segments) != 1 {
		t.Fatalf("got %d segments from Finish, want 1", len(out.Segments))
	}
	if !out.Segments[0].Truncated {
		t.Error("shutdown-closed segment should be truncated")
	}
	if len(out.Events) != 1 || out.Events[0].Kind != interrupt.SpeechEnd {
		t.Fatalf("Finish events: got %v, want one SpeechEnd", out.Events)
	}
	if !out.Events[0].Truncated {
		t.Error("shutdown SpeechEnd should be truncated")
	}
	if m.State() != interrupt.StateSilence {
		t.Errorf("state after Finish: got %v, want Silence", m.State())
	}
}

func TestMachine_FinishDiscardsUnconfirmedSpeech(t *testing.T) {
	t.Parallel()
	m := newMachine(t, interrupt.MachineConfig{
		MinSpeechDuration: 250 * time.Millisecond,
	})

	feed(m, 0, 3, true) // possible speech only

	out := m.Finish()
	if len(out.Events) != 0 || len(out.Segments) != 0 {
		t.Errorf("unconfirmed speech should flush silently, got %d events %d segments",
			len(out.Events), len(out.Segments))
	}
}

func TestMachine_StatsTrackActivity(t *testing.T) {
	t.Parallel()
	m := newMachine(t, interrupt.MachineConfig{
		MinSpeechDuration:  250 * time.Millisecond,
		MinSilenceDuration: 100 * time.Millisecond,
		SpeechPad:          0,
	})

	feed(m, 0, 10, true)
	feed(m, 10, 4, false)

	stats := m.Stats()
	if stats.SpeechStarts != 1 {
		t.Errorf("SpeechStarts: got %d, want 1", stats.SpeechStarts)
	}
	if stats.SpeechEnds != 1 {
		t.Errorf("SpeechEnds: got %d, want 1", stats.SpeechEnds)
	}
	if stats.State != interrupt.StateSilence {
		t.Errorf("state: got %v, want Silence", stats.State)
	}
	wantVoiceEnd := 10 * frameDur
	if stats.LastVoiceEnd != wantVoiceEnd {
		t.Errorf("LastVoiceEnd: got %v, want %v", stats.LastVoiceEnd, wantVoiceEnd)
	}
	if stats.VoiceRatio <= 0 || stats.VoiceRatio >= 1 {
		t.Errorf("VoiceRatio: got %f, want within (0, 1)", stats.VoiceRatio)
	}
}

func TestDecision_TieCountsAsVoice(t *testing.T) {
	t.Parallel()
	d := interrupt.Decision{Probability: 0.5, Threshold: 0.5}
	if !d.Voice() {
		t.Error("probability equal to threshold must count as voice")
	}
	d.Probability = 0.4999
	if d.Voice() {
		t.Error("probability below threshold must not count as voice")
	}
}
