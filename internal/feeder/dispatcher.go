package feeder

import (
	"log/slog"
	"sync"
	"time"

	"github.com/tkoehlman/vadgate/internal/interrupt"
)

// Subscriber receives interruption events.
type Subscriber func(ev interrupt.Event)

// Dispatcher fans interruption events out to registered subscribers and to
// the playback controller. Delivery is synchronous and in registration
// order, preserving the pipeline's chronological event ordering; a panicking
// subscriber is isolated, logged, and never suppresses delivery to the rest.
type Dispatcher struct {
	mu       sync.Mutex
	playback PlaybackController
	subs     []Subscriber
}

// NewDispatcher creates a dispatcher. playback may be nil when no playback
// integration exists (offline runs).
func NewDispatcher(playback PlaybackController) *Dispatcher {
	return &Dispatcher{playback: playback}
}

// Subscribe registers a subscriber for all subsequent events.
func (d *Dispatcher) Subscribe(s Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs = append(d.subs, s)
}

// Dispatch delivers one event. SpeechStart reaches the playback controller
// first — it is the barge-in trigger and the most latency-sensitive delivery
// in the subsystem — then subscribers run in order.
func (d *Dispatcher) Dispatch(ev interrupt.Event) {
	d.mu.Lock()
	playback := d.playback
	subs := d.subs
	d.mu.Unlock()

	if playback != nil {
		switch ev.Kind {
		case interrupt.SpeechStart:
			d.guard("playback", func() { playback.Interrupt(ev.Timestamp) })
		case interrupt.SpeechEnd:
			d.guard("playback", func() { playback.Resume(ev.Timestamp) })
		}
	}

	for i, s := range subs {
		s := s
		d.guard("subscriber", func() { s(ev) }, "index", i)
	}
}

// guard runs fn, recovering and logging a panic so one bad consumer cannot
// halt event delivery.
func (d *Dispatcher) guard(kind string, fn func(), args ...any) {
	defer func() {
		if r := recover(); r != nil {
			logArgs := append([]any{"consumer", kind, "panic", r}, args...)
			slog.Error("interruption event consumer panicked", logArgs...)
		}
	}()
	fn()
}

// noopPlayback is used when callers pass a nil controller explicitly but the
// dashboard still wants interrupt timing.
type noopPlayback struct{}

func (noopPlayback) Interrupt(time.Duration) {}
func (noopPlayback) Resume(time.Duration)    {}

// NopPlayback returns a PlaybackController that does nothing.
func NopPlayback() PlaybackController { return noopPlayback{} }
