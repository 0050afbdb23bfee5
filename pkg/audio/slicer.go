package audio

import "time"

// Slicer groups samples drained from a [Ring] into fixed-size frames for the
// VAD. Frames are emitted in strict arrival order and always contain exactly
// frameSize samples; a shorter frame is only ever produced by an explicit
// [Slicer.Flush] on shutdown.
//
// A Slicer is owned by the processing goroutine and is not safe for
// concurrent use.
type Slicer struct {
	ring       *Ring
	frameSize  int
	sampleRate int

	scratch []int16
	pending []int16
	index   uint64

	// elapsed tracks the stream-time offset of the next sample to be framed.
	elapsed uint64 // in samples
}

// NewSlicer creates a slicer that pulls frameSize-sample frames from ring.
// sampleRate is used to derive frame timestamps.
func NewSlicer(ring *Ring, frameSize, sampleRate int) *Slicer {
	if frameSize <= 0 {
		frameSize = 1
	}
	return &Slicer{
		ring:       ring,
		frameSize:  frameSize,
		sampleRate: sampleRate,
		scratch:    make([]int16, frameSize),
		pending:    make([]int16, 0, frameSize),
	}
}

// Next returns the next full frame, or false when fewer than frameSize
// samples are buffered. It never blocks; the caller decides how to wait
// between attempts.
//
// The returned frame's sample slice is freshly allocated and owned by the
// caller.
func (s *Slicer) Next() (Frame, bool) {
	for len(s.pending) < s.frameSize {
		n := s.ring.Read(s.scratch)
		if n == 0 {
			return Frame{}, false
		}
		s.pending = append(s.pending, s.scratch[:n]...)
	}

	out := make([]int16, s.frameSize)
	copy(out, s.pending[:s.frameSize])
	s.pending = s.pending[:copy(s.pending, s.pending[s.frameSize:])]

	return s.emit(out), true
}

// Flush drains any remaining buffered samples as one final short frame.
// Returns false if nothing is pending. Call only on shutdown, after the
// producer has stopped.
func (s *Slicer) Flush() (Frame, bool) {
	// Pull whatever is still sitting in the ring.
	for {
		n := s.ring.Read(s.scratch)
		if n == 0 {
			break
		}
		s.pending = append(s.pending, s.scratch[:n]...)
	}
	if len(s.pending) == 0 {
		return Frame{}, false
	}
	out := make([]int16, len(s.pending))
	copy(out, s.pending)
	s.pending = s.pending[:0]
	return s.emit(out), true
}

func (s *Slicer) emit(samples []int16) Frame {
	f := Frame{
		Samples:   samples,
		Index:     s.index,
		Timestamp: s.offset(),
	}
	s.index++
	s.elapsed += uint64(len(samples))
	return f
}

func (s *Slicer) offset() time.Duration {
	if s.sampleRate <= 0 {
		return 0
	}
	return time.Duration(s.elapsed) * time.Second / time.Duration(s.sampleRate)
}
