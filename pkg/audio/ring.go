// Package audio provides the sample types and real-time transport primitives
// for the vadgate capture pipeline.
//
// The central type is [Ring], a bounded single-producer/single-consumer sample
// queue that decouples the real-time capture callback from the processing
// goroutine. [Slicer] groups the drained samples into fixed-size frames for
// the VAD, and the conversion helpers adapt foreign capture formats (stereo,
// non-native sample rates) to the mono format the pipeline expects.
package audio

import "sync/atomic"

// Ring is a fixed-capacity circular store of int16 samples with a
// single-producer/single-consumer contract: exactly one goroutine calls
// [Ring.Write] (the capture callback) and exactly one calls [Ring.Read]
// (the processing goroutine).
//
// Write never blocks, never allocates, and never takes a lock — it performs a
// bounded copy and advances the write cursor. When the consumer falls behind,
// the oldest unread samples are evicted to make room; eviction is counted and
// surfaced via [Ring.Overflows] but is never an error. Samples are always
// read in the order written, and the ring holds at most its capacity of
// most-recent samples.
type Ring struct {
	buf []int16
	cap uint64

	// writeCursor and readCursor are monotonic sample counts, not slot
	// indices: cursor % cap is the slot. Only the producer stores
	// writeCursor; only the consumer stores readCursor.
	writeCursor atomic.Uint64
	readCursor  atomic.Uint64

	// overflows counts samples evicted because the consumer was too slow.
	// Accounted on the consumer side when it detects the write cursor ran
	// past its read window.
	overflows atomic.Uint64
}

// NewRing creates a ring with room for capacity samples.
// Capacity must be positive.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{
		buf: make([]int16, capacity),
		cap: uint64(capacity),
	}
}

// Capacity returns the ring's capacity in samples.
func (r *Ring) Capacity() int { return int(r.cap) }

// Write copies samples into the ring and advances the write cursor.
// Producer side only. Safe to call from a real-time audio callback: no
// allocation, no locks, no blocking. If samples is longer than the ring's
// capacity only the trailing capacity samples survive, which is
// indistinguishable from a very slow consumer.
func (r *Ring) Write(samples []int16) {
	n := uint64(len(samples))
	if n == 0 {
		return
	}
	w := r.writeCursor.Load()

	src := samples
	if n > r.cap {
		// Earlier samples in this call are already evicted.
		src = samples[n-r.cap:]
	}
	pos := (w + n - uint64(len(src))) % r.cap
	first := r.cap - pos
	if uint64(len(src)) <= first {
		copy(r.buf[pos:], src)
	} else {
		copy(r.buf[pos:], src[:first])
		copy(r.buf, src[first:])
	}

	r.writeCursor.Store(w + n)
}

// Read copies up to len(dst) of the oldest unread samples into dst and
// returns the number copied. Consumer side only. Returns 0 when no samples
// are available (underflow is not an error).
//
// If the producer overwrote part of the unread window since the last read,
// the overwritten samples are accounted as overflow and reading resumes at
// the oldest sample still intact.
func (r *Ring) Read(dst []int16) int {
	if len(dst) == 0 {
		return 0
	}
	rd := r.readCursor.Load()

	for {
		w := r.writeCursor.Load()
		if w > rd+r.cap {
			// Producer lapped us; everything older than w-cap is gone.
			skipped := w - r.cap - rd
			r.overflows.Add(skipped)
			rd = w - r.cap
		}
		avail := w - rd
		if avail == 0 {
			r.readCursor.Store(rd)
			return 0
		}
		n := uint64(len(dst))
		if n > avail {
			n = avail
		}

		pos := rd % r.cap
		first := r.cap - pos
		if n <= first {
			copy(dst[:n], r.buf[pos:pos+n])
		} else {
			copy(dst[:first], r.buf[pos:])
			copy(dst[first:n], r.buf)
		}

		// Re-check: if the producer wrapped into the window we just copied,
		// those samples are torn. Account them and retry from the new oldest.
		w2 := r.writeCursor.Load()
		if w2 <= rd+r.cap {
			r.readCursor.Store(rd + n)
			return int(n)
		}
	}
}

// Available returns the number of unread samples, capped at capacity.
// Consumer side only; the value is advisory since the producer may write
// concurrently.
func (r *Ring) Available() int {
	w := r.writeCursor.Load()
	rd := r.readCursor.Load()
	if w <= rd {
		return 0
	}
	avail := w - rd
	if avail > r.cap {
		avail = r.cap
	}
	return int(avail)
}

// Overflows returns the total number of samples evicted so far, including
// evictions not yet observed by the consumer.
func (r *Ring) Overflows() uint64 {
	n := r.overflows.Load()
	w := r.writeCursor.Load()
	rd := r.readCursor.Load()
	if w > rd+r.cap {
		n += w - r.cap - rd
	}
	return n
}
