package audio_test

import (
	"sync"
	"testing"

	"github.com/tkoehlman/vadgate/pkg/audio"
)

func seq(start, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(start + i)
	}
	return out
}

func TestRing_ReadReturnsSamplesInOrder(t *testing.T) {
	t.Parallel()
	r := audio.NewRing(64)

	r.Write(seq(0, 10))
	r.Write(seq(10, 10))

	dst := make([]int16, 20)
	n := r.Read(dst)
	if n != 20 {
		t.Fatalf("Read: got %d samples, want 20", n)
	}
	for i, v := range dst {
		if v != int16(i) {
			t.Fatalf("sample %d: got %d, want %d", i, v, i)
		}
	}
}

func TestRing_ReadEmptyReturnsZero(t *testing.T) {
	t.Parallel()
	r := audio.NewRing(16)

	dst := make([]int16, 8)
	if n := r.Read(dst); n != 0 {
		t.Errorf("Read on empty ring: got %d, want 0", n)
	}
	if r.Overflows() != 0 {
		t.Errorf("Overflows on empty ring: got %d, want 0", r.Overflows())
	}
}

func TestRing_PartialRead(t *testing.T) {
	t.Parallel()
	r := audio.NewRing(32)
	r.Write(seq(0, 5))

	dst := make([]int16, 16)
	if n := r.Read(dst); n != 5 {
		t.Fatalf("Read: got %d samples, want 5", n)
	}
	if n := r.Read(dst); n != 0 {
		t.Errorf("second Read: got %d samples, want 0", n)
	}
}

func TestRing_WrapAround(t *testing.T) {
	t.Parallel()
	r := audio.NewRing(8)
	dst := make([]int16, 8)

	// Fill, drain half, refill past the physical end.
	r.Write(seq(0, 8))
	if n := r.Read(dst[:4]); n != 4 {
		t.Fatalf("drain: got %d, want 4", n)
	}
	r.Write(seq(8, 4))

	n := r.Read(dst)
	if n != 8 {
		t.Fatalf("Read: got %d samples, want 8", n)
	}
	for i, v := range dst {
		want := int16(4 + i)
		if v != want {
			t.Fatalf("sample %d: got %d, want %d", i, v, want)
		}
	}
}

func TestRing_OverflowEvictsOldest(t *testing.T) {
	t.Parallel()
	const capacity = 16
	r := audio.NewRing(capacity)

	// capacity + k samples without any read: exactly k evicted, last
	// capacity retained in order.
	const k = 5
	r.Write(seq(0, capacity+k))

	if got := r.Overflows(); got != k {
		t.Errorf("Overflows: got %d, want %d", got, k)
	}

	dst := make([]int16, capacity)
	n := r.Read(dst)
	if n != capacity {
		t.Fatalf("Read: got %d samples, want %d", n, capacity)
	}
	for i, v := range dst {
		want := int16(k + i)
		if v != want {
			t.Fatalf("sample %d: got %d, want %d", i, v, want)
		}
	}

	// The accounting must not double-count once observed by Read.
	if got := r.Overflows(); got != k {
		t.Errorf("Overflows after read: got %d, want %d", got, k)
	}
}

func TestRing_WriteLargerThanCapacity(t *testing.T) {
	t.Parallel()
	const capacity = 8
	r := audio.NewRing(capacity)

	r.Write(seq(0, 3*capacity))

	if got := r.Overflows(); got != 2*capacity {
		t.Errorf("Overflows: got %d, want %d", got, 2*capacity)
	}

	dst := make([]int16, capacity)
	if n := r.Read(dst); n != capacity {
		t.Fatalf("Read: got %d, want %d", n, capacity)
	}
	for i, v := range dst {
		want := int16(2*capacity + i)
		if v != want {
			t.Fatalf("sample %d: got %d, want %d", i, v, want)
		}
	}
}

func TestRing_AvailableTracksUnread(t *testing.T) {
	t.Parallel()
	r := audio.NewRing(32)

	if got := r.Available(); got != 0 {
		t.Errorf("Available empty: got %d, want 0", got)
	}
	r.Write(seq(0, 12))
	if got := r.Available(); got != 12 {
		t.Errorf("Available: got %d, want 12", got)
	}
	dst := make([]int16, 5)
	r.Read(dst)
	if got := r.Available(); got != 7 {
		t.Errorf("Available after read: got %d, want 7", got)
	}
}

// TestRing_ConcurrentProducerConsumer hammers the SPSC contract: every
// sample the consumer sees must be in strictly increasing order (drops from
// overflow are fine, reordering or duplication is not).
func TestRing_ConcurrentProducerConsumer(t *testing.T) {
	t.Parallel()
	r := audio.NewRing(256)

	const total = 30_000 // fits int16 so each sample is its own counter
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		for off := 0; off < total; off += 64 {
			n := 64
			if off+n > total {
				n = total - off
			}
			r.Write(seq(off, n))
		}
	}()

	var read int
	last := -1
	dst := make([]int16, 128)
	for {
		n := r.Read(dst)
		if n == 0 {
			if read+int(r.Overflows()) >= total && r.Available() == 0 {
				break
			}
			continue
		}
		for _, v := range dst[:n] {
			if int(v) <= last {
				t.Fatalf("out-of-order sample: %d after %d", v, last)
			}
			last = int(v)
		}
		read += n
	}
	wg.Wait()

	if got := read + int(r.Overflows()) + r.Available(); got < total {
		t.Errorf("accounting: read %d + overflow %d + pending %d < produced %d",
			read, r.Overflows(), r.Available(), total)
	}
}
