package observe

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// PipelineStats collects per-frame latency samples and counter values for
// the /stats endpoint. It maintains a bounded ring buffer of recent latency
// observations from which percentiles are computed on demand — cheaper to
// query in-process than scraping the Prometheus histogram.
//
// Thread-safe for concurrent use.
type PipelineStats struct {
	mu sync.Mutex

	frame latencyBuffer

	framesProcessed int64
	vadErrors       int64
	bargeIns        int64
	segments        int64
	overflowSamples uint64

	threshold  float64
	noiseFloor float64
	state      string
}

// NewPipelineStats creates a PipelineStats with the given window size
// (maximum number of latency samples retained).
func NewPipelineStats(windowSize int) *PipelineStats {
	if windowSize <= 0 {
		windowSize = 256
	}
	return &PipelineStats{frame: newLatencyBuffer(windowSize)}
}

// RecordFrame records one processed frame: its processing latency and the
// threshold state it left behind.
func (ps *PipelineStats) RecordFrame(latency time.Duration, threshold, noiseFloor float64, state string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.frame.add(latency)
	ps.framesProcessed++
	ps.threshold = threshold
	ps.noiseFloor = noiseFloor
	ps.state = state
}

// IncrVADErrors increments the degraded-frame counter.
func (ps *PipelineStats) IncrVADErrors() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.vadErrors++
}

// IncrBargeIns increments the barge-in trigger counter.
func (ps *PipelineStats) IncrBargeIns() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.bargeIns++
}

// IncrSegments increments the closed-segment counter.
func (ps *PipelineStats) IncrSegments() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.segments++
}

// SetOverflow records the ring buffer's cumulative overflow counter.
func (ps *PipelineStats) SetOverflow(samples uint64) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.overflowSamples = samples
}

// LatencyPercentiles holds average, p50, and p99 frame processing latency.
type LatencyPercentiles struct {
	Avg time.Duration `json:"avg_ns"`
	P50 time.Duration `json:"p50_ns"`
	P99 time.Duration `json:"p99_ns"`
}

// Snapshot captures a point-in-time view of all pipeline statistics.
type Snapshot struct {
	Frame           LatencyPercentiles `json:"frame_latency"`
	FramesProcessed int64              `json:"frames_processed"`
	VADErrors       int64              `json:"vad_errors"`
	BargeIns        int64              `json:"barge_ins"`
	Segments        int64              `json:"segments"`
	OverflowSamples uint64             `json:"overflow_samples"`
	Threshold       float64            `json:"threshold"`
	NoiseFloor      float64            `json:"noise_floor"`
	State           string             `json:"state"`
}

// Snapshot returns a point-in-time view of all pipeline statistics.
func (ps *PipelineStats) Snapshot() Snapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return Snapshot{
		Frame:           ps.frame.percentiles(),
		FramesProcessed: ps.framesProcessed,
		VADErrors:       ps.vadErrors,
		BargeIns:        ps.bargeIns,
		Segments:        ps.segments,
		OverflowSamples: ps.overflowSamples,
		Threshold:       ps.threshold,
		NoiseFloor:      ps.noiseFloor,
		State:           ps.state,
	}
}

// Handler serves the snapshot as JSON.
func (ps *PipelineStats) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(ps.Snapshot())
	})
}

// latencyBuffer is a bounded ring buffer of duration samples.
type latencyBuffer struct {
	data []time.Duration
	size int
	pos  int
	full bool
}

func newLatencyBuffer(size int) latencyBuffer {
	return latencyBuffer{
		data: make([]time.Duration, size),
		size: size,
	}
}

func (lb *latencyBuffer) add(d time.Duration) {
	lb.data[lb.pos] = d
	lb.pos++
	if lb.pos == lb.size {
		lb.pos = 0
		lb.full = true
	}
}

func (lb *latencyBuffer) percentiles() LatencyPercentiles {
	n := lb.size
	if !lb.full {
		n = lb.pos
	}
	if n == 0 {
		return LatencyPercentiles{}
	}

	sorted := make([]time.Duration, n)
	copy(sorted, lb.data[:n])
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return LatencyPercentiles{
		Avg: sum / time.Duration(n),
		P50: sorted[percentileIndex(n, 50)],
		P99: sorted[percentileIndex(n, 99)],
	}
}

func percentileIndex(n, pct int) int {
	idx := n*pct/100 - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return idx
}
