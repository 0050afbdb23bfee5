package audio

import "time"

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	// SampleRate in Hz (e.g., 16000 for VAD/STT, 8000 for telephony ingest).
	SampleRate int

	// Channels: 1 for mono, 2 for interleaved stereo.
	Channels int
}

// Block represents one capture-callback delivery of audio flowing into the
// pipeline. Blocks are the atomic unit of capture transport — produced by a
// capture source at a fixed device-driven cadence and copied once into the
// ring buffer.
type Block struct {
	// Samples is signed 16-bit PCM. For stereo sources the channels are
	// interleaved L/R.
	Samples []int16

	// SampleRate in Hz.
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp marks when this block was captured, relative to stream start.
	Timestamp time.Duration
}

// Frame is a fixed-length run of mono samples drawn from the ring buffer in
// strict arrival order. Frames are the unit the VAD operates on; they never
// overlap and, except for the final flush on shutdown, always contain exactly
// the configured frame size.
type Frame struct {
	// Samples is mono signed 16-bit PCM of the configured frame length.
	Samples []int16

	// Index is the zero-based position of this frame in the stream.
	Index uint64

	// Timestamp is the capture time of the first sample, relative to
	// stream start.
	Timestamp time.Duration
}

// Duration returns the wall time this frame spans at the given sample rate.
func (f Frame) Duration(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(sampleRate)
}

// BytesToInt16 converts little-endian 16-bit PCM bytes to samples. A trailing
// odd byte is dropped.
func BytesToInt16(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}
	return out
}

// Int16ToBytes converts samples to little-endian 16-bit PCM bytes.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}
