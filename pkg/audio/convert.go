package audio

import (
	"log/slog"
	"sync"
)

// Converter converts Blocks to a target format. It logs a warning on the
// first format mismatch it sees so a misconfigured capture agent is visible
// without flooding the log. Create one per stream; not designed for shared
// use across goroutines.
type Converter struct {
	Target         Format
	warnedMismatch sync.Once
}

// Convert converts a block to the target format. If the source format already
// matches the target, the block is returned unchanged (zero allocation).
// Conversion order: downmix first, then resample, so stereo is never
// resampled when the target is mono.
func (c *Converter) Convert(block Block) Block {
	if block.SampleRate == c.Target.SampleRate && block.Channels == c.Target.Channels {
		return block
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from_rate", block.SampleRate, "from_channels", block.Channels,
			"to_rate", c.Target.SampleRate, "to_channels", c.Target.Channels,
		)
	})

	samples := block.Samples
	rate := block.SampleRate
	channels := block.Channels

	if channels == 2 && c.Target.Channels == 1 {
		samples = StereoToMono(samples)
		channels = 1
	}
	if rate != c.Target.SampleRate && channels == 1 {
		samples = ResampleMono(samples, rate, c.Target.SampleRate)
		rate = c.Target.SampleRate
	}

	return Block{
		Samples:    samples,
		SampleRate: rate,
		Channels:   channels,
		Timestamp:  block.Timestamp,
	}
}

// StereoToMono averages interleaved L+R sample pairs into mono output.
// Uses int32 arithmetic to prevent overflow.
func StereoToMono(samples []int16) []int16 {
	frames := len(samples) / 2
	out := make([]int16, frames)
	for i := range frames {
		out[i] = int16((int32(samples[i*2]) + int32(samples[i*2+1])) / 2)
	}
	return out
}

// ResampleMono resamples mono samples from srcRate to dstRate using linear
// interpolation. If srcRate == dstRate, the input is returned unchanged.
func ResampleMono(samples []int16, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]int16, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstLen {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < len(samples) {
			s1 = samples[srcIdx+1]
		}
		out[i] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}
