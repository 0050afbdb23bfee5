// Package replay implements a capture source that plays back a fixed clip of
// samples at a paced, device-like cadence.
//
// It backs the CLI's offline mode and the end-to-end tests: a synthetic clip
// (see [Silence], [Tone], [Noise]) is fed through the real pipeline exactly
// as a live device would deliver it, block by block. Pacing can be disabled
// for tests that want the whole clip as fast as possible.
package replay

import (
	"context"
	"time"

	"github.com/tkoehlman/vadgate/pkg/audio"
	"github.com/tkoehlman/vadgate/pkg/capture"
)

// Source replays a clip of mono samples as capture blocks.
type Source struct {
	clip       []int16
	sampleRate int
	blockSize  int
	paced      bool
	loop       bool
}

// Option configures a [Source].
type Option func(*Source)

// WithPacing makes Start sleep one block duration between deliveries,
// approximating a real device cadence. Off by default so tests run fast.
func WithPacing() Option {
	return func(s *Source) { s.paced = true }
}

// WithLoop makes the source restart the clip when it reaches the end instead
// of returning. Only meaningful together with pacing.
func WithLoop() Option {
	return func(s *Source) { s.loop = true }
}

// New creates a replay source that delivers clip in blockSize-sample blocks
// at sampleRate.
func New(clip []int16, sampleRate, blockSize int, opts ...Option) *Source {
	if blockSize <= 0 {
		blockSize = 1024
	}
	s := &Source{
		clip:       clip,
		sampleRate: sampleRate,
		blockSize:  blockSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Format reports mono at the clip's sample rate.
func (s *Source) Format() audio.Format {
	return audio.Format{SampleRate: s.sampleRate, Channels: 1}
}

// Start delivers the clip block by block, then returns nil (or loops when
// configured). Cancellation is observed between blocks.
func (s *Source) Start(ctx context.Context, fn capture.BlockFunc) error {
	blockDur := time.Duration(s.blockSize) * time.Second / time.Duration(s.sampleRate)

	var ticker *time.Ticker
	if s.paced {
		ticker = time.NewTicker(blockDur)
		defer ticker.Stop()
	}

	var elapsed time.Duration
	for {
		for off := 0; off < len(s.clip); off += s.blockSize {
			end := off + s.blockSize
			if end > len(s.clip) {
				end = len(s.clip)
			}
			fn(audio.Block{
				Samples:    s.clip[off:end],
				SampleRate: s.sampleRate,
				Channels:   1,
				Timestamp:  elapsed,
			})
			elapsed += time.Duration(end-off) * time.Second / time.Duration(s.sampleRate)

			if s.paced {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			} else if err := ctx.Err(); err != nil {
				return nil
			}
		}
		if !s.loop {
			return nil
		}
	}
}

var _ capture.Source = (*Source)(nil)
