// Package capture defines the Source interface for audio capture devices.
//
// A Source delivers fixed-size audio blocks at a fixed device-driven cadence
// through a callback, mirroring how audio driver APIs invoke their capture
// callbacks. The pipeline treats the callback as real-time code: sources must
// invoke it from a single goroutine, and the registered callback is expected
// to return quickly without blocking.
//
// Concrete sources live in subpackages (capture/wsingest for networked
// capture agents, capture/replay for file/synthetic playback in tests and
// offline runs). Test code uses capture/mock.
package capture

import (
	"context"
	"errors"

	"github.com/tkoehlman/vadgate/pkg/audio"
)

// ErrDeviceUnavailable indicates the capture device could not be opened.
// Recoverable: the pipeline retries opening with backoff before giving up.
var ErrDeviceUnavailable = errors.New("capture: device unavailable")

// ErrDeviceDisconnected indicates a device that was delivering audio is gone
// (unplugged, remote agent hung up). Recoverable like [ErrDeviceUnavailable].
var ErrDeviceDisconnected = errors.New("capture: device disconnected")

// BlockFunc receives one audio block per capture cadence tick. It is invoked
// from the source's capture context and must not block.
type BlockFunc func(block audio.Block)

// Source is an audio capture device.
type Source interface {
	// Format reports the sample rate and channel count the source delivers.
	// Valid before Start.
	Format() audio.Format

	// Start opens the device and delivers blocks to fn until ctx is
	// cancelled or the device fails. It blocks for the lifetime of the
	// capture session and returns nil on cancellation,
	// [ErrDeviceUnavailable] if the device cannot be opened, or
	// [ErrDeviceDisconnected] if it disappears mid-session.
	//
	// A Source may be started again after a failure return; each Start is
	// an independent session.
	Start(ctx context.Context, fn BlockFunc) error
}
