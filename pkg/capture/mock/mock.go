// Package mock provides a test double for the capture.Source interface.
//
// Script per-Start behaviour with Blocks and StartErrs: each Start delivers
// the configured blocks then returns the next scripted error, which lets
// tests exercise the pipeline's reopen-with-backoff policy.
package mock

import (
	"context"
	"sync"

	"github.com/tkoehlman/vadgate/pkg/audio"
	"github.com/tkoehlman/vadgate/pkg/capture"
)

// Source is a mock implementation of capture.Source.
type Source struct {
	mu sync.Mutex

	// FormatResult is returned by Format.
	FormatResult audio.Format

	// Blocks are delivered to the callback on each Start, in order.
	Blocks []audio.Block

	// StartErrs scripts the return value of successive Start calls. When
	// the script runs out, Start blocks until ctx is cancelled and
	// returns nil.
	StartErrs []error

	// StartCallCount is the number of times Start was called.
	StartCallCount int
}

// Format returns FormatResult.
func (s *Source) Format() audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FormatResult
}

// Start delivers Blocks to fn, then returns the next scripted error (or
// blocks until cancellation when the script is exhausted).
func (s *Source) Start(ctx context.Context, fn capture.BlockFunc) error {
	s.mu.Lock()
	call := s.StartCallCount
	s.StartCallCount++
	blocks := s.Blocks
	s.mu.Unlock()

	for _, b := range blocks {
		if ctx.Err() != nil {
			return nil
		}
		fn(b)
	}

	s.mu.Lock()
	var err error
	scripted := call < len(s.StartErrs)
	if scripted {
		err = s.StartErrs[call]
	}
	s.mu.Unlock()

	if scripted {
		return err
	}
	<-ctx.Done()
	return nil
}

// Ensure Source implements capture.Source at compile time.
var _ capture.Source = (*Source)(nil)
