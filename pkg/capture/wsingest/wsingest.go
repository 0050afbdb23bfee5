// Package wsingest implements a capture source fed by a remote capture agent
// over a websocket.
//
// The agent (a telephony bridge, a browser tab, a thin client next to the
// microphone) connects to the ingest listener and streams binary messages of
// raw audio. Each message is one capture block. Supported payload encodings
// are little-endian PCM16, G.711 μ-law, and G.711 A-law; the G.711 paths
// cover 8 kHz telephony feeds and are decoded with the zaf/g711 codec.
// Incoming audio is converted to the pipeline's target format (mono, target
// sample rate) before delivery.
//
// One agent at a time: while a session is live, additional connection
// attempts are rejected. A mid-session hang-up surfaces as
// [capture.ErrDeviceDisconnected] so the pipeline's reopen policy applies.
package wsingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/zaf/g711"

	"github.com/tkoehlman/vadgate/pkg/audio"
	"github.com/tkoehlman/vadgate/pkg/capture"
)

// Encoding identifies the payload format of incoming binary messages.
type Encoding string

const (
	// EncodingPCM16 is little-endian signed 16-bit PCM.
	EncodingPCM16 Encoding = "pcm16"

	// EncodingMulaw is G.711 μ-law (8-bit companded, typically 8 kHz).
	EncodingMulaw Encoding = "mulaw"

	// EncodingAlaw is G.711 A-law.
	EncodingAlaw Encoding = "alaw"
)

// IsValid reports whether e is a recognised encoding.
func (e Encoding) IsValid() bool {
	switch e {
	case EncodingPCM16, EncodingMulaw, EncodingAlaw:
		return true
	}
	return false
}

// Config holds the ingest listener settings.
type Config struct {
	// ListenAddr is the TCP address to accept agent connections on
	// (e.g., ":9800").
	ListenAddr string

	// Path is the HTTP path agents connect to. Default "/ingest".
	Path string

	// Encoding of incoming payloads. Default EncodingPCM16.
	Encoding Encoding

	// AgentFormat is the sample rate and channel count the agent sends.
	// G.711 encodings are always mono; 8000 Hz is typical.
	AgentFormat audio.Format

	// Target is the format blocks are converted to before delivery.
	Target audio.Format
}

// Source accepts one websocket capture agent and delivers its audio.
type Source struct {
	cfg Config

	// inSession guards against concurrent agents.
	inSession atomic.Bool

	// boundAddr holds the listener's net.Addr once Start has bound it.
	boundAddr atomic.Value
}

// New validates cfg and creates the source.
func New(cfg Config) (*Source, error) {
	if cfg.ListenAddr == "" {
		return nil, errors.New("wsingest: listen address is required")
	}
	if cfg.Path == "" {
		cfg.Path = "/ingest"
	}
	if cfg.Encoding == "" {
		cfg.Encoding = EncodingPCM16
	}
	if !cfg.Encoding.IsValid() {
		return nil, fmt.Errorf("wsingest: unknown encoding %q", cfg.Encoding)
	}
	if cfg.Encoding != EncodingPCM16 && cfg.AgentFormat.Channels > 1 {
		return nil, fmt.Errorf("wsingest: %s is mono-only, got %d channels", cfg.Encoding, cfg.AgentFormat.Channels)
	}
	if cfg.AgentFormat.SampleRate <= 0 || cfg.AgentFormat.Channels <= 0 {
		return nil, fmt.Errorf("wsingest: agent format %d Hz / %d ch is invalid",
			cfg.AgentFormat.SampleRate, cfg.AgentFormat.Channels)
	}
	if cfg.Target.SampleRate <= 0 || cfg.Target.Channels != 1 {
		return nil, fmt.Errorf("wsingest: target format %d Hz / %d ch is invalid; pipeline expects mono",
			cfg.Target.SampleRate, cfg.Target.Channels)
	}
	return &Source{cfg: cfg}, nil
}

// Format reports the post-conversion format delivered to the pipeline.
func (s *Source) Format() audio.Format { return s.cfg.Target }

// Addr returns the listener's bound address, or nil before Start binds it.
// Useful when ListenAddr requests an ephemeral port.
func (s *Source) Addr() net.Addr {
	addr, _ := s.boundAddr.Load().(net.Addr)
	return addr
}

// Start binds the ingest listener and serves one agent session. It blocks
// until ctx is cancelled (returns nil), the listener cannot be bound
// ([capture.ErrDeviceUnavailable]), or the agent disconnects mid-stream
// ([capture.ErrDeviceDisconnected]).
func (s *Source) Start(ctx context.Context, fn capture.BlockFunc) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("wsingest: bind %s: %w: %w", s.cfg.ListenAddr, capture.ErrDeviceUnavailable, err)
	}
	defer ln.Close()
	s.boundAddr.Store(ln.Addr())

	sessionErr := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, func(w http.ResponseWriter, r *http.Request) {
		if !s.inSession.CompareAndSwap(false, true) {
			http.Error(w, "capture session already active", http.StatusConflict)
			return
		}
		defer s.inSession.Store(false)

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			slog.Warn("wsingest: websocket accept failed", "err", err)
			return
		}
		slog.Info("wsingest: capture agent connected", "remote", r.RemoteAddr)

		err = s.readLoop(ctx, conn, fn)
		conn.Close(websocket.StatusNormalClosure, "session over")
		select {
		case sessionErr <- err:
		default:
		}
	})

	srv := &http.Server{Handler: mux}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-sessionErr:
		if ctx.Err() != nil {
			return nil
		}
		return err
	case err := <-serveErr:
		return fmt.Errorf("wsingest: listener failed: %w: %w", capture.ErrDeviceUnavailable, err)
	}
}

// readLoop consumes binary messages until the agent hangs up or ctx ends.
// This goroutine is the capture context: it decodes, converts, and invokes fn
// directly.
func (s *Source) readLoop(ctx context.Context, conn *websocket.Conn, fn capture.BlockFunc) error {
	conv := audio.Converter{Target: s.cfg.Target}
	var elapsed time.Duration

	for {
		typ, payload, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return fmt.Errorf("wsingest: agent closed stream: %w", capture.ErrDeviceDisconnected)
			}
			return fmt.Errorf("wsingest: read: %w: %w", capture.ErrDeviceDisconnected, err)
		}
		if typ != websocket.MessageBinary || len(payload) == 0 {
			continue
		}

		samples := s.decode(payload)
		if len(samples) == 0 {
			continue
		}

		block := conv.Convert(audio.Block{
			Samples:    samples,
			SampleRate: s.cfg.AgentFormat.SampleRate,
			Channels:   s.cfg.AgentFormat.Channels,
			Timestamp:  elapsed,
		})
		elapsed += time.Duration(len(block.Samples)) * time.Second / time.Duration(block.SampleRate)
		fn(block)
	}
}

func (s *Source) decode(payload []byte) []int16 {
	switch s.cfg.Encoding {
	case EncodingMulaw:
		return audio.BytesToInt16(g711.DecodeUlaw(payload))
	case EncodingAlaw:
		return audio.BytesToInt16(g711.DecodeAlaw(payload))
	default:
		return audio.BytesToInt16(payload)
	}
}

var _ capture.Source = (*Source)(nil)
