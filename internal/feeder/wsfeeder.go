package feeder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"layeh.com/gopus"

	"github.com/tkoehlman/vadgate/internal/interrupt"
	"github.com/tkoehlman/vadgate/pkg/audio"
)

// SegmentEncoding selects how segment audio travels over the wire.
type SegmentEncoding string

const (
	// SegmentPCM16 ships raw little-endian PCM16.
	SegmentPCM16 SegmentEncoding = "pcm16"

	// SegmentOpus ships Opus packets (20 ms frames, VoIP profile),
	// length-prefixed with a uint16. Cuts transcription uplink bandwidth
	// roughly tenfold for remote feeders.
	SegmentOpus SegmentEncoding = "opus"
)

// IsValid reports whether e is a recognised segment encoding.
func (e SegmentEncoding) IsValid() bool {
	return e == SegmentPCM16 || e == SegmentOpus
}

// opusFrameMs is the Opus frame size used for segment transport.
const opusFrameMs = 20

// WSFeederConfig configures the websocket transcription feeder.
type WSFeederConfig struct {
	// URL of the transcription process's websocket endpoint.
	URL string

	// Encoding of the audio payload. Default SegmentPCM16.
	Encoding SegmentEncoding

	// QueueSize bounds the hand-off queue. When the transcription side
	// stalls, the oldest queued segment is dropped with a warning rather
	// than stalling the pipeline. Default 16.
	QueueSize int
}

// segmentHeader is the JSON envelope sent before each audio payload.
type segmentHeader struct {
	ID         string `json:"id"`
	SampleRate int    `json:"sample_rate"`
	StartMs    int64  `json:"start_ms"`
	EndMs      int64  `json:"end_ms"`
	Truncated  bool   `json:"truncated"`
	Encoding   string `json:"encoding"`
}

// WSFeeder streams closed speech segments to a transcription process over a
// websocket. Feed enqueues and returns immediately; a worker goroutine owns
// the connection, dialing lazily and re-dialing after transport errors.
type WSFeeder struct {
	cfg   WSFeederConfig
	queue chan *interrupt.Segment
}

// NewWSFeeder validates cfg and creates the feeder. Call [WSFeeder.Run] to
// start the transport worker.
func NewWSFeeder(cfg WSFeederConfig) (*WSFeeder, error) {
	if cfg.URL == "" {
		return nil, errors.New("wsfeeder: url is required")
	}
	if cfg.Encoding == "" {
		cfg.Encoding = SegmentPCM16
	}
	if !cfg.Encoding.IsValid() {
		return nil, fmt.Errorf("wsfeeder: unknown encoding %q", cfg.Encoding)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	return &WSFeeder{
		cfg:   cfg,
		queue: make(chan *interrupt.Segment, cfg.QueueSize),
	}, nil
}

// Feed enqueues seg for delivery. Never blocks: if the queue is full the
// oldest segment is dropped and counted against the transcription side's
// backpressure contract.
func (f *WSFeeder) Feed(_ context.Context, seg *interrupt.Segment) error {
	for {
		select {
		case f.queue <- seg:
			return nil
		default:
		}
		select {
		case dropped := <-f.queue:
			slog.Warn("wsfeeder: queue full, dropping oldest segment",
				"segment_id", dropped.ID, "duration", dropped.Duration())
		default:
		}
	}
}

var _ SegmentSink = (*WSFeeder)(nil)

// Run owns the websocket connection and drains the queue until ctx ends.
func (f *WSFeeder) Run(ctx context.Context) error {
	var conn *websocket.Conn
	defer func() {
		if conn != nil {
			conn.Close(websocket.StatusNormalClosure, "shutting down")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case seg := <-f.queue:
			if conn == nil {
				c, err := f.dial(ctx)
				if err != nil {
					slog.Warn("wsfeeder: dial failed, segment dropped",
						"url", f.cfg.URL, "segment_id", seg.ID, "err", err)
					continue
				}
				conn = c
			}
			if err := f.send(ctx, conn, seg); err != nil {
				slog.Warn("wsfeeder: send failed, reconnecting on next segment",
					"segment_id", seg.ID, "err", err)
				conn.Close(websocket.StatusInternalError, "send failed")
				conn = nil
			}
		}
	}
}

func (f *WSFeeder) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, f.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("wsfeeder: dial %s: %w", f.cfg.URL, err)
	}
	return conn, nil
}

func (f *WSFeeder) send(ctx context.Context, conn *websocket.Conn, seg *interrupt.Segment) error {
	payload, err := f.encode(seg)
	if err != nil {
		return err
	}

	header, err := json.Marshal(segmentHeader{
		ID:         seg.ID.String(),
		SampleRate: seg.SampleRate,
		StartMs:    seg.Start.Milliseconds(),
		EndMs:      seg.End.Milliseconds(),
		Truncated:  seg.Truncated,
		Encoding:   string(f.cfg.Encoding),
	})
	if err != nil {
		return fmt.Errorf("wsfeeder: marshal header: %w", err)
	}

	if err := conn.Write(ctx, websocket.MessageText, header); err != nil {
		return fmt.Errorf("wsfeeder: write header: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageBinary, payload); err != nil {
		return fmt.Errorf("wsfeeder: write payload: %w", err)
	}
	return nil
}

func (f *WSFeeder) encode(seg *interrupt.Segment) ([]byte, error) {
	pcm := seg.PCM()
	if f.cfg.Encoding == SegmentPCM16 {
		return audio.Int16ToBytes(pcm), nil
	}

	enc, err := gopus.NewEncoder(seg.SampleRate, 1, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("wsfeeder: create opus encoder: %w", err)
	}

	frameSize := seg.SampleRate * opusFrameMs / 1000
	out := make([]byte, 0, len(pcm)/8)
	buf := make([]byte, 4000)

	for off := 0; off < len(pcm); off += frameSize {
		frame := pcm[off:]
		if len(frame) >= frameSize {
			frame = frame[:frameSize]
		} else {
			// Opus needs full frames; zero-pad the tail.
			padded := make([]int16, frameSize)
			copy(padded, frame)
			frame = padded
		}
		pkt, err := enc.Encode(frame, frameSize, len(buf))
		if err != nil {
			return nil, fmt.Errorf("wsfeeder: opus encode: %w", err)
		}
		out = append(out, byte(len(pkt)), byte(len(pkt)>>8))
		out = append(out, pkt...)
	}
	return out, nil
}
