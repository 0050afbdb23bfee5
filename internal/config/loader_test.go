package config_test

import (
	"strings"
	"testing"

	"github.com/tkoehlman/vadgate/internal/config"
)

const validYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
audio:
  sample_rate: 16000
  frame_size: 512
capture:
  kind: replay
  replay:
    path: clip.pcm
vad:
  backend: energy
interrupt:
  base_threshold: 0.6
feeder:
  url: "ws://localhost:9700/segments"
  encoding: opus
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level: got %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Capture.Kind != config.CaptureReplay {
		t.Errorf("capture kind: got %q, want replay", cfg.Capture.Kind)
	}
	if cfg.Interrupt.BaseThreshold != 0.6 {
		t.Errorf("base_threshold: got %v, want 0.6", cfg.Interrupt.BaseThreshold)
	}
	if cfg.Feeder.Encoding != "opus" {
		t.Errorf("feeder encoding: got %q, want opus", cfg.Feeder.Encoding)
	}
}

func TestLoadFromReader_AppliesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(`
capture:
  kind: wsingest
  wsingest:
    listen_addr: ":9800"
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("default sample_rate: got %d, want 16000", cfg.Audio.SampleRate)
	}
	if cfg.Audio.FrameSize != 512 {
		t.Errorf("default frame_size: got %d, want 512", cfg.Audio.FrameSize)
	}
	if cfg.Audio.RingSeconds != 10 {
		t.Errorf("default ring_seconds: got %d, want 10", cfg.Audio.RingSeconds)
	}
	if cfg.VAD.Backend != config.BackendEnergy {
		t.Errorf("default backend: got %q, want energy", cfg.VAD.Backend)
	}
	if cfg.Interrupt.BaseThreshold != 0.5 {
		t.Errorf("default base_threshold: got %v, want 0.5", cfg.Interrupt.BaseThreshold)
	}
	if cfg.Interrupt.MinSpeechMs != 250 {
		t.Errorf("default min_speech_ms: got %d, want 250", cfg.Interrupt.MinSpeechMs)
	}
	if cfg.Interrupt.MinSilenceMs != 100 {
		t.Errorf("default min_silence_ms: got %d, want 100", cfg.Interrupt.MinSilenceMs)
	}
	if cfg.Interrupt.SpeechPadMs != 30 {
		t.Errorf("default speech_pad_ms: got %d, want 30", cfg.Interrupt.SpeechPadMs)
	}
	if cfg.Capture.WSIngest.Path != "/ingest" {
		t.Errorf("default wsingest path: got %q, want /ingest", cfg.Capture.WSIngest.Path)
	}
	if cfg.Feeder.QueueSize != 16 {
		t.Errorf("default feeder queue_size: got %d, want 16", cfg.Feeder.QueueSize)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`
capture:
  kind: wsingest
  wsingest:
    listen_addr: ":9800"
  typo_field: true
`))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoadFromReader_ValidationErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		yaml    string
		wantSub string
	}{
		{
			"bad log level",
			"server:\n  log_level: loud\ncapture:\n  kind: wsingest\n  wsingest:\n    listen_addr: \":9\"\n",
			"log_level",
		},
		{
			"bad capture kind",
			"capture:\n  kind: microphone\n",
			"capture.kind",
		},
		{
			"replay without path",
			"capture:\n  kind: replay\n",
			"capture.replay.path",
		},
		{
			"wsingest without listen addr",
			"capture:\n  kind: wsingest\n",
			"capture.wsingest.listen_addr",
		},
		{
			"bad backend",
			"capture:\n  kind: wsingest\n  wsingest:\n    listen_addr: \":9\"\nvad:\n  backend: psychic\n",
			"vad.backend",
		},
		{
			"neural without model",
			"capture:\n  kind: wsingest\n  wsingest:\n    listen_addr: \":9\"\nvad:\n  backend: neural\n",
			"vad.model_path",
		},
		{
			"bad fallback backend",
			"capture:\n  kind: wsingest\n  wsingest:\n    listen_addr: \":9\"\nvad:\n  fallback: psychic\n",
			"vad.fallback",
		},
		{
			"fallback same as primary",
			"capture:\n  kind: wsingest\n  wsingest:\n    listen_addr: \":9\"\nvad:\n  backend: energy\n  fallback: energy\n",
			"must differ",
		},
		{
			"neural fallback without model",
			"capture:\n  kind: wsingest\n  wsingest:\n    listen_addr: \":9\"\nvad:\n  backend: energy\n  fallback: neural\n",
			"fallback: neural",
		},
		{
			"threshold out of range",
			"capture:\n  kind: wsingest\n  wsingest:\n    listen_addr: \":9\"\ninterrupt:\n  base_threshold: 1.5\n",
			"base_threshold",
		},
		{
			"min above max",
			"capture:\n  kind: wsingest\n  wsingest:\n    listen_addr: \":9\"\ninterrupt:\n  min_threshold: 0.9\n  max_threshold: 0.4\n",
			"min_threshold",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q should mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestLoadFromReader_CollectsAllErrors(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`
server:
  log_level: loud
capture:
  kind: microphone
vad:
  backend: psychic
`))
	if err == nil {
		t.Fatal("expected validation errors, got nil")
	}
	for _, sub := range []string{"log_level", "capture.kind", "vad.backend"} {
		if !strings.Contains(err.Error(), sub) {
			t.Errorf("joined error should mention %q, got: %v", sub, err)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := config.Load("/nonexistent/vadgate.yaml"); err == nil {
		t.Error("expected error for missing file, got nil")
	}
}
