package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, applies defaults, and
// returns a validated [Config]. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// unmarshalStrict decodes YAML bytes into cfg, rejecting unknown fields.
func unmarshalStrict(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Audio
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must be positive", cfg.Audio.FrameSize))
	}
	if cfg.Audio.RingSeconds <= 0 {
		errs = append(errs, fmt.Errorf("audio.ring_seconds %d must be positive", cfg.Audio.RingSeconds))
	}

	// Capture
	if !cfg.Capture.Kind.IsValid() {
		errs = append(errs, fmt.Errorf("capture.kind %q is invalid; valid values: replay, wsingest", cfg.Capture.Kind))
	}
	if cfg.Capture.Kind == CaptureReplay && cfg.Capture.Replay.Path == "" {
		errs = append(errs, errors.New("capture.replay.path is required for kind: replay"))
	}
	if cfg.Capture.Kind == CaptureWSIngest && cfg.Capture.WSIngest.ListenAddr == "" {
		errs = append(errs, errors.New("capture.wsingest.listen_addr is required for kind: wsingest"))
	}

	// VAD
	if !cfg.VAD.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("vad.backend %q is invalid; valid values: energy, neural", cfg.VAD.Backend))
	}
	if cfg.VAD.Backend == BackendNeural && cfg.VAD.ModelPath == "" {
		errs = append(errs, errors.New("vad.model_path is required for backend: neural"))
	}
	if cfg.VAD.Fallback != "" {
		if !cfg.VAD.Fallback.IsValid() {
			errs = append(errs, fmt.Errorf("vad.fallback %q is invalid; valid values: energy, neural", cfg.VAD.Fallback))
		}
		if cfg.VAD.Fallback == cfg.VAD.Backend {
			errs = append(errs, fmt.Errorf("vad.fallback %q must differ from vad.backend", cfg.VAD.Fallback))
		}
		if cfg.VAD.Fallback == BackendNeural && cfg.VAD.ModelPath == "" {
			errs = append(errs, errors.New("vad.model_path is required for fallback: neural"))
		}
	}

	// Interrupt
	if cfg.Interrupt.BaseThreshold < 0 || cfg.Interrupt.BaseThreshold > 1 {
		errs = append(errs, fmt.Errorf("interrupt.base_threshold %v must be in [0, 1]", cfg.Interrupt.BaseThreshold))
	}
	if cfg.Interrupt.MinThreshold > cfg.Interrupt.MaxThreshold {
		errs = append(errs, fmt.Errorf("interrupt.min_threshold %v exceeds max_threshold %v",
			cfg.Interrupt.MinThreshold, cfg.Interrupt.MaxThreshold))
	}
	if cfg.Interrupt.MinSpeechMs < 0 {
		errs = append(errs, fmt.Errorf("interrupt.min_speech_ms %d must not be negative", cfg.Interrupt.MinSpeechMs))
	}
	if cfg.Interrupt.MinSilenceMs < 0 {
		errs = append(errs, fmt.Errorf("interrupt.min_silence_ms %d must not be negative", cfg.Interrupt.MinSilenceMs))
	}
	if cfg.Interrupt.SpeechPadMs < 0 {
		errs = append(errs, fmt.Errorf("interrupt.speech_pad_ms %d must not be negative", cfg.Interrupt.SpeechPadMs))
	}

	return errors.Join(errs...)
}
