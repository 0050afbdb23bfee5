// Package config provides the configuration schema, loader, registry, and
// file watcher for the vadgate capture subsystem.
package config

// LogLevel controls log verbosity for the vadgate process.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Backend selects the VAD backend variant.
type Backend string

const (
	// BackendEnergy is the deterministic spectral-energy detector.
	BackendEnergy Backend = "energy"

	// BackendNeural is the probability model loaded from a weights
	// artifact.
	BackendNeural Backend = "neural"
)

// IsValid reports whether b is a recognised backend.
func (b Backend) IsValid() bool {
	return b == BackendEnergy || b == BackendNeural
}

// CaptureKind selects the capture source variant.
type CaptureKind string

const (
	// CaptureReplay plays a PCM file back at device cadence (offline
	// mode).
	CaptureReplay CaptureKind = "replay"

	// CaptureWSIngest accepts a remote capture agent over a websocket.
	CaptureWSIngest CaptureKind = "wsingest"
)

// IsValid reports whether k is a recognised capture kind.
func (k CaptureKind) IsValid() bool {
	return k == CaptureReplay || k == CaptureWSIngest
}

// Config is the root configuration structure for vadgate.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Capture   CaptureConfig   `yaml:"capture"`
	VAD       VADConfig       `yaml:"vad"`
	Interrupt InterruptConfig `yaml:"interrupt"`
	Feeder    FeederConfig    `yaml:"feeder"`
}

// ServerConfig holds the observability HTTP listener and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address serving /metrics and /stats
	// (e.g., ":9090"). Empty disables the HTTP listener.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig holds the pipeline's sample format and buffering settings.
type AudioConfig struct {
	// SampleRate in Hz the pipeline (and VAD) operates at.
	SampleRate int `yaml:"sample_rate"`

	// FrameSize is the VAD analysis frame length in samples
	// (512 ≈ 32 ms at 16 kHz).
	FrameSize int `yaml:"frame_size"`

	// RingSeconds is the ring-buffer capacity in seconds of audio.
	RingSeconds int `yaml:"ring_seconds"`
}

// CaptureConfig selects and configures the capture source.
type CaptureConfig struct {
	// Kind selects the source variant.
	Kind CaptureKind `yaml:"kind"`

	// Replay settings (kind: replay).
	Replay ReplayConfig `yaml:"replay"`

	// WSIngest settings (kind: wsingest).
	WSIngest WSIngestConfig `yaml:"wsingest"`
}

// ReplayConfig configures the file replay source.
type ReplayConfig struct {
	// Path to a raw little-endian PCM16 mono file at the capture sample
	// rate.
	Path string `yaml:"path"`

	// SampleRate of the file. Defaults to audio.sample_rate.
	SampleRate int `yaml:"sample_rate"`

	// Loop restarts the clip at EOF.
	Loop bool `yaml:"loop"`
}

// WSIngestConfig configures the websocket ingest listener.
type WSIngestConfig struct {
	// ListenAddr accepts capture agent connections (e.g., ":9800").
	ListenAddr string `yaml:"listen_addr"`

	// Path is the websocket endpoint path. Default "/ingest".
	Path string `yaml:"path"`

	// Encoding of agent payloads: pcm16, mulaw, or alaw.
	Encoding string `yaml:"encoding"`

	// SampleRate and Channels the agent sends (before conversion).
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
}

// VADConfig selects and configures the VAD backend.
type VADConfig struct {
	// Backend selects the detector variant.
	Backend Backend `yaml:"backend"`

	// ModelPath points at the weights artifact (backend: neural).
	ModelPath string `yaml:"model_path"`

	// EnergyRMSThreshold overrides the energy backend's RMS threshold
	// when > 0 (backend: energy).
	EnergyRMSThreshold float64 `yaml:"energy_rms_threshold"`

	// Fallback selects an optional secondary backend that takes over when
	// the primary keeps failing on consecutive frames. Empty disables
	// failover.
	Fallback Backend `yaml:"fallback"`
}

// InterruptConfig holds the threshold-adaptation and hysteresis tunables.
// All of these are hot-reloadable via the config watcher.
type InterruptConfig struct {
	// BaseThreshold is the decision threshold before noise adaptation.
	BaseThreshold float64 `yaml:"base_threshold"`

	// MinThreshold and MaxThreshold clamp the adapted threshold.
	MinThreshold float64 `yaml:"min_threshold"`
	MaxThreshold float64 `yaml:"max_threshold"`

	// MinSpeechMs is the sustained-voice requirement before SpeechStart.
	MinSpeechMs int `yaml:"min_speech_ms"`

	// MinSilenceMs is the sustained-silence requirement before SpeechEnd.
	MinSilenceMs int `yaml:"min_silence_ms"`

	// SpeechPadMs pads segments with look-back and trailing audio.
	SpeechPadMs int `yaml:"speech_pad_ms"`

	// MaxSegmentSeconds force-closes an open segment to bound chunk size.
	// 0 disables the bound.
	MaxSegmentSeconds int `yaml:"max_segment_seconds"`
}

// FeederConfig configures the transcription feeder boundary.
type FeederConfig struct {
	// URL of the transcription process's websocket endpoint. Empty
	// disables the feeder (segments are logged and dropped).
	URL string `yaml:"url"`

	// Encoding of segment audio on the wire: pcm16 or opus.
	Encoding string `yaml:"encoding"`

	// QueueSize bounds the hand-off queue.
	QueueSize int `yaml:"queue_size"`
}

// ApplyDefaults fills zero values with production defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.FrameSize == 0 {
		c.Audio.FrameSize = 512
	}
	if c.Audio.RingSeconds == 0 {
		c.Audio.RingSeconds = 10
	}
	if c.Capture.Kind == "" {
		c.Capture.Kind = CaptureWSIngest
	}
	if c.Capture.WSIngest.Path == "" {
		c.Capture.WSIngest.Path = "/ingest"
	}
	if c.Capture.WSIngest.Encoding == "" {
		c.Capture.WSIngest.Encoding = "pcm16"
	}
	if c.Capture.WSIngest.SampleRate == 0 {
		c.Capture.WSIngest.SampleRate = c.Audio.SampleRate
	}
	if c.Capture.WSIngest.Channels == 0 {
		c.Capture.WSIngest.Channels = 1
	}
	if c.Capture.Replay.SampleRate == 0 {
		c.Capture.Replay.SampleRate = c.Audio.SampleRate
	}
	if c.VAD.Backend == "" {
		c.VAD.Backend = BackendEnergy
	}
	if c.Interrupt.BaseThreshold == 0 {
		c.Interrupt.BaseThreshold = 0.5
	}
	if c.Interrupt.MinThreshold == 0 {
		c.Interrupt.MinThreshold = 0.35
	}
	if c.Interrupt.MaxThreshold == 0 {
		c.Interrupt.MaxThreshold = 0.85
	}
	if c.Interrupt.MinSpeechMs == 0 {
		c.Interrupt.MinSpeechMs = 250
	}
	if c.Interrupt.MinSilenceMs == 0 {
		c.Interrupt.MinSilenceMs = 100
	}
	if c.Interrupt.SpeechPadMs == 0 {
		c.Interrupt.SpeechPadMs = 30
	}
	if c.Interrupt.MaxSegmentSeconds == 0 {
		c.Interrupt.MaxSegmentSeconds = 30
	}
	if c.Feeder.Encoding == "" {
		c.Feeder.Encoding = "pcm16"
	}
	if c.Feeder.QueueSize == 0 {
		c.Feeder.QueueSize = 16
	}
}
