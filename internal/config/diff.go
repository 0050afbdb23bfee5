package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; structural
// changes (sample rate, frame size, capture source, VAD backend) require a
// restart and are reported via RestartRequired.
type ConfigDiff struct {
	// InterruptChanged is true when any hysteresis/threshold tunable
	// changed. The pipeline applies the new values between frames.
	InterruptChanged bool
	NewInterrupt     InterruptConfig

	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired is true when a non-reloadable field changed.
	RestartRequired bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Interrupt != new.Interrupt {
		d.InterruptChanged = true
		d.NewInterrupt = new.Interrupt
	}

	if old.Audio != new.Audio ||
		old.Capture != new.Capture ||
		old.VAD != new.VAD ||
		old.Feeder != new.Feeder ||
		old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = true
	}

	return d
}
