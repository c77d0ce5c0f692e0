package config

// ConfigDiff describes what changed between two configs. Only fields that can
// be hot-reloaded without a restart are tracked.
type ConfigDiff struct {
	// LogLevelChanged is true when the log level differs; NewLogLevel holds
	// the value to apply.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SystemInstructionChanged is true when the default system instruction
	// differs. Applies to sessions started after the reload; live sessions
	// keep their negotiated instruction.
	SystemInstructionChanged bool
	NewSystemInstruction     string

	// UpstreamChanged is true when the model, voice, or endpoint differs.
	// Applies to upstream sessions dialed after the reload.
	UpstreamChanged bool
}

// Changed reports whether the diff carries any change at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.SystemInstructionChanged || d.UpstreamChanged
}

// Diff compares old and new configs and returns what changed. Fields that
// require a restart to apply (listen address, TLS, origins) are ignored.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Session.SystemInstruction != new.Session.SystemInstruction {
		d.SystemInstructionChanged = true
		d.NewSystemInstruction = new.Session.SystemInstruction
	}

	if old.Upstream != new.Upstream {
		d.UpstreamChanged = true
	}

	return d
}
