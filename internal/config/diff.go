package config

// ConfigDiff describes what changed between two configs.
// Parameters and the log level are applied live; everything listed in
// RestartRequired only takes effect on the next session or process start.
type ConfigDiff struct {
	ParamsChanged bool
	NewParams     ParametersConfig

	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired names the changed sections that cannot be applied
	// live (e.g. "audio", "server.listen_addr").
	RestartRequired []string
}

// Empty reports whether d contains no changes at all.
func (d ConfigDiff) Empty() bool {
	return !d.ParamsChanged && !d.LogLevelChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !old.Parameters.Equal(new.Parameters) {
		d.ParamsChanged = true
		d.NewParams = new.Parameters
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !sameTLS(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server.tls")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.Equalizer != new.Equalizer {
		d.RestartRequired = append(d.RestartRequired, "equalizer")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}
	return d
}

func sameTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
