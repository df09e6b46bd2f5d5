// Package config provides the configuration schema, loader, and platform
// registry for the earpiece hearing assistant.
package config

import (
	"time"

	"github.com/MrWong99/earpiece/internal/params"
	"github.com/MrWong99/earpiece/pkg/audio"
)

// LogLevel controls log verbosity for the earpiece server.
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

// Config is the root configuration structure for earpiece.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Audio      AudioConfig      `yaml:"audio"`
	Equalizer  EqualizerConfig  `yaml:"equalizer"`
	Parameters ParametersConfig `yaml:"parameters"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings for the control server.
type ServerConfig struct {
	// ListenAddr is the TCP address the control API listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// AutoStart starts processing immediately after startup.
	AutoStart bool `yaml:"auto_start"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// AudioConfig selects the audio platform and the preferred stream layout.
// Changes take effect on the next session start.
type AudioConfig struct {
	// Platform selects the registered platform implementation
	// ("portaudio" or "null").
	Platform string `yaml:"platform"`

	// SampleRate in Hz. Zero selects [audio.DefaultSampleRate].
	SampleRate int `yaml:"sample_rate"`

	// FrameSize in samples. Zero asks the device for its minimum.
	FrameSize int `yaml:"frame_size"`

	// Device is the preferred device name. Empty selects the system default.
	Device string `yaml:"device"`

	// SoftwareFallback enables the built-in echo canceller and noise gate
	// when the platform offers no effect units.
	SoftwareFallback bool `yaml:"software_fallback"`

	// PoolCapacity is the number of preallocated frames.
	PoolCapacity int `yaml:"pool_capacity"`

	// FallbackCooldown is how long a rejected preferred configuration is
	// skipped before it is tried again (e.g. "1m").
	FallbackCooldown time.Duration `yaml:"fallback_cooldown"`

	// Recovery restarts processing after the device disappeared.
	Recovery RecoveryConfig `yaml:"recovery"`
}

// RecoveryConfig controls automatic restarts after device loss.
type RecoveryConfig struct {
	Enabled    bool          `yaml:"enabled"`
	MaxRetries int           `yaml:"max_retries"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// StreamConfig returns the preferred stream configuration described by a.
func (a AudioConfig) StreamConfig() audio.StreamConfig {
	cfg := audio.DefaultStreamConfig()
	if a.SampleRate > 0 {
		cfg.SampleRate = a.SampleRate
	}
	cfg.FrameSize = a.FrameSize
	cfg.Device = a.Device
	return cfg
}

// EqualizerConfig moves the band corners. Zero values keep the defaults of
// 300 Hz and 1 kHz.
type EqualizerConfig struct {
	LowCornerHz  float64 `yaml:"low_corner_hz"`
	HighCornerHz float64 `yaml:"high_corner_hz"`
	ShelfQ       float64 `yaml:"shelf_q"`
}

// ParametersConfig holds the initial processing parameters. Changes are
// applied live while the engine runs.
type ParametersConfig struct {
	// Amplification is the linear gain factor in [0, 3]. Default 1.
	Amplification *float64 `yaml:"amplification"`

	// LowDB, MidDB and HighDB are the band gains in [-10, 10] dB.
	LowDB  float64 `yaml:"low_db"`
	MidDB  float64 `yaml:"mid_db"`
	HighDB float64 `yaml:"high_db"`

	// Mitigation switches feedback and noise mitigation. Default true.
	Mitigation *bool `yaml:"mitigation"`
}

// Snapshot converts p into a parameter snapshot, filling defaults for unset
// fields. Values are not clamped here; the store clamps on write.
func (p ParametersConfig) Snapshot() params.Snapshot {
	s := params.Defaults()
	if p.Amplification != nil {
		s.Amplification = *p.Amplification
	}
	s.BandGains[audio.BandLow] = p.LowDB
	s.BandGains[audio.BandMid] = p.MidDB
	s.BandGains[audio.BandHigh] = p.HighDB
	if p.Mitigation != nil {
		s.MitigationEnabled = *p.Mitigation
	}
	return s
}

// Equal reports whether p and o describe the same parameters.
func (p ParametersConfig) Equal(o ParametersConfig) bool {
	a, b := p.Snapshot(), o.Snapshot()
	return a.Amplification == b.Amplification &&
		a.BandGains == b.BandGains &&
		a.MitigationEnabled == b.MitigationEnabled
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	// ServiceName is reported as the OpenTelemetry service.name resource
	// attribute. Default "earpiece".
	ServiceName string `yaml:"service_name"`

	// MetricsPath is the HTTP path serving Prometheus metrics. Default
	// "/metrics". Set to "-" to disable the endpoint.
	MetricsPath string `yaml:"metrics_path"`
}
