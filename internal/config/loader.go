package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/earpiece/internal/params"
)

// ValidPlatformNames lists the audio platforms shipped with earpiece.
// Used by [Validate] to warn about unrecognised platform names.
var ValidPlatformNames = []string{"portaudio", "null"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// LoadFromReader decodes a YAML config from r and validates the result.
// An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Audio
	a := cfg.Audio
	if a.Platform != "" && !slices.Contains(ValidPlatformNames, a.Platform) {
		slog.Warn("unknown audio platform; must be registered by the embedding program",
			"name", a.Platform,
			"known", ValidPlatformNames,
		)
	}
	if a.SampleRate < 0 || (a.SampleRate > 0 && (a.SampleRate < 8000 || a.SampleRate > 192000)) {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is out of range [8000, 192000]", a.SampleRate))
	}
	if a.FrameSize < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must not be negative", a.FrameSize))
	}
	if a.PoolCapacity < 0 {
		errs = append(errs, fmt.Errorf("audio.pool_capacity %d must not be negative", a.PoolCapacity))
	}
	if a.FallbackCooldown < 0 {
		errs = append(errs, fmt.Errorf("audio.fallback_cooldown %s must not be negative", a.FallbackCooldown))
	}
	if rc := a.Recovery; rc.MaxRetries < 0 || rc.Backoff < 0 || rc.MaxBackoff < 0 {
		errs = append(errs, errors.New("audio.recovery values must not be negative"))
	}
	if a.SampleRate > 0 && a.FrameSize > 0 && a.FrameSize*10 > a.SampleRate {
		slog.Warn("audio.frame_size is longer than 100 ms; latency will be noticeable",
			"frame_size", a.FrameSize,
			"sample_rate", a.SampleRate,
		)
	}

	// Equalizer
	eq := cfg.Equalizer
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"equalizer.low_corner_hz", eq.LowCornerHz},
		{"equalizer.high_corner_hz", eq.HighCornerHz},
		{"equalizer.shelf_q", eq.ShelfQ},
	} {
		if f.v < 0 || math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			errs = append(errs, fmt.Errorf("%s %v must be a positive number", f.name, f.v))
		}
	}
	if eq.LowCornerHz > 0 && eq.HighCornerHz > 0 && eq.LowCornerHz >= eq.HighCornerHz {
		errs = append(errs, fmt.Errorf("equalizer.low_corner_hz %.1f must be below high_corner_hz %.1f", eq.LowCornerHz, eq.HighCornerHz))
	}

	// Parameters
	p := cfg.Parameters
	if p.Amplification != nil {
		if v := *p.Amplification; math.IsNaN(v) || v < params.MinAmplification || v > params.MaxAmplification {
			errs = append(errs, fmt.Errorf("parameters.amplification %v is out of range [%g, %g]", v, params.MinAmplification, params.MaxAmplification))
		}
	}
	for _, g := range []struct {
		name string
		v    float64
	}{
		{"parameters.low_db", p.LowDB},
		{"parameters.mid_db", p.MidDB},
		{"parameters.high_db", p.HighDB},
	} {
		if math.IsNaN(g.v) || g.v < params.MinBandGainDB || g.v > params.MaxBandGainDB {
			errs = append(errs, fmt.Errorf("%s %v is out of range [%g, %g]", g.name, g.v, params.MinBandGainDB, params.MaxBandGainDB))
		}
	}

	// Telemetry
	if mp := cfg.Telemetry.MetricsPath; mp != "" && mp != "-" && mp[0] != '/' {
		errs = append(errs, fmt.Errorf("telemetry.metrics_path %q must start with /", mp))
	}

	return errors.Join(errs...)
}
