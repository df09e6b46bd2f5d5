package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/earpiece/internal/observe"
	"github.com/MrWong99/earpiece/internal/resilience"
	"github.com/MrWong99/earpiece/pkg/audio"
)

// Stream candidate names.
const (
	candidatePreferred = "preferred"
	candidateDefault   = "default"
)

// DefaultFallbackCooldown is how long a preferred stream configuration that
// the platform rejected is skipped before it is tried again.
const DefaultFallbackCooldown = time.Minute

// errNamedDevice marks a failure to open an explicitly named device. The
// system default device is tried next.
var errNamedDevice = errors.New("named device unusable")

// streamPair is a matched capture and render stream of one configuration.
type streamPair struct {
	cfg     audio.StreamConfig
	capture audio.CaptureStream
	render  audio.RenderStream
}

func (p *streamPair) close() error {
	return errors.Join(p.capture.Close(), p.render.Close())
}

// shouldFallback reports whether an open failure moves on to the next
// stream configuration.
func shouldFallback(err error) bool {
	return errors.Is(err, audio.ErrConfigUnsupported) || errors.Is(err, errNamedDevice)
}

// normalize fills unset fields of cfg from the platform default.
func normalize(cfg audio.StreamConfig) audio.StreamConfig {
	def := audio.DefaultStreamConfig()
	if cfg.SampleRate == 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.Channels == 0 {
		cfg.Channels = def.Channels
	}
	return cfg
}

// newStreamCandidates builds the ordered stream configurations tried by
// Start: the configured one first, then the platform default. The default is
// guarded by a breaker that never trips so that it is always attempted.
func newStreamCandidates(preferred audio.StreamConfig, cooldown time.Duration) *resilience.FallbackGroup[audio.StreamConfig] {
	if cooldown <= 0 {
		cooldown = DefaultFallbackCooldown
	}
	preferred = normalize(preferred)
	fg := resilience.NewFallbackGroup(preferred, candidatePreferred, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  1,
			ResetTimeout: cooldown,
			IsFailure:    shouldFallback,
		},
		ShouldFallback: shouldFallback,
	})
	def := audio.DefaultStreamConfig()
	if preferred != def {
		fg.AddWithBreaker(candidateDefault, def, resilience.CircuitBreakerConfig{
			IsFailure: func(error) bool { return false },
		})
	}
	return fg
}

// openStreams opens capture and render for the first acceptable candidate.
func (e *Engine) openStreams(ctx context.Context) (*streamPair, string, error) {
	res, err := resilience.ExecuteWithResult(e.candidates, func(cfg audio.StreamConfig) (*streamPair, error) {
		return e.openPair(ctx, cfg)
	})
	if err != nil {
		return nil, "", err
	}
	if res.Attempt > 0 {
		observe.Logger(ctx).Warn("engine: preferred stream configuration rejected, using fallback",
			"stream", res.Value.cfg.String(), "candidate", res.Candidate)
	}
	return res.Value, res.Candidate, nil
}

func (e *Engine) openPair(ctx context.Context, cfg audio.StreamConfig) (*streamPair, error) {
	if cfg.FrameSize <= 0 {
		n, err := e.platform.MinFrameSize(cfg)
		if err != nil {
			return nil, markNamed(cfg, fmt.Errorf("frame size for %s: %w", cfg, err))
		}
		cfg.FrameSize = n
	}

	capture, err := e.platform.OpenCapture(ctx, cfg)
	if err != nil {
		return nil, markNamed(cfg, fmt.Errorf("open capture %s: %w", cfg, err))
	}
	render, err := e.platform.OpenRender(ctx, cfg)
	if err != nil {
		if cerr := capture.Close(); cerr != nil {
			observe.Logger(ctx).Debug("engine: close capture after render failure", "err", cerr)
		}
		return nil, markNamed(cfg, fmt.Errorf("open render %s: %w", cfg, err))
	}
	return &streamPair{cfg: cfg, capture: capture, render: render}, nil
}

// markNamed tags a device-unavailable error of an explicitly named device so
// that the default device is tried next.
func markNamed(cfg audio.StreamConfig, err error) error {
	if cfg.Device != "" && errors.Is(err, audio.ErrDeviceUnavailable) {
		return fmt.Errorf("%w: %w", errNamedDevice, err)
	}
	return err
}
