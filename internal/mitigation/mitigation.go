// Package mitigation manages acoustic feedback and noise mitigation for one
// processing session.
//
// A [Controller] prefers the effect units offered by the [audio.Platform]
// (hardware or OS echo cancellers and noise suppressors attached to the
// capture session). For every effect the platform cannot provide, or that
// fails to initialise, it falls back to a software stage: an NLMS
// [EchoCanceller] fed with the rendered signal and a [NoiseGate]. Failures
// never abort the session; the controller degrades and logs instead.
package mitigation

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/earpiece/pkg/audio"
)

// Backend names where an effect is running.
type Backend string

const (
	// BackendPlatform means the platform's effect unit is in use.
	BackendPlatform Backend = "platform"

	// BackendSoftware means the in-process fallback stage is in use.
	BackendSoftware Backend = "software"

	// BackendNone means the effect is not available at all.
	BackendNone Backend = "none"
)

// Config controls how a [Controller] is built.
type Config struct {
	// SampleRate and FrameSize describe the session's streams.
	SampleRate int
	FrameSize  int

	// SoftwareFallback enables the in-process stages for effects the
	// platform cannot provide.
	SoftwareFallback bool
}

// EffectStatus reports the state of a single effect.
type EffectStatus struct {
	Kind    string  `json:"kind"`
	Backend Backend `json:"backend"`
	Active  bool    `json:"active"`
}

// Status is a point-in-time view of a [Controller].
type Status struct {
	Enabled bool           `json:"enabled"`
	Effects []EffectStatus `json:"effects"`
}

// Controller owns the effect units and software stages of one session.
//
// Process and FeedFarEnd must only be called from the processing goroutine.
// SetEnabled, Status and Release are called from the same goroutine by the
// engine; the controller has no internal locking.
type Controller struct {
	cfg       Config
	available map[audio.EffectKind]bool
	units     map[audio.EffectKind]audio.EffectUnit

	echo *EchoCanceller
	gate *NoiseGate

	enabled bool
	applied bool
}

// Open queries effect availability once for the capture session sessionID
// and attaches what it can. It never fails.
func Open(p audio.Platform, sessionID int, cfg Config) *Controller {
	c := &Controller{
		cfg:       cfg,
		available: make(map[audio.EffectKind]bool, len(audio.EffectKinds)),
		units:     make(map[audio.EffectKind]audio.EffectUnit, len(audio.EffectKinds)),
	}
	for _, kind := range audio.EffectKinds {
		if !p.QueryEffect(kind) {
			continue
		}
		c.available[kind] = true
		u, err := p.CreateEffect(kind, sessionID)
		if err != nil {
			slog.Warn("mitigation: failed to create platform effect, degrading",
				"effect", kind.String(), "session", sessionID, "err", err)
			continue
		}
		c.units[kind] = u
	}
	for _, kind := range audio.EffectKinds {
		if _, ok := c.units[kind]; !ok {
			c.installSoftware(kind)
		}
	}
	slog.Debug("mitigation: opened", "session", sessionID, "effects", c.Status().Effects)
	return c
}

// Available reports whether the platform advertised kind when the session
// was opened.
func (c *Controller) Available(kind audio.EffectKind) bool {
	return c.available[kind]
}

// Enabled reports whether mitigation is currently switched on.
func (c *Controller) Enabled() bool { return c.enabled }

// SetEnabled switches all effects on or off. Calling it with the current
// state is a no-op. A platform unit that refuses the change is released and
// replaced by its software stage when fallback is configured.
func (c *Controller) SetEnabled(enabled bool) {
	if c.applied && c.enabled == enabled {
		return
	}
	c.applied = true
	c.enabled = enabled

	for _, kind := range audio.EffectKinds {
		u, ok := c.units[kind]
		if !ok {
			continue
		}
		if err := u.SetEnabled(enabled); err != nil {
			slog.Warn("mitigation: platform effect rejected state change, degrading",
				"effect", kind.String(), "enabled", enabled, "err", err)
			if err := u.Release(); err != nil {
				slog.Debug("mitigation: release after failure", "effect", kind.String(), "err", err)
			}
			delete(c.units, kind)
			c.installSoftware(kind)
		}
	}

	if !enabled {
		if c.echo != nil {
			c.echo.Reset()
		}
		if c.gate != nil {
			c.gate.Reset()
		}
	}
}

// installSoftware adds the fallback stage for kind if configured.
func (c *Controller) installSoftware(kind audio.EffectKind) {
	if !c.cfg.SoftwareFallback {
		return
	}
	switch kind {
	case audio.EffectEchoCanceler:
		if c.echo == nil {
			c.echo = NewEchoCanceller(DefaultEchoConfig(c.cfg.FrameSize, c.cfg.SampleRate))
		}
	case audio.EffectNoiseSuppressor:
		if c.gate == nil {
			c.gate = NewNoiseGate()
		}
	}
}

// Process runs the software stages over frame when mitigation is enabled.
// Platform units act on the capture stream itself and need no call here.
func (c *Controller) Process(frame []int16) {
	if !c.enabled {
		return
	}
	if c.echo != nil {
		c.echo.Process(frame)
	}
	if c.gate != nil {
		c.gate.Process(frame)
	}
}

// FeedFarEnd hands the rendered frame to the software echo canceller.
func (c *Controller) FeedFarEnd(frame []int16) {
	if c.echo != nil {
		c.echo.FeedFarEnd(frame)
	}
}

// Status reports the backend of every effect kind.
func (c *Controller) Status() Status {
	st := Status{Enabled: c.enabled}
	for _, kind := range audio.EffectKinds {
		es := EffectStatus{Kind: kind.String(), Backend: BackendNone}
		switch {
		case c.units[kind] != nil:
			es.Backend = BackendPlatform
		case kind == audio.EffectEchoCanceler && c.echo != nil:
			es.Backend = BackendSoftware
		case kind == audio.EffectNoiseSuppressor && c.gate != nil:
			es.Backend = BackendSoftware
		}
		es.Active = c.enabled && es.Backend != BackendNone
		st.Effects = append(st.Effects, es)
	}
	return st
}

// Release frees all platform units. The controller must not be used
// afterwards.
func (c *Controller) Release() error {
	var errs []error
	for _, kind := range audio.EffectKinds {
		u, ok := c.units[kind]
		if !ok {
			continue
		}
		if err := u.Release(); err != nil {
			errs = append(errs, fmt.Errorf("mitigation: release %s: %w", kind, err))
		}
		delete(c.units, kind)
	}
	c.echo = nil
	c.gate = nil
	return errors.Join(errs...)
}
