// Package audio defines the interfaces and types for audio device access
// within earpiece.
//
// The primary abstractions are:
//
//   - [Platform] opens capture and render streams and exposes the
//     platform's acoustic effect units.
//   - [CaptureStream] and [RenderStream] do blocking fixed-size frame I/O.
//   - [EffectUnit] is a platform-side echo canceller or noise suppressor
//     attached to a capture session.
//
// Implementations of these interfaces are provided by platform-specific
// adapter packages (e.g., audio/portaudio, audio/null).
//
// This package lives under pkg/ because external code (third-party platform
// adapters) is expected to implement [Platform].
package audio

import (
	"context"
)

// EffectKind classifies the acoustic effect units a platform may provide.
type EffectKind int

const (
	// EffectEchoCanceler removes the rendered signal leaking back into the
	// microphone (acoustic feedback).
	EffectEchoCanceler EffectKind = iota

	// EffectNoiseSuppressor attenuates stationary background noise.
	EffectNoiseSuppressor
)

// EffectKinds lists every effect kind in a stable order.
var EffectKinds = []EffectKind{EffectEchoCanceler, EffectNoiseSuppressor}

// String returns the human-readable name of the effect kind.
func (k EffectKind) String() string {
	switch k {
	case EffectEchoCanceler:
		return "echo_canceler"
	case EffectNoiseSuppressor:
		return "noise_suppressor"
	default:
		return "unknown"
	}
}

// CaptureStream is an open microphone stream.
//
// Read is only ever called from one goroutine. Close may be called from any
// goroutine, more than once, and while a Read is blocked.
type CaptureStream interface {
	// Read blocks until buf is full or the stream is closed and returns the
	// number of samples written into buf. After Close, Read returns a zero
	// count (with a nil error or io.EOF). Errors wrap [ErrTransientIO] for
	// recoverable glitches (overflow) and [ErrDeviceLost] for disconnection.
	Read(buf []int16) (int, error)

	// SessionID identifies the capture session so that effect units can be
	// attached to it.
	SessionID() int

	// Close releases the device handle. Idempotent; unblocks in-flight reads.
	Close() error
}

// RenderStream is an open output stream.
//
// Write is only ever called from one goroutine. Close may be called from any
// goroutine, more than once, and while a Write is blocked.
type RenderStream interface {
	// Write blocks until the device has accepted buf and returns the number
	// of samples accepted. Errors wrap [ErrTransientIO] for underruns and
	// [ErrDeviceLost] for disconnection.
	Write(buf []int16) (int, error)

	// Close releases the device handle. Idempotent; unblocks in-flight writes.
	Close() error
}

// EffectUnit is a platform-provided acoustic effect bound to a capture session.
type EffectUnit interface {
	// Kind reports which effect this unit implements.
	Kind() EffectKind

	// SetEnabled switches the effect on or off.
	SetEnabled(enabled bool) error

	// Release frees the unit. Idempotent.
	Release() error
}

// Platform is the entry point for an audio subsystem. Implementations wrap a
// host audio API (PortAudio, a mobile audio stack, …) and expose a uniform
// stream abstraction.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// OpenCapture opens and starts a microphone stream. Returns an error
	// wrapping [ErrDeviceUnavailable] when no suitable device exists or access
	// is denied, and [ErrConfigUnsupported] when the rate/format/channel
	// combination cannot be honoured.
	OpenCapture(ctx context.Context, cfg StreamConfig) (CaptureStream, error)

	// OpenRender opens and starts an output stream with the same error
	// contract as OpenCapture.
	OpenRender(ctx context.Context, cfg StreamConfig) (RenderStream, error)

	// MinFrameSize reports the smallest frame size (in samples) the device
	// supports for cfg.
	MinFrameSize(cfg StreamConfig) (int, error)

	// QueryEffect reports whether the platform can provide an effect of kind.
	QueryEffect(kind EffectKind) bool

	// CreateEffect attaches a new effect unit to the capture session.
	CreateEffect(kind EffectKind, sessionID int) (EffectUnit, error)
}
