package audio

import "errors"

var (
	// ErrDeviceUnavailable is returned when no capture or render device exists
	// or the process lacks permission to use it.
	ErrDeviceUnavailable = errors.New("audio device unavailable")

	// ErrConfigUnsupported is returned when the requested sample rate, format
	// or channel layout cannot be honoured by the device.
	ErrConfigUnsupported = errors.New("audio configuration unsupported")

	// ErrTransientIO marks a single-frame glitch (overflow, underrun, partial
	// frame). The frame is dropped and processing continues.
	ErrTransientIO = errors.New("transient audio i/o error")

	// ErrDeviceLost marks a mid-session device disconnection. It is fatal to
	// the session.
	ErrDeviceLost = errors.New("audio device lost")

	// ErrEffectUnavailable is returned by [Platform.CreateEffect] when the
	// platform cannot provide the requested effect.
	ErrEffectUnavailable = errors.New("audio effect unavailable")
)

// IsTransient reports whether err is a recoverable single-frame error.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientIO)
}
