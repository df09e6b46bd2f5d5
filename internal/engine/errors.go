package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrStartupFailed is matched by every error returned from a failed
	// [Engine.Start]. The concrete error is a [*StartupError].
	ErrStartupFailed = errors.New("engine: startup failed")

	// ErrAlreadyRunning is returned by [Engine.Start] while a session is live.
	ErrAlreadyRunning = errors.New("engine: already running")
)

// StartupError describes which startup stage failed and why. It matches
// [ErrStartupFailed] with [errors.Is] and unwraps to the cause, so callers
// can also test for [audio.ErrDeviceUnavailable] and friends.
type StartupError struct {
	// Stage is the startup step that failed (e.g. "open streams").
	Stage string

	// Err is the underlying cause.
	Err error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("engine: startup failed: %s: %v", e.Stage, e.Err)
}

// Unwrap returns the cause.
func (e *StartupError) Unwrap() error { return e.Err }

// Is reports whether target is [ErrStartupFailed].
func (e *StartupError) Is(target error) bool { return target == ErrStartupFailed }
