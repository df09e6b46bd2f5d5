package mitigation

import (
	"math"

	"github.com/MrWong99/earpiece/pkg/audio"
)

// Noise gate defaults.
const (
	// DefaultGateThresholdDBFS is the frame level below which the gate closes.
	DefaultGateThresholdDBFS = -45.0

	// DefaultGateFloorDB is the attenuation applied while the gate is closed.
	DefaultGateFloorDB = -30.0

	// DefaultGateHold is the number of frames the gate stays open after the
	// level drops below the threshold, so speech pauses are not chopped.
	DefaultGateHold = 8
)

// NoiseGate is a downward expander working on whole frames. Frames whose RMS
// level stays below the threshold after the hold period are attenuated to
// the floor.
//
// A NoiseGate is owned by the processing goroutine and is not safe for
// concurrent use.
type NoiseGate struct {
	threshold float64
	floor     float64
	hold      int

	remaining int
	open      bool
}

// NewNoiseGate returns a gate using the defaults.
func NewNoiseGate() *NoiseGate {
	return &NoiseGate{
		threshold: math.Pow(10, DefaultGateThresholdDBFS/20),
		floor:     math.Pow(10, DefaultGateFloorDB/20),
		hold:      DefaultGateHold,
	}
}

// Open reports whether the last frame passed unattenuated.
func (g *NoiseGate) Open() bool { return g.open }

// Process gates frame in place and returns its RMS before gating.
func (g *NoiseGate) Process(frame []int16) float64 {
	rms := audio.RMS(frame)
	switch {
	case rms >= g.threshold:
		g.remaining = g.hold
		g.open = true
	case g.remaining > 0:
		g.remaining--
		g.open = true
	default:
		g.open = false
		for i, s := range frame {
			frame[i] = audio.Saturate(float64(s) * g.floor)
		}
	}
	return rms
}

// Reset closes the gate and clears the hold counter.
func (g *NoiseGate) Reset() {
	g.remaining = 0
	g.open = false
}
