// Package dsp holds the per-sample signal processing stages of the pipeline:
// the gain stage and the three-band equalizer.
//
// All stages operate in place on mono PCM16 slices, compute in float64 and
// convert back with round-half-away-from-zero and saturation. None of them
// allocate on the processing path. Stages carrying filter state are owned by
// a single goroutine and are not safe for concurrent use.
package dsp

import (
	"math"

	"github.com/MrWong99/earpiece/pkg/audio"
)

// ApplyGain scales every sample by amp, rounding and saturating to the int16
// range. It returns the number of samples that had to be clipped.
//
// A gain of exactly 1 leaves the slice untouched.
func ApplyGain(samples []int16, amp float64) (clipped int) {
	if amp == 1 {
		return 0
	}
	for i, s := range samples {
		v := math.Round(float64(s) * amp)
		if v > math.MaxInt16 || v < math.MinInt16 {
			clipped++
		}
		samples[i] = audio.Saturate(v)
	}
	return clipped
}
