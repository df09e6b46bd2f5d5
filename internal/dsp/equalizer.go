package dsp

import (
	"fmt"
	"math"

	"github.com/MrWong99/earpiece/pkg/audio"
)

// Band edge defaults in Hz.
const (
	DefaultLowCornerHz  = 300.0
	DefaultHighCornerHz = 1000.0
	DefaultShelfQ       = 1 / math.Sqrt2
)

// EqualizerConfig fixes the band layout of an [Equalizer].
type EqualizerConfig struct {
	SampleRate   int
	LowCornerHz  float64
	HighCornerHz float64

	// ShelfQ is the quality factor of both shelves. The peaking band derives
	// its Q from the band edges.
	ShelfQ float64
}

// DefaultEqualizerConfig returns the 300 Hz / 1 kHz layout at sampleRate.
func DefaultEqualizerConfig(sampleRate int) EqualizerConfig {
	return EqualizerConfig{
		SampleRate:   sampleRate,
		LowCornerHz:  DefaultLowCornerHz,
		HighCornerHz: DefaultHighCornerHz,
		ShelfQ:       DefaultShelfQ,
	}
}

// MidCenterHz is the geometric centre of the band edges.
func (c EqualizerConfig) MidCenterHz() float64 {
	return math.Sqrt(c.LowCornerHz * c.HighCornerHz)
}

// MidQ is centre frequency over bandwidth.
func (c EqualizerConfig) MidQ() float64 {
	return c.MidCenterHz() / (c.HighCornerHz - c.LowCornerHz)
}

// Validate reports whether the layout can be realised at the sample rate.
func (c EqualizerConfig) Validate() error {
	nyquist := float64(c.SampleRate) / 2
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("dsp: sample rate must be positive, got %d", c.SampleRate)
	case c.LowCornerHz <= 0:
		return fmt.Errorf("dsp: low corner must be positive, got %g", c.LowCornerHz)
	case c.HighCornerHz <= c.LowCornerHz:
		return fmt.Errorf("dsp: high corner %g must be above low corner %g", c.HighCornerHz, c.LowCornerHz)
	case c.HighCornerHz >= nyquist:
		return fmt.Errorf("dsp: high corner %g must be below nyquist %g", c.HighCornerHz, nyquist)
	case c.ShelfQ <= 0:
		return fmt.Errorf("dsp: shelf Q must be positive, got %g", c.ShelfQ)
	}
	return nil
}

// Equalizer is the three-band tone control: a low shelf, a mid peak and a
// high shelf run in series. A band at exactly 0 dB is bypassed, so an
// all-zero equalizer is a bit-exact pass-through.
type Equalizer struct {
	cfg     EqualizerConfig
	filters [audio.NumBands]Biquad
	gains   [audio.NumBands]float64
}

// NewEqualizer builds a flat equalizer.
func NewEqualizer(cfg EqualizerConfig) (*Equalizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Equalizer{cfg: cfg}
	for i := range e.filters {
		e.filters[i].SetUnity()
	}
	return e, nil
}

// Config returns the band layout.
func (e *Equalizer) Config() EqualizerConfig { return e.cfg }

// Gains returns the gains currently in effect.
func (e *Equalizer) Gains() [audio.NumBands]float64 { return e.gains }

// SetGains updates the band gains in dB. Coefficients are only recomputed for
// bands whose gain changed; filter state is kept so that the change does not
// click.
func (e *Equalizer) SetGains(gains [audio.NumBands]float64) {
	for i, g := range gains {
		if g == e.gains[i] {
			continue
		}
		e.gains[i] = g
		e.design(audio.Band(i))
	}
}

func (e *Equalizer) design(band audio.Band) {
	f := &e.filters[band]
	g := e.gains[band]
	if g == 0 {
		f.SetUnity()
		f.Reset()
		return
	}
	rate := float64(e.cfg.SampleRate)
	switch band {
	case audio.BandLow:
		f.SetLowShelf(rate, e.cfg.LowCornerHz, e.cfg.ShelfQ, g)
	case audio.BandMid:
		f.SetPeaking(rate, e.cfg.MidCenterHz(), e.cfg.MidQ(), g)
	case audio.BandHigh:
		f.SetHighShelf(rate, e.cfg.HighCornerHz, e.cfg.ShelfQ, g)
	}
}

// Flat reports whether every band is at 0 dB.
func (e *Equalizer) Flat() bool {
	return e.gains == [audio.NumBands]float64{}
}

// Process filters samples in place and returns the number of clipped samples.
func (e *Equalizer) Process(samples []int16) (clipped int) {
	if e.Flat() {
		return 0
	}
	for i, s := range samples {
		x := float64(s)
		for b := range e.filters {
			if e.gains[b] != 0 {
				x = e.filters[b].Tick(x)
			}
		}
		v := math.Round(x)
		if v > math.MaxInt16 || v < math.MinInt16 {
			clipped++
		}
		samples[i] = audio.Saturate(v)
	}
	return clipped
}

// Response returns the combined magnitude response in dB at freq Hz.
func (e *Equalizer) Response(freq float64) float64 {
	mag := 1.0
	for b := range e.filters {
		if e.gains[b] != 0 {
			mag *= e.filters[b].Magnitude(float64(e.cfg.SampleRate), freq)
		}
	}
	return 20 * math.Log10(mag)
}

// Reset clears all filter state.
func (e *Equalizer) Reset() {
	for i := range e.filters {
		e.filters[i].Reset()
	}
}
