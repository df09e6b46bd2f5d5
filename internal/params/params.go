// Package params holds the live-tunable processing parameters.
//
// A [Store] publishes immutable [Snapshot] values through an atomic pointer.
// Writers build a modified copy and swap it in with compare-and-swap, so the
// processing goroutine reads a consistent set of parameters with a single
// atomic load and is never blocked by a writer.
package params

import (
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/MrWong99/earpiece/pkg/audio"
)

// Parameter bounds.
const (
	MinAmplification = 0.0
	MaxAmplification = 3.0
	MinBandGainDB    = -10.0
	MaxBandGainDB    = 10.0
)

// Snapshot is an immutable view of all parameters. Values read from a
// [Store] must not be modified.
type Snapshot struct {
	// Amplification is the linear gain factor in [0, 3].
	Amplification float64

	// BandGains holds the equalizer gain of each band in dB, in [-10, 10].
	BandGains [audio.NumBands]float64

	// MitigationEnabled switches echo cancellation and noise suppression.
	MitigationEnabled bool

	// Version increments on every accepted write.
	Version uint64
}

// Defaults returns unity gain, a flat equalizer and mitigation switched on.
func Defaults() Snapshot {
	return Snapshot{Amplification: 1, MitigationEnabled: true}
}

// Store is safe for concurrent use.
type Store struct {
	cur      atomic.Pointer[Snapshot]
	onUpdate func(name string)
}

// Option configures a [Store].
type Option func(*Store)

// WithUpdateHook registers fn to be called with the parameter name after
// every accepted write.
func WithUpdateHook(fn func(name string)) Option {
	return func(s *Store) { s.onUpdate = fn }
}

// New creates a store holding initial, clamped into range.
func New(initial Snapshot, opts ...Option) *Store {
	s := &Store{}
	for _, o := range opts {
		o(s)
	}
	initial.Amplification = clampOr(initial.Amplification, MinAmplification, MaxAmplification, 1)
	for i, g := range initial.BandGains {
		initial.BandGains[i] = clampOr(g, MinBandGainDB, MaxBandGainDB, 0)
	}
	s.cur.Store(&initial)
	return s
}

// Snapshot returns the current parameters.
func (s *Store) Snapshot() Snapshot {
	return *s.cur.Load()
}

// SetAmplification sets the gain factor, clamped to [0, 3]. Non-finite
// values are rejected and the previous value is kept. Returns the value in
// effect after the call.
func (s *Store) SetAmplification(f float64) float64 {
	if math.IsNaN(f) {
		slog.Warn("params: rejected NaN amplification")
		return s.Snapshot().Amplification
	}
	f = clamp(f, MinAmplification, MaxAmplification)
	next := s.update("amplification", func(snap *Snapshot) { snap.Amplification = f })
	return next.Amplification
}

// SetBandGain sets one band's gain in dB, clamped to [-10, 10]. NaN is
// rejected. Returns the value in effect after the call.
func (s *Store) SetBandGain(band audio.Band, dB float64) float64 {
	if band < 0 || int(band) >= audio.NumBands {
		slog.Warn("params: rejected gain for unknown band", "band", int(band))
		return 0
	}
	if math.IsNaN(dB) {
		slog.Warn("params: rejected NaN band gain", "band", band.String())
		return s.Snapshot().BandGains[band]
	}
	dB = clamp(dB, MinBandGainDB, MaxBandGainDB)
	next := s.update("band_gain", func(snap *Snapshot) { snap.BandGains[band] = dB })
	return next.BandGains[band]
}

// SetMitigationEnabled switches feedback and noise mitigation.
func (s *Store) SetMitigationEnabled(enabled bool) {
	s.update("mitigation", func(snap *Snapshot) { snap.MitigationEnabled = enabled })
}

// Apply replaces every tunable value at once, with the same clamping and NaN
// rules as the individual setters. Used when reloading configuration.
func (s *Store) Apply(p Snapshot) Snapshot {
	return s.update("all", func(snap *Snapshot) {
		if !math.IsNaN(p.Amplification) {
			snap.Amplification = clamp(p.Amplification, MinAmplification, MaxAmplification)
		}
		for i, g := range p.BandGains {
			if !math.IsNaN(g) {
				snap.BandGains[i] = clamp(g, MinBandGainDB, MaxBandGainDB)
			}
		}
		snap.MitigationEnabled = p.MitigationEnabled
	})
}

func (s *Store) update(name string, mutate func(*Snapshot)) Snapshot {
	for {
		old := s.cur.Load()
		next := *old
		mutate(&next)
		next.Version = old.Version + 1
		if s.cur.CompareAndSwap(old, &next) {
			if s.onUpdate != nil {
				s.onUpdate(name)
			}
			return next
		}
	}
}

// clamp limits v to [lo, hi]. Infinities clamp to the nearest bound.
func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func clampOr(v, lo, hi, fallback float64) float64 {
	if math.IsNaN(v) {
		return fallback
	}
	return clamp(v, lo, hi)
}
