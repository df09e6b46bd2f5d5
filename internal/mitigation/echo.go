package mitigation

import (
	"time"

	"github.com/MrWong99/earpiece/pkg/audio"
)

// Echo canceller defaults.
const (
	// DefaultEchoDelay is the bulk delay assumed between rendering a sample
	// and its echo reaching the microphone (output latency, acoustic path,
	// input latency), on top of one frame.
	DefaultEchoDelay = 40 * time.Millisecond

	// DefaultEchoTail is the length of the adaptive filter. It covers
	// residual delay and the room response after the bulk delay.
	DefaultEchoTail = 10 * time.Millisecond

	// DefaultEchoStep is the NLMS step size mu (0 < mu < 2).
	DefaultEchoStep = 0.1
)

// EchoConfig sizes an [EchoCanceller]. All lengths are in samples.
type EchoConfig struct {
	FrameSize int
	Delay     int
	Taps      int
	Step      float64
}

// DefaultEchoConfig converts the default delay and tail to samples at
// sampleRate.
func DefaultEchoConfig(frameSize, sampleRate int) EchoConfig {
	toSamples := func(d time.Duration) int {
		return int(d * time.Duration(sampleRate) / time.Second)
	}
	return EchoConfig{
		FrameSize: frameSize,
		Delay:     toSamples(DefaultEchoDelay),
		Taps:      max(toSamples(DefaultEchoTail), 1),
		Step:      DefaultEchoStep,
	}
}

// EchoCanceller is a normalised least-mean-squares adaptive filter that
// subtracts an estimate of the rendered signal from the captured one.
//
// The far-end reference and the capture frames are both handled by the
// processing goroutine, so the canceller is not safe for concurrent use.
type EchoCanceller struct {
	cfg     EchoConfig
	weights []float64

	far  []float64
	head int
	ref  []float64
}

// NewEchoCanceller allocates the filter and the far-end history.
func NewEchoCanceller(cfg EchoConfig) *EchoCanceller {
	size := cfg.FrameSize + cfg.Delay + cfg.Taps
	return &EchoCanceller{
		cfg:     cfg,
		weights: make([]float64, cfg.Taps),
		far:     make([]float64, size),
		ref:     make([]float64, cfg.FrameSize+cfg.Taps-1),
	}
}

// FeedFarEnd appends a rendered frame to the reference history.
func (a *EchoCanceller) FeedFarEnd(frame []int16) {
	for _, s := range frame {
		a.far[a.head] = float64(s)
		a.head++
		if a.head == len(a.far) {
			a.head = 0
		}
	}
}

// Process removes the echo estimate from frame in place.
//
// For sample i the reference vector is the far-end history one frame plus
// Delay samples earlier, Taps samples long.
func (a *EchoCanceller) Process(frame []int16) {
	n := min(len(frame), a.cfg.FrameSize)
	taps := a.cfg.Taps
	size := len(a.far)

	start := a.head - a.cfg.FrameSize - a.cfg.Delay - taps + 1
	for j := range n + taps - 1 {
		idx := (start + j) % size
		if idx < 0 {
			idx += size
		}
		a.ref[j] = a.far[idx]
	}

	for i := range n {
		base := i + taps - 1
		var y, power float64
		for k := range taps {
			x := a.ref[base-k]
			y += a.weights[k] * x
			power += x * x
		}
		e := float64(frame[i]) - y
		if power > 1e-6 {
			mu := a.cfg.Step * e / power
			for k := range taps {
				a.weights[k] += mu * a.ref[base-k]
			}
		}
		frame[i] = audio.Saturate(e)
	}
}

// Reset forgets the learned echo path and the far-end history.
func (a *EchoCanceller) Reset() {
	clear(a.weights)
	clear(a.far)
	a.head = 0
}
