package mitigation

import (
	"math/rand/v2"
	"testing"

	"github.com/MrWong99/earpiece/pkg/audio"
)

func TestEchoCanceller_Converges(t *testing.T) {
	t.Parallel()

	cfg := EchoConfig{FrameSize: 128, Delay: 64, Taps: 32, Step: 0.5}
	ec := NewEchoCanceller(cfg)

	const frames = 400
	rng := rand.New(rand.NewPCG(7, 9))
	far := make([]int16, frames*cfg.FrameSize)
	for i := range far {
		far[i] = int16(rng.IntN(16000) - 8000)
	}
	// Echo path: half amplitude, one frame plus bulk delay plus 5 samples.
	lag := cfg.FrameSize + cfg.Delay + 5
	echoAt := func(t int) int16 {
		if t < lag {
			return 0
		}
		return far[t-lag] / 2
	}

	var in, out float64
	for n := range frames {
		near := make([]int16, cfg.FrameSize)
		for i := range near {
			near[i] = echoAt(n*cfg.FrameSize + i)
		}
		in = audio.RMS(near)
		ec.Process(near)
		out = audio.RMS(near)
		ec.FeedFarEnd(far[n*cfg.FrameSize : (n+1)*cfg.FrameSize])
	}
	if in == 0 {
		t.Fatal("no echo in the captured signal")
	}
	if out > in/10 {
		t.Errorf("residual echo RMS %g, want below %g", out, in/10)
	}
}

func TestEchoCanceller_SilentFarEndIsPassThrough(t *testing.T) {
	t.Parallel()

	ec := NewEchoCanceller(DefaultEchoConfig(256, 44100))
	frame := make([]int16, 256)
	for i := range frame {
		frame[i] = int16(i * 100)
	}
	want := append([]int16(nil), frame...)
	ec.Process(frame)
	for i := range frame {
		if frame[i] != want[i] {
			t.Fatalf("sample %d changed with silent reference: %d -> %d", i, want[i], frame[i])
		}
	}
}

func TestDefaultEchoConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultEchoConfig(1024, 44100)
	if cfg.Delay != 1764 {
		t.Errorf("Delay = %d, want 1764", cfg.Delay)
	}
	if cfg.Taps != 441 {
		t.Errorf("Taps = %d, want 441", cfg.Taps)
	}
}
