package dsp

import (
	"math"
	"testing"

	"github.com/MrWong99/earpiece/pkg/audio"
)

const testRate = 44100

func sine(freq, amp float64, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = audio.Saturate(amp * math.Sin(2*math.Pi*freq*float64(i)/testRate))
	}
	return out
}

func newTestEqualizer(t *testing.T) *Equalizer {
	t.Helper()
	eq, err := NewEqualizer(DefaultEqualizerConfig(testRate))
	if err != nil {
		t.Fatalf("NewEqualizer: %v", err)
	}
	return eq
}

func TestEqualizer_FlatIsBitExact(t *testing.T) {
	t.Parallel()

	eq := newTestEqualizer(t)
	in := make([]int16, 4096)
	for i := range in {
		in[i] = int16(i*37%60000 - 30000)
	}
	out := append([]int16(nil), in...)
	for range 4 {
		eq.Process(out)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("sample %d changed: %d -> %d", i, in[i], out[i])
		}
	}
}

func TestEqualizer_ReturnToFlatIsBitExact(t *testing.T) {
	t.Parallel()

	eq := newTestEqualizer(t)
	eq.SetGains([audio.NumBands]float64{6, -4, 8})
	eq.Process(sine(1000, 8000, 1024))
	eq.SetGains([audio.NumBands]float64{})

	in := sine(440, 10000, 1024)
	out := append([]int16(nil), in...)
	eq.Process(out)
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("sample %d changed after returning to flat: %d -> %d", i, in[i], out[i])
		}
	}
}

func TestEqualizer_HighBoostRaisesHighTone(t *testing.T) {
	t.Parallel()

	eq := newTestEqualizer(t)
	eq.SetGains([audio.NumBands]float64{0, 0, 10})

	in := sine(6000, 3000, 8192)
	out := append([]int16(nil), in...)
	eq.Process(out)

	// Skip the filter's settling time.
	rmsIn := audio.RMS(in[2048:])
	rmsOut := audio.RMS(out[2048:])
	if rmsOut <= rmsIn {
		t.Fatalf("RMS out %g <= in %g", rmsOut, rmsIn)
	}
	gainDB := 20 * math.Log10(rmsOut/rmsIn)
	if gainDB < 8 || gainDB > 11 {
		t.Errorf("measured gain at 6 kHz = %.2f dB, want about +10 dB", gainDB)
	}
}

func TestEqualizer_LowCutLowersLowTone(t *testing.T) {
	t.Parallel()

	eq := newTestEqualizer(t)
	eq.SetGains([audio.NumBands]float64{-10, 0, 0})

	in := sine(60, 10000, 16384)
	out := append([]int16(nil), in...)
	eq.Process(out)

	if audio.RMS(out[4096:]) >= audio.RMS(in[4096:]) {
		t.Errorf("low cut did not lower a 60 Hz tone")
	}
}

func TestEqualizer_Response(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		gains [audio.NumBands]float64
		freq  float64
		want  float64
		tol   float64
	}{
		{name: "low shelf in band", gains: [3]float64{10, 0, 0}, freq: 20, want: 10, tol: 0.5},
		{name: "low shelf out of band", gains: [3]float64{10, 0, 0}, freq: 8000, want: 0, tol: 0.5},
		{name: "high shelf in band", gains: [3]float64{0, 0, -10}, freq: 12000, want: -10, tol: 0.5},
		{name: "high shelf out of band", gains: [3]float64{0, 0, -10}, freq: 30, want: 0, tol: 0.5},
		{name: "mid peak at centre", gains: [3]float64{0, 7, 0}, freq: math.Sqrt(300 * 1000), want: 7, tol: 0.01},
		{name: "flat", gains: [3]float64{}, freq: 1000, want: 0, tol: 1e-12},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			eq := newTestEqualizer(t)
			eq.SetGains(tc.gains)
			if got := eq.Response(tc.freq); math.Abs(got-tc.want) > tc.tol {
				t.Errorf("Response(%g) = %.3f dB, want %.3f ± %g", tc.freq, got, tc.want, tc.tol)
			}
		})
	}
}

func TestEqualizer_SaturatesInsteadOfWrapping(t *testing.T) {
	t.Parallel()

	eq := newTestEqualizer(t)
	eq.SetGains([audio.NumBands]float64{0, 0, 10})

	var ref Biquad
	ref.SetHighShelf(testRate, DefaultHighCornerHz, DefaultShelfQ, 10)

	in := sine(8000, 32000, 4096)
	out := append([]int16(nil), in...)
	clipped := eq.Process(out)
	if clipped == 0 {
		t.Fatal("expected clipped samples for a full-scale boosted tone")
	}

	var overs int
	for i, x := range in {
		y := math.Round(ref.Tick(float64(x)))
		switch {
		case y > math.MaxInt16:
			overs++
			if out[i] != math.MaxInt16 {
				t.Fatalf("sample %d: reference %g, got %d, want %d", i, y, out[i], math.MaxInt16)
			}
		case y < math.MinInt16:
			overs++
			if out[i] != math.MinInt16 {
				t.Fatalf("sample %d: reference %g, got %d, want %d", i, y, out[i], math.MinInt16)
			}
		default:
			if out[i] != int16(y) {
				t.Fatalf("sample %d: reference %g, got %d", i, y, out[i])
			}
		}
	}
	if overs != clipped {
		t.Errorf("clipped = %d, reference exceeds int16 range %d times", clipped, overs)
	}
}

func TestEqualizerConfig_Validate(t *testing.T) {
	t.Parallel()

	base := DefaultEqualizerConfig(testRate)
	tests := []struct {
		name    string
		mutate  func(*EqualizerConfig)
		wantErr bool
	}{
		{name: "default", mutate: func(*EqualizerConfig) {}},
		{name: "zero rate", mutate: func(c *EqualizerConfig) { c.SampleRate = 0 }, wantErr: true},
		{name: "inverted corners", mutate: func(c *EqualizerConfig) { c.HighCornerHz = 200 }, wantErr: true},
		{name: "above nyquist", mutate: func(c *EqualizerConfig) { c.HighCornerHz = 30000 }, wantErr: true},
		{name: "zero q", mutate: func(c *EqualizerConfig) { c.ShelfQ = 0 }, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tc.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tc.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestEqualizerConfig_MidBand(t *testing.T) {
	t.Parallel()

	cfg := DefaultEqualizerConfig(testRate)
	if got := cfg.MidCenterHz(); math.Abs(got-547.72) > 0.01 {
		t.Errorf("MidCenterHz = %g, want about 547.72", got)
	}
	if got := cfg.MidQ(); math.Abs(got-0.7825) > 0.001 {
		t.Errorf("MidQ = %g, want about 0.7825", got)
	}
}
