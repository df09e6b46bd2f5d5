package audio_test

import (
	"math"
	"testing"

	"github.com/MrWong99/earpiece/pkg/audio"
)

func TestSaturate(t *testing.T) {
	tests := []struct {
		in   float64
		want int16
	}{
		{0, 0},
		{1.4, 1},
		{1.5, 2},
		{-1.5, -2},
		{-2.4, -2},
		{32766.6, 32767},
		{40000, 32767},
		{-32768.4, -32768},
		{-50000, -32768},
		{math.Inf(1), 32767},
		{math.Inf(-1), -32768},
	}
	for _, tc := range tests {
		if got := audio.Saturate(tc.in); got != tc.want {
			t.Errorf("Saturate(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestRMS_Empty(t *testing.T) {
	if got := audio.RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
}

func TestRMS_FullScaleSquare(t *testing.T) {
	samples := []int16{-32768, -32768, -32768, -32768}
	if got := audio.RMS(samples); math.Abs(got-1) > 1e-9 {
		t.Errorf("RMS = %v, want 1", got)
	}
}

func TestDBFS(t *testing.T) {
	if got := audio.DBFS(1); math.Abs(got) > 1e-9 {
		t.Errorf("DBFS(1) = %v, want 0", got)
	}
	if got := audio.DBFS(0.5); math.Abs(got-(-6.0206)) > 1e-3 {
		t.Errorf("DBFS(0.5) = %v, want ~-6.02", got)
	}
	if got := audio.DBFS(0); !math.IsInf(got, -1) {
		t.Errorf("DBFS(0) = %v, want -Inf", got)
	}
}

func TestParseBand(t *testing.T) {
	for _, b := range []audio.Band{audio.BandLow, audio.BandMid, audio.BandHigh} {
		got, err := audio.ParseBand(b.String())
		if err != nil {
			t.Fatalf("ParseBand(%q): %v", b.String(), err)
		}
		if got != b {
			t.Errorf("ParseBand(%q) = %v, want %v", b.String(), got, b)
		}
	}
	if _, err := audio.ParseBand("treble"); err == nil {
		t.Error("ParseBand(treble): expected error")
	}
}

func TestStreamConfig_FramePeriod(t *testing.T) {
	cfg := audio.StreamConfig{SampleRate: 44100, FrameSize: 441}
	if got := cfg.FramePeriod(); got.Milliseconds() != 10 {
		t.Errorf("FramePeriod = %v, want 10ms", got)
	}
	if got := (audio.StreamConfig{}).FramePeriod(); got != 0 {
		t.Errorf("zero config FramePeriod = %v, want 0", got)
	}
}

func TestStreamConfig_String(t *testing.T) {
	cfg := audio.DefaultStreamConfig()
	cfg.FrameSize = 1024
	want := "44100Hz mono pcm16 x1024 @default"
	if got := cfg.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
