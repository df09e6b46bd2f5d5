package mitigation

import (
	"errors"
	"testing"

	"github.com/MrWong99/earpiece/pkg/audio"
	"github.com/MrWong99/earpiece/pkg/audio/mock"
)

func testConfig(fallback bool) Config {
	return Config{SampleRate: 44100, FrameSize: 256, SoftwareFallback: fallback}
}

func backends(st Status) map[string]Backend {
	out := make(map[string]Backend, len(st.Effects))
	for _, e := range st.Effects {
		out[e.Kind] = e.Backend
	}
	return out
}

func TestOpen_Backends(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		effects   map[audio.EffectKind]bool
		createErr error
		fallback  bool
		wantEcho  Backend
		wantNoise Backend
	}{
		{
			name:      "all platform",
			effects:   map[audio.EffectKind]bool{audio.EffectEchoCanceler: true, audio.EffectNoiseSuppressor: true},
			fallback:  true,
			wantEcho:  BackendPlatform,
			wantNoise: BackendPlatform,
		},
		{
			name:      "mixed",
			effects:   map[audio.EffectKind]bool{audio.EffectNoiseSuppressor: true},
			fallback:  true,
			wantEcho:  BackendSoftware,
			wantNoise: BackendPlatform,
		},
		{
			name:      "none without fallback",
			fallback:  false,
			wantEcho:  BackendNone,
			wantNoise: BackendNone,
		},
		{
			name:      "create failure degrades",
			effects:   map[audio.EffectKind]bool{audio.EffectEchoCanceler: true},
			createErr: errors.New("driver refused"),
			fallback:  true,
			wantEcho:  BackendSoftware,
			wantNoise: BackendSoftware,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := &mock.Platform{Effects: tc.effects, EffectCreateError: tc.createErr}
			c := Open(p, 1, testConfig(tc.fallback))
			defer c.Release()

			got := backends(c.Status())
			if got["echo_canceler"] != tc.wantEcho {
				t.Errorf("echo backend = %q, want %q", got["echo_canceler"], tc.wantEcho)
			}
			if got["noise_suppressor"] != tc.wantNoise {
				t.Errorf("noise backend = %q, want %q", got["noise_suppressor"], tc.wantNoise)
			}
		})
	}
}

func TestOpen_QueriesAvailabilityOnce(t *testing.T) {
	t.Parallel()

	p := &mock.Platform{Effects: map[audio.EffectKind]bool{audio.EffectEchoCanceler: true}}
	c := Open(p, 3, testConfig(true))
	for range 5 {
		c.SetEnabled(true)
		c.SetEnabled(false)
	}
	c.Status()
	if got := len(p.QueryEffectCalls); got != len(audio.EffectKinds) {
		t.Errorf("QueryEffect called %d times, want %d", got, len(audio.EffectKinds))
	}
	if !c.Available(audio.EffectEchoCanceler) || c.Available(audio.EffectNoiseSuppressor) {
		t.Error("cached availability does not match platform")
	}
	if units := p.UnitsSnapshot(); len(units) != 1 || units[0].SessionID != 3 {
		t.Errorf("units = %v, want one unit for session 3", units)
	}
}

func TestController_SetEnabledIdempotent(t *testing.T) {
	t.Parallel()

	p := &mock.Platform{Effects: map[audio.EffectKind]bool{audio.EffectEchoCanceler: true}}
	c := Open(p, 1, testConfig(false))

	c.SetEnabled(true)
	c.SetEnabled(true)
	c.SetEnabled(false)
	c.SetEnabled(false)

	u := p.UnitsSnapshot()[0]
	calls := u.SetEnabledCalls()
	if len(calls) != 2 || !calls[0] || calls[1] {
		t.Errorf("SetEnabled calls = %v, want [true false]", calls)
	}
	if c.Enabled() {
		t.Error("Enabled() = true after disable")
	}
}

func TestController_EnableFailureDegrades(t *testing.T) {
	t.Parallel()

	p := &mock.Platform{
		Effects:           map[audio.EffectKind]bool{audio.EffectEchoCanceler: true},
		EffectEnableError: errors.New("unit busy"),
	}
	c := Open(p, 1, testConfig(true))
	c.SetEnabled(true)

	if got := backends(c.Status())["echo_canceler"]; got != BackendSoftware {
		t.Errorf("echo backend = %q, want software after enable failure", got)
	}
	if u := p.UnitsSnapshot()[0]; u.Releases() != 1 {
		t.Errorf("failed unit released %d times, want 1", u.Releases())
	}
	if !c.Enabled() {
		t.Error("mitigation should stay enabled in degraded mode")
	}
}

func TestController_DisabledIsPassThrough(t *testing.T) {
	t.Parallel()

	c := Open(&mock.Platform{}, 1, testConfig(true))
	c.SetEnabled(false)

	frame := make([]int16, 256)
	for i := range frame {
		frame[i] = int16(i)
	}
	want := append([]int16(nil), frame...)
	c.FeedFarEnd(frame)
	c.Process(frame)
	for i := range frame {
		if frame[i] != want[i] {
			t.Fatalf("sample %d changed while disabled", i)
		}
	}
}

func TestController_ReleaseAll(t *testing.T) {
	t.Parallel()

	p := &mock.Platform{Effects: map[audio.EffectKind]bool{
		audio.EffectEchoCanceler:    true,
		audio.EffectNoiseSuppressor: true,
	}}
	c := Open(p, 1, testConfig(true))
	if err := c.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	for _, u := range p.UnitsSnapshot() {
		if u.Releases() != 1 {
			t.Errorf("%s released %d times, want 1", u.Kind(), u.Releases())
		}
	}
}
