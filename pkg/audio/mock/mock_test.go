package mock_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/MrWong99/earpiece/pkg/audio"
	"github.com/MrWong99/earpiece/pkg/audio/mock"
)

func TestPlatform_RecordsOpens(t *testing.T) {
	t.Parallel()

	p := &mock.Platform{Source: mock.Ramp()}
	cfg := audio.DefaultStreamConfig()
	cfg.FrameSize = 8

	cs, err := p.OpenCapture(context.Background(), cfg)
	if err != nil {
		t.Fatalf("OpenCapture: %v", err)
	}
	if _, err := p.OpenRender(context.Background(), cfg); err != nil {
		t.Fatalf("OpenRender: %v", err)
	}
	if got := p.OpenCaptureCount(); got != 1 {
		t.Errorf("OpenCaptureCount = %d, want 1", got)
	}
	if len(p.OpenRenderCalls) != 1 || p.OpenRenderCalls[0] != cfg {
		t.Errorf("OpenRenderCalls = %v, want [%v]", p.OpenRenderCalls, cfg)
	}
	if cs.SessionID() != 1 {
		t.Errorf("SessionID = %d, want 1", cs.SessionID())
	}
}

func TestCaptureStream_RampIsContinuous(t *testing.T) {
	t.Parallel()

	p := &mock.Platform{Source: mock.Ramp()}
	cs, _ := p.OpenCapture(context.Background(), audio.DefaultStreamConfig())

	a := make([]int16, 4)
	b := make([]int16, 4)
	whole := make([]int16, 8)
	cs.Read(a)
	cs.Read(b)
	mock.Ramp()(whole, 0)

	for i := range 4 {
		if a[i] != whole[i] || b[i] != whole[4+i] {
			t.Fatalf("reads not continuous: a=%v b=%v whole=%v", a, b, whole)
		}
	}
}

func TestCaptureStream_Faults(t *testing.T) {
	t.Parallel()

	p := &mock.Platform{}
	cs, _ := p.OpenCapture(context.Background(), audio.DefaultStreamConfig())
	c := p.LastCapture()
	buf := make([]int16, 16)

	c.InjectError(5, nil)
	if n, err := cs.Read(buf); n != 5 || err != nil {
		t.Errorf("short read = (%d, %v), want (5, nil)", n, err)
	}

	c.InjectError(0, audio.ErrTransientIO)
	if _, err := cs.Read(buf); !errors.Is(err, audio.ErrTransientIO) {
		t.Errorf("err = %v, want ErrTransientIO", err)
	}

	c.Disconnect()
	if _, err := cs.Read(buf); !errors.Is(err, audio.ErrDeviceLost) {
		t.Errorf("err = %v, want ErrDeviceLost", err)
	}
}

func TestCaptureStream_CloseUnblocksPacedRead(t *testing.T) {
	t.Parallel()

	p := &mock.Platform{Pace: time.Hour}
	cs, _ := p.OpenCapture(context.Background(), audio.DefaultStreamConfig())

	done := make(chan error, 1)
	go func() {
		_, err := cs.Read(make([]int16, 4))
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cs.Close()

	select {
	case err := <-done:
		if !errors.Is(err, io.EOF) {
			t.Errorf("err = %v, want io.EOF", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Read did not unblock after Close")
	}
}

func TestRenderStream_RecordsAndCloses(t *testing.T) {
	t.Parallel()

	p := &mock.Platform{}
	rs, _ := p.OpenRender(context.Background(), audio.DefaultStreamConfig())
	r := p.LastRender()

	rs.Write([]int16{1, 2, 3})
	buf := []int16{4, 5}
	rs.Write(buf)
	buf[0] = 99

	frames := r.Frames()
	if len(frames) != 2 || frames[1][0] != 4 {
		t.Errorf("Frames = %v, want copies of the written data", frames)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.WaitFrames(ctx, 2); err != nil {
		t.Errorf("WaitFrames: %v", err)
	}

	rs.Close()
	if _, err := rs.Write(buf); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("write after close err = %v, want io.ErrClosedPipe", err)
	}
}

func TestEffectUnit_RecordsCalls(t *testing.T) {
	t.Parallel()

	p := &mock.Platform{
		Effects:           map[audio.EffectKind]bool{audio.EffectEchoCanceler: true},
		EffectEnableError: errors.New("busy"),
	}
	if !p.QueryEffect(audio.EffectEchoCanceler) || p.QueryEffect(audio.EffectNoiseSuppressor) {
		t.Fatal("QueryEffect does not follow Effects map")
	}

	u, err := p.CreateEffect(audio.EffectEchoCanceler, 7)
	if err != nil {
		t.Fatalf("CreateEffect: %v", err)
	}
	if err := u.SetEnabled(true); err == nil {
		t.Error("expected SetEnabled error")
	}
	u.Release()

	units := p.UnitsSnapshot()
	if len(units) != 1 || units[0].SessionID != 7 {
		t.Fatalf("units = %v", units)
	}
	if got := units[0].SetEnabledCalls(); len(got) != 1 || !got[0] {
		t.Errorf("SetEnabledCalls = %v, want [true]", got)
	}
	if units[0].Enabled() {
		t.Error("Enabled = true after failed SetEnabled")
	}
	if units[0].Releases() != 1 {
		t.Errorf("Releases = %d, want 1", units[0].Releases())
	}
}
