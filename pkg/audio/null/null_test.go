package null_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/MrWong99/earpiece/pkg/audio"
	"github.com/MrWong99/earpiece/pkg/audio/null"
)

func TestCapture_PacesAndFillsSilence(t *testing.T) {
	t.Parallel()
	p := null.New()
	cfg := audio.StreamConfig{SampleRate: 44100, FrameSize: 441}
	cs, err := p.OpenCapture(context.Background(), cfg)
	if err != nil {
		t.Fatalf("OpenCapture: %v", err)
	}
	defer cs.Close()

	buf := []int16{1, 2, 3}
	start := time.Now()
	for range 3 {
		n, err := cs.Read(buf)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if n != len(buf) {
			t.Fatalf("Read n = %d, want %d", n, len(buf))
		}
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Errorf("three 10ms frames returned after %v, want pacing", elapsed)
	}
	for i, s := range buf {
		if s != 0 {
			t.Errorf("sample %d = %d, want silence", i, s)
		}
	}
}

func TestCapture_CloseUnblocksRead(t *testing.T) {
	t.Parallel()
	p := null.New()
	cs, err := p.OpenCapture(context.Background(), audio.StreamConfig{SampleRate: 10, FrameSize: 100})
	if err != nil {
		t.Fatalf("OpenCapture: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := cs.Read(make([]int16, 100))
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	_ = cs.Close()
	_ = cs.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, io.EOF) {
			t.Errorf("Read after Close: got %v, want io.EOF", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Read did not return after Close")
	}
}

func TestRender_ClosedRejectsWrites(t *testing.T) {
	t.Parallel()
	p := null.New()
	rs, err := p.OpenRender(context.Background(), audio.StreamConfig{SampleRate: 44100, FrameSize: 64})
	if err != nil {
		t.Fatalf("OpenRender: %v", err)
	}
	if n, err := rs.Write(make([]int16, 64)); err != nil || n != 64 {
		t.Fatalf("Write = (%d, %v), want (64, nil)", n, err)
	}
	_ = rs.Close()
	if _, err := rs.Write(make([]int16, 64)); err == nil {
		t.Error("Write after Close: expected error")
	}
}

func TestOpen_RejectsEmptyConfig(t *testing.T) {
	t.Parallel()
	p := null.New()
	if _, err := p.OpenCapture(context.Background(), audio.StreamConfig{}); !errors.Is(err, audio.ErrConfigUnsupported) {
		t.Errorf("OpenCapture: got %v, want ErrConfigUnsupported", err)
	}
	if p.QueryEffect(audio.EffectEchoCanceler) {
		t.Error("QueryEffect: null platform should report no effects")
	}
}
