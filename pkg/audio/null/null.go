// Package null provides an [audio.Platform] without hardware: capture streams
// deliver silence paced at the real frame rate and render streams discard
// their input. It lets the service run headless (CI, containers) with the
// full processing loop exercised.
package null

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/earpiece/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Platform = (*Platform)(nil)

// DefaultFrameSize is the frame size reported by [Platform.MinFrameSize]
// (about 23 ms at 44.1 kHz).
const DefaultFrameSize = 1024

// Platform is a hardware-free [audio.Platform]. The zero value is ready to use.
type Platform struct {
	nextSession atomic.Int64
}

// New returns a null platform.
func New() *Platform {
	return &Platform{}
}

// OpenCapture implements [audio.Platform].
func (p *Platform) OpenCapture(_ context.Context, cfg audio.StreamConfig) (audio.CaptureStream, error) {
	if cfg.SampleRate <= 0 || cfg.FrameSize <= 0 {
		return nil, fmt.Errorf("null: %s: %w", cfg, audio.ErrConfigUnsupported)
	}
	return &captureStream{
		period:  cfg.FramePeriod(),
		session: int(p.nextSession.Add(1)),
		done:    make(chan struct{}),
		next:    time.Now(),
	}, nil
}

// OpenRender implements [audio.Platform].
func (p *Platform) OpenRender(_ context.Context, cfg audio.StreamConfig) (audio.RenderStream, error) {
	if cfg.SampleRate <= 0 || cfg.FrameSize <= 0 {
		return nil, fmt.Errorf("null: %s: %w", cfg, audio.ErrConfigUnsupported)
	}
	return &renderStream{}, nil
}

// MinFrameSize implements [audio.Platform].
func (p *Platform) MinFrameSize(audio.StreamConfig) (int, error) {
	return DefaultFrameSize, nil
}

// QueryEffect implements [audio.Platform]. The null platform has no effects.
func (p *Platform) QueryEffect(audio.EffectKind) bool { return false }

// CreateEffect implements [audio.Platform].
func (p *Platform) CreateEffect(kind audio.EffectKind, _ int) (audio.EffectUnit, error) {
	return nil, fmt.Errorf("null: %s: %w", kind, audio.ErrEffectUnavailable)
}

type captureStream struct {
	period  time.Duration
	session int
	next    time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// Read waits until the next frame boundary and fills buf with silence.
func (c *captureStream) Read(buf []int16) (int, error) {
	c.next = c.next.Add(c.period)
	timer := time.NewTimer(time.Until(c.next))
	defer timer.Stop()
	select {
	case <-c.done:
		return 0, io.EOF
	case <-timer.C:
	}
	clear(buf)
	return len(buf), nil
}

func (c *captureStream) SessionID() int { return c.session }

func (c *captureStream) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

type renderStream struct {
	closed atomic.Bool
}

func (r *renderStream) Write(buf []int16) (int, error) {
	if r.closed.Load() {
		return 0, io.ErrClosedPipe
	}
	return len(buf), nil
}

func (r *renderStream) Close() error {
	r.closed.Store(true)
	return nil
}
