// Package mock provides in-memory mock implementations of the [audio.Platform],
// [audio.CaptureStream], [audio.RenderStream] and [audio.EffectUnit]
// interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values and inject faults.
//
// Typical usage:
//
//	platform := &mock.Platform{
//	    FrameSize: 256,
//	    Source:    mock.Sine(4000, 8000, 44100),
//	    Effects:   map[audio.EffectKind]bool{audio.EffectEchoCanceler: true},
//	}
//	cs, err := platform.OpenCapture(ctx, cfg)
//	...
//	platform.LastCapture().Disconnect() // simulate unplugging the microphone
package mock

import (
	"context"
	"io"
	"math"
	"sync"
	"time"

	"github.com/MrWong99/earpiece/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Platform      = (*Platform)(nil)
	_ audio.CaptureStream = (*CaptureStream)(nil)
	_ audio.RenderStream  = (*RenderStream)(nil)
	_ audio.EffectUnit    = (*EffectUnit)(nil)
)

// Source fills buf with samples starting at absolute sample index offset.
type Source func(buf []int16, offset int)

// Sine returns a [Source] producing a sine tone of freq Hz with peak
// amplitude amp at the given sample rate.
func Sine(freq, amp float64, sampleRate int) Source {
	return func(buf []int16, offset int) {
		for i := range buf {
			t := float64(offset+i) / float64(sampleRate)
			buf[i] = audio.Saturate(amp * math.Sin(2*math.Pi*freq*t))
		}
	}
}

// Ramp returns a [Source] producing a deterministic sawtooth covering most of
// the int16 range. Useful for bit-exact pass-through checks.
func Ramp() Source {
	return func(buf []int16, offset int) {
		for i := range buf {
			buf[i] = int16((offset+i)*37%60000 - 30000)
		}
	}
}

// ─── Platform ─────────────────────────────────────────────────────────────────

// Platform is a mock implementation of [audio.Platform].
// Set the exported fields before use; inspect the recorded calls after.
type Platform struct {
	mu sync.Mutex

	// FrameSize is returned by MinFrameSize. Defaults to 256 when zero.
	FrameSize int

	// MinFrameSizeError is returned by MinFrameSize.
	MinFrameSizeError error

	// CaptureError is returned by OpenCapture (e.g. a wrapped
	// [audio.ErrDeviceUnavailable] to simulate denied permission).
	CaptureError error

	// RenderError is returned by OpenRender.
	RenderError error

	// RejectConfig, when set, is consulted by OpenCapture and OpenRender. A
	// non-nil return is used as the open error for that configuration.
	RejectConfig func(audio.StreamConfig) error

	// Source generates capture data. Silence when nil.
	Source Source

	// Pace delays every capture Read, emulating a real device clock.
	Pace time.Duration

	// Effects lists the effect kinds reported as available by QueryEffect.
	Effects map[audio.EffectKind]bool

	// EffectCreateError is returned by CreateEffect.
	EffectCreateError error

	// EffectEnableError is returned by SetEnabled on every created unit.
	EffectEnableError error

	// OpenCaptureCalls records the config of every OpenCapture call.
	OpenCaptureCalls []audio.StreamConfig

	// OpenRenderCalls records the config of every OpenRender call.
	OpenRenderCalls []audio.StreamConfig

	// QueryEffectCalls records every QueryEffect call.
	QueryEffectCalls []audio.EffectKind

	// Captures holds every capture stream handed out, in order.
	Captures []*CaptureStream

	// Renders holds every render stream handed out, in order.
	Renders []*RenderStream

	// Units holds every effect unit handed out, in order.
	Units []*EffectUnit
}

// OpenCapture implements [audio.Platform].
func (p *Platform) OpenCapture(_ context.Context, cfg audio.StreamConfig) (audio.CaptureStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.OpenCaptureCalls = append(p.OpenCaptureCalls, cfg)
	if p.CaptureError != nil {
		return nil, p.CaptureError
	}
	if p.RejectConfig != nil {
		if err := p.RejectConfig(cfg); err != nil {
			return nil, err
		}
	}
	cs := &CaptureStream{
		source:  p.Source,
		pace:    p.Pace,
		session: len(p.Captures) + 1,
		done:    make(chan struct{}),
		lost:    make(chan struct{}),
	}
	p.Captures = append(p.Captures, cs)
	return cs, nil
}

// OpenRender implements [audio.Platform].
func (p *Platform) OpenRender(_ context.Context, cfg audio.StreamConfig) (audio.RenderStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.OpenRenderCalls = append(p.OpenRenderCalls, cfg)
	if p.RenderError != nil {
		return nil, p.RenderError
	}
	if p.RejectConfig != nil {
		if err := p.RejectConfig(cfg); err != nil {
			return nil, err
		}
	}
	rs := &RenderStream{MaxKept: defaultMaxKept}
	p.Renders = append(p.Renders, rs)
	return rs, nil
}

// MinFrameSize implements [audio.Platform].
func (p *Platform) MinFrameSize(audio.StreamConfig) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.MinFrameSizeError != nil {
		return 0, p.MinFrameSizeError
	}
	if p.FrameSize <= 0 {
		return 256, nil
	}
	return p.FrameSize, nil
}

// QueryEffect implements [audio.Platform]. Returns Effects[kind].
func (p *Platform) QueryEffect(kind audio.EffectKind) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.QueryEffectCalls = append(p.QueryEffectCalls, kind)
	return p.Effects[kind]
}

// CreateEffect implements [audio.Platform].
func (p *Platform) CreateEffect(kind audio.EffectKind, sessionID int) (audio.EffectUnit, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.EffectCreateError != nil {
		return nil, p.EffectCreateError
	}
	u := &EffectUnit{kind: kind, SessionID: sessionID, EnableError: p.EffectEnableError}
	p.Units = append(p.Units, u)
	return u, nil
}

// LastCapture returns the most recently opened capture stream, or nil.
func (p *Platform) LastCapture() *CaptureStream {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Captures) == 0 {
		return nil
	}
	return p.Captures[len(p.Captures)-1]
}

// LastRender returns the most recently opened render stream, or nil.
func (p *Platform) LastRender() *RenderStream {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Renders) == 0 {
		return nil
	}
	return p.Renders[len(p.Renders)-1]
}

// OpenCaptureCount returns the number of OpenCapture calls so far.
func (p *Platform) OpenCaptureCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.OpenCaptureCalls)
}

// UnitsSnapshot returns a copy of the effect units handed out so far.
func (p *Platform) UnitsSnapshot() []*EffectUnit {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*EffectUnit, len(p.Units))
	copy(out, p.Units)
	return out
}

// ─── CaptureStream ────────────────────────────────────────────────────────────

// fault is a queued read or write outcome.
type fault struct {
	n   int
	err error
}

// CaptureStream is a mock implementation of [audio.CaptureStream].
type CaptureStream struct {
	source  Source
	pace    time.Duration
	session int

	mu     sync.Mutex
	offset int
	reads  int
	faults []fault
	closes int

	done      chan struct{}
	closeOnce sync.Once
	lost      chan struct{}
	lostOnce  sync.Once
}

// Read implements [audio.CaptureStream].
func (c *CaptureStream) Read(buf []int16) (int, error) {
	if c.pace > 0 {
		timer := time.NewTimer(c.pace)
		select {
		case <-c.done:
		case <-c.lost:
		case <-timer.C:
		}
		timer.Stop()
	}

	select {
	case <-c.done:
		return 0, io.EOF
	default:
	}
	select {
	case <-c.lost:
		return 0, audio.ErrDeviceLost
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	if len(c.faults) > 0 {
		f := c.faults[0]
		c.faults = c.faults[1:]
		n := min(f.n, len(buf))
		if c.source != nil && n > 0 {
			c.source(buf[:n], c.offset)
		}
		c.offset += n
		return n, f.err
	}
	if c.source != nil {
		c.source(buf, c.offset)
	} else {
		clear(buf)
	}
	c.offset += len(buf)
	return len(buf), nil
}

// SessionID implements [audio.CaptureStream].
func (c *CaptureStream) SessionID() int { return c.session }

// Close implements [audio.CaptureStream]. Unblocks a paced Read.
func (c *CaptureStream) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// InjectError makes the next Read return err after delivering n samples.
func (c *CaptureStream) InjectError(n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults = append(c.faults, fault{n: n, err: err})
}

// Disconnect makes every subsequent Read fail with [audio.ErrDeviceLost],
// including one currently waiting on the pace timer.
func (c *CaptureStream) Disconnect() {
	c.lostOnce.Do(func() { close(c.lost) })
}

// Reads returns the number of completed Read calls.
func (c *CaptureStream) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

// Closes returns the number of Close calls.
func (c *CaptureStream) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// Closed reports whether Close has been called.
func (c *CaptureStream) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// ─── RenderStream ─────────────────────────────────────────────────────────────

// defaultMaxKept bounds the number of frames a RenderStream retains.
const defaultMaxKept = 1024

// RenderStream is a mock implementation of [audio.RenderStream]. It keeps a
// copy of the first MaxKept frames written and counts all of them.
type RenderStream struct {
	// MaxKept is the number of frames retained for inspection.
	MaxKept int

	mu      sync.Mutex
	frames  [][]int16
	count   int
	faults  []fault
	closed  bool
	closes  int
	written chan struct{}
}

// Write implements [audio.RenderStream].
func (r *RenderStream) Write(buf []int16) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, io.ErrClosedPipe
	}
	if len(r.faults) > 0 {
		f := r.faults[0]
		r.faults = r.faults[1:]
		return min(f.n, len(buf)), f.err
	}
	if len(r.frames) < r.MaxKept {
		r.frames = append(r.frames, append([]int16(nil), buf...))
	}
	r.count++
	if r.written != nil {
		select {
		case r.written <- struct{}{}:
		default:
		}
	}
	return len(buf), nil
}

// Close implements [audio.RenderStream].
func (r *RenderStream) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.closes++
	return nil
}

// InjectError makes the next Write return err after accepting n samples.
func (r *RenderStream) InjectError(n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faults = append(r.faults, fault{n: n, err: err})
}

// Count returns the number of successfully written frames.
func (r *RenderStream) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Frames returns copies of the retained frames.
func (r *RenderStream) Frames() [][]int16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]int16, len(r.frames))
	for i, f := range r.frames {
		out[i] = append([]int16(nil), f...)
	}
	return out
}

// Closed reports whether Close has been called.
func (r *RenderStream) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// WaitFrames blocks until at least n frames were written or ctx is done.
func (r *RenderStream) WaitFrames(ctx context.Context, n int) error {
	r.mu.Lock()
	if r.written == nil {
		r.written = make(chan struct{}, 1)
	}
	ch := r.written
	r.mu.Unlock()
	for {
		if r.Count() >= n {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// ─── EffectUnit ───────────────────────────────────────────────────────────────

// EffectUnit is a mock implementation of [audio.EffectUnit].
type EffectUnit struct {
	kind audio.EffectKind

	// SessionID is the capture session the unit was created for.
	SessionID int

	// EnableError is returned by SetEnabled.
	EnableError error

	mu             sync.Mutex
	enabled        bool
	setEnabledArgs []bool
	releases       int
}

// Kind implements [audio.EffectUnit].
func (u *EffectUnit) Kind() audio.EffectKind { return u.kind }

// SetEnabled implements [audio.EffectUnit].
func (u *EffectUnit) SetEnabled(enabled bool) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.setEnabledArgs = append(u.setEnabledArgs, enabled)
	if u.EnableError != nil {
		return u.EnableError
	}
	u.enabled = enabled
	return nil
}

// Release implements [audio.EffectUnit].
func (u *EffectUnit) Release() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.releases++
	return nil
}

// Enabled reports the last successfully applied state.
func (u *EffectUnit) Enabled() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.enabled
}

// SetEnabledCalls returns the arguments of every SetEnabled call.
func (u *EffectUnit) SetEnabledCalls() []bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]bool(nil), u.setEnabledArgs...)
}

// Releases returns the number of Release calls.
func (u *EffectUnit) Releases() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.releases
}
