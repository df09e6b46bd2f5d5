// Package engine runs the real-time processing loop of earpiece.
//
// An [Engine] owns at most one session at a time. [Engine.Start] opens a
// capture and a render stream through the [audio.Platform], attaches
// feedback and noise mitigation, checks a frame out of the pool and spawns a
// single goroutine that repeats
//
//	read → gain → equalizer → mitigation → write
//
// until [Engine.Stop] is called or the device disappears. Parameters are read
// once per frame from a [params.Store] snapshot, so control goroutines never
// block the audio path.
//
// This package lives under internal/ because it encapsulates application-private
// processing logic and is not intended to be imported by external code.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/earpiece/internal/dsp"
	"github.com/MrWong99/earpiece/internal/mitigation"
	"github.com/MrWong99/earpiece/internal/observe"
	"github.com/MrWong99/earpiece/internal/params"
	"github.com/MrWong99/earpiece/internal/pool"
	"github.com/MrWong99/earpiece/internal/resilience"
	"github.com/MrWong99/earpiece/pkg/audio"
)

// DefaultPoolCapacity is the number of frames allocated by the frame pool.
const DefaultPoolCapacity = 2

// Config fixes the device and filter layout of an [Engine]. It does not
// change between sessions.
type Config struct {
	// Stream is the preferred stream configuration. Unset sample rate and
	// channel fields default to 44.1 kHz mono; a zero frame size asks the
	// platform for its minimum.
	Stream audio.StreamConfig

	// Equalizer holds the band corners. SampleRate is taken from the opened
	// stream; zero corners and Q default to [dsp.DefaultEqualizerConfig].
	Equalizer dsp.EqualizerConfig

	// SoftwareFallback enables software mitigation stages for effects the
	// platform cannot provide.
	SoftwareFallback bool

	// PoolCapacity is the number of frames in the frame pool.
	// Default: [DefaultPoolCapacity].
	PoolCapacity int

	// FallbackCooldown is how long a rejected preferred stream configuration
	// is skipped. Default: [DefaultFallbackCooldown].
	FallbackCooldown time.Duration
}

// SessionSummary is passed to the session end hook.
type SessionSummary struct {
	Stream    audio.StreamConfig
	StartedAt time.Time
	EndedAt   time.Time
	Frames    uint64
	Dropped   uint64

	// Err is nil for a requested stop and wraps [audio.ErrDeviceLost] when
	// the device went away.
	Err error
}

// Option configures an [Engine].
type Option func(*Engine)

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithSessionEndHook registers fn to be called from the processing goroutine
// after a session has fully stopped. The engine is Idle when fn runs, so fn
// may call Start.
func WithSessionEndHook(fn func(SessionSummary)) Option {
	return func(e *Engine) { e.onEnd = fn }
}

// Engine is the processing engine. All exported methods are safe for
// concurrent use.
type Engine struct {
	platform audio.Platform
	params   *params.Store
	cfg      Config
	metrics  *observe.Metrics
	onEnd    func(SessionSummary)

	candidates *resilience.FallbackGroup[audio.StreamConfig]

	// mu serialises Start and Stop.
	mu   sync.Mutex
	sess *session
	pool *pool.Pool

	state   atomic.Int32
	current atomic.Pointer[session]
	lastErr atomic.Pointer[errBox]
}

type errBox struct{ err error }

// session is the state of one Start/Stop cycle. Everything except stop,
// done and the stat counters is owned by the processing goroutine.
type session struct {
	streams   *streamPair
	candidate string
	mit       *mitigation.Controller
	eq        *dsp.Equalizer
	pool      *pool.Pool
	frame     *audio.Frame
	startedAt time.Time

	stop      atomic.Bool
	done      chan struct{}
	closeOnce sync.Once

	frames   atomic.Uint64
	dropped  atomic.Uint64
	clipped  atomic.Uint64
	inLevel  atomic.Uint64
	outLevel atomic.Uint64
	mitStat  atomic.Pointer[mitigation.Status]
}

// closeStreams unblocks in-flight I/O. Safe to call from any goroutine.
func (s *session) closeStreams() {
	s.closeOnce.Do(func() {
		if err := s.streams.close(); err != nil {
			slog.Debug("engine: close streams", "err", err)
		}
	})
}

// New creates an idle engine.
func New(platform audio.Platform, store *params.Store, cfg Config, opts ...Option) *Engine {
	if cfg.PoolCapacity <= 0 {
		cfg.PoolCapacity = DefaultPoolCapacity
	}
	def := dsp.DefaultEqualizerConfig(0)
	if cfg.Equalizer.LowCornerHz == 0 {
		cfg.Equalizer.LowCornerHz = def.LowCornerHz
	}
	if cfg.Equalizer.HighCornerHz == 0 {
		cfg.Equalizer.HighCornerHz = def.HighCornerHz
	}
	if cfg.Equalizer.ShelfQ == 0 {
		cfg.Equalizer.ShelfQ = def.ShelfQ
	}
	e := &Engine{
		platform:   platform,
		params:     store,
		cfg:        cfg,
		candidates: newStreamCandidates(cfg.Stream, cfg.FallbackCooldown),
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// State returns the current lifecycle state.
func (e *Engine) State() State { return State(e.state.Load()) }

// IsRunning reports whether a session is processing audio.
func (e *Engine) IsRunning() bool { return e.State() == StateRunning }

// Params returns the parameter store the engine reads from.
func (e *Engine) Params() *params.Store { return e.params }

// SetAmplification sets the gain factor, clamped to [0, 3].
func (e *Engine) SetAmplification(f float64) float64 { return e.params.SetAmplification(f) }

// SetBandGain sets a band gain in dB, clamped to [-10, 10].
func (e *Engine) SetBandGain(band audio.Band, dB float64) float64 {
	return e.params.SetBandGain(band, dB)
}

// SetMitigationEnabled switches feedback and noise mitigation.
func (e *Engine) SetMitigationEnabled(enabled bool) { e.params.SetMitigationEnabled(enabled) }

// Done returns a channel closed when the current session has fully stopped.
// When no session exists the returned channel is already closed.
func (e *Engine) Done() <-chan struct{} {
	if s := e.current.Load(); s != nil {
		return s.done
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// Start opens the audio streams and starts the processing goroutine. It
// returns [ErrAlreadyRunning] while a session is live and a [*StartupError]
// for any other failure, in which case nothing is left open.
func (e *Engine) Start(ctx context.Context) (err error) {
	ctx, span := observe.StartSpan(ctx, "engine.Start")
	defer func() { observe.EndSpan(span, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess != nil {
		// finish publishes Idle just before closing done.
		if e.State() == StateIdle {
			<-e.sess.done
		}
		select {
		case <-e.sess.done:
			e.sess = nil
		default:
			return ErrAlreadyRunning
		}
	}
	if !e.state.CompareAndSwap(int32(StateIdle), int32(StateStarting)) {
		return ErrAlreadyRunning
	}

	s, err := e.startSession(ctx, span)
	if err != nil {
		e.state.Store(int32(StateIdle))
		e.setLastError(err)
		e.metrics.RecordSessionStart(ctx, "failed")
		observe.Logger(ctx).Error("engine: start failed", "err", err)
		return err
	}

	e.sess = s
	e.current.Store(s)
	e.setLastError(nil)
	e.state.Store(int32(StateRunning))
	e.metrics.RecordSessionStart(ctx, "ok")
	e.metrics.ActiveSessions.Add(ctx, 1)

	go e.run(s)

	observe.Logger(ctx).Info("engine: started",
		"stream", s.streams.cfg.String(),
		"candidate", s.candidate,
		"mitigation", s.mit.Status().Effects,
	)
	return nil
}

// startSession performs the Starting stage. On error everything acquired so
// far is released in reverse order.
func (e *Engine) startSession(ctx context.Context, span trace.Span) (_ *session, err error) {
	var closers []func() error
	defer func() {
		if err == nil {
			return
		}
		for i := len(closers) - 1; i >= 0; i-- {
			if cerr := closers[i](); cerr != nil {
				observe.Logger(ctx).Debug("engine: cleanup after failed start", "err", cerr)
			}
		}
	}()

	streams, candidate, err := e.openStreams(ctx)
	if err != nil {
		return nil, &StartupError{Stage: "open streams", Err: err}
	}
	closers = append(closers, streams.close)
	cfg := streams.cfg
	span.SetAttributes(
		attribute.String("stream", cfg.String()),
		attribute.String("candidate", candidate),
	)

	if e.pool == nil || e.pool.FrameSize() != cfg.FrameSize {
		p, err := pool.New(cfg.FrameSize, e.cfg.PoolCapacity)
		if err != nil {
			return nil, &StartupError{Stage: "allocate frames", Err: err}
		}
		e.pool = p
	}
	frame, err := e.pool.Get()
	if err != nil {
		return nil, &StartupError{Stage: "allocate frames", Err: err}
	}
	p := e.pool
	closers = append(closers, func() error { p.Put(frame); return nil })

	eqCfg := e.cfg.Equalizer
	eqCfg.SampleRate = cfg.SampleRate
	eq, err := dsp.NewEqualizer(eqCfg)
	if err != nil {
		return nil, &StartupError{Stage: "configure equalizer", Err: err}
	}

	mit := mitigation.Open(e.platform, streams.capture.SessionID(), mitigation.Config{
		SampleRate:       cfg.SampleRate,
		FrameSize:        cfg.FrameSize,
		SoftwareFallback: e.cfg.SoftwareFallback,
	})
	closers = append(closers, mit.Release)

	snap := e.params.Snapshot()
	eq.SetGains(snap.BandGains)
	mit.SetEnabled(snap.MitigationEnabled)

	s := &session{
		streams:   streams,
		candidate: candidate,
		mit:       mit,
		eq:        eq,
		pool:      p,
		frame:     frame,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	st := mit.Status()
	s.mitStat.Store(&st)
	s.inLevel.Store(math.Float64bits(SilenceDBFS))
	s.outLevel.Store(math.Float64bits(SilenceDBFS))
	return s, nil
}

// Stop ends the running session and waits until its resources are
// released. It is a no-op when no session is running.
func (e *Engine) Stop() {
	_, span := observe.StartSpan(context.Background(), "engine.Stop")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.sess
	if s == nil {
		return
	}
	e.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
	s.stop.Store(true)
	s.closeStreams()
	<-s.done
	e.sess = nil
}

// finish is the Stopping stage, run by the processing goroutine on exit.
func (e *Engine) finish(s *session, cause error) {
	e.state.Store(int32(StateStopping))
	s.closeStreams()
	if err := s.mit.Release(); err != nil {
		slog.Warn("engine: release mitigation", "err", err)
	}
	s.pool.Put(s.frame)

	ctx := context.Background()
	e.metrics.ActiveSessions.Add(ctx, -1)

	summary := SessionSummary{
		Stream:    s.streams.cfg,
		StartedAt: s.startedAt,
		EndedAt:   time.Now(),
		Frames:    s.frames.Load(),
		Dropped:   s.dropped.Load(),
		Err:       cause,
	}
	if cause != nil {
		e.setLastError(cause)
		if errors.Is(cause, audio.ErrDeviceLost) {
			e.metrics.DeviceLosses.Add(ctx, 1)
		}
		slog.Error("engine: session ended", "err", cause, "frames", summary.Frames, "dropped", summary.Dropped)
	} else {
		slog.Info("engine: stopped", "frames", summary.Frames, "dropped", summary.Dropped,
			"uptime", summary.EndedAt.Sub(summary.StartedAt).Round(time.Millisecond))
	}

	e.state.Store(int32(StateIdle))
	close(s.done)

	if e.onEnd != nil {
		e.onEnd(summary)
	}
}

func (e *Engine) setLastError(err error) {
	if err == nil {
		e.lastErr.Store(nil)
		return
	}
	e.lastErr.Store(&errBox{err: err})
}

// LastError returns the error that ended the last session or failed the
// last start, or nil.
func (e *Engine) LastError() error {
	if b := e.lastErr.Load(); b != nil {
		return b.err
	}
	return nil
}

// deviceLost wraps err as a device loss unless it already is one.
func deviceLost(op string, err error) error {
	if errors.Is(err, audio.ErrDeviceLost) {
		return fmt.Errorf("engine: %s: %w", op, err)
	}
	return fmt.Errorf("engine: %s: %w: %w", op, audio.ErrDeviceLost, err)
}
