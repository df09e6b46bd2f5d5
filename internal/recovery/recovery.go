// Package recovery restarts audio processing after the device went away.
//
// A [Restarter] waits for [Restarter.NotifyLost] and then calls Start on its
// target with exponential backoff until a session comes up, the retry budget
// is spent, or the Restarter is stopped. It never restarts a session that was
// stopped on request.
package recovery

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Default restart parameters.
const (
	DefaultMaxRetries = 10
	DefaultBackoff    = 1 * time.Second
	DefaultMaxBackoff = 30 * time.Second
)

// Starter is the engine operation the Restarter drives.
type Starter interface {
	Start(ctx context.Context) error
}

// Config configures a [Restarter].
type Config struct {
	// MaxRetries is the number of Start attempts per loss before giving up.
	// Defaults to [DefaultMaxRetries] if zero.
	MaxRetries int

	// Backoff is the wait before the first attempt. It doubles each attempt
	// up to MaxBackoff. Defaults to [DefaultBackoff] if zero.
	Backoff time.Duration

	// MaxBackoff is the upper limit on the wait. Defaults to
	// [DefaultMaxBackoff] if zero.
	MaxBackoff time.Duration

	// IsFatal, when set, ends a recovery cycle early for errors that a retry
	// cannot fix. A nil IsFatal retries every error.
	IsFatal func(error) bool

	// OnRecovered is called after a successful restart with the attempt
	// number. May be nil.
	OnRecovered func(attempt int)
}

// Restarter restarts a [Starter] after device loss. All methods are safe for
// concurrent use.
type Restarter struct {
	target      Starter
	maxRetries  int
	backoff     time.Duration
	maxBackoff  time.Duration
	isFatal     func(error) bool
	onRecovered func(int)

	lost     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	attempts atomic.Int64
	cycles   atomic.Int64
}

// New creates a Restarter for target. Call [Restarter.Run] to start it.
func New(target Starter, cfg Config) *Restarter {
	r := &Restarter{
		target:      target,
		maxRetries:  cfg.MaxRetries,
		backoff:     cfg.Backoff,
		maxBackoff:  cfg.MaxBackoff,
		isFatal:     cfg.IsFatal,
		onRecovered: cfg.OnRecovered,
		lost:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	if r.maxRetries <= 0 {
		r.maxRetries = DefaultMaxRetries
	}
	if r.backoff <= 0 {
		r.backoff = DefaultBackoff
	}
	if r.maxBackoff <= 0 {
		r.maxBackoff = DefaultMaxBackoff
	}
	if r.maxBackoff < r.backoff {
		r.maxBackoff = r.backoff
	}
	return r
}

// NotifyLost signals that the device was lost and a restart should be
// attempted. Safe to call from the engine's session end hook; it never
// blocks, and notifications during a running cycle are coalesced.
func (r *Restarter) NotifyLost() {
	select {
	case r.lost <- struct{}{}:
	default:
	}
}

// Run handles loss notifications until ctx is done or Stop is called.
func (r *Restarter) Run(ctx context.Context) {
	if !r.running.CompareAndSwap(false, true) {
		return
	}
	defer r.running.Store(false)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-r.lost:
			r.cycles.Add(1)
			r.recover(ctx)
		}
	}
}

// Stop ends Run and any cycle in progress. Idempotent.
func (r *Restarter) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
}

// Attempts returns the total number of Start calls made.
func (r *Restarter) Attempts() int64 { return r.attempts.Load() }

// Cycles returns the number of loss notifications handled.
func (r *Restarter) Cycles() int64 { return r.cycles.Load() }

// recover tries to start the target with exponential backoff.
func (r *Restarter) recover(ctx context.Context) {
	wait := r.backoff

	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-time.After(wait):
		}

		slog.Info("recovery: restarting audio",
			"attempt", attempt,
			"max_retries", r.maxRetries,
			"backoff", wait,
		)

		r.attempts.Add(1)
		err := r.target.Start(ctx)
		if err == nil {
			slog.Info("recovery: audio restarted", "attempt", attempt)
			if r.onRecovered != nil {
				r.onRecovered(attempt)
			}
			return
		}
		if errors.Is(err, ErrSkip) {
			return
		}
		if r.isFatal != nil && r.isFatal(err) {
			slog.Error("recovery: giving up", "attempt", attempt, "err", err)
			return
		}

		slog.Warn("recovery: restart attempt failed", "attempt", attempt, "err", err)

		wait *= 2
		if wait > r.maxBackoff {
			wait = r.maxBackoff
		}
	}

	slog.Error("recovery: restart failed after max retries", "max_retries", r.maxRetries)
}

// ErrSkip may be returned by a [Starter] to end a cycle without counting it
// as a failure, e.g. when a session is already running.
var ErrSkip = errors.New("recovery: nothing to restart")
