// Package app wires the earpiece subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the control API until the context is cancelled, and
// Shutdown tears everything down in order.
//
// For testing, inject an [audio.Platform] mock and isolated metrics via the
// functional options.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/earpiece/internal/config"
	"github.com/MrWong99/earpiece/internal/control"
	"github.com/MrWong99/earpiece/internal/dsp"
	"github.com/MrWong99/earpiece/internal/engine"
	"github.com/MrWong99/earpiece/internal/health"
	"github.com/MrWong99/earpiece/internal/observe"
	"github.com/MrWong99/earpiece/internal/params"
	"github.com/MrWong99/earpiece/internal/recovery"
	"github.com/MrWong99/earpiece/pkg/audio"
)

// DefaultListenAddr is used when server.listen_addr is empty.
const DefaultListenAddr = "localhost:8080"

// DefaultMetricsPath is used when telemetry.metrics_path is empty.
const DefaultMetricsPath = "/metrics"

// serverShutdownTimeout bounds the graceful HTTP shutdown in Run.
const serverShutdownTimeout = 5 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg      *config.Config
	platform audio.Platform

	metrics  *observe.Metrics
	gatherer prometheus.Gatherer
	level    *slog.LevelVar

	store     *params.Store
	engine    *engine.Engine
	restarter *recovery.Restarter
	handler   http.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithGatherer serves the metrics of g on the metrics path. Without it the
// metrics endpoint is not registered.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(a *App) { a.gatherer = g }
}

// WithLevelVar lets configuration reloads change the log level through lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App around platform. It builds the parameter store from the
// configured initial parameters, the engine, and the HTTP handler. Nothing is
// started.
func New(cfg *config.Config, platform audio.Platform, opts ...Option) (*App, error) {
	if platform == nil {
		return nil, errors.New("app: audio platform is required")
	}
	a := &App{
		cfg:      cfg,
		platform: platform,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Parameter store ───────────────────────────────────────────────
	a.store = params.New(cfg.Parameters.Snapshot(), params.WithUpdateHook(func(name string) {
		a.metrics.RecordParameterUpdate(context.Background(), name)
	}))

	// ── 2. Engine ────────────────────────────────────────────────────────
	eqCfg, err := equalizerConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("app: equalizer: %w", err)
	}
	a.engine = engine.New(platform, a.store, engine.Config{
		Stream:           cfg.Audio.StreamConfig(),
		Equalizer:        eqCfg,
		SoftwareFallback: cfg.Audio.SoftwareFallback,
		PoolCapacity:     cfg.Audio.PoolCapacity,
		FallbackCooldown: cfg.Audio.FallbackCooldown,
	},
		engine.WithMetrics(a.metrics),
		engine.WithSessionEndHook(a.onSessionEnd),
	)

	// ── 3. Device loss recovery ──────────────────────────────────────────
	if rc := cfg.Audio.Recovery; rc.Enabled {
		a.restarter = recovery.New(engineStarter{a.engine}, recovery.Config{
			MaxRetries: rc.MaxRetries,
			Backoff:    rc.Backoff,
			MaxBackoff: rc.MaxBackoff,
			IsFatal: func(err error) bool {
				return errors.Is(err, audio.ErrConfigUnsupported)
			},
		})
		a.closers = append(a.closers, func() error {
			a.restarter.Stop()
			return nil
		})
	}
	a.closers = append(a.closers, func() error {
		a.engine.Stop()
		return nil
	})

	// ── 4. HTTP surface ──────────────────────────────────────────────────
	a.handler = a.buildHandler()

	return a, nil
}

// engineStarter adapts the engine to [recovery.Starter]. A session started
// by someone else in the meantime ends the recovery cycle.
type engineStarter struct{ e *engine.Engine }

func (s engineStarter) Start(ctx context.Context) error {
	err := s.e.Start(ctx)
	if errors.Is(err, engine.ErrAlreadyRunning) {
		return recovery.ErrSkip
	}
	return err
}

// equalizerConfig fills the configured corners over the defaults and
// validates them against the preferred sample rate.
func equalizerConfig(cfg *config.Config) (dsp.EqualizerConfig, error) {
	eq := dsp.DefaultEqualizerConfig(cfg.Audio.StreamConfig().SampleRate)
	if v := cfg.Equalizer.LowCornerHz; v > 0 {
		eq.LowCornerHz = v
	}
	if v := cfg.Equalizer.HighCornerHz; v > 0 {
		eq.HighCornerHz = v
	}
	if v := cfg.Equalizer.ShelfQ; v > 0 {
		eq.ShelfQ = v
	}
	return eq, eq.Validate()
}

func (a *App) buildHandler() http.Handler {
	mux := http.NewServeMux()

	health.New(
		health.PlatformChecker(a.platform),
		health.SessionChecker(a.engine.LastError),
	).Register(mux)

	control.New(a.engine).Register(mux)

	path := a.cfg.Telemetry.MetricsPath
	if path == "" {
		path = DefaultMetricsPath
	}
	if a.gatherer != nil && path != "-" {
		control.RegisterMetrics(mux, path, a.gatherer)
	}

	return observe.Middleware(a.metrics)(mux)
}

// Engine returns the processing engine.
func (a *App) Engine() *engine.Engine { return a.engine }

// Handler returns the HTTP handler serving health, control and metrics.
func (a *App) Handler() http.Handler { return a.handler }

// ─── Config reload ───────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable differences between old and new:
// processing parameters go to the store, the log level to the level var.
// It has the signature of a [config.Watcher] callback.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.ParamsChanged {
		snap := a.store.Apply(d.NewParams.Snapshot())
		slog.Info("parameters reloaded",
			"amplification", snap.Amplification,
			"band_gains", snap.BandGains,
			"mitigation", snap.MitigationEnabled,
		)
	}
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
}

// SlogLevel maps a configured log level to a slog level. Empty and unknown
// values map to Info.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the HTTP API until ctx is cancelled. With server.auto_start the
// engine is started first; a startup failure is logged and left for the
// control API to retry.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.Server.AutoStart {
		if err := a.engine.Start(ctx); err != nil {
			slog.Error("auto start failed", "err", err)
		}
	}

	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = DefaultListenAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	if a.restarter != nil {
		g.Go(func() error {
			a.restarter.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		slog.Info("control server listening", "addr", addr, "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve %s: %w", addr, err)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), serverShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// onSessionEnd hands device losses to the restarter.
func (a *App) onSessionEnd(s engine.SessionSummary) {
	if !errors.Is(s.Err, audio.ErrDeviceLost) {
		return
	}
	if a.restarter == nil {
		slog.Warn("audio device lost; start again once a device is available",
			"stream", s.Stream.String(),
			"frames", s.Frames,
		)
		return
	}
	a.restarter.NotifyLost()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
