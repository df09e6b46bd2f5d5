// Command earpiece runs the hearing assistant: microphone audio is amplified,
// equalised and rendered to the headphones in real time, controlled over a
// local HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrWong99/earpiece/internal/app"
	"github.com/MrWong99/earpiece/internal/config"
	"github.com/MrWong99/earpiece/internal/observe"
	"github.com/MrWong99/earpiece/pkg/audio"
	"github.com/MrWong99/earpiece/pkg/audio/null"
	"github.com/MrWong99/earpiece/pkg/audio/portaudio"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "earpiece.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload parameters and log level when the config file changes")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "earpiece: config file %q not found; copy configs/earpiece.example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "earpiece: %v\n", err)
		}
		return 1
	}

	var level slog.LevelVar
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("earpiece starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ────────────────────────────────────────────────────────
	promReg := prometheus.NewRegistry()
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Registry:       promReg,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Audio platform ───────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinPlatforms(reg)

	platform, err := reg.CreateAudio(cfg.Audio)
	if err != nil {
		slog.Error("failed to create audio platform", "platform", cfg.Audio.Platform, "err", err)
		return 1
	}
	if c, ok := platform.(interface{ Close() error }); ok {
		defer func() {
			if err := c.Close(); err != nil {
				slog.Warn("audio platform close error", "err", err)
			}
		}()
	}

	printStartupSummary(cfg, platform)

	application, err := app.New(cfg, platform,
		app.WithGatherer(promReg),
		app.WithLevelVar(&level),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	if *watch {
		w, err := config.NewWatcher(*configPath, application.ApplyConfig)
		if err != nil {
			slog.Error("failed to watch config", "err", err)
			return 1
		}
		defer w.Stop()
	}

	slog.Info("server ready; press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Platforms ─────────────────────────────────────────────────────────────────

func registerBuiltinPlatforms(reg *config.Registry) {
	reg.RegisterAudio("portaudio", func(config.AudioConfig) (audio.Platform, error) {
		p, err := portaudio.New()
		if err != nil {
			return nil, err
		}
		return p, nil
	})
	reg.RegisterAudio("null", func(config.AudioConfig) (audio.Platform, error) {
		return null.New(), nil
	})
	slog.Debug("registered audio platforms", "names", reg.AudioNames())
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, p audio.Platform) {
	platform := cfg.Audio.Platform
	if platform == "" {
		platform = config.DefaultPlatform
	}
	stream := cfg.Audio.StreamConfig()
	frame := fmt.Sprint(stream.FrameSize)
	if stream.FrameSize == 0 {
		frame = "device minimum"
		if n, err := p.MinFrameSize(stream); err == nil {
			frame = fmt.Sprintf("%d (device min)", n)
		}
	}
	snap := cfg.Parameters.Snapshot()

	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        earpiece — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Platform", platform)
	printRow("Sample rate", fmt.Sprintf("%d Hz", stream.SampleRate))
	printRow("Frame size", frame)
	printRow("Device", orDefault(stream.Device, "(system default)"))
	printRow("Amplification", fmt.Sprintf("%.2fx", snap.Amplification))
	printRow("EQ low/mid/high", fmt.Sprintf("%+.0f/%+.0f/%+.0f dB", snap.BandGains[0], snap.BandGains[1], snap.BandGains[2]))
	printRow("Mitigation", onOff(snap.MitigationEnabled))
	printRow("Software AEC", onOff(cfg.Audio.SoftwareFallback))
	printRow("Auto recovery", onOff(cfg.Audio.Recovery.Enabled))
	printRow("Listen addr", orDefault(cfg.Server.ListenAddr, app.DefaultListenAddr))
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-15s : %-19s ║\n", label, value)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
