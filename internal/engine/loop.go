package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/MrWong99/earpiece/internal/dsp"
	"github.com/MrWong99/earpiece/internal/observe"
	"github.com/MrWong99/earpiece/pkg/audio"
)

const (
	// dropLogEvery limits warnings for skipped frames to one per this many drops.
	dropLogEvery = 100

	// SilenceDBFS is the level reported for digital silence.
	SilenceDBFS = -120.0
)

// level returns the RMS level of samples in dBFS, floored at [SilenceDBFS].
func level(samples []int16) float64 {
	return max(audio.DBFS(audio.RMS(samples)), SilenceDBFS)
}

// run is the processing goroutine of s.
func (e *Engine) run(s *session) {
	var cause error
	defer func() { e.finish(s, cause) }()

	ctx := context.Background()
	var (
		f       = s.frame
		version = ^uint64(0)
		amp     float64
	)

	for {
		if s.stop.Load() {
			return
		}

		n, err := s.streams.capture.Read(f.Samples)
		if s.stop.Load() {
			return
		}
		switch {
		case err != nil && !errors.Is(err, io.EOF):
			if audio.IsTransient(err) {
				e.drop(ctx, s, observe.DropReadError, err)
				continue
			}
			cause = deviceLost("capture", err)
			return
		case n == 0:
			// A zero read without a stop request means the stream was closed
			// underneath us.
			cause = deviceLost("capture", io.ErrUnexpectedEOF)
			return
		case n < len(f.Samples):
			e.drop(ctx, s, observe.DropShortRead, nil)
			continue
		}

		start := time.Now()
		f.N = n
		samples := f.Valid()

		if snap := e.params.Snapshot(); snap.Version != version {
			version = snap.Version
			amp = snap.Amplification
			s.eq.SetGains(snap.BandGains)
			s.mit.SetEnabled(snap.MitigationEnabled)
			st := s.mit.Status()
			s.mitStat.Store(&st)
		}

		s.inLevel.Store(math.Float64bits(level(samples)))

		clippedGain := dsp.ApplyGain(samples, amp)
		clippedEQ := s.eq.Process(samples)
		s.mit.Process(samples)

		s.outLevel.Store(math.Float64bits(level(samples)))

		written, err := s.streams.render.Write(samples)
		if s.stop.Load() {
			return
		}
		if err != nil {
			if audio.IsTransient(err) {
				e.drop(ctx, s, observe.DropWriteError, err)
				continue
			}
			cause = deviceLost("render", err)
			return
		}
		if written < n {
			e.drop(ctx, s, observe.DropShortWrite, nil)
			continue
		}
		s.mit.FeedFarEnd(samples)

		s.frames.Add(1)
		if c := clippedGain + clippedEQ; c > 0 {
			s.clipped.Add(uint64(c))
			e.metrics.RecordClipped(ctx, "gain", clippedGain)
			e.metrics.RecordClipped(ctx, "equalizer", clippedEQ)
		}
		e.metrics.FramesProcessed.Add(ctx, 1)
		e.metrics.FrameDuration.Record(ctx, time.Since(start).Seconds())
		e.metrics.InputLevel.Record(ctx, math.Float64frombits(s.inLevel.Load()))
		e.metrics.OutputLevel.Record(ctx, math.Float64frombits(s.outLevel.Load()))
	}
}

// drop counts a skipped frame and logs it at a limited rate.
func (e *Engine) drop(ctx context.Context, s *session, reason string, err error) {
	n := s.dropped.Add(1)
	e.metrics.RecordFrameDropped(ctx, reason)
	if n%dropLogEvery == 1 {
		slog.Warn("engine: frame dropped", "reason", reason, "err", err, "dropped_total", n)
	} else {
		slog.Debug("engine: frame dropped", "reason", reason, "err", err)
	}
}
