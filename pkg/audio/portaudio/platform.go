// Package portaudio adapts the PortAudio host API to the [audio.Platform]
// interface using PortAudio's blocking read/write streams.
//
// The PortAudio shared library (libportaudio) must be available at link time
// via pkg-config. PortAudio does not expose acoustic effect units, so
// [Platform.QueryEffect] always reports false and the engine falls back to
// software mitigation.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/earpiece/pkg/audio"
	pa "github.com/gordonklaus/portaudio"
)

// Compile-time interface assertion.
var _ audio.Platform = (*Platform)(nil)

// minFrameSize is the lower bound reported by MinFrameSize. Host APIs often
// report latencies that would translate to tiny buffers which glitch under load.
const minFrameSize = 256

// Platform is an [audio.Platform] backed by PortAudio. Create one with [New]
// and release it with [Platform.Close].
//
// Platform is safe for concurrent use.
type Platform struct {
	closeOnce sync.Once

	// nextSession hands out capture session IDs.
	nextSession atomic.Int64
}

// New initialises PortAudio and returns a ready Platform.
func New() (*Platform, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	slog.Debug("portaudio initialised")
	return &Platform{}, nil
}

// Close terminates PortAudio. Streams must be closed before calling Close.
// Safe to call more than once.
func (p *Platform) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = pa.Terminate()
	})
	return err
}

// OpenCapture implements [audio.Platform].
func (p *Platform) OpenCapture(_ context.Context, cfg audio.StreamConfig) (audio.CaptureStream, error) {
	if err := checkConfig(cfg); err != nil {
		return nil, err
	}
	dev, err := findDevice(cfg.Device, true)
	if err != nil {
		return nil, err
	}

	buf := make([]int16, cfg.FrameSize)
	params := pa.StreamParameters{
		Input: pa.StreamDeviceParameters{
			Device:   dev,
			Channels: cfg.Channels.Channels(),
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: cfg.FrameSize,
	}
	stream, err := pa.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open capture on %q: %w", dev.Name, classifyOpen(err))
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("portaudio: start capture on %q: %w", dev.Name, classifyOpen(err))
	}

	slog.Info("portaudio capture opened", "device", dev.Name, "config", cfg.String())
	return &captureStream{
		paStream: paStream{stream: stream, buf: buf},
		session:  int(p.nextSession.Add(1)),
	}, nil
}

// OpenRender implements [audio.Platform].
func (p *Platform) OpenRender(_ context.Context, cfg audio.StreamConfig) (audio.RenderStream, error) {
	if err := checkConfig(cfg); err != nil {
		return nil, err
	}
	dev, err := findDevice(cfg.Device, false)
	if err != nil {
		return nil, err
	}

	buf := make([]int16, cfg.FrameSize)
	params := pa.StreamParameters{
		Output: pa.StreamDeviceParameters{
			Device:   dev,
			Channels: cfg.Channels.Channels(),
			Latency:  dev.DefaultLowOutputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: cfg.FrameSize,
	}
	stream, err := pa.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open render on %q: %w", dev.Name, classifyOpen(err))
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("portaudio: start render on %q: %w", dev.Name, classifyOpen(err))
	}

	slog.Info("portaudio render opened", "device", dev.Name, "config", cfg.String())
	return &renderStream{paStream: paStream{stream: stream, buf: buf}}, nil
}

// MinFrameSize implements [audio.Platform]. The size is derived from the
// input device's low-latency hint, rounded up to a power of two.
func (p *Platform) MinFrameSize(cfg audio.StreamConfig) (int, error) {
	if cfg.SampleRate <= 0 {
		return 0, fmt.Errorf("portaudio: sample rate %d: %w", cfg.SampleRate, audio.ErrConfigUnsupported)
	}
	dev, err := findDevice(cfg.Device, true)
	if err != nil {
		return 0, err
	}
	frames := int(math.Ceil(dev.DefaultLowInputLatency.Seconds() * float64(cfg.SampleRate)))
	size := minFrameSize
	for size < frames {
		size <<= 1
	}
	return size, nil
}

// QueryEffect implements [audio.Platform]. PortAudio has no effect units.
func (p *Platform) QueryEffect(audio.EffectKind) bool {
	return false
}

// CreateEffect implements [audio.Platform]. Always fails with
// [audio.ErrEffectUnavailable].
func (p *Platform) CreateEffect(kind audio.EffectKind, _ int) (audio.EffectUnit, error) {
	return nil, fmt.Errorf("portaudio: %s: %w", kind, audio.ErrEffectUnavailable)
}

// checkConfig rejects configurations the pipeline never issues but a caller
// could still construct.
func checkConfig(cfg audio.StreamConfig) error {
	if cfg.Format != audio.FormatPCM16 {
		return fmt.Errorf("portaudio: format %s: %w", cfg.Format, audio.ErrConfigUnsupported)
	}
	if cfg.Channels != audio.ChannelMono {
		return fmt.Errorf("portaudio: %d channels: %w", cfg.Channels.Channels(), audio.ErrConfigUnsupported)
	}
	if cfg.FrameSize <= 0 || cfg.SampleRate <= 0 {
		return fmt.Errorf("portaudio: frame size %d at %d Hz: %w", cfg.FrameSize, cfg.SampleRate, audio.ErrConfigUnsupported)
	}
	return nil
}

// findDevice returns the device named name, or the system default input or
// output device when name is empty.
func findDevice(name string, input bool) (*pa.DeviceInfo, error) {
	if name == "" {
		var (
			dev *pa.DeviceInfo
			err error
		)
		if input {
			dev, err = pa.DefaultInputDevice()
		} else {
			dev, err = pa.DefaultOutputDevice()
		}
		if err != nil || dev == nil {
			return nil, fmt.Errorf("portaudio: no default device (input=%t): %w", input, audio.ErrDeviceUnavailable)
		}
		return dev, nil
	}

	devices, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", errors.Join(audio.ErrDeviceUnavailable, err))
	}
	for _, dev := range devices {
		if dev.Name != name {
			continue
		}
		if input && dev.MaxInputChannels > 0 || !input && dev.MaxOutputChannels > 0 {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("portaudio: device %q not found (input=%t): %w", name, input, audio.ErrDeviceUnavailable)
}

// classifyOpen maps PortAudio open/start errors onto the audio error taxonomy.
func classifyOpen(err error) error {
	var paErr pa.Error
	if errors.As(err, &paErr) {
		switch paErr {
		case pa.InvalidSampleRate, pa.SampleFormatNotSupported, pa.InvalidChannelCount:
			return errors.Join(audio.ErrConfigUnsupported, err)
		case pa.DeviceUnavailable, pa.InvalidDevice:
			return errors.Join(audio.ErrDeviceUnavailable, err)
		}
	}
	return errors.Join(audio.ErrDeviceUnavailable, err)
}

// classifyIO maps PortAudio read/write errors onto the audio error taxonomy.
// Overflow and underflow are recoverable; anything else means the device is gone.
func classifyIO(err error) error {
	var paErr pa.Error
	if errors.As(err, &paErr) {
		switch paErr {
		case pa.InputOverflowed, pa.OutputUnderflowed:
			return errors.Join(audio.ErrTransientIO, err)
		}
	}
	return errors.Join(audio.ErrDeviceLost, err)
}
