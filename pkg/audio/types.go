package audio

import (
	"fmt"
	"time"
)

// DefaultSampleRate is the capture and render rate used when no other rate is
// configured. 44.1 kHz is supported by virtually every consumer audio device.
const DefaultSampleRate = 44100

// ChannelMask selects the channel layout of a stream. Only mono is supported
// by the processing pipeline; the type exists so that platform adapters can
// reject anything else with [ErrConfigUnsupported].
type ChannelMask int

const (
	// ChannelMono is a single-channel stream.
	ChannelMono ChannelMask = 1

	// ChannelStereo is an interleaved two-channel stream.
	ChannelStereo ChannelMask = 2
)

// Channels returns the number of interleaved channels described by m.
func (m ChannelMask) Channels() int {
	return int(m)
}

// SampleFormat is the on-device encoding of a single sample.
type SampleFormat int

const (
	// FormatPCM16 is signed 16-bit little-endian linear PCM.
	FormatPCM16 SampleFormat = iota

	// FormatFloat32 is 32-bit IEEE float PCM in [-1, 1].
	FormatFloat32
)

// String returns the human-readable name of the sample format.
func (f SampleFormat) String() string {
	switch f {
	case FormatPCM16:
		return "pcm16"
	case FormatFloat32:
		return "float32"
	default:
		return "unknown"
	}
}

// StreamConfig describes the stream a [Platform] is asked to open.
type StreamConfig struct {
	// SampleRate in Hz (e.g. 44100).
	SampleRate int

	// Channels is the channel layout. The pipeline always requests mono.
	Channels ChannelMask

	// Format is the sample encoding. The pipeline always requests PCM16.
	Format SampleFormat

	// FrameSize is the number of samples per read/write. Zero asks the
	// platform for its minimum buffer size via [Platform.MinFrameSize].
	FrameSize int

	// Device is the preferred device name. Empty selects the system default.
	Device string
}

// DefaultStreamConfig returns the configuration used when a preferred
// configuration is rejected: mono PCM16 at [DefaultSampleRate] on the system
// default device.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		SampleRate: DefaultSampleRate,
		Channels:   ChannelMono,
		Format:     FormatPCM16,
	}
}

// FramePeriod returns the wall-clock duration of one frame of cfg.
// Returns zero when the sample rate or frame size is unset.
func (c StreamConfig) FramePeriod() time.Duration {
	if c.SampleRate <= 0 || c.FrameSize <= 0 {
		return 0
	}
	return time.Duration(c.FrameSize) * time.Second / time.Duration(c.SampleRate)
}

// String returns a compact description such as "44100Hz mono pcm16 x1024 @default".
func (c StreamConfig) String() string {
	dev := c.Device
	if dev == "" {
		dev = "default"
	}
	return fmt.Sprintf("%s %s x%d @%s", formatString(c.SampleRate, c.Channels.Channels()), c.Format, c.FrameSize, dev)
}

// Band identifies one of the three equalizer bands.
type Band int

const (
	// BandLow covers frequencies below the low corner (low shelf).
	BandLow Band = iota

	// BandMid covers the region between the two corners (peaking filter).
	BandMid

	// BandHigh covers frequencies above the high corner (high shelf).
	BandHigh

	// NumBands is the number of equalizer bands.
	NumBands = 3
)

// String returns the lowercase band name used in config and the control API.
func (b Band) String() string {
	switch b {
	case BandLow:
		return "low"
	case BandMid:
		return "mid"
	case BandHigh:
		return "high"
	default:
		return "unknown"
	}
}

// ParseBand converts a band name ("low", "mid", "high") into a [Band].
func ParseBand(s string) (Band, error) {
	switch s {
	case "low":
		return BandLow, nil
	case "mid":
		return BandMid, nil
	case "high":
		return BandHigh, nil
	}
	return 0, fmt.Errorf("audio: unknown band %q; valid values: low, mid, high", s)
}

// Frame is a reusable block of mono PCM16 samples. Frames are handed out by a
// pool and owned by exactly one pipeline stage at a time.
type Frame struct {
	// Samples holds the frame data. len(Samples) is the fixed frame size.
	Samples []int16

	// N is the number of valid samples, at most len(Samples).
	N int
}

// Valid returns the populated prefix of the frame.
func (f *Frame) Valid() []int16 {
	return f.Samples[:f.N]
}
