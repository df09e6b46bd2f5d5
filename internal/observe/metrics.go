// Package observe provides application-wide observability primitives for
// earpiece: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all earpiece metrics.
const meterName = "github.com/MrWong99/earpiece"

// Frame drop reasons used with [Metrics.RecordFrameDropped].
const (
	DropShortRead     = "short_read"
	DropReadError     = "read_error"
	DropWriteError    = "write_error"
	DropShortWrite    = "short_write"
	DropPoolExhausted = "pool_exhausted"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Processing loop ---

	// FrameDuration tracks the time spent processing one frame, from the
	// end of the capture read to the end of the render write.
	FrameDuration metric.Float64Histogram

	// FramesProcessed counts frames rendered to the output.
	FramesProcessed metric.Int64Counter

	// FramesDropped counts frames skipped on the audio path. Use with
	// attribute:
	//   attribute.String("reason", ...)
	FramesDropped metric.Int64Counter

	// ClippedSamples counts samples saturated to the int16 range. Use with
	// attribute:
	//   attribute.String("stage", "gain"|"equalizer")
	ClippedSamples metric.Int64Counter

	// InputLevel and OutputLevel report the RMS level of the last frame in
	// dBFS.
	InputLevel  metric.Float64Gauge
	OutputLevel metric.Float64Gauge

	// --- Sessions ---

	// SessionStarts counts Start attempts. Use with attribute:
	//   attribute.String("status", "ok"|"failed")
	SessionStarts metric.Int64Counter

	// DeviceLosses counts sessions ended by a device disconnection.
	DeviceLosses metric.Int64Counter

	// ActiveSessions is 1 while the engine is running.
	ActiveSessions metric.Int64UpDownCounter

	// --- Control ---

	// ParameterUpdates counts accepted parameter writes. Use with attribute:
	//   attribute.String("param", ...)
	ParameterUpdates metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// frameBuckets defines histogram bucket boundaries (in seconds) for per-frame
// processing time. A 1024 sample frame at 44.1 kHz lasts about 23 ms.
var frameBuckets = []float64{
	0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FrameDuration, err = m.Float64Histogram("earpiece.frame.duration",
		metric.WithDescription("Processing time of a single audio frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(frameBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FramesProcessed, err = m.Int64Counter("earpiece.frames.processed",
		metric.WithDescription("Total frames rendered to the output device."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("earpiece.frames.dropped",
		metric.WithDescription("Total frames skipped by reason."),
	); err != nil {
		return nil, err
	}
	if met.ClippedSamples, err = m.Int64Counter("earpiece.samples.clipped",
		metric.WithDescription("Total samples saturated to the 16-bit range by stage."),
	); err != nil {
		return nil, err
	}
	if met.InputLevel, err = m.Float64Gauge("earpiece.level.input",
		metric.WithDescription("RMS level of the last captured frame."),
		metric.WithUnit("dBFS"),
	); err != nil {
		return nil, err
	}
	if met.OutputLevel, err = m.Float64Gauge("earpiece.level.output",
		metric.WithDescription("RMS level of the last rendered frame."),
		metric.WithUnit("dBFS"),
	); err != nil {
		return nil, err
	}

	if met.SessionStarts, err = m.Int64Counter("earpiece.session.starts",
		metric.WithDescription("Total session start attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.DeviceLosses, err = m.Int64Counter("earpiece.device.losses",
		metric.WithDescription("Total sessions ended by a lost audio device."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("earpiece.active_sessions",
		metric.WithDescription("Number of running processing sessions."),
	); err != nil {
		return nil, err
	}

	if met.ParameterUpdates, err = m.Int64Counter("earpiece.parameter.updates",
		metric.WithDescription("Total accepted parameter writes by parameter."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("earpiece.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordFrameDropped increments the dropped-frames counter for reason.
func (m *Metrics) RecordFrameDropped(ctx context.Context, reason string) {
	m.FramesDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordClipped adds n clipped samples for stage. Zero is ignored.
func (m *Metrics) RecordClipped(ctx context.Context, stage string, n int) {
	if n == 0 {
		return
	}
	m.ClippedSamples.Add(ctx, int64(n), metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordSessionStart increments the session start counter with status.
func (m *Metrics) RecordSessionStart(ctx context.Context, status string) {
	m.SessionStarts.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordParameterUpdate increments the parameter update counter.
func (m *Metrics) RecordParameterUpdate(ctx context.Context, param string) {
	m.ParameterUpdates.Add(ctx, 1, metric.WithAttributes(attribute.String("param", param)))
}
