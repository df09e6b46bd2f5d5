package observe

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

func TestInitProvider_ExportsToRegistry(t *testing.T) {
	origMP := otel.GetMeterProvider()
	origTP := otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(origMP)
		otel.SetTracerProvider(origTP)
	})

	reg := prometheus.NewRegistry()
	shutdown, err := InitProvider(context.Background(), ProviderConfig{
		ServiceName:      "earpiece-test",
		Registry:         reg,
		TraceSampleRatio: 0.5,
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.FramesProcessed.Add(context.Background(), 3)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var sawFrames, sawGo bool
	for _, f := range families {
		switch name := f.GetName(); {
		case strings.HasPrefix(name, "earpiece_frames_processed"):
			sawFrames = true
		case strings.HasPrefix(name, "go_goroutines"):
			sawGo = true
		}
	}
	if !sawFrames {
		t.Error("frames processed counter not exported to registry")
	}
	if !sawGo {
		t.Error("Go runtime collector not registered")
	}

	// A second registration against the same registry is tolerated.
	if err := registerRuntimeCollectors(reg); err != nil {
		t.Errorf("registerRuntimeCollectors twice: %v", err)
	}
}
