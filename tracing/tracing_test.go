package tracing

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitDisabled(t *testing.T) {
	cfg := DefaultConfig("reviewlens-test")

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init(disabled) returned error: %v", err)
	}
	if shutdown == nil {
		t.Fatal("shutdown function should not be nil even when disabled")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown(disabled) returned error: %v", err)
	}
}

func TestInitEnabled(t *testing.T) {
	// Non-routable endpoint: the batched exporter connects asynchronously,
	// so Init still succeeds.
	cfg := Config{
		ServiceName:    "reviewlens-test",
		ServiceVersion: "1.0.0",
		Environment:    "test",
		OTLPEndpoint:   "127.0.0.1:0",
		SampleRate:     1.0,
		Enabled:        true,
	}

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init(enabled) returned error: %v", err)
	}

	tp := otel.GetTracerProvider()
	if _, ok := tp.(*sdktrace.TracerProvider); !ok {
		t.Errorf("expected *sdktrace.TracerProvider, got %T", tp)
	}

	if err := shutdown(context.Background()); err != nil {
		t.Logf("shutdown returned (expected with unreachable endpoint): %v", err)
	}
}

func TestInitSampleRates(t *testing.T) {
	for _, rate := range []float64{0.0, 0.5} {
		cfg := Config{
			ServiceName:  "reviewlens-test",
			OTLPEndpoint: "127.0.0.1:0",
			SampleRate:   rate,
			Enabled:      true,
		}
		shutdown, err := Init(context.Background(), cfg)
		if err != nil {
			t.Fatalf("Init(sample=%v) returned error: %v", rate, err)
		}
		_ = shutdown(context.Background())
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("reviewlens-api")

	if cfg.ServiceName != "reviewlens-api" {
		t.Errorf("ServiceName = %q, want %q", cfg.ServiceName, "reviewlens-api")
	}
	if cfg.Enabled {
		t.Error("default config should have Enabled = false")
	}
	if cfg.OTLPEndpoint != "localhost:4318" {
		t.Errorf("OTLPEndpoint = %q, want %q", cfg.OTLPEndpoint, "localhost:4318")
	}
}
