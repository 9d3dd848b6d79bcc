package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

// Not parallel: Setup replaces the global propagator.
func TestSetupDisabledInstallsPropagator(t *testing.T) {
	previous := otel.GetTextMapPropagator()
	t.Cleanup(func() { otel.SetTextMapPropagator(previous) })

	shutdown, err := Setup(context.Background(), Config{Enabled: false, ServiceName: "lesson-scheduler"})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}

	fields := otel.GetTextMapPropagator().Fields()
	found := false
	for _, f := range fields {
		if f == "traceparent" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected traceparent propagation, got fields %v", fields)
	}
}

func TestClampRatio(t *testing.T) {
	t.Parallel()

	for in, want := range map[float64]float64{-1: 0, 0.25: 0.25, 3: 1} {
		if got := clampRatio(in); got != want {
			t.Fatalf("clampRatio(%v) = %v, want %v", in, got, want)
		}
	}
}
