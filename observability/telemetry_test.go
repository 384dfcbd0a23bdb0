package observability

import (
	"context"
	"testing"
)

func TestNewTelemetry(t *testing.T) {
	tel, err := NewTelemetry(DefaultTelemetryConfig())
	if err != nil {
		t.Fatalf("NewTelemetry failed: %v", err)
	}

	// The global providers default to no-ops; every call must be safe.
	ctx, end := tel.StartSpan(context.Background(), "test.span",
		WithAttribute("script", "/sandbox/x.py"),
		WithAttribute("attempt", 1),
		WithAttribute("cached", false),
	)
	if ctx == nil {
		t.Fatal("StartSpan must return a context")
	}
	end()

	tel.RecordExecution(map[string]string{"outcome": "success"})
	tel.RecordViolation(map[string]string{"kind": "network"})
	tel.RecordDuration(1.5, map[string]string{"script": "/sandbox/x.py"})
}

func TestTelemetry_Disabled(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	cfg.EnableTracing = false
	cfg.EnableMetrics = false

	tel, err := NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("NewTelemetry failed: %v", err)
	}

	ctx := context.Background()
	gotCtx, end := tel.StartSpan(ctx, "test.span")
	if gotCtx != ctx {
		t.Error("Disabled tracing must return the original context")
	}
	end()

	tel.RecordExecution(nil)
	tel.RecordDuration(0, nil)
}

func TestNoopTelemetry(t *testing.T) {
	tel := NoopTelemetry()

	ctx, end := tel.StartSpan(context.Background(), "noop")
	if ctx == nil {
		t.Fatal("StartSpan must return a context")
	}
	end()

	tel.RecordExecution(map[string]string{"outcome": "success"})
	tel.RecordViolation(nil)
	tel.RecordDuration(2.0, nil)
}
