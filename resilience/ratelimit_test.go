package resilience

import (
	"context"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		DefaultLimit: 1,
		DefaultBurst: 2,
		PerScript:    true,
	})

	if !rl.Allow("/sandbox/a.py") {
		t.Error("First execution should be allowed")
	}
	if !rl.Allow("/sandbox/a.py") {
		t.Error("Second execution within burst should be allowed")
	}
	if rl.Allow("/sandbox/a.py") {
		t.Error("Third execution should exceed the burst")
	}
}

func TestRateLimiter_PerScriptIsolation(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		DefaultLimit: 1,
		DefaultBurst: 1,
		PerScript:    true,
	})

	if !rl.Allow("/sandbox/a.py") {
		t.Error("First execution of a.py should be allowed")
	}
	if rl.Allow("/sandbox/a.py") {
		t.Error("a.py burst exhausted")
	}

	// A different script has its own limiter
	if !rl.Allow("/sandbox/b.py") {
		t.Error("b.py should not share a.py's limiter")
	}
}

func TestRateLimiter_Global(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		DefaultLimit: 1,
		DefaultBurst: 1,
		PerScript:    false,
	})

	if !rl.Allow("/sandbox/a.py") {
		t.Error("First execution should be allowed")
	}
	if rl.Allow("/sandbox/b.py") {
		t.Error("Global limiter must be shared across scripts")
	}
}

func TestRateLimiter_ScriptLimits(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		DefaultLimit: 100,
		DefaultBurst: 100,
		PerScript:    true,
		ScriptLimits: map[string]ScriptLimit{
			"/sandbox/heavy.py": {Limit: 1, Burst: 1},
		},
	})

	if !rl.Allow("/sandbox/heavy.py") {
		t.Error("First execution should be allowed")
	}
	if rl.Allow("/sandbox/heavy.py") {
		t.Error("Configured per-script burst must apply")
	}
	if !rl.Allow("/sandbox/light.py") {
		t.Error("Other scripts use the default limit")
	}
}

func TestRateLimiter_SetLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		DefaultLimit: 1,
		DefaultBurst: 1,
		PerScript:    true,
	})

	rl.SetLimit("/sandbox/a.py", rate.Limit(100), 10)

	allowed := 0
	for i := 0; i < 10; i++ {
		if rl.Allow("/sandbox/a.py") {
			allowed++
		}
	}
	if allowed != 10 {
		t.Errorf("Expected 10 allowed after raising the burst, got %d", allowed)
	}
}

func TestRateLimiter_WaitCanceled(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		DefaultLimit: 0.001,
		DefaultBurst: 1,
		PerScript:    true,
	})

	// Exhaust the burst so Wait must block
	if !rl.Allow("/sandbox/a.py") {
		t.Fatal("First execution should be allowed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := rl.Wait(ctx, "/sandbox/a.py"); err == nil {
		t.Error("Expected error when context expires before a token is available")
	}
}

func TestRateLimiter_WaitImmediate(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := rl.Wait(ctx, "/sandbox/a.py"); err != nil {
		t.Errorf("Wait with available tokens should not fail: %v", err)
	}
}
