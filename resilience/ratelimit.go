// Package resilience provides rate limiting for script execution.
package resilience

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter controls execution rate per script.
type RateLimiter interface {
	// Allow checks if execution is allowed for the given script.
	Allow(script string) bool

	// Wait blocks until execution is allowed or context is canceled.
	Wait(ctx context.Context, script string) error

	// SetLimit updates the rate limit for a script.
	SetLimit(script string, limit rate.Limit, burst int)
}

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// DefaultLimit is the default executions per second.
	DefaultLimit float64

	// DefaultBurst is the default burst size.
	DefaultBurst int

	// PerScript enables per-script rate limiting.
	PerScript bool

	// ScriptLimits contains per-script rate limits.
	ScriptLimits map[string]ScriptLimit
}

// ScriptLimit defines the rate limit for a specific script.
type ScriptLimit struct {
	Limit float64
	Burst int
}

// DefaultRateLimiterConfig returns default configuration.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		DefaultLimit: 10,
		DefaultBurst: 20,
		PerScript:    true,
		ScriptLimits: make(map[string]ScriptLimit),
	}
}

// rateLimiter implements RateLimiter.
type rateLimiter struct {
	config         RateLimiterConfig
	globalLimiter  *rate.Limiter
	scriptLimiters map[string]*rate.Limiter
	mu             sync.RWMutex
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(config RateLimiterConfig) RateLimiter {
	rl := &rateLimiter{
		config:         config,
		globalLimiter:  rate.NewLimiter(rate.Limit(config.DefaultLimit), config.DefaultBurst),
		scriptLimiters: make(map[string]*rate.Limiter),
	}

	for script, limit := range config.ScriptLimits {
		rl.scriptLimiters[script] = rate.NewLimiter(rate.Limit(limit.Limit), limit.Burst)
	}

	return rl
}

// Allow implements RateLimiter.Allow.
func (rl *rateLimiter) Allow(script string) bool {
	if !rl.config.PerScript {
		return rl.globalLimiter.Allow()
	}

	return rl.getLimiter(script).Allow()
}

// Wait implements RateLimiter.Wait.
func (rl *rateLimiter) Wait(ctx context.Context, script string) error {
	if !rl.config.PerScript {
		return rl.globalLimiter.Wait(ctx)
	}

	return rl.getLimiter(script).Wait(ctx)
}

// SetLimit implements RateLimiter.SetLimit.
func (rl *rateLimiter) SetLimit(script string, limit rate.Limit, burst int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, ok := rl.scriptLimiters[script]; ok {
		limiter.SetLimit(limit)
		limiter.SetBurst(burst)
	} else {
		rl.scriptLimiters[script] = rate.NewLimiter(limit, burst)
	}
}

func (rl *rateLimiter) getLimiter(script string) *rate.Limiter {
	rl.mu.RLock()
	limiter, ok := rl.scriptLimiters[script]
	rl.mu.RUnlock()

	if ok {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check after acquiring write lock
	if existing, ok := rl.scriptLimiters[script]; ok {
		return existing
	}

	newLimiter := rate.NewLimiter(rate.Limit(rl.config.DefaultLimit), rl.config.DefaultBurst)
	rl.scriptLimiters[script] = newLimiter
	return newLimiter
}
