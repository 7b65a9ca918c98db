package resilience

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiterConfig holds configuration for a named rate limiter.
type RateLimiterConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// RateLimiterManager hands out independent token-bucket limiters by name.
// Interactive search and the precompute worker each get their own limiter so
// background backfill cannot starve foreground traffic.
type RateLimiterManager struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	configs  map[string]RateLimiterConfig
	fallback RateLimiterConfig
}

// NewRateLimiterManager creates a manager with per-name configs. Names
// without a config use the fallback.
func NewRateLimiterManager(configs map[string]RateLimiterConfig, fallback RateLimiterConfig) *RateLimiterManager {
	if fallback.RequestsPerSecond <= 0 {
		fallback.RequestsPerSecond = 10
	}
	if fallback.Burst <= 0 {
		fallback.Burst = 1
	}
	return &RateLimiterManager{
		limiters: make(map[string]*rate.Limiter),
		configs:  configs,
		fallback: fallback,
	}
}

// Wait blocks until the named limiter admits one event or ctx is done.
func (m *RateLimiterManager) Wait(ctx context.Context, name string) error {
	return m.get(name).Wait(ctx)
}

// Allow reports whether the named limiter admits one event right now.
func (m *RateLimiterManager) Allow(name string) bool {
	return m.get(name).Allow()
}

func (m *RateLimiterManager) get(name string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.limiters[name]; ok {
		return l
	}
	cfg, ok := m.configs[name]
	if !ok || cfg.RequestsPerSecond <= 0 {
		cfg = m.fallback
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	l := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	m.limiters[name] = l
	return l
}
