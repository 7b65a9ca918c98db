package resilience

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterManagerIndependentLimiters(t *testing.T) {
	m := NewRateLimiterManager(map[string]RateLimiterConfig{
		"search":     {RequestsPerSecond: 1000, Burst: 1000},
		"precompute": {RequestsPerSecond: 0.001, Burst: 1},
	}, RateLimiterConfig{RequestsPerSecond: 10, Burst: 10})

	// Exhaust the precompute budget.
	require.True(t, m.Allow("precompute"))
	assert.False(t, m.Allow("precompute"))

	// The search limiter is unaffected.
	for i := 0; i < 10; i++ {
		assert.True(t, m.Allow("search"))
	}
}

func TestRateLimiterManagerFallback(t *testing.T) {
	m := NewRateLimiterManager(nil, RateLimiterConfig{RequestsPerSecond: 0.001, Burst: 2})

	assert.True(t, m.Allow("unknown"))
	assert.True(t, m.Allow("unknown"))
	assert.False(t, m.Allow("unknown"))
}
