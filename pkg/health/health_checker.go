// Package health aggregates liveness checks for the service's dependencies:
// postgres, redis and the external inference service.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/Dushime20/urutibiz-backend-sub011/pkg/observability"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Check represents a single health check result
type Check struct {
	Name        string        `json:"name"`
	Status      Status        `json:"status"`
	Message     string        `json:"message,omitempty"`
	LastChecked time.Time     `json:"last_checked"`
	Duration    time.Duration `json:"duration_ms"`
}

// HealthCheck interface for individual health checks
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthChecker manages and executes health checks
type HealthChecker struct {
	checks  map[string]HealthCheck
	results map[string]*Check
	mu      sync.RWMutex

	metrics observability.MetricsClient
	logger  observability.Logger

	checkInterval time.Duration
	timeout       time.Duration
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(logger observability.Logger, metrics observability.MetricsClient) *HealthChecker {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	return &HealthChecker{
		checks:        make(map[string]HealthCheck),
		results:       make(map[string]*Check),
		metrics:       metrics,
		logger:        logger,
		checkInterval: 30 * time.Second,
		timeout:       5 * time.Second,
	}
}

// RegisterCheck registers a new health check
func (h *HealthChecker) RegisterCheck(name string, check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.checks[name] = check
	h.logger.Info("registered health check", map[string]interface{}{
		"check": name,
	})
}

// RunChecks executes all registered health checks concurrently.
func (h *HealthChecker) RunChecks(ctx context.Context) map[string]*Check {
	h.mu.RLock()
	checks := make(map[string]HealthCheck, len(h.checks))
	for name, check := range h.checks {
		checks[name] = check
	}
	h.mu.RUnlock()

	results := make(map[string]*Check, len(checks))
	var wg sync.WaitGroup
	var resultsMu sync.Mutex

	for name, check := range checks {
		wg.Add(1)
		go func(n string, c HealthCheck) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()

			start := time.Now()
			err := c.Check(checkCtx)

			result := &Check{
				Name:        n,
				LastChecked: time.Now(),
				Duration:    time.Since(start),
				Status:      StatusHealthy,
			}
			if err != nil {
				result.Status = StatusUnhealthy
				result.Message = err.Error()
			}
			h.recordMetrics(n, result)

			resultsMu.Lock()
			results[n] = result
			resultsMu.Unlock()
		}(name, check)
	}
	wg.Wait()

	h.mu.Lock()
	h.results = results
	h.mu.Unlock()

	return results
}

// GetResults returns the latest health check results
func (h *HealthChecker) GetResults() map[string]*Check {
	h.mu.RLock()
	defer h.mu.RUnlock()

	results := make(map[string]*Check, len(h.results))
	for k, v := range h.results {
		results[k] = v
	}
	return results
}

// IsHealthy returns true if all checks are healthy
func (h *HealthChecker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, check := range h.results {
		if check.Status != StatusHealthy {
			return false
		}
	}
	return true
}

// StartBackgroundChecks runs periodic checks until ctx is cancelled.
func (h *HealthChecker) StartBackgroundChecks(ctx context.Context) {
	ticker := time.NewTicker(h.checkInterval)
	defer ticker.Stop()

	h.RunChecks(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.RunChecks(ctx)
		}
	}
}

func (h *HealthChecker) recordMetrics(name string, check *Check) {
	statusValue := 0.0
	if check.Status == StatusHealthy {
		statusValue = 1.0
	}
	h.metrics.RecordGauge("health_check_status", statusValue, map[string]string{
		"check": name,
	})
}
