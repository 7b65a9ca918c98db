package extraction

import (
	"context"
	"time"

	"github.com/Dushime20/urutibiz-backend-sub011/pkg/observability"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/resilience"
)

// HealthMonitor probes the inference service independently of request
// traffic. When the circuit is open and a probe succeeds, the monitor nudges
// the breaker to half-open so recovery is noticed before the next cooldown
// expires.
type HealthMonitor struct {
	extractor *ServiceExtractor
	interval  time.Duration
	timeout   time.Duration
	logger    observability.Logger
	metrics   observability.MetricsClient
}

// NewHealthMonitor creates a monitor for the given gateway.
func NewHealthMonitor(extractor *ServiceExtractor, interval time.Duration, logger observability.Logger, metrics observability.MetricsClient) *HealthMonitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	return &HealthMonitor{
		extractor: extractor,
		interval:  interval,
		timeout:   5 * time.Second,
		logger:    logger,
		metrics:   metrics,
	}
}

// Start runs the probe loop until ctx is cancelled.
func (m *HealthMonitor) Start(ctx context.Context) {
	go m.run(ctx)
}

func (m *HealthMonitor) run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *HealthMonitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.extractor.Healthy(probeCtx)
	healthy := err == nil

	var up float64
	if healthy {
		up = 1
	}
	m.metrics.RecordGauge("inference_service_up", up, map[string]string{})

	breaker := m.extractor.Breaker()
	if healthy && breaker.State() == resilience.CircuitBreakerOpen {
		if breaker.TryHalfOpen() {
			m.logger.Info("inference service recovered, allowing trial request", nil)
		}
		return
	}
	if !healthy {
		m.logger.Debug("inference service probe failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
