package observability

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics is a MetricsClient backed by a prometheus registry.
// Collectors are created lazily per metric name and label set.
type PrometheusMetrics struct {
	namespace string
	registry  *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusMetrics creates a MetricsClient registered on its own registry.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	return &PrometheusMetrics{
		namespace:  namespace,
		registry:   prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Registry exposes the underlying registry for the /metrics handler.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// IncrementCounter adds value to the named counter.
func (m *PrometheusMetrics) IncrementCounter(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	vec, ok := m.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      sanitizeMetricName(name),
		}, labelKeys(labels))
		m.registry.MustRegister(vec)
		m.counters[name] = vec
	}
	m.mu.Unlock()
	vec.With(prometheus.Labels(labels)).Add(value)
}

// RecordGauge sets the named gauge.
func (m *PrometheusMetrics) RecordGauge(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	vec, ok := m.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: m.namespace,
			Name:      sanitizeMetricName(name),
		}, labelKeys(labels))
		m.registry.MustRegister(vec)
		m.gauges[name] = vec
	}
	m.mu.Unlock()
	vec.With(prometheus.Labels(labels)).Set(value)
}

// RecordLatency records an operation duration in seconds.
func (m *PrometheusMetrics) RecordLatency(operation string, duration time.Duration) {
	m.mu.Lock()
	vec, ok := m.histograms[operation]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: m.namespace,
			Name:      sanitizeMetricName(operation) + "_duration_seconds",
			Buckets:   prometheus.DefBuckets,
		}, nil)
		m.registry.MustRegister(vec)
		m.histograms[operation] = vec
	}
	m.mu.Unlock()
	vec.WithLabelValues().Observe(duration.Seconds())
}

// Close implements MetricsClient.
func (m *PrometheusMetrics) Close() error { return nil }

func labelKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sanitizeMetricName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_", " ", "_").Replace(name)
}

// NoopMetrics is a MetricsClient that discards everything.
type NoopMetrics struct{}

// NewNoopMetricsClient creates a metrics client that does nothing.
func NewNoopMetricsClient() MetricsClient { return &NoopMetrics{} }

// IncrementCounter implements MetricsClient.
func (NoopMetrics) IncrementCounter(name string, value float64, labels map[string]string) {}

// RecordGauge implements MetricsClient.
func (NoopMetrics) RecordGauge(name string, value float64, labels map[string]string) {}

// RecordLatency implements MetricsClient.
func (NoopMetrics) RecordLatency(operation string, duration time.Duration) {}

// Close implements MetricsClient.
func (NoopMetrics) Close() error { return nil }
