package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Dushime20/urutibiz-backend-sub011/pkg/health"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/observability"
)

// HealthAPI exposes liveness and dependency health.
type HealthAPI struct {
	checker *health.HealthChecker
}

func NewHealthAPI(checker *health.HealthChecker) *HealthAPI {
	return &HealthAPI{checker: checker}
}

// RegisterRoutes mounts health and metrics endpoints on the engine root.
func (a *HealthAPI) RegisterRoutes(router *gin.Engine, metrics observability.MetricsClient) {
	router.GET("/health", a.getHealth)
	if pm, ok := metrics.(*observability.PrometheusMetrics); ok {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(pm.Registry(), promhttp.HandlerOpts{})))
	}
}

func (a *HealthAPI) getHealth(c *gin.Context) {
	results := a.checker.RunChecks(c.Request.Context())

	status := http.StatusOK
	overall := health.StatusHealthy
	for _, check := range results {
		if check.Status == health.StatusUnhealthy {
			status = http.StatusServiceUnavailable
			overall = health.StatusUnhealthy
			break
		}
	}

	c.JSON(status, gin.H{
		"status": overall,
		"checks": results,
	})
}
