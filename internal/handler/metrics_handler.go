package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ambassador-api/internal/service"
	"github.com/noah-isme/ambassador-api/pkg/response"
)

const probeTimeout = 2 * time.Second

// Dependency is a backend the readiness probe pings. Optional dependencies
// report "down" without failing readiness.
type Dependency struct {
	Name     string
	Optional bool
	Ping     func(ctx context.Context) error
}

// MetricsHandler serves probes, the Prometheus scrape and the admin counters.
type MetricsHandler struct {
	metrics *service.MetricsService
	deps    []Dependency
	started time.Time
}

func NewMetricsHandler(metrics *service.MetricsService, deps ...Dependency) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, deps: deps, started: time.Now()}
}

// Prometheus serves the scrape endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Snapshot godoc
// @Summary Process counters for the admin console
// @Tags Metrics
// @Produce json
// @Success 200 {object} response.Envelope{data=models.SystemMetrics}
// @Security BearerAuth
// @Router /admin/metrics [get]
func (h *MetricsHandler) Snapshot(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.metrics.Snapshot(), nil)
}

// Health is the liveness probe.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "uptime_seconds": int64(time.Since(h.started).Seconds())})
}

// Ready pings every dependency and answers 503 when a required one is down.
func (h *MetricsHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := gin.H{}
	for _, dep := range h.deps {
		if dep.Ping == nil {
			checks[dep.Name] = "disabled"
			continue
		}
		if err := dep.Ping(ctx); err != nil {
			checks[dep.Name] = "down"
			if !dep.Optional {
				status, code = "unavailable", http.StatusServiceUnavailable
			}
			continue
		}
		checks[dep.Name] = "up"
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(code, gin.H{"status": status, "checks": checks})
}
