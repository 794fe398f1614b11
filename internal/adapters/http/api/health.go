package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/ceoorcto/pkg/metrics"
)

// StatsProvider defines the interface for getting service statistics.
type StatsProvider interface {
	GetStats() map[string]any
}

// HealthHandler serves liveness metrics and service statistics.
type HealthHandler struct {
	stats   StatsProvider
	metrics http.Handler
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(stats StatsProvider) *HealthHandler {
	return &HealthHandler{
		stats:   stats,
		metrics: promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}),
	}
}

// HandleHealth handles GET /healthz with the Prometheus exposition.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}

// HandleStats handles GET /stats.
func (h *HealthHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.stats.GetStats())
}
