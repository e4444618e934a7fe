package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ConnectBest/failover-orchestrator/internal/logging"
	"github.com/ConnectBest/failover-orchestrator/internal/metrics"
)

// SystemMetricsHandlers exposes host and process metrics for the ops surface
type SystemMetricsHandlers struct {
	logger *logging.Logger
}

// NewSystemMetricsHandlers creates new system metrics handlers
func NewSystemMetricsHandlers(logger *logging.Logger) *SystemMetricsHandlers {
	return &SystemMetricsHandlers{
		logger: logger,
	}
}

// GetSystemMetrics returns current system metrics
func (h *SystemMetricsHandlers) GetSystemMetrics(w http.ResponseWriter, r *http.Request) {
	systemMetrics, err := metrics.CollectSystemMetrics(r.Context())
	if err != nil {
		h.logger.Error("Failed to collect system metrics", err, nil)
		http.Error(w, "Failed to collect system metrics: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(systemMetrics)
}
