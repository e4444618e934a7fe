package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/ConnectBest/failover-orchestrator/internal/failover"
	"github.com/ConnectBest/failover-orchestrator/internal/history"
	"github.com/ConnectBest/failover-orchestrator/internal/logging"
	"github.com/ConnectBest/failover-orchestrator/internal/orchestrator"
	"github.com/ConnectBest/failover-orchestrator/internal/routing"
)

// FailoverHandlers handles the operator control surface
type FailoverHandlers struct {
	coordinator *orchestrator.Coordinator
	registry    *routing.Registry
	store       *history.Store
	logger      *logging.Logger
}

// NewFailoverHandlers creates the control API handlers
func NewFailoverHandlers(coordinator *orchestrator.Coordinator, registry *routing.Registry, store *history.Store, logger *logging.Logger) *FailoverHandlers {
	return &FailoverHandlers{
		coordinator: coordinator,
		registry:    registry,
		store:       store,
		logger:      logger,
	}
}

// Trigger runs a failover to the region named in the path. Synchronous: the
// response carries the sealed record, including per-step timings. A failed
// attempt is a recognised outcome and still returns 200.
func (h *FailoverHandlers) Trigger(w http.ResponseWriter, r *http.Request) {
	target := failover.Region(mux.Vars(r)["target_region"])

	record, ferr := h.coordinator.Trigger(r.Context(), target)
	if ferr != nil {
		WriteFailoverError(w, ferr)
		return
	}

	WriteSuccess(w, record, http.StatusOK)
}

// StatusResponse is the body of GET /status
type StatusResponse struct {
	ActiveRegion      failover.Region    `json:"active_region"`
	RelationalPrimary string             `json:"relational_primary_endpoint"`
	CacheMaster       string             `json:"cache_master_endpoint"`
	Version           uint64             `json:"version"`
	UpdatedAt         time.Time          `json:"updated_at"`
	InFlight          bool               `json:"in_flight"`
	State             orchestrator.State `json:"state"`
	Degraded          bool               `json:"degraded"`
	LastAttempt       *failover.Summary  `json:"last_attempt,omitempty"`
}

// Status returns the routing snapshot and coordinator state
func (h *FailoverHandlers) Status(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.statusSnapshot(), http.StatusOK)
}

func (h *FailoverHandlers) statusSnapshot() StatusResponse {
	record := h.registry.Read()

	resp := StatusResponse{
		ActiveRegion:      record.ActiveRegion,
		RelationalPrimary: record.RelationalPrimary,
		CacheMaster:       record.CacheMaster,
		Version:           record.Version,
		UpdatedAt:         record.UpdatedAt,
		InFlight:          h.coordinator.InFlight(),
		State:             h.coordinator.State(),
		Degraded:          h.coordinator.Degraded(),
	}

	if last, ok := h.store.Last(); ok {
		summary := last.Summarize()
		resp.LastAttempt = &summary
	}

	return resp
}

// HistoryResponse is the body of GET /history
type HistoryResponse struct {
	Count   int                       `json:"count"`
	Records []failover.FailoverRecord `json:"records"`
}

// History returns recent failover records, most recent first
func (h *FailoverHandlers) History(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			WriteSuccess(w, ErrorResponse{Error: "invalid limit", Message: "limit must be a non-negative integer"}, http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	records := h.store.Recent(limit)
	WriteSuccess(w, HistoryResponse{Count: len(records), Records: records}, http.StatusOK)
}

// Metrics returns the computed metrics snapshot
func (h *FailoverHandlers) Metrics(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.store.Summary(), http.StatusOK)
}

// Health reports whether the orchestrator can reach the sentinel quorum and
// at least one relational endpoint
func (h *FailoverHandlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if ferr := h.coordinator.Health(ctx); ferr != nil {
		WriteSuccess(w, map[string]interface{}{
			"status": "degraded",
			"detail": ferr.Error(),
		}, http.StatusServiceUnavailable)
		return
	}

	WriteSuccess(w, map[string]interface{}{"status": "ok"}, http.StatusOK)
}
