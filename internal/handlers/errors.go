package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ConnectBest/failover-orchestrator/internal/failover"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteSuccess writes a success response
func WriteSuccess(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// WriteFailoverError converts a failover error kind to its transport status.
// Only control-API rejections map to 4xx; attempt failures are ordinary 200
// results and never pass through here.
func WriteFailoverError(w http.ResponseWriter, ferr *failover.Error) {
	status := http.StatusInternalServerError
	switch ferr.Kind {
	case failover.KindUnknownRegion:
		status = http.StatusBadRequest
	case failover.KindAlreadyInProgress, failover.KindAlreadyAtTarget:
		status = http.StatusConflict
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   string(ferr.Kind),
		Message: ferr.Message,
	})
}
