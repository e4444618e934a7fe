package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/ConnectBest/failover-orchestrator/internal/logging"
)

// RecoveryMiddleware converts a handler panic into the API's standard error
// body instead of a dropped connection. A panic mid-trigger must not take
// the orchestrator down while a failover attempt may still be in flight, so
// the stack and correlation id are logged and the process keeps serving.
func RecoveryMiddleware(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.WithContext(r.Context()).Error("Panic recovered", fmt.Errorf("%v", rec), map[string]interface{}{
						"method": r.Method,
						"path":   r.URL.Path,
						"stack":  string(debug.Stack()),
					})

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error":   "internal",
						"message": "unexpected failure handling request",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
