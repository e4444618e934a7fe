package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/ConnectBest/failover-orchestrator/internal/logging"
)

// CorrelationMiddleware assigns each request a correlation id and plants it
// in the request context. The coordinator derives its attempt logger from
// that context, so every log line of a failover attempt carries the id of
// the trigger request that started it. An inbound X-Request-Id is honoured
// so operator tooling can supply its own.
func CorrelationMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-Id")
			if id == "" {
				id = uuid.New().String()
			}

			w.Header().Set("X-Request-Id", id)

			ctx := logging.WithCorrelationID(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
