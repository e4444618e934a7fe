package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	failoverAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "failover_orchestrator_attempts_total",
			Help: "Total number of failover attempts",
		},
		[]string{"outcome", "sla"},
	)

	failoverDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "failover_orchestrator_duration_seconds",
			Help:    "End-to-end failover attempt duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 7.5, 10},
		},
	)

	stepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "failover_orchestrator_step_duration_seconds",
			Help:    "Per-step duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
		},
		[]string{"step", "outcome"},
	)

	routingVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "failover_orchestrator_routing_version",
			Help: "Current routing record version",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "failover_orchestrator_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "failover_orchestrator_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

// RecordFailoverAttempt records a sealed failover attempt
func RecordFailoverAttempt(success, slaCompliant bool, duration time.Duration) {
	outcome := "failed"
	if success {
		outcome = "success"
	}
	sla := "violated"
	if slaCompliant {
		sla = "compliant"
	}
	failoverAttemptsTotal.WithLabelValues(outcome, sla).Inc()
	failoverDuration.Observe(duration.Seconds())
}

// RecordStep records one step outcome
func RecordStep(step, outcome string, durationSeconds float64) {
	stepDuration.WithLabelValues(step, outcome).Observe(durationSeconds)
}

// SetRoutingVersion publishes the current routing record version
func SetRoutingVersion(version float64) {
	routingVersion.Set(version)
}

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint string, statusCode int, durationSeconds float64) {
	status := "unknown"
	if statusCode >= 200 && statusCode < 300 {
		status = "2xx"
	} else if statusCode >= 300 && statusCode < 400 {
		status = "3xx"
	} else if statusCode >= 400 && statusCode < 500 {
		status = "4xx"
	} else if statusCode >= 500 {
		status = "5xx"
	}

	httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
