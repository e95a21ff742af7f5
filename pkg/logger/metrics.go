package logger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors shared across packages. promauto registers them with the
// default registry, which the health server exposes on /metrics.

var (
	// ErrorsTotal counts errors by component and error type.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total errors by component and error type",
		},
		[]string{"service", "error_type"},
	)

	// RequestDuration tracks latency of the health and metrics endpoints.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "HTTP request latency in seconds",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestTotal counts served HTTP requests.
	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests served",
		},
		[]string{"method", "endpoint", "status"},
	)
)
