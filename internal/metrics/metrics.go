// Package metrics defines the Prometheus collectors exported by the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Resolutions counts completed resolutions by action.
	Resolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audience_resolutions_total",
			Help: "Total number of resolved records by action",
		},
		[]string{"action"},
	)

	// ResolutionErrors counts failed resolutions by error kind.
	ResolutionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audience_resolution_errors_total",
			Help: "Total number of failed resolutions by error kind",
		},
		[]string{"kind"}, // "validation", "integrity", "unavailable", "internal"
	)

	ResolutionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "audience_resolution_duration_seconds",
			Help:    "Duration of identity resolution including store round trips",
			Buckets: prometheus.DefBuckets,
		},
	)

	// CohortSnapshots counts emitted cohort snapshots by label.
	CohortSnapshots = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audience_cohort_snapshots_total",
			Help: "Total number of cohort snapshots emitted by cohort label",
		},
		[]string{"cohort"},
	)

	RawEventFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audience_raw_event_failures_total",
			Help: "Total number of raw events that could not be appended to the log",
		},
	)

	// FieldWarnings counts field-level degradations such as malformed dates.
	FieldWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audience_field_warnings_total",
			Help: "Total number of incoming fields dropped during normalization",
		},
		[]string{"field"},
	)

	RawLogBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "audience_raw_log_breaker_open",
			Help: "1 when the raw event log circuit breaker is open",
		},
	)

	// HTTPRequests counts served HTTP requests by route and status code.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audience_http_requests_total",
			Help: "Total number of HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "audience_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// StoreServing is 1 while the last store health check succeeded.
	StoreServing = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "audience_store_serving",
			Help: "1 when the profile store answered the last health check",
		},
	)
)
