// Package metrics provides Prometheus metrics for the indicator harvester:
// upstream GHO requests, pipeline runs and the serve mode HTTP API.
//
// All metrics are registered with the Prometheus default registry during
// package initialization.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gho_upstream_requests_total",
			Help: "Requests sent to the GHO API",
		},
		[]string{"endpoint", "status"},
	)

	UpstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gho_upstream_request_duration_seconds",
			Help:    "GHO API request latency",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"endpoint"},
	)

	PipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gho_pipeline_runs_total",
			Help: "Topic pipeline runs by outcome",
		},
		[]string{"topic", "outcome"},
	)

	PipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gho_pipeline_duration_seconds",
			Help:    "Duration of a topic pipeline run",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"topic"},
	)

	LongRows = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gho_long_rows",
			Help: "Rows in the last long table produced for a topic",
		},
		[]string{"topic"},
	)

	HTTPRequestTotals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	HTTPRequestInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_request_in_flight",
			Help: "Current in-flight requests",
		},
	)
)

func init() {
	prometheus.MustRegister(
		UpstreamRequestsTotal,
		UpstreamRequestDuration,
		PipelineRunsTotal,
		PipelineDuration,
		LongRows,
		HTTPRequestTotals,
		HTTPRequestDuration,
		HTTPRequestInFlight,
	)
}
