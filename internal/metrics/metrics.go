// Package metrics exports the monitoring service's Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PixelsProcessed counts pixels handled by a run, by outcome
	// (fitted, monitored, skipped, failed).
	PixelsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "disturbancemonitor_pixels_processed_total",
			Help: "Total number of pixels processed, by monitor and outcome",
		},
		[]string{"monitor", "outcome"},
	)

	// ScenesEvaluated counts scenes seen by the change monitor, by
	// disposition (valid, invalid, replayed, unevaluated).
	ScenesEvaluated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "disturbancemonitor_scenes_total",
			Help: "Total number of scenes handed to the change monitor, by disposition",
		},
		[]string{"monitor", "disposition"},
	)

	// DisturbancesDetected counts pixels that transitioned to disturbed.
	DisturbancesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "disturbancemonitor_disturbances_total",
			Help: "Total number of pixels that became disturbed",
		},
		[]string{"monitor"},
	)

	// PixelErrors counts per-pixel failures by operation.
	PixelErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "disturbancemonitor_pixel_errors_total",
			Help: "Total number of per-pixel failures, by operation",
		},
		[]string{"monitor", "op"},
	)

	// RunDuration measures whole monitoring runs.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "disturbancemonitor_run_duration_seconds",
			Help:    "Duration of a monitoring run over one scene batch",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300},
		},
		[]string{"monitor"},
	)

	// FitLatency measures a single baseline fit.
	FitLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "disturbancemonitor_fit_latency_seconds",
			Help:    "Baseline fit latency in seconds",
			Buckets: []float64{.00005, .0001, .0005, .001, .005, .01, .05},
		},
	)

	// BatchesPending is the number of batch files waiting in the spool.
	BatchesPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "disturbancemonitor_batches_pending",
			Help: "Number of scene batch files waiting in the spool directory",
		},
	)

	// RequestsTotal counts REST API requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "disturbancemonitor_http_requests_total",
			Help: "Total number of REST API requests",
		},
		[]string{"route", "method", "status"},
	)
)
