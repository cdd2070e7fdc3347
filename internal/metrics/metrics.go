// Package metrics provides Prometheus metrics collection for the glassbox
// engine. It defines counters, gauges, and histograms for prediction-call
// accounting, explanation-run durations, async job outcomes, and storage
// operations, exposed via the Prometheus metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage labels for prediction-call accounting: which engine phase issued
// the batched model call.
const (
	StageBaseline    = "baseline"
	StageImportance  = "importance"
	StageALE         = "ale"
	StageLocal       = "local"
	StagePerformance = "performance"
)

// Metrics holds all Prometheus collectors for the engine.
type Metrics struct {
	// Prediction accounting
	PredictionCalls *prometheus.CounterVec // Batched model calls by stage
	PredictionRows  *prometheus.CounterVec // Rows scored by stage

	// Engine run metrics
	ComputeDuration *prometheus.HistogramVec // Wall time per compute method

	// Async job metrics
	ActiveJobs prometheus.Gauge       // Jobs currently running
	JobsTotal  *prometheus.CounterVec // Finished jobs by kind and outcome

	// Model client metrics
	ModelCalls    prometheus.Counter   // Remote scoring requests issued
	ModelFailures prometheus.Counter   // Remote scoring requests failed
	ModelLatency  prometheus.Histogram // Remote scoring latency in seconds

	// Storage metrics
	StorageOps *prometheus.CounterVec // bbolt operations by kind

	// System metrics
	ErrorsTotal prometheus.Counter // Total errors encountered
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
// This allows for isolated metric collection in tests without affecting
// the global Prometheus registry.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		PredictionCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prediction_calls_total",
			Help: "Batched prediction calls issued to the model, by engine stage",
		}, []string{"stage"}),
		PredictionRows: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prediction_rows_total",
			Help: "Instances scored by the model, by engine stage",
		}, []string{"stage"}),
		ComputeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "compute_duration_seconds",
			Help:    "Wall time of engine computations by method",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"method"}),
		ActiveJobs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "active_jobs",
			Help: "Explanation jobs currently running",
		}),
		JobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jobs_total",
			Help: "Finished explanation jobs by kind and outcome",
		}, []string{"kind", "outcome"}),
		ModelCalls: factory.NewCounter(prometheus.CounterOpts{
			Name: "model_calls_total",
			Help: "Remote scoring requests issued",
		}),
		ModelFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "model_failures_total",
			Help: "Remote scoring requests that failed",
		}),
		ModelLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "model_latency_seconds",
			Help:    "Remote scoring request latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		StorageOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storage_ops_total",
			Help: "Persistence operations by kind",
		}, []string{"op"}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}

// ObservePrediction records one batched model call of the given stage and
// the number of rows it scored.
func (m *Metrics) ObservePrediction(stage string, rows int) {
	m.PredictionCalls.WithLabelValues(stage).Inc()
	m.PredictionRows.WithLabelValues(stage).Add(float64(rows))
}

// JobFinished records one finished job outcome: "completed", "failed",
// or "cancelled".
func (m *Metrics) JobFinished(kind, outcome string) {
	m.JobsTotal.WithLabelValues(kind, outcome).Inc()
}
