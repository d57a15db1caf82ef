// Package metrics provides Prometheus metrics for the catch forecaster.
// It covers model training and inference, ledger normalization and the
// query service, and is exposed via the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the forecaster.
type Metrics struct {
	// Model metrics
	MLPredictions   prometheus.Counter   // Total number of model predictions made
	MLFailures      prometheus.Counter   // Total number of prediction failures
	MLModelAge      prometheus.Gauge     // Age of the active model in seconds
	MLLatency       prometheus.Histogram // Prediction latency in seconds
	MLFallbackUse   prometheus.Counter   // Times the built-in fallback model was activated
	MLTrainingRuns  prometheus.Counter   // Completed training runs
	MLValidationMAE prometheus.Histogram // Hold-out MAE of each training run
	MLArtifactsDel  prometheus.Counter   // Artifacts removed by retention

	// Ledger metrics
	RecordsDropped *prometheus.CounterVec // Rows dropped during normalization, by reason

	// Service metrics
	Requests       *prometheus.CounterVec // Service calls by operation and outcome
	PredictedCatch prometheus.Histogram   // Distribution of predicted daily catches
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		MLPredictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_predictions_total",
			Help: "Total number of catch predictions made",
		}),
		MLFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_failures_total",
			Help: "Total number of catch prediction failures",
		}),
		MLModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ml_model_age_seconds",
			Help: "Age of the active model in seconds",
		}),
		MLLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_latency_seconds",
			Help:    "Model prediction latency in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}),
		MLFallbackUse: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_fallback_use_total",
			Help: "Total number of times the fallback model was activated",
		}),
		MLTrainingRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_training_runs_total",
			Help: "Total number of completed training runs",
		}),
		MLValidationMAE: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_validation_mae",
			Help:    "Hold-out mean absolute error of each training run, in fish",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		MLArtifactsDel: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_artifacts_deleted_total",
			Help: "Total number of model artifacts removed by retention",
		}),
		RecordsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_records_dropped_total",
			Help: "Ledger rows dropped during normalization",
		}, []string{"reason"}),
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "service_requests_total",
			Help: "Forecast service calls by operation and outcome",
		}, []string{"operation", "outcome"}),
		PredictedCatch: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "predicted_catch",
			Help:    "Distribution of predicted daily catch counts",
			Buckets: prometheus.LinearBuckets(0, 50, 11),
		}),
	}
}
