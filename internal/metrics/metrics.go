// Package metrics provides Prometheus metrics collection for the wallet risk
// scoring service. It defines serving, training and fixture self-check
// metrics that are exposed via the Prometheus metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the scoring service.
type Metrics struct {
	// Serving metrics
	MLPredictions      prometheus.Counter     // Total number of wallets scored
	MLPredictedLabels  *prometheus.CounterVec // Scored wallets by predicted label
	MLFailures         *prometheus.CounterVec // Scoring failures by reason
	MLLatency          prometheus.Histogram   // End-to-end scoring latency
	MLPredictionScores prometheus.Histogram   // Distribution of risk probabilities
	MLTimeouts         prometheus.Counter     // Requests cancelled before scoring finished
	MLModelAge         prometheus.Gauge       // Age of the loaded model in seconds
	MLScoreDrift       *prometheus.GaugeVec   // Served score drift from the training baseline

	// Training metrics
	TrainingRuns     *prometheus.CounterVec // Training runs by outcome
	TrainingDuration prometheus.Histogram   // Wall time of a training run
	HoldoutScores    *prometheus.GaugeVec   // Latest holdout evaluation by metric

	// Fixture self-check
	FixtureChecks *prometheus.CounterVec // Stored fixtures replayed by result

	// HTTP boundary
	HTTPRequests *prometheus.CounterVec // Requests by route and status code
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		MLPredictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "risk_predictions_total",
			Help: "Total number of wallets scored",
		}),
		MLPredictedLabels: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_predicted_labels_total",
			Help: "Scored wallets by predicted label",
		}, []string{"label"}),
		MLFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_prediction_failures_total",
			Help: "Scoring failures by reason",
		}, []string{"reason"}),
		MLLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "risk_prediction_latency_seconds",
			Help:    "Scoring latency in seconds (end-to-end)",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		MLPredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "risk_prediction_probability",
			Help:    "Distribution of predicted risk probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		MLTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "risk_prediction_timeouts_total",
			Help: "Total number of scoring requests cancelled or timed out",
		}),
		MLModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "risk_model_age_seconds",
			Help: "Age of the loaded model in seconds",
		}),
		MLScoreDrift: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "risk_score_drift",
			Help: "Drift of served risk probabilities from the holdout baseline by method",
		}, []string{"method"}),
		TrainingRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_training_runs_total",
			Help: "Training runs by outcome",
		}, []string{"status"}),
		TrainingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "risk_training_duration_seconds",
			Help:    "Wall time of a training run in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		HoldoutScores: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "risk_holdout_score",
			Help: "Latest holdout evaluation score by metric",
		}, []string{"metric"}),
		FixtureChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_fixture_checks_total",
			Help: "Stored fixtures replayed against the loaded pipeline by result",
		}, []string{"result"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "code"}),
	}
}
