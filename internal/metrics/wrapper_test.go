package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMLRecorder(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewWithRegistry(registry)
	r := NewMLRecorder(m)

	require.NotNil(t, r)
	assert.Same(t, m, r.m)
}

func TestMLRecorder_Predictions(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	r := NewMLRecorder(m)

	r.MLPredictionsInc(1)
	r.MLPredictionsInc(0)
	r.MLPredictionsInc(1)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.MLPredictions))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MLPredictedLabels.WithLabelValues("1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MLPredictedLabels.WithLabelValues("0")))
}

func TestMLRecorder_FailuresByReason(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	r := NewMLRecorder(m)

	r.MLFailuresInc("invalid_timestamp")
	r.MLFailuresInc("invalid_timestamp")
	r.MLFailuresInc("missing_feature")
	r.MLTimeoutsInc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MLFailures.WithLabelValues("invalid_timestamp")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MLFailures.WithLabelValues("missing_feature")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MLTimeouts))
}

func TestMLRecorder_Gauges(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	r := NewMLRecorder(m)

	r.MLModelAgeSet(3600)
	r.MLHoldoutScoreSet("f1", 0.72)
	r.MLHoldoutScoreSet("f1", 0.75)

	assert.Equal(t, 3600.0, testutil.ToFloat64(m.MLModelAge))
	assert.Equal(t, 0.75, testutil.ToFloat64(m.HoldoutScores.WithLabelValues("f1")))
}

func TestMLRecorder_Histograms(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewWithRegistry(registry)
	r := NewMLRecorder(m)

	r.MLLatencyObserve(0.002)
	r.MLPredictionScoresObserve(0.9)
	r.MLPredictionScoresObserve(0.1)
	r.MLTrainingDurationObserve(3 * time.Second)

	assert.Equal(t, 1, testutil.CollectAndCount(m.MLLatency))

	expected := `
# HELP risk_training_duration_seconds Wall time of a training run in seconds
# TYPE risk_training_duration_seconds histogram
risk_training_duration_seconds_bucket{le="0.5"} 0
risk_training_duration_seconds_bucket{le="1"} 0
risk_training_duration_seconds_bucket{le="2"} 0
risk_training_duration_seconds_bucket{le="4"} 1
risk_training_duration_seconds_bucket{le="8"} 1
risk_training_duration_seconds_bucket{le="16"} 1
risk_training_duration_seconds_bucket{le="32"} 1
risk_training_duration_seconds_bucket{le="64"} 1
risk_training_duration_seconds_bucket{le="128"} 1
risk_training_duration_seconds_bucket{le="256"} 1
risk_training_duration_seconds_bucket{le="512"} 1
risk_training_duration_seconds_bucket{le="1024"} 1
risk_training_duration_seconds_bucket{le="+Inf"} 1
risk_training_duration_seconds_sum 3
risk_training_duration_seconds_count 1
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "risk_training_duration_seconds"))
}

func TestMLRecorder_TrainingAndFixtures(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	r := NewMLRecorder(m)

	r.MLTrainingRunsInc("success")
	r.MLTrainingRunsInc("failed")
	r.MLFixtureChecksInc(true)
	r.MLFixtureChecksInc(true)
	r.MLFixtureChecksInc(false)
	r.HTTPRequestsInc("/predict", 200)
	r.MLScoreDriftSet("psi", 0.12)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TrainingRuns.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TrainingRuns.WithLabelValues("failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FixtureChecks.WithLabelValues("pass")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FixtureChecks.WithLabelValues("fail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/predict", "200")))
	assert.Equal(t, 0.12, testutil.ToFloat64(m.MLScoreDrift.WithLabelValues("psi")))
}

func TestNewWithRegistry_Isolated(t *testing.T) {
	// Two registries must not collide on metric names.
	a := NewWithRegistry(prometheus.NewRegistry())
	b := NewWithRegistry(prometheus.NewRegistry())

	a.MLPredictions.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.MLPredictions))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.MLPredictions))
}
