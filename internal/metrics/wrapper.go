package metrics

import (
	"strconv"
	"time"
)

// MLRecorder adapts Metrics to the recorder interface the ml package
// depends on, keeping Prometheus out of the scoring code.
type MLRecorder struct {
	m *Metrics
}

func NewMLRecorder(m *Metrics) *MLRecorder {
	return &MLRecorder{m: m}
}

func (r *MLRecorder) MLPredictionsInc(label int) {
	r.m.MLPredictions.Inc()
	r.m.MLPredictedLabels.WithLabelValues(strconv.Itoa(label)).Inc()
}

func (r *MLRecorder) MLFailuresInc(reason string) {
	r.m.MLFailures.WithLabelValues(reason).Inc()
}

func (r *MLRecorder) MLLatencyObserve(seconds float64) {
	r.m.MLLatency.Observe(seconds)
}

func (r *MLRecorder) MLPredictionScoresObserve(p float64) {
	r.m.MLPredictionScores.Observe(p)
}

func (r *MLRecorder) MLTimeoutsInc() {
	r.m.MLTimeouts.Inc()
}

func (r *MLRecorder) MLModelAgeSet(seconds float64) {
	r.m.MLModelAge.Set(seconds)
}

func (r *MLRecorder) MLScoreDriftSet(method string, v float64) {
	r.m.MLScoreDrift.WithLabelValues(method).Set(v)
}

func (r *MLRecorder) MLTrainingRunsInc(status string) {
	r.m.TrainingRuns.WithLabelValues(status).Inc()
}

func (r *MLRecorder) MLTrainingDurationObserve(d time.Duration) {
	r.m.TrainingDuration.Observe(d.Seconds())
}

func (r *MLRecorder) MLHoldoutScoreSet(metric string, v float64) {
	r.m.HoldoutScores.WithLabelValues(metric).Set(v)
}

func (r *MLRecorder) MLFixtureChecksInc(passed bool) {
	result := "pass"
	if !passed {
		result = "fail"
	}
	r.m.FixtureChecks.WithLabelValues(result).Inc()
}

func (r *MLRecorder) HTTPRequestsInc(route string, code int) {
	r.m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
