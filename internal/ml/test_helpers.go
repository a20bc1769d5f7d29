package ml

import (
	"sync"
	"time"
)

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu               sync.Mutex
	predictions      int
	labels           map[int]int
	failures         map[string]int
	latencySum       float64
	timeouts         int
	modelAge         float64
	drift            map[string]float64
	predictionScores []float64
	trainingRuns     map[string]int
	trainingTime     time.Duration
	holdout          map[string]float64
	fixturesPassed   int
	fixturesFailed   int
}

func (m *MockMetrics) MLPredictionsInc(label int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions++
	if m.labels == nil {
		m.labels = make(map[int]int)
	}
	m.labels[label]++
}

func (m *MockMetrics) MLFailuresInc(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures == nil {
		m.failures = make(map[string]int)
	}
	m.failures[reason]++
}

func (m *MockMetrics) MLLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += v
}

func (m *MockMetrics) MLPredictionScoresObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictionScores = append(m.predictionScores, v)
}

func (m *MockMetrics) MLTimeoutsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeouts++
}

func (m *MockMetrics) MLModelAgeSet(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelAge = v
}

func (m *MockMetrics) MLScoreDriftSet(method string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.drift == nil {
		m.drift = make(map[string]float64)
	}
	m.drift[method] = v
}

func (m *MockMetrics) MLTrainingRunsInc(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.trainingRuns == nil {
		m.trainingRuns = make(map[string]int)
	}
	m.trainingRuns[status]++
}

func (m *MockMetrics) MLTrainingDurationObserve(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trainingTime += d
}

func (m *MockMetrics) MLHoldoutScoreSet(metric string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.holdout == nil {
		m.holdout = make(map[string]float64)
	}
	m.holdout[metric] = v
}

func (m *MockMetrics) MLFixtureChecksInc(passed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if passed {
		m.fixturesPassed++
	} else {
		m.fixturesFailed++
	}
}

func (m *MockMetrics) Predictions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.predictions
}

func (m *MockMetrics) Failures(reason string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures[reason]
}

func (m *MockMetrics) TrainingRuns(status string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trainingRuns[status]
}

func (m *MockMetrics) HoldoutScore(metric string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.holdout[metric]
	return v, ok
}

func (m *MockMetrics) FixtureChecks() (passed, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fixturesPassed, m.fixturesFailed
}

func (m *MockMetrics) Drift(method string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.drift[method]
	return v, ok
}
