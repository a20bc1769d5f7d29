package ml

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniformScores(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = float64(i) / float64(n)
	}
	return s
}

func TestDriftConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultDriftConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*DriftConfig)
	}{
		{"empty window", func(c *DriftConfig) { c.WindowSize = 0 }},
		{"min above window", func(c *DriftConfig) { c.MinSamples = c.WindowSize + 1 }},
		{"zero min", func(c *DriftConfig) { c.MinSamples = 0 }},
		{"one bin", func(c *DriftConfig) { c.Bins = 1 }},
		{"zero threshold", func(c *DriftConfig) { c.Threshold = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultDriftConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNewDriftMonitor_NeedsBaseline(t *testing.T) {
	_, err := NewDriftMonitor(NewDriftBaseline("v", uniformScores(5)), DefaultDriftConfig(), nil)
	assert.ErrorContains(t, err, "need at least 30")
}

func TestDriftMonitor_NotReadyBelowMinSamples(t *testing.T) {
	dm, err := NewDriftMonitor(NewDriftBaseline("v", uniformScores(100)), DefaultDriftConfig(), nil)
	require.NoError(t, err)
	for i := 0; i < 29; i++ {
		dm.Observe(0.99)
	}
	st := dm.Status()
	assert.False(t, st.Ready)
	assert.Equal(t, 29, st.WindowSamples)
	assert.Equal(t, "none", st.Severity)
	assert.Zero(t, st.PSI)
}

func TestDriftMonitor_SameDistribution(t *testing.T) {
	metrics := &MockMetrics{}
	baseline := uniformScores(100)
	dm, err := NewDriftMonitor(NewDriftBaseline("v1", baseline), DefaultDriftConfig(), metrics)
	require.NoError(t, err)

	// Served in a different order than the baseline.
	for i := len(baseline) - 1; i >= 0; i-- {
		dm.Observe(baseline[i])
	}
	st := dm.Status()
	assert.True(t, st.Ready)
	assert.Equal(t, "v1", st.ModelVersion)
	assert.InDelta(t, 0, st.KS, 1e-12)
	assert.InDelta(t, 0, st.PSI, 1e-12)
	assert.Equal(t, "none", st.Severity)

	psi, ok := metrics.Drift(DriftMethodPSI)
	assert.True(t, ok)
	assert.InDelta(t, 0, psi, 1e-12)
}

func TestDriftMonitor_ShiftedScores(t *testing.T) {
	metrics := &MockMetrics{}
	dm, err := NewDriftMonitor(NewDriftBaseline("v1", uniformScores(100)), DefaultDriftConfig(), metrics)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		dm.Observe(0.995)
	}
	st := dm.Status()
	assert.Greater(t, st.KS, 0.9)
	assert.Greater(t, st.PSI, 3*st.Threshold)
	assert.Equal(t, "critical", st.Severity)

	ks, ok := metrics.Drift(DriftMethodKS)
	assert.True(t, ok)
	assert.Equal(t, st.KS, ks)

	dm.Reset()
	assert.Equal(t, 0, dm.Status().WindowSamples)
}

func TestDriftMonitor_WindowEvictsOldest(t *testing.T) {
	cfg := DefaultDriftConfig()
	cfg.WindowSize = 100
	baseline := uniformScores(100)
	dm, err := NewDriftMonitor(NewDriftBaseline("v1", baseline), cfg, nil)
	require.NoError(t, err)

	for i := 0; i < 250; i++ {
		dm.Observe(0.995)
	}
	for _, s := range baseline {
		dm.Observe(s)
	}
	st := dm.Status()
	assert.Equal(t, 100, st.WindowSamples)
	assert.InDelta(t, 0, st.PSI, 1e-12)
	assert.InDelta(t, 0, st.KS, 1e-12)
}

func TestDriftBaseline_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drift_baseline.json")
	b := NewDriftBaseline("gbdt-abc", []float64{0.7, 0.1, 0.4})
	assert.Equal(t, []float64{0.1, 0.4, 0.7}, b.Scores)

	require.NoError(t, SaveDriftBaseline(path, b))
	got, err := LoadDriftBaseline(path)
	require.NoError(t, err)
	assert.Equal(t, b.ModelVersion, got.ModelVersion)
	assert.Equal(t, b.Scores, got.Scores)
	assert.True(t, b.CreatedAt.Equal(got.CreatedAt))

	_, err = LoadDriftBaseline(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestSeverity(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0.1, "none"},
		{0.2, "none"},
		{0.3, "medium"},
		{0.5, "high"},
		{0.7, "critical"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, severity(tt.score, 0.2), "score %v", tt.score)
	}
}
