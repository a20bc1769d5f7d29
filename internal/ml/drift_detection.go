package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"
)

// Drift methods reported to MLScoreDriftSet.
const (
	DriftMethodKS  = "kolmogorov_smirnov"
	DriftMethodPSI = "population_stability_index"
)

// psiFloor stands in for empty bins so the log ratio stays finite.
const psiFloor = 1e-4

// DriftBaseline is the holdout probability distribution of one model.
type DriftBaseline struct {
	ModelVersion string    `json:"model_version"`
	CreatedAt    time.Time `json:"created_at"`
	Scores       []float64 `json:"scores"` // ascending
}

// NewDriftBaseline copies and sorts the holdout probabilities.
func NewDriftBaseline(modelVersion string, proba []float64) DriftBaseline {
	scores := append([]float64(nil), proba...)
	sort.Float64s(scores)
	return DriftBaseline{ModelVersion: modelVersion, CreatedAt: time.Now().UTC(), Scores: scores}
}

// SaveDriftBaseline writes b as JSON, replacing path atomically.
func SaveDriftBaseline(path string, b DriftBaseline) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

// LoadDriftBaseline reads a baseline written by SaveDriftBaseline.
func LoadDriftBaseline(path string) (DriftBaseline, error) {
	var b DriftBaseline
	data, err := os.ReadFile(path)
	if err != nil {
		return b, err
	}
	if err := json.Unmarshal(data, &b); err != nil {
		return b, fmt.Errorf("decode drift baseline %s: %w", path, err)
	}
	if !sort.Float64sAreSorted(b.Scores) {
		sort.Float64s(b.Scores)
	}
	return b, nil
}

// DriftConfig configures score drift monitoring
type DriftConfig struct {
	WindowSize int     `yaml:"windowSize" json:"window_size"`
	MinSamples int     `yaml:"minSamples" json:"min_samples"`
	Bins       int     `yaml:"bins" json:"bins"`
	Threshold  float64 `yaml:"threshold" json:"threshold"` // PSI alert level
}

// DefaultDriftConfig returns the monitoring defaults.
func DefaultDriftConfig() DriftConfig {
	return DriftConfig{WindowSize: 1000, MinSamples: 30, Bins: 10, Threshold: 0.2}
}

// Validate checks the monitoring settings.
func (c DriftConfig) Validate() error {
	switch {
	case c.WindowSize < 1:
		return fmt.Errorf("drift window size must be positive, got %d", c.WindowSize)
	case c.MinSamples < 1 || c.MinSamples > c.WindowSize:
		return fmt.Errorf("drift min samples must be in [1, %d], got %d", c.WindowSize, c.MinSamples)
	case c.Bins < 2:
		return fmt.Errorf("drift bins must be at least 2, got %d", c.Bins)
	case c.Threshold <= 0:
		return fmt.Errorf("drift threshold must be positive, got %v", c.Threshold)
	}
	return nil
}

// DriftStatus compares the served score window with the baseline.
type DriftStatus struct {
	ModelVersion    string  `json:"model_version"`
	BaselineSamples int     `json:"baseline_samples"`
	WindowSamples   int     `json:"window_samples"`
	KS              float64 `json:"ks_statistic"`
	PSI             float64 `json:"psi"`
	Threshold       float64 `json:"threshold"`
	Severity        string  `json:"severity"`
	Ready           bool    `json:"ready"`
}

// DriftMonitor keeps a rolling window of served probabilities and measures
// how far it has moved from the training-time holdout distribution.
type DriftMonitor struct {
	mu       sync.Mutex
	cfg      DriftConfig
	baseline DriftBaseline
	edges    []float64
	window   []float64
	next     int
	metrics  MetricsInterface
}

// NewDriftMonitor builds a monitor over a non-empty baseline.
func NewDriftMonitor(baseline DriftBaseline, cfg DriftConfig, metrics MetricsInterface) (*DriftMonitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(baseline.Scores) < cfg.MinSamples {
		return nil, fmt.Errorf("drift baseline has %d scores, need at least %d", len(baseline.Scores), cfg.MinSamples)
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &DriftMonitor{
		cfg:      cfg,
		baseline: baseline,
		edges:    binEdges(baseline.Scores, cfg.Bins),
		window:   make([]float64, 0, cfg.WindowSize),
		metrics:  metrics,
	}, nil
}

// Observe adds one served probability, evicting the oldest once the window
// is full.
func (dm *DriftMonitor) Observe(p float64) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if len(dm.window) < dm.cfg.WindowSize {
		dm.window = append(dm.window, p)
		return
	}
	dm.window[dm.next] = p
	dm.next = (dm.next + 1) % dm.cfg.WindowSize
}

// Status computes both drift statistics and publishes them as metrics.
// Until MinSamples scores have been observed it reports zero drift.
func (dm *DriftMonitor) Status() DriftStatus {
	dm.mu.Lock()
	current := slices.Clone(dm.window)
	dm.mu.Unlock()

	st := DriftStatus{
		ModelVersion:    dm.baseline.ModelVersion,
		BaselineSamples: len(dm.baseline.Scores),
		WindowSamples:   len(current),
		Threshold:       dm.cfg.Threshold,
		Severity:        "none",
	}
	if len(current) < dm.cfg.MinSamples {
		return st
	}

	sort.Float64s(current)
	st.Ready = true
	st.KS = stat.KolmogorovSmirnov(dm.baseline.Scores, nil, current, nil)
	st.PSI = populationStabilityIndex(dm.edges, dm.baseline.Scores, current)
	st.Severity = severity(st.PSI, dm.cfg.Threshold)

	dm.metrics.MLScoreDriftSet(DriftMethodKS, st.KS)
	dm.metrics.MLScoreDriftSet(DriftMethodPSI, st.PSI)
	if st.Severity != "none" {
		log.Warn().
			Str("severity", st.Severity).
			Float64("psi", st.PSI).
			Float64("ks", st.KS).
			Int("window", st.WindowSamples).
			Msg("Served score distribution drifted from training baseline")
	}
	return st
}

// Reset drops the served window and keeps the baseline.
func (dm *DriftMonitor) Reset() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.window = dm.window[:0]
	dm.next = 0
}

// binEdges splits sorted baseline scores into equal-population bins.
func binEdges(sorted []float64, bins int) []float64 {
	var edges []float64
	for i := 1; i < bins; i++ {
		q := stat.Quantile(float64(i)/float64(bins), stat.Empirical, sorted, nil)
		if len(edges) == 0 || q > edges[len(edges)-1] {
			edges = append(edges, q)
		}
	}
	return edges
}

func binShares(edges, values []float64) []float64 {
	counts := make([]float64, len(edges)+1)
	for _, v := range values {
		counts[sort.SearchFloat64s(edges, v)]++
	}
	for i := range counts {
		counts[i] = math.Max(counts[i]/float64(len(values)), psiFloor)
	}
	return counts
}

func populationStabilityIndex(edges, baseline, current []float64) float64 {
	b := binShares(edges, baseline)
	c := binShares(edges, current)
	var psi float64
	for i := range b {
		psi += (c[i] - b[i]) * math.Log(c[i]/b[i])
	}
	return psi
}

func severity(score, threshold float64) string {
	switch {
	case score > threshold*3:
		return "critical"
	case score > threshold*2:
		return "high"
	case score > threshold:
		return "medium"
	}
	return "none"
}
