package features

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// OutputDistribution is the target distribution of a quantile transform.
type OutputDistribution string

const (
	OutputNormal  OutputDistribution = "normal"
	OutputUniform OutputDistribution = "uniform"
)

const (
	DefaultNQuantiles = 1000
	DefaultSubsample  = 100_000
	DefaultSeed       = 42

	// boundsThreshold keeps percentiles away from 0 and 1 so the normal
	// inverse CDF stays finite.
	boundsThreshold = 1e-7
)

var (
	// spacing is the distance from 1.0 to the next float64.
	spacing = math.Nextafter(1, 2) - 1

	normalLow  = distuv.UnitNormal.Quantile(boundsThreshold - spacing)
	normalHigh = distuv.UnitNormal.Quantile(1 - (boundsThreshold - spacing))
)

// QuantileConfig parameterizes a QuantileNormalizer.
type QuantileConfig struct {
	NQuantiles int                `yaml:"nQuantiles" json:"n_quantiles"`
	Output     OutputDistribution `yaml:"outputDistribution" json:"output_distribution"`
	Subsample  int                `yaml:"subsample" json:"subsample"`
	Seed       int64              `yaml:"seed" json:"seed"`
}

// DefaultQuantileConfig returns the configuration used in production.
func DefaultQuantileConfig() QuantileConfig {
	return QuantileConfig{
		NQuantiles: DefaultNQuantiles,
		Output:     OutputNormal,
		Subsample:  DefaultSubsample,
		Seed:       DefaultSeed,
	}
}

// Validate checks the configuration values.
func (c QuantileConfig) Validate() error {
	if c.NQuantiles < 2 {
		return fmt.Errorf("n_quantiles must be at least 2, got %d", c.NQuantiles)
	}
	if c.Subsample < c.NQuantiles {
		return fmt.Errorf("subsample (%d) must not be smaller than n_quantiles (%d)", c.Subsample, c.NQuantiles)
	}
	switch c.Output {
	case OutputNormal, OutputUniform:
	default:
		return fmt.Errorf("unknown output distribution %q", c.Output)
	}
	return nil
}

// QuantileState is the fitted, serializable mapping of one column.
type QuantileState struct {
	Output     OutputDistribution `json:"output_distribution"`
	Quantiles  []float64          `json:"quantiles"`
	References []float64          `json:"references"`
}

// QuantileNormalizer maps values through the empirical CDF of a training
// column onto a target distribution. Once fitted it is read-only and safe
// for concurrent Transform calls.
type QuantileNormalizer struct {
	cfg   QuantileConfig
	state *QuantileState

	// Negated and reversed copies for the backward interpolation.
	negQ   []float64
	negRef []float64
}

// NewQuantileNormalizer returns an unfitted normalizer.
func NewQuantileNormalizer(cfg QuantileConfig) *QuantileNormalizer {
	return &QuantileNormalizer{cfg: cfg}
}

// NewQuantileNormalizerFromState rebuilds a fitted normalizer from a
// persisted state.
func NewQuantileNormalizerFromState(s QuantileState) (*QuantileNormalizer, error) {
	if len(s.Quantiles) < 2 || len(s.Quantiles) != len(s.References) {
		return nil, fmt.Errorf("quantile state: need at least 2 matching quantiles and references, got %d and %d",
			len(s.Quantiles), len(s.References))
	}
	for i := 1; i < len(s.Quantiles); i++ {
		if s.Quantiles[i] < s.Quantiles[i-1] || s.References[i] <= s.References[i-1] {
			return nil, fmt.Errorf("quantile state: boundaries not monotonic at index %d", i)
		}
	}
	if s.Output != OutputNormal && s.Output != OutputUniform {
		return nil, fmt.Errorf("quantile state: unknown output distribution %q", s.Output)
	}

	q := &QuantileNormalizer{
		cfg: QuantileConfig{NQuantiles: len(s.Quantiles), Output: s.Output},
		state: &QuantileState{
			Output:     s.Output,
			Quantiles:  append([]float64(nil), s.Quantiles...),
			References: append([]float64(nil), s.References...),
		},
	}
	q.prepare()
	return q, nil
}

// Fitted reports whether Fit or a state load has completed.
func (q *QuantileNormalizer) Fitted() bool { return q.state != nil }

// State returns a copy of the fitted mapping.
func (q *QuantileNormalizer) State() (QuantileState, error) {
	if q.state == nil {
		return QuantileState{}, ErrNotFitted
	}
	return QuantileState{
		Output:     q.state.Output,
		Quantiles:  append([]float64(nil), q.state.Quantiles...),
		References: append([]float64(nil), q.state.References...),
	}, nil
}

// Fit learns quantile boundaries from a training column. The input slice is
// not modified. Columns with fewer than two values, non-finite values or no
// spread are rejected.
func (q *QuantileNormalizer) Fit(values []float64) error {
	if err := q.cfg.Validate(); err != nil {
		return err
	}
	if len(values) < 2 {
		return fmt.Errorf("%w: need at least 2 values, got %d", ErrDegenerateColumn, len(values))
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value at row %d", ErrDegenerateColumn, i)
		}
	}
	if floats.Max(values)-floats.Min(values) == 0 {
		return fmt.Errorf("%w: all %d values equal %v", ErrDegenerateColumn, len(values), values[0])
	}

	sample := values
	if len(values) > q.cfg.Subsample {
		rng := rand.New(rand.NewSource(q.cfg.Seed))
		idx := rng.Perm(len(values))[:q.cfg.Subsample]
		sample = make([]float64, len(idx))
		for i, j := range idx {
			sample[i] = values[j]
		}
	}

	sorted := append([]float64(nil), sample...)
	sort.Float64s(sorted)

	k := q.cfg.NQuantiles
	if k > len(sorted) {
		k = len(sorted)
	}

	refs := make([]float64, k)
	quantiles := make([]float64, k)
	for i := range refs {
		refs[i] = float64(i) / float64(k-1)
	}
	refs[k-1] = 1

	for i, p := range refs {
		quantiles[i] = percentile(sorted, p)
		if i > 0 && quantiles[i] < quantiles[i-1] {
			quantiles[i] = quantiles[i-1]
		}
	}

	q.state = &QuantileState{Output: q.cfg.Output, Quantiles: quantiles, References: refs}
	q.prepare()
	return nil
}

func (q *QuantileNormalizer) prepare() {
	n := len(q.state.Quantiles)
	q.negQ = make([]float64, n)
	q.negRef = make([]float64, n)
	for i := 0; i < n; i++ {
		q.negQ[i] = -q.state.Quantiles[n-1-i]
		q.negRef[i] = -q.state.References[n-1-i]
	}
}

// Transform maps one value onto the target distribution. Values outside the
// fitted range are clamped to the boundary outputs.
func (q *QuantileNormalizer) Transform(x float64) (float64, error) {
	if q.state == nil {
		return 0, ErrNotFitted
	}
	if math.IsNaN(x) {
		return 0, fmt.Errorf("cannot transform NaN")
	}

	qs, refs := q.state.Quantiles, q.state.References
	var p float64
	switch {
	case x-boundsThreshold < qs[0]:
		p = 0
	case x+boundsThreshold > qs[len(qs)-1]:
		p = 1
	default:
		// Averaging both directions places tied boundaries at the middle
		// of their rank range.
		p = 0.5 * (interp(x, qs, refs) - interp(-x, q.negQ, q.negRef))
	}

	if q.state.Output == OutputUniform {
		return p, nil
	}
	switch {
	case p <= boundsThreshold-spacing:
		return normalLow, nil
	case p >= 1-(boundsThreshold-spacing):
		return normalHigh, nil
	}
	return distuv.UnitNormal.Quantile(p), nil
}

// percentile returns the linearly interpolated p-quantile (0 <= p <= 1) of
// an ascending slice.
func percentile(sorted []float64, p float64) float64 {
	h := p * float64(len(sorted)-1)
	lo := math.Floor(h)
	i := int(lo)
	if i >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	t := h - lo
	a, b := sorted[i], sorted[i+1]
	if t >= 0.5 {
		return b - (b-a)*(1-t)
	}
	return a + (b-a)*t
}

// interp is piecewise-linear interpolation over ascending xp. Values outside
// the range take the edge values; ties resolve to the last matching point.
func interp(x float64, xp, fp []float64) float64 {
	n := len(xp)
	if x < xp[0] {
		return fp[0]
	}
	if x > xp[n-1] {
		return fp[n-1]
	}
	j := sort.Search(n, func(i int) bool { return xp[i] > x }) - 1
	if j == n-1 || xp[j] == x {
		return fp[j]
	}
	slope := (fp[j+1] - fp[j]) / (xp[j+1] - xp[j])
	return slope*(x-xp[j]) + fp[j]
}
