package ml

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// Eval metrics accepted by BoostingParams.
const (
	EvalMetricF1      = "F1"
	EvalMetricLogloss = "Logloss"
)

const (
	boostedTreesFormatVersion = 1
	decisionThreshold         = 0.5
	leafNode                  = -1
)

// BoostingParams configures gradient boosting with logloss.
type BoostingParams struct {
	Iterations          int     `yaml:"iterations" json:"iterations"`
	LearningRate        float64 `yaml:"learningRate" json:"learning_rate"`
	Depth               int     `yaml:"depth" json:"depth"`
	L2LeafReg           float64 `yaml:"l2LeafReg" json:"l2_leaf_reg"`
	BorderCount         int     `yaml:"borderCount" json:"border_count"`
	EarlyStoppingRounds int     `yaml:"earlyStoppingRounds" json:"early_stopping_rounds"`
	EvalMetric          string  `yaml:"evalMetric" json:"eval_metric"`
	MinDataInLeaf       int     `yaml:"minDataInLeaf" json:"min_data_in_leaf"`
}

// DefaultBoostingParams returns the tuned production parameters.
func DefaultBoostingParams() BoostingParams {
	return BoostingParams{
		Iterations:          1000,
		LearningRate:        0.151,
		Depth:               6,
		L2LeafReg:           7.8457,
		BorderCount:         32,
		EarlyStoppingRounds: 30,
		EvalMetric:          EvalMetricF1,
		MinDataInLeaf:       1,
	}
}

// Validate range-checks the parameters.
func (p BoostingParams) Validate() error {
	switch {
	case p.Iterations < 1:
		return fmt.Errorf("iterations must be positive, got %d", p.Iterations)
	case p.LearningRate <= 0 || p.LearningRate > 1:
		return fmt.Errorf("learning rate must be in (0, 1], got %v", p.LearningRate)
	case p.Depth < 1 || p.Depth > 16:
		return fmt.Errorf("depth must be between 1 and 16, got %d", p.Depth)
	case p.L2LeafReg < 0:
		return fmt.Errorf("l2 leaf regularization must not be negative, got %v", p.L2LeafReg)
	case p.BorderCount < 1 || p.BorderCount > 255:
		return fmt.Errorf("border count must be between 1 and 255, got %d", p.BorderCount)
	case p.EarlyStoppingRounds < 0:
		return fmt.Errorf("early stopping rounds must not be negative, got %d", p.EarlyStoppingRounds)
	case p.MinDataInLeaf < 1:
		return fmt.Errorf("min data in leaf must be positive, got %d", p.MinDataInLeaf)
	}
	switch p.EvalMetric {
	case EvalMetricF1, EvalMetricLogloss:
	default:
		return fmt.Errorf("unknown eval metric %q", p.EvalMetric)
	}
	return nil
}

type treeNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
	Value     float64 `json:"value,omitempty"`
}

// regressionTree sends x[Feature] <= Threshold left. Node 0 is the root.
type regressionTree struct {
	Nodes []treeNode `json:"nodes"`
}

func (t regressionTree) eval(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature == leafNode {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// BoostedTrees is a fitted logloss gradient-boosted tree ensemble.
// It is immutable and safe for concurrent use.
type BoostedTrees struct {
	version       string
	names         []string
	fingerprint   string
	params        BoostingParams
	baseScore     float64
	bestIteration int
	trees         []regressionTree
}

type boostedTreesArtifact struct {
	FormatVersion int              `json:"format_version"`
	Version       string           `json:"version,omitempty"`
	FeatureNames  []string         `json:"feature_names"`
	Fingerprint   string           `json:"preprocessor_fingerprint"`
	Params        BoostingParams   `json:"params"`
	BaseScore     float64          `json:"base_score"`
	BestIteration int              `json:"best_iteration"`
	Trees         []regressionTree `json:"trees"`
}

func (m *BoostedTrees) FeatureNames() []string          { return append([]string(nil), m.names...) }
func (m *BoostedTrees) PreprocessorFingerprint() string { return m.fingerprint }
func (m *BoostedTrees) Version() string                 { return m.version }
func (m *BoostedTrees) TreeCount() int                  { return len(m.trees) }
func (m *BoostedTrees) BestIteration() int              { return m.bestIteration }
func (m *BoostedTrees) Params() BoostingParams          { return m.params }

func (m *BoostedTrees) rawScore(x []float64) float64 {
	s := m.baseScore
	for _, t := range m.trees {
		s += t.eval(x)
	}
	return s
}

// PredictProba returns the positive-class probability of each row.
func (m *BoostedTrees) PredictProba(x [][]float64) ([]float64, error) {
	if len(m.names) == 0 {
		return nil, ErrModelNotTrained
	}
	if err := checkWidth(x, len(m.names)); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = sigmoid(m.rawScore(row))
	}
	return out, nil
}

// Predict labels a row 1 when its probability exceeds one half.
func (m *BoostedTrees) Predict(x [][]float64) ([]int, error) {
	proba, err := m.PredictProba(x)
	if err != nil {
		return nil, err
	}
	labels := make([]int, len(proba))
	for i, p := range proba {
		if p > decisionThreshold {
			labels[i] = 1
		}
	}
	return labels, nil
}

func (m *BoostedTrees) artifact() boostedTreesArtifact {
	return boostedTreesArtifact{
		FormatVersion: boostedTreesFormatVersion,
		Version:       m.version,
		FeatureNames:  m.names,
		Fingerprint:   m.fingerprint,
		Params:        m.params,
		BaseScore:     m.baseScore,
		BestIteration: m.bestIteration,
		Trees:         m.trees,
	}
}

// Save writes the model as a JSON artifact.
func (m *BoostedTrees) Save(w io.Writer) error {
	if len(m.names) == 0 {
		return ErrModelNotTrained
	}
	enc := json.NewEncoder(w)
	return enc.Encode(m.artifact())
}

// contentVersion derives the model version from its content, so that
// identical training runs yield identical versions.
func (m *BoostedTrees) contentVersion() (string, error) {
	a := m.artifact()
	a.Version = ""
	data, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("marshal model: %w", err)
	}
	sum := sha256.Sum256(data)
	return "gbdt-" + hex.EncodeToString(sum[:6]), nil
}

// LoadBoostedTrees reads a model written by Save.
func LoadBoostedTrees(r io.Reader) (*BoostedTrees, error) {
	var a boostedTreesArtifact
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("decode model artifact: %w", err)
	}
	if a.FormatVersion != boostedTreesFormatVersion {
		return nil, fmt.Errorf("unsupported model format version %d", a.FormatVersion)
	}
	if len(a.FeatureNames) == 0 {
		return nil, fmt.Errorf("model artifact has no feature names: %w", ErrModelNotTrained)
	}
	for ti, t := range a.Trees {
		if err := t.validate(len(a.FeatureNames)); err != nil {
			return nil, fmt.Errorf("model artifact tree %d: %w", ti, err)
		}
	}

	m := &BoostedTrees{
		version:       a.Version,
		names:         a.FeatureNames,
		fingerprint:   a.Fingerprint,
		params:        a.Params,
		baseScore:     a.BaseScore,
		bestIteration: a.BestIteration,
		trees:         a.Trees,
	}
	if m.version == "" {
		v, err := m.contentVersion()
		if err != nil {
			return nil, err
		}
		m.version = v
	}
	return m, nil
}

// validate rejects trees whose traversal could index out of range or loop.
func (t regressionTree) validate(width int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("empty tree")
	}
	for i, n := range t.Nodes {
		if n.Feature == leafNode {
			continue
		}
		if n.Feature < 0 || n.Feature >= width {
			return fmt.Errorf("node %d splits on feature %d of %d", i, n.Feature, width)
		}
		if n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d has invalid children %d, %d", i, n.Left, n.Right)
		}
	}
	return nil
}

// BoostedTreesTrainer fits BoostedTrees models.
type BoostedTreesTrainer struct {
	params BoostingParams
}

// NewBoostedTreesTrainer validates params and returns a trainer.
func NewBoostedTreesTrainer(params BoostingParams) (*BoostedTreesTrainer, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &BoostedTreesTrainer{params: params}, nil
}

// Fit implements Trainer.
func (t *BoostedTreesTrainer) Fit(ctx context.Context, train, eval Dataset) (Model, error) {
	return t.FitTrees(ctx, train, eval)
}

// FitTrees boosts trees on train, stopping early once the eval metric has
// not improved for EarlyStoppingRounds iterations. The returned model is
// truncated to the best iteration. Identical inputs give identical models.
func (t *BoostedTreesTrainer) FitTrees(ctx context.Context, train, eval Dataset) (*BoostedTrees, error) {
	p := t.params
	if err := train.Validate(); err != nil {
		return nil, fmt.Errorf("train set: %w", err)
	}
	if train.Len() < 2 {
		return nil, fmt.Errorf("train set needs at least 2 rows, got %d", train.Len())
	}
	if len(train.Names) == 0 {
		return nil, fmt.Errorf("train set has no features")
	}
	if eval.Len() > 0 {
		if err := eval.Validate(); err != nil {
			return nil, fmt.Errorf("eval set: %w", err)
		}
		if !slices.Equal(train.Names, eval.Names) {
			return nil, fmt.Errorf("eval set columns differ from train set columns")
		}
	}

	positives := 0
	for _, y := range train.Y {
		positives += y
	}
	if positives == 0 || positives == train.Len() {
		return nil, fmt.Errorf("train set must contain both classes, got %d positives in %d rows", positives, train.Len())
	}

	start := time.Now()
	rate := float64(positives) / float64(train.Len())
	base := math.Log(rate / (1 - rate))

	b := newTreeBuilder(train.X, len(train.Names), p)
	n := train.Len()
	score := make([]float64, n)
	for i := range score {
		score[i] = base
	}
	evalScore := make([]float64, eval.Len())
	for i := range evalScore {
		evalScore[i] = base
	}

	g := make([]float64, n)
	h := make([]float64, n)
	var trees []regressionTree
	bestIter := -1
	bestMetric := 0.0

	for it := 0; it < p.Iterations; it++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("training cancelled at iteration %d: %w", it, err)
		}

		for i := range score {
			pr := sigmoid(score[i])
			g[i] = pr - float64(train.Y[i])
			h[i] = pr * (1 - pr)
		}
		tree := b.build(g, h)
		trees = append(trees, tree)
		for i, row := range train.X {
			score[i] += tree.eval(row)
		}

		if eval.Len() == 0 {
			bestIter = it
			continue
		}
		for i, row := range eval.X {
			evalScore[i] += tree.eval(row)
		}
		m := evalMetric(p.EvalMetric, eval.Y, evalScore)
		if bestIter < 0 || improves(p.EvalMetric, m, bestMetric) {
			bestIter, bestMetric = it, m
		} else if p.EarlyStoppingRounds > 0 && it-bestIter >= p.EarlyStoppingRounds {
			log.Debug().Int("iteration", it).Int("best_iteration", bestIter).Msg("Early stopping")
			break
		}
		if it%100 == 0 {
			log.Debug().Int("iteration", it).Str("metric", p.EvalMetric).Float64("value", m).Msg("Boosting progress")
		}
	}

	model := &BoostedTrees{
		names:         append([]string(nil), train.Names...),
		fingerprint:   train.Fingerprint,
		params:        p,
		baseScore:     base,
		bestIteration: bestIter,
		trees:         trees[:bestIter+1],
	}
	v, err := model.contentVersion()
	if err != nil {
		return nil, err
	}
	model.version = v

	ev := log.Info().
		Int("rows", n).
		Int("features", len(train.Names)).
		Int("trees", len(model.trees)).
		Int("best_iteration", bestIter).
		Dur("duration", time.Since(start)).
		Str("version", v)
	if eval.Len() > 0 {
		ev = ev.Str("eval_metric", p.EvalMetric).Float64("best_eval", bestMetric)
	}
	ev.Msg("Boosted trees fitted")

	return model, nil
}

// treeBuilder grows depth-limited regression trees over pre-binned
// features. Split candidates are the per-feature borders.
type treeBuilder struct {
	params  BoostingParams
	x       [][]float64
	borders [][]float64
	bins    [][]uint8 // feature-major
}

func newTreeBuilder(x [][]float64, width int, p BoostingParams) *treeBuilder {
	b := &treeBuilder{
		params:  p,
		x:       x,
		borders: make([][]float64, width),
		bins:    make([][]uint8, width),
	}
	col := make([]float64, len(x))
	for f := 0; f < width; f++ {
		for i, row := range x {
			col[i] = row[f]
		}
		b.borders[f] = computeBorders(col, p.BorderCount)
		bins := make([]uint8, len(x))
		for i, v := range col {
			bins[i] = uint8(sort.SearchFloat64s(b.borders[f], v))
		}
		b.bins[f] = bins
	}
	return b
}

// computeBorders returns ascending split thresholds for one column: the
// midpoints between distinct values when there are few of them, otherwise
// evenly spaced quantiles.
func computeBorders(col []float64, maxBorders int) []float64 {
	sorted := append([]float64(nil), col...)
	sort.Float64s(sorted)

	unique := make([]float64, 0, len(sorted))
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			unique = append(unique, v)
		}
	}
	if len(unique) < 2 {
		return nil
	}

	var borders []float64
	if len(unique)-1 <= maxBorders {
		for i := 1; i < len(unique); i++ {
			borders = append(borders, unique[i-1]+(unique[i]-unique[i-1])/2)
		}
		return borders
	}

	maxValue := unique[len(unique)-1]
	for i := 1; i <= maxBorders; i++ {
		q := sorted[i*len(sorted)/(maxBorders+1)]
		if q >= maxValue {
			break
		}
		if len(borders) == 0 || q > borders[len(borders)-1] {
			borders = append(borders, q)
		}
	}
	return borders
}

func (b *treeBuilder) build(g, h []float64) regressionTree {
	idx := make([]int, len(g))
	for i := range idx {
		idx[i] = i
	}
	var t regressionTree
	b.grow(&t, idx, 0, g, h)
	return t
}

func (b *treeBuilder) grow(t *regressionTree, idx []int, depth int, g, h []float64) int {
	var sumG, sumH float64
	for _, i := range idx {
		sumG += g[i]
		sumH += h[i]
	}
	node := len(t.Nodes)
	t.Nodes = append(t.Nodes, treeNode{Feature: leafNode, Value: b.leafValue(sumG, sumH)})

	if depth >= b.params.Depth || len(idx) < 2*b.params.MinDataInLeaf {
		return node
	}

	lambda := b.params.L2LeafReg
	parent := gainTerm(sumG, sumH, lambda)
	bestGain, bestFeature, bestBin := 1e-12, -1, -1

	var histG, histH [256]float64
	var histN [256]int
	for f, borders := range b.borders {
		nb := len(borders) + 1
		if nb < 2 {
			continue
		}
		for k := 0; k < nb; k++ {
			histG[k], histH[k], histN[k] = 0, 0, 0
		}
		bins := b.bins[f]
		for _, i := range idx {
			k := bins[i]
			histG[k] += g[i]
			histH[k] += h[i]
			histN[k]++
		}

		var gl, hl float64
		nl := 0
		for k := 0; k < nb-1; k++ {
			gl += histG[k]
			hl += histH[k]
			nl += histN[k]
			nr := len(idx) - nl
			if nl < b.params.MinDataInLeaf {
				continue
			}
			if nr < b.params.MinDataInLeaf {
				break
			}
			gain := gainTerm(gl, hl, lambda) + gainTerm(sumG-gl, sumH-hl, lambda) - parent
			if gain > bestGain {
				bestGain, bestFeature, bestBin = gain, f, k
			}
		}
	}
	if bestFeature < 0 {
		return node
	}

	var left, right []int
	bins := b.bins[bestFeature]
	for _, i := range idx {
		if int(bins[i]) <= bestBin {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.grow(t, left, depth+1, g, h)
	r := b.grow(t, right, depth+1, g, h)
	t.Nodes[node] = treeNode{
		Feature:   bestFeature,
		Threshold: b.borders[bestFeature][bestBin],
		Left:      l,
		Right:     r,
	}
	return node
}

func (b *treeBuilder) leafValue(sumG, sumH float64) float64 {
	denom := sumH + b.params.L2LeafReg
	if denom <= 0 {
		return 0
	}
	return -b.params.LearningRate * sumG / denom
}

func gainTerm(g, h, lambda float64) float64 {
	if h+lambda <= 0 {
		return 0
	}
	return g * g / (h + lambda)
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// softplus is log(1 + e^z) without overflow.
func softplus(z float64) float64 {
	return math.Max(z, 0) + math.Log1p(math.Exp(-math.Abs(z)))
}

func evalMetric(metric string, y []int, raw []float64) float64 {
	switch metric {
	case EvalMetricLogloss:
		var sum float64
		for i, z := range raw {
			if y[i] == 1 {
				sum += softplus(-z)
			} else {
				sum += softplus(z)
			}
		}
		return sum / float64(len(raw))
	default:
		pred := make([]int, len(raw))
		for i, z := range raw {
			if sigmoid(z) > decisionThreshold {
				pred[i] = 1
			}
		}
		return confusion(y, pred).F1()
	}
}

func improves(metric string, candidate, best float64) bool {
	if metric == EvalMetricLogloss {
		return candidate < best
	}
	return candidate > best
}
