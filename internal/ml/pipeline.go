package ml

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-risk/internal/features"
	"wallet-risk/internal/wallet"

	"golang.org/x/sync/errgroup"
)

// MetricsInterface defines the metrics the scoring and training code emits.
type MetricsInterface interface {
	MLPredictionsInc(label int)
	MLFailuresInc(reason string)
	MLLatencyObserve(seconds float64)
	MLPredictionScoresObserve(p float64)
	MLTimeoutsInc()
	MLModelAgeSet(seconds float64)
	MLScoreDriftSet(method string, v float64)
	MLTrainingRunsInc(status string)
	MLTrainingDurationObserve(d time.Duration)
	MLHoldoutScoreSet(metric string, v float64)
	MLFixtureChecksInc(passed bool)
}

type noopMetrics struct{}

func (noopMetrics) MLPredictionsInc(int)                    {}
func (noopMetrics) MLFailuresInc(string)                    {}
func (noopMetrics) MLLatencyObserve(float64)                {}
func (noopMetrics) MLPredictionScoresObserve(float64)       {}
func (noopMetrics) MLTimeoutsInc()                          {}
func (noopMetrics) MLModelAgeSet(float64)                   {}
func (noopMetrics) MLScoreDriftSet(string, float64)         {}
func (noopMetrics) MLTrainingRunsInc(string)                {}
func (noopMetrics) MLTrainingDurationObserve(time.Duration) {}
func (noopMetrics) MLHoldoutScoreSet(string, float64)       {}
func (noopMetrics) MLFixtureChecksInc(bool)                 {}

// Failure reasons reported to MLFailuresInc.
const (
	ReasonInvalidTimestamp = "invalid_timestamp"
	ReasonMissingFeature   = "missing_feature"
	ReasonCancelled        = "cancelled"
	ReasonInternal         = "internal"
)

// FailureReason classifies a scoring error.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, features.ErrInvalidTimestamp):
		return ReasonInvalidTimestamp
	case errors.Is(err, features.ErrMissingFeature):
		return ReasonMissingFeature
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCancelled
	}
	return ReasonInternal
}

// Prediction is the scored outcome for one wallet.
type Prediction struct {
	Label        int     `json:"prediction"`
	Probability  float64 `json:"probability"`
	ModelVersion string  `json:"model_version"`
}

// ModelInfo describes the loaded pipeline.
type ModelInfo struct {
	Version      string    `json:"version"`
	Fingerprint  string    `json:"preprocessor_fingerprint"`
	Features     []string  `json:"features"`
	FeatureCount int       `json:"feature_count"`
	LoadedAt     time.Time `json:"loaded_at"`
}

// Pipeline scores wallet records with a fitted preprocessor and model. All
// state is fixed at construction; concurrent calls need no locking.
type Pipeline struct {
	pre      *features.Preprocessor
	selector *features.Selector
	model    Model
	metrics  MetricsInterface
	loadedAt time.Time
}

// NewPipeline checks that the preprocessor is fitted, that the model was
// trained on it, and that every model column can be produced from a wallet
// record.
func NewPipeline(pre *features.Preprocessor, model Model, metrics MetricsInterface) (*Pipeline, error) {
	if pre == nil || !pre.Fitted() {
		return nil, features.ErrNotFitted
	}
	if model == nil {
		return nil, ErrModelNotTrained
	}
	if model.PreprocessorFingerprint() != pre.Fingerprint() {
		return nil, fmt.Errorf("%w: model built on %s, preprocessor is %s",
			ErrArtifactMismatch, model.PreprocessorFingerprint(), pre.Fingerprint())
	}

	selector, err := features.NewSelector(model.FeatureNames())
	if err != nil {
		return nil, fmt.Errorf("model feature schema: %w", err)
	}
	if err := selector.ValidateSchema(wallet.NumericColumns(), pre.OutputNames()); err != nil {
		return nil, fmt.Errorf("model feature schema: %w", err)
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &Pipeline{
		pre:      pre,
		selector: selector,
		model:    model,
		metrics:  metrics,
		loadedAt: time.Now(),
	}, nil
}

// Info describes the loaded model.
func (p *Pipeline) Info() ModelInfo {
	names := p.model.FeatureNames()
	return ModelInfo{
		Version:      p.model.Version(),
		Fingerprint:  p.pre.Fingerprint(),
		Features:     names,
		FeatureCount: len(names),
		LoadedAt:     p.loadedAt,
	}
}

// Vector builds the model input for one record.
func (p *Pipeline) Vector(rec wallet.Record) ([]float64, error) {
	raw := rec.Row()
	derived, err := p.pre.TransformRow(raw)
	if err != nil {
		return nil, err
	}
	return p.selector.Select(raw, derived)
}

// Score labels one wallet and reports the probability behind the label.
func (p *Pipeline) Score(ctx context.Context, rec wallet.Record) (Prediction, error) {
	start := time.Now()
	pred, err := p.score(ctx, rec)
	p.metrics.MLLatencyObserve(time.Since(start).Seconds())
	if err != nil {
		reason := FailureReason(err)
		if reason == ReasonCancelled {
			p.metrics.MLTimeoutsInc()
		}
		p.metrics.MLFailuresInc(reason)
		return Prediction{}, err
	}
	p.metrics.MLPredictionsInc(pred.Label)
	p.metrics.MLPredictionScoresObserve(pred.Probability)
	return pred, nil
}

func (p *Pipeline) score(ctx context.Context, rec wallet.Record) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}
	vec, err := p.Vector(rec)
	if err != nil {
		return Prediction{}, err
	}
	x := [][]float64{vec}
	proba, err := p.model.PredictProba(x)
	if err != nil {
		return Prediction{}, fmt.Errorf("predict proba: %w", err)
	}
	labels, err := p.model.Predict(x)
	if err != nil {
		return Prediction{}, fmt.Errorf("predict: %w", err)
	}
	return Prediction{Label: labels[0], Probability: proba[0], ModelVersion: p.model.Version()}, nil
}

// Predict returns the 0/1 risk label of one wallet.
func (p *Pipeline) Predict(ctx context.Context, rec wallet.Record) (int, error) {
	pred, err := p.Score(ctx, rec)
	return pred.Label, err
}

// PredictProba returns the positive-class probability of one wallet.
func (p *Pipeline) PredictProba(ctx context.Context, rec wallet.Record) (float64, error) {
	pred, err := p.Score(ctx, rec)
	return pred.Probability, err
}

// ScoreBatch scores records on at most workers goroutines and returns the
// predictions in input order. The first failure cancels the rest.
func (p *Pipeline) ScoreBatch(ctx context.Context, recs []wallet.Record, workers int) ([]Prediction, error) {
	if workers < 1 {
		workers = 1
	}
	out := make([]Prediction, len(recs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range recs {
		i := i
		g.Go(func() error {
			pred, err := p.Score(ctx, recs[i])
			if err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
			out[i] = pred
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ObserveModelAge reports the time since the model artifact was written.
func (p *Pipeline) ObserveModelAge(writtenAt time.Time) {
	p.metrics.MLModelAgeSet(time.Since(writtenAt).Seconds())
}
