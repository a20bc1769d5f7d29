package ml

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"wallet-risk/internal/features"
	"wallet-risk/internal/wallet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPipeline_Errors(t *testing.T) {
	res := trainedResult(t)

	unfitted, err := features.NewPreprocessor(features.DefaultPreprocessorConfig())
	require.NoError(t, err)
	_, err = NewPipeline(unfitted, res.Model, nil)
	assert.ErrorIs(t, err, features.ErrNotFitted)

	_, err = NewPipeline(res.Preprocessor, nil, nil)
	assert.ErrorIs(t, err, ErrModelNotTrained)

	_, err = NewPipeline(otherPreprocessor(t), res.Model, nil)
	assert.ErrorIs(t, err, ErrArtifactMismatch)

	unknown := &BoostedTrees{
		version:     "gbdt-test",
		names:       []string{"borrow_timestamp", "not_a_feature"},
		fingerprint: res.Preprocessor.Fingerprint(),
		trees:       []regressionTree{{Nodes: []treeNode{{Feature: leafNode}}}},
	}
	_, err = NewPipeline(res.Preprocessor, unknown, nil)
	assert.ErrorIs(t, err, features.ErrMissingFeature)
	assert.ErrorContains(t, err, "not_a_feature")
}

func TestPipeline_Info(t *testing.T) {
	res := trainedResult(t)
	p := trainedPipeline(t, nil)

	info := p.Info()
	assert.Equal(t, res.Model.Version(), info.Version)
	assert.Equal(t, res.Preprocessor.Fingerprint(), info.Fingerprint)
	assert.Equal(t, 83, info.FeatureCount)
	assert.Equal(t, []string(features.DefaultSchema()), info.Features)
	assert.False(t, info.LoadedAt.IsZero())
}

func TestPipeline_ScoresKnownBorrowInstant(t *testing.T) {
	metrics := &MockMetrics{}
	p := trainedPipeline(t, metrics)

	rec := wallet.Synthetic(1, 5)[0].Record
	rec.BorrowTimestamp = 1700000000
	rec.RepayAmountSumETH = 0

	vec, err := p.Vector(rec)
	require.NoError(t, err)
	schema := features.DefaultSchema()
	require.Len(t, vec, len(schema))
	valueOf := func(name string) float64 {
		i := slices.Index(schema, name)
		require.GreaterOrEqual(t, i, 0, name)
		return vec[i]
	}
	assert.Equal(t, 14.0, valueOf("borrow_timestamp_day"))
	assert.Equal(t, 318.0, valueOf("borrow_timestamp_dayofyear"))
	assert.Equal(t, 46.0, valueOf("borrow_timestamp_week"))
	// Synthetic wallets never repay a negative amount, so zero sits at the
	// bottom of the fitted distribution.
	assert.Less(t, valueOf("repay_amount_sum_eth_qt"), 0.0)

	pred, err := p.Score(context.Background(), rec)
	require.NoError(t, err)
	assert.Contains(t, []int{0, 1}, pred.Label)
	assert.Equal(t, pred.Label == 1, pred.Probability > 0.5)
	assert.Equal(t, p.Info().Version, pred.ModelVersion)

	label, err := p.Predict(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, pred.Label, label)
	proba, err := p.PredictProba(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, pred.Probability, proba)

	assert.Equal(t, 3, metrics.Predictions())
}

func TestPipeline_ScoreFailures(t *testing.T) {
	metrics := &MockMetrics{}
	p := trainedPipeline(t, metrics)
	rec := wallet.Synthetic(1, 6)[0].Record

	bad := rec
	bad.BorrowTimestamp = -5
	_, err := p.Score(context.Background(), bad)
	assert.ErrorIs(t, err, features.ErrInvalidTimestamp)
	assert.Equal(t, 1, metrics.Failures(ReasonInvalidTimestamp))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Score(ctx, rec)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, metrics.Failures(ReasonCancelled))
	assert.Equal(t, 0, metrics.Predictions())
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, ReasonInvalidTimestamp, FailureReason(&features.InvalidTimestampError{Column: "borrow_timestamp", Value: -1}))
	assert.Equal(t, ReasonMissingFeature, FailureReason(&features.MissingFeatureError{Columns: []string{"x"}}))
	assert.Equal(t, ReasonCancelled, FailureReason(context.DeadlineExceeded))
	assert.Equal(t, ReasonInternal, FailureReason(errors.New("boom")))
}

func TestPipeline_ConcurrentScoringIsStable(t *testing.T) {
	p := trainedPipeline(t, &MockMetrics{})
	data := wallet.Synthetic(20, 8)

	want := make([]Prediction, len(data))
	for i, d := range data {
		pred, err := p.Score(context.Background(), d.Record)
		require.NoError(t, err)
		want[i] = pred
	}

	var wg sync.WaitGroup
	errs := make(chan error, 16*len(data))
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i, d := range data {
				pred, err := p.Score(context.Background(), d.Record)
				if err != nil {
					errs <- err
					continue
				}
				if pred != want[i] {
					errs <- errors.New("prediction changed under concurrency")
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestPipeline_ScoreBatch(t *testing.T) {
	p := trainedPipeline(t, nil)
	data := wallet.Synthetic(30, 9)
	recs := make([]wallet.Record, len(data))
	for i := range data {
		recs[i] = data[i].Record
	}

	got, err := p.ScoreBatch(context.Background(), recs, 4)
	require.NoError(t, err)
	require.Len(t, got, len(recs))
	for i, rec := range recs {
		want, err := p.Score(context.Background(), rec)
		require.NoError(t, err)
		assert.Equal(t, want, got[i])
	}

	recs[17].FirstTxTimestamp = -1
	_, err = p.ScoreBatch(context.Background(), recs, 0)
	assert.ErrorIs(t, err, features.ErrInvalidTimestamp)
	assert.ErrorContains(t, err, "record 17")
}

func TestPipeline_ObserveModelAge(t *testing.T) {
	metrics := &MockMetrics{}
	p := trainedPipeline(t, metrics)
	p.ObserveModelAge(time.Now().Add(-10 * time.Second))
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.GreaterOrEqual(t, metrics.modelAge, 10.0)
}
