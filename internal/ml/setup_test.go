package ml

import (
	"context"
	"sync"
	"testing"

	"wallet-risk/internal/features"
	"wallet-risk/internal/wallet"

	"github.com/stretchr/testify/require"
)

// quickTrainingConfig keeps boosting short enough for unit tests.
func quickTrainingConfig() TrainingConfig {
	cfg := DefaultTrainingConfig()
	cfg.Boosting.Iterations = 60
	cfg.Boosting.EarlyStoppingRounds = 15
	return cfg
}

var (
	sharedOnce   sync.Once
	sharedResult *TrainingResult
	sharedErr    error
)

// trainedResult trains one pipeline on synthetic wallets and shares it
// between tests. Callers must not refit its preprocessor.
func trainedResult(t *testing.T) *TrainingResult {
	t.Helper()
	sharedOnce.Do(func() {
		tp, err := NewTrainingPipeline(quickTrainingConfig(), nil, nil)
		if err != nil {
			sharedErr = err
			return
		}
		sharedResult, sharedErr = tp.Run(context.Background(), wallet.Synthetic(400, 1))
	})
	require.NoError(t, sharedErr)
	return sharedResult
}

func trainedPipeline(t *testing.T, metrics MetricsInterface) *Pipeline {
	t.Helper()
	res := trainedResult(t)
	p, err := NewPipeline(res.Preprocessor, res.Model, metrics)
	require.NoError(t, err)
	return p
}

// otherPreprocessor is fitted on different wallets than the shared run.
func otherPreprocessor(t *testing.T) *features.Preprocessor {
	t.Helper()
	pre, err := features.NewPreprocessor(features.DefaultPreprocessorConfig())
	require.NoError(t, err)
	require.NoError(t, pre.Fit(rowsOf(wallet.Synthetic(200, 99))))
	return pre
}

// separable is a one-feature dataset labeled by x >= 2.
func separable() Dataset {
	ds := Dataset{Names: []string{"x"}, Fingerprint: "fp"}
	for i := 0; i < 40; i++ {
		x := float64(i % 4)
		y := 0
		if x >= 2 {
			y = 1
		}
		ds.X = append(ds.X, []float64{x})
		ds.Y = append(ds.Y, y)
	}
	return ds
}
