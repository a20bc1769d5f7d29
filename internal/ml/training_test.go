package ml

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"wallet-risk/internal/features"
	"wallet-risk/internal/storage"
	"wallet-risk/internal/wallet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrainingConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultTrainingConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*TrainingConfig)
	}{
		{"zero test size", func(c *TrainingConfig) { c.TestSize = 0 }},
		{"whole test size", func(c *TrainingConfig) { c.TestSize = 1 }},
		{"negative samples", func(c *TrainingConfig) { c.SampleCount = -1 }},
		{"empty schema", func(c *TrainingConfig) { c.Schema = nil }},
		{"bad boosting", func(c *TrainingConfig) { c.Boosting.Depth = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultTrainingConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
			_, err := NewTrainingPipeline(cfg, nil, nil)
			assert.Error(t, err)
		})
	}
}

func TestTrainingPipeline_Run(t *testing.T) {
	res := trainedResult(t)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 400, res.TrainRows+res.HoldoutRows)
	assert.Equal(t, 80, res.HoldoutRows)
	assert.Equal(t, res.HoldoutRows, res.Report.Samples)
	assert.Greater(t, res.Report.ROCAUC, 0.5, "synthetic labels follow the features")
	assert.Greater(t, res.Duration, time.Duration(0))

	require.Len(t, res.Samples, 3)
	p := trainedPipeline(t, nil)
	for i, s := range res.Samples {
		assert.Equal(t, i+1, s.Index)
		got, err := p.Score(context.Background(), s.Record)
		require.NoError(t, err)
		assert.Equal(t, s.Expected, got)
	}
}

// The preprocessor must be fitted on the training split only.
func TestTrainingPipeline_NoHoldoutLeakage(t *testing.T) {
	res := trainedResult(t)
	cfg := quickTrainingConfig()
	data := wallet.Synthetic(400, 1)

	train, _, err := StratifiedSplit(data, cfg.TestSize, cfg.Seed)
	require.NoError(t, err)

	trainOnly, err := features.NewPreprocessor(cfg.Preprocessor)
	require.NoError(t, err)
	require.NoError(t, trainOnly.Fit(rowsOf(train)))
	assert.Equal(t, trainOnly.Fingerprint(), res.Preprocessor.Fingerprint())

	everything, err := features.NewPreprocessor(cfg.Preprocessor)
	require.NoError(t, err)
	require.NoError(t, everything.Fit(rowsOf(data)))
	assert.NotEqual(t, everything.Fingerprint(), res.Preprocessor.Fingerprint())
}

func TestTrainingPipeline_RecordsMetrics(t *testing.T) {
	metrics := &MockMetrics{}
	tp, err := NewTrainingPipeline(quickTrainingConfig(), nil, metrics)
	require.NoError(t, err)

	data := wallet.Synthetic(200, 3)
	res, err := tp.Run(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.TrainingRuns("success"))
	f1, ok := metrics.HoldoutScore("f1")
	assert.True(t, ok)
	assert.Equal(t, res.Report.F1, f1)
	auc, ok := metrics.HoldoutScore("roc_auc")
	assert.True(t, ok)
	assert.Equal(t, res.Report.ROCAUC, auc)

	_, err = tp.RunFromSplits(context.Background(), data, nil)
	assert.Error(t, err)
	assert.Equal(t, 1, metrics.TrainingRuns("failed"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = tp.Run(ctx, data)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, metrics.TrainingRuns("failed"))
}

func TestTrainingPipeline_SchemaMustBeProducible(t *testing.T) {
	cfg := quickTrainingConfig()
	cfg.Schema = append([]string(nil), cfg.Schema...)
	cfg.Schema = append(cfg.Schema, "borrow_timestamp_hour")

	tp, err := NewTrainingPipeline(cfg, nil, nil)
	require.NoError(t, err)
	_, err = tp.Run(context.Background(), wallet.Synthetic(100, 4))
	assert.ErrorIs(t, err, features.ErrMissingFeature)
}

func TestTrainingPipeline_SameSeedSameModel(t *testing.T) {
	data := wallet.Synthetic(150, 12)
	versions := make([]string, 2)
	for i := range versions {
		tp, err := NewTrainingPipeline(quickTrainingConfig(), nil, nil)
		require.NoError(t, err)
		res, err := tp.Run(context.Background(), data)
		require.NoError(t, err)
		versions[i] = res.Model.Version()
	}
	assert.Equal(t, versions[0], versions[1])
}

func TestPersist(t *testing.T) {
	res := trainedResult(t)
	dir := t.TempDir()

	store, err := storage.New(dir)
	require.NoError(t, err)
	defer store.Close()
	registry, err := NewModelManager(filepath.Join(dir, "models"))
	require.NoError(t, err)

	opts := PersistOptions{
		Artifacts: ArtifactPaths{
			Preprocessor: filepath.Join(dir, "artifacts", "preprocessor.json"),
			Model:        filepath.Join(dir, "artifacts", "model.json"),
		},
		SamplesDir:     filepath.Join(dir, "samples"),
		ImportancePath: filepath.Join(dir, "artifacts", "feature_importance.json"),
		BaselinePath:   filepath.Join(dir, "artifacts", "drift_baseline.json"),
		Fixtures:       store,
		Registry:       registry,
		Activate:       true,
	}
	require.NoError(t, Persist(res, opts))

	for _, name := range []string{"Sample_1.csv", "Sample_1.json", "Sample_2.csv", "Sample_2.json", "Sample_3.csv", "Sample_3.json"} {
		_, err := os.Stat(filepath.Join(opts.SamplesDir, name))
		assert.NoError(t, err, name)
	}
	recs, err := wallet.LoadSamplesJSON(filepath.Join(opts.SamplesDir, "Sample_2.json"))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, res.Samples[1].Record, recs[0])

	baseline, err := LoadDriftBaseline(opts.BaselinePath)
	require.NoError(t, err)
	assert.Equal(t, res.Baseline.Scores, baseline.Scores)
	_, err = os.Stat(opts.ImportancePath)
	assert.NoError(t, err)

	fixtures, err := store.Fixtures(res.RunID)
	require.NoError(t, err)
	assert.Len(t, fixtures, 3)
	run, ok, err := store.LatestRun(res.Model.Version())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, res.RunID, run.RunID)
	assert.Equal(t, 3, run.FixtureCount)

	current := registry.GetCurrentVersion()
	require.NotNil(t, current)
	assert.Equal(t, res.RunID, current.RunID)
	assert.Equal(t, res.Model.Version(), current.Version)
	assert.Equal(t, res.TrainRows, current.Metrics.TrainingSamples)
	assert.Equal(t, registry.RunArtifacts(res.RunID), current.Artifacts)
	_, _, err = LoadArtifacts(current.Artifacts)
	assert.NoError(t, err, "archived pair must load")

	// A second persist of the same run is rejected by the registry.
	assert.Error(t, Persist(res, opts))
}

func TestModelManager_Restore(t *testing.T) {
	res := trainedResult(t)
	dir := t.TempDir()
	registry, err := NewModelManager(filepath.Join(dir, "models"))
	require.NoError(t, err)

	serving := ArtifactPaths{
		Preprocessor: filepath.Join(dir, "artifacts", "preprocessor.json"),
		Model:        filepath.Join(dir, "artifacts", "model.json"),
	}
	require.NoError(t, Persist(res, PersistOptions{Artifacts: serving, Registry: registry}))

	// A broken serving model is replaced by the archived copy.
	require.NoError(t, os.WriteFile(serving.Model, []byte("{"), 0o644))
	_, _, err = LoadArtifacts(serving)
	require.Error(t, err)

	require.NoError(t, registry.Restore(res.RunID, serving))
	_, model, err := LoadArtifacts(serving)
	require.NoError(t, err)
	assert.Equal(t, res.Model.Version(), model.Version())
	current := registry.GetCurrentVersion()
	require.NotNil(t, current)
	assert.Equal(t, res.RunID, current.RunID)

	assert.Error(t, registry.Restore("missing-run", serving))

	_, err = registry.RollbackArtifacts(serving)
	assert.Error(t, err, "a single run has nothing to roll back to")

	require.NoError(t, registry.AddVersion(ModelVersion{RunID: "legacy", Artifacts: serving}))
	assert.ErrorContains(t, registry.Restore("legacy", serving), "no archived artifacts")
}

func TestPersist_RegistryFailureKeepsServingPair(t *testing.T) {
	res := trainedResult(t)
	dir := t.TempDir()
	registry, err := NewModelManager(filepath.Join(dir, "models"))
	require.NoError(t, err)

	serving := ArtifactPaths{
		Preprocessor: filepath.Join(dir, "preprocessor.json"),
		Model:        filepath.Join(dir, "model.json"),
	}
	require.NoError(t, os.WriteFile(serving.Preprocessor, []byte("old preprocessor"), 0o644))
	require.NoError(t, os.WriteFile(serving.Model, []byte("old model"), 0o644))

	// The run id is already taken, so registration fails.
	require.NoError(t, registry.AddVersion(ModelVersion{RunID: res.RunID}))

	err = Persist(res, PersistOptions{Artifacts: serving, Registry: registry, Activate: true})
	require.ErrorContains(t, err, "register run")

	pre, err := os.ReadFile(serving.Preprocessor)
	require.NoError(t, err)
	assert.Equal(t, "old preprocessor", string(pre))
	model, err := os.ReadFile(serving.Model)
	require.NoError(t, err)
	assert.Equal(t, "old model", string(model))
	assert.Nil(t, registry.GetCurrentVersion())
}
