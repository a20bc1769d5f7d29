package ml

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"wallet-risk/internal/features"
	"wallet-risk/internal/storage"
	"wallet-risk/internal/wallet"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// TrainingConfig controls one training run.
type TrainingConfig struct {
	TestSize     float64                     `yaml:"testSize"`
	Seed         int64                       `yaml:"seed"`
	SampleCount  int                         `yaml:"sampleCount"`
	Preprocessor features.PreprocessorConfig `yaml:"preprocessor"`
	Schema       []string                    `yaml:"schema"`
	Boosting     BoostingParams              `yaml:"boosting"`
}

// DefaultTrainingConfig returns the production training setup.
func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{
		TestSize:     0.2,
		Seed:         42,
		SampleCount:  3,
		Preprocessor: features.DefaultPreprocessorConfig(),
		Schema:       features.DefaultSchema(),
		Boosting:     DefaultBoostingParams(),
	}
}

// Validate checks the run parameters.
func (c TrainingConfig) Validate() error {
	if c.TestSize <= 0 || c.TestSize >= 1 {
		return fmt.Errorf("test size must be in (0, 1), got %v", c.TestSize)
	}
	if c.SampleCount < 0 {
		return fmt.Errorf("sample count must not be negative, got %d", c.SampleCount)
	}
	if len(c.Schema) == 0 {
		return fmt.Errorf("feature schema is empty")
	}
	return c.Boosting.Validate()
}

// Sample is a held-out wallet kept as a regression fixture.
type Sample struct {
	Index    int           `json:"index"`
	Record   wallet.Record `json:"record"`
	Label    int           `json:"label"`
	Expected Prediction    `json:"expected"`
}

// TrainingResult is everything a run produced, before persistence.
type TrainingResult struct {
	RunID        string
	CreatedAt    time.Time
	Preprocessor *features.Preprocessor
	Model        Model
	Report       EvaluationReport
	TrainRows    int
	HoldoutRows  int
	Samples      []Sample
	Importance   []FeatureScore
	Baseline     DriftBaseline
	Duration     time.Duration
}

// TrainingPipeline fits the preprocessor and classifier from labeled wallets.
type TrainingPipeline struct {
	cfg     TrainingConfig
	trainer Trainer
	metrics MetricsInterface
}

// NewTrainingPipeline validates cfg. A nil trainer selects boosted trees
// with cfg.Boosting.
func NewTrainingPipeline(cfg TrainingConfig, trainer Trainer, metrics MetricsInterface) (*TrainingPipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if trainer == nil {
		bt, err := NewBoostedTreesTrainer(cfg.Boosting)
		if err != nil {
			return nil, err
		}
		trainer = bt
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &TrainingPipeline{cfg: cfg, trainer: trainer, metrics: metrics}, nil
}

// Run splits dataset into train and holdout and trains on the split.
func (tp *TrainingPipeline) Run(ctx context.Context, dataset []wallet.Labeled) (*TrainingResult, error) {
	train, holdout, err := StratifiedSplit(dataset, tp.cfg.TestSize, tp.cfg.Seed)
	if err != nil {
		tp.metrics.MLTrainingRunsInc("failed")
		return nil, fmt.Errorf("split dataset: %w", err)
	}
	log.Info().Int("rows", len(dataset)).Int("train", len(train)).Int("holdout", len(holdout)).Msg("Dataset split")
	return tp.RunFromSplits(ctx, train, holdout)
}

// RunFromSplits trains on pre-split data. The preprocessor sees only the
// train rows; the holdout is used for early stopping, evaluation and
// fixture samples. Nothing is written to disk.
func (tp *TrainingPipeline) RunFromSplits(ctx context.Context, train, holdout []wallet.Labeled) (*TrainingResult, error) {
	start := time.Now()
	res, err := tp.runFromSplits(ctx, train, holdout)
	if err != nil {
		tp.metrics.MLTrainingRunsInc("failed")
		return nil, err
	}
	res.Duration = time.Since(start)
	tp.metrics.MLTrainingRunsInc("success")
	tp.metrics.MLTrainingDurationObserve(res.Duration)
	tp.metrics.MLHoldoutScoreSet("accuracy", res.Report.Accuracy)
	tp.metrics.MLHoldoutScoreSet("precision", res.Report.Precision)
	tp.metrics.MLHoldoutScoreSet("recall", res.Report.Recall)
	tp.metrics.MLHoldoutScoreSet("f1", res.Report.F1)
	tp.metrics.MLHoldoutScoreSet("roc_auc", res.Report.ROCAUC)

	log.Info().
		Str("run_id", res.RunID).
		Str("version", res.Model.Version()).
		Float64("accuracy", res.Report.Accuracy).
		Float64("f1", res.Report.F1).
		Float64("roc_auc", res.Report.ROCAUC).
		Strs("top_features", TopFeatures(res.Importance, 5)).
		Dur("duration", res.Duration).
		Msg("Training run completed")
	return res, nil
}

func (tp *TrainingPipeline) runFromSplits(ctx context.Context, train, holdout []wallet.Labeled) (*TrainingResult, error) {
	if len(train) == 0 || len(holdout) == 0 {
		return nil, fmt.Errorf("need non-empty train and holdout sets, got %d and %d rows", len(train), len(holdout))
	}

	pre, err := features.NewPreprocessor(tp.cfg.Preprocessor)
	if err != nil {
		return nil, fmt.Errorf("preprocessor config: %w", err)
	}
	if err := pre.Fit(rowsOf(train)); err != nil {
		return nil, fmt.Errorf("fit preprocessor: %w", err)
	}

	selector, err := features.NewSelector(tp.cfg.Schema)
	if err != nil {
		return nil, err
	}
	if err := selector.ValidateSchema(wallet.NumericColumns(), pre.OutputNames()); err != nil {
		return nil, fmt.Errorf("feature schema: %w", err)
	}

	trainDS, err := buildDataset(pre, selector, train)
	if err != nil {
		return nil, fmt.Errorf("build train matrix: %w", err)
	}
	holdoutDS, err := buildDataset(pre, selector, holdout)
	if err != nil {
		return nil, fmt.Errorf("build holdout matrix: %w", err)
	}

	model, err := tp.trainer.Fit(ctx, trainDS, holdoutDS)
	if err != nil {
		return nil, fmt.Errorf("fit model: %w", err)
	}

	pipeline, err := NewPipeline(pre, model, nil)
	if err != nil {
		return nil, err
	}

	proba, err := model.PredictProba(holdoutDS.X)
	if err != nil {
		return nil, err
	}
	preds, err := model.Predict(holdoutDS.X)
	if err != nil {
		return nil, err
	}
	report, err := Evaluate(holdoutDS.Y, preds, proba)
	if err != nil {
		return nil, err
	}

	importance, err := PermutationImportance(ctx, model, holdoutDS, tp.cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("feature importance: %w", err)
	}

	samples, err := tp.drawSamples(ctx, pipeline, holdout)
	if err != nil {
		return nil, err
	}

	return &TrainingResult{
		RunID:        uuid.NewString(),
		CreatedAt:    time.Now().UTC(),
		Preprocessor: pre,
		Model:        model,
		Report:       report,
		TrainRows:    len(train),
		HoldoutRows:  len(holdout),
		Samples:      samples,
		Importance:   importance,
		Baseline:     NewDriftBaseline(model.Version(), proba),
	}, nil
}

// drawSamples picks one holdout row per sample, each with its own seed.
func (tp *TrainingPipeline) drawSamples(ctx context.Context, p *Pipeline, holdout []wallet.Labeled) ([]Sample, error) {
	samples := make([]Sample, 0, tp.cfg.SampleCount)
	for i := 1; i <= tp.cfg.SampleCount; i++ {
		rng := rand.New(rand.NewSource(tp.cfg.Seed + int64(i)))
		row := holdout[rng.Intn(len(holdout))]

		pred, err := p.Score(ctx, row.Record)
		if err != nil {
			return nil, fmt.Errorf("score sample %d: %w", i, err)
		}
		samples = append(samples, Sample{Index: i, Record: row.Record, Label: row.Target, Expected: pred})
	}
	return samples, nil
}

func rowsOf(data []wallet.Labeled) []wallet.Row {
	rows := make([]wallet.Row, len(data))
	for i := range data {
		rows[i] = data[i].Record.Row()
	}
	return rows
}

func buildDataset(pre *features.Preprocessor, selector *features.Selector, data []wallet.Labeled) (Dataset, error) {
	rows := rowsOf(data)
	derived, err := pre.Transform(rows)
	if err != nil {
		return Dataset{}, err
	}

	ds := Dataset{
		Names:       selector.Schema(),
		X:           make([][]float64, len(rows)),
		Y:           make([]int, len(rows)),
		Fingerprint: pre.Fingerprint(),
	}
	for i := range rows {
		vec, err := selector.Select(rows[i], derived[i])
		if err != nil {
			return Dataset{}, fmt.Errorf("row %d: %w", i, err)
		}
		ds.X[i] = vec
		ds.Y[i] = data[i].Target
	}
	return ds, nil
}

// PersistOptions says where a run's outputs go. Everything but Artifacts
// is optional.
type PersistOptions struct {
	Artifacts      ArtifactPaths
	SamplesDir     string
	ImportancePath string
	BaselinePath   string
	Fixtures       FixtureStore
	Registry       *ModelManager
	Activate       bool
}

// FixtureStore keeps regression fixtures for the serving self-check.
type FixtureStore interface {
	PutFixtures(run storage.RunSummary, fixtures []storage.Fixture) error
}

// Persist archives and registers the run, then swaps the serving artifact
// pair and writes the optional sample files, importance scores, drift
// baseline and fixtures. The run is activated only after the swap.
func Persist(res *TrainingResult, opts PersistOptions) error {
	model, ok := res.Model.(PersistentModel)
	if !ok {
		return fmt.Errorf("model %T cannot be persisted", res.Model)
	}

	// A failed archive or registration leaves the serving pair untouched.
	if opts.Registry != nil {
		archived := opts.Registry.RunArtifacts(res.RunID)
		if err := SaveArtifacts(archived, res.Preprocessor, model); err != nil {
			return fmt.Errorf("archive run artifacts: %w", err)
		}
		v := ModelVersion{
			RunID:       res.RunID,
			Version:     model.Version(),
			Artifacts:   archived,
			Fingerprint: res.Preprocessor.Fingerprint(),
			CreatedAt:   res.CreatedAt,
			Metrics:     NewModelMetrics(res.Report, res.TrainRows),
		}
		if err := opts.Registry.AddVersion(v); err != nil {
			return fmt.Errorf("register run: %w", err)
		}
	}

	if err := SaveArtifacts(opts.Artifacts, res.Preprocessor, model); err != nil {
		return err
	}

	if opts.SamplesDir != "" {
		if err := WriteSamples(opts.SamplesDir, res.Samples); err != nil {
			return fmt.Errorf("write samples: %w", err)
		}
	}

	if opts.ImportancePath != "" {
		if err := SaveFeatureImportance(opts.ImportancePath, res.Importance); err != nil {
			return fmt.Errorf("write feature importance: %w", err)
		}
	}
	if opts.BaselinePath != "" {
		if err := SaveDriftBaseline(opts.BaselinePath, res.Baseline); err != nil {
			return fmt.Errorf("write drift baseline: %w", err)
		}
	}

	if opts.Fixtures != nil {
		run := storage.RunSummary{
			RunID:        res.RunID,
			ModelVersion: model.Version(),
			Fingerprint:  res.Preprocessor.Fingerprint(),
			CreatedAt:    res.CreatedAt,
		}
		if err := opts.Fixtures.PutFixtures(run, Fixtures(res)); err != nil {
			return fmt.Errorf("store fixtures: %w", err)
		}
	}

	if opts.Registry != nil && opts.Activate {
		if err := opts.Registry.ActivateVersion(res.RunID); err != nil {
			return err
		}
	}
	return nil
}

// Fixtures converts a run's samples to storage fixtures.
func Fixtures(res *TrainingResult) []storage.Fixture {
	out := make([]storage.Fixture, len(res.Samples))
	for i, s := range res.Samples {
		out[i] = storage.Fixture{
			RunID:        res.RunID,
			Index:        s.Index,
			Record:       s.Record,
			Label:        s.Label,
			Expected:     s.Expected.Label,
			Probability:  s.Expected.Probability,
			ModelVersion: s.Expected.ModelVersion,
		}
	}
	return out
}

// WriteSamples writes every sample as Sample_<n>.csv (header plus one row)
// and Sample_<n>.json (a one-element array of request objects).
func WriteSamples(dir string, samples []Sample) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, s := range samples {
		base := filepath.Join(dir, fmt.Sprintf("Sample_%d", s.Index))
		records := []wallet.Record{s.Record}

		csvFile, err := os.Create(base + ".csv")
		if err != nil {
			return err
		}
		err = wallet.WriteRecordsCSV(csvFile, records)
		if cerr := csvFile.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("sample %d csv: %w", s.Index, err)
		}

		jsonFile, err := os.Create(base + ".json")
		if err != nil {
			return err
		}
		err = wallet.WriteSamplesJSON(jsonFile, records)
		if cerr := jsonFile.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("sample %d json: %w", s.Index, err)
		}
	}
	log.Info().Str("dir", dir).Int("samples", len(samples)).Msg("Samples written")
	return nil
}
