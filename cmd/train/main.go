package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"wallet-risk/internal/cfg"
	"wallet-risk/internal/metrics"
	"wallet-risk/internal/ml"
	"wallet-risk/internal/storage"
	"wallet-risk/internal/wallet"

	"github.com/rs/zerolog/log"
)

func main() {
	// Parse command line arguments
	var (
		dataPath  = flag.String("data", "", "Raw labeled CSV, split before training")
		trainPath = flag.String("train", "", "Pre-split training CSV (with -test)")
		testPath  = flag.String("test", "", "Pre-split holdout CSV (with -train)")
		activate  = flag.Bool("activate", true, "Mark the run active in the model registry")
	)
	flag.Parse()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if err := cfg.SetupLogger(c.LogLevel, c.LogFormat); err != nil {
		log.Fatal().Err(err).Msg("logger setup failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recorder := metrics.NewMLRecorder(metrics.New())
	tp, err := ml.NewTrainingPipeline(c.Training, nil, recorder)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid training configuration")
	}

	var res *ml.TrainingResult
	switch {
	case *trainPath != "" && *testPath != "":
		train := loadCSV(*trainPath)
		holdout := loadCSV(*testPath)
		res, err = tp.RunFromSplits(ctx, train, holdout)
	case *dataPath != "":
		res, err = tp.Run(ctx, loadCSV(*dataPath))
	default:
		log.Fatal().Msg("either -data or both -train and -test are required")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("training failed")
	}

	persist(c, res, *activate)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res.Report); err != nil {
		log.Fatal().Err(err).Msg("report encoding failed")
	}
}

func loadCSV(path string) []wallet.Labeled {
	rows, err := wallet.LoadLabeledCSV(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("failed to load labeled CSV")
	}
	log.Info().Str("path", path).Int("rows", len(rows)).Msg("Loaded labeled wallets")
	return rows
}

// persist writes every output of the run: artifacts, samples, importance,
// drift baseline, fixtures and the registry entry
func persist(c cfg.Settings, res *ml.TrainingResult, activate bool) {
	if err := os.MkdirAll(c.DataPath, 0o755); err != nil {
		log.Fatal().Err(err).Str("path", c.DataPath).Msg("data directory unavailable")
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("fixture store unavailable")
	}
	defer store.Close()

	registry, err := ml.NewModelManager(c.ModelsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("model registry unavailable")
	}

	err = ml.Persist(res, ml.PersistOptions{
		Artifacts:      c.ArtifactPaths(),
		SamplesDir:     c.SamplesDir,
		ImportancePath: c.ImportancePath,
		BaselinePath:   c.BaselinePath,
		Fixtures:       store,
		Registry:       registry,
		Activate:       activate,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("persisting training run failed")
	}

	log.Info().
		Str("run_id", res.RunID).
		Str("version", res.Model.Version()).
		Float64("roc_auc", res.Report.ROCAUC).
		Float64("f1", res.Report.F1).
		Msg("Training run persisted")
}
