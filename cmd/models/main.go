package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"wallet-risk/internal/cfg"
	"wallet-risk/internal/ml"
	"wallet-risk/internal/storage"

	"github.com/rs/zerolog/log"
)

func main() {
	var (
		fixtures = flag.String("fixtures", "", "Print the stored fixtures of a run")
		restore  = flag.String("restore", "", "Restore a run's archived artifacts and activate it")
		rollback = flag.Bool("rollback", false, "Restore the run registered before the active one")
	)
	flag.Parse()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if err := cfg.SetupLogger(c.LogLevel, c.LogFormat); err != nil {
		log.Fatal().Err(err).Msg("logger setup failed")
	}

	registry, err := ml.NewModelManager(c.ModelsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("model registry unavailable")
	}

	switch {
	case *restore != "":
		if err := registry.Restore(*restore, c.ArtifactPaths()); err != nil {
			log.Fatal().Err(err).Msg("restore failed")
		}
		log.Info().Str("run_id", *restore).Msg("Run restored, restart the server to serve it")
	case *rollback:
		runID, err := registry.RollbackArtifacts(c.ArtifactPaths())
		if err != nil {
			log.Fatal().Err(err).Msg("rollback failed")
		}
		log.Info().Str("run_id", runID).Msg("Rolled back, restart the server to serve it")
	case *fixtures != "":
		printFixtures(c.DataPath, *fixtures)
	default:
		printVersions(registry)
		printRuns(c.DataPath)
	}
}

func printVersions(registry *ml.ModelManager) {
	fmt.Println("Registered runs (newest first):")
	for _, v := range registry.ListVersions() {
		marker := " "
		if v.IsActive {
			marker = "*"
		}
		fmt.Printf("%s %s  %s  %s  auc=%.3f f1=%.3f holdout=%d\n",
			marker, v.RunID, v.Version, v.CreatedAt.Format(time.RFC3339),
			v.Metrics.AUCScore, v.Metrics.F1Score, v.Metrics.HoldoutSamples)
	}
}

func openStore(dataPath string) *storage.Store {
	if _, err := os.Stat(dataPath); err != nil {
		log.Fatal().Err(err).Str("path", dataPath).Msg("data directory unavailable")
	}
	store, err := storage.New(dataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("fixture store unavailable")
	}
	return store
}

func printRuns(dataPath string) {
	store := openStore(dataPath)
	defer store.Close()

	runs, err := store.Runs(time.Time{}, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to list runs")
	}
	fmt.Println("\nStored fixture runs:")
	for _, r := range runs {
		fmt.Printf("  %s  %s  fixtures=%d  %s\n",
			r.RunID, r.ModelVersion, r.FixtureCount, r.CreatedAt.Format(time.RFC3339))
	}
}

func printFixtures(dataPath, runID string) {
	store := openStore(dataPath)
	defer store.Close()

	fixtures, err := store.Fixtures(runID)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read fixtures")
	}
	if len(fixtures) == 0 {
		log.Fatal().Str("run_id", runID).Msg("no fixtures stored for run")
	}
	for _, f := range fixtures {
		fmt.Printf("Sample_%d  wallet=%s  label=%d  expected=%d  p=%.4f  model=%s\n",
			f.Index, f.Record.WalletAddress, f.Label, f.Expected, f.Probability, f.ModelVersion)
	}
}
