package main

import (
	"flag"
	"os"
	"path/filepath"

	"wallet-risk/internal/cfg"
	"wallet-risk/internal/ml"
	"wallet-risk/internal/wallet"

	"github.com/rs/zerolog/log"
)

func main() {
	var (
		input  = flag.String("input", "data/raw.csv", "Raw labeled wallet CSV")
		outDir = flag.String("out", "data", "Directory for train.csv and test.csv")
	)
	flag.Parse()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if err := cfg.SetupLogger(c.LogLevel, c.LogFormat); err != nil {
		log.Fatal().Err(err).Msg("logger setup failed")
	}

	data, err := wallet.LoadLabeledCSV(*input)
	if err != nil {
		log.Fatal().Err(err).Str("path", *input).Msg("failed to load labeled CSV")
	}

	train, test, err := ml.StratifiedSplit(data, c.Training.TestSize, c.Training.Seed)
	if err != nil {
		log.Fatal().Err(err).Msg("split failed")
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("path", *outDir).Msg("output directory unavailable")
	}
	trainPath := filepath.Join(*outDir, "train.csv")
	testPath := filepath.Join(*outDir, "test.csv")
	if err := wallet.SaveLabeledCSV(trainPath, train); err != nil {
		log.Fatal().Err(err).Str("path", trainPath).Msg("failed to write train split")
	}
	if err := wallet.SaveLabeledCSV(testPath, test); err != nil {
		log.Fatal().Err(err).Str("path", testPath).Msg("failed to write test split")
	}

	log.Info().
		Int("train", len(train)).
		Int("test", len(test)).
		Float64("test_size", c.Training.TestSize).
		Int64("seed", c.Training.Seed).
		Msg("Dataset split")
}
