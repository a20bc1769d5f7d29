package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wallet-risk/internal/cfg"
	"wallet-risk/internal/ml"
	"wallet-risk/internal/wallet"

	"github.com/rs/zerolog/log"
)

func main() {
	var (
		input  = flag.String("input", "data/test.csv", "Labeled wallet CSV to score")
		output = flag.String("output", "result.csv", "Destination for y_true,y_pred,y_proba rows")
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

	pre, model, err := ml.LoadArtifacts(c.ArtifactPaths())
	if err != nil {
		log.Fatal().Err(err).Msg("artifact load failed")
	}
	pipeline, err := ml.NewPipeline(pre, model, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("pipeline construction failed")
	}

	data, err := wallet.LoadLabeledCSV(*input)
	if err != nil {
		log.Fatal().Err(err).Str("path", *input).Msg("failed to load labeled CSV")
	}
	records := make([]wallet.Record, len(data))
	for i := range data {
		records[i] = data[i].Record
	}

	start := time.Now()
	preds, err := pipeline.ScoreBatch(ctx, records, c.BatchWorkers)
	if err != nil {
		log.Fatal().Err(err).Msg("batch scoring failed")
	}

	rows := make([]ml.ScoredRow, len(preds))
	for i, p := range preds {
		rows[i] = ml.ScoredRow{YTrue: data[i].Target, YPred: p.Label, YProba: p.Probability}
	}

	f, err := os.Create(*output)
	if err != nil {
		log.Fatal().Err(err).Str("path", *output).Msg("failed to create result file")
	}
	err = ml.WriteScoredCSV(f, rows)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		log.Fatal().Err(err).Str("path", *output).Msg("failed to write results")
	}

	log.Info().
		Int("rows", len(rows)).
		Int("workers", c.BatchWorkers).
		Dur("elapsed", time.Since(start)).
		Str("version", pipeline.Info().Version).
		Str("output", *output).
		Msg("Batch prediction complete")
}
