package main

import (
	"encoding/json"
	"flag"
	"os"

	"wallet-risk/internal/cfg"
	"wallet-risk/internal/ml"

	"github.com/rs/zerolog/log"
)

func main() {
	var (
		input  = flag.String("input", "result.csv", "Batch prediction results")
		output = flag.String("output", "", "Write the metrics JSON here instead of stdout")
	)
	flag.Parse()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if err := cfg.SetupLogger(c.LogLevel, c.LogFormat); err != nil {
		log.Fatal().Err(err).Msg("logger setup failed")
	}

	f, err := os.Open(*input)
	if err != nil {
		log.Fatal().Err(err).Str("path", *input).Msg("failed to open results")
	}
	rows, err := ml.ReadScoredCSV(f)
	f.Close()
	if err != nil {
		log.Fatal().Err(err).Str("path", *input).Msg("failed to read results")
	}

	report, err := ml.EvaluateScored(rows)
	if err != nil {
		log.Fatal().Err(err).Msg("evaluation failed")
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("report encoding failed")
	}
	data = append(data, '\n')

	if *output == "" {
		os.Stdout.Write(data)
		return
	}
	if err := os.WriteFile(*output, data, 0o644); err != nil {
		log.Fatal().Err(err).Str("path", *output).Msg("failed to write metrics")
	}
	log.Info().
		Float64("accuracy", report.Accuracy).
		Float64("f1", report.F1).
		Float64("roc_auc", report.ROCAUC).
		Str("output", *output).
		Msg("Evaluation written")
}
