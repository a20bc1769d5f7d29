package main

import (
	"flag"
	"os"
	"path/filepath"

	"wallet-risk/internal/wallet"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		output = flag.String("output", "data/raw.csv", "Destination CSV")
		rows   = flag.Int("rows", 5000, "Number of wallets to generate")
		seed   = flag.Int64("seed", 1, "Generator seed")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *rows < 10 {
		log.Fatal().Int("rows", *rows).Msg("need at least 10 rows for a stratified split")
	}
	if err := os.MkdirAll(filepath.Dir(*output), 0o755); err != nil {
		log.Fatal().Err(err).Msg("output directory unavailable")
	}

	data := wallet.Synthetic(*rows, *seed)
	if err := wallet.SaveLabeledCSV(*output, data); err != nil {
		log.Fatal().Err(err).Str("path", *output).Msg("failed to write dataset")
	}

	positives := 0
	for _, d := range data {
		positives += d.Target
	}
	log.Info().
		Str("path", *output).
		Int("rows", len(data)).
		Int("positives", positives).
		Int64("seed", *seed).
		Msg("Generated synthetic wallets")
}
