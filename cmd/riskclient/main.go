package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"wallet-risk/internal/dashboard"
	"wallet-risk/internal/riskapi"
	"wallet-risk/internal/wallet"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:8000", "Scoring server base URL")
		samplesDir = flag.String("samples", "samples", "Directory holding Sample_*.json files")
		timeout    = flag.Duration("timeout", 5*time.Second, "Per-request timeout")
		score      = flag.Bool("score", false, "Call /score instead of /predict")
		watch      = flag.Bool("watch", false, "Follow the monitoring dashboard stream instead of sending samples")
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	// Setup logging
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *watch {
		watchDashboard(*baseURL)
		return
	}

	files, err := filepath.Glob(filepath.Join(*samplesDir, "Sample_*.json"))
	if err != nil {
		log.Fatal().Err(err).Msg("invalid samples pattern")
	}
	if len(files) == 0 {
		log.Fatal().Str("dir", *samplesDir).Msg("no sample files found")
	}
	sort.Strings(files)

	client := riskapi.NewClient(*baseURL, *timeout)
	ctx := context.Background()

	failed := 0
	for _, f := range files {
		records, err := wallet.LoadSamplesJSON(f)
		if err != nil || len(records) == 0 {
			log.Error().Err(err).Str("file", f).Msg("unreadable sample")
			failed++
			continue
		}

		// Only the first object of each sample file is sent.
		if *score {
			resp, err := client.Score(ctx, records[0])
			if err != nil {
				log.Error().Err(err).Str("file", f).Msg("score request failed")
				failed++
				continue
			}
			log.Info().
				Str("file", filepath.Base(f)).
				Int("prediction", resp.Prediction).
				Float64("probability", resp.Probability).
				Str("version", resp.ModelVersion).
				Msg("scored")
			continue
		}

		label, err := client.Predict(ctx, records[0])
		if err != nil {
			log.Error().Err(err).Str("file", f).Msg("predict request failed")
			failed++
			continue
		}
		log.Info().Str("file", filepath.Base(f)).Int("prediction", label).Msg("predicted")
	}

	if failed > 0 {
		log.Fatal().Int("failed", failed).Int("total", len(files)).Msg("some samples failed")
	}
}

// watchDashboard logs every monitoring snapshot until interrupted.
func watchDashboard(baseURL string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	u := strings.TrimSuffix(baseURL, "/") + "/dashboard/ws"
	u = "ws" + strings.TrimPrefix(u, "http")

	snapshots := make(chan dashboard.Snapshot, 16)
	errs := make(chan error, 4)
	go func() {
		if err := riskapi.NewStream(u).Watch(ctx, snapshots, errs); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("dashboard stream stopped")
		}
	}()

	log.Info().Str("url", u).Msg("Watching dashboard stream")
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errs:
			log.Debug().Err(err).Msg("stream error")
		case s := <-snapshots:
			ev := log.Info().
				Str("version", s.Model.Version).
				Float64("uptime_s", s.Uptime).
				Int("clients", s.Clients)
			if s.Drift != nil {
				ev = ev.Int("window", s.Drift.WindowSamples).
					Float64("psi", s.Drift.PSI).
					Str("severity", s.Drift.Severity)
			}
			ev.Msg("snapshot")
		}
	}
}
