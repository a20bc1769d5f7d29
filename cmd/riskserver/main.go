package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"wallet-risk/internal/cfg"
	"wallet-risk/internal/dashboard"
	"wallet-risk/internal/metrics"
	"wallet-risk/internal/ml"
	"wallet-risk/internal/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const modelAgeInterval = 30 * time.Second

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if err := cfg.SetupLogger(c.LogLevel, c.LogFormat); err != nil {
		log.Fatal().Err(err).Msg("logger setup failed")
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	recorder := metrics.NewMLRecorder(m)

	// Artifacts are loaded exactly once; a bad pair stops startup.
	pipeline := initializePipeline(c, recorder)
	if c.SelfCheck {
		runSelfCheck(ctx, c, pipeline)
	}

	server := ml.NewModelServer(pipeline, c.ServerConfig(), promhttp.Handler(), recorder)

	var wg sync.WaitGroup
	// An interface holding a nil *DriftMonitor is not nil, so only
	// assign a running monitor.
	var drift dashboard.DriftSource
	if c.DriftEnabled {
		if dm := initializeDriftMonitor(c, pipeline, recorder); dm != nil {
			server.SetDriftMonitor(dm)
			startDriftReporter(ctx, &wg, dm, c.DriftInterval)
			drift = dm
		}
	}
	startModelAgeReporter(ctx, &wg, c, pipeline)

	if c.DashboardEnabled {
		monitor := initializeDashboard(server, pipeline, drift, c.DashboardInterval)
		defer monitor.Stop()
	}

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("model server failed")
			cancel()
		}
	}()

	// Wait for shutdown signal
	waitForShutdown(ctx, cancel, server, &wg)
}

// initializePipeline loads the artifact pair and builds the serving pipeline
func initializePipeline(c cfg.Settings, recorder *metrics.MLRecorder) *ml.Pipeline {
	pre, model, err := ml.LoadArtifacts(c.ArtifactPaths())
	if err != nil {
		log.Fatal().Err(err).Msg("artifact load failed")
	}

	pipeline, err := ml.NewPipeline(pre, model, recorder)
	if err != nil {
		log.Fatal().Err(err).Msg("pipeline construction failed")
	}

	info := pipeline.Info()
	log.Info().
		Str("version", info.Version).
		Str("fingerprint", info.Fingerprint).
		Int("features", info.FeatureCount).
		Msg("Pipeline loaded")
	return pipeline
}

// runSelfCheck replays the stored fixtures of the loaded model version
func runSelfCheck(ctx context.Context, c cfg.Settings, pipeline *ml.Pipeline) {
	if err := os.MkdirAll(c.DataPath, 0o755); err != nil {
		log.Fatal().Err(err).Str("path", c.DataPath).Msg("data directory unavailable")
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("fixture store unavailable")
	}
	defer store.Close()

	if err := ml.SelfCheck(ctx, pipeline, store); err != nil {
		log.Fatal().Err(err).Msg("fixture self-check failed")
	}
}

// initializeDriftMonitor returns nil when no usable baseline exists
func initializeDriftMonitor(c cfg.Settings, pipeline *ml.Pipeline, recorder *metrics.MLRecorder) *ml.DriftMonitor {
	baseline, err := ml.LoadDriftBaseline(c.BaselinePath)
	if err != nil {
		log.Warn().Err(err).Msg("drift baseline unavailable, monitoring disabled")
		return nil
	}
	if version := pipeline.Info().Version; baseline.ModelVersion != version {
		log.Warn().
			Str("baseline_version", baseline.ModelVersion).
			Str("model_version", version).
			Msg("drift baseline belongs to another model, monitoring disabled")
		return nil
	}

	dm, err := ml.NewDriftMonitor(baseline, c.Drift, recorder)
	if err != nil {
		log.Warn().Err(err).Msg("drift monitor setup failed, monitoring disabled")
		return nil
	}
	log.Info().Int("baseline_samples", len(baseline.Scores)).Dur("interval", c.DriftInterval).Msg("Drift monitoring enabled")
	return dm
}

// initializeDashboard mounts the live monitor under /dashboard
func initializeDashboard(server *ml.ModelServer, pipeline *ml.Pipeline, drift dashboard.DriftSource, interval time.Duration) *dashboard.Monitor {
	monitor := dashboard.NewMonitor(pipeline, drift, interval)
	server.Mount("/dashboard", monitor.Handler())
	if err := monitor.Start(); err != nil {
		log.Fatal().Err(err).Msg("dashboard start failed")
	}
	log.Info().Str("path", "/dashboard/").Msg("Monitoring dashboard mounted")
	return monitor
}

// startDriftReporter refreshes the drift gauges on every tick
func startDriftReporter(ctx context.Context, wg *sync.WaitGroup, dm *ml.DriftMonitor, interval time.Duration) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := dm.Status()
				log.Debug().
					Int("window", st.WindowSamples).
					Float64("psi", st.PSI).
					Float64("ks", st.KS).
					Bool("ready", st.Ready).
					Msg("drift status")
			}
		}
	}()
}

// startModelAgeReporter keeps the model age gauge current
func startModelAgeReporter(ctx context.Context, wg *sync.WaitGroup, c cfg.Settings, pipeline *ml.Pipeline) {
	fi, err := os.Stat(c.ModelPath)
	if err != nil {
		log.Warn().Err(err).Msg("model file stat failed, model age not reported")
		return
	}
	writtenAt := fi.ModTime()
	pipeline.ObserveModelAge(writtenAt)

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(modelAgeInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pipeline.ObserveModelAge(writtenAt)
			}
		}
	}()
}

// waitForShutdown waits for shutdown signals and handles graceful shutdown
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, server *ml.ModelServer, wg *sync.WaitGroup) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel() // Cancel context to stop all goroutines

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown model server")
	}

	// Wait for all goroutines to finish with timeout
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all goroutines stopped")
	case <-shutdownCtx.Done():
		log.Warn().Msg("shutdown timeout, forcing exit")
	}
}
