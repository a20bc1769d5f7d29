package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"wallet-risk/internal/wallet"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// HTTPRecorder counts requests by route and status code.
type HTTPRecorder interface {
	HTTPRequestsInc(route string, code int)
}

// ServerConfig holds the HTTP boundary settings.
type ServerConfig struct {
	Addr           string
	RequestTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxBodyBytes   int64
}

// DefaultServerConfig returns the serving defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:           ":8000",
		RequestTimeout: 5 * time.Second,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxBodyBytes:   1 << 20,
	}
}

// ModelServer provides HTTP API for wallet risk predictions
type ModelServer struct {
	pipeline *Pipeline
	cfg      ServerConfig
	recorder HTTPRecorder
	drift    *DriftMonitor
	router   *mux.Router
	server   *http.Server
}

// PredictResponse is the body of a successful /predict call.
type PredictResponse struct {
	Prediction int `json:"prediction"`
}

// ScoreResponse is the body of a successful /score call.
type ScoreResponse struct {
	Prediction   int     `json:"prediction"`
	Probability  float64 `json:"probability"`
	ModelVersion string  `json:"model_version"`
	Latency      float64 `json:"latency_ms"`
}

// ErrorResponse describes a rejected request.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Reason  string   `json:"reason,omitempty"`
	Missing []string `json:"missing,omitempty"`
	Invalid []string `json:"invalid,omitempty"`
	Unknown []string `json:"unknown,omitempty"`
}

// NewModelServer wires the routes around one long-lived pipeline.
// metricsHandler serves /metrics when non-nil.
func NewModelServer(pipeline *Pipeline, cfg ServerConfig, metricsHandler http.Handler, recorder HTTPRecorder) *ModelServer {
	defaults := DefaultServerConfig()
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaults.RequestTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaults.MaxBodyBytes
	}

	ms := &ModelServer{
		pipeline: pipeline,
		cfg:      cfg,
		recorder: recorder,
	}

	r := mux.NewRouter()
	r.HandleFunc("/predict", ms.handlePredict).Methods(http.MethodPost)
	r.HandleFunc("/score", ms.handleScore).Methods(http.MethodPost)
	r.HandleFunc("/health", ms.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/model/info", ms.handleModelInfo).Methods(http.MethodGet)
	r.HandleFunc("/model/drift", ms.handleDrift).Methods(http.MethodGet)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	}
	ms.router = r

	ms.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return ms
}

// SetDriftMonitor feeds every served probability to m and exposes its
// status on /model/drift. Call before Start.
func (ms *ModelServer) SetDriftMonitor(m *DriftMonitor) { ms.drift = m }

// Mount serves h under prefix with the prefix stripped. Call before Start.
func (ms *ModelServer) Mount(prefix string, h http.Handler) {
	ms.router.PathPrefix(prefix).Handler(http.StripPrefix(prefix, h))
}

// Handler exposes the router, mainly for tests.
func (ms *ModelServer) Handler() http.Handler { return ms.router }

// Start begins serving HTTP requests
func (ms *ModelServer) Start() error {
	log.Info().Str("addr", ms.server.Addr).Str("version", ms.pipeline.Info().Version).Msg("starting model server")
	return ms.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (ms *ModelServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}

func (ms *ModelServer) handlePredict(w http.ResponseWriter, r *http.Request) {
	pred, _, ok := ms.scoreRequest(w, r, "/predict")
	if !ok {
		return
	}
	ms.writeJSON(w, "/predict", http.StatusOK, PredictResponse{Prediction: pred.Label})
}

func (ms *ModelServer) handleScore(w http.ResponseWriter, r *http.Request) {
	pred, latency, ok := ms.scoreRequest(w, r, "/score")
	if !ok {
		return
	}
	ms.writeJSON(w, "/score", http.StatusOK, ScoreResponse{
		Prediction:   pred.Label,
		Probability:  pred.Probability,
		ModelVersion: pred.ModelVersion,
		Latency:      float64(latency.Microseconds()) / 1000,
	})
}

// scoreRequest validates the body and scores it, writing the error response
// itself when ok is false.
func (ms *ModelServer) scoreRequest(w http.ResponseWriter, r *http.Request, route string) (Prediction, time.Duration, bool) {
	start := time.Now()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, ms.cfg.MaxBodyBytes))
	if err != nil {
		ms.writeJSON(w, route, http.StatusRequestEntityTooLarge, ErrorResponse{Error: err.Error()})
		return Prediction{}, 0, false
	}

	rec, err := wallet.DecodeStrict(body)
	if err != nil {
		resp := ErrorResponse{Error: err.Error()}
		var verr *wallet.ValidationError
		if errors.As(err, &verr) {
			resp.Missing, resp.Invalid, resp.Unknown = verr.Missing, verr.Invalid, verr.Unknown
		}
		ms.writeJSON(w, route, http.StatusBadRequest, resp)
		return Prediction{}, 0, false
	}

	ctx, cancel := context.WithTimeout(r.Context(), ms.cfg.RequestTimeout)
	defer cancel()

	pred, err := ms.pipeline.Score(ctx, rec)
	if err != nil {
		reason := FailureReason(err)
		status := http.StatusInternalServerError
		switch reason {
		case ReasonInvalidTimestamp, ReasonMissingFeature:
			status = http.StatusUnprocessableEntity
		case ReasonCancelled:
			status = http.StatusServiceUnavailable
		}
		log.Warn().Err(err).Str("reason", reason).Str("wallet", rec.WalletAddress).Msg("prediction failed")
		ms.writeJSON(w, route, status, ErrorResponse{Error: fmt.Sprintf("prediction failed: %v", err), Reason: reason})
		return Prediction{}, 0, false
	}

	if ms.drift != nil {
		ms.drift.Observe(pred.Probability)
	}
	return pred, time.Since(start), true
}

func (ms *ModelServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := ms.pipeline.Info()
	ms.writeJSON(w, "/health", http.StatusOK, map[string]interface{}{
		"healthy":        true,
		"model_version":  info.Version,
		"uptime_seconds": time.Since(info.LoadedAt).Seconds(),
	})
}

func (ms *ModelServer) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	ms.writeJSON(w, "/model/info", http.StatusOK, ms.pipeline.Info())
}

func (ms *ModelServer) handleDrift(w http.ResponseWriter, r *http.Request) {
	if ms.drift == nil {
		ms.writeJSON(w, "/model/drift", http.StatusNotFound, ErrorResponse{Error: "drift monitoring is not enabled"})
		return
	}
	ms.writeJSON(w, "/model/drift", http.StatusOK, ms.drift.Status())
}

func (ms *ModelServer) writeJSON(w http.ResponseWriter, route string, status int, v interface{}) {
	if ms.recorder != nil {
		ms.recorder.HTTPRequestsInc(route, status)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Str("route", route).Msg("failed to write response")
	}
}
