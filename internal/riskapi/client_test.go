package riskapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wallet-risk/internal/ml"
	"wallet-risk/internal/wallet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubServer answers like the scoring server: wallets that borrowed more
// than 10 times are risky, a zero borrow timestamp is rejected.
func stubServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	score := func(w http.ResponseWriter, r *http.Request) (ml.Prediction, bool) {
		w.Header().Set("Content-Type", "application/json")
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		rec, err := wallet.DecodeStrict(data)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(ml.ErrorResponse{Error: err.Error()})
			return ml.Prediction{}, false
		}
		if rec.BorrowTimestamp == 0 {
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(ml.ErrorResponse{Error: "bad timestamp", Reason: ml.ReasonInvalidTimestamp})
			return ml.Prediction{}, false
		}
		if rec.BorrowCount > 10 {
			return ml.Prediction{Label: 1, Probability: 0.9, ModelVersion: "gbdt-stub"}, true
		}
		return ml.Prediction{Label: 0, Probability: 0.1, ModelVersion: "gbdt-stub"}, true
	}
	mux.HandleFunc("/predict", func(w http.ResponseWriter, r *http.Request) {
		if p, ok := score(w, r); ok {
			json.NewEncoder(w).Encode(ml.PredictResponse{Prediction: p.Label})
		}
	})
	mux.HandleFunc("/score", func(w http.ResponseWriter, r *http.Request) {
		if p, ok := score(w, r); ok {
			json.NewEncoder(w).Encode(ml.ScoreResponse{Prediction: p.Label, Probability: p.Probability, ModelVersion: p.ModelVersion})
		}
	})
	mux.HandleFunc("/model/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ml.ModelInfo{Version: "gbdt-stub", FeatureCount: 2, Features: []string{"a", "b"}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Predict(t *testing.T) {
	srv := stubServer(t)
	c := NewClient(srv.URL+"/", time.Second)

	rec := wallet.Synthetic(1, 3)[0].Record
	rec.BorrowCount = 20
	got, err := c.Predict(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	rec.BorrowCount = 2
	got, err = c.Predict(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, 0, got)
}

func TestClient_Score(t *testing.T) {
	srv := stubServer(t)
	c := NewClient(srv.URL, time.Second)

	rec := wallet.Synthetic(1, 4)[0].Record
	rec.BorrowCount = 11
	resp, err := c.Score(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Prediction)
	assert.Equal(t, 0.9, resp.Probability)
	assert.Equal(t, "gbdt-stub", resp.ModelVersion)
}

func TestClient_Info(t *testing.T) {
	srv := stubServer(t)
	info, err := NewClient(srv.URL, 0).Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "gbdt-stub", info.Version)
	assert.Equal(t, []string{"a", "b"}, info.Features)
}

func TestClient_APIError(t *testing.T) {
	srv := stubServer(t)
	c := NewClient(srv.URL, time.Second)

	rec := wallet.Synthetic(1, 5)[0].Record
	rec.BorrowTimestamp = 0
	_, err := c.Predict(context.Background(), rec)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, ml.ReasonInvalidTimestamp, apiErr.Body.Reason)
	assert.Contains(t, err.Error(), "422")
}

func TestClient_CancelledContext(t *testing.T) {
	srv := stubServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(srv.URL, time.Second).Predict(ctx, wallet.Synthetic(1, 6)[0].Record)
	assert.ErrorIs(t, err, context.Canceled)
}
