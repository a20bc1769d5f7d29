// Package riskapi is a resty client for the scoring HTTP boundary.
package riskapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"wallet-risk/internal/ml"
	"wallet-risk/internal/wallet"

	"github.com/go-resty/resty/v2"
)

type Client struct {
	base string
	rest *resty.Client
}

func NewClient(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second) // default fallback
	}
	r.SetHeader("Content-Type", "application/json")
	return &Client{base: strings.TrimRight(base, "/"), rest: r}
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status int
	Body   ml.ErrorResponse
}

func (e *APIError) Error() string {
	if e.Body.Reason != "" {
		return fmt.Sprintf("risk api: %d %s (%s)", e.Status, e.Body.Error, e.Body.Reason)
	}
	return fmt.Sprintf("risk api: %d %s", e.Status, e.Body.Error)
}

// Predict posts rec to /predict and returns the 0/1 label.
func (c *Client) Predict(ctx context.Context, rec wallet.Record) (int, error) {
	resp := &ml.PredictResponse{}
	if err := c.post(ctx, "/predict", rec, resp); err != nil {
		return 0, err
	}
	return resp.Prediction, nil
}

// Score posts rec to /score.
func (c *Client) Score(ctx context.Context, rec wallet.Record) (ml.ScoreResponse, error) {
	resp := ml.ScoreResponse{}
	err := c.post(ctx, "/score", rec, &resp)
	return resp, err
}

// Info fetches the loaded model description.
func (c *Client) Info(ctx context.Context) (ml.ModelInfo, error) {
	info := ml.ModelInfo{}
	apiErr := &ml.ErrorResponse{}
	resp, err := c.rest.R().
		SetContext(ctx).
		ForceContentType("application/json").
		SetResult(&info).
		SetError(apiErr).
		Get(c.base + "/model/info")
	if err != nil {
		return info, err
	}
	if resp.StatusCode() != http.StatusOK {
		return info, &APIError{Status: resp.StatusCode(), Body: *apiErr}
	}
	return info, nil
}

func (c *Client) post(ctx context.Context, path string, body, result interface{}) error {
	apiErr := &ml.ErrorResponse{}
	resp, err := c.rest.R().
		SetContext(ctx).
		ForceContentType("application/json").
		SetBody(body).
		SetResult(result).
		SetError(apiErr).
		Post(c.base + path)
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		if apiErr.Error == "" {
			apiErr.Error = strings.TrimSpace(resp.String())
		}
		return &APIError{Status: resp.StatusCode(), Body: *apiErr}
	}
	return nil
}
