// OpeningScout - Chess Opening Performance Statistics and Recommendations
// Copyright 2026 Chess Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chesslabs/openingscout

// Package inference talks to the model-serving endpoint that turns a
// player's aggregated opening statistics into scored recommendations. The
// endpoint scales to zero when idle, so callers should Wake it as early as
// possible and Predict only once the aggregate is ready.
package inference

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/chesslabs/openingscout/internal/config"
	"github.com/chesslabs/openingscout/internal/logging"
	"github.com/chesslabs/openingscout/internal/metrics"
	"github.com/chesslabs/openingscout/internal/models"
)

// ErrInvalidResponse wraps schema-validation failures of the service's
// response. The request succeeded at the HTTP level but the payload cannot
// be trusted.
var ErrInvalidResponse = errors.New("inference response failed validation")

// maxResponseSize bounds how much of a response body is read.
const maxResponseSize = 4 * 1024 * 1024 // 4MB

// Client calls the inference service.
type Client struct {
	url      string
	apiToken string
	client   *http.Client
	validate *validator.Validate
}

// NewClient creates an inference client from configuration.
func NewClient(cfg *config.InferenceConfig) *Client {
	return &Client{
		url:      cfg.URL,
		apiToken: cfg.APIToken,
		client:   &http.Client{Timeout: cfg.Timeout},
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Wake pings the service so a scaled-to-zero instance starts booting while
// games are still streaming. Fire-and-forget: failures are logged, never
// returned, because the Predict call later is what actually matters.
func (c *Client) Wake(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/health", http.NoBody)
	if err != nil {
		logging.Debug().Err(err).Msg("Inference wake request could not be built")
		return
	}
	c.setAuth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		logging.Debug().Err(err).Msg("Inference wake ping failed; the service may still be booting")
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))

	logging.Debug().Int("status", resp.StatusCode).Msg("Inference service pinged")
}

// Predict submits the aggregate and returns validated recommendations.
func (c *Client) Predict(ctx context.Context, predictReq *models.PredictRequest) (*models.PredictResponse, error) {
	start := time.Now()

	body, err := json.Marshal(predictReq)
	if err != nil {
		return nil, fmt.Errorf("marshal predict request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.InferenceRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("predict request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.InferenceRequestsTotal.WithLabelValues("error").Inc()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("predict request returned status %d: %s", resp.StatusCode, snippet)
	}

	var predictResp models.PredictResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&predictResp); err != nil {
		metrics.InferenceRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("decode predict response: %w", err)
	}

	if err := c.validate.Struct(&predictResp); err != nil {
		metrics.InferenceRequestsTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	metrics.InferenceRequestsTotal.WithLabelValues("success").Inc()
	metrics.InferenceDuration.Observe(time.Since(start).Seconds())

	logging.Info().Str("request_id", predictResp.RequestID).
		Int("recommendations", len(predictResp.Recommendations)).
		Str("model_version", predictResp.ModelVersion).
		Msg("Received opening recommendations")

	return &predictResp, nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}
}
