// OpeningScout - Chess Opening Performance Statistics and Recommendations
// Copyright 2026 Chess Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chesslabs/openingscout

/*
client.go - Core Lichess API client

This file provides the core Client struct and HTTP communication layer for the
Lichess REST API.

Resilience mechanisms:
  - Rate pacing: golang.org/x/time/rate limiter in front of every request
  - Backoff: exponential (1s, 2s, 4s, 8s, 16s) on HTTP 429 and 5xx,
    honoring Retry-After when the server supplies it
  - Jitter: computed delay perturbed by ±20% uniformly, clamped non-negative
  - Retries: bounded budget (default 5 attempts), network errors included
  - Context: all methods accept context for cancellation, including waits

Non-retryable client errors (4xx other than 429) are returned immediately.
After the retry budget is exhausted the last failing HTTP response is returned
as-is so callers can map its status to a user-facing message; exhausted
network-level failures surface the underlying error instead.

Related files:
  - stream.go:  NDJSON game stream decoding
  - profile.go: user profile fetch and rating selection
  - breaker.go: circuit breaker wrapper
*/

//nolint:staticcheck // File documentation, not package doc
package lichess

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/chesslabs/openingscout/internal/config"
	"github.com/chesslabs/openingscout/internal/logging"
	"github.com/chesslabs/openingscout/internal/metrics"
)

// Sentinel errors for upstream failures the pipeline maps to user-facing
// messages.
var (
	ErrUserNotFound = errors.New("user not found on Lichess")
	ErrRateLimited  = errors.New("too many requests")
	ErrServerError  = errors.New("Lichess server error")
)

// maxErrorBodySize limits how much of a response body is read for error
// reporting, preventing unbounded allocation on large error responses.
const maxErrorBodySize = 64 * 1024 // 64KB

// RetryNotifyFunc is invoked before each backoff wait with a human-readable
// status message and the attempt count. This is the only side channel to the
// caller during a long wait; the UI uses it to explain the delay.
type RetryNotifyFunc func(message string, attempt int)

// Client handles communication with the Lichess HTTP API.
//
// Thread safety: safe for concurrent use; each request creates its own
// http.Request and the limiter is internally synchronized.
type Client struct {
	baseURL        string
	client         *http.Client
	limiter        *rate.Limiter
	maxRetries     int
	retryBaseDelay time.Duration
	batchSize      int
	onRetry        RetryNotifyFunc
}

// NewClient creates a Lichess API client from configuration.
// The notify callback may be nil.
func NewClient(cfg *config.LichessConfig, notify RetryNotifyFunc) *Client {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		baseURL:        cfg.BaseURL,
		client:         &http.Client{Timeout: cfg.Timeout},
		limiter:        limiter,
		maxRetries:     cfg.MaxRetries,
		retryBaseDelay: cfg.RetryBaseDelay,
		batchSize:      cfg.BatchSize,
		onRetry:        notify,
	}
}

// BatchSize returns the configured maximum games per stream batch.
func (c *Client) BatchSize() int {
	return c.batchSize
}

// isRetryableStatus reports whether an HTTP status should be retried with
// backoff: rate limiting and server-side errors only.
func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// backoffDelay computes the pre-jitter delay for the given attempt (0-based):
// the base delay doubled per attempt, unless the server supplied a usable
// Retry-After hint, which takes precedence.
func (c *Client) backoffDelay(attempt int, retryAfter string) time.Duration {
	delay := c.retryBaseDelay * time.Duration(1<<uint(attempt))

	if retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds >= 0 {
			delay = time.Duration(seconds) * time.Second
		}
	}

	return delay
}

// applyJitter perturbs the delay by ±20% uniformly at random and clamps the
// result to be non-negative, to avoid thundering-herd retries.
func applyJitter(delay time.Duration) time.Duration {
	jitter := time.Duration(float64(delay) * 0.2 * (rand.Float64()*2 - 1))
	if delay+jitter < 0 {
		return 0
	}
	return delay + jitter
}

// doRequestWithBackoff performs a GET with the full retry policy described in
// the file header. The context cancels both in-flight requests and backoff
// waits.
func (c *Client) doRequestWithBackoff(ctx context.Context, endpoint, reqURL, accept string) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		if accept != "" {
			req.Header.Set("Accept", accept)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			// Network-level failure (includes timeouts). Retry with backoff;
			// exhaustion surfaces the underlying error.
			if attempt >= c.maxRetries {
				metrics.FetchRequestsTotal.WithLabelValues(endpoint, "retryable").Inc()
				return nil, fmt.Errorf("request failed after %d retries: %w", c.maxRetries, err)
			}

			delay := applyJitter(c.backoffDelay(attempt, ""))
			c.notifyRetry(fmt.Sprintf("Network error (Attempt %d/%d). Retrying in %.1fs...",
				attempt+1, c.maxRetries, delay.Seconds()), attempt+1)

			if waitErr := sleepCtx(ctx, delay); waitErr != nil {
				return nil, waitErr
			}
			metrics.FetchRetriesTotal.Inc()
			continue
		}

		if !isRetryableStatus(resp.StatusCode) {
			if resp.StatusCode >= 400 {
				metrics.FetchRequestsTotal.WithLabelValues(endpoint, "permanent").Inc()
			} else {
				metrics.FetchRequestsTotal.WithLabelValues(endpoint, "success").Inc()
			}
			return resp, nil
		}

		// Rate limited or server error. The last attempt returns the failing
		// response itself so the caller can inspect the status.
		if attempt >= c.maxRetries {
			metrics.FetchRequestsTotal.WithLabelValues(endpoint, "retryable").Inc()
			return resp, nil
		}

		retryAfter := resp.Header.Get("Retry-After")
		_ = resp.Body.Close()

		delay := applyJitter(c.backoffDelay(attempt, retryAfter))
		c.notifyRetry(fmt.Sprintf("Server is busy (Attempt %d/%d). Retrying in %.1fs...",
			attempt+1, c.maxRetries, delay.Seconds()), attempt+1)

		if waitErr := sleepCtx(ctx, delay); waitErr != nil {
			return nil, waitErr
		}
		metrics.FetchRetriesTotal.Inc()
	}
}

// notifyRetry invokes the retry callback if one is configured.
func (c *Client) notifyRetry(message string, attempt int) {
	logging.Debug().Int("attempt", attempt).Msg(message)
	if c.onRetry != nil {
		c.onRetry(message, attempt)
	}
}

// sleepCtx waits for the given duration or until the context is canceled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// statusError maps a non-2xx Lichess response to a sentinel error with a
// short diagnostic read from the body.
func statusError(resp *http.Response) error {
	body := readBodyForError(resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrUserNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode >= 500:
		return ErrServerError
	default:
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}
}

// readBodyForError reads up to maxErrorBodySize bytes of a response body for
// diagnostics. Returns a placeholder if reading fails.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("\n... (truncated)")...)
	}
	return body
}
