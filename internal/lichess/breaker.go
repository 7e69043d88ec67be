// OpeningScout - Chess Opening Performance Statistics and Recommendations
// Copyright 2026 Chess Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chesslabs/openingscout

package lichess

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/chesslabs/openingscout/internal/config"
	"github.com/chesslabs/openingscout/internal/logging"
	"github.com/chesslabs/openingscout/internal/metrics"
	"github.com/chesslabs/openingscout/internal/models"
)

// GameSource is the upstream contract the pipeline depends on. Client and
// BreakerClient both implement it; tests substitute fakes.
type GameSource interface {
	GetUserProfile(ctx context.Context, username string) (*models.UserProfile, error)
	StreamGames(ctx context.Context, req StreamRequest) (*GameStream, error)
	BatchSize() int
}

// BreakerClient wraps Client with a circuit breaker so a struggling Lichess
// API fails fast instead of stacking up slow doomed requests on top of the
// backoff retries.
//
// DETERMINISM NOTE: the breaker uses real time (via sony/gobreaker) for its
// interval and timeout calculations. Unit tests should exercise the wrapped
// Client directly.
type BreakerClient struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[any]
	name   string
}

// NewBreakerClient creates a Lichess client protected by a circuit breaker.
// The breaker opens after a 60% failure rate over at least 10 requests and
// probes recovery after 2 minutes.
func NewBreakerClient(cfg *config.LichessConfig, notify RetryNotifyFunc) *BreakerClient {
	client := NewClient(cfg, notify)
	cbName := "lichess-api"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6
			if shouldTrip {
				logging.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", failureRatio*100).Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("from", stateToString(from)).Str("to", stateToString(to)).Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &BreakerClient{client: client, cb: cb, name: cbName}
}

// GetUserProfile fetches a user profile through the circuit breaker.
func (b *BreakerClient) GetUserProfile(ctx context.Context, username string) (*models.UserProfile, error) {
	result, err := b.execute(func() (any, error) {
		return b.client.GetUserProfile(ctx, username)
	})
	return castResult[models.UserProfile](result, err)
}

// StreamGames opens a game stream through the circuit breaker. Only the
// request itself is guarded; reading the returned stream happens outside the
// breaker because a long NDJSON body is expected to take a while.
func (b *BreakerClient) StreamGames(ctx context.Context, req StreamRequest) (*GameStream, error) {
	result, err := b.execute(func() (any, error) {
		return b.client.StreamGames(ctx, req)
	})
	return castResult[GameStream](result, err)
}

// BatchSize returns the wrapped client's configured batch size.
func (b *BreakerClient) BatchSize() int {
	return b.client.BatchSize()
}

// execute wraps an API call with circuit breaker protection and metrics.
func (b *BreakerClient) execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
			logging.Warn().Err(err).Msg("[CIRCUIT BREAKER] Request rejected")
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		}
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	return result, nil
}

// castResult safely type-casts the circuit breaker result.
func castResult[T any](result any, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	typed, ok := result.(*T)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
