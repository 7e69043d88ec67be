// OpeningScout - Chess Opening Performance Statistics and Recommendations
// Copyright 2026 Chess Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chesslabs/openingscout

// Package metrics provides Prometheus instrumentation for the pipeline:
// upstream fetch behavior, per-filter validation rejections, accumulator
// cardinality, checkpoint persistence, and circuit breaker state.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Upstream fetch metrics

	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lichess_fetch_requests_total",
			Help: "Total number of Lichess API requests by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"}, // outcome: "success", "retryable", "permanent"
	)

	FetchRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lichess_fetch_retries_total",
			Help: "Total number of backoff retries against the Lichess API",
		},
	)

	FetchBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lichess_batch_duration_seconds",
			Help:    "Duration of one game-stream batch (fetch + decode + accumulate)",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	// Stream decode metrics

	GamesDecodedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "games_decoded_total",
			Help: "Total number of games decoded from NDJSON streams",
		},
	)

	DecodeErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "games_decode_errors_total",
			Help: "Total number of malformed NDJSON lines skipped",
		},
	)

	// Validation metrics

	GamesProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "games_processed_total",
			Help: "Total number of games evaluated by the validator",
		},
	)

	GamesAcceptedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "games_accepted_total",
			Help: "Total number of games that passed all validation filters",
		},
	)

	GamesRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "games_rejected_total",
			Help: "Total number of games rejected, by filter",
		},
		[]string{"filter"}, // "rating_delta", "structure", "opening"
	)

	// Accumulator metrics

	OpeningsTracked = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "openings_tracked",
			Help: "Number of distinct openings in the current aggregate (memory is O of this, not of games processed)",
		},
		[]string{"color"},
	)

	// Checkpoint metrics

	CheckpointSavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkpoint_saves_total",
			Help: "Total number of checkpoint save attempts by outcome",
		},
		[]string{"outcome"}, // "success", "error"
	)

	CheckpointCorruptionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkpoint_corruptions_total",
			Help: "Total number of corrupted checkpoints deleted on load",
		},
	)

	// Circuit breaker metrics

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total circuit breaker requests by result",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	// Inference metrics

	InferenceRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inference_requests_total",
			Help: "Total inference requests by outcome",
		},
		[]string{"outcome"}, // "success", "invalid", "error"
	)

	InferenceDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inference_duration_seconds",
			Help:    "Duration of inference predict calls",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)
)
