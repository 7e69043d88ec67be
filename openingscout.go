// OpeningScout - Chess Opening Performance Statistics and Recommendations
// Copyright 2026 Chess Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chesslabs/openingscout

// Package openingscout analyzes a Lichess player's rated games and
// recommends openings. It streams the player's game history, validates and
// aggregates per-opening results, checkpoints progress so interrupted runs
// resume, and submits the aggregate to a model-serving endpoint for scored
// recommendations.
//
// Typical use:
//
//	cfg, err := config.Load()
//	svc, err := openingscout.New(cfg)
//	defer svc.Close()
//	result := svc.Recommend(ctx, openingscout.Request{
//		Username:      "somebody",
//		Color:         models.ColorWhite,
//		AllowedSpeeds: models.AllSpeeds,
//	})
package openingscout

import (
	"context"
	"fmt"

	"github.com/chesslabs/openingscout/internal/checkpoint"
	"github.com/chesslabs/openingscout/internal/config"
	"github.com/chesslabs/openingscout/internal/inference"
	"github.com/chesslabs/openingscout/internal/lichess"
	"github.com/chesslabs/openingscout/internal/logging"
	"github.com/chesslabs/openingscout/internal/models"
	"github.com/chesslabs/openingscout/internal/openings"
	"github.com/chesslabs/openingscout/internal/pipeline"
)

// Request and Result are the run contract, re-exported so callers only
// import this package.
type (
	Request = pipeline.Request
	Result  = pipeline.Result
)

// Option customizes Service construction.
type Option func(*options)

type options struct {
	retryNotify lichess.RetryNotifyFunc
	store       checkpoint.Store
}

// WithRetryNotify registers a callback invoked when an upstream request is
// being retried with backoff, so long waits can be explained to users.
func WithRetryNotify(fn lichess.RetryNotifyFunc) Option {
	return func(o *options) { o.retryNotify = fn }
}

// WithStore substitutes the checkpoint store, bypassing the configured
// BadgerDB. Mainly for tests.
func WithStore(store checkpoint.Store) Option {
	return func(o *options) { o.store = store }
}

// Service owns the collaborators a recommendation run needs. Construct once
// and reuse; Run state is per-call.
type Service struct {
	cfg      *config.Config
	store    checkpoint.Store
	ownStore bool
	pipeline *pipeline.Pipeline
}

// New validates the configuration, loads the opening catalogs, opens the
// checkpoint store, and wires the pipeline.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Format = cfg.Logging.Format
	logging.Init(logCfg)

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	white, err := openings.LoadFile(models.ColorWhite, cfg.Openings.WhitePath)
	if err != nil {
		return nil, fmt.Errorf("load white opening catalog: %w", err)
	}
	black, err := openings.LoadFile(models.ColorBlack, cfg.Openings.BlackPath)
	if err != nil {
		return nil, fmt.Errorf("load black opening catalog: %w", err)
	}
	catalogs := map[models.Color]*openings.Catalog{
		models.ColorWhite: white,
		models.ColorBlack: black,
	}

	store := o.store
	ownStore := false
	if store == nil {
		badgerStore, err := checkpoint.NewBadgerStore(cfg.Checkpoint.Path, cfg.Checkpoint.InMemory)
		if err != nil {
			return nil, err
		}
		store = badgerStore
		ownStore = true
	}

	source := lichess.NewBreakerClient(&cfg.Lichess, o.retryNotify)
	predictor := inference.NewClient(&cfg.Inference)

	logging.Info().Int("white_openings", white.Len()).Int("black_openings", black.Len()).
		Msg("OpeningScout service initialized")

	return &Service{
		cfg:      cfg,
		store:    store,
		ownStore: ownStore,
		pipeline: pipeline.New(source, catalogs, store, predictor, &cfg.Pipeline, cfg.Checkpoint.MaxAge),
	}, nil
}

// Recommend runs the full pipeline for one player and color. The returned
// Result is always well-formed; check Success and render Message on failure.
func (s *Service) Recommend(ctx context.Context, req Request) Result {
	return s.pipeline.Run(ctx, req)
}

// Checkpoints lists the stored checkpoint keys, for maintenance tooling.
func (s *Service) Checkpoints(ctx context.Context) ([]checkpoint.Key, error) {
	return s.store.Keys(ctx)
}

// DeleteCheckpoint removes stored progress for one player and color.
func (s *Service) DeleteCheckpoint(ctx context.Context, username string, color models.Color) error {
	return s.store.Delete(ctx, checkpoint.Key{Username: username, Color: color})
}

// Close releases the checkpoint store if the service opened it.
func (s *Service) Close() error {
	if s.ownStore {
		return s.store.Close()
	}
	return nil
}
