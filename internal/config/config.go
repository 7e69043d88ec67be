// OpeningScout - Chess Opening Performance Statistics and Recommendations
// Copyright 2026 Chess Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chesslabs/openingscout

// Package config holds all application configuration loaded via Koanf v2.
//
// Configuration loading order:
//  1. Defaults: built-in sensible defaults for every setting
//  2. Config file: optional YAML file (config.yaml) for persistent settings
//  3. Environment variables: override any setting (LICHESS_TIMEOUT, ...)
//
// Every recognized field is enumerated and defaulted here and validated at
// load time, so the rest of the codebase never sees a half-formed config.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/chesslabs/openingscout/internal/models"
)

// Config is the root configuration for OpeningScout.
type Config struct {
	Lichess    LichessConfig    `koanf:"lichess"`
	Inference  InferenceConfig  `koanf:"inference"`
	Checkpoint CheckpointConfig `koanf:"checkpoint"`
	Openings   OpeningsConfig   `koanf:"openings"`
	Pipeline   PipelineConfig   `koanf:"pipeline"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// LichessConfig configures the upstream game-data API client.
type LichessConfig struct {
	// BaseURL of the Lichess API.
	BaseURL string `koanf:"base_url"`

	// Timeout applies per HTTP request, independent of the retry budget.
	Timeout time.Duration `koanf:"timeout"`

	// MaxRetries bounds backoff retries for 429/5xx/network failures.
	MaxRetries int `koanf:"max_retries"`

	// RetryBaseDelay is doubled on each successive retry attempt.
	RetryBaseDelay time.Duration `koanf:"retry_base_delay"`

	// BatchSize is the maximum number of games requested per stream batch.
	BatchSize int `koanf:"batch_size"`

	// RequestsPerSecond paces outgoing requests (Lichess bans aggressive
	// clients by IP). Zero disables pacing.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
}

// InferenceConfig configures the downstream inference service.
type InferenceConfig struct {
	URL      string        `koanf:"url"`
	APIToken string        `koanf:"api_token"`
	Timeout  time.Duration `koanf:"timeout"`
}

// CheckpointConfig configures the BadgerDB-backed checkpoint store.
type CheckpointConfig struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string `koanf:"path"`

	// InMemory runs Badger without disk persistence (tests, ephemeral runs).
	InMemory bool `koanf:"in_memory"`

	// MaxAge after which a stored checkpoint is flagged stale.
	MaxAge time.Duration `koanf:"max_age"`
}

// OpeningsConfig locates the training catalogs: one JSON file per color
// mapping opening names to the stable ids the model was trained with.
type OpeningsConfig struct {
	WhitePath string `koanf:"white_path"`
	BlackPath string `koanf:"black_path"`
}

// PipelineConfig configures the orchestrated run.
type PipelineConfig struct {
	// MaxGames caps how many valid games one subject aggregate may contain.
	MaxGames int `koanf:"max_games"`

	// SaveInterval is the number of accepted games between checkpoint saves.
	SaveInterval int `koanf:"save_interval"`

	// MaxRatingDelta is the largest allowed rating gap between opponents.
	MaxRatingDelta int `koanf:"max_rating_delta"`

	// MinPlies is the minimum number of timed half-moves per game.
	MinPlies int `koanf:"min_plies"`

	// SpeedWeights maps each time-control tier to its accumulation weight.
	// Slower games carry more weight; these are tunable heuristics.
	SpeedWeights map[string]int `koanf:"speed_weights"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Weight returns the accumulation weight for the given speed, defaulting to 1
// for any speed without an explicit entry.
func (p PipelineConfig) Weight(speed models.Speed) int {
	if w, ok := p.SpeedWeights[string(speed)]; ok && w > 0 {
		return w
	}
	return 1
}

// Validate checks the configuration for malformed or missing values.
// Inference URL is the only required external setting; everything else has a
// usable default.
func (c *Config) Validate() error {
	if c.Lichess.BaseURL == "" {
		return fmt.Errorf("lichess.base_url must not be empty")
	}
	if _, err := url.Parse(c.Lichess.BaseURL); err != nil {
		return fmt.Errorf("lichess.base_url is not a valid URL: %w", err)
	}
	if c.Lichess.MaxRetries < 0 {
		return fmt.Errorf("lichess.max_retries must not be negative")
	}
	if c.Lichess.BatchSize <= 0 {
		return fmt.Errorf("lichess.batch_size must be positive")
	}
	if c.Inference.URL == "" {
		return fmt.Errorf("inference.url is required")
	}
	if _, err := url.Parse(c.Inference.URL); err != nil {
		return fmt.Errorf("inference.url is not a valid URL: %w", err)
	}
	if !c.Checkpoint.InMemory && c.Checkpoint.Path == "" {
		return fmt.Errorf("checkpoint.path is required unless checkpoint.in_memory is set")
	}
	if c.Openings.WhitePath == "" || c.Openings.BlackPath == "" {
		return fmt.Errorf("openings.white_path and openings.black_path are required")
	}
	if c.Pipeline.MaxGames <= 0 {
		return fmt.Errorf("pipeline.max_games must be positive")
	}
	if c.Pipeline.SaveInterval <= 0 {
		return fmt.Errorf("pipeline.save_interval must be positive")
	}
	if c.Pipeline.MinPlies < 0 {
		return fmt.Errorf("pipeline.min_plies must not be negative")
	}
	for speed, weight := range c.Pipeline.SpeedWeights {
		if _, ok := models.ParseSpeed(speed); !ok {
			return fmt.Errorf("pipeline.speed_weights: unknown speed %q", speed)
		}
		if weight <= 0 {
			return fmt.Errorf("pipeline.speed_weights[%s] must be positive", speed)
		}
	}
	return nil
}
