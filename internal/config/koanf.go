// OpeningScout - Chess Opening Performance Statistics and Recommendations
// Copyright 2026 Chess Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chesslabs/openingscout

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/openingscout/config.yaml",
	"/etc/openingscout/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Default returns a Config populated with every built-in default.
func Default() *Config {
	return &Config{
		Lichess: LichessConfig{
			BaseURL:           "https://lichess.org",
			Timeout:           30 * time.Second,
			MaxRetries:        5,
			RetryBaseDelay:    time.Second,
			BatchSize:         5000,
			RequestsPerSecond: 2,
		},
		Inference: InferenceConfig{
			URL:      "",
			APIToken: "",
			Timeout:  60 * time.Second,
		},
		Checkpoint: CheckpointConfig{
			Path:     "/data/openingscout",
			InMemory: false,
			MaxAge:   7 * 24 * time.Hour,
		},
		Openings: OpeningsConfig{
			WhitePath: "data/openings_white.json",
			BlackPath: "data/openings_black.json",
		},
		Pipeline: PipelineConfig{
			MaxGames:       200_000,
			SaveInterval:   100,
			MaxRatingDelta: 100,
			MinPlies:       12,
			SpeedWeights: map[string]int{
				"blitz":     1,
				"rapid":     2,
				"classical": 3,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration using Koanf v2 with layered sources:
// defaults, then an optional YAML config file, then environment variables.
// The result is validated before being returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: optional config file
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	// LICHESS_MAX_RETRIES -> lichess.max_retries, INFERENCE_URL -> inference.url
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// configSections are the recognized top-level env var prefixes.
var configSections = []string{"lichess", "inference", "checkpoint", "openings", "pipeline", "logging"}

// envTransformFunc transforms environment variable names to koanf paths:
// the section prefix becomes the first path segment, the rest stays
// underscore-joined.
//
//	LICHESS_BASE_URL    -> lichess.base_url
//	INFERENCE_API_TOKEN -> inference.api_token
//	PIPELINE_MAX_GAMES  -> pipeline.max_games
//
// Variables outside the recognized sections are dropped so unrelated
// environment noise cannot leak into the config.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	for _, section := range configSections {
		prefix := section + "_"
		if strings.HasPrefix(key, prefix) {
			return section + "." + strings.TrimPrefix(key, prefix)
		}
	}

	return ""
}

// findConfigFile searches for a config file, honoring CONFIG_PATH first.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}
