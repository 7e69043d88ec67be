// OpeningScout - Chess Opening Performance Statistics and Recommendations
// Copyright 2026 Chess Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chesslabs/openingscout

// Package openings provides the reference catalog of openings the model was
// trained on. Games whose opening is not in the catalog are filtered out
// because the inference service cannot score openings it has never seen.
//
// The training pipeline exports one JSON artifact per color mapping opening
// name to a stable numeric training ID:
//
//	{"Sicilian Defense": 17, "Caro-Kann Defense": 42, ...}
package openings

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/chesslabs/openingscout/internal/logging"
	"github.com/chesslabs/openingscout/internal/models"
)

// Catalog is an immutable opening name -> training ID lookup for one color.
// Contains and TrainingID are O(1); the catalog is safe for concurrent reads.
type Catalog struct {
	color models.Color
	ids   map[string]int
}

// New builds a catalog from an in-memory name -> training ID map.
func New(color models.Color, ids map[string]int) *Catalog {
	return &Catalog{color: color, ids: ids}
}

// LoadFile reads a model-artifact JSON file mapping opening names to training
// IDs. A missing or malformed artifact is a permanent failure: without the
// catalog no game can be classified, so the caller should not proceed.
func LoadFile(color models.Color, path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read opening catalog for %s: %w", color, err)
	}

	ids := make(map[string]int)
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("parse opening catalog for %s: %w", color, err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("opening catalog for %s is empty", color)
	}

	logging.Info().Str("color", string(color)).Int("openings", len(ids)).Msg("Loaded opening catalog")

	return New(color, ids), nil
}

// Color returns the color this catalog was trained for.
func (c *Catalog) Color() models.Color {
	return c.color
}

// Len returns the number of openings in the catalog.
func (c *Catalog) Len() int {
	return len(c.ids)
}

// Contains reports whether the named opening is in the training set.
func (c *Catalog) Contains(name string) bool {
	_, ok := c.ids[name]
	return ok
}

// TrainingID returns the stable numeric ID for the named opening.
func (c *Catalog) TrainingID(name string) (int, bool) {
	id, ok := c.ids[name]
	return id, ok
}
