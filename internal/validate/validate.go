// OpeningScout - Chess Opening Performance Statistics and Recommendations
// Copyright 2026 Chess Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chesslabs/openingscout

// Package validate decides which streamed games count toward a player's
// opening statistics. Filters run in a fixed order and short-circuit on the
// first failure, so per-filter rejection counters attribute each rejected
// game to exactly one cause.
package validate

import (
	"strings"

	"github.com/chesslabs/openingscout/internal/logging"
	"github.com/chesslabs/openingscout/internal/metrics"
	"github.com/chesslabs/openingscout/internal/models"
	"github.com/chesslabs/openingscout/internal/openings"
)

// Rejection identifies which filter rejected a game.
type Rejection string

const (
	// Accepted means the game passed every filter.
	Accepted Rejection = ""

	// RejectedRating means the opponents' ratings were too far apart, or a
	// rating was missing.
	RejectedRating Rejection = "rating_delta"

	// RejectedStructure means the game is not usable training material:
	// wrong variant, too short, or an unusual termination.
	RejectedStructure Rejection = "structure"

	// RejectedOpening means the opening is not in the training catalog.
	RejectedOpening Rejection = "opening"
)

// allowedStatuses are game terminations that represent a completed,
// decided-or-drawn game. Aborted and cheat-flagged games are excluded.
var allowedStatuses = map[string]struct{}{
	"mate":      {},
	"resign":    {},
	"stalemate": {},
	"timeout":   {},
	"outoftime": {},
	"draw":      {},
}

// Stats counts validation outcomes for one pipeline run.
type Stats struct {
	TotalProcessed      int
	Accepted            int
	RejectedByRating    int
	RejectedByStructure int
	RejectedByOpening   int
}

// Validator applies the acceptance filters to streamed games.
type Validator struct {
	catalog        *openings.Catalog
	maxRatingDelta int
	minPlies       int
	stats          Stats
}

// New creates a validator over the given opening catalog.
// maxRatingDelta bounds the allowed rating gap between the two players;
// minPlies is the minimum recorded clock count for a game to be long enough.
func New(catalog *openings.Catalog, maxRatingDelta, minPlies int) *Validator {
	return &Validator{
		catalog:        catalog,
		maxRatingDelta: maxRatingDelta,
		minPlies:       minPlies,
	}
}

// Check runs the filters against a game in order and returns the first
// rejection, or Accepted. Counters are updated as a side effect.
func (v *Validator) Check(game *models.Game) Rejection {
	v.stats.TotalProcessed++
	metrics.GamesProcessedTotal.Inc()

	if !v.ratingDeltaOK(game) {
		v.stats.RejectedByRating++
		metrics.GamesRejectedTotal.WithLabelValues(string(RejectedRating)).Inc()
		return RejectedRating
	}

	if !v.structureOK(game) {
		v.stats.RejectedByStructure++
		metrics.GamesRejectedTotal.WithLabelValues(string(RejectedStructure)).Inc()
		return RejectedStructure
	}

	if !v.openingOK(game) {
		v.stats.RejectedByOpening++
		metrics.GamesRejectedTotal.WithLabelValues(string(RejectedOpening)).Inc()
		return RejectedOpening
	}

	v.stats.Accepted++
	metrics.GamesAcceptedTotal.Inc()
	return Accepted
}

// Stats returns a snapshot of the validation counters.
func (v *Validator) Stats() Stats {
	return v.stats
}

// ratingDeltaOK requires both ratings present and within the configured gap.
// A missing rating fails closed: a game we cannot judge is a game we cannot
// trust.
func (v *Validator) ratingDeltaOK(game *models.Game) bool {
	white := game.Players.White.Rating
	black := game.Players.Black.Rating
	if white == nil || black == nil {
		return false
	}

	delta := *white - *black
	if delta < 0 {
		delta = -delta
	}
	return delta <= v.maxRatingDelta
}

// structureOK requires a standard-variant game with enough recorded moves and
// a normal termination.
func (v *Validator) structureOK(game *models.Game) bool {
	if !strings.EqualFold(game.Variant, "standard") {
		return false
	}
	if len(game.Clocks) < v.minPlies {
		return false
	}
	_, ok := allowedStatuses[game.Status]
	return ok
}

// openingOK requires a named opening present in the training catalog.
func (v *Validator) openingOK(game *models.Game) bool {
	if game.Opening == nil || game.Opening.Name == "" {
		return false
	}
	if !v.catalog.Contains(game.Opening.Name) {
		logging.Trace().Str("opening", game.Opening.Name).Str("game_id", game.ID).Msg("Opening not in training catalog")
		return false
	}
	return true
}
