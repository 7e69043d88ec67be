// OpeningScout - Chess Opening Performance Statistics and Recommendations
// Copyright 2026 Chess Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chesslabs/openingscout

// Package stats maintains a player's per-opening performance aggregate. The
// aggregate is a map keyed by opening name, so memory scales with the number
// of distinct openings encountered, not with the number of games streamed.
package stats

import (
	"fmt"

	"github.com/chesslabs/openingscout/internal/metrics"
	"github.com/chesslabs/openingscout/internal/models"
)

// GameResult determines the outcome of a game from the given player's side.
// An empty winner field is a draw.
func GameResult(game *models.Game, color models.Color) models.Result {
	switch game.Winner {
	case "":
		return models.ResultDraw
	case string(color):
		return models.ResultWin
	default:
		return models.ResultLoss
	}
}

// Accumulate folds one accepted game into the per-opening aggregate. The
// update is a constant-time upsert: existing entries have their counters
// bumped in place and the operation is insensitive to the order games arrive
// in. weight lets slower time controls count for more.
func Accumulate(pd *models.PlayerData, name, eco string, trainingID int, result models.Result, weight int) {
	entry, ok := pd.OpeningStats[name]
	if !ok {
		entry = models.OpeningStats{
			Name:       name,
			ECO:        eco,
			TrainingID: trainingID,
		}
	}

	entry.NumGames += weight
	switch result {
	case models.ResultWin:
		entry.NumWins += weight
	case models.ResultDraw:
		entry.NumDraws += weight
	case models.ResultLoss:
		entry.NumLosses += weight
	}

	pd.OpeningStats[name] = entry

	// The gauge mirrors map cardinality so resumed aggregates and repeat runs
	// report the current value, not a lifetime count.
	metrics.OpeningsTracked.WithLabelValues(string(pd.Color)).Set(float64(len(pd.OpeningStats)))
}

// TotalGames returns the weighted game count across all openings.
func TotalGames(pd *models.PlayerData) int {
	total := 0
	for _, entry := range pd.OpeningStats {
		total += entry.NumGames
	}
	return total
}

// RawScore computes the classical chess score for one opening: wins plus half
// of draws, as a fraction of games. Returns 0 for an empty entry.
func RawScore(entry models.OpeningStats) float64 {
	if entry.NumGames == 0 {
		return 0
	}
	return (float64(entry.NumWins) + 0.5*float64(entry.NumDraws)) / float64(entry.NumGames)
}

// ToPredictRequest converts the aggregate into the payload shape the
// inference service expects. Returns an error when there is nothing to
// predict from.
func ToPredictRequest(pd *models.PlayerData) (*models.PredictRequest, error) {
	if len(pd.OpeningStats) == 0 {
		return nil, fmt.Errorf("no opening statistics accumulated for %s", pd.Username)
	}

	openingStats := make([]models.PredictOpeningStats, 0, len(pd.OpeningStats))
	for _, entry := range pd.OpeningStats {
		openingStats = append(openingStats, models.PredictOpeningStats{
			OpeningName: entry.Name,
			OpeningID:   entry.TrainingID,
			ECO:         entry.ECO,
			NumGames:    entry.NumGames,
			NumWins:     entry.NumWins,
			NumDraws:    entry.NumDraws,
			NumLosses:   entry.NumLosses,
		})
	}

	return &models.PredictRequest{
		Name:         pd.Username,
		Rating:       pd.Rating,
		Side:         pd.Color,
		OpeningStats: openingStats,
	}, nil
}
