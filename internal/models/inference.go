// OpeningScout - Chess Opening Performance Statistics and Recommendations
// Copyright 2026 Chess Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chesslabs/openingscout

package models

// PredictRequest is the payload POSTed to the inference service. Field names
// are snake_case because the service is written in Python; the conversion from
// PlayerData happens in the stats package.
type PredictRequest struct {
	Name         string                `json:"name"`
	Rating       int                   `json:"rating"`
	Side         Color                 `json:"side"`
	OpeningStats []PredictOpeningStats `json:"opening_stats"`
}

// PredictOpeningStats is one per-opening aggregate inside a PredictRequest.
type PredictOpeningStats struct {
	OpeningName string `json:"opening_name"`
	OpeningID   int    `json:"opening_id"`
	ECO         string `json:"eco"`
	NumGames    int    `json:"num_games"`
	NumWins     int    `json:"num_wins"`
	NumDraws    int    `json:"num_draws"`
	NumLosses   int    `json:"num_losses"`
}

// Recommendation is a single predicted opening score from the model.
type Recommendation struct {
	OpeningName    string  `json:"opening_name" validate:"required"`
	ECO            string  `json:"eco"`
	PredictedScore float64 `json:"predicted_score" validate:"gte=0,lte=1"`
}

// RecommendationStats summarizes a set of recommendations.
type RecommendationStats struct {
	NumOpeningsTotal    int     `json:"num_openings_total" validate:"gte=0"`
	NumOpeningsPlayed   int     `json:"num_openings_played" validate:"gte=0"`
	NumOpeningsUnplayed int     `json:"num_openings_unplayed" validate:"gte=0"`
	PredictedMin        float64 `json:"predicted_min"`
	PredictedMax        float64 `json:"predicted_max"`
	PredictedMean       float64 `json:"predicted_mean"`
}

// PredictResponse is the well-formed response contract of the inference
// service. Responses that fail validation are treated as a hard failure of
// the run's final step; the checkpointed streaming work remains valid.
type PredictResponse struct {
	RequestID       string              `json:"request_id" validate:"required"`
	Side            Color               `json:"side" validate:"oneof=white black"`
	Recommendations []Recommendation    `json:"recommendations" validate:"required,dive"`
	Stats           RecommendationStats `json:"stats"`
	ModelLoaded     bool                `json:"model_loaded"`
	ModelVersion    string              `json:"model_version" validate:"required"`
}
