// OpeningScout - Chess Opening Performance Statistics and Recommendations
// Copyright 2026 Chess Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chesslabs/openingscout

package models

// Color is the side the subject played. Statistics are partitioned per color:
// the same opening performs very differently with white and black pieces.
type Color string

// Valid colors.
const (
	ColorWhite Color = "white"
	ColorBlack Color = "black"
)

// Valid reports whether c is one of the two defined colors.
func (c Color) Valid() bool {
	return c == ColorWhite || c == ColorBlack
}

// Result is the outcome of a single game from the subject's perspective.
type Result string

// Valid results.
const (
	ResultWin  Result = "win"
	ResultDraw Result = "draw"
	ResultLoss Result = "loss"
)

// Speed is a Lichess time-control tier. It doubles as the sub-filter used to
// request games and as the input to the quality weighting (slower games carry
// more weight because they are higher-quality data points).
type Speed string

// Speeds the model was trained on. Bullet and correspondence are excluded.
const (
	SpeedBlitz     Speed = "blitz"
	SpeedRapid     Speed = "rapid"
	SpeedClassical Speed = "classical"
)

// AllSpeeds lists every supported speed in weight order.
var AllSpeeds = []Speed{SpeedBlitz, SpeedRapid, SpeedClassical}

// ParseSpeed returns the Speed for s, or false if s is not supported.
func ParseSpeed(s string) (Speed, bool) {
	switch Speed(s) {
	case SpeedBlitz, SpeedRapid, SpeedClassical:
		return Speed(s), true
	default:
		return "", false
	}
}

// OpeningStats accumulates weighted outcomes for one named opening variation.
//
// Invariant: NumWins + NumDraws + NumLosses == NumGames at all times, and all
// counters are monotonically non-decreasing within a session.
type OpeningStats struct {
	Name       string `json:"openingName" validate:"required"`
	ECO        string `json:"eco"`
	TrainingID int    `json:"trainingID" validate:"gte=0"`
	NumGames   int    `json:"numGames" validate:"gte=0"`
	NumWins    int    `json:"numWins" validate:"gte=0"`
	NumDraws   int    `json:"numDraws" validate:"gte=0"`
	NumLosses  int    `json:"numLosses" validate:"gte=0"`
}

// PlayerData is the full aggregate for one (username, color) unit of work.
//
// AllowedSpeeds and Color are fixed at creation: they define the partition the
// contained OpeningStats were collected under. Statistics collected with a
// different speed set cannot be merged into this aggregate; the caller must
// delete and restart instead.
type PlayerData struct {
	Username      string                  `json:"lichessUsername" validate:"required"`
	Rating        int                     `json:"rating" validate:"gte=0"`
	Color         Color                   `json:"color" validate:"oneof=white black"`
	AllowedSpeeds []Speed                 `json:"allowedSpeeds" validate:"min=1,dive,oneof=blitz rapid classical"`
	OpeningStats  map[string]OpeningStats `json:"openingStats" validate:"dive"`
}

// NewPlayerData creates an empty aggregate for the given subject.
func NewPlayerData(username string, rating int, color Color, speeds []Speed) *PlayerData {
	return &PlayerData{
		Username:      username,
		Rating:        rating,
		Color:         color,
		AllowedSpeeds: speeds,
		OpeningStats:  make(map[string]OpeningStats),
	}
}
