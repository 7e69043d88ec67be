// OpeningScout - Chess Opening Performance Statistics and Recommendations
// Copyright 2026 Chess Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chesslabs/openingscout

package models

// Game is one record from the Lichess NDJSON game export
// (GET /api/games/user/{username} with Accept: application/x-ndjson).
//
// Only the fields the pipeline consumes are declared; unknown fields in the
// stream are ignored by the decoder. Clocks carries one centisecond value per
// half-move, so len(Clocks) is the ply count of the game.
type Game struct {
	ID        string `json:"id"`
	Rated     bool   `json:"rated"`
	Variant   string `json:"variant"`
	Speed     string `json:"speed"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"createdAt"`

	// Winner is "white", "black", or absent for a draw.
	Winner string `json:"winner,omitempty"`

	Players GamePlayers  `json:"players"`
	Opening *GameOpening `json:"opening,omitempty"`
	Clocks  []int        `json:"clocks,omitempty"`
}

// GamePlayers holds both sides of a game.
type GamePlayers struct {
	White GamePlayer `json:"white"`
	Black GamePlayer `json:"black"`
}

// GamePlayer is one side of a game. Rating is a pointer because Lichess omits
// it for anonymous opponents; the rating-delta filter fails closed on nil.
type GamePlayer struct {
	User   *GameUser `json:"user,omitempty"`
	Rating *int      `json:"rating,omitempty"`
}

// GameUser identifies a Lichess account.
type GameUser struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// GameOpening is the opening classification Lichess attaches to a game.
type GameOpening struct {
	ECO  string `json:"eco"`
	Name string `json:"name"`
	Ply  int    `json:"ply"`
}

// UserProfile is the subset of GET /api/user/{username} the pipeline needs:
// per-speed performance figures and the account creation time.
type UserProfile struct {
	ID        string          `json:"id"`
	Username  string          `json:"username"`
	CreatedAt int64           `json:"createdAt"`
	Perfs     map[string]Perf `json:"perfs"`
}

// Perf is one time-control performance entry from a user profile.
// RD is the Glicko rating deviation; lower means more reliable.
type Perf struct {
	Games  int `json:"games"`
	Rating int `json:"rating"`
	RD     int `json:"rd"`
	Prog   int `json:"prog"`
}
