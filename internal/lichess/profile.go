// OpeningScout - Chess Opening Performance Statistics and Recommendations
// Copyright 2026 Chess Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chesslabs/openingscout

package lichess

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"github.com/chesslabs/openingscout/internal/logging"
	"github.com/chesslabs/openingscout/internal/models"
)

// ErrNoRatings means the player has no rated games in any supported time
// control. Unreliable ratings are not an error; the selection ladder falls
// back to the best available one.
var ErrNoRatings = errors.New("no rated games in standard time controls")

// Rating selection thresholds.
const (
	// reliableRDThreshold is the maximum Glicko rating deviation considered
	// trustworthy.
	reliableRDThreshold = 110

	// rdPreferenceMargin is how much better rapid's deviation must be than
	// blitz's before rapid is preferred.
	rdPreferenceMargin = 20
)

// RatingSelection is the rating chosen to represent a player's strength.
type RatingSelection struct {
	Rating int
	Speed  models.Speed
	RD     int
}

// GetUserProfile fetches a Lichess user profile: per-speed performance
// figures and account age.
func (c *Client) GetUserProfile(ctx context.Context, username string) (*models.UserProfile, error) {
	reqURL := fmt.Sprintf("%s/api/user/%s", c.baseURL, url.PathEscape(username))

	resp, err := c.doRequestWithBackoff(ctx, "profile", reqURL, "application/json")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, statusError(resp)
	}

	var profile models.UserProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode user profile: %w", err)
	}

	return &profile, nil
}

// SelectRating picks the most reliable available rating from a profile's
// per-speed performances:
//
//  1. Blitz, if its deviation is reliable.
//  2. Rapid, if its deviation beats unreliable blitz by a clear margin.
//  3. Classical, if it alone is reliable.
//  4. Fallback blitz, then rapid, then classical, even if unreliable.
//
// Returns ErrNoRatings when no supported speed has any rated games.
func SelectRating(perfs map[string]models.Perf) (RatingSelection, error) {
	blitz, hasBlitz := perfWithGames(perfs, models.SpeedBlitz)
	rapid, hasRapid := perfWithGames(perfs, models.SpeedRapid)
	classical, hasClassical := perfWithGames(perfs, models.SpeedClassical)

	if !hasBlitz && !hasRapid && !hasClassical {
		return RatingSelection{}, ErrNoRatings
	}

	if hasBlitz && blitz.RD < reliableRDThreshold {
		return RatingSelection{Rating: blitz.Rating, Speed: models.SpeedBlitz, RD: blitz.RD}, nil
	}

	if hasBlitz && hasRapid && rapid.RD < blitz.RD-rdPreferenceMargin {
		return RatingSelection{Rating: rapid.Rating, Speed: models.SpeedRapid, RD: rapid.RD}, nil
	}

	if hasClassical && classical.RD < reliableRDThreshold {
		blitzUnreliable := !hasBlitz || blitz.RD >= reliableRDThreshold
		rapidUnreliable := !hasRapid || rapid.RD >= reliableRDThreshold
		if blitzUnreliable && rapidUnreliable {
			return RatingSelection{Rating: classical.Rating, Speed: models.SpeedClassical, RD: classical.RD}, nil
		}
	}

	// Fallbacks in speed order, unreliable or not.
	if hasBlitz {
		return RatingSelection{Rating: blitz.Rating, Speed: models.SpeedBlitz, RD: blitz.RD}, nil
	}
	if hasRapid {
		return RatingSelection{Rating: rapid.Rating, Speed: models.SpeedRapid, RD: rapid.RD}, nil
	}
	return RatingSelection{Rating: classical.Rating, Speed: models.SpeedClassical, RD: classical.RD}, nil
}

// perfWithGames returns the perf entry for a speed if the player has rated
// games in it.
func perfWithGames(perfs map[string]models.Perf, speed models.Speed) (models.Perf, bool) {
	perf, ok := perfs[string(speed)]
	if !ok || perf.Games == 0 {
		return models.Perf{}, false
	}
	return perf, true
}

// EstimateGamesToStream estimates the total games available for one color,
// used as the progress-bar denominator. Half of the player's rated games in
// the allowed speeds (they play each color about half the time), scaled by
// the fraction of account lifetime the since-boundary covers. Always at
// least 1 so progress ratios stay well-defined.
func EstimateGamesToStream(profile *models.UserProfile, speeds []models.Speed, sinceMS int64) int {
	total := 0
	for _, speed := range speeds {
		if perf, ok := profile.Perfs[string(speed)]; ok {
			total += perf.Games
		}
	}

	estimate := total / 2

	if sinceMS > 0 {
		nowMS := time.Now().UnixMilli()
		accountAgeMS := nowMS - profile.CreatedAt
		sinceWindowMS := nowMS - sinceMS

		// Guard against clock skew, future boundaries, and bogus profiles.
		if accountAgeMS > 0 && sinceWindowMS > 0 {
			proportion := float64(sinceWindowMS) / float64(accountAgeMS)
			if proportion > 1 {
				proportion = 1
			}
			estimate = int(float64(estimate) * proportion)
		}
	}

	if estimate < 1 {
		estimate = 1
	}

	logging.Debug().Str("username", profile.Username).Int("estimate", estimate).Msg("Estimated games to stream")

	return estimate
}
