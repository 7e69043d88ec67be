// OpeningScout - Chess Opening Performance Statistics and Recommendations
// Copyright 2026 Chess Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chesslabs/openingscout

package openingscout

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chesslabs/openingscout/internal/config"
	"github.com/chesslabs/openingscout/internal/models"
)

func writeCatalogs(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	catalog := `{"Italian Game": 7, "Ruy Lopez": 2, "Sicilian Defense": 0}`

	whitePath := filepath.Join(dir, "white.json")
	blackPath := filepath.Join(dir, "black.json")
	for _, path := range []string{whitePath, blackPath} {
		if err := os.WriteFile(path, []byte(catalog), 0o644); err != nil {
			t.Fatalf("write catalog: %v", err)
		}
	}
	return whitePath, blackPath
}

// lichessStub serves a profile and a fixed set of NDJSON games, emptying the
// stream once the until-boundary walks past the oldest game.
func lichessStub(t *testing.T, oldestMS int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/user/"):
			fmt.Fprintf(w, `{"id":"endtoend","username":"EndToEnd","createdAt":1546300800000,`+
				`"perfs":{"blitz":{"games":200,"rating":1750,"rd":50,"prog":5}}}`)

		case strings.HasPrefix(r.URL.Path, "/api/games/user/"):
			w.Header().Set("Content-Type", "application/x-ndjson")
			until := r.URL.Query().Get("until")
			if until != "" && until != "0" {
				// Second batch: nothing older.
				return
			}
			game := `{"id":"%s","rated":true,"variant":"standard","speed":"blitz","status":"mate",` +
				`"createdAt":%d,"winner":"%s",` +
				`"players":{"white":{"rating":1750},"black":{"rating":1760}},` +
				`"opening":{"eco":"C50","name":"Italian Game","ply":6},` +
				`"clocks":[1,2,3,4,5,6,7,8,9,10,11,12]}`
			fmt.Fprintf(w, game+"\n", "g1", oldestMS+1000, "white")
			fmt.Fprintf(w, game+"\n", "g2", oldestMS, "black")

		default:
			http.NotFound(w, r)
		}
	}))
}

func inferenceStub(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/predict":
			fmt.Fprint(w, `{"request_id":"e2e-1","side":"white",`+
				`"recommendations":[{"opening_name":"Ruy Lopez","eco":"C60","predicted_score":0.62}],`+
				`"stats":{"num_openings_total":3,"num_openings_played":1,"num_openings_unplayed":2,`+
				`"predicted_min":0.62,"predicted_max":0.62,"predicted_mean":0.62},`+
				`"model_loaded":true,"model_version":"e2e"}`)
		default:
			http.NotFound(w, r)
		}
	}))
}

func testServiceConfig(t *testing.T, lichessURL, inferenceURL string) *config.Config {
	t.Helper()
	whitePath, blackPath := writeCatalogs(t)

	cfg := config.Default()
	cfg.Lichess.BaseURL = lichessURL
	cfg.Lichess.RetryBaseDelay = time.Millisecond
	cfg.Lichess.RequestsPerSecond = 0
	cfg.Inference.URL = inferenceURL
	cfg.Checkpoint.InMemory = true
	cfg.Checkpoint.Path = ""
	cfg.Openings.WhitePath = whitePath
	cfg.Openings.BlackPath = blackPath
	return cfg
}

func TestServiceRecommend(t *testing.T) {
	oldestMS := time.Now().Add(-30 * 24 * time.Hour).UnixMilli()
	lichessSrv := lichessStub(t, oldestMS)
	defer lichessSrv.Close()
	inferenceSrv := inferenceStub(t)
	defer inferenceSrv.Close()

	svc, err := New(testServiceConfig(t, lichessSrv.URL, inferenceSrv.URL))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer svc.Close()

	result := svc.Recommend(context.Background(), Request{
		Username:      "EndToEnd",
		Color:         models.ColorWhite,
		AllowedSpeeds: []models.Speed{models.SpeedBlitz},
	})

	if !result.Success {
		t.Fatalf("Recommend() failed: %s", result.Message)
	}
	if result.GamesProcessed != 2 {
		t.Errorf("GamesProcessed = %d, want 2", result.GamesProcessed)
	}
	if result.Response.Recommendations[0].OpeningName != "Ruy Lopez" {
		t.Errorf("recommendation = %+v", result.Response.Recommendations[0])
	}

	italian := result.PlayerData.OpeningStats["Italian Game"]
	if italian.NumGames != 2 || italian.NumWins != 1 || italian.NumLosses != 1 {
		t.Errorf("Italian Game = %+v, want 2 games 1 win 1 loss", italian)
	}

	// The completed run left a checkpoint behind.
	keys, err := svc.Checkpoints(context.Background())
	if err != nil {
		t.Fatalf("Checkpoints() error = %v", err)
	}
	if len(keys) != 1 || keys[0].Username != "endtoend" {
		t.Errorf("Checkpoints() = %v", keys)
	}

	if err := svc.DeleteCheckpoint(context.Background(), "EndToEnd", models.ColorWhite); err != nil {
		t.Fatalf("DeleteCheckpoint() error = %v", err)
	}
	keys, _ = svc.Checkpoints(context.Background())
	if len(keys) != 0 {
		t.Errorf("Checkpoints() after delete = %v", keys)
	}
}

func TestServiceNew(t *testing.T) {
	inferenceSrv := inferenceStub(t)
	defer inferenceSrv.Close()

	t.Run("rejects invalid configuration", func(t *testing.T) {
		cfg := config.Default() // inference URL missing
		if _, err := New(cfg); err == nil {
			t.Fatal("New() = nil error for incomplete config")
		}
	})

	t.Run("rejects missing catalog file", func(t *testing.T) {
		cfg := testServiceConfig(t, "https://lichess.org", inferenceSrv.URL)
		cfg.Openings.WhitePath = filepath.Join(t.TempDir(), "missing.json")
		if _, err := New(cfg); err == nil {
			t.Fatal("New() = nil error for missing catalog")
		}
	})
}
