// OpeningScout - Chess Opening Performance Statistics and Recommendations
// Copyright 2026 Chess Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chesslabs/openingscout

package openings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chesslabs/openingscout/internal/models"
)

func TestCatalogLookups(t *testing.T) {
	cat := New(models.ColorWhite, map[string]int{
		"Sicilian Defense":  17,
		"Caro-Kann Defense": 42,
	})

	if !cat.Contains("Sicilian Defense") {
		t.Error("Contains(Sicilian Defense) = false, want true")
	}
	if cat.Contains("Bongcloud Attack") {
		t.Error("Contains(Bongcloud Attack) = true, want false")
	}

	id, ok := cat.TrainingID("Caro-Kann Defense")
	if !ok || id != 42 {
		t.Errorf("TrainingID(Caro-Kann Defense) = %d, %v; want 42, true", id, ok)
	}

	if cat.Len() != 2 {
		t.Errorf("Len() = %d, want 2", cat.Len())
	}
	if cat.Color() != models.ColorWhite {
		t.Errorf("Color() = %s, want white", cat.Color())
	}
}

func TestLoadFile(t *testing.T) {
	t.Run("loads valid artifact", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "openings_white.json")
		content := `{"Sicilian Defense": 17, "French Defense": 3}`
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write fixture: %v", err)
		}

		cat, err := LoadFile(models.ColorWhite, path)
		if err != nil {
			t.Fatalf("LoadFile() error = %v", err)
		}
		if cat.Len() != 2 {
			t.Errorf("Len() = %d, want 2", cat.Len())
		}
		if id, _ := cat.TrainingID("French Defense"); id != 3 {
			t.Errorf("TrainingID(French Defense) = %d, want 3", id)
		}
	})

	t.Run("missing file is an error", func(t *testing.T) {
		if _, err := LoadFile(models.ColorBlack, "/nonexistent/openings.json"); err == nil {
			t.Error("LoadFile() = nil error for missing file")
		}
	})

	t.Run("malformed JSON is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		if err := os.WriteFile(path, []byte("{nope"), 0o600); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
		if _, err := LoadFile(models.ColorBlack, path); err == nil {
			t.Error("LoadFile() = nil error for malformed JSON")
		}
	})

	t.Run("empty catalog is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.json")
		if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
		if _, err := LoadFile(models.ColorBlack, path); err == nil {
			t.Error("LoadFile() = nil error for empty catalog")
		}
	})
}
