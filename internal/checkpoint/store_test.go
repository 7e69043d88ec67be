// OpeningScout - Chess Opening Performance Statistics and Recommendations
// Copyright 2026 Chess Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chesslabs/openingscout

package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/chesslabs/openingscout/internal/models"
)

func newTestBadgerStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore("", true)
	if err != nil {
		t.Fatalf("NewBadgerStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// storeUnderTest lets both implementations share the conformance suite.
func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"badger": newTestBadgerStore(t),
		"memory": NewMemoryStore(),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			key := Key{Username: "Resumer", Color: models.ColorBlack}
			env := testEnvelope(models.AllSpeeds, time.Now(), false)
			env.PlayerData.OpeningStats["Caro-Kann Defense"] = models.OpeningStats{
				Name: "Caro-Kann Defense", ECO: "B12", TrainingID: 9,
				NumGames: 10, NumWins: 4, NumDraws: 3, NumLosses: 3,
			}

			if err := store.Save(ctx, key, env); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			// Usernames are case-insensitive.
			loaded, err := store.Load(ctx, Key{Username: "resumer", Color: models.ColorBlack})
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if loaded == nil {
				t.Fatal("Load() = nil for saved checkpoint")
			}
			if loaded.CursorMS != env.CursorMS || loaded.GamesProcessed != env.GamesProcessed {
				t.Errorf("loaded = %+v, want cursor %d processed %d", loaded, env.CursorMS, env.GamesProcessed)
			}
			got := loaded.PlayerData.OpeningStats["Caro-Kann Defense"]
			if got.NumGames != 10 || got.NumWins != 4 {
				t.Errorf("opening entry = %+v", got)
			}

			// Different color is a different checkpoint.
			other, err := store.Load(ctx, Key{Username: "resumer", Color: models.ColorWhite})
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if other != nil {
				t.Error("Load() for other color returned data")
			}
		})
	}
}

func TestStoreAbsentAndDelete(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			key := Key{Username: "nobody", Color: models.ColorWhite}

			loaded, err := store.Load(ctx, key)
			if err != nil || loaded != nil {
				t.Fatalf("Load(absent) = %v, %v; want nil, nil", loaded, err)
			}

			// Deleting what does not exist is fine.
			if err := store.Delete(ctx, key); err != nil {
				t.Fatalf("Delete(absent) error = %v", err)
			}

			if err := store.Save(ctx, key, testEnvelope(models.AllSpeeds, time.Now(), false)); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if err := store.Delete(ctx, key); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			loaded, err = store.Load(ctx, key)
			if err != nil || loaded != nil {
				t.Fatalf("Load(deleted) = %v, %v; want nil, nil", loaded, err)
			}
		})
	}
}

func TestStoreKeys(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			env := testEnvelope(models.AllSpeeds, time.Now(), false)
			saves := []Key{
				{Username: "alice", Color: models.ColorWhite},
				{Username: "alice", Color: models.ColorBlack},
				{Username: "bob", Color: models.ColorWhite},
			}
			for _, key := range saves {
				if err := store.Save(ctx, key, env); err != nil {
					t.Fatalf("Save(%v) error = %v", key, err)
				}
			}

			keys, err := store.Keys(ctx)
			if err != nil {
				t.Fatalf("Keys() error = %v", err)
			}
			if len(keys) != len(saves) {
				t.Fatalf("Keys() = %d entries, want %d", len(keys), len(saves))
			}
			found := make(map[Key]bool)
			for _, key := range keys {
				found[key] = true
			}
			for _, want := range saves {
				if !found[want] {
					t.Errorf("Keys() missing %v", want)
				}
			}
		})
	}
}

func TestBadgerStoreDiscardsCorruptCheckpoint(t *testing.T) {
	ctx := context.Background()
	store := newTestBadgerStore(t)
	key := Key{Username: "corrupted", Color: models.ColorWhite}

	writeRaw := func(t *testing.T, data []byte) {
		t.Helper()
		err := store.db.Update(func(txn *badger.Txn) error {
			return txn.Set(storageKey(key), data)
		})
		if err != nil {
			t.Fatalf("raw write error = %v", err)
		}
	}

	rawLoad := func(t *testing.T) []byte {
		t.Helper()
		var data []byte
		err := store.db.View(func(txn *badger.Txn) error {
			item, err := txn.Get(storageKey(key))
			if err == badger.ErrKeyNotFound {
				return nil
			}
			if err != nil {
				return err
			}
			data, err = item.ValueCopy(nil)
			return err
		})
		if err != nil {
			t.Fatalf("raw read error = %v", err)
		}
		return data
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"not json", []byte("garbage{{{")},
		{"wrong schema version", []byte(`{"playerData":{"lichessUsername":"corrupted","rating":1800,"color":"white","allowedSpeeds":["blitz"],"openingStats":{}},"lastSavedMs":1700000000000,"cursorMs":0,"gamesProcessed":0,"isComplete":false,"schemaVersion":99}`)},
		{"missing player data", []byte(`{"lastSavedMs":1700000000000,"schemaVersion":1}`)},
		{"invalid color", []byte(`{"playerData":{"lichessUsername":"corrupted","rating":1800,"color":"purple","allowedSpeeds":["blitz"],"openingStats":{}},"lastSavedMs":1700000000000,"schemaVersion":1}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeRaw(t, tt.data)

			env, err := store.Load(ctx, key)
			if err != nil {
				t.Fatalf("Load() error = %v, corruption should be absorbed", err)
			}
			if env != nil {
				t.Fatalf("Load() = %+v, want nil for corrupt record", env)
			}

			// The corrupt record must be gone so the next run starts clean.
			if remaining := rawLoad(t); remaining != nil {
				t.Error("corrupt record still present after Load()")
			}
		})
	}
}

func TestBadgerStoreValidEnvelopeSurvivesLoad(t *testing.T) {
	ctx := context.Background()
	store := newTestBadgerStore(t)
	key := Key{Username: "healthy", Color: models.ColorWhite}

	if err := store.Save(ctx, key, testEnvelope(models.AllSpeeds, time.Now(), false)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		env, err := store.Load(ctx, key)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if env == nil {
			t.Fatal("Load() = nil, valid envelope was discarded")
		}
	}
}
