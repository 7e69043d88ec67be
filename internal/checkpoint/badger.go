// OpeningScout - Chess Opening Performance Statistics and Recommendations
// Copyright 2026 Chess Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chesslabs/openingscout

package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/chesslabs/openingscout/internal/logging"
	"github.com/chesslabs/openingscout/internal/metrics"
	"github.com/chesslabs/openingscout/internal/models"
)

// playerKeyPrefix namespaces checkpoint entries so the same BadgerDB can hold
// other data later without collisions.
const playerKeyPrefix = "openingscout:player:"

// storageKey builds the BadgerDB key for a checkpoint. Usernames are
// lowercased because Lichess usernames are case-insensitive; "Magnus" and
// "magnus" must resolve to the same checkpoint.
func storageKey(key Key) []byte {
	return []byte(playerKeyPrefix + strings.ToLower(key.Username) + ":" + string(key.Color))
}

// BadgerStore implements Store on an embedded BadgerDB. Envelopes are stored
// as JSON and schema-validated on load; a record that fails validation is
// deleted and reported as absent, so one corrupt write cannot wedge a player
// forever.
type BadgerStore struct {
	db       *badger.DB
	validate *validator.Validate
}

// NewBadgerStore opens (or creates) a BadgerDB at path. inMemory skips disk
// entirely, for tests and ephemeral runs.
func NewBadgerStore(path string, inMemory bool) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint database: %w", err)
	}

	return &BadgerStore{
		db:       db,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

// Save writes the envelope for the given key.
func (s *BadgerStore) Save(ctx context.Context, key Key, env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		metrics.CheckpointSavesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(storageKey(key), data)
	})
	if err != nil {
		metrics.CheckpointSavesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("save checkpoint: %w", err)
	}

	metrics.CheckpointSavesTotal.WithLabelValues("success").Inc()
	logging.Debug().Str("username", key.Username).Str("color", string(key.Color)).
		Int("games_processed", env.GamesProcessed).Bool("complete", env.IsComplete).
		Msg("Checkpoint saved")
	return nil
}

// Load retrieves the envelope for the given key. Returns nil, nil when none
// exists. An envelope that does not decode or fails schema validation is
// deleted and reported as absent.
func (s *BadgerStore) Load(ctx context.Context, key Key) (*Envelope, error) {
	var data []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(storageKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	env, err := decodeEnvelope(s.validate, data)
	if err != nil {
		metrics.CheckpointCorruptionsTotal.Inc()
		logging.Warn().Err(err).Str("username", key.Username).Str("color", string(key.Color)).
			Msg("Discarding corrupt checkpoint")
		if delErr := s.Delete(ctx, key); delErr != nil {
			return nil, fmt.Errorf("delete corrupt checkpoint: %w", delErr)
		}
		return nil, nil
	}

	return env, nil
}

// Delete removes the checkpoint for the given key. Deleting a missing
// checkpoint is not an error.
func (s *BadgerStore) Delete(ctx context.Context, key Key) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(storageKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// Keys lists every stored checkpoint key by prefix scan.
func (s *BadgerStore) Keys(ctx context.Context) ([]Key, error) {
	var keys []Key

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(playerKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if key, ok := parseStorageKey(string(it.Item().Key())); ok {
				keys = append(keys, key)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list checkpoint keys: %w", err)
	}

	return keys, nil
}

// Close flushes and closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// decodeEnvelope unmarshals and schema-validates a stored envelope.
func decodeEnvelope(validate *validator.Validate, data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if err := validate.Struct(&env); err != nil {
		return nil, fmt.Errorf("envelope failed validation: %w", err)
	}
	if env.PlayerData.OpeningStats == nil {
		env.PlayerData.OpeningStats = make(map[string]models.OpeningStats)
	}
	return &env, nil
}

// parseStorageKey inverts storageKey. Returns ok=false for keys under the
// prefix that do not match the expected layout.
func parseStorageKey(raw string) (Key, bool) {
	rest, ok := strings.CutPrefix(raw, playerKeyPrefix)
	if !ok {
		return Key{}, false
	}
	username, colorPart, ok := strings.Cut(rest, ":")
	if !ok || username == "" {
		return Key{}, false
	}
	color := models.Color(colorPart)
	if !color.Valid() {
		return Key{}, false
	}
	return Key{Username: username, Color: color}, true
}
