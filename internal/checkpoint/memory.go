// OpeningScout - Chess Opening Performance Statistics and Recommendations
// Copyright 2026 Chess Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chesslabs/openingscout

package checkpoint

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goccy/go-json"
)

// MemoryStore implements Store in process memory, for tests and one-shot runs
// where persistence across restarts is not wanted. Envelopes round-trip
// through JSON on save so stored state is decoupled from caller mutations,
// same as the durable store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) memKey(key Key) string {
	return strings.ToLower(key.Username) + ":" + string(key.Color)
}

// Save stores a serialized copy of the envelope.
func (s *MemoryStore) Save(_ context.Context, key Key, env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[s.memKey(key)] = data
	return nil
}

// Load retrieves a copy of the stored envelope, or nil, nil when absent.
func (s *MemoryStore) Load(_ context.Context, key Key) (*Envelope, error) {
	s.mu.RLock()
	data, ok := s.data[s.memKey(key)]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &env, nil
}

// Delete removes the stored envelope if present.
func (s *MemoryStore) Delete(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, s.memKey(key))
	return nil
}

// Keys lists stored checkpoint keys.
func (s *MemoryStore) Keys(_ context.Context) ([]Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]Key, 0, len(s.data))
	for raw := range s.data {
		if key, ok := parseStorageKey(playerKeyPrefix + raw); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
