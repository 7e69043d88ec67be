// OpeningScout - Chess Opening Performance Statistics and Recommendations
// Copyright 2026 Chess Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chesslabs/openingscout

// Package checkpoint persists in-progress streaming aggregates so an
// interrupted run resumes from where it stopped instead of re-streaming
// everything. A checkpoint is keyed by (username, color); the stored envelope
// carries the aggregate plus the cursor needed to continue pagination.
package checkpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/chesslabs/openingscout/internal/models"
)

// envelopeSchemaVersion identifies the stored layout. Bump it when the
// envelope shape changes incompatibly; older versions are treated as corrupt
// and discarded on load.
const envelopeSchemaVersion = 1

// DefaultMaxAge is how long a checkpoint is considered fresh. Older
// checkpoints still resume; the resolver flags their age so callers can tell
// the user the partial data may be dated.
const DefaultMaxAge = 7 * 24 * time.Hour

// Envelope is the unit of persistence: the aggregate plus resumption state.
type Envelope struct {
	PlayerData *models.PlayerData `json:"playerData" validate:"required"`

	// LastSavedMS is when this envelope was written, Unix milliseconds.
	LastSavedMS int64 `json:"lastSavedMs" validate:"gt=0"`

	// CursorMS is the exclusive until-boundary for the next stream batch:
	// one millisecond before the oldest game already processed. Zero means
	// no batch has completed yet.
	CursorMS int64 `json:"cursorMs" validate:"gte=0"`

	// GamesProcessed counts accepted games folded into the aggregate, not raw
	// streamed games. The collection target is measured against this number.
	GamesProcessed int `json:"gamesProcessed" validate:"gte=0"`

	// IsComplete marks a run that finished and submitted its aggregate.
	// Complete checkpoints are kept as a cache, not resumed.
	IsComplete bool `json:"isComplete"`

	SchemaVersion int `json:"schemaVersion" validate:"eq=1"`
}

// NewEnvelope wraps an aggregate in a version-1 envelope stamped now.
func NewEnvelope(pd *models.PlayerData, cursorMS int64, gamesProcessed int, complete bool) *Envelope {
	return &Envelope{
		PlayerData:     pd,
		LastSavedMS:    time.Now().UnixMilli(),
		CursorMS:       cursorMS,
		GamesProcessed: gamesProcessed,
		IsComplete:     complete,
		SchemaVersion:  envelopeSchemaVersion,
	}
}

// Key identifies one checkpoint.
type Key struct {
	Username string
	Color    models.Color
}

// Store persists checkpoint envelopes. Load returns (nil, nil) when no
// checkpoint exists; stores never surface corrupt data, they discard it and
// report absence.
type Store interface {
	Save(ctx context.Context, key Key, env *Envelope) error
	Load(ctx context.Context, key Key) (*Envelope, error)
	Delete(ctx context.Context, key Key) error

	// Keys lists every stored checkpoint key, for maintenance tooling.
	Keys(ctx context.Context) ([]Key, error)

	Close() error
}

// Check is the inspection result the resolver decides from.
type Check struct {
	Exists   bool
	Envelope *Envelope
	MaxAge   time.Duration
}

// IsStale reports whether the checkpoint is older than the freshness window.
func (c Check) IsStale(now time.Time) bool {
	if !c.Exists {
		return false
	}
	saved := time.UnixMilli(c.Envelope.LastSavedMS)
	return now.Sub(saved) > c.maxAge()
}

func (c Check) maxAge() time.Duration {
	if c.MaxAge > 0 {
		return c.MaxAge
	}
	return DefaultMaxAge
}

// CanResume reports whether streaming work remains.
func (c Check) CanResume() bool {
	return c.Exists && !c.Envelope.IsComplete
}

// Decision is the resolver's verdict on how a run should start.
type Decision int

const (
	// FreshStart begins from nothing.
	FreshStart Decision = iota

	// Resume continues from the checkpoint's cursor with its aggregate.
	Resume

	// DeleteAndRestart discards an unusable checkpoint, then begins fresh.
	DeleteAndRestart
)

func (d Decision) String() string {
	switch d {
	case FreshStart:
		return "fresh-start"
	case Resume:
		return "resume"
	case DeleteAndRestart:
		return "delete-and-restart"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// Resolution pairs a decision with a human-readable reason for logs and
// progress messages. Stale is advisory: it marks a resumed checkpoint older
// than the freshness window without changing the decision.
type Resolution struct {
	Decision Decision
	Reason   string
	Stale    bool
}

// Resolve decides how to start a run given an existing checkpoint (or its
// absence), the speed set requested now, and the requested since-boundary
// (zero means all available history). Pure function: it never touches the
// store. Every (check, speeds, boundary) combination maps to exactly one
// decision.
//
// A checkpoint whose speed set differs from the request cannot be reused:
// its aggregate mixes a different population of games, and merging would
// double-count or under-count. Completed checkpoints are likewise discarded
// rather than resumed.
//
// When the speed sets match, every boundary position resumes. Games are
// streamed newest-to-oldest from the moment the checkpoint was started, so a
// boundary newer than the cursor is already fully covered by the aggregate,
// and a boundary at or older than the cursor just means paging continues
// backward from the cursor as usual. Age never forces a restart: a resumed
// checkpoint past the freshness window is flagged Stale so the caller can
// surface it, but the accumulated progress is kept.
func Resolve(check Check, requested []models.Speed, sinceMS int64, now time.Time) Resolution {
	if !check.Exists {
		return Resolution{Decision: FreshStart, Reason: "no existing checkpoint"}
	}

	if !sameSpeedSet(check.Envelope.PlayerData.AllowedSpeeds, requested) {
		return Resolution{Decision: DeleteAndRestart, Reason: "checkpoint was collected under a different speed set"}
	}

	if check.Envelope.IsComplete {
		return Resolution{Decision: DeleteAndRestart, Reason: "previous run already completed; starting over"}
	}

	reason := fmt.Sprintf("resuming with %d games already processed", check.Envelope.GamesProcessed)
	if sinceMS > 0 && sinceMS > check.Envelope.CursorMS {
		reason = fmt.Sprintf("requested window already covered; %s", reason)
	}
	stale := check.IsStale(now)
	if stale {
		reason = fmt.Sprintf("%s (saved more than %s ago)", reason, check.maxAge())
	}
	return Resolution{Decision: Resume, Reason: reason, Stale: stale}
}

// sameSpeedSet compares speed sets ignoring order and duplicates.
func sameSpeedSet(a, b []models.Speed) bool {
	set := func(speeds []models.Speed) map[models.Speed]struct{} {
		m := make(map[models.Speed]struct{}, len(speeds))
		for _, s := range speeds {
			m[s] = struct{}{}
		}
		return m
	}

	sa, sb := set(a), set(b)
	if len(sa) != len(sb) {
		return false
	}
	for s := range sa {
		if _, ok := sb[s]; !ok {
			return false
		}
	}
	return true
}
