// OpeningScout - Chess Opening Performance Statistics and Recommendations
// Copyright 2026 Chess Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chesslabs/openingscout

/*
pipeline.go - Run orchestration

One Run streams a player's rated games newest-to-oldest in bounded batches,
validates and accumulates them, checkpoints progress periodically, and
finally submits the aggregate for opening recommendations.

Run sequence:
 1. Fetch profile, select the rating reference, estimate total volume
 2. Wake the inference service so it boots while games stream
 3. Resolve against any existing checkpoint (fresh / resume / restart)
 4. Batch loop: stream, validate, accumulate; cursor moves strictly older
 5. Periodic checkpoint saves every N accepted games
 6. Final save, predict, mark the checkpoint complete

Everything observable to the caller is a Result value; panics and errors
never escape Run. Checkpoint persistence failures degrade to in-memory
operation rather than aborting the run.
*/

//nolint:staticcheck // File documentation, not package doc
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chesslabs/openingscout/internal/checkpoint"
	"github.com/chesslabs/openingscout/internal/config"
	"github.com/chesslabs/openingscout/internal/lichess"
	"github.com/chesslabs/openingscout/internal/logging"
	"github.com/chesslabs/openingscout/internal/metrics"
	"github.com/chesslabs/openingscout/internal/models"
	"github.com/chesslabs/openingscout/internal/openings"
	"github.com/chesslabs/openingscout/internal/stats"
	"github.com/chesslabs/openingscout/internal/validate"
)

// minDataDateMS is the oldest since-boundary accepted: Lichess opening data
// before January 2019 predates the model's training window.
const minDataDateMS = 1546320593000

// Predictor is the downstream inference contract. The inference client
// implements it; tests substitute fakes.
type Predictor interface {
	Wake(ctx context.Context)
	Predict(ctx context.Context, req *models.PredictRequest) (*models.PredictResponse, error)
}

// Request describes one unit of work: collect statistics for a player's
// games with one color and produce recommendations.
type Request struct {
	Username      string
	Color         models.Color
	AllowedSpeeds []models.Speed

	// SinceMS bounds how far back to collect, Unix milliseconds. Zero means
	// all available history. Values before the minimum data date are clamped.
	SinceMS int64

	// MaxGames caps how many accepted games the aggregate may contain; games
	// the validator rejects do not count against it. Zero uses the configured
	// default.
	MaxGames int

	// SaveInterval is how many accepted games pass between checkpoint saves;
	// zero uses the configured default.
	SaveInterval int

	// OnStatus receives human-readable progress messages. Optional.
	OnStatus func(message string)

	// OnProgress receives (acceptedGames, estimatedTotal). Optional. The
	// estimate is an upper-bound heuristic; accepted can exceed it.
	OnProgress func(accepted, estimated int)
}

// Result is the structured outcome of a run. Run never panics or returns an
// error; callers branch on Success and render Message.
type Result struct {
	Success bool

	// Message is the user-facing failure explanation. Empty on success.
	Message string

	// Response holds the recommendations on success.
	Response *models.PredictResponse

	// PlayerData is the final aggregate, populated whenever streaming made
	// any progress, even on failure.
	PlayerData *models.PlayerData

	// GamesProcessed counts accepted games in the aggregate, including games
	// resumed from a checkpoint. Raw streamed counts for this run are in
	// ValidationStats.TotalProcessed.
	GamesProcessed int

	// ValidationStats covers only games processed by this run.
	ValidationStats validate.Stats
}

func failure(format string, args ...any) Result {
	return Result{Message: fmt.Sprintf(format, args...)}
}

// Pipeline wires the collaborators a run needs. Safe to reuse across runs;
// each Run carries its own state.
type Pipeline struct {
	source    lichess.GameSource
	catalogs  map[models.Color]*openings.Catalog
	store     checkpoint.Store
	predictor Predictor
	cfg       *config.PipelineConfig
	maxAge    time.Duration
}

// New assembles a pipeline. maxAge bounds checkpoint freshness; zero uses
// the default window.
func New(source lichess.GameSource, catalogs map[models.Color]*openings.Catalog, store checkpoint.Store, predictor Predictor, cfg *config.PipelineConfig, maxAge time.Duration) *Pipeline {
	return &Pipeline{
		source:    source,
		catalogs:  catalogs,
		store:     store,
		predictor: predictor,
		cfg:       cfg,
		maxAge:    maxAge,
	}
}

// runState is the mutable state one run threads through its steps, kept in
// one place so the panic handler can checkpoint whatever progress exists.
type runState struct {
	req      Request
	key      checkpoint.Key
	log      zerolog.Logger
	pd       *models.PlayerData
	cursorMS int64

	// accepted counts games in the aggregate, checkpoint-resumed included.
	// The MaxGames cap and the save interval are measured against it.
	accepted int

	// checked counts raw streamed games this run, accepted or not.
	checked int

	estimate int
}

// save checkpoints the current state. Persistence failures are logged and
// absorbed: a run with a broken store still completes in memory.
func (s *runState) save(ctx context.Context, store checkpoint.Store, complete bool) {
	if s.pd == nil {
		return
	}
	env := checkpoint.NewEnvelope(s.pd, s.cursorMS, s.accepted, complete)
	if err := store.Save(ctx, s.key, env); err != nil {
		s.log.Warn().Err(err).Msg("Checkpoint save failed; continuing in memory")
	}
}

func (s *runState) status(message string) {
	s.log.Info().Msg(message)
	if s.req.OnStatus != nil {
		s.req.OnStatus(message)
	}
}

func (s *runState) progress() {
	if s.req.OnProgress != nil {
		s.req.OnProgress(s.accepted, s.estimate)
	}
}

// Run executes the full pipeline for one request. The context is honored at
// every network call and batch boundary; cancellation mid-run loses at most
// one save interval of work.
func (p *Pipeline) Run(ctx context.Context, req Request) (result Result) {
	state := &runState{
		req: req,
		key: checkpoint.Key{Username: req.Username, Color: req.Color},
		log: logging.With().
			Str("run_id", uuid.NewString()).
			Str("username", req.Username).
			Str("color", string(req.Color)).
			Logger(),
	}

	defer func() {
		if r := recover(); r != nil {
			state.log.Error().Any("panic", r).Msg("Run aborted by panic")
			state.save(context.WithoutCancel(ctx), p.store, false)
			result = failure("internal error: %v", r)
			result.PlayerData = state.pd
			result.GamesProcessed = state.accepted
		}
	}()

	if msg := p.checkRequest(&req); msg != "" {
		return failure("%s", msg)
	}
	state.req = req

	return p.run(ctx, state)
}

// checkRequest validates and normalizes a request before any network I/O.
// Returns a failure message, or empty when the request is usable.
func (p *Pipeline) checkRequest(req *Request) string {
	if req.Username == "" {
		return "no username provided"
	}
	if !req.Color.Valid() {
		return fmt.Sprintf("invalid color %q", req.Color)
	}
	if len(req.AllowedSpeeds) == 0 {
		return "at least one time control must be selected"
	}
	for _, s := range req.AllowedSpeeds {
		if _, ok := models.ParseSpeed(string(s)); !ok {
			return fmt.Sprintf("unsupported time control %q", s)
		}
	}
	if p.catalogs[req.Color] == nil {
		return fmt.Sprintf("no opening catalog loaded for %s", req.Color)
	}

	if req.SinceMS > 0 && req.SinceMS < minDataDateMS {
		req.SinceMS = minDataDateMS
	}
	if req.MaxGames <= 0 {
		req.MaxGames = p.cfg.MaxGames
	}
	if req.SaveInterval <= 0 {
		req.SaveInterval = p.cfg.SaveInterval
	}
	return ""
}

func (p *Pipeline) run(ctx context.Context, state *runState) Result {
	req := state.req

	// Boot the model while games stream; by the time the aggregate is ready
	// a scaled-to-zero instance has had minutes to come up.
	go p.predictor.Wake(context.WithoutCancel(ctx))

	state.status(fmt.Sprintf("Looking up %s on Lichess...", req.Username))

	profile, err := p.source.GetUserProfile(ctx, req.Username)
	if err != nil {
		return p.profileFailure(req.Username, err)
	}

	selection, err := lichess.SelectRating(profile.Perfs)
	if err != nil {
		return failure("%s has %s", req.Username, err.Error())
	}
	state.log.Info().Int("rating", selection.Rating).Str("speed", string(selection.Speed)).Int("rd", selection.RD).Msg("Selected rating reference")

	state.estimate = lichess.EstimateGamesToStream(profile, req.AllowedSpeeds, req.SinceMS)

	if msg := p.initAggregate(ctx, state, selection.Rating); msg != "" {
		return failure("%s", msg)
	}

	validator := validate.New(p.catalogs[req.Color], p.cfg.MaxRatingDelta, p.cfg.MinPlies)

	state.status(fmt.Sprintf("Streaming %s's games...", req.Username))
	if msg := p.streamAll(ctx, state, validator); msg != "" {
		result := failure("%s", msg)
		result.PlayerData = state.pd
		result.GamesProcessed = state.accepted
		result.ValidationStats = validator.Stats()
		return result
	}

	if stats.TotalGames(state.pd) == 0 {
		// Distinct from transport failures: streaming worked, the player
		// just has nothing usable for this color and speed set.
		return Result{
			Message:         fmt.Sprintf("no valid games found for %s (checked %d games)", req.Username, state.checked),
			PlayerData:      state.pd,
			GamesProcessed:  state.accepted,
			ValidationStats: validator.Stats(),
		}
	}

	// Streaming work is durable before the final, less reliable step.
	state.save(ctx, p.store, false)

	state.status("Requesting opening recommendations...")
	predictReq, err := stats.ToPredictRequest(state.pd)
	if err != nil {
		result := failure("%s", err.Error())
		result.PlayerData = state.pd
		result.GamesProcessed = state.accepted
		result.ValidationStats = validator.Stats()
		return result
	}

	response, err := p.predictor.Predict(ctx, predictReq)
	if err != nil {
		result := failure("recommendation service failed: %s", err.Error())
		result.PlayerData = state.pd
		result.GamesProcessed = state.accepted
		result.ValidationStats = validator.Stats()
		return result
	}

	state.save(ctx, p.store, true)

	state.log.Info().Int("games_accepted", state.accepted).
		Int("openings", len(state.pd.OpeningStats)).
		Msg("Run completed")

	return Result{
		Success:         true,
		Response:        response,
		PlayerData:      state.pd,
		GamesProcessed:  state.accepted,
		ValidationStats: validator.Stats(),
	}
}

// profileFailure maps profile-fetch errors to user-facing messages.
func (p *Pipeline) profileFailure(username string, err error) Result {
	switch {
	case errors.Is(err, lichess.ErrUserNotFound):
		return failure("user %q not found on Lichess", username)
	case errors.Is(err, lichess.ErrRateLimited):
		return failure("Lichess is rate limiting requests; try again in a minute")
	default:
		return failure("could not fetch %s's profile: %s", username, err.Error())
	}
}

// initAggregate resolves against any existing checkpoint and sets up the
// aggregate and counters. Returns a failure message only for unusable state.
func (p *Pipeline) initAggregate(ctx context.Context, state *runState, rating int) string {
	req := state.req

	env, err := p.store.Load(ctx, state.key)
	if err != nil {
		state.log.Warn().Err(err).Msg("Checkpoint load failed; starting fresh")
		env = nil
	}

	check := checkpoint.Check{Exists: env != nil, Envelope: env, MaxAge: p.maxAge}
	resolution := checkpoint.Resolve(check, req.AllowedSpeeds, req.SinceMS, time.Now())
	state.log.Info().Str("decision", resolution.Decision.String()).Str("reason", resolution.Reason).Bool("stale", resolution.Stale).Msg("Resolved checkpoint")
	state.status(resolution.Reason)

	switch resolution.Decision {
	case checkpoint.Resume:
		state.pd = env.PlayerData
		state.pd.Rating = rating // always reflect the current rating
		state.cursorMS = env.CursorMS
		state.accepted = env.GamesProcessed
		if resolution.Stale {
			state.log.Warn().Int64("last_saved_ms", env.LastSavedMS).Msg("Resuming a checkpoint past the freshness window")
		}

	case checkpoint.DeleteAndRestart:
		if err := p.store.Delete(ctx, state.key); err != nil {
			state.log.Warn().Err(err).Msg("Could not delete unusable checkpoint")
		}
		fallthrough

	default: // FreshStart
		state.pd = models.NewPlayerData(req.Username, rating, req.Color, req.AllowedSpeeds)
		state.cursorMS = 0
		state.accepted = 0
	}

	metrics.OpeningsTracked.WithLabelValues(string(req.Color)).Set(float64(len(state.pd.OpeningStats)))
	return ""
}

// streamAll runs the batch loop to exhaustion or the game cap. Returns a
// failure message, or empty on normal completion.
func (p *Pipeline) streamAll(ctx context.Context, state *runState, validator *validate.Validator) string {
	req := state.req
	acceptedSinceSave := 0

	for {
		if err := ctx.Err(); err != nil {
			state.save(context.WithoutCancel(ctx), p.store, false)
			return fmt.Sprintf("run canceled: %s", err.Error())
		}

		// The cap counts accepted games, so a batch never needs to fetch more
		// raw games than could still be accepted.
		batchMax := p.source.BatchSize()
		if remaining := req.MaxGames - state.accepted; remaining < batchMax {
			batchMax = remaining
		}
		if batchMax <= 0 {
			return ""
		}

		batchStart := time.Now()
		stream, err := p.source.StreamGames(ctx, lichess.StreamRequest{
			Username: req.Username,
			Color:    req.Color,
			MaxGames: batchMax,
			Speeds:   req.AllowedSpeeds,
			SinceMS:  req.SinceMS,
			UntilMS:  state.cursorMS,
		})
		if err != nil {
			state.save(context.WithoutCancel(ctx), p.store, false)
			return fmt.Sprintf("streaming games failed: %s", err.Error())
		}

		batchCount, oldestMS, msg := p.consumeBatch(ctx, state, validator, stream, &acceptedSinceSave)
		_ = stream.Close()
		metrics.FetchBatchDuration.Observe(time.Since(batchStart).Seconds())

		if msg != "" {
			state.save(context.WithoutCancel(ctx), p.store, false)
			return msg
		}

		if batchCount == 0 {
			// Exhausted: the source has nothing older.
			return ""
		}

		// Request strictly older games next time; the subtraction keeps the
		// boundary game from being fetched twice.
		state.cursorMS = oldestMS - 1

		state.log.Debug().Int("batch_games", batchCount).Int64("cursor_ms", state.cursorMS).
			Int("total_accepted", state.accepted).Msg("Batch complete")
	}
}

// consumeBatch drains one stream through validation and accumulation.
// Returns the batch's game count, the oldest timestamp seen, and a failure
// message (empty on success).
func (p *Pipeline) consumeBatch(ctx context.Context, state *runState, validator *validate.Validator, stream *lichess.GameStream, acceptedSinceSave *int) (int, int64, string) {
	req := state.req
	batchCount := 0
	var oldestMS int64

	for {
		game, err := stream.Next()
		if err == io.EOF {
			return batchCount, oldestMS, ""
		}
		if err != nil {
			return batchCount, oldestMS, fmt.Sprintf("reading game stream failed: %s", err.Error())
		}

		batchCount++
		state.checked++
		if oldestMS == 0 || game.CreatedAt < oldestMS {
			oldestMS = game.CreatedAt
		}

		if validator.Check(game) == validate.Accepted {
			p.accumulate(state, game)
			state.accepted++
			state.progress()

			*acceptedSinceSave++
			if *acceptedSinceSave >= req.SaveInterval {
				// Mid-batch cursor: everything at or newer than the oldest
				// game seen is already in the aggregate.
				saved := state.cursorMS
				state.cursorMS = oldestMS - 1
				state.save(ctx, p.store, false)
				state.cursorMS = saved
				*acceptedSinceSave = 0
			}
		}
	}
}

// accumulate folds one accepted game into the aggregate.
func (p *Pipeline) accumulate(state *runState, game *models.Game) {
	catalog := p.catalogs[state.req.Color]
	trainingID, _ := catalog.TrainingID(game.Opening.Name)

	weight := 1
	if speed, ok := models.ParseSpeed(game.Speed); ok {
		weight = p.cfg.Weight(speed)
	}

	result := stats.GameResult(game, state.req.Color)
	stats.Accumulate(state.pd, game.Opening.Name, game.Opening.ECO, trainingID, result, weight)
}
