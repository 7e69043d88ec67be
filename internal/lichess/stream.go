// OpeningScout - Chess Opening Performance Statistics and Recommendations
// Copyright 2026 Chess Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chesslabs/openingscout

package lichess

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/chesslabs/openingscout/internal/logging"
	"github.com/chesslabs/openingscout/internal/metrics"
	"github.com/chesslabs/openingscout/internal/models"
)

// StreamRequest describes one batch of games to stream.
// SinceMS/UntilMS are inclusive Unix-millisecond boundaries; zero means unset.
type StreamRequest struct {
	Username string
	Color    models.Color
	MaxGames int
	Speeds   []models.Speed
	SinceMS  int64
	UntilMS  int64
}

// StreamGames requests one NDJSON batch of rated games, newest first, and
// returns a GameStream over the response body. The caller must Close the
// stream. A non-2xx status (after the retry budget) is mapped to a sentinel
// error: ErrUserNotFound, ErrRateLimited, or ErrServerError.
func (c *Client) StreamGames(ctx context.Context, req StreamRequest) (*GameStream, error) {
	params := url.Values{}
	params.Set("rated", "true")
	params.Set("perfType", joinSpeeds(req.Speeds))
	params.Set("max", strconv.Itoa(req.MaxGames))
	params.Set("moves", "false")
	params.Set("opening", "true")
	params.Set("tags", "false")
	params.Set("clocks", "true")
	params.Set("color", string(req.Color))
	if req.SinceMS > 0 {
		params.Set("since", strconv.FormatInt(req.SinceMS, 10))
	}
	if req.UntilMS > 0 {
		params.Set("until", strconv.FormatInt(req.UntilMS, 10))
	}

	reqURL := fmt.Sprintf("%s/api/games/user/%s?%s", c.baseURL, url.PathEscape(req.Username), params.Encode())

	resp, err := c.doRequestWithBackoff(ctx, "games", reqURL, "application/x-ndjson")
	if err != nil {
		return nil, fmt.Errorf("failed to stream games: %w", err)
	}

	if resp.StatusCode != 200 {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}

	return NewGameStream(resp.Body), nil
}

// joinSpeeds renders the perfType comma-set for the games endpoint.
func joinSpeeds(speeds []models.Speed) string {
	parts := make([]string, len(speeds))
	for i, s := range speeds {
		parts[i] = string(s)
	}
	return strings.Join(parts, ",")
}

// streamChunkSize is the read granularity for the NDJSON body.
const streamChunkSize = 16 * 1024

// GameStream is a lazy, finite, forward-only iterator over an NDJSON game
// stream. It decodes records incrementally as bytes arrive and never
// materializes the full payload: the only state carried across reads is the
// trailing incomplete line fragment, so memory does not grow with the number
// of games consumed.
//
// GameStream is not safe for concurrent use; the pipeline consumes it from a
// single goroutine.
type GameStream struct {
	body  io.ReadCloser
	frag  []byte // trailing incomplete line carried across reads
	chunk []byte
	eof   bool
}

// NewGameStream wraps an NDJSON body in a pull iterator.
func NewGameStream(body io.ReadCloser) *GameStream {
	return &GameStream{
		body:  body,
		chunk: make([]byte, streamChunkSize),
	}
}

// Next returns the next decoded game, or io.EOF when the stream is exhausted.
// Malformed lines are logged at warn level and skipped; partial corruption is
// not fatal to the stream. On stream end the trailing fragment gets one final
// decode attempt.
func (s *GameStream) Next() (*models.Game, error) {
	for {
		// Drain complete lines already buffered.
		for {
			idx := bytes.IndexByte(s.frag, '\n')
			if idx < 0 {
				break
			}
			line := s.frag[:idx]
			// Compact rather than re-slice so the backing array never retains
			// bytes of games already yielded.
			s.frag = append(s.frag[:0:0], s.frag[idx+1:]...)

			if game, ok := decodeGameLine(line); ok {
				return game, nil
			}
		}

		if s.eof {
			// One final attempt on whatever is left in the buffer.
			line := s.frag
			s.frag = nil
			if game, ok := decodeGameLine(line); ok {
				return game, nil
			}
			return nil, io.EOF
		}

		n, err := s.body.Read(s.chunk)
		if n > 0 {
			s.frag = append(s.frag, s.chunk[:n]...)
		}
		if err == io.EOF {
			s.eof = true
		} else if err != nil {
			return nil, fmt.Errorf("read game stream: %w", err)
		}
	}
}

// Close releases the underlying response body.
func (s *GameStream) Close() error {
	return s.body.Close()
}

// decodeGameLine decodes one NDJSON line. Blank lines and undecodable lines
// return ok=false.
func decodeGameLine(line []byte) (*models.Game, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, false
	}

	var game models.Game
	if err := json.Unmarshal(line, &game); err != nil {
		metrics.DecodeErrorsTotal.Inc()
		logging.Warn().Err(err).Int("line_bytes", len(line)).Msg("Skipping malformed game record")
		return nil, false
	}

	metrics.GamesDecodedTotal.Inc()
	return &game, true
}
