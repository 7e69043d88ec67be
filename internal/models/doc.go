// OpeningScout - Chess Opening Performance Statistics and Recommendations
// Copyright 2026 Chess Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chesslabs/openingscout

// Package models defines the data structures shared across the pipeline:
// Lichess API records, per-opening statistics, checkpoint envelopes, and the
// inference request/response contract.
//
// Conventions:
//   - All timestamps are Unix milliseconds (matching the Lichess API).
//   - JSON tags use the wire casing of the producing system: Lichess types
//     mirror the Lichess API, inference types use snake_case because the
//     inference service is written in Python.
//   - Struct validation uses go-playground/validator tags; envelopes read
//     back from storage are validated before being trusted.
package models
