// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pudim Contributors

// Package leaderboard persists score records in a document store and
// serves ranked, consent-filtered views of them. All operations sit
// behind the store's own circuit breaker: read paths degrade to
// nil/empty results, while the two user-visible write paths (saving a
// score, changing consent) propagate failures.
package leaderboard

import (
	"context"

	"github.com/pudim-dev/pudim/pkg/health"
	"github.com/pudim-dev/pudim/pkg/types"
)

// DefaultTopLimit bounds GetTopScores when the caller passes no limit.
const DefaultTopLimit = 10

// DefaultHistoryLimit bounds GetScoreHistory when the caller passes no limit.
const DefaultHistoryLimit = 10

// TimestampLayout is the record timestamp format: millisecond-precision
// ISO-8601 UTC. Lexicographic order on these strings matches
// chronological order, which the latest-record queries depend on.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Store is the leaderboard contract consumed by the HTTP surface.
type Store interface {
	// SaveScore persists a new score record unless the rounded score
	// equals the user's current latest record (idempotent de-dup).
	// Persistence failures propagate: silently losing a score write is
	// worse than surfacing it.
	SaveScore(ctx context.Context, username string, score float64, rank types.Rank, stats *types.CachedStats, consent bool) error

	// UpdateConsent mutates the consent flag of the user's latest record
	// in place; no-op when the user has no records. Failures propagate.
	UpdateConsent(ctx context.Context, username string, consent bool) error

	// GetLatestScore returns the record with the greatest timestamp for
	// the user, or nil on miss or any failure. Never returns an error.
	GetLatestScore(ctx context.Context, username string) *types.ScoreRecord

	// GetTopScores returns up to limit consented entries, one per
	// username (latest record wins), sorted by score descending. Empty
	// on any failure.
	GetTopScores(ctx context.Context, limit int) []types.TopScoreEntry

	// GetScoreHistory returns up to limit records for the user, newest
	// first. Empty on any failure.
	GetScoreHistory(ctx context.Context, username string, limit int) []types.ScoreRecord

	// GetStatistics returns the aggregate summary, cache-first. Zeroed
	// on any failure.
	GetStatistics(ctx context.Context) types.AggregateStatistics

	// BreakerMetrics returns a snapshot of the store's breaker state.
	BreakerMetrics() health.Metrics
}
