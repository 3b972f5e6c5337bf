// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pudim Contributors

// Package types holds the domain types shared between the cache layer,
// the upstream fetcher, and the leaderboard store.
package types

// LanguageStat is one entry of a user's top-language histogram.
// Percentage is computed over repositories that declare a language,
// not over all repositories.
type LanguageStat struct {
	Name       string  `json:"name"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// CachedStats is a snapshot of a user's public GitHub profile. It is
// created once on a cache miss, read-only afterwards, and expires by TTL.
// Username preserves the casing returned by upstream; cache keys lowercase it.
type CachedStats struct {
	Username    string         `json:"username"`
	AvatarURL   string         `json:"avatarUrl"`
	Followers   int            `json:"followers"`
	TotalStars  int            `json:"totalStars"`
	PublicRepos int            `json:"publicRepos"`
	CreatedAt   string         `json:"createdAt"`
	Languages   []LanguageStat `json:"languages"`
}

// Rank describes the tier a score falls into.
type Rank struct {
	Code        string `json:"code"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Emoji       string `json:"emoji"`
	ColorToken  string `json:"colorToken"`
}

// ScoreRecord is one append-only leaderboard document, keyed by
// (username, timestamp). Timestamp is ISO-8601 UTC and doubles as the
// sort key: the lexicographically greatest timestamp is the latest
// record. Only LeaderboardConsent on the latest record may ever be
// mutated in place.
type ScoreRecord struct {
	Username           string       `json:"username" dynamodbav:"username"`
	Timestamp          string       `json:"timestamp" dynamodbav:"timestamp"`
	Score              float64      `json:"score" dynamodbav:"score"`
	Rank               Rank         `json:"rank" dynamodbav:"rank"`
	Stats              *CachedStats `json:"stats" dynamodbav:"stats"`
	LeaderboardConsent bool         `json:"leaderboardConsent,omitempty" dynamodbav:"leaderboardConsent"`
}

// TopScoreEntry is the leaderboard projection of a ScoreRecord. It
// deliberately excludes the full stats/language payload.
type TopScoreEntry struct {
	Username    string  `json:"username"`
	Timestamp   string  `json:"timestamp"`
	Score       float64 `json:"score"`
	Rank        Rank    `json:"rank"`
	AvatarURL   string  `json:"avatarUrl"`
	Followers   int     `json:"followers"`
	TotalStars  int     `json:"totalStars"`
	PublicRepos int     `json:"publicRepos"`
}

// AggregateStatistics is the derived, cacheable leaderboard summary.
// TotalRecords and ConsentedRecords count all records; the histograms,
// unique-user count, and average are computed over each user's latest
// record only.
type AggregateStatistics struct {
	TotalRecords     int            `json:"totalRecords"`
	ConsentedRecords int            `json:"consentedRecords"`
	UniqueUsers      int            `json:"uniqueUsers"`
	RankCounts       map[string]int `json:"rankCounts"`
	LanguageCounts   map[string]int `json:"languageCounts"`
	AverageScore     float64        `json:"averageScore"`
}
