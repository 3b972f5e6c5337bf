// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pudim Contributors

// Package score computes the deterministic profile score and maps it to
// a rank descriptor. The formula is a pure function of the profile
// snapshot and the evaluation time; equal inputs always produce equal
// scores, which the leaderboard's change-detection relies on.
package score

import (
	"math"
	"time"

	"github.com/pudim-dev/pudim/pkg/types"
)

// Weights of the scoring formula. Stars weigh the most: they measure
// reach of the work rather than of the person.
const (
	followerWeight = 3.0
	starWeight     = 4.0
	repoWeight     = 2.0
	ageYearWeight  = 50.0
	maxAgeYears    = 15.0
)

// Compute returns the score for a profile snapshot, rounded to two
// decimals. Account age contributes linearly up to maxAgeYears; an
// unparseable creation timestamp contributes zero.
func Compute(stats *types.CachedStats, now time.Time) float64 {
	if stats == nil {
		return 0
	}

	raw := followerWeight*float64(stats.Followers) +
		starWeight*float64(stats.TotalStars) +
		repoWeight*float64(stats.PublicRepos) +
		ageYearWeight*ageYears(stats.CreatedAt, now)

	return math.Round(raw*100) / 100
}

func ageYears(createdAt string, now time.Time) float64 {
	created, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return 0
	}
	years := now.Sub(created).Hours() / (24 * 365.25)
	if years < 0 {
		return 0
	}
	return math.Min(years, maxAgeYears)
}

var ranks = []struct {
	min  float64
	rank types.Rank
}{
	{5000, types.Rank{Code: "S", Title: "GitHub Legend", Description: "A profile the whole ecosystem has heard of.", Emoji: "\U0001F3C6", ColorToken: "gold"}},
	{2000, types.Rank{Code: "A", Title: "Open Source Hero", Description: "Ships widely used work, consistently.", Emoji: "\U0001F680", ColorToken: "purple"}},
	{750, types.Rank{Code: "B", Title: "Active Contributor", Description: "A steady stream of public work.", Emoji: "\U0001F525", ColorToken: "blue"}},
	{250, types.Rank{Code: "C", Title: "Rising Coder", Description: "Building momentum in the open.", Emoji: "\U0001F331", ColorToken: "green"}},
	{0, types.Rank{Code: "D", Title: "Getting Started", Description: "Every profile starts somewhere.", Emoji: "\U0001F95A", ColorToken: "gray"}},
}

// RankFor maps a score to its rank descriptor.
func RankFor(score float64) types.Rank {
	for _, r := range ranks {
		if score >= r.min {
			return r.rank
		}
	}
	return ranks[len(ranks)-1].rank
}
