// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pudim Contributors

package cache

import "strings"

// Kind discriminates the value families stored in the key-value cache.
type Kind string

const (
	// KindStats caches a user's profile snapshot as JSON.
	KindStats Kind = "stats"
	// KindBadge caches rendered badge bytes as base64 text.
	KindBadge Kind = "badge"
	// KindStatistics caches the derived leaderboard summary as JSON.
	KindStatistics Kind = "statistics"
)

// Default key prefixes. The stats and badge formats are load-bearing:
// existing deployments share the cache store, so derived keys must match
// byte for byte.
const (
	DefaultStatsPrefix = "pudim:github:"
	DefaultBadgePrefix = "pudim:"
)

// KeyConfig holds the independently configurable prefixes per value kind.
type KeyConfig struct {
	StatsPrefix string
	BadgePrefix string
}

// KeyConfigDefaults returns the production prefixes.
func KeyConfigDefaults() KeyConfig {
	return KeyConfig{
		StatsPrefix: DefaultStatsPrefix,
		BadgePrefix: DefaultBadgePrefix,
	}
}

// DeriveKey returns the deterministic cache key for a kind and username.
// Usernames are lowercased (GitHub usernames are case-insensitive), so
// "FooBar" and "foobar" share one entry. Stats and badge keys can never
// collide for the same username. The statistics key is global and
// ignores the username argument; its "leaderboard:" segment keeps it out
// of the per-user namespaces.
func (c KeyConfig) DeriveKey(kind Kind, username string) string {
	switch kind {
	case KindBadge:
		return c.BadgePrefix + "badge:" + strings.ToLower(username)
	case KindStatistics:
		return c.BadgePrefix + "leaderboard:statistics"
	default:
		return c.StatsPrefix + strings.ToLower(username)
	}
}
