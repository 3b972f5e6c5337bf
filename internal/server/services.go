// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pudim Contributors

package server

import (
	"context"
	"net/http"

	"github.com/pudim-dev/pudim/internal/leaderboard"
	"github.com/pudim-dev/pudim/pkg/health"
	"github.com/pudim-dev/pudim/pkg/types"
)

// StatsProvider supplies profile snapshots. *github.Fetcher satisfies it.
type StatsProvider interface {
	FetchStats(ctx context.Context, username string) (*types.CachedStats, error)
}

// BadgeDeliverer serves rendered badge bytes. *badge.Service satisfies it.
type BadgeDeliverer interface {
	Deliver(ctx context.Context, username string) ([]byte, error)
	ContentType() string
}

// BreakerReporter exposes a dependency's breaker snapshot for /health.
// *cache.Client satisfies it.
type BreakerReporter interface {
	BreakerMetrics() health.Metrics
}

// MetricsHandler serves the Prometheus scrape endpoint. *metrics.Metrics
// satisfies it.
type MetricsHandler interface {
	Handler() http.Handler
}

// Services carries the dependencies the HTTP routes need.
type Services struct {
	Stats   StatsProvider
	Store   leaderboard.Store
	Badge   BadgeDeliverer
	Cache   BreakerReporter
	Metrics MetricsHandler
}
