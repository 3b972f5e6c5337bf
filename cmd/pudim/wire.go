// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pudim Contributors

package main

import (
	"log/slog"

	"github.com/pudim-dev/pudim/internal/badge"
	"github.com/pudim-dev/pudim/internal/cache"
	"github.com/pudim-dev/pudim/internal/config"
	"github.com/pudim-dev/pudim/internal/github"
	"github.com/pudim-dev/pudim/internal/leaderboard"
	"github.com/pudim-dev/pudim/internal/metrics"
	"github.com/pudim-dev/pudim/internal/server"
	pudimerr "github.com/pudim-dev/pudim/pkg/errors"
)

// App holds all wired subsystems and manages their lifecycle.
type App struct {
	Server *server.Server
	Cache  *cache.Client
}

// wireApp creates all subsystems and wires them together.
func wireApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	m := metrics.New()

	// 1. Key-value cache in front of everything.
	cacheClient, err := cache.New(cache.Config{
		Enabled: cfg.Cache.Enabled,
		URL:     cfg.Cache.URL,
		Keys: cache.KeyConfig{
			StatsPrefix: cfg.Cache.StatsPrefix,
			BadgePrefix: cfg.Cache.BadgePrefix,
		},
		TTL:             cfg.Cache.TTL,
		StatisticsTTL:   cfg.Cache.StatisticsTTL,
		BreakerCooldown: cfg.Cache.BreakerCooldown,
		ConnectTimeout:  cfg.Cache.ConnectTimeout,
		ConnectAttempts: cfg.Cache.ConnectAttempts,
		Logger:          logger,
	}, cache.WithMetrics(m))
	if err != nil {
		return nil, pudimerr.Wrap(err, pudimerr.CodeServerStartFailure, "creating cache client")
	}

	// 2. Leaderboard score store.
	store, err := leaderboard.New(leaderboard.Config{
		Enabled:         cfg.Leaderboard.Enabled,
		Table:           cfg.Leaderboard.Table,
		Region:          cfg.Leaderboard.Region,
		Endpoint:        cfg.Leaderboard.Endpoint,
		AccessKeyID:     cfg.Leaderboard.AccessKeyID,
		SecretAccessKey: cfg.Leaderboard.SecretAccessKey,
		BreakerCooldown: cfg.Leaderboard.BreakerCooldown,
		Logger:          logger,
	}, cacheClient, leaderboard.WithMetrics(m))
	if err != nil {
		cacheClient.Close()
		return nil, pudimerr.Wrap(err, pudimerr.CodeServerStartFailure, "creating leaderboard store")
	}

	// 3. Upstream statistics fetcher, cache-first.
	fetcher := github.New(github.Config{
		BaseURL:         cfg.GitHub.BaseURL,
		Token:           cfg.GitHub.Token,
		Timeout:         cfg.GitHub.Timeout,
		RateLimitPerSec: cfg.GitHub.RateLimitPerSec,
		Logger:          logger,
	}, cacheClient, github.WithMetrics(m))

	// 4. Badge delivery.
	badgeSvc := badge.New(cacheClient, fetcher, badge.NewSVGRenderer(), logger)

	// 5. HTTP server.
	srv, err := server.New(server.Config{
		ListenAddr:      cfg.Server.Listen,
		CORSOrigins:     cfg.Server.CORSOrigins,
		BadgeCacheAge:   cfg.Server.BadgeCacheAge,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Logger:          logger,
	})
	if err != nil {
		cacheClient.Close()
		return nil, pudimerr.Wrap(err, pudimerr.CodeServerStartFailure, "creating server")
	}

	srv.RegisterServices(&server.Services{
		Stats:   fetcher,
		Store:   store,
		Badge:   badgeSvc,
		Cache:   cacheClient,
		Metrics: m,
	})

	return &App{Server: srv, Cache: cacheClient}, nil
}

// Close releases long-lived resources.
func (a *App) Close() {
	a.Cache.Close()
}
