// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pudim Contributors

// Package badge renders and delivers the embeddable profile badge. The
// delivery path is cache-first on the rendered bytes; a miss fetches the
// profile snapshot, renders, and writes the image back detached.
package badge

import (
	"context"
	"log/slog"
	"time"

	"github.com/pudim-dev/pudim/internal/cache"
	"github.com/pudim-dev/pudim/internal/score"
	"github.com/pudim-dev/pudim/pkg/types"
)

// StatsSource supplies profile snapshots. *github.Fetcher satisfies it.
type StatsSource interface {
	FetchStats(ctx context.Context, username string) (*types.CachedStats, error)
}

// Renderer turns a scored profile snapshot into image bytes.
type Renderer interface {
	Render(stats *types.CachedStats, rank types.Rank, scoreValue float64) ([]byte, error)
	ContentType() string
}

// Service is the badge delivery service.
type Service struct {
	cache    *cache.Client
	source   StatsSource
	renderer Renderer
	logger   *slog.Logger
	nowFunc  func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithNowFunc overrides the score evaluation clock (for testing).
func WithNowFunc(fn func() time.Time) Option {
	return func(s *Service) { s.nowFunc = fn }
}

// New creates a badge Service.
func New(cacheClient *cache.Client, source StatsSource, renderer Renderer, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		cache:    cacheClient,
		source:   source,
		renderer: renderer,
		logger:   logger.With("component", "badge-service"),
		nowFunc:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ContentType returns the media type of delivered badges.
func (s *Service) ContentType() string {
	return s.renderer.ContentType()
}

// Deliver returns the badge image bytes for a username. Cached bytes are
// served as-is; otherwise the profile is fetched, scored, rendered, and
// the result is written back to the cache detached. Fetch and render
// failures propagate so the caller can serve a fallback.
func (s *Service) Deliver(ctx context.Context, username string) ([]byte, error) {
	if img := s.cache.GetBadge(ctx, username); img != nil {
		return img, nil
	}

	stats, err := s.source.FetchStats(ctx, username)
	if err != nil {
		return nil, err
	}

	scoreValue := score.Compute(stats, s.nowFunc())
	rank := score.RankFor(scoreValue)

	img, err := s.renderer.Render(stats, rank, scoreValue)
	if err != nil {
		return nil, err
	}

	go s.cache.SetBadge(context.WithoutCancel(ctx), stats.Username, img)

	return img, nil
}
