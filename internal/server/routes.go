// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pudim Contributors

package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/pudim-dev/pudim/internal/leaderboard"
	"github.com/pudim-dev/pudim/internal/score"
	pudimerr "github.com/pudim-dev/pudim/pkg/errors"
	"github.com/pudim-dev/pudim/pkg/types"
)

// RegisterServices sets the service dependencies and registers the routes.
func (s *Server) RegisterServices(svc *Services) {
	s.services = svc
	s.registerRoutes()
}

func (s *Server) registerRoutes() {
	// Stats endpoint
	huma.Register(s.api, huma.Operation{
		OperationID: "get-stats",
		Method:      http.MethodGet,
		Path:        "/api/v1/stats/{username}",
		Summary:     "Get profile statistics",
		Tags:        []string{"stats"},
	}, s.handleGetStats)

	// Score endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "create-score",
		Method:      http.MethodPost,
		Path:        "/api/v1/scores",
		Summary:     "Score a profile and record the result",
		Tags:        []string{"scores"},
	}, s.handleCreateScore)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-score",
		Method:      http.MethodGet,
		Path:        "/api/v1/scores/{username}",
		Summary:     "Get the latest recorded score",
		Tags:        []string{"scores"},
	}, s.handleGetScore)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-score-history",
		Method:      http.MethodGet,
		Path:        "/api/v1/scores/{username}/history",
		Summary:     "Get recorded score history",
		Tags:        []string{"scores"},
	}, s.handleGetScoreHistory)

	huma.Register(s.api, huma.Operation{
		OperationID: "update-consent",
		Method:      http.MethodPut,
		Path:        "/api/v1/scores/{username}/consent",
		Summary:     "Update leaderboard consent",
		Tags:        []string{"scores"},
	}, s.handleUpdateConsent)

	// Leaderboard endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "get-leaderboard",
		Method:      http.MethodGet,
		Path:        "/api/v1/leaderboard",
		Summary:     "Get the consented leaderboard",
		Tags:        []string{"leaderboard"},
	}, s.handleGetLeaderboard)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-statistics",
		Method:      http.MethodGet,
		Path:        "/api/v1/statistics",
		Summary:     "Get aggregate leaderboard statistics",
		Tags:        []string{"leaderboard"},
	}, s.handleGetStatistics)

	// The badge is a raw route: it serves image bytes with cache headers,
	// not a JSON document.
	s.router.Get("/badge/{username}", s.handleBadge)

	if s.services.Metrics != nil {
		s.router.Handle("/metrics", s.services.Metrics.Handler())
	}
}

// --- Request/Response types for huma ---

type usernameInput struct {
	Username string `path:"username" maxLength:"39" doc:"GitHub username"`
}

type getStatsOutput struct {
	Body types.CachedStats
}

type createScoreInput struct {
	Body struct {
		Username           string `json:"username" minLength:"1" maxLength:"39" doc:"GitHub username to score"`
		LeaderboardConsent bool   `json:"leaderboardConsent,omitempty" doc:"Whether the score may appear on the public leaderboard"`
	}
}
type createScoreOutput struct {
	Body types.ScoreRecord
}

type getScoreOutput struct {
	Body types.ScoreRecord
}

type historyInput struct {
	Username string `path:"username" maxLength:"39" doc:"GitHub username"`
	Limit    int    `query:"limit" doc:"Maximum entries to return; defaults when omitted"`
}
type historyOutput struct {
	Body struct {
		History []types.ScoreRecord `json:"history"`
	}
}

type updateConsentInput struct {
	Username string `path:"username" maxLength:"39" doc:"GitHub username"`
	Body     struct {
		Consent bool `json:"consent" doc:"New consent value"`
	}
}
type updateConsentOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

type leaderboardInput struct {
	Limit int `query:"limit" doc:"Maximum entries to return; defaults when omitted"`
}
type leaderboardOutput struct {
	Body struct {
		Entries []types.TopScoreEntry `json:"entries"`
	}
}

type statisticsOutput struct {
	Body types.AggregateStatistics
}

// --- Handlers ---

func (s *Server) handleGetStats(ctx context.Context, input *usernameInput) (*getStatsOutput, error) {
	stats, err := s.services.Stats.FetchStats(ctx, input.Username)
	if err != nil {
		return nil, humaError(err)
	}
	return &getStatsOutput{Body: *stats}, nil
}

func (s *Server) handleCreateScore(ctx context.Context, input *createScoreInput) (*createScoreOutput, error) {
	stats, err := s.services.Stats.FetchStats(ctx, input.Body.Username)
	if err != nil {
		return nil, humaError(err)
	}

	now := s.nowFunc()
	scoreValue := score.Compute(stats, now)
	rank := score.RankFor(scoreValue)

	if err := s.services.Store.SaveScore(ctx, stats.Username, scoreValue, rank,
		stats, input.Body.LeaderboardConsent); err != nil {
		return nil, humaError(err)
	}

	out := &createScoreOutput{}

	// Report what the store actually holds: after a deduplicated save the
	// latest record, with its original timestamp, is the truth.
	if rec := s.services.Store.GetLatestScore(ctx, stats.Username); rec != nil {
		out.Body = *rec
		return out, nil
	}

	// Disabled or degraded store: report the computed result.
	out.Body = types.ScoreRecord{
		Username:           stats.Username,
		Timestamp:          now.UTC().Format(leaderboard.TimestampLayout),
		Score:              scoreValue,
		Rank:               rank,
		Stats:              stats,
		LeaderboardConsent: input.Body.LeaderboardConsent,
	}
	return out, nil
}

func (s *Server) handleGetScore(ctx context.Context, input *usernameInput) (*getScoreOutput, error) {
	rec := s.services.Store.GetLatestScore(ctx, input.Username)
	if rec == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("no recorded score for %q", input.Username))
	}
	return &getScoreOutput{Body: *rec}, nil
}

func (s *Server) handleGetScoreHistory(ctx context.Context, input *historyInput) (*historyOutput, error) {
	out := &historyOutput{}
	out.Body.History = s.services.Store.GetScoreHistory(ctx, input.Username, input.Limit)
	return out, nil
}

func (s *Server) handleUpdateConsent(ctx context.Context, input *updateConsentInput) (*updateConsentOutput, error) {
	if err := s.services.Store.UpdateConsent(ctx, input.Username, input.Body.Consent); err != nil {
		return nil, humaError(err)
	}
	out := &updateConsentOutput{}
	out.Body.Status = "updated"
	return out, nil
}

func (s *Server) handleGetLeaderboard(ctx context.Context, input *leaderboardInput) (*leaderboardOutput, error) {
	out := &leaderboardOutput{}
	out.Body.Entries = s.services.Store.GetTopScores(ctx, input.Limit)
	return out, nil
}

func (s *Server) handleGetStatistics(ctx context.Context, _ *struct{}) (*statisticsOutput, error) {
	return &statisticsOutput{Body: s.services.Store.GetStatistics(ctx)}, nil
}

func (s *Server) handleBadge(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	img, err := s.services.Badge.Deliver(r.Context(), username)
	if err != nil {
		s.logger.Warn("badge delivery failed", "username", username, "error", err)
		http.Error(w, http.StatusText(pudimerr.HTTPStatus(err)), pudimerr.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", s.services.Badge.ContentType())
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(s.cfg.BadgeCacheAge.Seconds())))
	_, _ = w.Write(img)
}

// humaError maps a tagged error onto the HTTP status taxonomy, keeping
// the user-facing message.
func humaError(err error) error {
	return huma.NewError(pudimerr.HTTPStatus(err), err.Error())
}
