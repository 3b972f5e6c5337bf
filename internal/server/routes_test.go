// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pudim Contributors

package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pudim-dev/pudim/internal/metrics"
	"github.com/pudim-dev/pudim/internal/server"
	pudimerr "github.com/pudim-dev/pudim/pkg/errors"
	"github.com/pudim-dev/pudim/pkg/health"
	"github.com/pudim-dev/pudim/pkg/types"
)

type fakeStats struct {
	stats *types.CachedStats
	err   error
}

func (f *fakeStats) FetchStats(context.Context, string) (*types.CachedStats, error) {
	return f.stats, f.err
}

type fakeStore struct {
	latest    *types.ScoreRecord
	history   []types.ScoreRecord
	top       []types.TopScoreEntry
	stats     types.AggregateStatistics
	saveErr   error
	available bool

	savedUsername string
	savedScore    float64
	savedConsent  bool
	consentUser   string
	consentValue  bool
}

func (f *fakeStore) SaveScore(_ context.Context, username string, scoreValue float64, _ types.Rank, _ *types.CachedStats, consent bool) error {
	f.savedUsername = username
	f.savedScore = scoreValue
	f.savedConsent = consent
	return f.saveErr
}

func (f *fakeStore) UpdateConsent(_ context.Context, username string, consent bool) error {
	f.consentUser = username
	f.consentValue = consent
	return nil
}

func (f *fakeStore) GetLatestScore(context.Context, string) *types.ScoreRecord {
	return f.latest
}

func (f *fakeStore) GetTopScores(context.Context, int) []types.TopScoreEntry {
	return f.top
}

func (f *fakeStore) GetScoreHistory(context.Context, string, int) []types.ScoreRecord {
	return f.history
}

func (f *fakeStore) GetStatistics(context.Context) types.AggregateStatistics {
	return f.stats
}

func (f *fakeStore) BreakerMetrics() health.Metrics {
	return health.Metrics{Available: f.available}
}

type fakeBadge struct {
	img []byte
	err error
}

func (f *fakeBadge) Deliver(context.Context, string) ([]byte, error) { return f.img, f.err }
func (f *fakeBadge) ContentType() string                             { return "image/svg+xml" }

type fakeReporter struct{ available bool }

func (f *fakeReporter) BreakerMetrics() health.Metrics {
	return health.Metrics{Available: f.available}
}

var octocatStats = &types.CachedStats{
	Username:  "Octocat",
	Followers: 100,
	CreatedAt: "2020-01-01T00:00:00Z",
}

func newTestServer(t *testing.T, svc *server.Services) *server.Server {
	t.Helper()
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	require.NoError(t, err)
	srv.RegisterServices(svc)
	return srv
}

func doJSON(t *testing.T, srv *server.Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	decoded := map[string]any{}
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &decoded)
	}
	return rec, decoded
}

func TestGetStats_OK(t *testing.T) {
	srv := newTestServer(t, &server.Services{
		Stats: &fakeStats{stats: octocatStats},
		Store: &fakeStore{},
		Badge: &fakeBadge{},
	})

	rec, body := doJSON(t, srv, http.MethodGet, "/api/v1/stats/octocat", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Octocat", body["username"])
	assert.Equal(t, float64(100), body["followers"])
}

func TestGetStats_ErrorTaxonomyMapsToStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not found", pudimerr.New(pudimerr.CodeGitHubUserNotFound, "User not found"), http.StatusNotFound},
		{"rate limited", pudimerr.New(pudimerr.CodeGitHubRateLimited, "rate limit exceeded"), http.StatusTooManyRequests},
		{"upstream down", pudimerr.New(pudimerr.CodeGitHubUpstreamFailure, "GitHub unavailable"), http.StatusBadGateway},
		{"timeout", pudimerr.New(pudimerr.CodeGitHubTimeout, "timed out"), http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &server.Services{
				Stats: &fakeStats{err: tt.err},
				Store: &fakeStore{},
				Badge: &fakeBadge{},
			})

			rec, _ := doJSON(t, srv, http.MethodGet, "/api/v1/stats/ghost", "")
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestCreateScore_ComputesAndPersists(t *testing.T) {
	store := &fakeStore{}
	srv := newTestServer(t, &server.Services{
		Stats: &fakeStats{stats: octocatStats},
		Store: store,
		Badge: &fakeBadge{},
	})

	rec, body := doJSON(t, srv, http.MethodPost, "/api/v1/scores",
		`{"username": "octocat", "leaderboardConsent": true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "Octocat", store.savedUsername, "the upstream casing is persisted")
	assert.True(t, store.savedConsent)
	assert.Positive(t, store.savedScore)

	assert.Equal(t, "Octocat", body["username"])
	assert.Equal(t, store.savedScore, body["score"])
	assert.NotEmpty(t, body["timestamp"], "a degraded store still yields a timestamped record")
	rank, ok := body["rank"].(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, rank["code"])
}

func TestCreateScore_ReturnsStoredRecord(t *testing.T) {
	// The store deduplicated: its latest record differs from what this
	// request computed. The response must reflect the stored truth.
	stored := &types.ScoreRecord{
		Username:  "Octocat",
		Timestamp: "2026-03-01T12:00:01.000Z",
		Score:     100,
		Rank:      types.Rank{Code: "D"},
	}
	store := &fakeStore{latest: stored}
	srv := newTestServer(t, &server.Services{
		Stats: &fakeStats{stats: octocatStats},
		Store: store,
		Badge: &fakeBadge{},
	})

	rec, body := doJSON(t, srv, http.MethodPost, "/api/v1/scores", `{"username": "octocat"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, stored.Timestamp, body["timestamp"])
	assert.Equal(t, stored.Score, body["score"])
	assert.Equal(t, "D", body["rank"].(map[string]any)["code"])
}

func TestCreateScore_SaveFailurePropagates(t *testing.T) {
	store := &fakeStore{saveErr: pudimerr.New(pudimerr.CodeStoreWriteFailure, "save failed")}
	srv := newTestServer(t, &server.Services{
		Stats: &fakeStats{stats: octocatStats},
		Store: store,
		Badge: &fakeBadge{},
	})

	rec, _ := doJSON(t, srv, http.MethodPost, "/api/v1/scores", `{"username": "octocat"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCreateScore_EmptyUsernameRejected(t *testing.T) {
	srv := newTestServer(t, &server.Services{
		Stats: &fakeStats{stats: octocatStats},
		Store: &fakeStore{},
		Badge: &fakeBadge{},
	})

	rec, _ := doJSON(t, srv, http.MethodPost, "/api/v1/scores", `{"username": ""}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGetScore_NotRecorded(t *testing.T) {
	srv := newTestServer(t, &server.Services{
		Stats: &fakeStats{stats: octocatStats},
		Store: &fakeStore{},
		Badge: &fakeBadge{},
	})

	rec, _ := doJSON(t, srv, http.MethodGet, "/api/v1/scores/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetScore_Latest(t *testing.T) {
	srv := newTestServer(t, &server.Services{
		Stats: &fakeStats{stats: octocatStats},
		Store: &fakeStore{latest: &types.ScoreRecord{Username: "octocat", Score: 321}},
		Badge: &fakeBadge{},
	})

	rec, body := doJSON(t, srv, http.MethodGet, "/api/v1/scores/octocat", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(321), body["score"])
}

func TestGetScoreHistory(t *testing.T) {
	srv := newTestServer(t, &server.Services{
		Stats: &fakeStats{stats: octocatStats},
		Store: &fakeStore{history: []types.ScoreRecord{{Score: 200}, {Score: 100}}},
		Badge: &fakeBadge{},
	})

	rec, body := doJSON(t, srv, http.MethodGet, "/api/v1/scores/octocat/history?limit=5", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	history, ok := body["history"].([]any)
	require.True(t, ok)
	assert.Len(t, history, 2)
}

func TestUpdateConsent(t *testing.T) {
	store := &fakeStore{}
	srv := newTestServer(t, &server.Services{
		Stats: &fakeStats{stats: octocatStats},
		Store: store,
		Badge: &fakeBadge{},
	})

	rec, body := doJSON(t, srv, http.MethodPut, "/api/v1/scores/octocat/consent",
		`{"consent": true}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "updated", body["status"])
	assert.Equal(t, "octocat", store.consentUser)
	assert.True(t, store.consentValue)
}

func TestGetLeaderboard(t *testing.T) {
	srv := newTestServer(t, &server.Services{
		Stats: &fakeStats{stats: octocatStats},
		Store: &fakeStore{top: []types.TopScoreEntry{
			{Username: "alice", Score: 300},
			{Username: "bob", Score: 200},
		}},
		Badge: &fakeBadge{},
	})

	rec, body := doJSON(t, srv, http.MethodGet, "/api/v1/leaderboard?limit=10", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	entries, ok := body["entries"].([]any)
	require.True(t, ok)
	require.Len(t, entries, 2)
	first := entries[0].(map[string]any)
	assert.Equal(t, "alice", first["username"])
}

func TestGetStatistics(t *testing.T) {
	srv := newTestServer(t, &server.Services{
		Stats: &fakeStats{stats: octocatStats},
		Store: &fakeStore{stats: types.AggregateStatistics{
			TotalRecords: 7,
			RankCounts:   map[string]int{"C": 3},
		}},
		Badge: &fakeBadge{},
	})

	rec, body := doJSON(t, srv, http.MethodGet, "/api/v1/statistics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(7), body["totalRecords"])
}

func TestBadge_ServesImageWithCacheHeaders(t *testing.T) {
	srv := newTestServer(t, &server.Services{
		Stats: &fakeStats{stats: octocatStats},
		Store: &fakeStore{},
		Badge: &fakeBadge{img: []byte("<svg/>")},
	})

	rec, _ := doJSON(t, srv, http.MethodGet, "/badge/octocat", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "max-age=")
	assert.Equal(t, "<svg/>", rec.Body.String())
}

func TestBadge_FailureMapsStatus(t *testing.T) {
	srv := newTestServer(t, &server.Services{
		Stats: &fakeStats{stats: octocatStats},
		Store: &fakeStore{},
		Badge: &fakeBadge{err: pudimerr.New(pudimerr.CodeGitHubUserNotFound, "User not found")},
	})

	rec, _ := doJSON(t, srv, http.MethodGet, "/badge/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth_ReportsBreakerAvailability(t *testing.T) {
	srv := newTestServer(t, &server.Services{
		Stats: &fakeStats{stats: octocatStats},
		Store: &fakeStore{available: true},
		Badge: &fakeBadge{},
		Cache: &fakeReporter{available: false},
	})

	rec, body := doJSON(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	deps, ok := body["dependencies"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, deps["cache"])
	assert.Equal(t, true, deps["leaderboard"])
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.CacheHit("stats")

	srv := newTestServer(t, &server.Services{
		Stats:   &fakeStats{stats: octocatStats},
		Store:   &fakeStore{},
		Badge:   &fakeBadge{},
		Metrics: m,
	})

	rec, _ := doJSON(t, srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pudim_cache_hits_total")
}
