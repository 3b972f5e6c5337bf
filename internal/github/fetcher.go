// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pudim Contributors

// Package github fetches public profile statistics from the GitHub REST
// API, cache-first. Failures are classified into tagged errors the UI
// can display as-is; a raw transport error never escapes this package.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/url"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/pudim-dev/pudim/internal/cache"
	"github.com/pudim-dev/pudim/internal/metrics"
	pudimerr "github.com/pudim-dev/pudim/pkg/errors"
	"github.com/pudim-dev/pudim/pkg/types"
)

// maxRepos caps the repository sample used for stars and languages.
const maxRepos = 100

// topLanguages is how many histogram entries a snapshot keeps.
const topLanguages = 5

// maxResponseBytes bounds how much of an upstream response body is read.
// A full 100-repo listing is well under 1 MiB.
const maxResponseBytes = 4 << 20

// Config holds fetcher configuration.
type Config struct {
	// BaseURL is the GitHub-shaped API root.
	BaseURL string

	// Token is an optional bearer token raising the rate limit.
	Token string

	// Timeout bounds a single upstream request.
	Timeout time.Duration

	// RateLimitPerSec throttles outgoing requests to protect the shared
	// upstream quota.
	RateLimitPerSec int

	// Logger is the structured logger for the fetcher.
	Logger *slog.Logger

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client
}

// ConfigDefaults returns production defaults.
func ConfigDefaults() Config {
	return Config{
		BaseURL:         "https://api.github.com",
		Timeout:         10 * time.Second,
		RateLimitPerSec: 5,
		Logger:          slog.Default(),
	}
}

func applyDefaults(cfg *Config) {
	defaults := ConfigDefaults()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.RateLimitPerSec == 0 {
		cfg.RateLimitPerSec = defaults.RateLimitPerSec
	}
	if cfg.Logger == nil {
		cfg.Logger = defaults.Logger
	}
}

// Fetcher retrieves and aggregates profile statistics, writing
// successful results through to the stats cache.
type Fetcher struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *cache.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

// New creates a Fetcher backed by the given cache client.
func New(cfg Config, cacheClient *cache.Client, opts ...Option) *Fetcher {
	applyDefaults(&cfg)

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	f := &Fetcher{
		cfg:        cfg,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), 1),
		cache:      cacheClient,
		logger:     cfg.Logger.With("component", "github-fetcher"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type ghUser struct {
	Login       string `json:"login"`
	AvatarURL   string `json:"avatar_url"`
	Followers   int    `json:"followers"`
	PublicRepos int    `json:"public_repos"`
	CreatedAt   string `json:"created_at"`
}

type ghRepo struct {
	Name            string  `json:"name"`
	StargazersCount int     `json:"stargazers_count"`
	Language        *string `json:"language"`
}

// FetchStats returns the profile snapshot for a username, cache-first.
// On a miss it fetches the profile and up to 100 repositories, aggregates
// stars and a top-5 language histogram, and writes the result through to
// the cache as a detached write. All failures surface as tagged errors.
func (f *Fetcher) FetchStats(ctx context.Context, username string) (*types.CachedStats, error) {
	if cached := f.cache.GetStats(ctx, username); cached != nil {
		f.metrics.UpstreamRequest("cache_hit")
		return cached, nil
	}

	user, err := f.fetchUser(ctx, username)
	if err != nil {
		f.metrics.UpstreamRequest(outcomeOf(err))
		return nil, err
	}

	// A failed repository listing degrades to an empty sample rather
	// than failing the whole operation.
	repos, err := f.fetchRepos(ctx, username)
	if err != nil {
		f.logger.Warn("repository listing failed, proceeding without repos",
			"username", username,
			"error", err,
		)
		repos = nil
	}

	stats := &types.CachedStats{
		Username:    user.Login,
		AvatarURL:   user.AvatarURL,
		Followers:   user.Followers,
		TotalStars:  totalStars(repos),
		PublicRepos: user.PublicRepos,
		CreatedAt:   user.CreatedAt,
		Languages:   languageHistogram(repos),
	}

	// Detached write-through: the caller never waits on, or fails from,
	// cache population.
	go f.cache.SetStats(context.WithoutCancel(ctx), user.Login, stats)

	f.metrics.UpstreamRequest("success")
	return stats, nil
}

func (f *Fetcher) fetchUser(ctx context.Context, username string) (*ghUser, error) {
	endpoint := fmt.Sprintf("%s/users/%s", f.cfg.BaseURL, url.PathEscape(username))

	body, status, err := f.get(ctx, endpoint)
	if err != nil {
		return nil, classifyTransport(err)
	}

	switch {
	case status == http.StatusNotFound:
		return nil, pudimerr.New(pudimerr.CodeGitHubUserNotFound,
			"User not found", pudimerr.FieldUsername(username))
	case status == http.StatusForbidden:
		return nil, pudimerr.New(pudimerr.CodeGitHubRateLimited,
			"GitHub API rate limit exceeded, please try again later",
			pudimerr.FieldUsername(username))
	case status >= http.StatusInternalServerError:
		return nil, pudimerr.New(pudimerr.CodeGitHubUpstreamFailure,
			"GitHub is temporarily unavailable, please try again later",
			pudimerr.FieldStatus(status))
	case status < 200 || status >= 300:
		return nil, pudimerr.New(pudimerr.CodeGitHubRequestFailure,
			fmt.Sprintf("GitHub request failed with status %d", status),
			pudimerr.FieldStatus(status))
	}

	var user ghUser
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, pudimerr.Wrap(err, pudimerr.CodeGitHubUnknownFailure,
			"unexpected GitHub response", pudimerr.FieldUsername(username))
	}
	return &user, nil
}

func (f *Fetcher) fetchRepos(ctx context.Context, username string) ([]ghRepo, error) {
	endpoint := fmt.Sprintf("%s/users/%s/repos?per_page=%d&sort=updated",
		f.cfg.BaseURL, url.PathEscape(username), maxRepos)

	body, status, err := f.get(ctx, endpoint)
	if err != nil {
		return nil, classifyTransport(err)
	}
	if status < 200 || status >= 300 {
		return nil, pudimerr.New(pudimerr.CodeGitHubRequestFailure,
			fmt.Sprintf("repository listing failed with status %d", status),
			pudimerr.FieldStatus(status))
	}

	var repos []ghRepo
	if err := json.Unmarshal(body, &repos); err != nil {
		return nil, pudimerr.Wrap(err, pudimerr.CodeGitHubUnknownFailure,
			"unexpected repository response", pudimerr.FieldUsername(username))
	}
	if len(repos) > maxRepos {
		repos = repos[:maxRepos]
	}
	return repos, nil
}

func (f *Fetcher) get(ctx context.Context, endpoint string) ([]byte, int, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if f.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.cfg.Token)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			f.logger.Warn("failed to close response body", "error", closeErr)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

// classifyTransport maps a network-level failure onto the user-facing
// error taxonomy: DNS, timeout, or generic unreachable.
func classifyTransport(err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return pudimerr.Wrap(err, pudimerr.CodeGitHubDNSFailure,
			"could not resolve GitHub, check your network")
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return pudimerr.Wrap(err, pudimerr.CodeGitHubTimeout,
			"GitHub request timed out, please try again")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return pudimerr.Wrap(err, pudimerr.CodeGitHubTimeout,
			"GitHub request timed out, please try again")
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return pudimerr.Wrap(err, pudimerr.CodeGitHubNetworkFailure,
			"could not reach GitHub, check your network")
	}

	return pudimerr.Wrap(err, pudimerr.CodeGitHubUnknownFailure,
		"unexpected error talking to GitHub")
}

func outcomeOf(err error) string {
	switch {
	case pudimerr.IsNotFound(err):
		return "not_found"
	case pudimerr.IsRateLimited(err):
		return "rate_limited"
	case pudimerr.IsTimeout(err):
		return "timeout"
	case pudimerr.IsUpstreamFailure(err):
		return "upstream_error"
	case pudimerr.IsNetworkFailure(err):
		return "network_error"
	default:
		return "error"
	}
}

func totalStars(repos []ghRepo) int {
	total := 0
	for _, r := range repos {
		total += r.StargazersCount
	}
	return total
}

// languageHistogram counts occurrences per declared language (not bytes)
// and keeps the top entries, percentages computed over repositories that
// declare a language.
func languageHistogram(repos []ghRepo) []types.LanguageStat {
	counts := make(map[string]int)
	declared := 0
	for _, r := range repos {
		if r.Language == nil || *r.Language == "" {
			continue
		}
		counts[*r.Language]++
		declared++
	}
	if declared == 0 {
		return nil
	}

	stats := make([]types.LanguageStat, 0, len(counts))
	for name, count := range counts {
		stats = append(stats, types.LanguageStat{
			Name:       name,
			Count:      count,
			Percentage: math.Round(float64(count)/float64(declared)*1000) / 10,
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Name < stats[j].Name
	})

	if len(stats) > topLanguages {
		stats = stats[:topLanguages]
	}
	return stats
}
