// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pudim Contributors

package badge_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pudim-dev/pudim/internal/badge"
	"github.com/pudim-dev/pudim/internal/cache"
	pudimerr "github.com/pudim-dev/pudim/pkg/errors"
	"github.com/pudim-dev/pudim/pkg/types"
)

type fakeSource struct {
	stats *types.CachedStats
	err   error
	calls int
}

func (f *fakeSource) FetchStats(context.Context, string) (*types.CachedStats, error) {
	f.calls++
	return f.stats, f.err
}

type fakeRenderer struct {
	img []byte
	err error
}

func (f *fakeRenderer) Render(*types.CachedStats, types.Rank, float64) ([]byte, error) {
	return f.img, f.err
}

func (f *fakeRenderer) ContentType() string { return "image/svg+xml" }

type badgeConn struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *badgeConn) Get(_ context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(val, nil)
}

func (m *badgeConn) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	m.data[key] = value.(string)
	m.mu.Unlock()
	return redis.NewStatusResult("OK", nil)
}

func (m *badgeConn) Close() error { return nil }

func testCache(t *testing.T) (*cache.Client, *badgeConn) {
	t.Helper()
	conn := &badgeConn{data: make(map[string]string)}
	c, err := cache.New(cache.Config{Enabled: true},
		cache.WithDial(func(context.Context) (cache.Conn, error) { return conn, nil }))
	require.NoError(t, err)
	return c, conn
}

var octocatStats = &types.CachedStats{
	Username:  "Octocat",
	Followers: 100,
	CreatedAt: "2020-01-01T00:00:00Z",
}

func TestDeliver_RendersAndCachesOnMiss(t *testing.T) {
	cacheClient, conn := testCache(t)
	source := &fakeSource{stats: octocatStats}
	svc := badge.New(cacheClient, source, &fakeRenderer{img: []byte("<svg/>")}, nil)

	img, err := svc.Deliver(context.Background(), "octocat")
	require.NoError(t, err)
	assert.Equal(t, []byte("<svg/>"), img)
	assert.Equal(t, 1, source.calls)

	// The write-back is detached; poll for it to land under the key
	// derived from the upstream casing.
	assert.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		_, ok := conn.data["pudim:badge:octocat"]
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestDeliver_ServesCachedBytesWithoutFetching(t *testing.T) {
	cacheClient, _ := testCache(t)
	cacheClient.SetBadge(context.Background(), "octocat", []byte("cached-badge"))

	source := &fakeSource{stats: octocatStats}
	svc := badge.New(cacheClient, source, &fakeRenderer{img: []byte("fresh")}, nil)

	img, err := svc.Deliver(context.Background(), "OCTOCAT")
	require.NoError(t, err)
	assert.Equal(t, []byte("cached-badge"), img)
	assert.Zero(t, source.calls, "a cached badge skips the fetch entirely")
}

func TestDeliver_FetchFailurePropagates(t *testing.T) {
	cacheClient, _ := testCache(t)
	source := &fakeSource{err: pudimerr.New(pudimerr.CodeGitHubUserNotFound, "User not found")}
	svc := badge.New(cacheClient, source, &fakeRenderer{img: []byte("unused")}, nil)

	_, err := svc.Deliver(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, pudimerr.IsNotFound(err))
}

func TestDeliver_RenderFailurePropagates(t *testing.T) {
	cacheClient, _ := testCache(t)
	source := &fakeSource{stats: octocatStats}
	svc := badge.New(cacheClient, source, &fakeRenderer{err: fmt.Errorf("render failed")}, nil)

	_, err := svc.Deliver(context.Background(), "octocat")
	require.Error(t, err)
}

func TestSVGRenderer_EscapesUsername(t *testing.T) {
	r := badge.NewSVGRenderer()

	img, err := r.Render(&types.CachedStats{Username: `<script>alert(1)</script>`},
		types.Rank{Code: "D", Title: "Getting Started", ColorToken: "gray"}, 12)
	require.NoError(t, err)
	assert.NotContains(t, string(img), "<script>")
	assert.Contains(t, string(img), "&lt;script&gt;")
}

func TestSVGRenderer_EmbedsScoreAndRank(t *testing.T) {
	r := badge.NewSVGRenderer()

	img, err := r.Render(&types.CachedStats{Username: "octocat"},
		types.Rank{Code: "S", Title: "GitHub Legend", ColorToken: "gold", Emoji: "\U0001F3C6"}, 5250.4)
	require.NoError(t, err)

	svg := string(img)
	assert.Equal(t, "image/svg+xml", r.ContentType())
	assert.Contains(t, svg, "5250")
	assert.Contains(t, svg, "GitHub Legend")
	assert.Contains(t, svg, "#d4a017")
}

func TestSVGRenderer_NilStats(t *testing.T) {
	r := badge.NewSVGRenderer()
	_, err := r.Render(nil, types.Rank{}, 0)
	assert.Error(t, err)
}
