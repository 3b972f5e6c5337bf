// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pudim Contributors

// Package cache implements the key-value cache client sitting in front of
// Redis. The client connects lazily, serializes structured values as JSON
// and badge bytes as base64 text, and guards every call with a circuit
// breaker so that a down cache store costs at most one cooldown period of
// failed connects instead of a timeout per request. All read and write
// failures are swallowed at this boundary: a cache outage degrades to a
// miss, never to a request failure.
package cache

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pudim-dev/pudim/internal/breaker"
	"github.com/pudim-dev/pudim/internal/metrics"
	"github.com/pudim-dev/pudim/pkg/health"
	"github.com/pudim-dev/pudim/pkg/types"
)

// breakerDependency labels this client's breaker in metrics.
const breakerDependency = "cache"

// Conn is the narrow slice of the Redis client the cache uses.
// *redis.Client satisfies it.
type Conn interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// DialFunc establishes a live connection to the key-value store.
type DialFunc func(ctx context.Context) (Conn, error)

// Config holds cache client configuration.
type Config struct {
	// Enabled is the master switch. When false every operation is a no-op.
	Enabled bool

	// URL is the store address, either a redis:// URL or a host:port pair.
	URL string

	// Keys holds the per-kind key prefixes.
	Keys KeyConfig

	// TTL is the expiry for stats and badge entries.
	TTL time.Duration

	// StatisticsTTL is the expiry for the aggregate leaderboard summary.
	StatisticsTTL time.Duration

	// BreakerCooldown is how long the breaker stays open after a failure.
	BreakerCooldown time.Duration

	// ConnectTimeout bounds a single connection attempt.
	ConnectTimeout time.Duration

	// ConnectAttempts caps the number of connection attempts per connect.
	ConnectAttempts int

	// InitialBackoff is the delay after the first failed attempt; it
	// doubles per attempt.
	InitialBackoff time.Duration

	// Logger is the structured logger for the client.
	Logger *slog.Logger
}

// ConfigDefaults returns production defaults.
func ConfigDefaults() Config {
	return Config{
		Enabled:         true,
		URL:             "localhost:6379",
		Keys:            KeyConfigDefaults(),
		TTL:             5 * time.Minute,
		StatisticsTTL:   5 * time.Minute,
		BreakerCooldown: breaker.DefaultCooldown,
		ConnectTimeout:  5 * time.Second,
		ConnectAttempts: 3,
		InitialBackoff:  250 * time.Millisecond,
		Logger:          slog.Default(),
	}
}

func applyDefaults(cfg *Config) {
	defaults := ConfigDefaults()
	if cfg.Keys.StatsPrefix == "" {
		cfg.Keys.StatsPrefix = defaults.Keys.StatsPrefix
	}
	if cfg.Keys.BadgePrefix == "" {
		cfg.Keys.BadgePrefix = defaults.Keys.BadgePrefix
	}
	if cfg.TTL == 0 {
		cfg.TTL = defaults.TTL
	}
	if cfg.StatisticsTTL == 0 {
		cfg.StatisticsTTL = defaults.StatisticsTTL
	}
	if cfg.BreakerCooldown == 0 {
		cfg.BreakerCooldown = defaults.BreakerCooldown
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaults.ConnectTimeout
	}
	if cfg.ConnectAttempts == 0 {
		cfg.ConnectAttempts = defaults.ConnectAttempts
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = defaults.InitialBackoff
	}
	if cfg.Logger == nil {
		cfg.Logger = defaults.Logger
	}
}

// Client is the guarded key-value cache client. It owns the lifetime of
// the underlying connection, which is created lazily and reused across
// requests. One Client per process.
type Client struct {
	cfg     Config
	breaker *breaker.Breaker
	logger  *slog.Logger
	metrics *metrics.Metrics
	capable func() bool
	dial    DialFunc

	mu   sync.Mutex
	conn Conn
}

// Option customizes a Client.
type Option func(*Client)

// WithDial overrides how the client reaches the store (for testing).
func WithDial(dial DialFunc) Option {
	return func(c *Client) { c.dial = dial }
}

// WithCapability sets the runtime capability check. When it reports
// false the client behaves as permanently disabled; this replaces
// branching on runtime identity at call sites.
func WithCapability(fn func() bool) Option {
	return func(c *Client) { c.capable = fn }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a cache Client. The connection is not established until
// the first operation needs it.
func New(cfg Config, opts ...Option) (*Client, error) {
	applyDefaults(&cfg)

	br, err := breaker.New(cfg.BreakerCooldown)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:     cfg,
		breaker: br,
		logger:  cfg.Logger.With("component", "cache-client"),
		capable: func() bool { return true },
	}
	c.dial = defaultDial(cfg)

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func defaultDial(cfg Config) DialFunc {
	return func(ctx context.Context) (Conn, error) {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			opts = &redis.Options{Addr: cfg.URL}
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, err
		}
		return client, nil
	}
}

// connect returns a live connection, or nil when caching is disabled,
// the runtime lacks the capability, the breaker is open, or every
// bounded connection attempt failed. The final failed attempt opens the
// breaker; a successful connect closes it.
func (c *Client) connect(ctx context.Context) Conn {
	if !c.cfg.Enabled || !c.capable() {
		return nil
	}
	if c.breaker.IsOpen() {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return c.conn
	}

	backoff := c.cfg.InitialBackoff
	var lastErr error
	for attempt := 1; attempt <= c.cfg.ConnectAttempts; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		conn, err := c.dial(dialCtx)
		cancel()
		if err == nil {
			c.breaker.Close()
			c.conn = conn
			return conn
		}
		lastErr = err

		if attempt == c.cfg.ConnectAttempts {
			break
		}
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = c.cfg.ConnectAttempts
		case <-time.After(backoff):
			backoff *= 2
		}
	}

	c.breaker.Open()
	c.metrics.BreakerOpen(breakerDependency)
	c.logger.Warn("cache connect failed, breaker opened",
		"operation", "connect",
		"attempts", c.cfg.ConnectAttempts,
		"error", lastErr,
	)
	return nil
}

// get returns the raw stored value for (kind, username) and whether it
// was present. A hit closes the breaker; a read failure opens it and is
// reported as a miss.
func (c *Client) get(ctx context.Context, kind Kind, username string) (string, bool) {
	conn := c.connect(ctx)
	if conn == nil {
		return "", false
	}

	key := c.cfg.Keys.DeriveKey(kind, username)
	val, err := conn.Get(ctx, key).Result()
	if err == redis.Nil {
		c.metrics.CacheMiss(string(kind))
		return "", false
	}
	if err != nil {
		c.fail("get", key, err)
		return "", false
	}

	c.breaker.Close()
	c.metrics.CacheHit(string(kind))
	return val, true
}

// set writes the raw value with an expiry. Failures are swallowed:
// callers must never block or fail on a cache write.
func (c *Client) set(ctx context.Context, kind Kind, username, value string, ttl time.Duration) {
	conn := c.connect(ctx)
	if conn == nil {
		return
	}

	key := c.cfg.Keys.DeriveKey(kind, username)
	if err := conn.Set(ctx, key, value, ttl).Err(); err != nil {
		c.fail("set", key, err)
		return
	}
	c.breaker.Close()
}

func (c *Client) fail(op, key string, err error) {
	c.breaker.Open()
	c.metrics.BreakerOpen(breakerDependency)
	c.logger.Warn("cache operation failed, breaker opened",
		"operation", op,
		"key", key,
		"error", err,
	)
}

// GetStats returns the cached profile snapshot for a username, or nil on
// a miss or any cache failure.
func (c *Client) GetStats(ctx context.Context, username string) *types.CachedStats {
	raw, ok := c.get(ctx, KindStats, username)
	if !ok {
		return nil
	}

	var stats types.CachedStats
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		c.fail("get", c.cfg.Keys.DeriveKey(KindStats, username), err)
		return nil
	}
	return &stats
}

// SetStats caches a profile snapshot. Errors are logged, never returned.
func (c *Client) SetStats(ctx context.Context, username string, stats *types.CachedStats) {
	if stats == nil {
		return
	}
	payload, err := json.Marshal(stats)
	if err != nil {
		c.logger.Warn("cache serialize failed", "operation", "set", "kind", KindStats, "error", err)
		return
	}
	c.set(ctx, KindStats, username, string(payload), c.cfg.TTL)
}

// GetBadge returns cached badge bytes for a username, or nil.
func (c *Client) GetBadge(ctx context.Context, username string) []byte {
	raw, ok := c.get(ctx, KindBadge, username)
	if !ok {
		return nil
	}

	img, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		c.fail("get", c.cfg.Keys.DeriveKey(KindBadge, username), err)
		return nil
	}
	return img
}

// SetBadge caches rendered badge bytes as base64 text.
func (c *Client) SetBadge(ctx context.Context, username string, img []byte) {
	if len(img) == 0 {
		return
	}
	c.set(ctx, KindBadge, username, base64.StdEncoding.EncodeToString(img), c.cfg.TTL)
}

// GetStatistics returns the cached aggregate leaderboard summary, or nil.
func (c *Client) GetStatistics(ctx context.Context) *types.AggregateStatistics {
	raw, ok := c.get(ctx, KindStatistics, "")
	if !ok {
		return nil
	}

	var stats types.AggregateStatistics
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		c.fail("get", c.cfg.Keys.DeriveKey(KindStatistics, ""), err)
		return nil
	}
	return &stats
}

// SetStatistics caches the aggregate leaderboard summary.
func (c *Client) SetStatistics(ctx context.Context, stats *types.AggregateStatistics) {
	if stats == nil {
		return
	}
	payload, err := json.Marshal(stats)
	if err != nil {
		c.logger.Warn("cache serialize failed", "operation", "set", "kind", KindStatistics, "error", err)
		return
	}
	c.set(ctx, KindStatistics, "", string(payload), c.cfg.StatisticsTTL)
}

// Close releases the underlying connection if one is live and resets the
// breaker. Safe to call when no connection exists.
func (c *Client) Close() {
	c.mu.Lock()
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("cache close failed", "operation", "close", "error", err)
		}
		c.conn = nil
	}
	c.mu.Unlock()

	c.breaker.Close()
}

// BreakerMetrics returns a snapshot of the cache breaker state.
func (c *Client) BreakerMetrics() health.Metrics {
	return c.breaker.Metrics()
}
