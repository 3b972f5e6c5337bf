// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pudim Contributors

// Package config loads and validates the service configuration from a
// YAML file with PUDIM_-prefixed environment overrides.
package config

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pudim-dev/pudim/internal/cache"
	pudimerr "github.com/pudim-dev/pudim/pkg/errors"
)

// Config is the top-level Pudim configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Leaderboard LeaderboardConfig `mapstructure:"leaderboard"`
	GitHub      GitHubConfig      `mapstructure:"github"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Listen          string        `mapstructure:"listen"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	BadgeCacheAge   time.Duration `mapstructure:"badge_cache_age"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// CacheConfig controls the key-value cache client.
type CacheConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	URL             string        `mapstructure:"url"`
	StatsPrefix     string        `mapstructure:"stats_prefix"`
	BadgePrefix     string        `mapstructure:"badge_prefix"`
	TTL             time.Duration `mapstructure:"ttl"`
	StatisticsTTL   time.Duration `mapstructure:"statistics_ttl"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	ConnectAttempts int           `mapstructure:"connect_attempts"`
}

// LeaderboardConfig controls the score store.
type LeaderboardConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Table           string        `mapstructure:"table"`
	Region          string        `mapstructure:"region"`
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
}

// GitHubConfig controls the upstream statistics fetcher.
type GitHubConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	Token           string        `mapstructure:"token"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RateLimitPerSec int           `mapstructure:"rate_limit_per_sec"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix PUDIM_).
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.listen", "127.0.0.1:8080")
	v.SetDefault("server.badge_cache_age", time.Hour)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.url", "localhost:6379")
	v.SetDefault("cache.stats_prefix", cache.DefaultStatsPrefix)
	v.SetDefault("cache.badge_prefix", cache.DefaultBadgePrefix)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.statistics_ttl", 5*time.Minute)
	v.SetDefault("cache.breaker_cooldown", 5*time.Minute)
	v.SetDefault("cache.connect_timeout", 5*time.Second)
	v.SetDefault("cache.connect_attempts", 3)
	v.SetDefault("leaderboard.enabled", true)
	v.SetDefault("leaderboard.table", "pudim-scores")
	v.SetDefault("leaderboard.region", "us-east-1")
	v.SetDefault("leaderboard.breaker_cooldown", 5*time.Minute)
	// Secrets default to empty so environment overrides bind without a
	// config file present.
	v.SetDefault("leaderboard.endpoint", "")
	v.SetDefault("leaderboard.access_key_id", "")
	v.SetDefault("leaderboard.secret_access_key", "")
	v.SetDefault("github.base_url", "https://api.github.com")
	v.SetDefault("github.token", "")
	v.SetDefault("github.timeout", 10*time.Second)
	v.SetDefault("github.rate_limit_per_sec", 5)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Environment
	v.SetEnvPrefix("PUDIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// File
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, pudimerr.Errorf(pudimerr.CodeConfigLoadFailure, "reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, pudimerr.Errorf(pudimerr.CodeConfigLoadFailure, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, pudimerr.Errorf(pudimerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors. It returns all
// validation errors found rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateCache()...)
	errs = append(errs, c.validateLeaderboard()...)
	errs = append(errs, c.validateGitHub()...)
	errs = append(errs, c.validateLogging()...)

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, pudimerr.Errorf(pudimerr.CodeConfigValidateInvalidValue, "config: server.listen must not be empty"))
	} else {
		_, portStr, err := net.SplitHostPort(c.Server.Listen)
		if err != nil {
			errs = append(errs, pudimerr.Errorf(pudimerr.CodeConfigValidateInvalidValue,
				"config: server.listen must be a valid host:port address, got %q: %w",
				c.Server.Listen, err,
			))
		} else {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				errs = append(errs, pudimerr.Errorf(pudimerr.CodeConfigValidateInvalidValue,
					"config: server.listen port must be a number, got %q",
					portStr,
				))
			} else if port < 1 || port > 65535 {
				errs = append(errs, pudimerr.Errorf(pudimerr.CodeConfigValidateInvalidValue,
					"config: server.listen port must be between 1 and 65535, got %d",
					port,
				))
			}
		}
	}

	if c.Server.BadgeCacheAge < 0 {
		errs = append(errs, pudimerr.Errorf(pudimerr.CodeConfigValidateInvalidValue,
			"config: server.badge_cache_age must not be negative, got %s",
			c.Server.BadgeCacheAge,
		))
	}

	return errs
}

func (c *Config) validateCache() []error {
	var errs []error

	if !c.Cache.Enabled {
		return nil
	}

	if c.Cache.URL == "" {
		errs = append(errs, pudimerr.Errorf(pudimerr.CodeConfigValidateInvalidValue, "config: cache.url must not be empty when cache is enabled"))
	}
	if c.Cache.StatsPrefix == "" {
		errs = append(errs, pudimerr.Errorf(pudimerr.CodeConfigValidateInvalidValue, "config: cache.stats_prefix must not be empty when cache is enabled"))
	}
	if c.Cache.BadgePrefix == "" {
		errs = append(errs, pudimerr.Errorf(pudimerr.CodeConfigValidateInvalidValue, "config: cache.badge_prefix must not be empty when cache is enabled"))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, pudimerr.Errorf(pudimerr.CodeConfigValidateInvalidValue,
			"config: cache.ttl must be greater than 0, got %s", c.Cache.TTL))
	}
	if c.Cache.BreakerCooldown <= 0 {
		errs = append(errs, pudimerr.Errorf(pudimerr.CodeConfigValidateInvalidValue,
			"config: cache.breaker_cooldown must be greater than 0, got %s", c.Cache.BreakerCooldown))
	}
	if c.Cache.ConnectAttempts <= 0 {
		errs = append(errs, pudimerr.Errorf(pudimerr.CodeConfigValidateInvalidValue,
			"config: cache.connect_attempts must be greater than 0, got %d", c.Cache.ConnectAttempts))
	}

	return errs
}

func (c *Config) validateLeaderboard() []error {
	var errs []error

	if !c.Leaderboard.Enabled {
		return nil
	}

	if c.Leaderboard.Table == "" {
		errs = append(errs, pudimerr.Errorf(pudimerr.CodeConfigValidateInvalidValue, "config: leaderboard.table must not be empty when leaderboard is enabled"))
	}
	if c.Leaderboard.Region == "" && c.Leaderboard.Endpoint == "" {
		errs = append(errs, pudimerr.Errorf(pudimerr.CodeConfigValidateInvalidValue, "config: leaderboard requires a region or an endpoint"))
	}
	if (c.Leaderboard.AccessKeyID == "") != (c.Leaderboard.SecretAccessKey == "") {
		errs = append(errs, pudimerr.Errorf(pudimerr.CodeConfigValidateInvalidValue,
			"config: leaderboard.access_key_id and leaderboard.secret_access_key must be set together"))
	}
	if c.Leaderboard.BreakerCooldown <= 0 {
		errs = append(errs, pudimerr.Errorf(pudimerr.CodeConfigValidateInvalidValue,
			"config: leaderboard.breaker_cooldown must be greater than 0, got %s", c.Leaderboard.BreakerCooldown))
	}

	return errs
}

func (c *Config) validateGitHub() []error {
	var errs []error

	if c.GitHub.BaseURL == "" {
		errs = append(errs, pudimerr.Errorf(pudimerr.CodeConfigValidateInvalidValue, "config: github.base_url must not be empty"))
	} else if !strings.HasPrefix(c.GitHub.BaseURL, "http://") && !strings.HasPrefix(c.GitHub.BaseURL, "https://") {
		errs = append(errs, pudimerr.Errorf(pudimerr.CodeConfigValidateInvalidValue,
			"config: github.base_url must be an http(s) URL, got %q", c.GitHub.BaseURL))
	}

	if c.GitHub.Timeout <= 0 {
		errs = append(errs, pudimerr.Errorf(pudimerr.CodeConfigValidateInvalidValue,
			"config: github.timeout must be greater than 0, got %s", c.GitHub.Timeout))
	}
	if c.GitHub.RateLimitPerSec <= 0 {
		errs = append(errs, pudimerr.Errorf(pudimerr.CodeConfigValidateInvalidValue,
			"config: github.rate_limit_per_sec must be greater than 0, got %d", c.GitHub.RateLimitPerSec))
	}

	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, pudimerr.Errorf(pudimerr.CodeConfigValidateInvalidValue,
			"config: logging.level must be one of [debug, info, warn, error], got %q",
			c.Logging.Level,
		))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		errs = append(errs, pudimerr.Errorf(pudimerr.CodeConfigValidateInvalidValue,
			"config: logging.format must be one of [text, json], got %q",
			c.Logging.Format,
		))
	}

	return errs
}
