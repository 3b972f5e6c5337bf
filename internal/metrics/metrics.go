// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pudim Contributors

// Package metrics defines the Prometheus instrumentation for the scoring
// service. All metrics use the "pudim_" prefix.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains the pre-registered collectors. Safe for concurrent use
// after creation. A nil *Metrics disables instrumentation at all call sites.
type Metrics struct {
	// CacheHits counts key-value cache hits by value kind.
	CacheHits *prometheus.CounterVec

	// CacheMisses counts key-value cache misses by value kind.
	CacheMisses *prometheus.CounterVec

	// BreakerOpens counts circuit breaker open transitions by dependency.
	BreakerOpens *prometheus.CounterVec

	// UpstreamRequests counts GitHub API fetches by outcome.
	UpstreamRequests *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a Metrics set backed by its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pudim_cache_hits_total",
			Help: "Key-value cache hits by value kind.",
		}, []string{"kind"}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pudim_cache_misses_total",
			Help: "Key-value cache misses by value kind.",
		}, []string{"kind"}),
		BreakerOpens: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pudim_breaker_opens_total",
			Help: "Circuit breaker open transitions by guarded dependency.",
		}, []string{"dependency"}),
		UpstreamRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pudim_upstream_requests_total",
			Help: "GitHub API fetches by outcome.",
		}, []string{"outcome"}),
		registry: reg,
	}
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CacheHit records a cache hit. Nil-safe.
func (m *Metrics) CacheHit(kind string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(kind).Inc()
}

// CacheMiss records a cache miss. Nil-safe.
func (m *Metrics) CacheMiss(kind string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(kind).Inc()
}

// BreakerOpen records a breaker open transition. Nil-safe.
func (m *Metrics) BreakerOpen(dependency string) {
	if m == nil {
		return
	}
	m.BreakerOpens.WithLabelValues(dependency).Inc()
}

// UpstreamRequest records a GitHub fetch outcome. Nil-safe.
func (m *Metrics) UpstreamRequest(outcome string) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(outcome).Inc()
}
