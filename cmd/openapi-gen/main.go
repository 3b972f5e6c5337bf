// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pudim Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pudim-dev/pudim/internal/server"
	pudimerr "github.com/pudim-dev/pudim/pkg/errors"
	"github.com/pudim-dev/pudim/pkg/health"
	"github.com/pudim-dev/pudim/pkg/types"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec creates a server with all routes registered and extracts
// the OpenAPI spec that huma generates from the Go type annotations.
func generateSpec() ([]byte, error) {
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	if err != nil {
		return nil, pudimerr.Wrap(err, pudimerr.CodeServerStartFailure, "creating server")
	}

	// No-op service stubs so all routes register for schema discovery.
	// Handlers are never invoked during spec generation.
	srv.RegisterServices(&server.Services{
		Stats: &stubStats{},
		Store: &stubStore{},
		Badge: &stubBadge{},
	})

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

type stubStats struct{}

func (s *stubStats) FetchStats(context.Context, string) (*types.CachedStats, error) {
	return nil, nil
}

type stubStore struct{}

func (s *stubStore) SaveScore(context.Context, string, float64, types.Rank, *types.CachedStats, bool) error {
	return nil
}
func (s *stubStore) UpdateConsent(context.Context, string, bool) error { return nil }
func (s *stubStore) GetLatestScore(context.Context, string) *types.ScoreRecord {
	return nil
}
func (s *stubStore) GetTopScores(context.Context, int) []types.TopScoreEntry { return nil }
func (s *stubStore) GetScoreHistory(context.Context, string, int) []types.ScoreRecord {
	return nil
}
func (s *stubStore) GetStatistics(context.Context) types.AggregateStatistics {
	return types.AggregateStatistics{}
}
func (s *stubStore) BreakerMetrics() health.Metrics { return health.Metrics{} }

type stubBadge struct{}

func (s *stubBadge) Deliver(context.Context, string) ([]byte, error) { return nil, nil }
func (s *stubBadge) ContentType() string                             { return "image/svg+xml" }
