// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pudim Contributors

package main

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pudim-dev/pudim/internal/config"
)

func TestRootCmd_HasSubcommands(t *testing.T) {
	root := NewRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "version")
}

func TestVersionCmd_Output(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "pudim")
	assert.Contains(t, out.String(), version)
}

func TestSetupLogger_Levels(t *testing.T) {
	logger := setupLogger(config.LoggingConfig{Level: "warn", Format: "text"}, false)
	assert.False(t, logger.Enabled(t.Context(), slog.LevelInfo))
	assert.True(t, logger.Enabled(t.Context(), slog.LevelWarn))

	// Verbose wins over the configured level.
	logger = setupLogger(config.LoggingConfig{Level: "error", Format: "json"}, true)
	assert.True(t, logger.Enabled(t.Context(), slog.LevelDebug))
}

func TestWireApp_BuildsAllSubsystems(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Cache.Enabled = false
	cfg.Leaderboard.Enabled = false
	cfg.Server.Listen = "127.0.0.1:0"
	cfg.Server.ShutdownTimeout = time.Second

	app, err := wireApp(cfg, slog.Default())
	require.NoError(t, err)
	defer app.Close()

	require.NotNil(t, app.Server)
	assert.NotNil(t, app.Server.Handler())
}
