// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pudim Contributors

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pudim-dev/pudim/internal/config"
	pudimerr "github.com/pudim-dev/pudim/pkg/errors"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the scoring service",
		Long:  "Load configuration, wire the cache, leaderboard, and fetcher, and start the HTTP server.",
		RunE:  runServe,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	if cfgPath == "" {
		// No explicit config: bootstrap a commented default on first run
		// and load it. Defaults and env vars apply either way.
		cfgPath = config.BootstrapConfig()
		if cfgPath == "" {
			if defaultPath, err := config.DefaultConfigPath(); err == nil {
				if _, statErr := os.Stat(defaultPath); statErr == nil {
					cfgPath = defaultPath
				}
			}
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	config.WarnInsecurePermissions(cfgPath)

	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Listen = listen
	}
	verbose, _ := cmd.Flags().GetBool("verbose")

	logger := setupLogger(cfg.Logging, verbose)
	slog.SetDefault(logger)

	app, err := wireApp(cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting pudim", "listen", cfg.Server.Listen)
	if err := app.Server.Start(ctx); err != nil {
		return pudimerr.Wrap(err, pudimerr.CodeServerStartFailure, "running server")
	}
	return nil
}

func setupLogger(cfg config.LoggingConfig, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
