// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pudim Contributors

package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root pudim command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pudim",
		Short:         "Pudim - GitHub profile scoring service",
		Long:          "Pudim scores public GitHub profiles, serves embeddable badges, and keeps an opt-in leaderboard.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newServeCmd(),
		newVersionCmd(),
	)

	return root
}
