// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the badge CLI command tree.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/badge/cmd/badge/cli"
	"github.com/bureau-foundation/badge/lib/version"
)

// Root builds and returns the complete badge command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "badge",
		Description: `badge: app launcher for the conference badge.

Installs apps into flash, boots into the app the last session asked
for, and reports apps that crashed. Every command reads one YAML file
named by --config or $BADGE_CONFIG.`,
		Subcommands: []*cli.Command{
			bootCommand(),
			launchCommand(),
			clearCommand(),
			runCommand(),
			installCommand(),
			listCommand(),
			removeCommand(),
			verifyCommand(),
			fetchCommand(),
			catalogCommand(),
			packCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, args []string, _ *slog.Logger) error {
					fmt.Printf("badge %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{Description: "Show the menu, or launch the app requested before the restart", Command: "badge boot"},
			{Description: "Install an app from the hub", Command: "badge install snake"},
			{Description: "Restart straight into an installed app", Command: "badge launch snake"},
			{Description: "See what the hub offers", Command: "badge catalog"},
		},
	}
}
