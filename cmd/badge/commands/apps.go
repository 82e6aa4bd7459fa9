// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/badge/cmd/badge/cli"
	"github.com/bureau-foundation/badge/lib/imagestore"
)

type listing struct {
	Images  []imagestore.StoredImage `json:"images"`
	Pending []string                 `json:"pending,omitempty"`
	Used    int64                    `json:"used"`
	Flash   int64                    `json:"flash"`
}

func listCommand() *cli.Command {
	var flags configFlag
	var output cli.JSONOutput
	var all bool

	return &cli.Command{
		Name:    "list",
		Summary: "List installed apps",
		Usage:   "badge list [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flags.add(flagSet)
			output.AddFlag(flagSet)
			flagSet.BoolVar(&all, "all", false, "also list incomplete installs")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			env, err := openEnvironment(&flags, logger)
			if err != nil {
				return err
			}
			defer env.Close()

			var result listing
			if result.Images, err = env.store.List(ctx); err != nil {
				return err
			}
			if all {
				if result.Pending, err = env.store.Pending(ctx); err != nil {
					return err
				}
			}
			if result.Used, result.Flash, err = env.store.Usage(ctx); err != nil {
				return err
			}
			if done, err := output.EmitJSON(result); done {
				return err
			}

			if len(result.Images) == 0 {
				fmt.Println("No apps installed.")
			} else {
				writeImageTable(os.Stdout, result.Images)
			}
			for _, name := range result.Pending {
				fmt.Printf("incomplete: %s\n", name)
			}
			return writeUsage(ctx, os.Stdout, env.store)
		},
	}
}

func removeCommand() *cli.Command {
	var flags configFlag

	return &cli.Command{
		Name:    "remove",
		Summary: "Remove installed apps",
		Usage:   "badge remove <name>... [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("remove", pflag.ContinueOnError)
			flags.add(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) == 0 {
				return fmt.Errorf("usage: badge remove <name>...")
			}
			env, err := openEnvironment(&flags, logger)
			if err != nil {
				return err
			}
			defer env.Close()

			for _, name := range args {
				if err := env.store.Delete(ctx, name); err != nil {
					return err
				}
				fmt.Printf("removed %s\n", name)
			}
			return nil
		},
	}
}

func verifyCommand() *cli.Command {
	var flags configFlag

	return &cli.Command{
		Name:    "verify",
		Summary: "Check installed apps against their recorded digests",
		Description: `Rehash installed apps and compare with the digest recorded at install.

With no names, every installed app is checked. Exits 1 when any app
fails.`,
		Usage: "badge verify [name...] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("verify", pflag.ContinueOnError)
			flags.add(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			env, err := openEnvironment(&flags, logger)
			if err != nil {
				return err
			}
			defer env.Close()

			var images []imagestore.StoredImage
			if len(args) == 0 {
				if images, err = env.store.List(ctx); err != nil {
					return err
				}
			}
			for _, name := range args {
				image, err := env.store.Open(ctx, name)
				if err != nil {
					return err
				}
				images = append(images, image)
			}

			failed := 0
			for _, image := range images {
				if err := env.store.Verify(ctx, image.Handle); err != nil {
					failed++
					fmt.Printf("FAIL  %s: %v\n", image.Name, err)
					continue
				}
				fmt.Printf("ok    %s\n", image.Name)
			}
			if failed > 0 {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}
