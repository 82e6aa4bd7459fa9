// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/badge/cmd/badge/cli"
	"github.com/bureau-foundation/badge/lib/boot"
	"github.com/bureau-foundation/badge/lib/imagestore"
	"github.com/bureau-foundation/badge/lib/mailbox"
)

func bootCommand() *cli.Command {
	var flags configFlag
	var menuOnly bool

	return &cli.Command{
		Name:    "boot",
		Summary: "Boot into the requested app or the menu",
		Description: `Boot the launcher.

Reads the boot mailbox once and clears it. A boot request for an
installed app launches that app; anything else shows the menu, with a
notice when the previous app crashed. Entries left incomplete by an
interrupted install are removed first.

Arguments after the flags are passed to a launched app.`,
		Usage: "badge boot [flags] [-- app-args...]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("boot", pflag.ContinueOnError)
			flags.add(flagSet)
			flagSet.BoolVar(&menuOnly, "menu", false, "consume the mailbox but show the menu instead of launching")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			env, err := openEnvironment(&flags, logger)
			if err != nil {
				return err
			}
			defer env.Close()

			if reaped, err := env.store.Reap(ctx); err != nil {
				logger.Warn("reaping incomplete images failed", "error", err)
			} else if reaped > 0 {
				logger.Info("removed incomplete images", "count", reaped)
			}

			decision, err := boot.Decide(ctx, env.mailbox, env.store, logger)
			if err != nil {
				logger.Error("boot decision failed, showing menu", "error", err)
			}
			if decision.Action == boot.ActionLaunch && !menuOnly {
				if err := runApp(ctx, env, decision.Image, args, logger); err != nil {
					return err
				}
				decision = boot.Decision{Action: boot.ActionMenu}
			}
			return printMenu(ctx, os.Stdout, env.store, decision)
		},
	}
}

func launchCommand() *cli.Command {
	var flags configFlag

	return &cli.Command{
		Name:    "launch",
		Summary: "Request an app and restart into it",
		Description: `Write a boot request for an installed app and restart the firmware.

The restart re-executes "badge boot", which consumes the request and
launches the app. On success this command does not return.`,
		Usage: "badge launch <name> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("launch", pflag.ContinueOnError)
			flags.add(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: badge launch <name>")
			}
			env, err := openEnvironment(&flags, logger)
			if err != nil {
				return err
			}
			defer env.Close()

			image, err := env.store.Open(ctx, args[0])
			if err != nil {
				return err
			}
			logger.Info("requesting app", "name", image.Name, "handle", image.Handle)
			return env.mailbox.BootRequest(int(image.Handle))
		},
	}
}

func clearCommand() *cli.Command {
	var flags configFlag

	return &cli.Command{
		Name:    "clear",
		Summary: "Cancel a pending boot request or crash notice",
		Usage:   "badge clear [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("clear", pflag.ContinueOnError)
			flags.add(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			env, err := openEnvironment(&flags, logger)
			if err != nil {
				return err
			}
			defer env.Close()

			classification, err := env.mailbox.Consume()
			if err != nil {
				return err
			}
			switch classification.Kind {
			case mailbox.KindNone:
				fmt.Println("mailbox already empty")
			default:
				fmt.Printf("cleared %s for handle %d\n", classification.Kind, classification.Handle)
			}
			return nil
		},
	}
}

func runCommand() *cli.Command {
	var flags configFlag

	return &cli.Command{
		Name:    "run",
		Summary: "Run an installed app in the foreground",
		Description: `Run an installed app under the crash supervisor without a restart.

A clean exit returns to the shell. An abnormal exit records a crash
mark and restarts the firmware, exactly as for a launched app.`,
		Usage: "badge run <name> [flags] [-- app-args...]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
			flags.add(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) < 1 {
				return fmt.Errorf("usage: badge run <name> [-- app-args...]")
			}
			env, err := openEnvironment(&flags, logger)
			if err != nil {
				return err
			}
			defer env.Close()

			image, err := env.store.Open(ctx, args[0])
			if err != nil {
				return err
			}
			return runApp(ctx, env, image, args[1:], logger)
		},
	}
}

// runApp supervises image until it exits. A crash is reported as an
// ExitError carrying the app's exit code.
func runApp(ctx context.Context, env *environment, image imagestore.StoredImage, args []string, logger *slog.Logger) error {
	supervisor, err := boot.NewSupervisor(boot.SupervisorConfig{
		Store:        env.store,
		Mailbox:      env.mailbox,
		RunDirectory: env.config.Paths.Run,
		Args:         args,
		Stdin:        os.Stdin,
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	outcome, err := supervisor.Run(ctx, image)
	if err != nil {
		return err
	}
	if outcome.Crashed {
		return &cli.ExitError{Code: max(outcome.ExitCode, 1)}
	}
	return nil
}

func printMenu(ctx context.Context, w io.Writer, store *imagestore.Store, decision boot.Decision) error {
	switch {
	case decision.Crashed != nil:
		fmt.Fprintf(w, "%q crashed during the last run.\n\n", decision.Crashed.Name)
	case decision.CrashedHandle != nil:
		fmt.Fprintf(w, "The app with handle %d crashed during the last run and is no longer installed.\n\n", *decision.CrashedHandle)
	}

	images, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(images) == 0 {
		fmt.Fprintln(w, "No apps installed. Run 'badge install <name>' to add one.")
		return nil
	}
	writeImageTable(w, images)
	return writeUsage(ctx, w, store)
}

func writeImageTable(w io.Writer, images []imagestore.StoredImage) {
	tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTITLE\tVERSION\tSIZE\tINSTALLED\tDIGEST")
	for _, image := range images {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			image.Name,
			image.Title,
			image.Version,
			humanize.IBytes(uint64(image.Size)),
			humanize.Time(image.InstalledAt),
			image.Digest.String()[:12],
		)
	}
	tw.Flush()
}

func writeUsage(ctx context.Context, w io.Writer, store *imagestore.Store) error {
	reserved, capacity, err := store.Usage(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%s of %s flash used\n", humanize.IBytes(uint64(reserved)), humanize.IBytes(uint64(capacity)))
	return nil
}
