// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/badge/cmd/badge/cli"
	"github.com/bureau-foundation/badge/lib/catalog"
	"github.com/bureau-foundation/badge/lib/codec"
	"github.com/bureau-foundation/badge/lib/fault"
	"github.com/bureau-foundation/badge/lib/imagestore"
	"github.com/bureau-foundation/badge/lib/pack"
)

// catalogRow is one app of the catalog view, joined with what is
// installed.
type catalogRow struct {
	catalog.Entry
	Installed *uint16 `json:"installed,omitempty"`
	Upgrade   bool    `json:"upgrade"`
}

func catalogCommand() *cli.Command {
	var (
		flags    configFlag
		output   cli.JSONOutput
		cborPath string
		diagnose bool
	)

	return &cli.Command{
		Name:    "catalog",
		Summary: "Show the hub catalog",
		Description: `Fetch the hub catalog and show each app with its installed version.

--cbor writes the catalog in its CBOR form, the compact encoding a hub
can serve in place of JSON. --diagnose prints that CBOR in diagnostic
notation.`,
		Usage: "badge catalog [url] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("catalog", pflag.ContinueOnError)
			flags.add(flagSet)
			output.AddFlag(flagSet)
			flagSet.StringVar(&cborPath, "cbor", "", "write the catalog as CBOR to this file")
			flagSet.BoolVar(&diagnose, "diagnose", false, "print the CBOR form in diagnostic notation")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 1 {
				return fmt.Errorf("usage: badge catalog [url] [flags]")
			}
			explicit := ""
			if len(args) == 1 {
				explicit = args[0]
			}

			env, err := openEnvironment(&flags, logger)
			if err != nil {
				return err
			}
			defer env.Close()

			source, err := env.catalogURL(explicit)
			if err != nil {
				return err
			}
			listing, err := catalog.Fetch(ctx, env.downloader, source)
			if err != nil {
				return err
			}

			if cborPath != "" || diagnose {
				encoded, err := listing.EncodeCBOR()
				if err != nil {
					return fmt.Errorf("encoding catalog: %w", err)
				}
				if cborPath != "" {
					if err := os.WriteFile(cborPath, encoded, 0o644); err != nil {
						return err
					}
				}
				if diagnose {
					notation, err := codec.Diagnose(encoded)
					if err != nil {
						return err
					}
					fmt.Println(notation)
					return nil
				}
			}

			var rows []catalogRow
			for _, entry := range listing.Sorted() {
				row := catalogRow{Entry: entry, Upgrade: true}
				installed, err := env.store.Open(ctx, entry.Name)
				switch {
				case err == nil:
					row.Installed = &installed.Version
					row.Upgrade = entry.Upgrade(installed.Version)
				case !errors.Is(err, fault.ErrNotFound):
					return err
				}
				rows = append(rows, row)
			}
			if done, err := output.EmitJSON(rows); done {
				return err
			}

			if listing.Name != "" {
				fmt.Printf("%s\n\n", listing.Name)
			}
			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "NAME\tTITLE\tVERSION\tINSTALLED\tSIZE\t")
			for _, row := range rows {
				installed, marker := "-", ""
				if row.Installed != nil {
					installed = fmt.Sprint(*row.Installed)
				}
				if row.Upgrade && row.Installed != nil {
					marker = "upgrade available"
				}
				size := "-"
				if row.Size > 0 {
					size = humanize.IBytes(uint64(row.Size))
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n", row.Name, row.Title, row.Version, installed, size, marker)
			}
			return tw.Flush()
		},
	}
}

func packCommand() *cli.Command {
	var formatName string

	return &cli.Command{
		Name:    "pack",
		Summary: "Build an app package from an executable",
		Description: `Compress an app executable into a package the installer accepts.

Hub operators publish the output next to a catalog entry. The digest
printed is the one the installed image will have; put it in the
catalog entry so badges refuse anything else.`,
		Usage: "badge pack <executable> <package> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("pack", pflag.ContinueOnError)
			flagSet.StringVar(&formatName, "format", "zstd", "package format: raw, zstd, or lz4")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 2 {
				return fmt.Errorf("usage: badge pack <executable> <package> [flags]")
			}
			format, err := pack.ParseFormat(formatName)
			if err != nil {
				return err
			}

			image, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			packaged, err := os.CreateTemp(filepath.Dir(args[1]), ".pack-*")
			if err != nil {
				return err
			}
			defer os.Remove(packaged.Name())

			if err := pack.Encode(packaged, bytes.NewReader(image), format); err != nil {
				packaged.Close()
				return err
			}
			if err := packaged.Close(); err != nil {
				return err
			}
			if err := os.Rename(packaged.Name(), args[1]); err != nil {
				return err
			}

			info, err := os.Stat(args[1])
			if err != nil {
				return err
			}
			logger.Info("package written", "path", args[1], "format", format,
				"image_size", len(image), "package_size", info.Size())
			fmt.Printf("%s  %s (%s, %s)\n", imagestore.HashBytes(image), args[1], format, humanize.IBytes(uint64(info.Size())))
			return nil
		},
	}
}
