// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/badge/cmd/badge/cli"
	"github.com/bureau-foundation/badge/lib/download"
	"github.com/bureau-foundation/badge/lib/imagestore"
	"github.com/bureau-foundation/badge/lib/installer"
)

func installCommand() *cli.Command {
	var (
		flags       configFlag
		packagePath string
		catalogURL  string
		title       string
		version     uint16
		digest      string
		overwrite   bool
		viaFile     bool
	)

	return &cli.Command{
		Name:    "install",
		Summary: "Install an app from the hub or a package",
		Description: `Install an app.

Without --package the app is looked up in the hub catalog and
installed, or upgraded when the catalog lists a newer version. With
--package the named file or URL is installed directly. Packages may be
raw images or zstd or lz4 frames.

An install that fails part way removes its entry; the app is never
visible half-written.`,
		Usage: "badge install <name> [flags]",
		Examples: []cli.Example{
			{Description: "Install from the configured hub", Command: "badge install snake"},
			{Description: "Install a local package", Command: "badge install snake --package ./snake.zst --version 3"},
			{Description: "Stream a large package through flash storage", Command: "badge install doom --via-file"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("install", pflag.ContinueOnError)
			flags.add(flagSet)
			flagSet.StringVar(&packagePath, "package", "", "package file or URL to install instead of the catalog entry")
			flagSet.StringVar(&catalogURL, "catalog", "", "catalog URL (default: hub.catalog_url)")
			flagSet.StringVar(&title, "title", "", "display title (with --package)")
			flagSet.Uint16Var(&version, "version", 0, "app version (with --package)")
			flagSet.StringVar(&digest, "digest", "", "expected image digest in hex (with --package)")
			flagSet.BoolVar(&overwrite, "overwrite", false, "replace an installed app of the same name (with --package)")
			flagSet.BoolVar(&viaFile, "via-file", false, "download to a file instead of memory")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: badge install <name> [flags]")
			}
			name := args[0]

			env, err := openEnvironment(&flags, logger)
			if err != nil {
				return err
			}
			defer env.Close()

			apps, err := env.installer()
			if err != nil {
				return err
			}

			var image imagestore.StoredImage
			if packagePath == "" {
				source, err := env.catalogURL(catalogURL)
				if err != nil {
					return err
				}
				image, err = apps.InstallFromCatalog(ctx, source, name, viaFile)
				if err != nil {
					return err
				}
			} else {
				manifest := installer.Manifest{
					Name:      name,
					Title:     title,
					Version:   version,
					Overwrite: overwrite,
				}
				if digest != "" {
					var expected imagestore.Digest
					if err := expected.UnmarshalText([]byte(digest)); err != nil {
						return fmt.Errorf("--digest: %w", err)
					}
					manifest.Digest = &expected
				}
				if isURL(packagePath) {
					image, err = apps.InstallURL(ctx, manifest, packagePath, viaFile)
				} else {
					image, err = apps.InstallFile(ctx, manifest, packagePath)
				}
				if err != nil {
					return err
				}
			}

			fmt.Printf("installed %s version %d (%s, handle %d)\n",
				image.Name, image.Version, humanize.IBytes(uint64(image.Size)), image.Handle)
			return nil
		},
	}
}

func fetchCommand() *cli.Command {
	var (
		flags  configFlag
		output string
	)

	return &cli.Command{
		Name:    "fetch",
		Summary: "Download a URL to a file or check it fits in memory",
		Description: `Download a URL with the badge's downloader.

With --output the body is written to that file, replacing it only when
the transfer succeeds. Without it the body is fetched into memory and
discarded, which checks that the server declares a Content-Length the
memory sink accepts.`,
		Usage: "badge fetch <url> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("fetch", pflag.ContinueOnError)
			flags.add(flagSet)
			flagSet.StringVarP(&output, "output", "o", "", "write the body to this file")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: badge fetch <url> [flags]")
			}
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			downloader := newDownloader(cfg, logger)

			var result download.Result
			if output != "" {
				result, err = downloader.ToFile(ctx, args[0], output)
			} else {
				_, result, err = downloader.ToMemory(ctx, args[0])
			}
			if err != nil {
				return err
			}

			destination := "memory"
			if output != "" {
				destination = output
			}
			fmt.Fprintf(os.Stdout, "fetched %s to %s in %s\n",
				humanize.IBytes(uint64(result.Received)), destination, result.Duration.Round(time.Millisecond))
			return nil
		},
	}
}

func isURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}
