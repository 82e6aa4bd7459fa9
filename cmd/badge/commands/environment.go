// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/badge/lib/config"
	"github.com/bureau-foundation/badge/lib/download"
	"github.com/bureau-foundation/badge/lib/flash"
	"github.com/bureau-foundation/badge/lib/imagestore"
	"github.com/bureau-foundation/badge/lib/installer"
	"github.com/bureau-foundation/badge/lib/mailbox"
)

// configFlag is the --config flag shared by every command that touches
// the badge's storage.
type configFlag struct {
	path string
}

func (c *configFlag) add(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.path, "config", "", "config file (default: $BADGE_CONFIG)")
}

func (c *configFlag) load() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if c.path != "" {
		cfg, err = config.LoadFile(c.path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// bootArgs is the argument vector the firmware restarts into: the
// boot command with the same configuration.
func (c *configFlag) bootArgs() []string {
	args := []string{os.Args[0], "boot"}
	if c.path != "" {
		args = append(args, "--config", c.path)
	}
	return args
}

// environment is the opened badge: configuration, flash, image store,
// mailbox, and downloader.
type environment struct {
	config     *config.Config
	device     *flash.FileDevice
	store      *imagestore.Store
	mailbox    *mailbox.Mailbox
	downloader *download.Downloader
	logger     *slog.Logger
}

func openEnvironment(flags *configFlag, logger *slog.Logger) (*environment, error) {
	cfg, err := flags.load()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}

	device, err := flash.OpenFileDevice(cfg.Paths.Flash, int64(cfg.Flash.Size), int64(cfg.Flash.PageSize))
	if err != nil {
		return nil, err
	}
	store, err := imagestore.Open(imagestore.Config{
		Device:       device,
		DatabasePath: cfg.Paths.Database,
		Logger:       logger,
	})
	if err != nil {
		device.Close()
		return nil, err
	}

	box, err := mailbox.New(mailbox.Config{
		Register:  mailbox.NewFileRegister(cfg.Paths.Mailbox),
		Restarter: mailbox.ExecRestarter{Args: flags.bootArgs()},
		ArmDelay:  cfg.Mailbox.RestartDelay,
		Logger:    logger,
	})
	if err != nil {
		store.Close()
		device.Close()
		return nil, err
	}

	return &environment{
		config:     cfg,
		device:     device,
		store:      store,
		mailbox:    box,
		downloader: newDownloader(cfg, logger),
		logger:     logger,
	}, nil
}

func newDownloader(cfg *config.Config, logger *slog.Logger) *download.Downloader {
	return download.New(download.Config{
		Transport: &download.HTTPTransport{
			Client:    &http.Client{Timeout: cfg.Download.Timeout},
			ChunkSize: int(cfg.Download.ChunkSize),
		},
		MemoryLimit:      int64(cfg.Download.MemoryLimit),
		MaxFileSize:      int64(cfg.Download.MaxFileSize),
		ProgressInterval: cfg.Download.ProgressInterval,
		Logger:           logger,
	})
}

func (e *environment) installer() (*installer.Installer, error) {
	return installer.New(installer.Config{
		Store:             e.store,
		Downloader:        e.downloader,
		DownloadDirectory: e.config.Paths.Downloads,
		Logger:            e.logger,
	})
}

// catalogURL picks the explicit URL over the configured hub.
func (e *environment) catalogURL(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if e.config.Hub.CatalogURL == "" {
		return "", fmt.Errorf("no catalog URL: pass --catalog or set hub.catalog_url")
	}
	return e.config.Hub.CatalogURL, nil
}

func (e *environment) Close() error {
	return errors.Join(e.store.Close(), e.device.Close())
}
