// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the badge configuration.
//
// Configuration is loaded from a single YAML file named by either the
// BADGE_CONFIG environment variable ([Load]) or a --config flag
// ([LoadFile]). There is no discovery and no fallback file: what the
// file says, on top of [Default], is what runs.
//
// Path fields expand ${HOME}, ${BADGE_ROOT}, and ${VAR:-default}
// after loading. Paths left empty are derived from paths.root. Sizes
// accept plain byte counts or human forms such as "16 MiB".
//
//	paths:
//	  root: ${HOME}/.local/share/badge
//	flash:
//	  size: 16 MiB
//	  page_size: 4096
//	download:
//	  memory_limit: 1 MiB
//	hub:
//	  catalog_url: https://hub.example/catalog.json
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/badge/lib/flash"
)

// Config is the badge configuration.
type Config struct {
	Paths    PathsConfig    `yaml:"paths"`
	Flash    FlashConfig    `yaml:"flash"`
	Mailbox  MailboxConfig  `yaml:"mailbox"`
	Download DownloadConfig `yaml:"download"`
	Hub      HubConfig      `yaml:"hub"`
}

// PathsConfig configures file locations.
type PathsConfig struct {
	// Root is the base directory. The other paths default to entries
	// beneath it.
	Root string `yaml:"root"`

	// Database holds image metadata.
	Database string `yaml:"database"`

	// Flash is the file backing the app flash region.
	Flash string `yaml:"flash"`

	// Mailbox is the reserved file holding the boot mailbox word.
	Mailbox string `yaml:"mailbox"`

	// Downloads stages packages fetched to file.
	Downloads string `yaml:"downloads"`

	// Run receives app executables while they run.
	Run string `yaml:"run"`
}

// FlashConfig describes the app flash region.
type FlashConfig struct {
	Size     ByteSize `yaml:"size"`
	PageSize ByteSize `yaml:"page_size"`
}

// MailboxConfig configures the boot handoff.
type MailboxConfig struct {
	// RestartDelay is the wakeup timer armed before a restart.
	RestartDelay time.Duration `yaml:"restart_delay"`
}

// DownloadConfig configures the downloader.
type DownloadConfig struct {
	// MemoryLimit caps a single in-memory download.
	MemoryLimit ByteSize `yaml:"memory_limit"`

	// MaxFileSize caps a file download. Zero is unbounded.
	MaxFileSize ByteSize `yaml:"max_file_size"`

	// ChunkSize is the read size of the HTTP transport.
	ChunkSize ByteSize `yaml:"chunk_size"`

	// Timeout bounds one download. Zero is unbounded.
	Timeout time.Duration `yaml:"timeout"`

	// ProgressInterval spaces progress log records.
	ProgressInterval time.Duration `yaml:"progress_interval"`
}

// HubConfig configures the app hub.
type HubConfig struct {
	// CatalogURL is the default catalog for install and catalog
	// commands.
	CatalogURL string `yaml:"catalog_url"`
}

// ByteSize is a size in bytes that unmarshals from an integer or a
// human-readable string.
type ByteSize int64

// UnmarshalYAML accepts 4096, "4096", "64 KiB", or "16MB".
func (b *ByteSize) UnmarshalYAML(node *yaml.Node) error {
	var text string
	if err := node.Decode(&text); err != nil {
		return err
	}
	size, err := humanize.ParseBytes(text)
	if err != nil {
		return fmt.Errorf("line %d: invalid size %q: %w", node.Line, text, err)
	}
	*b = ByteSize(size)
	return nil
}

// MarshalYAML writes the size in IEC units.
func (b ByteSize) MarshalYAML() (any, error) {
	return b.String(), nil
}

func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// Default returns the defaults applied beneath the config file.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Paths: PathsConfig{
			Root: filepath.Join(homeDir, ".local", "share", "badge"),
		},
		Flash: FlashConfig{
			Size:     16 << 20,
			PageSize: ByteSize(flash.DefaultPageSize),
		},
		Mailbox: MailboxConfig{
			RestartDelay: 10 * time.Microsecond,
		},
		Download: DownloadConfig{
			MemoryLimit:      1 << 20,
			ChunkSize:        32 << 10,
			ProgressInterval: 2 * time.Second,
		},
	}
}

// Load loads the file named by BADGE_CONFIG.
func Load() (*Config, error) {
	configPath := os.Getenv("BADGE_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("BADGE_CONFIG environment variable not set; " +
			"set it to the path of your badge.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads the configuration at path over Default. Environment
// variables do not override values; they are only expanded inside
// path fields.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.expandVariables()
	cfg.derivePaths()
	return cfg, nil
}

// Finalize expands and derives paths on a Config built in code rather
// than loaded from a file.
func (c *Config) Finalize() {
	c.expandVariables()
	c.derivePaths()
}

func (c *Config) derivePaths() {
	derive := func(field *string, name string) {
		if *field == "" {
			*field = filepath.Join(c.Paths.Root, name)
		}
	}
	derive(&c.Paths.Database, "images.db")
	derive(&c.Paths.Flash, "flash.img")
	derive(&c.Paths.Mailbox, "mailbox")
	derive(&c.Paths.Downloads, "downloads")
	derive(&c.Paths.Run, "run")
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"BADGE_ROOT": c.Paths.Root,
		"HOME":       os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["BADGE_ROOT"] = c.Paths.Root

	c.Paths.Database = expandVars(c.Paths.Database, vars)
	c.Paths.Flash = expandVars(c.Paths.Flash, vars)
	c.Paths.Mailbox = expandVars(c.Paths.Mailbox, vars)
	c.Paths.Downloads = expandVars(c.Paths.Downloads, vars)
	c.Paths.Run = expandVars(c.Paths.Run, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}, preferring vars over
// the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}

	pageSize := int64(c.Flash.PageSize)
	switch {
	case !flash.ValidPageSize(pageSize):
		errs = append(errs, fmt.Errorf("flash.page_size %d is not a power of two", pageSize))
	case c.Flash.Size <= 0 || int64(c.Flash.Size)%pageSize != 0:
		errs = append(errs, fmt.Errorf("flash.size %s must be a positive multiple of flash.page_size", c.Flash.Size))
	}

	if c.Mailbox.RestartDelay < 0 {
		errs = append(errs, fmt.Errorf("mailbox.restart_delay must not be negative"))
	}
	if c.Download.MemoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("download.memory_limit must be positive"))
	}
	if c.Download.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("download.chunk_size must be positive"))
	}
	if c.Download.Timeout < 0 {
		errs = append(errs, fmt.Errorf("download.timeout must not be negative"))
	}

	if c.Hub.CatalogURL != "" {
		parsed, err := url.Parse(c.Hub.CatalogURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			errs = append(errs, fmt.Errorf("hub.catalog_url %q is not an absolute URL", c.Hub.CatalogURL))
		}
	}

	return errors.Join(errs...)
}

// EnsurePaths creates the configured directories, including the
// parents of file paths.
func (c *Config) EnsurePaths() error {
	directories := []string{
		c.Paths.Root,
		c.Paths.Downloads,
		c.Paths.Run,
		filepath.Dir(c.Paths.Database),
		filepath.Dir(c.Paths.Flash),
		filepath.Dir(c.Paths.Mailbox),
	}
	for _, path := range directories {
		if path == "" || path == "." {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
