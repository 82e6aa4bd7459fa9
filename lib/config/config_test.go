// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "badge.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	cfg.Finalize()

	if cfg.Flash.Size != 16<<20 {
		t.Errorf("expected flash.size=16 MiB, got %s", cfg.Flash.Size)
	}
	if cfg.Mailbox.RestartDelay != 10*time.Microsecond {
		t.Errorf("expected restart_delay=10µs, got %s", cfg.Mailbox.RestartDelay)
	}
	if cfg.Paths.Database != filepath.Join(cfg.Paths.Root, "images.db") {
		t.Errorf("database path not derived from root: %s", cfg.Paths.Database)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoad_RequiresBadgeConfig(t *testing.T) {
	t.Setenv("BADGE_CONFIG", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when BADGE_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "BADGE_CONFIG environment variable not set") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_WithBadgeConfig(t *testing.T) {
	path := writeConfig(t, `
paths:
  root: /test/root
hub:
  catalog_url: https://hub.example/catalog.json
`)
	t.Setenv("BADGE_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Paths.Root != "/test/root" {
		t.Errorf("expected root=/test/root, got %s", cfg.Paths.Root)
	}
	if cfg.Paths.Mailbox != "/test/root/mailbox" {
		t.Errorf("expected derived mailbox path, got %s", cfg.Paths.Mailbox)
	}
	if cfg.Hub.CatalogURL != "https://hub.example/catalog.json" {
		t.Errorf("catalog_url = %q", cfg.Hub.CatalogURL)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
paths:
  root: /srv/badge
  flash: ${BADGE_ROOT}/nor/flash.img
  run: ${BADGE_RUN:-/tmp/badge-run}
flash:
  size: 4 MiB
  page_size: 4096
mailbox:
  restart_delay: 1ms
download:
  memory_limit: 256KiB
  max_file_size: 8388608
  timeout: 2m
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}

	if cfg.Paths.Flash != "/srv/badge/nor/flash.img" {
		t.Errorf("flash path = %s", cfg.Paths.Flash)
	}
	if cfg.Paths.Run != "/tmp/badge-run" {
		t.Errorf("run path = %s, want the default from the pattern", cfg.Paths.Run)
	}
	if cfg.Flash.Size != 4<<20 || cfg.Flash.PageSize != 4096 {
		t.Errorf("flash = %+v", cfg.Flash)
	}
	if cfg.Mailbox.RestartDelay != time.Millisecond {
		t.Errorf("restart_delay = %s", cfg.Mailbox.RestartDelay)
	}
	if cfg.Download.MemoryLimit != 256<<10 || cfg.Download.MaxFileSize != 8<<20 {
		t.Errorf("download = %+v", cfg.Download)
	}
	if cfg.Download.Timeout != 2*time.Minute {
		t.Errorf("timeout = %s", cfg.Download.Timeout)
	}
	// Unset fields keep their defaults.
	if cfg.Download.ChunkSize != 32<<10 {
		t.Errorf("chunk_size = %s, want default", cfg.Download.ChunkSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFile_InvalidSize(t *testing.T) {
	path := writeConfig(t, "flash:\n  size: lots\n")
	_, err := LoadFile(path)
	if err == nil || !strings.Contains(err.Error(), "invalid size") {
		t.Errorf("LoadFile() error = %v, want invalid size", err)
	}
}

func TestEnvVarsDoNotOverride(t *testing.T) {
	t.Setenv("BADGE_ROOT", "/from/env")
	path := writeConfig(t, "paths:\n  root: /from/file\n")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Paths.Root != "/from/file" {
		t.Errorf("expected root=/from/file, got %s (env vars should not override)", cfg.Paths.Root)
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("BADGE_TEST_PRESENT_IN_ENV", "from-env")
	tests := []struct {
		input    string
		vars     map[string]string
		expected string
	}{
		{"${HOME}/badge", map[string]string{"HOME": "/home/user"}, "/home/user/badge"},
		{"${MISSING_BADGE_VAR:-default}", nil, "default"},
		{"${PRESENT:-default}", map[string]string{"PRESENT": "value"}, "value"},
		{"${BADGE_TEST_PRESENT_IN_ENV:-default}", nil, "from-env"},
		{"${A}/${B}", map[string]string{"A": "first", "B": "second"}, "first/second"},
		{"no variables here", nil, "no variables here"},
	}

	for _, tt := range tests {
		if result := expandVars(tt.input, tt.vars); result != tt.expected {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid default config", func(c *Config) {}, ""},
		{"empty root path", func(c *Config) { c.Paths.Root = "" }, "paths.root"},
		{"page size not a power of two", func(c *Config) { c.Flash.PageSize = 3000 }, "flash.page_size"},
		{"zero page size", func(c *Config) { c.Flash.PageSize = 0 }, "flash.page_size"},
		{"flash size not page multiple", func(c *Config) { c.Flash.Size = ByteSize(c.Flash.PageSize) + 1 }, "flash.size"},
		{"negative restart delay", func(c *Config) { c.Mailbox.RestartDelay = -time.Second }, "restart_delay"},
		{"zero memory limit", func(c *Config) { c.Download.MemoryLimit = 0 }, "memory_limit"},
		{"relative catalog url", func(c *Config) { c.Hub.CatalogURL = "catalog.json" }, "catalog_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestByteSizeMarshal(t *testing.T) {
	data, err := yaml.Marshal(FlashConfig{Size: 16 << 20, PageSize: 4096})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded FlashConfig
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal of %q: %v", data, err)
	}
	if decoded.Size != 16<<20 || decoded.PageSize != 4096 {
		t.Errorf("decoded = %+v from %q", decoded, data)
	}
}

func TestEnsurePaths(t *testing.T) {
	cfg := Default()
	cfg.Paths.Root = filepath.Join(t.TempDir(), "badge")
	cfg.Paths.Database = filepath.Join(cfg.Paths.Root, "meta", "images.db")
	cfg.Finalize()

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths failed: %v", err)
	}

	for _, path := range []string{cfg.Paths.Root, cfg.Paths.Downloads, cfg.Paths.Run, filepath.Dir(cfg.Paths.Database)} {
		info, err := os.Stat(path)
		if err != nil {
			t.Errorf("path %s not created: %v", path, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("path %s is not a directory", path)
		}
	}
}
