// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Torrent.PieceLength != 256*1024 {
		t.Errorf("expected piece_length=262144, got %d", cfg.Torrent.PieceLength)
	}
	if cfg.DigestAlgorithm != "sha256" {
		t.Errorf("expected digest_algorithm=sha256, got %s", cfg.DigestAlgorithm)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default() does not validate: %v", err)
	}
}

func TestLoad_RequiresEnvironmentVariable(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when SWARMREG_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "SWARMREG_CONFIG environment variable not set") {
		t.Errorf("unexpected error message: %q", err.Error())
	}
}

func TestLoad_WithEnvironmentVariable(t *testing.T) {
	path := writeConfig(t, "swarmreg.yaml", `
environment: staging
listen: 127.0.0.1:5001
storage:
  root: /srv/registry
`)
	t.Setenv(EnvironmentVariable, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}
	if cfg.Listen != "127.0.0.1:5001" {
		t.Errorf("expected listen=127.0.0.1:5001, got %s", cfg.Listen)
	}
	if cfg.Storage.Root != "/srv/registry" {
		t.Errorf("expected storage.root=/srv/registry, got %s", cfg.Storage.Root)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, "swarmreg.yaml", `
environment: development
log_level: debug
shutdown_timeout: 3s
digest_algorithm: blake3
storage:
  backend: memory
  compression: zstd
torrent:
  piece_length: 65536
  announce:
    - http://tracker.internal:6969/announce
hashing:
  workers: 4
cache:
  manifest_ttl: 1m
seeder:
  queue_size: 8
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("log_level = %s", cfg.LogLevel)
	}
	if cfg.ShutdownTimeout != 3*time.Second {
		t.Errorf("shutdown_timeout = %v", cfg.ShutdownTimeout)
	}
	if cfg.DigestAlgorithm != "blake3" {
		t.Errorf("digest_algorithm = %s", cfg.DigestAlgorithm)
	}
	if cfg.Storage.Backend != "memory" || cfg.Storage.Compression != "zstd" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Torrent.PieceLength != 65536 || len(cfg.Torrent.Announce) != 1 {
		t.Errorf("torrent = %+v", cfg.Torrent)
	}
	if cfg.Hashing.Workers != 4 {
		t.Errorf("hashing.workers = %d", cfg.Hashing.Workers)
	}
	if cfg.Cache.ManifestTTL != time.Minute {
		t.Errorf("cache.manifest_ttl = %v", cfg.Cache.ManifestTTL)
	}
	// Unset fields keep their defaults.
	if cfg.Limits.MaxManifestBytes != Default().Limits.MaxManifestBytes {
		t.Errorf("limits.max_manifest_bytes = %d, want default", cfg.Limits.MaxManifestBytes)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFile_JSONC(t *testing.T) {
	path := writeConfig(t, "swarmreg.jsonc", `{
  // Local registry with a tracker.
  "listen": ":6000",
  "shutdown_timeout": "15s",
  "torrent": {
    "piece_length": 1048576,
    "announce": ["udp://tracker:6969"], /* trailing comma next */
  },
}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Listen != ":6000" {
		t.Errorf("listen = %s", cfg.Listen)
	}
	if cfg.ShutdownTimeout != 15*time.Second {
		t.Errorf("shutdown_timeout = %v", cfg.ShutdownTimeout)
	}
	if cfg.Torrent.PieceLength != 1048576 {
		t.Errorf("torrent.piece_length = %d", cfg.Torrent.PieceLength)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := writeConfig(t, "bad.yaml", "listen: [unclosed")
	if _, err := LoadFile(path); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "swarmreg.yaml", `
environment: staging
listen: ":5000"
storage:
  root: /base
staging:
  listen: ":5500"
  storage:
    root: /staging
    compression: lz4
production:
  listen: ":443"
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Listen != ":5500" {
		t.Errorf("listen = %s, want staging override", cfg.Listen)
	}
	if cfg.Storage.Root != "/staging" || cfg.Storage.Compression != "lz4" {
		t.Errorf("storage = %+v, want staging override", cfg.Storage)
	}
}

func TestProductionDefaults(t *testing.T) {
	path := writeConfig(t, "swarmreg.yaml", "environment: production\n")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("log_level = %s, want warn in production", cfg.LogLevel)
	}
	if cfg.Storage.Compression != "auto" {
		t.Errorf("storage.compression = %s, want auto in production", cfg.Storage.Compression)
	}
}

func TestEnvVarsDoNotOverride(t *testing.T) {
	t.Setenv("LISTEN", ":9999")
	t.Setenv("SWARMREG_LISTEN", ":9999")

	path := writeConfig(t, "swarmreg.yaml", "listen: \":5000\"\n")
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":5000" {
		t.Errorf("listen = %s, environment variables must not override config", cfg.Listen)
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("HOME", "/home/test")
	t.Setenv("REGISTRY_EXPORT", "")

	path := writeConfig(t, "swarmreg.yaml", `
storage:
  root: ${HOME}/registry
  encryption:
    identity_file: ${SWARMREG_ROOT}/identity.txt
seeder:
  export_dir: ${REGISTRY_EXPORT:-/var/lib/swarmreg/seed}
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.Root != "/home/test/registry" {
		t.Errorf("storage.root = %s", cfg.Storage.Root)
	}
	if cfg.Storage.Encryption.IdentityFile != "/home/test/registry/identity.txt" {
		t.Errorf("identity_file = %s", cfg.Storage.Encryption.IdentityFile)
	}
	if cfg.Seeder.ExportDir != "/var/lib/swarmreg/seed" {
		t.Errorf("export_dir = %s", cfg.Seeder.ExportDir)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad_environment", func(c *Config) { c.Environment = "qa" }, "invalid environment"},
		{"no_listen", func(c *Config) { c.Listen = "" }, "listen is required"},
		{"bad_log_level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"bad_algorithm", func(c *Config) { c.DigestAlgorithm = "md5" }, "digest_algorithm"},
		{"bad_backend", func(c *Config) { c.Storage.Backend = "s3" }, "storage.backend"},
		{"no_root", func(c *Config) { c.Storage.Root = "" }, "storage.root"},
		{"memory_no_root", func(c *Config) { c.Storage.Backend = "memory"; c.Storage.Root = "" }, ""},
		{"bad_compression", func(c *Config) { c.Storage.Compression = "gzip" }, "storage.compression"},
		{"escrow_without_identity", func(c *Config) { c.Storage.Encryption.EscrowRecipients = []string{"age1x"} }, "escrow_recipients"},
		{"zero_piece_length", func(c *Config) { c.Torrent.PieceLength = 0 }, "piece_length"},
		{"negative_workers", func(c *Config) { c.Hashing.Workers = -1 }, "hashing.workers"},
		{"zero_blob_limit", func(c *Config) { c.Limits.MaxBlobBytes = 0 }, "max_blob_bytes"},
		{"zero_shutdown", func(c *Config) { c.ShutdownTimeout = 0 }, "shutdown_timeout"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			cfg.Storage.Root = "/srv/registry"
			test.modify(cfg)

			err := cfg.Validate()
			if test.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, test.wantErr)
			}
		})
	}
}

func TestValidateReportsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Listen = ""
	cfg.Torrent.PieceLength = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"listen", "piece_length"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestSlogLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "debug"
	level, err := cfg.SlogLevel()
	if err != nil || level != slog.LevelDebug {
		t.Errorf("SlogLevel() = %v, %v", level, err)
	}
}

func TestEnsurePaths(t *testing.T) {
	root := t.TempDir()
	cfg := Default()
	cfg.Storage.Root = filepath.Join(root, "store")
	cfg.Seeder.ExportDir = filepath.Join(root, "seed")

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatal(err)
	}
	for _, path := range []string{cfg.Storage.Root, cfg.Seeder.ExportDir} {
		if info, err := os.Stat(path); err != nil || !info.IsDir() {
			t.Errorf("%s not created: %v", path, err)
		}
	}
}
