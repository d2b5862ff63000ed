// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// EnvironmentVariable names the variable [Load] reads the config path from.
const EnvironmentVariable = "SWARMREG_CONFIG"

// ErrNoConfig is returned by [Load] when SWARMREG_CONFIG is unset.
var ErrNoConfig = errors.New(EnvironmentVariable + " environment variable not set")

// Config is the registry daemon configuration.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// DigestAlgorithm is sha256 or blake3. It must not change for the
	// lifetime of a store: every key embeds digests.
	DigestAlgorithm string `yaml:"digest_algorithm"`

	Storage StorageConfig `yaml:"storage"`
	Torrent TorrentConfig `yaml:"torrent"`
	Hashing HashingConfig `yaml:"hashing"`
	Limits  LimitsConfig  `yaml:"limits"`
	Cache   CacheConfig   `yaml:"cache"`
	Seeder  SeederConfig  `yaml:"seeder"`

	// Per-environment overrides, applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Listen   string         `yaml:"listen,omitempty"`
	LogLevel string         `yaml:"log_level,omitempty"`
	Storage  *StorageConfig `yaml:"storage,omitempty"`
	Torrent  *TorrentConfig `yaml:"torrent,omitempty"`
	Limits   *LimitsConfig  `yaml:"limits,omitempty"`
	Seeder   *SeederConfig  `yaml:"seeder,omitempty"`
}

// StorageConfig configures the artifact store.
type StorageConfig struct {
	// Backend is "filesystem" or "memory".
	Backend string `yaml:"backend"`

	// Root is the filesystem backend's directory.
	Root string `yaml:"root"`

	// Compression is none, lz4, zstd, or auto.
	Compression string `yaml:"compression"`

	// Encryption enables age encryption at rest when IdentityFile is set.
	Encryption EncryptionConfig `yaml:"encryption"`
}

// EncryptionConfig configures encryption at rest.
type EncryptionConfig struct {
	// IdentityFile is an age identity file. Empty disables encryption.
	IdentityFile string `yaml:"identity_file"`

	// EscrowRecipients are additional age public keys every value is
	// encrypted to.
	EscrowRecipients []string `yaml:"escrow_recipients"`
}

// TorrentConfig configures transfer descriptor generation.
type TorrentConfig struct {
	// PieceLength is the descriptor piece size in bytes.
	PieceLength uint32 `yaml:"piece_length"`

	// Announce lists tracker URLs embedded in every descriptor.
	Announce []string `yaml:"announce"`

	// ParallelThreshold is the payload size at or above which pieces
	// are hashed concurrently. Zero disables parallel hashing.
	ParallelThreshold int64 `yaml:"parallel_threshold"`
}

// HashingConfig configures the hashing worker pool.
type HashingConfig struct {
	// Workers bounds concurrent hashing. Zero means one per CPU.
	Workers int `yaml:"workers"`

	// OffloadThreshold is the payload size at or above which digesting
	// and descriptor building run on the worker pool.
	OffloadThreshold int64 `yaml:"offload_threshold"`
}

// LimitsConfig bounds request sizes.
type LimitsConfig struct {
	MaxManifestBytes int64 `yaml:"max_manifest_bytes"`
	MaxBlobBytes     int64 `yaml:"max_blob_bytes"`
}

// CacheConfig configures the verified manifest cache.
type CacheConfig struct {
	// ManifestTTL is how long a verified manifest stays cached. Zero
	// disables the cache.
	ManifestTTL time.Duration `yaml:"manifest_ttl"`

	// CleanupInterval is how often expired entries are purged.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// SeederConfig configures swarm seeding after writes.
type SeederConfig struct {
	// ExportDir receives <infohash>.torrent files and payloads for an
	// external BitTorrent client. Empty disables seeding.
	ExportDir string `yaml:"export_dir"`

	// QueueSize is the number of pending seed requests buffered before
	// new ones are dropped.
	QueueSize int `yaml:"queue_size"`
}

// Default returns the default configuration. Every field has a usable
// value, so a registry can run with no config file at all.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Environment:     Development,
		Listen:          ":5000",
		LogLevel:        "info",
		ShutdownTimeout: 10 * time.Second,
		DigestAlgorithm: "sha256",
		Storage: StorageConfig{
			Backend:     "filesystem",
			Root:        filepath.Join(homeDir, ".local", "share", "swarmreg"),
			Compression: "none",
		},
		Torrent: TorrentConfig{
			PieceLength:       256 * 1024,
			ParallelThreshold: 4 * 1024 * 1024,
		},
		Hashing: HashingConfig{
			Workers:          0,
			OffloadThreshold: 1024 * 1024,
		},
		Limits: LimitsConfig{
			MaxManifestBytes: 4 * 1024 * 1024,
			MaxBlobBytes:     1024 * 1024 * 1024,
		},
		Cache: CacheConfig{
			ManifestTTL:     5 * time.Minute,
			CleanupInterval: 10 * time.Minute,
		},
		Seeder: SeederConfig{
			QueueSize: 64,
		},
	}
}

// Load loads configuration from the file named by SWARMREG_CONFIG. It
// returns an error wrapping [ErrNoConfig] when the variable is unset so
// callers can decide whether to fall back to [Default].
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%w; set it to the path of your swarmreg.yaml or use --config", ErrNoConfig)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. Files ending
// in .json or .jsonc are read as JSON with comments and trailing commas;
// anything else is YAML. Values in the file override [Default].
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is a subset of YAML, so the stripped document goes
		// through the same decoder and the same field tags.
		data = jsonc.ToJSON(data)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the section matching Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: quieter logs, compressed storage.
		if overrides == nil {
			overrides = &ConfigOverrides{
				LogLevel: "warn",
				Storage:  &StorageConfig{Compression: "auto"},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Listen != "" {
		c.Listen = overrides.Listen
	}
	if overrides.LogLevel != "" {
		c.LogLevel = overrides.LogLevel
	}

	if overrides.Storage != nil {
		if overrides.Storage.Backend != "" {
			c.Storage.Backend = overrides.Storage.Backend
		}
		if overrides.Storage.Root != "" {
			c.Storage.Root = overrides.Storage.Root
		}
		if overrides.Storage.Compression != "" {
			c.Storage.Compression = overrides.Storage.Compression
		}
		if overrides.Storage.Encryption.IdentityFile != "" {
			c.Storage.Encryption.IdentityFile = overrides.Storage.Encryption.IdentityFile
		}
		if len(overrides.Storage.Encryption.EscrowRecipients) > 0 {
			c.Storage.Encryption.EscrowRecipients = overrides.Storage.Encryption.EscrowRecipients
		}
	}

	if overrides.Torrent != nil {
		if overrides.Torrent.PieceLength != 0 {
			c.Torrent.PieceLength = overrides.Torrent.PieceLength
		}
		if len(overrides.Torrent.Announce) > 0 {
			c.Torrent.Announce = overrides.Torrent.Announce
		}
		if overrides.Torrent.ParallelThreshold != 0 {
			c.Torrent.ParallelThreshold = overrides.Torrent.ParallelThreshold
		}
	}

	if overrides.Limits != nil {
		if overrides.Limits.MaxManifestBytes != 0 {
			c.Limits.MaxManifestBytes = overrides.Limits.MaxManifestBytes
		}
		if overrides.Limits.MaxBlobBytes != 0 {
			c.Limits.MaxBlobBytes = overrides.Limits.MaxBlobBytes
		}
	}

	if overrides.Seeder != nil {
		if overrides.Seeder.ExportDir != "" {
			c.Seeder.ExportDir = overrides.Seeder.ExportDir
		}
		if overrides.Seeder.QueueSize != 0 {
			c.Seeder.QueueSize = overrides.Seeder.QueueSize
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Storage.Root = expandVars(c.Storage.Root, vars)
	vars["SWARMREG_ROOT"] = c.Storage.Root

	c.Storage.Encryption.IdentityFile = expandVars(c.Storage.Encryption.IdentityFile, vars)
	c.Seeder.ExportDir = expandVars(c.Seeder.ExportDir, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Listen == "" {
		errs = append(errs, fmt.Errorf("listen is required"))
	}

	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown_timeout must be positive"))
	}

	if !slices.Contains([]string{"sha256", "blake3"}, c.DigestAlgorithm) {
		errs = append(errs, fmt.Errorf("digest_algorithm must be one of: sha256, blake3"))
	}

	switch c.Storage.Backend {
	case "filesystem":
		if c.Storage.Root == "" {
			errs = append(errs, fmt.Errorf("storage.root is required for the filesystem backend"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be one of: filesystem, memory"))
	}

	compressionValues := []string{"none", "lz4", "zstd", "auto"}
	if !slices.Contains(compressionValues, c.Storage.Compression) {
		errs = append(errs, fmt.Errorf("storage.compression must be one of: %v", compressionValues))
	}

	if len(c.Storage.Encryption.EscrowRecipients) > 0 && c.Storage.Encryption.IdentityFile == "" {
		errs = append(errs, fmt.Errorf("storage.encryption.escrow_recipients requires identity_file"))
	}

	if c.Torrent.PieceLength == 0 {
		errs = append(errs, fmt.Errorf("torrent.piece_length must be positive"))
	}
	if c.Torrent.ParallelThreshold < 0 {
		errs = append(errs, fmt.Errorf("torrent.parallel_threshold must not be negative"))
	}

	if c.Hashing.Workers < 0 {
		errs = append(errs, fmt.Errorf("hashing.workers must not be negative"))
	}
	if c.Hashing.OffloadThreshold < 0 {
		errs = append(errs, fmt.Errorf("hashing.offload_threshold must not be negative"))
	}

	if c.Limits.MaxManifestBytes <= 0 {
		errs = append(errs, fmt.Errorf("limits.max_manifest_bytes must be positive"))
	}
	if c.Limits.MaxBlobBytes <= 0 {
		errs = append(errs, fmt.Errorf("limits.max_blob_bytes must be positive"))
	}

	if c.Cache.ManifestTTL < 0 || c.Cache.CleanupInterval < 0 {
		errs = append(errs, fmt.Errorf("cache durations must not be negative"))
	}

	if c.Seeder.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("seeder.queue_size must not be negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// SlogLevel converts LogLevel to a slog.Level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level must be one of: debug, info, warn, error")
	}
	return level, nil
}

// EnsurePaths creates the configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	var paths []string
	if c.Storage.Backend == "filesystem" {
		paths = append(paths, c.Storage.Root)
	}
	if c.Seeder.ExportDir != "" {
		paths = append(paths, c.Seeder.ExportDir)
	}

	for _, path := range paths {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
