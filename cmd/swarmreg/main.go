// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/swarmreg/lib/artifactstore"
	"github.com/bureau-foundation/swarmreg/lib/clock"
	"github.com/bureau-foundation/swarmreg/lib/config"
	"github.com/bureau-foundation/swarmreg/lib/contentaddr"
	"github.com/bureau-foundation/swarmreg/lib/registry"
	"github.com/bureau-foundation/swarmreg/lib/seedexport"
	"github.com/bureau-foundation/swarmreg/lib/service"
	"github.com/bureau-foundation/swarmreg/lib/torrent"
	"github.com/bureau-foundation/swarmreg/lib/version"
	"github.com/bureau-foundation/swarmreg/lib/workpool"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("swarmreg", pflag.ContinueOnError)
	var (
		configPath  string
		listen      string
		storeDir    string
		showVersion bool
	)
	flags.StringVar(&configPath, "config", "", "configuration file (default $"+config.EnvironmentVariable+")")
	flags.StringVar(&listen, "listen", "", "listen address, overrides the configuration")
	flags.StringVar(&storeDir, "store-dir", "", "filesystem store root, overrides the configuration")
	flags.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("swarmreg %s\n", version.Full())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Listen = listen
	}
	if storeDir != "" {
		cfg.Storage.Backend = "filesystem"
		cfg.Storage.Root = storeDir
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	logger := service.NewLogger(os.Stderr, level)

	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	addressor, err := contentaddr.New(contentaddr.Algorithm(cfg.DigestAlgorithm))
	if err != nil {
		return err
	}

	workers := cfg.Hashing.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}

	seeder, closeSeeder, err := openSeeder(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSeeder()

	coordinator, err := registry.NewCoordinator(registry.Config{
		Store:     store,
		Addressor: addressor,
		Builder: torrent.NewBuilder(torrent.BuilderConfig{
			Addressor:         addressor,
			Announce:          cfg.Torrent.Announce,
			ParallelThreshold: cfg.Torrent.ParallelThreshold,
			Workers:           workers,
		}),
		PieceLength:      cfg.Torrent.PieceLength,
		Pool:             workpool.New(workers),
		OffloadThreshold: cfg.Hashing.OffloadThreshold,
		MaxManifestBytes: cfg.Limits.MaxManifestBytes,
		MaxBlobBytes:     cfg.Limits.MaxBlobBytes,
		Seeder:           seeder,
		Clock:            clock.Real(),
		ManifestCacheTTL: cfg.Cache.ManifestTTL,
		CleanupInterval:  cfg.Cache.CleanupInterval,
	})
	if err != nil {
		return err
	}

	server := service.NewHTTPServer(service.HTTPServerConfig{
		Address:         cfg.Listen,
		Handler:         service.RequestLogging(logger, NewHandler(coordinator, cfg.Limits.MaxManifestBytes, cfg.Limits.MaxBlobBytes)),
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          logger,
	})

	logger.Info("swarmreg starting",
		"version", version.Info(),
		"environment", cfg.Environment,
		"storage", cfg.Storage.Backend,
		"root", cfg.Storage.Root,
		"compression", cfg.Storage.Compression,
		"encrypted", cfg.Storage.Encryption.IdentityFile != "",
		"digest_algorithm", addressor.Algorithm(),
		"piece_length", cfg.Torrent.PieceLength,
		"hashing_workers", workers,
	)

	return server.Serve(ctx)
}

// loadConfig reads the file named by --config, then SWARMREG_CONFIG,
// and falls back to the defaults when neither is set.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	cfg, err := config.Load()
	if errors.Is(err, config.ErrNoConfig) {
		return config.Default(), nil
	}
	return cfg, err
}

// openStore builds the storage stack: the backend, then encryption, then
// compression outermost so values are compressed before they are
// encrypted.
func openStore(cfg *config.Config) (artifactstore.Store, func() error, error) {
	var store artifactstore.Store
	closeStore := func() error { return nil }

	switch cfg.Storage.Backend {
	case "memory":
		store = artifactstore.NewMemory()
	default:
		filesystem, err := artifactstore.OpenFilesystem(cfg.Storage.Root)
		if err != nil {
			return nil, nil, fmt.Errorf("opening store: %w", err)
		}
		store = filesystem
		closeStore = filesystem.Close
	}

	if identityFile := cfg.Storage.Encryption.IdentityFile; identityFile != "" {
		identity, err := artifactstore.LoadIdentityFile(identityFile)
		if err != nil {
			closeStore()
			return nil, nil, err
		}
		escrow, err := artifactstore.ParseRecipients(cfg.Storage.Encryption.EscrowRecipients)
		if err != nil {
			closeStore()
			return nil, nil, err
		}
		store = artifactstore.NewEncrypted(store, identity, escrow...)
	}

	compression, err := artifactstore.ParseCompressionTag(cfg.Storage.Compression)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	if compression != artifactstore.CompressionNone {
		store = artifactstore.NewCompressed(store, compression)
	}

	return store, closeStore, nil
}

// openSeeder returns the seeder for committed artifacts: an export
// directory behind an asynchronous queue when one is configured.
func openSeeder(ctx context.Context, cfg *config.Config, logger *slog.Logger) (registry.Seeder, func(), error) {
	if cfg.Seeder.ExportDir == "" {
		return registry.NopSeeder{}, func() {}, nil
	}

	exportStore, err := artifactstore.OpenFilesystem(cfg.Seeder.ExportDir)
	if err != nil {
		return nil, nil, fmt.Errorf("opening seed export directory: %w", err)
	}

	queue := registry.NewSeedQueue(seedexport.New(exportStore, logger), cfg.Seeder.QueueSize, logger)
	done := make(chan struct{})
	go func() {
		defer close(done)
		queue.Run(ctx)
	}()

	return queue, func() {
		queue.Close()
		<-done
		exportStore.Close()
	}, nil
}
