// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package seedexport hands committed artifacts to an external BitTorrent
// client through a watch directory.
//
// For every seed request the [Exporter] writes
//
//	<dir>/<infohash>/<name>     the artifact bytes
//	<dir>/<infohash>.torrent    the descriptor
//
// where <infohash> is the hex encoding of the descriptor's info hash and
// <name> is the descriptor's artifact path. The payload is written
// before the descriptor and both writes are atomic, so a client that
// picks up *.torrent files always finds complete data under the
// matching directory.
package seedexport

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/swarmreg/lib/artifactstore"
	"github.com/bureau-foundation/swarmreg/lib/registry"
)

// Exporter implements [registry.Seeder] by writing into a directory.
type Exporter struct {
	store  artifactstore.Store
	logger *slog.Logger
}

// New returns an Exporter writing through store. The filesystem store
// returned by [artifactstore.OpenFilesystem] gives the atomic layout
// described in the package documentation.
func New(store artifactstore.Store, logger *slog.Logger) *Exporter {
	return &Exporter{store: store, logger: logger}
}

// Seed exports one artifact. Artifacts already exported are skipped.
func (e *Exporter) Seed(ctx context.Context, request registry.SeedRequest) error {
	descriptor := request.Descriptor
	if int64(len(request.Content)) != descriptor.Info.Length {
		return fmt.Errorf("content is %d bytes, descriptor %s says %d",
			len(request.Content), descriptor.InfoHash, descriptor.Info.Length)
	}

	infoHash := descriptor.InfoHash.Encoded()
	torrentKey := infoHash + ".torrent"

	exported, err := e.store.Exists(ctx, torrentKey)
	if err != nil {
		return fmt.Errorf("checking export of %s: %w", infoHash, err)
	}
	if exported {
		return nil
	}

	if err := e.store.Save(ctx, infoHash+"/"+descriptor.Info.Name, request.Content); err != nil {
		return fmt.Errorf("exporting payload of %s: %w", infoHash, err)
	}
	if err := e.store.Save(ctx, torrentKey, descriptor.Encoded); err != nil {
		return fmt.Errorf("exporting descriptor %s: %w", infoHash, err)
	}

	e.logger.Info("artifact exported for seeding",
		"info_hash", infoHash,
		"name", descriptor.Info.Name,
		"length", descriptor.Info.Length,
	)
	return nil
}
