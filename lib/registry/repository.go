// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"

	"github.com/bureau-foundation/swarmreg/lib/artifactstore"
	"github.com/bureau-foundation/swarmreg/lib/codec"
)

// Repository is a named collection of tag bindings. The same struct is
// persisted as CBOR and served as JSON, so it carries json tags only.
type Repository struct {
	// ID is a random UUID assigned at creation. It survives tag
	// changes and distinguishes a recreated repository from its
	// predecessor.
	ID string `json:"id"`

	Name string `json:"name"`

	// Tags maps each tag to the digest of the manifest it is bound to.
	Tags map[string]digest.Digest `json:"tags"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newRepository(name string, now time.Time) *Repository {
	return &Repository{
		ID:        uuid.NewString(),
		Name:      name,
		Tags:      make(map[string]digest.Digest),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (r *Repository) clone() *Repository {
	copied := *r
	copied.Tags = maps.Clone(r.Tags)
	return &copied
}

// loadRepository reads and decodes a repository record. An absent
// record is ErrNotFound; an undecodable one is ErrIntegrity.
func (c *Coordinator) loadRepository(ctx context.Context, name string) (*Repository, error) {
	data, err := c.store.Load(ctx, repositoryKey(name))
	if errors.Is(err, artifactstore.ErrNotFound) {
		return nil, fmt.Errorf("repository %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, ioFailure(err, "loading repository %s", name)
	}

	var record Repository
	if err := codec.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: decoding repository %s: %w", ErrIntegrity, name, err)
	}
	if record.Name != name {
		return nil, fmt.Errorf("%w: record at %s names repository %q", ErrIntegrity, repositoryKey(name), record.Name)
	}
	if record.Tags == nil {
		record.Tags = make(map[string]digest.Digest)
	}
	return &record, nil
}

func (c *Coordinator) saveRepository(ctx context.Context, record *Repository) error {
	data, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding repository %s: %w", record.Name, err)
	}
	if err := c.store.Save(ctx, repositoryKey(record.Name), data); err != nil {
		return ioFailure(err, "saving repository %s", record.Name)
	}
	return nil
}
