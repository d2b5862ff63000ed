// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/patrickmn/go-cache"
	slogcontext "github.com/veqryn/slog-context"

	"github.com/bureau-foundation/swarmreg/lib/artifactstore"
	"github.com/bureau-foundation/swarmreg/lib/clock"
	"github.com/bureau-foundation/swarmreg/lib/contentaddr"
	"github.com/bureau-foundation/swarmreg/lib/torrent"
	"github.com/bureau-foundation/swarmreg/lib/workpool"
)

// Config holds the coordinator's collaborators and tunables.
type Config struct {
	// Store persists every key the coordinator writes. Required.
	Store artifactstore.Store

	// Addressor digests blobs, manifests, and pieces. Required.
	Addressor *contentaddr.Addressor

	// Builder derives transfer descriptors. It must hash with the
	// Addressor's algorithm. Defaults to a trackerless builder over
	// Addressor.
	Builder *torrent.Builder

	// PieceLength is the descriptor piece size. Defaults to
	// [torrent.DefaultPieceLength].
	PieceLength uint32

	// Pool runs digesting and descriptor building for payloads of at
	// least OffloadThreshold bytes. Nil hashes on the caller's
	// goroutine.
	Pool             *workpool.Pool
	OffloadThreshold int64

	// MaxManifestBytes and MaxBlobBytes reject larger payloads with
	// ErrTooLarge. Zero means unlimited.
	MaxManifestBytes int64
	MaxBlobBytes     int64

	// Seeder receives every committed artifact. Defaults to [NopSeeder].
	Seeder Seeder

	// Clock stamps repository records. Defaults to the real clock.
	Clock clock.Clock

	// ManifestCacheTTL is how long verified manifest bodies are kept in
	// memory. Zero disables caching.
	ManifestCacheTTL time.Duration
	CleanupInterval  time.Duration
}

// Coordinator implements the registry operations. It is safe for
// concurrent use.
type Coordinator struct {
	store            artifactstore.Store
	addressor        *contentaddr.Addressor
	builder          *torrent.Builder
	pieceLength      uint32
	pool             *workpool.Pool
	offloadThreshold int64
	maxManifestBytes int64
	maxBlobBytes     int64
	seeder           Seeder
	clock            clock.Clock

	// manifests caches verified manifest bodies by storage key. Keys
	// are digest-addressed, so entries never go stale.
	manifests *cache.Cache

	// repositoryLocks serializes tag binding and repository creation
	// per repository name.
	repositoryLocks *keyedMutex
}

// NewCoordinator validates config and returns a Coordinator.
func NewCoordinator(config Config) (*Coordinator, error) {
	if config.Store == nil {
		return nil, errors.New("registry: Config.Store is required")
	}
	if config.Addressor == nil {
		return nil, errors.New("registry: Config.Addressor is required")
	}

	builder := config.Builder
	if builder == nil {
		builder = torrent.NewBuilder(torrent.BuilderConfig{Addressor: config.Addressor})
	}
	if builder.Algorithm() != config.Addressor.Algorithm() {
		return nil, fmt.Errorf("registry: builder hashes with %s but the addressor uses %s",
			builder.Algorithm(), config.Addressor.Algorithm())
	}

	pieceLength := config.PieceLength
	if pieceLength == 0 {
		pieceLength = torrent.DefaultPieceLength
	}

	seeder := config.Seeder
	if seeder == nil {
		seeder = NopSeeder{}
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}

	var manifests *cache.Cache
	if config.ManifestCacheTTL > 0 {
		manifests = cache.New(config.ManifestCacheTTL, config.CleanupInterval)
	}

	return &Coordinator{
		store:            config.Store,
		addressor:        config.Addressor,
		builder:          builder,
		pieceLength:      pieceLength,
		pool:             config.Pool,
		offloadThreshold: config.OffloadThreshold,
		maxManifestBytes: config.MaxManifestBytes,
		maxBlobBytes:     config.MaxBlobBytes,
		seeder:           seeder,
		clock:            clk,
		manifests:        manifests,
		repositoryLocks:  newKeyedMutex(),
	}, nil
}

// Addressor returns the coordinator's digest algorithm holder.
func (c *Coordinator) Addressor() *contentaddr.Addressor {
	return c.addressor
}

// PutManifestOptions modifies [Coordinator.PutManifest].
type PutManifestOptions struct {
	// ExpectedPrevious, when set on a tag reference, makes the tag
	// update a compare-and-swap: the write fails with ErrConflict
	// unless the tag is currently bound to this digest. Ignored for
	// digest references.
	ExpectedPrevious digest.Digest
}

// ManifestResult describes a stored manifest.
type ManifestResult struct {
	Digest    digest.Digest
	MediaType string
	Size      int64

	// InfoHash identifies the descriptor built for the pushed reference.
	InfoHash digest.Digest

	// Previous is the digest the tag was bound to before this write.
	// Empty for new tags and digest references.
	Previous digest.Digest
}

// PutManifest stores body under repository and reference. The
// repository is created if it does not exist. A digest reference must
// equal the body's digest; nothing is written otherwise.
func (c *Coordinator) PutManifest(ctx context.Context, repository, reference string, body []byte, options PutManifestOptions) (*ManifestResult, error) {
	if err := ValidateRepositoryName(repository); err != nil {
		return nil, err
	}
	ref, err := ParseReference(c.addressor, reference)
	if err != nil {
		return nil, err
	}
	if c.maxManifestBytes > 0 && int64(len(body)) > c.maxManifestBytes {
		return nil, fmt.Errorf("%w: manifest is %d bytes, limit is %d", ErrTooLarge, len(body), c.maxManifestBytes)
	}

	_, mediaType, err := ParseManifest(c.addressor, body)
	if err != nil {
		return nil, err
	}

	manifestDigest, err := c.digest(ctx, body)
	if err != nil {
		return nil, err
	}
	if ref.IsDigest() && ref.Digest != manifestDigest {
		return nil, fmt.Errorf("%w: reference %s, manifest digests to %s", ErrDigestMismatch, ref.Digest, manifestDigest)
	}

	ctx = slogcontext.With(ctx, "repository", repository, "reference", reference, "digest", manifestDigest)

	referenceDescriptor, err := c.buildDescriptor(ctx, repository+"/"+ref.String(), body)
	if err != nil {
		return nil, err
	}
	digestDescriptor := referenceDescriptor
	if !ref.IsDigest() {
		digestDescriptor, err = c.buildDescriptor(ctx, repository+"/"+manifestDigest.String(), body)
		if err != nil {
			return nil, err
		}
	}

	result := &ManifestResult{
		Digest:    manifestDigest,
		MediaType: mediaType,
		Size:      int64(len(body)),
		InfoHash:  referenceDescriptor.InfoHash,
	}

	previous, err := c.commitManifest(ctx, repository, ref, manifestDigest, body, referenceDescriptor, digestDescriptor, options)
	if err != nil {
		return nil, err
	}
	result.Previous = previous

	logger := slogcontext.FromCtx(ctx)
	logger.Info("manifest stored",
		"media_type", mediaType,
		"size", len(body),
		"info_hash", referenceDescriptor.InfoHash,
		"previous", previous,
	)

	c.seed(ctx, body, referenceDescriptor)
	return result, nil
}

// commitManifest persists a manifest under the repository lock. The
// compare-and-swap check comes first, so a rejected tag update writes
// nothing. Digest-addressed values are saved next, then the tag mirrors,
// and the repository record last: GetManifest resolves through the
// record, so nothing is reachable before it is complete.
func (c *Coordinator) commitManifest(ctx context.Context, repository string, ref Reference, manifestDigest digest.Digest, body []byte, referenceDescriptor, digestDescriptor *torrent.Descriptor, options PutManifestOptions) (digest.Digest, error) {
	unlock := c.repositoryLocks.Lock(repository)
	defer unlock()

	now := c.clock.Now()
	record, err := c.loadRepository(ctx, repository)
	created := false
	switch {
	case errors.Is(err, ErrNotFound):
		record = newRepository(repository, now)
		created = true
	case err != nil:
		return "", err
	}

	var previous digest.Digest
	if !ref.IsDigest() {
		previous = record.Tags[ref.Tag]
		if options.ExpectedPrevious != "" && previous != options.ExpectedPrevious {
			current := string(previous)
			if current == "" {
				current = "nothing"
			}
			return "", fmt.Errorf("%w: tag %s:%s is bound to %s, expected %s",
				ErrConflict, repository, ref.Tag, current, options.ExpectedPrevious)
		}
	}

	if err := c.store.Save(ctx, manifestKey(repository, manifestDigest.String()), body); err != nil {
		return "", ioFailure(err, "saving manifest %s", manifestDigest)
	}
	if err := c.store.Save(ctx, manifestDescriptorKey(repository, manifestDigest.String()), digestDescriptor.Encoded); err != nil {
		return "", ioFailure(err, "saving descriptor for manifest %s", manifestDigest)
	}

	if ref.IsDigest() {
		if created {
			return "", c.saveRepository(ctx, record)
		}
		return "", nil
	}

	if err := c.store.Save(ctx, manifestKey(repository, ref.Tag), body); err != nil {
		return "", ioFailure(err, "saving manifest %s:%s", repository, ref.Tag)
	}
	if err := c.store.Save(ctx, manifestDescriptorKey(repository, ref.Tag), referenceDescriptor.Encoded); err != nil {
		return "", ioFailure(err, "saving descriptor for %s:%s", repository, ref.Tag)
	}

	record.Tags[ref.Tag] = manifestDigest
	record.UpdatedAt = now
	if err := c.saveRepository(ctx, record); err != nil {
		return "", err
	}
	return previous, nil
}

// Manifest is a manifest read back from the store.
type Manifest struct {
	Digest    digest.Digest
	MediaType string
	Body      []byte
	Manifest  ocispec.Manifest
}

// GetManifest resolves reference within repository and returns the
// verified manifest.
func (c *Coordinator) GetManifest(ctx context.Context, repository, reference string) (*Manifest, error) {
	manifestDigest, err := c.resolve(ctx, repository, reference)
	if err != nil {
		return nil, err
	}

	key := manifestKey(repository, manifestDigest.String())
	body, err := c.loadVerifiedManifest(ctx, key, manifestDigest)
	if err != nil {
		return nil, err
	}

	manifest, mediaType, err := ParseManifest(c.addressor, body)
	if err != nil {
		return nil, fmt.Errorf("stored manifest %s: %w", manifestDigest, err)
	}

	return &Manifest{
		Digest:    manifestDigest,
		MediaType: mediaType,
		Body:      body,
		Manifest:  manifest,
	}, nil
}

// resolve maps a reference to a manifest digest. The repository must
// exist; a tag must be bound.
func (c *Coordinator) resolve(ctx context.Context, repository, reference string) (digest.Digest, error) {
	if err := ValidateRepositoryName(repository); err != nil {
		return "", err
	}
	ref, err := ParseReference(c.addressor, reference)
	if err != nil {
		return "", err
	}

	record, err := c.loadRepository(ctx, repository)
	if err != nil {
		return "", err
	}
	if ref.IsDigest() {
		return ref.Digest, nil
	}

	bound, ok := record.Tags[ref.Tag]
	if !ok {
		return "", fmt.Errorf("tag %s:%s: %w", repository, ref.Tag, ErrNotFound)
	}
	return bound, nil
}

func (c *Coordinator) loadVerifiedManifest(ctx context.Context, key string, manifestDigest digest.Digest) ([]byte, error) {
	if c.manifests != nil {
		if cached, ok := c.manifests.Get(key); ok {
			return bytes.Clone(cached.([]byte)), nil
		}
	}

	body, err := c.store.Load(ctx, key)
	if errors.Is(err, artifactstore.ErrNotFound) {
		return nil, fmt.Errorf("manifest %s: %w", manifestDigest, ErrNotFound)
	}
	if err != nil {
		return nil, ioFailure(err, "loading manifest %s", manifestDigest)
	}

	if err := c.verify(ctx, manifestDigest, body); err != nil {
		return nil, fmt.Errorf("manifest at %s: %w", key, err)
	}

	if c.manifests != nil {
		c.manifests.SetDefault(key, bytes.Clone(body))
	}
	return body, nil
}

// BlobResult describes a stored blob.
type BlobResult struct {
	Digest   digest.Digest
	Size     int64
	InfoHash digest.Digest

	// Existed is true when intact identical content was already stored.
	Existed bool
}

// PutBlob stores payload under digestParam after checking that payload
// hashes to it. Nothing is written on mismatch.
func (c *Coordinator) PutBlob(ctx context.Context, digestParam string, payload []byte) (*BlobResult, error) {
	expected, err := c.addressor.Parse(digestParam)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDigestMismatch, err)
	}
	if c.maxBlobBytes > 0 && int64(len(payload)) > c.maxBlobBytes {
		return nil, fmt.Errorf("%w: blob is %d bytes, limit is %d", ErrTooLarge, len(payload), c.maxBlobBytes)
	}

	computed, err := c.digest(ctx, payload)
	if err != nil {
		return nil, err
	}
	if computed != expected {
		return nil, fmt.Errorf("%w: expected %s, payload digests to %s", ErrDigestMismatch, expected, computed)
	}

	ctx = slogcontext.With(ctx, "digest", computed)

	descriptor, err := c.buildDescriptor(ctx, computed.String(), payload)
	if err != nil {
		return nil, err
	}

	existed, err := c.blobIntact(ctx, computed)
	if err != nil {
		return nil, err
	}
	if !existed {
		if err := c.store.Save(ctx, blobKey(computed), payload); err != nil {
			return nil, ioFailure(err, "saving blob %s", computed)
		}
	}
	if err := c.store.Save(ctx, blobDescriptorKey(computed), descriptor.Encoded); err != nil {
		return nil, ioFailure(err, "saving descriptor for blob %s", computed)
	}

	slogcontext.FromCtx(ctx).Info("blob stored",
		"size", len(payload),
		"info_hash", descriptor.InfoHash,
		"existed", existed,
	)

	c.seed(ctx, payload, descriptor)
	return &BlobResult{
		Digest:   computed,
		Size:     int64(len(payload)),
		InfoHash: descriptor.InfoHash,
		Existed:  existed,
	}, nil
}

// blobIntact reports whether blobDigest is stored with matching content.
// Corrupt content reads as absent so the caller rewrites it.
func (c *Coordinator) blobIntact(ctx context.Context, blobDigest digest.Digest) (bool, error) {
	existing, err := c.store.Load(ctx, blobKey(blobDigest))
	if errors.Is(err, artifactstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, ioFailure(err, "checking blob %s", blobDigest)
	}
	if err := c.verify(ctx, blobDigest, existing); err != nil {
		if errors.Is(err, ErrIntegrity) {
			slogcontext.FromCtx(ctx).Warn("repairing corrupt blob", "error", err)
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetBlob returns the verified content of a blob.
func (c *Coordinator) GetBlob(ctx context.Context, digestParam string) ([]byte, error) {
	blobDigest, err := c.addressor.Parse(digestParam)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDigestMismatch, err)
	}

	content, err := c.store.Load(ctx, blobKey(blobDigest))
	if errors.Is(err, artifactstore.ErrNotFound) {
		return nil, fmt.Errorf("blob %s: %w", blobDigest, ErrNotFound)
	}
	if err != nil {
		return nil, ioFailure(err, "loading blob %s", blobDigest)
	}
	if err := c.verify(ctx, blobDigest, content); err != nil {
		return nil, fmt.Errorf("blob %s: %w", blobDigest, err)
	}
	return content, nil
}

// BlobInfo is the metadata HEAD requests need.
type BlobInfo struct {
	Digest digest.Digest
	Size   int64
}

// StatBlob returns a blob's size without verifying its content.
func (c *Coordinator) StatBlob(ctx context.Context, digestParam string) (*BlobInfo, error) {
	blobDigest, err := c.addressor.Parse(digestParam)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDigestMismatch, err)
	}

	content, err := c.store.Load(ctx, blobKey(blobDigest))
	if errors.Is(err, artifactstore.ErrNotFound) {
		return nil, fmt.Errorf("blob %s: %w", blobDigest, ErrNotFound)
	}
	if err != nil {
		return nil, ioFailure(err, "loading blob %s", blobDigest)
	}
	return &BlobInfo{Digest: blobDigest, Size: int64(len(content))}, nil
}

// GetManifestDescriptor returns the descriptor for a manifest reference.
// A tag's descriptor always describes the manifest the repository record
// binds it to.
func (c *Coordinator) GetManifestDescriptor(ctx context.Context, repository, reference string) (*torrent.Descriptor, error) {
	manifestDigest, err := c.resolve(ctx, repository, reference)
	if err != nil {
		return nil, err
	}
	// resolve accepted reference verbatim as a tag or canonical digest.
	name := repository + "/" + reference
	descriptor, err := c.loadDescriptor(ctx, manifestDescriptorKey(repository, reference), name)
	if contentaddr.IsDigest(reference) {
		return descriptor, err
	}

	// The tag descriptor is saved before the record commits, so a failed
	// push can leave one describing a manifest the tag never bound.
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrIntegrity) {
		return nil, err
	}
	body, bodyErr := c.loadVerifiedManifest(ctx, manifestKey(repository, manifestDigest.String()), manifestDigest)
	if bodyErr != nil {
		return nil, bodyErr
	}
	if err == nil {
		mismatch := descriptor.VerifyContent(body)
		if mismatch == nil {
			return descriptor, nil
		}
		err = mismatch
	}

	slogcontext.FromCtx(ctx).Warn("tag descriptor does not match binding, rebuilding",
		"repository", repository,
		"tag", reference,
		"digest", manifestDigest,
		"error", err,
	)
	return c.buildDescriptor(ctx, name, body)
}

// GetBlobDescriptor returns the stored descriptor for a blob.
func (c *Coordinator) GetBlobDescriptor(ctx context.Context, digestParam string) (*torrent.Descriptor, error) {
	blobDigest, err := c.addressor.Parse(digestParam)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDigestMismatch, err)
	}
	return c.loadDescriptor(ctx, blobDescriptorKey(blobDigest), blobDigest.String())
}

func (c *Coordinator) loadDescriptor(ctx context.Context, key, name string) (*torrent.Descriptor, error) {
	data, err := c.store.Load(ctx, key)
	if errors.Is(err, artifactstore.ErrNotFound) {
		return nil, fmt.Errorf("descriptor for %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, ioFailure(err, "loading descriptor for %s", name)
	}

	descriptor, err := torrent.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: descriptor at %s: %w", ErrIntegrity, key, err)
	}
	if descriptor.Info.Name != name {
		return nil, fmt.Errorf("%w: descriptor at %s names %q", ErrIntegrity, key, descriptor.Info.Name)
	}
	return descriptor, nil
}

// CreateRepository creates an empty repository. An existing repository
// is left untouched and ErrConflict is returned.
func (c *Coordinator) CreateRepository(ctx context.Context, name string) (*Repository, error) {
	if err := ValidateRepositoryName(name); err != nil {
		return nil, err
	}

	unlock := c.repositoryLocks.Lock(name)
	defer unlock()

	exists, err := c.store.Exists(ctx, repositoryKey(name))
	if err != nil {
		return nil, ioFailure(err, "checking repository %s", name)
	}
	if exists {
		return nil, fmt.Errorf("repository %s already exists: %w", name, ErrConflict)
	}

	record := newRepository(name, c.clock.Now())
	if err := c.saveRepository(ctx, record); err != nil {
		return nil, err
	}

	slogcontext.FromCtx(ctx).Info("repository created", "repository", name, "repository_id", record.ID)
	return record.clone(), nil
}

// GetRepository returns a repository record.
func (c *Coordinator) GetRepository(ctx context.Context, name string) (*Repository, error) {
	if err := ValidateRepositoryName(name); err != nil {
		return nil, err
	}
	return c.loadRepository(ctx, name)
}

// digest hashes content, on the pool when it is large.
func (c *Coordinator) digest(ctx context.Context, content []byte) (digest.Digest, error) {
	if !c.offload(content) {
		return c.addressor.Digest(content), nil
	}
	computed, err := workpool.Run(ctx, c.pool, func() (digest.Digest, error) {
		return c.addressor.Digest(content), nil
	})
	if err != nil {
		return "", fmt.Errorf("digesting %d bytes: %w", len(content), err)
	}
	return computed, nil
}

// verify checks content against expected, wrapping ErrIntegrity on
// mismatch.
func (c *Coordinator) verify(ctx context.Context, expected digest.Digest, content []byte) error {
	computed, err := c.digest(ctx, content)
	if err != nil {
		return err
	}
	if computed != expected {
		return fmt.Errorf("%w: stored content digests to %s, want %s", ErrIntegrity, computed, expected)
	}
	return nil
}

func (c *Coordinator) buildDescriptor(ctx context.Context, artifactPath string, content []byte) (*torrent.Descriptor, error) {
	build := func() (*torrent.Descriptor, error) {
		return c.builder.Build(ctx, artifactPath, content, c.pieceLength)
	}

	var descriptor *torrent.Descriptor
	var err error
	if c.offload(content) {
		descriptor, err = workpool.Run(ctx, c.pool, build)
	} else {
		descriptor, err = build()
	}
	if err != nil {
		return nil, fmt.Errorf("building descriptor for %s: %w", artifactPath, err)
	}
	return descriptor, nil
}

func (c *Coordinator) offload(content []byte) bool {
	return c.pool != nil && int64(len(content)) >= c.offloadThreshold
}

// seed hands a committed artifact to the seeder. Failures are logged
// only; the write has already succeeded.
func (c *Coordinator) seed(ctx context.Context, content []byte, descriptor *torrent.Descriptor) {
	request := SeedRequest{Content: content, Descriptor: descriptor}
	if err := c.seeder.Seed(ctx, request); err != nil {
		slogcontext.FromCtx(ctx).Warn("seed request dropped",
			"info_hash", descriptor.InfoHash,
			"error", err,
		)
	}
}
