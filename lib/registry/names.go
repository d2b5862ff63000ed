// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"fmt"
	"strings"

	"github.com/opencontainers/go-digest"
	"oras.land/oras-go/v2/registry"

	"github.com/bureau-foundation/swarmreg/lib/contentaddr"
)

// reservedSuffixes end the file names the coordinator writes inside a
// repository's key space. A repository path component with one of them
// would collide with a sibling repository's files.
var reservedSuffixes = []string{".json", ".torrent", ".cbor"}

// ValidateRepositoryName checks name against the OCI distribution
// repository grammar (lowercase components separated by slashes).
func ValidateRepositoryName(name string) error {
	reference := registry.Reference{Repository: name}
	if err := reference.ValidateRepository(); err != nil {
		return fmt.Errorf("%w: repository %q: %w", ErrInvalidName, name, err)
	}
	for component := range strings.SplitSeq(name, "/") {
		for _, suffix := range reservedSuffixes {
			if strings.HasSuffix(component, suffix) {
				return fmt.Errorf("%w: repository %q: component %q ends in reserved suffix %s",
					ErrInvalidName, name, component, suffix)
			}
		}
	}
	return nil
}

// Reference is a parsed manifest reference: either a tag or a digest.
type Reference struct {
	// Tag is set for tag references.
	Tag string

	// Digest is set for digest references.
	Digest digest.Digest
}

// IsDigest reports whether the reference names a manifest by digest.
func (r Reference) IsDigest() bool {
	return r.Digest != ""
}

// String returns the reference as it appears in URLs and storage keys.
func (r Reference) String() string {
	if r.IsDigest() {
		return r.Digest.String()
	}
	return r.Tag
}

// ParseReference classifies value as a tag or a digest. Tags follow the
// OCI tag grammar (ErrInvalidName otherwise). Digests must be well formed
// and use the registry's algorithm (ErrDigestMismatch otherwise).
func ParseReference(addressor *contentaddr.Addressor, value string) (Reference, error) {
	if contentaddr.IsDigest(value) {
		parsed, err := addressor.Parse(value)
		if err != nil {
			return Reference{}, fmt.Errorf("%w: %w", ErrDigestMismatch, err)
		}
		return Reference{Digest: parsed}, nil
	}

	reference := registry.Reference{Reference: value}
	if err := reference.ValidateReferenceAsTag(); err != nil {
		return Reference{}, fmt.Errorf("%w: tag %q: %w", ErrInvalidName, value, err)
	}
	return Reference{Tag: value}, nil
}

func blobKey(blobDigest digest.Digest) string {
	return "blobs/" + blobDigest.String()
}

func blobDescriptorKey(blobDigest digest.Digest) string {
	return "torrents/" + blobDigest.String() + ".torrent"
}

func manifestKey(repository, reference string) string {
	return "manifests/" + repository + "/" + reference + ".json"
}

func manifestDescriptorKey(repository, reference string) string {
	return "torrents/" + repository + "/" + reference + ".torrent"
}

func repositoryKey(repository string) string {
	return "repositories/" + repository + "/_repository.cbor"
}
