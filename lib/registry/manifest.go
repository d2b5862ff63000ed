// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"encoding/json"
	"fmt"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/bureau-foundation/swarmreg/lib/contentaddr"
)

// dockerManifestMediaType is the Docker schema 2 manifest media type.
// It is structurally identical to the OCI image manifest and still what
// most clients push.
const dockerManifestMediaType = "application/vnd.docker.distribution.manifest.v2+json"

// ParseManifest decodes body as an image manifest and checks its
// structure: schemaVersion 2, a supported media type, and well-formed
// config and layer descriptors. Descriptor digests may use any
// algorithm go-digest knows or the addressor's own. It returns the manifest and its
// effective media type (the OCI type when the document omits one).
// Failures wrap [ErrParse].
func ParseManifest(addressor *contentaddr.Addressor, body []byte) (ocispec.Manifest, string, error) {
	var manifest ocispec.Manifest
	if err := json.Unmarshal(body, &manifest); err != nil {
		return ocispec.Manifest{}, "", fmt.Errorf("%w: decoding manifest: %w", ErrParse, err)
	}

	if manifest.SchemaVersion != 2 {
		return ocispec.Manifest{}, "", fmt.Errorf("%w: schemaVersion is %d, want 2", ErrParse, manifest.SchemaVersion)
	}

	mediaType := manifest.MediaType
	switch mediaType {
	case "":
		mediaType = ocispec.MediaTypeImageManifest
	case ocispec.MediaTypeImageManifest, dockerManifestMediaType:
	default:
		return ocispec.Manifest{}, "", fmt.Errorf("%w: unsupported manifest media type %q", ErrParse, mediaType)
	}

	if err := validateDescriptor(addressor, "config", manifest.Config); err != nil {
		return ocispec.Manifest{}, "", err
	}
	for index, layer := range manifest.Layers {
		if err := validateDescriptor(addressor, fmt.Sprintf("layers[%d]", index), layer); err != nil {
			return ocispec.Manifest{}, "", err
		}
	}

	return manifest, mediaType, nil
}

func validateDescriptor(addressor *contentaddr.Addressor, field string, descriptor ocispec.Descriptor) error {
	if descriptor.MediaType == "" {
		return fmt.Errorf("%w: %s has no mediaType", ErrParse, field)
	}
	if err := descriptor.Digest.Validate(); err != nil {
		if _, ownErr := addressor.Parse(descriptor.Digest.String()); ownErr != nil {
			return fmt.Errorf("%w: %s digest: %w", ErrParse, field, err)
		}
	}
	if descriptor.Size < 0 {
		return fmt.Errorf("%w: %s size %d is negative", ErrParse, field, descriptor.Size)
	}
	return nil
}
