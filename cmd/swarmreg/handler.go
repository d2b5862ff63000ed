// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/opencontainers/go-digest"
	slogcontext "github.com/veqryn/slog-context"

	"github.com/bureau-foundation/swarmreg/lib/registry"
	"github.com/bureau-foundation/swarmreg/lib/torrent"
	"github.com/bureau-foundation/swarmreg/lib/version"
)

// Response headers beyond the standard ones.
const (
	headerAPIVersion    = "Docker-Distribution-API-Version"
	headerContentDigest = "Docker-Content-Digest"
	headerInfoHash      = "X-Swarm-Info-Hash"

	torrentMediaType = "application/x-bittorrent"
)

// Handler serves the registry HTTP API over a Coordinator.
type Handler struct {
	coordinator      *registry.Coordinator
	maxManifestBytes int64
	maxBlobBytes     int64
}

// NewHandler returns the API handler. Request bodies larger than the
// given limits are rejected with 413 before they are fully read.
func NewHandler(coordinator *registry.Coordinator, maxManifestBytes, maxBlobBytes int64) *Handler {
	return &Handler{
		coordinator:      coordinator,
		maxManifestBytes: maxManifestBytes,
		maxBlobBytes:     maxBlobBytes,
	}
}

type routeKind int

const (
	routeBase routeKind = iota
	routeRepository
	routeManifest
	routeManifestTorrent
	routeBlob
	routeBlobTorrent
)

// route is a parsed API path. Repository names may contain slashes, so
// the path is parsed from its end: the resource segment ("manifests" or
// "blobs") is the second-to-last segment, or third-to-last when the path
// ends in "/torrent".
type route struct {
	kind       routeKind
	repository string
	reference  string
}

func parseRoute(path string) (route, bool) {
	if path == "/v2" || path == "/v2/" {
		return route{kind: routeBase}, true
	}
	rest, found := strings.CutPrefix(path, "/v2/")
	if !found || rest == "" {
		return route{}, false
	}

	segments := strings.Split(rest, "/")
	count := len(segments)

	if count >= 4 && segments[count-1] == "torrent" {
		repository := strings.Join(segments[:count-3], "/")
		switch segments[count-3] {
		case "manifests":
			return route{kind: routeManifestTorrent, repository: repository, reference: segments[count-2]}, true
		case "blobs":
			return route{kind: routeBlobTorrent, repository: repository, reference: segments[count-2]}, true
		}
	}

	if count >= 3 {
		repository := strings.Join(segments[:count-2], "/")
		switch segments[count-2] {
		case "manifests":
			return route{kind: routeManifest, repository: repository, reference: segments[count-1]}, true
		case "blobs":
			return route{kind: routeBlob, repository: repository, reference: segments[count-1]}, true
		}
	}

	return route{kind: routeRepository, repository: rest}, true
}

func (h *Handler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	writer.Header().Set(headerAPIVersion, "registry/2.0")
	writer.Header().Set("Server", version.UserAgent())

	parsed, ok := parseRoute(request.URL.Path)
	if !ok {
		writeError(writer, request, http.StatusNotFound, "NOT_FOUND", "unknown API path", request.URL.Path)
		return
	}
	if parsed.repository != "" {
		request = request.WithContext(slogcontext.With(request.Context(), "repository", parsed.repository))
	}

	switch parsed.kind {
	case routeBase:
		if !allowMethods(writer, request, http.MethodGet, http.MethodHead) {
			return
		}
		writeJSON(writer, request, http.StatusOK, struct{}{})

	case routeRepository:
		if !allowMethods(writer, request, http.MethodGet, http.MethodPut) {
			return
		}
		if request.Method == http.MethodPut {
			h.createRepository(writer, request, parsed)
		} else {
			h.getRepository(writer, request, parsed)
		}

	case routeManifest:
		if !allowMethods(writer, request, http.MethodGet, http.MethodHead, http.MethodPut) {
			return
		}
		if request.Method == http.MethodPut {
			h.putManifest(writer, request, parsed)
		} else {
			h.getManifest(writer, request, parsed)
		}

	case routeBlob:
		if !allowMethods(writer, request, http.MethodGet, http.MethodHead, http.MethodPut) {
			return
		}
		switch request.Method {
		case http.MethodPut:
			h.putBlob(writer, request, parsed)
		case http.MethodHead:
			h.headBlob(writer, request, parsed)
		default:
			h.getBlob(writer, request, parsed)
		}

	case routeManifestTorrent, routeBlobTorrent:
		if !allowMethods(writer, request, http.MethodGet, http.MethodHead) {
			return
		}
		h.getDescriptor(writer, request, parsed)
	}
}

func (h *Handler) createRepository(writer http.ResponseWriter, request *http.Request, parsed route) {
	record, err := h.coordinator.CreateRepository(request.Context(), parsed.repository)
	if err != nil {
		writeRegistryError(writer, request, err, "NAME_UNKNOWN")
		return
	}
	writer.Header().Set("Location", "/v2/"+parsed.repository)
	writeJSON(writer, request, http.StatusCreated, record)
}

func (h *Handler) getRepository(writer http.ResponseWriter, request *http.Request, parsed route) {
	record, err := h.coordinator.GetRepository(request.Context(), parsed.repository)
	if err != nil {
		writeRegistryError(writer, request, err, "NAME_UNKNOWN")
		return
	}
	writeJSON(writer, request, http.StatusOK, record)
}

func (h *Handler) putManifest(writer http.ResponseWriter, request *http.Request, parsed route) {
	var options registry.PutManifestOptions
	conditional := false
	if ifMatch := request.Header.Get("If-Match"); ifMatch != "" {
		expected, err := h.coordinator.Addressor().Parse(strings.Trim(strings.TrimSpace(ifMatch), `"`))
		if err != nil {
			writeError(writer, request, http.StatusBadRequest, "DIGEST_INVALID", "If-Match must be a quoted manifest digest", err.Error())
			return
		}
		options.ExpectedPrevious = expected
		conditional = true
	}

	body, ok := readBody(writer, request, h.maxManifestBytes)
	if !ok {
		return
	}

	result, err := h.coordinator.PutManifest(request.Context(), parsed.repository, parsed.reference, body, options)
	if err != nil {
		if conditional && errors.Is(err, registry.ErrConflict) {
			writeError(writer, request, http.StatusPreconditionFailed, "PRECONDITION_FAILED", "tag is not bound to the If-Match digest", err.Error())
			return
		}
		writeRegistryError(writer, request, err, "MANIFEST_UNKNOWN")
		return
	}

	header := writer.Header()
	header.Set(headerContentDigest, result.Digest.String())
	header.Set(headerInfoHash, result.InfoHash.String())
	header.Set("Location", "/v2/"+parsed.repository+"/manifests/"+result.Digest.String())
	header.Set("Content-Length", "0")
	writer.WriteHeader(http.StatusCreated)
}

func (h *Handler) getManifest(writer http.ResponseWriter, request *http.Request, parsed route) {
	manifest, err := h.coordinator.GetManifest(request.Context(), parsed.repository, parsed.reference)
	if err != nil {
		writeRegistryError(writer, request, err, "MANIFEST_UNKNOWN")
		return
	}
	writeContent(writer, request, manifest.MediaType, manifest.Digest, manifest.Body)
}

func (h *Handler) putBlob(writer http.ResponseWriter, request *http.Request, parsed route) {
	if err := registry.ValidateRepositoryName(parsed.repository); err != nil {
		writeRegistryError(writer, request, err, "BLOB_UNKNOWN")
		return
	}

	payload, ok := readBody(writer, request, h.maxBlobBytes)
	if !ok {
		return
	}

	result, err := h.coordinator.PutBlob(request.Context(), parsed.reference, payload)
	if err != nil {
		writeRegistryError(writer, request, err, "BLOB_UNKNOWN")
		return
	}

	header := writer.Header()
	header.Set(headerContentDigest, result.Digest.String())
	header.Set(headerInfoHash, result.InfoHash.String())
	header.Set("Location", "/v2/"+parsed.repository+"/blobs/"+result.Digest.String())
	header.Set("Content-Length", "0")
	writer.WriteHeader(http.StatusCreated)
}

func (h *Handler) getBlob(writer http.ResponseWriter, request *http.Request, parsed route) {
	if err := registry.ValidateRepositoryName(parsed.repository); err != nil {
		writeRegistryError(writer, request, err, "BLOB_UNKNOWN")
		return
	}
	content, err := h.coordinator.GetBlob(request.Context(), parsed.reference)
	if err != nil {
		writeRegistryError(writer, request, err, "BLOB_UNKNOWN")
		return
	}
	writeContent(writer, request, "application/octet-stream", digest.Digest(parsed.reference), content)
}

func (h *Handler) headBlob(writer http.ResponseWriter, request *http.Request, parsed route) {
	if err := registry.ValidateRepositoryName(parsed.repository); err != nil {
		writeRegistryError(writer, request, err, "BLOB_UNKNOWN")
		return
	}
	info, err := h.coordinator.StatBlob(request.Context(), parsed.reference)
	if err != nil {
		writeRegistryError(writer, request, err, "BLOB_UNKNOWN")
		return
	}
	header := writer.Header()
	header.Set("Content-Type", "application/octet-stream")
	header.Set("Content-Length", strconv.FormatInt(info.Size, 10))
	header.Set(headerContentDigest, info.Digest.String())
	writer.WriteHeader(http.StatusOK)
}

func (h *Handler) getDescriptor(writer http.ResponseWriter, request *http.Request, parsed route) {
	var descriptor *torrent.Descriptor
	var err error
	switch parsed.kind {
	case routeManifestTorrent:
		descriptor, err = h.coordinator.GetManifestDescriptor(request.Context(), parsed.repository, parsed.reference)
	default:
		err = registry.ValidateRepositoryName(parsed.repository)
		if err == nil {
			descriptor, err = h.coordinator.GetBlobDescriptor(request.Context(), parsed.reference)
		}
	}
	if err != nil {
		writeRegistryError(writer, request, err, "TORRENT_UNKNOWN")
		return
	}

	writer.Header().Set(headerInfoHash, descriptor.InfoHash.String())
	writer.Header().Set("Content-Type", torrentMediaType)
	writer.Header().Set("Content-Length", strconv.Itoa(len(descriptor.Encoded)))
	writer.WriteHeader(http.StatusOK)
	if request.Method != http.MethodHead {
		writeBody(writer, request, descriptor.Encoded)
	}
}

// readBody buffers the whole request body up to limit bytes. On failure
// it writes the error response, discards what was read, and returns
// false.
func readBody(writer http.ResponseWriter, request *http.Request, limit int64) ([]byte, bool) {
	reader := io.Reader(request.Body)
	if limit > 0 {
		reader = http.MaxBytesReader(writer, request.Body, limit)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(writer, request, http.StatusRequestEntityTooLarge, "SIZE_INVALID",
				"request body exceeds the configured limit", strconv.FormatInt(tooLarge.Limit, 10))
			return nil, false
		}
		slogcontext.FromCtx(request.Context()).Info("upload aborted", "error", err)
		writeError(writer, request, http.StatusBadRequest, "BLOB_UPLOAD_INVALID", "reading request body failed", err.Error())
		return nil, false
	}
	return body, true
}

func writeContent(writer http.ResponseWriter, request *http.Request, mediaType string, contentDigest digest.Digest, content []byte) {
	header := writer.Header()
	header.Set("Content-Type", mediaType)
	header.Set("Content-Length", strconv.Itoa(len(content)))
	header.Set(headerContentDigest, contentDigest.String())
	writer.WriteHeader(http.StatusOK)
	if request.Method != http.MethodHead {
		writeBody(writer, request, content)
	}
}

// writeBody writes a response body after the header has been sent. A
// failure means the client went away; it is logged at debug.
func writeBody(writer http.ResponseWriter, request *http.Request, body []byte) {
	if written, err := writer.Write(body); err != nil {
		slogcontext.FromCtx(request.Context()).Debug("response write failed",
			"written", written,
			"size", len(body),
			"error", err,
		)
	}
}

func allowMethods(writer http.ResponseWriter, request *http.Request, methods ...string) bool {
	for _, method := range methods {
		if request.Method == method {
			return true
		}
	}
	writer.Header().Set("Allow", strings.Join(methods, ", "))
	writeError(writer, request, http.StatusMethodNotAllowed, "UNSUPPORTED", "method not allowed", request.Method)
	return false
}

func writeJSON(writer http.ResponseWriter, request *http.Request, status int, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		slogcontext.FromCtx(request.Context()).Error("encoding response", "error", err)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	writer.Header().Set("Content-Type", "application/json")
	writer.Header().Set("Content-Length", strconv.Itoa(len(data)))
	writer.WriteHeader(status)
	if request.Method != http.MethodHead {
		writeBody(writer, request, data)
	}
}

// errorEnvelope is the distribution API error body.
type errorEnvelope struct {
	Errors []errorDetail `json:"errors"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func writeError(writer http.ResponseWriter, request *http.Request, status int, code, message, detail string) {
	writeJSON(writer, request, status, errorEnvelope{
		Errors: []errorDetail{{Code: code, Message: message, Detail: detail}},
	})
}

// writeRegistryError maps a coordinator error to a status and error
// code. notFoundCode is the code for ErrNotFound on this route.
func writeRegistryError(writer http.ResponseWriter, request *http.Request, err error, notFoundCode string) {
	logger := slogcontext.FromCtx(request.Context())

	switch {
	case errors.Is(err, registry.ErrNotFound):
		writeError(writer, request, http.StatusNotFound, notFoundCode, "not found", err.Error())
	case errors.Is(err, registry.ErrDigestMismatch):
		writeError(writer, request, http.StatusBadRequest, "DIGEST_INVALID", "digest does not match content", err.Error())
	case errors.Is(err, registry.ErrParse):
		writeError(writer, request, http.StatusBadRequest, "MANIFEST_INVALID", "manifest invalid", err.Error())
	case errors.Is(err, registry.ErrInvalidName):
		writeError(writer, request, http.StatusBadRequest, "NAME_INVALID", "invalid repository name or tag", err.Error())
	case errors.Is(err, registry.ErrTooLarge):
		writeError(writer, request, http.StatusRequestEntityTooLarge, "SIZE_INVALID", "payload too large", err.Error())
	case errors.Is(err, registry.ErrConflict):
		writeError(writer, request, http.StatusConflict, "CONFLICT", "conflict", err.Error())
	case errors.Is(err, context.Canceled):
		logger.Info("request cancelled", "error", err)
	case errors.Is(err, registry.ErrIntegrity):
		logger.Error("stored content failed verification", "error", err)
		writeError(writer, request, http.StatusInternalServerError, "INTEGRITY_ERROR", "stored content is corrupt", "")
	default:
		logger.Error("request failed", "error", err)
		writeError(writer, request, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", "")
	}
}
