// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides process scaffolding for the registry daemon:
// the structured logger and the HTTP server lifecycle.
//
// The daemon composes these in its own run function rather than
// inheriting a framework:
//
//   - [NewLogger] builds the JSON slog logger every component shares and
//     installs it as the slog default.
//   - [HTTPServer] binds a TCP listener, signals readiness, serves until
//     the context is cancelled, and drains in-flight requests.
//   - [RequestLogging] attaches a request-scoped logger (request id,
//     method, path) to each request context with slog-context, so
//     deeper layers log through slogcontext.FromCtx without threading a
//     logger through every call.
package service
