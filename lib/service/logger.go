// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	slogcontext "github.com/veqryn/slog-context"
)

// NewLogger creates the standard daemon logger: a JSON handler writing
// to output at the given level. It also sets the default slog logger so
// that code logging through slogcontext.FromCtx on a context without a
// logger gets the same handler.
func NewLogger(output io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

// RequestIDHeader carries the request id back to the client.
const RequestIDHeader = "X-Request-Id"

// RequestLogging wraps next so every request runs with a logger carrying
// request_id, method, and path attributes, retrievable with
// slogcontext.FromCtx. A client-supplied X-Request-Id is reused when it
// parses as a UUID; otherwise a new one is generated. Each request is
// logged once on completion with its status and duration.
func RequestLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		requestID, err := uuid.Parse(request.Header.Get(RequestIDHeader))
		if err != nil {
			requestID = uuid.New()
		}
		writer.Header().Set(RequestIDHeader, requestID.String())

		requestLogger := logger.With(
			"request_id", requestID.String(),
			"method", request.Method,
			"path", request.URL.Path,
		)
		ctx := slogcontext.NewCtx(request.Context(), requestLogger)

		recorder := &statusRecorder{ResponseWriter: writer, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(recorder, request.WithContext(ctx))

		level := slog.LevelInfo
		if recorder.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		requestLogger.Log(ctx, level, "request completed",
			"status", recorder.status,
			"bytes", recorder.written,
			"duration", time.Since(start),
		)
	})
}

// statusRecorder captures the status code and body size written by a
// handler.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(data []byte) (int, error) {
	n, err := r.ResponseWriter.Write(data)
	r.written += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
