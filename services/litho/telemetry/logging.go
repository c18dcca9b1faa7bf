// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// LoggerWithTrace copies the active span's trace_id and span_id onto
// the logger, so a run's log lines land next to its exported spans.
// With no valid span in ctx the logger comes back unchanged; a nil
// logger falls back to slog.Default.
//
// Thread Safety: Safe for concurrent use.
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if ctx == nil {
		return logger
	}

	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return logger
	}
	return logger.With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}

// LoggerWithRun returns a logger carrying trace context plus the sweep
// run ID, so one run's lines group together across components.
//
// Thread Safety: Safe for concurrent use.
func LoggerWithRun(ctx context.Context, logger *slog.Logger, runID string) *slog.Logger {
	return LoggerWithTrace(ctx, logger).With(
		slog.String("run_id", runID),
	)
}
