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
	"bytes"
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AleutianAI/Lithograph/services/litho/sweep"
)

func TestDefaultConfigTurnsExportersOff(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	cfg := DefaultConfig()

	if cfg.ServiceName != "lithograph" {
		t.Errorf("ServiceName = %q, want %q", cfg.ServiceName, "lithograph")
	}
	if cfg.TraceExporter != "none" {
		t.Errorf("TraceExporter = %q, want %q", cfg.TraceExporter, "none")
	}
	if cfg.MetricExporter != "none" {
		t.Errorf("MetricExporter = %q, want %q", cfg.MetricExporter, "none")
	}
	if cfg.OTLPEndpoint != "localhost:4317" {
		t.Errorf("OTLPEndpoint = %q, want %q", cfg.OTLPEndpoint, "localhost:4317")
	}
}

func TestInitRejectsNilContext(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"

	_, err := Init(nil, cfg)
	if err != ErrNilContext {
		t.Errorf("Init(nil, cfg) error = %v, want %v", err, ErrNilContext)
	}
}

func TestInitWithExportersOff(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "none"

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if shutdown == nil {
		t.Fatal("shutdown function is nil")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}

func TestInitStdoutTraces(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "stdout"
	cfg.MetricExporter = "none"

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer shutdown(context.Background())

	if tracer := otel.Tracer("test"); tracer == nil {
		t.Error("tracer is nil")
	}
}

func TestInitUnknownTraceExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "carrier_pigeon"

	_, err := Init(context.Background(), cfg)
	if err == nil {
		t.Fatal("Init() with unknown exporter should fail")
	}
	if !strings.Contains(err.Error(), "unknown exporter type") {
		t.Errorf("error = %v, want to contain 'unknown exporter type'", err)
	}
}

func TestInitStdoutMetrics(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "stdout"

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer shutdown(context.Background())
}

func TestInitUnknownMetricExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "abacus"

	_, err := Init(context.Background(), cfg)
	if err == nil {
		t.Fatal("Init() with unknown metric exporter should fail")
	}
}

func TestMetricsHandlerNilUntilPrometheusInit(t *testing.T) {
	// Source order matters: this runs before the prometheus test below
	// installs the handler.
	if h := MetricsHandler(); h != nil {
		t.Errorf("MetricsHandler() = %v before prometheus init, want nil", h)
	}
}

func TestInitPrometheusServesExposition(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "prometheus"

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer shutdown(context.Background())

	handler := MetricsHandler()
	if handler == nil {
		t.Fatal("MetricsHandler() is nil after prometheus init")
	}

	m, err := NewMetrics(otel.Meter("lithograph_test"))
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	m.ObserveSweep(context.Background(), &sweep.Result{
		RunID:    "test",
		Target:   "aerial_image",
		Total:    4,
		Points:   make([]sweep.PointResult, 4),
		Failed:   1,
		Duration: 250 * time.Millisecond,
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, "litho_sweeps_total") {
		t.Errorf("exposition missing litho_sweeps_total:\n%s", body)
	}
	if !strings.Contains(body, "litho_sweep_point_failures_total") {
		t.Errorf("exposition missing litho_sweep_point_failures_total")
	}
}

func TestLoggerWithTraceNoSpan(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	result := LoggerWithTrace(context.Background(), logger)
	result.Info("message")

	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("log without span should not carry trace_id: %s", buf.String())
	}
}

func TestLoggerWithTraceNilLogger(t *testing.T) {
	if result := LoggerWithTrace(context.Background(), nil); result == nil {
		t.Error("LoggerWithTrace(ctx, nil) returned nil")
	}
}

func TestLoggerWithTraceActiveSpan(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	LoggerWithTrace(ctx, logger).Info("message")

	out := buf.String()
	if !strings.Contains(out, "trace_id") || !strings.Contains(out, "span_id") {
		t.Errorf("log with span missing trace fields: %s", out)
	}
}

func TestLoggerWithRun(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	LoggerWithRun(context.Background(), logger, "ab12cd34ef56").Info("message")

	if !strings.Contains(buf.String(), "ab12cd34ef56") {
		t.Errorf("log missing run_id: %s", buf.String())
	}
}

func TestEnvOr(t *testing.T) {
	t.Setenv("LITHO_TEST_KEY", "set")
	if v := envOr("LITHO_TEST_KEY", "fallback"); v != "set" {
		t.Errorf("envOr = %q, want %q", v, "set")
	}
	if v := envOr("LITHO_TEST_KEY_ABSENT", "fallback"); v != "fallback" {
		t.Errorf("envOr = %q, want %q", v, "fallback")
	}
}

func TestObserveSweep_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveSweep(context.Background(), nil)

	registered, err := NewMetrics(otel.Meter("nil_safe_test"))
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	registered.ObserveSweep(context.Background(), nil)
}
