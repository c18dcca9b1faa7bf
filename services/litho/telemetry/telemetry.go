// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry wires up the OpenTelemetry SDK for the simulator.
// OpenTelemetry IS the abstraction layer: the pipeline and sweep worker
// call otel.Tracer and otel.Meter directly, and where the data goes is
// decided here through exporter configuration, never in their code.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

var (
	// ErrNilContext indicates a nil context was passed to Init.
	ErrNilContext = errors.New("context must not be nil")

	// ErrUnknownExporter indicates an unrecognized exporter name.
	ErrUnknownExporter = errors.New("unknown exporter type")
)

// Config selects the exporters and the identity attached to every
// span and metric.
type Config struct {
	// ServiceName is the service.name resource attribute.
	ServiceName string

	// ServiceVersion is the service.version resource attribute.
	ServiceVersion string

	// Environment is the deployment.environment resource attribute.
	Environment string

	// TraceExporter picks the span destination: "otlp", "stdout",
	// or "none".
	TraceExporter string

	// MetricExporter picks the metric destination: "prometheus",
	// "stdout", or "none".
	MetricExporter string

	// OTLPEndpoint is the collector address for the otlp trace
	// exporter.
	OTLPEndpoint string

	// OTLPInsecure dials the collector without TLS.
	OTLPInsecure bool
}

// DefaultConfig returns defaults for an interactive tool: both
// exporters off, so a plain run never dials a collector. Environment
// variables opt in:
//   - LITHO_ENV: environment name
//   - OTEL_TRACES_EXPORTER: trace exporter type
//   - OTEL_METRICS_EXPORTER: metric exporter type
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint
func DefaultConfig() Config {
	return Config{
		ServiceName:    "lithograph",
		ServiceVersion: "1.0.0",
		Environment:    envOr("LITHO_ENV", "development"),
		TraceExporter:  envOr("OTEL_TRACES_EXPORTER", "none"),
		MetricExporter: envOr("OTEL_METRICS_EXPORTER", "none"),
		OTLPEndpoint:   envOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTLPInsecure:   true,
	}
}

// Init builds the tracer and meter providers cfg asks for and installs
// them as the otel globals. Neither global is touched until both
// providers came up, so a failed Init leaves the process on the
// default no-op providers.
//
// Inputs:
//
//	ctx - Context for exporter connections.
//	cfg - Exporter selection, usually DefaultConfig() plus overrides.
//
// Outputs:
//
//	func - Shutdown hook flushing both providers. Call it on exit.
//	error - Non-nil when an exporter could not be built.
//
// Thread Safety: Call once at startup, before anything traces.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	)

	var tp *trace.TracerProvider
	if cfg.TraceExporter != "none" {
		var err error
		tp, err = newTracerProvider(ctx, cfg, res)
		if err != nil {
			return nil, fmt.Errorf("init tracer: %w", err)
		}
	}

	var mp *metric.MeterProvider
	if cfg.MetricExporter != "none" {
		var err error
		mp, err = newMeterProvider(cfg, res)
		if err != nil {
			if tp != nil {
				_ = tp.Shutdown(ctx)
			}
			return nil, fmt.Errorf("init meter: %w", err)
		}
	}

	var shutdowns []func(context.Context) error
	if tp != nil {
		otel.SetTracerProvider(tp)
		shutdowns = append(shutdowns, tp.Shutdown)
	}
	if mp != nil {
		otel.SetMeterProvider(mp)
		shutdowns = append(shutdowns, mp.Shutdown)
	}

	return func(ctx context.Context) error {
		var errs []error
		for _, stop := range shutdowns {
			if err := stop(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}, nil
}

// newTracerProvider builds a batching provider around the configured
// span exporter.
func newTracerProvider(ctx context.Context, cfg Config, res *resource.Resource) (*trace.TracerProvider, error) {
	var exporter trace.SpanExporter
	var err error

	switch cfg.TraceExporter {
	case "otlp":
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)

	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.TraceExporter)
	}
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}

	return trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.AlwaysSample()),
	), nil
}

// promHandler holds the exposition handler once the prometheus
// exporter registers. Read through MetricsHandler.
var (
	promMu      sync.RWMutex
	promHandler http.Handler
)

// MetricsHandler returns the /metrics HTTP handler, nil until Init has
// run with the prometheus metric exporter.
//
// Thread Safety: Safe for concurrent use.
func MetricsHandler() http.Handler {
	promMu.RLock()
	defer promMu.RUnlock()
	return promHandler
}

// newMeterProvider builds the provider for the configured metric
// exporter. The prometheus path registers with the default registry
// and publishes the handler MetricsHandler serves.
func newMeterProvider(cfg Config, res *resource.Resource) (*metric.MeterProvider, error) {
	switch cfg.MetricExporter {
	case "prometheus":
		exporter, err := promexporter.New()
		if err != nil {
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}

		promMu.Lock()
		promHandler = promhttp.Handler()
		promMu.Unlock()

		return metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(exporter),
		), nil

	case "stdout":
		exporter, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout metric exporter: %w", err)
		}

		return metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(metric.NewPeriodicReader(exporter)),
		), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.MetricExporter)
	}
}

// envOr reads key from the environment, falling back when unset or
// empty.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
