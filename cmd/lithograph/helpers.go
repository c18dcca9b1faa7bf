// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/AleutianAI/Lithograph/pkg/logging"
	"github.com/AleutianAI/Lithograph/pkg/ux"
	"github.com/AleutianAI/Lithograph/pkg/validation"
	"github.com/AleutianAI/Lithograph/services/litho/config"
	"github.com/AleutianAI/Lithograph/services/litho/export"
	"github.com/AleutianAI/Lithograph/services/litho/physics"
	"github.com/AleutianAI/Lithograph/services/litho/pipeline"
	"github.com/AleutianAI/Lithograph/services/litho/sweep"
	"github.com/AleutianAI/Lithograph/services/litho/telemetry"
)

// defaultConfigFile is where config init writes and watch looks when
// --config is not given.
const defaultConfigFile = "lithograph.yaml"

// newLogger builds the command's logger from the global flags.
//
// quiet drops the stderr handler; file logging (--log-dir) still works,
// which is how TUI runs keep their logs.
func newLogger(service string, quiet bool) *logging.Logger {
	return logging.New(logging.Config{
		Level:   parseLogLevel(logLevel),
		LogDir:  logDir,
		Service: service,
		Quiet:   quiet,
	})
}

// parseLogLevel maps the --log-level flag to a level, defaulting to info.
func parseLogLevel(s string) logging.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return logging.LevelDebug
	case "warn", "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

// machineMode reports whether output should be plain parseable text.
func machineMode() bool {
	return ux.GetPersonality().Level == ux.PersonalityMachine
}

// buildPipeline loads the configuration and assembles a ready pipeline:
// default parameters with the configuration applied, the physics engine,
// and the stage graph on top.
func buildPipeline(logger *slog.Logger) (*pipeline.Pipeline, config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, config.Config{}, err
	}

	params := pipeline.DefaultParameters()
	cfg.Apply(params)

	engine, err := physics.NewEngine(params, logger)
	if err != nil {
		return nil, config.Config{}, err
	}
	pipe, err := pipeline.New(engine, params, logger)
	if err != nil {
		return nil, config.Config{}, err
	}
	return pipe, cfg, nil
}

// applyAssignments applies --set overrides to the parameters.
//
// # Outputs
//
//   - int: How many variables actually changed value.
//   - error: Non-nil on a malformed assignment or unknown path; earlier
//     assignments stay applied.
func applyAssignments(params *pipeline.Parameters, assignments []string) (int, error) {
	changed := 0
	for _, raw := range assignments {
		path, value, err := validation.ParseAssignment(raw)
		if err != nil {
			return changed, err
		}
		v, err := params.Resolve(path)
		if err != nil {
			return changed, err
		}
		if v.Set(value) {
			changed++
		}
	}
	return changed, nil
}

// parseAxisFlag parses one --axis flag of the form
// "group.variable=start:stop:interval" and resolves its variable.
func parseAxisFlag(params *pipeline.Parameters, raw string) (sweep.Axis, error) {
	pathPart, rangePart, ok := strings.Cut(raw, "=")
	if !ok {
		return sweep.Axis{}, fmt.Errorf("axis %q: want group.variable=start:stop:interval", raw)
	}
	path, err := validation.SanitizePath(pathPart)
	if err != nil {
		return sweep.Axis{}, err
	}
	v, err := params.Resolve(path)
	if err != nil {
		return sweep.Axis{}, err
	}

	parts := strings.Split(rangePart, ":")
	if len(parts) != 3 {
		return sweep.Axis{}, fmt.Errorf("axis %q: range wants start:stop:interval", raw)
	}
	var nums [3]float64
	for i, p := range parts {
		nums[i], err = strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return sweep.Axis{}, fmt.Errorf("axis %q: %w", raw, err)
		}
	}
	return sweep.Axis{Variable: v, Start: nums[0], Stop: nums[1], Interval: nums[2]}, nil
}

// buildSweepSpec assembles the sweep from --target/--axis flags, falling
// back to the configuration file's sweep section when no axes are given.
// A --target flag overrides the configured target either way.
func buildSweepSpec(pipe *pipeline.Pipeline, cfg config.Config) (sweep.Spec, error) {
	if len(sweepAxes) == 0 {
		if sweepTarget != "" {
			cfg.Sweep.Target = sweepTarget
		}
		return cfg.BuildSweep(pipe)
	}

	targetName := sweepTarget
	if targetName == "" {
		targetName = pipeline.StageResistProfile
	}
	target, err := pipe.Stage(targetName)
	if err != nil {
		return sweep.Spec{}, err
	}

	spec := sweep.Spec{Target: target}
	for _, raw := range sweepAxes {
		axis, err := parseAxisFlag(pipe.Params(), raw)
		if err != nil {
			return sweep.Spec{}, err
		}
		spec.Axes = append(spec.Axes, axis)
	}
	return spec, spec.Validate()
}

// setupTelemetry initializes tracing and metrics from the environment
// and, when --metrics-addr is set, serves Prometheus metrics there.
//
// The returned shutdown stops the metrics server and flushes the
// exporters. It must be called on exit.
func setupTelemetry(ctx context.Context, logger *logging.Logger) (func(context.Context) error, error) {
	tcfg := telemetry.DefaultConfig()
	if metricsAddr != "" && tcfg.MetricExporter == "none" {
		tcfg.MetricExporter = "prometheus"
	}

	shutdown, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		return nil, err
	}
	if metricsAddr == "" {
		return shutdown, nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.MetricsHandler())
	server := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", metricsAddr, "path", "/metrics")

	return func(ctx context.Context) error {
		serverErr := server.Shutdown(ctx)
		if err := shutdown(ctx); err != nil {
			return err
		}
		return serverErr
	}, nil
}

// printMetrics writes a stage result's summary metrics to stdout.
func printMetrics(stage string, value any) {
	names, values, ok := export.Columns(value)
	if !ok || len(names) == 0 {
		return
	}
	if machineMode() {
		for i, name := range names {
			fmt.Printf("%s\t%s\t%g\n", stage, name, values[i])
		}
		return
	}
	for i, name := range names {
		fmt.Printf("  %-24s %.6g\n", name, values[i])
	}
}

// columnsToMetrics converts a stage result's summary columns for JSON
// output. Results without summary columns yield nil.
func columnsToMetrics(value any) []MetricValue {
	names, values, ok := export.Columns(value)
	if !ok {
		return nil
	}
	metrics := make([]MetricValue, len(names))
	for i, name := range names {
		metrics[i] = MetricValue{Name: name, Value: values[i]}
	}
	return metrics
}
