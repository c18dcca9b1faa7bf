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
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/Lithograph/services/litho/sweep"
)

// Metrics contains pre-defined sweep metrics. Per-stage compute and
// cache metrics are registered by the pipeline itself; these cover the
// batch layer. All metrics use the "litho_" prefix.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// SweepsTotal counts finished sweeps by target and outcome.
	SweepsTotal metric.Int64Counter

	// SweepPointsTotal counts computed grid points by target.
	SweepPointsTotal metric.Int64Counter

	// SweepPointFailuresTotal counts grid points whose compute failed.
	SweepPointFailuresTotal metric.Int64Counter

	// SweepDuration records whole-sweep duration in seconds.
	SweepDuration metric.Float64Histogram
}

// NewMetrics creates a Metrics instance with all metrics registered.
//
// Inputs:
//
//	meter - The OTel meter to use for metric registration.
//
// Outputs:
//
//	*Metrics - The metrics instance with all instruments initialized.
//	error - Non-nil if metric registration fails.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.SweepsTotal, err = meter.Int64Counter(
		"litho_sweeps_total",
		metric.WithDescription("Total finished sweeps"),
		metric.WithUnit("{sweep}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create sweeps_total: %w", err)
	}

	m.SweepPointsTotal, err = meter.Int64Counter(
		"litho_sweep_points_total",
		metric.WithDescription("Total computed sweep grid points"),
		metric.WithUnit("{point}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create sweep_points_total: %w", err)
	}

	m.SweepPointFailuresTotal, err = meter.Int64Counter(
		"litho_sweep_point_failures_total",
		metric.WithDescription("Sweep grid points whose compute failed"),
		metric.WithUnit("{point}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create sweep_point_failures_total: %w", err)
	}

	m.SweepDuration, err = meter.Float64Histogram(
		"litho_sweep_duration_seconds",
		metric.WithDescription("Whole-sweep duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, fmt.Errorf("create sweep_duration: %w", err)
	}

	return m, nil
}

// ObserveSweep records one finished sweep. Nil results are ignored.
func (m *Metrics) ObserveSweep(ctx context.Context, res *sweep.Result) {
	if m == nil || res == nil {
		return
	}

	outcome := "completed"
	if res.Aborted {
		outcome = "aborted"
	}
	target := attribute.String("target", res.Target)

	m.SweepsTotal.Add(ctx, 1, metric.WithAttributes(
		target,
		attribute.String("outcome", outcome),
	))
	m.SweepPointsTotal.Add(ctx, int64(res.Completed()), metric.WithAttributes(target))
	if res.Failed > 0 {
		m.SweepPointFailuresTotal.Add(ctx, int64(res.Failed), metric.WithAttributes(target))
	}
	m.SweepDuration.Record(ctx, res.Duration.Seconds(), metric.WithAttributes(target))
}
