// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sweep batch-evaluates one pipeline stage across a grid of one
// or two input variables on a dedicated worker goroutine.
//
// # Description
//
// The worker owns the swept variables and the target stage's cache while
// it runs. Per grid point it takes the engine mutex, sets the swept
// variables (which synchronously cascades invalidation into the target),
// computes the target, and appends the result in strict grid order.
// Because mutation and computation happen on the same goroutine under
// one lock, there is no wait for invalidation to propagate; if the
// target is still cached after mutation the subscription table simply
// does not cover the swept variable, and the worker logs that the point
// used a stale cache.
//
// A failing point records a nil entry and the sweep continues. Abort is
// cooperative, observed between points, never inside an in-flight
// computation. Both termination paths restore the variables to their
// pre-sweep values, publish one immutable Result on the results channel,
// and release the pipeline's sweep slot.
//
// # Thread Safety
//
// At most one sweep runs per pipeline; Start enforces that through the
// pipeline's sweep slot. While a sweep is active, nothing else may
// mutate the swept variables. Abort and Stop are safe from any
// goroutine.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/Lithograph/services/litho/events"
	"github.com/AleutianAI/Lithograph/services/litho/pipeline"
)

var tracer = otel.Tracer("lithograph.sweep")

// Worker drives one sweep on its own goroutine and owns the sweep state
// until it hands the Result back.
type Worker struct {
	pipe   *pipeline.Pipeline
	spec   Spec
	logger *slog.Logger
	runID  string

	// axisValues caches each axis's grid; the second axis, when
	// present, is the faster-varying one.
	axisValues [][]float64
	total      int
	originals  []float64

	// mu serializes the mutate, staleness check, compute sequence of
	// one grid point against any observer of the same state.
	mu      sync.Mutex
	aborted atomic.Bool

	results chan *Result
	done    chan struct{}
}

// Start validates the spec, claims the pipeline's sweep slot, and
// launches the worker.
//
// Description:
//
//	The swept variables' current values are backed up before the worker
//	starts, so even an immediately aborted sweep restores them exactly.
//	The returned worker publishes exactly one Result on Results(), on
//	completion or abort alike.
//
// Inputs:
//
//	ctx - Cancels the sweep between grid points, like Abort.
//	pipe - The pipeline owning the target stage and variables.
//	spec - What to sweep. Must validate.
//
// Outputs:
//
//	*Worker - The running worker.
//	error - Validation failure, or pipeline.ErrSweepActive when another
//	  sweep already holds the slot.
func Start(ctx context.Context, pipe *pipeline.Pipeline, spec Spec) (*Worker, error) {
	if pipe == nil {
		return nil, fmt.Errorf("sweep: pipeline must not be nil")
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	release, err := pipe.AcquireSweep()
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()[:12]
	w := &Worker{
		pipe:    pipe,
		spec:    spec,
		logger:  pipe.Logger().With(slog.String("component", "sweep"), slog.String("run_id", runID)),
		runID:   runID,
		results: make(chan *Result, 1),
		done:    make(chan struct{}),
	}

	w.axisValues = make([][]float64, len(spec.Axes))
	w.total = 1
	w.originals = make([]float64, len(spec.Axes))
	for i, a := range spec.Axes {
		w.axisValues[i] = a.Values()
		w.total *= len(w.axisValues[i])
		w.originals[i] = a.Variable.Value()
	}

	pipe.Events().SetRunID(runID)
	pipe.Events().Emit(events.TypeSweepStarted, events.SweepStartedData{
		Target:    spec.Target.Name(),
		Variables: spec.VariableNames(),
		Points:    w.total,
	})
	w.logger.Info("sweep started",
		slog.String("target", spec.Target.Name()),
		slog.Any("variables", spec.VariableNames()),
		slog.Int("points", w.total),
	)

	go w.run(ctx, release)
	return w, nil
}

// Results returns the channel carrying the single Result.
func (w *Worker) Results() <-chan *Result { return w.results }

// Done closes when the worker goroutine has exited.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Abort requests cooperative cancellation. The point in flight finishes;
// no further point starts. Safe from any goroutine, at any time.
func (w *Worker) Abort() { w.aborted.Store(true) }

// Stop aborts and then blocks until the worker goroutine has exited.
func (w *Worker) Stop() {
	w.Abort()
	<-w.done
}

// Aborted reports whether cancellation was requested.
func (w *Worker) Aborted() bool { return w.aborted.Load() }

// Total returns the full grid size.
func (w *Worker) Total() int { return w.total }

// coordinates decodes flat index i, first axis outer.
func (w *Worker) coordinates(i int) []float64 {
	coords := make([]float64, len(w.axisValues))
	if len(w.axisValues) == 1 {
		coords[0] = w.axisValues[0][i]
		return coords
	}
	inner := len(w.axisValues[1])
	coords[0] = w.axisValues[0][i/inner]
	coords[1] = w.axisValues[1][i%inner]
	return coords
}

func (w *Worker) run(ctx context.Context, release func()) {
	defer close(w.done)
	defer release()

	ctx, span := tracer.Start(ctx, "litho.sweep.run",
		trace.WithAttributes(
			attribute.String("sweep.run_id", w.runID),
			attribute.String("sweep.target", w.spec.Target.Name()),
			attribute.Int("sweep.points", w.total),
		))
	defer span.End()

	// An in-flight computation always finishes; cancellation is
	// observed only between grid points.
	calcCtx := context.WithoutCancel(ctx)

	started := time.Now()
	res := &Result{
		RunID:     w.runID,
		Target:    w.spec.Target.Name(),
		Variables: w.spec.VariableNames(),
		Total:     w.total,
		Points:    make([]PointResult, 0, w.total),
	}

	for i := 0; i < w.total; i++ {
		coords := w.coordinates(i)

		w.mu.Lock()
		for j, a := range w.spec.Axes {
			a.Variable.Set(coords[j])
		}
		if w.spec.Target.State() == pipeline.StateCached {
			// The subscription table does not reach the target from a
			// swept variable; this point returns the cached result.
			w.logger.Warn("target not invalidated by swept variables, result may be stale",
				slog.String("target", w.spec.Target.Name()),
				slog.Int("point", i),
			)
		}

		if w.aborted.Load() || ctx.Err() != nil {
			w.restoreLocked()
			w.mu.Unlock()
			res.Aborted = true
			res.Duration = time.Since(started)
			w.finishAborted(span, res)
			return
		}

		value, err := w.spec.Target.Calculate(calcCtx)
		point := PointResult{Index: i, Coordinates: coords, Value: value}
		if err != nil {
			point.Value = nil
			point.Err = err
			res.Failed++
			w.logger.Warn("grid point failed",
				slog.Int("point", i),
				slog.Any("coordinates", coords),
				slog.String("error", err.Error()),
			)
		}
		res.Points = append(res.Points, point)
		w.mu.Unlock()

		w.pipe.Events().Emit(events.TypePointCompleted, events.PointCompletedData{
			Index:       i,
			Total:       w.total,
			Coordinates: coords,
			Failed:      err != nil,
		})
	}

	w.mu.Lock()
	w.restoreLocked()
	w.mu.Unlock()

	res.Duration = time.Since(started)
	span.SetAttributes(
		attribute.Int("sweep.completed", res.Completed()),
		attribute.Int("sweep.failed", res.Failed),
	)
	w.pipe.Events().Emit(events.TypeSweepCompleted, events.SweepCompletedData{
		Points:   res.Completed(),
		Failed:   res.Failed,
		Duration: res.Duration,
	})
	w.logger.Info("sweep completed",
		slog.Int("points", res.Completed()),
		slog.Int("failed", res.Failed),
		slog.Duration("duration", res.Duration),
	)
	w.results <- res
}

func (w *Worker) finishAborted(span trace.Span, res *Result) {
	span.SetAttributes(
		attribute.Bool("sweep.aborted", true),
		attribute.Int("sweep.completed", res.Completed()),
	)
	w.pipe.Events().Emit(events.TypeSweepAborted, events.SweepAbortedData{
		Completed: res.Completed(),
		Total:     res.Total,
	})
	w.logger.Info("sweep aborted",
		slog.Int("completed", res.Completed()),
		slog.Int("total", res.Total),
	)
	w.results <- res
}

// restoreLocked puts every swept variable back to its pre-sweep value.
// The sets fire the normal invalidation cascade, leaving the pipeline
// consistent with the restored inputs. Caller holds mu.
func (w *Worker) restoreLocked() {
	for j, a := range w.spec.Axes {
		a.Variable.Set(w.originals[j])
	}
}
