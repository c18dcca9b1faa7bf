// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package events provides typed notifications for pipeline and sweep
// progress.
//
// Events let terminal UIs, log sinks, and tests observe stage invalidation
// and sweep progress without coupling to the pipeline or sweep internals.
// Registration is explicit on an Emitter instance; there is no process-wide
// event bus.
//
// Thread Safety:
//
//	All types in this package are safe for concurrent use.
package events

import (
	"time"
)

// Type identifies the kind of event.
type Type string

const (
	// TypeStageInvalidated is emitted after a stage's cached result is
	// cleared and its successors have finished their own invalidation.
	TypeStageInvalidated Type = "stage_invalidated"

	// TypeStageCalculated is emitted when a stage's Calculate returns
	// successfully, whether computed fresh or served from cache.
	TypeStageCalculated Type = "stage_calculated"

	// TypeSweepStarted is emitted once when a sweep begins iterating.
	TypeSweepStarted Type = "sweep_started"

	// TypePointCompleted is emitted after each grid point, successful or
	// failed, strictly before the next point's mutation begins.
	TypePointCompleted Type = "point_completed"

	// TypeSweepCompleted is emitted when the final grid point finished and
	// the swept variables have been restored.
	TypeSweepCompleted Type = "sweep_completed"

	// TypeSweepAborted is emitted when a sweep stops early on request,
	// after the swept variables have been restored.
	TypeSweepAborted Type = "sweep_aborted"
)

// Event is one notification.
//
// Events are immutable after creation; handlers must not retain and mutate
// the Data payload.
type Event struct {
	// ID uniquely identifies this event.
	ID string `json:"id"`

	// Type identifies the kind of event.
	Type Type `json:"type"`

	// RunID links the event to a sweep run, empty outside of sweeps.
	RunID string `json:"run_id,omitempty"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"timestamp"`

	// Data is the typed payload: one of StageInvalidatedData,
	// StageCalculatedData, SweepStartedData, PointCompletedData,
	// SweepCompletedData, or SweepAbortedData.
	Data any `json:"data,omitempty"`
}

// StageInvalidatedData is the payload for TypeStageInvalidated.
type StageInvalidatedData struct {
	// Stage is the invalidated stage's name.
	Stage string `json:"stage"`
}

// StageCalculatedData is the payload for TypeStageCalculated.
type StageCalculatedData struct {
	// Stage is the stage's name.
	Stage string `json:"stage"`

	// FromCache is true when the stored result was returned without
	// invoking the compute function.
	FromCache bool `json:"from_cache"`

	// Duration is how long the call took.
	Duration time.Duration `json:"duration"`
}

// SweepStartedData is the payload for TypeSweepStarted.
type SweepStartedData struct {
	// Target is the swept stage's name.
	Target string `json:"target"`

	// Variables are the swept variable names, outer axis first.
	Variables []string `json:"variables"`

	// Points is the total grid size.
	Points int `json:"points"`
}

// PointCompletedData is the payload for TypePointCompleted.
type PointCompletedData struct {
	// Index is the zero-based grid point index in iteration order.
	Index int `json:"index"`

	// Total is the grid size.
	Total int `json:"total"`

	// Coordinates are the swept variable values at this point, outer
	// axis first.
	Coordinates []float64 `json:"coordinates"`

	// Failed is true when this point's computation returned an error and
	// an empty entry was recorded.
	Failed bool `json:"failed"`
}

// SweepCompletedData is the payload for TypeSweepCompleted.
type SweepCompletedData struct {
	// Points is the number of grid points evaluated.
	Points int `json:"points"`

	// Failed is the number of points whose computation failed.
	Failed int `json:"failed"`

	// Duration is the wall time of the whole sweep.
	Duration time.Duration `json:"duration"`
}

// SweepAbortedData is the payload for TypeSweepAborted.
type SweepAbortedData struct {
	// Completed is the number of grid points evaluated before the abort
	// was observed.
	Completed int `json:"completed"`

	// Total is the grid size that was planned.
	Total int `json:"total"`
}
