// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sweep

import "time"

// PointResult is one grid point's outcome, in iteration order.
type PointResult struct {
	// Index is the flat grid index, outer axis major.
	Index int
	// Coordinates holds the swept values for this point, axis order.
	Coordinates []float64
	// Value is the target stage's result; nil when the point failed.
	Value any
	// Err is the compute failure that nilled the value, if any.
	Err error
}

// Result is the immutable record of a finished sweep. The worker builds
// it, hands it over exactly once, and never touches it again; a
// receiver may keep it without copying.
type Result struct {
	// RunID correlates the sweep's events, logs, and exports.
	RunID string
	// Target is the swept stage's name.
	Target string
	// Variables are the swept variable names, axis order.
	Variables []string
	// Total is the full grid size. After an abort len(Points) < Total;
	// failed points keep their position, so a completed sweep always
	// has len(Points) == Total.
	Total  int
	Points []PointResult
	// Failed counts the nil entries in Points.
	Failed  int
	Aborted bool
	// Duration covers the whole run including parameter restoration.
	Duration time.Duration
}

// Completed returns how many grid points ran, successful or failed.
func (r *Result) Completed() int {
	return len(r.Points)
}
