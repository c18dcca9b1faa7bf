// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import "errors"

var (
	// ErrSweepActive is returned when a sweep slot is requested while
	// another sweep is still running on the same pipeline.
	ErrSweepActive = errors.New("a sweep is already active on this pipeline")

	// ErrNilCompute is returned when a stage is created without a compute
	// function.
	ErrNilCompute = errors.New("stage compute function is nil")

	// ErrNilContext is returned when Calculate is called with a nil
	// context.
	ErrNilContext = errors.New("context must not be nil")

	// ErrPredecessorBound is returned when a stage is linked to a
	// predecessor but already has one.
	ErrPredecessorBound = errors.New("stage already has a predecessor")

	// ErrUnknownStage is returned when a stage name does not exist in the
	// pipeline.
	ErrUnknownStage = errors.New("unknown stage")
)
