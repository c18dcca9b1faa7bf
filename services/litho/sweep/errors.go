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

import "errors"

var (
	// ErrNilTarget indicates the spec names no target stage.
	ErrNilTarget = errors.New("sweep target stage must not be nil")

	// ErrAxisCount indicates the spec has zero or more than two axes.
	ErrAxisCount = errors.New("sweep requires one or two axes")

	// ErrNilVariable indicates an axis without a variable.
	ErrNilVariable = errors.New("sweep axis variable must not be nil")

	// ErrBadInterval indicates a zero or negative step.
	ErrBadInterval = errors.New("sweep interval must be positive")

	// ErrBadRange indicates start beyond stop.
	ErrBadRange = errors.New("sweep start must not exceed stop")

	// ErrDuplicateVariable indicates both axes sweep the same variable.
	ErrDuplicateVariable = errors.New("sweep axes must use distinct variables")
)
