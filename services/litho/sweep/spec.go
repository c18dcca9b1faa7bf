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

import (
	"fmt"

	"github.com/AleutianAI/Lithograph/services/litho/pipeline"
	"github.com/AleutianAI/Lithograph/services/litho/variable"
)

// Axis is one swept variable with its closed arithmetic range.
type Axis struct {
	Variable *variable.Variable
	Start    float64
	Stop     float64
	Interval float64
}

// Values returns the grid coordinates start, start+interval, ...,
// continuing while the next value is <= stop. Each value is formed by
// multiplication, not accumulation, so the sequence does not drift; a
// final point that floating point places just past stop is excluded,
// never snapped onto it.
func (a Axis) Values() []float64 {
	var out []float64
	for k := 0; ; k++ {
		v := a.Start + float64(k)*a.Interval
		if v > a.Stop {
			break
		}
		out = append(out, v)
	}
	return out
}

// Count returns the number of grid coordinates on this axis.
func (a Axis) Count() int {
	return len(a.Values())
}

func (a Axis) validate() error {
	if a.Variable == nil {
		return ErrNilVariable
	}
	if a.Interval <= 0 {
		return fmt.Errorf("%w: %s has interval %g", ErrBadInterval, a.Variable.Name(), a.Interval)
	}
	if a.Start > a.Stop {
		return fmt.Errorf("%w: %s has range %g..%g", ErrBadRange, a.Variable.Name(), a.Start, a.Stop)
	}
	return nil
}

// Spec describes a sweep: one target stage evaluated over the cartesian
// grid of one or two axes. The first axis is the outer, slower-varying
// one.
type Spec struct {
	Target *pipeline.Stage
	Axes   []Axis
}

// Validate checks the spec. A valid spec always describes at least one
// grid point.
func (s Spec) Validate() error {
	if s.Target == nil {
		return ErrNilTarget
	}
	if len(s.Axes) < 1 || len(s.Axes) > 2 {
		return fmt.Errorf("%w: got %d", ErrAxisCount, len(s.Axes))
	}
	for _, a := range s.Axes {
		if err := a.validate(); err != nil {
			return err
		}
	}
	if len(s.Axes) == 2 && s.Axes[0].Variable == s.Axes[1].Variable {
		return fmt.Errorf("%w: %s", ErrDuplicateVariable, s.Axes[0].Variable.Name())
	}
	return nil
}

// Points returns the total grid size.
func (s Spec) Points() int {
	n := 1
	for _, a := range s.Axes {
		n *= a.Count()
	}
	return n
}

// VariableNames returns the swept variable names in axis order.
func (s Spec) VariableNames() []string {
	names := make([]string, len(s.Axes))
	for i, a := range s.Axes {
		names[i] = a.Variable.Name()
	}
	return names
}
