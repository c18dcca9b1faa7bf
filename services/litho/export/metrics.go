// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package export

import (
	"math/cmplx"

	"github.com/AleutianAI/Lithograph/services/litho/physics"
)

// Columns reduces a stage result to named scalar metrics, the values a
// sweep table carries per grid point.
//
// Outputs:
//
//	[]string - Column names, stable per result type.
//	[]float64 - Values, parallel to the names.
//	bool - False when the type has no scalar reduction (or v is nil).
func Columns(v any) ([]string, []float64, bool) {
	switch r := v.(type) {
	case *physics.DiffractionPattern:
		var dc float64
		for _, o := range r.Orders {
			if o.M == 0 {
				dc = cmplx.Abs(o.Amplitude)
			}
		}
		return []string{"orders", "dc_magnitude"},
			[]float64{float64(len(r.Orders)), dc}, true

	case *physics.Image:
		return []string{"min", "max", "contrast"},
			[]float64{r.Min(), r.Max(), r.Contrast()}, true

	case *physics.DepthProfile:
		lo, hi := minMax(r.Intensities())
		return []string{"min", "max"}, []float64{lo, hi}, true

	case *physics.Volume:
		lo, hi := r.MinMax()
		return []string{"min", "max"}, []float64{lo, hi}, true

	case *physics.Contours:
		// Line center sits at x=0, mid grid; the cleared space starts
		// at the left edge.
		line := r.BottomTime(len(r.X) / 2)
		space := r.BottomTime(0)
		return []string{"bottom_time_line_s", "bottom_time_space_s"},
			[]float64{line, space}, true

	case *physics.Profile:
		center := r.Depth[len(r.Depth)/2]
		return []string{"cd_nm", "center_depth_nm"},
			[]float64{r.CD(), center}, true

	default:
		return nil, nil, false
	}
}

func minMax(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
