// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package physics

import (
	"fmt"
	"math/cmplx"
)

// Order is a single diffraction order of the periodic mask.
type Order struct {
	// M is the order index, 0 for the undiffracted beam.
	M int
	// CX is the direction cosine m*lambda/pitch.
	CX float64
	// Amplitude is the complex Fourier coefficient of the mask at this
	// order.
	Amplitude complex128
}

// DiffractionPattern is the set of mask orders the projection lens
// collects.
type DiffractionPattern struct {
	Wavelength      float64 // nm
	NumericAperture float64
	Pitch           float64 // nm
	Orders          []Order
}

func (d *DiffractionPattern) String() string {
	return fmt.Sprintf("diffraction: %d orders within NA %.3g (pitch %g nm, wavelength %g nm)",
		len(d.Orders), d.NumericAperture, d.Pitch, d.Wavelength)
}

// Image is a one-dimensional intensity cross-section, one value per
// lateral grid point. Intensity is relative to the open frame, so a
// fully clear mask images to 1.
type Image struct {
	X         []float64 // nm
	Intensity []float64
}

func (im *Image) String() string {
	lo, hi := minMax(im.Intensity)
	return fmt.Sprintf("image: %d points, intensity %.4g..%.4g, contrast %.3g",
		len(im.X), lo, hi, im.Contrast())
}

// Min returns the lowest intensity sample.
func (im *Image) Min() float64 {
	lo, _ := minMax(im.Intensity)
	return lo
}

// Max returns the highest intensity sample.
func (im *Image) Max() float64 {
	_, hi := minMax(im.Intensity)
	return hi
}

// Contrast returns (max-min)/(max+min), zero for a flat image.
func (im *Image) Contrast() float64 {
	lo, hi := minMax(im.Intensity)
	if hi+lo == 0 {
		return 0
	}
	return (hi - lo) / (hi + lo)
}

// DepthProfile is the standing wave electric field through the resist
// film, top surface first.
type DepthProfile struct {
	Z     []float64 // nm, 0 at the resist top
	Field []complex128
}

func (dp *DepthProfile) String() string {
	in := dp.Intensities()
	lo, hi := minMax(in)
	return fmt.Sprintf("standing waves: %d depths, relative intensity %.4g..%.4g",
		len(dp.Z), lo, hi)
}

// Intensities returns |E|^2 at every depth.
func (dp *DepthProfile) Intensities() []float64 {
	out := make([]float64, len(dp.Field))
	for i, e := range dp.Field {
		a := cmplx.Abs(e)
		out[i] = a * a
	}
	return out
}

// Volume is a scalar field over the lateral/depth grid,
// Values[ix][iz]. Quantity names what the scalar is, for display.
type Volume struct {
	Quantity string
	X        []float64 // nm
	Z        []float64 // nm, 0 at the resist top
	Values   [][]float64
}

func (v *Volume) String() string {
	lo, hi := v.MinMax()
	return fmt.Sprintf("%s: %dx%d grid, %.4g..%.4g",
		v.Quantity, len(v.X), len(v.Z), lo, hi)
}

// MinMax returns the extreme values over the whole grid.
func (v *Volume) MinMax() (float64, float64) {
	first := true
	var lo, hi float64
	for _, col := range v.Values {
		for _, x := range col {
			if first {
				lo, hi = x, x
				first = false
				continue
			}
			if x < lo {
				lo = x
			}
			if x > hi {
				hi = x
			}
		}
	}
	return lo, hi
}

// Contours holds, for every lateral position, the cumulative time the
// developer needs to reach each depth. ClearTime[ix][iz] is seconds;
// the last depth row is the substrate.
type Contours struct {
	X         []float64 // nm
	Z         []float64 // nm
	ClearTime [][]float64
}

func (c *Contours) String() string {
	bottom := make([]float64, len(c.ClearTime))
	for i, col := range c.ClearTime {
		bottom[i] = col[len(col)-1]
	}
	lo, hi := minMax(bottom)
	return fmt.Sprintf("develop contours: %dx%d grid, time to substrate %.4g..%.4g s",
		len(c.X), len(c.Z), lo, hi)
}

// BottomTime returns the time to clear through to the substrate at
// lateral index ix.
func (c *Contours) BottomTime(ix int) float64 {
	col := c.ClearTime[ix]
	return col[len(col)-1]
}

// Profile is the developed resist outline after the develop time has
// elapsed.
type Profile struct {
	X []float64 // nm
	// Depth is how far the developer front descended at each X;
	// Thickness where the film cleared through.
	Depth       []float64
	Thickness   float64 // nm
	DevelopTime float64 // s
	// Width is the lateral extent of resist still standing on the
	// substrate, the printed critical dimension.
	Width float64 // nm
}

func (p *Profile) String() string {
	return fmt.Sprintf("resist profile: width %.4g nm after %g s develop (thickness %g nm)",
		p.Width, p.DevelopTime, p.Thickness)
}

// CD returns the printed critical dimension.
func (p *Profile) CD() float64 { return p.Width }

func minMax(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	return lo, hi
}
