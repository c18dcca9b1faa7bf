// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package physics implements the stage numerics behind the simulation
// pipeline: scalar diffraction of a line/space mask, thin-film standing
// waves at normal incidence, Dill exposure, a Gaussian post-exposure
// bake, and Mack development.
//
// # Description
//
// The model is deliberately one-dimensional in the mask plane. The mask
// is a periodic line centered in its pitch; every result is resolved on
// the lateral grid over one period and, where depth matters, on the
// depth grid through the resist film. Intensities are relative to the
// open frame.
//
// # Thread Safety
//
// An Engine is stateless between calls; it reads the shared Parameters
// on every invocation. Callers serialize invocations the same way they
// serialize parameter mutation.
package physics

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/cmplx"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/Lithograph/services/litho/pipeline"
)

// Engine evaluates the eight pipeline stages from the current parameter
// values.
type Engine struct {
	params *pipeline.Parameters
	logger *slog.Logger
}

var _ pipeline.Engine = (*Engine)(nil)

// NewEngine builds an engine over the given parameters.
func NewEngine(params *pipeline.Parameters, logger *slog.Logger) (*Engine, error) {
	if params == nil {
		return nil, fmt.Errorf("physics: params must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		params: params,
		logger: logger.With(slog.String("component", "physics")),
	}, nil
}

// StandingWaves computes the electric field through the resist film for
// a unit plane wave at normal incidence.
func (e *Engine) StandingWaves(ctx context.Context) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	z, err := e.zGrid()
	if err != nil {
		return nil, err
	}
	field, err := e.standingWaveField(z)
	if err != nil {
		return nil, err
	}
	return &DepthProfile{Z: z, Field: field}, nil
}

// Diffraction computes the mask's Fourier orders the lens collects.
//
// Description:
//
//	The mask is a line of the configured width, transmittance, and
//	phase centered in the pitch, clear elsewhere. Order m is kept while
//	its direction cosine m*lambda/pitch stays within the numeric
//	aperture.
func (e *Engine) Diffraction(ctx context.Context) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lam := e.params.Wavelength.Value()
	na := e.params.NumericAperture.Value()
	pitch := e.params.Pitch.Value()
	width := e.params.FeatureWidth.Value()
	trans := e.params.MaskTransmittance.Value()
	phase := e.params.MaskPhase.Value()

	if lam <= 0 {
		return nil, fmt.Errorf("diffraction: wavelength must be positive, got %g", lam)
	}
	if na <= 0 || na >= 1 {
		return nil, fmt.Errorf("diffraction: numeric aperture must be in (0, 1), got %g", na)
	}
	if pitch <= 0 {
		return nil, fmt.Errorf("diffraction: pitch must be positive, got %g", pitch)
	}
	if width < 0 || width > pitch {
		return nil, fmt.Errorf("diffraction: feature width %g outside [0, pitch %g]", width, pitch)
	}

	line := complex(trans, 0) * cmplx.Exp(complex(0, phase*math.Pi/180))
	duty := width / pitch

	mmax := int(math.Floor(na*pitch/lam + 1e-9))
	orders := make([]Order, 0, 2*mmax+1)
	for m := -mmax; m <= mmax; m++ {
		cx := float64(m) * lam / pitch
		var amp complex128
		if m == 0 {
			amp = 1 + (line-1)*complex(duty, 0)
		} else {
			u := math.Pi * float64(m) * duty
			sinc := 1.0
			if u != 0 {
				sinc = math.Sin(u) / u
			}
			amp = (line - 1) * complex(duty*sinc, 0)
		}
		orders = append(orders, Order{M: m, CX: cx, Amplitude: amp})
	}

	e.logger.Debug("collected diffraction orders",
		slog.Int("orders", len(orders)),
		slog.Float64("cutoff", na*pitch/lam),
	)
	return &DiffractionPattern{
		Wavelength:      lam,
		NumericAperture: na,
		Pitch:           pitch,
		Orders:          orders,
	}, nil
}

// AerialImage computes the intensity cross-section at the wafer plane.
func (e *Engine) AerialImage(ctx context.Context, diffraction any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pat, ok := diffraction.(*DiffractionPattern)
	if !ok {
		return nil, fmt.Errorf("aerial image: unexpected input %T", diffraction)
	}

	x, err := e.xGrid()
	if err != nil {
		return nil, err
	}
	flare := e.params.Flare.Value()
	if flare < 0 || flare >= 1 {
		return nil, fmt.Errorf("aerial image: flare must be in [0, 1), got %g", flare)
	}

	intensity := lateralIntensity(pat, x, e.params.Focus.Value())
	for i := range intensity {
		intensity[i] = (1-flare)*intensity[i] + flare
	}
	return &Image{X: x, Intensity: intensity}, nil
}

// ImageInResist computes the intensity volume inside the film: the
// lateral image refocused at each depth, scaled by the standing wave
// envelope. Depth slices are evaluated in parallel.
func (e *Engine) ImageInResist(ctx context.Context, diffraction any) (any, error) {
	pat, ok := diffraction.(*DiffractionPattern)
	if !ok {
		return nil, fmt.Errorf("image in resist: unexpected input %T", diffraction)
	}

	x, err := e.xGrid()
	if err != nil {
		return nil, err
	}
	z, err := e.zGrid()
	if err != nil {
		return nil, err
	}
	sw, err := e.standingWaveField(z)
	if err != nil {
		return nil, err
	}

	nRe := e.params.ResistRefractionRe.Value()
	if nRe <= 0 {
		return nil, fmt.Errorf("image in resist: resist refraction must be positive, got %g", nRe)
	}
	flare := e.params.Flare.Value()
	if flare < 0 || flare >= 1 {
		return nil, fmt.Errorf("image in resist: flare must be in [0, 1), got %g", flare)
	}
	focus := e.params.Focus.Value()

	vol := &Volume{
		Quantity: "relative intensity",
		X:        x,
		Z:        z,
		Values:   make([][]float64, len(x)),
	}
	for ix := range vol.Values {
		vol.Values[ix] = make([]float64, len(z))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for iz := range z {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			lateral := lateralIntensity(pat, x, focus+z[iz]/nRe)
			a := cmplx.Abs(sw[iz])
			envelope := a * a
			for ix := range x {
				vol.Values[ix][iz] = ((1-flare)*lateral[ix] + flare) * envelope
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.logger.Debug("resolved image in resist",
		slog.Int("lateral_points", len(x)),
		slog.Int("depth_slices", len(z)),
	)
	return vol, nil
}

// LatentImage applies the Dill exposure model: the normalized inhibitor
// concentration after the dose, exp(-C*dose*I).
func (e *Engine) LatentImage(ctx context.Context, imageInResist any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vol, ok := imageInResist.(*Volume)
	if !ok {
		return nil, fmt.Errorf("latent image: unexpected input %T", imageInResist)
	}

	c := e.params.DillC.Value()
	dose := e.params.Dose.Value()
	if c < 0 {
		return nil, fmt.Errorf("latent image: Dill C must not be negative, got %g", c)
	}
	if dose < 0 {
		return nil, fmt.Errorf("latent image: dose must not be negative, got %g", dose)
	}

	out := &Volume{
		Quantity: "inhibitor concentration",
		X:        vol.X,
		Z:        vol.Z,
		Values:   make([][]float64, len(vol.Values)),
	}
	for ix, col := range vol.Values {
		row := make([]float64, len(col))
		for iz, intensity := range col {
			row[iz] = math.Exp(-c * dose * intensity)
		}
		out.Values[ix] = row
	}
	return out, nil
}

// PebLatentImage diffuses the latent image during the post-exposure
// bake: a separable Gaussian of sigma = sqrt(2*D*t), circular along the
// periodic lateral axis and mirrored at the film surfaces.
func (e *Engine) PebLatentImage(ctx context.Context, latentImage any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vol, ok := latentImage.(*Volume)
	if !ok {
		return nil, fmt.Errorf("peb latent image: unexpected input %T", latentImage)
	}

	diff := e.params.PEBDiffusivity.Value()
	bake := e.params.PEBTime.Value()
	if diff < 0 || bake < 0 {
		return nil, fmt.Errorf("peb latent image: diffusivity %g and time %g must not be negative", diff, bake)
	}

	out := &Volume{Quantity: vol.Quantity, X: vol.X, Z: vol.Z}
	sigma := math.Sqrt(2 * diff * bake)
	if sigma == 0 || len(vol.X) < 2 || len(vol.Z) < 2 {
		out.Values = cloneValues(vol.Values)
		return out, nil
	}

	kx := gaussianKernel(sigma, vol.X[1]-vol.X[0])
	kz := gaussianKernel(sigma, vol.Z[1]-vol.Z[0])
	e.logger.Debug("diffusing latent image",
		slog.Float64("sigma_nm", sigma),
		slog.Int("kernel_x", len(kx)),
		slog.Int("kernel_z", len(kz)),
	)

	nx, nz := len(vol.X), len(vol.Z)
	blurredX := make([][]float64, nx)
	for iz := 0; iz < nz; iz++ {
		column := make([]float64, nx)
		for ix := 0; ix < nx; ix++ {
			column[ix] = vol.Values[ix][iz]
		}
		smoothed := convolveCircular(column, kx)
		for ix := 0; ix < nx; ix++ {
			if blurredX[ix] == nil {
				blurredX[ix] = make([]float64, nz)
			}
			blurredX[ix][iz] = smoothed[ix]
		}
	}

	out.Values = make([][]float64, nx)
	for ix := 0; ix < nx; ix++ {
		out.Values[ix] = convolveReflect(blurredX[ix], kz)
	}
	return out, nil
}

// DevelopContours integrates the Mack dissolution rate down each
// lateral column: ClearTime[ix][iz] is how long the developer needs to
// descend from the surface to depth z[iz].
func (e *Engine) DevelopContours(ctx context.Context, pebLatentImage any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vol, ok := pebLatentImage.(*Volume)
	if !ok {
		return nil, fmt.Errorf("develop contours: unexpected input %T", pebLatentImage)
	}

	rmax := e.params.MackRMax.Value()
	rmin := e.params.MackRMin.Value()
	mth := e.params.MackMTh.Value()
	n := e.params.MackN.Value()
	if n <= 1 {
		return nil, fmt.Errorf("develop contours: Mack selectivity must exceed 1, got %g", n)
	}
	if rmax <= 0 || rmin < 0 || rmin > rmax {
		return nil, fmt.Errorf("develop contours: rates out of range (rmin %g, rmax %g)", rmin, rmax)
	}
	if mth <= 0 || mth >= 1 {
		return nil, fmt.Errorf("develop contours: threshold concentration must be in (0, 1), got %g", mth)
	}

	a := (n + 1) / (n - 1) * math.Pow(1-mth, n)
	rate := func(m float64) float64 {
		if m < 0 {
			m = 0
		} else if m > 1 {
			m = 1
		}
		p := math.Pow(1-m, n)
		return rmax*(a+1)*p/(a+p) + rmin
	}

	contours := &Contours{
		X:         vol.X,
		Z:         vol.Z,
		ClearTime: make([][]float64, len(vol.Values)),
	}
	for ix, col := range vol.Values {
		times := make([]float64, len(col))
		prev := 1 / rate(col[0])
		for iz := 1; iz < len(col); iz++ {
			cur := 1 / rate(col[iz])
			times[iz] = times[iz-1] + (vol.Z[iz]-vol.Z[iz-1])*(prev+cur)/2
			prev = cur
		}
		contours.ClearTime[ix] = times
	}
	return contours, nil
}

// ResistProfile thresholds the contours at the develop time and reports
// the developed front plus the printed width at the substrate.
func (e *Engine) ResistProfile(ctx context.Context, contours any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cont, ok := contours.(*Contours)
	if !ok {
		return nil, fmt.Errorf("resist profile: unexpected input %T", contours)
	}
	if len(cont.X) == 0 || len(cont.Z) < 2 {
		return nil, fmt.Errorf("resist profile: degenerate contour grid %dx%d", len(cont.X), len(cont.Z))
	}

	tdev := e.params.DevelopTime.Value()
	if tdev < 0 {
		return nil, fmt.Errorf("resist profile: develop time must not be negative, got %g", tdev)
	}

	thickness := cont.Z[len(cont.Z)-1]
	depth := make([]float64, len(cont.X))
	for ix, times := range cont.ClearTime {
		depth[ix] = frontDepth(cont.Z, times, tdev)
	}

	return &Profile{
		X:           cont.X,
		Depth:       depth,
		Thickness:   thickness,
		DevelopTime: tdev,
		Width:       standingWidth(cont, tdev),
	}, nil
}

// ---------------------------------------------------------------------------
// Grids
// ---------------------------------------------------------------------------

// xGrid spans one period, half open: -pitch/2 inclusive to +pitch/2
// exclusive, so circular convolution sees each physical point once.
func (e *Engine) xGrid() ([]float64, error) {
	pitch := e.params.Pitch.Value()
	step := e.params.GridXY.Value()
	if pitch <= 0 {
		return nil, fmt.Errorf("grid: pitch must be positive, got %g", pitch)
	}
	if step <= 0 || step > pitch/4 {
		return nil, fmt.Errorf("grid: lateral step %g must be in (0, pitch/4 %g]", step, pitch/4)
	}
	n := int(math.Round(pitch / step))
	x := make([]float64, n)
	for i := range x {
		x[i] = -pitch/2 + float64(i)*step
	}
	return x, nil
}

// zGrid spans the film, top surface to substrate. The substrate depth is
// always the final sample even when the step does not divide the
// thickness.
func (e *Engine) zGrid() ([]float64, error) {
	thickness := e.params.ResistThickness.Value()
	step := e.params.GridZ.Value()
	if thickness <= 0 {
		return nil, fmt.Errorf("grid: resist thickness must be positive, got %g", thickness)
	}
	if step <= 0 || step > thickness/2 {
		return nil, fmt.Errorf("grid: depth step %g must be in (0, thickness/2 %g]", step, thickness/2)
	}
	var z []float64
	for v, k := 0.0, 0; v <= thickness; k++ {
		z = append(z, v)
		v = float64(k+1) * step
	}
	if last := z[len(z)-1]; thickness-last > 1e-9*thickness {
		z = append(z, thickness)
	}
	return z, nil
}

// ---------------------------------------------------------------------------
// Optics
// ---------------------------------------------------------------------------

// lateralIntensity sums the collected orders at each lateral position,
// each order carrying its defocus phase, and returns |E|^2.
func lateralIntensity(pat *DiffractionPattern, x []float64, focus float64) []float64 {
	shifted := make([]complex128, len(pat.Orders))
	for j, o := range pat.Orders {
		cz := 1 - o.CX*o.CX
		if cz < 0 {
			cz = 0
		}
		phase := 2 * math.Pi / pat.Wavelength * focus * (math.Sqrt(cz) - 1)
		shifted[j] = o.Amplitude * cmplx.Exp(complex(0, phase))
	}

	out := make([]float64, len(x))
	for i, xx := range x {
		var field complex128
		for j, o := range pat.Orders {
			field += shifted[j] * cmplx.Exp(complex(0, 2*math.Pi*o.CX*xx/pat.Wavelength))
		}
		out[i] = real(field)*real(field) + imag(field)*imag(field)
	}
	return out
}

// standingWaveField evaluates the thin-film field at each depth: the
// transmitted wave plus the wave reflected off the substrate, for a
// unit incident amplitude.
//
// The film's imaginary index combines the configured base loss with the
// unexposed Dill absorption A+B.
func (e *Engine) standingWaveField(z []float64) ([]complex128, error) {
	lam := e.params.Wavelength.Value()
	if lam <= 0 {
		return nil, fmt.Errorf("standing waves: wavelength must be positive, got %g", lam)
	}
	envN := e.params.EnvironmentRefraction.Value()
	if envN <= 0 {
		return nil, fmt.Errorf("standing waves: environment refraction must be positive, got %g", envN)
	}

	kDill := (e.params.DillA.Value() + e.params.DillB.Value()) * (lam / 1000) / (4 * math.Pi)
	n1 := complex(envN, 0)
	n2 := complex(e.params.ResistRefractionRe.Value(), -(e.params.ResistRefractionIm.Value() + kDill))
	n3 := complex(e.params.SubstrateRefractionRe.Value(), -e.params.SubstrateRefractionIm.Value())

	rho12 := (n1 - n2) / (n1 + n2)
	rho23 := (n2 - n3) / (n2 + n3)
	tau12 := 2 * n1 / (n1 + n2)

	thickness := z[len(z)-1]
	travel := func(depth float64) complex128 {
		return cmplx.Exp(complex(0, -2*math.Pi/lam) * n2 * complex(depth, 0))
	}
	zd := travel(thickness)
	denom := 1 + rho12*rho23*zd*zd

	field := make([]complex128, len(z))
	for i, depth := range z {
		down := travel(depth)
		field[i] = tau12 * (down + rho23*zd*zd/down) / denom
	}
	return field, nil
}

// ---------------------------------------------------------------------------
// Diffusion
// ---------------------------------------------------------------------------

// gaussianKernel samples a normalized Gaussian out to three sigma on
// the given grid step.
func gaussianKernel(sigma, step float64) []float64 {
	half := int(math.Ceil(3 * sigma / step))
	if half < 1 {
		return []float64{1}
	}
	kernel := make([]float64, 2*half+1)
	var sum float64
	for k := -half; k <= half; k++ {
		d := float64(k) * step
		w := math.Exp(-d * d / (2 * sigma * sigma))
		kernel[k+half] = w
		sum += w
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// convolveCircular wraps around the ends; the lateral axis is one
// period of an infinite pattern.
func convolveCircular(data, kernel []float64) []float64 {
	n := len(data)
	half := len(kernel) / 2
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var acc float64
		for k, w := range kernel {
			idx := (i + k - half) % n
			if idx < 0 {
				idx += n
			}
			acc += w * data[idx]
		}
		out[i] = acc
	}
	return out
}

// convolveReflect mirrors at both ends; nothing diffuses out of the
// film surfaces.
func convolveReflect(data, kernel []float64) []float64 {
	n := len(data)
	half := len(kernel) / 2
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var acc float64
		for k, w := range kernel {
			idx := i + k - half
			for idx < 0 || idx >= n {
				if idx < 0 {
					idx = -idx - 1
				}
				if idx >= n {
					idx = 2*n - idx - 1
				}
			}
			acc += w * data[idx]
		}
		out[i] = acc
	}
	return out
}

// ---------------------------------------------------------------------------
// Development
// ---------------------------------------------------------------------------

// frontDepth interpolates how deep the developer descends in tdev
// seconds; the full thickness when the column clears through.
func frontDepth(z, times []float64, tdev float64) float64 {
	last := len(times) - 1
	if times[last] <= tdev {
		return z[last]
	}
	for k := 1; k <= last; k++ {
		if times[k] > tdev {
			tPrev, tCur := capInf(times[k-1]), capInf(times[k])
			if tCur == tPrev {
				return z[k-1]
			}
			return z[k-1] + (z[k]-z[k-1])*(tdev-tPrev)/(tCur-tPrev)
		}
	}
	return z[last]
}

// standingWidth measures the lateral extent of columns that do not
// clear to the substrate in the develop time, interpolating the edge
// crossings and wrapping across the period boundary.
func standingWidth(cont *Contours, tdev float64) float64 {
	n := len(cont.X)
	if n < 2 {
		return 0
	}
	step := cont.X[1] - cont.X[0]

	bottom := make([]float64, n)
	for i := range bottom {
		bottom[i] = capInf(cont.BottomTime(i))
	}

	var width float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		si := bottom[i] > tdev
		sj := bottom[j] > tdev
		switch {
		case si && sj:
			width += step
		case si && !sj:
			width += step * (tdev - bottom[i]) / (bottom[j] - bottom[i])
		case !si && sj:
			width += step * (1 - (tdev-bottom[i])/(bottom[j]-bottom[i]))
		}
	}
	return width
}

// capInf keeps interpolation finite where the rate model returned an
// infinite clear time.
func capInf(t float64) float64 {
	if math.IsInf(t, 1) {
		return math.MaxFloat64 / 4
	}
	return t
}

func cloneValues(values [][]float64) [][]float64 {
	out := make([][]float64, len(values))
	for i, col := range values {
		out[i] = append([]float64(nil), col...)
	}
	return out
}
