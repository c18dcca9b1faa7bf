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
	"context"
	"math"
	"strings"
	"testing"

	"github.com/AleutianAI/Lithograph/services/litho/pipeline"
)

func newTestEngine(t *testing.T) (*Engine, *pipeline.Parameters) {
	t.Helper()
	params := pipeline.DefaultParameters()
	eng, err := NewEngine(params, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return eng, params
}

// computeVolume evaluates diffraction and the in-resist image, the
// common prefix of the resist chain tests.
func computeVolume(t *testing.T, eng *Engine) *Volume {
	t.Helper()
	ctx := context.Background()
	pat, err := eng.Diffraction(ctx)
	if err != nil {
		t.Fatalf("Diffraction: %v", err)
	}
	vol, err := eng.ImageInResist(ctx, pat)
	if err != nil {
		t.Fatalf("ImageInResist: %v", err)
	}
	return vol.(*Volume)
}

func TestDiffractionOrderCutoff(t *testing.T) {
	eng, _ := newTestEngine(t)

	// NA*pitch/lambda = 0.65*1000/365 = 1.78: orders -1, 0, +1.
	res, err := eng.Diffraction(context.Background())
	if err != nil {
		t.Fatalf("Diffraction: %v", err)
	}
	pat := res.(*DiffractionPattern)
	if len(pat.Orders) != 3 {
		t.Fatalf("got %d orders, want 3", len(pat.Orders))
	}

	// Opaque line at half duty: c0 = 0.5, |c1| = 1/pi.
	for _, o := range pat.Orders {
		switch o.M {
		case 0:
			if math.Abs(real(o.Amplitude)-0.5) > 1e-12 {
				t.Errorf("c0 = %v, want 0.5", o.Amplitude)
			}
		case 1, -1:
			if math.Abs(real(o.Amplitude)+1/math.Pi) > 1e-12 {
				t.Errorf("c%d = %v, want %v", o.M, o.Amplitude, -1/math.Pi)
			}
			if math.Abs(math.Abs(o.CX)-0.365) > 1e-12 {
				t.Errorf("cx of order %d = %v", o.M, o.CX)
			}
		}
	}
}

func TestDiffractionTightPitchKeepsOnlyZeroOrder(t *testing.T) {
	eng, params := newTestEngine(t)
	params.Pitch.Set(400)
	params.FeatureWidth.Set(200)

	res, err := eng.Diffraction(context.Background())
	if err != nil {
		t.Fatalf("Diffraction: %v", err)
	}
	pat := res.(*DiffractionPattern)
	if len(pat.Orders) != 1 || pat.Orders[0].M != 0 {
		t.Errorf("orders = %+v, want only the zero order", pat.Orders)
	}
}

func TestDiffractionValidation(t *testing.T) {
	eng, params := newTestEngine(t)
	params.FeatureWidth.Set(1500) // wider than the pitch

	if _, err := eng.Diffraction(context.Background()); err == nil {
		t.Error("Diffraction accepted feature wider than pitch")
	}
}

func TestAerialImageSymmetricAndDarkAtLine(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	pat, err := eng.Diffraction(ctx)
	if err != nil {
		t.Fatal(err)
	}
	res, err := eng.AerialImage(ctx, pat)
	if err != nil {
		t.Fatalf("AerialImage: %v", err)
	}
	im := res.(*Image)

	n := len(im.X)
	if n < 16 {
		t.Fatalf("only %d lateral points", n)
	}
	// The line is centered, so the image mirrors about x = 0.
	for i := 1; i < n; i++ {
		if d := math.Abs(im.Intensity[i] - im.Intensity[n-i]); d > 1e-9 {
			t.Fatalf("asymmetry %g at index %d", d, i)
		}
	}

	center := im.Intensity[n/2] // x = 0, under the opaque line
	edge := im.Intensity[0]     // x = -pitch/2, mid space
	if center >= edge {
		t.Errorf("center intensity %g not below space intensity %g", center, edge)
	}
}

func TestFlareLiftsTheFloor(t *testing.T) {
	eng, params := newTestEngine(t)
	ctx := context.Background()

	pat, err := eng.Diffraction(ctx)
	if err != nil {
		t.Fatal(err)
	}
	clean, err := eng.AerialImage(ctx, pat)
	if err != nil {
		t.Fatal(err)
	}

	params.Flare.Set(0.1)
	flared, err := eng.AerialImage(ctx, pat)
	if err != nil {
		t.Fatal(err)
	}

	cleanMin := clean.(*Image).Min()
	flaredMin := flared.(*Image).Min()
	if flaredMin < 0.1 {
		t.Errorf("flared floor %g below the stray light level", flaredMin)
	}
	if flaredMin <= cleanMin {
		t.Errorf("flare did not lift the floor: %g -> %g", cleanMin, flaredMin)
	}
}

func TestDefocusReducesContrast(t *testing.T) {
	eng, params := newTestEngine(t)
	ctx := context.Background()

	pat, err := eng.Diffraction(ctx)
	if err != nil {
		t.Fatal(err)
	}
	focused, err := eng.AerialImage(ctx, pat)
	if err != nil {
		t.Fatal(err)
	}

	params.Focus.Set(1000)
	defocused, err := eng.AerialImage(ctx, pat)
	if err != nil {
		t.Fatal(err)
	}

	cf := focused.(*Image).Contrast()
	cd := defocused.(*Image).Contrast()
	if cd >= cf {
		t.Errorf("contrast %g at 1000 nm defocus not below %g in focus", cd, cf)
	}
}

func TestStandingWavesSwingAndAbsorb(t *testing.T) {
	eng, params := newTestEngine(t)
	ctx := context.Background()

	res, err := eng.StandingWaves(ctx)
	if err != nil {
		t.Fatalf("StandingWaves: %v", err)
	}
	dp := res.(*DepthProfile)
	if len(dp.Z) != len(dp.Field) {
		t.Fatalf("grid/field mismatch: %d vs %d", len(dp.Z), len(dp.Field))
	}
	if dp.Z[0] != 0 || dp.Z[len(dp.Z)-1] != params.ResistThickness.Value() {
		t.Errorf("depth grid spans %g..%g", dp.Z[0], dp.Z[len(dp.Z)-1])
	}

	in := dp.Intensities()
	lo, hi := minMax(in)
	if hi < 2*lo {
		t.Errorf("no standing wave swing: intensity %g..%g", lo, hi)
	}

	// More base absorption leaves less light at the substrate.
	bottom := in[len(in)-1]
	params.ResistRefractionIm.Set(0.05)
	res, err = eng.StandingWaves(ctx)
	if err != nil {
		t.Fatal(err)
	}
	darker := res.(*DepthProfile).Intensities()
	if db := darker[len(darker)-1]; db >= bottom {
		t.Errorf("substrate intensity %g did not drop below %g with added loss", db, bottom)
	}
}

func TestImageInResistMatchesGridAndDecays(t *testing.T) {
	eng, _ := newTestEngine(t)
	vol := computeVolume(t, eng)

	if len(vol.X) == 0 || len(vol.Z) == 0 {
		t.Fatal("empty grid")
	}
	if len(vol.Values) != len(vol.X) || len(vol.Values[0]) != len(vol.Z) {
		t.Fatalf("values %dx%d for grid %dx%d",
			len(vol.Values), len(vol.Values[0]), len(vol.X), len(vol.Z))
	}

	// Averaged over the swing, exposure fades with depth: compare the
	// lateral mean of the top quarter to the bottom quarter.
	nz := len(vol.Z)
	top := meanSlab(vol, 0, nz/4)
	bottom := meanSlab(vol, 3*nz/4, nz)
	if bottom >= top {
		t.Errorf("mean intensity %g at depth not below %g near the surface", bottom, top)
	}
}

func meanSlab(v *Volume, zFrom, zTo int) float64 {
	var sum float64
	var n int
	for _, col := range v.Values {
		for iz := zFrom; iz < zTo; iz++ {
			sum += col[iz]
			n++
		}
	}
	return sum / float64(n)
}

func TestLatentImageBounds(t *testing.T) {
	eng, _ := newTestEngine(t)
	vol := computeVolume(t, eng)

	res, err := eng.LatentImage(context.Background(), vol)
	if err != nil {
		t.Fatalf("LatentImage: %v", err)
	}
	lat := res.(*Volume)

	lo, hi := lat.MinMax()
	if lo <= 0 || hi > 1 {
		t.Errorf("inhibitor concentration outside (0, 1]: %g..%g", lo, hi)
	}
	if lo > 0.5 {
		t.Errorf("brightest region only bleached to %g at nominal dose", lo)
	}
}

func TestPebSmoothsWithoutLosingMass(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	vol := computeVolume(t, eng)
	latAny, err := eng.LatentImage(ctx, vol)
	if err != nil {
		t.Fatal(err)
	}
	lat := latAny.(*Volume)

	bakedAny, err := eng.PebLatentImage(ctx, lat)
	if err != nil {
		t.Fatalf("PebLatentImage: %v", err)
	}
	baked := bakedAny.(*Volume)

	mBefore, vBefore := meanVar(lat)
	mAfter, vAfter := meanVar(baked)
	if math.Abs(mAfter-mBefore) > 1e-9 {
		t.Errorf("diffusion changed the mean: %g -> %g", mBefore, mAfter)
	}
	if vAfter >= vBefore {
		t.Errorf("diffusion did not reduce variance: %g -> %g", vBefore, vAfter)
	}
}

func meanVar(v *Volume) (float64, float64) {
	var sum float64
	var n int
	for _, col := range v.Values {
		for _, x := range col {
			sum += x
			n++
		}
	}
	mean := sum / float64(n)
	var acc float64
	for _, col := range v.Values {
		for _, x := range col {
			d := x - mean
			acc += d * d
		}
	}
	return mean, acc / float64(n)
}

func TestZeroBakeIsIdentity(t *testing.T) {
	eng, params := newTestEngine(t)
	ctx := context.Background()

	vol := computeVolume(t, eng)
	latAny, err := eng.LatentImage(ctx, vol)
	if err != nil {
		t.Fatal(err)
	}
	lat := latAny.(*Volume)

	params.PEBTime.Set(0)
	bakedAny, err := eng.PebLatentImage(ctx, lat)
	if err != nil {
		t.Fatal(err)
	}
	baked := bakedAny.(*Volume)
	for ix := range lat.Values {
		for iz := range lat.Values[ix] {
			if baked.Values[ix][iz] != lat.Values[ix][iz] {
				t.Fatalf("zero bake altered [%d][%d]", ix, iz)
			}
		}
	}
}

func developChain(t *testing.T, eng *Engine) *Contours {
	t.Helper()
	ctx := context.Background()
	vol := computeVolume(t, eng)
	lat, err := eng.LatentImage(ctx, vol)
	if err != nil {
		t.Fatal(err)
	}
	baked, err := eng.PebLatentImage(ctx, lat)
	if err != nil {
		t.Fatal(err)
	}
	contAny, err := eng.DevelopContours(ctx, baked)
	if err != nil {
		t.Fatalf("DevelopContours: %v", err)
	}
	return contAny.(*Contours)
}

func TestDevelopContoursMonotone(t *testing.T) {
	eng, _ := newTestEngine(t)
	cont := developChain(t, eng)

	for ix, times := range cont.ClearTime {
		if times[0] != 0 {
			t.Fatalf("column %d starts at %g, want 0 at the surface", ix, times[0])
		}
		for iz := 1; iz < len(times); iz++ {
			if times[iz] < times[iz-1] {
				t.Fatalf("column %d clear time drops at depth %d", ix, iz)
			}
		}
	}
}

func TestResistProfilePrintsTheLine(t *testing.T) {
	eng, params := newTestEngine(t)
	ctx := context.Background()

	cont := developChain(t, eng)
	profAny, err := eng.ResistProfile(ctx, cont)
	if err != nil {
		t.Fatalf("ResistProfile: %v", err)
	}
	prof := profAny.(*Profile)

	pitch := params.Pitch.Value()
	if prof.Width <= 0 || prof.Width >= pitch {
		t.Fatalf("printed width %g outside (0, %g): nothing printed", prof.Width, pitch)
	}
	if prof.Thickness != params.ResistThickness.Value() {
		t.Errorf("profile thickness %g", prof.Thickness)
	}

	// The spaces clear through, the line center barely develops.
	n := len(prof.Depth)
	if prof.Depth[0] != prof.Thickness {
		t.Errorf("space did not clear: depth %g at pattern edge", prof.Depth[0])
	}
	if prof.Depth[n/2] > prof.Thickness/2 {
		t.Errorf("line center developed %g deep", prof.Depth[n/2])
	}
}

func TestMoreDosePrintsNarrower(t *testing.T) {
	eng, params := newTestEngine(t)
	ctx := context.Background()

	width := func(dose float64) float64 {
		params.Dose.Set(dose)
		cont := developChain(t, eng)
		profAny, err := eng.ResistProfile(ctx, cont)
		if err != nil {
			t.Fatalf("ResistProfile at dose %g: %v", dose, err)
		}
		return profAny.(*Profile).Width
	}

	if w100, w180 := width(100), width(180); w180 >= w100 {
		t.Errorf("width %g at 180 mJ/cm2 not below %g at 100 mJ/cm2", w180, w100)
	}
}

func TestMackSelectivityValidation(t *testing.T) {
	eng, params := newTestEngine(t)
	params.MackN.Set(1)

	vol := computeVolume(t, eng)
	if _, err := eng.DevelopContours(context.Background(), vol); err == nil {
		t.Error("DevelopContours accepted selectivity 1")
	}
}

func TestStageInputTypeMismatch(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	cases := []struct {
		name string
		call func() (any, error)
	}{
		{"aerial_image", func() (any, error) { return eng.AerialImage(ctx, 42) }},
		{"image_in_resist", func() (any, error) { return eng.ImageInResist(ctx, "pattern") }},
		{"latent_image", func() (any, error) { return eng.LatentImage(ctx, &Image{}) }},
		{"peb_latent_image", func() (any, error) { return eng.PebLatentImage(ctx, nil) }},
		{"develop_contours", func() (any, error) { return eng.DevelopContours(ctx, &DiffractionPattern{}) }},
		{"resist_profile", func() (any, error) { return eng.ResistProfile(ctx, &Volume{}) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.call()
			if err == nil || !strings.Contains(err.Error(), "unexpected input") {
				t.Errorf("err = %v, want unexpected input", err)
			}
		})
	}
}

func TestCanceledContext(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := eng.Diffraction(ctx); err == nil {
		t.Error("Diffraction ignored canceled context")
	}
	pat, err := eng.Diffraction(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.ImageInResist(ctx, pat); err == nil {
		t.Error("ImageInResist ignored canceled context")
	}
}
