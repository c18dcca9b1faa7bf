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

import (
	"github.com/AleutianAI/Lithograph/services/litho/variable"
)

// Parameter group names. The pipeline's invalidation table binds to these
// groups, not to individual variables.
const (
	GroupNumerics      = "numerics"
	GroupMask          = "mask"
	GroupImagingTool   = "imaging_tool"
	GroupExposureFocus = "exposure_focus"
	GroupWaferProcess  = "wafer_process"
	GroupResist        = "resist"
	GroupPEB           = "peb"
	GroupDevelopment   = "development"
)

// Parameters holds every simulation input variable, organized into the
// groups the pipeline subscribes to.
//
// # Description
//
// Fields give direct access for compute code and sweeps; the Group fields
// and Set are what the invalidation table and path resolution
// ("group.variable") work against. A Parameters value is created once and
// its variables are mutated for the lifetime of the pipeline.
type Parameters struct {
	// Numerics.
	GridXY *variable.Variable // lateral grid step, nm
	GridZ  *variable.Variable // depth grid step, nm

	// Mask: one-dimensional line/space pattern, line centered in the
	// period.
	FeatureWidth      *variable.Variable // line width, nm
	Pitch             *variable.Variable // period, nm
	MaskTransmittance *variable.Variable // line transmittance, 0..1
	MaskPhase         *variable.Variable // line phase shift, degrees

	// Imaging tool.
	Wavelength      *variable.Variable // nm
	NumericAperture *variable.Variable
	Flare           *variable.Variable // stray light fraction, 0..1

	// Exposure and focus.
	Dose  *variable.Variable // mJ/cm2
	Focus *variable.Variable // defocus at wafer, nm

	// Wafer process: film stack optics.
	ResistThickness       *variable.Variable // nm
	ResistRefractionRe    *variable.Variable
	ResistRefractionIm    *variable.Variable // loss beyond the Dill absorption
	SubstrateRefractionRe *variable.Variable
	SubstrateRefractionIm *variable.Variable
	EnvironmentRefraction *variable.Variable

	// Resist model: Dill exposure and Mack development rate.
	DillA    *variable.Variable // bleachable absorption, 1/um
	DillB    *variable.Variable // base absorption, 1/um
	DillC    *variable.Variable // exposure rate constant, cm2/mJ
	MackRMax *variable.Variable // nm/s
	MackRMin *variable.Variable // nm/s
	MackMTh  *variable.Variable // threshold PAC concentration
	MackN    *variable.Variable // dissolution selectivity

	// Post-exposure bake.
	PEBTime        *variable.Variable // s
	PEBDiffusivity *variable.Variable // acid diffusivity, nm2/s

	// Development.
	DevelopTime *variable.Variable // s

	// Groups in invalidation-table order.
	Numerics      *variable.Group
	Mask          *variable.Group
	ImagingTool   *variable.Group
	ExposureFocus *variable.Group
	WaferProcess  *variable.Group
	Resist        *variable.Group
	PEB           *variable.Group
	Development   *variable.Group

	set *variable.Set
}

// DefaultParameters returns a Parameters with i-line defaults: a 500 nm
// line on a 1000 nm pitch printed at 365 nm through an NA 0.65 lens into
// 1 um of novolak-style resist on silicon.
func DefaultParameters() *Parameters {
	p := &Parameters{
		GridXY: variable.NewWithUnit("grid_xy", "nm", 10),
		GridZ:  variable.NewWithUnit("grid_z", "nm", 25),

		FeatureWidth:      variable.NewWithUnit("feature_width", "nm", 500),
		Pitch:             variable.NewWithUnit("pitch", "nm", 1000),
		MaskTransmittance: variable.New("transmittance", 0),
		MaskPhase:         variable.NewWithUnit("phase", "deg", 0),

		Wavelength:      variable.NewWithUnit("wavelength", "nm", 365),
		NumericAperture: variable.New("numeric_aperture", 0.65),
		Flare:           variable.New("flare", 0),

		Dose:  variable.NewWithUnit("dose", "mJ/cm2", 120),
		Focus: variable.NewWithUnit("focus", "nm", 0),

		ResistThickness:       variable.NewWithUnit("resist_thickness", "nm", 1000),
		ResistRefractionRe:    variable.New("resist_refraction_re", 1.70),
		ResistRefractionIm:    variable.New("resist_refraction_im", 0),
		SubstrateRefractionRe: variable.New("substrate_refraction_re", 6.50),
		SubstrateRefractionIm: variable.New("substrate_refraction_im", 2.60),
		EnvironmentRefraction: variable.New("environment_refraction", 1.0),

		DillA:    variable.NewWithUnit("dill_a", "1/um", 0.86),
		DillB:    variable.NewWithUnit("dill_b", "1/um", 0.07),
		DillC:    variable.NewWithUnit("dill_c", "cm2/mJ", 0.018),
		MackRMax: variable.NewWithUnit("mack_r_max", "nm/s", 100),
		MackRMin: variable.NewWithUnit("mack_r_min", "nm/s", 0.1),
		MackMTh:  variable.New("mack_m_th", 0.5),
		MackN:    variable.New("mack_n", 4),

		PEBTime:        variable.NewWithUnit("peb_time", "s", 60),
		PEBDiffusivity: variable.NewWithUnit("peb_diffusivity", "nm2/s", 25),

		DevelopTime: variable.NewWithUnit("develop_time", "s", 60),
	}

	p.Numerics = variable.NewGroup(GroupNumerics).Add(p.GridXY, p.GridZ)
	p.Mask = variable.NewGroup(GroupMask).Add(
		p.FeatureWidth, p.Pitch, p.MaskTransmittance, p.MaskPhase)
	p.ImagingTool = variable.NewGroup(GroupImagingTool).Add(
		p.Wavelength, p.NumericAperture, p.Flare)
	p.ExposureFocus = variable.NewGroup(GroupExposureFocus).Add(p.Dose, p.Focus)
	p.WaferProcess = variable.NewGroup(GroupWaferProcess).Add(
		p.ResistThickness,
		p.ResistRefractionRe, p.ResistRefractionIm,
		p.SubstrateRefractionRe, p.SubstrateRefractionIm,
		p.EnvironmentRefraction)
	p.Resist = variable.NewGroup(GroupResist).Add(
		p.DillA, p.DillB, p.DillC,
		p.MackRMax, p.MackRMin, p.MackMTh, p.MackN)
	p.PEB = variable.NewGroup(GroupPEB).Add(p.PEBTime, p.PEBDiffusivity)
	p.Development = variable.NewGroup(GroupDevelopment).Add(p.DevelopTime)

	p.set = variable.NewSet(
		p.Numerics, p.Mask, p.ImagingTool, p.ExposureFocus,
		p.WaferProcess, p.Resist, p.PEB, p.Development)

	return p
}

// Set returns the path-addressable view over all groups.
func (p *Parameters) Set() *variable.Set {
	return p.set
}

// Resolve finds a variable by "group.variable" path.
func (p *Parameters) Resolve(path string) (*variable.Variable, error) {
	return p.set.Resolve(path)
}
