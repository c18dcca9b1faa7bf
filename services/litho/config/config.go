// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the simulation setup: parameter values per
// group, plus an optional sweep section. Priority: environment > file >
// defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/Lithograph/services/litho/pipeline"
	"github.com/AleutianAI/Lithograph/services/litho/sweep"
	"github.com/AleutianAI/Lithograph/services/litho/variable"
)

// lithoValidate is the validator instance for configuration structs.
var lithoValidate *validator.Validate

func init() {
	lithoValidate = validator.New()
}

// Config mirrors the pipeline's parameter groups one to one, so a file
// reads the way the invalidation table is organized.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after
// creation.
type Config struct {
	Numerics     NumericsConfig     `json:"numerics" yaml:"numerics"`
	Mask         MaskConfig         `json:"mask" yaml:"mask"`
	ImagingTool  ImagingToolConfig  `json:"imaging_tool" yaml:"imaging_tool"`
	Exposure     ExposureConfig     `json:"exposure_focus" yaml:"exposure_focus"`
	WaferProcess WaferProcessConfig `json:"wafer_process" yaml:"wafer_process"`
	Resist       ResistConfig       `json:"resist" yaml:"resist"`
	PEB          PEBConfig          `json:"peb" yaml:"peb"`
	Development  DevelopmentConfig  `json:"development" yaml:"development"`

	// Sweep is optional; an empty target means no sweep is configured.
	Sweep SweepConfig `json:"sweep" yaml:"sweep"`
}

// NumericsConfig contains grid resolution settings, in nm.
type NumericsConfig struct {
	GridXY float64 `json:"grid_xy" yaml:"grid_xy" validate:"gt=0"`
	GridZ  float64 `json:"grid_z" yaml:"grid_z" validate:"gt=0"`
}

// MaskConfig describes the line/space pattern.
type MaskConfig struct {
	FeatureWidth  float64 `json:"feature_width" yaml:"feature_width" validate:"gt=0,ltefield=Pitch"`
	Pitch         float64 `json:"pitch" yaml:"pitch" validate:"gt=0"`
	Transmittance float64 `json:"transmittance" yaml:"transmittance" validate:"gte=0,lte=1"`
	Phase         float64 `json:"phase" yaml:"phase" validate:"gte=-180,lte=180"`
}

// ImagingToolConfig contains projection optics settings.
type ImagingToolConfig struct {
	Wavelength      float64 `json:"wavelength" yaml:"wavelength" validate:"gt=0"`
	NumericAperture float64 `json:"numeric_aperture" yaml:"numeric_aperture" validate:"gt=0,lt=1"`
	Flare           float64 `json:"flare" yaml:"flare" validate:"gte=0,lt=1"`
}

// ExposureConfig contains dose and focus.
type ExposureConfig struct {
	Dose  float64 `json:"dose" yaml:"dose" validate:"gt=0"`
	Focus float64 `json:"focus" yaml:"focus"`
}

// WaferProcessConfig describes the film stack optics.
type WaferProcessConfig struct {
	ResistThickness       float64 `json:"resist_thickness" yaml:"resist_thickness" validate:"gt=0"`
	ResistRefractionRe    float64 `json:"resist_refraction_re" yaml:"resist_refraction_re" validate:"gt=0"`
	ResistRefractionIm    float64 `json:"resist_refraction_im" yaml:"resist_refraction_im" validate:"gte=0"`
	SubstrateRefractionRe float64 `json:"substrate_refraction_re" yaml:"substrate_refraction_re" validate:"gt=0"`
	SubstrateRefractionIm float64 `json:"substrate_refraction_im" yaml:"substrate_refraction_im" validate:"gte=0"`
	EnvironmentRefraction float64 `json:"environment_refraction" yaml:"environment_refraction" validate:"gt=0"`
}

// ResistConfig contains the Dill exposure and Mack development models.
type ResistConfig struct {
	DillA    float64 `json:"dill_a" yaml:"dill_a" validate:"gte=0"`
	DillB    float64 `json:"dill_b" yaml:"dill_b" validate:"gte=0"`
	DillC    float64 `json:"dill_c" yaml:"dill_c" validate:"gte=0"`
	MackRMax float64 `json:"mack_r_max" yaml:"mack_r_max" validate:"gt=0"`
	MackRMin float64 `json:"mack_r_min" yaml:"mack_r_min" validate:"gte=0,ltefield=MackRMax"`
	MackMTh  float64 `json:"mack_m_th" yaml:"mack_m_th" validate:"gt=0,lt=1"`
	MackN    float64 `json:"mack_n" yaml:"mack_n" validate:"gt=1"`
}

// PEBConfig contains post-exposure bake settings.
type PEBConfig struct {
	Time        float64 `json:"time" yaml:"time" validate:"gte=0"`
	Diffusivity float64 `json:"diffusivity" yaml:"diffusivity" validate:"gte=0"`
}

// DevelopmentConfig contains develop settings.
type DevelopmentConfig struct {
	Time float64 `json:"time" yaml:"time" validate:"gt=0"`
}

// SweepConfig describes an optional batch run. Out names the result
// file; the extension picks the format (.csv, .tsv, .json).
type SweepConfig struct {
	Target string       `json:"target" yaml:"target" validate:"omitempty,oneof=standing_waves diffraction aerial_image image_in_resist latent_image peb_latent_image develop_contours resist_profile"`
	Axes   []AxisConfig `json:"axes" yaml:"axes" validate:"max=2,dive"`
	Out    string       `json:"out,omitempty" yaml:"out,omitempty"`
}

// AxisConfig is one swept variable addressed by "group.variable" path.
type AxisConfig struct {
	Variable string  `json:"variable" yaml:"variable" validate:"required,contains=."`
	Start    float64 `json:"start" yaml:"start" validate:"ltefield=Stop"`
	Stop     float64 `json:"stop" yaml:"stop"`
	Interval float64 `json:"interval" yaml:"interval" validate:"gt=0"`
}

// Default returns the built-in i-line recipe, matching
// pipeline.DefaultParameters.
func Default() Config {
	return Config{
		Numerics: NumericsConfig{GridXY: 10, GridZ: 25},
		Mask: MaskConfig{
			FeatureWidth:  500,
			Pitch:         1000,
			Transmittance: 0,
			Phase:         0,
		},
		ImagingTool: ImagingToolConfig{
			Wavelength:      365,
			NumericAperture: 0.65,
			Flare:           0,
		},
		Exposure: ExposureConfig{Dose: 120, Focus: 0},
		WaferProcess: WaferProcessConfig{
			ResistThickness:       1000,
			ResistRefractionRe:    1.70,
			ResistRefractionIm:    0,
			SubstrateRefractionRe: 6.50,
			SubstrateRefractionIm: 2.60,
			EnvironmentRefraction: 1.0,
		},
		Resist: ResistConfig{
			DillA:    0.86,
			DillB:    0.07,
			DillC:    0.018,
			MackRMax: 100,
			MackRMin: 0.1,
			MackMTh:  0.5,
			MackN:    4,
		},
		PEB:         PEBConfig{Time: 60, Diffusivity: 25},
		Development: DevelopmentConfig{Time: 60},
	}
}

// Load merges configuration with priority: env > file > defaults.
//
// Inputs:
//
//	configPath - Path to a YAML or JSON file. Optional; a missing file
//	  falls back to defaults.
//
// Outputs:
//
//	Config - Merged configuration.
//	error - Non-nil if the file exists but is invalid, or the merged
//	  configuration fails validation.
func Load(configPath string) (Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := loadFile(configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	loadEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	// Try YAML first, then JSON.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

func loadEnv(cfg *Config) {
	setFloat := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}

	setFloat("LITHO_GRID_XY", &cfg.Numerics.GridXY)
	setFloat("LITHO_GRID_Z", &cfg.Numerics.GridZ)
	setFloat("LITHO_FEATURE_WIDTH", &cfg.Mask.FeatureWidth)
	setFloat("LITHO_PITCH", &cfg.Mask.Pitch)
	setFloat("LITHO_WAVELENGTH", &cfg.ImagingTool.Wavelength)
	setFloat("LITHO_NUMERIC_APERTURE", &cfg.ImagingTool.NumericAperture)
	setFloat("LITHO_FLARE", &cfg.ImagingTool.Flare)
	setFloat("LITHO_DOSE", &cfg.Exposure.Dose)
	setFloat("LITHO_FOCUS", &cfg.Exposure.Focus)
	setFloat("LITHO_RESIST_THICKNESS", &cfg.WaferProcess.ResistThickness)
	setFloat("LITHO_PEB_TIME", &cfg.PEB.Time)
	setFloat("LITHO_DEVELOP_TIME", &cfg.Development.Time)

	if v := os.Getenv("LITHO_SWEEP_TARGET"); v != "" {
		cfg.Sweep.Target = v
	}
}

// Validate checks tags plus the cross-field sweep rules the tags cannot
// express.
func (c Config) Validate() error {
	if err := lithoValidate.Struct(c); err != nil {
		return err
	}

	if len(c.Sweep.Axes) > 0 && c.Sweep.Target == "" {
		return fmt.Errorf("sweep axes configured without a target stage")
	}
	if c.Sweep.Target != "" && len(c.Sweep.Axes) == 0 {
		return fmt.Errorf("sweep target %q configured without axes", c.Sweep.Target)
	}
	if len(c.Sweep.Axes) == 2 && c.Sweep.Axes[0].Variable == c.Sweep.Axes[1].Variable {
		return fmt.Errorf("sweep axes both address %q", c.Sweep.Axes[0].Variable)
	}
	return nil
}

// Apply writes every configured value into the parameters, returning
// how many variables actually changed. Each change fires the variable's
// normal notification, so applying onto a live pipeline cascades
// invalidation exactly like interactive edits.
func (c Config) Apply(p *pipeline.Parameters) int {
	changed := 0
	set := func(v *variable.Variable, value float64) {
		if v.Set(value) {
			changed++
		}
	}

	set(p.GridXY, c.Numerics.GridXY)
	set(p.GridZ, c.Numerics.GridZ)
	set(p.FeatureWidth, c.Mask.FeatureWidth)
	set(p.Pitch, c.Mask.Pitch)
	set(p.MaskTransmittance, c.Mask.Transmittance)
	set(p.MaskPhase, c.Mask.Phase)
	set(p.Wavelength, c.ImagingTool.Wavelength)
	set(p.NumericAperture, c.ImagingTool.NumericAperture)
	set(p.Flare, c.ImagingTool.Flare)
	set(p.Dose, c.Exposure.Dose)
	set(p.Focus, c.Exposure.Focus)
	set(p.ResistThickness, c.WaferProcess.ResistThickness)
	set(p.ResistRefractionRe, c.WaferProcess.ResistRefractionRe)
	set(p.ResistRefractionIm, c.WaferProcess.ResistRefractionIm)
	set(p.SubstrateRefractionRe, c.WaferProcess.SubstrateRefractionRe)
	set(p.SubstrateRefractionIm, c.WaferProcess.SubstrateRefractionIm)
	set(p.EnvironmentRefraction, c.WaferProcess.EnvironmentRefraction)
	set(p.DillA, c.Resist.DillA)
	set(p.DillB, c.Resist.DillB)
	set(p.DillC, c.Resist.DillC)
	set(p.MackRMax, c.Resist.MackRMax)
	set(p.MackRMin, c.Resist.MackRMin)
	set(p.MackMTh, c.Resist.MackMTh)
	set(p.MackN, c.Resist.MackN)
	set(p.PEBTime, c.PEB.Time)
	set(p.PEBDiffusivity, c.PEB.Diffusivity)
	set(p.DevelopTime, c.Development.Time)

	return changed
}

// BuildSweep resolves the sweep section against a pipeline.
//
// Outputs:
//
//	sweep.Spec - Ready to pass to sweep.Start.
//	error - Unknown target stage or variable path, or no sweep
//	  configured.
func (c Config) BuildSweep(p *pipeline.Pipeline) (sweep.Spec, error) {
	if c.Sweep.Target == "" {
		return sweep.Spec{}, fmt.Errorf("no sweep configured")
	}

	target, err := p.Stage(c.Sweep.Target)
	if err != nil {
		return sweep.Spec{}, err
	}

	spec := sweep.Spec{Target: target}
	for _, a := range c.Sweep.Axes {
		v, err := p.Params().Resolve(a.Variable)
		if err != nil {
			return sweep.Spec{}, fmt.Errorf("sweep axis: %w", err)
		}
		spec.Axes = append(spec.Axes, sweep.Axis{
			Variable: v,
			Start:    a.Start,
			Stop:     a.Stop,
			Interval: a.Interval,
		})
	}
	return spec, spec.Validate()
}

// WriteDefault writes the default configuration as YAML, a starting
// point for editing.
func WriteDefault(path string) error {
	cfg := Default()
	cfg.Sweep = SweepConfig{
		Target: pipeline.StageResistProfile,
		Axes: []AxisConfig{
			{Variable: "exposure_focus.focus", Start: -400, Stop: 400, Interval: 100},
		},
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
