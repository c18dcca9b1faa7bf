// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline implements the fixed simulation dependency graph:
// memoized stages with push-based invalidation driven by parameter
// changes.
//
// # Description
//
// The graph has eight stages. Diffraction feeds two independent chains,
// one ending at the aerial image, one running through the resist stages to
// the developed profile; standing waves is an isolated stage. A static
// subscription table binds each parameter group to the stages whose result
// depends on it, so a variable change empties exactly those caches (and,
// through the cascade, everything downstream of them).
//
//	standing_waves
//	diffraction ─┬─ aerial_image
//	             └─ image_in_resist ─ latent_image ─ peb_latent_image ─
//	                develop_contours ─ resist_profile
//
// # Thread Safety
//
// Building is single-threaded. Afterwards, mutation (variable sets,
// Invalidate, Calculate) happens from one goroutine at a time; concurrent
// readers and event subscribers are safe. See services/litho/sweep for the
// cross-goroutine protocol used during parameter sweeps.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/Lithograph/services/litho/events"
	"github.com/AleutianAI/Lithograph/services/litho/variable"
)

var (
	tracer = otel.Tracer("lithograph.pipeline")
	meter  = otel.Meter("lithograph.pipeline")
)

// Stage names.
const (
	StageStandingWaves   = "standing_waves"
	StageDiffraction     = "diffraction"
	StageAerialImage     = "aerial_image"
	StageImageInResist   = "image_in_resist"
	StageLatentImage     = "latent_image"
	StagePebLatentImage  = "peb_latent_image"
	StageDevelopContours = "develop_contours"
	StageResistProfile   = "resist_profile"
)

// Pipeline owns the eight stages, the parameter subscription table, and
// the event stream observers attach to.
type Pipeline struct {
	params  *Parameters
	emitter *events.Emitter
	logger  *slog.Logger

	standingWaves   *Stage
	diffraction     *Stage
	aerialImage     *Stage
	imageInResist   *Stage
	latentImage     *Stage
	pebLatentImage  *Stage
	developContours *Stage
	resistProfile   *Stage

	byName map[string]*Stage

	sweepMu  sync.Mutex
	sweeping bool

	// Metrics (initialized lazily).
	metricsOnce    sync.Once
	computeLatency metric.Float64Histogram
	cacheHits      metric.Int64Counter
	invalidations  metric.Int64Counter
	activeSweeps   metric.Int64UpDownCounter
}

// New builds the pipeline over the given engine and parameters.
//
// Description:
//
//	Constructs the stages with their predecessor links and statically
//	subscribes every parameter group to Invalidate on exactly the stages
//	whose result depends on it. The table is fixed; it is not discovered
//	from the engine.
//
// Inputs:
//
//	engine - Stage numerics. Must not be nil.
//	params - The simulation inputs. Must not be nil.
//	logger - Logger for stage activity. If nil, uses slog.Default().
//
// Outputs:
//
//	*Pipeline - The built pipeline, all stages empty.
//	error - Non-nil if engine or params is nil.
func New(engine Engine, params *Parameters, logger *slog.Logger) (*Pipeline, error) {
	if engine == nil {
		return nil, fmt.Errorf("pipeline: engine must not be nil")
	}
	if params == nil {
		return nil, fmt.Errorf("pipeline: params must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pipeline{
		params:  params,
		emitter: events.NewEmitter(),
		logger:  logger.With(slog.String("component", "pipeline")),
	}

	// Construction cannot fail after the nil checks: every compute
	// closure below is non-nil and no stage is linked twice.
	p.standingWaves, _ = NewStage(StageStandingWaves, nil, adapt0(engine.StandingWaves))
	p.diffraction, _ = NewStage(StageDiffraction, nil, adapt0(engine.Diffraction))
	p.aerialImage, _ = NewStage(StageAerialImage, p.diffraction, engine.AerialImage)
	p.imageInResist, _ = NewStage(StageImageInResist, p.diffraction, engine.ImageInResist)
	p.latentImage, _ = NewStage(StageLatentImage, p.imageInResist, engine.LatentImage)
	p.pebLatentImage, _ = NewStage(StagePebLatentImage, p.latentImage, engine.PebLatentImage)
	p.developContours, _ = NewStage(StageDevelopContours, p.pebLatentImage, engine.DevelopContours)
	p.resistProfile, _ = NewStage(StageResistProfile, p.developContours, engine.ResistProfile)

	p.byName = map[string]*Stage{
		StageStandingWaves:   p.standingWaves,
		StageDiffraction:     p.diffraction,
		StageAerialImage:     p.aerialImage,
		StageImageInResist:   p.imageInResist,
		StageLatentImage:     p.latentImage,
		StagePebLatentImage:  p.pebLatentImage,
		StageDevelopContours: p.developContours,
		StageResistProfile:   p.resistProfile,
	}

	for _, s := range p.byName {
		s.setHooks(p.stageInvalidated, p.stageCalculated)
	}

	p.subscribeGroups()

	return p, nil
}

// adapt0 lifts a rootless engine method into a ComputeFunc.
func adapt0(fn func(ctx context.Context) (any, error)) ComputeFunc {
	return func(ctx context.Context, _ any) (any, error) {
		return fn(ctx)
	}
}

// subscribeGroups installs the static invalidation table.
//
// Changing any variable in a group invalidates the listed stages; the
// per-stage cascade then empties everything downstream of them. The table
// is intentionally asymmetric in places (the resist group reaches
// develop_contours but not latent_image, which reads the Dill C constant):
// those holes reproduce the source process model, and the sweep layer
// logs a staleness warning when it runs into one.
func (p *Pipeline) subscribeGroups() {
	table := []struct {
		group  *variable.Group
		stages []*Stage
	}{
		{p.params.Numerics, []*Stage{p.standingWaves, p.aerialImage, p.imageInResist}},
		{p.params.WaferProcess, []*Stage{p.standingWaves, p.imageInResist}},
		{p.params.Resist, []*Stage{p.standingWaves, p.developContours}},
		{p.params.Mask, []*Stage{p.diffraction}},
		{p.params.ImagingTool, []*Stage{p.standingWaves, p.diffraction}},
		{p.params.ExposureFocus, []*Stage{p.aerialImage, p.imageInResist}},
		{p.params.PEB, []*Stage{p.pebLatentImage}},
		{p.params.Development, []*Stage{p.resistProfile}},
	}

	for _, row := range table {
		stages := row.stages
		row.group.Subscribe(func(variable.Change) {
			for _, s := range stages {
				s.Invalidate()
			}
		})
	}
}

// Params returns the pipeline's parameters.
func (p *Pipeline) Params() *Parameters { return p.params }

// Events returns the emitter carrying stage and sweep notifications.
func (p *Pipeline) Events() *events.Emitter { return p.emitter }

// Logger returns the pipeline's logger.
func (p *Pipeline) Logger() *slog.Logger { return p.logger }

// Stage returns a stage by name.
//
// Outputs:
//
//	*Stage - The stage.
//	error - ErrUnknownStage if the name does not exist.
func (p *Pipeline) Stage(name string) (*Stage, error) {
	s, ok := p.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStage, name)
	}
	return s, nil
}

// StageNames returns all stage names in dependency order.
func (p *Pipeline) StageNames() []string {
	return []string{
		StageStandingWaves,
		StageDiffraction,
		StageAerialImage,
		StageImageInResist,
		StageLatentImage,
		StagePebLatentImage,
		StageDevelopContours,
		StageResistProfile,
	}
}

// StandingWaves returns the standing waves stage.
func (p *Pipeline) StandingWaves() *Stage { return p.standingWaves }

// Diffraction returns the diffraction stage.
func (p *Pipeline) Diffraction() *Stage { return p.diffraction }

// AerialImage returns the aerial image stage.
func (p *Pipeline) AerialImage() *Stage { return p.aerialImage }

// ImageInResist returns the image-in-resist stage.
func (p *Pipeline) ImageInResist() *Stage { return p.imageInResist }

// LatentImage returns the latent image stage.
func (p *Pipeline) LatentImage() *Stage { return p.latentImage }

// PebLatentImage returns the PEB latent image stage.
func (p *Pipeline) PebLatentImage() *Stage { return p.pebLatentImage }

// DevelopContours returns the develop contours stage.
func (p *Pipeline) DevelopContours() *Stage { return p.developContours }

// ResistProfile returns the resist profile stage.
func (p *Pipeline) ResistProfile() *Stage { return p.resistProfile }

// InvalidateAll empties every stage cache.
//
// Used after bulk parameter loads where per-variable notifications were
// intentionally suppressed.
func (p *Pipeline) InvalidateAll() {
	p.standingWaves.Invalidate()
	p.diffraction.Invalidate()
}

// AcquireSweep claims the pipeline's single sweep slot.
//
// Description:
//
//	At most one sweep may run against a pipeline's variables at a time;
//	two sweeps sharing a variable would race on the caches. A second
//	claim fails with ErrSweepActive instead of racing.
//
// Outputs:
//
//	func() - Release function; idempotent, must be called on every
//	  termination path of the sweep.
//	error - ErrSweepActive if the slot is taken.
func (p *Pipeline) AcquireSweep() (func(), error) {
	p.sweepMu.Lock()
	defer p.sweepMu.Unlock()

	if p.sweeping {
		return nil, ErrSweepActive
	}
	p.sweeping = true

	p.initMetrics()
	if p.activeSweeps != nil {
		p.activeSweeps.Add(context.Background(), 1)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			p.sweepMu.Lock()
			p.sweeping = false
			p.sweepMu.Unlock()
			if p.activeSweeps != nil {
				p.activeSweeps.Add(context.Background(), -1)
			}
		})
	}
	return release, nil
}

// SweepActive reports whether a sweep currently holds the slot.
func (p *Pipeline) SweepActive() bool {
	p.sweepMu.Lock()
	defer p.sweepMu.Unlock()
	return p.sweeping
}

// initMetrics lazily initializes metrics.
// Metric creation failures degrade observability but never execution.
func (p *Pipeline) initMetrics() {
	p.metricsOnce.Do(func() {
		var initErrors []string

		var err error
		p.computeLatency, err = meter.Float64Histogram("litho_stage_compute_seconds",
			metric.WithDescription("Time spent computing each stage result"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "compute_latency: "+err.Error())
		}

		p.cacheHits, err = meter.Int64Counter("litho_stage_cache_hits_total",
			metric.WithDescription("Calculate calls served from the memoized result"),
		)
		if err != nil {
			initErrors = append(initErrors, "cache_hits: "+err.Error())
		}

		p.invalidations, err = meter.Int64Counter("litho_stage_invalidations_total",
			metric.WithDescription("Stage invalidations, including cascaded ones"),
		)
		if err != nil {
			initErrors = append(initErrors, "invalidations: "+err.Error())
		}

		p.activeSweeps, err = meter.Int64UpDownCounter("litho_active_sweeps",
			metric.WithDescription("Sweeps currently holding the pipeline's sweep slot"),
		)
		if err != nil {
			initErrors = append(initErrors, "active_sweeps: "+err.Error())
		}

		if len(initErrors) > 0 {
			p.logger.Error("failed to initialize some pipeline metrics (observability degraded)",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}

// stageInvalidated is the hook every stage calls at the end of Invalidate.
func (p *Pipeline) stageInvalidated(s *Stage) {
	p.initMetrics()
	if p.invalidations != nil {
		p.invalidations.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("stage", s.Name())),
		)
	}
	p.logger.Debug("stage invalidated", slog.String("stage", s.Name()))
	p.emitter.Emit(events.TypeStageInvalidated, events.StageInvalidatedData{Stage: s.Name()})
}

// stageCalculated is the hook every stage calls when Calculate succeeds.
func (p *Pipeline) stageCalculated(s *Stage, fromCache bool, d time.Duration) {
	p.initMetrics()
	if fromCache {
		if p.cacheHits != nil {
			p.cacheHits.Add(context.Background(), 1,
				metric.WithAttributes(attribute.String("stage", s.Name())),
			)
		}
	} else {
		if p.computeLatency != nil {
			p.computeLatency.Record(context.Background(), d.Seconds(),
				metric.WithAttributes(attribute.String("stage", s.Name())),
			)
		}
		p.logger.Debug("stage computed",
			slog.String("stage", s.Name()),
			slog.Duration("duration", d),
		)
	}
	p.emitter.Emit(events.TypeStageCalculated, events.StageCalculatedData{
		Stage:     s.Name(),
		FromCache: fromCache,
		Duration:  d,
	})
}
