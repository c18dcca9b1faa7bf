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
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/AleutianAI/Lithograph/services/litho/events"
)

// fakeEngine counts how often each stage method runs and returns the
// stage name as its result.
type fakeEngine struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{calls: map[string]int{}, fail: map[string]error{}}
}

func (f *fakeEngine) run(name string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	if err := f.fail[name]; err != nil {
		return nil, err
	}
	return name, nil
}

func (f *fakeEngine) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeEngine) StandingWaves(ctx context.Context) (any, error) {
	return f.run(StageStandingWaves)
}
func (f *fakeEngine) Diffraction(ctx context.Context) (any, error) {
	return f.run(StageDiffraction)
}
func (f *fakeEngine) AerialImage(ctx context.Context, _ any) (any, error) {
	return f.run(StageAerialImage)
}
func (f *fakeEngine) ImageInResist(ctx context.Context, _ any) (any, error) {
	return f.run(StageImageInResist)
}
func (f *fakeEngine) LatentImage(ctx context.Context, _ any) (any, error) {
	return f.run(StageLatentImage)
}
func (f *fakeEngine) PebLatentImage(ctx context.Context, _ any) (any, error) {
	return f.run(StagePebLatentImage)
}
func (f *fakeEngine) DevelopContours(ctx context.Context, _ any) (any, error) {
	return f.run(StageDevelopContours)
}
func (f *fakeEngine) ResistProfile(ctx context.Context, _ any) (any, error) {
	return f.run(StageResistProfile)
}

func newTestPipeline(t *testing.T) (*Pipeline, *fakeEngine) {
	t.Helper()
	eng := newFakeEngine()
	p, err := New(eng, DefaultParameters(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p, eng
}

// calculateAll computes both terminal chains plus the isolated stage.
func calculateAll(t *testing.T, p *Pipeline) {
	t.Helper()
	ctx := context.Background()
	for _, s := range []*Stage{p.StandingWaves(), p.AerialImage(), p.ResistProfile()} {
		if _, err := s.Calculate(ctx); err != nil {
			t.Fatalf("Calculate(%s): %v", s.Name(), err)
		}
	}
}

// emptyStages returns the names of all stages currently without a result,
// sorted for stable comparison.
func emptyStages(p *Pipeline) []string {
	var out []string
	for _, name := range p.StageNames() {
		s, _ := p.Stage(name)
		if s.State() == StateEmpty {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, DefaultParameters(), nil); err == nil {
		t.Error("New with nil engine succeeded")
	}
	if _, err := New(newFakeEngine(), nil, nil); err == nil {
		t.Error("New with nil params succeeded")
	}
}

func TestTopology(t *testing.T) {
	p, _ := newTestPipeline(t)

	wantPred := map[string]string{
		StageStandingWaves:   "",
		StageDiffraction:     "",
		StageAerialImage:     StageDiffraction,
		StageImageInResist:   StageDiffraction,
		StageLatentImage:     StageImageInResist,
		StagePebLatentImage:  StageLatentImage,
		StageDevelopContours: StagePebLatentImage,
		StageResistProfile:   StageDevelopContours,
	}
	for name, want := range wantPred {
		s, err := p.Stage(name)
		if err != nil {
			t.Fatalf("Stage(%s): %v", name, err)
		}
		got := ""
		if pred := s.Predecessor(); pred != nil {
			got = pred.Name()
		}
		if got != want {
			t.Errorf("predecessor of %s = %q, want %q", name, got, want)
		}
	}
}

func TestStageUnknownName(t *testing.T) {
	p, _ := newTestPipeline(t)
	if _, err := p.Stage("etch"); !errors.Is(err, ErrUnknownStage) {
		t.Errorf("err = %v, want ErrUnknownStage", err)
	}
}

func TestTerminalCalculateFillsChain(t *testing.T) {
	p, eng := newTestPipeline(t)

	if _, err := p.ResistProfile().Calculate(context.Background()); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{
		StageDiffraction, StageImageInResist, StageLatentImage,
		StagePebLatentImage, StageDevelopContours, StageResistProfile,
	} {
		if eng.count(name) != 1 {
			t.Errorf("%s computed %d times, want 1", name, eng.count(name))
		}
	}
	// Stages outside the profile chain stay untouched.
	for _, name := range []string{StageStandingWaves, StageAerialImage} {
		if eng.count(name) != 0 {
			t.Errorf("%s computed %d times, want 0", name, eng.count(name))
		}
	}
}

func TestSharedPredecessorComputedOnce(t *testing.T) {
	p, eng := newTestPipeline(t)
	ctx := context.Background()

	if _, err := p.AerialImage().Calculate(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := p.ImageInResist().Calculate(ctx); err != nil {
		t.Fatal(err)
	}

	if n := eng.count(StageDiffraction); n != 1 {
		t.Errorf("shared diffraction computed %d times, want 1", n)
	}
}

// The static subscription table: changing one variable in a group must
// empty exactly the subscribed stages plus their downstream cascade.
func TestSubscriptionTable(t *testing.T) {
	cases := []struct {
		group string
		poke  func(p *Pipeline)
		want  []string
	}{
		{
			group: GroupNumerics,
			poke:  func(p *Pipeline) { p.Params().GridXY.Set(5) },
			want: []string{
				StageStandingWaves, StageAerialImage, StageImageInResist,
				StageLatentImage, StagePebLatentImage, StageDevelopContours, StageResistProfile,
			},
		},
		{
			group: GroupWaferProcess,
			poke:  func(p *Pipeline) { p.Params().ResistThickness.Set(900) },
			want: []string{
				StageStandingWaves, StageImageInResist,
				StageLatentImage, StagePebLatentImage, StageDevelopContours, StageResistProfile,
			},
		},
		{
			group: GroupResist,
			poke:  func(p *Pipeline) { p.Params().MackN.Set(5) },
			want: []string{
				StageStandingWaves, StageDevelopContours, StageResistProfile,
			},
		},
		{
			group: GroupMask,
			poke:  func(p *Pipeline) { p.Params().Pitch.Set(1200) },
			want: []string{
				StageDiffraction, StageAerialImage, StageImageInResist,
				StageLatentImage, StagePebLatentImage, StageDevelopContours, StageResistProfile,
			},
		},
		{
			group: GroupImagingTool,
			poke:  func(p *Pipeline) { p.Params().NumericAperture.Set(0.75) },
			want: []string{
				StageStandingWaves, StageDiffraction, StageAerialImage, StageImageInResist,
				StageLatentImage, StagePebLatentImage, StageDevelopContours, StageResistProfile,
			},
		},
		{
			group: GroupExposureFocus,
			poke:  func(p *Pipeline) { p.Params().Focus.Set(-100) },
			want: []string{
				StageAerialImage, StageImageInResist,
				StageLatentImage, StagePebLatentImage, StageDevelopContours, StageResistProfile,
			},
		},
		{
			group: GroupPEB,
			poke:  func(p *Pipeline) { p.Params().PEBTime.Set(90) },
			want: []string{
				StagePebLatentImage, StageDevelopContours, StageResistProfile,
			},
		},
		{
			group: GroupDevelopment,
			poke:  func(p *Pipeline) { p.Params().DevelopTime.Set(45) },
			want:  []string{StageResistProfile},
		},
	}

	for _, tc := range cases {
		t.Run(tc.group, func(t *testing.T) {
			p, _ := newTestPipeline(t)
			calculateAll(t, p)
			if got := emptyStages(p); len(got) != 0 {
				t.Fatalf("stages empty after full calculate: %v", got)
			}

			tc.poke(p)

			want := append([]string(nil), tc.want...)
			sort.Strings(want)
			got := emptyStages(p)
			if len(got) != len(want) {
				t.Fatalf("empty stages = %v, want %v", got, want)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("empty stages = %v, want %v", got, want)
				}
			}
		})
	}
}

// The Dill C hole: the resist group does not subscribe latent_image even
// though the latent image reads the exposure rate constant. The stale
// cache survives the change; the sweep layer is responsible for warning.
func TestDillCLeavesLatentImageStale(t *testing.T) {
	p, _ := newTestPipeline(t)
	calculateAll(t, p)

	p.Params().DillC.Set(0.03)

	if p.LatentImage().State() != StateCached {
		t.Error("latent_image emptied on Dill C change; the subscription hole should keep it cached")
	}
	if p.DevelopContours().State() != StateEmpty {
		t.Error("develop_contours kept its cache; resist group should empty it")
	}
}

func TestUnchangedValueInvalidatesNothing(t *testing.T) {
	p, _ := newTestPipeline(t)
	calculateAll(t, p)

	p.Params().Pitch.Set(p.Params().Pitch.Value())

	if got := emptyStages(p); len(got) != 0 {
		t.Errorf("no-op set emptied %v", got)
	}
}

func TestInvalidateAll(t *testing.T) {
	p, _ := newTestPipeline(t)
	calculateAll(t, p)

	p.InvalidateAll()

	if got := emptyStages(p); len(got) != len(p.StageNames()) {
		t.Errorf("%d stages empty after InvalidateAll, want all %d", len(got), len(p.StageNames()))
	}
}

func TestEventsOnInvalidateAndCalculate(t *testing.T) {
	p, _ := newTestPipeline(t)

	var calculated, invalidated []string
	p.Events().Subscribe(func(e *events.Event) {
		switch e.Type {
		case events.TypeStageCalculated:
			calculated = append(calculated, e.Data.(events.StageCalculatedData).Stage)
		case events.TypeStageInvalidated:
			invalidated = append(invalidated, e.Data.(events.StageInvalidatedData).Stage)
		}
	}, events.TypeStageCalculated, events.TypeStageInvalidated)

	if _, err := p.AerialImage().Calculate(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Predecessors finish before their dependents.
	if len(calculated) != 2 || calculated[0] != StageDiffraction || calculated[1] != StageAerialImage {
		t.Errorf("calculated events = %v", calculated)
	}

	p.Params().Pitch.Set(1100)
	// Leaf first within the cascade from diffraction.
	if len(invalidated) == 0 || invalidated[len(invalidated)-1] != StageDiffraction {
		t.Errorf("invalidated events = %v, want diffraction last", invalidated)
	}
}

func TestCacheHitEmitsFromCache(t *testing.T) {
	p, _ := newTestPipeline(t)
	ctx := context.Background()

	if _, err := p.Diffraction().Calculate(ctx); err != nil {
		t.Fatal(err)
	}

	var fromCache []bool
	p.Events().Subscribe(func(e *events.Event) {
		fromCache = append(fromCache, e.Data.(events.StageCalculatedData).FromCache)
	}, events.TypeStageCalculated)

	if _, err := p.Diffraction().Calculate(ctx); err != nil {
		t.Fatal(err)
	}
	if len(fromCache) != 1 || !fromCache[0] {
		t.Errorf("fromCache events = %v, want [true]", fromCache)
	}
}

func TestComputeFailureKeepsChainEmpty(t *testing.T) {
	eng := newFakeEngine()
	eng.fail[StageLatentImage] = errors.New("dill constants out of range")
	p, err := New(eng, DefaultParameters(), nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = p.ResistProfile().Calculate(context.Background())
	if err == nil {
		t.Fatal("Calculate succeeded through failing stage")
	}

	// Predecessors that finished stay cached; the failing stage and its
	// dependents stay empty.
	if p.ImageInResist().State() != StateCached {
		t.Error("image_in_resist lost its result")
	}
	for _, s := range []*Stage{p.LatentImage(), p.PebLatentImage(), p.DevelopContours(), p.ResistProfile()} {
		if s.State() != StateEmpty {
			t.Errorf("%s = %v after failure, want empty", s.Name(), s.State())
		}
	}
}

func TestAcquireSweep(t *testing.T) {
	p, _ := newTestPipeline(t)

	release, err := p.AcquireSweep()
	if err != nil {
		t.Fatalf("AcquireSweep: %v", err)
	}
	if !p.SweepActive() {
		t.Error("SweepActive = false while slot held")
	}

	if _, err := p.AcquireSweep(); !errors.Is(err, ErrSweepActive) {
		t.Errorf("second acquire err = %v, want ErrSweepActive", err)
	}

	release()
	release() // idempotent
	if p.SweepActive() {
		t.Error("SweepActive = true after release")
	}

	if _, err := p.AcquireSweep(); err != nil {
		t.Errorf("reacquire after release: %v", err)
	}
}
