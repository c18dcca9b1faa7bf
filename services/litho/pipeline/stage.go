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
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// State is a stage's cache state.
type State int

const (
	// StateEmpty means the stage holds no result and Calculate will
	// invoke the compute function.
	StateEmpty State = iota

	// StateCached means the stage holds a memoized result.
	StateCached
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateCached:
		return "cached"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ComputeFunc produces a stage's result from its predecessor's result.
//
// input is nil for root stages. The returned value is opaque to the
// pipeline: the only contract is that it can be displayed and fed to the
// successor's compute function.
type ComputeFunc func(ctx context.Context, input any) (any, error)

// Observer is notified after a stage (and, transitively, all of its
// successors) has been invalidated.
type Observer func(s *Stage)

type stageObserver struct {
	id string
	fn Observer
}

// Stage is one memoized node of the simulation dependency graph.
//
// # Description
//
// A Stage caches the result of its compute function. Calculate returns the
// cached result when present; otherwise it recursively calculates the
// predecessor, computes, caches, and returns. Invalidate clears the cache
// and unconditionally cascades into every successor, even when this stage
// or a successor is already empty. The cascade deliberately repeats work on
// diamond shapes; consumers rely on the invalidation notification firing on
// every call, so already-empty stages are never skipped.
//
// # Thread Safety
//
// Concurrent reads (State, Result, Name) are safe. Calculate and
// Invalidate are mutation points and are confined to one goroutine at a
// time: the owning goroutine, or the sweep worker serialized by its own
// lock. The stage's internal lock keeps readers consistent, it does not
// make concurrent mutation correct.
type Stage struct {
	name    string
	pred    *Stage
	compute ComputeFunc

	mu        sync.RWMutex
	succs     []*Stage
	state     State
	result    any
	observers []stageObserver

	// Hooks installed by the owning pipeline, nil on standalone stages.
	onInvalidated func(s *Stage)
	onCalculated  func(s *Stage, fromCache bool, d time.Duration)
}

// NewStage creates a stage and links it under pred.
//
// Inputs:
//
//	name - Stage identity, unique within a graph.
//	pred - The predecessor feeding this stage, nil for root stages.
//	compute - The compute function. Must not be nil.
//
// Outputs:
//
//	*Stage - The new stage, registered as a successor of pred.
//	error - ErrNilCompute if compute is nil.
//
// The topology is fixed at construction time: there is no API to re-link a
// stage afterwards.
func NewStage(name string, pred *Stage, compute ComputeFunc) (*Stage, error) {
	if compute == nil {
		return nil, fmt.Errorf("stage %s: %w", name, ErrNilCompute)
	}

	s := &Stage{
		name:    name,
		pred:    pred,
		compute: compute,
	}
	if pred != nil {
		pred.mu.Lock()
		pred.succs = append(pred.succs, s)
		pred.mu.Unlock()
	}
	return s, nil
}

// Name returns the stage's identity.
func (s *Stage) Name() string { return s.name }

// Predecessor returns the stage feeding this one, nil for roots.
func (s *Stage) Predecessor() *Stage { return s.pred }

// Successors returns the direct successors in link order.
func (s *Stage) Successors() []*Stage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Stage, len(s.succs))
	copy(out, s.succs)
	return out
}

// State returns the current cache state.
func (s *Stage) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// HasResult reports whether a memoized result is present.
func (s *Stage) HasResult() bool {
	return s.State() == StateCached
}

// Result returns the memoized result, nil when empty.
func (s *Stage) Result() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

// Subscribe registers an invalidation observer on this stage.
//
// Observers run synchronously at the tail of Invalidate, after all
// successors have been invalidated, so a chain emits leaf side first.
func (s *Stage) Subscribe(fn Observer) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.observers = append(s.observers, stageObserver{id: id, fn: fn})
	return id
}

// Unsubscribe removes an invalidation observer.
func (s *Stage) Unsubscribe(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, o := range s.observers {
		if o.id == id {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return true
		}
	}
	return false
}

// Invalidate clears the cached result and cascades to every successor.
//
// Description:
//
//	The stage transitions to empty even when it already is, then every
//	direct successor is invalidated regardless of its state, then the
//	stage's observers and the pipeline hook fire. The unconditional
//	cascade trades repeated work on diamond sub-graphs for the guarantee
//	that every reachable stage, and every observer, sees every
//	invalidation.
//
// Thread Safety: see the Stage type comment; one mutating goroutine at a
// time.
func (s *Stage) Invalidate() {
	s.mu.Lock()
	s.state = StateEmpty
	s.result = nil
	succs := make([]*Stage, len(s.succs))
	copy(succs, s.succs)
	obs := make([]stageObserver, len(s.observers))
	copy(obs, s.observers)
	hook := s.onInvalidated
	s.mu.Unlock()

	for _, succ := range succs {
		succ.Invalidate()
	}

	for _, o := range obs {
		o.fn(s)
	}
	if hook != nil {
		hook(s)
	}
}

// Calculate returns the stage's result, computing it if absent.
//
// Description:
//
//	When cached, the stored result is returned with no side effects and
//	the compute function is not invoked. When empty, the predecessor is
//	calculated first (recursively), then the compute function runs over
//	its result; success stores the result and transitions to cached. A
//	compute failure propagates to the caller wrapped with the stage name
//	and leaves this stage empty.
//
// Inputs:
//
//	ctx - Context for cancellation and tracing. Must not be nil.
//
// Outputs:
//
//	any - The memoized or freshly computed result.
//	error - Non-nil if this stage's compute or any predecessor failed.
func (s *Stage) Calculate(ctx context.Context) (any, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	start := time.Now()

	s.mu.RLock()
	if s.state == StateCached {
		result := s.result
		hook := s.onCalculated
		s.mu.RUnlock()
		if hook != nil {
			hook(s, true, time.Since(start))
		}
		return result, nil
	}
	s.mu.RUnlock()

	ctx, span := tracer.Start(ctx, "litho.stage."+s.name,
		trace.WithAttributes(attribute.String("stage", s.name)),
	)
	defer span.End()

	var input any
	if s.pred != nil {
		predResult, err := s.pred.Calculate(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		input = predResult
	}

	result, err := s.compute(ctx, input)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("stage %s: %w", s.name, err)
	}

	s.mu.Lock()
	s.state = StateCached
	s.result = result
	hook := s.onCalculated
	s.mu.Unlock()

	span.SetStatus(codes.Ok, "")
	if hook != nil {
		hook(s, false, time.Since(start))
	}
	return result, nil
}

// setHooks installs the owning pipeline's notification hooks.
func (s *Stage) setHooks(
	onInvalidated func(*Stage),
	onCalculated func(*Stage, bool, time.Duration),
) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onInvalidated = onInvalidated
	s.onCalculated = onCalculated
}
