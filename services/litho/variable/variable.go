// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package variable provides named mutable numeric inputs with synchronous
// change notification.
//
// # Description
//
// A Variable is one simulation input (a dose, a focus offset, a refractive
// index). Observers register directly on the Variable or on a Group of
// Variables; there is no global dispatcher. Assigning a value equal to the
// current one (exact float64 equality, no epsilon) is a silent no-op:
// observers fire if and only if the stored value actually changed.
//
// # Thread Safety
//
// Registration and reads are safe for concurrent use. Mutation via Set is
// expected to happen from one goroutine at a time (the owning goroutine, or
// a sweep worker holding its own lock); observers run synchronously on the
// calling goroutine, in registration order.
package variable

import (
	"sync"

	"github.com/google/uuid"
)

// Change describes one observed mutation of a Variable.
type Change struct {
	// Name is the variable's name.
	Name string

	// Old is the value before the mutation.
	Old float64

	// New is the value after the mutation.
	New float64
}

// Observer receives change notifications.
//
// Observers run synchronously on the goroutine calling Set, in the order
// they were registered. An observer must not call Set on the same Variable
// it observes.
type Observer func(Change)

type registration struct {
	id string
	fn Observer
}

// Variable is a named mutable float64 slot with change notification.
//
// Range and precision validation (clamping, rounding) belongs to the
// configuration layer; the Variable itself only performs exact
// change-vs-no-change detection.
type Variable struct {
	name string
	unit string

	mu        sync.RWMutex
	value     float64
	observers []registration
}

// New creates a Variable with the given name and initial value.
func New(name string, value float64) *Variable {
	return &Variable{name: name, value: value}
}

// NewWithUnit creates a Variable carrying a display unit (nm, mJ/cm2, s).
// The unit is informational only; it never affects change detection.
func NewWithUnit(name, unit string, value float64) *Variable {
	return &Variable{name: name, unit: unit, value: value}
}

// Name returns the variable's name.
func (v *Variable) Name() string { return v.name }

// Unit returns the display unit, which may be empty.
func (v *Variable) Unit() string { return v.unit }

// Value returns the current value.
func (v *Variable) Value() float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value
}

// Set stores a new value and notifies observers.
//
// Description:
//
//	If the new value differs from the stored one under exact float64
//	equality, the value is stored and every observer is invoked
//	synchronously, in registration order, before Set returns. If the
//	value is unchanged, nothing happens and no observer fires.
//
// Inputs:
//
//	value - The value to store.
//
// Outputs:
//
//	bool - True if the stored value changed and observers were notified.
func (v *Variable) Set(value float64) bool {
	v.mu.Lock()
	old := v.value
	if value == old {
		v.mu.Unlock()
		return false
	}
	v.value = value
	obs := make([]registration, len(v.observers))
	copy(obs, v.observers)
	v.mu.Unlock()

	change := Change{Name: v.name, Old: old, New: value}
	for _, r := range obs {
		r.fn(change)
	}
	return true
}

// Subscribe registers an observer and returns its registration ID.
//
// Registration is not deduplicated: subscribing the same function twice
// makes it fire twice per change.
func (v *Variable) Subscribe(fn Observer) string {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := uuid.NewString()
	v.observers = append(v.observers, registration{id: id, fn: fn})
	return id
}

// Unsubscribe removes a previously registered observer.
//
// Outputs:
//
//	bool - True if the registration was found and removed.
func (v *Variable) Unsubscribe(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	for i, r := range v.observers {
		if r.id == id {
			v.observers = append(v.observers[:i], v.observers[i+1:]...)
			return true
		}
	}
	return false
}

// ObserverCount returns the number of registered observers.
func (v *Variable) ObserverCount() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.observers)
}
