// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package variable

import (
	"testing"
)

func TestSetNotifiesOnChange(t *testing.T) {
	v := New("dose", 30.0)

	var got []Change
	v.Subscribe(func(c Change) { got = append(got, c) })

	if changed := v.Set(31.5); !changed {
		t.Fatal("Set(31.5) reported no change")
	}
	if len(got) != 1 {
		t.Fatalf("observer fired %d times, want 1", len(got))
	}
	if got[0].Name != "dose" || got[0].Old != 30.0 || got[0].New != 31.5 {
		t.Errorf("change = %+v, want {dose 30 31.5}", got[0])
	}
	if v.Value() != 31.5 {
		t.Errorf("Value() = %v, want 31.5", v.Value())
	}
}

func TestSetEqualValueIsSilent(t *testing.T) {
	v := New("focus", 0.0)

	fired := 0
	v.Subscribe(func(Change) { fired++ })

	if changed := v.Set(0.0); changed {
		t.Error("Set of equal value reported a change")
	}
	if fired != 0 {
		t.Errorf("observer fired %d times on equal assignment, want 0", fired)
	}
}

func TestSetExactEqualityNoEpsilon(t *testing.T) {
	v := New("na", 0.65)

	fired := 0
	v.Subscribe(func(Change) { fired++ })

	// A one-ulp style nudge must count as a change.
	v.Set(0.65 + 1e-15)
	if fired != 1 {
		t.Fatalf("observer fired %d times for a 1e-15 delta, want 1", fired)
	}
}

func TestObserversFireInRegistrationOrder(t *testing.T) {
	v := New("wavelength", 365.0)

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		v.Subscribe(func(Change) { order = append(order, i) })
	}

	v.Set(248.0)

	if len(order) != 5 {
		t.Fatalf("fired %d observers, want 5", len(order))
	}
	for i, o := range order {
		if o != i {
			t.Fatalf("observer order = %v, want ascending", order)
		}
	}
}

func TestSubscribeNoDeduplication(t *testing.T) {
	v := New("pitch", 1000.0)

	fired := 0
	fn := func(Change) { fired++ }
	v.Subscribe(fn)
	v.Subscribe(fn)

	v.Set(800.0)

	if fired != 2 {
		t.Errorf("duplicate subscription fired %d times, want 2", fired)
	}
}

func TestUnsubscribe(t *testing.T) {
	v := New("thickness", 1000.0)

	fired := 0
	id := v.Subscribe(func(Change) { fired++ })

	if !v.Unsubscribe(id) {
		t.Fatal("Unsubscribe returned false for live registration")
	}
	if v.Unsubscribe(id) {
		t.Error("second Unsubscribe returned true")
	}

	v.Set(900.0)
	if fired != 0 {
		t.Errorf("removed observer fired %d times", fired)
	}
}

func TestGroupForwardsMemberChanges(t *testing.T) {
	dose := New("dose", 30.0)
	focus := New("focus", 0.0)
	g := NewGroup("exposure_focus").Add(dose, focus)

	var got []Change
	g.Subscribe(func(c Change) { got = append(got, c) })

	dose.Set(40.0)
	focus.Set(-50.0)
	focus.Set(-50.0) // no-op, must not forward

	if len(got) != 2 {
		t.Fatalf("group observer fired %d times, want 2", len(got))
	}
	if got[0].Name != "dose" || got[1].Name != "focus" {
		t.Errorf("forwarded changes = %v %v, want dose then focus", got[0].Name, got[1].Name)
	}
}

func TestGroupLookup(t *testing.T) {
	dose := New("dose", 30.0)
	g := NewGroup("exposure_focus").Add(dose)

	if got := g.Lookup("dose"); got != dose {
		t.Errorf("Lookup(dose) = %v, want the member", got)
	}
	if got := g.Lookup("missing"); got != nil {
		t.Errorf("Lookup(missing) = %v, want nil", got)
	}
}

func TestSetResolve(t *testing.T) {
	dose := New("dose", 30.0)
	ef := NewGroup("exposure_focus").Add(dose)
	s := NewSet(ef)

	v, err := s.Resolve("exposure_focus.dose")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if v != dose {
		t.Error("Resolve returned a different variable")
	}

	cases := []string{"", "dose", ".dose", "exposure_focus.", "nope.dose", "exposure_focus.nope"}
	for _, path := range cases {
		if _, err := s.Resolve(path); err == nil {
			t.Errorf("Resolve(%q) succeeded, want error", path)
		}
	}
}
