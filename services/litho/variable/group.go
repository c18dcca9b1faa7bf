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
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Group is a named set of Variables that forwards any member's change to
// group-level observers.
//
// Description:
//
//	Parameter groups (mask, imaging tool, exposure/focus, ...) are what the
//	simulation pipeline binds its invalidation table to: it does not care
//	which member changed, only that the group did. Forwarding is synchronous,
//	so a group observer has run to completion before the member's Set
//	returns.
//
// Thread Safety:
//
//	Same model as Variable: registration and reads are concurrency safe,
//	mutation of members is confined to the owning goroutine.
type Group struct {
	name string

	mu        sync.RWMutex
	members   []*Variable
	observers []registration
}

// NewGroup creates an empty Group with the given name.
func NewGroup(name string) *Group {
	return &Group{name: name}
}

// Name returns the group's name.
func (g *Group) Name() string { return g.name }

// Add appends a Variable to the group and wires change forwarding.
//
// A Variable may belong to multiple groups; every owning group forwards
// its changes.
func (g *Group) Add(vars ...*Variable) *Group {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, v := range vars {
		g.members = append(g.members, v)
		v.Subscribe(g.forward)
	}
	return g
}

// Members returns the group's Variables in add order.
func (g *Group) Members() []*Variable {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*Variable, len(g.members))
	copy(out, g.members)
	return out
}

// Lookup returns the member with the given name.
//
// Outputs:
//
//	*Variable - The member, or nil if no member has that name.
func (g *Group) Lookup(name string) *Variable {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, v := range g.members {
		if v.Name() == name {
			return v
		}
	}
	return nil
}

// Subscribe registers a group-level observer and returns its registration ID.
func (g *Group) Subscribe(fn Observer) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := uuid.NewString()
	g.observers = append(g.observers, registration{id: id, fn: fn})
	return id
}

// Unsubscribe removes a group-level observer.
func (g *Group) Unsubscribe(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, r := range g.observers {
		if r.id == id {
			g.observers = append(g.observers[:i], g.observers[i+1:]...)
			return true
		}
	}
	return false
}

// forward relays a member change to group observers.
func (g *Group) forward(c Change) {
	g.mu.RLock()
	obs := make([]registration, len(g.observers))
	copy(obs, g.observers)
	g.mu.RUnlock()

	for _, r := range obs {
		r.fn(c)
	}
}

// Set is a named-Group collection used to address variables by path.
//
// A path has the form "group.variable", e.g. "exposure_focus.focus".
type Set struct {
	mu     sync.RWMutex
	groups []*Group
}

// NewSet creates a Set from the given groups.
func NewSet(groups ...*Group) *Set {
	s := &Set{}
	s.groups = append(s.groups, groups...)
	return s
}

// Groups returns the groups in registration order.
func (s *Set) Groups() []*Group {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Group, len(s.groups))
	copy(out, s.groups)
	return out
}

// Group returns the group with the given name, or nil.
func (s *Set) Group(name string) *Group {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, g := range s.groups {
		if g.Name() == name {
			return g
		}
	}
	return nil
}

// Resolve finds a Variable by "group.variable" path.
//
// Inputs:
//
//	path - Dotted path, e.g. "imaging_tool.numeric_aperture".
//
// Outputs:
//
//	*Variable - The resolved variable.
//	error - Non-nil if the path is malformed or nothing matches.
func (s *Set) Resolve(path string) (*Variable, error) {
	groupName, varName, ok := splitPath(path)
	if !ok {
		return nil, fmt.Errorf("variable path %q: want group.variable", path)
	}
	g := s.Group(groupName)
	if g == nil {
		return nil, fmt.Errorf("variable path %q: unknown group %q", path, groupName)
	}
	v := g.Lookup(varName)
	if v == nil {
		return nil, fmt.Errorf("variable path %q: unknown variable %q in group %q", path, varName, groupName)
	}
	return v, nil
}

func splitPath(path string) (group, name string, ok bool) {
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			if i == 0 || i == len(path)-1 {
				return "", "", false
			}
			return path[:i], path[i+1:], true
		}
	}
	return "", "", false
}
