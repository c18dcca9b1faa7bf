// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package events

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handler is a function that processes events.
type Handler func(event *Event)

// Filter is a function that decides whether an event should be handled.
type Filter func(event *Event) bool

// Subscription pairs one handler with its type and filter constraints.
type Subscription struct {
	// ID is the handle Unsubscribe takes.
	ID string

	// Handler processes matching events.
	Handler Handler

	// Filter, when set, must return true for the event to be handled.
	Filter Filter

	// Types, when non-empty, restricts handling to these types.
	Types []Type
}

// matches reports whether ev clears the subscription's type list and
// filter.
func (s *Subscription) matches(ev *Event) bool {
	if len(s.Types) > 0 && !slices.Contains(s.Types, ev.Type) {
		return false
	}
	return s.Filter == nil || s.Filter(ev)
}

// Emitter broadcasts events to subscribers and keeps a bounded replay
// buffer.
//
// Description:
//
//	Handlers run synchronously on the emitting goroutine, in subscription
//	order. A panicking handler is recovered and logged so it cannot break
//	the emitter or starve later handlers. The replay buffer keeps the most
//	recent events for late-attaching observers and tests.
//
// Thread Safety: Emitter is safe for concurrent use.
type Emitter struct {
	mu            sync.RWMutex
	subscriptions []*Subscription
	buffer        []Event
	bufferSize    int
	runID         string
}

// EmitterOption configures an Emitter.
type EmitterOption func(*Emitter)

// WithBufferSize sets the replay buffer size.
func WithBufferSize(size int) EmitterOption {
	return func(e *Emitter) {
		e.bufferSize = size
	}
}

// WithRunID sets the run ID stamped on all events.
func WithRunID(id string) EmitterOption {
	return func(e *Emitter) {
		e.runID = id
	}
}

// NewEmitter creates an emitter with a 256-event replay buffer unless
// an option says otherwise.
func NewEmitter(opts ...EmitterOption) *Emitter {
	e := &Emitter{bufferSize: 256}
	for _, opt := range opts {
		opt(e)
	}
	e.buffer = make([]Event, 0, e.bufferSize)
	return e
}

// Subscribe registers a handler for the given event types.
//
// Inputs:
//
//	handler - Function to call for each matching event.
//	types - Event types to subscribe to (none = all types).
//
// Outputs:
//
//	string - Subscription ID for Unsubscribe.
func (e *Emitter) Subscribe(handler Handler, types ...Type) string {
	return e.SubscribeWithFilter(handler, nil, types...)
}

// SubscribeWithFilter registers a handler with a custom filter.
func (e *Emitter) SubscribeWithFilter(handler Handler, filter Filter, types ...Type) string {
	sub := &Subscription{
		ID:      uuid.NewString(),
		Handler: handler,
		Filter:  filter,
		Types:   types,
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscriptions = append(e.subscriptions, sub)
	return sub.ID
}

// Unsubscribe removes a subscription.
//
// Outputs:
//
//	bool - True if the subscription was found and removed.
func (e *Emitter) Unsubscribe(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, sub := range e.subscriptions {
		if sub.ID == id {
			e.subscriptions = slices.Delete(e.subscriptions, i, i+1)
			return true
		}
	}
	return false
}

// Emit broadcasts an event to all matching subscribers.
//
// Description:
//
//	Builds the event, appends it to the replay buffer, then invokes
//	matching handlers synchronously in subscription order with panic
//	recovery. Emit returns only after every handler has run, which is what
//	lets callers rely on observation having happened before they proceed.
//
// Inputs:
//
//	eventType - The type of event.
//	data - The typed payload from types.go.
func (e *Emitter) Emit(eventType Type, data any) {
	e.mu.RLock()
	runID := e.runID
	subs := slices.Clone(e.subscriptions)
	e.mu.RUnlock()

	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		RunID:     runID,
		Timestamp: time.Now(),
		Data:      data,
	}
	e.record(event)

	for _, sub := range subs {
		if sub.matches(&event) {
			dispatch(sub.Handler, &event)
		}
	}
}

// record appends the event to the replay buffer, evicting the oldest
// entry once the buffer is full.
func (e *Emitter) record(event Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.buffer) >= e.bufferSize {
		e.buffer = e.buffer[1:]
	}
	e.buffer = append(e.buffer, event)
}

// dispatch runs one handler under panic recovery.
func dispatch(handler Handler, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handler panicked",
				slog.String("event_type", string(event.Type)),
				slog.String("event_id", event.ID),
				slog.Any("panic", r),
			)
		}
	}()
	handler(event)
}

// SetRunID updates the run ID stamped on future events.
func (e *Emitter) SetRunID(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runID = id
}

// Buffer returns a copy of the replay buffer.
func (e *Emitter) Buffer() []Event {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.buffer)
}

// BufferByType returns buffered events of one type.
func (e *Emitter) BufferByType(eventType Type) []Event {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []Event
	for _, ev := range e.buffer {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// ClearBuffer removes all buffered events.
func (e *Emitter) ClearBuffer() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buffer = make([]Event, 0, e.bufferSize)
}

// SubscriptionCount returns the number of active subscriptions.
func (e *Emitter) SubscriptionCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subscriptions)
}
