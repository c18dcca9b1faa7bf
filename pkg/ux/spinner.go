// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const spinnerTick = 80 * time.Millisecond

// Spinner animates a one-line indicator while a computation runs.
// Machine mode prints the message once and animates nothing.
type Spinner struct {
	mu      sync.Mutex
	message string
	running bool
	frame   int

	stop chan struct{}
	done chan struct{}
}

// NewSpinner returns a spinner labeled with message. It does not start
// animating until Start.
func NewSpinner(message string) *Spinner {
	return &Spinner{
		message: message,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start begins the animation. Safe to call once per spinner; a second
// call is ignored.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	if GetPersonality().Level == PersonalityMachine {
		fmt.Printf("PROGRESS: %s\n", s.message)
		return
	}

	go s.spin()
}

func (s *Spinner) spin() {
	ticker := time.NewTicker(spinnerTick)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			fmt.Print("\r\033[K")
			close(s.done)
			return
		case <-ticker.C:
			s.mu.Lock()
			frame := spinnerFrames[s.frame%len(spinnerFrames)]
			s.frame++
			message := s.message
			s.mu.Unlock()
			fmt.Printf("\r%s %s", Styles.Highlight.Render(frame), message)
		}
	}
}

// Stop ends the animation and clears the line. Blocks until the
// animation goroutine has exited. Idempotent.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	if GetPersonality().Level == PersonalityMachine {
		return
	}

	close(s.stop)
	<-s.done
}

// ProgressSpinner is a Spinner whose label tracks an n-of-total count.
type ProgressSpinner struct {
	*Spinner
	base    string
	total   int
	current int
}

// NewProgressSpinner returns a spinner that appends [current/total] to
// message as SetProgress and Increment move the count.
func NewProgressSpinner(message string, total int) *ProgressSpinner {
	return &ProgressSpinner{
		Spinner: NewSpinner(message),
		base:    message,
		total:   total,
	}
}

// Increment advances the count by one.
func (p *ProgressSpinner) Increment() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current++
	p.message = fmt.Sprintf("%s [%d/%d]", p.base, p.current, p.total)
}

// SetProgress moves the count to current.
func (p *ProgressSpinner) SetProgress(current int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = current
	p.message = fmt.Sprintf("%s [%d/%d]", p.base, p.current, p.total)
}
