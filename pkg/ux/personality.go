// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// PersonalityLevel selects how much decoration output carries.
type PersonalityLevel string

const (
	// PersonalityFull is the interactive default: color, icons, headings.
	PersonalityFull PersonalityLevel = "full"

	// PersonalityStandard keeps color and icons, drops the theming extras.
	PersonalityStandard PersonalityLevel = "standard"

	// PersonalityMinimal is icons and text only.
	PersonalityMinimal PersonalityLevel = "minimal"

	// PersonalityMachine is stable plain text for pipes and scripts.
	PersonalityMachine PersonalityLevel = "machine"
)

// Personality is the process-wide output setting.
type Personality struct {
	Level PersonalityLevel
}

var (
	levelMu sync.RWMutex
	current = Personality{Level: PersonalityFull}
)

// GetPersonality returns the current setting.
func GetPersonality() Personality {
	levelMu.RLock()
	defer levelMu.RUnlock()
	return current
}

// SetPersonalityLevel switches the output level.
func SetPersonalityLevel(level PersonalityLevel) {
	levelMu.Lock()
	defer levelMu.Unlock()
	current.Level = level
}

// ParsePersonalityLevel maps a user-supplied name to a level. Accepts
// the short forms the --personality flag documents; anything
// unrecognized falls back to standard.
func ParsePersonalityLevel(s string) PersonalityLevel {
	switch strings.ToLower(s) {
	case "full", "f":
		return PersonalityFull
	case "standard", "std", "s":
		return PersonalityStandard
	case "minimal", "min", "m":
		return PersonalityMinimal
	case "machine", "quiet", "q":
		return PersonalityMachine
	default:
		return PersonalityStandard
	}
}

// InitPersonality picks the startup level: LITHO_PERSONALITY wins,
// then piped output forces machine mode, then full.
func InitPersonality() {
	if env := os.Getenv("LITHO_PERSONALITY"); env != "" {
		SetPersonalityLevel(ParsePersonalityLevel(env))
		return
	}
	if !isTerminal() {
		SetPersonalityLevel(PersonalityMachine)
		return
	}
	SetPersonalityLevel(PersonalityFull)
}

func isTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// IsInteractive reports whether full-screen surfaces (the sweep TUI)
// may take over the terminal.
func IsInteractive() bool {
	return GetPersonality().Level != PersonalityMachine && isTerminal()
}

// ShouldShowProgress reports whether transient progress output
// (spinners) is appropriate.
func ShouldShowProgress() bool {
	return GetPersonality().Level != PersonalityMachine
}
