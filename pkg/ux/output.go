// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides rich terminal output styling for the Lithograph CLI.
package ux

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Lithograph palette. Violet accents for the exposure theme, amber for
// warnings, slate for anything that should recede.
var (
	ColorViolet   = lipgloss.Color("#9D6BFF") // primary accent
	ColorLavender = lipgloss.Color("#B794F6") // highlights, spinner frames
	ColorAmber    = lipgloss.Color("#F4B942") // warnings
	ColorGreen    = lipgloss.Color("#3FBF7F") // success
	ColorRed      = lipgloss.Color("#E05252") // errors
	ColorSlate    = lipgloss.Color("#5A6B78") // muted text
)

// Styles holds the pre-built lipgloss styles the CLI prints with.
var Styles = struct {
	Title     lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorViolet),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorGreen),
	Warning:   lipgloss.NewStyle().Foreground(ColorAmber),
	Error:     lipgloss.NewStyle().Foreground(ColorRed),
	Highlight: lipgloss.NewStyle().Foreground(ColorLavender).Bold(true),
}

// Icon is a single-rune status marker.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
)

// Render returns the icon colored for its meaning.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// Print helpers. Every helper checks the personality level so callers
// never have to branch on machine mode themselves.

// Title prints a section heading. Suppressed in machine mode, which has
// no use for headings.
func Title(text string) {
	if GetPersonality().Level == PersonalityMachine {
		return
	}
	fmt.Println(Styles.Title.Render(text))
}

// Success prints a confirmation line, "OK: ..." in machine mode.
func Success(text string) {
	switch GetPersonality().Level {
	case PersonalityMachine:
		fmt.Fprintf(os.Stdout, "OK: %s\n", text)
	case PersonalityMinimal:
		fmt.Printf("%s %s\n", IconSuccess.Render(), text)
	default:
		fmt.Printf("%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning prints a warning line. Machine mode sends it to stderr so
// stdout stays parseable.
func Warning(text string) {
	switch GetPersonality().Level {
	case PersonalityMachine:
		fmt.Fprintf(os.Stderr, "WARN: %s\n", text)
	case PersonalityMinimal:
		fmt.Printf("%s %s\n", IconWarning.Render(), text)
	default:
		fmt.Printf("%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Error prints an error line. Machine mode sends it to stderr.
func Error(text string) {
	switch GetPersonality().Level {
	case PersonalityMachine:
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", text)
	case PersonalityMinimal:
		fmt.Printf("%s %s\n", IconError.Render(), text)
	default:
		fmt.Printf("%s %s\n", IconError.Render(), Styles.Error.Render(text))
	}
}

// Info prints a secondary line with a gutter mark, plain in machine mode.
func Info(text string) {
	if GetPersonality().Level == PersonalityMachine {
		fmt.Println(text)
		return
	}
	fmt.Printf("%s %s\n", Styles.Muted.Render("│"), text)
}

// Muted prints low-emphasis text. Suppressed in machine mode.
func Muted(text string) {
	if GetPersonality().Level == PersonalityMachine {
		return
	}
	fmt.Println(Styles.Muted.Render(text))
}

// StageStatus prints one pipeline stage with its cache state. Machine
// mode emits a tab-separated triple per stage.
func StageStatus(name string, status Icon, note string) {
	switch GetPersonality().Level {
	case PersonalityMachine:
		fmt.Printf("%s\t%s\t%s\n", status, name, note)
	case PersonalityMinimal:
		fmt.Printf("%s %s\n", status.Render(), name)
	default:
		if note != "" {
			fmt.Printf("%s %s %s\n", status.Render(), name, Styles.Muted.Render("("+note+")"))
		} else {
			fmt.Printf("%s %s\n", status.Render(), name)
		}
	}
}

// SweepSummary prints the closing line of a sweep run.
func SweepSummary(completed, failed, total int, elapsed time.Duration) {
	if GetPersonality().Level == PersonalityMachine {
		fmt.Printf("SUMMARY: completed=%d failed=%d total=%d elapsed=%s\n",
			completed, failed, total, elapsed)
		return
	}
	fmt.Printf("\n%s %s  %s %s  %s %s  %s\n",
		Styles.Success.Render(fmt.Sprintf("%d", completed)), Styles.Muted.Render("completed"),
		Styles.Error.Render(fmt.Sprintf("%d", failed)), Styles.Muted.Render("failed"),
		Styles.Bold.Render(fmt.Sprintf("%d", total)), Styles.Muted.Render("total"),
		Styles.Muted.Render("in "+elapsed.String()),
	)
}
