// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tui provides the terminal user interface for watching a
// sweep run.
//
// # Description
//
// This package implements the sweep progress view using bubbletea. The
// sweep worker runs on its own goroutine; the command layer forwards
// its events into the program with Send, so the model only ever sees
// messages.
//
// # Thread Safety
//
// TUI components are designed for single-threaded use within the
// bubbletea event loop. Do not access TUI state from multiple
// goroutines.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/AleutianAI/Lithograph/services/litho/sweep"
)

// =============================================================================
// Messages
// =============================================================================

// PointMsg reports one completed grid point.
type PointMsg struct {
	Index       int
	Total       int
	Coordinates []float64
	Failed      bool
}

// DoneMsg signals the sweep finished and carries its result.
type DoneMsg struct {
	Result *sweep.Result
}

// tickMsg refreshes the elapsed time display.
type tickMsg time.Time

// =============================================================================
// Config
// =============================================================================

// SweepViewConfig configures the sweep progress TUI.
type SweepViewConfig struct {
	// ShowCoordinates displays the most recent grid point's values.
	ShowCoordinates bool

	// Width overrides terminal width (0 = auto-detect).
	Width int
}

// DefaultSweepViewConfig returns sensible defaults.
func DefaultSweepViewConfig() SweepViewConfig {
	return SweepViewConfig{
		ShowCoordinates: true,
	}
}

// =============================================================================
// Model
// =============================================================================

// SweepModel is the bubbletea model for sweep progress.
//
// # Description
//
// Tracks point completions, renders a progress bar with failure and
// timing stats, and turns "q" into a sweep abort. The model never quits
// on its own after an abort request; it waits for the worker's DoneMsg
// so the final summary reflects the truncated result.
type SweepModel struct {
	config SweepViewConfig

	// Sweep identity
	target    string
	variables []string
	total     int

	// Abort requests a worker stop; wired by the caller.
	abort func()

	// Progress state
	completed  int
	failed     int
	lastCoords []float64
	started    time.Time
	elapsed    time.Duration

	// Components
	bar progress.Model

	// Terminal dimensions
	width int

	// State flags
	aborting bool
	done     bool
	quitting bool

	// Result
	result *sweep.Result
}

// NewSweepModel creates a sweep progress model.
//
// # Inputs
//
//   - target: Swept stage name, for the header.
//   - variables: Swept variable names, axis order.
//   - total: Full grid size.
//   - abort: Called when the user requests a stop. May be nil.
//   - config: Configuration options.
//
// # Outputs
//
//   - SweepModel: Ready-to-use model for tea.NewProgram.
func NewSweepModel(target string, variables []string, total int, abort func(), config SweepViewConfig) SweepModel {
	bar := progress.New(progress.WithDefaultGradient())
	if config.Width > 0 {
		bar.Width = config.Width - 8
	}

	return SweepModel{
		config:    config,
		target:    target,
		variables: variables,
		total:     total,
		abort:     abort,
		bar:       bar,
		started:   time.Now(),
		width:     config.Width,
	}
}

// Init implements tea.Model.
func (m SweepModel) Init() tea.Cmd {
	return tickCmd()
}

// Update implements tea.Model.
func (m SweepModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		if m.config.Width == 0 {
			m.bar.Width = msg.Width - 8
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "Q", "ctrl+c", "esc":
			if m.abort != nil && !m.aborting && !m.done {
				m.abort()
				m.aborting = true
			}
			return m, nil
		}

	case PointMsg:
		m.completed++
		if msg.Failed {
			m.failed++
		}
		m.lastCoords = msg.Coordinates
		if m.total > 0 {
			return m, m.bar.SetPercent(float64(m.completed) / float64(m.total))
		}
		return m, nil

	case DoneMsg:
		m.done = true
		m.quitting = true
		m.result = msg.Result
		m.elapsed = time.Since(m.started)
		return m, tea.Quit

	case tickMsg:
		if m.done {
			return m, nil
		}
		m.elapsed = time.Since(m.started)
		return m, tickCmd()

	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m SweepModel) View() string {
	if m.quitting {
		return m.renderSummary()
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Parameter sweep"))
	b.WriteString(" ")
	b.WriteString(targetStyle.Render(m.target))
	b.WriteString("\n")
	b.WriteString(statsStyle.Render("axes: " + strings.Join(m.variables, ", ")))
	b.WriteString("\n\n")

	b.WriteString(m.bar.View())
	b.WriteString("\n\n")

	b.WriteString(m.renderStats())
	b.WriteString("\n")

	if m.aborting {
		b.WriteString(abortStyle.Render("stopping after the current point..."))
	} else {
		b.WriteString(helpStyle.Render("q: stop after current point"))
	}
	b.WriteString("\n")

	return b.String()
}

// =============================================================================
// Rendering
// =============================================================================

func (m SweepModel) renderStats() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%d/%d points", m.completed, m.total)
	if m.failed > 0 {
		b.WriteString("  ")
		b.WriteString(failedStyle.Render(fmt.Sprintf("%d failed", m.failed)))
	}
	fmt.Fprintf(&b, "  elapsed %s", m.elapsed.Round(100*time.Millisecond))

	if m.config.ShowCoordinates && len(m.lastCoords) > 0 {
		b.WriteString("\n")
		parts := make([]string, len(m.lastCoords))
		for i, c := range m.lastCoords {
			name := "?"
			if i < len(m.variables) {
				name = m.variables[i]
			}
			parts[i] = fmt.Sprintf("%s=%g", name, c)
		}
		b.WriteString(statsStyle.Render("at " + strings.Join(parts, "  ")))
	}

	return b.String()
}

func (m SweepModel) renderSummary() string {
	if m.result == nil {
		return "Sweep stopped.\n"
	}

	var b strings.Builder
	res := m.result

	outcome := "completed"
	style := doneStyle
	if res.Aborted {
		outcome = "aborted"
		style = abortStyle
	}

	b.WriteString(style.Render(fmt.Sprintf("Sweep %s", outcome)))
	fmt.Fprintf(&b, ": %d/%d points", res.Completed(), res.Total)
	if res.Failed > 0 {
		b.WriteString(", ")
		b.WriteString(failedStyle.Render(fmt.Sprintf("%d failed", res.Failed)))
	}
	fmt.Fprintf(&b, " in %s\n", res.Duration.Round(time.Millisecond))

	return b.String()
}

// =============================================================================
// Result Access
// =============================================================================

// Result returns the sweep result after the TUI exits, nil if the
// program ended before the worker finished.
func (m SweepModel) Result() *sweep.Result {
	return m.result
}

// =============================================================================
// Commands
// =============================================================================

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// =============================================================================
// Styles
// =============================================================================

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	targetStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	statsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	abortStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))
)
