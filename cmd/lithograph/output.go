// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Exit codes. Scripts read these, so the mapping is stable: 0 clean,
// 1 ran but left failed or aborted work, 2 did not run.
const (
	CLIExitSuccess    = 0
	CLIExitIncomplete = 1
	CLIExitError      = 2
)

// OutputConfig controls how a command reports its result.
type OutputConfig struct {
	JSON    bool // machine-readable envelope on stdout
	Compact bool // no indentation
	Quiet   bool // exit code only
}

// CommandResult is the JSON envelope around command output.
type CommandResult struct {
	APIVersion string    `json:"api_version"`
	Command    string    `json:"command"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	Data       any       `json:"data,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// writeJSON encodes v to stdout, indented unless compact.
func writeJSON(v any, compact bool) error {
	enc := json.NewEncoder(os.Stdout)
	if !compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// OutputError reports a failure: as a CommandResult envelope on stdout
// in JSON mode, as a plain line on stderr otherwise.
func OutputError(jsonMode bool, msg string, err error) {
	if !jsonMode {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
		return
	}
	_ = writeJSON(CommandResult{
		APIVersion: "1.0",
		Timestamp:  time.Now(),
		Success:    false,
		Error:      fmt.Sprintf("%s: %v", msg, err),
	}, false)
}

// OutputResult finishes a command: emits the JSON envelope when asked
// for and picks the exit code.
//
// # Inputs
//
//   - cfg: Output configuration.
//   - cmd: Command name recorded in the envelope.
//   - start: When the command began, for duration_ms.
//   - data: Command-specific payload.
//   - incomplete: The run left failed or aborted work.
//   - err: The failure that stopped the command, if any.
//
// # Outputs
//
//   - int: The exit code to pass to os.Exit.
func OutputResult(cfg OutputConfig, cmd string, start time.Time, data any, incomplete bool, err error) int {
	if err != nil {
		if !cfg.Quiet {
			OutputError(cfg.JSON, "Command failed", err)
		}
		return CLIExitError
	}

	if cfg.JSON && !cfg.Quiet {
		envelope := CommandResult{
			APIVersion: "1.0",
			Command:    cmd,
			Timestamp:  time.Now(),
			DurationMs: time.Since(start).Milliseconds(),
			Success:    true,
			Data:       data,
		}
		if encErr := writeJSON(envelope, cfg.Compact); encErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", encErr)
			return CLIExitError
		}
	}

	if incomplete {
		return CLIExitIncomplete
	}
	return CLIExitSuccess
}

// VariableInfo represents one parameter in params output.
type VariableInfo struct {
	Path  string  `json:"path"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// GroupInfo represents one parameter group in params output.
type GroupInfo struct {
	Name      string         `json:"name"`
	Variables []VariableInfo `json:"variables"`
}

// ParamsResult holds params command output.
type ParamsResult struct {
	Groups []GroupInfo `json:"groups"`
}

// StageInfo represents one pipeline stage in stages output.
type StageInfo struct {
	Name        string `json:"name"`
	Predecessor string `json:"predecessor,omitempty"`
	State       string `json:"state"`
}

// StagesResult holds stages command output.
type StagesResult struct {
	Stages []StageInfo `json:"stages"`
}

// MetricValue is one named summary metric of a stage result.
type MetricValue struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// SimulateResult holds simulate command output.
type SimulateResult struct {
	Stage   string        `json:"stage"`
	Metrics []MetricValue `json:"metrics,omitempty"`
	Output  string        `json:"output,omitempty"`
}

// SweepRunResult holds sweep command output.
type SweepRunResult struct {
	RunID      string   `json:"run_id"`
	Target     string   `json:"target"`
	Variables  []string `json:"variables"`
	Total      int      `json:"total"`
	Completed  int      `json:"completed"`
	Failed     int      `json:"failed"`
	Aborted    bool     `json:"aborted"`
	DurationMs int64    `json:"duration_ms"`
	Output     string   `json:"output,omitempty"`
}

// ConfigInitResult holds config init output.
type ConfigInitResult struct {
	Path string `json:"path"`
}
