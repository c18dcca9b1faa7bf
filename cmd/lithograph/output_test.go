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
	"errors"
	"testing"
	"time"
)

// TestOutputResultExitCodes covers the exit-code mapping: clean run,
// incomplete run, failure, and failure outranking incomplete.
func TestOutputResultExitCodes(t *testing.T) {
	cfg := OutputConfig{JSON: false, Quiet: true}

	tests := []struct {
		name       string
		incomplete bool
		err        error
		want       int
	}{
		{"clean", false, nil, CLIExitSuccess},
		{"incomplete", true, nil, CLIExitIncomplete},
		{"error", false, errors.New("boom"), CLIExitError},
		{"error outranks incomplete", true, errors.New("boom"), CLIExitError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := OutputResult(cfg, "test", time.Now(), nil, tt.incomplete, tt.err)
			if got != tt.want {
				t.Errorf("exit code = %d, want %d", got, tt.want)
			}
		})
	}
}

// TestExitCodeValues pins the numbers scripts depend on.
func TestExitCodeValues(t *testing.T) {
	if CLIExitSuccess != 0 || CLIExitIncomplete != 1 || CLIExitError != 2 {
		t.Errorf("exit codes = %d, %d, %d, want 0, 1, 2",
			CLIExitSuccess, CLIExitIncomplete, CLIExitError)
	}
}

// TestSweepRunResultJSON tests the wire names scripting consumers read.
func TestSweepRunResultJSON(t *testing.T) {
	result := SweepRunResult{
		RunID:      "a1b2c3d4e5f6",
		Target:     "resist_profile",
		Variables:  []string{"focus", "dose"},
		Total:      9,
		Completed:  9,
		Failed:     1,
		DurationMs: 1500,
	}

	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("Failed to marshal SweepRunResult: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Failed to unmarshal SweepRunResult: %v", err)
	}

	for _, key := range []string{"run_id", "target", "variables", "total", "completed", "failed", "aborted", "duration_ms"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("Missing JSON field %q", key)
		}
	}
	if _, ok := fields["output"]; ok {
		t.Error("Empty output should be omitted")
	}
}

// TestCommandResultJSON_OmitsEmpty tests that error and data are omitted
// when unset.
func TestCommandResultJSON_OmitsEmpty(t *testing.T) {
	result := CommandResult{
		APIVersion: "1.0",
		Command:    "params",
		Timestamp:  time.Now(),
		Success:    true,
	}

	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("Failed to marshal CommandResult: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Failed to unmarshal CommandResult: %v", err)
	}

	if _, ok := fields["error"]; ok {
		t.Error("Empty error should be omitted")
	}
	if _, ok := fields["data"]; ok {
		t.Error("Empty data should be omitted")
	}
	if fields["api_version"] != "1.0" {
		t.Errorf("api_version = %v, want 1.0", fields["api_version"])
	}
}
