// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation for user-supplied
// identifiers.
//
// Stage names and variable paths arrive as free text from CLI flags and
// config files, and end up in output file names and log fields. These
// validators reject malformed identifiers early with uniform messages
// and keep path-unsafe characters out of generated file names.
package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// namePattern matches a single identifier segment: a stage name or a
// group/variable name.
// Allows: lowercase letters, digits, underscores. Must start with a letter.
// Max length: 64 characters.
var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// pathPattern matches a variable path of the form "group.variable",
// e.g. "exposure_focus.focus".
var pathPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}\.[a-z][a-z0-9_]{0,63}$`)

// ValidateStageName validates a stage name from user input.
//
// This checks shape only; whether the stage exists is decided at
// lookup. Valid names are 1-64 lowercase alphanumeric characters or
// underscores, starting with a letter.
//
// Example:
//
//	if err := validation.ValidateStageName(name); err != nil {
//	    return fmt.Errorf("invalid stage: %w", err)
//	}
//	// Safe to use in an output file name
func ValidateStageName(name string) error {
	if name == "" {
		return fmt.Errorf("stage name cannot be empty")
	}

	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid stage name: %q (must be lowercase alphanumeric or underscore, starting with a letter)", name)
	}

	return nil
}

// ValidatePath validates a variable path of the form "group.variable".
//
// Valid paths:
//   - exactly one dot separating group and variable
//   - each segment 1-64 lowercase alphanumeric characters or underscores
//   - each segment starts with a letter
//
// Returns an error if the path is invalid.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("variable path cannot be empty")
	}

	if !pathPattern.MatchString(path) {
		return fmt.Errorf("invalid variable path: %q (expected \"group.variable\")", path)
	}

	return nil
}

// ValidatePaths validates multiple variable paths.
// Returns an error listing all invalid paths if any fail validation.
func ValidatePaths(paths []string) error {
	var invalid []string
	for _, p := range paths {
		if err := ValidatePath(p); err != nil {
			invalid = append(invalid, p)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid variable paths: %v", invalid)
	}
	return nil
}

// SplitPath validates a variable path and returns its group and
// variable segments.
func SplitPath(path string) (group, name string, err error) {
	if err := ValidatePath(path); err != nil {
		return "", "", err
	}
	group, name, _ = strings.Cut(path, ".")
	return group, name, nil
}

// SanitizePath normalizes and validates a variable path.
// Returns the lowercase trimmed path if valid, or an error if invalid.
//
// Use this for CLI input where case and surrounding whitespace should
// be forgiven:
//
//	path, err := validation.SanitizePath(userInput)
//	if err != nil {
//	    return err
//	}
func SanitizePath(path string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(path))
	if err := ValidatePath(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// ParseAssignment parses a "group.variable=value" override from the
// command line.
//
// The path is sanitized with SanitizePath and the value must parse as a
// float.
//
// Example:
//
//	path, value, err := validation.ParseAssignment("exposure_focus.focus=-200")
func ParseAssignment(s string) (path string, value float64, err error) {
	rawPath, rawValue, found := strings.Cut(s, "=")
	if !found {
		return "", 0, fmt.Errorf("invalid assignment: %q (expected \"group.variable=value\")", s)
	}

	path, err = SanitizePath(rawPath)
	if err != nil {
		return "", 0, err
	}

	value, err = strconv.ParseFloat(strings.TrimSpace(rawValue), 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid value in %q: %q is not a number", s, rawValue)
	}

	return path, value, nil
}
