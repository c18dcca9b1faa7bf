package validation

import (
	"strings"
	"testing"
)

func TestValidateStageName(t *testing.T) {
	tests := []struct {
		name    string
		stage   string
		wantErr bool
	}{
		// Valid names
		{"simple", "diffraction", false},
		{"with underscore", "aerial_image", false},
		{"multi underscore", "peb_latent_image", false},
		{"single char", "x", false},
		{"with digit", "stage2", false},

		// Invalid names
		{"empty", "", true},
		{"uppercase", "Diffraction", true},
		{"leading digit", "2stage", true},
		{"leading underscore", "_stage", true},
		{"path separator", "../etc/passwd", true},
		{"slash", "aerial/image", true},
		{"spaces", "aerial image", true},
		{"dot", "aerial.image", true},
		{"shell metachars", "stage;rm -rf", true},
		{"max length", "a" + strings.Repeat("b", 63), false},
		{"too long", "a" + strings.Repeat("b", 64), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStageName(tt.stage)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateStageName(%q) error = %v, wantErr %v", tt.stage, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		// Valid paths
		{"simple", "exposure_focus.focus", false},
		{"short segments", "m.w", false},
		{"digits", "resist2.thickness3", false},

		// Invalid paths
		{"empty", "", true},
		{"no dot", "focus", true},
		{"two dots", "a.b.c", true},
		{"empty group", ".focus", true},
		{"empty variable", "exposure_focus.", true},
		{"uppercase", "Exposure.Focus", true},
		{"spaces", "exposure focus.focus", true},
		{"traversal", "../..", true},
		{"injection", `focus") |> drop()`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePaths(t *testing.T) {
	tests := []struct {
		name    string
		paths   []string
		wantErr bool
	}{
		{"all valid", []string{"exposure_focus.focus", "exposure_focus.dose"}, false},
		{"one invalid", []string{"exposure_focus.focus", "bad!"}, true},
		{"all invalid", []string{"Focus", "Dose"}, true},
		{"empty slice", []string{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePaths(tt.paths)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePaths(%v) error = %v, wantErr %v", tt.paths, err, tt.wantErr)
			}
		})
	}
}

func TestSplitPath(t *testing.T) {
	group, name, err := SplitPath("mask.pitch")
	if err != nil {
		t.Fatalf("SplitPath() error = %v", err)
	}
	if group != "mask" || name != "pitch" {
		t.Errorf("SplitPath() = %q, %q, want %q, %q", group, name, "mask", "pitch")
	}

	if _, _, err := SplitPath("no_dot_here"); err == nil {
		t.Error("SplitPath() accepted a path without a dot")
	}
}

func TestSanitizePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{"lowercase passthrough", "mask.pitch", "mask.pitch", false},
		{"uppercase normalized", "MASK.PITCH", "mask.pitch", false},
		{"mixed case", "Mask.Pitch", "mask.pitch", false},
		{"spaces trimmed", "  mask.pitch  ", "mask.pitch", false},
		{"invalid rejected", "bad!", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizePath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("SanitizePath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("SanitizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestParseAssignment(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantPath  string
		wantValue float64
		wantErr   bool
	}{
		{"simple", "exposure_focus.focus=-200", "exposure_focus.focus", -200, false},
		{"decimal", "exposure_focus.dose=150.5", "exposure_focus.dose", 150.5, false},
		{"spaces around value", "mask.pitch= 500 ", "mask.pitch", 500, false},
		{"uppercase path normalized", "MASK.PITCH=500", "mask.pitch", 500, false},
		{"no equals", "mask.pitch", "", 0, true},
		{"bad path", "pitch=500", "", 0, true},
		{"bad value", "mask.pitch=wide", "", 0, true},
		{"empty value", "mask.pitch=", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, value, err := ParseAssignment(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseAssignment(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if path != tt.wantPath {
				t.Errorf("ParseAssignment(%q) path = %q, want %q", tt.input, path, tt.wantPath)
			}
			if value != tt.wantValue {
				t.Errorf("ParseAssignment(%q) value = %v, want %v", tt.input, value, tt.wantValue)
			}
		})
	}
}
