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
	"github.com/AleutianAI/Lithograph/pkg/ux"
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath       string
	logDir           string
	logLevel         string
	metricsAddr      string
	personalityLevel string // UX personality level (full/standard/minimal/machine)

	paramsJSON bool
	stagesJSON bool

	simulateJSON bool
	simulateOut  string
	simulateSets []string

	sweepJSON   bool
	sweepQuiet  bool
	sweepNoTUI  bool
	sweepOut    string
	sweepTarget string
	sweepAxes   []string

	configInitJSON  bool
	configInitForce bool

	watchStage string

	rootCmd = &cobra.Command{
		Use:   "lithograph",
		Short: "Optical lithography simulation from the command line",
		Long: `Lithograph models how a line/space mask prints: diffraction,
				aerial imaging, exposure, post-exposure bake, and development,
				chained in a memoized pipeline whose caches empty when the
				parameters they depend on change. Parameter sweeps batch the
				pipeline over one or two swept variables.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize UX personality from flag or environment
			if personalityLevel != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			} else {
				ux.InitPersonality()
			}
		},
	}

	// --- Inspection ---
	paramsCmd = &cobra.Command{
		Use:   "params",
		Short: "List the simulation parameters and their current values",
		Run:   runParams, // Defined in cmd_simulate.go
	}
	stagesCmd = &cobra.Command{
		Use:   "stages",
		Short: "List the pipeline stages in dependency order",
		Run:   runStages, // Defined in cmd_simulate.go
	}

	// --- Simulation ---
	simulateCmd = &cobra.Command{
		Use:   "simulate [stage]",
		Short: "Run the pipeline up to a stage (default: resist_profile)",
		Long: `Simulate computes one stage and everything upstream of it, then
				prints the result's summary metrics. Upstream stages already in
				cache are reused, not recomputed.`,
		Args: cobra.MaximumNArgs(1),
		Run:  runSimulate, // Defined in cmd_simulate.go
	}

	// --- Sweeps ---
	sweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Evaluate a stage over a grid of one or two swept variables",
		Long: `Sweep steps the swept variables over their ranges, recomputes the
				target stage at every grid point, and restores the original
				values afterwards. Axes come from --axis flags or from the
				configuration file's sweep section. Interactive runs show a
				progress view; press q to stop after the current point.`,
		Run: runSweep, // Defined in cmd_sweep.go
	}

	// --- Configuration ---
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Manage the simulation configuration file",
	}
	configInitCmd = &cobra.Command{
		Use:   "init [path]",
		Short: "Write a starter configuration file with the built-in recipe",
		Args:  cobra.MaximumNArgs(1),
		Run:   runConfigInit, // Defined in cmd_config.go
	}

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Watch the configuration file and apply edits live",
		Long: `Watch reloads the configuration whenever the file changes and
				applies it to a running pipeline. Stages depending on a changed
				value drop their caches; with --stage, the named stage is
				recomputed after every reload and its metrics printed.`,
		Run: runWatch, // Defined in cmd_config.go
	}
)

// init runs when the Go program starts
func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to a YAML or JSON configuration file")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "",
		"Directory for JSON log files (disabled when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Minimum log level: debug, info, warn, or error")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "",
		"Serve Prometheus metrics on this address (e.g. :9090)")
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output style: full (default), standard, minimal, or machine (scripting)")

	rootCmd.AddCommand(paramsCmd)
	paramsCmd.Flags().BoolVar(&paramsJSON, "json", false, "Output as JSON")

	rootCmd.AddCommand(stagesCmd)
	stagesCmd.Flags().BoolVar(&stagesJSON, "json", false, "Output as JSON")

	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().BoolVar(&simulateJSON, "json", false, "Output as JSON")
	simulateCmd.Flags().StringVarP(&simulateOut, "out", "o", "",
		"Write the stage result to this file (.csv or .json)")
	simulateCmd.Flags().StringArrayVar(&simulateSets, "set", nil,
		"Override a parameter, e.g. --set exposure_focus.dose=150 (repeatable)")

	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().BoolVar(&sweepJSON, "json", false, "Output as JSON")
	sweepCmd.Flags().BoolVar(&sweepQuiet, "quiet", false, "No output, exit code only")
	sweepCmd.Flags().BoolVar(&sweepNoTUI, "no-tui", false, "Disable the interactive progress view")
	sweepCmd.Flags().StringVarP(&sweepOut, "out", "o", "",
		"Write the sweep table to this file (.csv, .tsv, or .json)")
	sweepCmd.Flags().StringVar(&sweepTarget, "target", "",
		"Stage to evaluate at each grid point (default: resist_profile)")
	sweepCmd.Flags().StringArrayVar(&sweepAxes, "axis", nil,
		"Swept variable, e.g. --axis exposure_focus.focus=-400:400:100 (max 2)")

	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().BoolVar(&configInitJSON, "json", false, "Output as JSON")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing file")

	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchStage, "stage", "",
		"Recompute this stage after each reload and print its metrics")
}
