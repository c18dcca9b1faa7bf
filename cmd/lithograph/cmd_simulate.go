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
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/Lithograph/pkg/ux"
	"github.com/AleutianAI/Lithograph/pkg/validation"
	"github.com/AleutianAI/Lithograph/services/litho/config"
	"github.com/AleutianAI/Lithograph/services/litho/events"
	"github.com/AleutianAI/Lithograph/services/litho/export"
	"github.com/AleutianAI/Lithograph/services/litho/pipeline"
)

// =============================================================================
// PARAMS COMMAND
// =============================================================================

// runParams is the CLI handler for the "lithograph params" command.
//
// It lists every simulation variable with its current value, grouped the
// way the pipeline's invalidation table sees them. Values reflect the
// configuration file, so this doubles as a "what would I actually run"
// check.
//
// # Exit Codes
//
//   - 0: Parameters listed
//   - 2: Configuration failed to load
func runParams(cmd *cobra.Command, args []string) {
	start := time.Now()

	cfg, err := config.Load(configPath)
	if err != nil {
		OutputError(paramsJSON, "Failed to load configuration", err)
		os.Exit(CLIExitError)
	}

	params := pipeline.DefaultParameters()
	cfg.Apply(params)

	if paramsJSON {
		var result ParamsResult
		for _, g := range params.Set().Groups() {
			info := GroupInfo{Name: g.Name()}
			for _, v := range g.Members() {
				info.Variables = append(info.Variables, VariableInfo{
					Path:  g.Name() + "." + v.Name(),
					Value: v.Value(),
					Unit:  v.Unit(),
				})
			}
			result.Groups = append(result.Groups, info)
		}
		os.Exit(OutputResult(OutputConfig{JSON: true}, "params", start, result, false, nil))
	}

	for _, g := range params.Set().Groups() {
		ux.Title(g.Name())
		for _, v := range g.Members() {
			if machineMode() {
				fmt.Printf("%s.%s\t%g\t%s\n", g.Name(), v.Name(), v.Value(), v.Unit())
			} else if v.Unit() != "" {
				fmt.Printf("  %-26s %g %s\n", v.Name(), v.Value(), v.Unit())
			} else {
				fmt.Printf("  %-26s %g\n", v.Name(), v.Value())
			}
		}
	}
}

// =============================================================================
// STAGES COMMAND
// =============================================================================

// runStages is the CLI handler for the "lithograph stages" command.
//
// It prints the stage graph in dependency order, each stage with its
// predecessor. A fresh process holds no results, so every stage reports
// the empty state; the listing is about the shape of the graph.
//
// # Exit Codes
//
//   - 0: Stages listed
//   - 2: Configuration or pipeline construction failed
func runStages(cmd *cobra.Command, args []string) {
	start := time.Now()

	logger := newLogger("cli", true)
	defer logger.Close()

	pipe, _, err := buildPipeline(logger.Slog())
	if err != nil {
		OutputError(stagesJSON, "Failed to build pipeline", err)
		os.Exit(CLIExitError)
	}

	if stagesJSON {
		var result StagesResult
		for _, name := range pipe.StageNames() {
			s, _ := pipe.Stage(name)
			info := StageInfo{Name: name, State: s.State().String()}
			if s.Predecessor() != nil {
				info.Predecessor = s.Predecessor().Name()
			}
			result.Stages = append(result.Stages, info)
		}
		os.Exit(OutputResult(OutputConfig{JSON: true}, "stages", start, result, false, nil))
	}

	for _, name := range pipe.StageNames() {
		s, _ := pipe.Stage(name)
		note := "root"
		if s.Predecessor() != nil {
			note = "after " + s.Predecessor().Name()
		}
		ux.StageStatus(name, ux.IconPending, note)
	}
}

// =============================================================================
// SIMULATE COMMAND
// =============================================================================

// runSimulate is the CLI handler for the "lithograph simulate" command.
//
// The positional argument names the target stage; everything upstream of
// it is computed first. Stage completions are echoed as they happen, and
// the target's summary metrics close the run. --set overrides are applied
// after the configuration, --out writes the full result to disk.
//
// # Exit Codes
//
//   - 0: Stage computed
//   - 2: Invalid input, compute failure, or write failure
func runSimulate(cmd *cobra.Command, args []string) {
	start := time.Now()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stageName := pipeline.StageResistProfile
	if len(args) > 0 {
		stageName = strings.ToLower(strings.TrimSpace(args[0]))
	}
	if err := validation.ValidateStageName(stageName); err != nil {
		OutputError(simulateJSON, "Invalid stage name", err)
		os.Exit(CLIExitError)
	}

	logger := newLogger("cli", false)
	defer logger.Close()

	shutdown, err := setupTelemetry(ctx, logger)
	if err != nil {
		OutputError(simulateJSON, "Failed to initialize telemetry", err)
		os.Exit(CLIExitError)
	}
	defer shutdown(context.Background())

	pipe, _, err := buildPipeline(logger.Slog())
	if err != nil {
		OutputError(simulateJSON, "Failed to build pipeline", err)
		os.Exit(CLIExitError)
	}

	if _, err := applyAssignments(pipe.Params(), simulateSets); err != nil {
		OutputError(simulateJSON, "Invalid --set override", err)
		os.Exit(CLIExitError)
	}

	target, err := pipe.Stage(stageName)
	if err != nil {
		OutputError(simulateJSON, "Unknown stage", err)
		os.Exit(CLIExitError)
	}

	// Echo stage completions while the chain computes.
	if !simulateJSON {
		pipe.Events().Subscribe(func(e *events.Event) {
			data, ok := e.Data.(events.StageCalculatedData)
			if !ok {
				return
			}
			note := "computed in " + data.Duration.Round(time.Millisecond).String()
			if data.FromCache {
				note = "cached"
			}
			ux.StageStatus(data.Stage, ux.IconSuccess, note)
		}, events.TypeStageCalculated)
	}

	value, err := target.Calculate(ctx)
	if err != nil {
		OutputError(simulateJSON, "Simulation failed", err)
		os.Exit(CLIExitError)
	}

	if simulateOut != "" {
		if err := export.SaveStage(simulateOut, value); err != nil {
			OutputError(simulateJSON, "Failed to write result", err)
			os.Exit(CLIExitError)
		}
	}

	if simulateJSON {
		result := SimulateResult{
			Stage:   stageName,
			Metrics: columnsToMetrics(value),
			Output:  simulateOut,
		}
		os.Exit(OutputResult(OutputConfig{JSON: true}, "simulate", start, result, false, nil))
	}

	ux.Title(stageName)
	printMetrics(stageName, value)
	if simulateOut != "" {
		ux.Success("Saved " + simulateOut)
	}
}
