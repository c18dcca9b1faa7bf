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
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/Lithograph/pkg/ux"
	"github.com/AleutianAI/Lithograph/services/litho/config"
	"github.com/AleutianAI/Lithograph/services/litho/pipeline"
	"github.com/AleutianAI/Lithograph/services/litho/watch"
)

// =============================================================================
// CONFIG INIT COMMAND
// =============================================================================

// runConfigInit is the CLI handler for the "lithograph config init"
// command.
//
// It writes the built-in i-line recipe as a YAML file, including a
// sample focus sweep, as a starting point for editing. An existing file
// is left alone unless --force is given.
//
// # Exit Codes
//
//   - 0: File written
//   - 2: File exists without --force, or the write failed
func runConfigInit(cmd *cobra.Command, args []string) {
	start := time.Now()

	path := defaultConfigFile
	if len(args) > 0 {
		path = args[0]
	}

	if _, err := os.Stat(path); err == nil && !configInitForce {
		OutputError(configInitJSON, "Refusing to overwrite (use --force)",
			fmt.Errorf("%s already exists", path))
		os.Exit(CLIExitError)
	}

	if err := config.WriteDefault(path); err != nil {
		OutputError(configInitJSON, "Failed to write configuration", err)
		os.Exit(CLIExitError)
	}

	if configInitJSON {
		result := ConfigInitResult{Path: path}
		os.Exit(OutputResult(OutputConfig{JSON: true}, "config init", start, result, false, nil))
	}
	ux.Success("Wrote " + path)
	ux.Muted("Edit it, then: lithograph sweep -c " + path)
}

// =============================================================================
// WATCH COMMAND
// =============================================================================

// runWatch is the CLI handler for the "lithograph watch" command.
//
// It builds a pipeline, then follows the configuration file until
// interrupted: every saved edit is debounced, validated, and applied to
// the live parameters, which empties exactly the stage caches that
// depended on the changed values. With --stage, the named stage is
// recomputed after each apply so the file becomes a crude interactive
// frontend: save, read the new metrics, repeat.
//
// # Exit Codes
//
//   - 0: Stopped by the user
//   - 2: Setup failed
func runWatch(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	path := configPath
	if path == "" {
		path = defaultConfigFile
	}
	if _, err := os.Stat(path); err != nil {
		OutputError(false, "Cannot watch configuration", err)
		os.Exit(CLIExitError)
	}

	logger := newLogger("cli", false)
	defer logger.Close()

	shutdown, err := setupTelemetry(ctx, logger)
	if err != nil {
		OutputError(false, "Failed to initialize telemetry", err)
		os.Exit(CLIExitError)
	}
	defer shutdown(context.Background())

	pipe, _, err := buildPipeline(logger.Slog())
	if err != nil {
		OutputError(false, "Failed to build pipeline", err)
		os.Exit(CLIExitError)
	}

	var target *pipeline.Stage
	if watchStage != "" {
		target, err = pipe.Stage(watchStage)
		if err != nil {
			OutputError(false, "Unknown stage", err)
			os.Exit(CLIExitError)
		}
	}

	watcher, err := watch.NewConfigWatcher(path, pipe, logger.Slog(), nil)
	if err != nil {
		OutputError(false, "Failed to create watcher", err)
		os.Exit(CLIExitError)
	}

	watcher.SetOnReload(func(cfg config.Config, changed int) {
		if machineMode() {
			fmt.Printf("RELOAD: changed=%d\n", changed)
		} else {
			ux.Success(fmt.Sprintf("Applied %s (%d changed)", path, changed))
		}
		if target == nil {
			return
		}
		value, err := target.Calculate(context.WithoutCancel(ctx))
		if err != nil {
			ux.Error("Recompute failed: " + err.Error())
			return
		}
		printMetrics(target.Name(), value)
	})

	if err := watcher.Start(ctx); err != nil {
		OutputError(false, "Failed to start watcher", err)
		os.Exit(CLIExitError)
	}
	defer watcher.Stop()

	if machineMode() {
		fmt.Printf("WATCHING: %s\n", path)
	} else {
		ux.Info("Watching " + path + " (ctrl+c to stop)")
	}

	<-ctx.Done()
	ux.Muted("Stopped.")
}
