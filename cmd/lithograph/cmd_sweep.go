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
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/Lithograph/pkg/ux"
	"github.com/AleutianAI/Lithograph/services/litho/events"
	"github.com/AleutianAI/Lithograph/services/litho/export"
	"github.com/AleutianAI/Lithograph/services/litho/pipeline"
	"github.com/AleutianAI/Lithograph/services/litho/sweep"
	"github.com/AleutianAI/Lithograph/services/litho/telemetry"
	"github.com/AleutianAI/Lithograph/services/litho/tui"
)

// =============================================================================
// SWEEP COMMAND
// =============================================================================

// runSweep is the CLI handler for the "lithograph sweep" command.
//
// Interactive terminals get the full-screen progress view; piped,
// --no-tui, --json, and --quiet runs use a plain runner that reports
// progress on stdout instead. Either way the sweep itself is the same
// worker, stepping the variables over the grid and restoring them when
// it finishes. SIGINT stops after the current point.
//
// # Exit Codes
//
//   - 0: Every grid point computed
//   - 1: Sweep finished with failed points, or was aborted
//   - 2: Invalid input or the sweep could not start
func runSweep(cmd *cobra.Command, args []string) {
	start := time.Now()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interactive := ux.IsInteractive() && !sweepNoTUI && !sweepJSON && !sweepQuiet

	// The TUI owns the terminal, so its logs go to file only.
	logger := newLogger("sweep", interactive || sweepQuiet)
	defer logger.Close()

	shutdown, err := setupTelemetry(ctx, logger)
	if err != nil {
		OutputError(sweepJSON, "Failed to initialize telemetry", err)
		os.Exit(CLIExitError)
	}
	defer shutdown(context.Background())

	pipe, cfg, err := buildPipeline(logger.Slog())
	if err != nil {
		OutputError(sweepJSON, "Failed to build pipeline", err)
		os.Exit(CLIExitError)
	}

	spec, err := buildSweepSpec(pipe, cfg)
	if err != nil {
		OutputError(sweepJSON, "Invalid sweep", err)
		os.Exit(CLIExitError)
	}
	if sweepOut == "" {
		sweepOut = cfg.Sweep.Out
	}

	// Register the batch metrics before the run so the final observation
	// lands in the same exporters the shutdown flushes.
	metrics, err := telemetry.NewMetrics(otel.Meter("lithograph.cli"))
	if err != nil {
		logger.Warn("sweep metrics disabled", "error", err)
		metrics = nil
	}

	var res *sweep.Result
	if interactive {
		res, err = runSweepTUI(ctx, pipe, spec)
	} else {
		res, err = runSweepPlain(ctx, pipe, spec)
	}
	if err != nil {
		OutputError(sweepJSON, "Sweep failed", err)
		os.Exit(CLIExitError)
	}

	if metrics != nil {
		metrics.ObserveSweep(context.Background(), res)
	}

	if sweepOut != "" {
		if err := export.SaveSweep(sweepOut, res); err != nil {
			OutputError(sweepJSON, "Failed to write sweep table", err)
			os.Exit(CLIExitError)
		}
	}

	incomplete := res.Failed > 0 || res.Aborted

	if sweepJSON || sweepQuiet {
		result := SweepRunResult{
			RunID:      res.RunID,
			Target:     res.Target,
			Variables:  res.Variables,
			Total:      res.Total,
			Completed:  res.Completed(),
			Failed:     res.Failed,
			Aborted:    res.Aborted,
			DurationMs: res.Duration.Milliseconds(),
			Output:     sweepOut,
		}
		outCfg := OutputConfig{JSON: sweepJSON, Quiet: sweepQuiet}
		os.Exit(OutputResult(outCfg, "sweep", start, result, incomplete, nil))
	}

	// The TUI already rendered its own summary line on exit.
	if !interactive {
		ux.SweepSummary(res.Completed()-res.Failed, res.Failed, res.Total, res.Duration)
	}
	if res.Aborted {
		ux.Warning(fmt.Sprintf("Stopped after %d of %d points", res.Completed(), res.Total))
	}
	if sweepOut != "" {
		ux.Success("Saved " + sweepOut)
	}
	if incomplete {
		os.Exit(CLIExitIncomplete)
	}
}

// runSweepTUI drives the sweep under the full-screen progress view.
//
// The worker's point events are forwarded into the program as messages;
// the model turns "q" into a worker abort and quits when the result
// message arrives. Subscription happens before the worker starts so the
// first point cannot slip past the view.
func runSweepTUI(ctx context.Context, pipe *pipeline.Pipeline, spec sweep.Spec) (*sweep.Result, error) {
	var worker *sweep.Worker
	abort := func() {
		if worker != nil {
			worker.Abort()
		}
	}

	model := tui.NewSweepModel(spec.Target.Name(), spec.VariableNames(), spec.Points(),
		abort, tui.DefaultSweepViewConfig())
	program := tea.NewProgram(model)

	subID := pipe.Events().Subscribe(func(e *events.Event) {
		data, ok := e.Data.(events.PointCompletedData)
		if !ok {
			return
		}
		program.Send(tui.PointMsg{
			Index:       data.Index,
			Total:       data.Total,
			Coordinates: data.Coordinates,
			Failed:      data.Failed,
		})
	}, events.TypePointCompleted)
	defer pipe.Events().Unsubscribe(subID)

	worker, err := sweep.Start(ctx, pipe, spec)
	if err != nil {
		return nil, err
	}
	go func() {
		program.Send(tui.DoneMsg{Result: <-worker.Results()})
	}()

	final, err := program.Run()
	if err != nil {
		worker.Stop()
		return nil, err
	}

	m, ok := final.(tui.SweepModel)
	if !ok || m.Result() == nil {
		worker.Stop()
		return nil, errors.New("progress view exited before the sweep finished")
	}
	return m.Result(), nil
}

// runSweepPlain drives the sweep without a terminal UI.
//
// Interactive-but-plain runs get a spinner with a point counter; machine
// runs get PROGRESS lines throttled to one per second so a fast sweep
// does not flood the consumer.
func runSweepPlain(ctx context.Context, pipe *pipeline.Pipeline, spec sweep.Spec) (*sweep.Result, error) {
	var spin *ux.ProgressSpinner
	if !sweepQuiet && !sweepJSON && ux.ShouldShowProgress() {
		spin = ux.NewProgressSpinner("Sweeping "+spec.Target.Name(), spec.Points())
		spin.Start()
	}

	progressEvery := rate.Sometimes{First: 1, Interval: time.Second}
	showMachine := !sweepQuiet && !sweepJSON && machineMode()

	subID := pipe.Events().Subscribe(func(e *events.Event) {
		data, ok := e.Data.(events.PointCompletedData)
		if !ok {
			return
		}
		if spin != nil {
			spin.SetProgress(data.Index + 1)
			return
		}
		if showMachine {
			progressEvery.Do(func() {
				fmt.Printf("PROGRESS: %d/%d\n", data.Index+1, data.Total)
			})
		}
	}, events.TypePointCompleted)
	defer pipe.Events().Unsubscribe(subID)

	worker, err := sweep.Start(ctx, pipe, spec)
	if err != nil {
		if spin != nil {
			spin.Stop()
		}
		return nil, err
	}

	res := <-worker.Results()
	if spin != nil {
		spin.Stop()
	}
	return res, nil
}
