// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package export writes stage results and sweep tables to CSV and
// JSON for spreadsheets and downstream tooling.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AleutianAI/Lithograph/services/litho/physics"
	"github.com/AleutianAI/Lithograph/services/litho/sweep"
)

// StageCSV writes one stage result as CSV, choosing the layout by type.
//
// Outputs:
//
//	error - Non-nil for result types with no tabular form.
func StageCSV(w io.Writer, v any) error {
	switch r := v.(type) {
	case *physics.DiffractionPattern:
		return ordersCSV(w, r)
	case *physics.Image:
		return imageCSV(w, r)
	case *physics.DepthProfile:
		return depthProfileCSV(w, r)
	case *physics.Volume:
		return volumeCSV(w, r)
	case *physics.Contours:
		return contoursCSV(w, r)
	case *physics.Profile:
		return profileCSV(w, r)
	default:
		return fmt.Errorf("csv export: unsupported stage result %T", v)
	}
}

func ordersCSV(w io.Writer, d *physics.DiffractionPattern) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"m", "cx", "re", "im"})
	for _, o := range d.Orders {
		cw.Write([]string{
			strconv.Itoa(o.M),
			formatFloat(o.CX),
			formatFloat(real(o.Amplitude)),
			formatFloat(imag(o.Amplitude)),
		})
	}
	cw.Flush()
	return cw.Error()
}

func imageCSV(w io.Writer, im *physics.Image) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"x_nm", "intensity"})
	for i, x := range im.X {
		cw.Write([]string{formatFloat(x), formatFloat(im.Intensity[i])})
	}
	cw.Flush()
	return cw.Error()
}

func depthProfileCSV(w io.Writer, dp *physics.DepthProfile) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"z_nm", "intensity"})
	for i, in := range dp.Intensities() {
		cw.Write([]string{formatFloat(dp.Z[i]), formatFloat(in)})
	}
	cw.Flush()
	return cw.Error()
}

func volumeCSV(w io.Writer, v *physics.Volume) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"x_nm", "z_nm", "value"})
	for ix, x := range v.X {
		for iz, z := range v.Z {
			cw.Write([]string{formatFloat(x), formatFloat(z), formatFloat(v.Values[ix][iz])})
		}
	}
	cw.Flush()
	return cw.Error()
}

func contoursCSV(w io.Writer, c *physics.Contours) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"x_nm", "z_nm", "clear_time_s"})
	for ix, x := range c.X {
		for iz, z := range c.Z {
			cw.Write([]string{formatFloat(x), formatFloat(z), formatFloat(c.ClearTime[ix][iz])})
		}
	}
	cw.Flush()
	return cw.Error()
}

func profileCSV(w io.Writer, p *physics.Profile) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"x_nm", "depth_nm"})
	for i, x := range p.X {
		cw.Write([]string{formatFloat(x), formatFloat(p.Depth[i])})
	}
	cw.Flush()
	return cw.Error()
}

// SweepCSV writes one row per grid point: flat index, the swept
// coordinates, then the scalar metrics for the target's result type.
// Failed points keep their row with empty metric cells and the error
// in the last column.
func SweepCSV(w io.Writer, res *sweep.Result) error {
	return sweepTable(w, res, ',')
}

// SweepTSV writes the same table tab-separated, the form spreadsheet
// tools paste directly.
func SweepTSV(w io.Writer, res *sweep.Result) error {
	return sweepTable(w, res, '\t')
}

func sweepTable(w io.Writer, res *sweep.Result, comma rune) error {
	if res == nil {
		return fmt.Errorf("sweep export: nil result")
	}

	metricNames := sweepMetricNames(res)

	cw := csv.NewWriter(w)
	cw.Comma = comma
	header := append([]string{"index"}, res.Variables...)
	header = append(header, metricNames...)
	header = append(header, "error")
	cw.Write(header)

	for _, pt := range res.Points {
		row := make([]string, 0, len(header))
		row = append(row, strconv.Itoa(pt.Index))
		for _, c := range pt.Coordinates {
			row = append(row, formatFloat(c))
		}
		names, values, ok := Columns(pt.Value)
		if ok && matches(names, metricNames) {
			for _, v := range values {
				row = append(row, formatFloat(v))
			}
		} else {
			for range metricNames {
				row = append(row, "")
			}
		}
		if pt.Err != nil {
			row = append(row, pt.Err.Error())
		} else {
			row = append(row, "")
		}
		cw.Write(row)
	}

	cw.Flush()
	return cw.Error()
}

// SweepJSON writes the sweep as an indented JSON document with run
// metadata and per-point metric values.
func SweepJSON(w io.Writer, res *sweep.Result) error {
	if res == nil {
		return fmt.Errorf("json export: nil sweep result")
	}

	view := sweepView{
		RunID:      res.RunID,
		Target:     res.Target,
		Variables:  res.Variables,
		Total:      res.Total,
		Completed:  res.Completed(),
		Failed:     res.Failed,
		Aborted:    res.Aborted,
		DurationMS: float64(res.Duration.Microseconds()) / 1000.0,
		Metrics:    sweepMetricNames(res),
	}
	for _, pt := range res.Points {
		pv := pointView{Index: pt.Index, Coordinates: pt.Coordinates}
		if names, values, ok := Columns(pt.Value); ok {
			pv.Values = make(map[string]float64, len(names))
			for i, n := range names {
				pv.Values[n] = values[i]
			}
		}
		if pt.Err != nil {
			pv.Error = pt.Err.Error()
		}
		view.Points = append(view.Points, pv)
	}

	data, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sweep: %w", err)
	}
	_, err = w.Write(data)
	return err
}

type sweepView struct {
	RunID      string      `json:"run_id"`
	Target     string      `json:"target"`
	Variables  []string    `json:"variables"`
	Total      int         `json:"total"`
	Completed  int         `json:"completed"`
	Failed     int         `json:"failed"`
	Aborted    bool        `json:"aborted"`
	DurationMS float64     `json:"duration_ms"`
	Metrics    []string    `json:"metrics"`
	Points     []pointView `json:"points"`
}

type pointView struct {
	Index       int                `json:"index"`
	Coordinates []float64          `json:"coordinates"`
	Values      map[string]float64 `json:"values,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// StageJSON writes one stage result as an indented JSON document with
// the result's summary line and its scalar metrics.
func StageJSON(w io.Writer, v any) error {
	names, values, ok := Columns(v)
	if !ok {
		return fmt.Errorf("json export: unsupported stage result %T", v)
	}
	view := stageView{
		Summary: fmt.Sprint(v),
		Metrics: make(map[string]float64, len(names)),
	}
	for i, n := range names {
		view.Metrics[n] = values[i]
	}
	data, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal stage: %w", err)
	}
	_, err = w.Write(data)
	return err
}

type stageView struct {
	Summary string             `json:"summary"`
	Metrics map[string]float64 `json:"metrics"`
}

// SaveSweep writes the sweep to path. The extension picks the format:
// .json, .tsv, or CSV for anything else.
func SaveSweep(path string, res *sweep.Result) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer file.Close()

	switch {
	case strings.EqualFold(filepath.Ext(path), ".json"):
		return SweepJSON(file, res)
	case strings.EqualFold(filepath.Ext(path), ".tsv"):
		return SweepTSV(file, res)
	default:
		return SweepCSV(file, res)
	}
}

// SaveStage writes one stage result to path, JSON for .json and CSV
// for anything else.
func SaveStage(path string, v any) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer file.Close()
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return StageJSON(file, v)
	}
	return StageCSV(file, v)
}

// sweepMetricNames returns the metric columns for the first
// successful point. Every point of a sweep shares the target's result
// type, so one probe fixes the schema.
func sweepMetricNames(res *sweep.Result) []string {
	for _, pt := range res.Points {
		if names, _, ok := Columns(pt.Value); ok {
			return names
		}
	}
	return nil
}

func matches(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
