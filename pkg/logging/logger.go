// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging wraps log/slog with the output plumbing the simulator
// needs: stderr for interactive runs, a daily JSON file for unattended
// ones, and an optional export hook.
//
// # Destinations
//
// A Logger writes to any combination of three destinations, chosen by
// Config: a stderr handler (text by default, JSON with Config.JSON),
// a per-day log file under Config.LogDir named {service}_{date}.log
// (always JSON, appended so reruns on the same day share a file), and
// a LogExporter called asynchronously with every entry. Quiet drops
// the stderr handler, which is how TUI runs keep the terminal clean
// while --log-dir still captures everything.
//
// # Thread Safety
//
// Logger is safe for concurrent use. slog handlers serialize their own
// writes; the exporter receives entries on short-lived goroutines and
// must tolerate concurrent Export calls.
package logging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level is the minimum-severity knob for a Logger. Values order
// Debug < Info < Warn < Error; entries below Config.Level are dropped.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the conventional upper-case name, "UNKNOWN" for
// out-of-range values.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// slogLevel maps to the slog equivalent, defaulting unknown values to
// Info rather than failing.
func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config selects the Logger's destinations. The zero value logs Info
// and above to stderr as text.
type Config struct {
	// Level is the minimum severity to emit.
	Level Level

	// LogDir, when non-empty, adds a JSON file destination under this
	// directory (created 0750 if missing, ~ expands to the home
	// directory). One file per service per day.
	LogDir string

	// Service tags every entry with a "service" attribute and names
	// the log file. Empty means no attribute and the "lithograph"
	// file prefix.
	Service string

	// JSON switches the stderr handler from text to JSON. The file
	// destination ignores this and always writes JSON.
	JSON bool

	// Quiet removes the stderr handler. File and exporter
	// destinations still apply.
	Quiet bool

	// Exporter, when non-nil, receives every emitted entry
	// asynchronously.
	Exporter LogExporter
}

// LogExporter forwards emitted entries somewhere else, for tests or an
// external collector. Export is called on its own goroutine per entry
// with a one-second deadline and its error is discarded, so slow or
// failing exporters cannot stall logging. Flush then Close run during
// Logger.Close.
type LogExporter interface {
	Export(ctx context.Context, entry LogEntry) error
	Flush(ctx context.Context) error
	Close() error
}

// LogEntry is the exporter-facing view of one log call.
type LogEntry struct {
	Timestamp time.Time
	Level     Level
	Message   string
	Service   string

	// Attrs holds the per-call key-value args. Attributes baked in
	// via With live in the slog handler chain and are not repeated
	// here.
	Attrs map[string]any
}

// Logger fans log records out to the destinations its Config named.
// Close releases the file handle and exporter; callers that enable
// either should defer it.
type Logger struct {
	slog     *slog.Logger
	config   Config
	mu       sync.Mutex
	file     *os.File
	exporter LogExporter
}

// New builds a Logger from cfg. Destination failures are not fatal:
// when the log directory cannot be created or the file cannot be
// opened, the file destination is skipped; when every destination is
// disabled, a stderr text handler is kept so log calls stay safe.
func New(cfg Config) *Logger {
	l := &Logger{config: cfg, exporter: cfg.Exporter}

	opts := &slog.HandlerOptions{Level: cfg.Level.slogLevel()}

	var handlers []slog.Handler
	if !cfg.Quiet {
		if cfg.JSON {
			handlers = append(handlers, slog.NewJSONHandler(os.Stderr, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stderr, opts))
		}
	}
	if cfg.LogDir != "" {
		if file := openLogFile(cfg); file != nil {
			l.file = file
			handlers = append(handlers, slog.NewJSONHandler(file, opts))
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(os.Stderr, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = &fanoutHandler{handlers: handlers}
	}
	if cfg.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", cfg.Service)})
	}

	l.slog = slog.New(handler)
	return l
}

// openLogFile opens today's log file for cfg, creating the directory
// first. Returns nil when either step fails.
func openLogFile(cfg Config) *os.File {
	dir := expandPath(cfg.LogDir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil
	}

	service := cfg.Service
	if service == "" {
		service = "lithograph"
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))

	file, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil
	}
	return file
}

// Default returns a stderr-only Logger at Info level tagged with the
// "lithograph" service.
func Default() *Logger {
	return New(Config{Level: LevelInfo, Service: "lithograph"})
}

// Debug logs at Debug level with slog-style key-value args.
func (l *Logger) Debug(msg string, args ...any) { l.emit(LevelDebug, msg, args...) }

// Info logs at Info level with slog-style key-value args.
func (l *Logger) Info(msg string, args ...any) { l.emit(LevelInfo, msg, args...) }

// Warn logs at Warn level with slog-style key-value args.
func (l *Logger) Warn(msg string, args ...any) { l.emit(LevelWarn, msg, args...) }

// Error logs at Error level with slog-style key-value args.
func (l *Logger) Error(msg string, args ...any) { l.emit(LevelError, msg, args...) }

// With returns a child Logger whose entries carry the given attributes.
// The child shares the parent's file handle and exporter, so only the
// parent should be closed.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slog:     l.slog.With(args...),
		config:   l.config,
		file:     l.file,
		exporter: l.exporter,
	}
}

// Slog exposes the underlying slog.Logger. The pipeline, sweep worker,
// and watcher build on slog directly and take this instead of the
// wrapper.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Close flushes and closes the exporter, then syncs and closes the log
// file. Idempotent; returns the joined errors of whichever steps
// failed.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	if l.exporter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.exporter.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush exporter: %w", err))
		}
		if err := l.exporter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close exporter: %w", err))
		}
		l.exporter = nil
	}
	if l.file != nil {
		if err := l.file.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("sync log file: %w", err))
		}
		if err := l.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close log file: %w", err))
		}
		l.file = nil
	}
	return errors.Join(errs...)
}

// emit writes through slog and, when an exporter is configured and the
// level clears the configured minimum, hands a LogEntry to the exporter
// on its own goroutine.
func (l *Logger) emit(level Level, msg string, args ...any) {
	switch level {
	case LevelDebug:
		l.slog.Debug(msg, args...)
	case LevelInfo:
		l.slog.Info(msg, args...)
	case LevelWarn:
		l.slog.Warn(msg, args...)
	case LevelError:
		l.slog.Error(msg, args...)
	}

	if l.exporter == nil || level < l.config.Level {
		return
	}
	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   msg,
		Service:   l.config.Service,
		Attrs:     attrMap(args),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = l.exporter.Export(ctx, entry)
	}()
}

// fanoutHandler duplicates records across handlers so stderr and the
// log file can carry different formats. Each handler keeps its own
// level gate.
type fanoutHandler struct {
	handlers []slog.Handler
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, hh := range h.handlers {
		if !hh.Enabled(ctx, r.Level) {
			continue
		}
		if err := hh.Handle(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		derived[i] = hh.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: derived}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	derived := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		derived[i] = hh.WithGroup(name)
	}
	return &fanoutHandler{handlers: derived}
}

// NopExporter discards every entry. Plugs the Exporter slot when
// export is configured off.
type NopExporter struct{}

func (*NopExporter) Export(ctx context.Context, entry LogEntry) error { return nil }
func (*NopExporter) Flush(ctx context.Context) error                  { return nil }
func (*NopExporter) Close() error                                     { return nil }

var _ LogExporter = (*NopExporter)(nil)

// BufferedExporter keeps entries in memory so tests can assert on what
// was logged.
type BufferedExporter struct {
	mu      sync.Mutex
	entries []LogEntry
}

func NewBufferedExporter() *BufferedExporter {
	return &BufferedExporter{}
}

func (e *BufferedExporter) Export(ctx context.Context, entry LogEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = append(e.entries, entry)
	return nil
}

func (e *BufferedExporter) Flush(ctx context.Context) error { return nil }

func (e *BufferedExporter) Close() error { return nil }

// Entries returns a snapshot; later exports do not mutate it.
func (e *BufferedExporter) Entries() []LogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]LogEntry(nil), e.entries...)
}

var _ LogExporter = (*BufferedExporter)(nil)

// expandPath substitutes a leading ~ with the home directory, leaving
// the path alone when that lookup fails.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// attrMap folds slog-style variadic args into a map, skipping
// non-string keys and a dangling final value.
func attrMap(args []any) map[string]any {
	m := make(map[string]any)
	for i := 0; i+1 < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			m[key] = args[i+1]
		}
	}
	return m
}
