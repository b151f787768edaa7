// Package logging provides the process-wide structured logger.
// Components obtain sub-loggers via ForComponent; output goes to a
// rotated file under the data directory, or is discarded until Init
// runs.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Component names used across the codebase.
const (
	CompParser  = "parser"
	CompStore   = "store"
	CompIndexer = "indexer"
	CompSearch  = "search"
	CompWatch   = "watch"
	CompCLI     = "cli"
)

// Config holds logging configuration.
type Config struct {
	// LogDir is the directory for the log file. Empty discards logs
	// unless Verbose is set, which logs to stderr instead.
	LogDir string

	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string

	// MaxSizeMB is the rotation threshold (default 10).
	MaxSizeMB int

	// MaxBackups is rotated files to keep (default 3).
	MaxBackups int

	// Verbose mirrors log output to stderr and lowers the level to
	// debug.
	Verbose bool
}

var (
	globalLogger *slog.Logger
	globalMu     sync.RWMutex
	rotator      *lumberjack.Logger
)

// Init configures the global logger. Safe to call once at startup.
func Init(cfg Config) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 3
	}

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if cfg.Verbose {
		level = slog.LevelDebug
	}

	var out io.Writer = io.Discard
	if cfg.LogDir != "" {
		rotator = &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, "agentsearch.log"),
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
		out = rotator
	}
	if cfg.Verbose {
		if out == io.Discard {
			out = os.Stderr
		} else {
			out = io.MultiWriter(out, os.Stderr)
		}
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	globalLogger = slog.New(handler)
}

// Logger returns the global logger. Safe before Init (discards).
func Logger() *slog.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger == nil {
		return slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return globalLogger
}

// ForComponent returns a sub-logger carrying the component field.
// The handler resolves the global logger at log time, so package-level
// loggers created before Init still pick up the real destination.
func ForComponent(name string) *slog.Logger {
	return slog.New(&deferredHandler{component: name})
}

// Shutdown closes the rotating writer.
func Shutdown() {
	globalMu.Lock()
	defer globalMu.Unlock()
	if rotator != nil {
		_ = rotator.Close()
		rotator = nil
	}
	globalLogger = nil
}

type deferredHandler struct {
	component string
	attrs     []slog.Attr
	group     string
}

func (h *deferredHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return Logger().Handler().Enabled(ctx, level)
}

func (h *deferredHandler) Handle(ctx context.Context, r slog.Record) error {
	handler := Logger().Handler()
	handler = handler.WithAttrs([]slog.Attr{slog.String("component", h.component)})
	if len(h.attrs) > 0 {
		handler = handler.WithAttrs(h.attrs)
	}
	if h.group != "" {
		handler = handler.WithGroup(h.group)
	}
	return handler.Handle(ctx, r)
}

func (h *deferredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(merged, h.attrs)
	copy(merged[len(h.attrs):], attrs)
	return &deferredHandler{component: h.component, attrs: merged, group: h.group}
}

func (h *deferredHandler) WithGroup(name string) slog.Handler {
	return &deferredHandler{component: h.component, attrs: h.attrs, group: name}
}
