// Package logging configures structured slog output for soberano.
// Logs go to a size-rotated JSON file; when stderr is an interactive
// terminal a human-readable text handler is mirrored there as well.
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Config contains logging configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// FilePath is the path to the log file. Empty means no file logging.
	FilePath string
	// MaxSizeMB is the maximum size in MB before rotation (default: 10).
	MaxSizeMB int
	// MaxFiles is the maximum number of rotated files to keep (default: 5).
	MaxFiles int
	// WriteToStderr also mirrors logs to stderr (default: true).
	WriteToStderr bool
}

// DefaultConfig returns sensible defaults for file logging.
func DefaultConfig(path string) Config {
	return Config{
		Level:         "info",
		FilePath:      path,
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	}
}

// Setup initializes logging and returns the logger plus a cleanup function
// that flushes and closes the log file.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	var writer *RotatingWriter

	if cfg.FilePath != "" {
		w, err := NewRotatingWriter(cfg.FilePath, orDefault(cfg.MaxSizeMB, 10), orDefault(cfg.MaxFiles, 5))
		if err != nil {
			return nil, nil, err
		}
		writer = w
		handlers = append(handlers, slog.NewJSONHandler(w, opts))
	}

	if cfg.WriteToStderr || cfg.FilePath == "" {
		if isatty.IsTerminal(os.Stderr.Fd()) {
			handlers = append(handlers, slog.NewTextHandler(os.Stderr, opts))
		} else {
			handlers = append(handlers, slog.NewJSONHandler(os.Stderr, opts))
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 1:
		handler = handlers[0]
	default:
		handler = newMultiHandler(handlers...)
	}

	logger := slog.New(handler)

	cleanup := func() {
		if writer != nil {
			_ = writer.Sync()
			_ = writer.Close()
		}
	}

	return logger, cleanup, nil
}

// SetupDefault configures logging with defaults and installs it as the
// process-wide default logger. Returns the cleanup function.
func SetupDefault(path string) (func(), error) {
	logger, cleanup, err := Setup(DefaultConfig(path))
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cleanup, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// multiHandler fans records out to multiple handlers.
type multiHandler struct {
	handlers []slog.Handler
}

func newMultiHandler(handlers ...slog.Handler) *multiHandler {
	return &multiHandler{handlers: handlers}
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		out[i] = h.WithAttrs(attrs)
	}
	return newMultiHandler(out...)
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		out[i] = h.WithGroup(name)
	}
	return newMultiHandler(out...)
}
