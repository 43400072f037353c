// Package logging builds the engine's slog logger.
//
// Operational output goes to a console writer as text. When a log file is
// configured, the same records are also written as JSON to a rotating file.
package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/roach88/vsptd/internal/config"
)

// LevelTrace sits below Debug. At this level every compiled statement is
// logged with its inlined parameters.
const LevelTrace = slog.LevelDebug - 4

// ParseLevel maps a level name to a slog.Level.
// Supported values: "trace", "debug", "info", "warn", "error"
// (case-insensitive). Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace
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

// NewLogger creates a leveled text logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, handlerOptions(ParseLevel(level))))
}

// New builds a logger from configuration. The returned closer releases the
// log file, if any, and is never nil.
func New(cfg config.LoggerConfig, console io.Writer) (*slog.Logger, io.Closer) {
	opts := handlerOptions(ParseLevel(cfg.Level))

	var consoleHandler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		consoleHandler = slog.NewJSONHandler(console, opts)
	} else {
		consoleHandler = slog.NewTextHandler(console, opts)
	}

	if cfg.LogFile == "" {
		return slog.New(consoleHandler), nopCloser{}
	}

	// lumberjack handles rotation and serializes writes.
	file := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	fileHandler := slog.NewJSONHandler(file, opts)
	return slog.New(tee{consoleHandler, fileHandler}), file
}

func handlerOptions(lvl slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Label the custom trace level
			if a.Key == slog.LevelKey {
				if l, ok := a.Value.Any().(slog.Level); ok && l == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
}

// tee fans every record out to each handler that accepts its level.
type tee []slog.Handler

func (t tee) Enabled(ctx context.Context, lvl slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, lvl) {
			return true
		}
	}
	return false
}

func (t tee) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (t tee) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(tee, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t tee) WithGroup(name string) slog.Handler {
	out := make(tee, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
