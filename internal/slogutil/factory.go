package slogutil

import (
	"io"
	"log/slog"

	"memstore/internal/config"
)

// Options selects where and how loudly memstore logs.
type Options struct {
	// Console receives human or JSON output. Nil disables console logging.
	Console io.Writer
	// Override, when non-empty, replaces the configured level (CLI flag).
	Override string
}

// Build creates a logger from the logging config section.
// Precedence for the level: Override > config level > info.
// The returned closer releases the rotating log file, if any.
func Build(cfg config.LoggingConfig, opts Options) (*slog.Logger, io.Closer, error) {
	level := effectiveLevel(cfg.Level, opts.Override)

	var handlers []slog.Handler
	if opts.Console != nil {
		handlers = append(handlers, consoleHandler(opts.Console, cfg.Format, level))
	}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		w, err := NewRotatingWriter(RotationConfig{
			File:      cfg.File,
			MaxSizeMB: cfg.MaxSizeMB,
			MaxFiles:  cfg.MaxFiles,
		})
		if err != nil {
			return nil, nil, err
		}
		// File output is always JSON so it can be shipped as is.
		handlers = append(handlers, slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
		closer = w
	}

	switch len(handlers) {
	case 0:
		return NewDiscardLogger(), closer, nil
	case 1:
		return slog.New(handlers[0]), closer, nil
	default:
		return slog.New(NewTeeHandler(handlers...)), closer, nil
	}
}

func consoleHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return NewLineHandler(w, &slog.HandlerOptions{Level: level})
}

func effectiveLevel(configured, override string) slog.Level {
	if override != "" {
		return LevelFromString(override)
	}
	if configured != "" {
		return LevelFromString(configured)
	}
	return slog.LevelInfo
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
