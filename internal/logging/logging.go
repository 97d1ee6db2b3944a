// Package logging holds the slog helpers shared by every columnlog package.
//
// Loggers are passed in, never global. A component scopes the logger it is
// given once, with logger.With("component", name), and falls back to
// Discard when given nil. Only main configures handlers and levels.
//
// Log at lifecycle points: archive opened or closed, query compiled,
// schemas matched. Never log per record or per column value.
package logging

import (
	"context"
	"fmt"
	"log/slog"
)

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

// Default returns logger, or a discard logger when it is nil.
func Default(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return Discard()
}

// ParseLevel parses a level name such as "debug" or "WARN+2".
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("parse log level %q: %w", s, err)
	}
	return lvl, nil
}
