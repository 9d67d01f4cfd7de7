// Package logging builds the CLI's leveled slog loggers and the optional
// per-run decision trace (<dir>/decisions.jsonl).
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// LevelTrace sits below Debug. Prompts and raw provider replies are only
// logged at this level.
const LevelTrace = slog.LevelDebug - 4

var levelNames = map[string]slog.Level{
	"":        slog.LevelInfo,
	"info":    slog.LevelInfo,
	"error":   slog.LevelError,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"debug":   slog.LevelDebug,
	"trace":   LevelTrace,
}

// ParseLevel maps a case-insensitive level name to a slog.Level. Unknown
// names mean info.
func ParseLevel(s string) slog.Level {
	if lvl, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// ValidLevel reports whether ParseLevel knows s.
func ValidLevel(s string) bool {
	_, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// NewLogger returns a text logger on w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, handlerOptions(level)))
}

// NewJSONLogger returns a logger writing one JSON object per line, so that
// stderr stays machine readable under --json.
func NewJSONLogger(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, handlerOptions(level)))
}

func handlerOptions(level string) *slog.HandlerOptions {
	return &slog.HandlerOptions{Level: ParseLevel(level), ReplaceAttr: labelTrace}
}

// labelTrace prints LevelTrace as TRACE instead of slog's "DEBUG-4".
func labelTrace(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
		a.Value = slog.StringValue("TRACE")
	}
	return a
}
