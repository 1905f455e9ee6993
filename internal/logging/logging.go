// Package logging configures the process-wide slog logger.
// Diagnostics always go to stderr; stdout is reserved for command output.
package logging

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Format selects the log output format.
type Format string

const (
	// FormatAuto picks text when stderr is a terminal, JSON otherwise.
	FormatAuto Format = "auto"
	// FormatJSON always writes JSON lines.
	FormatJSON Format = "json"
	// FormatText always writes colorized human-readable lines.
	FormatText Format = "text"
)

// Setup installs the default slog logger according to level and format.
// Unknown values fall back to info/auto.
func Setup(level string, format Format) {
	lvl := ParseLevel(level)

	var handler slog.Handler
	if useText(format) {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      lvl,
			TimeFormat: time.TimeOnly,
		})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	}

	slog.SetDefault(slog.New(handler))
}

// ParseLevel converts a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

func useText(format Format) bool {
	switch format {
	case FormatText:
		return true
	case FormatJSON:
		return false
	default:
		return term.IsTerminal(int(os.Stderr.Fd()))
	}
}
