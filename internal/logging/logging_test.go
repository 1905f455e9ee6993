package logging

import (
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{" error ", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestUseText(t *testing.T) {
	if useText(FormatJSON) {
		t.Error("useText(FormatJSON) = true, want false")
	}
	if !useText(FormatText) {
		t.Error("useText(FormatText) = false, want true")
	}
	// FormatAuto depends on whether stderr is a terminal; under `go test`
	// it is not, so auto must resolve to JSON.
	if useText(FormatAuto) {
		t.Error("useText(FormatAuto) = true under test harness, want false")
	}
}
