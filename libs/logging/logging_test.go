package logging

import (
	"testing"

	"log/slog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"trace":   LevelTrace,
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelError,
		"":        slog.LevelError,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("parse %q: got %v, want %v", in, got, want)
		}
	}
}

func TestValid(t *testing.T) {
	for _, level := range []string{"trace", "debug", "info", "warn", "error", " ERROR "} {
		if !Valid(level) {
			t.Fatalf("%q should be valid", level)
		}
	}
	for _, level := range []string{"", "verbose", "fatal"} {
		if Valid(level) {
			t.Fatalf("%q should be invalid", level)
		}
	}
}
