package app

import (
	"context"
	"log/slog"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"debug":     slog.LevelDebug,
		"  DEBUG  ": slog.LevelDebug,
		"info":      slog.LevelInfo,
		"warn":      slog.LevelWarn,
		"warning":   slog.LevelWarn,
		"WARNING":   slog.LevelWarn,
		"error":     slog.LevelError,
		"verbose":   slog.LevelInfo,
		"":          slog.LevelInfo,
	}

	for in, want := range cases {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q)=%v want=%v", in, got, want)
		}
	}
}

func TestNewLoggerInstallsDefault(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	log := NewLogger("warn")
	if slog.Default() != log {
		t.Fatal("NewLogger must install itself as the slog default")
	}

	ctx := context.Background()
	if log.Enabled(ctx, slog.LevelDebug) {
		t.Fatal("debug records enabled at warn level")
	}
	if log.Enabled(ctx, slog.LevelInfo) {
		t.Fatal("info records enabled at warn level")
	}
	if !log.Enabled(ctx, slog.LevelWarn) {
		t.Fatal("warn records disabled at warn level")
	}
}
