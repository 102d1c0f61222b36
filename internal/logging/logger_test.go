package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNoopLoggerDoesNotPanic(_ *testing.T) {
	logger := OrNoop(nil)
	logger.Debug("debug", "k", "v")
	logger.Info("info", "k", "v")
	logger.Warn("warn", "k", "v")
	logger.Error("error", "k", "v")
}

func TestZapAdapterWritesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := With(NewZap(zap.New(core)), "run", "r1")

	logger.Debug("rule fired", "rule", "multi_link", "sleeve", 42)
	logger.Warn("zone lookup failed")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["run"] != "r1" || fields["rule"] != "multi_link" || fields["sleeve"] != int64(42) {
		t.Fatalf("unexpected fields: %v", fields)
	}
	if entries[1].Level != zapcore.WarnLevel || entries[1].ContextMap()["run"] != "r1" {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]zapcore.Level{"": zapcore.InfoLevel, "DEBUG": zapcore.DebugLevel, "warning": zapcore.WarnLevel, "error": zapcore.ErrorLevel} {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
