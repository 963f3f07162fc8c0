package chainlog

import (
	"bytes"
	"testing"

	"github.com/decred/slog"
)

// InitLogRotator must retarget every already-created subsystem logger, not
// just future ones; swappableWriter is the mechanism that makes that true
// since a slog.Logger binds to a backend (and thus a writer) at creation
// time, before InitLogRotator ever runs.
func TestSwappableWriterRetargetsAfterLoggerCreation(t *testing.T) {
	w := &swappableWriter{w: &bytes.Buffer{}}
	l := slog.NewBackend(w).Logger("TEST")
	l.SetLevel(slog.LevelInfo)

	l.Info("before swap")

	var after bytes.Buffer
	w.set(&after)
	l.Info("after swap")

	if after.Len() == 0 {
		t.Fatal("logger output did not follow the swapped writer")
	}
}

func TestParseLevelFallsBackToInfo(t *testing.T) {
	if got := ParseLevel("debug"); got != slog.LevelDebug {
		t.Fatalf("ParseLevel(debug) = %v, want LevelDebug", got)
	}
	if got := ParseLevel("not-a-level"); got != slog.LevelInfo {
		t.Fatalf("ParseLevel(garbage) = %v, want LevelInfo fallback", got)
	}
}
