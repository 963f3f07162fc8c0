// Package chainlog sets up the shared slog.Backend for the mining client and
// hands out per-subsystem loggers, the same pattern the teacher's pool
// package uses for its own `log` variable.
package chainlog

import (
	"io"
	"os"
	"sync"

	"github.com/decred/slog"
	"github.com/jrick/logrotate"
)

// output is the single io.Writer every subsystem logger's backend writes
// through. slog.Backend binds a Logger to its writer at creation time
// (NewSubLogger runs at package-var-init, before main), so rotation cannot
// be enabled by swapping the *slog.Backend value afterward - only by
// swapping what this writer points at underneath it.
type swappableWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *swappableWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	w := s.w
	s.mu.Unlock()
	return w.Write(p)
}

func (s *swappableWriter) set(w io.Writer) {
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()
}

var output = &swappableWriter{w: os.Stdout}
var backend = slog.NewBackend(output)

// subsystemLoggers holds every logger created via NewSubLogger so that
// SetLevel can retarget them all at once.
var subsystemLoggers = make(map[string]slog.Logger)

// InitLogRotator initializes the logging rotator to write logs to logFile
// and create roll files in the same directory. It must be called before the
// application starts logging.
func InitLogRotator(logFile string) error {
	r, err := logrotate.NewRotator(logFile)
	if err != nil {
		return err
	}
	output.set(io.MultiWriter(os.Stdout, r))
	return nil
}

// NewSubLogger creates and registers a new logger for a named subsystem,
// defaulting to slog.LevelInfo.
func NewSubLogger(subsystem string) slog.Logger {
	l := backend.Logger(subsystem)
	l.SetLevel(slog.LevelInfo)
	subsystemLoggers[subsystem] = l
	return l
}

// SetLevel changes the logging level of every registered subsystem logger,
// used by internal/config's hot-reload watcher.
func SetLevel(level slog.Level) {
	for _, l := range subsystemLoggers {
		l.SetLevel(level)
	}
}

// ParseLevel parses a string (e.g. "debug", "info") into a slog.Level,
// returning slog.LevelInfo on an unrecognized name.
func ParseLevel(s string) slog.Level {
	lvl, ok := slog.LevelFromString(s)
	if !ok {
		return slog.LevelInfo
	}
	return lvl
}
