// Package logging provides Hull's structured logger.
//
// Grounded on audit.Logger (pkg/audit/logger.go in the teacher corpus):
// structured, JSON, written to an injectable io.Writer rather than a
// package-global. We build it on log/slog, following apps/helm-node's
// own use of log/slog, instead of introducing an unseen third-party
// logging package.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Level names accepted by the -l flag. slog only has four native levels;
// trace and fatal are represented as offsets from Debug/Error.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelFatal = slog.Level(12)
)

// ParseLevel maps one of the CLI's recognized level names to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "fatal":
		return LevelFatal, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}

// New builds a JSON-line logger at the given level, writing to w.
// Hull always logs to stderr by default so a script's stdout-bound
// print output is never interleaved with host diagnostics.
func New(w io.Writer, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h)
}

// Component returns a logger scoped with a "component" attribute, the
// way audit.Event carries a Resource/Action pair per emitted record.
func Component(base *slog.Logger, name string) *slog.Logger {
	return base.With("component", name)
}

// LogAndReturn logs err at the given level with message msg and
// returns it unchanged, so call sites can do `return LogAndReturn(...)`
// at a boundary without splitting the log line from the return.
func LogAndReturn(ctx context.Context, l *slog.Logger, level slog.Level, msg string, err error) error {
	l.Log(ctx, level, msg, "error", err)
	return err
}
