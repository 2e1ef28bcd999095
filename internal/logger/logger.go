// Package logger provides structured logging setup for fleetwatch.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/Strob0t/fleetwatch/internal/config"
)

// stdoutIsTerminal is replaced in tests.
var stdoutIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdout.Fd())) //nolint:gosec // G115: fd fits in int
}

// New creates a *slog.Logger from the given Logging config and installs
// nothing globally. Every record carries a "service" attribute and the
// request ID from its context, if any. The Closer flushes the async
// handler; in synchronous mode it is a no-op.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	return newLogger(os.Stdout, cfg, stdoutIsTerminal())
}

func newLogger(w io.Writer, cfg config.Logging, terminal bool) (*slog.Logger, Closer) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler
	if useText(cfg.Format, terminal) {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	h = &contextHandler{inner: h}

	var closer Closer = nopCloser{}
	if cfg.Async {
		buf := cfg.AsyncBuffer
		if buf <= 0 {
			buf = 10000
		}
		workers := cfg.AsyncWorkers
		if workers <= 0 {
			workers = 1
		}
		ah := NewAsyncHandler(h, buf, workers)
		h, closer = ah, ah
	}

	return slog.New(h).With("service", cfg.Service), closer
}

// useText picks the human-readable handler for "text", and for "auto" when
// stdout is an interactive terminal.
func useText(format string, terminal bool) bool {
	switch strings.ToLower(format) {
	case "text":
		return true
	case "auto", "":
		return terminal
	default:
		return false
	}
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
