// Package logger holds the structured logger shared by the allocators, the
// shared-reference core and the command line tools.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// current is the global logger. It discards all output until Init enables it.
// Init may run while other goroutines log.
var current atomic.Pointer[slog.Logger]

func init() {
	current.Store(discard())
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Logger returns the logger installed by the last Init.
func Logger() *slog.Logger {
	return current.Load()
}

// Options configures the logger initialization.
type Options struct {
	Enabled bool       // If false, all logging is discarded
	Level   slog.Level // Minimum log level. Default: LevelInfo
	Format  string     // "text" or "json". Default: text
	Output  io.Writer  // Destination. Default: os.Stderr
}

// Init configures logging. Call from main() before any log calls.
func Init(opts Options) {
	if !opts.Enabled {
		current.Store(discard())
		return
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}

	if strings.EqualFold(opts.Format, "json") {
		current.Store(slog.New(slog.NewJSONHandler(out, handlerOpts)))
		return
	}
	current.Store(slog.New(slog.NewTextHandler(out, handlerOpts)))
}

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
// Unknown names fall back to info.
func ParseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Debug logs a debug message with optional key-value pairs.
func Debug(msg string, args ...any) { Logger().Debug(msg, args...) }

// Info logs an info message with optional key-value pairs.
func Info(msg string, args ...any) { Logger().Info(msg, args...) }

// Warn logs a warning message with optional key-value pairs.
func Warn(msg string, args ...any) { Logger().Warn(msg, args...) }

// Error logs an error message with optional key-value pairs.
func Error(msg string, args ...any) { Logger().Error(msg, args...) }
