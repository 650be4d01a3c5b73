// Package logger provides the process-wide diagnostic logger.
//
// Messages are printf-style and routed through a log/slog handler so the
// output format (text or json) and level can be switched at runtime. Debug
// messages are only emitted in verbose mode.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Format selects the handler used for log output.
type Format string

const (
	// FormatText writes human-readable key=value lines.
	FormatText Format = "text"
	// FormatJSON writes one JSON object per line.
	FormatJSON Format = "json"
)

var (
	mu     sync.RWMutex
	level  = new(slog.LevelVar)
	format = FormatText
	output io.Writer = os.Stderr
	log    = build()
)

func build() *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == FormatJSON {
		return slog.New(slog.NewJSONHandler(output, opts))
	}
	return slog.New(slog.NewTextHandler(output, opts))
}

// SetVerbose enables or disables debug output.
func SetVerbose(v bool) {
	if v {
		level.Set(slog.LevelDebug)
		return
	}
	level.Set(slog.LevelInfo)
}

// IsVerbose reports whether debug output is enabled.
func IsVerbose() bool {
	return level.Level() <= slog.LevelDebug
}

// SetFormat switches the output format. Unknown formats fall back to text.
func SetFormat(f Format) {
	mu.Lock()
	defer mu.Unlock()
	if f != FormatJSON {
		f = FormatText
	}
	format = f
	log = build()
}

// SetOutput redirects log output. A nil writer is ignored.
func SetOutput(w io.Writer) {
	if w == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	output = w
	log = build()
}

// Slog returns the underlying structured logger.
func Slog() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func emit(l slog.Level, msg string, args ...any) {
	lg := Slog()
	if !lg.Enabled(context.Background(), l) {
		return
	}
	lg.Log(context.Background(), l, fmt.Sprintf(msg, args...))
}

// Debug logs a message visible only in verbose mode.
func Debug(msg string, args ...any) {
	emit(slog.LevelDebug, msg, args...)
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	emit(slog.LevelInfo, msg, args...)
}

// Warn logs a warning.
func Warn(msg string, args ...any) {
	emit(slog.LevelWarn, msg, args...)
}

// Error logs an error.
func Error(msg string, args ...any) {
	emit(slog.LevelError, msg, args...)
}
