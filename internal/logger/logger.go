// Package logger provides leveled logging with support for debug, info, warn, and error levels.
// It keeps a printf-style API over a log/slog handler so output can be text or JSON.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Level represents a logging level
type Level int

const (
	// DebugLevel logs are typically voluminous, and are usually disabled in production.
	DebugLevel Level = iota
	// InfoLevel is the default logging priority.
	InfoLevel
	// WarnLevel logs are more important than Info, but don't need individual human review.
	WarnLevel
	// ErrorLevel logs are high-priority. If an application is running smoothly, it shouldn't generate any error-level logs.
	ErrorLevel
)

func (l Level) slogLevel() slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel converts a level name to a Level, defaulting to InfoLevel
func ParseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Logger provides leveled logging
type Logger struct {
	level  Level
	logger *slog.Logger
}

var (
	// Global logger instance
	defaultLogger *Logger
	mu            sync.RWMutex
)

// Init initializes the default logger with the specified level and format
func Init(level string, format string) {
	InitWithWriter(os.Stderr, level, format)
}

// InitWithWriter initializes the default logger writing to w
func InitWithWriter(w io.Writer, level string, format string) {
	l := ParseLevel(level)

	opts := &slog.HandlerOptions{
		Level:     l.slogLevel(),
		AddSource: strings.ToLower(format) == "text",
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	mu.Lock()
	defaultLogger = &Logger{
		level:  l,
		logger: slog.New(handler),
	}
	mu.Unlock()
}

func current() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// output records msg at level with the caller's source position
func (l *Logger) output(level Level, format string, args ...interface{}) {
	if l.level > level {
		return
	}
	ctx := context.Background()
	if !l.logger.Enabled(ctx, level.slogLevel()) {
		return
	}
	var pcs [1]uintptr
	// skip Callers, output and the package-level function
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), level.slogLevel(), fmt.Sprintf(format, args...), pcs[0])
	_ = l.logger.Handler().Handle(ctx, r)
}

// Debug logs a message at DebugLevel
func Debug(format string, args ...interface{}) {
	if l := current(); l != nil {
		l.output(DebugLevel, format, args...)
	}
}

// Info logs a message at InfoLevel
func Info(format string, args ...interface{}) {
	if l := current(); l != nil {
		l.output(InfoLevel, format, args...)
	}
}

// Warn logs a message at WarnLevel
func Warn(format string, args ...interface{}) {
	if l := current(); l != nil {
		l.output(WarnLevel, format, args...)
	}
}

// Error logs a message at ErrorLevel
func Error(format string, args ...interface{}) {
	if l := current(); l != nil {
		l.output(ErrorLevel, format, args...)
	}
}

// Fatal logs a message at ErrorLevel and exits
func Fatal(format string, args ...interface{}) {
	if l := current(); l != nil {
		l.output(ErrorLevel, "FATAL: "+format, args...)
	} else {
		fmt.Fprintf(os.Stderr, "FATAL: "+format+"\n", args...)
	}
	os.Exit(1)
}
