// Package log provides a small leveled logger in the style of Kratos'
// log package, which the CLR metadata decoder uses for parse tracing
// instead of ad hoc fmt.Printf calls.
package log

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Level is a log severity.
type Level int8

// Severity levels, lowest to highest.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Logger is the minimal logging contract the decoder depends on.
type Logger interface {
	Log(level Level, msg string) error
}

// stdLogger writes to an io.Writer using the standard library logger.
type stdLogger struct {
	log *log.Logger
}

// NewStdLogger returns a Logger that writes to w.
func NewStdLogger(w io.Writer) Logger {
	return &stdLogger{log: log.New(w, "", log.LstdFlags)}
}

func (l *stdLogger) Log(level Level, msg string) error {
	return l.log.Output(3, fmt.Sprintf("[%s] %s", level, msg))
}

// Option configures a filter.
type Option func(*filter)

// FilterLevel sets the minimum level a filter lets through.
func FilterLevel(level Level) Option {
	return func(f *filter) {
		f.level = level
	}
}

type filter struct {
	logger Logger
	level  Level
}

// NewFilter wraps logger so that only records at or above the configured
// level reach it. Default level is LevelDebug (no filtering) if no option
// is supplied.
func NewFilter(logger Logger, opts ...Option) Logger {
	f := &filter{logger: logger, level: LevelDebug}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *filter) Log(level Level, msg string) error {
	if level < f.level {
		return nil
	}
	return f.logger.Log(level, msg)
}

// Helper adds printf-style and level-named convenience methods over a Logger.
type Helper struct {
	logger Logger
}

// NewHelper returns a Helper backed by logger. If logger is nil, a
// stderr-backed logger filtered at LevelError is used.
func NewHelper(logger Logger) *Helper {
	if logger == nil {
		logger = NewFilter(NewStdLogger(os.Stderr), FilterLevel(LevelError))
	}
	return &Helper{logger: logger}
}

func (h *Helper) log(level Level, msg string) {
	_ = h.logger.Log(level, msg)
}

// Debug logs msg at debug level.
func (h *Helper) Debug(msg string) { h.log(LevelDebug, msg) }

// Debugf logs a formatted message at debug level.
func (h *Helper) Debugf(format string, args ...interface{}) {
	h.log(LevelDebug, fmt.Sprintf(format, args...))
}

// Info logs msg at info level.
func (h *Helper) Info(msg string) { h.log(LevelInfo, msg) }

// Infof logs a formatted message at info level.
func (h *Helper) Infof(format string, args ...interface{}) {
	h.log(LevelInfo, fmt.Sprintf(format, args...))
}

// Warn logs msg at warn level.
func (h *Helper) Warn(msg string) { h.log(LevelWarn, msg) }

// Warnf logs a formatted message at warn level.
func (h *Helper) Warnf(format string, args ...interface{}) {
	h.log(LevelWarn, fmt.Sprintf(format, args...))
}

// Error logs msg at error level.
func (h *Helper) Error(msg string) { h.log(LevelError, msg) }

// Errorf logs a formatted message at error level.
func (h *Helper) Errorf(format string, args ...interface{}) {
	h.log(LevelError, fmt.Sprintf(format, args...))
}
