package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"go.uber.org/zap"
)

var loggerInstance Logger = *NewDevelopmentLogger() // default to development logger

// SetLogger sets the global logger instance
func SetLogger(logger Logger) {
	loggerInstance = logger
}

// GetLogger retrieves the global logger instance
func GetLogger() *Logger {
	return &loggerInstance
}

type Logger struct {
	handlerFunc func(level string, msg string, attrs map[string]interface{})
	attrs       map[string]interface{}
	sync        func() error
}

func NewLogger(handler func(level string, msg string, attrs map[string]interface{})) *Logger {
	return &Logger{
		handlerFunc: handler,
		attrs:       make(map[string]interface{}),
	}
}

// NewNopLogger returns a logger that discards everything. Handy in tests.
func NewNopLogger() *Logger {
	return NewLogger(func(string, string, map[string]interface{}) {})
}

// NewDevelopmentLogger creates a new development logger with pretty console output
func NewDevelopmentLogger() *Logger {
	return NewSlogLogger(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.Kitchen,
	}))
}

// NewSlogLogger routes records into any slog.Handler. The terminal client
// uses it with tint for colored console output.
func NewSlogLogger(h slog.Handler) *Logger {
	sl := slog.New(h)
	handler := func(level string, msg string, attrs map[string]interface{}) {
		args := make([]any, 0, len(attrs)*2)
		for k, v := range attrs {
			args = append(args, k, v)
		}
		sl.Log(context.Background(), slogLevel(level), msg, args...)
		switch level {
		case "FATAL":
			os.Exit(1)
		case "PANIC":
			panic(msg)
		}
	}
	return NewLogger(handler)
}

// NewZapLogger routes records into a zap logger (JSON output in production).
func NewZapLogger(zl *zap.Logger) *Logger {
	handler := func(level string, msg string, attrs map[string]interface{}) {
		fields := make([]zap.Field, 0, len(attrs))
		for k, v := range attrs {
			if err, ok := v.(error); ok {
				fields = append(fields, zap.NamedError(k, err))
				continue
			}
			fields = append(fields, zap.Any(k, v))
		}
		switch level {
		case "TRACE", "DEBUG":
			zl.Debug(msg, fields...)
		case "INFO":
			zl.Info(msg, fields...)
		case "WARN":
			zl.Warn(msg, fields...)
		case "FATAL":
			zl.Fatal(msg, fields...)
		case "PANIC":
			zl.Panic(msg, fields...)
		default:
			zl.Error(msg, fields...)
		}
	}
	l := NewLogger(handler)
	l.sync = zl.Sync
	return l
}

// ParseLevel maps a textual level to slog's levels; unknown names map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func slogLevel(level string) slog.Level {
	switch level {
	case "TRACE", "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

func (l *Logger) log(level string, msg string, args ...interface{}) {
	if l.handlerFunc != nil {
		if len(args) > 0 {
			// Detect slog-style key-value pairs: even number of args where
			// odd-positioned args (keys) are strings.
			if isKeyValuePairs(args) {
				attrs := make(map[string]interface{}, len(l.attrs)+len(args)/2)
				for k, v := range l.attrs {
					attrs[k] = v
				}
				for i := 0; i < len(args)-1; i += 2 {
					key, _ := args[i].(string)
					attrs[key] = args[i+1]
				}
				l.handlerFunc(level, msg, attrs)
				return
			}
			msg = fmt.Sprintf(msg, args...)
		}
		l.handlerFunc(level, msg, l.attrs)
	}
}

// isKeyValuePairs returns true if args look like slog-style key-value pairs:
// even count and every key (even index) is a string.
func isKeyValuePairs(args []interface{}) bool {
	if len(args)%2 != 0 {
		return false
	}
	for i := 0; i < len(args); i += 2 {
		if _, ok := args[i].(string); !ok {
			return false
		}
	}
	return true
}

func (l *Logger) Debug(msg string, args ...interface{}) {
	l.log("DEBUG", msg, args...)
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log("DEBUG", format, args...)
}

func (l *Logger) Info(msg string, args ...interface{}) {
	l.log("INFO", msg, args...)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.log("INFO", format, args...)
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	l.log("WARN", msg, args...)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log("WARN", format, args...)
}

func (l *Logger) Error(msg string, args ...interface{}) {
	l.log("ERROR", msg, args...)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log("ERROR", format, args...)
}

func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.log("FATAL", msg, args...)
}

func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.log("FATAL", format, args...)
}

func (l *Logger) With(attrs map[string]interface{}) *Logger {
	combinedAttrs := make(map[string]interface{})
	for k, v := range l.attrs {
		combinedAttrs[k] = v
	}
	for k, v := range attrs {
		combinedAttrs[k] = v
	}
	return &Logger{
		handlerFunc: l.handlerFunc,
		attrs:       combinedAttrs,
		sync:        l.sync,
	}
}

// Sync flushes buffered output of the underlying backend, if it has any.
func (l *Logger) Sync() error {
	if l.sync == nil {
		return nil
	}
	return l.sync()
}
