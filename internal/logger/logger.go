// Package logger provides the structured/console logger used across mcpmon.
package logger

import (
	"os"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

var singleton atomic.Pointer[zap.SugaredLogger]

// Initialize builds the process-wide logger. Safe to call more than once;
// the most recent call wins. MCPMON_VERBOSE lowers the level to debug; the
// choice between console and JSON encoding is made by consoleLogs.
func Initialize() {
	level := zapcore.InfoLevel
	if debugEnabled() {
		level = zapcore.DebugLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "time"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if consoleLogs() {
		consoleCfg := zap.NewDevelopmentEncoderConfig()
		consoleCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewConsoleEncoder(consoleCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), level)
	l := zap.New(core).Sugar()
	singleton.Store(l)
}

// debugEnabled reports whether MCPMON_VERBOSE is set truthy.
func debugEnabled() bool {
	v, _ := strconv.ParseBool(os.Getenv("MCPMON_VERBOSE"))
	return v
}

// consoleLogs reports whether human-readable console encoding should be
// used. MCPMON_JSON_LOGS, if set to a parseable bool, forces the choice
// either way. Otherwise it follows stderr: a TTY gets console output, a
// pipe or file (the common case when another supervisor scrapes mcpmon's
// stderr) gets JSON.
func consoleLogs() bool {
	if v, err := strconv.ParseBool(os.Getenv("MCPMON_JSON_LOGS")); err == nil {
		return !v
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func get() *zap.SugaredLogger {
	l := singleton.Load()
	if l == nil {
		Initialize()
		l = singleton.Load()
	}
	return l
}

// Debugf logs a formatted debug message.
func Debugf(template string, args ...any) { get().Debugf(template, args...) }

// Infof logs a formatted info message.
func Infof(template string, args ...any) { get().Infof(template, args...) }

// Warnf logs a formatted warning message.
func Warnf(template string, args ...any) { get().Warnf(template, args...) }

// Errorf logs a formatted error message.
func Errorf(template string, args ...any) { get().Errorf(template, args...) }

// Debug logs a debug message.
func Debug(args ...any) { get().Debug(args...) }

// Info logs an info message.
func Info(args ...any) { get().Info(args...) }

// Warn logs a warning message.
func Warn(args ...any) { get().Warn(args...) }

// Error logs an error message.
func Error(args ...any) { get().Error(args...) }

// Infow logs a structured info message with alternating key/value pairs.
func Infow(msg string, keysAndValues ...any) { get().Infow(msg, keysAndValues...) }

// Warnw logs a structured warning message with alternating key/value pairs.
func Warnw(msg string, keysAndValues ...any) { get().Warnw(msg, keysAndValues...) }

// Errorw logs a structured error message with alternating key/value pairs.
func Errorw(msg string, keysAndValues ...any) { get().Errorw(msg, keysAndValues...) }

// Sync flushes any buffered log entries. Call before process exit.
func Sync() {
	if l := singleton.Load(); l != nil {
		_ = l.Sync()
	}
}
