// Package logger provides the process-wide structured logger.
// It wraps a zap SugaredLogger so packages can log without threading a
// logger through every constructor; level, format and output can be changed
// at runtime (the CLI --verbose flag, config, tests).
package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	format = "console"
	output = io.Writer(os.Stderr)
	sugar  = build()
)

func build() *zap.SugaredLogger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var enc zapcore.Encoder
	if format == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(output), level)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
}

// Configure sets level ("debug", "info", "warn", "error") and format
// ("console" or "json"). Unknown levels fall back to info.
func Configure(lvl, fmtName string) {
	mu.Lock()
	defer mu.Unlock()
	l, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(lvl)))
	if err != nil {
		l = zapcore.InfoLevel
	}
	level.SetLevel(l)
	if fmtName == "json" {
		format = "json"
	} else {
		format = "console"
	}
	sugar = build()
}

// SetVerbose enables or disables debug output.
func SetVerbose(v bool) {
	if v {
		level.SetLevel(zapcore.DebugLevel)
		return
	}
	level.SetLevel(zapcore.InfoLevel)
}

// IsVerbose returns true if debug output is enabled.
func IsVerbose() bool {
	return level.Enabled(zapcore.DebugLevel)
}

// SetOutput redirects log output. Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	sugar = build()
}

// Sync flushes buffered entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = sugar.Sync()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Debugf logs a formatted debug message.
func Debugf(template string, args ...any) { current().Debugf(template, args...) }

// Infof logs a formatted informational message.
func Infof(template string, args ...any) { current().Infof(template, args...) }

// Warnf logs a formatted warning.
func Warnf(template string, args ...any) { current().Warnf(template, args...) }

// Errorf logs a formatted error.
func Errorf(template string, args ...any) { current().Errorf(template, args...) }

// Debugw logs a debug message with key/value pairs.
func Debugw(msg string, kv ...any) { current().Debugw(msg, kv...) }

// Infow logs a message with key/value pairs.
func Infow(msg string, kv ...any) { current().Infow(msg, kv...) }

// Warnw logs a warning with key/value pairs.
func Warnw(msg string, kv ...any) { current().Warnw(msg, kv...) }

// Errorw logs an error with key/value pairs.
func Errorw(msg string, kv ...any) { current().Errorw(msg, kv...) }
