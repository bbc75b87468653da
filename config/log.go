package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Debug is true when CHATDESK_DEBUG is set. DebugLog is a no-op logger
// otherwise, so callers may log unconditionally.
var Debug = false
var DebugLog = zap.NewNop().Sugar()

func CheckDebug() bool {
	debug := strings.ToLower(os.Getenv("CHATDESK_DEBUG"))
	return debug == "true" || debug == "1" || debug == "debug"
}

// InitDebugLog points DebugLog at <dataDir>/debug.log when debugging is enabled.
func InitDebugLog(dataDir string) {
	if !CheckDebug() {
		return
	}

	logPath := filepath.Join(dataDir, "debug.log")

	// debug.log may contain request metadata, keep it user-only.
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		return
	}

	logger := newFileLogger(zapcore.AddSync(f), zapcore.DebugLevel)

	Debug = true
	DebugLog = logger.Sugar()
	DebugLog.Infof("=== Debug logging started (CHATDESK_DEBUG=%s) ===", os.Getenv("CHATDESK_DEBUG"))
	DebugLog.Infof("Log path: %s", logPath)
}

// SetDebugLogger swaps the debug logger, returning a func that restores the
// previous one. Tests use it with zaptest/observer.
func SetDebugLogger(l *zap.Logger) (restore func()) {
	prevDebug, prevLog := Debug, DebugLog
	Debug = true
	DebugLog = l.Sugar()
	return func() {
		Debug, DebugLog = prevDebug, prevLog
	}
}

func newFileLogger(w zapcore.WriteSyncer, level zapcore.Level) *zap.Logger {
	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), w, zap.NewAtomicLevelAt(level))
	return zap.New(core, zap.AddCaller())
}
