// Package logging builds the bridge's zap logger. Diagnostics always go to the
// diagnostic stream; stdout belongs to the event protocol.
package logging

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/msageha/craftbridge/internal/model"
)

// New builds a logger writing to w (stderr when nil). The returned level can be changed
// while the logger is in use.
func New(cfg model.LoggingConfig, w zapcore.WriteSyncer) (*zap.Logger, zap.AtomicLevel, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, zap.AtomicLevel{}, err
	}
	enc, err := newEncoder(cfg.Format)
	if err != nil {
		return nil, zap.AtomicLevel{}, err
	}
	if w == nil {
		w = zapcore.Lock(os.Stderr)
	}
	level := zap.NewAtomicLevelAt(lvl)
	core := zapcore.NewCore(enc, w, level)
	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, level, nil
}

// ParseLevel accepts debug, info, warn and error. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	if l < zapcore.DebugLevel || l > zapcore.ErrorLevel {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q", s)
	}
	return l, nil
}

func newEncoder(format string) (zapcore.Encoder, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	switch format {
	case "", "console":
		return zapcore.NewConsoleEncoder(encoderCfg), nil
	case "json":
		return zapcore.NewJSONEncoder(encoderCfg), nil
	default:
		return nil, fmt.Errorf("log format must be 'json' or 'console', got %q", format)
	}
}

// Sync flushes the logger, ignoring the errors stderr returns when it is a terminal or pipe.
func Sync(logger *zap.Logger) error {
	err := logger.Sync()
	if err != nil && isStdioSyncError(err) {
		return nil
	}
	return err
}

func isStdioSyncError(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EINVAL || errno == syscall.ENOTTY
	}
	return false
}
