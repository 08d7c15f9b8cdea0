// Package logging builds the node's zap loggers.
//
// A Logger writes human-readable lines to stdout and, when configured, to a
// rotating file. Audit events (accepted and rejected transactions, spent-tag
// insertions) go to a separate JSON file so they can be shipped on their own.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects sinks and verbosity. Empty paths disable that sink.
type Options struct {
	Level     string
	File      string
	AuditFile string
	// Console controls the stdout sink.
	Console bool

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger bundles the operational and audit loggers.
type Logger struct {
	*zap.Logger
	audit *zap.Logger
}

// ParseLevel maps debug/info/warn/error/fatal to a zap level. Unknown names
// fall back to info.
func ParseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	}
	return zapcore.InfoLevel
}

func rotating(path string, o Options) (zapcore.WriteSyncer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    orDefault(o.MaxSizeMB, 100),
		MaxBackups: orDefault(o.MaxBackups, 5),
		MaxAge:     orDefault(o.MaxAgeDays, 30),
	}), nil
}

func orDefault(v, d int) int {
	if v <= 0 {
		return d
	}
	return v
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}

// New creates a logger. With no sinks configured it discards everything.
func New(o Options) (*Logger, error) {
	level := zap.NewAtomicLevelAt(ParseLevel(o.Level))
	var cores []zapcore.Core

	if o.Console {
		cfg := encoderConfig()
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(os.Stdout), level))
	}
	if o.File != "" {
		w, err := rotating(o.File, o)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), w, level))
	}

	l := &Logger{Logger: zap.New(zapcore.NewTee(cores...), zap.AddCaller()), audit: zap.NewNop()}
	if o.AuditFile != "" {
		w, err := rotating(o.AuditFile, o)
		if err != nil {
			return nil, err
		}
		core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), w, zapcore.InfoLevel)
		l.audit = zap.New(core).Named("audit")
	}
	return l, nil
}

// Nop returns a logger that drops everything.
func Nop() *Logger {
	return &Logger{Logger: zap.NewNop(), audit: zap.NewNop()}
}

// Audit records a security-relevant event.
func (l *Logger) Audit(event string, fields ...zap.Field) {
	l.audit.Info(event, fields...)
}

// Sync flushes both loggers.
func (l *Logger) Sync() error {
	err := l.Logger.Sync()
	if aerr := l.audit.Sync(); err == nil {
		err = aerr
	}
	return err
}
