// Package logger provides structured logging for deltashare
package logger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// contextKey is the type for context keys
type contextKey string

const (
	// ShareKey is the context key for the share being accessed
	ShareKey contextKey = "share"
	// TableKey is the context key for the fully qualified table name
	TableKey contextKey = "table"
)

// Config represents logger configuration
type Config struct {
	Level       string   `yaml:"level" json:"level"`
	Development bool     `yaml:"development" json:"development"`
	Encoding    string   `yaml:"encoding" json:"encoding"` // json or console
	OutputPaths []string `yaml:"output_paths" json:"output_paths"`
}

// New creates a zap logger from cfg
func New(cfg Config) (*zap.Logger, error) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	encoding := cfg.Encoding
	if encoding == "" {
		encoding = "json"
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if cfg.Development {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stderr"}
	}

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Development,
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	if cfg.Development {
		logger = logger.WithOptions(zap.AddStacktrace(zapcore.ErrorLevel))
	}

	return logger, nil
}

// OrNop returns l, or a no-op logger when l is nil. Library constructors use
// it so callers may pass a nil logger.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// WithShare returns a context that tags log lines with the share name
func WithShare(ctx context.Context, share string) context.Context {
	return context.WithValue(ctx, ShareKey, share)
}

// WithTable returns a context that tags log lines with the table name
func WithTable(ctx context.Context, table string) context.Context {
	return context.WithValue(ctx, TableKey, table)
}

// FromContext decorates l with the values stored in ctx
func FromContext(ctx context.Context, l *zap.Logger) *zap.Logger {
	l = OrNop(l)

	if share, ok := ctx.Value(ShareKey).(string); ok {
		l = l.With(zap.String("share", share))
	}

	if table, ok := ctx.Value(TableKey).(string); ok {
		l = l.With(zap.String("table", table))
	}

	return l
}
