// ABOUTME: zap logger construction shared by the lob binaries
// ABOUTME: Console encoding to stderr and/or a log file
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects where and how much to log
type Options struct {
	Level  string // debug, info, warn, error
	File   string // optional log file path
	Stderr bool   // also log to stderr; off while a TUI owns the terminal
	Source string // binary name attached to every entry
}

// ParseLevel converts a level name to a zap level
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level: %q", s)
}

// New builds a logger for opts. With neither a file nor stderr it returns a no-op logger.
func New(opts Options) (*zap.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	var outputs []string
	if opts.Stderr {
		outputs = append(outputs, "stderr")
	}
	if opts.File != "" {
		outputs = append(outputs, opts.File)
	}
	if len(outputs) == 0 {
		return zap.NewNop(), nil
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         "console",
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			MessageKey:     "message",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeName:     zapcore.FullNameEncoder,
		},
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	if opts.Source != "" {
		logger = logger.With(zap.String("source", opts.Source))
	}
	return logger, nil
}
