// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package logging builds the zap loggers used by every command.
package logging

import (
	"fmt"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Thermoquad/portcullis/internal/config"
)

// Rotation limits for log files
const (
	maxSizeMB  = 16
	maxBackups = 3
	maxAgeDays = 28
)

// NewLoggerConfig returns the console logger config at the given level.
// Stacktraces are disabled and levels are colored.
func NewLoggerConfig(level zapcore.Level, format string) zap.Config {
	encodeLevel := zapcore.CapitalColorLevelEncoder
	if format == "json" {
		encodeLevel = zapcore.LowercaseLevelEncoder
	}
	return zap.Config{
		Level:    zap.NewAtomicLevelAt(level),
		Encoding: format,
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    encodeLevel,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
	}
}

// New builds a logger from cfg. With a file configured, output is rotated
// through lumberjack. A terminal UI owns the screen, so with tui set and no
// file the logger discards everything.
//
// The returned close function flushes the logger and releases the file.
func New(cfg config.LogConfig, tui bool) (*zap.Logger, func() error, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level: %w", err)
	}
	format := cfg.Format
	if format == "" {
		format = "console"
	}

	if cfg.File != "" {
		sink := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
		}
		encCfg := NewLoggerConfig(level, format).EncoderConfig
		// No color escapes in files
		if format == "console" {
			encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		}
		logger := NewWithWriter(encCfg, format, level, sink)
		return logger, func() error {
			_ = logger.Sync()
			return sink.Close()
		}, nil
	}

	if tui {
		return zap.NewNop(), func() error { return nil }, nil
	}

	logger, err := NewLoggerConfig(level, format).Build()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, func() error {
		_ = logger.Sync()
		return nil
	}, nil
}

// NewWithWriter builds a logger writing encoded entries to w
func NewWithWriter(encCfg zapcore.EncoderConfig, format string, level zapcore.Level, w io.Writer) *zap.Logger {
	var enc zapcore.Encoder
	if format == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), level))
}
