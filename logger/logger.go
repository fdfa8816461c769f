package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"stocksim/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the client logger: a console core on stderr plus an optional
// rotated JSON file core.
func New(opts config.LogConfig) (*zap.Logger, error) {
	return build(opts, true)
}

// Quiet is New without the console core. The terminal UI owns the screen,
// so only the rotated file (if configured) receives log lines.
func Quiet(opts config.LogConfig) (*zap.Logger, error) {
	return build(opts, false)
}

func build(opts config.LogConfig, console bool) (*zap.Logger, error) {
	// Parse log level
	lvl := zapcore.InfoLevel
	if opts.Level != "" {
		if err := lvl.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
	}

	// Compose output cores
	var cores []zapcore.Core

	// Console (stderr) output
	if console {
		encoderCfg := encoderConfig(opts)
		var enc zapcore.Encoder
		if opts.Format == "json" && opts.Environment != "dev" {
			enc = zapcore.NewJSONEncoder(encoderCfg)
		} else {
			enc = zapcore.NewConsoleEncoder(encoderCfg)
		}
		cores = append(cores, zapcore.NewCore(enc, zapcore.Lock(os.Stderr), lvl))
	}

	// Optional file output with rotation via lumberjack
	if opts.OutputFile != "" {
		// Create parent directory if it doesn't exist
		if err := os.MkdirAll(filepath.Dir(opts.OutputFile), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.OutputFile,
			MaxSize:    10,   // max file size (MB) before rotation
			MaxBackups: 5,    // max number of old log files to keep
			MaxAge:     7,    // max age (days) to retain a log file
			Compress:   true, // compress rotated files
		})

		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			fileWriter,
			lvl,
		))
	}

	// TUI mode without a log file
	if len(cores) == 0 {
		return zap.NewNop(), nil
	}

	// Combine all cores
	core := zapcore.NewTee(cores...)

	// Build the logger with caller and stacktrace options
	logger := zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(zap.String("app", "stocksim")),
	)
	return logger, nil
}

// encoderConfig returns a zapcore.EncoderConfig based on log format.
func encoderConfig(opts config.LogConfig) zapcore.EncoderConfig {
	if opts.Environment == "dev" || opts.Format == "console" {
		return zap.NewDevelopmentEncoderConfig()
	}
	return zap.NewProductionEncoderConfig()
}
