// Package logger builds the process-wide zap logger.
package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls log output.
type Config struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	// Development adds a human-readable console core.
	Development bool `toml:"development"`
}

// New builds a logger and installs it as zap's global logger.
//
// In development the console always receives output; a rotated JSON file is
// added when File is set. In production output goes to the file when set,
// otherwise JSON to stdout.
func New(cfg Config) (*zap.Logger, error) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.MaxSizeMB == 0 {
		cfg.MaxSizeMB = 100
	}
	if cfg.MaxBackups == 0 {
		cfg.MaxBackups = 5
	}
	if cfg.MaxAgeDays == 0 {
		cfg.MaxAgeDays = 30
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}

	var cores []zapcore.Core
	if cfg.File != "" {
		cores = append(cores, zapcore.NewCore(jsonEncoder(), fileWriter(cfg), level))
	}
	switch {
	case cfg.Development:
		console := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		cores = append(cores, zapcore.NewCore(console, zapcore.Lock(os.Stdout), zapcore.DebugLevel))
	case cfg.File == "":
		cores = append(cores, zapcore.NewCore(jsonEncoder(), zapcore.Lock(os.Stdout), level))
	}

	lg := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	zap.ReplaceGlobals(lg)
	return lg, nil
}

func fileWriter(cfg Config) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	})
}

func jsonEncoder() zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "time"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(ec)
}
