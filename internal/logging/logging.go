// ABOUTME: Structured logger construction
// ABOUTME: Builds zap loggers for stdout, file or both
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects level, encoding and destinations
type Config struct {
	Level   string   // debug, info, warn, error
	Format  string   // json or console
	Outputs []string // zap output paths; "stdout", "stderr" or file paths
}

// ParseLevel maps a level name to a zap level, defaulting to info
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "", "info":
		return zap.InfoLevel, nil
	case "debug":
		return zap.DebugLevel, nil
	case "warn", "warning":
		return zap.WarnLevel, nil
	case "error":
		return zap.ErrorLevel, nil
	default:
		return zap.InfoLevel, fmt.Errorf("unknown log level: %q", level)
	}
}

// New builds a sugared logger. JSON output uses ISO8601 "ts" and a caller field.
func New(cfg Config) (*zap.SugaredLogger, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encoding := "json"
	encoderCfg := zap.NewProductionEncoderConfig()
	switch strings.ToLower(cfg.Format) {
	case "", "json":
	case "console":
		encoding = "console"
		encoderCfg = zap.NewDevelopmentEncoderConfig()
	default:
		return nil, fmt.Errorf("unknown log format: %q", cfg.Format)
	}
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.CallerKey = "caller"

	outputs := cfg.Outputs
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zcfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(lvl),
		Encoding:         encoding,
		EncoderConfig:    encoderCfg,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zcfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger.Sugar(), nil
}

// Nop returns a logger that discards everything
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
