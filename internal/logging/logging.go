// Package logging builds the process-wide zap logger.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a zap logger at level ("debug", "info", "warn", "error"; empty means info).
// format "console" gives colored human-readable output; anything else gives JSON.
// An empty format picks console when dev is true.
func New(level, format string, dev bool) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
			return nil, fmt.Errorf("logging: invalid level %q", level)
		}
	}
	if format == "" && dev {
		format = "console"
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// Must is New for command entrypoints; it falls back to a production logger on error.
func Must(level, format string, dev bool) *zap.Logger {
	logger, err := New(level, format, dev)
	if err != nil {
		logger, _ = zap.NewProduction()
		logger.Warn("logging: falling back to production logger", zap.Error(err))
	}
	return logger
}
