// Package logging constructs the structured logger every command and
// replay component shares. One construction point keeps log shape
// (JSON in production, console in development) consistent across the
// CLI surface.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger for the given level name (debug, info, warn,
// error). An empty level defaults to info. development switches to the
// human-readable console encoder used at a terminal instead of the
// JSON encoder used in batch/production runs.
func New(level string, development bool) (*zap.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true

	return cfg.Build()
}

func parseLevel(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return lvl, fmt.Errorf("logging: invalid level %q: %w", level, err)
	}
	return lvl, nil
}
