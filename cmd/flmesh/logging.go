package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fedactor/flmesh/pkg/config"
)

// buildLogger turns a LoggingConfig into a configured zap.Logger, the
// same level/format/output knobs every role process shares.
func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logging: parse level %q: %w", cfg.Level, err)
	}
	zcfg.Level = level

	if cfg.Output != "" && cfg.Output != "stdout" {
		zcfg.OutputPaths = []string{cfg.Output}
		zcfg.ErrorOutputPaths = []string{cfg.Output}
	}

	return zcfg.Build()
}
