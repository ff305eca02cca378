// Package logging builds the zap loggers used across the pipeline.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/spanflow/spanflow-go/config"
)

// New creates a logger from the logging configuration: JSON output in
// production, colored console output in development.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, err
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}

// NewDefault creates an info-level production logger, falling back to a
// no-op logger if construction fails.
func NewDefault() *zap.Logger {
	logger, err := New(config.LogConfig{Level: "info"})
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
