// Package logging builds the process-wide structured logger.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates the runtime logger. Debug switches to the development
// encoder (human-readable console output, debug level enabled);
// otherwise production JSON with ISO8601 timestamps is used.
func New(debug bool) (*zap.Logger, error) {
	if debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg.Build()
	}

	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// WithComponent tags a child logger with the component name, so every
// line carries which part of the pipeline produced it.
func WithComponent(log *zap.Logger, component string) *zap.Logger {
	return log.With(zap.String("component", component))
}
