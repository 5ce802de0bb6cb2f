package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the JSON production logger used by the suite at the given
// verbosity. An empty verbosity means info.
func New(verbosity string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	level, err := zap.ParseAtomicLevel(verbosity)
	if err != nil {
		return nil, err
	}
	config.Level = level
	// Timed regions are sampled per repetition in debug mode; never drop them.
	config.Sampling = nil
	return config.Build()
}

// NewConsole builds a human readable logger for interactive CLI runs.
func NewConsole(verbosity string) (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()
	level, err := zap.ParseAtomicLevel(verbosity)
	if err != nil {
		return nil, err
	}
	config.Level = level
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.DisableStacktrace = true
	return config.Build()
}

// Build picks the encoder by format: "console" or "json".
func Build(verbosity, format string) (*zap.Logger, error) {
	if format == "console" {
		return NewConsole(verbosity)
	}
	return New(verbosity)
}
