package logger

import (
	"go.uber.org/zap"
)

// New builds the process logger at the given verbosity ("debug", "info",
// "warn", "error"). An empty verbosity means info.
func New(verbosity string) (*zap.Logger, error) {
	if verbosity == "" {
		verbosity = "info"
	}
	config := zap.NewProductionConfig()
	level, err := zap.ParseAtomicLevel(verbosity)
	if err != nil {
		return nil, err
	}
	config.Level = level
	// Dispatch failures are reported through status objects, not panics;
	// sampling would hide repeated failures from the logs.
	config.Sampling = nil
	return config.Build()
}
