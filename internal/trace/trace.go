// Package trace provides a runtime-gated tracing hook in place of debug
// macros: a thin wrapper so every package constructs its no-op and
// development loggers the same way.
package trace

import "go.uber.org/zap"

// Nop returns a logger that discards everything, at zero cost. It is
// the default tracer for every component in this module.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// NewDevelopment returns a human-readable, debug-level logger suitable
// for the reference CLI's -trace flag.
func NewDevelopment() (*zap.SugaredLogger, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
