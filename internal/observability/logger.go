// Package observability owns logger construction for the service and
// the CLI.
package observability

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the process-wide logger for command-line output paths.
// It writes console-encoded lines to stderr so stdout stays clean for
// command output. Initialized by InitCLILogger; defaults to a no-op
// logger so packages can log before initialization.
var CLILogger = zap.NewNop()

// InitCLILogger configures CLILogger. verbose enables debug level.
func InitCLILogger(verbose bool) error {
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build cli logger: %w", err)
	}
	CLILogger = logger
	return nil
}

// NewServiceLogger builds the JSON-encoded logger used by the HTTP
// server and the workers. level is a zap level name; unknown values
// fall back to info.
func NewServiceLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var lvl zapcore.Level
	if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build service logger: %w", err)
	}
	return logger, nil
}
