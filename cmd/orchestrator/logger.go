package main

import (
	"fmt"
	"os"

	"github.com/arcflow/conductor/pkg/logger"
)

const (
	logFileEnvVar   = "LOG_FILE"
	logLevelEnvVar  = "LOG_LEVEL"
	logFormatEnvVar = "LOG_FORMAT"
	defaultLogFormat = "text"
)

// initLogger sets up the process-wide slog logger, CLI flag taking priority
// over environment variable taking priority over default.
func initLogger(cliLevel, cliFile, cliFormat string) (cleanup func(), err error) {
	level := cliLevel
	if level == "" {
		level = os.Getenv(logLevelEnvVar)
	}
	if level == "" {
		level = "info"
	}

	file := cliFile
	if file == "" {
		file = os.Getenv(logFileEnvVar)
	}

	format := cliFormat
	if format == "" {
		format = os.Getenv(logFormatEnvVar)
	}
	if format == "" {
		format = defaultLogFormat
	}

	lvl, err := logger.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	output := os.Stderr
	if file != "" {
		f, cleanupFn, err := logger.OpenLogFile(file)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		output = f
		cleanup = cleanupFn
	}

	logger.Init(lvl, output, format)
	return cleanup, nil
}
