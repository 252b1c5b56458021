package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/soltixdb/sensorlog/internal/config"
)

// NewFromConfig builds a logger from the logging section. An empty level means info.
// A file output path is opened for append and its directory created. The time format
// applies to console layouts; for json output the Unix variants switch zerolog's
// process-wide timestamp encoding.
func NewFromConfig(cfg config.LoggingConfig) (*Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	output, err := openOutput(cfg.OutputPath)
	if err != nil {
		return nil, err
	}

	switch cfg.Format {
	case "console":
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: consoleLayout(cfg.TimeFormat)}
	default:
		if f, ok := unixFieldFormat(cfg.TimeFormat); ok {
			zerolog.TimeFieldFormat = f
		}
	}

	return NewWithWriter(output, level), nil
}

func openOutput(path string) (io.Writer, error) {
	switch path {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return f, nil
}

func consoleLayout(format string) string {
	switch format {
	case "Kitchen":
		return time.Kitchen
	case "RFC3339Nano":
		return time.RFC3339Nano
	case "DateTime":
		return time.DateTime
	default:
		return time.RFC3339
	}
}

func unixFieldFormat(format string) (string, bool) {
	switch format {
	case "Unix":
		return zerolog.TimeFormatUnix, true
	case "UnixMs":
		return zerolog.TimeFormatUnixMs, true
	case "UnixMicro":
		return zerolog.TimeFormatUnixMicro, true
	default:
		return "", false
	}
}
