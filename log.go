package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/srmooon/vcnarrator/internal/config"
)

// setupLog points the default logger at the configured file, or stderr, and
// applies the level. The returned func closes the file.
func setupLog(c config.Config) (func() error, error) {
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	log.SetLevel(level)
	log.SetReportTimestamp(true)

	logFile, err := c.ResolveLogFile()
	if err != nil {
		return nil, fmt.Errorf("unable to resolve log file: %w", err)
	}
	if logFile == "" {
		log.SetOutput(os.Stderr)
		return func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil { //nolint:gosec
		return nil, fmt.Errorf("unable to create log directory: %w", err)
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("unable to open log file: %w", err)
	}
	log.SetOutput(f)
	return f.Close, nil
}
