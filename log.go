package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
)

func getLogFilePath() (string, error) {
	dir, err := gap.NewScope(gap.User, "readaloud").CacheDir()
	if err != nil {
		return "", fmt.Errorf("unable to find cache directory: %w", err)
	}
	return filepath.Join(dir, "readaloud.log"), nil
}

// setupLog sends logs to a file, since the terminal belongs to the TUI.
// READALOUD_LOG_LEVEL picks the level; it defaults to info.
func setupLog() (func() error, error) {
	log.SetOutput(io.Discard)

	logFile, err := getLogFilePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil { //nolint:gosec
		return nil, fmt.Errorf("unable to create log directory: %w", err)
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("unable to open log file: %w", err)
	}

	level := log.InfoLevel
	if v := os.Getenv("READALOUD_LOG_LEVEL"); v != "" {
		if l, err := log.ParseLevel(v); err == nil {
			level = l
		}
	}
	log.SetOutput(f)
	log.SetLevel(level)
	log.SetReportTimestamp(true)
	return f.Close, nil
}
