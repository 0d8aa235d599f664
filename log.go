package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

func getLogFilePath() (string, error) {
	if p := viper.GetString("log.file"); p != "" {
		return p, nil
	}
	dir, err := gap.NewScope(gap.User, "musicbot").CacheDir()
	if err != nil {
		return "", err //nolint:wrapcheck
	}
	return filepath.Join(dir, "musicbot.log"), nil
}

// setupLog sends logs to stderr and, unless disabled, to a log file. Logs are
// JSON when stderr is not a terminal.
func setupLog() (func() error, error) {
	if viper.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}
	log.SetReportTimestamp(true)
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		log.SetFormatter(log.JSONFormatter)
	}

	if !viper.GetBool("log.to_file") {
		log.SetOutput(os.Stderr)
		return func() error { return nil }, nil
	}

	logFile, err := getLogFilePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil { //nolint:gosec
		return nil, fmt.Errorf("unable to create log directory: %w", err)
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("unable to open log file: %w", err)
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return f.Close, nil
}
