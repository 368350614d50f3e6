// Package logging builds the process logger: stdout plus one log file per run.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dwsmith1983/nfeflow/internal/config"
)

// FileLayout names the per-run log file.
const FileLayout = "log_2006-01-02_15-04-05.txt"

// ParseLevel maps a level name to a slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return lvl, nil
}

// New returns a logger writing to w in the configured format.
func New(w io.Writer, cfg config.Log) (*slog.Logger, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// Setup creates the run's log file under cfg.Dir, installs a logger writing
// to stdout and that file as the slog default, and returns it with a close
// function for the file. When the directory cannot be created the logger
// falls back to stdout only.
func Setup(cfg config.Log, now time.Time) (*slog.Logger, func() error, error) {
	var w io.Writer = os.Stdout
	closeFn := func() error { return nil }
	var fileErr error
	if cfg.Dir != "" {
		f, err := openRunFile(cfg.Dir, now)
		if err != nil {
			fileErr = err
		} else {
			w = io.MultiWriter(os.Stdout, f)
			closeFn = f.Close
		}
	}

	logger, err := New(w, cfg)
	if err != nil {
		_ = closeFn()
		return nil, nil, err
	}
	slog.SetDefault(logger)
	if fileErr != nil {
		logger.Warn("log file unavailable, logging to stdout only", "error", fileErr)
	}
	return logger, closeFn, nil
}

func openRunFile(dir string, now time.Time) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	path := filepath.Join(dir, now.Format(FileLayout))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}
