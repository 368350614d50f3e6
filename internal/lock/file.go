package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Compile-time interface satisfaction check.
var _ Locker = (*FileLocker)(nil)

// FileLocker is a lock marker file created exclusively.
type FileLocker struct {
	path       string
	staleAfter time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// FileOption configures a FileLocker.
type FileOption func(*FileLocker)

// WithStaleAfter overrides DefaultStaleAfter.
func WithStaleAfter(d time.Duration) FileOption {
	return func(l *FileLocker) { l.staleAfter = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) FileOption {
	return func(l *FileLocker) { l.now = now }
}

// WithLogger sets the logger used for stale-lock warnings.
func WithLogger(logger *slog.Logger) FileOption {
	return func(l *FileLocker) { l.logger = logger }
}

// NewFile returns a FileLocker for path.
func NewFile(path string, opts ...FileOption) *FileLocker {
	l := &FileLocker{
		path:       path,
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the marker location.
func (l *FileLocker) Path() string { return l.path }

// Acquire creates the marker. An existing marker older than the staleness
// window is removed and creation is retried once.
func (l *FileLocker) Acquire(_ context.Context) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("creating lock directory: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		created, err := l.create()
		if err != nil {
			return false, err
		}
		if created {
			return true, nil
		}
		if attempt > 0 {
			break
		}

		age, err := l.age()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return false, err
		}
		if age <= l.staleAfter {
			l.logger.Info("run lock held", "path", l.path, "age", age.Round(time.Second))
			return false, nil
		}

		l.logger.Warn("removing stale run lock", "path", l.path, "age", age.Round(time.Second))
		if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("removing stale lock: %w", err)
		}
	}
	return false, nil
}

// Release removes the marker. A missing marker is not an error.
func (l *FileLocker) Release(_ context.Context) error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing lock: %w", err)
	}
	return nil
}

func (l *FileLocker) create() (bool, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("creating lock: %w", err)
	}

	data, err := NewToken(l.now()).marshal()
	if err == nil {
		_, err = f.Write(data)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(l.path)
		return false, fmt.Errorf("writing lock token: %w", err)
	}
	return true, nil
}

// age reads the token's creation time, falling back to the file's
// modification time when the token cannot be decoded.
func (l *FileLocker) age() (time.Duration, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0, err
	}
	var tok Token
	if json.Unmarshal(data, &tok) == nil && !tok.CreatedAt.IsZero() {
		return l.now().Sub(tok.CreatedAt), nil
	}

	info, err := os.Stat(l.path)
	if err != nil {
		return 0, err
	}
	return l.now().Sub(info.ModTime()), nil
}
