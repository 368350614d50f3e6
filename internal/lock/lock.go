// Package lock implements the advisory run lock that keeps two orchestration
// runs on one host from overlapping.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// ErrHeld is returned by WithLock when another run owns the lock.
var ErrHeld = errors.New("run lock is held by another run")

// DefaultStaleAfter is the token age after which a lock is presumed abandoned.
const DefaultStaleAfter = 2 * time.Hour

// Locker acquires and releases the run lock.
type Locker interface {
	// Acquire returns false without error when a live lock is held elsewhere.
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Token identifies the lock owner. Staleness is judged from CreatedAt only.
type Token struct {
	PID       int       `json:"pid"`
	Host      string    `json:"host"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewToken describes the current process.
func NewToken(now time.Time) Token {
	host, _ := os.Hostname()
	return Token{PID: os.Getpid(), Host: host, CreatedAt: now.UTC()}
}

func (t Token) marshal() ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshaling lock token: %w", err)
	}
	return data, nil
}

// WithLock runs fn while holding l. The lock is released on every exit path,
// including a panic in fn, which is then propagated.
func WithLock(ctx context.Context, l Locker, logger *slog.Logger, fn func(ctx context.Context) error) error {
	if logger == nil {
		logger = slog.Default()
	}
	ok, err := l.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring run lock: %w", err)
	}
	if !ok {
		return ErrHeld
	}
	defer func() {
		// Release must not inherit a cancelled run context.
		if rerr := l.Release(context.WithoutCancel(ctx)); rerr != nil {
			logger.Warn("releasing run lock failed", "error", rerr)
		}
	}()
	return fn(ctx)
}
