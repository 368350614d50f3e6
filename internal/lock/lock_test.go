package lock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestFileLocker_AcquireRelease(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "run", "nfeflow.lock")
	l := NewFile(path)

	ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second holder is refused while the token is fresh.
	ok, err = NewFile(path).Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx))
	assert.NoFileExists(t, path)

	// Releasing twice is harmless.
	require.NoError(t, l.Release(ctx))

	ok, err = l.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFileLocker_StaleTokenIsReplaced(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nfeflow.lock")

	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	first := NewFile(path, WithClock(func() time.Time { return start }))
	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	later := NewFile(path, WithClock(func() time.Time { return start.Add(90 * time.Minute) }))
	ok, err = later.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "token younger than the window must hold")

	muchLater := NewFile(path, WithClock(func() time.Time { return start.Add(2*time.Hour + time.Minute) }))
	ok, err = muchLater.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "token older than the window is stale")
}

func TestFileLocker_UnreadableTokenFallsBackToModTime(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nfeflow.lock")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	old := time.Now().Add(-3 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	ok, err := NewFile(path).Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"pid":`)
}

func TestFileLocker_UnreadableFreshTokenHolds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nfeflow.lock")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	ok, err := NewFile(path).Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWithLock(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nfeflow.lock")
	l := NewFile(path)

	ran := false
	err := WithLock(ctx, l, nil, func(context.Context) error {
		ran = true
		assert.FileExists(t, path)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.NoFileExists(t, path)
}

func TestWithLock_Held(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nfeflow.lock")
	holder := NewFile(path)
	ok, err := holder.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	err = WithLock(ctx, NewFile(path), nil, func(context.Context) error {
		t.Fatal("must not run while the lock is held")
		return nil
	})
	assert.ErrorIs(t, err, ErrHeld)
	assert.FileExists(t, path, "refused caller must not remove the holder's lock")
}

func TestWithLock_ReleasesOnErrorAndPanic(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nfeflow.lock")
	l := NewFile(path)

	boom := errors.New("boom")
	err := WithLock(ctx, l, nil, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoFileExists(t, path)

	assert.Panics(t, func() {
		_ = WithLock(ctx, l, nil, func(context.Context) error { panic("stage crashed") })
	})
	assert.NoFileExists(t, path)
}
