//go:build integration

package lock

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLocking(t *testing.T, a, b Locker) {
	t.Helper()
	ctx := context.Background()

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Release(ctx))

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, b.Release(ctx))
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	key := fmt.Sprintf("nfeflow-test-%d:lock", time.Now().UnixNano())
	testLocking(t, NewRedis(client, key, 30*time.Second), NewRedis(client, key, 30*time.Second))
}

func TestRedisLocker_Expires(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	key := fmt.Sprintf("nfeflow-test-%d:lock", time.Now().UnixNano())
	ok, err := NewRedis(client, key, time.Second).Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(2 * time.Second)

	ok, err = NewRedis(client, key, time.Second).Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	_ = client.Del(ctx, key)
}

func TestFirestoreLocker(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	ctx := context.Background()
	client, err := firestore.NewClient(ctx, "nfeflow-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	id := fmt.Sprintf("lock-%d", time.Now().UnixNano())
	a := NewFirestore(client, "nfeflow-locks", id, time.Hour)
	b := NewFirestore(client, "nfeflow-locks", id, time.Hour)
	testLocking(t, a, b)

	// A token past the window is taken over.
	stale := NewFirestore(client, "nfeflow-locks", id, time.Hour)
	stale.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	ok, err := stale.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, b.Release(ctx))
}
